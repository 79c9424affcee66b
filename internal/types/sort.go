package types

import (
	"sort"
	"strings"
)

// SortField is a column `deck issues list --sort` can order by.
type SortField string

const (
	SortByID       SortField = "id"
	SortByTitle    SortField = "title"
	SortByPriority SortField = "priority"
	SortByCreated  SortField = "created"
	SortByUpdated  SortField = "updated"
	SortByDue      SortField = "due"
)

var sortFieldAliases = map[string]SortField{
	"id":         SortByID,
	"title":      SortByTitle,
	"priority":   SortByPriority,
	"created":    SortByCreated,
	"created_at": SortByCreated,
	"updated":    SortByUpdated,
	"updated_at": SortByUpdated,
	"due":        SortByDue,
	"due_date":   SortByDue,
}

// SortOption is one key of a sort order.
type SortOption struct {
	Field SortField
	Desc  bool
}

func (o SortOption) String() string {
	if o.Desc {
		return string(o.Field) + "-desc"
	}
	return string(o.Field) + "-asc"
}

// DefaultSortOrder is highest priority first, then most recently updated.
func DefaultSortOrder() []SortOption {
	return []SortOption{{Field: SortByPriority}, {Field: SortByUpdated, Desc: true}}
}

// ParseSortOrder parses "priority,updated-desc,title:asc". A key without a
// direction sorts ascending. Unknown keys are skipped, repeated keys keep
// their first occurrence.
func ParseSortOrder(raw string) []SortOption {
	var out []SortOption
	seen := make(map[SortField]bool)
	for _, token := range strings.Split(raw, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		name, dir := token, "asc"
		if i := strings.LastIndexAny(token, ":-"); i > 0 {
			name, dir = token[:i], token[i+1:]
		}
		field, ok := sortFieldAliases[name]
		if !ok || seen[field] {
			continue
		}
		var desc bool
		switch dir {
		case "asc", "ascending":
		case "desc", "descending":
			desc = true
		default:
			continue
		}
		seen[field] = true
		out = append(out, SortOption{Field: field, Desc: desc})
	}
	return out
}

// EncodeSortOrder is the inverse of ParseSortOrder.
func EncodeSortOrder(opts []SortOption) string {
	parts := make([]string, len(opts))
	for i, o := range opts {
		parts[i] = o.String()
	}
	return strings.Join(parts, ",")
}

// compareIssues returns <0 when a sorts before b in ascending order of field.
// For priority "ascending" means high first; missing due dates sort last.
func compareIssues(a, b *Issue, field SortField) int {
	switch field {
	case SortByID:
		return cmp3(a.ID < b.ID, a.ID > b.ID)
	case SortByTitle:
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case SortByPriority:
		return a.Priority.Rank() - b.Priority.Rank()
	case SortByCreated:
		return a.CreatedAt.Compare(b.CreatedAt)
	case SortByUpdated:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortByDue:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		}
		return a.DueDate.Compare(*b.DueDate)
	}
	return 0
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// SortIssues orders issues in place. Ties keep their input order.
func SortIssues(issues []Issue, opts []SortOption) {
	if len(opts) == 0 {
		return
	}
	sort.SliceStable(issues, func(i, j int) bool {
		for _, o := range opts {
			c := compareIssues(&issues[i], &issues[j], o.Field)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
