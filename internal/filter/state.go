package filter

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/taskdeck/deck/internal/types"
)

// Navigation parameters owned by the filter store. Other parameters in the
// navigation state are preserved.
const (
	ParamRepo     = "repo"
	ParamSearch   = "q"
	ParamStatus   = "status"
	ParamPriority = "priority"
	ParamLabels   = "labels"
	ParamPage     = "page"
)

var ownedParams = []string{ParamRepo, ParamSearch, ParamStatus, ParamPriority, ParamLabels, ParamPage}

// State is the board's filter selection. Empty strings mean "unset".
type State struct {
	Repo     string
	Search   string
	Status   types.Status
	Priority types.Priority
	Labels   []int64
	// Page is 1-based.
	Page int
}

// Initial is the unset state.
func Initial() State {
	return State{Page: 1}
}

// IsZero reports whether no filter is active.
func (s State) IsZero() bool {
	return s.Repo == "" && s.Search == "" && s.Status == "" && s.Priority == "" && len(s.Labels) == 0 && s.Page <= 1
}

// FromQuery parses the owned parameters. Unknown or malformed values are
// treated as unset.
func FromQuery(v url.Values) State {
	s := Initial()
	s.Repo = strings.TrimSpace(v.Get(ParamRepo))
	s.Search = v.Get(ParamSearch)
	if st, err := types.ParseStatus(v.Get(ParamStatus)); err == nil {
		s.Status = st
	}
	if p, err := types.ParsePriority(v.Get(ParamPriority)); err == nil {
		s.Priority = p
	}
	s.Labels = parseLabels(v.Get(ParamLabels))
	if n, err := strconv.Atoi(v.Get(ParamPage)); err == nil && n > 1 {
		s.Page = n
	}
	return s
}

func parseLabels(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// FormatLabels joins label ids the way both the navigation state and the
// backend expect them ("1,2,3").
func FormatLabels(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// normalizeLabels sorts and dedupes ids.
func normalizeLabels(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	uniq := out[:1]
	for _, id := range out[1:] {
		if id != uniq[len(uniq)-1] {
			uniq = append(uniq, id)
		}
	}
	return uniq
}

func setOrDel(v url.Values, key, value string) {
	if value == "" {
		v.Del(key)
		return
	}
	v.Set(key, value)
}

func setPage(v url.Values, page int) {
	if page <= 1 {
		v.Del(ParamPage)
		return
	}
	v.Set(ParamPage, strconv.Itoa(page))
}
