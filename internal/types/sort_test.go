package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSortOrder(t *testing.T) {
	opts := ParseSortOrder("updated-desc, title:asc,priority")
	assert.Equal(t, []SortOption{
		{Field: SortByUpdated, Desc: true},
		{Field: SortByTitle},
		{Field: SortByPriority},
	}, opts)
}

func TestParseSortOrderSkipsInvalid(t *testing.T) {
	opts := ParseSortOrder("unknown-desc,updated_at-ascending,,title-sideways,updated-desc,due_date-desc")
	assert.Equal(t, []SortOption{{Field: SortByUpdated}, {Field: SortByDue, Desc: true}}, opts)
}

func TestEncodeSortOrder(t *testing.T) {
	assert.Equal(t, "updated-desc,title-asc", EncodeSortOrder([]SortOption{
		{Field: SortByUpdated, Desc: true},
		{Field: SortByTitle},
	}))
	assert.Equal(t, EncodeSortOrder(DefaultSortOrder()), EncodeSortOrder(ParseSortOrder("priority-asc,updated-desc")))
}

func TestSortIssues(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	due := base.Add(24 * time.Hour)
	issues := []Issue{
		{ID: 1, Title: "b", Priority: PriorityLow, UpdatedAt: base},
		{ID: 2, Title: "A", Priority: PriorityHigh, UpdatedAt: base},
		{ID: 3, Title: "c", Priority: PriorityHigh, UpdatedAt: base.Add(time.Hour), DueDate: &due},
	}

	SortIssues(issues, DefaultSortOrder())
	assert.Equal(t, []int64{3, 2, 1}, issueIDs(issues))

	SortIssues(issues, ParseSortOrder("title"))
	assert.Equal(t, []int64{2, 1, 3}, issueIDs(issues))

	SortIssues(issues, ParseSortOrder("due"))
	assert.Equal(t, []int64{3, 2, 1}, issueIDs(issues), "missing due dates last, stable otherwise")

	SortIssues(issues, nil)
	assert.Equal(t, []int64{3, 2, 1}, issueIDs(issues))
}

func issueIDs(issues []Issue) []int64 {
	out := make([]int64, len(issues))
	for i := range issues {
		out[i] = issues[i].ID
	}
	return out
}
