package query

import (
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/deck/internal/filter"
	"github.com/taskdeck/deck/internal/types"
)

func TestParams(t *testing.T) {
	tests := []struct {
		name  string
		state filter.State
		limit int
		want  url.Values
	}{
		{"empty no paging", filter.Initial(), 0, url.Values{}},
		{"first page", filter.Initial(), 50, url.Values{"skip": {"0"}, "limit": {"50"}}},
		{
			name: "everything",
			state: filter.State{
				Repo: "acme/api", Search: "login bug", Status: types.StatusTodo,
				Priority: types.PriorityHigh, Labels: []int64{1, 2}, Page: 3,
			},
			limit: 20,
			want: url.Values{
				"repo_full_name": {"acme/api"}, "search": {"login bug"}, "status": {"todo"},
				"priority": {"high"}, "label_ids": {"1,2"}, "skip": {"40"}, "limit": {"20"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Params(tt.state, tt.limit)); diff != "" {
				t.Errorf("Params() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIssuesKeyStable(t *testing.T) {
	a := IssuesKey(filter.State{Repo: "acme/api", Search: "x", Page: 1}, 50)
	b := IssuesKey(filter.State{Search: "x", Repo: "acme/api"}, 50)
	assert.Equal(t, a, b)
	assert.Equal(t, "/issues?limit=50&repo_full_name=acme%2Fapi&search=x&skip=0", a)
	assert.Equal(t, "/issues", IssuesKey(filter.Initial(), 0))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"status=todo", "status=todo"},
		{"status=todo and priority>=medium", "status=todo AND priority>=medium"},
		{"(label=bug OR label=regression) AND NOT assignee=none", "(label=bug OR label=regression) AND NOT assignee=none"},
		{`title~"login page"`, `title~"login page"`},
		{"repo=acme/api AND updated>7d", "repo=acme/api AND updated>7d"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "status", "status=", "status=todo AND", "(status=todo", "status!todo", `title~"open`, "status=todo)"} {
		_, err := Parse(in)
		assert.Error(t, err, "Parse(%q)", in)
	}
}

func sampleIssues(now time.Time) []types.Issue {
	repo := "acme/api"
	alice := "alice"
	pr := 7
	failed := types.QueueFailed
	due := now.Add(48 * time.Hour)
	return []types.Issue{
		{ID: 1, Title: "Fix login", Status: types.StatusTodo, Priority: types.PriorityHigh, RepoFullName: &repo,
			Labels: []types.Label{{ID: 1, Name: "bug"}}, UpdatedAt: now.Add(-time.Hour), CreatedAt: now.AddDate(0, 0, -30)},
		{ID: 2, Title: "Docs", Status: types.StatusDone, Priority: types.PriorityLow, Assignee: &alice,
			PRNumber: &pr, PRState: types.PRStateMerged, UpdatedAt: now.AddDate(0, 0, -10), CreatedAt: now.AddDate(0, 0, -40)},
		{ID: 3, Title: "Login page slow", Status: types.StatusInProgress, Priority: types.PriorityMedium,
			LatestQueueStatus: &failed, DueDate: &due, UpdatedAt: now.AddDate(0, 0, -2), CreatedAt: now.AddDate(0, 0, -3)},
	}
}

func ids(issues []types.Issue) []int64 {
	out := []int64{}
	for _, i := range issues {
		out = append(out, i.ID)
	}
	return out
}

func TestCompileMatch(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	labels := []types.Label{{ID: 1, Name: "bug"}, {ID: 2, Name: "ui"}}
	issues := sampleIssues(now)

	tests := []struct {
		where string
		want  []int64
	}{
		{"status=todo", []int64{1}},
		{"status!=done", []int64{1, 3}},
		{"priority>=medium", []int64{1, 3}},
		{"priority<medium", []int64{2}},
		{"label=bug", []int64{1}},
		{"label=1", []int64{1}},
		{"label=none", []int64{2, 3}},
		{"title~login", []int64{1, 3}},
		{"assignee=none", []int64{1, 3}},
		{"assignee=ALICE", []int64{2}},
		{"repo=acme/api OR pr=merged", []int64{1, 2}},
		{"queue=failed", []int64{3}},
		{"updated>7d", []int64{1, 3}},
		{"created<2024-12-10", []int64{2}},
		{"due<+3d", []int64{3}},
		{"due=none", []int64{1, 2}},
		{"NOT (status=done OR priority=high)", []int64{3}},
		{"id>=2 AND id<3", []int64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			q, err := Compile(tt.where, now, labels)
			require.NoError(t, err)
			var got []types.Issue
			for i := range issues {
				if q.Match(&issues[i]) {
					got = append(got, issues[i])
				}
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestCompileErrors(t *testing.T) {
	now := time.Now()
	for _, where := range []string{"color=red", "status=blocked", "status~todo", "pr=draft", "queue=x", "updated>zzz", "id=abc", "title<x"} {
		_, err := Compile(where, now, nil)
		assert.Error(t, err, "Compile(%q)", where)
	}
}

func TestPushdown(t *testing.T) {
	now := time.Now()
	labels := []types.Label{{ID: 5, Name: "bug"}}
	tests := []struct {
		where     string
		want      url.Values
		wantExact bool
	}{
		{"status=todo", url.Values{"status": {"todo"}}, true},
		{"status=todo AND priority=high AND label=bug", url.Values{"status": {"todo"}, "priority": {"high"}, "label_ids": {"5"}}, true},
		{"repo=acme/api AND title~login", url.Values{"repo_full_name": {"acme/api"}, "search": {"login"}}, false},
		{"status=todo OR status=done", url.Values{}, false},
		{"label=bug AND label=5", url.Values{"label_ids": {"5"}}, false},
		{"label=unknown", url.Values{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			q, err := Compile(tt.where, now, labels)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, q.Params); diff != "" {
				t.Errorf("Params mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantExact, q.Exact)
		})
	}
}

func TestFilterKeepsOrder(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	q, err := Compile("title~o", now, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids(q.Filter(sampleIssues(now))))
}

func TestMerge(t *testing.T) {
	got := Merge(url.Values{"status": {"todo"}, "limit": {"50"}}, url.Values{"status": {"done"}})
	assert.Equal(t, url.Values{"status": {"done"}, "limit": {"50"}}, got)
}
