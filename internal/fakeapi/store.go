package fakeapi

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/taskdeck/deck/internal/types"
)

// AddLabel stores a label and returns it with its id.
func (s *Server) AddLabel(name, color string) types.Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLbl++
	l := types.Label{ID: s.nextLbl, Name: name, Color: color}
	s.labels = append(s.labels, l)
	return l
}

// AddRepo stores a connected repository with every job idle.
func (s *Server) AddRepo(fullName string) types.ConnectedRepo {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.repos) + 1)
	name := fullName
	if i := strings.LastIndexByte(fullName, '/'); i >= 0 {
		name = fullName[i+1:]
	}
	r := &types.ConnectedRepo{
		ID:            id,
		GitHubRepoID:  5000 + id,
		FullName:      fullName,
		Name:          name,
		HTMLURL:       "https://github.com/" + fullName,
		DefaultBranch: "main",
		ConnectedAt:   s.now(),
	}
	s.repos = append(s.repos, r)
	return *r
}

// AddIssue stores a draft as the create endpoint would.
func (s *Server) AddIssue(d types.IssueDraft) types.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.createLocked(d)
}

func (s *Server) createLocked(d types.IssueDraft) *types.Issue {
	d.SetDefaults()
	now := s.now()
	s.nextID++
	it := &types.Issue{
		ID:              s.nextID,
		Title:           strings.TrimSpace(d.Title),
		Description:     d.Description,
		Status:          d.Status,
		Priority:        d.Priority,
		RepoFullName:    d.RepoFullName,
		BehaviorExample: d.BehaviorExample,
		Assignee:        d.Assignee,
		DueDate:         d.DueDate,
		Labels:          s.resolveLabelsLocked(d.LabelIDs),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.issues[it.ID] = it
	return it
}

func (s *Server) resolveLabelsLocked(ids []int64) []types.Label {
	out := []types.Label{}
	for _, id := range ids {
		for _, l := range s.labels {
			if l.ID == id {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

// Issue returns the stored record of id.
func (s *Server) Issue(id int64) (types.Issue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.issues[id]
	if !ok {
		return types.Issue{}, false
	}
	return *it, true
}

// IssueCount returns how many issues are stored.
func (s *Server) IssueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.issues)
}

// listQuery is the parsed query of GET /issues.
type listQuery struct {
	status   types.Status
	priority types.Priority
	repo     string
	search   string
	labelIDs []int64
	skip     int
	limit    int
}

func (q listQuery) match(it *types.Issue) bool {
	if q.status != "" && it.Status != q.status {
		return false
	}
	if q.priority != "" && it.Priority != q.priority {
		return false
	}
	if q.repo != "" && it.Repo() != q.repo {
		return false
	}
	if q.search != "" {
		needle := strings.ToLower(q.search)
		if !strings.Contains(strings.ToLower(it.Title), needle) &&
			!strings.Contains(strings.ToLower(it.Desc()), needle) {
			return false
		}
	}
	if len(q.labelIDs) > 0 {
		found := false
		for _, id := range q.labelIDs {
			if it.HasLabel(id) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// listLocked returns one page, newest first, and the unpaged total.
func (s *Server) listLocked(q listQuery) ([]types.Issue, int) {
	var hits []*types.Issue
	for _, it := range s.issues {
		if q.match(it) {
			hits = append(hits, it)
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}
		return hits[i].ID > hits[j].ID
	})
	total := len(hits)
	items := []types.Issue{}
	for i := q.skip; i < total && len(items) < q.limit; i++ {
		items = append(items, *hits[i])
	}
	return items, total
}

func (s *Server) repoNamesLocked() []string {
	seen := map[string]bool{}
	names := []string{}
	for _, it := range s.issues {
		if r := it.Repo(); r != "" && !seen[r] {
			seen[r] = true
			names = append(names, r)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Server) workRequestLocked(issueID int64) *types.QueueItem {
	s.nextQ++
	q := &types.QueueItem{ID: s.nextQ, IssueID: issueID, Status: types.QueuePending, CreatedAt: s.now()}
	s.queue = append(s.queue, q)
	st := q.Status
	s.issues[issueID].LatestQueueStatus = &st
	return q
}

func (s *Server) commentLocked(issueID int64, author, content string) *types.Comment {
	now := s.now()
	s.nextC++
	n := &types.Comment{ID: s.nextC, IssueID: issueID, Author: author, Content: content, CreatedAt: now, UpdatedAt: now}
	s.notes = append(s.notes, n)
	return n
}

func (s *Server) dropCommentsLocked(issueID int64) {
	kept := s.notes[:0]
	for _, n := range s.notes {
		if n.IssueID != issueID {
			kept = append(kept, n)
		}
	}
	s.notes = kept
}

// AddComment appends a comment to an issue.
func (s *Server) AddComment(issueID int64, author, content string) (types.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issueID]; !ok {
		return types.Comment{}, fmt.Errorf("issue %d not found", issueID)
	}
	return *s.commentLocked(issueID, author, content), nil
}

// CommentCount returns how many comments an issue has.
func (s *Server) CommentCount(issueID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.notes {
		if c.IssueID == issueID {
			n++
		}
	}
	return n
}

func (s *Server) repoLocked(id int64) *types.ConnectedRepo {
	for _, r := range s.repos {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// FailJob makes the next run of the job end in failed with msg instead of
// completed.
func (s *Server) FailJob(repoID int64, kind types.JobKind, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobFailAt[jobKey{repoID, kind}] = msg
}

// SetJob overwrites a job tracker.
func (s *Server) SetJob(repoID int64, rec types.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.repoLocked(repoID)
	if r == nil {
		return fmt.Errorf("repo %d not found", repoID)
	}
	r.SetJob(rec)
	return nil
}

// Job returns a job tracker.
func (s *Server) Job(repoID int64, kind types.JobKind) (types.JobRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.repoLocked(repoID)
	if r == nil {
		return types.JobRecord{}, false
	}
	return r.Job(kind), true
}

// startJobLocked resets a job to pending as trigger and retry do.
func (s *Server) startJobLocked(r *types.ConnectedRepo, kind types.JobKind) {
	r.SetJob(types.JobRecord{Kind: kind, Status: types.JobPending})
}

// Step advances the remote worker by one tick: pending jobs start analyzing,
// analyzing jobs finish, and queued work requests move the same way. It
// reports whether anything changed.
func (s *Server) Step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	now := s.now()
	for _, r := range s.repos {
		for _, k := range types.JobKinds {
			rec := r.Job(k)
			switch rec.Status {
			case types.JobPending:
				rec.Status = types.JobAnalyzing
			case types.JobAnalyzing:
				key := jobKey{r.ID, k}
				if msg, ok := s.jobFailAt[key]; ok {
					delete(s.jobFailAt, key)
					rec.Status = types.JobFailed
					rec.Error = &msg
				} else {
					rec.Status = types.JobCompleted
					res := fmt.Sprintf("## %s analysis of %s\n\nNo issues found.", k, r.FullName)
					rec.Result = &res
				}
				at := now
				rec.At = &at
			default:
				continue
			}
			r.SetJob(rec)
			changed = true
		}
	}
	for _, q := range s.queue {
		at := now
		switch q.Status {
		case types.QueuePending:
			q.Status = types.QueueInProgress
			q.StartedAt = &at
		case types.QueueInProgress:
			q.Status = types.QueueCompleted
			q.CompletedAt = &at
			res := fmt.Sprintf("Opened a pull request for issue #%d.", q.IssueID)
			q.Result = &res
		default:
			continue
		}
		if it, ok := s.issues[q.IssueID]; ok {
			st := q.Status
			it.LatestQueueStatus = &st
		}
		changed = true
	}
	return changed
}

// Seed fills an empty backend with demo data.
func (s *Server) Seed() {
	bug := s.AddLabel("bug", "#d73a4a")
	feat := s.AddLabel("feature", "#a2eeef")
	docs := s.AddLabel("docs", "#0075ca")
	web := s.AddRepo("taskdeck/web")
	s.AddRepo("taskdeck/api")

	repo := types.StringPtr(web.FullName)
	due := s.now().Add(72 * time.Hour).Truncate(24 * time.Hour)
	drafts := []types.IssueDraft{
		{Title: "Fix login redirect loop", Priority: types.PriorityHigh, RepoFullName: repo, LabelIDs: []int64{bug.ID}},
		{Title: "Dark mode for the board", Priority: types.PriorityLow, RepoFullName: repo, LabelIDs: []int64{feat.ID}},
		{Title: "Document the label API", Status: types.StatusInProgress, LabelIDs: []int64{docs.ID}, Assignee: types.StringPtr("octocat")},
		{Title: "Paginate the issue list", Status: types.StatusInProgress, Priority: types.PriorityHigh, RepoFullName: repo, DueDate: &due},
		{Title: "Set up CI", Status: types.StatusDone, Description: types.StringPtr("Run tests on every **push**.")},
	}
	for _, d := range drafts {
		s.AddIssue(d)
	}
	_, _ = s.AddComment(1, s.user.Login, "Reproduced in Safari: the refresh cookie is dropped after the redirect.")
}
