package fakeapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskdeck/deck/internal/types"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid " + name})
		return 0, false
	}
	return id, true
}

// parseLabelIDs accepts repeated and comma separated label_ids.
func parseLabelIDs(raw []string) ([]int64, error) {
	var out []int64
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
	}
	return out, nil
}

func parseListQuery(c *gin.Context) (listQuery, bool) {
	q := listQuery{
		repo:   c.Query("repo_full_name"),
		search: strings.TrimSpace(c.Query("search")),
		limit:  defaultLimit,
	}
	if v := c.Query("status"); v != "" {
		q.status = types.Status(v)
		if !q.status.IsValid() {
			validationError(c, "status", "Input should be 'todo', 'in_progress' or 'done'")
			return q, false
		}
	}
	if v := c.Query("priority"); v != "" {
		q.priority = types.Priority(v)
		if !q.priority.IsValid() {
			validationError(c, "priority", "Input should be 'low', 'medium' or 'high'")
			return q, false
		}
	}
	if v := c.Query("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			validationError(c, "skip", "Input should be greater than or equal to 0")
			return q, false
		}
		q.skip = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			validationError(c, "limit", "Input should be between 1 and 100")
			return q, false
		}
		q.limit = n
	}
	ids, err := parseLabelIDs(c.QueryArray("label_ids"))
	if err != nil {
		validationError(c, "label_ids", "Input should be a valid integer")
		return q, false
	}
	q.labelIDs = ids
	return q, true
}

func (s *Server) handleListIssues(c *gin.Context) {
	q, ok := parseListQuery(c)
	if !ok {
		return
	}
	s.mu.Lock()
	items, total := s.listLocked(q)
	s.mu.Unlock()
	c.JSON(http.StatusOK, types.IssueList{Items: items, Total: total})
}

func (s *Server) handleIssueRepos(c *gin.Context) {
	s.mu.Lock()
	names := s.repoNamesLocked()
	s.mu.Unlock()
	c.JSON(http.StatusOK, names)
}

func (s *Server) handleGetIssue(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	it, found := s.issues[id]
	var out types.Issue
	if found {
		out = *it
	}
	s.mu.Unlock()
	if !found {
		notFound(c, "Issue", id)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateIssue(c *gin.Context) {
	var d types.IssueDraft
	if err := c.ShouldBindJSON(&d); err != nil {
		validationError(c, "body", err.Error())
		return
	}
	if err := d.Validate(); err != nil {
		validationError(c, "title", err.Error())
		return
	}
	s.mu.Lock()
	out := *s.createLocked(d)
	s.mu.Unlock()
	c.JSON(http.StatusCreated, out)
}

func (s *Server) handleUpdateIssue(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var p types.IssuePatch
	if err := c.ShouldBindJSON(&p); err != nil {
		validationError(c, "body", err.Error())
		return
	}
	if err := p.Validate(); err != nil {
		validationError(c, "body", err.Error())
		return
	}

	s.mu.Lock()
	it, found := s.issues[id]
	if !found {
		s.mu.Unlock()
		notFound(c, "Issue", id)
		return
	}
	next := p.Apply(*it, s.labels)
	next.UpdatedAt = s.now()
	*it = next
	s.mu.Unlock()
	c.JSON(http.StatusOK, next)
}

func (s *Server) handleDeleteIssue(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	_, found := s.issues[id]
	delete(s.issues, id)
	s.dropCommentsLocked(id)
	s.mu.Unlock()
	if !found {
		notFound(c, "Issue", id)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleQueueItems(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	out := []types.QueueItem{}
	for i := len(s.queue) - 1; i >= 0; i-- {
		if s.queue[i].IssueID == id {
			out = append(out, *s.queue[i])
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListComments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	out := []types.Comment{}
	for _, n := range s.notes {
		if n.IssueID == id {
			out = append(out, *n)
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var d types.CommentDraft
	if err := c.ShouldBindJSON(&d); err != nil {
		validationError(c, "content", err.Error())
		return
	}
	if err := d.Validate(); err != nil {
		validationError(c, "content", err.Error())
		return
	}
	s.mu.Lock()
	if _, found := s.issues[id]; !found {
		s.mu.Unlock()
		notFound(c, "Issue", id)
		return
	}
	n := *s.commentLocked(id, s.user.Login, d.Content)
	s.mu.Unlock()
	c.JSON(http.StatusCreated, n)
}

func (s *Server) handleDeleteComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	cid, ok := paramID(c, "comment")
	if !ok {
		return
	}
	s.mu.Lock()
	found := false
	for i, n := range s.notes {
		if n.ID == cid && n.IssueID == id {
			s.notes = append(s.notes[:i], s.notes[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		notFound(c, "Comment", cid)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleWorkRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	if _, found := s.issues[id]; !found {
		s.mu.Unlock()
		notFound(c, "Issue", id)
		return
	}
	q := *s.workRequestLocked(id)
	s.mu.Unlock()
	c.JSON(http.StatusCreated, q)
}

func (s *Server) handleListLabels(c *gin.Context) {
	s.mu.Lock()
	items := append([]types.Label{}, s.labels...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, types.LabelList{Items: items})
}

func (s *Server) handleCreateLabel(c *gin.Context) {
	var in struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		validationError(c, "name", "Field required")
		return
	}
	s.mu.Lock()
	for _, l := range s.labels {
		if strings.EqualFold(l.Name, in.Name) {
			s.mu.Unlock()
			c.JSON(http.StatusConflict, gin.H{"detail": "Label already exists"})
			return
		}
	}
	s.mu.Unlock()
	if in.Color == "" {
		in.Color = "#6b7280"
	}
	c.JSON(http.StatusCreated, s.AddLabel(strings.TrimSpace(in.Name), in.Color))
}

func (s *Server) handleListRepos(c *gin.Context) {
	s.mu.Lock()
	items := make([]types.ConnectedRepo, 0, len(s.repos))
	for _, r := range s.repos {
		items = append(items, *r)
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, types.RepoList{Items: items})
}

// jobTarget resolves the :id and :segment parameters. On failure the
// response has been written.
func (s *Server) jobTarget(c *gin.Context) (*types.ConnectedRepo, types.JobKind, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, 0, false
	}
	kind, err := types.ParseJobKind(c.Param("segment"))
	if err != nil || c.Param("segment") != kind.Segment() {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return nil, 0, false
	}
	r := s.repoLocked(id)
	if r == nil {
		notFound(c, "Repository", id)
		return nil, 0, false
	}
	return r, kind, true
}

// jobBody renders a tracker with the kind prefixed field names the backend
// uses.
func jobBody(kind types.JobKind, rec types.JobRecord) gin.H {
	prefix := map[types.JobKind]string{
		types.JobOverview: "analysis",
		types.JobDeep:     "deep_analysis",
		types.JobCommit:   "commit_analysis",
	}[kind]
	at := "analyzed_at"
	if kind != types.JobOverview {
		at = strings.TrimSuffix(prefix, "analysis") + "analyzed_at"
	}
	return gin.H{
		prefix + "_status": rec.Status,
		prefix + "_result": rec.Result,
		prefix + "_error":  rec.Error,
		at:                 rec.At,
	}
}

func (s *Server) handleGetJob(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, kind, ok := s.jobTarget(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, jobBody(kind, r.Job(kind)))
}

func (s *Server) handleTriggerJob(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, kind, ok := s.jobTarget(c)
	if !ok {
		return
	}
	if r.Job(kind).Status.Active() {
		c.JSON(http.StatusConflict, gin.H{"detail": "Analysis already running"})
		return
	}
	s.startJobLocked(r, kind)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRetryJob(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, kind, ok := s.jobTarget(c)
	if !ok {
		return
	}
	if r.Job(kind).Status != types.JobFailed {
		c.JSON(http.StatusConflict, gin.H{"detail": "Only failed analyses can be retried"})
		return
	}
	s.startJobLocked(r, kind)
	c.JSON(http.StatusAccepted, gin.H{"message": "retry queued"})
}

// Work calls Step every interval until ctx is done.
func (s *Server) Work(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if s.Step() {
				s.logger.Debug("fakeapi worker advanced")
			}
		}
	}
}
