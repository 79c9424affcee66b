package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/taskdeck/deck/internal/types"
)

// API paths
const (
	IssuesPath         = "/issues"
	IssueReposPath     = "/issues/repos"
	LabelsPath         = "/labels"
	ConnectedReposPath = "/github/connected-repos"
)

// IssuePath returns the path of one issue.
func IssuePath(id int64) string {
	return fmt.Sprintf("%s/%d", IssuesPath, id)
}

// CommentsPath returns the comment collection of one issue.
func CommentsPath(issueID int64) string {
	return IssuePath(issueID) + "/comments"
}

// JobPath returns the detail path of one repository job.
func JobPath(repoID int64, kind types.JobKind) string {
	return fmt.Sprintf("%s/%d/%s", ConnectedReposPath, repoID, kind.Segment())
}

// IssuesQueryPath returns the listing path for a query.
func IssuesQueryPath(q url.Values) string {
	if len(q) == 0 {
		return IssuesPath
	}
	return IssuesPath + "?" + q.Encode()
}

// ListIssues fetches one page of issues.
func (c *Client) ListIssues(ctx context.Context, q url.Values) (*types.IssueList, error) {
	var out types.IssueList
	if _, err := c.Do(ctx, http.MethodGet, IssuesQueryPath(q), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return &out, nil
}

// GetIssue fetches a single issue.
func (c *Client) GetIssue(ctx context.Context, id int64) (*types.Issue, error) {
	var out types.Issue
	res, err := c.Do(ctx, http.MethodGet, IssuePath(id), nil, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %d: %w", id, err)
	}
	if res == NoContent {
		return nil, nil
	}
	return &out, nil
}

// CreateIssue posts a draft and returns the canonical record.
func (c *Client) CreateIssue(ctx context.Context, draft types.IssueDraft) (*types.Issue, error) {
	var out types.Issue
	res, err := c.Do(ctx, http.MethodPost, IssuesPath, draft, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	if res == NoContent {
		return nil, nil
	}
	return &out, nil
}

// UpdateIssue applies a partial update.
func (c *Client) UpdateIssue(ctx context.Context, id int64, patch types.IssuePatch) (*types.Issue, error) {
	var out types.Issue
	res, err := c.Do(ctx, http.MethodPatch, IssuePath(id), patch, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to update issue %d: %w", id, err)
	}
	if res == NoContent {
		return nil, nil
	}
	return &out, nil
}

// DeleteIssue removes an issue (204).
func (c *Client) DeleteIssue(ctx context.Context, id int64) error {
	if _, err := c.Do(ctx, http.MethodDelete, IssuePath(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete issue %d: %w", id, err)
	}
	return nil
}

// CreateWorkRequest enqueues an agent work request for an issue. The queue
// item in the response is not needed; the issue's latest_queue_status
// reflects it on the next fetch.
func (c *Client) CreateWorkRequest(ctx context.Context, id int64) error {
	if _, err := c.Do(ctx, http.MethodPost, IssuePath(id)+"/work-request", nil, nil); err != nil {
		return fmt.Errorf("failed to request work on issue %d: %w", id, err)
	}
	return nil
}

// ListQueueItems fetches the work request history of an issue, newest
// first.
func (c *Client) ListQueueItems(ctx context.Context, id int64) ([]types.QueueItem, error) {
	out, err := Get[[]types.QueueItem](ctx, c, IssuePath(id)+"/queue-items")
	if err != nil {
		return nil, fmt.Errorf("failed to list work requests of issue %d: %w", id, err)
	}
	return out, nil
}

// ListComments fetches the comments of an issue, oldest first.
func (c *Client) ListComments(ctx context.Context, id int64) ([]types.Comment, error) {
	out, err := Get[[]types.Comment](ctx, c, CommentsPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list comments of issue %d: %w", id, err)
	}
	return out, nil
}

// AddComment posts a comment and returns the stored record.
func (c *Client) AddComment(ctx context.Context, id int64, draft types.CommentDraft) (*types.Comment, error) {
	var out types.Comment
	res, err := c.Do(ctx, http.MethodPost, CommentsPath(id), draft, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to comment on issue %d: %w", id, err)
	}
	if res == NoContent {
		return nil, nil
	}
	return &out, nil
}

// DeleteComment removes one comment (204).
func (c *Client) DeleteComment(ctx context.Context, id, commentID int64) error {
	path := fmt.Sprintf("%s/%d", CommentsPath(id), commentID)
	if _, err := c.Do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete comment %d of issue %d: %w", commentID, id, err)
	}
	return nil
}

// ListIssueRepos fetches the distinct repository names issues are linked to.
func (c *Client) ListIssueRepos(ctx context.Context) ([]string, error) {
	out, err := Get[[]string](ctx, c, IssueReposPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list issue repos: %w", err)
	}
	return out, nil
}

// ListLabels fetches all labels.
func (c *Client) ListLabels(ctx context.Context) ([]types.Label, error) {
	out, err := Get[types.LabelList](ctx, c, LabelsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return out.Items, nil
}

// ListConnectedRepos fetches the repositories with their job trackers.
func (c *Client) ListConnectedRepos(ctx context.Context) ([]types.ConnectedRepo, error) {
	out, err := Get[types.RepoList](ctx, c, ConnectedReposPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected repos: %w", err)
	}
	return out.Items, nil
}

// GetJob fetches the detail record of one job.
func (c *Client) GetJob(ctx context.Context, repoID int64, kind types.JobKind) (types.JobRecord, error) {
	var raw json.RawMessage
	res, err := c.Do(ctx, http.MethodGet, JobPath(repoID, kind), nil, &raw)
	if err != nil {
		return types.JobRecord{}, fmt.Errorf("failed to get %s job of repo %d: %w", kind, repoID, err)
	}
	if res == NoContent || len(raw) == 0 {
		return types.JobRecord{Kind: kind}, nil
	}
	return types.DecodeJobRecord(kind, raw)
}

// TriggerJob asks the backend to start a job. The response body is ignored.
func (c *Client) TriggerJob(ctx context.Context, repoID int64, kind types.JobKind) error {
	if _, err := c.Do(ctx, http.MethodPost, JobPath(repoID, kind)+"/trigger", nil, nil); err != nil {
		return fmt.Errorf("failed to trigger %s job of repo %d: %w", kind, repoID, err)
	}
	return nil
}

// RetryJob asks the backend to rerun a failed job.
func (c *Client) RetryJob(ctx context.Context, repoID int64, kind types.JobKind) error {
	if _, err := c.Do(ctx, http.MethodPost, JobPath(repoID, kind)+"/retry", nil, nil); err != nil {
		return fmt.Errorf("failed to retry %s job of repo %d: %w", kind, repoID, err)
	}
	return nil
}

// Me returns the signed-in user. A 401 here is final (no refresh).
func (c *Client) Me(ctx context.Context) (*types.User, error) {
	var out types.User
	if _, err := c.Do(ctx, http.MethodGet, IdentityPath, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &out, nil
}
