package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxCommentLength is the backend's limit on comment bodies.
const MaxCommentLength = 5000

// ErrInvalidComment is returned for blank or oversized comments.
var ErrInvalidComment = errors.New("invalid comment")

// Comment is a discussion entry on an issue. Comments are listed oldest
// first.
type Comment struct {
	ID        int64     `json:"id"`
	IssueID   int64     `json:"issue_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommentDraft is the payload for adding a comment.
type CommentDraft struct {
	Content string `json:"content"`
}

// Validate trims the content and checks it against the backend limits.
func (d *CommentDraft) Validate() error {
	d.Content = strings.TrimSpace(d.Content)
	if d.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidComment)
	}
	if n := len([]rune(d.Content)); n > MaxCommentLength {
		return fmt.Errorf("%w: content must be %d characters or less (got %d)", ErrInvalidComment, MaxCommentLength, n)
	}
	return nil
}

// QueueItem is one agent work request of an issue. The history endpoint
// lists them newest first.
type QueueItem struct {
	ID          int64       `json:"id"`
	IssueID     int64       `json:"issue_id"`
	Status      QueueStatus `json:"status"`
	Priority    int         `json:"priority"`
	Result      *string     `json:"result"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at"`
}

// Duration is how long the agent worked on the request, or 0 while it has
// not finished.
func (q QueueItem) Duration() time.Duration {
	if q.StartedAt == nil || q.CompletedAt == nil {
		return 0
	}
	return q.CompletedAt.Sub(*q.StartedAt)
}
