// Package types defines core data structures for the deck task board client.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Issue represents a work item on the board.
type Issue struct {
	ID                int64        `json:"id"`
	Title             string       `json:"title"`
	Description       *string      `json:"description"`
	Status            Status       `json:"status"`
	Priority          Priority     `json:"priority"`
	RepoFullName      *string      `json:"repo_full_name"`
	BehaviorExample   *string      `json:"behavior_example,omitempty"`
	PRNumber          *int         `json:"pr_number,omitempty"`
	PRURL             *string      `json:"pr_url,omitempty"`
	PRState           PRState      `json:"pr_state,omitempty"`
	Labels            []Label      `json:"labels"`
	Assignee          *string      `json:"assignee,omitempty"`
	DueDate           *time.Time   `json:"due_date,omitempty"`
	LatestQueueStatus *QueueStatus `json:"latest_queue_status"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Repo returns the linked repository name or "".
func (i *Issue) Repo() string {
	if i.RepoFullName == nil {
		return ""
	}
	return *i.RepoFullName
}

// Desc returns the description or "".
func (i *Issue) Desc() string {
	if i.Description == nil {
		return ""
	}
	return *i.Description
}

// HasLabel reports whether the issue carries the label with the given id.
func (i *Issue) HasLabel(id int64) bool {
	for _, l := range i.Labels {
		if l.ID == id {
			return true
		}
	}
	return false
}

// Status is the lane an issue lives in.
type Status string

// Issue status constants. These are the only lanes of the board.
const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Statuses lists the lanes in board order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// IsValid checks if the status value is one of the three lanes.
func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Title returns the column heading for the lane.
func (s Status) Title() string {
	switch s {
	case StatusTodo:
		return "To Do"
	case StatusInProgress:
		return "In Progress"
	case StatusDone:
		return "Done"
	}
	return string(s)
}

// ParseStatus accepts the wire value plus a few spellings people type on the CLI.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo", "to-do", "to_do":
		return StatusTodo, nil
	case "in_progress", "in-progress", "doing", "wip":
		return StatusInProgress, nil
	case "done", "closed":
		return StatusDone, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Priority ranks issues within a lane.
type Priority string

// Priority constants
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid checks if the priority value is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank orders priorities high to low (high = 0).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// ParsePriority parses a priority name.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

// PRState is the lifecycle state of a linked pull request.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
	PRStateMerged PRState = "merged"
)

// QueueStatus is the state of the most recent agent work request for an issue.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueInProgress QueueStatus = "in_progress"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// IsValid checks if the queue status value is valid
func (q QueueStatus) IsValid() bool {
	switch q {
	case QueuePending, QueueInProgress, QueueCompleted, QueueFailed:
		return true
	}
	return false
}

// Label is a colored tag attached to issues.
type Label struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// IssueList is the paged response of the issue listing endpoint.
type IssueList struct {
	Items []Issue `json:"items"`
	Total int     `json:"total"`
}

// LabelList is the response of the label listing endpoint.
type LabelList struct {
	Items []Label `json:"items"`
}

// User is the signed-in account as reported by the identity endpoint.
type User struct {
	ID        int64   `json:"id"`
	GitHubID  int64   `json:"github_id"`
	Login     string  `json:"github_login"`
	Name      *string `json:"github_name"`
	AvatarURL *string `json:"github_avatar_url"`
}

// Validation errors
var (
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidTitle    = errors.New("invalid title")
)

// MaxTitleLength mirrors the backend column size.
const MaxTitleLength = 255

func validateTitle(title string) error {
	t := strings.TrimSpace(title)
	if t == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTitle)
	}
	if n := len([]rune(title)); n > MaxTitleLength {
		return fmt.Errorf("%w: title must be %d characters or less (got %d)", ErrInvalidTitle, MaxTitleLength, n)
	}
	return nil
}

// IssueDraft is the payload for creating an issue. The server assigns the id.
type IssueDraft struct {
	Title           string     `json:"title"`
	Description     *string    `json:"description,omitempty"`
	Status          Status     `json:"status,omitempty"`
	Priority        Priority   `json:"priority,omitempty"`
	RepoFullName    *string    `json:"repo_full_name,omitempty"`
	BehaviorExample *string    `json:"behavior_example,omitempty"`
	LabelIDs        []int64    `json:"label_ids,omitempty"`
	Assignee        *string    `json:"assignee,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
}

// SetDefaults fills the fields the backend would default: status todo, priority medium.
func (d *IssueDraft) SetDefaults() {
	if d.Status == "" {
		d.Status = StatusTodo
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
}

// Validate checks the draft against the backend constraints.
func (d *IssueDraft) Validate() error {
	if err := validateTitle(d.Title); err != nil {
		return err
	}
	if d.Status != "" && !d.Status.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, d.Status)
	}
	if d.Priority != "" && !d.Priority.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidPriority, d.Priority)
	}
	return nil
}

// IssuePatch is a partial update. Nil fields are left unchanged.
type IssuePatch struct {
	Title           *string    `json:"title,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Status          *Status    `json:"status,omitempty"`
	Priority        *Priority  `json:"priority,omitempty"`
	RepoFullName    *string    `json:"repo_full_name,omitempty"`
	BehaviorExample *string    `json:"behavior_example,omitempty"`
	LabelIDs        []int64    `json:"label_ids,omitempty"`
	Assignee        *string    `json:"assignee,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
}

// Validate checks the fields that are set.
func (p *IssuePatch) Validate() error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Status != nil && !p.Status.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, *p.Status)
	}
	if p.Priority != nil && !p.Priority.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidPriority, *p.Priority)
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p *IssuePatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.RepoFullName == nil && p.BehaviorExample == nil && p.LabelIDs == nil &&
		p.Assignee == nil && p.DueDate == nil
}

// Apply returns a copy of issue with the patch applied. Labels are only
// touched when the patch carries label ids that resolve against known.
func (p *IssuePatch) Apply(issue Issue, known []Label) Issue {
	out := issue
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = p.Description
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.RepoFullName != nil {
		out.RepoFullName = p.RepoFullName
	}
	if p.BehaviorExample != nil {
		out.BehaviorExample = p.BehaviorExample
	}
	if p.Assignee != nil {
		out.Assignee = p.Assignee
	}
	if p.DueDate != nil {
		out.DueDate = p.DueDate
	}
	if p.LabelIDs != nil {
		byID := make(map[int64]Label, len(known))
		for _, l := range known {
			byID[l.ID] = l
		}
		labels := make([]Label, 0, len(p.LabelIDs))
		for _, id := range p.LabelIDs {
			if l, ok := byID[id]; ok {
				labels = append(labels, l)
			}
		}
		out.Labels = labels
	}
	return out
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
