// Package board reconciles the locally rendered Kanban board with the
// backend. It partitions the cached issue listing into lanes, applies
// drag-driven status changes optimistically and converges on server truth by
// revalidating after every mutation, successful or not.
package board

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/taskdeck/deck/internal/cache"
	"github.com/taskdeck/deck/internal/debug"
	"github.com/taskdeck/deck/internal/drag"
	"github.com/taskdeck/deck/internal/filter"
	"github.com/taskdeck/deck/internal/gateway"
	"github.com/taskdeck/deck/internal/query"
	"github.com/taskdeck/deck/internal/types"
)

// Gateway is the part of the backend API the board uses.
type Gateway interface {
	ListIssues(ctx context.Context, q url.Values) (*types.IssueList, error)
	CreateIssue(ctx context.Context, draft types.IssueDraft) (*types.Issue, error)
	UpdateIssue(ctx context.Context, id int64, patch types.IssuePatch) (*types.Issue, error)
	DeleteIssue(ctx context.Context, id int64) error
	CreateWorkRequest(ctx context.Context, id int64) error
	ListQueueItems(ctx context.Context, id int64) ([]types.QueueItem, error)
	ListComments(ctx context.Context, id int64) ([]types.Comment, error)
	AddComment(ctx context.Context, id int64, draft types.CommentDraft) (*types.Comment, error)
	DeleteComment(ctx context.Context, id, commentID int64) error
}

// Filters supplies the current filter selection. *filter.Store implements it.
type Filters interface {
	State() filter.State
	OnChange(fn func(filter.State)) (cancel func())
}

// Reconciler is the board's state machine.
type Reconciler struct {
	gw       Gateway
	cache    *cache.Cache
	filters  Filters
	notifier Notifier
	logger   *slog.Logger
	pageSize int
	interval time.Duration

	mu           sync.Mutex
	sub          *cache.Subscription[types.IssueList]
	state        filter.State
	listeners    map[int]func()
	nextID       int
	openCreate   func()
	cancelFilter func()
	closed       bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNotifier routes notices to n.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithPageSize sets the listing page size. Zero requests everything.
func WithPageSize(n int) Option {
	return func(r *Reconciler) { r.pageSize = n }
}

// WithPollInterval refreshes the listing periodically. By default the board
// only refreshes after mutations and on request.
func WithPollInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.interval = d }
}

// New subscribes to the listing selected by filters and follows filter
// changes until Close.
func New(gw Gateway, c *cache.Cache, filters Filters, opts ...Option) *Reconciler {
	r := &Reconciler{
		gw:        gw,
		cache:     c,
		filters:   filters,
		notifier:  discardNotifier{},
		logger:    debug.Discard(),
		pageSize:  query.DefaultLimit,
		listeners: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.state = filters.State()
	r.sub = r.subscribe(r.state)
	r.cancelFilter = filters.OnChange(r.onFilter)
	return r
}

func (r *Reconciler) subscribe(st filter.State) *cache.Subscription[types.IssueList] {
	params := query.Params(st, r.pageSize)
	key := query.IssuesKey(st, r.pageSize)
	fetch := func(ctx context.Context) (types.IssueList, error) {
		list, err := r.gw.ListIssues(ctx, params)
		if err != nil {
			return types.IssueList{}, err
		}
		if list == nil {
			return types.IssueList{}, nil
		}
		return *list, nil
	}
	var opts cache.Options[types.IssueList]
	if r.interval > 0 {
		opts.Interval = cache.Every[types.IssueList](r.interval)
	}
	sub := cache.Subscribe(r.cache, key, fetch, opts)
	sub.OnChange(r.emit)
	r.logger.Debug("board subscribed", "key", key)
	return sub
}

// onFilter moves the board to the listing of the new selection.
func (r *Reconciler) onFilter(st filter.State) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.state = st
	if query.IssuesKey(st, r.pageSize) == r.sub.Key() {
		r.mu.Unlock()
		return
	}
	old := r.sub
	r.sub = r.subscribe(st)
	r.mu.Unlock()

	old.Close()
	r.emit()
}

func (r *Reconciler) current() *cache.Subscription[types.IssueList] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub
}

func (r *Reconciler) snapshot() cache.Snapshot[types.IssueList] {
	return r.current().Snapshot()
}

// Key is the cache key of the listing on screen.
func (r *Reconciler) Key() string {
	return r.current().Key()
}

// Filter returns the selection the board shows.
func (r *Reconciler) Filter() filter.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Items returns the current, possibly optimistic, collection.
func (r *Reconciler) Items() []types.Issue {
	return r.snapshot().Data.Items
}

// Lanes partitions the current collection.
func (r *Reconciler) Lanes() Lanes {
	return Partition(r.Items())
}

// Stats counts the current collection.
func (r *Reconciler) Stats() Stats {
	return ComputeStats(r.Items())
}

// Total is the server-side match count across all pages.
func (r *Reconciler) Total() int {
	return r.snapshot().Data.Total
}

// Loading reports whether a fetch of the listing is running.
func (r *Reconciler) Loading() bool {
	return r.snapshot().Loading
}

// HasData reports whether any listing has arrived.
func (r *Reconciler) HasData() bool {
	return r.snapshot().HasData
}

// Err is the error of the last fetch. The collection keeps the last good
// data.
func (r *Reconciler) Err() error {
	return r.snapshot().Err
}

// Issue looks up an issue of the current collection.
func (r *Reconciler) Issue(id int64) (types.Issue, bool) {
	items := r.Items()
	if i := indexOf(items, id); i >= 0 {
		return items[i], true
	}
	return types.Issue{}, false
}

func indexOf(items []types.Issue, id int64) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// OnChange registers fn to run after every change of the board state.
func (r *Reconciler) OnChange(fn func()) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Reconciler) emit() {
	r.mu.Lock()
	fns := make([]func(), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (r *Reconciler) notify(level Level, format string, args ...interface{}) {
	r.notifier.Notify(Notice{Level: level, Message: fmt.Sprintf(format, args...)})
}

// revalidate refetches every issue listing and waits for the one on
// screen.
func (r *Reconciler) revalidate(ctx context.Context) error {
	sub := r.current()
	r.cache.Invalidate(gateway.IssuesPath)
	if err := sub.Revalidate(ctx); err != nil {
		r.logger.Warn("board revalidation failed", "key", sub.Key(), "error", err)
		return err
	}
	return nil
}

// Refresh refetches the listing.
func (r *Reconciler) Refresh(ctx context.Context) error {
	return r.revalidate(ctx)
}

// SetCreateOpener registers the UI hook OpenCreateModal invokes.
func (r *Reconciler) SetCreateOpener(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openCreate = fn
}

// OpenCreateModal asks the surrounding UI to show the create form. It
// reports false when no UI registered an opener.
func (r *Reconciler) OpenCreateModal() bool {
	r.mu.Lock()
	fn := r.openCreate
	r.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Create posts a draft. On success the canonical record is appended to the
// listing on screen and the listing is revalidated; on failure nothing
// changes locally.
func (r *Reconciler) Create(ctx context.Context, draft types.IssueDraft) (*types.Issue, error) {
	draft.SetDefaults()
	if err := draft.Validate(); err != nil {
		r.notify(Error, "Failed to create issue: %v", err)
		return nil, err
	}
	issue, err := r.gw.CreateIssue(ctx, draft)
	if err != nil {
		r.notify(Error, "Failed to create issue: %s", describe(err))
		return nil, err
	}
	if issue == nil {
		// No record in the response; the revalidation brings it in.
		_ = r.revalidate(ctx)
		r.notify(Success, "Issue created")
		return nil, nil
	}

	created := *issue
	r.current().Mutate(func(l types.IssueList) types.IssueList {
		if indexOf(l.Items, created.ID) >= 0 {
			return l
		}
		items := make([]types.Issue, 0, len(l.Items)+1)
		items = append(items, l.Items...)
		items = append(items, created)
		return types.IssueList{Items: items, Total: l.Total + 1}
	}, false)
	debug.LogEvent("created", created.ID, created.Title)
	r.notify(Success, "Created #%d %s", created.ID, created.Title)
	_ = r.revalidate(ctx)
	return issue, nil
}

// Update posts a patch and revalidates on success. Field edits are not
// optimistic.
func (r *Reconciler) Update(ctx context.Context, id int64, patch types.IssuePatch) (*types.Issue, error) {
	if patch.IsEmpty() {
		return nil, nil
	}
	if err := patch.Validate(); err != nil {
		r.notify(Error, "Failed to update #%d: %v", id, err)
		return nil, err
	}
	issue, err := r.gw.UpdateIssue(ctx, id, patch)
	if err != nil {
		r.notify(Error, "Failed to update #%d: %s", id, describe(err))
		return nil, err
	}
	debug.LogEvent("updated", id, "")
	r.notify(Success, "Updated #%d", id)
	_ = r.revalidate(ctx)
	return issue, nil
}

// Delete removes an issue and revalidates on success.
func (r *Reconciler) Delete(ctx context.Context, id int64) error {
	if err := r.gw.DeleteIssue(ctx, id); err != nil {
		r.notify(Error, "Failed to delete #%d: %s", id, describe(err))
		return err
	}
	debug.LogEvent("deleted", id, "")
	r.notify(Success, "Deleted #%d", id)
	_ = r.revalidate(ctx)
	return nil
}

// TriggerWorkRequest queues an agent task for the issue. The derived queue
// status shows up with the revalidation.
func (r *Reconciler) TriggerWorkRequest(ctx context.Context, id int64) error {
	if err := r.gw.CreateWorkRequest(ctx, id); err != nil {
		r.notify(Error, "Failed to queue work for #%d: %s", id, describe(err))
		return err
	}
	debug.LogEvent("work_requested", id, "")
	r.notify(Success, "Work request queued for #%d", id)
	_ = r.revalidate(ctx)
	return nil
}

// Move applies a status change to the listing synchronously and returns the
// step that persists it. It is a no-op (ok false, nothing written, nothing
// sent) when the issue is not on the board, the lane is invalid or it is
// the issue's current lane.
//
// The persist step always ends in a revalidation: on success it picks up
// server-side effects, on failure it replaces the optimistic guess with the
// server's record.
func (r *Reconciler) Move(id int64, lane types.Status) (persist func(context.Context) error, ok bool) {
	if !lane.IsValid() {
		return nil, false
	}
	sub := r.current()
	cur, found := r.Issue(id)
	if !found || cur.Status == lane {
		return nil, false
	}
	from := cur.Status

	sub.Mutate(func(l types.IssueList) types.IssueList {
		i := indexOf(l.Items, id)
		if i < 0 {
			return l
		}
		items := append([]types.Issue(nil), l.Items...)
		items[i].Status = lane
		return types.IssueList{Items: items, Total: l.Total}
	}, false)
	r.logger.Debug("optimistic move", "issue", id, "from", from, "to", lane)

	return func(ctx context.Context) error {
		status := lane
		_, err := r.gw.UpdateIssue(ctx, id, types.IssuePatch{Status: &status})
		if err != nil {
			debug.LogEvent("status_rejected", id, fmt.Sprintf("%s -> %s: %v", from, lane, err))
			r.notify(Error, "Failed to move #%d to %s: %s", id, lane.Title(), describe(err))
		} else {
			debug.LogEvent("status_changed", id, fmt.Sprintf("%s -> %s", from, lane))
		}
		_ = r.revalidate(ctx)
		return err
	}, true
}

// ChangeStatus is Move followed by its persist step.
func (r *Reconciler) ChangeStatus(ctx context.Context, id int64, lane types.Status) error {
	persist, ok := r.Move(id, lane)
	if !ok {
		return nil
	}
	return persist(ctx)
}

// Drop applies a drag release. Releases without a target or onto the
// origin lane are no-ops.
func (r *Reconciler) Drop(res drag.DropResult) (persist func(context.Context) error, ok bool) {
	if !res.Changes() {
		return nil, false
	}
	return r.Move(res.ItemID, res.To)
}

// Close stops following the filters and releases the listing.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sub := r.sub
	r.mu.Unlock()

	r.cancelFilter()
	sub.Close()
}
