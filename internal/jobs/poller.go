// Package jobs observes the asynchronous analysis jobs of connected
// repositories. Polling is adaptive: every few seconds while any job is
// pending or analyzing, not at all once every job is terminal. Triggers and
// retries never set a status locally; they force one revalidation and the
// server's answer is shown.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskdeck/deck/internal/cache"
	"github.com/taskdeck/deck/internal/debug"
	"github.com/taskdeck/deck/internal/gateway"
	"github.com/taskdeck/deck/internal/types"
)

// DefaultActiveInterval is the polling period while a job is running.
const DefaultActiveInterval = 3 * time.Second

// ErrNotRetryable is returned by Retry for a job that has not failed.
var ErrNotRetryable = errors.New("job is not in failed state")

// ErrUnknownRepo is returned for a repository id the poller has not seen.
var ErrUnknownRepo = errors.New("unknown repository")

// Gateway is the part of the backend API the poller uses.
type Gateway interface {
	ListConnectedRepos(ctx context.Context) ([]types.ConnectedRepo, error)
	GetJob(ctx context.Context, repoID int64, kind types.JobKind) (types.JobRecord, error)
	TriggerJob(ctx context.Context, repoID int64, kind types.JobKind) error
	RetryJob(ctx context.Context, repoID int64, kind types.JobKind) error
}

type jobKey struct {
	repo int64
	kind types.JobKind
}

// Poller is the Job Status Poller.
type Poller struct {
	gw       Gateway
	cache    *cache.Cache
	logger   *slog.Logger
	interval time.Duration

	sub *cache.Subscription[[]types.ConnectedRepo]

	mu        sync.Mutex
	seen      map[jobKey]types.JobStatus
	resetting map[jobKey]bool
	listeners map[int]func()
	nextID    int
}

// Option configures a Poller.
type Option func(*Poller)

// WithActiveInterval overrides the polling period used while a job runs.
func WithActiveInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// ActiveInterval returns interval when any job of repos is running and zero
// otherwise.
func ActiveInterval(interval time.Duration) func([]types.ConnectedRepo) time.Duration {
	return func(repos []types.ConnectedRepo) time.Duration {
		for i := range repos {
			if repos[i].AnyActive() {
				return interval
			}
		}
		return 0
	}
}

// NewPoller subscribes to the connected repository listing.
func NewPoller(gw Gateway, c *cache.Cache, opts ...Option) *Poller {
	p := &Poller{
		gw:        gw,
		cache:     c,
		logger:    debug.Discard(),
		interval:  DefaultActiveInterval,
		seen:      make(map[jobKey]types.JobStatus),
		resetting: make(map[jobKey]bool),
		listeners: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sub = cache.Subscribe(c, gateway.ConnectedReposPath, gw.ListConnectedRepos,
		cache.Options[[]types.ConnectedRepo]{Interval: ActiveInterval(p.interval)})
	p.sub.OnChange(p.changed)
	return p
}

func (p *Poller) changed() {
	p.observe(p.sub.Snapshot().Data)
	p.mu.Lock()
	fns := make([]func(), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// observe checks every job against the last status seen. The server is the
// authority: a regression is logged, then accepted.
func (p *Poller) observe(repos []types.ConnectedRepo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range repos {
		for _, kind := range types.JobKinds {
			k := jobKey{repos[i].ID, kind}
			next := repos[i].Job(kind).Status
			prev, known := p.seen[k]
			p.seen[k] = next
			if !known || prev == next {
				continue
			}
			switch {
			case p.resetting[k]:
				// First change after a trigger or retry.
				delete(p.resetting, k)
			case !prev.CanAdvanceTo(next):
				p.logger.Warn("unexpected job transition",
					"repo", repos[i].FullName, "job", kind, "from", prev, "to", next)
			}
			p.logger.Debug("job transition", "repo", repos[i].FullName, "job", kind, "from", prev, "to", next)
			if next.Terminal() {
				debug.LogEvent("job_"+next.String(), repos[i].ID, fmt.Sprintf("%s %s", repos[i].FullName, kind))
			}
		}
	}
}

// OnChange registers fn to run after every change of the listing.
func (p *Poller) OnChange(fn func()) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Repos returns the connected repositories.
func (p *Poller) Repos() []types.ConnectedRepo {
	return p.sub.Snapshot().Data
}

// Repo looks up one repository.
func (p *Poller) Repo(id int64) (types.ConnectedRepo, bool) {
	for _, r := range p.Repos() {
		if r.ID == id {
			return r, true
		}
	}
	return types.ConnectedRepo{}, false
}

// RepoByName looks up a repository by its owner/name.
func (p *Poller) RepoByName(fullName string) (types.ConnectedRepo, bool) {
	for _, r := range p.Repos() {
		if r.FullName == fullName {
			return r, true
		}
	}
	return types.ConnectedRepo{}, false
}

// Status returns the status of one job; JobNone for unknown repositories.
func (p *Poller) Status(repoID int64, kind types.JobKind) types.JobStatus {
	r, ok := p.Repo(repoID)
	if !ok {
		return types.JobNone
	}
	return r.Job(kind).Status
}

// Badges returns the badges of one repository.
func (p *Poller) Badges(repoID int64) []Badge {
	r, ok := p.Repo(repoID)
	if !ok {
		return nil
	}
	return Badges(r)
}

// Active reports whether any job is pending or analyzing, which is exactly
// when the poller refreshes on its own.
func (p *Poller) Active() bool {
	return ActiveInterval(p.interval)(p.Repos()) > 0
}

// Loading reports whether a fetch is running.
func (p *Poller) Loading() bool { return p.sub.Snapshot().Loading }

// HasData reports whether the listing has arrived.
func (p *Poller) HasData() bool { return p.sub.Snapshot().HasData }

// Err is the error of the last fetch.
func (p *Poller) Err() error { return p.sub.Snapshot().Err }

// Refresh refetches the listing and waits for it.
func (p *Poller) Refresh(ctx context.Context) error {
	return p.sub.Revalidate(ctx)
}

// Trigger asks the server to (re)run a job, then revalidates once. The
// resulting pending status comes from the server.
func (p *Poller) Trigger(ctx context.Context, repoID int64, kind types.JobKind) error {
	return p.request(ctx, repoID, kind, "trigger", p.gw.TriggerJob)
}

// Retry re-runs a failed job. It is refused locally unless the job failed.
func (p *Poller) Retry(ctx context.Context, repoID int64, kind types.JobKind) error {
	if _, ok := p.Repo(repoID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRepo, repoID)
	}
	if st := p.Status(repoID, kind); st != types.JobFailed {
		return fmt.Errorf("%w: %s is %s", ErrNotRetryable, kind, statusName(st))
	}
	return p.request(ctx, repoID, kind, "retry", p.gw.RetryJob)
}

func statusName(s types.JobStatus) string {
	if s == types.JobNone {
		return "not analyzed"
	}
	return s.String()
}

func (p *Poller) request(ctx context.Context, repoID int64, kind types.JobKind, verb string,
	call func(context.Context, int64, types.JobKind) error) error {
	if err := call(ctx, repoID, kind); err != nil {
		return fmt.Errorf("failed to %s %s analysis: %w", verb, kind, err)
	}
	k := jobKey{repoID, kind}
	p.mu.Lock()
	p.resetting[k] = true
	p.mu.Unlock()
	debug.LogEvent("job_"+verb, repoID, kind.String())

	p.cache.Invalidate(gateway.JobPath(repoID, kind))
	if err := p.sub.Revalidate(ctx); err != nil {
		p.logger.Warn("revalidation after job request failed", "error", err)
	}
	return nil
}

// Close releases the listing.
func (p *Poller) Close() {
	p.sub.Close()
}
