// Package cache is a keyed, revalidating data cache shared by every view of
// the board. Subscribers of one key share a single entry, a single in-flight
// fetch and a single polling timer; local optimistic writes are visible to
// all of them immediately.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taskdeck/deck/internal/clock"
	"github.com/taskdeck/deck/internal/telemetry"
)

// Cache owns the entries. Create one per program (or per test) with New;
// there is no package-level instance.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextID  uint64

	group   singleflight.Group
	clk     clock.Clock
	logger  *slog.Logger
	metrics *telemetry.CacheMetrics

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock drives polling timers from clk.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) { c.clk = clk }
}

// WithLogger sets the logger for fetch tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics records fetch counts.
func WithMetrics(m *telemetry.CacheMetrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries: make(map[string]*entry),
		clk:     clock.Real,
		logger:  slog.New(slog.DiscardHandler),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// entry is the shared state of one key. All fields are guarded by Cache.mu.
type entry struct {
	key       string
	flightKey string

	value   any
	hasData bool
	err     error
	loading bool

	fetch    func(context.Context) (any, error)
	interval func(value any, hasData bool) time.Duration

	subs map[*subscriber]struct{}

	timer       clock.Timer
	curInterval time.Duration

	// mutSeq counts local writes. A fetch that started at an older mutSeq
	// must not overwrite the local value.
	mutSeq      uint64
	inflight    bool
	inflightSeq uint64
	rerun       bool

	dropped bool
}

// subscriber is the type-erased side of a Subscription.
type subscriber struct {
	changes   chan struct{}
	mu        sync.Mutex
	callbacks []func()
}

func (s *subscriber) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
	s.mu.Lock()
	cbs := append([]func(){}, s.callbacks...)
	s.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// attach registers sub on key, creating the entry if needed. It reports
// whether the entry was created.
func (c *Cache) attach(key string, sub *subscriber, fetch func(context.Context) (any, error), interval func(any, bool) time.Duration) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.subs[sub] = struct{}{}
		return e, false
	}
	c.nextID++
	e := &entry{
		key:       key,
		flightKey: fmt.Sprintf("%s#%d", key, c.nextID),
		fetch:     fetch,
		interval:  interval,
		subs:      map[*subscriber]struct{}{sub: {}},
		loading:   true,
		inflight:  true,
	}
	if c.closed {
		e.loading, e.inflight, e.dropped = false, false, true
		return e, false
	}
	c.entries[key] = e
	c.metrics.EntryAdded(c.ctx)
	return e, true
}

// detach removes sub; the last one out drops the entry and stops its timer.
func (c *Cache) detach(e *entry, sub *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := e.subs[sub]; !ok {
		return
	}
	delete(e.subs, sub)
	if len(e.subs) > 0 || e.dropped {
		return
	}
	c.dropLocked(e)
}

func (c *Cache) dropLocked(e *entry) {
	e.dropped = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if c.entries[e.key] == e {
		delete(c.entries, e.key)
	}
	c.metrics.EntryDropped(c.ctx)
	c.logger.Debug("cache entry dropped", "key", e.key)
}

// notify signals every subscriber of e. Must be called without c.mu held.
func (c *Cache) notify(e *entry) {
	c.mu.Lock()
	subs := make([]*subscriber, 0, len(e.subs))
	for s := range e.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		s.signal()
	}
}

// startFetch joins the in-flight fetch of e or starts a new one. When the
// in-flight fetch began before the latest local write, a fresh fetch is
// queued behind it so the caller observes post-write server state.
func (c *Cache) startFetch(e *entry) <-chan singleflight.Result {
	c.mu.Lock()
	if e.dropped {
		c.mu.Unlock()
		ch := make(chan singleflight.Result, 1)
		ch <- singleflight.Result{}
		return ch
	}
	if e.inflight && e.inflightSeq != e.mutSeq {
		e.rerun = true
	}
	c.mu.Unlock()

	return c.group.DoChan(e.flightKey, func() (interface{}, error) {
		return nil, c.fetchLoop(e)
	})
}

// fetchLoop runs as the single flight of e.
func (c *Cache) fetchLoop(e *entry) error {
	for {
		c.mu.Lock()
		if e.dropped {
			c.mu.Unlock()
			return nil
		}
		seq := e.mutSeq
		e.inflight = true
		e.inflightSeq = seq
		e.rerun = false
		wasLoading := e.loading
		e.loading = true
		c.mu.Unlock()
		if !wasLoading {
			c.notify(e)
		}

		v, err := e.fetch(c.ctx)
		c.metrics.Fetch(c.ctx, e.key, err != nil)

		c.mu.Lock()
		if e.dropped {
			c.group.Forget(e.flightKey)
			c.mu.Unlock()
			c.logger.Debug("discarding fetch for dropped entry", "key", e.key)
			return nil
		}
		if e.mutSeq != seq {
			if e.rerun {
				c.mu.Unlock()
				continue
			}
			// A local write landed mid-flight: keep it, drop this result.
			c.logger.Debug("discarding stale fetch", "key", e.key)
			err = nil
		} else if err != nil {
			e.err = err
			c.logger.Debug("fetch failed", "key", e.key, "error", err)
		} else {
			e.value = v
			e.hasData = true
			e.err = nil
		}
		e.loading = false
		e.inflight = false
		c.group.Forget(e.flightKey)
		c.scheduleLocked(e, true)
		c.mu.Unlock()

		c.notify(e)
		return err
	}
}

// scheduleLocked (re)arms the polling timer from the interval of the last
// good value. When force is false the timer is only rearmed if the interval
// changed. Callers hold c.mu.
func (c *Cache) scheduleLocked(e *entry, force bool) {
	d := e.interval(e.value, e.hasData)
	if !force && d == e.curInterval && (e.timer != nil || d <= 0) {
		return
	}
	e.curInterval = d
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if d <= 0 || e.dropped {
		return
	}
	var t clock.Timer
	t = c.clk.AfterFunc(d, func() {
		c.mu.Lock()
		current := e.timer == t && !e.dropped
		if current {
			e.timer = nil
		}
		c.mu.Unlock()
		if !current {
			return
		}
		<-c.startFetch(e)
	})
	e.timer = t
}

// setLocal replaces the value of e. mutate, when set, derives the new value
// from the current one under the lock.
func (c *Cache) setLocal(e *entry, mutate func(cur any, has bool) any, revalidate bool) {
	c.mu.Lock()
	if e.dropped {
		c.mu.Unlock()
		return
	}
	e.value = mutate(e.value, e.hasData)
	e.hasData = true
	e.mutSeq++
	if !e.inflight {
		c.scheduleLocked(e, false)
	}
	c.mu.Unlock()

	c.notify(e)
	if revalidate {
		c.startFetch(e)
	}
}

// Invalidate revalidates, in the background, every live entry whose key
// starts with prefix. It returns how many entries were affected.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	var hit []*entry
	for k, e := range c.entries {
		if strings.HasPrefix(k, prefix) {
			hit = append(hit, e)
		}
	}
	c.mu.Unlock()
	for _, e := range hit {
		c.startFetch(e)
	}
	return len(hit)
}

// Keys returns the keys of the live entries.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Close stops every timer and drops every entry. Fetches still running
// complete but their results are discarded.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, e := range c.entries {
		c.dropLocked(e)
	}
	c.cancel()
}
