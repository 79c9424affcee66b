package cache

import (
	"context"
	"sync"
	"time"
)

// Options configure a subscription. Only the first subscriber of a key
// decides the fetch function and options of the shared entry.
type Options[T any] struct {
	// Interval returns the polling period given the last good value (the
	// zero T before any data arrived). Zero or negative disables polling.
	// Nil means no polling.
	Interval func(T) time.Duration
}

// Every returns a constant interval.
func Every[T any](d time.Duration) func(T) time.Duration {
	return func(T) time.Duration { return d }
}

// Snapshot is what a subscriber renders.
type Snapshot[T any] struct {
	Data    T
	HasData bool
	Loading bool
	// Err is the error of the most recent fetch; Data still holds the last
	// good value.
	Err error
}

// Subscription is one consumer's handle on a key. All subscribers of one
// key must use the same T.
type Subscription[T any] struct {
	c     *Cache
	e     *entry
	sub   *subscriber
	key   string
	once  sync.Once
	inert bool
}

// Subscribe attaches to key. The first subscriber of a key starts the
// initial fetch and the polling timer; later ones share them. An empty key
// yields an inert subscription that never fetches.
func Subscribe[T any](c *Cache, key string, fetch func(context.Context) (T, error), opts Options[T]) *Subscription[T] {
	sub := &subscriber{changes: make(chan struct{}, 1)}
	s := &Subscription[T]{c: c, sub: sub, key: key}
	if key == "" {
		s.inert = true
		return s
	}

	erased := func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
	interval := func(v any, has bool) time.Duration {
		if opts.Interval == nil {
			return 0
		}
		var t T
		if has {
			t, _ = v.(T)
		}
		return opts.Interval(t)
	}

	e, created := c.attach(key, sub, erased, interval)
	s.e = e
	if created {
		c.logger.Debug("cache entry created", "key", key)
		c.startFetch(e)
	}
	return s
}

// Key returns the subscribed key.
func (s *Subscription[T]) Key() string { return s.key }

// Snapshot returns the current state of the entry.
func (s *Subscription[T]) Snapshot() Snapshot[T] {
	if s.inert {
		return Snapshot[T]{}
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	var snap Snapshot[T]
	if s.e.hasData {
		snap.Data, _ = s.e.value.(T)
		snap.HasData = true
	}
	snap.Loading = s.e.loading
	snap.Err = s.e.err
	return snap
}

// Revalidate fetches now (joining an in-flight fetch) and waits for the
// result or ctx.
func (s *Subscription[T]) Revalidate(ctx context.Context) error {
	if s.inert {
		return nil
	}
	select {
	case r := <-s.c.startFetch(s.e):
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh starts a revalidation without waiting for it.
func (s *Subscription[T]) Refresh() {
	if !s.inert {
		s.c.startFetch(s.e)
	}
}

// SetLocal replaces the shared value synchronously and notifies every
// subscriber. With revalidate the server copy is fetched afterwards.
func (s *Subscription[T]) SetLocal(data T, revalidate bool) {
	if s.inert {
		return
	}
	s.c.setLocal(s.e, func(any, bool) any { return data }, revalidate)
}

// Mutate derives the new value from the current one (the zero T when there
// is none yet). fn runs under the cache lock and must not call back into it.
func (s *Subscription[T]) Mutate(fn func(T) T, revalidate bool) {
	if s.inert {
		return
	}
	s.c.setLocal(s.e, func(cur any, has bool) any {
		var t T
		if has {
			t, _ = cur.(T)
		}
		return fn(t)
	}, revalidate)
}

// Changes delivers a signal after every state change. Signals coalesce.
func (s *Subscription[T]) Changes() <-chan struct{} {
	return s.sub.changes
}

// OnChange registers fn to run after every state change, on the goroutine
// that caused it.
func (s *Subscription[T]) OnChange(fn func()) {
	s.sub.mu.Lock()
	s.sub.callbacks = append(s.sub.callbacks, fn)
	s.sub.mu.Unlock()
}

// Close detaches the subscription. The last subscriber of a key drops the
// entry and its timer. Safe to call more than once.
func (s *Subscription[T]) Close() {
	if s.inert {
		return
	}
	s.once.Do(func() {
		s.c.detach(s.e, s.sub)
	})
}
