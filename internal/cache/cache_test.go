package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/deck/internal/clock"
)

// server is a controllable fetch source.
type server struct {
	mu    sync.Mutex
	value []string
	err   error
	calls atomic.Int32
	// gate, when set, blocks the next fetch until closed.
	gate chan struct{}
}

func (s *server) set(v []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.err = v, err
}

func (s *server) block() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

func (s *server) fetch(ctx context.Context) ([]string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	gate := s.gate
	s.gate = nil
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.value...), s.err
}

func waitData[T any](t *testing.T, sub *Subscription[T]) Snapshot[T] {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := sub.Snapshot()
		return !snap.Loading && (snap.HasData || snap.Err != nil)
	}, 2*time.Second, time.Millisecond)
	return sub.Snapshot()
}

func TestSubscribersShareOneFetch(t *testing.T) {
	srv := &server{}
	srv.set([]string{"a"}, nil)
	gate := srv.block()

	c := New(WithClock(clock.NewFake(time.Unix(0, 0))))
	defer c.Close()

	s1 := Subscribe(c, "/issues", srv.fetch, Options[[]string]{})
	s2 := Subscribe(c, "/issues", srv.fetch, Options[[]string]{})
	assert.True(t, s1.Snapshot().Loading)
	close(gate)

	snap1 := waitData(t, s1)
	snap2 := waitData(t, s2)
	assert.Equal(t, []string{"a"}, snap1.Data)
	assert.Equal(t, []string{"a"}, snap2.Data)
	assert.EqualValues(t, 1, srv.calls.Load())
}

func TestRevalidateJoinsInFlightFetch(t *testing.T) {
	srv := &server{}
	srv.set([]string{"a"}, nil)
	c := New(WithClock(clock.NewFake(time.Unix(0, 0))))
	defer c.Close()

	sub := Subscribe(c, "k", srv.fetch, Options[[]string]{})
	waitData(t, sub)

	gate := srv.block()
	srv.set([]string{"b"}, nil)

	var wg sync.WaitGroup
	sub.Refresh()
	require.Eventually(t, func() bool { return srv.calls.Load() == 2 }, time.Second, time.Millisecond)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sub.Revalidate(context.Background()))
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.EqualValues(t, 2, srv.calls.Load(), "concurrent revalidations share one fetch")
	assert.Equal(t, []string{"b"}, sub.Snapshot().Data)
}

func TestSetLocalIsSynchronousAndNotifies(t *testing.T) {
	srv := &server{}
	srv.set([]string{"server"}, nil)
	c := New(WithClock(clock.NewFake(time.Unix(0, 0))))
	defer c.Close()

	s1 := Subscribe(c, "k", srv.fetch, Options[[]string]{})
	s2 := Subscribe(c, "k", srv.fetch, Options[[]string]{})
	waitData(t, s1)

	var notified atomic.Int32
	s2.OnChange(func() { notified.Add(1) })

	s1.SetLocal([]string{"local"}, false)
	assert.Equal(t, []string{"local"}, s1.Snapshot().Data)
	assert.Equal(t, []string{"local"}, s2.Snapshot().Data)
	assert.EqualValues(t, 1, notified.Load())
	select {
	case <-s2.Changes():
	default:
		t.Error("expected a signal on Changes()")
	}
	assert.EqualValues(t, 1, srv.calls.Load(), "no revalidation requested")
}

func TestMutate(t *testing.T) {
	srv := &server{}
	srv.set([]string{"a"}, nil)
	c := New(WithClock(clock.NewFake(time.Unix(0, 0))))
	defer c.Close()

	sub := Subscribe(c, "k", srv.fetch, Options[[]string]{})
	waitData(t, sub)
	sub.Mutate(func(cur []string) []string { return append(cur, "b") }, false)
	assert.Equal(t, []string{"a", "b"}, sub.Snapshot().Data)
}

func TestErrorKeepsLastGoodData(t *testing.T) {
	srv := &server{}
	srv.set([]string{"good"}, nil)
	clk := clock.NewFake(time.Unix(0, 0))
	c := New(WithClock(clk))
	defer c.Close()

	sub := Subscribe(c, "k", srv.fetch, Options[[]string]{Interval: Every[[]string](time.Second)})
	waitData(t, sub)

	boom := errors.New("boom")
	srv.set(nil, boom)
	err := sub.Revalidate(context.Background())
	require.ErrorIs(t, err, boom)

	snap := sub.Snapshot()
	assert.Equal(t, []string{"good"}, snap.Data)
	assert.True(t, snap.HasData)
	assert.ErrorIs(t, snap.Err, boom)

	// The timer keeps its normal cadence: one fetch per period, no retry burst.
	before := srv.calls.Load()
	clk.Advance(time.Second)
	assert.Equal(t, before+1, srv.calls.Load())

	srv.set([]string{"back"}, nil)
	clk.Advance(time.Second)
	snap = sub.Snapshot()
	assert.Equal(t, []string{"back"}, snap.Data)
	assert.NoError(t, snap.Err)
}

func TestNoIntervalNoPolling(t *testing.T) {
	srv := &server{}
	srv.set([]string{"a"}, nil)
	clk := clock.NewFake(time.Unix(0, 0))
	c := New(WithClock(clk))
	defer c.Close()

	sub := Subscribe(c, "k", srv.fetch, Options[[]string]{})
	waitData(t, sub)
	clk.Advance(time.Hour)
	assert.EqualValues(t, 1, srv.calls.Load())
	assert.Equal(t, 0, clk.Pending())
}

func TestAdaptiveInterval(t *testing.T) {
	srv := &server{}
	srv.set([]string{"pending"}, nil)
	clk := clock.NewFake(time.Unix(0, 0))
	c := New(WithClock(clk))
	defer c.Close()

	active := func(v []string) time.Duration {
		if len(v) > 0 && v[0] != "done" {
			return 3 * time.Second
		}
		return 0
	}
	sub := Subscribe(c, "jobs", srv.fetch, Options[[]string]{Interval: active})
	waitData(t, sub)
	require.Equal(t, 1, clk.Pending(), "active data arms the timer")

	clk.Advance(3 * time.Second)
	assert.EqualValues(t, 2, srv.calls.Load())

	srv.set([]string{"done"}, nil)
	clk.Advance(3 * time.Second)
	assert.EqualValues(t, 3, srv.calls.Load())
	assert.Equal(t, 0, clk.Pending(), "terminal data stops polling")

	clk.Advance(time.Minute)
	assert.EqualValues(t, 3, srv.calls.Load())
}

func TestStaleFetchDoesNotOverwriteLocalWrite(t *testing.T) {
	srv := &server{}
	srv.set([]string{"v1"}, nil)
	c := New(WithClock(clock.NewFake(time.Unix(0, 0))))
	defer c.Close()

	sub := Subscribe(c, "k", srv.fetch, Options[[]string]{})
	waitData(t, sub)

	gate := srv.block()
	sub.Refresh()
	require.Eventually(t, func() bool { return srv.calls.Load() == 2 }, time.Second, time.Millisecond)

	sub.SetLocal([]string{"local"}, false)
	close(gate)

	require.Eventually(t, func() bool { return !sub.Snapshot().Loading }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"local"}, sub.Snapshot().Data)
}

func TestRevalidateAfterLocalWriteRefetches(t *testing.T) {
	srv := &server{}
	srv.set([]string{"v1"}, nil)
	c := New(WithClock(clock.NewFake(time.Unix(0, 0))))
	defer c.Close()

	sub := Subscribe(c, "k", srv.fetch, Options[[]string]{})
	waitData(t, sub)

	gate := srv.block()
	sub.Refresh()
	require.Eventually(t, func() bool { return srv.calls.Load() == 2 }, time.Second, time.Millisecond)

	sub.SetLocal([]string{"local"}, true)
	srv.set([]string{"v2"}, nil)
	close(gate)

	require.NoError(t, sub.Revalidate(context.Background()))
	assert.Equal(t, []string{"v2"}, sub.Snapshot().Data)
	assert.GreaterOrEqual(t, srv.calls.Load(), int32(3))
}

func TestLastCloseDropsEntry(t *testing.T) {
	srv := &server{}
	srv.set([]string{"a"}, nil)
	clk := clock.NewFake(time.Unix(0, 0))
	c := New(WithClock(clk))
	defer c.Close()

	opts := Options[[]string]{Interval: Every[[]string](time.Second)}
	s1 := Subscribe(c, "k", srv.fetch, opts)
	s2 := Subscribe(c, "k", srv.fetch, opts)
	waitData(t, s1)

	s1.Close()
	assert.Equal(t, []string{"k"}, c.Keys())
	assert.Equal(t, 1, clk.Pending())

	s2.Close()
	s2.Close()
	assert.Empty(t, c.Keys())
	assert.Equal(t, 0, clk.Pending(), "last subscriber stops the timer")

	calls := srv.calls.Load()
	clk.Advance(10 * time.Second)
	assert.Equal(t, calls, srv.calls.Load())
}

func TestFetchAfterDropIsDiscarded(t *testing.T) {
	srv := &server{}
	srv.set([]string{"late"}, nil)
	gate := srv.block()
	c := New(WithClock(clock.NewFake(time.Unix(0, 0))))
	defer c.Close()

	s1 := Subscribe(c, "k", srv.fetch, Options[[]string]{})
	s1.Close()
	close(gate)

	srv.set([]string{"fresh"}, nil)
	s2 := Subscribe(c, "k", srv.fetch, Options[[]string]{})
	snap := waitData(t, s2)
	assert.Equal(t, []string{"fresh"}, snap.Data)
}

func TestEmptyKeyIsInert(t *testing.T) {
	srv := &server{}
	c := New()
	defer c.Close()

	sub := Subscribe(c, "", srv.fetch, Options[[]string]{})
	sub.SetLocal([]string{"x"}, true)
	require.NoError(t, sub.Revalidate(context.Background()))
	assert.False(t, sub.Snapshot().HasData)
	assert.EqualValues(t, 0, srv.calls.Load())
	assert.Empty(t, c.Keys())
	sub.Close()
}

func TestInvalidatePrefix(t *testing.T) {
	a, b, other := &server{}, &server{}, &server{}
	c := New(WithClock(clock.NewFake(time.Unix(0, 0))))
	defer c.Close()

	sa := Subscribe(c, "/issues?page=1", a.fetch, Options[[]string]{})
	sb := Subscribe(c, "/issues?page=2", b.fetch, Options[[]string]{})
	so := Subscribe(c, "/labels", other.fetch, Options[[]string]{})
	waitData(t, sa)
	waitData(t, sb)
	waitData(t, so)

	assert.Equal(t, 2, c.Invalidate("/issues"))
	require.Eventually(t, func() bool {
		return a.calls.Load() == 2 && b.calls.Load() == 2
	}, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, other.calls.Load())
}

func TestCloseCacheStopsEverything(t *testing.T) {
	srv := &server{}
	srv.set([]string{"a"}, nil)
	clk := clock.NewFake(time.Unix(0, 0))
	c := New(WithClock(clk))

	sub := Subscribe(c, "k", srv.fetch, Options[[]string]{Interval: Every[[]string](time.Second)})
	waitData(t, sub)
	c.Close()
	assert.Equal(t, 0, clk.Pending())

	late := Subscribe(c, "k2", srv.fetch, Options[[]string]{})
	assert.False(t, late.Snapshot().Loading)
	assert.Empty(t, c.Keys())
}
