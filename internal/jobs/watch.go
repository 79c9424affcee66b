package jobs

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskdeck/deck/internal/cache"
	"github.com/taskdeck/deck/internal/gateway"
	"github.com/taskdeck/deck/internal/types"
)

// JobWatch follows the detail record of one job with the same adaptive
// cadence as the poller.
type JobWatch struct {
	RepoID int64
	Kind   types.JobKind
	sub    *cache.Subscription[types.JobRecord]
}

// Watch subscribes to the detail record of one job.
func (p *Poller) Watch(repoID int64, kind types.JobKind) *JobWatch {
	fetch := func(ctx context.Context) (types.JobRecord, error) {
		return p.gw.GetJob(ctx, repoID, kind)
	}
	interval := p.interval
	sub := cache.Subscribe(p.cache, gateway.JobPath(repoID, kind), fetch, cache.Options[types.JobRecord]{
		Interval: func(rec types.JobRecord) time.Duration {
			if rec.Status.Active() {
				return interval
			}
			return 0
		},
	})
	return &JobWatch{RepoID: repoID, Kind: kind, sub: sub}
}

// Record returns the last fetched record.
func (w *JobWatch) Record() (types.JobRecord, bool) {
	snap := w.sub.Snapshot()
	return snap.Data, snap.HasData
}

// Err is the error of the last fetch.
func (w *JobWatch) Err() error { return w.sub.Snapshot().Err }

// Loading reports whether a fetch is running.
func (w *JobWatch) Loading() bool { return w.sub.Snapshot().Loading }

// Changes signals after every update.
func (w *JobWatch) Changes() <-chan struct{} { return w.sub.Changes() }

// OnChange registers fn to run after every update.
func (w *JobWatch) OnChange(fn func()) { w.sub.OnChange(fn) }

// Revalidate refetches the record and waits for it.
func (w *JobWatch) Revalidate(ctx context.Context) error { return w.sub.Revalidate(ctx) }

// Close releases the watch.
func (w *JobWatch) Close() { w.sub.Close() }

// RefreshAll revalidates several watches concurrently and returns the first
// error.
func RefreshAll(ctx context.Context, watches ...*JobWatch) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range watches {
		g.Go(func() error { return w.Revalidate(ctx) })
	}
	return g.Wait()
}
