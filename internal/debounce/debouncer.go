// Package debounce batches rapid events into a single action after a quiet period.
package debounce

import (
	"sync"
	"time"

	"github.com/taskdeck/deck/internal/clock"
)

// Debouncer runs an action once after the duration has passed since the
// last Trigger. Thread-safe for concurrent triggers.
type Debouncer struct {
	mu       sync.Mutex
	clk      clock.Clock
	timer    clock.Timer
	duration time.Duration
	action   func()
	seq      uint64         // Sequence number to prevent stale timer fires
	wg       sync.WaitGroup // Tracks in-flight actions for graceful shutdown
}

// New creates a debouncer driven by the wall clock.
func New(duration time.Duration, action func()) *Debouncer {
	return NewWithClock(clock.Real, duration, action)
}

// NewWithClock creates a debouncer driven by clk.
func NewWithClock(clk clock.Clock, duration time.Duration, action func()) *Debouncer {
	return &Debouncer{
		clk:      clk,
		duration: duration,
		action:   action,
	}
}

// Trigger schedules the action to run after the debounce duration.
// Each call resets the timer.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		if d.timer.Stop() {
			// Timer was stopped before firing; release WaitGroup for it
			d.wg.Done()
		}
	}

	d.seq++
	currentSeq := d.seq

	d.wg.Add(1)
	d.timer = d.clk.AfterFunc(d.duration, func() {
		defer d.wg.Done()

		d.mu.Lock()
		if d.seq != currentSeq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock() // action runs without the lock held

		d.action()
	})
}

// Pending reports whether an action is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel stops any pending action. Safe to call when nothing is pending.
// Does NOT wait for an already-executing action to finish.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		if d.timer.Stop() {
			d.wg.Done()
		}
		d.timer = nil
	}
	d.seq++
}

// CancelAndWait stops any pending action and blocks until an in-flight
// action completes.
func (d *Debouncer) CancelAndWait() {
	d.Cancel()
	d.wg.Wait()
}
