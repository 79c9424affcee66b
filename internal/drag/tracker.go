// Package drag tracks a pointer drag of a board card from pick-up to
// release and resolves the lane it is dropped on.
package drag

import (
	"fmt"
	"sync"
	"time"

	"github.com/taskdeck/deck/internal/types"
)

// PointerKind distinguishes mouse from touch input; they activate
// differently.
type PointerKind int

const (
	Mouse PointerKind = iota
	Touch
)

func (k PointerKind) String() string {
	switch k {
	case Mouse:
		return "mouse"
	case Touch:
		return "touch"
	}
	return fmt.Sprintf("PointerKind(%d)", int(k))
}

// Phase of the tracker.
type Phase int

const (
	// Idle: no pointer is down on a card.
	Idle Phase = iota
	// Pressed: pointer down, activation threshold not reached yet.
	Pressed
	// Active: a drag session exists.
	Active
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pressed:
		return "pressed"
	case Active:
		return "active"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Settings are the activation thresholds.
type Settings struct {
	// Distance a mouse must travel before a drag starts.
	Distance float64
	// TouchDelay a touch must be held before a drag starts.
	TouchDelay time.Duration
	// TouchTolerance is the movement allowed during TouchDelay.
	TouchTolerance float64
}

// DefaultSettings: 8px for mouse; 200ms hold within 5px for touch.
func DefaultSettings() Settings {
	return Settings{Distance: 8, TouchDelay: 200 * time.Millisecond, TouchTolerance: 5}
}

// Item is the card being picked up.
type Item struct {
	ID   int64
	Lane types.Status
	Rect Rect
}

// Session is the state of an active drag.
type Session struct {
	ItemID int64
	// Origin is the lane the card was picked up from.
	Origin types.Status
	// Target is the candidate lane, "" when nothing is under the card.
	Target  types.Status
	Pointer Point
}

// HasTarget reports whether a lane is currently resolved.
func (s Session) HasTarget() bool {
	return s.Target != ""
}

// DropResult is what a release produced.
type DropResult struct {
	ItemID int64
	From   types.Status
	// To is "" when the release had no resolvable target.
	To types.Status
}

// Changes reports whether the drop moves the item to another lane.
func (r DropResult) Changes() bool {
	return r.To != "" && r.To != r.From
}

// Tracker owns the transient drag state.
type Tracker struct {
	mu         sync.Mutex
	settings   Settings
	droppables []Droppable
	bounds     Rect

	phase   Phase
	kind    PointerKind
	item    Item
	start   Point
	startAt time.Time
	pointer Point
	target  types.Status
}

// NewTracker creates an idle tracker.
func NewTracker(s Settings) *Tracker {
	return &Tracker{settings: s}
}

// SetDroppables replaces the registered drop regions. The target of an
// active session is recomputed.
func (t *Tracker) SetDroppables(ds []Droppable) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.droppables = append([]Droppable(nil), ds...)
	if t.phase == Active {
		t.resolveLocked()
	}
}

// SetBounds limits where a drop can land. A zero rect disables the check.
func (t *Tracker) SetBounds(r Rect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bounds = r
}

// Down records a pointer press on a card. Any previous session is dropped.
func (t *Tracker) Down(item Item, p Point, kind PointerKind, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = Pressed
	t.kind = kind
	t.item = item
	t.start = p
	t.startAt = at
	t.pointer = p
	t.target = ""
}

// Move feeds a pointer movement. It returns true when the call activated
// the drag.
func (t *Tracker) Move(p Point, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.phase {
	case Idle:
		return false
	case Active:
		t.pointer = p
		t.resolveLocked()
		return false
	}

	t.pointer = p
	moved := p.Dist(t.start)
	switch t.kind {
	case Touch:
		if moved > t.settings.TouchTolerance {
			// Moving before the hold elapsed is a scroll.
			if at.Sub(t.startAt) < t.settings.TouchDelay {
				t.resetLocked()
				return false
			}
		}
		if at.Sub(t.startAt) >= t.settings.TouchDelay {
			t.activateLocked()
			return true
		}
	default:
		if moved > t.settings.Distance {
			t.activateLocked()
			return true
		}
	}
	return false
}

// Tick activates a touch press that has been held still long enough. It
// returns true when the call activated the drag.
func (t *Tracker) Tick(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != Pressed || t.kind != Touch {
		return false
	}
	if at.Sub(t.startAt) >= t.settings.TouchDelay && t.pointer.Dist(t.start) <= t.settings.TouchTolerance {
		t.activateLocked()
		return true
	}
	return false
}

// Up ends the gesture. ok is false when no drag was active (a click or an
// aborted touch); otherwise the result carries the lane under the card at
// release, if any.
func (t *Tracker) Up(p Point, at time.Time) (DropResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != Active {
		t.resetLocked()
		return DropResult{}, false
	}
	t.pointer = p
	t.resolveLocked()
	res := DropResult{ItemID: t.item.ID, From: t.item.Lane, To: t.target}
	t.resetLocked()
	return res, true
}

// Cancel abandons the gesture without a drop.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Session returns the active session.
func (t *Tracker) Session() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != Active {
		return Session{}, false
	}
	return Session{ItemID: t.item.ID, Origin: t.item.Lane, Target: t.target, Pointer: t.pointer}, true
}

// Overlay returns the dragged card's rectangle following the pointer.
func (t *Tracker) Overlay() (Rect, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != Active {
		return Rect{}, false
	}
	return t.overlayLocked(), true
}

// IsGhost reports whether id is the card being dragged; its origin copy is
// rendered suppressed.
func (t *Tracker) IsGhost(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase == Active && t.item.ID == id
}

func (t *Tracker) overlayLocked() Rect {
	return t.item.Rect.Translate(t.pointer.Sub(t.start))
}

func (t *Tracker) activateLocked() {
	t.phase = Active
	t.resolveLocked()
}

func (t *Tracker) resolveLocked() {
	t.target = ""
	if !t.bounds.IsZero() && !t.bounds.Contains(t.pointer) {
		return
	}
	if d, ok := ClosestCorners(t.overlayLocked(), t.droppables); ok {
		t.target = d.Lane
	}
}

func (t *Tracker) resetLocked() {
	t.phase = Idle
	t.item = Item{}
	t.target = ""
}
