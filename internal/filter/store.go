// Package filter keeps the board's filter selection in sync with the
// navigation state. Incoming navigation always overwrites the store; the
// store writes back repo, status, priority, labels and page immediately and
// the free-text search after a debounce.
package filter

import (
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/taskdeck/deck/internal/clock"
	"github.com/taskdeck/deck/internal/debounce"
	"github.com/taskdeck/deck/internal/nav"
	"github.com/taskdeck/deck/internal/types"
)

// DefaultSearchDebounce is the quiet period before a search reaches the
// navigation state.
const DefaultSearchDebounce = 300 * time.Millisecond

// Store is the filter state shared by the toolbar and the board.
type Store struct {
	mu    sync.Mutex
	loc   nav.Location
	state State

	debouncer *debounce.Debouncer
	logger    *slog.Logger

	listeners map[int]func(State)
	nextID    int
	cancelNav func()
}

type options struct {
	clk      clock.Clock
	debounce time.Duration
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*options)

// WithClock drives the search debounce from clk.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// WithDebounce overrides the search debounce.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a store bound to loc, initialized from its current query.
func New(loc nav.Location, opts ...Option) *Store {
	o := options{clk: clock.Real, debounce: DefaultSearchDebounce, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{
		loc:       loc,
		state:     FromQuery(loc.Query()),
		logger:    o.logger,
		listeners: make(map[int]func(State)),
	}
	s.debouncer = debounce.NewWithClock(o.clk, o.debounce, s.writeSearch)
	s.cancelNav = loc.Subscribe(s.onNavigate)
	return s
}

// onNavigate applies an external navigation. A pending search write is
// dropped: the navigation wins.
func (s *Store) onNavigate(v url.Values) {
	s.debouncer.Cancel()
	next := FromQuery(v)
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.logger.Debug("filter synced from navigation", "query", v.Encode())
	s.notify(next)
}

// State returns the current selection.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Labels = append([]int64(nil), s.state.Labels...)
	return st
}

// Repo returns the selected repository or "".
func (s *Store) Repo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Repo
}

// Search returns the current search text.
func (s *Store) Search() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Search
}

// SetRepo selects a repository ("" clears it). The navigation state is
// updated at once; page and label selections are reset.
func (s *Store) SetRepo(repo string) {
	s.update(func(st *State) {
		st.Repo = repo
		st.Page = 1
		st.Labels = nil
	}, func(v url.Values, st State) {
		setOrDel(v, ParamRepo, st.Repo)
		v.Del(ParamPage)
		v.Del(ParamLabels)
	})
}

// SetSearch updates the search text. The store changes at once; the
// navigation state follows after the debounce, restarted by every call.
// A changed search starts again from page 1.
func (s *Store) SetSearch(search string) {
	s.mu.Lock()
	changed := s.state.Search != search
	if changed {
		s.state.Search = search
		s.state.Page = 1
	}
	st := s.state
	s.mu.Unlock()

	if changed {
		s.notify(st)
	}
	s.debouncer.Trigger()
}

// writeSearch is the debounced half of SetSearch. The page travels with
// the search so both parameters always describe the live state.
func (s *Store) writeSearch() {
	s.mu.Lock()
	search, page := s.state.Search, s.state.Page
	s.mu.Unlock()

	v := s.loc.Query()
	before := v.Encode()
	setOrDel(v, ParamSearch, search)
	setPage(v, page)
	if v.Encode() == before {
		return
	}
	s.loc.Replace(v)
	s.logger.Debug("search written to navigation", "q", search, "page", page)
}

// SetStatus filters by lane ("" clears it).
func (s *Store) SetStatus(status types.Status) {
	s.update(func(st *State) {
		st.Status = status
		st.Page = 1
	}, func(v url.Values, st State) {
		setOrDel(v, ParamStatus, string(st.Status))
		v.Del(ParamPage)
	})
}

// SetPriority filters by priority ("" clears it).
func (s *Store) SetPriority(p types.Priority) {
	s.update(func(st *State) {
		st.Priority = p
		st.Page = 1
	}, func(v url.Values, st State) {
		setOrDel(v, ParamPriority, string(st.Priority))
		v.Del(ParamPage)
	})
}

// SetLabels selects label ids (nil clears them).
func (s *Store) SetLabels(ids []int64) {
	s.update(func(st *State) {
		st.Labels = normalizeLabels(ids)
		st.Page = 1
	}, func(v url.Values, st State) {
		setOrDel(v, ParamLabels, FormatLabels(st.Labels))
		v.Del(ParamPage)
	})
}

// SetPage selects a 1-based page.
func (s *Store) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	s.update(func(st *State) {
		st.Page = page
	}, func(v url.Values, st State) {
		setPage(v, st.Page)
	})
}

// Reset cancels a pending search write and clears every owned parameter.
func (s *Store) Reset() {
	s.debouncer.Cancel()
	s.update(func(st *State) {
		*st = Initial()
	}, func(v url.Values, _ State) {
		for _, k := range ownedParams {
			v.Del(k)
		}
	})
}

// Flush writes a pending search immediately.
func (s *Store) Flush() {
	if s.debouncer.Pending() {
		s.debouncer.Cancel()
		s.writeSearch()
	}
}

// update mutates the state, writes the navigation state immediately and
// notifies listeners.
func (s *Store) update(mutate func(*State), write func(url.Values, State)) {
	s.mu.Lock()
	mutate(&s.state)
	st := s.state
	s.mu.Unlock()

	v := s.loc.Query()
	write(v, st)
	s.loc.Replace(v)
	s.notify(st)
}

// OnChange registers fn to run after every state change.
func (s *Store) OnChange(fn func(State)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(st State) {
	s.mu.Lock()
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Close stops following the navigation state. A pending search write is
// dropped.
func (s *Store) Close() {
	s.debouncer.Cancel()
	if s.cancelNav != nil {
		s.cancelNav()
	}
}
