package filter

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/deck/internal/clock"
	"github.com/taskdeck/deck/internal/nav"
	"github.com/taskdeck/deck/internal/types"
)

func newStore(t *testing.T, query string) (*Store, *nav.Memory, *clock.Fake) {
	t.Helper()
	loc, err := nav.Parse(query)
	require.NoError(t, err)
	clk := clock.NewFake(time.Unix(0, 0))
	s := New(loc, WithClock(clk))
	t.Cleanup(s.Close)
	return s, loc, clk
}

func TestSearchRoundTrip(t *testing.T) {
	s, loc, clk := newStore(t, "")

	s.SetSearch("login bug")
	assert.Equal(t, "login bug", s.Search(), "store updates at once")
	assert.NotContains(t, loc.Encode(), "q=", "navigation waits for the debounce")

	clk.Advance(DefaultSearchDebounce)
	assert.Contains(t, loc.Encode(), "q=login+bug")

	reloaded, _, _ := newStore(t, loc.Encode())
	assert.Equal(t, "login bug", reloaded.Search())
}

func TestSearchDebounceResetsOnEachKeystroke(t *testing.T) {
	s, loc, clk := newStore(t, "")

	s.SetSearch("l")
	clk.Advance(200 * time.Millisecond)
	s.SetSearch("lo")
	clk.Advance(200 * time.Millisecond)
	assert.Empty(t, loc.Query().Get(ParamSearch))

	clk.Advance(100 * time.Millisecond)
	assert.Equal(t, "lo", loc.Query().Get(ParamSearch))
}

func TestEmptySearchRemovesParam(t *testing.T) {
	s, loc, clk := newStore(t, "q=old&page=4")
	assert.Equal(t, "old", s.Search())

	s.SetSearch("")
	clk.Advance(DefaultSearchDebounce)
	_, has := loc.Query()[ParamSearch]
	assert.False(t, has)
	_, has = loc.Query()[ParamPage]
	assert.False(t, has, "a new search starts from page 1")
}

func TestSetRepoIsImmediateAndResetsPageAndLabels(t *testing.T) {
	s, loc, _ := newStore(t, "page=3&labels=1,2&keep=me")

	s.SetRepo("octo/cat")
	q := loc.Query()
	assert.Equal(t, "octo/cat", q.Get(ParamRepo))
	assert.Empty(t, q.Get(ParamPage))
	assert.Empty(t, q.Get(ParamLabels))
	assert.Equal(t, "me", q.Get("keep"), "foreign parameters are preserved")

	st := s.State()
	assert.Equal(t, 1, st.Page)
	assert.Nil(t, st.Labels)

	s.SetRepo("")
	_, has := loc.Query()[ParamRepo]
	assert.False(t, has)
}

func TestExternalNavigationOverwritesStore(t *testing.T) {
	s, loc, clk := newStore(t, "repo=a/b")

	var got []State
	s.OnChange(func(st State) { got = append(got, st) })

	s.SetSearch("typing")
	loc.Navigate(url.Values{"repo": {"c/d"}, "q": {"shared"}})

	assert.Equal(t, "c/d", s.Repo())
	assert.Equal(t, "shared", s.Search())

	// The pending write of "typing" must not clobber the navigation.
	clk.Advance(time.Second)
	assert.Equal(t, "shared", loc.Query().Get(ParamSearch))
	require.NotEmpty(t, got)
	assert.Equal(t, "shared", got[len(got)-1].Search)
}

func TestOwnWritesDoNotEcho(t *testing.T) {
	s, _, clk := newStore(t, "")
	calls := 0
	s.OnChange(func(State) { calls++ })

	s.SetSearch("x")
	clk.Advance(DefaultSearchDebounce)
	assert.Equal(t, 1, calls, "one notification for the store change, none for the write-back")
}

func TestReset(t *testing.T) {
	s, loc, clk := newStore(t, "repo=a/b&q=x&status=done&priority=high&labels=3&page=2&keep=1")

	s.SetSearch("pending")
	s.Reset()
	clk.Advance(time.Second)

	if diff := cmp.Diff(Initial(), s.State()); diff != "" {
		t.Errorf("State() after Reset mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "keep=1", loc.Encode())
}

func TestFromQuery(t *testing.T) {
	tests := []struct {
		query string
		want  State
	}{
		{"", Initial()},
		{"repo=octo%2Fcat&q=login+bug", State{Repo: "octo/cat", Search: "login bug", Page: 1}},
		{"status=in_progress&priority=high", State{Status: types.StatusInProgress, Priority: types.PriorityHigh, Page: 1}},
		{"status=bogus&priority=urgent", Initial()},
		{"labels=2,x,1,-4&page=5", State{Labels: []int64{2, 1}, Page: 5}},
		{"page=0", Initial()},
		{"page=abc", Initial()},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			v, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, FromQuery(v)); diff != "" {
				t.Errorf("FromQuery(%q) mismatch (-want +got):\n%s", tt.query, diff)
			}
		})
	}
}

func TestStatusPriorityLabelsPage(t *testing.T) {
	s, loc, _ := newStore(t, "page=7")

	s.SetStatus(types.StatusDone)
	assert.Equal(t, "status=done", loc.Encode())

	s.SetPage(3)
	s.SetPriority(types.PriorityLow)
	assert.Empty(t, loc.Query().Get(ParamPage), "priority change resets page")

	s.SetLabels([]int64{5, 2, 5})
	assert.Equal(t, "2,5", loc.Query().Get(ParamLabels))
	assert.Equal(t, []int64{2, 5}, s.State().Labels)

	s.SetPage(2)
	assert.Equal(t, "2", loc.Query().Get(ParamPage))
	s.SetPage(0)
	assert.Equal(t, 1, s.State().Page)
	assert.False(t, strings.Contains(loc.Encode(), "page="))
}

func TestFlushWritesPendingSearch(t *testing.T) {
	s, loc, _ := newStore(t, "")
	s.SetSearch("now")
	s.Flush()
	assert.Equal(t, "now", loc.Query().Get(ParamSearch))
}

func TestCloseDropsPendingSearch(t *testing.T) {
	s, loc, clk := newStore(t, "")
	s.SetSearch("never")
	s.Close()
	clk.Advance(time.Second)
	assert.Empty(t, loc.Query().Get(ParamSearch))

	loc.Navigate(url.Values{"q": {"ignored"}})
	assert.Equal(t, "never", s.Search(), "closed store no longer follows navigation")
}

func TestSearchKeepsPageInStep(t *testing.T) {
	tests := []struct {
		name     string
		typed    []string
		wantPage int
		notified int
	}{
		{"changed search starts over", []string{"login"}, 1, 1},
		{"same search keeps the page", []string{"bug"}, 3, 0},
		{"reverted search stays on page 1", []string{"bugx", "bug"}, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, loc, clk := newStore(t, "q=bug&page=3")
			var calls int
			s.OnChange(func(State) { calls++ })

			for _, q := range tt.typed {
				s.SetSearch(q)
			}
			clk.Advance(DefaultSearchDebounce)

			st := s.State()
			assert.Equal(t, tt.wantPage, st.Page)
			assert.Equal(t, tt.notified, calls)
			if diff := cmp.Diff(st, FromQuery(loc.Query())); diff != "" {
				t.Errorf("navigation state out of step with store (-store +nav):\n%s", diff)
			}

			reloaded, _, _ := newStore(t, loc.Encode())
			assert.Equal(t, st, reloaded.State())
		})
	}
}

func TestPageChosenDuringDebounceSurvivesSearchWrite(t *testing.T) {
	s, loc, clk := newStore(t, "")

	s.SetSearch("login")
	s.SetPage(2)
	clk.Advance(DefaultSearchDebounce)

	q := loc.Query()
	assert.Equal(t, "login", q.Get(ParamSearch))
	assert.Equal(t, "2", q.Get(ParamPage))
	assert.Equal(t, 2, s.State().Page)
}
