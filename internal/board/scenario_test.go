package board_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/deck/internal/board"
	"github.com/taskdeck/deck/internal/cache"
	"github.com/taskdeck/deck/internal/drag"
	"github.com/taskdeck/deck/internal/fakeapi"
	"github.com/taskdeck/deck/internal/filter"
	"github.com/taskdeck/deck/internal/gateway"
	"github.com/taskdeck/deck/internal/nav"
	"github.com/taskdeck/deck/internal/types"
)

type scenario struct {
	api *fakeapi.Server
	rec *board.Reconciler

	mu      sync.Mutex
	notices []board.Notice
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &scenario{api: fakeapi.New()}
	srv := httptest.NewServer(s.api)
	t.Cleanup(srv.Close)

	gw, err := gateway.New(srv.URL + fakeapi.Prefix)
	require.NoError(t, err)
	c := cache.New()
	t.Cleanup(c.Close)
	filters := filter.New(nav.NewMemory(nil))
	t.Cleanup(filters.Close)

	s.rec = board.New(gw, c, filters, board.WithNotifier(board.NotifierFunc(func(n board.Notice) {
		s.mu.Lock()
		s.notices = append(s.notices, n)
		s.mu.Unlock()
	})))
	t.Cleanup(s.rec.Close)
	require.NoError(t, s.rec.Refresh(context.Background()))
	return s
}

func (s *scenario) lastNotice() board.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notices) == 0 {
		return board.Notice{}
	}
	return s.notices[len(s.notices)-1]
}

// dragTo drags the card of id from the todo column onto lane of a three
// column layout and returns the release. The pointer travels 20px past the
// column offset so the gesture activates even for the card's own lane.
func dragTo(t *testing.T, id int64, lane types.Status) drag.DropResult {
	t.Helper()
	cols := []drag.Droppable{
		{ID: "todo", Lane: types.StatusTodo, Rect: drag.Rect{X: 0, Y: 0, W: 100, H: 400}},
		{ID: "in_progress", Lane: types.StatusInProgress, Rect: drag.Rect{X: 110, Y: 0, W: 100, H: 400}},
		{ID: "done", Lane: types.StatusDone, Rect: drag.Rect{X: 220, Y: 0, W: 100, H: 400}},
	}
	var dx float64
	for _, c := range cols {
		if c.Lane == lane {
			dx = c.Rect.X
		}
	}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := drag.NewTracker(drag.DefaultSettings())
	tr.SetDroppables(cols)
	tr.Down(drag.Item{ID: id, Lane: types.StatusTodo, Rect: drag.Rect{X: 5, Y: 10, W: 90, H: 40}}, drag.Point{X: 50, Y: 30}, drag.Mouse, at)
	to := drag.Point{X: 70 + dx, Y: 30}
	require.True(t, tr.Move(to, at))
	res, ok := tr.Up(to, at)
	require.True(t, ok)
	return res
}

func TestScenarioCreateDragAndRollback(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t)

	created, err := s.rec.Create(ctx, types.IssueDraft{Title: "Fix login", Priority: types.PriorityHigh})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, board.Stats{Todo: 1}, s.rec.Stats())

	s.api.Fail(http.MethodPatch, "/issues/:id", http.StatusInternalServerError, "database is locked")

	res := dragTo(t, created.ID, types.StatusDone)
	persist, ok := s.rec.Drop(res)
	require.True(t, ok)
	assert.Equal(t, board.Stats{Todo: 0, Done: 1}, s.rec.Stats(), "visible before the request resolves")

	require.Error(t, persist(ctx))
	assert.Equal(t, board.Stats{Todo: 1, Done: 0}, s.rec.Stats(), "revalidation restores the server's lane")
	assert.Equal(t, board.Error, s.lastNotice().Level)
	assert.Contains(t, s.lastNotice().Message, "database is locked")
}

func TestScenarioDragPersists(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t)
	created, err := s.rec.Create(ctx, types.IssueDraft{Title: "Fix login", Priority: types.PriorityHigh})
	require.NoError(t, err)

	persist, ok := s.rec.Drop(dragTo(t, created.ID, types.StatusInProgress))
	require.True(t, ok)
	got, _ := s.rec.Issue(created.ID)
	assert.Equal(t, types.StatusInProgress, got.Status)

	require.NoError(t, persist(ctx))
	got, _ = s.rec.Issue(created.ID)
	assert.Equal(t, types.StatusInProgress, got.Status)
	stored, ok := s.api.Issue(created.ID)
	require.True(t, ok)
	assert.Equal(t, types.StatusInProgress, stored.Status)
}

func TestScenarioDropOnOwnLaneSendsNothing(t *testing.T) {
	ctx := context.Background()
	s := newScenario(t)
	created, err := s.rec.Create(ctx, types.IssueDraft{Title: "Fix login"})
	require.NoError(t, err)

	s.api.Fail(http.MethodPatch, "/issues/:id", http.StatusInternalServerError, "must not be called")
	_, ok := s.rec.Drop(dragTo(t, created.ID, types.StatusTodo))
	assert.False(t, ok)
	assert.Equal(t, board.Stats{Todo: 1}, s.rec.Stats())
}
