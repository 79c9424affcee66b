package board

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/deck/internal/cache"
	"github.com/taskdeck/deck/internal/drag"
	"github.com/taskdeck/deck/internal/filter"
	"github.com/taskdeck/deck/internal/gateway"
	"github.com/taskdeck/deck/internal/nav"
	"github.com/taskdeck/deck/internal/types"
)

// fakeGateway is an in-memory backend. updateGate, when set, holds the next
// UpdateIssue until closed.
type fakeGateway struct {
	mu         sync.Mutex
	issues     []types.Issue
	nextID     int64
	failUpdate error
	failCreate error
	failList   error
	updateGate chan struct{}
	lastQuery  url.Values

	comments     []types.Comment
	nextComment  int64
	work         map[int64][]types.QueueItem
	failComments error

	lists   atomic.Int32
	updates atomic.Int32
	creates atomic.Int32
}

func newFakeGateway(issues ...types.Issue) *fakeGateway {
	return &fakeGateway{issues: issues, nextID: 100}
}

func (g *fakeGateway) ListIssues(_ context.Context, q url.Values) (*types.IssueList, error) {
	g.lists.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastQuery = q
	if g.failList != nil {
		return nil, g.failList
	}
	out := types.IssueList{Items: []types.Issue{}}
	for _, it := range g.issues {
		if s := q.Get("status"); s != "" && string(it.Status) != s {
			continue
		}
		if r := q.Get("repo_full_name"); r != "" && it.Repo() != r {
			continue
		}
		out.Items = append(out.Items, it)
	}
	out.Total = len(out.Items)
	return &out, nil
}

func (g *fakeGateway) CreateIssue(_ context.Context, d types.IssueDraft) (*types.Issue, error) {
	g.creates.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreate != nil {
		return nil, g.failCreate
	}
	g.nextID++
	it := types.Issue{ID: g.nextID, Title: d.Title, Status: d.Status, Priority: d.Priority, RepoFullName: d.RepoFullName}
	g.issues = append(g.issues, it)
	return &it, nil
}

func (g *fakeGateway) UpdateIssue(_ context.Context, id int64, p types.IssuePatch) (*types.Issue, error) {
	g.updates.Add(1)
	g.mu.Lock()
	gate := g.updateGate
	g.updateGate = nil
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failUpdate != nil {
		return nil, g.failUpdate
	}
	for i := range g.issues {
		if g.issues[i].ID == id {
			g.issues[i] = p.Apply(g.issues[i], nil)
			it := g.issues[i]
			return &it, nil
		}
	}
	return nil, &gateway.Failure{Message: "Issue not found", StatusCode: 404}
}

func (g *fakeGateway) DeleteIssue(_ context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.issues {
		if g.issues[i].ID == id {
			g.issues = append(g.issues[:i], g.issues[i+1:]...)
			return nil
		}
	}
	return &gateway.Failure{Message: "Issue not found", StatusCode: 404}
}

func (g *fakeGateway) CreateWorkRequest(_ context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.issues {
		if g.issues[i].ID == id {
			q := types.QueuePending
			g.issues[i].LatestQueueStatus = &q
			return nil
		}
	}
	return &gateway.Failure{Message: "Issue not found", StatusCode: 404}
}

func (g *fakeGateway) ListQueueItems(_ context.Context, id int64) ([]types.QueueItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.QueueItem{}, g.work[id]...), nil
}

func (g *fakeGateway) ListComments(_ context.Context, id int64) ([]types.Comment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failComments != nil {
		return nil, g.failComments
	}
	out := []types.Comment{}
	for _, c := range g.comments {
		if c.IssueID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *fakeGateway) AddComment(_ context.Context, id int64, d types.CommentDraft) (*types.Comment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failComments != nil {
		return nil, g.failComments
	}
	g.nextComment++
	c := types.Comment{ID: g.nextComment, IssueID: id, Author: "octocat", Content: d.Content}
	g.comments = append(g.comments, c)
	return &c, nil
}

func (g *fakeGateway) DeleteComment(_ context.Context, id, commentID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, c := range g.comments {
		if c.ID == commentID && c.IssueID == id {
			g.comments = append(g.comments[:i], g.comments[i+1:]...)
			return nil
		}
	}
	return &gateway.Failure{Message: "Comment not found", StatusCode: 404}
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *noticeLog) Notify(x Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, x)
}

func (n *noticeLog) all() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

type fixture struct {
	gw      *fakeGateway
	cache   *cache.Cache
	loc     *nav.Memory
	filters *filter.Store
	board   *Reconciler
	notes   *noticeLog
}

func newFixture(t *testing.T, issues ...types.Issue) *fixture {
	t.Helper()
	f := &fixture{
		gw:    newFakeGateway(issues...),
		cache: cache.New(),
		loc:   nav.NewMemory(nil),
		notes: &noticeLog{},
	}
	f.filters = filter.New(f.loc)
	f.board = New(f.gw, f.cache, f.filters, WithNotifier(f.notes))
	t.Cleanup(func() {
		f.board.Close()
		f.filters.Close()
		f.cache.Close()
	})
	waitLoaded(t, f.board)
	return f
}

func waitLoaded(t *testing.T, b *Reconciler) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.HasData() && !b.Loading()
	}, 2*time.Second, time.Millisecond)
}

func issue(id int64, title string, status types.Status) types.Issue {
	return types.Issue{ID: id, Title: title, Status: status, Priority: types.PriorityMedium}
}

func laneIDs(l Lanes, s types.Status) []int64 {
	out := []int64{}
	for _, it := range l[s] {
		out = append(out, it.ID)
	}
	return out
}

func TestPartitionInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	statuses := append([]types.Status{"bogus"}, types.Statuses...)
	for n := 0; n < 200; n++ {
		items := make([]types.Issue, rng.Intn(30))
		for i := range items {
			items[i] = issue(int64(i+1), "x", statuses[rng.Intn(len(statuses))])
		}
		lanes := Partition(items)
		stats := ComputeStats(items)

		require.Equal(t, len(items), stats.Total())
		seen := map[int64]int{}
		for _, s := range types.Statuses {
			require.Equal(t, len(lanes[s]), stats.Count(s))
			for _, it := range lanes[s] {
				seen[it.ID]++
			}
		}
		require.Len(t, seen, len(items))
		for id, c := range seen {
			require.Equal(t, 1, c, "issue %d in %d lanes", id, c)
		}
	}
}

func TestLanesKeepOrder(t *testing.T) {
	f := newFixture(t, issue(1, "a", types.StatusTodo), issue(2, "b", types.StatusDone), issue(3, "c", types.StatusTodo))
	lanes := f.board.Lanes()
	assert.Equal(t, []int64{1, 3}, laneIDs(lanes, types.StatusTodo))
	assert.Equal(t, []int64{}, laneIDs(lanes, types.StatusInProgress))
	assert.Equal(t, []int64{2}, laneIDs(lanes, types.StatusDone))
	assert.Equal(t, Stats{Todo: 2, Done: 1}, f.board.Stats())
	assert.Equal(t, 3, f.board.Total())
}

func TestDropOntoOwnLaneIsNoop(t *testing.T) {
	f := newFixture(t, issue(1, "a", types.StatusTodo))
	before := f.board.Items()
	lists := f.gw.lists.Load()

	persist, ok := f.board.Drop(drag.DropResult{ItemID: 1, From: types.StatusTodo, To: types.StatusTodo})
	assert.False(t, ok)
	assert.Nil(t, persist)

	persist, ok = f.board.Move(1, types.StatusTodo)
	assert.False(t, ok)
	assert.Nil(t, persist)
	require.NoError(t, f.board.ChangeStatus(context.Background(), 1, types.StatusTodo))

	after := f.board.Items()
	assert.Same(t, &before[0], &after[0], "collection must be referentially unchanged")
	assert.Zero(t, f.gw.updates.Load())
	assert.Equal(t, lists, f.gw.lists.Load(), "no revalidation either")
}

func TestDropWithoutTargetIsNoop(t *testing.T) {
	f := newFixture(t, issue(1, "a", types.StatusTodo))
	_, ok := f.board.Drop(drag.DropResult{ItemID: 1, From: types.StatusTodo})
	assert.False(t, ok)
	_, ok = f.board.Move(1, "blocked")
	assert.False(t, ok, "invalid lane")
	_, ok = f.board.Move(42, types.StatusDone)
	assert.False(t, ok, "unknown issue")
	assert.Zero(t, f.gw.updates.Load())
}

func TestOptimisticStatusChange(t *testing.T) {
	f := newFixture(t, issue(1, "a", types.StatusTodo))
	gate := make(chan struct{})
	f.gw.updateGate = gate

	persist, ok := f.board.Drop(drag.DropResult{ItemID: 1, From: types.StatusTodo, To: types.StatusInProgress})
	require.True(t, ok)

	// Visible before the persistence call even started.
	assert.Equal(t, []int64{1}, laneIDs(f.board.Lanes(), types.StatusInProgress))
	assert.Equal(t, Stats{InProgress: 1}, f.board.Stats())

	done := make(chan error, 1)
	go func() { done <- persist(context.Background()) }()

	require.Eventually(t, func() bool { return f.gw.updates.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []int64{1}, laneIDs(f.board.Lanes(), types.StatusInProgress), "still optimistic while in flight")

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, []int64{1}, laneIDs(f.board.Lanes(), types.StatusInProgress))
	assert.Empty(t, f.notes.all())
}

func TestOptimisticRollbackByRevalidation(t *testing.T) {
	f := newFixture(t, issue(1, "a", types.StatusTodo))
	f.gw.failUpdate = &gateway.Failure{Message: "Invalid status transition", StatusCode: 422}
	lists := f.gw.lists.Load()

	persist, ok := f.board.Move(1, types.StatusInProgress)
	require.True(t, ok)
	assert.Equal(t, []int64{1}, laneIDs(f.board.Lanes(), types.StatusInProgress))

	err := persist(context.Background())
	require.Error(t, err)
	assert.True(t, gateway.IsValidation(err))

	assert.Equal(t, []int64{1}, laneIDs(f.board.Lanes(), types.StatusTodo))
	assert.Equal(t, Stats{Todo: 1}, f.board.Stats())
	assert.Greater(t, f.gw.lists.Load(), lists, "rollback is a refetch")

	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Equal(t, Error, notes[0].Level)
	assert.Contains(t, notes[0].Message, "Invalid status transition")
}

func TestCreateAppendsCanonicalRecord(t *testing.T) {
	f := newFixture(t)
	var changes atomic.Int32
	cancel := f.board.OnChange(func() { changes.Add(1) })
	defer cancel()

	got, err := f.board.Create(context.Background(), types.IssueDraft{Title: "Fix login", Priority: types.PriorityHigh})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.StatusTodo, got.Status)

	assert.Equal(t, []int64{got.ID}, laneIDs(f.board.Lanes(), types.StatusTodo))
	assert.Equal(t, 1, f.board.Stats().Todo)
	assert.Greater(t, changes.Load(), int32(0))

	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Equal(t, Success, notes[0].Level)
}

func TestCreateFailureChangesNothing(t *testing.T) {
	f := newFixture(t, issue(1, "a", types.StatusTodo))
	before := f.board.Items()

	_, err := f.board.Create(context.Background(), types.IssueDraft{Title: "   "})
	require.ErrorIs(t, err, types.ErrInvalidTitle)
	assert.Zero(t, f.gw.creates.Load(), "invalid drafts never leave the client")

	f.gw.failCreate = &gateway.Failure{Message: "Repository not connected", StatusCode: 400}
	_, err = f.board.Create(context.Background(), types.IssueDraft{Title: "ok"})
	require.Error(t, err)

	after := f.board.Items()
	assert.Same(t, &before[0], &after[0])
	notes := f.notes.all()
	require.Len(t, notes, 2)
	assert.Equal(t, Error, notes[1].Level)
	assert.Contains(t, notes[1].Message, "Repository not connected")
}

func TestUpdateRevalidates(t *testing.T) {
	f := newFixture(t, issue(1, "a", types.StatusTodo))
	title := "renamed"
	_, err := f.board.Update(context.Background(), 1, types.IssuePatch{Title: &title})
	require.NoError(t, err)
	got, ok := f.board.Issue(1)
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Title)

	_, err = f.board.Update(context.Background(), 1, types.IssuePatch{})
	require.NoError(t, err, "empty patch is a no-op")
	assert.Equal(t, int32(1), f.gw.updates.Load())

	_, err = f.board.Update(context.Background(), 99, types.IssuePatch{Title: &title})
	assert.True(t, gateway.IsNotFound(err))
	notes := f.notes.all()
	assert.Equal(t, Error, notes[len(notes)-1].Level)
}

func TestDeleteAndWorkRequest(t *testing.T) {
	f := newFixture(t, issue(1, "a", types.StatusTodo), issue(2, "b", types.StatusDone))

	require.NoError(t, f.board.TriggerWorkRequest(context.Background(), 1))
	got, _ := f.board.Issue(1)
	require.NotNil(t, got.LatestQueueStatus)
	assert.Equal(t, types.QueuePending, *got.LatestQueueStatus)

	require.NoError(t, f.board.Delete(context.Background(), 2))
	assert.Equal(t, Stats{Todo: 1}, f.board.Stats())

	err := f.board.Delete(context.Background(), 2)
	require.Error(t, err)
	assert.Equal(t, Stats{Todo: 1}, f.board.Stats())
}

func TestFilterChangeResubscribes(t *testing.T) {
	repo := "acme/api"
	a := issue(1, "a", types.StatusTodo)
	a.RepoFullName = &repo
	f := newFixture(t, a, issue(2, "b", types.StatusTodo))
	oldKey := f.board.Key()

	f.filters.SetRepo(repo)
	assert.NotEqual(t, oldKey, f.board.Key())
	assert.Equal(t, repo, f.board.Filter().Repo)
	waitLoaded(t, f.board)

	assert.Equal(t, []int64{1}, laneIDs(f.board.Lanes(), types.StatusTodo))
	assert.NotContains(t, f.cache.Keys(), oldKey, "old listing released")
}

func TestOpenCreateModal(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.board.OpenCreateModal())
	opened := false
	f.board.SetCreateOpener(func() { opened = true })
	assert.True(t, f.board.OpenCreateModal())
	assert.True(t, opened)
}

func TestFetchErrorKeepsLastGoodData(t *testing.T) {
	f := newFixture(t, issue(1, "a", types.StatusTodo))
	f.gw.mu.Lock()
	f.gw.failList = errors.New("connection refused")
	f.gw.mu.Unlock()

	err := f.board.Refresh(context.Background())
	require.Error(t, err)
	assert.Error(t, f.board.Err())
	assert.Equal(t, Stats{Todo: 1}, f.board.Stats(), "last good data survives")
}
