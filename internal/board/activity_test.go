package board

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/deck/internal/types"
)

func TestActivityCombinesCommentsAndWork(t *testing.T) {
	f := newFixture(t, issue(1, "Fix login", types.StatusTodo))
	f.gw.work = map[int64][]types.QueueItem{1: {
		{ID: 2, IssueID: 1, Status: types.QueuePending},
		{ID: 1, IssueID: 1, Status: types.QueueCompleted},
	}}
	ctx := context.Background()

	c, err := f.board.AddComment(ctx, 1, "  on it  ")
	require.NoError(t, err)
	assert.Equal(t, "on it", c.Content)

	a, err := f.board.Activity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.IssueID)
	require.Len(t, a.Comments, 1)
	assert.Equal(t, "on it", a.Comments[0].Content)
	require.Len(t, a.Work, 2)
	assert.Equal(t, types.QueuePending, a.Work[0].Status)

	require.NoError(t, f.board.DeleteComment(ctx, 1, c.ID))
	a, err = f.board.Activity(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, a.Comments)

	notes := f.notes.all()
	require.Len(t, notes, 2)
	assert.Equal(t, Success, notes[0].Level)
	assert.Equal(t, "Comment deleted from #1", notes[1].Message)
}

func TestBlankCommentNeverReachesBackend(t *testing.T) {
	f := newFixture(t, issue(1, "Fix login", types.StatusTodo))
	_, err := f.board.AddComment(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, types.ErrInvalidComment)
	assert.Empty(t, f.gw.comments)
	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Equal(t, Error, notes[0].Level)
}

func TestActivityFailure(t *testing.T) {
	f := newFixture(t, issue(1, "Fix login", types.StatusTodo))
	f.gw.failComments = errors.New("boom")

	a, err := f.board.Activity(context.Background(), 1)
	require.Error(t, err)
	assert.Empty(t, a.Comments)
	assert.Empty(t, a.Work)

	err = f.board.DeleteComment(context.Background(), 1, 42)
	require.Error(t, err)
	assert.Contains(t, f.notes.all()[0].Message, "Comment not found")
}
