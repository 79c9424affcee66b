package board

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/taskdeck/deck/internal/debug"
	"github.com/taskdeck/deck/internal/types"
)

// Activity is what happened on an issue besides its fields: the discussion
// and the agent work requests.
type Activity struct {
	IssueID  int64
	Comments []types.Comment
	// Work is newest first.
	Work []types.QueueItem
}

// Activity fetches comments and work history of an issue in parallel. It is
// read on demand and not cached with the listing.
func (r *Reconciler) Activity(ctx context.Context, id int64) (Activity, error) {
	a := Activity{IssueID: id}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a.Comments, err = r.gw.ListComments(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		a.Work, err = r.gw.ListQueueItems(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return Activity{IssueID: id}, err
	}
	return a, nil
}

// AddComment posts a comment on an issue.
func (r *Reconciler) AddComment(ctx context.Context, id int64, content string) (*types.Comment, error) {
	d := types.CommentDraft{Content: content}
	if err := d.Validate(); err != nil {
		r.notify(Error, "Failed to comment on #%d: %v", id, err)
		return nil, err
	}
	c, err := r.gw.AddComment(ctx, id, d)
	if err != nil {
		r.notify(Error, "Failed to comment on #%d: %s", id, describe(err))
		return nil, err
	}
	debug.LogEvent("commented", id, "")
	r.notify(Success, "Comment added to #%d", id)
	return c, nil
}

// DeleteComment removes a comment from an issue.
func (r *Reconciler) DeleteComment(ctx context.Context, id, commentID int64) error {
	if err := r.gw.DeleteComment(ctx, id, commentID); err != nil {
		r.notify(Error, "Failed to delete comment on #%d: %s", id, describe(err))
		return err
	}
	debug.LogEvent("comment_deleted", id, "")
	r.notify(Success, "Comment deleted from #%d", id)
	return nil
}
