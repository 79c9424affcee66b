package kanban

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/taskdeck/deck/internal/board"
	"github.com/taskdeck/deck/internal/types"
	"github.com/taskdeck/deck/internal/ui"
)

// activityMsg carries the comments and work history of the issue in the
// detail pane.
type activityMsg struct {
	activity board.Activity
	err      error
}

func (m *Model) loadActivity(id int64) tea.Cmd {
	return func() tea.Msg {
		a, err := m.deps.Board.Activity(m.ctx, id)
		a.IssueID = id
		return activityMsg{activity: a, err: err}
	}
}

// openDetail shows the selected issue and starts loading its activity.
func (m *Model) openDetail() tea.Cmd {
	it, ok := m.Selected()
	if !ok {
		return nil
	}
	m.mode = modeDetail
	m.activity = nil
	m.activityErr = nil
	m.refreshDetail()
	m.detail.GotoTop()
	return m.loadActivity(it.ID)
}

func (m *Model) applyActivity(msg activityMsg) {
	it, ok := m.Selected()
	if !ok || it.ID != msg.activity.IssueID {
		return
	}
	if msg.err != nil {
		m.activityErr = msg.err
	} else {
		a := msg.activity
		m.activity = &a
		m.activityErr = nil
	}
	if m.mode == modeDetail || m.mode == modeComment {
		m.refreshDetail()
	}
}

// updateComment edits the comment input. Enter posts it and reloads the
// activity; esc returns to the detail pane.
func (m *Model) updateComment(msg tea.Msg) tea.Cmd {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.Type {
		case tea.KeyEsc:
			m.comment.Blur()
			m.mode = modeDetail
			return nil
		case tea.KeyEnter:
			m.comment.Blur()
			m.mode = modeDetail
			it, ok := m.Selected()
			if !ok {
				return nil
			}
			id, text := it.ID, m.comment.Value()
			m.comment.SetValue("")
			return func() tea.Msg {
				if _, err := m.deps.Board.AddComment(m.ctx, id, text); err != nil {
					return doneMsg{what: "comment", err: err}
				}
				return m.loadActivity(id)()
			}
		}
	}
	var cmd tea.Cmd
	m.comment, cmd = m.comment.Update(msg)
	return cmd
}

// renderActivity is the lower half of the detail pane.
func renderActivity(a *board.Activity, err error, width int, now time.Time) string {
	var b strings.Builder
	b.WriteString("\n" + ui.RenderCategory("Comments") + "\n")
	switch {
	case err != nil:
		b.WriteString(ui.RenderFail("Failed to load activity: "+err.Error()) + "\n")
		return b.String()
	case a == nil:
		b.WriteString(statusStyle.Render("loading...") + "\n")
		return b.String()
	case len(a.Comments) == 0:
		b.WriteString(ui.RenderMuted("No comments yet. Press c to add one.") + "\n")
	}
	for _, c := range a.Comments {
		b.WriteString(ui.RenderAccent(c.Author) + " " + ui.RenderMuted(ui.Age(c.CreatedAt, now)) + "\n")
		b.WriteString(ui.RenderMarkdown(c.Content, width))
	}

	b.WriteString("\n" + ui.RenderCategory("Work history") + "\n")
	if len(a.Work) == 0 {
		b.WriteString(ui.RenderMuted("No work requested.") + "\n")
	}
	for _, q := range a.Work {
		b.WriteString(workLine(q, now) + "\n")
		if q.Result != nil && *q.Result != "" {
			b.WriteString(ui.RenderMuted(indent(ui.WrapText(*q.Result, width-2), "  ")) + "\n")
		}
	}
	return b.String()
}

func workLine(q types.QueueItem, now time.Time) string {
	st := q.Status
	line := fmt.Sprintf("%s %s", ui.RenderQueueStatus(&st), ui.RenderMuted(ui.Age(q.CreatedAt, now)))
	if d := q.Duration(); d > 0 {
		line += ui.RenderMuted(fmt.Sprintf(" (took %s)", d.Round(time.Second)))
	}
	return line
}

func indent(text, prefix string) string {
	return prefix + strings.ReplaceAll(text, "\n", "\n"+prefix)
}
