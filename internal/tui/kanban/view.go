package kanban

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/taskdeck/deck/internal/jobs"
	"github.com/taskdeck/deck/internal/types"
	"github.com/taskdeck/deck/internal/ui"
)

// noticeTTL is how long a notice stays in the status line.
const noticeTTL = 6 * time.Second

// View renders the TUI.
func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	var body string
	switch m.mode {
	case modeCreate:
		body = panelStyle.Render(m.form.View())
	case modeDetail:
		body = panelStyle.Render(m.detail.View())
	case modeComment:
		body = panelStyle.Render(m.detail.View() + "\n" + m.comment.View())
	case modeRepos:
		body = m.renderRepos()
	default:
		body = m.renderColumns()
	}
	view := lipgloss.JoinVertical(lipgloss.Left, m.renderToolbar(), body, m.renderFooter())
	if m.mode == modeBoard {
		view = m.renderOverlay(view)
	}
	return view
}

func (m *Model) renderToolbar() string {
	st := m.deps.Filters.State()
	stats := m.deps.Board.Stats()
	title := toolbarStyle.Render("deck")
	counts := fmt.Sprintf("%d todo · %d in progress · %d done", stats.Todo, stats.InProgress, stats.Done)
	page := fmt.Sprintf("page %d", st.Page)
	if total := m.deps.Board.Total(); total > 0 {
		pages := (total + m.deps.PageSize - 1) / m.deps.PageSize
		page = fmt.Sprintf("page %d/%d", st.Page, pages)
	}
	line := strings.Join([]string{title, filterStyle.Render(filterSummary(st)), page, counts}, "  ")
	if m.mode == modeSearch {
		line = m.search.View()
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(line) + "\n"
}

func (m *Model) renderColumns() string {
	lanes := m.lanes()
	sess, dragging := m.tracker.Session()
	cols := make([]string, 0, len(types.Statuses)*2)
	for i, st := range types.Statuses {
		if i > 0 {
			cols = append(cols, strings.Repeat(" ", columnGap))
		}
		cols = append(cols, m.renderColumn(i, st, lanes[st], dragging && sess.Target == st))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func (m *Model) renderColumn(i int, st types.Status, items []types.Issue, target bool) string {
	c := m.lay.column(i)
	hs := columnHeaderStyle.Inherit(ui.LaneStyle(st))
	if target {
		hs = targetHeaderStyle
	}
	lines := []string{hs.Render(fmt.Sprintf("%s (%d)", st.Title(), len(items))), ""}

	start := m.offset[i]
	for slot := 0; slot < m.lay.slots && start+slot < len(items); slot++ {
		it := items[start+slot]
		selected := i == m.lane && start+slot == m.selected[i] && m.mode == modeBoard
		lines = append(lines, m.renderCard(it, c.W, selected))
	}
	if len(items) == 0 {
		switch {
		case m.deps.Board.Loading() && !m.deps.Board.HasData():
			lines = append(lines, statusStyle.Render(" loading..."))
		default:
			lines = append(lines, statusStyle.Render(" no issues"))
		}
	}
	if more := len(items) - start - m.lay.slots; more > 0 {
		lines = append(lines, statusStyle.Render(fmt.Sprintf(" +%d more", more)))
	}
	return lipgloss.NewStyle().Width(c.W).Height(c.H).MaxHeight(c.H).Render(strings.Join(lines, "\n"))
}

// renderCard draws a card in cardRows rows: border, title, meta, border.
func (m *Model) renderCard(it types.Issue, width int, selected bool) string {
	style := cardStyle
	switch {
	case m.tracker.IsGhost(it.ID):
		style = ghostCardStyle
	case selected:
		style = selectedCardStyle
	}
	return m.cardBody(it, width, style)
}

func (m *Model) cardBody(it types.Issue, width int, style lipgloss.Style) string {
	inner := width - 4
	title := ui.TruncateSimple(it.Title, inner)

	meta := []string{ui.RenderMuted(fmt.Sprintf("#%d", it.ID)), ui.RenderPriority(it.Priority)}
	if due := ui.RenderDue(it.DueDate, m.deps.Now()); due != "" {
		meta = append(meta, due)
	}
	if q := ui.RenderQueueStatus(it.LatestQueueStatus); q != "" {
		meta = append(meta, q)
	}
	if len(it.Labels) > 0 {
		meta = append(meta, ui.RenderLabels(it.Labels))
	}
	clip := lipgloss.NewStyle().MaxWidth(inner)
	content := clip.Render(title) + "\n" + clip.Render(strings.Join(meta, " "))
	return style.Width(width - 2).Height(cardRows - 2).Render(content)
}

// renderDetail is the content of the detail pane.
func renderDetail(it types.Issue, width int, now time.Time) string {
	var b strings.Builder
	b.WriteString(detailTitleStyle.Render(fmt.Sprintf("#%d %s", it.ID, it.Title)))
	b.WriteString("\n")
	row := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label) + value + "\n")
	}
	row("Status", ui.RenderStatus(it.Status))
	row("Priority", ui.RenderPriority(it.Priority))
	row("Repo", it.Repo())
	if it.Assignee != nil {
		row("Assignee", *it.Assignee)
	}
	row("Due", ui.RenderDue(it.DueDate, now))
	row("Labels", ui.RenderLabels(it.Labels))
	row("Agent", ui.RenderQueueStatus(it.LatestQueueStatus))
	if it.PRNumber != nil {
		pr := fmt.Sprintf("#%d %s", *it.PRNumber, it.PRState)
		if it.PRURL != nil {
			pr += " " + ui.RenderMuted(*it.PRURL)
		}
		row("PR", pr)
	}
	row("Created", ui.Age(it.CreatedAt, now))
	row("Updated", ui.Age(it.UpdatedAt, now))
	b.WriteString("\n")
	if d := it.Desc(); d != "" {
		b.WriteString(ui.RenderMarkdown(d, width))
	} else {
		b.WriteString(ui.RenderMuted("No description."))
	}
	if it.BehaviorExample != nil && *it.BehaviorExample != "" {
		b.WriteString("\n" + ui.RenderCategory("Expected behavior") + "\n")
		b.WriteString(ui.RenderMarkdown(*it.BehaviorExample, width))
	}
	return b.String()
}

func (m *Model) renderRepos() string {
	repos := m.deps.Jobs.Repos()
	var b strings.Builder
	b.WriteString(ui.RenderCategory("Connected repositories"))
	b.WriteString("  " + ui.RenderMuted("job: "+types.JobKinds[m.kindSel].String()) + "\n\n")
	if len(repos) == 0 {
		if m.deps.Jobs.Loading() {
			b.WriteString(statusStyle.Render("loading..."))
		} else {
			b.WriteString(statusStyle.Render("no connected repositories"))
		}
	}
	for i, r := range repos {
		cursor := "  "
		name := r.FullName
		if i == m.repoSel {
			cursor = ui.RenderAccent("> ")
			name = toolbarStyle.Render(name)
		}
		if m.deps.Filters.Repo() == r.FullName {
			name += ui.RenderMuted(" (filtered)")
		}
		badges := jobs.Badges(r)
		parts := make([]string, len(badges))
		for j, badge := range badges {
			parts[j] = ui.RenderBadge(badge)
		}
		b.WriteString(cursor + name + "\n    " + strings.Join(parts, "  ") + "\n")
		if i == m.repoSel {
			for _, badge := range badges {
				if badge.Error != "" {
					b.WriteString("    " + ui.RenderFail(badge.Kind.String()+": "+badge.Error) + "\n")
				}
			}
		}
	}
	return panelStyle.Width(m.width - 2).Render(b.String())
}

func (m *Model) renderFooter() string {
	var status string
	switch {
	case m.mode == modeConfirmDelete:
		if it, ok := m.Selected(); ok {
			status = ui.RenderWarn(fmt.Sprintf("Delete #%d %q? (y/n)", it.ID, ui.TruncateSimple(it.Title, 40)))
		}
	case m.notice != nil && m.deps.Now().Sub(m.noticeAt) < noticeTTL:
		status = noticeStyle(m.notice.Level).Render(m.notice.Message)
	case m.deps.Board.Err() != nil && !m.deps.Board.HasData():
		status = ui.RenderFail("Failed to load issues: " + m.deps.Board.Err().Error())
	case m.status != "":
		status = statusStyle.Render(m.status)
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(status) + "\n" + m.help.View(m.keys)
}
