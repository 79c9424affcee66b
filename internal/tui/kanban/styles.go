package kanban

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/taskdeck/deck/internal/board"
	"github.com/taskdeck/deck/internal/ui"
)

var (
	colorSelected = lipgloss.Color("39")
	colorMuted    = lipgloss.Color("242")
	colorTarget   = lipgloss.Color("214")
	colorCard     = lipgloss.Color("238")
)

var (
	toolbarStyle = lipgloss.NewStyle().Bold(true)

	filterStyle = lipgloss.NewStyle().Foreground(colorMuted)

	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorCard).
			Padding(0, 1)

	selectedCardStyle = cardStyle.
				BorderForeground(colorSelected)

	ghostCardStyle = cardStyle.
			BorderStyle(lipgloss.HiddenBorder()).
			Foreground(colorMuted).
			Faint(true)

	dragCardStyle = cardStyle.
			BorderForeground(colorTarget).
			Bold(true)

	targetHeaderStyle = columnHeaderStyle.
				Foreground(colorTarget).
				Underline(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorSelected).
				MarginBottom(1)

	detailLabelStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Width(10)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSelected).
			Padding(0, 1)
)

// noticeStyle colors a notice by level.
func noticeStyle(l board.Level) lipgloss.Style {
	switch l {
	case board.Success:
		return ui.PassStyle
	case board.Error:
		return ui.FailStyle
	}
	return ui.AccentStyle
}
