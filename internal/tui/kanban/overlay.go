package kanban

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// splice paints block over view with its top-left cell at (x, y). Styling
// on either side of the block is kept; rows outside the view are dropped.
func splice(view, block string, x, y int) string {
	if block == "" {
		return view
	}
	if x < 0 {
		x = 0
	}
	rows := strings.Split(view, "\n")
	for i, line := range strings.Split(block, "\n") {
		row := y + i
		if row < 0 || row >= len(rows) {
			continue
		}
		bg := rows[row]
		var b strings.Builder
		prefix := ansi.Truncate(bg, x, "")
		b.WriteString(prefix)
		if pad := x - ansi.StringWidth(prefix); pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString("\x1b[0m")
		b.WriteString(line)
		b.WriteString("\x1b[0m")
		if end := x + ansi.StringWidth(line); end < ansi.StringWidth(bg) {
			b.WriteString(ansi.TruncateLeft(bg, end, ""))
		}
		rows[row] = b.String()
	}
	return strings.Join(rows, "\n")
}

// renderOverlay draws the dragged card where the pointer carries it.
func (m *Model) renderOverlay(view string) string {
	sess, ok := m.tracker.Session()
	if !ok {
		return view
	}
	r, ok := m.tracker.Overlay()
	if !ok {
		return view
	}
	for _, it := range m.lanes()[sess.Origin] {
		if it.ID != sess.ItemID {
			continue
		}
		c := m.scale.cell(r)
		return splice(view, m.cardBody(it, c.W, dragCardStyle), c.X, c.Y)
	}
	return view
}
