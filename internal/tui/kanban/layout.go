package kanban

import (
	"math"

	"github.com/taskdeck/deck/internal/drag"
	"github.com/taskdeck/deck/internal/types"
)

// Board geometry in terminal cells.
const (
	toolbarRows = 2
	headerRows  = 2
	footerRows  = 2
	cardRows    = 4
	columnGap   = 1
)

// cell is a rectangle in terminal cells.
type cell struct {
	X, Y, W, H int
}

func (c cell) contains(x, y int) bool {
	return x >= c.X && x < c.X+c.W && y >= c.Y && y < c.Y+c.H
}

// layout places the three lanes side by side below the toolbar.
type layout struct {
	width, height int
	colW          int
	// top is the first row of cards.
	top int
	// slots is how many cards fit in a column.
	slots int
}

func newLayout(width, height int) layout {
	l := layout{width: width, height: height, top: toolbarRows + headerRows}
	n := len(types.Statuses)
	l.colW = (width - columnGap*(n-1)) / n
	if l.colW < 12 {
		l.colW = 12
	}
	l.slots = (height - l.top - footerRows) / cardRows
	if l.slots < 1 {
		l.slots = 1
	}
	return l
}

// column is the whole lane including its header.
func (l layout) column(i int) cell {
	return cell{
		X: i * (l.colW + columnGap),
		Y: toolbarRows,
		W: l.colW,
		H: headerRows + l.slots*cardRows,
	}
}

// card is the rectangle of the slot-th visible card of column i.
func (l layout) card(i, slot int) cell {
	return cell{X: i * (l.colW + columnGap), Y: l.top + slot*cardRows, W: l.colW, H: cardRows}
}

// hit returns the column and card slot under (x, y). slot is -1 when the
// point is inside a column but not on a card row.
func (l layout) hit(x, y int) (col, slot int, ok bool) {
	for i := range types.Statuses {
		c := l.column(i)
		if !c.contains(x, y) {
			continue
		}
		if y < l.top {
			return i, -1, true
		}
		return i, (y - l.top) / cardRows, true
	}
	return 0, 0, false
}

// scale converts cells to the drag tracker's pixel space.
type scale struct {
	cellW, cellH float64
}

func (s scale) rect(c cell) drag.Rect {
	return drag.Rect{
		X: float64(c.X) * s.cellW,
		Y: float64(c.Y) * s.cellH,
		W: float64(c.W) * s.cellW,
		H: float64(c.H) * s.cellH,
	}
}

// cell maps a pixel rectangle back to the nearest cells.
func (s scale) cell(r drag.Rect) cell {
	return cell{
		X: int(math.Round(r.X / s.cellW)),
		Y: int(math.Round(r.Y / s.cellH)),
		W: int(math.Round(r.W / s.cellW)),
		H: int(math.Round(r.H / s.cellH)),
	}
}

// point maps a cell to its center.
func (s scale) point(x, y int) drag.Point {
	return drag.Point{X: (float64(x) + 0.5) * s.cellW, Y: (float64(y) + 0.5) * s.cellH}
}

// droppables registers the lane columns only. Cards are not drop targets:
// under the corner metric a card would outrank an empty neighbouring lane.
func (l layout) droppables(s scale) []drag.Droppable {
	out := make([]drag.Droppable, len(types.Statuses))
	for i, st := range types.Statuses {
		out[i] = drag.Droppable{ID: string(st), Lane: st, Rect: s.rect(l.column(i))}
	}
	return out
}

// bounds is the board area a drop may land in.
func (l layout) bounds(s scale) drag.Rect {
	return s.rect(cell{X: 0, Y: toolbarRows, W: l.width, H: l.height - toolbarRows - footerRows})
}
