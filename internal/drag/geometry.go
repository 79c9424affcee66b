package drag

import (
	"math"

	"github.com/taskdeck/deck/internal/types"
)

// Point is a pointer position in pixels.
type Point struct {
	X, Y float64
}

// Sub returns p - q as an offset.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist is the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Rect is an axis-aligned rectangle with its origin at the top-left.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether p lies inside r (edges included).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Translate moves r by the offset d.
func (r Rect) Translate(d Point) Rect {
	return Rect{X: r.X + d.X, Y: r.Y + d.Y, W: r.W, H: r.H}
}

// Corners returns top-left, top-right, bottom-left, bottom-right.
func (r Rect) Corners() [4]Point {
	return [4]Point{
		{r.X, r.Y},
		{r.X + r.W, r.Y},
		{r.X, r.Y + r.H},
		{r.X + r.W, r.Y + r.H},
	}
}

// IsZero reports whether r has no area.
func (r Rect) IsZero() bool {
	return r.W <= 0 || r.H <= 0
}

// Droppable is a region that accepts drops for a lane. Lane columns and the
// cards inside them are both droppables; a card resolves to its lane.
type Droppable struct {
	ID   string
	Lane types.Status
	Rect Rect
}

// cornerDistance is the mean distance between corresponding corners.
func cornerDistance(a, b Rect) float64 {
	ca, cb := a.Corners(), b.Corners()
	var sum float64
	for i := range ca {
		sum += ca[i].Dist(cb[i])
	}
	return sum / 4
}

// ClosestCorners returns the droppable whose corners are nearest to those of
// the dragged rectangle. Ties go to the earliest region.
func ClosestCorners(dragged Rect, regions []Droppable) (Droppable, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, d := range regions {
		if d.Rect.IsZero() {
			continue
		}
		if dist := cornerDistance(dragged, d.Rect); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return Droppable{}, false
	}
	return regions[best], true
}
