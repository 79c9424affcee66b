package board

import "github.com/taskdeck/deck/internal/types"

// Lanes partitions a collection by status. Every lane of types.Statuses is
// present, possibly empty.
type Lanes map[types.Status][]types.Issue

// Partition assigns each issue to exactly one lane, keeping collection order
// within a lane. An issue with an unknown status lands in todo so the
// partition always covers the whole collection.
func Partition(items []types.Issue) Lanes {
	lanes := make(Lanes, len(types.Statuses))
	for _, s := range types.Statuses {
		lanes[s] = []types.Issue{}
	}
	for _, it := range items {
		s := it.Status
		if !s.IsValid() {
			s = types.StatusTodo
		}
		lanes[s] = append(lanes[s], it)
	}
	return lanes
}

// Stats are the per-lane counts of a collection.
type Stats struct {
	Todo       int `json:"todo"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
}

// Total is the number of issues counted.
func (s Stats) Total() int {
	return s.Todo + s.InProgress + s.Done
}

// Count returns the count of one lane.
func (s Stats) Count(status types.Status) int {
	switch status {
	case types.StatusTodo:
		return s.Todo
	case types.StatusInProgress:
		return s.InProgress
	case types.StatusDone:
		return s.Done
	}
	return 0
}

// ComputeStats counts a collection. It is derived on every call and never
// stored.
func ComputeStats(items []types.Issue) Stats {
	lanes := Partition(items)
	return Stats{
		Todo:       len(lanes[types.StatusTodo]),
		InProgress: len(lanes[types.StatusInProgress]),
		Done:       len(lanes[types.StatusDone]),
	}
}
