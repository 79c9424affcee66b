package jobs

import (
	"fmt"

	"github.com/taskdeck/deck/internal/types"
)

// Tone is the color family a badge is drawn in.
type Tone int

const (
	ToneNeutral Tone = iota
	ToneBusy
	ToneGood
	ToneBad
)

func (t Tone) String() string {
	switch t {
	case ToneNeutral:
		return "neutral"
	case ToneBusy:
		return "busy"
	case ToneGood:
		return "good"
	case ToneBad:
		return "bad"
	}
	return fmt.Sprintf("Tone(%d)", int(t))
}

// Badge is the rendered state of one job.
type Badge struct {
	Kind  types.JobKind
	Label string
	Tone  Tone
	// Error is the worker's message for a failed job.
	Error string
	// Triggerable means a (re)run may be requested.
	Triggerable bool
	// Retryable means the job failed and offers the retry affordance.
	Retryable bool
}

// BadgeFor maps a job record to its badge. Failures are shown here, inline,
// never as a notice.
func BadgeFor(rec types.JobRecord) Badge {
	b := Badge{Kind: rec.Kind}
	switch rec.Status {
	case types.JobNone:
		b.Label, b.Tone, b.Triggerable = "Not analyzed", ToneNeutral, true
	case types.JobPending:
		b.Label, b.Tone = "Queued", ToneBusy
	case types.JobAnalyzing:
		b.Label, b.Tone = "Analyzing", ToneBusy
	case types.JobCompleted:
		b.Label, b.Tone, b.Triggerable = "Analyzed", ToneGood, true
	case types.JobFailed:
		b.Label, b.Tone, b.Triggerable, b.Retryable = "Failed", ToneBad, true, true
		if rec.Error != nil {
			b.Error = *rec.Error
		}
	default:
		panic(fmt.Sprintf("unhandled job status %d", int(rec.Status)))
	}
	return b
}

// Badges returns one badge per job kind of repo, in display order.
func Badges(repo types.ConnectedRepo) []Badge {
	out := make([]Badge, 0, len(types.JobKinds))
	for _, k := range types.JobKinds {
		out = append(out, BadgeFor(repo.Job(k)))
	}
	return out
}
