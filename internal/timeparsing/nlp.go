package timeparsing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrNoDate is returned when no layer understands the input.
var ErrNoDate = errors.New("no date found")

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseAbsolute parses an RFC3339 timestamp or a local date/time.
func ParseAbsolute(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an absolute date: %q", s)
}

// ParseNaturalLanguage understands phrases like "tomorrow" or "next friday".
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w in %q", ErrNoDate, s)
	}
	return r.Time, nil
}

// ParseRelativeTime tries compact duration, then absolute, then natural
// language.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrNoDate)
	}
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	if t, err := ParseAbsolute(s, now.Location()); err == nil {
		return t, nil
	}
	return ParseNaturalLanguage(s, now)
}

// ParseDueDate is ParseRelativeTime for the --due flag: "none" or "-"
// clears the due date (nil, nil).
func ParseDueDate(s string, now time.Time) (*time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "-", "clear":
		return nil, nil
	}
	t, err := ParseRelativeTime(s, now)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
