// Package timeparsing turns user input such as "+3d", "2025-03-01" or
// "next friday" into due dates. Layers are tried in order: compact
// durations, absolute timestamps, then natural language.
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// compactRe matches [+-]?N[hdwmy], e.g. +6h, -1d, 2w.
var compactRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration offsets now by a compact duration. No sign means
// forward in time.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	m := compactRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", m[2])
	}
	if m[1] == "-" {
		n = -n
	}
	switch m[3] {
	case "h":
		return now.Add(time.Duration(n) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, n), nil
	case "w":
		return now.AddDate(0, 0, 7*n), nil
	case "m":
		return now.AddDate(0, n, 0), nil
	default: // "y"
		return now.AddDate(n, 0, 0), nil
	}
}

// IsCompactDuration reports whether s is compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactRe.MatchString(s)
}

// Ago returns the instant a compact duration before now ("7d" -> 7 days ago).
func Ago(s string, now time.Time) (time.Time, error) {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	return ParseCompactDuration("-"+s, now)
}
