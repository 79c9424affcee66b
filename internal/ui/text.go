package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Description display limits for `deck issues show`.
const (
	DefaultMaxLines     = 15
	DefaultContextLines = 5
)

// TruncateSimple cuts text to maxLen runes with a "..." suffix.
func TruncateSimple(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(text)
	return string(runes[:maxLen-3]) + "..."
}

// TruncateLines keeps the first and last contextLines of a text longer than
// maxLines and replaces the middle with a muted marker.
func TruncateLines(text string, maxLines, contextLines int) string {
	lines := strings.Split(text, "\n")
	if text == "" || len(lines) <= maxLines {
		return text
	}
	if contextLines < 1 {
		contextLines = DefaultContextLines
	}
	if maxLines < contextLines*2+1 {
		return strings.Join(lines[:maxLines], "\n") + "\n..."
	}

	hidden := len(lines) - 2*contextLines
	var b strings.Builder
	b.WriteString(strings.Join(lines[:contextLines], "\n"))
	b.WriteString("\n")
	b.WriteString(RenderMuted(fmt.Sprintf("... (%d lines hidden, use --full) ...", hidden)))
	b.WriteString("\n")
	b.WriteString(strings.Join(lines[len(lines)-contextLines:], "\n"))
	return b.String()
}

// WrapText wraps text at word boundaries to fit within maxWidth, keeping
// existing line breaks.
func WrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = 80
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = wrapLine(line, maxWidth)
	}
	return strings.Join(lines, "\n")
}

func wrapLine(line string, maxWidth int) string {
	if utf8.RuneCountInString(line) <= maxWidth {
		return line
	}
	var b strings.Builder
	n := 0
	for _, word := range strings.Fields(line) {
		wl := utf8.RuneCountInString(word)
		switch {
		case n == 0:
			// a word longer than the line still goes on its own line
		case n+1+wl <= maxWidth:
			b.WriteByte(' ')
			n++
		default:
			b.WriteByte('\n')
			n = 0
		}
		b.WriteString(word)
		n += wl
	}
	return b.String()
}

// FormatDue describes a due date relative to now: "overdue 2d", "today",
// "in 3d" or the date itself when it is more than two weeks out.
func FormatDue(due *time.Time, now time.Time) string {
	if due == nil {
		return ""
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	dy, dm, dd := due.In(now.Location()).Date()
	day := time.Date(dy, dm, dd, 0, 0, 0, 0, now.Location())
	days := int(day.Sub(today).Hours() / 24)
	switch {
	case days < 0:
		return fmt.Sprintf("overdue %dd", -days)
	case days == 0:
		return "today"
	case days <= 14:
		return fmt.Sprintf("in %dd", days)
	}
	return day.Format("2006-01-02")
}

// RenderDue is FormatDue colored red when overdue and yellow when due today.
func RenderDue(due *time.Time, now time.Time) string {
	s := FormatDue(due, now)
	switch {
	case strings.HasPrefix(s, "overdue"):
		return RenderFail(s)
	case s == "today":
		return RenderWarn(s)
	}
	return RenderMuted(s)
}

// Age renders how long ago t was in the largest fitting unit.
func Age(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}
