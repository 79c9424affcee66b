// Package ui provides terminal styling for deck CLI and board output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/taskdeck/deck/internal/jobs"
	"github.com/taskdeck/deck/internal/types"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
	ColorProgress = lipgloss.AdaptiveColor{
		Light: "#a37acc",
		Dark:  "#d2a6ff",
	}
)

var (
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle     = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle     = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	ProgressStyle = lipgloss.NewStyle().Foreground(ColorProgress)
)

// CategoryStyle for section headers - bold with accent color
var CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

// Status icons
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconBusy = "◐"
	IconIdle = "○"
	IconInfo = "ℹ"
)

// SeparatorLight is the rule drawn between sections.
const SeparatorLight = "──────────────────────────────────────────"

// RenderPass renders text with pass (green) styling
func RenderPass(s string) string {
	return PassStyle.Render(s)
}

// RenderWarn renders text with warning (yellow) styling
func RenderWarn(s string) string {
	return WarnStyle.Render(s)
}

// RenderFail renders text with fail (red) styling
func RenderFail(s string) string {
	return FailStyle.Render(s)
}

// RenderMuted renders text with muted (gray) styling
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// RenderAccent renders text with accent (blue) styling
func RenderAccent(s string) string {
	return AccentStyle.Render(s)
}

// RenderCategory renders a category header in uppercase with accent color
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// LaneStyle is the heading color of a board column.
func LaneStyle(s types.Status) lipgloss.Style {
	switch s {
	case types.StatusInProgress:
		return ProgressStyle
	case types.StatusDone:
		return PassStyle
	}
	return AccentStyle
}

// RenderStatus renders a status with its lane color.
func RenderStatus(s types.Status) string {
	return LaneStyle(s).Render(string(s))
}

// PriorityStyle colors high red, medium yellow and low gray.
func PriorityStyle(p types.Priority) lipgloss.Style {
	switch p {
	case types.PriorityHigh:
		return FailStyle
	case types.PriorityMedium:
		return WarnStyle
	}
	return MutedStyle
}

// RenderPriority renders a priority as a short colored tag.
func RenderPriority(p types.Priority) string {
	tag := map[types.Priority]string{
		types.PriorityHigh:   "▲ high",
		types.PriorityMedium: "■ med",
		types.PriorityLow:    "▼ low",
	}[p]
	if tag == "" {
		tag = string(p)
	}
	return PriorityStyle(p).Render(tag)
}

// RenderLabel draws a label in its own color. Colors that lipgloss cannot
// parse fall back to the muted style.
func RenderLabel(l types.Label) string {
	if !strings.HasPrefix(l.Color, "#") || (len(l.Color) != 4 && len(l.Color) != 7) {
		return MutedStyle.Render("#" + l.Name)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(l.Color)).Render("#" + l.Name)
}

// RenderLabels joins the rendered labels with spaces.
func RenderLabels(labels []types.Label) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = RenderLabel(l)
	}
	return strings.Join(parts, " ")
}

// ToneStyle maps a job badge tone to a color.
func ToneStyle(t jobs.Tone) lipgloss.Style {
	switch t {
	case jobs.ToneBusy:
		return WarnStyle
	case jobs.ToneGood:
		return PassStyle
	case jobs.ToneBad:
		return FailStyle
	}
	return MutedStyle
}

// RenderBadge renders a job badge with an icon, e.g. "◐ commit: Analyzing".
func RenderBadge(b jobs.Badge) string {
	icon := IconIdle
	switch b.Tone {
	case jobs.ToneBusy:
		icon = IconBusy
	case jobs.ToneGood:
		icon = IconPass
	case jobs.ToneBad:
		icon = IconFail
	}
	return ToneStyle(b.Tone).Render(icon + " " + b.Kind.String() + ": " + b.Label)
}

// RenderQueueStatus renders the latest work request state of an issue, or
// "" when none was made.
func RenderQueueStatus(q *types.QueueStatus) string {
	if q == nil {
		return ""
	}
	switch *q {
	case types.QueuePending:
		return WarnStyle.Render("⧗ queued")
	case types.QueueInProgress:
		return ProgressStyle.Render(IconBusy + " working")
	case types.QueueCompleted:
		return PassStyle.Render(IconPass + " agent done")
	case types.QueueFailed:
		return FailStyle.Render(IconFail + " agent failed")
	}
	return MutedStyle.Render(string(*q))
}
