package ui

import (
	"charm.land/glamour/v2"
)

// maxReadableWidth caps the wrap width of rendered markdown.
const maxReadableWidth = 100

// RenderMarkdown renders issue descriptions and analysis results. The input
// is returned unchanged when colors are off or glamour fails. width <= 0
// means the terminal width.
func RenderMarkdown(markdown string, width int) string {
	if markdown == "" || !ShouldUseColor() {
		return markdown
	}
	if width <= 0 {
		width = TerminalWidth(80)
	}
	if width > maxReadableWidth {
		width = maxReadableWidth
	}

	style := "dark"
	if !HasDarkBackground() {
		style = "light"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
