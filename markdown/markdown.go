// Package markdown renders assistant answers to ANSI-styled terminal
// output using goldmark for parsing and lipgloss for styling. Bracketed
// source markers like [2] are highlighted so they stand out next to the
// source list.
package markdown

import "github.com/lens-research/loupe"

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width. Code blocks are
// rendered verbatim behind a gutter.
func Render(source string, width int, theme loupe.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r := newRenderer(theme)
	return r.render([]byte(source), width)
}
