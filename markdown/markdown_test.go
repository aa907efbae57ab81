package markdown_test

import (
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"github.com/lens-research/loupe"
	"github.com/lens-research/loupe/markdown"
)

func TestMain(m *testing.M) {
	// Force ANSI color output so styled elements (headings, source markers)
	// produce visible escape codes that we can assert against.
	lipgloss.SetColorProfile(termenv.ANSI)
	os.Exit(m.Run())
}

func TestRender(t *testing.T) {
	t.Parallel()

	theme := loupe.DefaultTheme()

	t.Run("empty input returns empty string", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "", markdown.Render("", 80, theme))
	})

	t.Run("plain paragraph", func(t *testing.T) {
		t.Parallel()
		result := markdown.Render("hello world", 80, theme)
		assert.Contains(t, result, "hello world")
	})

	t.Run("heading renders with styling", func(t *testing.T) {
		t.Parallel()
		heading := markdown.Render("# Title", 80, theme)
		paragraph := markdown.Render("Title", 80, theme)
		assert.Contains(t, heading, "Title")
		assert.NotEqual(t, heading, paragraph)
	})

	t.Run("bold text", func(t *testing.T) {
		t.Parallel()
		result := markdown.Render("**bold**", 80, theme)
		assert.Contains(t, result, "bold")
	})

	t.Run("inline code", func(t *testing.T) {
		t.Parallel()
		result := markdown.Render("`code`", 80, theme)
		assert.Contains(t, result, "code")
	})

	t.Run("fenced code block preserves content without reflow", func(t *testing.T) {
		t.Parallel()
		src := "```python\nmodel.fit(X_train, y_train)\n```"
		result := markdown.Render(src, 20, theme)
		assert.Contains(t, result, "model.fit(X_train, y_train)")
	})

	t.Run("paragraph wraps at width", func(t *testing.T) {
		t.Parallel()
		src := "alpha beta gamma delta epsilon zeta eta theta"
		result := markdown.Render(src, 20, theme)
		for _, line := range strings.Split(result, "\n") {
			assert.LessOrEqual(t, visibleWidth(line), 20, "line %q", line)
		}
	})

	t.Run("unordered list renders bullets", func(t *testing.T) {
		t.Parallel()
		result := markdown.Render("- first\n- second", 80, theme)
		assert.Contains(t, result, "• first")
		assert.Contains(t, result, "• second")
	})

	t.Run("ordered list renders numbers", func(t *testing.T) {
		t.Parallel()
		result := markdown.Render("1. first\n2. second", 80, theme)
		assert.Contains(t, result, "1. first")
		assert.Contains(t, result, "2. second")
	})

	t.Run("source marker is styled", func(t *testing.T) {
		t.Parallel()
		styled := markdown.Render("Transformers use attention [2].", 80, theme)
		assert.Contains(t, styled, "[2]")
		plain := "Transformers use attention [2]."
		assert.NotEqual(t, plain, styled, "the marker carries ANSI styling")
	})

	t.Run("link renders its text", func(t *testing.T) {
		t.Parallel()
		result := markdown.Render("[arXiv](https://arxiv.org)", 80, theme)
		assert.Contains(t, result, "arXiv")
	})

	t.Run("thematic break renders a rule", func(t *testing.T) {
		t.Parallel()
		result := markdown.Render("above\n\n---\n\nbelow", 80, theme)
		assert.Contains(t, result, "─")
	})
}

// visibleWidth measures a line excluding ANSI escape sequences.
func visibleWidth(line string) int {
	width := 0
	inEscape := false
	for _, r := range line {
		switch {
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			width++
		}
	}
	return width
}
