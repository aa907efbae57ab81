package markdown

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/lens-research/loupe"
)

// sourceMarker matches bracketed source references emitted by the backend,
// e.g. "[1]" or "[12]".
var sourceMarker = regexp.MustCompile(`\[\d{1,3}\]`)

type renderer struct {
	bold      lipgloss.Style
	italic    lipgloss.Style
	heading   lipgloss.Style
	muted     lipgloss.Style
	source    lipgloss.Style
	underline lipgloss.Style
}

func newRenderer(theme loupe.Theme) *renderer {
	return &renderer{
		bold:      lipgloss.NewStyle().Bold(true),
		italic:    lipgloss.NewStyle().Italic(true),
		heading:   lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true),
		source:    lipgloss.NewStyle().Foreground(ansiColor(theme.Source)),
		underline: lipgloss.NewStyle().Underline(true),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}

func (r *renderer) render(src []byte, width int) string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))
	var buf bytes.Buffer
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		r.block(c, src, width, &buf)
		if c.NextSibling() != nil {
			buf.WriteString("\n")
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (r *renderer) block(node ast.Node, src []byte, width int, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Heading:
		buf.WriteString(r.heading.Render(r.inline(n, src)))
		buf.WriteString("\n")

	case *ast.Paragraph, *ast.TextBlock:
		buf.WriteString(wrap(r.inline(n, src), width))
		buf.WriteString("\n")

	case *ast.FencedCodeBlock:
		if lang := string(n.Language(src)); lang != "" {
			buf.WriteString(r.muted.Render(lang))
			buf.WriteString("\n")
		}
		r.codeLines(n.Lines(), src, buf)

	case *ast.CodeBlock:
		r.codeLines(n.Lines(), src, buf)

	case *ast.List:
		r.list(n, src, width, buf, 0)

	case *ast.ThematicBreak:
		buf.WriteString(r.muted.Render(strings.Repeat("─", min(width, 40))))
		buf.WriteString("\n")

	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			r.block(c, src, width, buf)
		}
	}
}

func (r *renderer) codeLines(lines *text.Segments, src []byte, buf *bytes.Buffer) {
	gutter := r.muted.Render("│") + " "
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.WriteString(gutter)
		buf.WriteString(strings.TrimRight(string(seg.Value(src)), "\n"))
		buf.WriteString("\n")
	}
}

func (r *renderer) list(node *ast.List, src []byte, width int, buf *bytes.Buffer, depth int) {
	num := node.Start
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		marker := "• "
		if node.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		prefix := strings.Repeat("  ", depth) + marker
		cont := strings.Repeat(" ", runewidth.StringWidth(prefix))

		for ic := item.FirstChild(); ic != nil; ic = ic.NextSibling() {
			if nested, ok := ic.(*ast.List); ok {
				r.list(nested, src, width, buf, depth+1)
				continue
			}
			body := wrap(r.inline(ic, src), max(width-runewidth.StringWidth(prefix), 10))
			for i, line := range strings.Split(body, "\n") {
				if i == 0 {
					buf.WriteString(prefix)
				} else {
					buf.WriteString(cont)
				}
				buf.WriteString(line)
				buf.WriteString("\n")
			}
			prefix = cont
		}
	}
}

// inline collects styled inline text from a node's children.
func (r *renderer) inline(node ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		r.inlineNode(c, src, &buf)
	}
	return buf.String()
}

func (r *renderer) inlineNode(node ast.Node, src []byte, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Text:
		buf.WriteString(r.styleMarkers(string(n.Segment.Value(src))))
		if n.SoftLineBreak() {
			buf.WriteByte(' ')
		}
		if n.HardLineBreak() {
			buf.WriteByte('\n')
		}

	case *ast.String:
		buf.Write(n.Value)

	case *ast.Emphasis:
		inner := r.inline(n, src)
		if n.Level == 1 {
			buf.WriteString(r.italic.Render(inner))
		} else {
			buf.WriteString(r.bold.Render(inner))
		}

	case *ast.CodeSpan:
		buf.WriteString(r.bold.Render(r.inline(n, src)))

	case *ast.Link:
		buf.WriteString(r.underline.Render(r.inline(n, src)))
		buf.WriteString(" ")
		buf.WriteString(r.muted.Render("(" + string(n.Destination) + ")"))

	case *ast.AutoLink:
		buf.WriteString(r.underline.Render(string(n.URL(src))))

	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			r.inlineNode(c, src, buf)
		}
	}
}

// styleMarkers highlights bracketed source references in plain text.
func (r *renderer) styleMarkers(s string) string {
	return sourceMarker.ReplaceAllStringFunc(s, func(m string) string {
		return r.source.Render(m)
	})
}

// wrap word-wraps plain or ANSI-styled text to width using display cell
// widths. Words wider than the line are emitted unbroken.
func wrap(s string, width int) string {
	var out strings.Builder
	lineWidth := 0
	for i, word := range strings.Fields(s) {
		w := runewidth.StringWidth(stripANSI(word))
		if i > 0 {
			if lineWidth+1+w > width {
				out.WriteByte('\n')
				lineWidth = 0
			} else {
				out.WriteByte(' ')
				lineWidth++
			}
		}
		out.WriteString(word)
		lineWidth += w
	}
	return out.String()
}

var ansiSeq = regexp.MustCompile("\x1b\\[[0-9;]*m")

func stripANSI(s string) string {
	return ansiSeq.ReplaceAllString(s, "")
}
