package bubbletea

import (
	"fmt"
	"strings"

	"github.com/lens-research/loupe"
	"github.com/lens-research/loupe/exchange"
	"github.com/lens-research/loupe/markdown"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) statusLine() string {
	if m.toast != "" {
		return m.styles.Toast.Render(m.toast)
	}
	if m.running {
		status := m.conv.StatusText()
		if status == "" {
			status = "Thinking..."
		}
		return m.spin.View() + " " + m.styles.Muted.Render(status+"  (esc to cancel)")
	}
	if m.ctrl.Phase() == exchange.PhaseAwaitingConfirmation {
		return m.styles.Accent.Render("Add these papers to your library? [y]es / [n]o")
	}
	return m.styles.Muted.Render("enter to send · ctrl+c to quit")
}

func (m Model) renderContent() string {
	msgs := m.cache.Messages(m.ctrl.ConversationID())
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Role {
		case loupe.RoleUser:
			b.WriteString(m.styles.UserMsg.Render("❯ " + msg.Content))
			b.WriteString("\n")
		case loupe.RoleAssistant:
			b.WriteString(m.renderAssistant(msg, width))
		}
	}
	return b.String()
}

func (m Model) renderAssistant(msg loupe.Message, width int) string {
	var b strings.Builder

	for _, step := range msg.Steps {
		b.WriteString(m.renderStep(step))
		b.WriteString("\n")
	}

	if msg.Content != "" {
		if msg.IsStreaming {
			// Raw text while streaming; markdown styling lands once the
			// message finalizes.
			b.WriteString(msg.Content)
		} else {
			b.WriteString(markdown.Render(msg.Content, width, m.theme))
		}
		b.WriteString("\n")
	}

	if len(msg.Sources) > 0 && !msg.IsStreaming {
		b.WriteString("\n")
		for i, src := range msg.Sources {
			line := fmt.Sprintf("[%d] %s", i+1, src.Title)
			if src.Published != "" {
				line += " (" + src.Published + ")"
			}
			b.WriteString(m.styles.Source.Render(line))
			b.WriteString("\n")
		}
	}

	if p := msg.Proposal; p != nil {
		b.WriteString("\n")
		switch {
		case msg.ProposalResolved && msg.ProposalDeclined:
			b.WriteString(m.styles.Muted.Render("Papers not added."))
		case msg.ProposalResolved:
			b.WriteString(m.styles.Muted.Render(fmt.Sprintf("Approved adding %d papers.", len(p.Papers))))
		default:
			b.WriteString(m.styles.Accent.Render(fmt.Sprintf("Proposed %d papers:", len(p.Papers))))
			b.WriteString("\n")
			for _, paper := range p.Papers {
				b.WriteString("  " + m.styles.Source.Render(paper.Title))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	if msg.Fault != nil {
		body := msg.Fault.Body
		if msg.Fault.Retryable {
			body += "\n" + m.styles.Muted.Render("Send your question again to retry.")
		}
		b.WriteString(m.styles.ErrorBox.Render(m.styles.Error.Render(msg.Fault.Title) + "\n" + body))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderStep(step loupe.Step) string {
	var label, message string
	var status loupe.StepStatus
	switch s := step.(type) {
	case *loupe.ActivityStep:
		label, message, status = s.Label, s.Message, s.Status
	case *loupe.InternalStep:
		label, message, status = s.Label, s.Message, s.Status
	}

	var glyph string
	switch status {
	case loupe.StatusRunning:
		glyph = m.styles.StepRun.Render(m.spin.View())
	case loupe.StatusComplete:
		glyph = m.styles.StepDone.Render("✓")
	case loupe.StatusError:
		glyph = m.styles.Error.Render("✗")
	}

	line := glyph + " " + label
	if message != "" && message != label {
		line += " " + m.styles.Muted.Render("· "+message)
	}
	return line
}
