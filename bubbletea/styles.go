package bubbletea

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/lens-research/loupe"
)

// Styles maps a Theme to lipgloss styles for TUI rendering.
type Styles struct {
	UserMsg  lipgloss.Style
	StepDone lipgloss.Style
	StepRun  lipgloss.Style
	Error    lipgloss.Style
	Muted    lipgloss.Style
	Source   lipgloss.Style
	Accent   lipgloss.Style
	ErrorBox lipgloss.Style
	Toast    lipgloss.Style
}

// NewStyles creates Styles from a Theme.
func NewStyles(t loupe.Theme) Styles {
	return Styles{
		UserMsg:  lipgloss.NewStyle().Foreground(ansiColor(t.UserMsg)).Bold(true),
		StepDone: lipgloss.NewStyle().Foreground(ansiColor(t.StepDone)),
		StepRun:  lipgloss.NewStyle().Foreground(ansiColor(t.StepRun)),
		Error:    lipgloss.NewStyle().Foreground(ansiColor(t.Error)),
		Muted:    lipgloss.NewStyle().Foreground(ansiColor(t.Muted)).Faint(true),
		Source:   lipgloss.NewStyle().Foreground(ansiColor(t.Source)),
		Accent:   lipgloss.NewStyle().Foreground(ansiColor(t.Accent)).Bold(true),
		ErrorBox: lipgloss.NewStyle().
			Foreground(ansiColor(t.Error)).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ansiColor(t.Error)).
			Padding(0, 1),
		Toast: lipgloss.NewStyle().
			Foreground(ansiColor(t.Error)).
			Bold(true),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}
