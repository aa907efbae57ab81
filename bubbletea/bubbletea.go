// Package bubbletea provides a Bubble Tea TUI for the loupe client: the
// message list, the live reasoning timeline, the ingest confirmation
// prompt, and toast/inline error display.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lens-research/loupe"
	"github.com/lens-research/loupe/exchange"
)

// Controller is the slice of the orchestrator the TUI drives.
// *exchange.Orchestrator satisfies it.
type Controller interface {
	Send(ctx context.Context, query string) error
	Resume(ctx context.Context, approved bool, selectedIDs []string) error
	Cancel()
	Phase() exchange.Phase
	ConversationID() string
	Proposal() *loupe.IngestProposal
}

// Interface compliance check.
var _ Controller = (*exchange.Orchestrator)(nil)

// Run creates and runs the Bubble Tea program. It blocks until the program
// exits. When the context is cancelled the program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// RefreshMsg signals that conversation state changed and the view should
// re-render from the latest snapshot.
type RefreshMsg struct{}

// ExchangeDoneMsg signals that a Send or Resume call returned.
type ExchangeDoneMsg struct {
	Err error
}

// ToastMsg carries a toast-mode error treatment for transient display.
type ToastMsg struct {
	Treatment loupe.Treatment
}
