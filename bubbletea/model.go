package bubbletea

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lens-research/loupe"
	"github.com/lens-research/loupe/exchange"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the loupe TUI.
type Model struct {
	// Input is the query input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable conversation area. Exported for test access.
	Viewport viewport.Model

	ctrl   Controller
	conv   *loupe.Conversation
	cache  *loupe.MessageCache
	theme  loupe.Theme
	styles Styles
	spin   spinner.Model

	refreshCh chan struct{}
	toastCh   chan loupe.Treatment
	doneCh    chan error

	running bool
	toast   string
	width   int
	ready   bool
}

// New creates a TUI Model. It registers itself as the conversation's
// change listener, so it must be the only OnChange subscriber.
func New(ctrl Controller, conv *loupe.Conversation, cache *loupe.MessageCache, theme loupe.Theme) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about papers..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	refreshCh := make(chan struct{}, 1)
	conv.OnChange(func() {
		select {
		case refreshCh <- struct{}{}:
		default: // a refresh is already pending
		}
	})

	return Model{
		Input:     ti,
		ctrl:      ctrl,
		conv:      conv,
		cache:     cache,
		theme:     theme,
		styles:    NewStyles(theme),
		spin:      spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		refreshCh: refreshCh,
		toastCh:   make(chan loupe.Treatment, 4),
		doneCh:    make(chan error, 1),
	}
}

// PushToast delivers a toast-mode error treatment to the running program.
// Wire it as the orchestrator's toast handler.
func (m Model) PushToast(t loupe.Treatment) {
	select {
	case m.toastCh <- t:
	default:
	}
}

// Running returns whether an exchange is in flight.
func (m Model) Running() bool { return m.running }

type clearToastMsg struct{}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spin.Tick,
		listenRefresh(m.refreshCh),
		listenToast(m.toastCh),
	)
}

func listenRefresh(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return RefreshMsg{}
	}
}

func listenToast(ch chan loupe.Treatment) tea.Cmd {
	return func() tea.Msg {
		return ToastMsg{Treatment: <-ch}
	}
}

func waitDone(ch chan error) tea.Cmd {
	return func() tea.Msg {
		return ExchangeDoneMsg{Err: <-ch}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		inputHeight := 3
		if !m.ready {
			m.Viewport = viewport.New(msg.Width, msg.Height-inputHeight)
			m.ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = msg.Height - inputHeight
		}
		m.Input.Width = msg.Width - 2
		m.Viewport.SetContent(m.renderContent())
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case RefreshMsg:
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		return m, listenRefresh(m.refreshCh)

	case ExchangeDoneMsg:
		m.running = false
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		cmds = append(cmds, m.Input.Focus())
		return m, tea.Batch(cmds...)

	case ToastMsg:
		m.toast = msg.Treatment.Title
		if msg.Treatment.Body != "" {
			m.toast += ": " + msg.Treatment.Body
		}
		return m, tea.Batch(
			listenToast(m.toastCh),
			tea.Tick(4*time.Second, func(time.Time) tea.Msg { return clearToastMsg{} }),
		)

	case clearToastMsg:
		m.toast = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.running {
			m.Viewport.SetContent(m.renderContent())
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.running {
			m.ctrl.Cancel()
			return m, nil
		}
		return m, tea.Quit

	case "esc":
		if m.running {
			m.ctrl.Cancel()
		}
		return m, nil

	case "y", "n":
		// Only a bare keystroke answers a pending proposal; once the user
		// has started typing, y and n are ordinary input.
		if !m.running && m.Input.Value() == "" && m.ctrl.Phase() == exchange.PhaseAwaitingConfirmation {
			return m.startResume(msg.String() == "y")
		}

	case "enter":
		query := m.Input.Value()
		if m.running || query == "" || m.ctrl.Phase() != exchange.PhaseIdle {
			break
		}
		m.Input.SetValue("")
		return m.startExchange(func(ctx context.Context) error {
			return m.ctrl.Send(ctx, query)
		})
	}

	var cmd tea.Cmd
	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
	}
	return m, cmd
}

func (m Model) startResume(approved bool) (tea.Model, tea.Cmd) {
	var ids []string
	if approved {
		if p := m.ctrl.Proposal(); p != nil {
			for _, paper := range p.Papers {
				ids = append(ids, paper.ID)
			}
		}
	}
	return m.startExchange(func(ctx context.Context) error {
		return m.ctrl.Resume(ctx, approved, ids)
	})
}

func (m Model) startExchange(run func(context.Context) error) (tea.Model, tea.Cmd) {
	m.running = true
	m.Input.Blur()
	ch := m.doneCh
	go func() {
		ch <- run(context.Background())
	}()
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	return m, tea.Batch(waitDone(ch), m.spin.Tick)
}
