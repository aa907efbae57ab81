package exchange

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lens-research/loupe"
)

// Orchestrator drives one conversation's exchanges against a Transport.
// It is the single writer of its Conversation; presentation layers read
// snapshots and subscribe to change notifications. At most one exchange is
// streaming or awaiting confirmation at a time.
type Orchestrator struct {
	transport loupe.Transport
	state     *loupe.Conversation
	cache     *loupe.MessageCache
	logger    *zap.Logger

	onToast           func(loupe.Treatment)
	onSessionAssigned func(sessionID string)
	overrides         Overrides
	now               func() time.Time

	mu             sync.Mutex
	phase          Phase
	conversationID string
	sessionID      string
	placeholderID  string
	proposal       *loupe.IngestProposal
	proposalMsgID  string
	cancel         context.CancelFunc
}

// Overrides carries non-default sampling/routing parameters included in
// every outbound request.
type Overrides struct {
	Provider             string
	Model                string
	Temperature          *float64
	TopK                 int
	GuardrailThreshold   *float64
	MaxRetrievalAttempts int
	ConversationWindow   int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the operator logger. Defaults to a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithSessionID resumes an existing backend session.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		o.sessionID = id
		o.conversationID = id
	}
}

// WithToastHandler sets the callback for toast-mode error treatments.
func WithToastHandler(fn func(loupe.Treatment)) Option {
	return func(o *Orchestrator) { o.onToast = fn }
}

// WithSessionAssignedHandler sets the callback invoked when the backend
// assigns a session id to a conversation started without one. Navigation
// layers use it to move to the conversation's canonical address.
func WithSessionAssignedHandler(fn func(sessionID string)) Option {
	return func(o *Orchestrator) { o.onSessionAssigned = fn }
}

// WithOverrides sets sampling/routing overrides for outbound requests.
func WithOverrides(ov Overrides) Option {
	return func(o *Orchestrator) { o.overrides = ov }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator for one conversation.
func New(transport loupe.Transport, state *loupe.Conversation, cache *loupe.MessageCache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport:      transport,
		state:          state,
		cache:          cache,
		logger:         zap.NewNop(),
		now:            time.Now,
		conversationID: uuid.NewString(), // provisional until the backend assigns a session id
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the current exchange phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// ConversationID returns the cache key for this conversation's messages.
func (o *Orchestrator) ConversationID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversationID
}

// Proposal returns the pending ingest proposal, or nil.
func (o *Orchestrator) Proposal() *loupe.IngestProposal {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.proposal == nil {
		return nil
	}
	p := *o.proposal
	return &p
}

// Send runs one exchange for a user query. It blocks until the exchange
// reaches a terminal outcome or pauses for confirmation; callers run it in
// a goroutine. A Send while an exchange is active returns
// ErrExchangeActive. Intentional cancellation is not an error: Send
// returns nil and the placeholder is removed silently.
func (o *Orchestrator) Send(ctx context.Context, query string) error {
	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return fmt.Errorf("send %q: %w", query, loupe.ErrExchangeActive)
	}

	o.state.Reset()
	now := o.now()
	o.cache.Append(o.conversationID, loupe.Message{
		ID:        uuid.NewString(),
		Role:      loupe.RoleUser,
		Content:   query,
		CreatedAt: now,
	})
	placeholder := loupe.Message{
		ID:          uuid.NewString(),
		Role:        loupe.RoleAssistant,
		IsStreaming: true,
		CreatedAt:   now,
	}
	o.cache.Append(o.conversationID, placeholder)
	o.placeholderID = placeholder.ID

	req := o.buildRequest()
	req.Query = query

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.phase = PhaseStreaming
	o.mu.Unlock()

	return o.run(ctx, req)
}

// Resume answers the pending ingest proposal and continues the paused
// exchange. The resume request reuses the proposal's session and thread
// identifiers regardless of the decision. On acceptance by the backend the
// message holding the proposal is marked resolved (and declined when
// approved is false) and the proposal is cleared.
func (o *Orchestrator) Resume(ctx context.Context, approved bool, selectedIDs []string) error {
	o.mu.Lock()
	if o.proposal == nil || o.phase != PhaseAwaitingConfirmation {
		o.mu.Unlock()
		return loupe.ErrNoProposal
	}
	proposal := *o.proposal

	o.state.Reset()
	placeholder := loupe.Message{
		ID:          uuid.NewString(),
		Role:        loupe.RoleAssistant,
		IsStreaming: true,
		CreatedAt:   o.now(),
	}
	o.cache.Append(o.conversationID, placeholder)
	o.placeholderID = placeholder.ID

	if approved {
		o.state.BeginIngestion(len(proposal.Papers))
	}

	req := o.buildRequest()
	req.Resume = &loupe.Resume{
		SessionID:   proposal.SessionID,
		ThreadID:    proposal.ThreadID,
		Approved:    approved,
		SelectedIDs: selectedIDs,
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.phase = PhaseStreaming

	// The checkpoint is consumed the moment the resume request is issued;
	// record the decision on the message that carried the proposal.
	if o.proposalMsgID != "" {
		msgID := o.proposalMsgID
		o.cache.Update(o.conversationID, msgID, func(m *loupe.Message) {
			m.ProposalResolved = true
			m.ProposalDeclined = !approved
		})
	}
	o.proposal = nil
	o.proposalMsgID = ""
	o.state.ClearProposal()
	o.mu.Unlock()

	return o.run(ctx, req)
}

// Cancel signals the in-flight exchange to stop. The transport observes the
// cancellation between reads and the exchange ends with silent placeholder
// removal. Safe to call at any time, including concurrently with a
// just-arriving terminal event; whichever cleanup runs first wins and the
// other is a no-op.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Retry removes an errored assistant message and sends the query again.
func (o *Orchestrator) Retry(ctx context.Context, query, erroredMessageID string) error {
	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return fmt.Errorf("retry %q: %w", query, loupe.ErrExchangeActive)
	}
	o.cache.Remove(o.conversationID, erroredMessageID)
	o.mu.Unlock()
	return o.Send(ctx, query)
}

// buildRequest assembles the outbound request from session identity and
// overrides. Callers hold o.mu.
func (o *Orchestrator) buildRequest() loupe.Request {
	return loupe.Request{
		SessionID:            o.sessionID,
		Provider:             o.overrides.Provider,
		Model:                o.overrides.Model,
		Temperature:          o.overrides.Temperature,
		TopK:                 o.overrides.TopK,
		GuardrailThreshold:   o.overrides.GuardrailThreshold,
		MaxRetrievalAttempts: o.overrides.MaxRetrievalAttempts,
		ConversationWindow:   o.overrides.ConversationWindow,
	}
}

// run opens the stream and drains it, applying events in arrival order.
func (o *Orchestrator) run(ctx context.Context, req loupe.Request) error {
	stream, err := o.transport.Open(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("open: %w", loupe.ErrAborted)
		}
		return o.fail(err)
	}
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return o.fail(err)
		}
		o.apply(ev)
	}

	o.mu.Lock()
	phase := o.phase
	placeholderID := o.placeholderID
	o.mu.Unlock()

	if phase == PhaseStreaming && placeholderID != "" {
		// The stream closed cleanly but no terminal event arrived.
		return o.fail(&loupe.StreamError{
			Code:    loupe.CodeInternalError,
			Message: "stream ended without a terminal event",
		})
	}
	if phase == PhaseAwaitingConfirmation && placeholderID != "" {
		o.settleAwaiting(placeholderID)
	}
	return nil
}

// settleAwaiting closes out the placeholder when the stream ends on a
// pending confirmation without a metadata event. The message keeps its
// accumulated content, steps, and proposal; the proposal stays pending on
// the orchestrator for Resume.
func (o *Orchestrator) settleAwaiting(placeholderID string) {
	steps := o.state.Steps()
	content := o.state.Content()
	sources := o.state.Sources()
	citations := o.state.Citations()
	proposal := o.state.Proposal()
	o.cache.Update(o.conversationID, placeholderID, func(m *loupe.Message) {
		m.IsStreaming = false
		m.Content = content
		m.Steps = steps
		m.Sources = sources
		m.Citations = citations
		m.Proposal = proposal
	})

	o.mu.Lock()
	o.placeholderID = ""
	o.proposalMsgID = placeholderID
	o.cancel = nil
	o.mu.Unlock()

	o.state.Reset()
}

// apply dispatches one event. Late events after finalization or cleanup are
// no-ops: the placeholder id is the liveness check.
func (o *Orchestrator) apply(ev loupe.Event) {
	o.mu.Lock()
	if o.placeholderID == "" {
		o.mu.Unlock()
		return
	}
	placeholderID := o.placeholderID
	o.mu.Unlock()

	switch ev := ev.(type) {
	case loupe.StatusEvent:
		o.state.ApplyStatus(ev)
		o.mirror(placeholderID)
	case loupe.ContentEvent:
		o.state.StartGenerating()
		o.state.AppendToken(ev.Token)
		o.mirror(placeholderID)
	case loupe.SourcesEvent:
		o.state.SetSources(ev.Sources)
		o.mirror(placeholderID)
	case loupe.CitationsEvent:
		o.state.SetCitations(ev.Citations)
		o.mirror(placeholderID)
	case loupe.ConfirmIngestEvent:
		o.state.AwaitConfirmation(ev.Proposal)
		o.mu.Lock()
		p := ev.Proposal
		o.proposal = &p
		o.phase = PhaseAwaitingConfirmation
		o.mu.Unlock()
		o.mirror(placeholderID)
	case loupe.IngestCompleteEvent:
		o.state.FinishIngestion(ev.PapersProcessed, ev.ChunksCreated)
		o.mirror(placeholderID)
	case loupe.MetadataEvent:
		o.finalize(ev.Metadata)
	case loupe.DoneEvent:
		o.state.ClearStatusText()
	}
}

// mirror copies the live accumulators into the placeholder message so both
// render through the message list.
func (o *Orchestrator) mirror(placeholderID string) {
	content := o.state.Content()
	steps := o.state.Steps()
	sources := o.state.Sources()
	citations := o.state.Citations()
	proposal := o.state.Proposal()
	o.cache.Update(o.conversationID, placeholderID, func(m *loupe.Message) {
		m.Content = content
		m.Steps = steps
		m.Sources = sources
		m.Citations = citations
		m.Proposal = proposal
	})
}

// finalize freezes the exchange into an immutable assistant message. When a
// proposal is still pending the orchestrator stays in
// PhaseAwaitingConfirmation; otherwise it returns to idle.
func (o *Orchestrator) finalize(md loupe.Metadata) {
	o.mu.Lock()
	placeholderID := o.placeholderID
	if placeholderID == "" {
		o.mu.Unlock()
		return
	}
	o.placeholderID = ""
	o.mu.Unlock()

	o.state.FinishGenerating()
	steps := o.state.FreezeSteps()
	proposal := o.state.Proposal()
	final := loupe.Message{
		ID:        placeholderID,
		Role:      loupe.RoleAssistant,
		Content:   o.state.Content(),
		Sources:   o.state.Sources(),
		Citations: o.state.Citations(),
		Metadata:  &md,
		Steps:     steps,
		Proposal:  proposal,
		CreatedAt: o.now(),
	}
	o.cache.Splice(o.conversationID, placeholderID, final)

	o.mu.Lock()
	if o.sessionID == "" && md.SessionID != "" {
		o.cache.Rekey(o.conversationID, md.SessionID)
		o.conversationID = md.SessionID
		o.sessionID = md.SessionID
		if fn := o.onSessionAssigned; fn != nil {
			defer fn(md.SessionID)
		}
	}
	if proposal != nil {
		o.proposalMsgID = final.ID
		o.phase = PhaseAwaitingConfirmation
	} else {
		o.phase = PhaseIdle
	}
	o.cancel = nil
	o.mu.Unlock()

	o.state.Reset()
	o.logger.Debug("exchange finalized",
		zap.String("session_id", md.SessionID),
		zap.Int("turn", md.TurnNumber),
		zap.Int64("execution_ms", md.ExecutionTimeMS))
}

// fail applies exactly one error treatment to the erred exchange: inline
// bubble, toast, or silent removal. Cleanup after a finalize that won the
// race is a no-op. Conversation state is always reset afterward.
func (o *Orchestrator) fail(err error) error {
	o.mu.Lock()
	placeholderID := o.placeholderID
	if placeholderID == "" {
		o.mu.Unlock()
		return nil
	}
	o.placeholderID = ""
	treatment := loupe.TreatmentOf(err, o.now())

	switch treatment.Display {
	case loupe.DisplayNone:
		o.cache.Remove(o.conversationID, placeholderID)
	case loupe.DisplayToast:
		o.cache.Remove(o.conversationID, placeholderID)
		if fn := o.onToast; fn != nil {
			defer fn(treatment)
		}
	case loupe.DisplayInline:
		t := treatment
		content := o.state.Content()
		steps := o.state.Steps()
		o.cache.Update(o.conversationID, placeholderID, func(m *loupe.Message) {
			m.IsStreaming = false
			m.Content = content
			m.Steps = failSteps(steps)
			m.Fault = &t
		})
	}

	if treatment.ClearsProposal {
		o.proposal = nil
		o.proposalMsgID = ""
	}
	if o.proposal != nil && treatment.Display == loupe.DisplayInline {
		// The proposal survives the error; its message stays in the
		// cache, so the exchange remains answerable.
		o.proposalMsgID = placeholderID
		o.phase = PhaseAwaitingConfirmation
	} else {
		o.proposal = nil
		o.proposalMsgID = ""
		o.phase = PhaseIdle
	}
	o.cancel = nil
	o.mu.Unlock()

	o.state.Reset()

	if treatment.Display == loupe.DisplayNone {
		o.logger.Debug("exchange cancelled")
		return nil
	}
	o.logger.Warn("exchange failed",
		zap.String("code", treatment.Code),
		zap.Error(err))
	return err
}

// failSteps marks still-running steps as errored for the inline error view.
func failSteps(steps []loupe.Step) []loupe.Step {
	for _, s := range steps {
		switch step := s.(type) {
		case *loupe.ActivityStep:
			if step.Status == loupe.StatusRunning {
				step.Status = loupe.StatusError
			}
		case *loupe.InternalStep:
			if step.Status == loupe.StatusRunning {
				step.Status = loupe.StatusError
			}
		}
	}
	return steps
}
