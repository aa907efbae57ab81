package loupe

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Conversation is the single mutable store for the live exchange: the
// accumulated answer, transient status text, sources, citations, the
// ordered step timeline, and any pending ingest proposal. All operations
// are atomic; the orchestrator is the only writer, other components read
// snapshots. Steps are append-only and never reordered; the timeline is
// cleared only by Reset.
type Conversation struct {
	mu sync.Mutex

	logger      *zap.Logger
	warnedTools map[string]struct{}

	content    strings.Builder
	statusText string
	sources    []SourceInfo
	citations  *CitationData
	steps      []Step
	proposal   *IngestProposal
	ingesting  bool

	onChange func()
	now      func() time.Time
}

// NewConversation creates an empty Conversation. logger may be nil; it is
// used only for operator diagnostics (e.g. unmapped tool names), never for
// user-facing output.
func NewConversation(logger *zap.Logger) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conversation{
		logger:      logger,
		warnedTools: make(map[string]struct{}),
		now:         time.Now,
	}
}

// OnChange registers a callback invoked after every mutation. Presentation
// layers use it to schedule re-renders; the callback must not call back
// into the Conversation's write operations.
func (c *Conversation) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// SetClock overrides the time source. Intended for tests.
func (c *Conversation) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// ApplyStatus classifies a status event and applies it to the timeline.
// It cannot fail: unrecognized stages degrade to a generic executing step
// so no event is silently lost. The event's message also becomes the
// transient status text.
func (c *Conversation) ApplyStatus(ev StatusEvent) {
	c.mu.Lock()
	defer c.unlockNotify()

	switch Classify(ev) {
	case DispositionSkip:
		return
	case DispositionToolStart:
		tool, _ := ev.Details.ToolName()
		step, known := newActivityStep(c.now(), tool, ev)
		if !known {
			c.warnUnmappedTool(tool)
		}
		c.steps = append(c.steps, step)
	case DispositionToolEnd:
		c.endTool(ev)
	case DispositionRetry:
		it, _ := ev.Details.Iteration()
		c.steps = append(c.steps, newRetryStep(c.now(), it, ev))
	case DispositionStage:
		c.applyStage(ev)
	}
	if ev.Message != "" {
		c.statusText = ev.Message
	}
}

// endTool closes the most recent running activity step whose tool name
// matches. Correlation is by tool name, scanning backward: concurrent runs
// of the same tool resolve most-recent-first. An end with no matching start
// degrades to a standalone completed step.
func (c *Conversation) endTool(ev StatusEvent) {
	tool, _ := ev.Details.ToolName()
	success, _ := ev.Details.Success()
	summary, _ := ev.Details.Summary()
	now := c.now()

	for i := len(c.steps) - 1; i >= 0; i-- {
		step, ok := c.steps[i].(*ActivityStep)
		if !ok || step.Status != StatusRunning || step.ToolName != tool {
			continue
		}
		if success {
			step.Status = StatusComplete
		} else {
			step.Status = StatusError
		}
		step.Message = toolResult(tool, success, summary)
		step.EndedAt = now
		return
	}

	step, known := newActivityStep(now, tool, ev)
	if !known {
		c.warnUnmappedTool(tool)
	}
	step.Status = StatusComplete
	if !success {
		step.Status = StatusError
	}
	step.Message = toolResult(tool, success, summary)
	step.EndedAt = now
	c.steps = append(c.steps, step)
}

// applyStage updates the running internal step of the event's stage in
// place, or appends a new one. At most one internal step per stage is
// running at any time.
func (c *Conversation) applyStage(ev StatusEvent) {
	stage, _ := ParseStage(ev.Stage)
	now := c.now()

	for i := len(c.steps) - 1; i >= 0; i-- {
		step, ok := c.steps[i].(*InternalStep)
		if !ok || step.Status != StatusRunning || step.Stage != stage {
			continue
		}
		step.Message = ev.Message
		for k, v := range ev.Details {
			if step.Details == nil {
				step.Details = make(map[string]any)
			}
			step.Details[k] = v
		}
		if StageCompleted(stage, ev.Message) {
			step.Status = StatusComplete
			step.EndedAt = now
		}
		return
	}

	c.steps = append(c.steps, newInternalStep(now, stage, ev))
}

// StartGenerating appends the singleton answer-generation step. It is a
// no-op while one is already running.
func (c *Conversation) StartGenerating() {
	c.mu.Lock()
	defer c.unlockNotify()
	if c.runningGenerating() != nil {
		return
	}
	c.steps = append(c.steps, newGeneratingStep(c.now()))
}

// FinishGenerating marks the running generation step complete, if any.
func (c *Conversation) FinishGenerating() {
	c.mu.Lock()
	defer c.unlockNotify()
	if step := c.runningGenerating(); step != nil {
		step.Status = StatusComplete
		step.EndedAt = c.now()
	}
}

func (c *Conversation) runningGenerating() *ActivityStep {
	for i := len(c.steps) - 1; i >= 0; i-- {
		if step, ok := c.steps[i].(*ActivityStep); ok &&
			step.Kind == ActivityGenerating && step.Status == StatusRunning {
			return step
		}
	}
	return nil
}

// AppendToken concatenates one answer fragment.
func (c *Conversation) AppendToken(token string) {
	c.mu.Lock()
	defer c.unlockNotify()
	c.content.WriteString(token)
}

// SetSources replaces the retrieved-source list.
func (c *Conversation) SetSources(sources []SourceInfo) {
	c.mu.Lock()
	defer c.unlockNotify()
	c.sources = append([]SourceInfo(nil), sources...)
}

// SetCitations replaces the citation data.
func (c *Conversation) SetCitations(citations CitationData) {
	c.mu.Lock()
	defer c.unlockNotify()
	cc := citations
	c.citations = &cc
}

// AwaitConfirmation stores a pending ingest proposal and appends the
// running confirmation step shown while the exchange is paused.
func (c *Conversation) AwaitConfirmation(p IngestProposal) {
	c.mu.Lock()
	defer c.unlockNotify()
	pp := p
	c.proposal = &pp
	c.steps = append(c.steps, &InternalStep{
		ID:        newStepID(),
		Stage:     StageConfirming,
		Label:     StageLabel(StageConfirming),
		Message:   fmt.Sprintf("Waiting for confirmation to add %d papers", len(p.Papers)),
		Status:    StatusRunning,
		StartedAt: c.now(),
	})
}

// ClearProposal drops the pending proposal, if any.
func (c *Conversation) ClearProposal() {
	c.mu.Lock()
	defer c.unlockNotify()
	c.proposal = nil
}

// BeginIngestion marks the exchange as ingesting and records the step shown
// while an approved bulk ingestion runs.
func (c *Conversation) BeginIngestion(paperCount int) {
	c.mu.Lock()
	defer c.unlockNotify()
	c.ingesting = true
	c.steps = append(c.steps, &InternalStep{
		ID:        newStepID(),
		Stage:     StageIngesting,
		Label:     StageLabel(StageIngesting),
		Message:   fmt.Sprintf("Adding %d papers", paperCount),
		Status:    StatusRunning,
		StartedAt: c.now(),
	})
}

// FinishIngestion clears the ingesting flag and appends the completion
// step for a finished bulk ingestion.
func (c *Conversation) FinishIngestion(papersProcessed, chunksCreated int) {
	c.mu.Lock()
	defer c.unlockNotify()
	c.ingesting = false
	now := c.now()
	for i := len(c.steps) - 1; i >= 0; i-- {
		if step, ok := c.steps[i].(*InternalStep); ok &&
			step.Stage == StageIngesting && step.Status == StatusRunning {
			step.Status = StatusComplete
			step.EndedAt = now
			break
		}
	}
	c.steps = append(c.steps, &InternalStep{
		ID:        newStepID(),
		Stage:     StageIngesting,
		Label:     StageLabel(StageIngesting),
		Message:   fmt.Sprintf("Added %d papers (%d chunks)", papersProcessed, chunksCreated),
		Status:    StatusComplete,
		StartedAt: now,
		EndedAt:   now,
	})
}

// ClearStatusText drops the transient status line.
func (c *Conversation) ClearStatusText() {
	c.mu.Lock()
	defer c.unlockNotify()
	c.statusText = ""
}

// Reset clears every accumulator. Called at the start of each exchange and
// on cancellation cleanup.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.unlockNotify()
	c.content.Reset()
	c.statusText = ""
	c.sources = nil
	c.citations = nil
	c.steps = nil
	c.proposal = nil
	c.ingesting = false
}

// Content returns the accumulated answer text.
func (c *Conversation) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content.String()
}

// StatusText returns the transient status line.
func (c *Conversation) StatusText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusText
}

// Sources returns a copy of the retrieved-source list.
func (c *Conversation) Sources() []SourceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SourceInfo(nil), c.sources...)
}

// Citations returns a copy of the citation data, or nil.
func (c *Conversation) Citations() *CitationData {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.citations == nil {
		return nil
	}
	cc := *c.citations
	return &cc
}

// Steps returns a snapshot of the timeline. The returned steps are clones;
// mutating them does not affect the live state.
func (c *Conversation) Steps() []Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cloneSteps()
}

// Proposal returns a copy of the pending ingest proposal, or nil.
func (c *Conversation) Proposal() *IngestProposal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proposal == nil {
		return nil
	}
	pp := *c.proposal
	return &pp
}

// Ingesting reports whether an approved bulk ingestion is running.
func (c *Conversation) Ingesting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ingesting
}

// FreezeSteps marks every running step complete and returns a snapshot.
// Used when finalizing an exchange: a terminal success event implies all
// recorded work finished.
func (c *Conversation) FreezeSteps() []Step {
	c.mu.Lock()
	defer c.unlockNotify()
	now := c.now()
	for _, s := range c.steps {
		switch step := s.(type) {
		case *ActivityStep:
			if step.Status == StatusRunning {
				step.Status = StatusComplete
				step.EndedAt = now
			}
		case *InternalStep:
			// The confirming step stays running: the exchange is
			// paused, not finished, while a proposal is pending.
			if step.Status == StatusRunning && !(step.Stage == StageConfirming && c.proposal != nil) {
				step.Status = StatusComplete
				step.EndedAt = now
			}
		}
	}
	return c.cloneSteps()
}

func (c *Conversation) cloneSteps() []Step {
	out := make([]Step, len(c.steps))
	for i, s := range c.steps {
		out[i] = CloneStep(s)
	}
	return out
}

// warnUnmappedTool logs once per unmapped tool name. Operator diagnostic
// only; the user sees the humanized fallback label.
func (c *Conversation) warnUnmappedTool(tool string) {
	if _, seen := c.warnedTools[tool]; seen {
		return
	}
	c.warnedTools[tool] = struct{}{}
	c.logger.Warn("unmapped tool name, using humanized label", zap.String("tool", tool))
}

func (c *Conversation) unlockNotify() {
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
