package loupe

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newStepID returns a fresh unique step identifier.
func newStepID() string { return uuid.NewString() }

// toolEntry maps a wire tool name to its activity kind and label pair.
// active is shown while the tool runs, past when it completes.
type toolEntry struct {
	kind   ActivityKind
	active string
	past   string
}

var toolTable = map[string]toolEntry{
	"retrieve_documents": {ActivityRetrieve, "Searching library", "Searched library"},
	"search_arxiv":       {ActivitySearch, "Searching arXiv", "Searched arXiv"},
	"ingest_papers":      {ActivityIngest, "Adding papers", "Added papers"},
	"list_papers":        {ActivityList, "Listing papers", "Listed papers"},
	"explore_citations":  {ActivityCitations, "Exploring citations", "Explored citations"},
	"propose_papers":     {ActivityProposeIngest, "Proposing papers", "Proposed papers"},
}

// ToolActivity returns the activity kind and running label for a wire tool
// name. Unmapped names fall back to a generic retrieve kind with a
// humanized label; known reports whether the name was mapped.
func ToolActivity(tool string) (kind ActivityKind, label string, known bool) {
	if e, ok := toolTable[tool]; ok {
		return e.kind, e.active, true
	}
	return ActivityRetrieve, humanize(tool), false
}

// toolResult builds the completion message for a finished tool activity.
func toolResult(tool string, success bool, summary string) string {
	verb := humanize(tool)
	if e, ok := toolTable[tool]; ok {
		verb = e.past
	}
	if !success {
		verb += " failed"
	}
	if summary != "" {
		return verb + ": " + summary
	}
	return verb
}

// humanize turns a raw tool identifier into display text, e.g.
// "retrieve_documents" into "Retrieve documents".
func humanize(tool string) string {
	s := strings.ReplaceAll(strings.TrimSpace(tool), "_", " ")
	if s == "" {
		return "Working"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// stageLabels maps pipeline stages to timeline labels.
var stageLabels = map[Stage]string{
	StageGuardrail:  "Checking scope",
	StageRouting:    "Routing",
	StageExecuting:  "Working",
	StageGrading:    "Grading results",
	StageGeneration: "Writing answer",
	StageOutOfScope: "Out of scope",
	StageConfirming: "Waiting for confirmation",
	StageIngesting:  "Adding papers",
}

// StageLabel returns the timeline label for a pipeline stage.
func StageLabel(stage Stage) string {
	if l, ok := stageLabels[stage]; ok {
		return l
	}
	return humanize(string(stage))
}

// newActivityStep constructs a running activity step from a tool-start
// event. known is false when the tool name had no table entry.
func newActivityStep(now time.Time, tool string, ev StatusEvent) (*ActivityStep, bool) {
	kind, label, known := ToolActivity(tool)
	return &ActivityStep{
		ID:        newStepID(),
		Kind:      kind,
		ToolName:  tool,
		Label:     label,
		Message:   ev.Message,
		Details:   cloneDetails(map[string]any(ev.Details)),
		Status:    StatusRunning,
		StartedAt: now,
	}, known
}

// newInternalStep constructs an internal step from a stage event. The step
// is pre-marked complete when the completion predicate already matches.
func newInternalStep(now time.Time, stage Stage, ev StatusEvent) *InternalStep {
	s := &InternalStep{
		ID:        newStepID(),
		Stage:     stage,
		Label:     StageLabel(stage),
		Message:   ev.Message,
		Details:   cloneDetails(map[string]any(ev.Details)),
		Status:    StatusRunning,
		StartedAt: now,
	}
	if StageCompleted(stage, ev.Message) {
		s.Status = StatusComplete
		s.EndedAt = now
	}
	return s
}

// newRetryStep constructs the standalone, immediately-complete step that
// represents one pass of a refinement loop.
func newRetryStep(now time.Time, iteration int, ev StatusEvent) *ActivityStep {
	msg := ev.Message
	if msg == "" {
		msg = fmt.Sprintf("Refining search (attempt %d)", iteration)
	}
	return &ActivityStep{
		ID:        newStepID(),
		Kind:      ActivityRefining,
		ToolName:  "refine",
		Label:     "Refining search",
		Message:   msg,
		Details:   cloneDetails(map[string]any(ev.Details)),
		Status:    StatusComplete,
		StartedAt: now,
		EndedAt:   now,
	}
}

// newGeneratingStep constructs the singleton answer-generation step.
func newGeneratingStep(now time.Time) *ActivityStep {
	return &ActivityStep{
		ID:        newStepID(),
		Kind:      ActivityGenerating,
		ToolName:  "generate",
		Label:     "Writing answer",
		Status:    StatusRunning,
		StartedAt: now,
	}
}
