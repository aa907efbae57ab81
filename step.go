package loupe

import "time"

// StepStatus indicates the lifecycle state of a thinking step.
type StepStatus string

const (
	StatusRunning  StepStatus = "running"
	StatusComplete StepStatus = "complete"
	StatusError    StepStatus = "error"
)

// ActivityKind identifies a tool activity shown in the reasoning timeline.
type ActivityKind string

const (
	ActivityRetrieve      ActivityKind = "retrieve"
	ActivitySearch        ActivityKind = "external-search"
	ActivityIngest        ActivityKind = "ingest"
	ActivityList          ActivityKind = "list"
	ActivityCitations     ActivityKind = "explore-citations"
	ActivityProposeIngest ActivityKind = "propose-ingest"
	ActivityGenerating    ActivityKind = "generating"
	ActivityRefining      ActivityKind = "refining"
)

// Stage identifies an internal pipeline stage reported by the backend.
type Stage string

const (
	StageGuardrail  Stage = "guardrail"
	StageRouting    Stage = "routing"
	StageExecuting  Stage = "executing"
	StageGrading    Stage = "grading"
	StageGeneration Stage = "generation"
	StageOutOfScope Stage = "out_of_scope"
	StageConfirming Stage = "confirming"
	StageIngesting  Stage = "ingesting"
)

// ParseStage maps a wire stage name to a Stage. Unrecognized names map to
// StageExecuting so no event is lost; ok reports whether the name was known.
func ParseStage(name string) (Stage, bool) {
	switch s := Stage(name); s {
	case StageGuardrail, StageRouting, StageExecuting, StageGrading,
		StageGeneration, StageOutOfScope, StageConfirming, StageIngesting:
		return s, true
	}
	return StageExecuting, false
}

// Step is a sealed interface representing one entry in the reasoning
// timeline. It is a tagged union with exactly two variants: ActivityStep for
// tool invocations and InternalStep for pipeline stages. Consumers dispatch
// with a type switch and must handle both variants.
// The unexported marker method prevents external implementations.
type Step interface {
	step()
	// Internal reports whether the step is a pipeline stage rather than a
	// tool activity.
	Internal() bool
}

// ActivityStep records one tool invocation.
type ActivityStep struct {
	ID        string
	Kind      ActivityKind
	ToolName  string
	Label     string
	Message   string
	Details   map[string]any
	Status    StepStatus
	StartedAt time.Time
	EndedAt   time.Time // zero until the step reaches a terminal status
}

func (*ActivityStep) step() {}

// Internal returns false.
func (*ActivityStep) Internal() bool { return false }

// InternalStep records one pipeline stage update.
type InternalStep struct {
	ID        string
	Stage     Stage
	Label     string
	Message   string
	Details   map[string]any
	Status    StepStatus
	StartedAt time.Time
	EndedAt   time.Time
}

func (*InternalStep) step() {}

// Internal returns true.
func (*InternalStep) Internal() bool { return true }

// CloneStep returns a deep-enough copy of a step for handing to readers.
// Details maps are copied; steps are otherwise value types.
func CloneStep(s Step) Step {
	switch v := s.(type) {
	case *ActivityStep:
		c := *v
		c.Details = cloneDetails(v.Details)
		return &c
	case *InternalStep:
		c := *v
		c.Details = cloneDetails(v.Details)
		return &c
	default:
		return s
	}
}

func cloneDetails(d map[string]any) map[string]any {
	if d == nil {
		return nil
	}
	c := make(map[string]any, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// Interface compliance checks.
var (
	_ Step = (*ActivityStep)(nil)
	_ Step = (*InternalStep)(nil)
)
