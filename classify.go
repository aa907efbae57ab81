package loupe

import "strings"

// Disposition is the classifier's verdict on one status event.
type Disposition int

const (
	// DispositionStage updates or appends an internal pipeline step.
	DispositionStage Disposition = iota
	// DispositionToolStart opens a new tool activity step.
	DispositionToolStart
	// DispositionToolEnd closes the most recent running activity step
	// with a matching tool name.
	DispositionToolEnd
	// DispositionRetry appends a standalone, immediately-complete
	// refinement step.
	DispositionRetry
	// DispositionSkip drops executing-stage chatter that duplicates
	// information already carried by tool start/end events.
	DispositionSkip
)

// Classify decides the disposition of one status event.
//
// Rules, in order of precedence:
//   - details.iteration > 1 marks a refinement loop, independent of stage.
//   - stage "executing" with details.tool_name is a tool signal: an absent
//     details.success means start, a present one means end.
//   - stage "executing" without a tool name is chatter when the message is
//     generic start/executed narration, otherwise a stage update.
//   - everything else is a stage update. Unknown stage names degrade to a
//     generic executing step in ParseStage; no event is dropped for being
//     malformed.
func Classify(ev StatusEvent) Disposition {
	if it, ok := ev.Details.Iteration(); ok && it > 1 {
		return DispositionRetry
	}
	if ev.Stage == string(StageExecuting) {
		if _, ok := ev.Details.ToolName(); ok {
			if _, ok := ev.Details.Success(); ok {
				return DispositionToolEnd
			}
			return DispositionToolStart
		}
		if isExecutingChatter(ev.Message) {
			return DispositionSkip
		}
	}
	return DispositionStage
}

// executingChatter lists executing-stage message texts (lowercased) that
// merely announce what the tool start/end events already carry.
var executingChatter = []string{
	"start",
	"started",
	"executed",
	"executing tools",
	"tool execution started",
	"tool execution complete",
}

func isExecutingChatter(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	for _, c := range executingChatter {
		if m == c {
			return true
		}
	}
	return false
}

// stageCompletion holds the per-stage predicates that decide whether a
// status message is the terminal update for its stage. The backend sends no
// explicit completion flag for internal stages, so completion is inferred
// from message text. These are configuration, not control flow: adjust them
// when backend messages evolve.
var stageCompletion = map[Stage]func(string) bool{
	StageGuardrail:  messagePrefix("Query is"),
	StageRouting:    messagePrefix("Routing to"),
	StageGrading:    messagePrefix("Graded"),
	StageGeneration: messageExact("complete"),
	StageOutOfScope: func(string) bool { return true },
	StageIngesting:  messagePrefix("Ingestion complete"),
}

// StageCompleted reports whether a status message is the terminal update
// for the given stage. Stages with no predicate (executing, confirming)
// never complete through message text; they are closed by tool events,
// resume, or exchange finalization.
func StageCompleted(stage Stage, message string) bool {
	done, ok := stageCompletion[stage]
	return ok && done(message)
}

func messagePrefix(prefix string) func(string) bool {
	return func(m string) bool { return strings.HasPrefix(m, prefix) }
}

func messageExact(want string) func(string) bool {
	return func(m string) bool { return m == want }
}
