// Package exchange sequences one exchange end-to-end: it opens the event
// stream for a request, applies events to the conversation state and the
// message cache in arrival order, and finalizes, errs, or pauses the
// exchange. It owns the placeholder-message lifecycle and the
// cancel/resume/retry operations.
package exchange

// Phase is the orchestrator's exchange state.
type Phase int

const (
	// PhaseIdle means no exchange is in flight.
	PhaseIdle Phase = iota
	// PhaseStreaming means a stream is open and events are being applied.
	PhaseStreaming
	// PhaseAwaitingConfirmation means the exchange is paused on a pending
	// ingest proposal until Resume is called.
	PhaseAwaitingConfirmation
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStreaming:
		return "streaming"
	case PhaseAwaitingConfirmation:
		return "awaiting-confirmation"
	default:
		return "unknown"
	}
}
