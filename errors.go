package loupe

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request failed validation.
	ErrValidation = errors.New("validation error")

	// ErrExchangeActive indicates a send was attempted while an exchange
	// is already streaming or awaiting confirmation.
	ErrExchangeActive = errors.New("exchange already active")

	// ErrNoProposal indicates a resume was attempted without a pending
	// ingest proposal.
	ErrNoProposal = errors.New("no pending ingest proposal")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrAborted indicates the stream was cancelled intentionally. It is
	// distinct from *StreamError: an abort always maps to the CANCELLED
	// treatment regardless of payload.
	ErrAborted = errors.New("stream aborted")
)

// StreamError is a typed stream failure carrying a backend error code.
// Transport-level failures that carry no code are wrapped with
// CodeInternalError (or CodeConnectionError for network failures) before
// reaching the orchestrator.
type StreamError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("stream error (%s)", e.Code)
	}
	return fmt.Sprintf("stream error (%s): %s", e.Code, e.Message)
}

// WrapStreamError normalizes an arbitrary failure into a *StreamError with
// the given default code. An existing *StreamError passes through unchanged.
func WrapStreamError(err error, defaultCode string) *StreamError {
	var se *StreamError
	if errors.As(err, &se) {
		return se
	}
	return &StreamError{Code: defaultCode, Message: err.Error()}
}
