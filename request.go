package loupe

import (
	"context"
	"fmt"
)

// Request starts a new exchange or resumes one paused for confirmation.
// The query form and the resume form are mutually exclusive. Zero/nil
// tuning fields mean the backend uses its documented defaults and the
// transport omits them from the wire request.
type Request struct {
	Query     string
	SessionID string // empty for a brand-new conversation

	// Sampling/routing overrides, only sent when non-default.
	Provider             string
	Model                string
	Temperature          *float64
	TopK                 int
	GuardrailThreshold   *float64
	MaxRetrievalAttempts int
	ConversationWindow   int

	// Resume, when set, answers a pending ingest proposal instead of
	// asking a new query.
	Resume *Resume
}

// Resume answers a pending ingest proposal. SessionID and ThreadID must
// match the stored proposal so the backend can locate its checkpoint.
type Resume struct {
	SessionID   string
	ThreadID    string
	Approved    bool
	SelectedIDs []string
}

// Validate checks universal constraints on Request.
func (r Request) Validate() error {
	if r.Resume != nil {
		if r.Query != "" {
			return fmt.Errorf("query and resume are mutually exclusive: %w", ErrValidation)
		}
		if r.Resume.SessionID == "" || r.Resume.ThreadID == "" {
			return fmt.Errorf("resume requires session_id and thread_id: %w", ErrValidation)
		}
	} else if r.Query == "" {
		return fmt.Errorf("query must not be empty: %w", ErrValidation)
	}
	if r.Temperature != nil {
		if *r.Temperature < 0 || *r.Temperature > 2 {
			return fmt.Errorf("temperature must be in [0, 2], got %g: %w", *r.Temperature, ErrValidation)
		}
	}
	if r.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative, got %d: %w", r.TopK, ErrValidation)
	}
	if r.MaxRetrievalAttempts < 0 {
		return fmt.Errorf("max_retrieval_attempts must be non-negative, got %d: %w", r.MaxRetrievalAttempts, ErrValidation)
	}
	if r.ConversationWindow < 0 {
		return fmt.Errorf("conversation_window must be non-negative, got %d: %w", r.ConversationWindow, ErrValidation)
	}
	return nil
}

// Transport opens the event stream for a request. Implementations invoke no
// callbacks; the returned Stream is drained by the caller, which preserves
// strict arrival order.
type Transport interface {
	Open(ctx context.Context, req Request) (Stream, error)
}

// Stream is a pull-based iterator over the exchange's events. Next returns
// io.EOF after the stream's final event. Cancellation flows through the
// context passed to Transport.Open: once observed, Next returns an error
// wrapping ErrAborted. Protocol and backend failures surface as
// *StreamError.
type Stream interface {
	Next() (Event, error)
	Close() error
}
