package loupe

import (
	"errors"
	"fmt"
	"time"
)

// Backend error codes. Unrecognized codes are treated as CodeInternalError.
const (
	CodeUsageLimitExceeded = "USAGE_LIMIT_EXCEEDED"
	CodeTimeout            = "TIMEOUT"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeCheckpointExpired  = "CHECKPOINT_EXPIRED"
	CodeDoubleConfirm      = "DOUBLE_CONFIRM"
	CodeForbidden          = "FORBIDDEN"
	CodeConnectionError    = "CONNECTION_ERROR"
	CodeCancelled          = "CANCELLED"
)

// Display selects how an error treatment is surfaced to the user.
type Display int

const (
	DisplayInline Display = iota // error bubble on the assistant message
	DisplayToast                 // transient notification, no message trace
	DisplayNone                  // silent: the placeholder is removed
)

// Treatment is the fixed presentation policy for one error code. Exactly one
// treatment applies per erred exchange.
type Treatment struct {
	Code           string
	Title          string
	Body           string
	Display        Display
	Retryable      bool
	ClearsProposal bool
}

// TreatmentFor maps an error code and optional server-supplied message to
// its fixed treatment. now is used to compute the usage-limit reset
// countdown.
func TreatmentFor(code, serverMessage string, now time.Time) Treatment {
	switch code {
	case CodeUsageLimitExceeded:
		return Treatment{
			Code:    code,
			Title:   "Usage limit reached",
			Body:    fmt.Sprintf("You've hit the daily usage limit. Limits reset in %s.", untilReset(now)),
			Display: DisplayInline,
		}
	case CodeTimeout:
		return Treatment{
			Code:      code,
			Title:     "Request timed out",
			Body:      "The assistant took too long to respond. Try again.",
			Display:   DisplayInline,
			Retryable: true,
		}
	case CodeCheckpointExpired:
		return Treatment{
			Code:           code,
			Title:          "Confirmation expired",
			Body:           "This confirmation is no longer valid. Send your request again.",
			Display:        DisplayInline,
			ClearsProposal: true,
		}
	case CodeDoubleConfirm:
		return Treatment{
			Code:           code,
			Title:          "Already confirmed",
			Body:           serverMessage,
			Display:        DisplayInline,
			ClearsProposal: true,
		}
	case CodeForbidden:
		return Treatment{
			Code:    code,
			Title:   "Not available",
			Body:    serverMessage,
			Display: DisplayToast,
		}
	case CodeConnectionError:
		return Treatment{
			Code:    code,
			Title:   "Connection problem",
			Body:    "Could not reach the assistant. Check your connection and try again.",
			Display: DisplayToast,
		}
	case CodeCancelled:
		return Treatment{Code: code, Display: DisplayNone}
	default:
		return Treatment{
			Code:      CodeInternalError,
			Title:     "Something went wrong",
			Body:      "The assistant ran into an unexpected problem. Try again.",
			Display:   DisplayInline,
			Retryable: true,
		}
	}
}

// TreatmentOf maps a stream failure to its treatment. An ErrAborted wrap
// always yields the CANCELLED treatment; other errors are normalized to
// *StreamError first.
func TreatmentOf(err error, now time.Time) Treatment {
	if errors.Is(err, ErrAborted) {
		return TreatmentFor(CodeCancelled, "", now)
	}
	se := WrapStreamError(err, CodeInternalError)
	return TreatmentFor(se.Code, se.Message, now)
}

// untilReset formats the time remaining until the next daily limit reset
// (midnight UTC).
func untilReset(now time.Time) string {
	next := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	d := next.Sub(now.UTC()).Round(time.Minute)
	if d < time.Minute {
		d = time.Minute
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
