package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lens-research/loupe"
)

// stream implements [loupe.Stream] by parsing server-sent events from an
// HTTP response body.
type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	ctx     context.Context
	done    bool  // the done marker was seen; next read returns EOF
	closed  bool  // Close was called before the terminal state
	err     error // terminal error, if any
}

// Interface compliance check.
var _ loupe.Stream = (*stream)(nil)

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	return &stream{
		body:    body,
		scanner: bufio.NewScanner(body),
		ctx:     ctx,
	}
}

// Next reads the next semantic event from the stream. Returns io.EOF after
// the done marker has been delivered.
func (s *stream) Next() (loupe.Event, error) {
	switch {
	case s.err != nil:
		return nil, s.err
	case s.done:
		return nil, io.EOF
	case s.closed:
		return nil, fmt.Errorf("sse: %w", loupe.ErrStreamClosed)
	}

	for {
		eventType, data, err := s.readFrame()
		if err != nil {
			s.err = s.terminalError(err)
			return nil, s.err
		}

		evt, err := s.decodeEvent(eventType, data)
		if err != nil {
			s.err = s.terminalError(err)
			return nil, s.err
		}
		if evt != nil {
			return evt, nil
		}
		// Non-semantic frame (comment, heartbeat), keep reading.
	}
}

// Close closes the underlying response body. Subsequent Next calls fail
// with ErrStreamClosed unless a terminal state was already reached.
func (s *stream) Close() error {
	if !s.done && s.err == nil {
		s.closed = true
	}
	return s.body.Close()
}

// terminalError normalizes a read/decode failure. Context cancellation is
// an intentional abort, a distinct type from stream errors; everything else
// becomes a *loupe.StreamError.
func (s *stream) terminalError(err error) error {
	if s.ctx.Err() != nil {
		return fmt.Errorf("sse: %w", loupe.ErrAborted)
	}
	if err == io.EOF {
		// The done marker is the only legitimate end of stream.
		return &loupe.StreamError{
			Code:    loupe.CodeConnectionError,
			Message: "connection closed mid-stream",
		}
	}
	return loupe.WrapStreamError(err, loupe.CodeInternalError)
}

// readFrame reads lines until a complete SSE frame is assembled, returning
// the event name and data payload.
func (s *stream) readFrame() (string, string, error) {
	var eventType string
	var dataBuf strings.Builder

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			// Empty line signals end of frame.
			if dataBuf.Len() > 0 {
				return eventType, dataBuf.String(), nil
			}
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(strings.TrimPrefix(line, "data: "))
		}
		// Ignore comments (lines starting with ':') and unknown fields.
	}

	if err := s.scanner.Err(); err != nil {
		return "", "", fmt.Errorf("sse: %w", err)
	}

	// Scanner exhausted without error = EOF.
	if dataBuf.Len() > 0 {
		return eventType, dataBuf.String(), nil
	}
	return "", "", io.EOF
}

// decodeEvent maps a named wire event to a semantic loupe.Event. Returns a
// nil event for frames that carry no semantics. Unknown event names are
// ignored so protocol additions do not break older clients.
func (s *stream) decodeEvent(eventType, data string) (loupe.Event, error) {
	switch eventType {
	case "status":
		var p sseStatus
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("sse: parse status: %w", err)
		}
		return loupe.StatusEvent{Stage: p.Stage, Message: p.Message, Details: p.Details}, nil
	case "content":
		var p sseContent
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("sse: parse content: %w", err)
		}
		return loupe.ContentEvent{Token: p.Token}, nil
	case "sources":
		var p sseSources
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("sse: parse sources: %w", err)
		}
		return loupe.SourcesEvent{Sources: p.Sources}, nil
	case "citations":
		var p loupe.CitationData
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("sse: parse citations: %w", err)
		}
		return loupe.CitationsEvent{Citations: p}, nil
	case "confirm_ingest":
		var p loupe.IngestProposal
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("sse: parse confirm_ingest: %w", err)
		}
		return loupe.ConfirmIngestEvent{Proposal: p}, nil
	case "ingest_complete":
		var p sseIngestComplete
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("sse: parse ingest_complete: %w", err)
		}
		return loupe.IngestCompleteEvent{
			PapersProcessed: p.PapersProcessed,
			ChunksCreated:   p.ChunksCreated,
		}, nil
	case "metadata":
		var p loupe.Metadata
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("sse: parse metadata: %w", err)
		}
		return loupe.MetadataEvent{Metadata: p}, nil
	case "error":
		var p sseError
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("sse: parse error event: %w", err)
		}
		code := p.Code
		if code == "" {
			code = loupe.CodeInternalError
		}
		return nil, &loupe.StreamError{Code: code, Message: p.Error}
	case "done":
		s.done = true
		return loupe.DoneEvent{}, nil
	default:
		return nil, nil
	}
}
