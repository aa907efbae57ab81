// Package mock provides test doubles for loupe interfaces using function
// fields.
package mock

import (
	"context"
	"io"

	"github.com/lens-research/loupe"
)

// Interface compliance checks.
var (
	_ loupe.Transport = (*Transport)(nil)
	_ loupe.Stream    = (*Stream)(nil)
)

// Transport is a test double for loupe.Transport.
// Set OpenFn before calling Open.
type Transport struct {
	OpenFn func(ctx context.Context, req loupe.Request) (loupe.Stream, error)
}

// Open delegates to OpenFn.
func (t *Transport) Open(ctx context.Context, req loupe.Request) (loupe.Stream, error) {
	return t.OpenFn(ctx, req)
}

// Stream is a test double for loupe.Stream.
// NextFn panics when nil to catch missing setup. CloseFn is nil-safe
// because test code commonly calls defer stream.Close().
type Stream struct {
	NextFn  func() (loupe.Event, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (loupe.Event, error) {
	return s.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Script returns a Stream that yields the given events in order, then
// io.EOF. A non-nil final error is returned instead of EOF after the events
// are exhausted.
func Script(events []loupe.Event, final error) *Stream {
	i := 0
	return &Stream{
		NextFn: func() (loupe.Event, error) {
			if i < len(events) {
				ev := events[i]
				i++
				return ev, nil
			}
			if final != nil {
				return nil, final
			}
			return nil, io.EOF
		},
	}
}
