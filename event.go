package loupe

// Event is a sealed interface representing one streaming event from the
// backend. Events are purely semantic. Transport/protocol failures and
// backend error events come from Stream.Next()'s error return (as
// *StreamError or an ErrAborted wrap), not from events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// StatusEvent reports an internal pipeline stage update or a tool start/end
// signal. Classify disambiguates the two.
type StatusEvent struct {
	Stage   string
	Message string
	Details StatusDetails
}

func (StatusEvent) event() {}

// StatusDetails is the opaque key/value payload attached to a status event.
// Typed accessors tolerate the loose JSON typing of the wire format.
type StatusDetails map[string]any

// ToolName returns the details' tool_name field, if present and non-empty.
func (d StatusDetails) ToolName() (string, bool) {
	s, ok := d["tool_name"].(string)
	return s, ok && s != ""
}

// Success returns the details' success field, if present.
func (d StatusDetails) Success() (bool, bool) {
	b, ok := d["success"].(bool)
	return b, ok
}

// Iteration returns the details' iteration field, if present. JSON numbers
// decode as float64; integers are accepted for hand-built events.
func (d StatusDetails) Iteration() (int, bool) {
	switch n := d["iteration"].(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// Summary returns the details' summary field, if present and non-empty.
func (d StatusDetails) Summary() (string, bool) {
	s, ok := d["summary"].(string)
	return s, ok && s != ""
}

// ContentEvent carries one incremental answer fragment.
type ContentEvent struct {
	Token string
}

func (ContentEvent) event() {}

// SourcesEvent replaces the retrieved-document list for the exchange.
type SourcesEvent struct {
	Sources []SourceInfo
}

func (SourcesEvent) event() {}

// CitationsEvent replaces the citation data for the exchange.
type CitationsEvent struct {
	Citations CitationData
}

func (CitationsEvent) event() {}

// ConfirmIngestEvent pauses the exchange for user confirmation.
type ConfirmIngestEvent struct {
	Proposal IngestProposal
}

func (ConfirmIngestEvent) event() {}

// IngestCompleteEvent reports a finished bulk ingestion.
type IngestCompleteEvent struct {
	PapersProcessed int
	ChunksCreated   int
}

func (IngestCompleteEvent) event() {}

// MetadataEvent is the terminal success marker for an exchange.
type MetadataEvent struct {
	Metadata Metadata
}

func (MetadataEvent) event() {}

// DoneEvent is the always-last stream marker, independent of outcome.
type DoneEvent struct{}

func (DoneEvent) event() {}

// Interface compliance checks.
var (
	_ Event = StatusEvent{}
	_ Event = ContentEvent{}
	_ Event = SourcesEvent{}
	_ Event = CitationsEvent{}
	_ Event = ConfirmIngestEvent{}
	_ Event = IngestCompleteEvent{}
	_ Event = MetadataEvent{}
	_ Event = DoneEvent{}
)
