package loupe

import "time"

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation. At most one message per
// conversation has IsStreaming set at a time; a streaming message is the
// live placeholder for the in-flight exchange and is replaced by an
// immutable finalized message when the exchange ends.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Sources   []SourceInfo
	Citations *CitationData
	Metadata  *Metadata
	Steps     []Step

	// Proposal carries a pending or historical ingest proposal attached to
	// this message. ProposalResolved/ProposalDeclined record the user's
	// decision once the exchange is resumed.
	Proposal         *IngestProposal
	ProposalResolved bool
	ProposalDeclined bool

	IsStreaming bool
	Fault       *Treatment // inline error bubble, if the exchange failed
	CreatedAt   time.Time
}

// SourceInfo summarizes one retrieved document.
type SourceInfo struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors,omitempty"`
	URL       string   `json:"url,omitempty"`
	Relevance float64  `json:"relevance,omitempty"`
	Published string   `json:"published,omitempty"`
}

// CitationData holds reference information for one paper.
type CitationData struct {
	ArxivID        string   `json:"arxiv_id"`
	Title          string   `json:"title"`
	ReferenceCount int      `json:"reference_count"`
	References     []string `json:"references,omitempty"`
}

// Metadata is the terminal success payload for an exchange.
type Metadata struct {
	Query             string   `json:"query"`
	ExecutionTimeMS   int64    `json:"execution_time_ms"`
	RetrievalAttempts int      `json:"retrieval_attempts"`
	RewrittenQuery    string   `json:"rewritten_query,omitempty"`
	GuardrailScore    *float64 `json:"guardrail_score,omitempty"`
	Provider          string   `json:"provider"`
	Model             string   `json:"model"`
	SessionID         string   `json:"session_id,omitempty"`
	TurnNumber        int      `json:"turn_number"`
	ReasoningSteps    int      `json:"reasoning_steps"`
}

// IngestProposal is a pending, user-approvable request to add a batch of
// papers to the library. SessionID and ThreadID key the server-side
// checkpoint that a resume request must reference.
type IngestProposal struct {
	Papers    []ProposedPaper `json:"papers"`
	SessionID string          `json:"session_id"`
	ThreadID  string          `json:"thread_id"`
}

// ProposedPaper describes one paper in an ingest proposal.
type ProposedPaper struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Authors []string `json:"authors,omitempty"`
	Summary string   `json:"summary,omitempty"`
}
