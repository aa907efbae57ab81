// Package hydrate maps persisted conversation turns into the live message
// and step representation, so rendering code is agnostic to whether an
// exchange was streamed or loaded from history.
package hydrate

import (
	"time"

	"github.com/google/uuid"

	"github.com/lens-research/loupe"
)

// Turn is one persisted exchange as returned by the history endpoint.
type Turn struct {
	TurnNumber       int                   `json:"turn_number"`
	Query            string                `json:"query"`
	Answer           string                `json:"answer"`
	Sources          []loupe.SourceInfo    `json:"sources,omitempty"`
	Citations        *loupe.CitationData   `json:"citations,omitempty"`
	Proposal         *loupe.IngestProposal `json:"ingest_proposal,omitempty"`
	ProposalResolved bool                  `json:"ingest_resolved,omitempty"`
	ProposalDeclined bool                  `json:"ingest_declined,omitempty"`
	Steps            []StepRecord          `json:"reasoning_steps,omitempty"`
	Metadata         *loupe.Metadata       `json:"metadata,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

// StepRecord is one persisted thinking step. Unlike the live stream it
// carries absolute ISO-8601 timestamps and a tool_name field instead of
// start/end correlation.
type StepRecord struct {
	Stage       string         `json:"stage"`
	ToolName    string         `json:"tool_name,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	StartedAt   string         `json:"started_at"`
	CompletedAt string         `json:"completed_at,omitempty"`
}

// Messages converts persisted turns into the message-list shape the live
// path produces: one user and one assistant message per turn, in order.
func Messages(turns []Turn) []loupe.Message {
	msgs := make([]loupe.Message, 0, 2*len(turns))
	for _, t := range turns {
		msgs = append(msgs, loupe.Message{
			ID:        uuid.NewString(),
			Role:      loupe.RoleUser,
			Content:   t.Query,
			CreatedAt: t.CreatedAt,
		})
		msgs = append(msgs, loupe.Message{
			ID:               uuid.NewString(),
			Role:             loupe.RoleAssistant,
			Content:          t.Answer,
			Sources:          t.Sources,
			Citations:        t.Citations,
			Metadata:         t.Metadata,
			Steps:            Steps(t.Steps),
			Proposal:         t.Proposal,
			ProposalResolved: t.ProposalResolved,
			ProposalDeclined: t.ProposalDeclined,
			CreatedAt:        t.CreatedAt,
		})
	}
	return msgs
}

// Steps converts persisted step records 1:1 into the live step
// representation. A record with a tool name becomes an ActivityStep, any
// other record an InternalStep; hydrated steps are always complete —
// history holds only finished work.
func Steps(records []StepRecord) []loupe.Step {
	steps := make([]loupe.Step, 0, len(records))
	for _, r := range records {
		started := parseTime(r.StartedAt)
		ended := parseTime(r.CompletedAt)
		if ended.IsZero() {
			ended = started
		}
		if r.ToolName != "" {
			kind, label, _ := loupe.ToolActivity(r.ToolName)
			steps = append(steps, &loupe.ActivityStep{
				ID:        uuid.NewString(),
				Kind:      kind,
				ToolName:  r.ToolName,
				Label:     label,
				Message:   r.Message,
				Details:   r.Details,
				Status:    loupe.StatusComplete,
				StartedAt: started,
				EndedAt:   ended,
			})
			continue
		}
		stage, _ := loupe.ParseStage(r.Stage)
		steps = append(steps, &loupe.InternalStep{
			ID:        uuid.NewString(),
			Stage:     stage,
			Label:     loupe.StageLabel(stage),
			Message:   r.Message,
			Details:   r.Details,
			Status:    loupe.StatusComplete,
			StartedAt: started,
			EndedAt:   ended,
		})
	}
	return steps
}

// parseTime accepts RFC3339 with or without fractional seconds. Malformed
// or empty timestamps yield the zero time rather than an error: a bad
// timestamp should not hide a step.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
