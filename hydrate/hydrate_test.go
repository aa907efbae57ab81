package hydrate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lens-research/loupe"
	"github.com/lens-research/loupe/hydrate"
)

func TestMessages_UserAssistantPairPerTurn(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	turns := []hydrate.Turn{
		{TurnNumber: 1, Query: "what is attention?", Answer: "A mechanism.", CreatedAt: created},
		{TurnNumber: 2, Query: "who wrote it?", Answer: "Vaswani et al.", CreatedAt: created.Add(time.Minute)},
	}

	msgs := hydrate.Messages(turns)
	require.Len(t, msgs, 4)

	assert.Equal(t, loupe.RoleUser, msgs[0].Role)
	assert.Equal(t, "what is attention?", msgs[0].Content)
	assert.Equal(t, loupe.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "A mechanism.", msgs[1].Content)
	assert.Equal(t, loupe.RoleUser, msgs[2].Role)
	assert.Equal(t, loupe.RoleAssistant, msgs[3].Role)

	for _, m := range msgs {
		assert.NotEmpty(t, m.ID)
		assert.False(t, m.IsStreaming, "hydrated messages are never streaming")
	}
}

func TestMessages_CarriesTurnPayload(t *testing.T) {
	t.Parallel()
	md := &loupe.Metadata{TurnNumber: 1, SessionID: "sess-1"}
	turns := []hydrate.Turn{{
		Query:            "find papers",
		Answer:           "Proposed two papers.",
		Sources:          []loupe.SourceInfo{{ID: "1", Title: "Paper One"}},
		Proposal:         &loupe.IngestProposal{SessionID: "sess-1", ThreadID: "thread-1"},
		ProposalResolved: true,
		ProposalDeclined: true,
		Metadata:         md,
	}}

	msgs := hydrate.Messages(turns)
	assistant := msgs[1]
	require.Len(t, assistant.Sources, 1)
	require.NotNil(t, assistant.Proposal)
	assert.True(t, assistant.ProposalResolved)
	assert.True(t, assistant.ProposalDeclined)
	assert.Equal(t, md, assistant.Metadata)
}

func TestSteps_ToolRecordBecomesActivityStep(t *testing.T) {
	t.Parallel()
	steps := hydrate.Steps([]hydrate.StepRecord{{
		Stage:       "executing",
		ToolName:    "retrieve_documents",
		Message:     "Found 5 papers",
		StartedAt:   "2026-03-14T12:00:01Z",
		CompletedAt: "2026-03-14T12:00:03.250Z",
	}})

	require.Len(t, steps, 1)
	step, ok := steps[0].(*loupe.ActivityStep)
	require.True(t, ok)
	assert.Equal(t, loupe.ActivityRetrieve, step.Kind)
	assert.Equal(t, "Searching library", step.Label)
	assert.Equal(t, loupe.StatusComplete, step.Status)
	assert.Equal(t, 2026, step.StartedAt.Year())
	assert.Equal(t, 250*time.Millisecond, time.Duration(step.EndedAt.Nanosecond()))
}

func TestSteps_StageRecordBecomesInternalStep(t *testing.T) {
	t.Parallel()
	steps := hydrate.Steps([]hydrate.StepRecord{{
		Stage:     "guardrail",
		Message:   "Query is in scope",
		StartedAt: "2026-03-14T12:00:00Z",
	}})

	require.Len(t, steps, 1)
	step, ok := steps[0].(*loupe.InternalStep)
	require.True(t, ok)
	assert.Equal(t, loupe.StageGuardrail, step.Stage)
	assert.Equal(t, "Checking scope", step.Label)
	assert.Equal(t, loupe.StatusComplete, step.Status)
	assert.Equal(t, step.StartedAt, step.EndedAt, "missing completed_at falls back to started_at")
}

func TestSteps_MalformedTimestampKeepsStep(t *testing.T) {
	t.Parallel()
	steps := hydrate.Steps([]hydrate.StepRecord{{
		Stage:     "grading",
		Message:   "Graded 8 documents",
		StartedAt: "not-a-timestamp",
	}})

	require.Len(t, steps, 1, "a bad timestamp must not hide a step")
	assert.True(t, steps[0].(*loupe.InternalStep).StartedAt.IsZero())
}

func TestSteps_UnknownStageDegrades(t *testing.T) {
	t.Parallel()
	steps := hydrate.Steps([]hydrate.StepRecord{{
		Stage:   "preflight",
		Message: "Preparing",
	}})

	require.Len(t, steps, 1)
	assert.Equal(t, loupe.StageExecuting, steps[0].(*loupe.InternalStep).Stage)
}

func TestSteps_HydratedTimelineMatchesLive(t *testing.T) {
	t.Parallel()
	// A resumed session must render the same timeline the live stream
	// produced: same step types, kinds, labels, and statuses, in order.
	// Only IDs and timestamps may differ.
	conv := loupe.NewConversation(nil)
	conv.ApplyStatus(loupe.StatusEvent{Stage: "guardrail", Message: "Query is in scope (score: 0.92)"})
	conv.ApplyStatus(loupe.StatusEvent{
		Stage:   "executing",
		Message: "Executing retrieve_documents",
		Details: loupe.StatusDetails{"tool_name": "retrieve_documents"},
	})
	conv.ApplyStatus(loupe.StatusEvent{
		Stage:   "executing",
		Details: loupe.StatusDetails{"tool_name": "retrieve_documents", "success": true, "summary": "Found 5 papers"},
	})
	conv.ApplyStatus(loupe.StatusEvent{Stage: "grading", Message: "Graded 8 documents"})
	live := conv.FreezeSteps()

	hydrated := hydrate.Steps([]hydrate.StepRecord{
		{Stage: "guardrail", Message: "Query is in scope (score: 0.92)", StartedAt: "2026-03-14T12:00:00Z"},
		{Stage: "executing", ToolName: "retrieve_documents", Message: "Searched library: Found 5 papers", StartedAt: "2026-03-14T12:00:01Z", CompletedAt: "2026-03-14T12:00:03Z"},
		{Stage: "grading", Message: "Graded 8 documents", StartedAt: "2026-03-14T12:00:04Z"},
	})

	require.Len(t, hydrated, len(live))
	for i := range live {
		switch ls := live[i].(type) {
		case *loupe.ActivityStep:
			hs, ok := hydrated[i].(*loupe.ActivityStep)
			require.True(t, ok, "step %d", i)
			assert.Equal(t, ls.Kind, hs.Kind)
			assert.Equal(t, ls.ToolName, hs.ToolName)
			assert.Equal(t, ls.Label, hs.Label)
			assert.Equal(t, ls.Message, hs.Message)
			assert.Equal(t, ls.Status, hs.Status)
		case *loupe.InternalStep:
			hs, ok := hydrated[i].(*loupe.InternalStep)
			require.True(t, ok, "step %d", i)
			assert.Equal(t, ls.Stage, hs.Stage)
			assert.Equal(t, ls.Label, hs.Label)
			assert.Equal(t, ls.Message, hs.Message)
			assert.Equal(t, ls.Status, hs.Status)
		}
	}
}

func TestSteps_MatchesLiveToolLabels(t *testing.T) {
	t.Parallel()
	// Hydrated steps must render with the same labels the live classifier
	// produces, so resumed sessions look identical to streamed ones.
	conv := loupe.NewConversation(nil)
	conv.ApplyStatus(loupe.StatusEvent{
		Stage:   "executing",
		Message: "Executing search_arxiv",
		Details: loupe.StatusDetails{"tool_name": "search_arxiv"},
	})
	live := conv.Steps()[0].(*loupe.ActivityStep)

	hydrated := hydrate.Steps([]hydrate.StepRecord{{
		Stage:    "executing",
		ToolName: "search_arxiv",
	}})[0].(*loupe.ActivityStep)

	assert.Equal(t, live.Kind, hydrated.Kind)
	assert.Equal(t, live.Label, hydrated.Label)
	assert.Equal(t, live.ToolName, hydrated.ToolName)
}
