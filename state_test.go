package loupe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lens-research/loupe"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func toolStart(tool string) loupe.StatusEvent {
	return loupe.StatusEvent{
		Stage:   "executing",
		Message: "Executing " + tool,
		Details: loupe.StatusDetails{"tool_name": tool},
	}
}

func toolEnd(tool string, success bool, summary string) loupe.StatusEvent {
	d := loupe.StatusDetails{"tool_name": tool, "success": success}
	if summary != "" {
		d["summary"] = summary
	}
	return loupe.StatusEvent{Stage: "executing", Details: d}
}

func TestConversation_ToolStartAppendsRunningStep(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(toolStart("retrieve_documents"))

	steps := c.Steps()
	require.Len(t, steps, 1)
	step, ok := steps[0].(*loupe.ActivityStep)
	require.True(t, ok)
	assert.Equal(t, loupe.ActivityRetrieve, step.Kind)
	assert.Equal(t, "Searching library", step.Label)
	assert.Equal(t, loupe.StatusRunning, step.Status)
	assert.NotEmpty(t, step.ID)
}

func TestConversation_ToolEndClosesMatchingStep(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(toolStart("retrieve_documents"))
	c.ApplyStatus(toolEnd("retrieve_documents", true, "Found 5 papers"))

	steps := c.Steps()
	require.Len(t, steps, 1)
	step := steps[0].(*loupe.ActivityStep)
	assert.Equal(t, loupe.StatusComplete, step.Status)
	assert.Equal(t, "Searched library: Found 5 papers", step.Message)
	assert.False(t, step.EndedAt.IsZero())
}

func TestConversation_ToolEndFailureMarksError(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(toolStart("search_arxiv"))
	c.ApplyStatus(toolEnd("search_arxiv", false, ""))

	step := c.Steps()[0].(*loupe.ActivityStep)
	assert.Equal(t, loupe.StatusError, step.Status)
	assert.Equal(t, "Searched arXiv failed", step.Message)
}

func TestConversation_ToolEndMatchesMostRecent(t *testing.T) {
	t.Parallel()
	// Two concurrent runs of the same tool resolve most-recent-first.
	c := loupe.NewConversation(nil)
	c.ApplyStatus(toolStart("retrieve_documents"))
	c.ApplyStatus(toolStart("retrieve_documents"))
	c.ApplyStatus(toolEnd("retrieve_documents", true, ""))

	steps := c.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, loupe.StatusRunning, steps[0].(*loupe.ActivityStep).Status)
	assert.Equal(t, loupe.StatusComplete, steps[1].(*loupe.ActivityStep).Status)
}

func TestConversation_ToolEndIgnoresOtherTools(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(toolStart("retrieve_documents"))
	c.ApplyStatus(toolStart("search_arxiv"))
	c.ApplyStatus(toolEnd("retrieve_documents", true, ""))

	steps := c.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, loupe.StatusComplete, steps[0].(*loupe.ActivityStep).Status)
	assert.Equal(t, loupe.StatusRunning, steps[1].(*loupe.ActivityStep).Status)
}

func TestConversation_ToolEndWithoutStartDegrades(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(toolEnd("list_papers", true, "12 papers"))

	steps := c.Steps()
	require.Len(t, steps, 1)
	step := steps[0].(*loupe.ActivityStep)
	assert.Equal(t, loupe.StatusComplete, step.Status)
	assert.Equal(t, "Listed papers: 12 papers", step.Message)
}

func TestConversation_RetryAppendsCompleteStep(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(loupe.StatusEvent{
		Stage:   "executing",
		Details: loupe.StatusDetails{"iteration": float64(2)},
	})

	steps := c.Steps()
	require.Len(t, steps, 1)
	step := steps[0].(*loupe.ActivityStep)
	assert.Equal(t, loupe.ActivityRefining, step.Kind)
	assert.Equal(t, loupe.StatusComplete, step.Status)
	assert.Equal(t, "Refining search (attempt 2)", step.Message)
}

func TestConversation_StageUpdatesInPlace(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(loupe.StatusEvent{Stage: "guardrail", Message: "Checking query scope"})
	c.ApplyStatus(loupe.StatusEvent{Stage: "guardrail", Message: "Query is in scope (score: 0.92)"})

	steps := c.Steps()
	require.Len(t, steps, 1, "stage updates mutate the running step, not append")
	step := steps[0].(*loupe.InternalStep)
	assert.Equal(t, loupe.StatusComplete, step.Status)
	assert.Equal(t, "Query is in scope (score: 0.92)", step.Message)
}

func TestConversation_CompletedStageReopensAsNewStep(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(loupe.StatusEvent{Stage: "grading", Message: "Graded 8 documents"})
	c.ApplyStatus(loupe.StatusEvent{Stage: "grading", Message: "Grading refined results"})

	steps := c.Steps()
	require.Len(t, steps, 2, "a completed stage step is immutable; later events open a new one")
	assert.Equal(t, loupe.StatusComplete, steps[0].(*loupe.InternalStep).Status)
	assert.Equal(t, loupe.StatusRunning, steps[1].(*loupe.InternalStep).Status)
}

func TestConversation_StageMergesDetails(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(loupe.StatusEvent{
		Stage:   "routing",
		Message: "Analyzing query intent",
		Details: loupe.StatusDetails{"candidates": float64(3)},
	})
	c.ApplyStatus(loupe.StatusEvent{
		Stage:   "routing",
		Message: "Routing to retrieval pipeline",
		Details: loupe.StatusDetails{"route": "retrieval"},
	})

	step := c.Steps()[0].(*loupe.InternalStep)
	assert.Equal(t, float64(3), step.Details["candidates"])
	assert.Equal(t, "retrieval", step.Details["route"])
}

func TestConversation_ChatterSkipped(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(loupe.StatusEvent{Stage: "executing", Message: "Tool execution started"})
	assert.Empty(t, c.Steps())
	assert.Empty(t, c.StatusText(), "skipped events do not touch the status line")
}

func TestConversation_StatusTextFollowsMessages(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(loupe.StatusEvent{Stage: "guardrail", Message: "Checking query scope"})
	assert.Equal(t, "Checking query scope", c.StatusText())

	c.ApplyStatus(loupe.StatusEvent{Stage: "routing", Message: ""})
	assert.Equal(t, "Checking query scope", c.StatusText(), "empty messages keep the previous text")

	c.ClearStatusText()
	assert.Empty(t, c.StatusText())
}

func TestConversation_UnknownStageDegrades(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(loupe.StatusEvent{Stage: "preflight", Message: "Preparing"})

	steps := c.Steps()
	require.Len(t, steps, 1, "no event is dropped for an unknown stage")
	assert.Equal(t, loupe.StageExecuting, steps[0].(*loupe.InternalStep).Stage)
}

func TestConversation_GeneratingSingleton(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.StartGenerating()
	c.StartGenerating()
	c.StartGenerating()

	steps := c.Steps()
	require.Len(t, steps, 1)
	step := steps[0].(*loupe.ActivityStep)
	assert.Equal(t, loupe.ActivityGenerating, step.Kind)
	assert.Equal(t, loupe.StatusRunning, step.Status)

	c.FinishGenerating()
	assert.Equal(t, loupe.StatusComplete, c.Steps()[0].(*loupe.ActivityStep).Status)

	// A fresh generation step may start after the previous one finished.
	c.StartGenerating()
	assert.Len(t, c.Steps(), 2)
}

func TestConversation_AppendToken(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.AppendToken("Attention ")
	c.AppendToken("is all ")
	c.AppendToken("you need.")
	assert.Equal(t, "Attention is all you need.", c.Content())
}

func TestConversation_AwaitConfirmation(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.AwaitConfirmation(loupe.IngestProposal{
		Papers:    []loupe.ProposedPaper{{ID: "1"}, {ID: "2"}},
		SessionID: "s1",
		ThreadID:  "t1",
	})

	require.NotNil(t, c.Proposal())
	assert.Equal(t, "t1", c.Proposal().ThreadID)

	steps := c.Steps()
	require.Len(t, steps, 1)
	step := steps[0].(*loupe.InternalStep)
	assert.Equal(t, loupe.StageConfirming, step.Stage)
	assert.Equal(t, loupe.StatusRunning, step.Status)
	assert.Equal(t, "Waiting for confirmation to add 2 papers", step.Message)
}

func TestConversation_IngestionLifecycle(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.BeginIngestion(3)
	assert.True(t, c.Ingesting())

	c.FinishIngestion(3, 42)
	assert.False(t, c.Ingesting())

	steps := c.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, loupe.StatusComplete, steps[0].(*loupe.InternalStep).Status)
	assert.Equal(t, "Added 3 papers (42 chunks)", steps[1].(*loupe.InternalStep).Message)
}

func TestConversation_FreezeStepsCompletesRunning(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(toolStart("retrieve_documents"))
	c.ApplyStatus(loupe.StatusEvent{Stage: "grading", Message: "Grading documents"})

	frozen := c.FreezeSteps()
	require.Len(t, frozen, 2)
	assert.Equal(t, loupe.StatusComplete, frozen[0].(*loupe.ActivityStep).Status)
	assert.Equal(t, loupe.StatusComplete, frozen[1].(*loupe.InternalStep).Status)
}

func TestConversation_FreezeStepsKeepsConfirmingRunning(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(toolStart("propose_papers"))
	c.AwaitConfirmation(loupe.IngestProposal{
		Papers:    []loupe.ProposedPaper{{ID: "1"}},
		SessionID: "s1",
		ThreadID:  "t1",
	})

	frozen := c.FreezeSteps()
	require.Len(t, frozen, 2)
	assert.Equal(t, loupe.StatusComplete, frozen[0].(*loupe.ActivityStep).Status)
	confirming := frozen[1].(*loupe.InternalStep)
	assert.Equal(t, loupe.StatusRunning, confirming.Status,
		"the confirming step stays running while the proposal is pending")
}

func TestConversation_StepsSnapshotIsIsolated(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.ApplyStatus(toolStart("retrieve_documents"))

	snap := c.Steps()
	snap[0].(*loupe.ActivityStep).Status = loupe.StatusError

	assert.Equal(t, loupe.StatusRunning, c.Steps()[0].(*loupe.ActivityStep).Status)
}

func TestConversation_Reset(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	c.AppendToken("text")
	c.ApplyStatus(toolStart("retrieve_documents"))
	c.SetSources([]loupe.SourceInfo{{ID: "1"}})
	c.SetCitations(loupe.CitationData{ArxivID: "1706.03762"})
	c.AwaitConfirmation(loupe.IngestProposal{SessionID: "s1", ThreadID: "t1"})
	c.BeginIngestion(1)

	c.Reset()

	assert.Empty(t, c.Content())
	assert.Empty(t, c.StatusText())
	assert.Empty(t, c.Steps())
	assert.Empty(t, c.Sources())
	assert.Nil(t, c.Citations())
	assert.Nil(t, c.Proposal())
	assert.False(t, c.Ingesting())
}

func TestConversation_OnChangeFiresPerMutation(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	var calls int
	c.OnChange(func() { calls++ })

	c.AppendToken("a")
	c.ApplyStatus(loupe.StatusEvent{Stage: "guardrail", Message: "Checking"})
	c.SetSources(nil)
	c.Reset()

	assert.Equal(t, 4, calls)
}

func TestConversation_OnChangeMayReadState(t *testing.T) {
	t.Parallel()
	// The callback runs outside the lock, so readers are safe inside it.
	c := loupe.NewConversation(nil)
	var seen string
	c.OnChange(func() { seen = c.Content() })

	c.AppendToken("hello")
	assert.Equal(t, "hello", seen)
}

func TestConversation_SetClock(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c := loupe.NewConversation(nil)
	c.SetClock(fixedClock(now))

	c.ApplyStatus(toolStart("retrieve_documents"))
	assert.Equal(t, now, c.Steps()[0].(*loupe.ActivityStep).StartedAt)
}

func TestConversation_SourcesCopied(t *testing.T) {
	t.Parallel()
	c := loupe.NewConversation(nil)
	in := []loupe.SourceInfo{{ID: "1", Title: "original"}}
	c.SetSources(in)
	in[0].Title = "mutated"

	assert.Equal(t, "original", c.Sources()[0].Title)

	out := c.Sources()
	out[0].Title = "mutated again"
	assert.Equal(t, "original", c.Sources()[0].Title)
}
