package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/adapters/agentruntime"
	"github.com/Meesho/BharatMLStack/choreographer/internal/complexity"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizeClosesOpenStates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), map[string]string{"A": "agent-a", "B": "agent-b"})
	h.complete(t, "wf", "A", ctypes.StateStatusDone)

	res, err := h.engine.Finalize(ctx, FinalizeRequest{WorkflowID: "wf", Note: "operator stop"})
	require.NoError(t, err)
	assert.Equal(t, ctypes.OutcomeFinalized, res.Outcome)
	assert.Equal(t, ctypes.WorkflowStatusPartial, res.Audit.FinalStatus)
	assert.Empty(t, res.CloseFailures)

	b := res.Audit.States["B"]
	assert.Equal(t, ctypes.StateStatusCancelled, b.Status)
	assert.True(t, b.Closed)
	assert.Equal(t, "cancelled by finalizer: operator stop", b.LastError)
	assert.False(t, res.Audit.States["A"].Closed)

	doc, err := h.engine.GetState(ctx, "wf", "B")
	require.NoError(t, err)
	assert.Equal(t, ctypes.StateStatusCancelled, doc.Status)
	assert.NotNil(t, doc.FinishedAt)

	assert.Equal(t, []agentruntime.Teardown{
		{WorkflowID: "wf", Executor: "agent-a"},
		{WorkflowID: "wf", Executor: "agent-b"},
	}, h.runtime.Requests())
	require.Len(t, res.Audit.Executors, 2)
	for _, td := range res.Audit.Executors {
		assert.True(t, td.Requested)
		assert.True(t, td.Succeeded)
	}

	meta, err := h.engine.GetWorkflow(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, ctypes.WorkflowStatusPartial, meta.Status)
	require.NotNil(t, meta.FinalizedAt)
	assert.Equal(t, h.clock.Now(), *meta.FinalizedAt)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), map[string]string{"A": "agent-a"})

	first, err := h.engine.Finalize(ctx, FinalizeRequest{WorkflowID: "wf"})
	require.NoError(t, err)
	require.Equal(t, ctypes.OutcomeFinalized, first.Outcome)
	before := h.snapshot(t, "wf")
	h.clock.Advance(1)

	second, err := h.engine.Finalize(ctx, FinalizeRequest{WorkflowID: "wf", StatusOverride: ctypes.WorkflowStatusSucceeded})
	require.NoError(t, err)
	assert.Equal(t, ctypes.OutcomeAlreadyFinalized, second.Outcome)
	assert.Equal(t, first.Audit, second.Audit)
	assert.Equal(t, before, h.snapshot(t, "wf"))
	assert.Len(t, h.runtime.Requests(), 1)
}

func TestFinalizeReturnsStoredAudit(t *testing.T) {
	h := newHarness(t, WithClock(time.Now))
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)

	first, err := h.engine.Finalize(ctx, FinalizeRequest{WorkflowID: "wf"})
	require.NoError(t, err)
	require.Equal(t, ctypes.OutcomeFinalized, first.Outcome)
	assert.Nil(t, first.Audit.Executors)

	second, err := h.engine.Finalize(ctx, FinalizeRequest{WorkflowID: "wf"})
	require.NoError(t, err)
	assert.Equal(t, ctypes.OutcomeAlreadyFinalized, second.Outcome)
	assert.Equal(t, first.Audit, second.Audit)

	stored, err := h.engine.GetAudit(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, first.Audit, stored)
}

func TestFinalizeOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		a, b     ctypes.StateStatus
		override ctypes.WorkflowStatus
		want     ctypes.WorkflowStatus
		overrode bool
	}{
		{name: "all succeeded", a: ctypes.StateStatusDone, b: ctypes.StateStatusSucceeded, want: ctypes.WorkflowStatusSucceeded},
		{name: "failure without success", a: ctypes.StateStatusFailed, want: ctypes.WorkflowStatusFailed},
		{name: "nothing ran", want: ctypes.WorkflowStatusCancelled},
		{name: "override", a: ctypes.StateStatusFailed, override: ctypes.WorkflowStatusPartial, want: ctypes.WorkflowStatusPartial, overrode: true},
		{name: "override matching computed", a: ctypes.StateStatusDone, b: ctypes.StateStatusDone, override: ctypes.WorkflowStatusSucceeded, want: ctypes.WorkflowStatusSucceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, "wf", linearDefinition(), nil)
			if tt.a != "" {
				h.complete(t, "wf", "A", tt.a)
			}
			if tt.b != "" {
				h.complete(t, "wf", "B", tt.b)
			}
			res, err := h.engine.Finalize(context.Background(), FinalizeRequest{WorkflowID: "wf", StatusOverride: tt.override})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Audit.FinalStatus)
			assert.Equal(t, tt.overrode, res.Audit.Overridden)
		})
	}
}

func TestFinalizeRejectsNonFinalOverride(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "wf", linearDefinition(), nil)
	_, err := h.engine.Finalize(context.Background(), FinalizeRequest{WorkflowID: "wf", StatusOverride: ctypes.WorkflowStatusActive})
	assert.ErrorIs(t, err, cerrors.ErrInvalidRequest)

	_, err = h.engine.Finalize(context.Background(), FinalizeRequest{WorkflowID: "missing"})
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}

func TestFinalizeLeavesOpenStatesWhenAsked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), map[string]string{"A": "agent-a"})

	res, err := h.engine.Finalize(ctx, FinalizeRequest{WorkflowID: "wf", CloseOpenStates: boolPtr(false), DeleteExecutors: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, ctypes.StateStatusPending, res.Audit.States["A"].Status)
	assert.Empty(t, res.Audit.Executors)
	assert.Empty(t, h.runtime.Requests())

	doc, err := h.engine.GetState(ctx, "wf", "A")
	require.NoError(t, err)
	assert.Equal(t, ctypes.StateStatusPending, doc.Status)
}

func TestFinalizeRecordsTeardownFailure(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "wf", linearDefinition(), map[string]string{"A": "agent-a"})
	h.runtime.FailFor("agent-a", errors.New("runtime unavailable"))

	res, err := h.engine.Finalize(context.Background(), FinalizeRequest{WorkflowID: "wf"})
	require.NoError(t, err)
	assert.Equal(t, ctypes.OutcomeFinalized, res.Outcome)
	require.Len(t, res.Audit.Executors, 1)
	td := res.Audit.Executors[0]
	assert.True(t, td.Requested)
	assert.False(t, td.Succeeded)
	assert.Equal(t, "runtime unavailable", td.Error)
}

func TestFinalizeSummarisesTierCost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)

	heavy := complexity.Profile{
		Capability: "planner",
		Dimensions: map[complexity.Dimension]int{complexity.ReasoningDepth: 5, complexity.ToolOrchestration: 5, complexity.DomainExpertise: 5},
	}
	light := complexity.Profile{Capability: "fetch"}
	_, err := h.engine.RecordTier(ctx, TierRequest{WorkflowID: "wf", State: "A", Score: complexity.Request{Profiles: []complexity.Profile{heavy}}})
	require.NoError(t, err)
	_, err = h.engine.RecordTier(ctx, TierRequest{WorkflowID: "wf", State: "B", Score: complexity.Request{Profiles: []complexity.Profile{light}}})
	require.NoError(t, err)

	res, err := h.engine.Finalize(ctx, FinalizeRequest{WorkflowID: "wf"})
	require.NoError(t, err)
	require.NotNil(t, res.Audit.Cost)
	total := 0
	for _, n := range res.Audit.Cost.StatesByTier {
		total += n
	}
	assert.Equal(t, 2, total)
	assert.Greater(t, res.Audit.Cost.TotalCost, 0.0)
}
