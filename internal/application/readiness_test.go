package application

import (
	"context"
	"testing"

	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/Meesho/BharatMLStack/choreographer/internal/graph"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diamondDefinition() graph.Definition {
	return graph.Definition{
		StartAt: "Start",
		States: map[string]graph.State{
			"Start": {Type: graph.TypeChoice, Choices: []graph.Choice{{Next: "Left"}, {Next: "Right"}}},
			"Left":  {Type: graph.TypeTask, Next: "Join"},
			"Right": {Type: graph.TypeTask, Next: "Join"},
			"Join":  {Type: graph.TypeSucceed},
		},
	}
}

// complete runs state through acquire and a terminal update.
func (h *harness) complete(t *testing.T, workflowID, state string, status ctypes.StateStatus) {
	t.Helper()
	ctx := context.Background()
	lease, err := h.engine.AcquireLease(ctx, AcquireRequest{WorkflowID: workflowID, State: state, Owner: "runner"})
	require.NoError(t, err)
	require.True(t, lease.Outcome.IsSuccess(), "acquire %s: %s", state, lease.Outcome)
	res, err := h.engine.UpdateState(ctx, UpdateRequest{WorkflowID: workflowID, State: state, Status: status, LeaseToken: lease.Token})
	require.NoError(t, err)
	require.Equal(t, ctypes.OutcomeUpdated, res.Outcome)
}

func TestReadinessRequiresEveryUpstream(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", diamondDefinition(), nil)

	start, err := h.engine.Ready(ctx, "wf", "Start")
	require.NoError(t, err)
	assert.True(t, start.Ready)
	assert.Empty(t, start.Upstream)

	h.complete(t, "wf", "Start", ctypes.StateStatusDone)
	h.complete(t, "wf", "Left", ctypes.StateStatusSucceeded)

	join, err := h.engine.Ready(ctx, "wf", "Join")
	require.NoError(t, err)
	assert.False(t, join.Ready)
	assert.Equal(t, []string{"Right"}, join.Waiting)
	assert.False(t, join.Blocked)

	h.complete(t, "wf", "Right", ctypes.StateStatusDone)
	join, err = h.engine.Ready(ctx, "wf", "Join")
	require.NoError(t, err)
	assert.True(t, join.Ready)
}

func TestReadinessIsMonotonic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)
	h.complete(t, "wf", "A", ctypes.StateStatusDone)

	// A done state cannot be downgraded through the transition writer.
	_, err := h.engine.UpdateState(ctx, UpdateRequest{WorkflowID: "wf", State: "A", Status: ctypes.StateStatusRunning})
	assert.ErrorIs(t, err, cerrors.ErrInvalidTransition)

	for i := 0; i < 5; i++ {
		res, err := h.engine.Ready(ctx, "wf", "B")
		require.NoError(t, err)
		assert.True(t, res.Ready)
	}
}

func TestReadinessBlockedByFailedUpstream(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "wf", linearDefinition(), nil)
	h.complete(t, "wf", "A", ctypes.StateStatusFailed)

	res, err := h.engine.Ready(context.Background(), "wf", "B")
	require.NoError(t, err)
	assert.False(t, res.Ready)
	assert.True(t, res.Blocked)
	assert.Equal(t, ctypes.StateStatusFailed, res.Upstream["A"])
}

func TestReadinessTreatsMissingUpstreamAsPending(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "wf", linearDefinition(), nil)
	h.store.Delete(h.engine.Keys().State("wf", "A"))

	res, err := h.engine.Ready(context.Background(), "wf", "B")
	require.NoError(t, err)
	assert.False(t, res.Ready)
	assert.Equal(t, ctypes.StateStatusPending, res.Upstream["A"])
}
