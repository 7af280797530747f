package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Meesho/BharatMLStack/choreographer/internal/adapters/memory"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/Meesho/BharatMLStack/choreographer/internal/ports"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) acquire(t *testing.T, workflowID, state, owner string) AcquireResult {
	t.Helper()
	res, err := h.engine.AcquireLease(context.Background(), AcquireRequest{WorkflowID: workflowID, State: state, Owner: owner})
	require.NoError(t, err)
	require.True(t, res.Outcome.IsSuccess(), "acquire %s: %s", state, res.Outcome)
	return res
}

func TestUpdateCompletesStateWithOutput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)
	lease := h.acquire(t, "wf", "A", "w1")

	res, err := h.engine.UpdateState(ctx, UpdateRequest{
		WorkflowID: "wf",
		State:      "A",
		Status:     ctypes.StateStatusDone,
		LeaseToken: lease.Token,
		Output:     json.RawMessage(`{"rows":42}`),
	})
	require.NoError(t, err)
	assert.Equal(t, ctypes.OutcomeUpdated, res.Outcome)
	assert.Equal(t, ctypes.StateStatusRunning, res.PreviousStatus)
	assert.True(t, res.OutputWritten)
	require.NotNil(t, res.FinishedAt)

	doc, err := h.engine.GetState(ctx, "wf", "A")
	require.NoError(t, err)
	assert.Equal(t, ctypes.StateStatusDone, doc.Status)
	assert.Nil(t, doc.Lease)
	assert.NotNil(t, doc.FinishedAt)

	out, err := h.engine.GetOutput(ctx, "wf", "A")
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows":42}`, string(out.Payload))
	assert.Equal(t, 1, out.Attempt)
}

func TestUpdateStaleTokenWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)
	h.acquire(t, "wf", "A", "w1")
	before := h.snapshot(t, "wf")

	res, err := h.engine.UpdateState(ctx, UpdateRequest{
		WorkflowID: "wf",
		State:      "A",
		Status:     ctypes.StateStatusDone,
		LeaseToken: "not-the-token",
		Output:     json.RawMessage(`{"late":true}`),
	})
	require.NoError(t, err)
	assert.Equal(t, ctypes.OutcomeStaleToken, res.Outcome)
	assert.False(t, res.OutputWritten)
	assert.Equal(t, before, h.snapshot(t, "wf"))

	_, err = h.engine.GetOutput(ctx, "wf", "A")
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}

func TestUpdateRejectsInvalidTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)

	_, err := h.engine.UpdateState(ctx, UpdateRequest{WorkflowID: "wf", State: "A", Status: ctypes.StateStatusDone})
	assert.ErrorIs(t, err, cerrors.ErrInvalidTransition)

	h.complete(t, "wf", "A", ctypes.StateStatusFailed)
	_, err = h.engine.UpdateState(ctx, UpdateRequest{WorkflowID: "wf", State: "A", Status: ctypes.StateStatusSucceeded})
	assert.ErrorIs(t, err, cerrors.ErrInvalidTransition)

	_, err = h.engine.UpdateState(ctx, UpdateRequest{WorkflowID: "wf", State: "A", Status: "exploded"})
	assert.ErrorIs(t, err, cerrors.ErrInvalidRequest)

	_, err = h.engine.UpdateState(ctx, UpdateRequest{WorkflowID: "wf", State: "B", Output: json.RawMessage(`{not json`)})
	assert.ErrorIs(t, err, cerrors.ErrInvalidRequest)
}

func TestUpdateKeepsUnsuppliedFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)
	lease := h.acquire(t, "wf", "A", "w1")

	res, err := h.engine.UpdateState(ctx, UpdateRequest{WorkflowID: "wf", State: "A", ErrorMessage: "retrying upstream call"})
	require.NoError(t, err)
	assert.Equal(t, ctypes.StateStatusRunning, res.Status)
	assert.False(t, res.OutputWritten)

	doc, err := h.engine.GetState(ctx, "wf", "A")
	require.NoError(t, err)
	assert.Equal(t, ctypes.StateStatusRunning, doc.Status)
	require.NotNil(t, doc.Lease)
	assert.Equal(t, lease.Token, doc.Lease.Token)
	assert.Nil(t, doc.FinishedAt)
	assert.Equal(t, "retrying upstream call", doc.LastError())

	_, err = h.engine.UpdateState(ctx, UpdateRequest{WorkflowID: "wf", State: "A", Status: ctypes.StateStatusFailed, ErrorMessage: "gave up"})
	require.NoError(t, err)
	doc, err = h.engine.GetState(ctx, "wf", "A")
	require.NoError(t, err)
	require.Len(t, doc.Errors, 2)
	assert.Equal(t, "gave up", doc.LastError())
	assert.Nil(t, doc.Lease)
}

func TestUpdateOutputTracksAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)
	h.acquire(t, "wf", "A", "w1")
	h.clock.Advance(2 * testConfig().DefaultLeaseTTL)
	second := h.acquire(t, "wf", "A", "w2")
	assert.Equal(t, ctypes.OutcomeStolen, second.Outcome)
	assert.Equal(t, 2, second.Attempts)

	_, err := h.engine.UpdateState(ctx, UpdateRequest{
		WorkflowID: "wf",
		State:      "A",
		Status:     ctypes.StateStatusDone,
		LeaseToken: second.Token,
		Output:     json.RawMessage(`"second"`),
	})
	require.NoError(t, err)
	out, err := h.engine.GetOutput(ctx, "wf", "A")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempt)
}

func TestUpdateFinishedAtOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)
	h.acquire(t, "wf", "A", "w1")

	res, err := h.engine.UpdateState(ctx, UpdateRequest{WorkflowID: "wf", State: "A", Status: ctypes.StateStatusDone, SetFinishedAt: boolPtr(false)})
	require.NoError(t, err)
	assert.Nil(t, res.FinishedAt)
}

// hookedStore runs a one-shot hook right before the first conditional write
// to a chosen key, so a competing executor can act in between.
type hookedStore struct {
	ports.DocumentStore
	mu     sync.Mutex
	key    string
	before func()
}

func (s *hookedStore) arm(key string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key, s.before = key, fn
}

func (s *hookedStore) fire(key string) {
	s.mu.Lock()
	fn := s.before
	if key != s.key {
		fn = nil
	}
	if fn != nil {
		s.before = nil
	}
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *hookedStore) Create(ctx context.Context, key string, value []byte) (ports.Document, bool, error) {
	s.fire(key)
	return s.DocumentStore.Create(ctx, key, value)
}

func (s *hookedStore) CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (ports.Document, bool, error) {
	s.fire(key)
	return s.DocumentStore.CompareAndSwap(ctx, key, version, value)
}

// stealAndComplete expires w1's lease, lets w2 take the state over and
// finish it with its own output.
func (h *harness) stealAndComplete(t *testing.T, workflowID, state string) AcquireResult {
	t.Helper()
	h.clock.Advance(2 * testConfig().DefaultLeaseTTL)
	stolen := h.acquire(t, workflowID, state, "w2")
	require.Equal(t, ctypes.OutcomeStolen, stolen.Outcome)
	res, err := h.engine.UpdateState(context.Background(), UpdateRequest{
		WorkflowID: workflowID,
		State:      state,
		Status:     ctypes.StateStatusDone,
		LeaseToken: stolen.Token,
		Output:     json.RawMessage(`{"by":"w2"}`),
	})
	require.NoError(t, err)
	require.Equal(t, ctypes.OutcomeUpdated, res.Outcome)
	require.True(t, res.OutputWritten)
	return stolen
}

func TestUpdateStolenBeforeCommitKeepsNewerOutput(t *testing.T) {
	store := &hookedStore{DocumentStore: memory.NewDocumentStore()}
	h := newHarnessWithStore(t, store)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)
	first := h.acquire(t, "wf", "A", "w1")

	store.arm(h.engine.Keys().State("wf", "A"), func() { h.stealAndComplete(t, "wf", "A") })
	res, err := h.engine.UpdateState(ctx, UpdateRequest{
		WorkflowID: "wf",
		State:      "A",
		Status:     ctypes.StateStatusDone,
		LeaseToken: first.Token,
		Output:     json.RawMessage(`{"by":"w1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, ctypes.OutcomeStaleToken, res.Outcome)
	assert.False(t, res.OutputWritten)

	out, err := h.engine.GetOutput(ctx, "wf", "A")
	require.NoError(t, err)
	assert.JSONEq(t, `{"by":"w2"}`, string(out.Payload))
	assert.Equal(t, 2, out.Attempt)
	doc, err := h.engine.GetState(ctx, "wf", "A")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Attempts)
}

func TestUpdateStolenBeforeOutputWriteKeepsNewerOutput(t *testing.T) {
	store := &hookedStore{DocumentStore: memory.NewDocumentStore()}
	h := newHarnessWithStore(t, store)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)
	first := h.acquire(t, "wf", "A", "w1")

	// w1 attaches progress output without a transition; w2 takes over after
	// the state write and before the output write.
	store.arm(h.engine.Keys().Output("wf", "A"), func() { h.stealAndComplete(t, "wf", "A") })
	res, err := h.engine.UpdateState(ctx, UpdateRequest{
		WorkflowID: "wf",
		State:      "A",
		LeaseToken: first.Token,
		Output:     json.RawMessage(`{"by":"w1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, ctypes.OutcomeUpdated, res.Outcome)
	assert.False(t, res.OutputWritten)

	out, err := h.engine.GetOutput(ctx, "wf", "A")
	require.NoError(t, err)
	assert.JSONEq(t, `{"by":"w2"}`, string(out.Payload))
	assert.Equal(t, 2, out.Attempt)
}

func TestUpdateSameAttemptReplacesOutput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "wf", linearDefinition(), nil)
	lease := h.acquire(t, "wf", "A", "w1")

	for _, payload := range []string{`{"step":1}`, `{"step":2}`} {
		res, err := h.engine.UpdateState(ctx, UpdateRequest{WorkflowID: "wf", State: "A", LeaseToken: lease.Token, Output: json.RawMessage(payload)})
		require.NoError(t, err)
		assert.True(t, res.OutputWritten)
	}
	out, err := h.engine.GetOutput(ctx, "wf", "A")
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":2}`, string(out.Payload))
	assert.Equal(t, 1, out.Attempt)
}
