package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"golang.org/x/sync/errgroup"
)

type ReadinessResult struct {
	WorkflowID string                        `json:"workflow_id"`
	State      string                        `json:"state"`
	Ready      bool                          `json:"ready"`
	Upstream   map[string]ctypes.StateStatus `json:"upstream"`
	// Waiting lists upstream states that have not succeeded yet.
	Waiting []string `json:"waiting,omitempty"`
	// Blocked is true when an upstream state failed or was cancelled, so the
	// state can never become ready without outside intervention.
	Blocked bool `json:"blocked"`
}

// Ready reports whether every upstream state of state reached a success
// terminal status. It performs no writes.
func (e *Engine) Ready(ctx context.Context, workflowID, state string) (res ReadinessResult, err error) {
	var outcome ctypes.Outcome
	defer e.observe("ready", &outcome, &err, time.Now())

	if err := requireIDs(workflowID, state); err != nil {
		return res, err
	}
	topo, err := e.loadTopology(ctx, workflowID)
	if err != nil {
		return res, err
	}
	return e.readiness(ctx, workflowID, state, topo)
}

func (e *Engine) readiness(ctx context.Context, workflowID, state string, topo topology) (ReadinessResult, error) {
	deps, ok := topo.Deps[state]
	if !ok {
		return ReadinessResult{}, unknownState(workflowID, state)
	}
	res := ReadinessResult{
		WorkflowID: workflowID,
		State:      state,
		Upstream:   make(map[string]ctypes.StateStatus, len(deps.Upstream)),
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, up := range deps.Upstream {
		up := up
		g.Go(func() error {
			doc, _, err := e.docs.LoadState(gctx, workflowID, up)
			status := doc.Status
			if errors.Is(err, cerrors.ErrNotFound) {
				// Not seeded yet.
				status = ctypes.StateStatusPending
			} else if err != nil {
				return err
			}
			mu.Lock()
			res.Upstream[up] = status
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReadinessResult{}, err
	}
	for _, up := range deps.Upstream {
		status := res.Upstream[up]
		if status.IsSuccess() {
			continue
		}
		res.Waiting = append(res.Waiting, up)
		if status.IsTerminal() {
			res.Blocked = true
		}
	}
	res.Ready = len(res.Waiting) == 0
	return res, nil
}

// loadStates reads the named state documents in parallel. A missing
// document reads as pending.
func (e *Engine) loadStates(ctx context.Context, workflowID string, names []string) (map[string]models.StateDocument, error) {
	out := make(map[string]models.StateDocument, len(names))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			doc, _, err := e.docs.LoadState(gctx, workflowID, name)
			if errors.Is(err, cerrors.ErrNotFound) {
				doc = models.StateDocument{WorkflowID: workflowID, Name: name, Status: ctypes.StateStatusPending}
			} else if err != nil {
				return err
			}
			mu.Lock()
			out[name] = doc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
