package application

import (
	"context"
	"time"

	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/rs/zerolog/log"
)

type AssignRequest struct {
	WorkflowID string
	State      string
	// Executor empty removes the assignment.
	Executor string
}

type AssignResult struct {
	Outcome  ctypes.Outcome `json:"outcome"`
	Previous string         `json:"previous,omitempty"`
	Executor string         `json:"executor,omitempty"`
}

// AssignExecutor sets which executor owns state. It is the only write to
// meta besides finalize.
func (e *Engine) AssignExecutor(ctx context.Context, req AssignRequest) (res AssignResult, err error) {
	defer e.observe("assign_executor", &res.Outcome, &err, time.Now())

	if err := requireIDs(req.WorkflowID, req.State); err != nil {
		return res, err
	}
	err = e.casLoop(ctx, "assign_executor", func() error {
		res = AssignResult{Executor: req.Executor}
		meta, version, err := e.docs.LoadMeta(ctx, req.WorkflowID)
		if err != nil {
			return err
		}
		if meta.FinalizedAt != nil {
			return cerrors.ErrWorkflowFinalized
		}
		if !meta.HasState(req.State) {
			return unknownState(req.WorkflowID, req.State)
		}
		res.Previous = meta.Executors[req.State]
		if res.Previous == req.Executor {
			res.Outcome = ctypes.OutcomeExecutorUnchanged
			return nil
		}
		if meta.Executors == nil {
			meta.Executors = map[string]string{}
		}
		if req.Executor == "" {
			delete(meta.Executors, req.State)
		} else {
			meta.Executors[req.State] = req.Executor
		}
		_, applied, err := e.docs.CASMeta(ctx, version, meta)
		if err != nil {
			return err
		}
		if !applied {
			return cerrors.ErrCASConflict
		}
		res.Outcome = ctypes.OutcomeExecutorAssigned
		return nil
	})
	if err != nil {
		if isContention(err) {
			res.Outcome = ctypes.OutcomeContention
		}
		return res, err
	}
	log.Info().
		Str("workflow_id", req.WorkflowID).
		Str("state", req.State).
		Str("executor", req.Executor).
		Str("outcome", string(res.Outcome)).
		Msg("executor assignment")
	return res, nil
}
