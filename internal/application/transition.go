package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/rs/zerolog/log"
)

type UpdateRequest struct {
	WorkflowID string
	State      string
	// Status may be empty to attach output or an error without a transition.
	Status ctypes.StateStatus
	// LeaseToken, when set, must match the current lease.
	LeaseToken   string
	Output       json.RawMessage
	ErrorMessage string
	// SetFinishedAt defaults to true for terminal statuses.
	SetFinishedAt *bool
}

type UpdateResult struct {
	Outcome        ctypes.Outcome     `json:"outcome"`
	PreviousStatus ctypes.StateStatus `json:"previous_status,omitempty"`
	Status         ctypes.StateStatus `json:"status,omitempty"`
	Attempts       int                `json:"attempts"`
	OutputWritten  bool               `json:"output_written"`
	FinishedAt     *time.Time         `json:"finished_at,omitempty"`
}

// UpdateState records a status change plus optional output and error text.
// Only supplied fields change. The state document is committed first; the
// output record is then written under the attempt that produced it and is
// never allowed to replace the output of a newer attempt.
func (e *Engine) UpdateState(ctx context.Context, req UpdateRequest) (res UpdateResult, err error) {
	defer e.observe("update_state", &res.Outcome, &err, time.Now())

	if err := requireIDs(req.WorkflowID, req.State); err != nil {
		return res, err
	}
	next := ctypes.NormalizeStateStatus(string(req.Status))
	if next != "" && !next.IsKnown() {
		return res, fmt.Errorf("%w: unknown status %q", cerrors.ErrInvalidRequest, req.Status)
	}
	if len(req.Output) > 0 && !json.Valid(req.Output) {
		return res, fmt.Errorf("%w: output must be valid JSON", cerrors.ErrInvalidRequest)
	}

	var committedAt time.Time
	err = e.casLoop(ctx, "update_state", func() error {
		res = UpdateResult{}
		doc, version, err := e.docs.LoadState(ctx, req.WorkflowID, req.State)
		if err != nil {
			return err
		}
		res.PreviousStatus = doc.Status
		res.Attempts = doc.Attempts
		if req.LeaseToken != "" && (doc.Lease == nil || doc.Lease.Token != req.LeaseToken) {
			res.Outcome = ctypes.OutcomeStaleToken
			return nil
		}
		target := next
		if target == "" {
			target = doc.Status
		}
		if !doc.Status.CanTransition(target) {
			return fmt.Errorf("%w: %s -> %s for state %q", cerrors.ErrInvalidTransition, doc.Status, target, req.State)
		}

		now := e.now()
		doc.Status = target
		if target == ctypes.StateStatusRunning && doc.StartedAt == nil {
			doc.StartedAt = timePtr(now)
		}
		if target.IsTerminal() {
			doc.Lease = nil
		}
		if boolOr(req.SetFinishedAt, target.IsTerminal()) {
			doc.FinishedAt = timePtr(now)
		}
		if req.ErrorMessage != "" {
			doc.Errors = append(doc.Errors, models.ErrorRecord{Message: req.ErrorMessage, At: now})
		}
		doc.UpdatedAt = now

		_, applied, err := e.docs.CASState(ctx, version, doc)
		if err != nil {
			return err
		}
		if !applied {
			return cerrors.ErrCASConflict
		}
		committedAt = now
		res.Outcome = ctypes.OutcomeUpdated
		res.Status = doc.Status
		res.FinishedAt = doc.FinishedAt
		return nil
	})
	if err != nil {
		if isContention(err) {
			res.Outcome = ctypes.OutcomeContention
		}
		return res, err
	}
	if res.Outcome == ctypes.OutcomeStaleToken {
		log.Info().Str("workflow_id", req.WorkflowID).Str("state", req.State).
			Msg("update rejected, lease token is stale")
		logOutcome("update_state", req.WorkflowID, req.State, res.Outcome)
		return res, nil
	}

	if len(req.Output) > 0 {
		rec := models.OutputRecord{
			WorkflowID: req.WorkflowID,
			State:      req.State,
			Attempt:    res.Attempts,
			Payload:    req.Output,
			WrittenAt:  committedAt,
		}
		written, err := e.writeOutput(ctx, rec)
		if err != nil {
			if isContention(err) {
				res.Outcome = ctypes.OutcomeContention
			}
			return res, err
		}
		res.OutputWritten = written
	}
	logOutcome("update_state", req.WorkflowID, req.State, res.Outcome)
	return res, nil
}

// writeOutput stores rec unless the stored output belongs to a later attempt.
// It reports whether rec was written.
func (e *Engine) writeOutput(ctx context.Context, rec models.OutputRecord) (bool, error) {
	written := false
	err := e.casLoop(ctx, "write_output", func() error {
		written = false
		current, version, err := e.docs.LoadOutput(ctx, rec.WorkflowID, rec.State)
		switch {
		case errors.Is(err, cerrors.ErrNotFound):
			_, _, created, err := e.docs.CreateOutput(ctx, rec)
			if err != nil {
				return err
			}
			if !created {
				return cerrors.ErrCASConflict
			}
		case err != nil:
			return err
		case current.Attempt > rec.Attempt:
			log.Warn().
				Str("workflow_id", rec.WorkflowID).
				Str("state", rec.State).
				Int("attempt", rec.Attempt).
				Int("stored_attempt", current.Attempt).
				Msg("output dropped, a later attempt already wrote one")
			return nil
		default:
			_, applied, err := e.docs.CASOutput(ctx, version, rec)
			if err != nil {
				return err
			}
			if !applied {
				return cerrors.ErrCASConflict
			}
		}
		written = true
		return nil
	})
	return written, err
}
