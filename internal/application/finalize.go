package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/rs/zerolog/log"
)

type FinalizeRequest struct {
	WorkflowID      string
	CloseOpenStates *bool // default true
	DeleteExecutors *bool // default true
	StatusOverride  ctypes.WorkflowStatus
	Note            string
}

type FinalizeResult struct {
	Outcome ctypes.Outcome     `json:"outcome"`
	Audit   models.AuditRecord `json:"audit"`
	// CloseFailures lists states the finalizer tried and failed to cancel.
	CloseFailures []string `json:"close_failures,omitempty"`
}

// Finalize closes the workflow and writes its audit record exactly once. A
// second call returns the stored audit and writes nothing.
func (e *Engine) Finalize(ctx context.Context, req FinalizeRequest) (res FinalizeResult, err error) {
	defer e.observe("finalize", &res.Outcome, &err, time.Now())

	if req.WorkflowID == "" {
		return res, fmt.Errorf("%w: workflow id is required", cerrors.ErrInvalidRequest)
	}
	override := ctypes.NormalizeWorkflowStatus(string(req.StatusOverride))
	if override != "" && !override.IsFinal() {
		return res, fmt.Errorf("%w: %q is not a final workflow status", cerrors.ErrInvalidRequest, req.StatusOverride)
	}

	existing, err := e.docs.GetAudit(ctx, req.WorkflowID)
	switch {
	case err == nil:
		res.Outcome = ctypes.OutcomeAlreadyFinalized
		res.Audit = existing
		log.Info().Str("workflow_id", req.WorkflowID).Msg("workflow already finalized, returning stored audit")
		return res, nil
	case !errors.Is(err, cerrors.ErrNotFound):
		return res, err
	}

	meta, _, err := e.docs.LoadMeta(ctx, req.WorkflowID)
	if err != nil {
		return res, err
	}
	docs, err := e.loadStates(ctx, req.WorkflowID, meta.States)
	if err != nil {
		return res, err
	}

	outcomes := make(map[string]models.StateOutcome, len(docs))
	for _, name := range meta.States {
		doc := docs[name]
		closed := false
		if !doc.Status.IsTerminal() && boolOr(req.CloseOpenStates, true) {
			cancelled, err := e.closeState(ctx, req.WorkflowID, name, req.Note)
			if err != nil {
				log.Warn().Err(err).Str("workflow_id", req.WorkflowID).Str("state", name).
					Msg("finalizer could not cancel open state")
				res.CloseFailures = append(res.CloseFailures, name)
			} else {
				doc = cancelled
				closed = true
			}
		}
		outcomes[name] = models.StateOutcome{
			Status:     doc.Status,
			Attempts:   doc.Attempts,
			Executor:   meta.Executors[name],
			StartedAt:  doc.StartedAt,
			FinishedAt: doc.FinishedAt,
			LastError:  doc.LastError(),
			Closed:     closed,
		}
	}

	status := overallStatus(outcomes)
	overridden := false
	if override != "" {
		overridden = override != status
		status = override
	}

	var teardowns []models.ExecutorTeardown
	if boolOr(req.DeleteExecutors, true) {
		teardowns = e.teardownExecutors(ctx, req.WorkflowID, meta.Executors)
	}
	cost, err := e.costSummary(ctx, req.WorkflowID)
	if err != nil {
		log.Warn().Err(err).Str("workflow_id", req.WorkflowID).Msg("finalizer could not aggregate tier records")
	}

	now := e.now()
	audit := models.AuditRecord{
		WorkflowID:  req.WorkflowID,
		FinalStatus: status,
		Overridden:  overridden,
		States:      outcomes,
		Cost:        cost,
		Executors:   teardowns,
		Note:        req.Note,
		FinalizedAt: now,
	}
	stored, created, err := e.docs.CreateAudit(ctx, audit)
	if err != nil {
		return res, err
	}
	res.Audit = stored
	if !created {
		// A concurrent finalizer won; its audit stands.
		res.Outcome = ctypes.OutcomeAlreadyFinalized
		return res, nil
	}
	res.Outcome = ctypes.OutcomeFinalized

	if err := e.markFinalized(ctx, req.WorkflowID, status, now); err != nil {
		log.Warn().Err(err).Str("workflow_id", req.WorkflowID).Msg("audit written but meta status not updated")
	}
	log.Info().
		Str("workflow_id", req.WorkflowID).
		Str("final_status", string(status)).
		Int("close_failures", len(res.CloseFailures)).
		Msg("workflow finalized")
	return res, nil
}

// overallStatus: succeeded if every state succeeded, cancelled if every
// state was cancelled, failed if something failed and nothing succeeded,
// partial otherwise.
func overallStatus(outcomes map[string]models.StateOutcome) ctypes.WorkflowStatus {
	var succeeded, failed, cancelled int
	for _, o := range outcomes {
		switch {
		case o.Status.IsSuccess():
			succeeded++
		case o.Status == ctypes.StateStatusFailed:
			failed++
		case o.Status == ctypes.StateStatusCancelled:
			cancelled++
		}
	}
	total := len(outcomes)
	switch {
	case total > 0 && succeeded == total:
		return ctypes.WorkflowStatusSucceeded
	case total > 0 && cancelled == total:
		return ctypes.WorkflowStatusCancelled
	case failed > 0 && succeeded == 0:
		return ctypes.WorkflowStatusFailed
	default:
		return ctypes.WorkflowStatusPartial
	}
}

func (e *Engine) closeState(ctx context.Context, workflowID, state, note string) (models.StateDocument, error) {
	var closed models.StateDocument
	err := e.casLoop(ctx, "finalize_close_state", func() error {
		doc, version, err := e.docs.LoadState(ctx, workflowID, state)
		if err != nil {
			return err
		}
		if doc.Status.IsTerminal() {
			closed = doc
			return nil
		}
		now := e.now()
		doc.Status = ctypes.StateStatusCancelled
		doc.Lease = nil
		doc.FinishedAt = timePtr(now)
		doc.UpdatedAt = now
		msg := "cancelled by finalizer"
		if note != "" {
			msg += ": " + note
		}
		doc.Errors = append(doc.Errors, models.ErrorRecord{Message: msg, At: now})
		_, applied, err := e.docs.CASState(ctx, version, doc)
		if err != nil {
			return err
		}
		if !applied {
			return cerrors.ErrCASConflict
		}
		closed = doc
		return nil
	})
	return closed, err
}

func (e *Engine) teardownExecutors(ctx context.Context, workflowID string, executors map[string]string) []models.ExecutorTeardown {
	unique := make(map[string]struct{}, len(executors))
	for _, ex := range executors {
		if ex != "" {
			unique[ex] = struct{}{}
		}
	}
	names := make([]string, 0, len(unique))
	for ex := range unique {
		names = append(names, ex)
	}
	sort.Strings(names)

	out := make([]models.ExecutorTeardown, 0, len(names))
	for _, ex := range names {
		td := models.ExecutorTeardown{Executor: ex}
		if e.runtime == nil {
			td.Error = "no executor runtime configured"
			out = append(out, td)
			continue
		}
		td.Requested = true
		if err := e.runtime.TeardownExecutor(ctx, workflowID, ex); err != nil {
			td.Error = err.Error()
			log.Warn().Err(err).Str("workflow_id", workflowID).Str("executor", ex).Msg("executor teardown failed")
		} else {
			td.Succeeded = true
		}
		out = append(out, td)
	}
	return out
}

func (e *Engine) costSummary(ctx context.Context, workflowID string) (*models.CostSummary, error) {
	tiers, err := e.docs.ListTiers(ctx, workflowID)
	if err != nil || len(tiers) == 0 {
		return nil, err
	}
	summary := &models.CostSummary{StatesByTier: make(map[string]int)}
	for _, t := range tiers {
		summary.StatesByTier[strconv.Itoa(t.Tier)]++
		summary.TotalCost += t.Cost
		if t.Tier > summary.MaxTier {
			summary.MaxTier = t.Tier
		}
	}
	return summary, nil
}

func (e *Engine) markFinalized(ctx context.Context, workflowID string, status ctypes.WorkflowStatus, at time.Time) error {
	return e.casLoop(ctx, "finalize_meta", func() error {
		meta, version, err := e.docs.LoadMeta(ctx, workflowID)
		if err != nil {
			return err
		}
		meta.Status = status
		meta.FinalizedAt = timePtr(at)
		_, applied, err := e.docs.CASMeta(ctx, version, meta)
		if err != nil {
			return err
		}
		if !applied {
			return cerrors.ErrCASConflict
		}
		return nil
	})
}
