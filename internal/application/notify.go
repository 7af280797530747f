package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/metric"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type NotifyRequest struct {
	WorkflowID string
	// SourceState empty means the workflow is starting.
	SourceState      string
	IncludeOnlyReady *bool // default true
}

type DispatchedEvent struct {
	TargetState string               `json:"target_state"`
	Executor    string               `json:"executor,omitempty"`
	MessageID   string               `json:"message_id,omitempty"`
	Error       string               `json:"error,omitempty"`
	Event       models.WorkflowEvent `json:"event"`
}

type NotifyResult struct {
	Reason     ctypes.EventReason `json:"reason"`
	Candidates []string           `json:"candidates"`
	NotReady   []string           `json:"not_ready,omitempty"`
	// Unreachable lists initial candidates that have no upstream but are not
	// the start state. They are still dispatched.
	Unreachable []string          `json:"unreachable,omitempty"`
	Dispatched  []DispatchedEvent `json:"dispatched"`
}

// Notify emits one coordination message per ready candidate. Delivery is
// fire-and-forget: a failed publish is logged and reported, never retried.
func (e *Engine) Notify(ctx context.Context, req NotifyRequest) (res NotifyResult, err error) {
	var outcome ctypes.Outcome
	defer e.observe("notify", &outcome, &err, time.Now())

	if req.WorkflowID == "" {
		return res, fmt.Errorf("%w: workflow id is required", cerrors.ErrInvalidRequest)
	}
	topo, err := e.loadTopology(ctx, req.WorkflowID)
	if err != nil {
		return res, err
	}

	var source *string
	if req.SourceState == "" {
		res.Reason = ctypes.EventReasonInitial
		for name, deps := range topo.Deps {
			if len(deps.Upstream) == 0 {
				res.Candidates = append(res.Candidates, name)
			}
		}
		sort.Strings(res.Candidates)
		for _, name := range res.Candidates {
			if topo.Start != "" && name != topo.Start {
				res.Unreachable = append(res.Unreachable, name)
			}
		}
		if len(res.Unreachable) > 0 {
			log.Warn().
				Str("workflow_id", req.WorkflowID).
				Str("start_state", topo.Start).
				Strs("states", res.Unreachable).
				Msg("initial notify targets states unreachable from the start state")
		}
	} else {
		deps, ok := topo.Deps[req.SourceState]
		if !ok {
			return res, unknownState(req.WorkflowID, req.SourceState)
		}
		src := req.SourceState
		source = &src
		res.Reason = ctypes.EventReasonUpstreamDone
		res.Candidates = append(res.Candidates, deps.Downstream...)
	}
	if res.Candidates == nil {
		res.Candidates = []string{}
	}
	res.Dispatched = []DispatchedEvent{}

	targets := res.Candidates
	if boolOr(req.IncludeOnlyReady, true) {
		targets, res.NotReady, err = e.filterReady(ctx, req.WorkflowID, res.Candidates, topo)
		if err != nil {
			return res, err
		}
	}
	if len(targets) == 0 {
		return res, nil
	}

	// Executor assignments are mutable, so meta is re-read here.
	meta, _, err := e.docs.LoadMeta(ctx, req.WorkflowID)
	if err != nil {
		return res, err
	}
	now := e.now()
	keys := e.docs.Keys()
	for _, target := range targets {
		event := models.WorkflowEvent{
			Type:           models.WorkflowEventType,
			WorkflowID:     req.WorkflowID,
			TargetState:    target,
			SourceState:    source,
			Reason:         res.Reason,
			TargetExecutor: meta.Executors[target],
			StoreKeys: models.StoreKeys{
				MetaKey:   keys.Meta(req.WorkflowID),
				StateKey:  keys.State(req.WorkflowID, target),
				OutputKey: keys.Output(req.WorkflowID, target),
			},
			EmittedAt: now,
		}
		dispatched := DispatchedEvent{TargetState: target, Executor: event.TargetExecutor, Event: event}
		if e.publisher == nil {
			dispatched.Error = "no event publisher configured"
			log.Warn().Str("workflow_id", req.WorkflowID).Str("state", target).Msg("dropping workflow event, no publisher")
		} else if pub, err := e.publisher.PublishWorkflowEvent(ctx, event); err != nil {
			dispatched.Error = err.Error()
			metric.ObserveEventPublish(false)
			log.Warn().Err(err).Str("workflow_id", req.WorkflowID).Str("state", target).Msg("failed to publish workflow event")
		} else {
			dispatched.MessageID = pub.MessageID
			metric.ObserveEventPublish(true)
		}
		res.Dispatched = append(res.Dispatched, dispatched)
	}
	log.Info().
		Str("workflow_id", req.WorkflowID).
		Str("reason", string(res.Reason)).
		Int("dispatched", len(res.Dispatched)).
		Msg("notified downstream states")
	return res, nil
}

func (e *Engine) filterReady(ctx context.Context, workflowID string, candidates []string, topo topology) ([]string, []string, error) {
	ready := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range candidates {
		i, name := i, name
		g.Go(func() error {
			r, err := e.readiness(gctx, workflowID, name, topo)
			if err != nil {
				return err
			}
			ready[i] = r.Ready
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	var in, out []string
	for i, name := range candidates {
		if ready[i] {
			in = append(in, name)
		} else {
			out = append(out, name)
		}
	}
	return in, out, nil
}
