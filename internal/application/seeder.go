package application

import (
	"context"
	"fmt"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/Meesho/BharatMLStack/choreographer/internal/graph"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/rs/zerolog/log"
)

type SeedRequest struct {
	WorkflowID string
	Definition graph.Definition
	// Capabilities and Executors are stored on meta as given.
	Capabilities map[string][]string
	Executors    map[string]string
}

type SeedResult struct {
	WorkflowID  string   `json:"workflow_id"`
	Fingerprint string   `json:"fingerprint"`
	Created     []string `json:"created"`
	Existing    []string `json:"existing"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Seed materializes the meta document and one state document per state.
// Every write is create-if-absent, so a retried or concurrent seed of the
// same graph never overwrites anything.
func (e *Engine) Seed(ctx context.Context, req SeedRequest) (res SeedResult, err error) {
	var outcome ctypes.Outcome
	defer e.observe("seed", &outcome, &err, time.Now())

	if req.WorkflowID == "" {
		return res, fmt.Errorf("%w: workflow id is required", cerrors.ErrInvalidRequest)
	}
	topo, err := graph.Build(req.Definition)
	if err != nil {
		return res, err
	}
	res = SeedResult{
		WorkflowID:  req.WorkflowID,
		Fingerprint: topo.Fingerprint,
		Created:     []string{},
		Existing:    []string{},
		Warnings:    topo.Warnings(),
	}
	for _, w := range res.Warnings {
		log.Warn().Str("workflow_id", req.WorkflowID).Msg(w)
	}

	now := e.now()
	executors := req.Executors
	if executors == nil {
		executors = map[string]string{}
	}
	meta := models.WorkflowMeta{
		WorkflowID:   req.WorkflowID,
		StartState:   topo.Start,
		States:       topo.States,
		Terminal:     topo.Terminal,
		Deps:         topo.Deps,
		Executors:    executors,
		Capabilities: req.Capabilities,
		Fingerprint:  topo.Fingerprint,
		Status:       ctypes.WorkflowStatusActive,
		CreatedAt:    now,
	}
	stored, _, created, err := e.docs.CreateMeta(ctx, meta)
	if err != nil {
		return res, err
	}
	metaKey := e.docs.Keys().Meta(req.WorkflowID)
	if created {
		res.Created = append(res.Created, metaKey)
	} else {
		if stored.Fingerprint != topo.Fingerprint {
			return res, fmt.Errorf("%w: %s has fingerprint %s, request has %s",
				cerrors.ErrWorkflowConflict, req.WorkflowID, stored.Fingerprint, topo.Fingerprint)
		}
		res.Existing = append(res.Existing, metaKey)
	}

	for _, name := range topo.States {
		doc := models.StateDocument{
			WorkflowID: req.WorkflowID,
			Name:       name,
			Status:     ctypes.StateStatusPending,
			Errors:     []models.ErrorRecord{},
			UpdatedAt:  now,
		}
		_, _, created, err := e.docs.CreateState(ctx, doc)
		if err != nil {
			return res, fmt.Errorf("seed state %q: %w", name, err)
		}
		key := e.docs.Keys().State(req.WorkflowID, name)
		if created {
			res.Created = append(res.Created, key)
		} else {
			res.Existing = append(res.Existing, key)
		}
	}
	e.topology.put(req.WorkflowID, topology{States: topo.States, Deps: topo.Deps, Fingerprint: topo.Fingerprint})

	log.Info().
		Str("workflow_id", req.WorkflowID).
		Int("created", len(res.Created)).
		Int("existing", len(res.Existing)).
		Msg("workflow seeded")
	return res, nil
}
