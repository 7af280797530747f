package application

import (
	"context"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/complexity"
	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/rs/zerolog/log"
)

type TierRequest struct {
	WorkflowID string
	State      string
	Score      complexity.Request
}

type TierResult struct {
	Record models.TierRecord `json:"record"`
	Score  complexity.Result `json:"score"`
}

// RecordTier scores state and stores the recommendation for the finalizer's
// cost summary. The latest recording for a state wins.
func (e *Engine) RecordTier(ctx context.Context, req TierRequest) (res TierResult, err error) {
	var outcome ctypes.Outcome
	defer e.observe("record_tier", &outcome, &err, time.Now())

	if err := requireIDs(req.WorkflowID, req.State); err != nil {
		return res, err
	}
	topo, err := e.loadTopology(ctx, req.WorkflowID)
	if err != nil {
		return res, err
	}
	if !topo.has(req.State) {
		return res, unknownState(req.WorkflowID, req.State)
	}
	score, err := e.scorer.Score(req.Score)
	if err != nil {
		return res, err
	}
	catalog := e.scorer.Catalog()
	rec := models.TierRecord{
		WorkflowID: req.WorkflowID,
		State:      req.State,
		Tier:       score.Tier,
		TierName:   score.TierName,
		Score:      score.FinalScore,
		Capped:     score.Capped,
		Cost:       catalog.Cost(score.Tier),
		RecordedAt: e.now(),
	}
	if err := e.docs.PutTier(ctx, rec); err != nil {
		return res, err
	}
	log.Info().
		Str("workflow_id", req.WorkflowID).
		Str("state", req.State).
		Int("tier", rec.Tier).
		Float64("score", rec.Score).
		Msg("tier recorded")
	return TierResult{Record: rec, Score: score}, nil
}
