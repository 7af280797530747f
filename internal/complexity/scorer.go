package complexity

import (
	"fmt"

	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
)

type Latency string

const (
	LatencyNone        Latency = ""
	LatencyBatch       Latency = "batch"
	LatencyInteractive Latency = "interactive"
	LatencyCritical    Latency = "critical"
	LatencyRealtime    Latency = "realtime"
)

// CoordinationPenalty is added once per declared dependency edge between
// capabilities.
const CoordinationPenalty = 2.0

var latencyCaps = map[Latency]int{
	LatencyNone:        TierFrontier,
	LatencyBatch:       TierFrontier,
	LatencyInteractive: TierAdvanced,
	LatencyCritical:    TierStandard,
	LatencyRealtime:    TierLite,
}

type Request struct {
	Profiles []Profile `json:"profiles"`
	// DependentEdges counts declared "consumes output of" links between the
	// requested capabilities.
	DependentEdges int     `json:"dependent_edges,omitempty"`
	Latency        Latency `json:"latency,omitempty"`
	MaxTier        *int    `json:"max_tier,omitempty"`
}

type CapabilityScore struct {
	Capability  string        `json:"capability,omitempty"`
	BaseScore   float64       `json:"base_score"`
	Multipliers []float64     `json:"applied_multipliers,omitempty"`
	Triggered   [][]Dimension `json:"triggered,omitempty"`
	FinalScore  float64       `json:"final_score"`
}

type Result struct {
	Capabilities []CapabilityScore `json:"capabilities"`
	Dominant     string            `json:"dominant,omitempty"`
	Coordination float64           `json:"coordination_penalty"`
	FinalScore   float64           `json:"final_score"`
	ComputedTier int               `json:"computed_tier"`
	Tier         int               `json:"tier"`
	TierName     string            `json:"tier_name"`
	Capped       bool              `json:"capped"`
	Provisional  bool              `json:"provisional"`
}

// Scorer is deterministic and performs no I/O.
type Scorer struct {
	catalog TierCatalog
}

func NewScorer(catalog TierCatalog) *Scorer {
	return &Scorer{catalog: catalog}
}

func (s *Scorer) Catalog() TierCatalog { return s.catalog }

// ScoreProfile computes the weighted sum of one profile and applies every
// triggered multiplier.
func ScoreProfile(p Profile) (CapabilityScore, error) {
	if err := p.Validate(); err != nil {
		return CapabilityScore{}, err
	}
	out := CapabilityScore{Capability: p.Capability}
	for _, d := range Dimensions {
		out.BaseScore += float64(p.Dimensions[d]) * weights[d]
	}
	out.FinalScore = out.BaseScore
	for _, m := range p.Multipliers {
		if p.Dimensions[m.When[0]] > m.Threshold && p.Dimensions[m.When[1]] > m.Threshold {
			out.FinalScore *= m.Factor
			out.Multipliers = append(out.Multipliers, m.Factor)
			out.Triggered = append(out.Triggered, []Dimension{m.When[0], m.When[1]})
		}
	}
	return out, nil
}

// Score takes the dominant capability score, adds the coordination penalty
// and maps the result to a tier. A latency requirement or MaxTier can only
// lower the tier.
func (s *Scorer) Score(req Request) (Result, error) {
	if len(req.Profiles) == 0 {
		return Result{}, fmt.Errorf("%w: at least one profile is required", cerrors.ErrInvalidRequest)
	}
	if req.DependentEdges < 0 {
		return Result{}, fmt.Errorf("%w: dependent_edges must not be negative", cerrors.ErrInvalidRequest)
	}
	ceiling, ok := latencyCaps[req.Latency]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown latency requirement %q", cerrors.ErrInvalidRequest, req.Latency)
	}
	if req.MaxTier != nil {
		if *req.MaxTier < TierLite {
			return Result{}, fmt.Errorf("%w: max_tier %d is below tier %d", cerrors.ErrInvalidRequest, *req.MaxTier, TierLite)
		}
		if *req.MaxTier < ceiling {
			ceiling = *req.MaxTier
		}
	}

	res := Result{Capabilities: make([]CapabilityScore, 0, len(req.Profiles))}
	best := -1.0
	for _, p := range req.Profiles {
		score, err := ScoreProfile(p)
		if err != nil {
			return Result{}, err
		}
		res.Capabilities = append(res.Capabilities, score)
		if score.FinalScore > best {
			best = score.FinalScore
			res.Dominant = score.Capability
		}
		if p.Provisional() {
			res.Provisional = true
		}
	}
	res.Coordination = float64(req.DependentEdges) * CoordinationPenalty
	res.FinalScore = best + res.Coordination
	res.ComputedTier = TierFor(res.FinalScore)
	res.Tier = res.ComputedTier
	if res.Tier > ceiling {
		res.Tier = ceiling
		res.Capped = true
	}
	res.TierName = s.catalog.Name(res.Tier)
	return res, nil
}
