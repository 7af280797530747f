package complexity

import (
	"testing"

	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func allDimensions(score int) map[Dimension]int {
	out := make(map[Dimension]int, len(Dimensions))
	for _, d := range Dimensions {
		out[d] = score
	}
	return out
}

func TestWeightsSumTo18(t *testing.T) {
	total := 0.0
	for _, d := range Dimensions {
		total += Weight(d)
	}
	assert.Equal(t, 18.0, total)
}

func TestScoreAllZerosIsTierZero(t *testing.T) {
	s := NewScorer(DefaultTierCatalog())
	res, err := s.Score(Request{Profiles: []Profile{{Dimensions: allDimensions(0)}}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.FinalScore)
	assert.Equal(t, TierLite, res.Tier)
	assert.Equal(t, "lite", res.TierName)
	assert.False(t, res.Capped)
	assert.True(t, res.Provisional)
}

func TestScore52IsTierThreeAndCriticalCapsAtOne(t *testing.T) {
	// 3*4 + 3*3 + 3*3 + 3*2 + 3*2 + 3*2 + 2*2 = 52
	dims := allDimensions(3)
	dims[ErrorRecovery] = 2
	profile := Profile{Capability: "analysis", Dimensions: dims, Maturity: MaturityValidated}
	s := NewScorer(DefaultTierCatalog())

	res, err := s.Score(Request{Profiles: []Profile{profile}})
	require.NoError(t, err)
	assert.Equal(t, 52.0, res.FinalScore)
	assert.Equal(t, TierFrontier, res.Tier)
	assert.False(t, res.Provisional)

	capped, err := s.Score(Request{Profiles: []Profile{profile}, Latency: LatencyCritical})
	require.NoError(t, err)
	assert.Equal(t, TierFrontier, capped.ComputedTier)
	assert.Equal(t, TierStandard, capped.Tier)
	assert.True(t, capped.Capped)
}

func TestCapIsNoOpWhenComputedTierIsLower(t *testing.T) {
	s := NewScorer(DefaultTierCatalog())
	res, err := s.Score(Request{
		Profiles: []Profile{{Dimensions: map[Dimension]int{ReasoningDepth: 1}}},
		Latency:  LatencyCritical,
		MaxTier:  intPtr(2),
	})
	require.NoError(t, err)
	assert.Equal(t, TierLite, res.Tier)
	assert.False(t, res.Capped)
}

func TestMaxTierBelowZeroIsInvalid(t *testing.T) {
	s := NewScorer(DefaultTierCatalog())
	_, err := s.Score(Request{Profiles: []Profile{{}}, MaxTier: intPtr(-1)})
	assert.ErrorIs(t, err, cerrors.ErrInvalidRequest)

	_, err = s.Score(Request{Profiles: []Profile{{}}, Latency: "whenever"})
	assert.ErrorIs(t, err, cerrors.ErrInvalidRequest)

	_, err = s.Score(Request{})
	assert.ErrorIs(t, err, cerrors.ErrInvalidRequest)
}

func TestMultipliersApplyMultiplicatively(t *testing.T) {
	p := Profile{
		Dimensions: map[Dimension]int{ReasoningDepth: 3, ToolOrchestration: 3, Ambiguity: 2},
		Multipliers: []Multiplier{
			{When: []Dimension{ReasoningDepth, ToolOrchestration}, Threshold: 2, Factor: 1.5},
			{When: []Dimension{ReasoningDepth, Ambiguity}, Threshold: 1, Factor: 2},
			{When: []Dimension{ReasoningDepth, ContextVolume}, Threshold: 1, Factor: 3},
		},
	}
	score, err := ScoreProfile(p)
	require.NoError(t, err)
	// base = 12 + 9 + 4 = 25; 25 * 1.5 * 2 = 75
	assert.Equal(t, 25.0, score.BaseScore)
	assert.Equal(t, 75.0, score.FinalScore)
	assert.Equal(t, []float64{1.5, 2}, score.Multipliers)
}

func TestMultiCapabilityTakesMaxPlusPenalty(t *testing.T) {
	s := NewScorer(DefaultTierCatalog())
	res, err := s.Score(Request{
		Profiles: []Profile{
			{Capability: "small", Dimensions: map[Dimension]int{ReasoningDepth: 1}},
			{Capability: "big", Dimensions: map[Dimension]int{ReasoningDepth: 3, DomainExpertise: 1}},
		},
		DependentEdges: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "big", res.Dominant)
	assert.Equal(t, 2.0, res.Coordination)
	assert.Equal(t, 17.0, res.FinalScore)
	assert.Equal(t, TierStandard, res.Tier)
}

func TestInvalidProfiles(t *testing.T) {
	tests := map[string]Profile{
		"score above range": {Dimensions: map[Dimension]int{Ambiguity: 4}},
		"negative score":    {Dimensions: map[Dimension]int{Ambiguity: -1}},
		"unknown dimension": {Dimensions: map[Dimension]int{"charisma": 1}},
		"single-dim rule":   {Multipliers: []Multiplier{{When: []Dimension{Ambiguity}, Factor: 2}}},
		"shrinking factor":  {Multipliers: []Multiplier{{When: []Dimension{Ambiguity, ErrorRecovery}, Factor: 0.5}}},
		"unknown maturity":  {Maturity: "beta"},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ScoreProfile(p)
			assert.ErrorIs(t, err, cerrors.ErrInvalidProfile)
		})
	}
}

func TestTierMonotonicity(t *testing.T) {
	multipliers := []Multiplier{
		{When: []Dimension{ReasoningDepth, ToolOrchestration}, Threshold: 1, Factor: 1.3},
		{When: []Dimension{Ambiguity, ErrorRecovery}, Threshold: 2, Factor: 1.2},
	}
	s := NewScorer(DefaultTierCatalog())
	// Walk every dimension upward from several starting points.
	for base := 0; base < MaxDimensionScore; base++ {
		for _, d := range Dimensions {
			dims := allDimensions(base)
			prev, err := s.Score(Request{Profiles: []Profile{{Dimensions: dims, Multipliers: multipliers}}})
			require.NoError(t, err)
			for v := base + 1; v <= MaxDimensionScore; v++ {
				next := allDimensions(base)
				next[d] = v
				cur, err := s.Score(Request{Profiles: []Profile{{Dimensions: next, Multipliers: multipliers}}})
				require.NoError(t, err)
				assert.GreaterOrEqual(t, cur.FinalScore, prev.FinalScore, "dimension %s to %d", d, v)
				assert.GreaterOrEqual(t, cur.Tier, prev.Tier, "dimension %s to %d", d, v)
				prev = cur
			}
		}
	}
}

func TestTierBands(t *testing.T) {
	assert.Equal(t, TierLite, TierFor(12))
	assert.Equal(t, TierStandard, TierFor(12.5))
	assert.Equal(t, TierStandard, TierFor(25))
	assert.Equal(t, TierAdvanced, TierFor(26))
	assert.Equal(t, TierAdvanced, TierFor(50))
	assert.Equal(t, TierFrontier, TierFor(51))
}

func TestTierCatalog(t *testing.T) {
	c := DefaultTierCatalog()
	assert.Equal(t, 8.0, c.Cost(TierFrontier))
	assert.Equal(t, "advanced", c.Name(TierAdvanced))
	assert.Equal(t, 1.0, c.Cost(-5))
}

func TestParseProfiles(t *testing.T) {
	single := []byte(`
capability: summarize
dimensions:
  reasoning_depth: 2
  context_volume: 3
multipliers:
  - when: [reasoning_depth, context_volume]
    threshold: 1
    factor: 1.25
maturity: validated
`)
	profiles, err := ParseProfiles(single)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "summarize", profiles[0].Capability)
	assert.Equal(t, 3, profiles[0].Dimensions[ContextVolume])
	assert.Equal(t, 1.25, profiles[0].Multipliers[0].Factor)

	list := []byte(`[{"capability": "a", "dimensions": {"ambiguity": 1}}, {"capability": "b", "dimensions": {}}]`)
	profiles, err = ParseProfiles(list)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "b", profiles[1].Capability)

	_, err = ParseProfiles([]byte("  "))
	assert.ErrorIs(t, err, cerrors.ErrInvalidProfile)
}
