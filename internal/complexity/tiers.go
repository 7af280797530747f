package complexity

const (
	TierLite     = 0
	TierStandard = 1
	TierAdvanced = 2
	TierFrontier = 3
)

// TierFor maps a final score onto the fixed bands 0-12, 13-25, 26-50, 51+.
func TierFor(score float64) int {
	switch {
	case score <= 12:
		return TierLite
	case score <= 25:
		return TierStandard
	case score <= 50:
		return TierAdvanced
	default:
		return TierFrontier
	}
}

// TierCatalog names each tier and prices one unit of work on it.
type TierCatalog struct {
	Names [TierFrontier + 1]string
	Costs [TierFrontier + 1]float64
}

func DefaultTierCatalog() TierCatalog {
	return TierCatalog{
		Names: [TierFrontier + 1]string{"lite", "standard", "advanced", "frontier"},
		Costs: [TierFrontier + 1]float64{1, 2, 4, 8},
	}
}

func (c TierCatalog) Name(tier int) string {
	return c.Names[clampTier(tier)]
}

func (c TierCatalog) Cost(tier int) float64 {
	return c.Costs[clampTier(tier)]
}

func clampTier(tier int) int {
	if tier < TierLite {
		return TierLite
	}
	if tier > TierFrontier {
		return TierFrontier
	}
	return tier
}
