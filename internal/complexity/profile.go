package complexity

import (
	"bytes"
	"fmt"

	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"gopkg.in/yaml.v3"
)

type Dimension string

const (
	ReasoningDepth    Dimension = "reasoning_depth"
	ToolOrchestration Dimension = "tool_orchestration"
	DomainExpertise   Dimension = "domain_expertise"
	ContextVolume     Dimension = "context_volume"
	OutputPrecision   Dimension = "output_precision"
	Ambiguity         Dimension = "ambiguity"
	ErrorRecovery     Dimension = "error_recovery"

	MaxDimensionScore = 3
)

// Dimensions lists the fixed scoring dimensions in weight order.
var Dimensions = []Dimension{
	ReasoningDepth,
	ToolOrchestration,
	DomainExpertise,
	ContextVolume,
	OutputPrecision,
	Ambiguity,
	ErrorRecovery,
}

var weights = map[Dimension]float64{
	ReasoningDepth:    4,
	ToolOrchestration: 3,
	DomainExpertise:   3,
	ContextVolume:     2,
	OutputPrecision:   2,
	Ambiguity:         2,
	ErrorRecovery:     2,
}

func Weight(d Dimension) float64 { return weights[d] }

type Maturity string

const (
	MaturityProvisional Maturity = "provisional"
	MaturityValidated   Maturity = "validated"
)

// Multiplier scales the score when every dimension in When scores strictly
// above Threshold.
type Multiplier struct {
	When      []Dimension `json:"when" yaml:"when"`
	Threshold int         `json:"threshold" yaml:"threshold"`
	Factor    float64     `json:"factor" yaml:"factor"`
}

// Profile is the complexity declaration attached to one capability.
// Missing dimensions score 0.
type Profile struct {
	Capability  string            `json:"capability,omitempty" yaml:"capability,omitempty"`
	Dimensions  map[Dimension]int `json:"dimensions" yaml:"dimensions"`
	Multipliers []Multiplier      `json:"multipliers,omitempty" yaml:"multipliers,omitempty"`
	Maturity    Maturity          `json:"maturity,omitempty" yaml:"maturity,omitempty"`
}

func (p Profile) Provisional() bool {
	return p.Maturity != MaturityValidated
}

func (p Profile) Validate() error {
	for d, score := range p.Dimensions {
		if _, ok := weights[d]; !ok {
			return fmt.Errorf("%w: unknown dimension %q", cerrors.ErrInvalidProfile, d)
		}
		if score < 0 || score > MaxDimensionScore {
			return fmt.Errorf("%w: %s score %d outside 0..%d", cerrors.ErrInvalidProfile, d, score, MaxDimensionScore)
		}
	}
	for i, m := range p.Multipliers {
		if len(m.When) != 2 {
			return fmt.Errorf("%w: multiplier %d must name two dimensions", cerrors.ErrInvalidProfile, i)
		}
		for _, d := range m.When {
			if _, ok := weights[d]; !ok {
				return fmt.Errorf("%w: multiplier %d names unknown dimension %q", cerrors.ErrInvalidProfile, i, d)
			}
		}
		if m.Threshold < 0 || m.Threshold > MaxDimensionScore {
			return fmt.Errorf("%w: multiplier %d threshold %d outside 0..%d", cerrors.ErrInvalidProfile, i, m.Threshold, MaxDimensionScore)
		}
		// A factor below 1 would let a higher dimension score lower the result.
		if m.Factor < 1 {
			return fmt.Errorf("%w: multiplier %d factor %.2f is below 1", cerrors.ErrInvalidProfile, i, m.Factor)
		}
	}
	switch p.Maturity {
	case "", MaturityProvisional, MaturityValidated:
	default:
		return fmt.Errorf("%w: unknown maturity %q", cerrors.ErrInvalidProfile, p.Maturity)
	}
	return nil
}

// ParseProfiles decodes one profile or a list of profiles from YAML or JSON.
func ParseProfiles(data []byte) ([]Profile, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty profile document", cerrors.ErrInvalidProfile)
	}
	var list []Profile
	if err := yaml.Unmarshal(trimmed, &list); err == nil {
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: empty profile list", cerrors.ErrInvalidProfile)
		}
		return list, nil
	}
	var single Profile
	if err := yaml.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("%w: %v", cerrors.ErrInvalidProfile, err)
	}
	return []Profile{single}, nil
}
