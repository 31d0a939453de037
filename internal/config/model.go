package config

import (
	"fmt"

	"github.com/PrinceOfCongo/newsveond/pkg/constants"
	"github.com/PrinceOfCongo/newsveond/pkg/mathutil"
)

const maxSupplyGridSize = 1_000_000

// ModelConfig holds the economic parameters of the decision.
type ModelConfig struct {
	Price        float64      `yaml:"price" mapstructure:"price"`
	Cost         float64      `yaml:"cost" mapstructure:"cost"`
	RiskAversion float64      `yaml:"riskAversion" mapstructure:"riskAversion"`
	Supply       SupplyConfig `yaml:"supply" mapstructure:"supply"`
}

// SupplyConfig describes the candidate order quantities, either as an
// explicit list or as the inclusive range Min..Max with Step.
type SupplyConfig struct {
	Min    int   `yaml:"min,omitempty" mapstructure:"min"`
	Max    int   `yaml:"max,omitempty" mapstructure:"max"`
	Step   int   `yaml:"step,omitempty" mapstructure:"step"`
	Values []int `yaml:"values,omitempty" mapstructure:"values"`
}

// EstimationConfig controls the likelihood grid and confidence set.
// InitialGuess of zero means "use the sample mean".
type EstimationConfig struct {
	InitialGuess     float64 `yaml:"initialGuess,omitempty" mapstructure:"initialGuess"`
	RelativeWindow   float64 `yaml:"relativeWindow" mapstructure:"relativeWindow"`
	GridSize         int     `yaml:"gridSize" mapstructure:"gridSize"`
	MaxGridSize      int     `yaml:"maxGridSize,omitempty" mapstructure:"maxGridSize"`
	Alpha            float64 `yaml:"alpha" mapstructure:"alpha"`
	DegreesOfFreedom float64 `yaml:"degreesOfFreedom" mapstructure:"degreesOfFreedom"`
}

// MomentsConfig controls the truncated Poisson expectation.
type MomentsConfig struct {
	TruncationFactor float64 `yaml:"truncationFactor" mapstructure:"truncationFactor"`
	MassTolerance    float64 `yaml:"massTolerance" mapstructure:"massTolerance"`
	MaxCells         int     `yaml:"maxCells,omitempty" mapstructure:"maxCells"`
	MaxSweepCells    int     `yaml:"maxSweepCells,omitempty" mapstructure:"maxSweepCells"`
}

// Normalize ensures defaults are applied before validation.
func (m *ModelConfig) Normalize() {
	if m == nil {
		return
	}
	if m.Supply.Step <= 0 {
		m.Supply.Step = constants.DefaultSupplyStep
	}
}

// Validate returns an error when the model parameters are unusable.
func (m *ModelConfig) Validate() error {
	if m == nil {
		return fmt.Errorf("model configuration cannot be nil")
	}
	m.Normalize()

	if m.Price <= 0 || !mathutil.IsFinite(m.Price) {
		return fmt.Errorf("price must be positive, got %g", m.Price)
	}
	if m.Cost < 0 || !mathutil.IsFinite(m.Cost) {
		return fmt.Errorf("cost must be non-negative, got %g", m.Cost)
	}
	if !mathutil.IsFinite(m.RiskAversion) {
		return fmt.Errorf("riskAversion must be finite, got %g", m.RiskAversion)
	}
	if _, err := m.Supply.Grid(); err != nil {
		return fmt.Errorf("supply: %w", err)
	}
	return nil
}

// Grid returns the supply grid in the configured order.
func (s SupplyConfig) Grid() ([]int, error) {
	if len(s.Values) > 0 {
		for i, v := range s.Values {
			if v < 0 {
				return nil, fmt.Errorf("values[%d] = %d is negative", i, v)
			}
		}
		return append([]int(nil), s.Values...), nil
	}

	step := s.Step
	if step <= 0 {
		step = constants.DefaultSupplyStep
	}
	if s.Min < 0 {
		return nil, fmt.Errorf("minimum %d must be non-negative", s.Min)
	}
	if s.Max < s.Min {
		return nil, fmt.Errorf("minimum %d must not exceed maximum %d", s.Min, s.Max)
	}
	if s.Max == 0 && s.Min == 0 {
		return nil, fmt.Errorf("supply grid is empty; set min/max or values")
	}
	if (s.Max-s.Min)/step+1 > maxSupplyGridSize {
		return nil, fmt.Errorf("supply grid of %d points exceeds limit of %d", (s.Max-s.Min)/step+1, maxSupplyGridSize)
	}

	grid := make([]int, 0, (s.Max-s.Min)/step+1)
	for v := s.Min; v <= s.Max; v += step {
		grid = append(grid, v)
	}
	return grid, nil
}

// Normalize ensures defaults are applied before validation.
func (e *EstimationConfig) Normalize() {
	if e == nil {
		return
	}
	if e.RelativeWindow == 0 {
		e.RelativeWindow = constants.DefaultRelativeWindow
	}
	if e.GridSize == 0 {
		e.GridSize = constants.DefaultGridSize
	}
	if e.MaxGridSize == 0 {
		e.MaxGridSize = constants.DefaultMaxGridSize
	}
	if e.Alpha == 0 {
		e.Alpha = constants.DefaultAlpha
	}
	if e.DegreesOfFreedom == 0 {
		e.DegreesOfFreedom = constants.DefaultDegreesOfFreedom
	}
}

// Validate returns an error when the estimation configuration is unsupported.
func (e *EstimationConfig) Validate() error {
	if e == nil {
		return fmt.Errorf("estimation configuration cannot be nil")
	}
	e.Normalize()

	if e.InitialGuess < 0 || !mathutil.IsFinite(e.InitialGuess) {
		return fmt.Errorf("initialGuess must be positive or zero for the sample mean, got %g", e.InitialGuess)
	}
	if e.RelativeWindow <= 0 || e.RelativeWindow >= 1 {
		return fmt.Errorf("relativeWindow must be in (0, 1), got %g", e.RelativeWindow)
	}
	if e.GridSize < 1 {
		return fmt.Errorf("gridSize must be at least 1, got %d", e.GridSize)
	}
	if e.GridSize > e.MaxGridSize {
		return fmt.Errorf("gridSize %d exceeds maxGridSize %d", e.GridSize, e.MaxGridSize)
	}
	if e.Alpha <= 0 || e.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0, 1), got %g", e.Alpha)
	}
	if e.DegreesOfFreedom <= 0 || !mathutil.IsFinite(e.DegreesOfFreedom) {
		return fmt.Errorf("degreesOfFreedom must be positive, got %g", e.DegreesOfFreedom)
	}
	return nil
}

// Normalize ensures defaults are applied before validation.
func (m *MomentsConfig) Normalize() {
	if m == nil {
		return
	}
	if m.TruncationFactor == 0 {
		m.TruncationFactor = constants.DefaultTruncationFactor
	}
	if m.MassTolerance == 0 {
		m.MassTolerance = constants.DefaultMassTolerance
	}
	if m.MaxCells == 0 {
		m.MaxCells = constants.DefaultMaxCells
	}
	if m.MaxSweepCells == 0 {
		m.MaxSweepCells = constants.DefaultMaxSweepCells
	}
}

// Validate returns an error when the moment configuration is unsupported.
func (m *MomentsConfig) Validate() error {
	if m == nil {
		return fmt.Errorf("moments configuration cannot be nil")
	}
	m.Normalize()

	if m.TruncationFactor <= 0 || !mathutil.IsFinite(m.TruncationFactor) {
		return fmt.Errorf("truncationFactor must be positive, got %g", m.TruncationFactor)
	}
	if m.MassTolerance <= 0 || m.MassTolerance > 1 {
		return fmt.Errorf("massTolerance must be in (0, 1], got %g", m.MassTolerance)
	}
	if m.MaxCells < 1 {
		return fmt.Errorf("maxCells must be positive, got %d", m.MaxCells)
	}
	if m.MaxSweepCells < 1 {
		return fmt.Errorf("maxSweepCells must be positive, got %d", m.MaxSweepCells)
	}
	return nil
}
