// Package validation provides configuration validation utilities.
package validation

import (
	"fmt"

	"github.com/PrinceOfCongo/newsveond/pkg/mathutil"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ModelValidator checks a decision configuration against the demand sample
// and reports settings that are legal but likely to mislead.
type ModelValidator struct {
	Price          float64
	Cost           float64
	RiskAversion   float64
	Supply         []int
	InitialGuess   float64
	RelativeWindow float64
	GridSize       int
	Sample         []int
}

// ValidateEconomics warns about price/cost/risk settings with degenerate optima.
func ValidateEconomics(price, cost, riskAversion float64) []string {
	var warnings []string

	if price > 0 && cost >= price {
		warnings = append(warnings, fmt.Sprintf("Unit cost %.2f is not below price %.2f - every order loses money and the optimum is the smallest supply",
			cost, price))
	} else if price > 0 && mathutil.IsZero(price-cost) {
		warnings = append(warnings, fmt.Sprintf("Margin %.4f per unit is below one cent - utilities are dominated by rounding",
			price-cost))
	}
	if riskAversion < 0 {
		warnings = append(warnings, fmt.Sprintf("Risk aversion %g is negative - the utility rewards profit variance", riskAversion))
	}

	return warnings
}

// ValidateSupplyCoverage checks the supply grid brackets the observed demand.
func ValidateSupplyCoverage(supply []int, sampleMean float64) []string {
	if len(supply) == 0 {
		return nil
	}
	values := make([]float64, len(supply))
	for i, s := range supply {
		values[i] = float64(s)
	}
	lo, hi := floats.Min(values), floats.Max(values)

	var warnings []string
	if sampleMean < lo || sampleMean > hi {
		warnings = append(warnings, fmt.Sprintf("Supply grid [%d, %d] does not contain the sample mean %.2f",
			int(lo), int(hi), sampleMean))
	}
	return warnings
}

// ValidateLikelihoodWindow checks the likelihood grid brackets the sample mean,
// which is the Poisson maximum-likelihood estimate.
func ValidateLikelihoodWindow(initialGuess, relativeWindow, sampleMean float64, gridSize int) []string {
	if initialGuess <= 0 {
		return nil
	}

	var warnings []string
	lo := (1 - relativeWindow) * initialGuess
	hi := (1 + relativeWindow) * initialGuess
	if sampleMean < lo || sampleMean > hi {
		warnings = append(warnings, fmt.Sprintf("Likelihood window [%.2f, %.2f] does not contain the sample mean %.2f - the estimate will sit on the window edge",
			lo, hi, sampleMean))
	}
	if gridSize%2 == 0 {
		warnings = append(warnings, fmt.Sprintf("Grid size %d is even - the initial guess %.2f is not a grid point", gridSize, initialGuess))
	}
	return warnings
}

// ValidateAll validates the model and returns warnings
func (mv *ModelValidator) ValidateAll() []string {
	warnings := ValidateEconomics(mv.Price, mv.Cost, mv.RiskAversion)

	if len(mv.Sample) == 0 {
		return warnings
	}

	values := make([]float64, len(mv.Sample))
	for i, v := range mv.Sample {
		values[i] = float64(v)
	}
	mean := stat.Mean(values, nil)

	warnings = append(warnings, ValidateSupplyCoverage(mv.Supply, mean)...)
	warnings = append(warnings, ValidateLikelihoodWindow(mv.InitialGuess, mv.RelativeWindow, mean, mv.GridSize)...)
	return warnings
}
