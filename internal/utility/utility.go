// Package utility derives mean-variance utility curves from profit moments.
package utility

import (
	"github.com/PrinceOfCongo/newsveond/internal/moments"
	"github.com/PrinceOfCongo/newsveond/pkg/mathutil"
	"github.com/PrinceOfCongo/newsveond/pkg/nverr"
	"gonum.org/v1/gonum/floats"
)

// Curve is a utility curve aligned with Supply.
type Curve struct {
	Supply         []int
	DemandRate     float64
	RiskAversion   float64
	ExpectedProfit []float64
	Variance       []float64
	Utility        []float64
}

// Compute returns E[profit] − riskAversion·Var[profit] for every supply level
// under Poisson(demandRate) demand. With riskAversion = 0 the utility equals
// the expected profit exactly.
func Compute(supply []int, price, cost, demandRate, riskAversion float64, opts moments.Options) (*Curve, error) {
	if !mathutil.IsFinite(riskAversion) {
		return nil, nverr.Invalid("utility.Compute", "riskAversion", "must be finite, got %g", riskAversion)
	}

	m, err := moments.ComputeProfitMoments(supply, price, cost, demandRate, opts)
	if err != nil {
		return nil, err
	}
	return FromMoments(m, riskAversion), nil
}

// FromMoments builds the utility curve for already computed moments.
func FromMoments(m *moments.Moments, riskAversion float64) *Curve {
	variance := m.Variance()
	utility := make([]float64, len(m.ExpectedProfit))
	if riskAversion == 0 {
		copy(utility, m.ExpectedProfit)
	} else {
		for i, mean := range m.ExpectedProfit {
			utility[i] = mean - riskAversion*variance[i]
		}
	}
	return &Curve{
		Supply:         m.Supply,
		DemandRate:     m.DemandRate,
		RiskAversion:   riskAversion,
		ExpectedProfit: m.ExpectedProfit,
		Variance:       variance,
		Utility:        utility,
	}
}

// ArgmaxSupply returns the index and value of the maximum of curve. Ties go
// to the first occurrence, i.e. the lowest supply of an ascending grid.
func ArgmaxSupply(curve []float64, supply []int) (int, float64, error) {
	const op = "utility.ArgmaxSupply"
	if len(curve) == 0 {
		return 0, 0, nverr.Invalid(op, "curve", "curve is empty")
	}
	if len(curve) != len(supply) {
		return 0, 0, nverr.Invalid(op, "supply", "curve has %d points but supply grid has %d", len(curve), len(supply))
	}
	if !mathutil.AllFinite(curve) {
		return 0, 0, nverr.Invalid(op, "curve", "curve contains non-finite values")
	}
	idx := floats.MaxIdx(curve)
	return idx, curve[idx], nil
}
