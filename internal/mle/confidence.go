package mle

import (
	"github.com/PrinceOfCongo/newsveond/pkg/constants"
	"github.com/PrinceOfCongo/newsveond/pkg/mathutil"
	"github.com/PrinceOfCongo/newsveond/pkg/nverr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// ConfidenceSet is the subset of a likelihood grid not rejected by the
// likelihood-ratio test. Statistics holds the LR statistic of every grid
// point; Indices, Lambdas and LogLik describe the members only.
type ConfidenceSet struct {
	Alpha            float64
	DegreesOfFreedom float64
	CriticalValue    float64
	Statistics       []float64
	Indices          []int
	Lambdas          []float64
	LogLik           []float64
}

// Lower returns the smallest member rate.
func (c *ConfidenceSet) Lower() float64 {
	return c.Lambdas[0]
}

// Upper returns the largest member rate.
func (c *ConfidenceSet) Upper() float64 {
	return c.Lambdas[len(c.Lambdas)-1]
}

// CriticalValue returns the (1−alpha) quantile of a chi-square distribution
// with dof degrees of freedom.
func CriticalValue(alpha, dof float64) (float64, error) {
	const op = "mle.CriticalValue"
	if alpha <= 0 || alpha >= 1 || !mathutil.IsFinite(alpha) {
		return 0, nverr.Invalid(op, "alpha", "must be in (0, 1), got %g", alpha)
	}
	if dof <= 0 || !mathutil.IsFinite(dof) {
		return 0, nverr.Invalid(op, "degreesOfFreedom", "must be positive, got %g", dof)
	}
	return distuv.ChiSquared{K: dof}.Quantile(1 - alpha), nil
}

// NewConfidenceSet keeps every grid point whose statistic 2·(maxLL − LL)
// does not exceed the chi-square critical value. Zero alpha and dof select
// the defaults.
func NewConfidenceSet(lambdas, loglik []float64, alpha, dof float64) (*ConfidenceSet, error) {
	const op = "mle.NewConfidenceSet"
	if alpha == 0 {
		alpha = constants.DefaultAlpha
	}
	if dof == 0 {
		dof = constants.DefaultDegreesOfFreedom
	}
	if len(lambdas) == 0 {
		return nil, nverr.Invalid(op, "lambdaGrid", "likelihood grid is empty")
	}
	if len(lambdas) != len(loglik) {
		return nil, nverr.Invalid(op, "loglikGrid", "grid has %d rates but %d log-likelihoods", len(lambdas), len(loglik))
	}
	if !mathutil.AllFinite(loglik) {
		return nil, nverr.Invalid(op, "loglikGrid", "log-likelihood grid contains non-finite values")
	}

	critical, err := CriticalValue(alpha, dof)
	if err != nil {
		return nil, err
	}

	maxLL := floats.Max(loglik)
	set := &ConfidenceSet{
		Alpha:            alpha,
		DegreesOfFreedom: dof,
		CriticalValue:    critical,
		Statistics:       make([]float64, len(loglik)),
	}
	for i, ll := range loglik {
		stat := 2 * (maxLL - ll)
		set.Statistics[i] = stat
		if stat <= critical {
			set.Indices = append(set.Indices, i)
			set.Lambdas = append(set.Lambdas, lambdas[i])
			set.LogLik = append(set.LogLik, ll)
		}
	}

	if len(set.Indices) == 0 {
		return nil, &nverr.Error{
			Kind:    nverr.ErrEmptyConfidenceSet,
			Op:      op,
			Param:   "alpha",
			Message: "no grid point satisfies the likelihood-ratio bound",
		}
	}
	return set, nil
}
