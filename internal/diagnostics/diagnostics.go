// Package diagnostics compares the shape of a demand sample with the
// Poisson, Binomial and Normal families. It is advisory only and never
// feeds the decision.
package diagnostics

import (
	"fmt"
	"math"

	"github.com/PrinceOfCongo/newsveond/internal/sample"
	"github.com/PrinceOfCongo/newsveond/pkg/nverr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Family names.
const (
	FamilyPoisson  = "poisson"
	FamilyBinomial = "binomial"
	FamilyNormal   = "normal"
)

// MaxSupport caps the number of histogram bins.
const MaxSupport = 100_000

// Fit is one family matched to the sample by its moments.
type Fit struct {
	Family        string             `json:"family"`
	Parameters    map[string]float64 `json:"parameters"`
	Probabilities []float64          `json:"probabilities"`
	SquaredError  float64            `json:"squaredError"`
}

// Report is the outcome of Compare. Support runs from the smallest to the
// largest observation and Empirical holds the relative frequency of each.
type Report struct {
	Summary   sample.Summary `json:"summary"`
	Support   []int          `json:"support"`
	Empirical []float64      `json:"empirical"`
	Fits      []Fit          `json:"fits"`
	Best      string         `json:"best"`
	Warnings  []string       `json:"warnings,omitempty"`

	// Degenerate is set when a family could not be parameterized.
	Degenerate error `json:"-"`
}

// Compare fits each family by the method of moments and scores it by the
// sum of squared deviations from the empirical histogram.
//
// The Binomial uses p = 1 − var/mean and n = round(mean/p), which is only
// defined for under-dispersed samples. When variance ≥ mean the Binomial is
// omitted and Degenerate carries an ErrDegenerateSample warning. A sample
// with zero variance is fitted by the Poisson only.
func Compare(data []int) (*Report, error) {
	const op = "diagnostics.Compare"

	summary, err := sample.Summarize(data)
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		if v < 0 {
			return nil, nverr.Invalid(op, "sample", "sample[%d] = %d is negative", i, v)
		}
	}
	if summary.Mean == 0 {
		return nil, nverr.Invalid(op, "sample", "sample mean is zero")
	}
	// Min is non-negative here, so Max-Min cannot overflow.
	if spread := summary.Max - summary.Min; spread >= MaxSupport {
		return nil, nverr.Budget(op, "sample", spread, MaxSupport)
	}
	width := summary.Max - summary.Min + 1

	report := &Report{
		Summary:   summary,
		Support:   make([]int, width),
		Empirical: make([]float64, width),
	}
	for i := range report.Support {
		report.Support[i] = summary.Min + i
	}
	for _, v := range data {
		report.Empirical[v-summary.Min]++
	}
	floats.Scale(1/float64(len(data)), report.Empirical)

	poisson := distuv.Poisson{Lambda: summary.Mean}
	report.addFit(FamilyPoisson, map[string]float64{"lambda": summary.Mean}, poisson.Prob)

	switch {
	case summary.Variance == 0:
		report.degenerate(op, "sample has zero variance; the binomial and normal fits are undefined")
		return report.finish(), nil
	case summary.Overdispersed():
		report.degenerate(op, fmt.Sprintf("variance %.4f is not below mean %.4f; the binomial fit is undefined",
			summary.Variance, summary.Mean))
	default:
		p := 1 - summary.Variance/summary.Mean
		n := math.Round(summary.Mean / p)
		binomial := distuv.Binomial{N: n, P: p}
		report.addFit(FamilyBinomial, map[string]float64{"n": n, "p": p}, binomial.Prob)
	}

	normal := distuv.Normal{Mu: summary.Mean, Sigma: math.Sqrt(summary.Variance)}
	report.addFit(FamilyNormal, map[string]float64{"mu": normal.Mu, "sigma": normal.Sigma}, func(k float64) float64 {
		return normal.CDF(k+0.5) - normal.CDF(k-0.5)
	})

	return report.finish(), nil
}

func (r *Report) finish() *Report {
	errs := make([]float64, len(r.Fits))
	for i, fit := range r.Fits {
		errs[i] = fit.SquaredError
	}
	r.Best = r.Fits[floats.MinIdx(errs)].Family
	return r
}

func (r *Report) addFit(family string, params map[string]float64, prob func(float64) float64) {
	fit := Fit{
		Family:        family,
		Parameters:    params,
		Probabilities: make([]float64, len(r.Support)),
	}
	for i, k := range r.Support {
		fit.Probabilities[i] = prob(float64(k))
	}
	fit.SquaredError = floats.Distance(fit.Probabilities, r.Empirical, 2)
	fit.SquaredError *= fit.SquaredError
	r.Fits = append(r.Fits, fit)
}

func (r *Report) degenerate(op, message string) {
	r.Degenerate = &nverr.Error{
		Kind:    nverr.ErrDegenerateSample,
		Op:      op,
		Param:   "sample",
		Message: message,
	}
	r.Warnings = append(r.Warnings, message)
}
