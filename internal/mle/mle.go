// Package mle estimates the Poisson demand rate from an observed sample by
// grid-search maximum likelihood, and derives a likelihood-ratio confidence
// set around the estimate.
package mle

import (
	"runtime"

	"github.com/PrinceOfCongo/newsveond/pkg/constants"
	"github.com/PrinceOfCongo/newsveond/pkg/mathutil"
	"github.com/PrinceOfCongo/newsveond/pkg/nverr"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Options controls the likelihood grid.
type Options struct {
	RelativeWindow float64
	GridSize       int
	MaxGridSize    int
	Workers        int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		RelativeWindow: constants.DefaultRelativeWindow,
		GridSize:       constants.DefaultGridSize,
		MaxGridSize:    constants.DefaultMaxGridSize,
		Workers:        runtime.GOMAXPROCS(0),
	}
}

// WithDefaults fills zero fields with their defaults.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.RelativeWindow == 0 {
		o.RelativeWindow = d.RelativeWindow
	}
	if o.GridSize == 0 {
		o.GridSize = d.GridSize
	}
	if o.MaxGridSize == 0 {
		o.MaxGridSize = d.MaxGridSize
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	return o
}

// Estimate is the outcome of a grid search. Lambdas ascend and LogLik is
// aligned with them.
type Estimate struct {
	MLE          float64
	MLEIndex     int
	MaxLogLik    float64
	Lambdas      []float64
	LogLik       []float64
	InitialGuess float64
	SampleSize   int
}

// ValidateSample checks the sample is non-empty and non-negative.
func ValidateSample(op string, sample []int) error {
	if len(sample) == 0 {
		return nverr.Invalid(op, "sample", "sample is empty")
	}
	for i, v := range sample {
		if v < 0 {
			return nverr.Invalid(op, "sample", "sample[%d] = %d is negative", i, v)
		}
	}
	return nil
}

// LogLikelihood returns the total Poisson(lambda) log-likelihood of sample.
func LogLikelihood(sample []int, lambda float64) float64 {
	dist := distuv.Poisson{Lambda: lambda}
	total := 0.0
	for _, v := range sample {
		total += dist.LogProb(float64(v))
	}
	return total
}

// Grid returns n evenly spaced rates spanning [(1−w)·guess, (1+w)·guess]. The
// points are placed symmetrically about guess so an odd n contains guess
// exactly.
func Grid(initialGuess, relativeWindow float64, n int) []float64 {
	grid := make([]float64, n)
	if n == 1 {
		grid[0] = initialGuess
		return grid
	}
	span := float64(n - 1)
	for i := range grid {
		offset := float64(2*i - (n - 1))
		grid[i] = initialGuess * (1 + relativeWindow*offset/span)
	}
	return grid
}

// EstimateRate searches the likelihood grid for the maximum-likelihood rate.
// Ties go to the lowest rate.
func EstimateRate(sample []int, initialGuess float64, opts Options) (*Estimate, error) {
	const op = "mle.EstimateRate"
	opts = opts.WithDefaults()

	if err := ValidateSample(op, sample); err != nil {
		return nil, err
	}
	if initialGuess <= 0 || !mathutil.IsFinite(initialGuess) {
		return nil, nverr.Invalid(op, "initialGuess", "must be positive, got %g", initialGuess)
	}
	if opts.RelativeWindow <= 0 || opts.RelativeWindow >= 1 {
		return nil, nverr.Invalid(op, "relativeWindow", "must be in (0, 1), got %g", opts.RelativeWindow)
	}
	if opts.GridSize < 1 {
		return nil, nverr.Invalid(op, "gridSize", "must be at least 1, got %d", opts.GridSize)
	}
	if opts.GridSize > opts.MaxGridSize {
		return nil, nverr.Budget(op, "gridSize", opts.GridSize, opts.MaxGridSize)
	}

	lambdas := Grid(initialGuess, opts.RelativeWindow, opts.GridSize)
	loglik := make([]float64, len(lambdas))

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for _, chunk := range chunks(len(lambdas), opts.Workers) {
		lo, hi := chunk[0], chunk[1]
		g.Go(func() error {
			for k := lo; k < hi; k++ {
				loglik[k] = LogLikelihood(sample, lambdas[k])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !mathutil.AllFinite(loglik) {
		return nil, nverr.Invalid(op, "sample", "log-likelihood is not finite on the grid")
	}
	best := floats.MaxIdx(loglik)

	return &Estimate{
		MLE:          lambdas[best],
		MLEIndex:     best,
		MaxLogLik:    loglik[best],
		Lambdas:      lambdas,
		LogLik:       loglik,
		InitialGuess: initialGuess,
		SampleSize:   len(sample),
	}, nil
}

// chunks splits [0, n) into at most parts contiguous half-open ranges.
func chunks(n, parts int) [][2]int {
	if parts > n {
		parts = n
	}
	if parts < 1 {
		parts = 1
	}
	size := (n + parts - 1) / parts
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		out = append(out, [2]int{lo, mathutil.MinInt(lo+size, n)})
	}
	return out
}
