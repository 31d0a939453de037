// Package optimizer chooses the supply level. It evaluates the utility curve
// at every demand rate of a confidence set and keeps the supply with the best
// worst case, and wires the estimation and decision steps into a Runner.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/PrinceOfCongo/newsveond/internal/moments"
	"github.com/PrinceOfCongo/newsveond/internal/utility"
	"github.com/PrinceOfCongo/newsveond/pkg/constants"
	"github.com/PrinceOfCongo/newsveond/pkg/mathutil"
	"github.com/PrinceOfCongo/newsveond/pkg/nverr"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Options controls the robust sweep.
type Options struct {
	Moments moments.Options
	Workers int
	// MaxSweepCells caps |lambdas|·|supply|·|widest demand grid|.
	MaxSweepCells int
}

func (o Options) withDefaults() Options {
	o.Moments = o.Moments.WithDefaults()
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.MaxSweepCells <= 0 {
		o.MaxSweepCells = constants.DefaultMaxSweepCells
	}
	return o
}

// RobustDecision is the maximin choice over a set of demand rates.
//
// Surface holds the utility of supply i under rate j. WorstCase[i] is the
// minimum of row i and WorstCaseIndex[i] the rate index attaining it.
type RobustDecision struct {
	Supply           []int
	Lambdas          []float64
	Surface          *mat.Dense
	WorstCase        []float64
	WorstCaseIndex   []int
	BestIndex        int
	BestSupply       int
	WorstCaseUtility float64
	WorstCaseLambda  float64
}

// NominalDecision is the utility-maximizing supply at a single demand rate.
type NominalDecision struct {
	Curve     *utility.Curve
	BestIndex int
	Supply    int
	Utility   float64
}

// NominalOptimalSupply maximizes utility at the given demand rate.
func NominalOptimalSupply(supply []int, demandRate, price, cost, riskAversion float64, opts moments.Options) (*NominalDecision, error) {
	curve, err := utility.Compute(supply, price, cost, demandRate, riskAversion, opts)
	if err != nil {
		return nil, err
	}
	idx, value, err := utility.ArgmaxSupply(curve.Utility, curve.Supply)
	if err != nil {
		return nil, err
	}
	return &NominalDecision{
		Curve:     curve,
		BestIndex: idx,
		Supply:    curve.Supply[idx],
		Utility:   value,
	}, nil
}

// RobustOptimalSupply computes the utility curve for every rate in lambdas,
// reduces each supply level to its worst case across rates and returns the
// supply whose worst case is largest. Ties in both reductions go to the first
// occurrence. A single rate reproduces NominalOptimalSupply exactly.
func RobustOptimalSupply(supply []int, lambdas []float64, price, cost, riskAversion float64, opts Options) (*RobustDecision, error) {
	return RobustOptimalSupplyContext(context.Background(), supply, lambdas, price, cost, riskAversion, opts)
}

// RobustOptimalSupplyContext is RobustOptimalSupply with cancellation. The
// sweep stops scheduling rates once ctx is done and returns ctx's error.
func RobustOptimalSupplyContext(ctx context.Context, supply []int, lambdas []float64, price, cost, riskAversion float64, opts Options) (*RobustDecision, error) {
	const op = "optimizer.RobustOptimalSupply"
	opts = opts.withDefaults()

	if err := moments.ValidateSupply(op, supply); err != nil {
		return nil, err
	}
	if len(lambdas) == 0 {
		return nil, nverr.Invalid(op, "lambdas", "confidence set is empty")
	}
	for j, lambda := range lambdas {
		if lambda <= 0 || !mathutil.IsFinite(lambda) {
			return nil, nverr.Invalid(op, "lambdas", "lambdas[%d] = %g must be positive", j, lambda)
		}
	}
	if !mathutil.IsFinite(riskAversion) {
		return nil, nverr.Invalid(op, "riskAversion", "must be finite, got %g", riskAversion)
	}
	if opts.Moments.TruncationFactor <= 0 || !mathutil.IsFinite(opts.Moments.TruncationFactor) {
		return nil, nverr.Invalid(op, "truncationFactor", "must be positive, got %g", opts.Moments.TruncationFactor)
	}

	// Every rate reads a prefix of the table built for the largest one.
	width, err := opts.Moments.GridSize(op, len(supply), floats.Max(lambdas))
	if err != nil {
		return nil, err
	}
	if cells := float64(width) * float64(len(supply)) * float64(len(lambdas)); cells > float64(opts.MaxSweepCells) {
		return nil, nverr.Budget(op, "lambdas", int(math.Min(cells, math.MaxInt32)), opts.MaxSweepCells)
	}
	table, err := moments.NewProfitTable(supply, price, cost, width)
	if err != nil {
		return nil, err
	}

	surface := mat.NewDense(len(supply), len(lambdas), nil)
	errs := make([]error, len(lambdas))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for j, lambda := range lambdas {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := table.Moments(lambda, opts.Moments)
			if err != nil {
				errs[j] = err
				return nil
			}
			surface.SetCol(j, utility.FromMoments(m, riskAversion).Utility)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// Report the failure of the lowest rate so errors do not depend on scheduling.
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	worst := make([]float64, len(supply))
	worstIdx := make([]int, len(supply))
	for i := range supply {
		row := surface.RawRowView(i)
		k := floats.MinIdx(row)
		worst[i] = row[k]
		worstIdx[i] = k
	}

	best, value, err := utility.ArgmaxSupply(worst, supply)
	if err != nil {
		return nil, err
	}

	return &RobustDecision{
		Supply:           append([]int(nil), supply...),
		Lambdas:          append([]float64(nil), lambdas...),
		Surface:          surface,
		WorstCase:        worst,
		WorstCaseIndex:   worstIdx,
		BestIndex:        best,
		BestSupply:       supply[best],
		WorstCaseUtility: value,
		WorstCaseLambda:  lambdas[worstIdx[best]],
	}, nil
}
