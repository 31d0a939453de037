// Package moments computes the sales and profit of each candidate supply
// level against a truncated Poisson demand grid, and contracts them into the
// first two moments of profit.
package moments

import (
	"math"

	"github.com/PrinceOfCongo/newsveond/pkg/constants"
	"github.com/PrinceOfCongo/newsveond/pkg/mathutil"
	"github.com/PrinceOfCongo/newsveond/pkg/nverr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Options controls the numerical approximation of the Poisson expectation.
type Options struct {
	// TruncationFactor sets the demand grid to 0..ceil(factor·rate)-1.
	TruncationFactor float64
	// MassTolerance is the minimum probability mass the grid must retain.
	MassTolerance float64
	// MaxCells caps |supply|·|demand grid|.
	MaxCells int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		TruncationFactor: constants.DefaultTruncationFactor,
		MassTolerance:    constants.DefaultMassTolerance,
		MaxCells:         constants.DefaultMaxCells,
	}
}

// WithDefaults fills zero fields with their defaults.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.TruncationFactor == 0 {
		o.TruncationFactor = d.TruncationFactor
	}
	if o.MassTolerance == 0 {
		o.MassTolerance = d.MassTolerance
	}
	if o.MaxCells == 0 {
		o.MaxCells = d.MaxCells
	}
	return o
}

// Moments holds E[profit] and E[profit²] aligned with Supply. RetainedMass
// is the Poisson probability mass covered by the demand grid.
type Moments struct {
	Supply                []int
	DemandRate            float64
	ExpectedProfit        []float64
	ExpectedSquaredProfit []float64
	RetainedMass          float64
	DemandGridSize        int
}

// Variance returns E[profit²] − E[profit]² per supply, clamped at zero.
func (m *Moments) Variance() []float64 {
	out := make([]float64, len(m.ExpectedProfit))
	for i, mean := range m.ExpectedProfit {
		out[i] = mathutil.ClampNonNegative(m.ExpectedSquaredProfit[i] - mean*mean)
	}
	return out
}

// DemandGrid returns 0..ceil(factor·rate)-1.
func DemandGrid(demandRate, truncationFactor float64) []int {
	n := int(math.Ceil(truncationFactor * demandRate))
	if n < 0 {
		n = 0
	}
	grid := make([]int, n)
	for j := range grid {
		grid[j] = j
	}
	return grid
}

// Sales returns the supply-by-demand matrix with entries min(supply_i, demand_j).
func Sales(supply, demand []int) *mat.Dense {
	if len(supply) == 0 || len(demand) == 0 {
		return &mat.Dense{}
	}
	sales := mat.NewDense(len(supply), len(demand), nil)
	for i, s := range supply {
		for j, d := range demand {
			if s < d {
				sales.Set(i, j, float64(s))
			} else {
				sales.Set(i, j, float64(d))
			}
		}
	}
	return sales
}

// Profit returns price·sales − cost·supply, broadcasting supply across the
// demand axis.
func Profit(supply []int, sales *mat.Dense, price, cost float64) (*mat.Dense, error) {
	const op = "moments.Profit"
	if price < 0 || !mathutil.IsFinite(price) {
		return nil, nverr.Invalid(op, "price", "must be a finite non-negative number, got %g", price)
	}
	if cost < 0 || !mathutil.IsFinite(cost) {
		return nil, nverr.Invalid(op, "cost", "must be a finite non-negative number, got %g", cost)
	}
	if sales.IsEmpty() {
		return nil, nverr.Invalid(op, "sales", "sales matrix is empty")
	}
	rows, cols := sales.Dims()
	if rows != len(supply) {
		return nil, nverr.Invalid(op, "supply", "supply has %d entries but sales has %d rows", len(supply), rows)
	}

	profit := mat.NewDense(rows, cols, nil)
	profit.Apply(func(i, j int, v float64) float64 {
		return price*v - cost*float64(supply[i])
	}, sales)
	return profit, nil
}

// PoissonWeights evaluates the Poisson(rate) pmf on the demand grid and
// returns the weights together with their sum.
func PoissonWeights(demand []int, demandRate float64) ([]float64, float64) {
	dist := distuv.Poisson{Lambda: demandRate}
	weights := make([]float64, len(demand))
	for j, d := range demand {
		weights[j] = dist.Prob(float64(d))
	}
	return weights, floats.Sum(weights)
}

// ValidateSupply checks the supply grid is non-empty and non-negative.
func ValidateSupply(op string, supply []int) error {
	if len(supply) == 0 {
		return nverr.Invalid(op, "supply", "supply grid is empty")
	}
	for i, s := range supply {
		if s < 0 {
			return nverr.Invalid(op, "supply", "supply[%d] = %d is negative", i, s)
		}
	}
	return nil
}

// ComputeProfitMoments returns E[profit] and E[profit²] for every supply
// level under Poisson(demandRate) demand.
func ComputeProfitMoments(supply []int, price, cost, demandRate float64, opts Options) (*Moments, error) {
	const op = "moments.ComputeProfitMoments"
	opts = opts.WithDefaults()

	if err := ValidateSupply(op, supply); err != nil {
		return nil, err
	}
	if demandRate <= 0 || !mathutil.IsFinite(demandRate) {
		return nil, nverr.Invalid(op, "demandRate", "must be positive, got %g", demandRate)
	}
	if err := opts.validate(op); err != nil {
		return nil, err
	}

	gridSize, err := opts.GridSize(op, len(supply), demandRate)
	if err != nil {
		return nil, err
	}
	table, err := NewProfitTable(supply, price, cost, gridSize)
	if err != nil {
		return nil, err
	}
	return table.Moments(demandRate, opts)
}

func (o Options) validate(op string) error {
	if o.TruncationFactor <= 0 || !mathutil.IsFinite(o.TruncationFactor) {
		return nverr.Invalid(op, "truncationFactor", "must be positive, got %g", o.TruncationFactor)
	}
	if o.MassTolerance <= 0 || o.MassTolerance > 1 {
		return nverr.Invalid(op, "massTolerance", "must be in (0, 1], got %g", o.MassTolerance)
	}
	return nil
}

// GridSize returns the demand grid length for demandRate and checks that a
// profit matrix with rows supply levels stays within MaxCells.
func (o Options) GridSize(op string, rows int, demandRate float64) (int, error) {
	gridSize := math.Ceil(o.TruncationFactor * demandRate)
	if cells := gridSize * float64(rows); cells > float64(o.MaxCells) {
		return 0, nverr.Budget(op, "truncationFactor", saturate(cells), o.MaxCells)
	}
	return int(gridSize), nil
}

func saturate(v float64) int {
	return int(math.Min(v, math.MaxInt32))
}

// ProfitTable holds the profit and squared profit of every supply level
// against demand 0..width-1. Moments under any rate whose demand grid fits
// in the table are read from a column prefix of it.
type ProfitTable struct {
	supply  []int
	profit  *mat.Dense
	squared *mat.Dense
}

// NewProfitTable builds the profit table for demand 0..width-1.
func NewProfitTable(supply []int, price, cost float64, width int) (*ProfitTable, error) {
	const op = "moments.NewProfitTable"
	if err := ValidateSupply(op, supply); err != nil {
		return nil, err
	}
	if price <= 0 || !mathutil.IsFinite(price) {
		return nil, nverr.Invalid(op, "price", "must be positive, got %g", price)
	}
	if cost < 0 || !mathutil.IsFinite(cost) {
		return nil, nverr.Invalid(op, "cost", "must be non-negative, got %g", cost)
	}

	table := &ProfitTable{supply: append([]int(nil), supply...)}
	if width <= 0 {
		return table, nil
	}

	profit, err := Profit(supply, Sales(supply, DemandGrid(float64(width), 1)), price, cost)
	if err != nil {
		return nil, err
	}
	squared := mat.NewDense(len(supply), width, nil)
	squared.MulElem(profit, profit)

	table.profit = profit
	table.squared = squared
	return table, nil
}

// Width returns the number of demand values covered by the table.
func (t *ProfitTable) Width() int {
	if t.profit == nil {
		return 0
	}
	_, cols := t.profit.Dims()
	return cols
}

// Moments contracts the table against the Poisson(demandRate) pmf on the
// demand grid 0..ceil(factor·rate)-1.
func (t *ProfitTable) Moments(demandRate float64, opts Options) (*Moments, error) {
	const op = "moments.ProfitTable.Moments"
	opts = opts.WithDefaults()

	if demandRate <= 0 || !mathutil.IsFinite(demandRate) {
		return nil, nverr.Invalid(op, "demandRate", "must be positive, got %g", demandRate)
	}
	if err := opts.validate(op); err != nil {
		return nil, err
	}

	demand := DemandGrid(demandRate, opts.TruncationFactor)
	weights, mass := PoissonWeights(demand, demandRate)
	if mass < opts.MassTolerance {
		return nil, nverr.Truncation(op, opts.TruncationFactor, mass, opts.MassTolerance)
	}
	if len(demand) > t.Width() {
		return nil, nverr.Invalid(op, "demandRate", "demand grid of %d points exceeds table width %d", len(demand), t.Width())
	}

	rows := len(t.supply)
	profit := t.profit.Slice(0, rows, 0, len(demand))
	squared := t.squared.Slice(0, rows, 0, len(demand))

	p := mat.NewVecDense(len(weights), weights)
	var first, second mat.VecDense
	first.MulVec(profit, p)
	second.MulVec(squared, p)

	return &Moments{
		Supply:                append([]int(nil), t.supply...),
		DemandRate:            demandRate,
		ExpectedProfit:        mat.Col(nil, 0, &first),
		ExpectedSquaredProfit: mat.Col(nil, 0, &second),
		RetainedMass:          mass,
		DemandGridSize:        len(demand),
	}, nil
}
