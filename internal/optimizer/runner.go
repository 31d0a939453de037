package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/PrinceOfCongo/newsveond/internal/config"
	"github.com/PrinceOfCongo/newsveond/internal/mle"
	"github.com/PrinceOfCongo/newsveond/internal/moments"
	"github.com/PrinceOfCongo/newsveond/pkg/decision"
	"github.com/PrinceOfCongo/newsveond/pkg/nverr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Runner executes the full decision pipeline for one configuration.
type Runner struct {
	logger *zap.Logger
	conf   *config.Configuration
}

// Result holds every stage of a decision run.
type Result struct {
	SampleSize    int
	SampleMean    float64
	Price         float64
	Cost          float64
	RiskAversion  float64
	Estimate      *mle.Estimate
	ConfidenceSet *mle.ConfidenceSet
	Nominal       *NominalDecision
	Robust        *RobustDecision
	Warnings      []string
	Duration      time.Duration
}

// NewRunner constructs a Runner for the provided configuration.
func NewRunner(logger *zap.Logger, conf *config.Configuration) (*Runner, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Runner{logger: logger, conf: conf}, nil
}

// Run estimates the demand rate from sample, builds the confidence set and
// returns both the nominal decision at the estimate and the robust decision
// over the set.
func (r *Runner) Run(sample []int) (*Result, error) {
	return r.RunContext(context.Background(), sample)
}

// RunContext is Run with cancellation. ctx is checked between stages and
// throughout the robust sweep.
func (r *Runner) RunContext(ctx context.Context, sample []int) (*Result, error) {
	const op = "optimizer.Runner.Run"
	start := time.Now()

	if err := stageDone(ctx, op, "estimate"); err != nil {
		return nil, err
	}

	if err := mle.ValidateSample(op, sample); err != nil {
		return nil, err
	}
	supply, err := r.conf.Model.Supply.Grid()
	if err != nil {
		return nil, nverr.Invalid(op, "supply", "%v", err)
	}

	values := make([]float64, len(sample))
	for i, v := range sample {
		values[i] = float64(v)
	}
	mean := stat.Mean(values, nil)

	guess := r.conf.Estimation.InitialGuess
	if guess == 0 {
		if mean == 0 {
			return nil, nverr.Invalid(op, "sample", "sample mean is zero; demand rate must be positive")
		}
		guess = mean
	}

	estimate, err := mle.EstimateRate(sample, guess, mle.Options{
		RelativeWindow: r.conf.Estimation.RelativeWindow,
		GridSize:       r.conf.Estimation.GridSize,
		MaxGridSize:    r.conf.Estimation.MaxGridSize,
		Workers:        r.conf.Workers,
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("estimated demand rate",
		zap.String("op", op),
		zap.Int("sampleSize", len(sample)),
		zap.Float64("sampleMean", mean),
		zap.Float64("initialGuess", guess),
		zap.Float64("mle", estimate.MLE),
		zap.Float64("maxLogLik", estimate.MaxLogLik),
	)

	if err := stageDone(ctx, op, "confidence set"); err != nil {
		return nil, err
	}
	set, err := mle.NewConfidenceSet(estimate.Lambdas, estimate.LogLik, r.conf.Estimation.Alpha, r.conf.Estimation.DegreesOfFreedom)
	if err != nil {
		r.logger.Error("confidence set is empty",
			zap.String("op", op),
			zap.Float64("alpha", r.conf.Estimation.Alpha),
			zap.Error(err),
		)
		return nil, err
	}
	r.logger.Debug("built confidence set",
		zap.String("op", op),
		zap.Float64("criticalValue", set.CriticalValue),
		zap.Float64("lower", set.Lower()),
		zap.Float64("upper", set.Upper()),
		zap.Int("points", len(set.Indices)),
	)

	warnings := r.conf.ValidateConfiguration(sample, guess)
	last := len(estimate.Lambdas) - 1
	if last > 0 && (estimate.MLEIndex == 0 || estimate.MLEIndex == last) {
		warnings = append(warnings, fmt.Sprintf("Estimate %.4f lies on the edge of the likelihood window - widen estimation.relativeWindow or move estimation.initialGuess",
			estimate.MLE))
	} else if last > 0 && (set.Indices[0] == 0 || set.Indices[len(set.Indices)-1] == last) {
		warnings = append(warnings, fmt.Sprintf("Confidence set [%.4f, %.4f] is cut off by the likelihood window - widen estimation.relativeWindow",
			set.Lower(), set.Upper()))
	}
	for _, warning := range warnings {
		r.logger.Warn(warning, zap.String("op", op))
	}

	momentOpts := moments.Options{
		TruncationFactor: r.conf.Moments.TruncationFactor,
		MassTolerance:    r.conf.Moments.MassTolerance,
		MaxCells:         r.conf.Moments.MaxCells,
	}

	if err := stageDone(ctx, op, "nominal decision"); err != nil {
		return nil, err
	}
	nominal, err := NominalOptimalSupply(supply, estimate.MLE, r.conf.Model.Price, r.conf.Model.Cost, r.conf.Model.RiskAversion, momentOpts)
	if err != nil {
		return nil, err
	}

	robust, err := RobustOptimalSupplyContext(ctx, supply, set.Lambdas, r.conf.Model.Price, r.conf.Model.Cost, r.conf.Model.RiskAversion, Options{
		Moments:       momentOpts,
		Workers:       r.conf.Workers,
		MaxSweepCells: r.conf.Moments.MaxSweepCells,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		SampleSize:    len(sample),
		SampleMean:    mean,
		Price:         r.conf.Model.Price,
		Cost:          r.conf.Model.Cost,
		RiskAversion:  r.conf.Model.RiskAversion,
		Estimate:      estimate,
		ConfidenceSet: set,
		Nominal:       nominal,
		Robust:        robust,
		Warnings:      warnings,
		Duration:      time.Since(start),
	}

	r.logger.Info("decision complete",
		zap.String("op", op),
		zap.Float64("mle", estimate.MLE),
		zap.Int("nominalSupply", nominal.Supply),
		zap.Float64("nominalUtility", nominal.Utility),
		zap.Int("robustSupply", robust.BestSupply),
		zap.Float64("worstCaseUtility", robust.WorstCaseUtility),
		zap.Float64("worstCaseLambda", robust.WorstCaseLambda),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

func stageDone(ctx context.Context, op, stage string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: stopped before %s: %w", op, stage, err)
	}
	return nil
}

// Summary flattens the result for presentation.
func (r *Result) Summary() decision.Summary {
	summary := decision.Summary{
		SampleSize:       r.SampleSize,
		SampleMean:       r.SampleMean,
		Price:            r.Price,
		Cost:             r.Cost,
		RiskAversion:     r.RiskAversion,
		InitialGuess:     r.Estimate.InitialGuess,
		MLE:              r.Estimate.MLE,
		MaxLogLikelihood: r.Estimate.MaxLogLik,
		ConfidenceSet: decision.Interval{
			Alpha:            r.ConfidenceSet.Alpha,
			DegreesOfFreedom: r.ConfidenceSet.DegreesOfFreedom,
			CriticalValue:    r.ConfidenceSet.CriticalValue,
			Lower:            r.ConfidenceSet.Lower(),
			Upper:            r.ConfidenceSet.Upper(),
			Points:           len(r.ConfidenceSet.Indices),
		},
		NominalSupply:    r.Nominal.Supply,
		NominalUtility:   r.Nominal.Utility,
		RobustSupply:     r.Robust.BestSupply,
		WorstCaseUtility: r.Robust.WorstCaseUtility,
		WorstCaseLambda:  r.Robust.WorstCaseLambda,
		Warnings:         r.Warnings,
	}

	curve := r.Nominal.Curve
	summary.Curves = make([]decision.Curve, len(curve.Supply))
	for i, s := range curve.Supply {
		summary.Curves[i] = decision.Curve{
			Supply:           s,
			ExpectedProfit:   curve.ExpectedProfit[i],
			Variance:         curve.Variance[i],
			Utility:          curve.Utility[i],
			WorstCaseUtility: r.Robust.WorstCase[i],
			WorstCaseLambda:  r.Robust.Lambdas[r.Robust.WorstCaseIndex[i]],
		}
	}
	return summary
}
