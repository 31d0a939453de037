package sample

import (
	"github.com/PrinceOfCongo/newsveond/pkg/mathutil"
	"github.com/PrinceOfCongo/newsveond/pkg/nverr"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Simulate draws n Poisson(rate) observations from a source seeded with seed.
// Equal seeds give equal samples.
func Simulate(rate float64, n int, seed uint64) ([]int, error) {
	const op = "sample.Simulate"
	if rate <= 0 || !mathutil.IsFinite(rate) {
		return nil, nverr.Invalid(op, "rate", "must be positive, got %g", rate)
	}
	if n < 1 {
		return nil, nverr.Invalid(op, "size", "must be at least 1, got %d", n)
	}

	dist := distuv.Poisson{Lambda: rate, Src: rand.NewSource(seed)}
	out := make([]int, n)
	for i := range out {
		out[i] = int(dist.Rand())
	}
	return out, nil
}
