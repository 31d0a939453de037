// Package mathutil provides common numerical utility functions.
package mathutil

import (
	"math"

	"github.com/PrinceOfCongo/newsveond/pkg/constants"
)

// ClampNonNegative returns 0 for negative inputs. Used to absorb rounding
// noise in quantities that are non-negative by construction.
func ClampNonNegative(val float64) float64 {
	if val < 0 {
		return 0
	}
	return val
}

// IsFinite reports whether val is neither NaN nor infinite.
func IsFinite(val float64) bool {
	return !math.IsNaN(val) && !math.IsInf(val, 0)
}

// AllFinite reports whether every element of vals is finite.
func AllFinite(vals []float64) bool {
	for _, v := range vals {
		if !IsFinite(v) {
			return false
		}
	}
	return true
}

// IsZero checks if a value is effectively zero (within currency tolerance)
func IsZero(val float64) bool {
	return math.Abs(val) <= constants.CurrencyTolerance
}

// MinInt returns the minimum of two int values
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
