// Package testutil provides common utility functions for testing.
package testutil

import (
	"github.com/PrinceOfCongo/newsveond/pkg/decision"
)

// FindCurve finds the curve point for supply in the summary.
// Returns a pointer to the point if found, nil otherwise.
func FindCurve(summary *decision.Summary, supply int) *decision.Curve {
	if summary == nil {
		return nil
	}
	for i := range summary.Curves {
		if summary.Curves[i].Supply == supply {
			return &summary.Curves[i]
		}
	}
	return nil
}
