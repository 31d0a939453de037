package mathutil

import (
	"math"
	"testing"
)

func TestClampNonNegative(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"Positive unchanged", 3.5, 3.5},
		{"Zero unchanged", 0, 0},
		{"Rounding noise clamped", -1e-12, 0},
		{"Large negative clamped", -100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampNonNegative(tt.input); got != tt.expected {
				t.Errorf("ClampNonNegative(%v) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsFinite(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected bool
	}{
		{"Regular value", 1.5, true},
		{"Zero", 0, true},
		{"NaN", math.NaN(), false},
		{"Positive infinity", math.Inf(1), false},
		{"Negative infinity", math.Inf(-1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFinite(tt.input); got != tt.expected {
				t.Errorf("IsFinite(%v) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAllFinite(t *testing.T) {
	if !AllFinite([]float64{1, 2, 3}) {
		t.Errorf("expected finite slice to be reported finite")
	}
	if AllFinite([]float64{1, math.NaN()}) {
		t.Errorf("expected slice containing NaN to be reported non-finite")
	}
	if !AllFinite(nil) {
		t.Errorf("expected empty slice to be reported finite")
	}
}

func TestIsZero(t *testing.T) {
	if !IsZero(0.001) {
		t.Errorf("expected 0.001 to be treated as zero")
	}
	if IsZero(0.02) {
		t.Errorf("expected 0.02 to be non-zero")
	}
}

func TestMinInt(t *testing.T) {
	if MinInt(3, 7) != 3 || MinInt(7, 3) != 3 {
		t.Errorf("MinInt returned wrong value")
	}
}
