package sample

import (
	"math"
	"reflect"
	"testing"
)

func TestSimulateIsReproducible(t *testing.T) {
	first, err := Simulate(40, 200, 4523745)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	second, err := Simulate(40, 200, 4523745)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Simulate() with equal seeds produced different samples")
	}
}

func TestSimulateMatchesRate(t *testing.T) {
	draws, err := Simulate(100, 5000, 7)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	summary, err := Summarize(draws)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	// Standard error of the mean is sqrt(100/5000) ≈ 0.14.
	if math.Abs(summary.Mean-100) > 1 {
		t.Errorf("Simulated mean %v too far from 100", summary.Mean)
	}
	if summary.Min < 0 {
		t.Errorf("Simulated a negative demand %d", summary.Min)
	}
}

func TestSimulateValidation(t *testing.T) {
	if _, err := Simulate(0, 10, 1); err == nil {
		t.Errorf("Simulate() expected error for zero rate")
	}
	if _, err := Simulate(5, 0, 1); err == nil {
		t.Errorf("Simulate() expected error for empty sample")
	}
}
