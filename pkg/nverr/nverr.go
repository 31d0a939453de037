// Package nverr defines the typed failures raised by the decision pipeline.
//
// Every failure carries a Kind sentinel so callers can branch with errors.Is,
// the operation that raised it, and the offending parameter so presentation
// layers can tell the user exactly what to change.
package nverr

import (
	"errors"
	"fmt"
)

// Kind sentinels. Match them with errors.Is.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrInsufficientTruncation = errors.New("insufficient truncation")
	ErrEmptyConfidenceSet     = errors.New("empty confidence set")
	ErrDegenerateSample       = errors.New("degenerate sample")
	ErrBudgetExceeded         = errors.New("grid budget exceeded")
)

// Error is a failure with context.
type Error struct {
	Kind    error
	Op      string
	Param   string
	Message string
}

func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (%s): %s", e.Op, e.Kind, e.Param, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Invalid builds an ErrInvalidInput failure.
func Invalid(op, param, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrInvalidInput, Op: op, Param: param, Message: fmt.Sprintf(format, args...)}
}

// Truncation builds an ErrInsufficientTruncation failure.
func Truncation(op string, factor, mass, tolerance float64) *Error {
	return &Error{
		Kind:    ErrInsufficientTruncation,
		Op:      op,
		Param:   "truncationFactor",
		Message: fmt.Sprintf("retained probability mass %.6f below %.6f with factor %g", mass, tolerance, factor),
	}
}

// Budget builds an ErrBudgetExceeded failure.
func Budget(op, param string, size, limit int) *Error {
	return &Error{
		Kind:    ErrBudgetExceeded,
		Op:      op,
		Param:   param,
		Message: fmt.Sprintf("grid of %d cells exceeds limit of %d", size, limit),
	}
}

// KindName returns a stable identifier for the kind of err, or "internal"
// when err carries none of the known kinds.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, ErrInsufficientTruncation):
		return "InsufficientTruncation"
	case errors.Is(err, ErrEmptyConfidenceSet):
		return "EmptyConfidenceSet"
	case errors.Is(err, ErrDegenerateSample):
		return "DegenerateSample"
	case errors.Is(err, ErrBudgetExceeded):
		return "BudgetExceeded"
	default:
		return "internal"
	}
}

// ParamOf returns the offending parameter recorded on err, if any.
func ParamOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Param
	}
	return ""
}
