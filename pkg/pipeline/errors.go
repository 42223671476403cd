package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every error Run returns wraps one of ErrData or ErrParameter,
// or is a context or I/O failure. ErrVisualization is recovered inside Run
// and only reaches logs and notes.
var (
	ErrData          = errors.New("data error")
	ErrParameter     = errors.New("parameter error")
	ErrVisualization = errors.New("visualization error")
)

func dataErr(err error) error { return fmt.Errorf("%w: %w", ErrData, err) }
func paramErr(err error) error { return fmt.Errorf("%w: %w", ErrParameter, err) }
func visualErr(err error) error { return fmt.Errorf("%w: %w", ErrVisualization, err) }

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Outcome classifies a finished run for observers.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeDataError      Outcome = "data_error"
	OutcomeParameterError Outcome = "parameter_error"
	OutcomeCanceled       Outcome = "canceled"
	OutcomeError          Outcome = "error"
)

// OutcomeOf classifies err.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrData):
		return OutcomeDataError
	case errors.Is(err, ErrParameter):
		return OutcomeParameterError
	case isCanceled(err):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
