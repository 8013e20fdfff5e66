package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input errors
	ErrValidation         = errors.New("validation failed")
	ErrInvalidGranularity = errors.New("invalid granularity")
	ErrEmptyInput         = errors.New("empty input")

	// Ingestion errors
	ErrFatalIngest = errors.New("no usable rows after preprocessing")

	// Forecasting errors
	ErrInsufficientHistory = errors.New("insufficient history for forecasting")
	ErrAllModelsFailed     = errors.New("all candidate models failed to fit")
	ErrModelFit            = errors.New("model fit failed")
)

// Error constructors with context
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w for %s: %s", ErrValidation, field, reason)
}

func NewGranularityError(granularity string) error {
	return fmt.Errorf("%w: %q (want day, week, month or quarter)", ErrInvalidGranularity, granularity)
}

func NewFatalIngestError(total, rejected int) error {
	return fmt.Errorf("%w: %d of %d rows rejected", ErrFatalIngest, rejected, total)
}

func NewInsufficientHistoryError(have, need int) error {
	return fmt.Errorf("%w: have %d periods, need at least %d", ErrInsufficientHistory, have, need)
}

func NewModelFitError(model string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrModelFit, model, reason)
}

// Error checking helpers
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidGranularity) ||
		errors.Is(err, ErrEmptyInput)
}

// IsNoForecastError reports whether err means no forecast could be produced at all,
// as opposed to a forecast with wide bounds.
func IsNoForecastError(err error) bool {
	return errors.Is(err, ErrInsufficientHistory) ||
		errors.Is(err, ErrAllModelsFailed)
}
