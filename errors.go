package tangguh

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure scenarios
var (
	// ErrInvalidConfig is returned (wrapped) when a config struct fails
	// construction-time validation.
	ErrInvalidConfig = errors.New("tangguh: invalid configuration")

	// ErrRegistryFull is returned when a bounded registry refuses to create
	// a new entry because it reached its maximum size.
	ErrRegistryFull = errors.New("tangguh: registry full")

	// ErrAllHedgesFailed is returned when every fired entry of a hedged
	// invocation rejected with a genuine (non-cancellation) error.
	ErrAllHedgesFailed = errors.New("tangguh: all hedged attempts failed")

	// ErrEmptyOperationName is returned when an operation name is empty
	// after sanitization.
	ErrEmptyOperationName = errors.New("tangguh: operation name empty after sanitization")
)

// ConfigError aggregates the validation failures of a single config struct.
// It is only produced at construction time; engines never produce it during
// normal operation.
type ConfigError struct {
	Component string
	Problems  []string
}

// Error implements error interface.
func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s configuration invalid: %s", e.Component, strings.Join(e.Problems, "; "))
}

// Unwrap allows errors.Is(err, ErrInvalidConfig).
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// HedgeError carries the genuine failures of every fired hedge entry once
// the whole invocation is declared failed. Cancellation rejections are never
// included; each stored error is already tagged with the entry index that
// produced it, so the message identifies entries even after filtering.
type HedgeError struct {
	Operation string
	Fired     int
	Errs      []error
}

// Error implements error interface.
func (e *HedgeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%s: %d/%d hedged attempts failed: %s",
		e.Operation, len(e.Errs), e.Fired, strings.Join(parts, "; "))
}

// Unwrap allows errors.Is(err, ErrAllHedgesFailed) and errors.Is against the
// individual attempt errors.
func (e *HedgeError) Unwrap() []error {
	return append([]error{ErrAllHedgesFailed}, e.Errs...)
}

// IsCancellation reports whether err represents the internal cancellation
// control signal rather than a genuine failure. Deadline expiry is a genuine
// failure: only explicit cancellation is excluded from failure accounting.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
