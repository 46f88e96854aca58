// Package apperr defines the error taxonomy shared by the registry, the
// match orchestrator and both transports.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown job, match or candidate ids.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied is returned when the ownership check fails.
	ErrAccessDenied = errors.New("access denied")

	// ErrRunInProgress is returned when another worker holds the match-run token for a job.
	ErrRunInProgress = errors.New("match calculation already in progress")
)

// ValidationError wraps a user-facing validation message (HTTP 400).
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Invalid builds a ValidationError from a format string.
func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ComputationError reports a match run that could not complete, e.g. because
// the candidate store was unavailable. The job keeps its in-progress flag so a
// later trigger can retry.
type ComputationError struct {
	JobID  string
	UserID string
	Err    error
}

func (e *ComputationError) Error() string {
	switch {
	case e.JobID != "":
		return fmt.Sprintf("match computation for job %s failed: %v", e.JobID, e.Err)
	case e.UserID != "":
		return fmt.Sprintf("match computation for candidate %s failed: %v", e.UserID, e.Err)
	}
	return fmt.Sprintf("match computation failed: %v", e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsComputation reports whether err is (or wraps) a ComputationError.
func IsComputation(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}
