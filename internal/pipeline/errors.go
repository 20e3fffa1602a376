package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies pipeline failures for callers.
type ErrorKind string

const (
	KindInvalidInput    ErrorKind = "invalid_input"
	KindRateLimited     ErrorKind = "rate_limited"
	KindTimeout         ErrorKind = "timeout"
	KindProviderFailure ErrorKind = "provider_failure"
)

// StageError is a classified failure from running one stage's backend.
type StageError struct {
	Stage    Stage
	Kind     ErrorKind
	Provider string
	Cause    error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s (%s): %v", e.Stage, e.Kind, e.Provider, e.Cause)
	}
	return fmt.Sprintf("%s %s (%s)", e.Stage, e.Kind, e.Provider)
}

func (e *StageError) Unwrap() error { return e.Cause }

// Error is the terminal failure of a pipeline run. Stage is empty when the
// failure is pipeline-level: input validation, or the end-to-end budget
// expiring at a stage boundary before the next stage could start.
type Error struct {
	Stage   Stage
	Kind    ErrorKind
	Elapsed time.Duration // cumulative wall clock at failure
	Cause   error
}

func (e *Error) Error() string {
	where := "pipeline"
	if e.Stage != "" {
		where = string(e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", where, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s %s after %s", where, e.Kind, e.Elapsed.Round(time.Millisecond))
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the pipeline error kind from err, or KindProviderFailure
// when err is not a pipeline error.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindProviderFailure
}
