package enhance

import (
	"errors"
	"fmt"
)

// Static errors for pipeline construction and execution.
var (
	// ErrEmptyPipeline is returned when the pipeline spec is empty while the
	// subsystem is enabled.
	ErrEmptyPipeline = errors.New("enhance: pipeline spec is empty")
	// ErrUnknownStage is returned for a stage name outside the closed set.
	ErrUnknownStage = errors.New("enhance: unknown pipeline stage")
	// ErrDuplicateStage is returned when a stage appears twice in the pipeline spec.
	ErrDuplicateStage = errors.New("enhance: duplicate pipeline stage")
	// ErrInvariantViolation is returned when a stage produced a segment
	// sequence that breaks the ordering or conservation invariants. It is
	// fatal to the pipeline invocation; the job falls back to the raw ASR
	// output.
	ErrInvariantViolation = errors.New("enhance: stage violated segment invariant")
)

// ConfigValidationError reports a rejected enhancement configuration: an
// unrecognized key, an out-of-range value, or a malformed pipeline spec.
// It is surfaced to the caller at request time, before a job is enqueued.
type ConfigValidationError struct {
	// Key is the offending configuration key, e.g. "vad.silero_threshold".
	Key string
	// Reason describes why the key was rejected.
	Reason string
	// Err is the underlying sentinel, if one applies (e.g. ErrUnknownStage).
	Err error
}

// Error implements the error interface.
func (e *ConfigValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("enhance: invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("enhance: invalid configuration key %q: %s", e.Key, e.Reason)
}

// Unwrap exposes the underlying sentinel to errors.Is.
func (e *ConfigValidationError) Unwrap() error {
	return e.Err
}

// IsConfigValidation reports whether err is a ConfigValidationError.
func IsConfigValidation(err error) bool {
	var cve *ConfigValidationError
	return errors.As(err, &cve)
}
