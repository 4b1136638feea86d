package apperror

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the generation flow
var (
	ErrMissingTaskID     = errors.New("no task id in response")
	ErrNoAudioURL        = errors.New("no audio URL found in the completed response")
	ErrBusy              = errors.New("a generation is already in progress")
	ErrGenerationStarted = errors.New("answers are locked once generation has started")
	ErrNothingToRetry    = errors.New("nothing to retry")
	ErrSessionNotFound   = errors.New("session not found")
	ErrNotConfigured     = errors.New("service not configured")
)

// StatusError is returned by the HTTP clients when a remote service answers
// with a non-2xx status or a non-success application code.
type StatusError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

// ValidationError rejects a wizard step transition. It never reaches the network layer.
type ValidationError struct {
	Step    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// GenerationError reports a failed lyrics call.
type GenerationError struct {
	Message string
	Cause   error
}

func (e *GenerationError) Error() string {
	return "failed to generate lyrics: " + e.Message
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// SubmissionError reports a failed song job creation.
type SubmissionError struct {
	Cause error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to start song generation: %v", e.Cause)
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

// PollingError reports a non-transient failure while checking task status.
type PollingError struct {
	TaskID string
	Cause  error
}

func (e *PollingError) Error() string {
	return fmt.Sprintf("failed to check song status (task=%s): %v", e.TaskID, e.Cause)
}

func (e *PollingError) Unwrap() error { return e.Cause }

// PollingTimeoutError is returned once the attempt budget is exhausted.
type PollingTimeoutError struct {
	TaskID   string
	Attempts int
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("song generation timed out after %d attempts (task=%s)", e.Attempts, e.TaskID)
}

// TerminalFailureError means the remote service explicitly reported a failure status.
type TerminalFailureError struct {
	TaskID  string
	Status  string
	Message string
}

func (e *TerminalFailureError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("song generation failed (%s): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("song generation failed (%s)", e.Status)
}
