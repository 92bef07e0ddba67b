// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
	ErrBuild      = errors.New("build failed")
	ErrRun        = errors.New("run failed")
	ErrCallback   = errors.New("callback failed")
)

// Conflict reasons reported to callers whose request was superseded.
const (
	ReasonKilledByRestart = "killed by subsequent restart"
	ReasonKilledByAbort   = "killed by abort"
	ReasonShuttingDown    = "shutting down"
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "action", "file_1")
	Resource string // For not found/conflict (e.g., "job", "artifact")
	Op       string // Operation that failed (e.g., "git.clone")
	Cause    error  // Underlying error

	ExitCode int    // Container exit code for run failures
	Status   int    // Callback response status
	Body     string // Callback response body
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Build creates an image build failure.
func Build(cause error) error {
	return &Error{
		Sentinel: ErrBuild,
		Message:  fmt.Sprintf("build failed: %v", cause),
		Op:       "build",
		Cause:    cause,
	}
}

// Run creates a failure for a container that exited with a nonzero code.
func Run(exitCode int) error {
	return &Error{
		Sentinel: ErrRun,
		Message:  fmt.Sprintf("execution failed with code %d", exitCode),
		Op:       "run",
		ExitCode: exitCode,
	}
}

// Callback creates a failure for a callback endpoint that answered non-2xx.
func Callback(status int, body string) error {
	return &Error{
		Sentinel: ErrCallback,
		Message:  fmt.Sprintf("callback failed with status %d", status),
		Op:       "callback",
		Status:   status,
		Body:     body,
	}
}

// ExitCode extracts the exit code carried by a run failure.
func ExitCode(err error) (int, bool) {
	var appErr *Error
	if errors.As(err, &appErr) && errors.Is(appErr.Sentinel, ErrRun) {
		return appErr.ExitCode, true
	}
	return 0, false
}
