package job

import (
	"dogi/internal/apperrors"
	"dogi/internal/callback"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action selects what a lifecycle request does to the job of a fingerprint.
type Action string

// Lifecycle actions
const (
	ActionRun     Action = "run"     // Create, or join the active job
	ActionRestart Action = "restart" // Abort the active job, then create
	ActionAbort   Action = "abort"   // Abort the active job
	ActionPeek    Action = "peek"    // Read state without side effects
)

// ParseAction parses an action name. Empty means run.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(s)); a {
	case "":
		return ActionRun, nil
	case ActionRun, ActionRestart, ActionAbort, ActionPeek:
		return a, nil
	default:
		return "", apperrors.Validation("action", fmt.Sprintf("unknown action %q (run, restart, abort, peek)", s))
	}
}

// StatusOutput is the pseudo artifact id asking for the job status.
const StatusOutput = "status"

// Request represents a lifecycle request for one repository reference.
type Request struct {
	Action       Action
	Reference    string            // Repository reference passed to the fetcher
	CallerID     string            // Optional; distinguishes jobs of one reference
	Dockerfile   string            // Path inside the repository (default from config)
	Command      []string          // Container command; empty keeps the image default
	ShellCommand string            // Run through /bin/sh -c instead of Command
	Env          map[string]string // Container environment
	CallbackURL  string            // Notified after a successful run
	FileOutputs  map[string]string // Artifact id (file_*) -> container path
	Output       string            // Artifact the caller will read ("" or "status" for none)
}

// Status is a snapshot of a job.
type Status struct {
	ID         string            `json:"id"`
	CallerID   string            `json:"callerId,omitempty"`
	Generation string            `json:"generation,omitempty"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
	Active     bool              `json:"active"`
	Finished   bool              `json:"finished"`
	Env        map[string]string `json:"env,omitempty"`
	Output     map[string]string `json:"output"`             // Artifact id -> locator
	Callback   *callback.Result  `json:"callback,omitempty"` // Set once the callback answered
	Errors     []ErrorEntry      `json:"errors"`
}

// ErrorEntry describes one terminal failure of a job.
type ErrorEntry struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	ExitCode int    `json:"exitCode,omitempty"` // RunFailure only
	Status   int    `json:"status,omitempty"`   // CallbackFailure only
}

func newErrorEntry(err error) ErrorEntry {
	e := ErrorEntry{Kind: apperrors.Kind(err), Message: err.Error()}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		e.ExitCode = appErr.ExitCode
		e.Status = appErr.Status
	}
	return e
}

// ListResponse is the response body for listing active jobs.
type ListResponse struct {
	Jobs map[string]Status `json:"jobs"`
}
