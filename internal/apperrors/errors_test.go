package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("action", "unknown action")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "unknown action" {
		t.Errorf("expected message 'unknown action', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "action" {
		t.Errorf("expected field 'action', got %q", appErr.Field)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	err := NotFound("job", "dogi_abc123")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to match ErrNotFound")
	}
	if err.Error() != "job dogi_abc123 not found" {
		t.Errorf("expected message 'job dogi_abc123 not found', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Resource != "job" {
		t.Errorf("expected resource 'job', got %q", appErr.Resource)
	}
}

func TestConflict(t *testing.T) {
	t.Parallel()
	err := Conflict("job", "dogi_abc123", ReasonKilledByRestart)

	if !errors.Is(err, ErrConflict) {
		t.Error("expected error to match ErrConflict")
	}
	if err.Error() != "killed by subsequent restart" {
		t.Errorf("expected message 'killed by subsequent restart', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Resource != "job" {
		t.Errorf("expected resource 'job', got %q", appErr.Resource)
	}
}

func TestInternal(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("repository not found")
	err := Internal("git.clone", cause)

	if !errors.Is(err, ErrInternal) {
		t.Error("expected error to match ErrInternal")
	}
	if err.Error() != "git.clone: repository not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Op != "git.clone" {
		t.Errorf("expected op 'git.clone', got %q", appErr.Op)
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", Validation("id", "required"), http.StatusBadRequest},
		{"not found", NotFound("job", "123"), http.StatusNotFound},
		{"conflict", Conflict("job", "123", "exists"), http.StatusConflict},
		{"internal", Internal("op", fmt.Errorf("fail")), http.StatusInternalServerError},
		{"sentinel validation", ErrValidation, http.StatusBadRequest},
		{"sentinel not found", ErrNotFound, http.StatusNotFound},
		{"sentinel conflict", ErrConflict, http.StatusConflict},
		{"sentinel internal", ErrInternal, http.StatusInternalServerError},
		{"run failure", Run(1), http.StatusInternalServerError},
		{"callback failure", Callback(502, "bad gateway"), http.StatusInternalServerError},
		{"build failure", Build(fmt.Errorf("no Dockerfile")), http.StatusInternalServerError},
		{"wrapped validation", fmt.Errorf("wrap: %w", Validation("f", "m")), http.StatusBadRequest},
		{"deadline", fmt.Errorf("clone: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unknown error", fmt.Errorf("unknown"), http.StatusInternalServerError},
		{"nil error", nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := HTTPStatus(tt.err)
			if got != tt.expected {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want string
	}{
		{Validation("id", "bad"), KindValidation},
		{NotFound("job", "x"), KindNotFound},
		{Conflict("job", "x", ReasonKilledByAbort), KindConflict},
		{Build(errors.New("no Dockerfile")), KindBuild},
		{Run(1), KindRun},
		{fmt.Errorf("pipeline: %w", Callback(500, "")), KindCallback},
		{Internal("git.clone", errors.New("exit status 128")), KindInternal},
		{errors.New("plain"), KindInternal},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorsIsWithWrapping(t *testing.T) {
	t.Parallel()
	// Ensure errors.Is works through fmt.Errorf wrapping
	original := Validation("file_1", "invalid output id")
	wrapped := fmt.Errorf("service error: %w", original)
	doubleWrapped := fmt.Errorf("handler error: %w", wrapped)

	if !errors.Is(doubleWrapped, ErrValidation) {
		t.Error("expected errors.Is to find ErrValidation through multiple wraps")
	}
}

func TestRun(t *testing.T) {
	t.Parallel()
	err := Run(1)

	if !errors.Is(err, ErrRun) {
		t.Error("expected error to match ErrRun")
	}
	if err.Error() != "execution failed with code 1" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	code, ok := ExitCode(fmt.Errorf("pipeline: %w", err))
	if !ok || code != 1 {
		t.Errorf("ExitCode() = %d, %v, want 1, true", code, ok)
	}

	if _, ok := ExitCode(Callback(500, "")); ok {
		t.Error("expected callback failure to carry no exit code")
	}
}

func TestCallback(t *testing.T) {
	t.Parallel()
	err := Callback(503, "unavailable")

	if !errors.Is(err, ErrCallback) {
		t.Error("expected error to match ErrCallback")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Status != 503 || appErr.Body != "unavailable" {
		t.Errorf("expected status 503 and body 'unavailable', got %d %q", appErr.Status, appErr.Body)
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("Dockerfile not found")
	err := Build(cause)

	if !errors.Is(err, ErrBuild) {
		t.Error("expected error to match ErrBuild")
	}
	if err.Error() != "build failed: Dockerfile not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
