package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "GET", "/ssh/git@github.com:org/repo.git", 200, 12.5)
	metrics.RecordHTTPRequest(ctx, "GET", "/output/dogi_abc/log", 404, 0.005)
	metrics.RecordHTTPRequest(ctx, "GET", "/jobs", 500, 0.001)
}

func TestRecordJobMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordJobCreated(ctx, "run")
	metrics.RecordJobCreated(ctx, "restart")
	metrics.RecordJobCompleted(ctx, true, "", 5.5)
	metrics.RecordJobCompleted(ctx, false, "run", 120.0)
	metrics.RecordJobRestart(ctx, true)
	metrics.RecordJobRestart(ctx, false)
	metrics.RecordJobAbort(ctx)
	metrics.RecordCallback(ctx, 204, 0.2)
	metrics.RecordCallback(ctx, 0, 30)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/jobs", "/jobs"},
		{"/ssh/git@github.com:org/repo.git", "/{scheme}/*"},
		{"/https/github.com/org/repo.git", "/{scheme}/*"},
		{"/output/dogi_abc/file_1", "/output/{fingerprint}/{artifactId}"},
		{"/collect/log", "/collect/{artifactId}"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestStatusAttr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code int
		want string
	}{
		{0, "none"},
		{200, "2xx"},
		{404, "4xx"},
		{502, "5xx"},
	}

	for _, tt := range tests {
		if got := statusAttr(tt.code).Value.AsString(); got != tt.want {
			t.Errorf("statusAttr(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
