// Package callback notifies caller-supplied endpoints when a job's run
// phase has succeeded.
package callback

import (
	"context"
	"dogi/internal/observability"
	"dogi/pkg/webhook"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Notification is the body posted to the callback endpoint.
type Notification struct {
	CallerID string            `json:"callerId,omitempty"`
	Env      map[string]string `json:"env"`
	Output   map[string]string `json:"output"` // Artifact id -> locator
}

// Result echoes the request and captures the endpoint's answer.
type Result struct {
	Request  Request  `json:"request"`
	Response Response `json:"response"`
}

// Request is the echo of a sent callback.
type Request struct {
	URL    string       `json:"url"`
	Method string       `json:"method"`
	Data   Notification `json:"data"`
}

// Response holds the endpoint's status and body. Data is the decoded JSON
// body, or the raw text if it is not JSON.
type Response struct {
	Status int `json:"status"`
	Data   any `json:"data"`
	raw    []byte
}

// OK reports whether the endpoint answered 2xx.
func (r *Result) OK() bool {
	return r.Response.Status >= 200 && r.Response.Status < 300
}

// Body returns the raw response body.
func (r *Result) Body() string {
	return string(r.Response.raw)
}

// Config holds configuration for the dispatcher.
type Config struct {
	Timeout    time.Duration     // Per-request timeout (default 30s)
	Headers    map[string]string // Extra headers on every callback
	SigningKey string            // HMAC key for X-Signature-256 (optional)
}

// Dispatcher sends completion callbacks.
type Dispatcher struct {
	sender     *webhook.Sender
	headers    map[string]string
	signingKey string
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewDispatcher creates a callback dispatcher.
func NewDispatcher(cfg Config, metrics *observability.Metrics) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		sender:     webhook.NewSender(timeout),
		headers:    cfg.Headers,
		signingKey: cfg.SigningKey,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Notify posts n to url and records the exchange in the log at logPath.
// A non-2xx answer is returned as a Result, not an error; only transport
// or log failures are errors.
func (d *Dispatcher) Notify(ctx context.Context, url string, n Notification, logPath string) (*Result, error) {
	logger := slog.With("component", "callback", "url", url)

	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer logFile.Close()

	d.logf(logFile, "Calling POST %s\n", url)

	start := time.Now()
	resp, err := d.sender.Post(ctx, url, n, webhook.SendOptions{
		Headers:    d.headers,
		SigningKey: d.signingKey,
	})
	duration := time.Since(start).Seconds()
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordCallback(ctx, 0, duration)
		}
		d.logf(logFile, "Callback failed: %v\n", err)
		_ = logFile.Sync()
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.RecordCallback(ctx, resp.StatusCode, duration)
	}

	result := &Result{
		Request:  Request{URL: url, Method: http.MethodPost, Data: n},
		Response: Response{Status: resp.StatusCode, Data: decodeBody(resp.Body), raw: resp.Body},
	}

	record, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode callback result: %w", err)
	}
	d.logf(logFile, "%s\n", record)

	// Readers following the log must observe the record once we return.
	if err := logFile.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync log: %w", err)
	}

	logger.Info("Callback delivered", "status", resp.StatusCode, "duration", duration)
	return result, nil
}

func (d *Dispatcher) logf(f *os.File, format string, args ...any) {
	stamp := d.now().UTC().Format(time.RFC3339Nano)
	if _, err := fmt.Fprintf(f, "[%s] %s", stamp, fmt.Sprintf(format, args...)); err != nil {
		slog.Warn("Failed to write callback log", "error", err)
	}
}

func decodeBody(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}
