package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/jobs/callbacks take
// - Traffic: Request/job throughput
// - Errors: Rate of failures, by pipeline phase
// - Saturation: Concurrent jobs
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job metrics (Latency, Traffic, Errors, Saturation)
	JobDuration      metric.Float64Histogram
	JobsTotal        metric.Int64Counter
	JobErrorsTotal   metric.Int64Counter
	JobsActive       metric.Int64UpDownCounter
	JobRestartsTotal metric.Int64Counter
	JobAbortsTotal   metric.Int64Counter

	// Callback metrics (Latency, Traffic, Errors)
	CallbackDuration metric.Float64Histogram
	CallbacksTotal   metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("dogi")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 60, 300),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job metrics
	m.JobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Job pipeline duration (fetch, build, run, callback) in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800, 3600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"jobs_total",
		metric.WithDescription("Total number of jobs created"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobErrorsTotal, err = meter.Int64Counter(
		"job_errors_total",
		metric.WithDescription("Total number of failed jobs by pipeline phase"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"jobs_active",
		metric.WithDescription("Number of jobs in the registry (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobRestartsTotal, err = meter.Int64Counter(
		"job_restarts_total",
		metric.WithDescription("Total restart requests by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobAbortsTotal, err = meter.Int64Counter(
		"job_aborts_total",
		metric.WithDescription("Total abort requests against active jobs"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Callback metrics
	m.CallbackDuration, err = meter.Float64Histogram(
		"callback_duration_seconds",
		metric.WithDescription("Completion callback latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CallbacksTotal, err = meter.Int64Counter(
		"callbacks_total",
		metric.WithDescription("Total completion callbacks by response status class"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobCreated records a new job entering the registry.
func (m *Metrics) RecordJobCreated(ctx context.Context, action string) {
	m.JobsTotal.Add(ctx, 1, metric.WithAttributes(actionAttr(action)))
	m.JobsActive.Add(ctx, 1)
}

// RecordJobCompleted records a job leaving the registry. phase names the
// pipeline step that failed and is ignored on success.
func (m *Metrics) RecordJobCompleted(ctx context.Context, success bool, phase string, durationSeconds float64) {
	m.JobDuration.Record(ctx, durationSeconds, metric.WithAttributes(successAttr(success)))
	m.JobsActive.Add(ctx, -1)

	if !success {
		m.JobErrorsTotal.Add(ctx, 1, metric.WithAttributes(phaseAttr(phase)))
	}
}

// RecordJobRestart records a restart request and whether it won its race.
func (m *Metrics) RecordJobRestart(ctx context.Context, won bool) {
	m.JobRestartsTotal.Add(ctx, 1, metric.WithAttributes(successAttr(won)))
}

// RecordJobAbort records an abort request against an active job.
func (m *Metrics) RecordJobAbort(ctx context.Context) {
	m.JobAbortsTotal.Add(ctx, 1)
}

// RecordCallback records a delivered callback. statusCode is 0 when the
// request never got a response.
func (m *Metrics) RecordCallback(ctx context.Context, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(statusAttr(statusCode))
	m.CallbackDuration.Record(ctx, durationSeconds, attrs)
	m.CallbacksTotal.Add(ctx, 1, attrs)
}
