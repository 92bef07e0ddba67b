// Package health provides health check functionality for liveness and readiness probes.
package health

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Pinger is implemented by dependencies that can answer a readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Check is one named readiness probe.
type Check struct {
	Name   string
	Target Pinger
	// A failing optional check degrades readiness instead of failing it.
	Optional bool
}

// Required builds a check whose failure makes the service unready.
func Required(name string, target Pinger) Check {
	return Check{Name: name, Target: target}
}

// Optional builds a check whose failure only degrades the service.
func Optional(name string, target Pinger) Check {
	return Check{Name: name, Target: target, Optional: true}
}

var errNotConfigured = errors.New("not configured")

// Checker performs health checks on dependencies.
type Checker struct {
	checks  []Check
	timeout time.Duration
	ttl     time.Duration

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a health checker running checks in order.
func NewChecker(checks ...Check) *Checker {
	return &Checker{
		checks:  checks,
		timeout: 5 * time.Second,
		ttl:     time.Second,
	}
}

// Liveness reports the process is alive. It never consults dependencies,
// so a hung docker daemon does not get the orchestrator restarted.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness runs the readiness checks. Results are cached briefly so probes
// do not hammer the docker daemon.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}
	if c.cachedReady != nil && time.Since(c.lastCheck) < c.ttl {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	response := &Response{
		Status: StatusHealthy,
		Checks: make(map[string]CheckResult, len(c.checks)),
	}
	for _, check := range c.checks {
		result := c.run(ctx, check)
		response.Checks[check.Name] = result
		response.Status = worse(response.Status, result.Status)
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

func (c *Checker) run(ctx context.Context, check Check) CheckResult {
	err := errNotConfigured
	if check.Target != nil {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		err = check.Target.Ping(ctx)
		cancel()
	}
	if err == nil {
		return CheckResult{Status: StatusHealthy}
	}

	status := StatusUnhealthy
	if check.Optional {
		status = StatusDegraded
	}
	return CheckResult{Status: status, Message: err.Error()}
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// IsHealthy reports whether the service can take traffic. A degraded
// service still can.
func (r *Response) IsHealthy() bool {
	return r.Status != StatusUnhealthy
}

// SetShuttingDown marks the service as shutting down.
// This causes readiness checks to return unhealthy, signaling
// load balancers to stop sending new traffic.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
