// Package job coordinates job lifecycles: one active job per fingerprint,
// run/restart/abort/peek dispatch, and the fetch-build-run-callback
// pipeline of each job.
package job

import (
	"context"
	"dogi/internal/apperrors"
	"dogi/internal/callback"
	"dogi/internal/container"
	"dogi/internal/fingerprint"
	"dogi/internal/observability"
	"dogi/internal/output"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Fetcher retrieves a repository reference into a directory.
type Fetcher interface {
	Fetch(ctx context.Context, reference, dir string) error
}

// Notifier delivers completion callbacks.
type Notifier interface {
	Notify(ctx context.Context, url string, n callback.Notification, logPath string) (*callback.Result, error)
}

// Config holds the coordinator's collaborators.
type Config struct {
	Runtime           container.Runtime      // Required
	Fetcher           Fetcher                // Required
	Outputs           *output.Manager        // Required
	Notifier          Notifier               // Required when callbacks are used
	Metrics           *observability.Metrics // Metrics recorder (optional)
	DefaultDockerfile string                 // Default "Dockerfile"
}

// Coordinator owns the registry of active jobs.
type Coordinator struct {
	runtime           container.Runtime
	fetcher           Fetcher
	outputs           *output.Manager
	notifier          Notifier
	metrics           *observability.Metrics
	defaultDockerfile string

	jobs *registry

	// closing turns away new jobs once Close has begun. create holds the
	// read side from the check until the pipeline is counted.
	closeMu sync.RWMutex
	closing bool

	// Pipelines run under ctx rather than the request that started them.
	ctx      context.Context
	cancel   context.CancelFunc
	pipeline sync.WaitGroup
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("container runtime is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("source fetcher is required")
	}
	if cfg.Outputs == nil {
		return nil, fmt.Errorf("output manager is required")
	}

	dockerfile := cfg.DefaultDockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		runtime:           cfg.Runtime,
		fetcher:           cfg.Fetcher,
		outputs:           cfg.Outputs,
		notifier:          cfg.Notifier,
		metrics:           cfg.Metrics,
		defaultDockerfile: dockerfile,
		jobs:              newRegistry(),
		ctx:               ctx,
		cancel:            cancel,
	}, nil
}

// Lifecycle is the single entry point for run, restart, abort and peek.
//
// With no active job for the request's fingerprint, run and restart create
// one, abort fails with NotFound and peek reads what is left on disk. With
// an active job, run joins it, peek describes it, abort stops it and
// restart stops it and creates a replacement; of overlapping restarts only
// the newest creates a job, older ones fail with Conflict.
func (c *Coordinator) Lifecycle(ctx context.Context, req *Request) (*Job, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	fp := fingerprint.Of(req.Reference, req.CallerID)
	existing, ok := c.jobs.get(fp)
	if !ok {
		switch req.Action {
		case ActionPeek:
			return c.peekRetired(fp, req)
		case ActionAbort:
			return nil, apperrors.NotFound("job", fp)
		default:
			return c.create(ctx, fp, req)
		}
	}

	if req.Action != ActionAbort && req.Action != ActionRestart {
		if err := existing.awaitPrepared(ctx); err != nil {
			return nil, err
		}
	}

	switch req.Action {
	case ActionPeek:
		if err := requireOutput(existing.Outputs(), req.Output); err != nil {
			return nil, err
		}
		return existing, nil
	case ActionAbort:
		if err := c.abort(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case ActionRestart:
		return c.restart(ctx, fp, existing, req)
	default:
		return existing, nil
	}
}

func (c *Coordinator) peekRetired(fp string, req *Request) (*Job, error) {
	outs, err := c.outputs.Existing(fp)
	if err != nil {
		return nil, err
	}
	if err := requireOutput(outs, req.Output); err != nil {
		return nil, err
	}
	return newRetiredJob(fp, outs), nil
}

func requireOutput(outs *output.Outputs, id string) error {
	if id == "" || id == StatusOutput || outs == nil {
		return nil
	}
	if _, ok := outs.Files[id]; !ok {
		return apperrors.NotFound("artifact", id)
	}
	return nil
}

func (c *Coordinator) abort(ctx context.Context, j *Job) error {
	if c.metrics != nil {
		c.metrics.RecordJobAbort(ctx)
	}
	j.rejectRestart(apperrors.ReasonKilledByAbort)
	return j.abort(ctx, apperrors.ReasonKilledByAbort)
}

func (c *Coordinator) restart(ctx context.Context, fp string, j *Job, req *Request) (*Job, error) {
	token := j.installRestart()

	// The abort outlives this call: a lost race or a gone caller must not
	// leave the old container behind.
	aborted := make(chan error, 1)
	go func() {
		aborted <- j.abort(context.WithoutCancel(ctx), apperrors.ReasonKilledByRestart)
	}()

	select {
	case err := <-aborted:
		// A newer restart may have arrived while the abort finished.
		if rejected := token.Rejected(); rejected != nil {
			c.recordRestart(ctx, false)
			return nil, rejected
		}
		if err != nil {
			return nil, err
		}
		c.recordRestart(ctx, true)
		return c.create(ctx, fp, req)
	case <-token.rejected:
		c.recordRestart(ctx, false)
		return nil, token.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) recordRestart(ctx context.Context, won bool) {
	if c.metrics != nil {
		c.metrics.RecordJobRestart(ctx, won)
	}
}

// create registers a new job and launches its pipeline. If another job
// took the fingerprint first, that job is returned once it is prepared.
func (c *Coordinator) create(ctx context.Context, fp string, req *Request) (*Job, error) {
	j := newJob(fp, req)

	c.closeMu.RLock()
	if c.closing {
		c.closeMu.RUnlock()
		return nil, apperrors.Conflict("job", fp, apperrors.ReasonShuttingDown)
	}
	existing, inserted := c.jobs.insertIfAbsent(j)
	if inserted {
		c.pipeline.Add(1)
	}
	c.closeMu.RUnlock()

	if !inserted {
		if err := existing.awaitPrepared(ctx); err != nil {
			return nil, err
		}
		return existing, nil
	}

	outs, err := c.prepare(fp, req)
	if err != nil {
		j.logger.Error("Failed to prepare job", "error", err)
		c.retire(j, err)
		close(j.prepared)
		c.pipeline.Done()
		return nil, err
	}
	j.setOutputs(outs)
	close(j.prepared)

	if c.metrics != nil {
		c.metrics.RecordJobCreated(c.ctx, string(req.Action))
	}
	j.logger.Info("Job created", "reference", req.Reference, "callerId", req.CallerID)

	go func() {
		defer c.pipeline.Done()
		c.run(j, req)
	}()

	return j, nil
}

func (c *Coordinator) prepare(fp string, req *Request) (*output.Outputs, error) {
	if err := c.outputs.Reset(fp); err != nil {
		return nil, apperrors.Internal("output.reset", err)
	}
	outs, err := c.outputs.Create(fp, req.FileOutputs)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			return nil, err
		}
		return nil, apperrors.Internal("output.create", err)
	}
	return outs, nil
}

// retire settles a job and removes it from the registry.
func (c *Coordinator) retire(j *Job, err error) {
	j.settle(err)
	c.jobs.release(j)
	close(j.done)
}

// Get returns the active job of a fingerprint.
func (c *Coordinator) Get(fp string) (*Job, bool) {
	return c.jobs.get(fp)
}

// List returns a status snapshot of every active job.
func (c *Coordinator) List() map[string]Status {
	jobs := c.jobs.list()
	result := make(map[string]Status, len(jobs))
	for fp, j := range jobs {
		result[fp] = j.Status()
	}
	return result
}

// Collect writes artifact id of every known fingerprint to w.
func (c *Coordinator) Collect(ctx context.Context, w io.Writer, id string) (int, error) {
	return c.outputs.Collect(ctx, w, id)
}

// Close aborts every active job and waits for their pipelines to settle.
func (c *Coordinator) Close(ctx context.Context) error {
	logger := slog.With("component", "coordinator")

	c.closeMu.Lock()
	c.closing = true
	c.closeMu.Unlock()

	jobs := c.jobs.list()
	if len(jobs) > 0 {
		logger.Info("Aborting active jobs", "count", len(jobs))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(jobs))
	for _, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.rejectRestart(apperrors.ReasonKilledByAbort)
			if err := j.abort(ctx, apperrors.ReasonKilledByAbort); err != nil {
				errs <- fmt.Errorf("abort %s: %w", j.ID, err)
			}
		}()
	}
	wg.Wait()
	close(errs)

	c.cancel()

	done := make(chan struct{})
	go func() {
		c.pipeline.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var result error
	for err := range errs {
		result = errors.Join(result, err)
	}
	return result
}
