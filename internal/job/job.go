package job

import (
	"context"
	"dogi/internal/apperrors"
	"dogi/internal/callback"
	"dogi/internal/output"
	"dogi/internal/runhandle"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one build-run-callback pipeline for a fingerprint.
//
// prepared closes once the job's artifacts exist or their allocation
// failed. done closes exactly once, after the pipeline settled, its
// container is gone and the job has left the registry. err is readable
// after done.
type Job struct {
	ID         string
	CallerID   string
	Generation string
	StartedAt  time.Time
	Env        map[string]string

	logger *slog.Logger

	prepared       chan struct{}
	runHandleReady chan struct{}
	handle         *runhandle.Handle

	done chan struct{}
	err  error

	mu             sync.Mutex
	outputs        *output.Outputs
	pendingRestart *restartToken
	destroying     bool
	abortReason    string
	abortTry       *abortAttempt
	callbackResult *callback.Result
	errors         []ErrorEntry
	finishedAt     time.Time
	retired        bool
}

func newJob(fp string, req *Request) *Job {
	generation := uuid.NewString()
	return &Job{
		ID:             fp,
		CallerID:       req.CallerID,
		Generation:     generation,
		StartedAt:      time.Now(),
		Env:            maps.Clone(req.Env),
		logger:         slog.With("fingerprint", fp, "generation", generation),
		prepared:       make(chan struct{}),
		runHandleReady: make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// newRetiredJob describes what a past generation left on disk.
func newRetiredJob(fp string, outs *output.Outputs) *Job {
	j := &Job{
		ID:             fp,
		logger:         slog.With("fingerprint", fp),
		prepared:       make(chan struct{}),
		runHandleReady: make(chan struct{}),
		done:           make(chan struct{}),
		outputs:        outs,
		retired:        true,
	}
	close(j.prepared)
	close(j.done)
	return j
}

// Done is closed when the job has fully settled.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job settles and returns the pipeline result.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the pipeline result, or nil while the job is running.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Outputs returns the job's artifacts. Nil until they are allocated.
func (j *Job) Outputs() *output.Outputs {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outputs
}

func (j *Job) setOutputs(outs *output.Outputs) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outputs = outs
}

// awaitPrepared blocks until the job's artifacts exist. It returns the
// allocation error if the job failed before getting any.
func (j *Job) awaitPrepared(ctx context.Context) error {
	select {
	case <-j.prepared:
	case <-ctx.Done():
		return ctx.Err()
	}
	if j.Outputs() == nil {
		<-j.done
		return j.err
	}
	return nil
}

func (j *Job) setCallbackResult(r *callback.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.callbackResult = r
}

// Status returns a snapshot of the job.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Status{
		ID:         j.ID,
		CallerID:   j.CallerID,
		Generation: j.Generation,
		Active:     !j.retired && j.finishedAt.IsZero(),
		Env:        j.Env,
		Output:     map[string]string{},
		Callback:   j.callbackResult,
		Errors:     append([]ErrorEntry{}, j.errors...),
	}
	if !j.StartedAt.IsZero() {
		startedAt := j.StartedAt
		s.StartedAt = &startedAt
	}
	if !j.finishedAt.IsZero() {
		finishedAt := j.finishedAt
		s.FinishedAt = &finishedAt
	}
	select {
	case <-j.done:
		s.Finished = true
	default:
	}
	if j.outputs != nil {
		s.Output = maps.Clone(j.outputs.URLs)
	}
	return s
}

// setHandle publishes the run handle to aborters.
func (j *Job) setHandle(h *runhandle.Handle) {
	j.handle = h
	close(j.runHandleReady)
}

// destroyReason reports whether an abort was requested, and why.
func (j *Job) destroyReason() (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.abortReason, j.destroying
}

// settle records the pipeline result and marks the job finished. Only the
// pipeline calls it, once; the caller closes done afterwards.
func (j *Job) settle(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.err = err
	if err != nil {
		j.errors = append(j.errors, newErrorEntry(err))
	}
	j.finishedAt = time.Now()
}

// abortAttempt is one try at stopping a job. done closes when the removal
// finished; err is readable after done.
type abortAttempt struct {
	done chan struct{}
	err  error
}

// abort stops the job and waits for it to settle. Calls made while an
// attempt is in flight share it; after a failed attempt the next call tries
// again. The attempt itself does not depend on ctx, which only bounds this
// caller's wait. reason is what the pipeline reports as its failure.
func (j *Job) abort(ctx context.Context, reason string) error {
	j.mu.Lock()
	a := j.abortTry
	if a == nil || isClosed(a.done) && a.err != nil {
		a = &abortAttempt{done: make(chan struct{})}
		j.abortTry = a
		j.destroying = true
		j.abortReason = reason
		j.logger.Info("Aborting job", "reason", reason)
		go j.destroy(a)
	}
	j.mu.Unlock()

	select {
	case <-a.done:
		if a.err != nil {
			return a.err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return j.waitDone(ctx)
}

// destroy removes the job's container once it exists. On failure the job
// stops counting as destroyed, so the pipeline reports its real outcome
// unless a later attempt succeeds.
func (j *Job) destroy(a *abortAttempt) {
	var err error
	select {
	case <-j.runHandleReady:
		err = j.handle.Abort(context.Background())
	case <-j.done:
	}

	j.mu.Lock()
	if err != nil {
		j.logger.Warn("Abort failed", "error", err)
		j.destroying = false
		j.abortReason = ""
	}
	a.err = err
	close(a.done)
	j.mu.Unlock()
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (j *Job) waitDone(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// installRestart rejects any pending restart and installs a new one.
func (j *Job) installRestart() *restartToken {
	t := newRestartToken()

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.pendingRestart != nil {
		j.pendingRestart.reject(apperrors.Conflict("job", j.ID, apperrors.ReasonKilledByRestart))
	}
	j.pendingRestart = t
	return t
}

// rejectRestart rejects the pending restart, if any.
func (j *Job) rejectRestart(reason string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.pendingRestart != nil {
		j.pendingRestart.reject(apperrors.Conflict("job", j.ID, reason))
		j.pendingRestart = nil
	}
}

// restartToken is a one-shot signal that a restart lost its race. It is
// never resolved, only rejected.
type restartToken struct {
	once     sync.Once
	rejected chan struct{}
	err      error
}

func newRestartToken() *restartToken {
	return &restartToken{rejected: make(chan struct{})}
}

func (t *restartToken) reject(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.rejected)
	})
}

// Rejected returns the rejection error, or nil if still live.
func (t *restartToken) Rejected() error {
	select {
	case <-t.rejected:
		return t.err
	default:
		return nil
	}
}
