// Package runhandle drives a single container through create, attach,
// start, wait and removal, and lets callers abort it at any point.
package runhandle

import (
	"context"
	"dogi/internal/container"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	// streamDrainTimeout bounds how long output is drained after exit.
	streamDrainTimeout = 5 * time.Second
	removeTimeout      = 30 * time.Second
)

// Handle tracks one container execution.
//
// The container is removed before Done is closed, on success, failure and
// abort alike.
type Handle struct {
	rt     container.Runtime
	name   string
	logger *slog.Logger

	created     chan struct{}
	containerID string
	createErr   error

	finished chan struct{}
	exitCode int
	err      error

	abortMu  sync.Mutex
	abortTry *abortAttempt
}

// abortAttempt is one removal try. A failed attempt is replaced by the next
// Abort call; a successful one is shared by all later calls.
type abortAttempt struct {
	done chan struct{}
	err  error
}

func (a *abortAttempt) failed() bool {
	select {
	case <-a.done:
		return a.err != nil
	default:
		return false
	}
}

// Start launches spec on rt in the background, copying the container's
// output to sink. The returned handle is usable immediately.
func Start(ctx context.Context, rt container.Runtime, spec container.Spec, sink io.Writer) *Handle {
	h := &Handle{
		rt:       rt,
		name:     spec.Name,
		logger:   slog.With("container", spec.Name),
		created:  make(chan struct{}),
		finished: make(chan struct{}),
	}
	go h.run(ctx, spec, sink)
	return h
}

func (h *Handle) run(ctx context.Context, spec container.Spec, sink io.Writer) {
	defer close(h.finished)

	h.removeStale(ctx)

	id, err := h.rt.Create(ctx, spec)
	if err != nil {
		h.createErr = err
		h.err = fmt.Errorf("create container: %w", err)
		close(h.created)
		return
	}
	h.containerID = id
	close(h.created)
	defer h.remove()

	stream, err := h.rt.Attach(ctx, id)
	if err != nil {
		h.exitCode, h.err = -1, fmt.Errorf("attach container: %w", err)
		return
	}
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		if _, err := io.Copy(sink, stream); err != nil {
			h.logger.Debug("Output stream ended", "error", err)
		}
	}()
	defer func() {
		select {
		case <-copied:
		case <-time.After(streamDrainTimeout):
			h.logger.Warn("Output stream did not end after exit")
		}
		stream.Close()
		<-copied
	}()

	if err := h.rt.Start(ctx, id); err != nil {
		h.exitCode, h.err = -1, fmt.Errorf("start container: %w", err)
		stream.Close()
		return
	}

	h.exitCode, h.err = h.rt.Wait(ctx, id)
	if h.err != nil {
		h.err = fmt.Errorf("wait container: %w", h.err)
	}
}

// removeStale clears a leftover container holding the same name.
func (h *Handle) removeStale(ctx context.Context) {
	id, exists, err := h.rt.FindByName(ctx, h.name)
	if err != nil {
		h.logger.Debug("Failed to look up stale container", "error", err)
		return
	}
	if !exists {
		return
	}
	if err := h.rt.Remove(ctx, id); err != nil && !container.IsNotFound(err) {
		h.logger.Warn("Failed to remove stale container", "containerId", id, "error", err)
		return
	}
	h.logger.Info("Removed stale container", "containerId", id)
}

func (h *Handle) remove() {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	if err := h.rt.Remove(ctx, h.containerID); err != nil && !container.IsNotFound(err) {
		h.logger.Warn("Failed to remove container", "containerId", h.containerID, "error", err)
	}
}

// Created blocks until the container exists (or creation failed) and
// returns its ID.
func (h *Handle) Created(ctx context.Context) (string, error) {
	select {
	case <-h.created:
		return h.containerID, h.createErr
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Done is closed once the container has exited and been removed.
func (h *Handle) Done() <-chan struct{} {
	return h.finished
}

// Wait blocks until the execution finishes and returns the exit code.
// An aborted container reports the runtime's kill code.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.finished:
		return h.exitCode, h.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Abort force-removes the container once it has been created. Calls made
// while a removal is in flight share its outcome; a call after a failed
// removal tries again. A container that is already gone counts as aborted.
// The removal proceeds even if ctx ends first.
func (h *Handle) Abort(ctx context.Context) error {
	h.abortMu.Lock()
	a := h.abortTry
	if a == nil || a.failed() {
		a = &abortAttempt{done: make(chan struct{})}
		h.abortTry = a
		go h.abort(a)
	}
	h.abortMu.Unlock()

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) abort(a *abortAttempt) {
	defer close(a.done)

	<-h.created
	if h.createErr != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	if err := h.rt.Remove(ctx, h.containerID); err != nil && !container.IsNotFound(err) {
		a.err = fmt.Errorf("remove container: %w", err)
		return
	}
	h.logger.Info("Container aborted", "containerId", h.containerID)
}
