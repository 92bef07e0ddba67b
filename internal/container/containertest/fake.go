// Package containertest provides an in-memory container.Runtime for tests.
package containertest

import (
	"context"
	"dogi/internal/container"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// PrintEnvCommand makes a fake container write its environment as a JSON
// object into every mounted host path before exiting.
const PrintEnvCommand = "print-env"

// Runtime is a scripted container.Runtime. Containers exit as soon as they
// are started unless holding is enabled, in which case they run until
// Finish or Remove is called.
type Runtime struct {
	// ExitCode decides the exit code of a started container. Defaults to 0.
	ExitCode func(spec container.Spec) int
	// Output is written to the container's attach stream on start.
	Output func(spec container.Spec) string
	// BuildOutput is written to the build stream. BuildErr fails every build.
	BuildOutput string
	BuildErr    error
	// BuildGate, when set, blocks builds until closed or the context ends.
	BuildGate chan struct{}
	// RemoveGate, when set, blocks removals until closed or the context ends.
	RemoveGate chan struct{}
	// RemoveErr, when it returns an error for id, fails that removal and
	// leaves the container in place.
	RemoveErr func(id string) error

	mu          sync.Mutex
	nextID      int
	hold        bool
	containers  map[string]*fakeContainer
	names       map[string]string
	builds      []string
	created     []container.Spec
	ids         []string
	removed     map[string]int // by name
	removedIDs  map[string]int
	removeCalls int
}

type fakeContainer struct {
	id      string
	spec    container.Spec
	started bool
	hold    bool
	exited  chan struct{}
	code    int
	stream  *io.PipeReader
	writer  *io.PipeWriter
}

// New creates an empty fake runtime.
func New() *Runtime {
	return &Runtime{
		containers: make(map[string]*fakeContainer),
		names:      make(map[string]string),
		removed:    make(map[string]int),
		removedIDs: make(map[string]int),
	}
}

// Hold makes containers started from now on keep running.
func (r *Runtime) Hold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hold = true
}

// Release stops holding newly started containers.
func (r *Runtime) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hold = false
}

func (r *Runtime) BuildImage(ctx context.Context, contextDir, tag, dockerfile string, out io.Writer) error {
	if r.BuildGate != nil {
		select {
		case <-r.BuildGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	r.builds = append(r.builds, tag)
	r.mu.Unlock()

	if r.BuildOutput != "" {
		_, _ = io.WriteString(out, r.BuildOutput)
	}
	return r.BuildErr
}

func (r *Runtime) Create(ctx context.Context, spec container.Spec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[spec.Name]; exists {
		return "", fmt.Errorf("conflict: container name %q already in use", spec.Name)
	}

	r.nextID++
	id := fmt.Sprintf("fake-%04d", r.nextID)
	pr, pw := io.Pipe()
	r.containers[id] = &fakeContainer{
		id:     id,
		spec:   spec,
		exited: make(chan struct{}),
		stream: pr,
		writer: pw,
	}
	r.names[spec.Name] = id
	r.created = append(r.created, spec)
	r.ids = append(r.ids, id)
	return id, nil
}

func (r *Runtime) Attach(ctx context.Context, id string) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.containers[id]
	if !ok {
		return nil, notFound(id)
	}
	return c.stream, nil
}

func (r *Runtime) Start(ctx context.Context, id string) error {
	r.mu.Lock()
	c, ok := r.containers[id]
	if !ok {
		r.mu.Unlock()
		return notFound(id)
	}
	c.started = true
	c.hold = r.hold
	r.mu.Unlock()

	if len(c.spec.Cmd) > 0 && c.spec.Cmd[0] == PrintEnvCommand {
		if err := printEnv(c.spec); err != nil {
			return err
		}
	}

	go func() {
		if r.Output != nil {
			_, _ = io.WriteString(c.writer, r.Output(c.spec))
		}
		if !c.hold {
			code := 0
			if r.ExitCode != nil {
				code = r.ExitCode(c.spec)
			}
			r.exit(c, code)
		}
	}()
	return nil
}

func (r *Runtime) Wait(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	c, ok := r.containers[id]
	r.mu.Unlock()
	if !ok {
		return -1, notFound(id)
	}

	select {
	case <-c.exited:
		return c.code, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Remove kills and deletes a container. Removing a missing container
// reports not found.
func (r *Runtime) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	r.removeCalls++
	r.mu.Unlock()

	if r.RemoveErr != nil {
		if err := r.RemoveErr(id); err != nil {
			return err
		}
	}

	if r.RemoveGate != nil {
		select {
		case <-r.RemoveGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	c, ok := r.containers[id]
	if !ok {
		r.mu.Unlock()
		return notFound(id)
	}
	delete(r.containers, id)
	delete(r.names, c.spec.Name)
	r.removed[c.spec.Name]++
	r.removedIDs[id]++
	r.mu.Unlock()

	r.exit(c, 137)
	return nil
}

func (r *Runtime) FindByName(ctx context.Context, name string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.names[name]
	return id, ok, nil
}

func (r *Runtime) Ping(ctx context.Context) error { return nil }

// Finish makes the running container with the given name exit with code.
func (r *Runtime) Finish(name string, code int) bool {
	r.mu.Lock()
	id, ok := r.names[name]
	var c *fakeContainer
	if ok {
		c = r.containers[id]
	}
	r.mu.Unlock()
	if c == nil {
		return false
	}
	r.exit(c, code)
	return true
}

// Running reports whether a started, not yet exited container has the name.
func (r *Runtime) Running(name string) bool {
	r.mu.Lock()
	id, ok := r.names[name]
	var c *fakeContainer
	if ok {
		c = r.containers[id]
	}
	r.mu.Unlock()
	if c == nil || !c.started {
		return false
	}
	select {
	case <-c.exited:
		return false
	default:
		return true
	}
}

// Live returns the number of containers that exist and were not removed.
func (r *Runtime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.containers)
}

// Removed returns how many times a container with the name was removed.
func (r *Runtime) Removed(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removed[name]
}

// RemovedID returns how many times the container with the ID was removed.
func (r *Runtime) RemovedID(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removedIDs[id]
}

// RemoveCalls returns how many removals were requested, including ones
// still blocked or for missing containers.
func (r *Runtime) RemoveCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeCalls
}

// ContainerIDs returns the IDs of all created containers in creation order.
func (r *Runtime) ContainerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

// Created returns the specs of all created containers in creation order.
func (r *Runtime) Created() []container.Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]container.Spec(nil), r.created...)
}

// Builds returns the tags of all completed builds.
func (r *Runtime) Builds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.builds...)
}

func (r *Runtime) exit(c *fakeContainer, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-c.exited:
		return
	default:
	}
	c.code = code
	close(c.exited)
	c.writer.Close()
}

func printEnv(spec container.Spec) error {
	env := make(map[string]string, len(spec.Env))
	for _, kv := range spec.Env {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		paths = append(paths, m.Host)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", container.ErrNotFound, id)
}

var _ container.Runtime = (*Runtime)(nil)
