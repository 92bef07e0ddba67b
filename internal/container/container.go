// Package container defines the container runtime service the job pipeline
// drives: image builds and the create/attach/start/wait/remove lifecycle.
package container

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is wrapped by runtimes when the addressed container does not exist.
var ErrNotFound = errors.New("no such container")

// Mount binds a host path into a container.
type Mount struct {
	Host      string `json:"host"`      // Path as seen by the docker host
	Container string `json:"container"` // Path inside the container
}

// Spec describes a container to create.
type Spec struct {
	Name   string
	Image  string
	Cmd    []string // Empty keeps the image's default command
	Env    []string // KEY=value pairs
	Mounts []Mount
	Labels map[string]string
}

// Runtime is the container runtime service.
//
// Implementations must wrap ErrNotFound (or an equivalent recognised by
// IsNotFound) when Remove, Start, Wait or Attach address a missing container,
// so that cleanup paths can tell "already gone" from a real failure.
type Runtime interface {
	// BuildImage builds contextDir into an image tagged tag, streaming
	// human-readable build output to out.
	BuildImage(ctx context.Context, contextDir, tag, dockerfile string, out io.Writer) error

	// Create creates (but does not start) a container and returns its ID.
	Create(ctx context.Context, spec Spec) (string, error)

	// Attach returns the combined stdout/stderr stream of a container.
	// The stream ends when the container stops.
	Attach(ctx context.Context, id string) (io.ReadCloser, error)

	Start(ctx context.Context, id string) error

	// Wait blocks until the container stops and returns its exit code.
	Wait(ctx context.Context, id string) (int, error)

	// Remove force-removes a container, killing it if running.
	Remove(ctx context.Context, id string) error

	// FindByName looks up a container by name.
	FindByName(ctx context.Context, name string) (string, bool, error)

	// Ping checks that the runtime is reachable.
	Ping(ctx context.Context) error
}

// IsNotFound reports whether err means the container does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
