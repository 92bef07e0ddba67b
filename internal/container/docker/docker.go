// Package docker implements container.Runtime using the Docker API.
// Images are built and jobs run directly on the host Docker daemon.
package docker

import (
	"context"
	"dogi/internal/container"
	"fmt"
	"io"
	"log/slog"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
)

// Labels applied to every container the service creates.
const (
	LabelManagedBy   = "managed-by"
	LabelFingerprint = "dogi.fingerprint"
	managedByValue   = "dogi"
)

// Runtime implements container.Runtime using Docker.
type Runtime struct {
	client      *client.Client
	extraHosts  []string
	networkMode string
	pullParent  bool
}

// NewRuntime creates a Docker runtime from the environment (DOCKER_HOST etc.).
func NewRuntime(cfg Config) (*Runtime, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Runtime{
		client:      dockerClient,
		extraHosts:  cfg.ExtraHosts,
		networkMode: cfg.NetworkMode,
		pullParent:  cfg.PullParent,
	}, nil
}

// BuildImage sends contextDir as a tar build context and streams the
// daemon's progress messages to out. A build step failure is returned as error.
func (r *Runtime) BuildImage(ctx context.Context, contextDir, tag, dockerfile string, out io.Writer) error {
	buildContext := newBuildContext(contextDir)
	defer buildContext.Close()

	resp, err := r.client.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  dockerfile,
		Remove:      true,
		ForceRemove: true,
		PullParent:  r.pullParent,
		Labels:      map[string]string{LabelManagedBy: managedByValue},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return jsonmessage.DisplayJSONMessagesStream(resp.Body, out, 0, false, nil)
}

// Create creates a job container with its output mounts bound in.
func (r *Runtime) Create(ctx context.Context, spec container.Spec) (string, error) {
	labels := map[string]string{
		LabelManagedBy:   managedByValue,
		LabelFingerprint: spec.Name,
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: m.Host,
			Target: m.Container,
		})
	}

	containerConfig := &dockercontainer.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		Env:          spec.Env,
		Labels:       labels,
		AttachStdout: true,
		AttachStderr: true,
	}

	hostConfig := &dockercontainer.HostConfig{
		Mounts:      mounts,
		ExtraHosts:  r.extraHosts,
		NetworkMode: dockercontainer.NetworkMode(r.networkMode),
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", wrapNotFound(err, spec.Name)
	}
	for _, w := range resp.Warnings {
		slog.Debug("Container create warning", "name", spec.Name, "warning", w)
	}

	return resp.ID, nil
}

// Attach returns the demultiplexed stdout/stderr stream of a container.
func (r *Runtime) Attach(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := r.client.ContainerAttach(ctx, id, dockercontainer.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, wrapNotFound(err, id)
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, resp.Reader)
		pw.CloseWithError(err)
	}()

	return &attachStream{PipeReader: pr, conn: resp}, nil
}

// Start starts a created container.
func (r *Runtime) Start(ctx context.Context, id string) error {
	if err := r.client.ContainerStart(ctx, id, dockercontainer.StartOptions{}); err != nil {
		return wrapNotFound(err, id)
	}
	return nil
}

// Wait blocks until the container is no longer running.
func (r *Runtime) Wait(ctx context.Context, id string) (int, error) {
	statusCh, errCh := r.client.ContainerWait(ctx, id, dockercontainer.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-errCh:
		return -1, wrapNotFound(err, id)
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

// Remove force-removes a container.
func (r *Runtime) Remove(ctx context.Context, id string) error {
	err := r.client.ContainerRemove(ctx, id, dockercontainer.RemoveOptions{Force: true})
	if err != nil {
		return wrapNotFound(err, id)
	}
	return nil
}

// FindByName returns the ID of the container with the given name.
func (r *Runtime) FindByName(ctx context.Context, name string) (string, bool, error) {
	inspect, err := r.client.ContainerInspect(ctx, name)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return inspect.ID, true, nil
}

// Ping checks if the Docker daemon is reachable and responsive.
func (r *Runtime) Ping(ctx context.Context) error {
	_, err := r.client.Ping(ctx)
	return err
}

// Prune removes containers left behind by a previous process. Jobs do not
// survive a restart of the service, so any managed container is an orphan.
func (r *Runtime) Prune(ctx context.Context) (int, error) {
	logger := slog.With("component", "prune")

	summaries, err := r.client.ContainerList(ctx, dockercontainer.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManagedBy+"="+managedByValue)),
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, s := range summaries {
		if err := r.Remove(ctx, s.ID); err != nil && !container.IsNotFound(err) {
			logger.Warn("Failed to remove orphaned container", "containerId", s.ID, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("Removed orphaned containers", "count", removed)
	}
	return removed, nil
}

// Close releases the Docker client.
func (r *Runtime) Close() error {
	return r.client.Close()
}

type attachStream struct {
	*io.PipeReader
	conn types.HijackedResponse
}

func (s *attachStream) Close() error {
	s.conn.Close()
	return s.PipeReader.Close()
}

func wrapNotFound(err error, ref string) error {
	if cerrdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %s: %v", container.ErrNotFound, ref, err)
	}
	return err
}

// Verify Runtime implements container.Runtime
var _ container.Runtime = (*Runtime)(nil)
