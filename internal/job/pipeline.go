package job

import (
	"context"
	"dogi/internal/apperrors"
	"dogi/internal/callback"
	"dogi/internal/container"
	"dogi/internal/output"
	"dogi/internal/runhandle"
	"fmt"
	"sort"
	"time"
)

// Pipeline phases, used to label failures.
const (
	phaseFetch    = "fetch"
	phaseBuild    = "build"
	phaseRun      = "run"
	phaseCallback = "callback"
)

// run executes the pipeline of j and retires it. It is the only place a
// created job settles.
func (c *Coordinator) run(j *Job, req *Request) {
	start := time.Now()

	phase, err := c.execute(c.ctx, j, req)
	if err != nil {
		j.logger.Warn("Job failed", "phase", phase, "error", err)
	} else {
		j.logger.Info("Job completed", "duration", time.Since(start))
	}

	if c.metrics != nil {
		c.metrics.RecordJobCompleted(c.ctx, err == nil, phase, time.Since(start).Seconds())
	}

	c.retire(j, err)
}

func (c *Coordinator) execute(ctx context.Context, j *Job, req *Request) (string, error) {
	outs := j.Outputs()
	logPath := outs.Files[output.LogID]

	if err := c.fetcher.Fetch(ctx, req.Reference, c.outputs.RepoDir(j.ID)); err != nil {
		return phaseFetch, err
	}

	if err := c.build(ctx, j, req); err != nil {
		return phaseBuild, apperrors.Build(err)
	}

	if reason, destroying := j.destroyReason(); destroying {
		return phaseRun, apperrors.Conflict("job", j.ID, reason)
	}

	code, err := c.runContainer(ctx, j, req, outs)
	if reason, destroying := j.destroyReason(); destroying {
		return phaseRun, apperrors.Conflict("job", j.ID, reason)
	}
	if err != nil {
		return phaseRun, apperrors.Internal("container.run", err)
	}
	if code != 0 {
		return phaseRun, apperrors.Run(code)
	}

	if req.CallbackURL == "" {
		return "", nil
	}
	if c.notifier == nil {
		return phaseCallback, apperrors.Internal("callback.notify", fmt.Errorf("no callback dispatcher configured"))
	}

	result, err := c.notifier.Notify(ctx, req.CallbackURL, callback.Notification{
		CallerID: j.CallerID,
		Env:      j.Env,
		Output:   outs.URLs,
	}, logPath)
	if err != nil {
		return phaseCallback, apperrors.Internal("callback.notify", err)
	}
	j.setCallbackResult(result)
	if !result.OK() {
		return phaseCallback, apperrors.Callback(result.Response.Status, result.Body())
	}

	return "", nil
}

// build streams the image build into the log through its own append handle,
// closed before the run phase opens the next one.
func (c *Coordinator) build(ctx context.Context, j *Job, req *Request) error {
	logFile, err := c.outputs.AppendLog(j.ID)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer logFile.Close()

	dockerfile := req.Dockerfile
	if dockerfile == "" {
		dockerfile = c.defaultDockerfile
	}

	return c.runtime.BuildImage(ctx, c.outputs.RepoDir(j.ID), j.ID, dockerfile, logFile)
}

func (c *Coordinator) runContainer(ctx context.Context, j *Job, req *Request, outs *output.Outputs) (int, error) {
	logFile, err := c.outputs.AppendLog(j.ID)
	if err != nil {
		return -1, fmt.Errorf("failed to open log: %w", err)
	}
	defer logFile.Close()

	spec := container.Spec{
		Name:   j.ID,
		Image:  j.ID,
		Cmd:    command(req),
		Env:    envList(j.Env),
		Mounts: outs.Mounts,
		Labels: map[string]string{"dogi.generation": j.Generation},
	}

	h := runhandle.Start(ctx, c.runtime, spec, logFile)
	j.setHandle(h)

	return h.Wait(context.WithoutCancel(ctx))
}

func command(req *Request) []string {
	if req.ShellCommand != "" {
		return []string{"/bin/sh", "-c", req.ShellCommand}
	}
	return req.Command
}

func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}
