package code

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// containerWorkdir is where the host workspace is mounted inside the
// container.
const containerWorkdir = "/workspace"

// removeTimeout bounds post-run cleanup calls, whose parent context may
// already have expired.
const removeTimeout = 10 * time.Second

// Container executes code in a one-shot Docker container: the workspace is
// bind-mounted, networking is disabled, memory and CPU are capped, and the
// container is force-removed afterwards.
type Container struct {
	cli *client.Client
	cfg runnerConfig
}

// compile-time check
var _ Runner = (*Container)(nil)

// NewContainer creates a container runner using the Docker daemon from the
// environment (DOCKER_HOST etc.).
func NewContainer(opts ...Option) (*Container, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("code runner: docker client: %w", err)
	}
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Container{cli: cli, cfg: cfg}, nil
}

// Run writes the code and input files into a host workspace, mounts it at
// /workspace, and runs the runtime's default image to completion. Stdout
// becomes Result.Output and stderr Result.Logs, demuxed from the container
// log stream and capped at the configured maximum.
func (r *Container) Run(ctx context.Context, req Request) (Result, error) {
	spec, ok := specFor(req.Runtime)
	if !ok {
		return Result{}, fmt.Errorf("code runner: unknown runtime %q", req.Runtime)
	}

	timeout := r.cfg.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workspace, cleanup, err := prepareWorkspace(r.cfg.workspace, spec.scriptName, req)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()
	hostPath, err := filepath.Abs(workspace)
	if err != nil {
		return Result{}, fmt.Errorf("code runner: resolve workspace: %w", err)
	}

	img := r.cfg.image
	if img == "" {
		img = spec.image
	}
	if err := r.ensureImage(ctx, img); err != nil {
		return Result{}, err
	}

	bin := "python3"
	if req.Runtime == "node" {
		bin = "node"
	}

	created, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:           img,
			Cmd:             []string{bin, spec.scriptName},
			WorkingDir:      containerWorkdir,
			Env:             r.buildEnv(),
			NetworkDisabled: true,
		},
		&container.HostConfig{
			Binds: []string{hostPath + ":" + containerWorkdir},
			Resources: container.Resources{
				Memory:   r.cfg.memory,
				NanoCPUs: r.cfg.nanoCPUs,
			},
		},
		nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("code runner: create container: %w", err)
	}
	id := created.ID
	defer func() {
		rmCtx, rmCancel := context.WithTimeout(context.Background(), removeTimeout)
		defer rmCancel()
		_ = r.cli.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true})
	}()

	if err := r.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("code runner: start container: %w", err)
	}

	exitCode := 0
	timedOut := false
	waitCh, errCh := r.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if ctx.Err() == context.DeadlineExceeded {
			timedOut = true
		} else if err != nil {
			return Result{}, fmt.Errorf("code runner: wait container: %w", err)
		}
	case status := <-waitCh:
		exitCode = int(status.StatusCode)
	}

	result := Result{ExitCode: exitCode}

	// Collect logs on a fresh context; the run deadline may have fired.
	logCtx, logCancel := context.WithTimeout(context.Background(), removeTimeout)
	defer logCancel()
	logs, err := r.cli.ContainerLogs(logCtx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err == nil {
		var stdout, stderr limitedWriter
		stdout.limit = r.cfg.maxOutput
		stderr.limit = r.cfg.maxOutput
		_, _ = stdcopy.StdCopy(&stdout, &stderr, logs)
		logs.Close()
		result.Output = stdout.String()
		result.Logs = stderr.String()
	}

	if timedOut {
		result.Error = fmt.Sprintf("execution timed out after %s", timeout)
		result.ExitCode = -1
	} else if exitCode != 0 {
		// Include stderr in the error so the model can self-correct.
		result.Error = result.Logs
	}
	return result, nil
}

// ensureImage applies the pull policy before container creation.
func (r *Container) ensureImage(ctx context.Context, ref string) error {
	switch r.cfg.pullPolicy {
	case PullNever:
		return nil
	case PullMissing:
		_, err := r.cli.ImageInspect(ctx, ref)
		if err == nil {
			return nil
		}
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("code runner: inspect image: %w", err)
		}
	}
	rc, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("code runner: pull image %q: %w", ref, err)
	}
	defer rc.Close()
	// The pull completes only when the progress stream is drained.
	_, _ = io.Copy(io.Discard, rc)
	return nil
}

// buildEnv converts configured env vars for the container.
func (r *Container) buildEnv() []string {
	env := make([]string, 0, len(r.cfg.env))
	for k, v := range r.cfg.env {
		env = append(env, k+"="+v)
	}
	return env
}
