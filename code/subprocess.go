package code

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Subprocess executes code in a local subprocess. It offers no isolation
// beyond a scratch working directory; use Container when the code is not
// trusted with the host.
type Subprocess struct {
	cfg runnerConfig
}

// compile-time check
var _ Runner = (*Subprocess)(nil)

// NewSubprocess creates a subprocess runner.
func NewSubprocess(opts ...Option) *Subprocess {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Subprocess{cfg: cfg}
}

// Run writes the code and input files into a workspace and executes it with
// the runtime's binary. Stdout becomes Result.Output, stderr Result.Logs,
// both capped at the configured maximum.
func (r *Subprocess) Run(ctx context.Context, req Request) (Result, error) {
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

	bin := r.cfg.pythonBin
	if req.Runtime == "node" {
		bin = r.cfg.nodeBin
	}

	cmd := exec.CommandContext(ctx, bin, spec.scriptName)
	cmd.Dir = workspace
	cmd.Env = r.buildEnv()

	var stdout, stderr limitedWriter
	stdout.limit = r.cfg.maxOutput
	stderr.limit = r.cfg.maxOutput
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	result := Result{
		Output: stdout.String(),
		Logs:   stderr.String(),
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.Error = fmt.Sprintf("execution timed out after %s", timeout)
			result.ExitCode = -1
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			// Include stderr in the error so the model can self-correct.
			result.Error = result.Logs
		} else {
			result.Error = err.Error()
			result.ExitCode = -1
		}
	}
	return result, nil
}

// buildEnv constructs a minimal environment for the subprocess.
func (r *Subprocess) buildEnv() []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
		"LANG=en_US.UTF-8",
	}
	for k, v := range r.cfg.env {
		env = append(env, k+"="+v)
	}
	return env
}

// prepareWorkspace resolves the working directory, writes the script and
// input files, and returns a cleanup that removes per-execution state.
// With a configured persistent workspace only the script is removed
// afterwards; a temp workspace is removed whole.
func prepareWorkspace(configured, scriptName string, req Request) (string, func(), error) {
	workspace := configured
	cleanup := func() {}
	if workspace == "" {
		tmp, err := os.MkdirTemp("", "parley-code-*")
		if err != nil {
			return "", nil, fmt.Errorf("code runner: create workspace: %w", err)
		}
		workspace = tmp
		cleanup = func() { os.RemoveAll(tmp) }
	} else {
		if err := os.MkdirAll(workspace, 0o755); err != nil {
			return "", nil, fmt.Errorf("code runner: create workspace: %w", err)
		}
		script := filepath.Join(workspace, scriptName)
		cleanup = func() { os.Remove(script) }
	}

	if err := os.WriteFile(filepath.Join(workspace, scriptName), []byte(req.Code), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("code runner: write script: %w", err)
	}
	for _, f := range req.Files {
		path, err := workspacePath(workspace, f.Name)
		if err != nil {
			cleanup()
			return "", nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("code runner: write file %q: %w", f.Name, err)
		}
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("code runner: write file %q: %w", f.Name, err)
		}
	}
	return workspace, cleanup, nil
}

// workspacePath resolves a request file name inside the workspace,
// rejecting names that would escape it.
func workspacePath(workspace, name string) (string, error) {
	clean := filepath.Join(workspace, filepath.Clean("/"+name))
	if !strings.HasPrefix(clean, workspace+string(filepath.Separator)) {
		return "", fmt.Errorf("code runner: file name %q escapes the workspace", name)
	}
	return clean, nil
}

// limitedWriter captures up to limit bytes and discards the rest.
type limitedWriter struct {
	buf   strings.Builder
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if w.buf.Len() < w.limit {
		remaining := w.limit - w.buf.Len()
		if len(p) > remaining {
			p = p[:remaining]
		}
		w.buf.Write(p)
	}
	return n, nil
}

func (w *limitedWriter) String() string { return w.buf.String() }
