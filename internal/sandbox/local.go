package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"syscall"
)

// LocalRunner executes tasks as host processes in their own process
// group. Far weaker isolation than Docker — intended for development
// machines without a container runtime, and for tests. The process still
// gets a sanitized environment and is confined to the workspace as its
// working directory.
type LocalRunner struct{}

// NewLocalRunner creates a process-backed runner.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

type localProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output io.ReadCloser
}

func (r *LocalRunner) Start(ctx context.Context, spec StartSpec) (Process, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkspaceDir
	cmd.Env = buildEnv(spec)

	// Own process group so a kill takes down any children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		stdin.Close()
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("starting process: %w", err)
	}
	pw.Close()

	log.Printf("sandbox: local process %d started (task=%s)", cmd.Process.Pid, spec.TaskID)

	return &localProcess{cmd: cmd, stdin: stdin, output: pr}, nil
}

// buildEnv constructs a minimal environment. The host environment is never
// inherited, so credentials on the server cannot leak into task code.
func buildEnv(spec StartSpec) []string {
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + spec.WorkspaceDir,
		"TMPDIR=" + spec.WorkspaceDir,
		"TERM=dumb",
		"PYTHONUNBUFFERED=1",
	}
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	return env
}

func (p *localProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *localProcess) Output() io.ReadCloser { return p.output }

func (p *localProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("waiting for process: %w", err)
	}
	return 0, nil
}

// Kill terminates the whole process group. Idempotent: the process may
// already have exited.
func (p *localProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	// Negative pid = the entire process group.
	syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
	return nil
}
