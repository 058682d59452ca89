package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DockerRunner launches tasks in ephemeral Docker containers.
//
// Isolation per container:
//   - all Linux capabilities dropped (--cap-drop=ALL)
//   - privilege escalation blocked (--security-opt=no-new-privileges)
//   - memory hard limit with swap disabled (OOM kill on exceed)
//   - PIDs limit, CPU rate limit
//   - network disabled unless the policy allows it
//   - only the task workspace is mounted; nothing else from the host
//
// The container runs with -i so stdin/stdout stream live through the
// docker client process; killing the session is a `docker kill` plus a
// deferred `docker rm -f` safety net.
type DockerRunner struct {
	policy Policy
}

// NewDockerRunner creates a Docker-backed runner with the given policy.
func NewDockerRunner(policy Policy) *DockerRunner {
	return &DockerRunner{policy: policy.withDefaults()}
}

type dockerProcess struct {
	cmd    *exec.Cmd
	name   string
	stdin  io.WriteCloser
	output io.ReadCloser
}

func (r *DockerRunner) Start(ctx context.Context, spec StartSpec) (Process, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	name := containerName(spec.TaskID)
	args := r.buildArgs(name, spec)
	args = append(args, spec.Command...)

	cmd := exec.CommandContext(ctx, "docker", args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	// One pipe carries stdout and stderr interleaved, the way a terminal
	// sees them. The parent's write end is closed after Start so the read
	// end reaches EOF when the container exits.
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
		forceRemoveContainer(name)
		return nil, fmt.Errorf("starting container: %w", err)
	}
	pw.Close()

	log.Printf("sandbox: container %s started (image=%s task=%s)", name, spec.Image, spec.TaskID)

	return &dockerProcess{
		cmd:    cmd,
		name:   name,
		stdin:  stdin,
		output: pr,
	}, nil
}

func (r *DockerRunner) buildArgs(name string, spec StartSpec) []string {
	args := []string{
		"run", "--rm", "-i",
		"--name", name,

		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",

		"--memory=" + strconv.Itoa(r.policy.MemoryMB) + "m",
		"--memory-swap=" + strconv.Itoa(r.policy.MemoryMB) + "m",
		"--cpus=" + strconv.FormatFloat(r.policy.CPUCores, 'f', 2, 64),
		"--pids-limit=" + strconv.Itoa(r.policy.PIDsLimit),

		"-v", spec.WorkspaceDir + ":/workspace",
		"-w", "/workspace",

		"--env", "HOME=/workspace",
		"--env", "TERM=dumb",
		"--env", "PYTHONUNBUFFERED=1",
	}

	if r.policy.Network {
		args = append(args, "--network=bridge")
	} else {
		args = append(args, "--network=none")
	}

	for k, v := range spec.Env {
		args = append(args, "--env", k+"="+v)
	}

	args = append(args, spec.Image)
	return args
}

func (p *dockerProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *dockerProcess) Output() io.ReadCloser { return p.output }

func (p *dockerProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	forceRemoveContainer(p.name)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("waiting for container: %w", err)
	}
	return 0, nil
}

// Kill stops the container. Best-effort and idempotent: the container may
// already have exited, or never have been created.
func (p *dockerProcess) Kill() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "docker", "kill", p.name).CombinedOutput()
	if err != nil && !bytes.Contains(out, []byte("No such container")) {
		// Fall back to killing the docker client; the daemon reaps the
		// container via --rm once the attached client is gone.
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
	}
	return nil
}

// forceRemoveContainer removes a container by name in case --rm did not
// fire (OOM kill, daemon restart, cancel race). Best-effort.
func forceRemoveContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "docker", "rm", "-f", name).CombinedOutput()
	if err != nil && !bytes.Contains(out, []byte("No such container")) {
		log.Printf("sandbox: docker rm -f %s failed: %v (%s)", name, err, strings.TrimSpace(string(out)))
	}
}

func containerName(taskID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, taskID)
	if len(safe) > 32 {
		safe = safe[:32]
	}
	return "palrun-" + safe + "-" + uuid.NewString()[:8]
}
