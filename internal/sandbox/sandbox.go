// Package sandbox launches isolated processes for task execution.
// Task code never runs directly on the host outside a backend's isolation.
package sandbox

import (
	"context"
	"io"
)

// StartSpec describes one sandbox launch.
type StartSpec struct {
	// TaskID tags the sandbox (container name, logs).
	TaskID string

	// Image is the container image to run (ignored by the local backend).
	Image string

	// WorkspaceDir is the task's source directory on the host. It is the
	// working directory of the sandboxed process and, for container
	// backends, is mounted read/write at /workspace.
	WorkspaceDir string

	// Command is the argv to run, with paths relative to the workspace.
	Command []string

	// Env adds variables on top of the backend's sanitized base set.
	Env map[string]string
}

// Process is a live sandboxed process with attached pipes.
//
// Stdin and Output are open from the moment Start returns. Output carries
// stdout and stderr interleaved and reaches EOF when the process exits.
// Wait must be called exactly once; it reaps the process and releases its
// resources. Kill is safe to call at any time, including after exit.
type Process interface {
	Stdin() io.WriteCloser
	Output() io.ReadCloser
	Wait() (int, error)
	Kill() error
}

// Runner launches sandboxed processes.
type Runner interface {
	Start(ctx context.Context, spec StartSpec) (Process, error)
}
