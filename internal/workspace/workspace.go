// Package workspace resolves task identifiers to their source directories
// under the configured storage root.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrWorkspaceNotFound is returned when a task has no source directory.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// overrideFile is an optional per-task sidecar overriding run settings.
const overrideFile = ".palrun.yml"

// Workspace is a resolved task source directory.
type Workspace struct {
	TaskID string
	Path   string

	// EntryFile overrides the language default when set by the task's
	// .palrun.yml. Empty = use the language default.
	EntryFile string
}

type overrides struct {
	EntryFile string `yaml:"entry_file"`
}

// Resolver maps task identifiers to directories under a single root.
type Resolver struct {
	root string
}

// NewResolver creates a resolver rooted at root. Root must exist; a
// missing root is a deployment error, caught at startup.
func NewResolver(root string) (*Resolver, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("storage root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", root)
	}
	return &Resolver{root: root}, nil
}

// Root returns the storage root path.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the workspace for a task, or ErrWorkspaceNotFound.
// Task identifiers that would escape the root are rejected the same way —
// a traversal attempt looks identical to a missing task from the outside.
func (r *Resolver) Resolve(taskID string) (*Workspace, error) {
	if taskID == "" || strings.ContainsAny(taskID, `/\`) || strings.Contains(taskID, "..") {
		return nil, fmt.Errorf("%w: %q", ErrWorkspaceNotFound, taskID)
	}

	path := filepath.Join(r.root, taskID)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrWorkspaceNotFound, taskID)
	}

	ws := &Workspace{TaskID: taskID, Path: path}

	data, err := os.ReadFile(filepath.Join(path, overrideFile))
	if err == nil {
		var o overrides
		if err := yaml.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("parsing %s for task %s: %w", overrideFile, taskID, err)
		}
		ws.EntryFile = o.EntryFile
	}

	return ws, nil
}
