package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	r, err := NewResolver(root)
	if err != nil {
		t.Fatal(err)
	}
	return r, root
}

func TestResolve(t *testing.T) {
	r, root := newTestResolver(t)

	taskDir := filepath.Join(root, "abc123")
	if err := os.Mkdir(taskDir, 0o755); err != nil {
		t.Fatal(err)
	}

	ws, err := r.Resolve("abc123")
	if err != nil {
		t.Fatal(err)
	}
	if ws.Path != taskDir {
		t.Errorf("path = %q, want %q", ws.Path, taskDir)
	}
	if ws.EntryFile != "" {
		t.Errorf("entry override = %q, want empty", ws.EntryFile)
	}
}

func TestResolveNotFound(t *testing.T) {
	r, _ := newTestResolver(t)

	_, err := r.Resolve("missing")
	if !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("err = %v, want ErrWorkspaceNotFound", err)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	r, root := newTestResolver(t)

	// A sibling of the root must not be reachable via the resolver.
	outside := filepath.Join(filepath.Dir(root), "outside")
	if err := os.MkdirAll(outside, 0o755); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"../outside", "..", "a/b", `a\b`, ""} {
		if _, err := r.Resolve(id); !errors.Is(err, ErrWorkspaceNotFound) {
			t.Errorf("Resolve(%q) = %v, want ErrWorkspaceNotFound", id, err)
		}
	}
}

func TestResolveEntryOverride(t *testing.T) {
	r, root := newTestResolver(t)

	taskDir := filepath.Join(root, "task1")
	if err := os.Mkdir(taskDir, 0o755); err != nil {
		t.Fatal(err)
	}
	override := []byte("entry_file: solution.py\n")
	if err := os.WriteFile(filepath.Join(taskDir, ".palrun.yml"), override, 0o644); err != nil {
		t.Fatal(err)
	}

	ws, err := r.Resolve("task1")
	if err != nil {
		t.Fatal(err)
	}
	if ws.EntryFile != "solution.py" {
		t.Errorf("entry override = %q, want solution.py", ws.EntryFile)
	}
}

func TestResolveBadOverride(t *testing.T) {
	r, root := newTestResolver(t)

	taskDir := filepath.Join(root, "task2")
	if err := os.Mkdir(taskDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(taskDir, ".palrun.yml"), []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Resolve("task2"); err == nil {
		t.Error("expected error for malformed override file")
	}
}

func TestNewResolverMissingRoot(t *testing.T) {
	if _, err := NewResolver("/nonexistent/palrun-root"); err == nil {
		t.Error("expected error for missing storage root")
	}
}
