package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/palcode-dev/palrun/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndFinishRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &storage.Run{
		ID:       uuid.NewString(),
		TaskID:   "abc123",
		Language: "python",
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns(ctx, storage.RunListOptions{TaskID: "abc123"})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Outcome != "" {
		t.Errorf("outcome = %q, want empty while running", runs[0].Outcome)
	}
	if runs[0].EndedAt != nil {
		t.Error("ended_at should be unset while running")
	}

	ended := time.Now().UTC()
	if err := store.FinishRun(ctx, run.ID, "completed", 0, "", ended); err != nil {
		t.Fatal(err)
	}

	runs, err = store.ListRuns(ctx, storage.RunListOptions{TaskID: "abc123"})
	if err != nil {
		t.Fatal(err)
	}
	if runs[0].Outcome != "completed" {
		t.Errorf("outcome = %q, want completed", runs[0].Outcome)
	}
	if runs[0].EndedAt == nil {
		t.Error("ended_at should be set after finish")
	}
}

func TestFinishRunNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.FinishRun(context.Background(), "nope", "failed", 1, "", time.Now())
	if err == nil {
		t.Error("expected error finishing an unknown run")
	}
}

func TestListRunsFilterAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		run := &storage.Run{
			ID:        uuid.NewString(),
			TaskID:    "abc123",
			Language:  "bash",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}
	other := &storage.Run{ID: uuid.NewString(), TaskID: "other", Language: "bash"}
	if err := store.CreateRun(ctx, other); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns(ctx, storage.RunListOptions{TaskID: "abc123"})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].StartedAt.After(runs[i-1].StartedAt) {
			t.Error("runs not ordered newest first")
		}
	}

	runs, err = store.ListRuns(ctx, storage.RunListOptions{TaskID: "abc123", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("limited len(runs) = %d, want 2", len(runs))
	}
}
