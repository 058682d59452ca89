// Package storage records execution run history. Task files and
// classroom metadata live in external services; this store only keeps
// the engine's own audit of runs.
package storage

import (
	"context"
	"time"
)

// Run is one recorded execution of a task.
type Run struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"taskId"`
	Language  string     `json:"language"`
	Outcome   string     `json:"outcome"` // empty while running
	ExitCode  int        `json:"exitCode"`
	Message   string     `json:"message,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// RunListOptions filters and paginates ListRuns.
type RunListOptions struct {
	TaskID string
	Limit  int
	Offset int
}

// Store is the persistence interface for run history.
type Store interface {
	// CreateRun inserts a new run. The ID field must be set by the caller.
	CreateRun(ctx context.Context, run *Run) error

	// FinishRun records a run's terminal outcome.
	FinishRun(ctx context.Context, id, outcome string, exitCode int, message string, endedAt time.Time) error

	// ListRuns returns runs ordered by started_at descending.
	ListRuns(ctx context.Context, opts RunListOptions) ([]Run, error)

	// Close releases resources.
	Close() error
}
