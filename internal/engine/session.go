package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/palcode-dev/palrun/internal/language"
	"github.com/palcode-dev/palrun/internal/sandbox"
)

// stdinBuffer bounds pending input chunks per session. A sandbox that
// stops reading stdin fills this and then blocks only callers writing to
// this task, never the handling of other tasks.
const stdinBuffer = 64

// Session is the live state of one running sandbox for one task.
// Exactly one session exists per task identifier at any instant; the
// Registry enforces that.
type Session struct {
	ID        string
	TaskID    string
	Language  language.Language
	StartedAt time.Time

	hub     *hub
	stdinCh chan []byte

	// done is closed when the session reaches a terminal state.
	done chan struct{}

	mu            sync.Mutex
	state         State
	killRequested bool
	proc          sandbox.Process

	// seq is touched only by the pump goroutine.
	seq uint64
}

func newSession(taskID string, lang language.Language) *Session {
	return &Session{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Language:  lang,
		StartedAt: time.Now().UTC(),
		hub:       newHub(),
		stdinCh:   make(chan []byte, stdinBuffer),
		done:      make(chan struct{}),
		state:     StateStarting,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// begin attaches the launched process and moves Starting -> Running.
// A kill that raced the launch is honored immediately.
func (s *Session) begin(proc sandbox.Process) {
	s.mu.Lock()
	s.proc = proc
	s.state = StateRunning
	killed := s.killRequested
	s.mu.Unlock()

	if killed {
		proc.Kill()
	}
}

// requestKill flags the session as killed and signals the process if it
// is already running. Idempotent; no effect on terminal sessions.
func (s *Session) requestKill() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.killRequested = true
	proc := s.proc
	s.mu.Unlock()

	if proc != nil {
		proc.Kill()
	}
}

// finish moves the session to its terminal state. Kill wins over the
// natural exit status: a killed process usually reports a non-zero
// exit, which must not read as Failed.
func (s *Session) finish(exitCode int, waitErr error) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	var outcome Outcome
	switch {
	case s.killRequested:
		outcome = OutcomeKilled
		s.state = StateKilled
	case waitErr != nil || exitCode != 0:
		outcome = OutcomeFailed
		s.state = StateFailed
	default:
		outcome = OutcomeCompleted
		s.state = StateCompleted
	}
	return outcome
}

// release wakes everything waiting on the session. Called last in
// teardown, after the registry slot is freed, so a waiter that sees the
// session done can immediately start the task again.
func (s *Session) release() {
	close(s.done)
}

// Info is a read-only snapshot of a session for listings.
type Info struct {
	RunID     string    `json:"runId"`
	TaskID    string    `json:"taskId"`
	Language  string    `json:"language"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"startedAt"`
}

func (s *Session) info() Info {
	return Info{
		RunID:     s.ID,
		TaskID:    s.TaskID,
		Language:  string(s.Language),
		State:     string(s.State()),
		StartedAt: s.StartedAt,
	}
}
