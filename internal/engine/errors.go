package engine

import "errors"

var (
	// ErrAlreadyRunning means a session already exists for the task.
	// The gateway treats this as a join, not a failure.
	ErrAlreadyRunning = errors.New("task already running")

	// ErrNotRunning means stdin/attach targeted an absent or finished
	// session. Non-fatal: "this had no effect, which is fine."
	ErrNotRunning = errors.New("task not running")

	// ErrLaunchFailed wraps sandbox spawn failures. No session is left
	// registered when Start returns this.
	ErrLaunchFailed = errors.New("sandbox launch failed")
)
