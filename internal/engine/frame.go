package engine

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeKilled    Outcome = "killed"
)

// State is a session's position in its lifecycle:
// Starting -> Running -> {Completed, Failed, Killed}.
// Terminal states have no outgoing transitions.
type State string

const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateKilled    State = "killed"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateKilled:
		return true
	}
	return false
}

// Frame is one ordered unit of session output. Frames for a session carry
// strictly increasing sequence numbers; the final frame has EndOfStream
// set and carries the outcome and exit code.
type Frame struct {
	TaskID      string
	Seq         uint64
	Data        []byte
	EndOfStream bool

	// Set only on the end-of-stream frame.
	Outcome  Outcome
	ExitCode int
	Message  string
}
