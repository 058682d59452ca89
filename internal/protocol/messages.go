// Package protocol defines the websocket wire format between clients and
// the gateway. Every message is an Envelope tagged with an event type and
// a task identifier; payloads are decoded once at the gateway boundary.
package protocol

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates envelope payloads.
type EventType string

const (
	// Client -> server.
	EventRun   EventType = "run"
	EventStdin EventType = "stdin"
	EventKill  EventType = "kill"

	// Server -> client.
	EventStarted EventType = "started"
	EventStdout  EventType = "stdout"
	EventEnded   EventType = "ended"
)

// Envelope is the single wire message type. TaskID tags every event so
// one connection can multiplex any number of tasks.
type Envelope struct {
	Event   EventType       `json:"event"`
	TaskID  string          `json:"taskId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an envelope with a marshaled payload. A nil payload
// produces an envelope with no payload field (used by kill).
func NewEnvelope(event EventType, taskID string, payload any) (*Envelope, error) {
	env := &Envelope{Event: event, TaskID: taskID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s payload: %w", event, err)
		}
		env.Payload = data
	}
	return env, nil
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s envelope has no payload", e.Event)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Event, err)
	}
	return nil
}

// RunPayload requests execution of a task.
type RunPayload struct {
	Language string `json:"language"`
}

// StdinPayload forwards input to a running task.
type StdinPayload struct {
	Data string `json:"data"`
}

// StartedPayload acknowledges a run request. OK is false when the
// session could not be created; Error then carries a human-readable
// cause and no session exists.
type StartedPayload struct {
	OK    bool   `json:"ok"`
	RunID string `json:"runId,omitempty"`
	Error string `json:"error,omitempty"`
}

// StdoutPayload is one output frame. Seq increases per session;
// EndOfStream marks the final frame.
type StdoutPayload struct {
	Seq         uint64 `json:"seq"`
	Data        string `json:"data,omitempty"`
	EndOfStream bool   `json:"endOfStream,omitempty"`
}

// EndedPayload reports a session's terminal outcome:
// completed, failed, or killed.
type EndedPayload struct {
	Outcome  string `json:"outcome"`
	ExitCode int    `json:"exitCode"`
	Message  string `json:"message,omitempty"`
}
