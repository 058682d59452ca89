package server

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/palcode-dev/palrun/internal/engine"
	"github.com/palcode-dev/palrun/internal/language"
	"github.com/palcode-dev/palrun/internal/protocol"
	"github.com/palcode-dev/palrun/internal/workspace"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the identity layer in front of the engine gates access
	},
}

// client is one websocket connection's state: a write lock (gorilla
// connections allow one concurrent writer) and the connection's
// subscriptions by task.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*engine.Attachment
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()

	c := &client{
		conn: conn,
		subs: make(map[string]*engine.Attachment),
	}
	// Dropping a viewer never kills the session: executions run to
	// completion or explicit kill regardless of who is watching.
	defer c.closeSubscriptions()

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			if !errors.Is(err, websocket.ErrReadLimit) {
				log.Printf("websocket read error: %v", err)
			}
			return
		}

		if env.TaskID == "" {
			continue
		}

		switch env.Event {
		case protocol.EventRun:
			s.handleRun(c, &env)
		case protocol.EventStdin:
			s.handleStdin(c, &env)
		case protocol.EventKill:
			// Idempotent; a kill racing a natural exit is fine.
			s.orch.Kill(env.TaskID)
		default:
			log.Printf("websocket: unknown event %q for task %s", env.Event, env.TaskID)
		}
	}
}

// authorize checks the optional shared gateway token. With no token
// configured the engine trusts the upstream identity layer entirely.
func (s *Server) authorize(r *http.Request) bool {
	token := s.cfg.Auth.Token
	if token == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if got == "" {
		got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return got == token
}

// handleRun starts a session, or joins the existing one when the task is
// already running — a second viewer attaching to an in-progress run is
// the expected path, not an error.
func (s *Server) handleRun(c *client, env *protocol.Envelope) {
	taskID := env.TaskID

	c.mu.Lock()
	_, attached := c.subs[taskID]
	c.mu.Unlock()
	if attached {
		// Already watching this task; nothing to do.
		c.send(protocol.EventStarted, taskID, protocol.StartedPayload{OK: true})
		return
	}

	var p protocol.RunPayload
	if err := env.Decode(&p); err != nil {
		c.send(protocol.EventStarted, taskID, protocol.StartedPayload{OK: false, Error: err.Error()})
		return
	}

	att, err := s.orch.Start(taskID, p.Language)
	if errors.Is(err, engine.ErrAlreadyRunning) {
		att, err = s.orch.Attach(taskID)
		if engine.IsNotRunning(err) {
			// The session ended between the two calls; run it ourselves.
			att, err = s.orch.Start(taskID, p.Language)
		}
	}
	if err != nil {
		c.send(protocol.EventStarted, taskID, protocol.StartedPayload{OK: false, Error: startError(err)})
		return
	}

	c.mu.Lock()
	c.subs[taskID] = att
	c.mu.Unlock()

	c.send(protocol.EventStarted, taskID, protocol.StartedPayload{OK: true, RunID: att.Session.ID})

	go c.pumpFrames(taskID, att)
}

func (s *Server) handleStdin(c *client, env *protocol.Envelope) {
	var p protocol.StdinPayload
	if err := env.Decode(&p); err != nil {
		return
	}
	// NotRunning is silently accepted: input to a finished task had no
	// effect, which is fine.
	if err := s.orch.WriteInput(env.TaskID, []byte(p.Data)); err != nil && !engine.IsNotRunning(err) {
		log.Printf("websocket: stdin for task %s: %v", env.TaskID, err)
	}
}

// pumpFrames forwards a subscription's frames to the connection until
// end-of-stream or detach.
func (c *client) pumpFrames(taskID string, att *engine.Attachment) {
	for f := range att.Frames() {
		c.send(protocol.EventStdout, taskID, protocol.StdoutPayload{
			Seq:         f.Seq,
			Data:        string(f.Data),
			EndOfStream: f.EndOfStream,
		})
		if f.EndOfStream {
			c.send(protocol.EventEnded, taskID, protocol.EndedPayload{
				Outcome:  string(f.Outcome),
				ExitCode: f.ExitCode,
				Message:  f.Message,
			})
		}
	}

	c.mu.Lock()
	if c.subs[taskID] == att {
		delete(c.subs, taskID)
	}
	c.mu.Unlock()
	att.Close()
}

func (c *client) closeSubscriptions() {
	c.mu.Lock()
	atts := make([]*engine.Attachment, 0, len(c.subs))
	for taskID, att := range c.subs {
		atts = append(atts, att)
		delete(c.subs, taskID)
	}
	c.mu.Unlock()

	for _, att := range atts {
		att.Close()
	}
}

func (c *client) send(event protocol.EventType, taskID string, payload any) {
	env, err := protocol.NewEnvelope(event, taskID, payload)
	if err != nil {
		log.Printf("websocket marshal error: %v", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(env); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}

// startError maps engine failures to the short causes clients display.
func startError(err error) string {
	switch {
	case errors.Is(err, language.ErrInvalidLanguage):
		return "invalid language"
	case errors.Is(err, workspace.ErrWorkspaceNotFound):
		return "workspace not found"
	case errors.Is(err, engine.ErrLaunchFailed):
		return "sandbox launch failed"
	default:
		return err.Error()
	}
}
