package server

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/palcode-dev/palrun/internal/config"
	"github.com/palcode-dev/palrun/internal/engine"
	"github.com/palcode-dev/palrun/internal/language"
	"github.com/palcode-dev/palrun/internal/protocol"
	"github.com/palcode-dev/palrun/internal/sandbox"
	"github.com/palcode-dev/palrun/internal/storage/sqlite"
	"github.com/palcode-dev/palrun/internal/workspace"
)

const wsTimeout = 10 * time.Second

// newTestServer spins up a gateway over the local sandbox backend with a
// single bash task.
func newTestServer(t *testing.T, taskID, script string, cfg *config.Config) (*httptest.Server, *Server) {
	t.Helper()

	root := t.TempDir()
	taskDir := filepath.Join(root, taskID)
	if err := os.Mkdir(taskDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(taskDir, "main.sh"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	resolver, err := workspace.NewResolver(root)
	if err != nil {
		t.Fatal(err)
	}
	languages := language.NewRegistry(config.LanguageVersions{
		Python: "3.9.1", NodeJS: "14.15.1", Bash: "1.0.0",
	})

	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	orch := engine.New(languages, resolver, sandbox.NewLocalRunner(), engine.Options{Store: store})

	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.Storage.Root = root

	srv := New(cfg, orch, store, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv
}

func dialWS(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, event protocol.EventType, taskID string, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(event, taskID, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatal(err)
	}
}

func readWS(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(wsTimeout))
	var env protocol.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("reading envelope: %v", err)
	}
	return env
}

func expectStarted(t *testing.T, conn *websocket.Conn, taskID string) protocol.StartedPayload {
	t.Helper()
	env := readWS(t, conn)
	if env.Event != protocol.EventStarted || env.TaskID != taskID {
		t.Fatalf("got %s for %s, want started for %s", env.Event, env.TaskID, taskID)
	}
	var p protocol.StartedPayload
	if err := env.Decode(&p); err != nil {
		t.Fatal(err)
	}
	return p
}

// collectRun reads stdout frames until the ended event, checking frame
// ordering along the way.
func collectRun(t *testing.T, conn *websocket.Conn, taskID string) (string, protocol.EndedPayload) {
	t.Helper()

	var out strings.Builder
	var lastSeq uint64
	for {
		env := readWS(t, conn)
		if env.TaskID != taskID {
			t.Fatalf("event for unexpected task %s", env.TaskID)
		}
		switch env.Event {
		case protocol.EventStdout:
			var p protocol.StdoutPayload
			if err := env.Decode(&p); err != nil {
				t.Fatal(err)
			}
			if p.Seq <= lastSeq {
				t.Fatalf("sequence went from %d to %d", lastSeq, p.Seq)
			}
			lastSeq = p.Seq
			out.WriteString(p.Data)
		case protocol.EventEnded:
			var p protocol.EndedPayload
			if err := env.Decode(&p); err != nil {
				t.Fatal(err)
			}
			return out.String(), p
		default:
			t.Fatalf("unexpected event %s", env.Event)
		}
	}
}

func TestGatewayRunScenario(t *testing.T) {
	ts, _ := newTestServer(t, "abc123", "read line\necho \"got $line\"\n", nil)
	conn := dialWS(t, ts, "")

	sendWS(t, conn, protocol.EventRun, "abc123", protocol.RunPayload{Language: "bash"})

	started := expectStarted(t, conn, "abc123")
	if !started.OK {
		t.Fatalf("started not ok: %s", started.Error)
	}
	if started.RunID == "" {
		t.Error("started should carry a run id")
	}

	sendWS(t, conn, protocol.EventStdin, "abc123", protocol.StdinPayload{Data: "print(1+1)\n"})

	out, ended := collectRun(t, conn, "abc123")
	if !strings.Contains(out, "got print(1+1)") {
		t.Errorf("output = %q", out)
	}
	if ended.Outcome != "completed" || ended.ExitCode != 0 {
		t.Errorf("ended = %+v, want completed/0", ended)
	}
}

func TestGatewayInvalidLanguage(t *testing.T) {
	ts, srv := newTestServer(t, "abc123", "echo hi\n", nil)
	conn := dialWS(t, ts, "")

	sendWS(t, conn, protocol.EventRun, "abc123", protocol.RunPayload{Language: "ruby"})

	started := expectStarted(t, conn, "abc123")
	if started.OK {
		t.Fatal("run with unsupported language must not start")
	}
	if started.Error != "invalid language" {
		t.Errorf("error = %q, want invalid language", started.Error)
	}
	if n := len(srv.orch.Sessions()); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
}

func TestGatewayJoinExisting(t *testing.T) {
	ts, _ := newTestServer(t, "abc123", "read line\necho shared\n", nil)

	connA := dialWS(t, ts, "")
	sendWS(t, connA, protocol.EventRun, "abc123", protocol.RunPayload{Language: "bash"})
	if started := expectStarted(t, connA, "abc123"); !started.OK {
		t.Fatalf("started not ok: %s", started.Error)
	}

	// A second run for the same task joins as a viewer instead of
	// failing the connection.
	connB := dialWS(t, ts, "")
	sendWS(t, connB, protocol.EventRun, "abc123", protocol.RunPayload{Language: "bash"})
	if started := expectStarted(t, connB, "abc123"); !started.OK {
		t.Fatalf("join not ok: %s", started.Error)
	}

	sendWS(t, connB, protocol.EventStdin, "abc123", protocol.StdinPayload{Data: "\n"})

	outA, endedA := collectRun(t, connA, "abc123")
	outB, endedB := collectRun(t, connB, "abc123")

	for name, out := range map[string]string{"A": outA, "B": outB} {
		if !strings.Contains(out, "shared") {
			t.Errorf("viewer %s output = %q, want it to contain shared", name, out)
		}
	}
	if endedA.Outcome != "completed" || endedB.Outcome != "completed" {
		t.Errorf("outcomes = %s/%s, want completed", endedA.Outcome, endedB.Outcome)
	}
}

func TestGatewayDisconnectDoesNotKill(t *testing.T) {
	ts, srv := newTestServer(t, "abc123", "read line\necho survived\n", nil)

	connA := dialWS(t, ts, "")
	sendWS(t, connA, protocol.EventRun, "abc123", protocol.RunPayload{Language: "bash"})
	if started := expectStarted(t, connA, "abc123"); !started.OK {
		t.Fatalf("started not ok: %s", started.Error)
	}
	connA.Close()

	// The session must still be alive for a later subscriber.
	deadline := time.Now().Add(wsTimeout)
	for len(srv.orch.Sessions()) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("session vanished after client disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	connB := dialWS(t, ts, "")
	sendWS(t, connB, protocol.EventRun, "abc123", protocol.RunPayload{Language: "bash"})
	if started := expectStarted(t, connB, "abc123"); !started.OK {
		t.Fatalf("join not ok: %s", started.Error)
	}
	sendWS(t, connB, protocol.EventStdin, "abc123", protocol.StdinPayload{Data: "\n"})

	out, ended := collectRun(t, connB, "abc123")
	if !strings.Contains(out, "survived") {
		t.Errorf("output = %q, want it to contain survived", out)
	}
	if ended.Outcome != "completed" {
		t.Errorf("outcome = %s, want completed", ended.Outcome)
	}
}

func TestGatewayKill(t *testing.T) {
	ts, _ := newTestServer(t, "abc123", "read line\necho never\n", nil)
	conn := dialWS(t, ts, "")

	sendWS(t, conn, protocol.EventRun, "abc123", protocol.RunPayload{Language: "bash"})
	if started := expectStarted(t, conn, "abc123"); !started.OK {
		t.Fatalf("started not ok: %s", started.Error)
	}

	sendWS(t, conn, protocol.EventKill, "abc123", nil)

	out, ended := collectRun(t, conn, "abc123")
	if ended.Outcome != "killed" {
		t.Errorf("outcome = %s, want killed", ended.Outcome)
	}
	if strings.Contains(out, "never") {
		t.Errorf("output = %q after kill", out)
	}

	// Kill for a task that is no longer running is silently accepted.
	sendWS(t, conn, protocol.EventKill, "abc123", nil)
	sendWS(t, conn, protocol.EventStdin, "abc123", protocol.StdinPayload{Data: "x\n"})
}

func TestGatewayAuthToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.Token = "s3cret"
	ts, _ := newTestServer(t, "abc123", "echo hi\n", cfg)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if _, _, err := websocket.DefaultDialer.Dial(u, nil); err == nil {
		t.Fatal("dial without token should fail")
	}

	conn := dialWS(t, ts, "?token=s3cret")
	sendWS(t, conn, protocol.EventRun, "abc123", protocol.RunPayload{Language: "bash"})
	if started := expectStarted(t, conn, "abc123"); !started.OK {
		t.Fatalf("started not ok: %s", started.Error)
	}
	collectRun(t, conn, "abc123")
}
