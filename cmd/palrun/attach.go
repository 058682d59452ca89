package main

import (
	"fmt"
	"io"
	"net/url"

	"github.com/chzyer/readline"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/palcode-dev/palrun/internal/protocol"
)

var (
	addrFlag     string
	languageFlag string
	tokenFlag    string
)

var attachCmd = &cobra.Command{
	Use:   "attach <taskID>",
	Short: "Run a task and interact with it from the terminal",
	Long: `Connect to a PalRun server, run a task, and wire the terminal to it:
lines you type are sent to the program's stdin, its output is printed
as it happens. Ctrl+C sends a kill.

If the task is already running, attach joins as an extra viewer.

Examples:
  palrun attach abc123 --language python
  palrun attach abc123 --language bash --addr localhost:9090`,
	Args: cobra.ExactArgs(1),
	RunE: runAttach,
}

func init() {
	attachCmd.Flags().StringVar(&addrFlag, "addr", "localhost:8080", "Server address")
	attachCmd.Flags().StringVar(&languageFlag, "language", "python", "Task language (python, nodejs, bash)")
	attachCmd.Flags().StringVar(&tokenFlag, "token", "", "Gateway token, if the server requires one")
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	taskID := args[0]

	u := url.URL{Scheme: "ws", Host: addrFlag, Path: "/ws"}
	if tokenFlag != "" {
		q := u.Query()
		q.Set("token", tokenFlag)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", u.Host, err)
	}
	defer conn.Close()

	if err := sendEvent(conn, protocol.EventRun, taskID, protocol.RunPayload{Language: languageFlag}); err != nil {
		return err
	}

	rl, err := readline.New("")
	if err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}
	defer rl.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		readOutput(conn)
	}()

	// Unblock Readline when the run ends.
	go func() {
		<-done
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		switch err {
		case nil:
			if sendErr := sendEvent(conn, protocol.EventStdin, taskID, protocol.StdinPayload{Data: line + "\n"}); sendErr != nil {
				return sendErr
			}
		case readline.ErrInterrupt:
			sendEvent(conn, protocol.EventKill, taskID, nil)
		case io.EOF:
			<-done
			return nil
		default:
			return err
		}
	}
}

// readOutput prints server events until the run ends or the connection
// drops.
func readOutput(conn *websocket.Conn) {
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		switch env.Event {
		case protocol.EventStarted:
			var p protocol.StartedPayload
			if env.Decode(&p) == nil && !p.OK {
				fmt.Printf("run failed: %s\n", p.Error)
				return
			}
		case protocol.EventStdout:
			var p protocol.StdoutPayload
			if env.Decode(&p) == nil && p.Data != "" {
				fmt.Print(p.Data)
			}
		case protocol.EventEnded:
			var p protocol.EndedPayload
			if env.Decode(&p) == nil {
				fmt.Printf("\n[%s, exit code %d]\n", p.Outcome, p.ExitCode)
			}
			return
		}
	}
}

func sendEvent(conn *websocket.Conn, event protocol.EventType, taskID string, payload any) error {
	env, err := protocol.NewEnvelope(event, taskID, payload)
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("sending %s: %w", event, err)
	}
	return nil
}
