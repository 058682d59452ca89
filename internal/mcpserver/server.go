// Package mcpserver exposes the execution engine as a Model Context
// Protocol server: a run_task tool that executes a task to completion
// and returns the collected output. Interactive streaming stays on the
// websocket gateway; this is the one-shot surface.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/palcode-dev/palrun/internal/engine"
)

// MCPServer wraps the orchestrator behind MCP tools.
type MCPServer struct {
	orch      *engine.Orchestrator
	mcpServer *server.MCPServer
}

// New creates the MCP server and registers its tools.
func New(orch *engine.Orchestrator) *MCPServer {
	s := &MCPServer{
		orch:      orch,
		mcpServer: server.NewMCPServer("palrun", "PalCode task execution engine"),
	}
	s.registerRunTaskTool()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *MCPServer) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *MCPServer) registerRunTaskTool() {
	tool := mcp.Tool{
		Name:        "run_task",
		Description: "Run a task's code in its sandbox and return the output",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "Task identifier whose workspace to execute",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Task language",
					"enum":        []string{"python", "nodejs", "bash"},
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Input to feed the program (optional)",
				},
			},
			Required: []string{"task_id", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunTask)
}

func (s *MCPServer) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return nil, fmt.Errorf("task_id parameter is required: %w", err)
	}
	lang, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}
	stdin := request.GetString("stdin", "")

	att, err := s.orch.Start(taskID, lang)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer att.Close()

	if stdin != "" {
		if err := s.orch.WriteInput(taskID, []byte(stdin)); err != nil && !engine.IsNotRunning(err) {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	var out strings.Builder
	for {
		select {
		case f, ok := <-att.Frames():
			if !ok {
				return mcp.NewToolResultText(out.String()), nil
			}
			out.Write(f.Data)
			if f.EndOfStream {
				return mcp.NewToolResultText(fmt.Sprintf(
					"outcome: %s (exit code %d)\n\n%s", f.Outcome, f.ExitCode, out.String())), nil
			}
		case <-ctx.Done():
			s.orch.Kill(taskID)
			return mcp.NewToolResultError("execution cancelled: " + ctx.Err().Error()), nil
		}
	}
}
