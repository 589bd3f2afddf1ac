// Package mcp implements the Model Context Protocol server for Know Your Dev.
//
// The MCP server exposes research initiation and agent state through MCP
// tools so MCP-compatible clients can start a research and follow it without
// speaking the HTTP API.
package mcp

import (
	"context"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/knowyourdev/knowyourdev/internal/agent"
	"github.com/knowyourdev/knowyourdev/internal/model"
)

// Researcher starts research tasks.
type Researcher interface {
	Start(ctx context.Context, req model.StartResearchRequest) (model.StartResearchResponse, error)
}

// Agents resolves agent actors by research id.
type Agents interface {
	Get(ctx context.Context, id string) (*agent.Agent, error)
	Snapshot(ctx context.Context, id string) (model.AgentState, error)
}

// Server wraps the MCP server with the research service and agent registry.
type Server struct {
	mcpServer *mcpserver.MCPServer
	research  Researcher
	agents    Agents
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(research Researcher, agents Agents, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		research: research,
		agents:   agents,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"knowyourdev",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(instructions),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

const instructions = `Know Your Dev researches a GitHub user and writes a report about them.

Start with kyd_start_research. It returns a researchId. Poll
kyd_get_research_state with that id until status is "complete"; the report
field then holds the markdown report. kyd_cancel_research stops a research
that is still running.`
