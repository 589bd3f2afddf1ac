package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/knowyourdev/knowyourdev/internal/agent"
	"github.com/knowyourdev/knowyourdev/internal/ctxutil"
	"github.com/knowyourdev/knowyourdev/internal/github"
	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/research"
)

func (s *Server) registerTools() {
	// kyd_start_research: create a research record and start its agent.
	s.mcpServer.AddTool(
		mcplib.NewTool("kyd_start_research",
			mcplib.WithDescription(`Start researching a GitHub user.

The profile is fetched, a research record is stored, and a research agent
begins gathering pinned repositories, stars, watched repositories, gists and
languages before writing a report.

WHAT YOU GET BACK:
- username: the normalized GitHub login
- researchId: pass this to kyd_get_research_state to follow progress`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("username",
				mcplib.Description("GitHub username to research, for example 'octocat'"),
				mcplib.Required(),
			),
			mcplib.WithString("prompt",
				mcplib.Description("Optional extra instructions for the report, for example 'focus on Go experience'"),
			),
		),
		s.handleStartResearch,
	)

	// kyd_get_research_state: read the agent state of a research.
	s.mcpServer.AddTool(
		mcplib.NewTool("kyd_get_research_state",
			mcplib.WithDescription(`Get the current state of a research agent.

status is one of inactive, running or complete. While running, log and
findings grow as steps finish. Once complete, report holds the final
markdown report.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("research_id",
				mcplib.Description("The researchId returned by kyd_start_research"),
				mcplib.Required(),
			),
		),
		s.handleGetResearchState,
	)

	// kyd_cancel_research: stop a running research.
	s.mcpServer.AddTool(
		mcplib.NewTool("kyd_cancel_research",
			mcplib.WithDescription(`Cancel a running research. The agent returns to inactive.
Cancelling a research that is not running has no effect.`),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("research_id",
				mcplib.Description("The researchId returned by kyd_start_research"),
				mcplib.Required(),
			),
		),
		s.handleCancelResearch,
	)
}

func (s *Server) handleStartResearch(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	username := request.GetString("username", "")
	if username == "" {
		return errorResult("username is required"), nil
	}

	resp, err := s.research.Start(ctx, model.StartResearchRequest{
		Username: username,
		Prompt:   request.GetString("prompt", ""),
	})
	if err != nil {
		return s.serviceError(ctx, "start research", err), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleGetResearchState(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, errResult := researchID(request)
	if errResult != nil {
		return errResult, nil
	}

	state, err := s.agents.Snapshot(ctx, id)
	if err != nil {
		return s.serviceError(ctx, "get research state", err), nil
	}
	return jsonResult(state)
}

func (s *Server) handleCancelResearch(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, errResult := researchID(request)
	if errResult != nil {
		return errResult, nil
	}

	// Only cancel research that exists; Get alone would create a fresh actor.
	if _, err := s.agents.Snapshot(ctx, id); err != nil {
		return s.serviceError(ctx, "cancel research", err), nil
	}
	a, err := s.agents.Get(ctx, id)
	if err != nil {
		return s.serviceError(ctx, "cancel research", err), nil
	}
	state, err := a.Cancel(ctx)
	if err != nil {
		return s.serviceError(ctx, "cancel research", err), nil
	}
	return jsonResult(state)
}

func researchID(request mcplib.CallToolRequest) (string, *mcplib.CallToolResult) {
	id := request.GetString("research_id", "")
	if id == "" {
		return "", errorResult("research_id is required")
	}
	if !model.IsValidURLID(id) {
		return "", errorResult(fmt.Sprintf("research %q not found", id))
	}
	return id, nil
}

// serviceError turns a service failure into a tool error. Callers see the
// reason for expected failures; anything else is logged and reported generically.
func (s *Server) serviceError(ctx context.Context, op string, err error) *mcplib.CallToolResult {
	var verr *research.ValidationError
	switch {
	case errors.As(err, &verr):
		return errorResult(verr.Message)
	case errors.Is(err, github.ErrNotAUser):
		return errorResult(model.MessageNotAUser)
	case errors.Is(err, github.ErrUserNotFound):
		return errorResult(model.MessageUserNotFound)
	case errors.Is(err, github.ErrRateLimited):
		return errorResult(model.MessageRateLimited)
	case errors.Is(err, agent.ErrUnknownAgent):
		return errorResult(model.MessageResearchMissing)
	default:
		s.logger.Error("mcp: "+op, "error", err, "request_id", ctxutil.RequestIDFromContext(ctx))
		return errorResult(fmt.Sprintf("%s failed", op))
	}
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
