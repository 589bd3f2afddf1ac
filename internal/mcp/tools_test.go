package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/knowyourdev/knowyourdev/internal/agent"
	"github.com/knowyourdev/knowyourdev/internal/github"
	"github.com/knowyourdev/knowyourdev/internal/llm"
	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/research"
	"github.com/knowyourdev/knowyourdev/internal/storage/lite"
)

const testID = "346789ABCDEFGHJKLMNP"

// fakeResearcher initializes testID on the registry for "octocat" and fails
// the way the research service does for everything else.
type fakeResearcher struct {
	agents *agent.Registry
	last   model.StartResearchRequest
}

func (f *fakeResearcher) Start(ctx context.Context, req model.StartResearchRequest) (model.StartResearchResponse, error) {
	f.last = req
	switch req.Username {
	case "octocat":
		if _, err := f.agents.Initialize(ctx, testID, research.ComposePrompt(req.Prompt), req.Username); err != nil {
			return model.StartResearchResponse{}, err
		}
		return model.StartResearchResponse{Username: "octocat", ResearchID: testID}, nil
	case "github":
		return model.StartResearchResponse{}, errors.Join(errors.New("research: start"), github.ErrNotAUser)
	case "bad name":
		return model.StartResearchResponse{}, &research.ValidationError{Message: "username is invalid"}
	case "boom":
		return model.StartResearchResponse{}, errors.New("database on fire")
	default:
		return model.StartResearchResponse{}, github.ErrUserNotFound
	}
}

func blockingStep() agent.Step {
	return agent.Step{Name: "block", Run: func(ctx context.Context, _ *agent.Run) error {
		<-ctx.Done()
		return ctx.Err()
	}}
}

func newTestServer(t *testing.T) (*Server, *fakeResearcher) {
	t.Helper()
	store, err := lite.Open(context.Background(), lite.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	registry := agent.NewRegistry(&agent.Deps{
		LLM: llm.Func(func(context.Context, llm.Request) (string, error) {
			return "Octocat Research", nil
		}),
		Store:  store,
		Logger: logger,
		Steps:  []agent.Step{blockingStep()},
	}, 0)
	t.Cleanup(registry.Close)

	researcher := &fakeResearcher{agents: registry}
	return New(researcher, registry, logger, "test"), researcher
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestToolsRegistered(t *testing.T) {
	s, _ := newTestServer(t)
	tools := s.MCPServer().ListTools()
	for _, name := range []string{"kyd_start_research", "kyd_get_research_state", "kyd_cancel_research"} {
		assert.Contains(t, tools, name)
	}
}

func TestHandleStartResearch(t *testing.T) {
	s, researcher := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleStartResearch(ctx, toolRequest("kyd_start_research", map[string]any{
		"username": "octocat",
		"prompt":   "focus on Go",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var resp model.StartResearchResponse
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, "octocat", resp.Username)
	assert.Equal(t, testID, resp.ResearchID)
	assert.Equal(t, "focus on Go", researcher.last.Prompt)
}

func TestHandleStartResearchErrors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		username string
		want     string
	}{
		{"", "username is required"},
		{"bad name", "username is invalid"},
		{"github", model.MessageNotAUser},
		{"ghost", model.MessageUserNotFound},
		{"boom", "start research failed"},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			result, err := s.handleStartResearch(context.Background(), toolRequest("kyd_start_research", map[string]any{
				"username": tt.username,
			}))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Equal(t, tt.want, parseToolText(t, result))
		})
	}
}

func TestHandleGetResearchState(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleStartResearch(ctx, toolRequest("kyd_start_research", map[string]any{"username": "octocat"}))
	require.NoError(t, err)

	result, err := s.handleGetResearchState(ctx, toolRequest("kyd_get_research_state", map[string]any{
		"research_id": testID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	state, err := model.ParseAgentState([]byte(parseToolText(t, result)))
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, state.Status)
	assert.Equal(t, "octocat", state.GitHubUsername)
	assert.Equal(t, "Octocat Research", state.Title)
}

func TestHandleGetResearchStateUnknown(t *testing.T) {
	s, _ := newTestServer(t)

	for _, id := range []string{testID, "not-an-id", ""} {
		result, err := s.handleGetResearchState(context.Background(), toolRequest("kyd_get_research_state", map[string]any{
			"research_id": id,
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError, "id %q", id)
	}
}

func TestHandleCancelResearch(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleStartResearch(ctx, toolRequest("kyd_start_research", map[string]any{"username": "octocat"}))
	require.NoError(t, err)

	result, err := s.handleCancelResearch(ctx, toolRequest("kyd_cancel_research", map[string]any{
		"research_id": testID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))
	assert.JSONEq(t, `{"status":"inactive"}`, parseToolText(t, result))

	// Cancelling again is a no-op.
	result, err = s.handleCancelResearch(ctx, toolRequest("kyd_cancel_research", map[string]any{
		"research_id": testID,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"status":"inactive"}`, parseToolText(t, result))
}

func TestHandleCancelResearchUnknownDoesNotCreateAgent(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleCancelResearch(context.Background(), toolRequest("kyd_cancel_research", map[string]any{
		"research_id": testID,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, model.MessageResearchMissing, parseToolText(t, result))
	assert.Equal(t, 0, s.agents.(*agent.Registry).Len())
}
