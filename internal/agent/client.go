package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/knowyourdev/knowyourdev/internal/model"
)

// SecretHeader carries the shared secret on agent-direct requests.
const SecretHeader = "X-Agent-Secret"

// RemoteInitializer starts research on an agent exposed by another process
// through its agent-direct endpoint.
type RemoteInitializer struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewRemoteInitializer returns an initializer posting to baseURL/agents/{id}.
// A nil client uses a client with a 30 second timeout.
func NewRemoteInitializer(baseURL, secret string, client *http.Client) *RemoteInitializer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteInitializer{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client:  client,
	}
}

// Initialize sends an initialize message and returns the state the agent
// reported.
func (c *RemoteInitializer) Initialize(ctx context.Context, id, prompt, githubUsername string) (model.AgentState, error) {
	return c.send(ctx, id, model.AgentMessage{
		Action:         model.ActionInitialize,
		Prompt:         prompt,
		GitHubUsername: githubUsername,
	})
}

// Cancel sends a cancel message.
func (c *RemoteInitializer) Cancel(ctx context.Context, id string) (model.AgentState, error) {
	return c.send(ctx, id, model.AgentMessage{Action: model.ActionCancel})
}

func (c *RemoteInitializer) send(ctx context.Context, id string, msg model.AgentMessage) (model.AgentState, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return model.AgentState{}, fmt.Errorf("agent: encode message: %w", err)
	}
	endpoint := c.baseURL + "/agents/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return model.AgentState{}, fmt.Errorf("agent: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return model.AgentState{}, fmt.Errorf("agent: %s %s: %w", msg.Action, id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return model.AgentState{}, fmt.Errorf("agent: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr model.APIError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return model.AgentState{}, fmt.Errorf("agent: %s %s: status %d: %s", msg.Action, id, resp.StatusCode, apiErr.Error)
		}
		return model.AgentState{}, fmt.Errorf("agent: %s %s: status %d", msg.Action, id, resp.StatusCode)
	}

	var envelope struct {
		Data model.AgentState `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return model.AgentState{}, fmt.Errorf("agent: decode state: %w", err)
	}
	return envelope.Data, nil
}
