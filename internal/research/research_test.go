package research_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowyourdev/knowyourdev/internal/github"
	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/research"
	"github.com/knowyourdev/knowyourdev/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeGitHub struct {
	users map[string]model.GitHubUser
	err   error
	calls int
}

func (f *fakeGitHub) FetchUser(_ context.Context, username string) (model.GitHubUser, error) {
	f.calls++
	if f.err != nil {
		return model.GitHubUser{}, f.err
	}
	u, ok := f.users[username]
	if !ok {
		return model.GitHubUser{}, github.ErrUserNotFound
	}
	return u, nil
}

type fakeStore struct {
	created []model.Research
	devs    []model.Dev
	err     error
}

func (f *fakeStore) CreateResearch(_ context.Context, dev model.Dev, prompt string) (model.Research, error) {
	if f.err != nil {
		return model.Research{}, f.err
	}
	r := model.Research{
		ID:             uuid.New(),
		URLID:          "R" + strings.Repeat("a", 19),
		Prompt:         prompt,
		DevID:          uuid.New(),
		GitHubUsername: dev.Login,
		CreatedAt:      time.Now(),
	}
	f.devs = append(f.devs, dev)
	f.created = append(f.created, r)
	return r, nil
}

func (f *fakeStore) GetResearch(_ context.Context, urlID string) (model.Research, error) {
	for _, r := range f.created {
		if r.URLID == urlID {
			return r, nil
		}
	}
	return model.Research{}, storage.ErrNotFound
}

type initCall struct{ id, prompt, username string }

type fakeAgents struct {
	calls []initCall
	err   error
}

func (f *fakeAgents) Initialize(_ context.Context, id, prompt, username string) (model.AgentState, error) {
	f.calls = append(f.calls, initCall{id, prompt, username})
	if f.err != nil {
		return model.AgentState{}, f.err
	}
	return model.NewRunning(username, prompt, "t", time.Now(), "l", "f"), nil
}

func octocat() model.GitHubUser {
	return model.GitHubUser{Login: "octocat", NodeID: "MDQ6VXNlcjU4MzIzMQ==", Type: model.UserTypeUser}
}

func newService(gh *fakeGitHub, store *fakeStore, agents *fakeAgents) *research.Service {
	return research.NewService(gh, store, agents, testLogger())
}

func TestStart(t *testing.T) {
	gh := &fakeGitHub{users: map[string]model.GitHubUser{"octocat": octocat()}}
	store := &fakeStore{}
	agents := &fakeAgents{}
	svc := newService(gh, store, agents)

	resp, err := svc.Start(context.Background(), model.StartResearchRequest{Username: " OctoCat ", Prompt: "eval as a hire"})
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	rec := store.created[0]
	assert.Equal(t, model.StartResearchResponse{Username: "octocat", ResearchID: rec.URLID}, resp)
	assert.Equal(t, "eval as a hire", rec.Prompt)
	assert.Equal(t, "MDQ6VXNlcjU4MzIzMQ==", store.devs[0].NodeID)

	require.Len(t, agents.calls, 1)
	call := agents.calls[0]
	assert.Equal(t, rec.URLID, call.id)
	assert.Equal(t, "octocat", call.username)
	assert.True(t, strings.HasPrefix(call.prompt, research.BasePrompt))
	assert.True(t, strings.HasSuffix(call.prompt, "eval as a hire"))
}

func TestStartRejectsInvalidUsernameWithoutSideEffects(t *testing.T) {
	for _, name := range []string{"", "-octocat", "octo--cat", strings.Repeat("a", 40), "octo cat"} {
		gh := &fakeGitHub{}
		store := &fakeStore{}
		agents := &fakeAgents{}
		_, err := newService(gh, store, agents).Start(context.Background(), model.StartResearchRequest{Username: name})
		assert.ErrorIs(t, err, research.ErrValidation, "username %q", name)
		var verr *research.ValidationError
		if assert.ErrorAs(t, err, &verr) {
			assert.Contains(t, verr.Message, "username")
		}
		assert.Zero(t, gh.calls)
		assert.Empty(t, store.created)
		assert.Empty(t, agents.calls)
	}
}

func TestStartRejectsOrganizations(t *testing.T) {
	org := octocat()
	org.Login, org.Type = "github", "Organization"
	gh := &fakeGitHub{users: map[string]model.GitHubUser{"github": org}}
	store := &fakeStore{}
	_, err := newService(gh, store, &fakeAgents{}).Start(context.Background(), model.StartResearchRequest{Username: "github"})
	assert.ErrorIs(t, err, github.ErrNotAUser)
	assert.Empty(t, store.created)
}

func TestStartPropagatesGitHubErrors(t *testing.T) {
	tests := []error{github.ErrUserNotFound, github.ErrRateLimited}
	for _, want := range tests {
		gh := &fakeGitHub{err: want}
		store := &fakeStore{}
		_, err := newService(gh, store, &fakeAgents{}).Start(context.Background(), model.StartResearchRequest{Username: "octocat"})
		assert.ErrorIs(t, err, want)
		assert.Empty(t, store.created)
	}
}

func TestStartReportsAgentFailure(t *testing.T) {
	gh := &fakeGitHub{users: map[string]model.GitHubUser{"octocat": octocat()}}
	agents := &fakeAgents{err: errors.New("agent unreachable")}
	_, err := newService(gh, &fakeStore{}, agents).Start(context.Background(), model.StartResearchRequest{Username: "octocat"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent unreachable")
}

func TestGet(t *testing.T) {
	gh := &fakeGitHub{users: map[string]model.GitHubUser{"octocat": octocat()}}
	store := &fakeStore{}
	svc := newService(gh, store, &fakeAgents{})
	resp, err := svc.Start(context.Background(), model.StartResearchRequest{Username: "octocat"})
	require.NoError(t, err)

	rec, err := svc.Get(context.Background(), resp.ResearchID)
	require.NoError(t, err)
	assert.Equal(t, "octocat", rec.GitHubUsername)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestComposePrompt(t *testing.T) {
	assert.Equal(t, research.BasePrompt, research.ComposePrompt("  "))
	got := research.ComposePrompt("focus on Go")
	assert.True(t, strings.HasPrefix(got, research.BasePrompt))
	assert.Contains(t, got, "Additional instructions from the requester:\nfocus on Go")
}
