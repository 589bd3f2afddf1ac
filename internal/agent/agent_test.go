package agent_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/knowyourdev/knowyourdev/internal/agent"
	"github.com/knowyourdev/knowyourdev/internal/github"
	"github.com/knowyourdev/knowyourdev/internal/llm"
	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitTimeout = 5 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ptr[T any](v T) *T { return &v }

type fakeGitHub struct {
	user    model.GitHubUser
	userErr error
	pinned  []model.PinnedRepo
	starred []model.Repo
	watched []model.Repo
	gists   []model.Gist
	pageErr map[string]error

	userCalls atomic.Int32
	pageCalls atomic.Int32
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		user: model.GitHubUser{
			Login:       "octocat",
			NodeID:      "MDQ6VXNlcjU4MzIzMQ==",
			Name:        ptr("The Octocat"),
			Company:     ptr("@github"),
			PublicRepos: 8,
			Followers:   100,
			Following:   9,
			Type:        model.UserTypeUser,
			HTMLURL:     "https://github.com/octocat",
		},
		pinned: []model.PinnedRepo{
			{Author: "octocat", Name: "Spoon-Knife", Language: "HTML", Stars: 12000, Forks: 140000, URL: "https://github.com/octocat/Spoon-Knife"},
			{Author: "octocat", Name: "linguist", Language: "Ruby", Stars: 200, Forks: 300, URL: "https://github.com/octocat/linguist"},
		},
		starred: []model.Repo{
			{Owner: "golang", Name: "go", FullName: "golang/go", Language: "Go", Stars: 120000},
			{Owner: "rust-lang", Name: "rust", FullName: "rust-lang/rust", Language: "Rust", Stars: 95000},
			{Owner: "x", Name: "tiny", FullName: "x/tiny", Language: "Go", Stars: 3},
		},
		watched: []model.Repo{{Owner: "octocat", Name: "hello-world", FullName: "octocat/hello-world", Stars: 2}},
		gists:   []model.Gist{{ID: "1", Description: "notes", HTMLURL: "https://gist.github.com/1", Files: []string{"notes.md"}}},
	}
}

func (f *fakeGitHub) FetchUser(_ context.Context, _ string) (model.GitHubUser, error) {
	f.userCalls.Add(1)
	return f.user, f.userErr
}

func (f *fakeGitHub) FetchPinnedRepos(context.Context, string) ([]model.PinnedRepo, error) {
	return f.pinned, nil
}

func (f *fakeGitHub) FetchStarredRepos(context.Context, string) ([]model.Repo, error) {
	return f.starred, nil
}

func (f *fakeGitHub) FetchWatchedRepos(_ context.Context, _ string, _ int) ([]model.Repo, error) {
	return f.watched, nil
}

func (f *fakeGitHub) FetchGists(_ context.Context, _ string, _ int) ([]model.Gist, error) {
	return f.gists, nil
}

func (f *fakeGitHub) FetchRepoPage(_ context.Context, url string) (model.RepoPage, error) {
	f.pageCalls.Add(1)
	if err := f.pageErr[url]; err != nil {
		return model.RepoPage{}, err
	}
	return model.RepoPage{URL: url, Title: "repo", Readme: "A repository."}, nil
}

// fakeLLM answers per tier and counts calls.
type fakeLLM struct {
	mu        sync.Mutex
	reportErr error
	calls     map[llm.Tier]int
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[llm.Tier]int)
	}
	f.calls[req.Tier]++
	switch req.Tier {
	case llm.TierSmall:
		return `"Evaluating Octocat As A Hire"`, nil
	case llm.TierWorkhorse:
		return "A sample project.", nil
	default:
		if f.reportErr != nil {
			return "", f.reportErr
		}
		return "# Report\n\nOctocat is great.", nil
	}
}

func (f *fakeLLM) setReportErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportErr = err
}

func (f *fakeLLM) count(tier llm.Tier) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tier]
}

type memStore struct {
	mu     sync.Mutex
	states map[string]model.AgentState
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]model.AgentState)}
}

func (s *memStore) SaveAgentState(_ context.Context, id string, st model.AgentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = st
	return nil
}

func (s *memStore) GetAgentState(_ context.Context, id string) (model.AgentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return model.AgentState{}, storage.ErrNotFound
	}
	return st, nil
}

func newAgent(t *testing.T, deps *agent.Deps) *agent.Agent {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = testLogger()
	}
	a := agent.New("r1", model.Inactive(), deps)
	t.Cleanup(a.Close)
	return a
}

// waitFor reads ch until pred holds and returns every state received.
func waitFor(t *testing.T, ch <-chan model.AgentState, pred func(model.AgentState) bool) []model.AgentState {
	t.Helper()
	var seen []model.AgentState
	timeout := time.After(waitTimeout)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed after %d states", len(seen))
			}
			seen = append(seen, s)
			if pred(s) {
				return seen
			}
		case <-timeout:
			t.Fatalf("timed out after %d states; last: %+v", len(seen), last(seen))
		}
	}
}

func last(states []model.AgentState) model.AgentState {
	if len(states) == 0 {
		return model.AgentState{}
	}
	return states[len(states)-1]
}

func isComplete(s model.AgentState) bool { return s.Status == model.StatusComplete }

// blockingStep parks the workflow until its context is cancelled.
func blockingStep() agent.Step {
	return agent.Step{Name: "block", Run: func(ctx context.Context, _ *agent.Run) error {
		<-ctx.Done()
		return ctx.Err()
	}}
}

func TestInitializePublishesRunningState(t *testing.T) {
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Steps: []agent.Step{blockingStep()}})

	st, err := a.Initialize(context.Background(), "eval as a hire", "octocat")
	require.NoError(t, err)

	assert.Equal(t, model.StatusRunning, st.Status)
	assert.Equal(t, "octocat", st.GitHubUsername)
	assert.Equal(t, "eval as a hire", st.Prompt)
	assert.Equal(t, "Evaluating Octocat As A Hire", st.Title)
	assert.Contains(t, st.Log, "Research initialized for octocat")
	assert.Contains(t, st.Findings, "octocat")
	assert.Nil(t, st.Report)
	assert.False(t, st.InitiatedAt.IsZero())
	assert.Equal(t, st, a.State())
}

func TestInitializeNormalizesUsername(t *testing.T) {
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Steps: []agent.Step{blockingStep()}})

	st, err := a.Initialize(context.Background(), "", "  OctoCat ")
	require.NoError(t, err)
	assert.Equal(t, "octocat", st.GitHubUsername)

	_, err = a.Initialize(context.Background(), "", "-bad-")
	assert.ErrorIs(t, err, agent.ErrInvalidInput)
}

func TestTitleFallsBackOnModelFailure(t *testing.T) {
	a := newAgent(t, &agent.Deps{LLM: llm.Unavailable{}, Steps: []agent.Step{blockingStep()}})

	st, err := a.Initialize(context.Background(), "p", "octocat")
	require.NoError(t, err)
	assert.Equal(t, "Research Agent #r1", st.Title)
}

func TestResearchRunsToCompletion(t *testing.T) {
	gh := newFakeGitHub()
	lm := &fakeLLM{}
	a := newAgent(t, &agent.Deps{GitHub: gh, LLM: lm})

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()

	_, err := a.Initialize(context.Background(), "eval as a hire", "octocat")
	require.NoError(t, err)
	states := waitFor(t, ch, isComplete)

	final := last(states)
	require.NotNil(t, final.Report)
	assert.Equal(t, "# Report\n\nOctocat is great.", *final.Report)
	assert.Contains(t, final.Findings, "Number of followers: 100")
	assert.Contains(t, final.Findings, "Number of public repositories: 8")
	assert.Contains(t, final.Findings, "octocat/Spoon-Knife")
	assert.Contains(t, final.Findings, "A sample project.")
	assert.Contains(t, final.Findings, "golang/go")
	assert.Contains(t, final.Findings, "Language breakdown")
	assert.Contains(t, final.Log, "Generating final report")

	// Pinned repos are summarized one at a time.
	assert.Equal(t, int32(2), gh.pageCalls.Load())
	assert.Equal(t, 2, lm.count(llm.TierWorkhorse))
	assert.Equal(t, 1, lm.count(llm.TierReasoning))

	// The first state is the inactive snapshot sent on subscribe.
	require.Equal(t, model.StatusInactive, states[0].Status)
	run := states[1:]
	for i := 1; i < len(run); i++ {
		prev, cur := run[i-1], run[i]
		assert.True(t, strings.HasPrefix(cur.Log, prev.Log), "log shrank at state %d", i)
		assert.True(t, strings.HasPrefix(cur.Findings, prev.Findings), "findings shrank at state %d", i)
	}
	reports := 0
	for _, s := range run {
		if s.Report != nil {
			reports++
		}
	}
	assert.Equal(t, 1, reports, "report must be set exactly once")
}

func TestResearchWithoutPinnedRepos(t *testing.T) {
	gh := newFakeGitHub()
	gh.pinned = nil
	lm := &fakeLLM{}
	a := newAgent(t, &agent.Deps{GitHub: gh, LLM: lm})

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()
	_, err := a.Initialize(context.Background(), "", "octocat")
	require.NoError(t, err)
	final := last(waitFor(t, ch, isComplete))

	assert.Contains(t, final.Findings, "No pinned repositories were found for octocat.")
	assert.Zero(t, gh.pageCalls.Load())
	assert.Zero(t, lm.count(llm.TierWorkhorse))
}

func TestPinnedSummaryFailureDegrades(t *testing.T) {
	gh := newFakeGitHub()
	gh.pageErr = map[string]error{"https://github.com/octocat/linguist": github.ErrNotFound}
	a := newAgent(t, &agent.Deps{GitHub: gh, LLM: &fakeLLM{}})

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()
	_, err := a.Initialize(context.Background(), "", "octocat")
	require.NoError(t, err)
	final := last(waitFor(t, ch, isComplete))

	assert.Contains(t, final.Log, "Could not summarize octocat/linguist")
	assert.Contains(t, final.Findings, "octocat/linguist")
}

func TestReportFailureLeavesAgentRunning(t *testing.T) {
	lm := &fakeLLM{}
	lm.setReportErr(errors.New("model overloaded"))
	a := newAgent(t, &agent.Deps{GitHub: newFakeGitHub(), LLM: lm})

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()
	_, err := a.Initialize(context.Background(), "", "octocat")
	require.NoError(t, err)

	final := last(waitFor(t, ch, func(s model.AgentState) bool {
		return strings.Contains(s.Log, "Error generating report")
	}))
	assert.Equal(t, model.StatusRunning, final.Status)
	assert.Nil(t, final.Report)
	assert.Contains(t, final.Log, "model overloaded")

	// An explicit retry succeeds once the model recovers.
	lm.setReportErr(nil)
	require.Eventually(t, func() bool {
		_, err := a.RetryReport(context.Background())
		return err == nil
	}, waitTimeout, 10*time.Millisecond)
	done := last(waitFor(t, ch, isComplete))
	require.NotNil(t, done.Report)
	assert.Equal(t, 2, lm.count(llm.TierReasoning))
}

func TestCompleteResearchOnParkedAgent(t *testing.T) {
	ctx := context.Background()
	fail := agent.Step{Name: "fail", Run: func(context.Context, *agent.Run) error {
		return errors.New("github down")
	}}
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Steps: []agent.Step{fail}})

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()
	_, err := a.Initialize(ctx, "", "octocat")
	require.NoError(t, err)
	waitFor(t, ch, func(s model.AgentState) bool { return strings.Contains(s.Log, "github down") })

	require.Eventually(t, func() bool {
		return !errors.Is(a.CompleteResearch(ctx), agent.ErrBusy)
	}, waitTimeout, time.Millisecond)
	st := a.State()
	assert.Equal(t, model.StatusComplete, st.Status)
	require.NotNil(t, st.Report)

	// A second report on a complete agent is refused.
	assert.ErrorIs(t, a.CompleteResearch(ctx), agent.ErrNotRunning)
}

func TestStepFailureStopsWorkflow(t *testing.T) {
	gh := newFakeGitHub()
	gh.userErr = github.ErrUserNotFound
	lm := &fakeLLM{}
	a := newAgent(t, &agent.Deps{GitHub: gh, LLM: lm})

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()
	_, err := a.Initialize(context.Background(), "", "octocat")
	require.NoError(t, err)

	final := last(waitFor(t, ch, func(s model.AgentState) bool {
		return strings.Contains(s.Log, "Error during research:")
	}))
	assert.Equal(t, model.StatusRunning, final.Status)
	assert.Contains(t, final.Log, "user not found")
	assert.NotContains(t, final.Findings, "Pinned repositories")
	assert.Zero(t, lm.count(llm.TierReasoning))
}

func TestStepPanicIsRecorded(t *testing.T) {
	boom := agent.Step{Name: "boom", Run: func(context.Context, *agent.Run) error { panic("kaboom") }}
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Steps: []agent.Step{boom}})

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()
	_, err := a.Initialize(context.Background(), "", "octocat")
	require.NoError(t, err)
	final := last(waitFor(t, ch, func(s model.AgentState) bool {
		return strings.Contains(s.Log, "kaboom")
	}))
	assert.Equal(t, model.StatusRunning, final.Status)
}

func TestCancelMidResearch(t *testing.T) {
	release := make(chan struct{})
	lateDone := make(chan struct{})
	steps := []agent.Step{
		{Name: "profile", Run: func(_ context.Context, r *agent.Run) error {
			return r.AppendFindings("## GitHub profile")
		}},
		{Name: "pinned", Run: func(_ context.Context, r *agent.Run) error {
			defer close(lateDone)
			<-release
			_ = r.AppendLog("late log")
			_ = r.AppendFindings("late findings")
			return nil
		}},
	}
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Steps: steps})

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()
	_, err := a.Initialize(context.Background(), "", "octocat")
	require.NoError(t, err)
	waitFor(t, ch, func(s model.AgentState) bool { return strings.Contains(s.Findings, "## GitHub profile") })

	st, err := a.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Inactive(), st)

	seen := waitFor(t, ch, func(s model.AgentState) bool { return s.Status == model.StatusInactive })
	require.GreaterOrEqual(t, len(seen), 2)
	note := seen[len(seen)-2]
	assert.Equal(t, model.StatusRunning, note.Status)
	assert.Contains(t, note.Log, "Research cancelled by user")

	close(release)
	<-lateDone
	assert.Equal(t, model.Inactive(), a.State())
}

func TestCancelWhenInactiveIsNoop(t *testing.T) {
	a := newAgent(t, &agent.Deps{})

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()
	<-ch // initial snapshot

	st, err := a.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Inactive(), st)

	select {
	case s := <-ch:
		t.Fatalf("unexpected publish: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHelpersAreNoopsUnlessRunning(t *testing.T) {
	ctx := context.Background()
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Steps: []agent.Step{}})

	require.NoError(t, a.AppendLog(ctx, "x"))
	require.NoError(t, a.AppendFindings(ctx, "x"))
	require.NoError(t, a.AddResearchStep(ctx, "x", "y"))
	assert.Equal(t, model.Inactive(), a.State())

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()
	_, err := a.Initialize(ctx, "", "octocat")
	require.NoError(t, err)
	complete := last(waitFor(t, ch, isComplete))

	require.NoError(t, a.AppendLog(ctx, "x"))
	require.NoError(t, a.AppendFindings(ctx, "x"))
	require.NoError(t, a.AddResearchStep(ctx, "x", "y"))
	assert.Equal(t, complete, a.State())
}

func TestAddResearchStepWhileRunning(t *testing.T) {
	ctx := context.Background()
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Steps: []agent.Step{blockingStep()}})
	_, err := a.Initialize(ctx, "", "octocat")
	require.NoError(t, err)

	require.NoError(t, a.AddResearchStep(ctx, "Fetch repos", "page 1"))
	require.NoError(t, a.AddResearchStep(ctx, "Summarize", ""))
	log := a.State().Log
	assert.Contains(t, log, "Step: Fetch repos (page 1)")
	assert.Contains(t, log, "Step: Summarize")
}

func TestSupersededRunWritesAreDropped(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	staleDone := make(chan struct{})
	step := agent.Step{Name: "first", Run: func(ctx context.Context, r *agent.Run) error {
		if calls.Add(1) == 1 {
			defer close(staleDone)
			<-release
			return r.AppendFindings("stale")
		}
		<-ctx.Done()
		return ctx.Err()
	}}
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Steps: []agent.Step{step}})

	_, err := a.Initialize(ctx, "", "octocat")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitTimeout, time.Millisecond)
	_, err = a.Cancel(ctx)
	require.NoError(t, err)
	second, err := a.Initialize(ctx, "", "hubot")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, waitTimeout, time.Millisecond)

	close(release)
	<-staleDone

	st := a.State()
	assert.Equal(t, model.StatusRunning, st.Status)
	assert.Equal(t, "hubot", st.GitHubUsername)
	assert.Equal(t, second.Findings, st.Findings)
	assert.NotContains(t, st.Findings, "stale")
}

func TestReinitializeResetsCompletedAgent(t *testing.T) {
	ctx := context.Background()
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Steps: []agent.Step{}})
	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()

	_, err := a.Initialize(ctx, "", "octocat")
	require.NoError(t, err)
	waitFor(t, ch, isComplete)

	st, err := a.Initialize(ctx, "", "hubot")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, st.Status)
	assert.Nil(t, st.Report)
	assert.NotContains(t, st.Findings, "octocat")
}

func TestRetryReportGuards(t *testing.T) {
	ctx := context.Background()
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Steps: []agent.Step{blockingStep()}})

	_, err := a.RetryReport(ctx)
	assert.ErrorIs(t, err, agent.ErrNotRunning)

	_, err = a.Initialize(ctx, "", "octocat")
	require.NoError(t, err)
	_, err = a.RetryReport(ctx)
	assert.ErrorIs(t, err, agent.ErrBusy)
}

func TestSlowSubscriberIsDisconnected(t *testing.T) {
	ctx := context.Background()
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Steps: []agent.Step{blockingStep()}})
	_, err := a.Initialize(ctx, "", "octocat")
	require.NoError(t, err)

	slow, unsubscribe := a.Subscribe()
	defer unsubscribe()
	fast, unsubscribeFast := a.Subscribe()
	defer unsubscribeFast()

	var fastSeen atomic.Int32
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range fast {
			fastSeen.Add(1)
		}
	}()

	for i := range 100 {
		require.NoError(t, a.AppendLog(ctx, fmt.Sprintf("line %d", i)))
		// Keep the fast subscriber caught up so only the slow one overflows.
		want := int32(i + 2)
		require.Eventually(t, func() bool { return fastSeen.Load() >= want }, waitTimeout, time.Millisecond)
	}

	n := 0
	for range slow {
		n++
	}
	assert.LessOrEqual(t, n, 64)
	assert.Equal(t, 1, a.SubscriberCount())

	unsubscribeFast()
	<-drained
	assert.Equal(t, int32(101), fastSeen.Load())
}

func TestCloseStopsWorkflow(t *testing.T) {
	a := agent.New("r2", model.Inactive(), &agent.Deps{Logger: testLogger(), LLM: &fakeLLM{}, Steps: []agent.Step{blockingStep()}})
	ch, _ := a.Subscribe()
	_, err := a.Initialize(context.Background(), "", "octocat")
	require.NoError(t, err)

	a.Close()
	for range ch {
	}
	_, err = a.Initialize(context.Background(), "", "octocat")
	assert.ErrorIs(t, err, agent.ErrClosed)
	_, err = a.Cancel(context.Background())
	assert.ErrorIs(t, err, agent.ErrClosed)
	a.Close()
}

func TestStatesArePersisted(t *testing.T) {
	store := newMemStore()
	a := newAgent(t, &agent.Deps{LLM: &fakeLLM{}, Store: store, Steps: []agent.Step{}})
	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()

	_, err := a.Initialize(context.Background(), "", "octocat")
	require.NoError(t, err)
	final := last(waitFor(t, ch, isComplete))

	// Publication precedes the write, so the store may trail briefly.
	require.Eventually(t, func() bool {
		saved, err := store.GetAgentState(context.Background(), "r1")
		return err == nil && saved.Status == model.StatusComplete
	}, waitTimeout, time.Millisecond)
	saved, err := store.GetAgentState(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, final, saved)
}

func TestLanguageBreakdown(t *testing.T) {
	pinned := []model.PinnedRepo{{Language: "Go"}, {Language: "Ruby"}, {Language: ""}}
	starred := []model.Repo{{Language: "Go"}, {Language: "Ada"}, {Language: "Ruby"}, {Language: "Go"}}

	got := agent.LanguageBreakdown(pinned, starred)
	require.Len(t, got, 3)
	assert.Equal(t, "Go", got[0].Language)
	assert.Equal(t, 3, got[0].Count)
	assert.InDelta(t, 50.0, got[0].Percent, 0.001)
	assert.Equal(t, "Ruby", got[1].Language)
	assert.Equal(t, "Ada", got[2].Language)

	assert.Contains(t, agent.FormatLanguages(got), "- Go: 3 (50.0%)")
	assert.Contains(t, agent.FormatLanguages(nil), "No language data")
}
