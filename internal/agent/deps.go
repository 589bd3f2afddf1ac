package agent

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/knowyourdev/knowyourdev/internal/llm"
	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/telemetry"
)

// GitHub is the data source the research workflow reads from.
type GitHub interface {
	FetchUser(ctx context.Context, username string) (model.GitHubUser, error)
	FetchPinnedRepos(ctx context.Context, username string) ([]model.PinnedRepo, error)
	FetchStarredRepos(ctx context.Context, username string) ([]model.Repo, error)
	FetchWatchedRepos(ctx context.Context, username string, limit int) ([]model.Repo, error)
	FetchGists(ctx context.Context, username string, limit int) ([]model.Gist, error)
	FetchRepoPage(ctx context.Context, url string) (model.RepoPage, error)
}

// SnapshotStore persists the last published state of each agent.
type SnapshotStore interface {
	SaveAgentState(ctx context.Context, researchID string, state model.AgentState) error
	GetAgentState(ctx context.Context, researchID string) (model.AgentState, error)
}

type counter = metric.Int64Counter

// Deps are the collaborators shared by every agent in a registry.
type Deps struct {
	GitHub GitHub
	LLM    llm.Client
	// Store is optional. Without it states live only in memory.
	Store  SnapshotStore
	Logger *slog.Logger
	// Steps defaults to DefaultSteps.
	Steps   []Step
	Metrics *telemetry.ResearchMetrics
	Tracer  trace.Tracer
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Deps) withDefaults() *Deps {
	out := *d
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.LLM == nil {
		out.LLM = llm.Unavailable{}
	}
	if out.Steps == nil {
		out.Steps = DefaultSteps()
	}
	if out.Tracer == nil {
		out.Tracer = noop.NewTracerProvider().Tracer("agent")
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return &out
}

func (d *Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d *Deps) count(ctx context.Context, pick func(*telemetry.ResearchMetrics) counter, attrs ...attribute.KeyValue) {
	if d.Metrics == nil {
		return
	}
	if c := pick(d.Metrics); c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
