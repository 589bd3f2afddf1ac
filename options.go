package knowyourdev

import (
	"log/slog"

	"github.com/knowyourdev/knowyourdev/internal/agent"
	"github.com/knowyourdev/knowyourdev/internal/llm"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all overrides after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port        int
	databaseURL string
	logger      *slog.Logger
	version     string
	store       Store
	github      agent.GitHub
	llm         llm.Client
}

// WithPort overrides the TCP port from config (KYD_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithStore replaces the configured store. The App closes it on shutdown.
func WithStore(s Store) Option {
	return func(o *resolvedOptions) { o.store = s }
}

// WithGitHub replaces the GitHub client built from GITHUB_* settings.
func WithGitHub(gh agent.GitHub) Option {
	return func(o *resolvedOptions) { o.github = gh }
}

// WithLLM replaces the OpenAI-backed model client.
func WithLLM(c llm.Client) Option {
	return func(o *resolvedOptions) { o.llm = c }
}
