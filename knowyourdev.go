// Package knowyourdev is the public entry point for running the Know Your Dev
// research server.
//
//	app, err := knowyourdev.New(
//	    knowyourdev.WithVersion(version),
//	    knowyourdev.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*, but internal/* never imports the root.
package knowyourdev

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/knowyourdev/knowyourdev/api"
	"github.com/knowyourdev/knowyourdev/internal/agent"
	"github.com/knowyourdev/knowyourdev/internal/config"
	"github.com/knowyourdev/knowyourdev/internal/github"
	"github.com/knowyourdev/knowyourdev/internal/llm"
	"github.com/knowyourdev/knowyourdev/internal/mcp"
	"github.com/knowyourdev/knowyourdev/internal/ratelimit"
	"github.com/knowyourdev/knowyourdev/internal/research"
	"github.com/knowyourdev/knowyourdev/internal/server"
	"github.com/knowyourdev/knowyourdev/internal/storage"
	"github.com/knowyourdev/knowyourdev/internal/storage/lite"
	"github.com/knowyourdev/knowyourdev/internal/telemetry"
	"github.com/knowyourdev/knowyourdev/migrations"
)

// shutdownTimeout bounds the HTTP drain on shutdown.
const shutdownTimeout = 15 * time.Second

// App is the Know Your Dev server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	store        Store
	registry     *agent.Registry
	limiter      ratelimit.Limiter
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
	shutdownOnce sync.Once
	shutdownErr  error
}

// New initialises the server. It opens the store, runs migrations, wires all
// subsystems, and returns a ready-to-run App. It does NOT accept HTTP
// connections; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("knowyourdev starting", "version", version, "port", cfg.Port, "store", cfg.Store)

	ctx := context.Background()
	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	metrics, err := telemetry.NewResearchMetrics(telemetry.Meter("knowyourdev"))
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, err
	}

	store := o.store
	if store == nil {
		store, err = openStore(ctx, cfg, logger)
		if err != nil {
			_ = otelShutdown(ctx)
			return nil, err
		}
	}
	fail := func(err error) (*App, error) {
		_ = store.Close()
		_ = otelShutdown(ctx)
		return nil, err
	}

	gh := o.github
	if gh == nil {
		client, err := github.New(github.Config{
			Token:       cfg.GitHubToken,
			APIURL:      cfg.GitHubAPIURL,
			WebURL:      cfg.GitHubWebURL,
			RPS:         cfg.GitHubRPS,
			Burst:       cfg.GitHubBurst,
			CallTimeout: cfg.CallTimeout,
			Retries:     cfg.CallRetries,
			Logger:      logger,
		})
		if err != nil {
			return fail(fmt.Errorf("github: %w", err))
		}
		gh = client
	}

	model := o.llm
	if model == nil {
		model, err = newModel(ctx, cfg, logger)
		if err != nil {
			return fail(err)
		}
	}

	registry := agent.NewRegistry(&agent.Deps{
		GitHub:  gh,
		LLM:     model,
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		Tracer:  telemetry.Tracer("knowyourdev/agent"),
	}, cfg.AgentIdleTTL)

	var initializer research.Initializer = registry
	if cfg.AgentURL != "" {
		initializer = agent.NewRemoteInitializer(cfg.AgentURL, cfg.AgentSecret, nil)
		logger.Info("research: initializing agents remotely", "agent_url", cfg.AgentURL)
	}
	researchSvc := research.NewService(gh, store, initializer, logger)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnable {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	mcpSrv := mcp.New(researchSvc, registry, logger, version)

	srv := server.New(server.ServerConfig{
		Research:            researchSvc,
		Agents:              registry,
		Store:               store,
		AgentSecret:         cfg.AgentSecret,
		Logger:              logger,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		registry:     registry,
		limiter:      limiter,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := lite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		logger.Info("storage: sqlite", "path", cfg.SQLitePath)
		return s, nil
	default:
		db, err := storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return db, nil
	}
}

// newModel returns the OpenAI-backed client, or a client that fails every
// call when no API key is configured.
func newModel(ctx context.Context, cfg config.Config, logger *slog.Logger) (llm.Client, error) {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("llm: OPENAI_API_KEY not set, titles fall back and reports fail")
		return llm.Unavailable{}, nil
	}
	c, err := llm.NewEinoClient(ctx, llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Models: map[llm.Tier]string{
			llm.TierSmall:     cfg.ModelSmall,
			llm.TierWorkhorse: cfg.ModelWorkhorse,
			llm.TierReasoning: cfg.ModelReasoning,
		},
		CallTimeout: cfg.CallTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	return c, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Registry returns the agent registry backing the server.
func (a *App) Registry() *agent.Registry {
	return a.registry
}

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts
// every subsystem down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})
	return g.Wait()
}

// Shutdown stops every agent, drains HTTP connections and closes the store.
// Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.logger.Info("knowyourdev shutting down")

		// Closing the agents ends every SSE and WebSocket subscription, so
		// live streams return before the HTTP drain waits on them.
		a.registry.Close()

		var errs []error
		httpCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := a.srv.Shutdown(httpCtx); err != nil {
			a.logger.Error("http shutdown error", "error", err)
			errs = append(errs, err)
		}
		cancel()

		if err := a.limiter.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := a.store.Close(); err != nil {
			a.logger.Error("store close error", "error", err)
			errs = append(errs, err)
		}
		if err := a.otelShutdown(ctx); err != nil {
			a.logger.Error("otel shutdown error", "error", err)
			errs = append(errs, err)
		}
		a.shutdownErr = errors.Join(errs...)
		a.logger.Info("knowyourdev stopped")
	})
	return a.shutdownErr
}
