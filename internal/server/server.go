// Package server implements the Know Your Dev HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/knowyourdev/knowyourdev/internal/agent"
	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/ratelimit"
)

// Researcher runs the initiation flow and reads research records.
type Researcher interface {
	Start(ctx context.Context, req model.StartResearchRequest) (model.StartResearchResponse, error)
	Get(ctx context.Context, urlID string) (model.Research, error)
}

// Agents resolves agent actors by research id.
type Agents interface {
	Get(ctx context.Context, id string) (*agent.Agent, error)
	Snapshot(ctx context.Context, id string) (model.AgentState, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
	Kind() string
}

const readHeaderTimeout = 10 * time.Second

// Server is the Know Your Dev HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Limiter, MCPServer and OpenAPISpec are optional.
type ServerConfig struct {
	Research    Researcher
	Agents      Agents
	Store       Pinger
	AgentSecret string
	Logger      *slog.Logger

	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string
	OpenAPISpec         []byte
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := NewHandlers(HandlersDeps{
		Research:            cfg.Research,
		Agents:              cfg.Agents,
		Store:               cfg.Store,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		AllowedOrigins:      cfg.CORSAllowedOrigins,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	mux := http.NewServeMux()
	routes(mux, h, cfg)

	// Outermost first: request id, security headers, CORS, tracing, logging, recovery.
	handler := chain(mux,
		requestIDMiddleware,
		securityHeadersMiddleware,
		func(next http.Handler) http.Handler { return corsMiddleware(cfg.CORSAllowedOrigins, next) },
		tracingMiddleware,
		func(next http.Handler) http.Handler { return loggingMiddleware(cfg.Logger, next) },
		func(next http.Handler) http.Handler { return recoveryMiddleware(cfg.Logger, next) },
	)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
			// Streaming handlers clear this deadline per connection.
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

func routes(mux *http.ServeMux, h *Handlers, cfg ServerConfig) {
	limited := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, cfg.Logger)
	agentOnly := requireAgentSecret(cfg.AgentSecret)

	mux.Handle("POST /research", limited(http.HandlerFunc(h.HandleStartResearch)))
	mux.HandleFunc("GET /research/{id}", h.HandleGetResearch)

	mux.Handle("POST /agents/{id}", agentOnly(http.HandlerFunc(h.HandleAgentMessage)))
	mux.HandleFunc("GET /agents/{id}/state", h.HandleAgentState)
	mux.HandleFunc("GET /agents/{id}/events", h.HandleAgentEvents)
	mux.HandleFunc("GET /agents/{id}/ws", h.HandleAgentWebSocket)

	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("/", h.HandleNotFound)
}

// chain wraps h so that mws[0] runs first.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("server: listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: draining connections")
	return s.httpServer.Shutdown(ctx)
}
