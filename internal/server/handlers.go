package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/knowyourdev/knowyourdev/internal/agent"
	"github.com/knowyourdev/knowyourdev/internal/model"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	research            Researcher
	agents              Agents
	store               Pinger
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	allowedOrigins      []string
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Store and OpenAPISpec are optional.
type HandlersDeps struct {
	Research            Researcher
	Agents              Agents
	Store               Pinger
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	AllowedOrigins      []string
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		research:            d.Research,
		agents:              d.Agents,
		store:               d.Store,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		allowedOrigins:      d.AllowedOrigins,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleStartResearch handles POST /research.
func (h *Handlers) HandleStartResearch(w http.ResponseWriter, r *http.Request) {
	var req model.StartResearchRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, err)
		return
	}
	resp, err := h.research.Start(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResearchStarted, resp)
}

// HandleGetResearch handles GET /research/{id}.
func (h *Handlers) HandleGetResearch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !model.IsValidURLID(id) {
		writeError(w, http.StatusNotFound, model.MessageResearchMissing)
		return
	}
	rec, err := h.research.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResearchFetched, rec)
}

// HandleAgentMessage handles POST /agents/{id}: initialize, cancel or
// complete the agent for a research id.
func (h *Handlers) HandleAgentMessage(w http.ResponseWriter, r *http.Request) {
	var msg model.AgentMessage
	if err := decodeJSON(w, r, &msg, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, err)
		return
	}
	if err := model.ValidateStruct(msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, ok := agentID(w, r)
	if !ok {
		return
	}
	a, err := h.agents.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var state model.AgentState
	switch msg.Action {
	case model.ActionInitialize:
		state, err = a.Initialize(r.Context(), msg.Prompt, msg.GitHubUsername)
	case model.ActionCancel:
		state, err = a.Cancel(r.Context())
	case model.ActionComplete:
		state, err = a.RetryReport(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageAgentUpdated, state)
}

// HandleAgentState handles GET /agents/{id}/state.
func (h *Handlers) HandleAgentState(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	state, err := h.agents.Snapshot(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageAgentState, state)
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status        string `json:"status"`
	Store         string `json:"store"`
	StoreKind     string `json:"store_kind,omitempty"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "healthy",
		Store:         "none",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	status := http.StatusOK
	if h.store != nil {
		resp.StoreKind = h.store.Kind()
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			resp.Status, resp.Store = "unhealthy", "disconnected"
			status = http.StatusServiceUnavailable
		} else {
			resp.Store = "connected"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		h.HandleNotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// HandleNotFound answers every unmatched route.
func (h *Handlers) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not Found: "+r.URL.Path)
}

// subscribe resolves the agent for a live channel. The agent is created when
// needed so a client can connect before initialization lands.
func (h *Handlers) subscribe(w http.ResponseWriter, r *http.Request) (<-chan model.AgentState, func(), bool) {
	id, ok := agentID(w, r)
	if !ok {
		return nil, nil, false
	}
	a, err := h.agents.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return nil, nil, false
	}
	ch, unsubscribe := a.Subscribe()
	return ch, unsubscribe, true
}

// agentID returns the research id addressed by the request. Agents exist only
// for public research ids, so anything else is not found.
func agentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !model.IsValidURLID(id) {
		writeError(w, http.StatusNotFound, "Not Found: "+r.URL.Path)
		return "", false
	}
	return id, true
}

var _ Agents = (*agent.Registry)(nil)
