package server

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/knowyourdev/knowyourdev/internal/model"
)

const (
	sseKeepalive = 15 * time.Second

	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = wsPongWait * 9 / 10
	wsMaxMessage   = 4096
)

// formatSSE formats one Server-Sent Events message.
func formatSSE(eventType string, data []byte) []byte {
	out := make([]byte, 0, len(eventType)+len(data)+16)
	out = append(out, "event: "...)
	out = append(out, eventType...)
	out = append(out, "\ndata: "...)
	out = append(out, data...)
	return append(out, "\n\n"...)
}

// HandleAgentEvents handles GET /agents/{id}/events. It streams the current
// state and then every published state as "state" events.
func (h *Handlers) HandleAgentEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	states, unsubscribe, ok := h.subscribe(w, r)
	if !ok {
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Disable the server's WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case state, ok := <-states:
			if !ok {
				// Disconnected for falling behind, or the agent shut down.
				// The client reconnects and resumes from the current state.
				return
			}
			data, err := json.Marshal(state)
			if err != nil {
				h.logger.Error("sse: encode state", "error", err)
				return
			}
			if _, err := w.Write(formatSSE("state", data)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// wsFrame is one message on the WebSocket channel.
type wsFrame struct {
	Type  string            `json:"type"`
	State *model.AgentState `json:"state,omitempty"`
	Text  string            `json:"text,omitempty"`
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	u := &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096}
	if len(h.allowedOrigins) > 0 {
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin)
		}
	}
	return u
}

// HandleAgentWebSocket handles GET /agents/{id}/ws. States are pushed as
// {"type":"state"} frames. Client text messages are logged and echoed back to
// the same connection as {"type":"message"} frames.
func (h *Handlers) HandleAgentWebSocket(w http.ResponseWriter, r *http.Request) {
	states, unsubscribe, ok := h.subscribe(w, r)
	if !ok {
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("ws: upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	id := r.PathValue("id")
	logger := h.logger.With("research_id", id, "request_id", RequestIDFromContext(r.Context()))

	echoes := make(chan string, 16)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(wsMaxMessage)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			logger.Info("ws: client message", "text", string(msg))
			select {
			case echoes <- string(msg):
			default:
				logger.Warn("ws: dropped echo, writer behind")
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	write := func(f wsFrame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(f)
	}

	for {
		select {
		case <-readDone:
			return
		case state, ok := <-states:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscription ended"))
				return
			}
			if err := write(wsFrame{Type: "state", State: &state}); err != nil {
				return
			}
		case text := <-echoes:
			if err := write(wsFrame{Type: "message", Text: text}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
