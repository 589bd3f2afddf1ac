package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/knowyourdev/knowyourdev/internal/agent"
	"github.com/knowyourdev/knowyourdev/internal/github"
	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/research"
	"github.com/knowyourdev/knowyourdev/internal/storage"
)

// writeJSON writes a success envelope.
func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// writeError writes an error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Success: false,
		Error:   message,
	})
}

// writeServiceError maps a domain error onto an HTTP status and a client-safe
// message. Unknown errors are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *research.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, github.ErrNotAUser):
		writeError(w, http.StatusBadRequest, model.MessageNotAUser)
	case errors.Is(err, github.ErrUserNotFound):
		writeError(w, http.StatusNotFound, model.MessageUserNotFound)
	case errors.Is(err, github.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, model.MessageRateLimited)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, model.MessageResearchMissing)
	case errors.Is(err, agent.ErrUnknownAgent):
		writeError(w, http.StatusNotFound, "Not Found: "+r.URL.Path)
	case errors.Is(err, agent.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, agent.ErrNotRunning), errors.Is(err, agent.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, agent.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "Service is shutting down")
	default:
		logger.Error("request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, model.MessageInternal)
	}
}

// decodeJSON decodes a size-limited JSON request body into target.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// handleDecodeError writes the response for a decodeJSON failure.
func handleDecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "request body is required")
	default:
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
	}
}
