// Package ctxutil provides shared context key accessors.
//
// server assigns request ids in its middleware and mounts the MCP server, so
// mcp cannot import server to read them. Both import ctxutil instead.
package ctxutil

import "context"

type contextKey string

const keyRequestID contextKey = "request_id"

// WithRequestID returns a new context carrying the given request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request id from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
