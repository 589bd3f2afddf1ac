// Package llm provides tiered chat completion for the research agent.
//
// Three tiers exist: a small model for cheap labels, a workhorse model for
// summarization, and a reasoning model for the final report.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Tier selects which configured model serves a request.
type Tier string

const (
	TierSmall     Tier = "small"
	TierWorkhorse Tier = "workhorse"
	TierReasoning Tier = "reasoning"
)

// ErrUnavailable is returned when no model is configured for a tier.
var ErrUnavailable = errors.New("llm: model unavailable")

// ErrEmptyResponse is returned when a model answers with no content.
var ErrEmptyResponse = errors.New("llm: empty response")

// Request is a single-turn chat completion.
type Request struct {
	Tier   Tier
	System string
	Prompt string
	// Temperature is omitted when nil. Reasoning models reject it.
	Temperature *float32
	MaxTokens   int
}

// Client generates text for a request.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(t float32) *float32 { return &t }

// Func adapts a function to Client.
type Func func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Unavailable is a Client for deployments without an API key. Every call
// fails with ErrUnavailable so callers fall back or fail visibly.
type Unavailable struct{}

// Generate always fails.
func (Unavailable) Generate(_ context.Context, req Request) (string, error) {
	return "", fmt.Errorf("%w: tier %s has no API key configured", ErrUnavailable, req.Tier)
}
