// Package research implements the initiation flow behind POST /research:
// validate the username, resolve the GitHub account, persist the research
// record and arm the agent addressed by its public id.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knowyourdev/knowyourdev/internal/github"
	"github.com/knowyourdev/knowyourdev/internal/model"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("research: validation failed")

// ValidationError is a request error that is the caller's fault. Message is
// safe to return to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "research: " + e.Message }

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// GitHub resolves a username to its profile.
type GitHub interface {
	FetchUser(ctx context.Context, username string) (model.GitHubUser, error)
}

// Store persists research records.
type Store interface {
	CreateResearch(ctx context.Context, dev model.Dev, prompt string) (model.Research, error)
	GetResearch(ctx context.Context, urlID string) (model.Research, error)
}

// Initializer arms the agent for a research id.
type Initializer interface {
	Initialize(ctx context.Context, researchID, prompt, githubUsername string) (model.AgentState, error)
}

// BasePrompt is the system prompt every report starts from.
const BasePrompt = `You are an expert technical recruiter and senior software engineer evaluating a developer from their public GitHub activity.
Using only the research findings provided, write a structured markdown report with these sections:
## Overview
## Technical strengths
## Notable projects
## Languages and ecosystems
## Community involvement
## Conclusion
Cite concrete repositories and numbers from the findings. Say so plainly when the evidence is thin, and do not invent facts.`

// ComposePrompt appends the requester's optional refinement to BasePrompt.
func ComposePrompt(refinement string) string {
	refinement = strings.TrimSpace(refinement)
	if refinement == "" {
		return BasePrompt
	}
	return BasePrompt + "\n\nAdditional instructions from the requester:\n" + refinement
}

// Service runs the initiation flow.
type Service struct {
	github GitHub
	store  Store
	agents Initializer
	logger *slog.Logger
}

// NewService wires the initiation flow.
func NewService(gh GitHub, store Store, agents Initializer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{github: gh, store: store, agents: agents, logger: logger}
}

// Start validates req, records a new research and initializes its agent.
// Validation and GitHub errors are returned before anything is written.
func (s *Service) Start(ctx context.Context, req model.StartResearchRequest) (model.StartResearchResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := model.ValidateStruct(req); err != nil {
		return model.StartResearchResponse{}, &ValidationError{Message: err.Error()}
	}
	username, err := model.NormalizeUsername(req.Username)
	if err != nil {
		return model.StartResearchResponse{}, &ValidationError{Message: err.Error()}
	}

	user, err := s.github.FetchUser(ctx, username)
	if err != nil {
		return model.StartResearchResponse{}, fmt.Errorf("research: fetch user: %w", err)
	}
	if !user.IsUser() {
		return model.StartResearchResponse{}, fmt.Errorf("research: %s is a %s: %w", username, user.Type, github.ErrNotAUser)
	}

	rec, err := s.store.CreateResearch(ctx, model.DevFromUser(user), strings.TrimSpace(req.Prompt))
	if err != nil {
		return model.StartResearchResponse{}, fmt.Errorf("research: create: %w", err)
	}

	// The profile login carries the canonical spelling; the agent normalizes it.
	if _, err := s.agents.Initialize(ctx, rec.URLID, ComposePrompt(req.Prompt), user.Login); err != nil {
		return model.StartResearchResponse{}, fmt.Errorf("research: initialize agent %s: %w", rec.URLID, err)
	}

	s.logger.Info("research: started",
		"research_id", rec.URLID,
		"github_username", username,
		"dev_id", rec.DevID.String(),
	)
	return model.StartResearchResponse{Username: username, ResearchID: rec.URLID}, nil
}

// Get returns the persisted research record for a public id.
func (s *Service) Get(ctx context.Context, urlID string) (model.Research, error) {
	rec, err := s.store.GetResearch(ctx, urlID)
	if err != nil {
		return model.Research{}, fmt.Errorf("research: get %s: %w", urlID, err)
	}
	return rec, nil
}
