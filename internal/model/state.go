// Package model defines the core domain types for Know Your Dev.
//
// AgentState is a strict sum type discriminated by Status. The Go struct is
// flat for ergonomic use inside the agent, but JSON encoding and Validate
// enforce that only the fields belonging to the current variant are present.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidState is returned when an AgentState violates its variant rules.
var ErrInvalidState = errors.New("model: invalid agent state")

// AgentStatus discriminates the AgentState variants.
type AgentStatus string

const (
	StatusInactive AgentStatus = "inactive"
	StatusRunning  AgentStatus = "running"
	StatusComplete AgentStatus = "complete"
)

// Valid reports whether s is a known status.
func (s AgentStatus) Valid() bool {
	switch s {
	case StatusInactive, StatusRunning, StatusComplete:
		return true
	default:
		return false
	}
}

// AgentState is the single value owned by a research agent instance.
//
// inactive carries no fields. running carries the research fields with a nil
// Report. complete carries everything running does plus a non-nil Report.
type AgentState struct {
	Status         AgentStatus
	GitHubUsername string
	Prompt         string
	Title          string
	InitiatedAt    time.Time
	Log            string
	Findings       string
	Report         *string
}

// Inactive returns the initial state of every agent instance.
func Inactive() AgentState {
	return AgentState{Status: StatusInactive}
}

// NewRunning returns a freshly armed running state.
func NewRunning(githubUsername, prompt, title string, initiatedAt time.Time, log, findings string) AgentState {
	return AgentState{
		Status:         StatusRunning,
		GitHubUsername: githubUsername,
		Prompt:         stripNUL(prompt),
		Title:          stripNUL(title),
		InitiatedAt:    initiatedAt.UTC(),
		Log:            stripNUL(log),
		Findings:       stripNUL(findings),
	}
}

// stripNUL removes NUL characters. Scraped pages and model output can carry
// them, and PostgreSQL text and jsonb reject them.
func stripNUL(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// IsRunning reports whether the state accepts research mutations.
func (s AgentState) IsRunning() bool {
	return s.Status == StatusRunning
}

// WithLog returns a copy of s with line appended to the log transcript.
func (s AgentState) WithLog(line string) AgentState {
	line = stripNUL(line)
	if s.Log == "" {
		s.Log = line
	} else {
		s.Log = s.Log + "\n" + line
	}
	return s
}

// WithFindings returns a copy of s with block appended to the findings.
func (s AgentState) WithFindings(block string) AgentState {
	block = stripNUL(block)
	if s.Findings == "" {
		s.Findings = block
	} else {
		s.Findings = s.Findings + "\n\n" + block
	}
	return s
}

// Completed returns the complete variant of a running state.
func (s AgentState) Completed(report string) AgentState {
	s.Status = StatusComplete
	report = stripNUL(report)
	s.Report = &report
	return s
}

// Validate checks the variant rules of the tagged union.
func (s AgentState) Validate() error {
	switch s.Status {
	case StatusInactive:
		if s.GitHubUsername != "" || s.Prompt != "" || s.Title != "" || !s.InitiatedAt.IsZero() ||
			s.Log != "" || s.Findings != "" || s.Report != nil {
			return fmt.Errorf("%w: inactive state must not carry research fields", ErrInvalidState)
		}
		return nil
	case StatusRunning, StatusComplete:
		if s.GitHubUsername == "" {
			return fmt.Errorf("%w: %s state requires githubUsername", ErrInvalidState, s.Status)
		}
		if s.InitiatedAt.IsZero() {
			return fmt.Errorf("%w: %s state requires initiatedAt", ErrInvalidState, s.Status)
		}
		if s.Status == StatusRunning && s.Report != nil {
			return fmt.Errorf("%w: running state must not carry a report", ErrInvalidState)
		}
		if s.Status == StatusComplete && s.Report == nil {
			return fmt.Errorf("%w: complete state requires a report", ErrInvalidState)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, s.Status)
	}
}

// agentStateJSON is the wire shape. Pointer fields let UnmarshalJSON tell
// absent fields apart from empty ones.
type agentStateJSON struct {
	Status         AgentStatus `json:"status"`
	GitHubUsername *string     `json:"githubUsername,omitempty"`
	Prompt         *string     `json:"prompt,omitempty"`
	Title          *string     `json:"title,omitempty"`
	InitiatedAt    *time.Time  `json:"initiatedAt,omitempty"`
	Log            *string     `json:"log,omitempty"`
	Findings       *string     `json:"findings,omitempty"`
	Report         *string     `json:"report"`
}

// inactiveJSON is emitted for the inactive variant so no research key appears.
type inactiveJSON struct {
	Status AgentStatus `json:"status"`
}

// MarshalJSON encodes only the fields of the current variant.
func (s AgentState) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Status == StatusInactive {
		return json.Marshal(inactiveJSON{Status: s.Status})
	}
	initiatedAt := s.InitiatedAt
	return json.Marshal(agentStateJSON{
		Status:         s.Status,
		GitHubUsername: &s.GitHubUsername,
		Prompt:         &s.Prompt,
		Title:          &s.Title,
		InitiatedAt:    &initiatedAt,
		Log:            &s.Log,
		Findings:       &s.Findings,
		Report:         s.Report,
	})
}

// UnmarshalJSON decodes and validates an AgentState.
func (s *AgentState) UnmarshalJSON(data []byte) error {
	var raw agentStateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	switch raw.Status {
	case StatusInactive:
		if raw.GitHubUsername != nil || raw.Prompt != nil || raw.Title != nil || raw.InitiatedAt != nil ||
			raw.Log != nil || raw.Findings != nil || raw.Report != nil {
			return fmt.Errorf("%w: inactive state must not carry research fields", ErrInvalidState)
		}
		*s = Inactive()
		return nil
	case StatusRunning, StatusComplete:
		if raw.GitHubUsername == nil || raw.Prompt == nil || raw.Title == nil ||
			raw.InitiatedAt == nil || raw.Log == nil || raw.Findings == nil {
			return fmt.Errorf("%w: %s state is missing required fields", ErrInvalidState, raw.Status)
		}
		next := AgentState{
			Status:         raw.Status,
			GitHubUsername: *raw.GitHubUsername,
			Prompt:         *raw.Prompt,
			Title:          *raw.Title,
			InitiatedAt:    raw.InitiatedAt.UTC(),
			Log:            *raw.Log,
			Findings:       *raw.Findings,
			Report:         raw.Report,
		}
		if err := next.Validate(); err != nil {
			return err
		}
		*s = next
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, raw.Status)
	}
}

// ParseAgentState decodes a JSON snapshot into a validated AgentState.
func ParseAgentState(data []byte) (AgentState, error) {
	var s AgentState
	if err := json.Unmarshal(data, &s); err != nil {
		return AgentState{}, err
	}
	return s, nil
}
