package model

import (
	"time"

	"github.com/google/uuid"
)

// DevMetadata holds the mutable profile details stored alongside a dev.
type DevMetadata struct {
	Company  *string `json:"company"`
	Location *string `json:"location"`
	Bio      *string `json:"bio"`
}

// Dev correlates to a GitHub user. NodeID is the stable key; Login can change.
type Dev struct {
	ID        uuid.UUID   `json:"id"`
	NodeID    string      `json:"nodeId"`
	Login     string      `json:"login"`
	Name      *string     `json:"name"`
	Email     *string     `json:"email"`
	AvatarURL string      `json:"avatarUrl"`
	HTMLURL   string      `json:"htmlUrl"`
	Metadata  DevMetadata `json:"metadata"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// DevFromUser maps a GitHub profile onto the dev record upserted for it.
func DevFromUser(u GitHubUser) Dev {
	return Dev{
		NodeID:    u.NodeID,
		Login:     u.Login,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		HTMLURL:   u.HTMLURL,
		Metadata: DevMetadata{
			Company:  u.Company,
			Location: u.Location,
			Bio:      u.Bio,
		},
	}
}

// Research is the persisted research record. Immutable once created.
// URLID is the public id used to address both the record and its agent.
type Research struct {
	ID             uuid.UUID `json:"id"`
	URLID          string    `json:"urlId"`
	Prompt         string    `json:"prompt"`
	DevID          uuid.UUID `json:"devId"`
	GitHubUsername string    `json:"githubUsername"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// StartResearchRequest is the request body for POST /research.
type StartResearchRequest struct {
	Username string `json:"username" validate:"required,min=1,max=39,github_username"`
	Prompt   string `json:"prompt,omitempty" validate:"max=4000"`
}

// StartResearchResponse is the data payload returned by POST /research.
type StartResearchResponse struct {
	Username   string `json:"username"`
	ResearchID string `json:"researchId"`
}

// AgentAction enumerates the operations accepted by the agent-direct endpoint.
type AgentAction string

const (
	ActionInitialize AgentAction = "initialize"
	ActionCancel     AgentAction = "cancel"
	ActionComplete   AgentAction = "complete"
)

// AgentMessage is the body of POST /agents/{id}.
type AgentMessage struct {
	Action         AgentAction `json:"action" validate:"required,oneof=initialize cancel complete"`
	Prompt         string      `json:"prompt,omitempty"`
	GitHubUsername string      `json:"githubUsername,omitempty" validate:"required_if=Action initialize,omitempty,max=39,github_username"`
}
