package model

// APIResponse is the success envelope for all HTTP API responses.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// APIError is the error envelope for all HTTP API responses.
type APIError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Messages returned to API callers.
const (
	MessageResearchStarted = "Please wait while our AI agents research this developer's GitHub activity."
	MessageResearchFetched = "Research fetched successfully"
	MessageResearchMissing = "Research not found"
	MessageAgentState      = "Agent state fetched successfully"
	MessageAgentUpdated    = "Agent updated"
	MessageUnauthorized    = "Unauthorized"
	MessageInternal        = "Internal server error"
	MessageNotAUser        = "Please ensure this is a valid GitHub user account."
	MessageUserNotFound    = "User not found"
	MessageRateLimited     = "Rate limit exceeded. Please try again later."
)
