package api

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

// ConflictResponse carries enough context for the caller to recover:
// the resource that clashed and, for state conflicts, what would be allowed.
type ConflictResponse struct {
	Error         string   `json:"error"`
	ResourceID    int      `json:"resource_id,omitempty"`
	CurrentStatus string   `json:"current_status,omitempty"`
	Allowed       []string `json:"allowed,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}
