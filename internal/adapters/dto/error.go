package dto

// ErrorResponse represents a common API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	// Kind is the error class ("validation", "not_found", "conflict",
	// "invalid_transition", "timeout", "runtime").
	Kind string `json:"kind,omitempty"`
}
