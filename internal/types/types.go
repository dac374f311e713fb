// Package types defines the dashboard API request and response types.
package types

// Response is the envelope of every dashboard API response. Data is omitted
// only when nil, so an empty list still encodes as [].
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Envelope is Response with a typed payload, used when decoding.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// LoginRequest is the JSON form of the login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Username  string `json:"username"`
	ExpiresAt string `json:"expires_at"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status  string   `json:"status"`
	Plugins []string `json:"plugins,omitempty"`
}

// Error messages returned to dashboard clients.
const (
	ErrMsgFileNotFound    = "File not found"
	ErrMsgRequestNotFound = "Request not found"
	ErrMsgUnauthorized    = "unauthorized"
	ErrMsgUnknownAction   = "unknown action"
)
