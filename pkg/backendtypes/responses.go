package backendtypes

import "time"

// APIResponse is the standard response wrapper
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes carried in APIError.Code
const (
	CodeMissingParameter   = "MISSING_PARAMETER"
	CodeInvalidParameter   = "INVALID_PARAMETER"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeNotFound           = "NOT_FOUND"
	CodeProviderNotFound   = "PROVIDER_NOT_FOUND"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternal           = "INTERNAL_ERROR"
)

// HealthResponse for health endpoints
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Providers int    `json:"providers"`
	Available int    `json:"available"`
	Ready     int    `json:"ready"`
}

// URLResponse carries a resolved download URL
type URLResponse struct {
	URL   string `json:"url"`
	Group string `json:"group"`
	Path  string `json:"path"`
}

// RefreshResponse reports whether a refresh cycle was queued
type RefreshResponse struct {
	Queued bool `json:"queued"`
}
