package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents an error returned by an LLM provider API.
type APIError struct {
	// Provider is the name of the LLM provider (e.g., "openai", "anthropic").
	Provider string
	// StatusCode is the HTTP status code returned by the API.
	StatusCode int
	// Message is the error message from the API.
	Message string
	// Type is the error type classification from the API.
	Type string
	// Code is the provider-specific error code (if available).
	Code string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient returns true if the error is a transient error that may succeed
// on retry. This includes rate limiting (429), server errors (5xx), network
// errors (StatusCode 0 indicates no HTTP response was received), and quota or
// resource exhaustion reported only in the error message.
func (e *APIError) IsTransient() bool {
	if e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500 {
		return true
	}
	// Some providers report throttling with a non-429 status and only the
	// message identifies it.
	msg := strings.ToLower(e.Message + " " + e.Type + " " + e.Code)
	for _, marker := range []string{"quota", "rate limit", "rate_limit", "429", "resource exhausted", "resource_exhausted", "overloaded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is a provider error eligible for retry.
// Non-APIError values (marshal failures, malformed responses) are permanent.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}
	return false
}
