package ezviz

import (
	"errors"
	"fmt"
)

// ErrAuthRequired is returned by read calls made before a successful login
var ErrAuthRequired = errors.New("authentication required")

// AuthError is returned when the login endpoint answers with a non-200
// application status.
type AuthError struct {
	Code    int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed: %s", e.Message)
}

// APIError is returned when an authenticated endpoint answers with a non-200
// application status.
type APIError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s", e.Message)
}

// HTTPError is returned for non-2xx transport level responses
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}
