package channel

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means the server rejected the token.
	ErrAuth = errors.New("mattermost: authentication failed")
	// ErrNotFound means the requested team, user or channel does not exist.
	ErrNotFound = errors.New("mattermost: not found")
	// ErrSubscriptionClosed means the websocket ended. It is expected and
	// drives the switch to polling.
	ErrSubscriptionClosed = errors.New("mattermost: subscription closed")
)

// APIError is a non-2xx response from the REST API.
type APIError struct {
	StatusCode int
	ID         string // Mattermost error id, e.g. "app.team.get_by_name.missing.app_error"
	Message    string
	Op         string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: mattermost API error %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: mattermost API error %d: %s", e.Op, e.StatusCode, e.Message)
}

// Is lets callers match auth and not-found responses with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// NetworkError is a transport-level failure (dial, TLS, timeout, reset).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError is a payload that could not be parsed.
type DecodeError struct {
	What    string
	Payload string
	Err     error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.What, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }
