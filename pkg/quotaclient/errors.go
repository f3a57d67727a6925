package quotaclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Use errors.Is() to check.
var (
	ErrUnauthenticated = errors.New("quotaclient: no valid session")
	ErrNotFound        = errors.New("quotaclient: user not found")
	ErrStorage         = errors.New("quotaclient: server storage error")
	ErrLimitReached    = errors.New("quotaclient: daily prompt limit reached")
)

// APIError is a non-2xx response from the prompt endpoints.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("quotaclient: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("quotaclient: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrStorage:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("quotaclient: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
