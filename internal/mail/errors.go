package mail

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

var (
	ErrNotConnected = errors.New("google mailbox not connected")
	ErrNotFound     = errors.New("mail item not found")
	ErrInvalidDraft = errors.New("invalid draft")
	ErrRejected     = errors.New("request rejected by gmail")
	ErrUpstream     = errors.New("gmail unavailable")
)

// classify maps a Gmail or token refresh failure onto the package errors.
func classify(op string, err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%s: %w: %v", op, ErrNotConnected, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case http.StatusBadRequest:
			return fmt.Errorf("%s: %w: %s", op, ErrRejected, gerr.Message)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %s", op, ErrNotConnected, gerr.Message)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUpstream, err)
}
