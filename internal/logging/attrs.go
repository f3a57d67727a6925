// Package logging holds slog attribute helpers shared across the service so
// that log keys stay consistent and raw email addresses never reach the logs.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

const (
	KeyOperation = "operation"
	KeyUserID    = "user_id"
	KeyUserHash  = "user_hash"
	KeyPlan      = "plan"
	KeyRequestID = "request_id"
	KeyError     = "error"
)

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// UserID returns a slog attribute for an internal user id.
func UserID(id string) slog.Attr {
	return slog.String(KeyUserID, id)
}

// Plan returns a slog attribute for a subscription plan tier.
func Plan(tier string) slog.Attr {
	return slog.String(KeyPlan, tier)
}

// Err returns a slog attribute for an error.
// A nil error yields an empty group, which slog omits.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a stable hash of an email for log correlation.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return "user:" + hex.EncodeToString(sum[:8])
}

// UserHash returns a slog attribute with the anonymized email.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}
