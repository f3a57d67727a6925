package users

import (
	"time"

	"github.com/google/uuid"
)

// PlanTier is the subscription level stored on the user row.
type PlanTier string

const (
	PlanFree    PlanTier = "FREE"
	PlanPremium PlanTier = "PREMIUM"
)

type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PlanTier   PlanTier  `json:"plan"`
	CustomerID string    `json:"-"`
	PriceID    string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
