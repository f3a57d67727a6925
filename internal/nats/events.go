package nats

import (
	"time"

	"github.com/google/uuid"
)

// StreamEvents retains usage and billing events for downstream consumers.
const StreamEvents = "MAILMIND_EVENTS"

// Subject constants.
const (
	SubjectEvents        = "mailmind.events.>"
	SubjectQuotaConsumed = "mailmind.events.quota.consumed"
	SubjectPlanChanged   = "mailmind.events.plan.changed"
)

// QuotaConsumedEvent is published after every successful prompt consume.
type QuotaConsumedEvent struct {
	UserID           uuid.UUID `json:"user_id"`
	Plan             string    `json:"plan"`
	PromptsUsedToday int       `json:"prompts_used_today"`
	PromptsRemaining int       `json:"prompts_remaining"`
	DayReset         bool      `json:"day_reset"`
	Timestamp        time.Time `json:"timestamp"`
}

// PlanChangedEvent is published when a billing event moves a user between plans.
type PlanChangedEvent struct {
	UserID     uuid.UUID `json:"user_id"`
	Plan       string    `json:"plan"`
	CustomerID string    `json:"customer_id,omitempty"`
	Reason     string    `json:"reason"` // e.g. "checkout.session.completed"
	Timestamp  time.Time `json:"timestamp"`
}
