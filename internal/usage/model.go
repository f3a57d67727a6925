package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	inats "github.com/mailmind/mailmind/internal/nats"
)

// Kinds of recorded events.
const (
	KindQuotaConsumed = "quota.consumed"
	KindPlanChanged   = "plan.changed"
)

var ErrUnknownSubject = errors.New("unknown event subject")

// Entry matches the usage_events table schema.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Kind       string          `json:"kind"`
	Plan       string          `json:"plan"`
	Details    json.RawMessage `json:"details,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// entryFromEvent decodes a message published on the events stream. The
// entry id is derived from the payload so a redelivered message maps to the
// same row.
func entryFromEvent(subject string, data []byte) (*Entry, error) {
	id := uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(subject+"\n"), data...))

	switch subject {
	case inats.SubjectQuotaConsumed:
		var ev inats.QuotaConsumedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", subject, err)
		}
		details, _ := json.Marshal(map[string]any{
			"prompts_used_today": ev.PromptsUsedToday,
			"prompts_remaining":  ev.PromptsRemaining,
			"day_reset":          ev.DayReset,
		})
		return newEntry(id, ev.UserID, KindQuotaConsumed, ev.Plan, details, ev.Timestamp)

	case inats.SubjectPlanChanged:
		var ev inats.PlanChangedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", subject, err)
		}
		details, _ := json.Marshal(map[string]string{
			"customer_id": ev.CustomerID,
			"reason":      ev.Reason,
		})
		return newEntry(id, ev.UserID, KindPlanChanged, ev.Plan, details, ev.Timestamp)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
}

func newEntry(id, userID uuid.UUID, kind, plan string, details json.RawMessage, at time.Time) (*Entry, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%s event without user id", kind)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &Entry{
		ID:         id,
		UserID:     userID,
		Kind:       kind,
		Plan:       plan,
		Details:    details,
		OccurredAt: at,
	}, nil
}
