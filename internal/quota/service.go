package quota

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailmind/mailmind/internal/logging"
	"github.com/mailmind/mailmind/internal/metrics"
	inats "github.com/mailmind/mailmind/internal/nats"
)

// EventPublisher receives a notification for every charged prompt.
type EventPublisher interface {
	PublishQuotaConsumed(ctx context.Context, event inats.QuotaConsumedEvent) error
}

// Ledger is the authoritative owner of per-user daily prompt counters.
type Ledger struct {
	store  Store
	policy Policy
	loc    *time.Location
	now    func() time.Time
	events EventPublisher
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithEvents publishes a QuotaConsumedEvent after each consume.
func WithEvents(p EventPublisher) Option {
	return func(l *Ledger) { l.events = p }
}

// NewLedger creates a Ledger that decides calendar days in loc.
func NewLedger(store Store, policy Policy, loc *time.Location, opts ...Option) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	l := &Ledger{store: store, policy: policy, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Peek returns the remaining allowance without writing. A counter last
// reset on an earlier day is reported as fresh.
func (l *Ledger) Peek(ctx context.Context, userID uuid.UUID) (Status, error) {
	q, err := l.store.Get(ctx, userID)
	if err != nil {
		return Status{}, storageErr("peek", err)
	}

	today := DayOf(l.now(), l.loc)
	return newStatus(l.policy.Plan(q.PlanTier), q.UsedOn(today)), nil
}

// Consume charges one prompt. The counter is never capped at write time so
// concurrent requests can carry it past the daily limit.
func (l *Ledger) Consume(ctx context.Context, userID uuid.UUID) (Status, error) {
	now := l.now()
	today := DayOf(now, l.loc)

	q, err := l.store.Consume(ctx, userID, today, now)
	if err != nil {
		return Status{}, storageErr("consume", err)
	}

	plan := l.policy.Plan(q.PlanTier)
	status := newStatus(plan, q.PromptsUsedToday)
	reset := q.PromptsUsedToday == 1

	metrics.PromptsConsumedTotal.WithLabelValues(string(plan.Tier)).Inc()
	if reset {
		metrics.QuotaResetsTotal.Inc()
	}
	if status.Used > plan.DailyLimit {
		metrics.PromptsOverLimitTotal.WithLabelValues(string(plan.Tier)).Inc()
	}

	if l.events != nil {
		err := l.events.PublishQuotaConsumed(ctx, inats.QuotaConsumedEvent{
			UserID:           userID,
			Plan:             string(plan.Tier),
			PromptsUsedToday: q.PromptsUsedToday,
			PromptsRemaining: status.Remaining,
			DayReset:         reset,
			Timestamp:        now.UTC(),
		})
		if err != nil {
			slog.Warn("quota: publishing consume event failed",
				logging.UserID(userID.String()), logging.Err(err))
		}
	}

	return status, nil
}

// Allow reports ErrLimitReached when the user has nothing left today.
// It is a read-only gate; charging still goes through Consume.
func (l *Ledger) Allow(ctx context.Context, userID uuid.UUID) error {
	status, err := l.Peek(ctx, userID)
	if err != nil {
		return err
	}
	if status.Remaining <= 0 {
		return ErrLimitReached
	}
	return nil
}

func storageErr(op string, err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
