package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists per-user prompt counters.
type Store interface {
	// Get loads the user's plan and counter row. ErrUserNotFound when the
	// user does not exist.
	Get(ctx context.Context, userID uuid.UUID) (*UserQuota, error)
	// Consume charges one prompt for day in a single write: the counter
	// restarts at 1 when the stored day differs, otherwise it increments.
	Consume(ctx context.Context, userID uuid.UUID, day DayKey, now time.Time) (*UserQuota, error)
}

// Repository handles user_quotas PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quota Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, userID uuid.UUID) (*UserQuota, error) {
	var (
		tier     string
		used     *int
		lastRst  *time.Time
		resetDay *int
	)
	err := r.pool.QueryRow(ctx,
		`SELECT u.plan_tier, q.prompts_used_today, q.last_reset_at, q.reset_day
		 FROM users u
		 LEFT JOIN user_quotas q ON q.user_id = u.id
		 WHERE u.id = $1`, userID,
	).Scan(&tier, &used, &lastRst, &resetDay)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("fetching user quota: %w", err)
	}

	q := &UserQuota{UserID: userID, PlanTier: PlanTier(tier), LastResetAt: lastRst}
	if used != nil {
		q.PromptsUsedToday = *used
	}
	if resetDay != nil {
		q.ResetDay = DayKey(*resetDay)
	}
	return q, nil
}

// consumeSQL creates the row on first use and otherwise resets or increments
// it under the row lock taken by ON CONFLICT, so two requests racing across
// midnight produce one reset and one increment.
const consumeSQL = `
WITH u AS (
	SELECT id, plan_tier FROM users WHERE id = $1
), upsert AS (
	INSERT INTO user_quotas AS q (user_id, prompts_used_today, last_reset_at, reset_day, updated_at)
	SELECT id, 1, $3, $2, $3 FROM u
	ON CONFLICT (user_id) DO UPDATE SET
		prompts_used_today = CASE WHEN q.reset_day = EXCLUDED.reset_day
		                          THEN q.prompts_used_today + 1 ELSE 1 END,
		last_reset_at      = CASE WHEN q.reset_day = EXCLUDED.reset_day
		                          THEN q.last_reset_at ELSE EXCLUDED.last_reset_at END,
		reset_day          = EXCLUDED.reset_day,
		updated_at         = EXCLUDED.updated_at
	RETURNING user_id, prompts_used_today, last_reset_at, reset_day
)
SELECT u.plan_tier, upsert.prompts_used_today, upsert.last_reset_at, upsert.reset_day
FROM upsert JOIN u ON u.id = upsert.user_id`

func (r *Repository) Consume(ctx context.Context, userID uuid.UUID, day DayKey, now time.Time) (*UserQuota, error) {
	var (
		tier     string
		lastRst  time.Time
		resetDay int
	)
	q := &UserQuota{UserID: userID}
	err := r.pool.QueryRow(ctx, consumeSQL, userID, int(day), now).
		Scan(&tier, &q.PromptsUsedToday, &lastRst, &resetDay)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("consuming prompt: %w", err)
	}

	q.PlanTier = PlanTier(tier)
	q.LastResetAt = &lastRst
	q.ResetDay = DayKey(resetDay)
	return q, nil
}
