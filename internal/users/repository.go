package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	// Upsert creates the user on first sign-in and refreshes the display name after.
	Upsert(ctx context.Context, email, name string) (*User, error)
	// SetPlanByEmail creates the user if needed and records the billing customer.
	SetPlanByEmail(ctx context.Context, email string, plan PlanTier, customerID, priceID string) (*User, error)
	// SetPlanByCustomer returns nil, nil when no user has that customer id.
	SetPlanByCustomer(ctx context.Context, customerID string, plan PlanTier) (*User, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const userColumns = `id, email, name, plan_tier, COALESCE(customer_id, ''), COALESCE(price_id, ''), created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	var plan string
	err := row.Scan(&user.ID, &user.Email, &user.Name, &plan,
		&user.CustomerID, &user.PriceID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.PlanTier = PlanTier(plan)
	return user, nil
}

func (r *postgresRepository) Upsert(ctx context.Context, email, name string) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
			updated_at = NOW()
		RETURNING `+userColumns, email, name))
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) SetPlanByEmail(ctx context.Context, email string, plan PlanTier, customerID, priceID string) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (email, plan_tier, customer_id, price_id)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (email) DO UPDATE SET
			plan_tier   = EXCLUDED.plan_tier,
			customer_id = COALESCE(EXCLUDED.customer_id, users.customer_id),
			price_id    = COALESCE(EXCLUDED.price_id, users.price_id),
			updated_at  = NOW()
		RETURNING `+userColumns, email, string(plan), customerID, priceID))
	if err != nil {
		return nil, fmt.Errorf("setting plan by email: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) SetPlanByCustomer(ctx context.Context, customerID string, plan PlanTier) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET plan_tier = $2, updated_at = NOW()
		WHERE customer_id = $1
		RETURNING `+userColumns, customerID, string(plan)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("setting plan by customer: %w", err)
	}
	return user, nil
}
