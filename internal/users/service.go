package users

import (
	"context"
	"fmt"
	"strings"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// FindOrCreate returns the account for email, creating a FREE one on first sign-in.
func (s *Service) FindOrCreate(ctx context.Context, email, name string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	return s.repo.Upsert(ctx, email, strings.TrimSpace(name))
}

// ActivatePremium upgrades the account paying with customerID.
func (s *Service) ActivatePremium(ctx context.Context, email, customerID, priceID string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	return s.repo.SetPlanByEmail(ctx, email, PlanPremium, customerID, priceID)
}

// CancelPremium moves the customer's account back to FREE.
// It returns nil, nil when no account is linked to customerID.
func (s *Service) CancelPremium(ctx context.Context, customerID string) (*User, error) {
	return s.repo.SetPlanByCustomer(ctx, customerID, PlanFree)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
