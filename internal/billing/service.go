package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/mailmind/mailmind/internal/logging"
	inats "github.com/mailmind/mailmind/internal/nats"
	"github.com/mailmind/mailmind/internal/users"
)

// ErrMissingEmail is returned for a completed checkout with no customer email.
var ErrMissingEmail = errors.New("checkout session has no customer email")

// Accounts moves users between plans.
type Accounts interface {
	ActivatePremium(ctx context.Context, email, customerID, priceID string) (*users.User, error)
	CancelPremium(ctx context.Context, customerID string) (*users.User, error)
}

// EventPublisher is notified after every plan transition.
type EventPublisher interface {
	PublishPlanChanged(ctx context.Context, event inats.PlanChangedEvent) error
}

// Outcome of processing one webhook event.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
)

type Service struct {
	accounts Accounts
	events   EventPublisher
	priceID  string
	now      func() time.Time
}

// NewService creates a billing service. events may be nil.
func NewService(accounts Accounts, events EventPublisher, defaultPriceID string) *Service {
	return &Service{
		accounts: accounts,
		events:   events,
		priceID:  defaultPriceID,
		now:      time.Now,
	}
}

// Process applies a verified payment event to the account it concerns.
func (s *Service) Process(ctx context.Context, event stripe.Event) (Outcome, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return "", fmt.Errorf("decoding checkout session: %w", err)
		}
		return OutcomeProcessed, s.checkoutCompleted(ctx, &sess)

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return "", fmt.Errorf("decoding subscription: %w", err)
		}
		return OutcomeProcessed, s.subscriptionDeleted(ctx, &sub)

	default:
		return OutcomeIgnored, nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	email := sess.CustomerEmail
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		email = sess.CustomerDetails.Email
	}
	if email == "" {
		return ErrMissingEmail
	}

	var customerID string
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	priceID := s.priceID
	if p := sess.Metadata["price_id"]; p != "" {
		priceID = p
	}

	user, err := s.accounts.ActivatePremium(ctx, email, customerID, priceID)
	if err != nil {
		return fmt.Errorf("activating premium: %w", err)
	}

	slog.Info("billing: premium activated",
		logging.UserID(user.ID.String()), logging.UserHash(user.Email))
	s.publish(ctx, user, customerID, string(stripe.EventTypeCheckoutSessionCompleted))
	return nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	if sub.Customer == nil || sub.Customer.ID == "" {
		return fmt.Errorf("subscription %s has no customer", sub.ID)
	}

	user, err := s.accounts.CancelPremium(ctx, sub.Customer.ID)
	if err != nil {
		return fmt.Errorf("cancelling premium: %w", err)
	}
	if user == nil {
		slog.Warn("billing: no account linked to customer", slog.String("customer_id", sub.Customer.ID))
		return nil
	}

	slog.Info("billing: premium cancelled", logging.UserID(user.ID.String()))
	s.publish(ctx, user, sub.Customer.ID, string(stripe.EventTypeCustomerSubscriptionDeleted))
	return nil
}

func (s *Service) publish(ctx context.Context, user *users.User, customerID, reason string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishPlanChanged(ctx, inats.PlanChangedEvent{
		UserID:     user.ID,
		Plan:       string(user.PlanTier),
		CustomerID: customerID,
		Reason:     reason,
		Timestamp:  s.now().UTC(),
	})
	if err != nil {
		slog.Warn("billing: publishing plan change failed", logging.UserID(user.ID.String()), logging.Err(err))
	}
}
