package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Quota ceilings
	if c.Quota.FreeDailyLimit < 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_FREE_DAILY_LIMIT must be positive, got %d", c.Quota.FreeDailyLimit))
	}
	if c.Quota.PremiumDailyLimit < 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_PREMIUM_DAILY_LIMIT must be positive, got %d", c.Quota.PremiumDailyLimit))
	}
	if _, err := c.Quota.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("QUOTA_TIMEZONE %q is not a known location", c.Quota.Timezone))
	}

	// Google sign-in
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		errs = append(errs, "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if c.Google.RedirectURL == "" {
		errs = append(errs, "GOOGLE_REDIRECT_URL is required")
	}
	if c.Google.TokenKey == "" {
		errs = append(errs, "GOOGLE_TOKEN_KEY is required")
	} else if len(c.Google.TokenKey) != 64 {
		errs = append(errs, "GOOGLE_TOKEN_KEY must be exactly 64 hex characters (32 bytes)")
	} else if _, err := hex.DecodeString(c.Google.TokenKey); err != nil {
		errs = append(errs, "GOOGLE_TOKEN_KEY must be valid hex")
	}

	// Gmail proxy
	if c.Mail.PageSize < 1 || c.Mail.PageSize > 100 {
		errs = append(errs, fmt.Sprintf("MAIL_PAGE_SIZE must be 1–100, got %d", c.Mail.PageSize))
	}

	// Optional integrations: warn only
	if c.Stripe.WebhookSecret == "" {
		slog.Warn("STRIPE_WEBHOOK_SECRET is empty, billing webhook will reject every event")
	}
	if c.OpenAI.APIKey == "" {
		slog.Warn("OPENAI_API_KEY is empty, chat completions will fail")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
