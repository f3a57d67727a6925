package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mailmind/mailmind/internal/api"
	"github.com/mailmind/mailmind/internal/auth"
	"github.com/mailmind/mailmind/internal/billing"
	"github.com/mailmind/mailmind/internal/chat"
	"github.com/mailmind/mailmind/internal/config"
	"github.com/mailmind/mailmind/internal/database"
	"github.com/mailmind/mailmind/internal/mail"
	mw "github.com/mailmind/mailmind/internal/middleware"
	inats "github.com/mailmind/mailmind/internal/nats"
	"github.com/mailmind/mailmind/internal/quota"
	iredis "github.com/mailmind/mailmind/internal/redis"
	"github.com/mailmind/mailmind/internal/server"
	"github.com/mailmind/mailmind/internal/usage"
	"github.com/mailmind/mailmind/internal/users"
)

func newServeCmd() *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				slog.Error("loading config", "error", err)
				return err
			}
			if migrateFirst {
				if err := database.RunMigrations(cfg.DB.DSN(), cfg.Migrations.Path); err != nil {
					slog.Error("migrating database", "error", err)
					return err
				}
			}
			if err := runServer(cmd.Context(), cfg); err != nil {
				slog.Error("server error", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "Apply pending migrations before serving")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Quota.Location()
	if err != nil {
		return fmt.Errorf("resolving quota timezone: %w", err)
	}

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	readiness := map[string]api.ReadinessCheck{
		"database": pool.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
		"nats": nil,
	}

	usageRepo := usage.NewRepository(pool)

	// NATS (optional)
	var (
		quotaOpts  []quota.Option
		planEvents billing.EventPublisher
	)
	if cfg.NATS.URL != "" {
		natsClient, err := inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer natsClient.Close()

		publisher := inats.NewPublisher(natsClient.JetStream())
		quotaOpts = append(quotaOpts, quota.WithEvents(publisher))
		planEvents = publisher

		// Usage trail
		recorder := usage.NewConsumer(usageRepo, natsClient.JetStream())
		go func() {
			if err := recorder.Start(ctx); err != nil {
				slog.Error("usage consumer stopped", "error", err)
			}
		}()

		readiness["nats"] = func(context.Context) error {
			if !natsClient.Healthy() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	} else {
		slog.Info("NATS_URL not set, domain events disabled")
	}

	// Accounts
	userSvc := users.NewService(users.NewRepository(pool))

	// Prompt ledger
	ledger := quota.NewLedger(quota.NewRepository(pool), quota.NewPolicy(cfg.Quota), loc, quotaOpts...)
	quotaHandler := quota.NewHandler(ledger)

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)

	// Google mailbox access
	tokenCipher, err := mail.NewTokenCipher(cfg.Google.TokenKey)
	if err != nil {
		return fmt.Errorf("creating token cipher: %w", err)
	}
	credentials := mail.NewCredentialRepository(pool, tokenCipher)
	googleOAuth := auth.NewGoogleOAuthConfig(cfg.Google)
	authHandler := auth.NewHandler(authSvc, userSvc, auth.NewGoogleProvider(googleOAuth), credentials, cfg.Session)
	mailHandler := mail.NewHandler(mail.NewService(googleOAuth, credentials, cfg.Mail.PageSize))
	usageHandler := usage.NewHandler(usageRepo)

	// Billing
	billingHandler := billing.NewHandler(
		billing.NewService(userSvc, planEvents, cfg.Stripe.PriceID),
		cfg.Stripe.WebhookSecret,
	)

	// Assistant
	chatHandler := chat.NewHandler(ledger, chat.NewOpenAICompleter(cfg.OpenAI), chat.NewRepository(pool))

	authLimiter := mw.NewRateLimiter(redisClient, "auth", cfg.RateLimit.AuthMaxRequests, cfg.RateLimit.AuthWindowSec)
	webhookLimiter := mw.NewRateLimiter(redisClient, "webhooks", cfg.RateLimit.WebhookMaxRequests, cfg.RateLimit.WebhookWindowSec)

	router := api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimiter:    authLimiter.Middleware,
		WebhookRateLimiter: webhookLimiter.Middleware,
		Readiness:          readiness,
	}, api.HandlerSet{
		GoogleLogin:    authHandler.GoogleLogin,
		GoogleCallback: authHandler.GoogleCallback,
		Refresh:        authHandler.Refresh,
		Logout:         authHandler.Logout,

		GetPrompts:    quotaHandler.GetPrompts,
		ConsumePrompt: quotaHandler.ConsumePrompt,

		Chat:         chatHandler.Complete,
		ChatMessages: chatHandler.Messages,

		MailList:       mailHandler.List,
		MailSend:       mailHandler.Send,
		MailReply:      mailHandler.Reply,
		MailAttachment: mailHandler.Attachment,

		UsageHistory: usageHandler.History,

		StripeWebhook: billingHandler.Webhook,

		AuthMiddleware: auth.Middleware(authSvc, cfg.Session.CookieName),
	})

	return server.New(cfg.Server, router).Start(ctx)
}
