package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/mailmind/mailmind/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Google sign-in and session handlers
	GoogleLogin    http.HandlerFunc
	GoogleCallback http.HandlerFunc
	Refresh        http.HandlerFunc
	Logout         http.HandlerFunc

	// Prompt ledger handlers
	GetPrompts    http.HandlerFunc
	ConsumePrompt http.HandlerFunc

	// Assistant handlers
	Chat         http.HandlerFunc
	ChatMessages http.HandlerFunc

	// Mailbox handlers
	MailList       http.HandlerFunc
	MailSend       http.HandlerFunc
	MailReply      http.HandlerFunc
	MailAttachment http.HandlerFunc

	// Prompt and plan history
	UsageHistory http.HandlerFunc

	// Payment provider webhook
	StripeWebhook http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
	WebhookRateLimiter func(http.Handler) http.Handler
	// Readiness maps a dependency name to its check. A nil check marks an
	// optional dependency that is not configured.
	Readiness map[string]ReadinessCheck
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		HandleError(w, ErrNotFound)
	})

	// Liveness probe, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := readiness(cfg.Readiness)
	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Get("/google/login", h.GoogleLogin)
			r.Get("/google/callback", h.GoogleCallback)
			r.Post("/refresh", h.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		r.Route("/webhooks", func(r chi.Router) {
			if cfg.WebhookRateLimiter != nil {
				r.Use(cfg.WebhookRateLimiter)
			}
			r.Post("/stripe", h.StripeWebhook)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Route("/chat", func(r chi.Router) {
				r.Post("/", h.Chat)
				r.Get("/messages", h.ChatMessages)
				r.Get("/prompts", h.GetPrompts)
				r.Post("/prompts", h.ConsumePrompt)
			})

			r.Route("/mail", func(r chi.Router) {
				r.Get("/", h.MailList)
				r.Post("/send", h.MailSend)
				r.Post("/reply/{threadID}", h.MailReply)
				r.Get("/attachment", h.MailAttachment)
			})

			r.Get("/usage", h.UsageHistory)
		})
	})

	return r
}

func readiness(checks map[string]ReadinessCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{"status": "healthy"}
		status := http.StatusOK

		for _, name := range names {
			check := checks[name]
			switch {
			case check == nil:
				health[name] = "not configured"
			case check(r.Context()) != nil:
				health[name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			default:
				health[name] = "healthy"
			}
		}

		JSON(w, status, health)
	}
}
