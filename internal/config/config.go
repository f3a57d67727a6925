package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Session    SessionConfig
	Google     GoogleConfig
	Mail       MailConfig
	Stripe     StripeConfig
	OpenAI     OpenAIConfig
	Quota      QuotaConfig
	NATS       NATSConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Migrations MigrationsConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// SessionConfig controls the browser session cookie set after Google sign-in.
type SessionConfig struct {
	CookieName   string
	CookieSecure bool
	// PostLoginURL is where the browser lands after a successful callback.
	PostLoginURL string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// TokenKey is the hex AES-256 key sealing stored Gmail credentials.
	TokenKey string
}

// MailConfig controls the Gmail proxy.
type MailConfig struct {
	PageSize int
}

type StripeConfig struct {
	WebhookSecret string
	// PriceID is recorded on upgraded accounts when the checkout session
	// does not carry one in its metadata.
	PriceID string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// QuotaConfig holds the per-plan daily prompt ceilings.
type QuotaConfig struct {
	FreeDailyLimit    int
	PremiumDailyLimit int
	// PremiumClamp clamps PREMIUM remaining at zero the way FREE always is.
	PremiumClamp bool
	// Timezone names the location used to decide the calendar day.
	// "Local" (the default) uses the server's local zone.
	Timezone string
}

// Location resolves Timezone, falling back to time.Local.
func (c QuotaConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

type NATSConfig struct {
	URL string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	AuthMaxRequests    int
	AuthWindowSec      int
	WebhookMaxRequests int
	WebhookWindowSec   int
}

type MigrationsConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		Session: SessionConfig{
			CookieName:   k.String("session.cookie.name"),
			CookieSecure: k.Bool("session.cookie.secure"),
			PostLoginURL: k.String("session.post.login.url"),
		},
		Google: GoogleConfig{
			ClientID:     k.String("google.client.id"),
			ClientSecret: k.String("google.client.secret"),
			RedirectURL:  k.String("google.redirect.url"),
			TokenKey:     k.String("google.token.key"),
		},
		Mail: MailConfig{
			PageSize: k.Int("mail.page.size"),
		},
		Stripe: StripeConfig{
			WebhookSecret: k.String("stripe.webhook.secret"),
			PriceID:       k.String("stripe.price.id"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  k.String("openai.api.key"),
			BaseURL: k.String("openai.base.url"),
			Model:   k.String("openai.model"),
		},
		Quota: QuotaConfig{
			FreeDailyLimit:    k.Int("quota.free.daily.limit"),
			PremiumDailyLimit: k.Int("quota.premium.daily.limit"),
			PremiumClamp:      k.Bool("quota.premium.clamp"),
			Timezone:          k.String("quota.timezone"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		RateLimit: RateLimitConfig{
			AuthMaxRequests:    k.Int("ratelimit.auth.max.requests"),
			AuthWindowSec:      k.Int("ratelimit.auth.window.sec"),
			WebhookMaxRequests: k.Int("ratelimit.webhook.max.requests"),
			WebhookWindowSec:   k.Int("ratelimit.webhook.window.sec"),
		},
		Migrations: MigrationsConfig{
			Path: k.String("migrations.path"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "mailmind"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "mailmind"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "mailmind_session"
	}
	if cfg.Session.PostLoginURL == "" {
		cfg.Session.PostLoginURL = "/mail"
	}
	if cfg.Mail.PageSize == 0 {
		cfg.Mail.PageSize = 7
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-3.5-turbo"
	}
	if cfg.Quota.FreeDailyLimit == 0 {
		cfg.Quota.FreeDailyLimit = 15
	}
	if cfg.Quota.PremiumDailyLimit == 0 {
		cfg.Quota.PremiumDailyLimit = 45
	}
	if cfg.Quota.Timezone == "" {
		cfg.Quota.Timezone = "Local"
	}
	if cfg.RateLimit.AuthMaxRequests == 0 {
		cfg.RateLimit.AuthMaxRequests = 20
	}
	if cfg.RateLimit.AuthWindowSec == 0 {
		cfg.RateLimit.AuthWindowSec = 60
	}
	if cfg.RateLimit.WebhookMaxRequests == 0 {
		cfg.RateLimit.WebhookMaxRequests = 120
	}
	if cfg.RateLimit.WebhookWindowSec == 0 {
		cfg.RateLimit.WebhookWindowSec = 60
	}
	if cfg.Migrations.Path == "" {
		cfg.Migrations.Path = "migrations"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	accessExpStr := k.String("jwt.access.expiry")
	if accessExpStr == "" {
		accessExpStr = "15m"
	}
	cfg.JWT.AccessExpiry, err = time.ParseDuration(accessExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}

	refreshExpStr := k.String("jwt.refresh.expiry")
	if refreshExpStr == "" {
		refreshExpStr = "168h"
	}
	cfg.JWT.RefreshExpiry, err = time.ParseDuration(refreshExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt refresh expiry: %w", err)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
