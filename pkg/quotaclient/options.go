package quotaclient

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Client.
type Option interface {
	apply(*Client)
}

type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *Client) {
		c.http = hc
	})
}

// WithToken sends the access token as a Bearer credential.
// Without it the request relies on the session cookie of the HTTP client's jar.
func WithToken(token string) Option {
	return optionFunc(func(c *Client) {
		c.token = token
	})
}

// WithPath overrides the endpoint path. Defaults to /api/v1/chat/prompts.
func WithPath(path string) Option {
	return optionFunc(func(c *Client) {
		c.path = path
	})
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the logger used for background reconcile failures.
func WithLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// WithReconcileTimeout bounds each background reconcile. Defaults to 10s.
func WithReconcileTimeout(d time.Duration) CacheOption {
	return func(c *Cache) { c.reconcileTimeout = d }
}
