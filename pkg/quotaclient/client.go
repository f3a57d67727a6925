package quotaclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultPath = "/api/v1/chat/prompts"

// Quota is the server's answer from either prompt endpoint.
type Quota struct {
	Remaining  int    `json:"promptsRemaining"`
	Plan       string `json:"plan,omitempty"`
	DailyLimit int    `json:"dailyLimit,omitempty"`
}

// Client calls the prompt endpoints of a Mailmind server.
type Client struct {
	baseURL string
	path    string
	token   string
	http    *http.Client
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    defaultPath,
		http:    http.DefaultClient,
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

// Remaining reads today's allowance without charging it.
func (c *Client) Remaining(ctx context.Context) (Quota, error) {
	return c.do(ctx, http.MethodGet, "peek")
}

// Consume charges one prompt and returns the authoritative remainder.
// A failed call may still have been charged, so callers must not retry it.
func (c *Client) Consume(ctx context.Context) (Quota, error) {
	return c.do(ctx, http.MethodPost, "consume")
}

func (c *Client) do(ctx context.Context, method, op string) (Quota, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+c.path, nil)
	if err != nil {
		return Quota{}, fmt.Errorf("quotaclient: building %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Quota{}, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Quota{}, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return Quota{}, &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	var q Quota
	if err := json.Unmarshal(body, &q); err != nil {
		return Quota{}, fmt.Errorf("quotaclient: decoding %s response: %w", op, err)
	}
	return q, nil
}
