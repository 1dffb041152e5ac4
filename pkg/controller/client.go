// Package controller is a client for the Ryu rest_firewall application:
// rule listing, rule installation and module/logging status.
//
// Every call is a single attempt bounded by the client timeout. Transport
// failures are classified with pkg/faults so callers can tell "timed out"
// from "not running" from "answered with an error".
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

// DefaultTimeout bounds every controller request.
const DefaultTimeout = 5 * time.Second

// maxErrorBody caps the controller error text carried in a fault.
const maxErrorBody = 4 << 10

// Client talks to one Ryu controller.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the per-request budget.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the controller at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default().With("component", "controller"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// do performs one request and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, faults.Wrap(faults.KindUnknown, op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, faults.Wrap(faults.KindUnknown, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "controller request failed",
			"op", op, "path", path, "error", err, "elapsed", time.Since(start))
		return nil, faults.FromTransport(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.FromTransport(op, err)
	}
	c.logger.DebugContext(ctx, "controller response",
		"op", op, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(data))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, faults.Remote(op, resp.StatusCode, text)
	}
	return data, nil
}

func decodeErr(op string, err error) error {
	return &faults.Error{Kind: faults.KindUnknown, Op: op, Err: fmt.Errorf("decode response: %w", err)}
}
