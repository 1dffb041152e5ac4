// Package threatintel checks IP reputation against AbuseIPDB and classifies
// the result into a risk level.
package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

const (
	DefaultBaseURL    = "https://api.abuseipdb.com"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxAgeDays = 90

	// maxErrorBody caps the service error text carried in a fault.
	maxErrorBody = 4 << 10
)

// ErrNoAPIKey is returned, without any network call, when no key is configured.
var ErrNoAPIKey = faults.New(faults.KindConfigurationMissing, "threatintel.check", "AbuseIPDB API key not configured")

// Client queries the AbuseIPDB v2 check endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	maxAgeDays int
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL points the client at another AbuseIPDB-compatible service.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout sets the per-request budget.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMaxAgeDays sets the report lookback window.
func WithMaxAgeDays(days int) Option {
	return func(c *Client) {
		if days > 0 {
			c.maxAgeDays = days
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client. An empty apiKey is allowed; every check then fails
// with ErrNoAPIKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		maxAgeDays: DefaultMaxAgeDays,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default().With("component", "threatintel"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// checkResponse mirrors the subset of /api/v2/check we read.
type checkResponse struct {
	Data *struct {
		IPAddress            string  `json:"ipAddress"`
		AbuseConfidenceScore int     `json:"abuseConfidenceScore"`
		TotalReports         int     `json:"totalReports"`
		NumDistinctUsers     int     `json:"numDistinctUsers"`
		CountryCode          *string `json:"countryCode"`
		CountryName          *string `json:"countryName"`
		IsWhitelisted        *bool   `json:"isWhitelisted"`
		IsTor                bool    `json:"isTor"`
		ISP                  string  `json:"isp"`
		Domain               string  `json:"domain"`
		UsageType            string  `json:"usageType"`
		LastReportedAt       *string `json:"lastReportedAt"`
	} `json:"data"`
}

// CheckReputation looks up ip. Input is not validated beyond trimming; the
// service's own rejection comes back as a KindRemoteError.
func (c *Client) CheckReputation(ctx context.Context, ip string) (*Report, error) {
	const op = "threatintel.check"
	if !c.Configured() {
		return nil, ErrNoAPIKey
	}
	ip = strings.TrimSpace(ip)

	q := url.Values{}
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", strconv.Itoa(c.maxAgeDays))
	q.Set("verbose", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2/check?"+q.Encode(), nil)
	if err != nil {
		return nil, faults.Wrap(faults.KindUnknown, op, err)
	}
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "reputation request failed", "ip", ip, "error", err)
		return nil, faults.FromTransport(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.FromTransport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WarnContext(ctx, "reputation service error", "ip", ip, "status", resp.StatusCode)
		text := strings.TrimSpace(string(body))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, faults.Remote(op, resp.StatusCode, text)
	}

	var parsed checkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, faults.Wrap(faults.KindUnknown, op, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Data == nil {
		return nil, faults.New(faults.KindUnknown, op, "Unexpected API response format")
	}

	d := parsed.Data
	r := &Report{
		IP:                ip,
		Score:             d.AbuseConfidenceScore,
		Level:             Classify(d.AbuseConfidenceScore),
		TotalReports:      d.TotalReports,
		DistinctReporters: d.NumDistinctUsers,
		CountryCode:       deref(d.CountryCode),
		CountryName:       deref(d.CountryName),
		IsWhitelisted:     d.IsWhitelisted,
		IsTor:             d.IsTor,
		ISP:               d.ISP,
		Domain:            d.Domain,
		UsageType:         d.UsageType,
	}
	if d.IPAddress != "" {
		r.IP = d.IPAddress
	}
	if d.LastReportedAt != nil && *d.LastReportedAt != "" {
		if ts, err := time.Parse(time.RFC3339, *d.LastReportedAt); err == nil {
			r.LastReportedAt = &ts
		} else {
			r.LastReportedRaw = *d.LastReportedAt
		}
	}

	c.logger.InfoContext(ctx, "reputation checked", "ip", r.IP, "score", r.Score, "level", r.Level)
	return r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
