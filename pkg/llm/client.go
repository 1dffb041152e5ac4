// Package llm provides the reasoning-engine transports: a provider-neutral
// chat-with-tools interface and OpenAI, Anthropic and Gemini implementations.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a chat transcript. Assistant messages may carry
// tool calls; tool messages answer one call by ID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// Name is the tool name on RoleTool messages.
	Name string `json:"name,omitempty"`
}

type Client interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, options *SamplingOptions) (*Response, error)
}

type SamplingOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Seed        int64   `json:"seed"`
	MaxTokens   int     `json:"max_tokens"`
}

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Response struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls"`
	StopReason string     `json:"stop_reason,omitempty"`
}

// ToolCall is a model's request to run a tool. When the model produced
// arguments that are not a JSON object, Arguments is nil and RawArguments
// holds the text.
type ToolCall struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments"`
	RawArguments string         `json:"raw_arguments,omitempty"`
}

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s error: %d: %s", e.Provider, e.Status, strings.TrimSpace(body))
}

// DefaultTimeout bounds one provider round trip.
const DefaultTimeout = 60 * time.Second

type clientConfig struct {
	baseURL    string
	httpClient *http.Client
	maxTokens  int
}

// Option configures a provider client.
type Option func(*clientConfig)

// WithBaseURL overrides the provider endpoint, e.g. for an OpenAI-compatible
// gateway or a test server.
func WithBaseURL(u string) Option {
	return func(c *clientConfig) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.httpClient.Timeout = d }
}

// WithMaxTokens caps the completion length where the provider requires it.
func WithMaxTokens(n int) Option {
	return func(c *clientConfig) { c.maxTokens = n }
}

func newClientConfig(defaultBase string, opts []Option) clientConfig {
	cfg := clientConfig{
		baseURL:    defaultBase,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxTokens:  4096,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
