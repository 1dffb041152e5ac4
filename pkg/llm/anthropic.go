package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// AnthropicClient speaks the Messages API with tool_use / tool_result blocks.
type AnthropicClient struct {
	apiKey string
	model  string
	cfg    clientConfig
}

func NewAnthropicClient(apiKey, model string, opts ...Option) *AnthropicClient {
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &AnthropicClient{
		apiKey: apiKey,
		model:  model,
		cfg:    newClientConfig(DefaultAnthropicBaseURL, opts),
	}
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Temperature float64            `json:"temperature"`
	TopP        float64            `json:"top_p,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
}

// toAnthropic splits out the system prompt and folds tool results into user
// turns. Consecutive messages of the same role are merged because the API
// requires alternation.
func toAnthropic(msgs []Message) (string, []anthropicMessage) {
	var system []string
	var out []anthropicMessage
	push := func(role string, blocks ...anthropicBlock) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropicMessage{Role: role, Content: blocks})
	}

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleTool:
			push(RoleUser, anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content})
		case RoleAssistant:
			var blocks []anthropicBlock
			if m.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: toolInput(tc.Arguments)})
			}
			if len(blocks) > 0 {
				push(RoleAssistant, blocks...)
			}
		default:
			push(RoleUser, anthropicBlock{Type: "text", Text: m.Content})
		}
	}
	return strings.Join(system, "\n\n"), out
}

func (c *AnthropicClient) Chat(ctx context.Context, msgs []Message, tools []ToolDefinition, options *SamplingOptions) (*Response, error) {
	system, wire := toAnthropic(msgs)
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.cfg.maxTokens,
		System:    system,
		Messages:  wire,
	}
	for _, t := range tools {
		reqBody.Tools = append(reqBody.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	if options != nil {
		reqBody.Temperature = options.Temperature
		reqBody.TopP = options.TopP
		if options.MaxTokens > 0 {
			reqBody.MaxTokens = options.MaxTokens
		}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.baseURL+"/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.cfg.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &APIError{Provider: "anthropic", Status: resp.StatusCode, Body: string(body)}
	}

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}

	out := &Response{StopReason: ar.StopReason}
	var text []string
	for _, block := range ar.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: toolArgs(block.Input)})
		}
	}
	out.Content = strings.Join(text, "")
	return out, nil
}

// toolInput encodes arguments for a tool_use block. The API rejects a
// tool_use without an input object, so empty arguments encode as {}.
func toolInput(args map[string]any) json.RawMessage {
	raw, err := json.Marshal(nonNilArgs(args))
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

func toolArgs(raw json.RawMessage) map[string]any {
	var args map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	return nonNilArgs(args)
}
