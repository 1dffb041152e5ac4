package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultOpenAIBaseURL is the public OpenAI API root.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient speaks the chat completions API. Any compatible server
// (vLLM, LM Studio, Ollama, gateways) works through WithBaseURL.
type OpenAIClient struct {
	apiKey string
	model  string
	cfg    clientConfig
}

func NewOpenAIClient(apiKey, model string, opts ...Option) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{
		apiKey: apiKey,
		model:  model,
		cfg:    newClientConfig(DefaultOpenAIBaseURL, opts),
	}
}

// Internal structure for OpenAI API "tools" array
type openAITool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	Temperature float64         `json:"temperature"`
	TopP        float64         `json:"top_p,omitempty"`
	Seed        int64           `json:"seed,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   *string          `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func toOpenAIMessages(msgs []Message) ([]openAIMessage, error) {
	out := make([]openAIMessage, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		om := openAIMessage{Role: m.Role, Content: &content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args := tc.RawArguments
			if tc.Arguments != nil || args == "" {
				b, err := json.Marshal(nonNilArgs(tc.Arguments))
				if err != nil {
					return nil, fmt.Errorf("openai: marshal tool arguments: %w", err)
				}
				args = string(b)
			}
			call := openAIToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Name
			call.Function.Arguments = args
			om.ToolCalls = append(om.ToolCalls, call)
		}
		if len(om.ToolCalls) > 0 && content == "" {
			om.Content = nil
		}
		out = append(out, om)
	}
	return out, nil
}

func nonNilArgs(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func (c *OpenAIClient) Chat(ctx context.Context, msgs []Message, tools []ToolDefinition, options *SamplingOptions) (*Response, error) {
	var oaiTools []openAITool
	for _, t := range tools {
		oaiTools = append(oaiTools, openAITool{
			Type:     "function",
			Function: t,
		})
	}

	wire, err := toOpenAIMessages(msgs)
	if err != nil {
		return nil, err
	}
	reqBody := openAIRequest{
		Model:    c.model,
		Messages: wire,
		Tools:    oaiTools,
	}

	if options != nil {
		reqBody.Temperature = options.Temperature
		reqBody.TopP = options.TopP
		reqBody.Seed = options.Seed
		reqBody.MaxTokens = options.MaxTokens
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &APIError{Provider: "openai", Status: resp.StatusCode, Body: string(body)}
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}

	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}
	choice := oaiResp.Choices[0]

	out := &Response{StopReason: choice.FinishReason}
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, parseToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	return out, nil
}

// parseToolCall decodes JSON-encoded arguments, keeping the raw text when
// they are not an object.
func parseToolCall(id, name, raw string) ToolCall {
	tc := ToolCall{ID: id, Name: name}
	if raw == "" {
		tc.Arguments = map[string]any{}
		return tc
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		tc.RawArguments = raw
		return tc
	}
	tc.Arguments = args
	return tc
}
