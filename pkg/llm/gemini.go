package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient uses the Gemini API function-calling support.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a client. It does not contact the API.
func NewGeminiClient(ctx context.Context, apiKey, model string, opts ...Option) (*GeminiClient, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	cfg := newClientConfig("", opts)
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// toGemini converts the transcript. Tool results become function responses
// in user turns, matched to calls by name and ID.
func toGemini(msgs []Message) (*genai.Content, []*genai.Content) {
	var system []string
	var out []*genai.Content
	push := func(role string, parts ...*genai.Part) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleTool:
			push(genai.RoleUser, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"output": m.Content},
			}})
		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID: tc.ID, Name: tc.Name, Args: nonNilArgs(tc.Arguments),
				}})
			}
			if len(parts) > 0 {
				push(genai.RoleModel, parts...)
			}
		default:
			push(genai.RoleUser, &genai.Part{Text: m.Content})
		}
	}

	var sys *genai.Content
	if len(system) > 0 {
		sys = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	return sys, out
}

func toGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (c *GeminiClient) Chat(ctx context.Context, msgs []Message, tools []ToolDefinition, options *SamplingOptions) (*Response, error) {
	sys, contents := toGemini(msgs)
	gc := &genai.GenerateContentConfig{
		SystemInstruction: sys,
		Tools:             toGeminiTools(tools),
	}
	if options != nil {
		gc.Temperature = genai.Ptr(float32(options.Temperature))
		if options.TopP > 0 {
			gc.TopP = genai.Ptr(float32(options.TopP))
		}
		if options.MaxTokens > 0 {
			gc.MaxOutputTokens = int32(options.MaxTokens)
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, gc)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: empty candidates in response")
	}

	cand := resp.Candidates[0]
	out := &Response{StopReason: string(cand.FinishReason)}
	var text []string
	for i, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID: id, Name: part.FunctionCall.Name, Arguments: nonNilArgs(part.FunctionCall.Args),
			})
		case part.Text != "" && !part.Thought:
			text = append(text, part.Text)
		}
	}
	out.Content = strings.Join(text, "")
	return out, nil
}
