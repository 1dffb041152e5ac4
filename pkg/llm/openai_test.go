package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rulesTool = ToolDefinition{
	Name:        "get_firewall_rules",
	Description: "Get current firewall rules",
	Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
}

func TestOpenAIClient_ToolRoundTrip(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices": [{"finish_reason": "tool_calls", "message": {"content": null, "tool_calls": [
			{"id": "call_1", "type": "function", "function": {"name": "check_ip_reputation", "arguments": "{\"ip_address\": \"203.0.113.5\"}"}},
			{"id": "call_2", "type": "function", "function": {"name": "get_network_status", "arguments": "{oops"}}
		]}}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "gpt-test", WithBaseURL(srv.URL+"/v1"))
	resp, err := c.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "charter"},
		{Role: RoleUser, Content: "status?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Name: "get_firewall_rules", Arguments: map[string]any{}}}},
		{Role: RoleTool, ToolCallID: "call_0", Name: "get_firewall_rules", Content: "no rules"},
	}, []ToolDefinition{rulesTool}, &SamplingOptions{Temperature: 0})
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", resp.StopReason)
	assert.Empty(t, resp.Content)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, map[string]any{"ip_address": "203.0.113.5"}, resp.ToolCalls[0].Arguments)
	assert.Nil(t, resp.ToolCalls[1].Arguments)
	assert.Equal(t, "{oops", resp.ToolCalls[1].RawArguments)

	assert.Equal(t, "gpt-test", got["model"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	assistant := msgs[2].(map[string]any)
	assert.Nil(t, assistant["content"])
	call := assistant["tool_calls"].([]any)[0].(map[string]any)
	assert.Equal(t, "{}", call["function"].(map[string]any)["arguments"])
	tool := msgs[3].(map[string]any)
	assert.Equal(t, "call_0", tool["tool_call_id"])
	tools := got["tools"].([]any)
	assert.Equal(t, "function", tools[0].(map[string]any)["type"])
}

func TestOpenAIClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("bad", "", WithBaseURL(srv.URL)).Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "invalid api key")
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices": []}`)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("k", "", WithBaseURL(srv.URL)).Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, nil)
	assert.ErrorContains(t, err, "empty choices")
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(context.Background(), "OpenAI", "k", "")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = NewClient(context.Background(), ProviderAnthropic, "k", "")
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)

	_, err = NewClient(context.Background(), "mystery", "k", "")
	assert.Error(t, err)
}
