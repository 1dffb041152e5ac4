package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestToGemini(t *testing.T) {
	sys, contents := toGemini([]Message{
		{Role: RoleSystem, Content: "charter"},
		{Role: RoleUser, Content: "is 203.0.113.5 bad?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "check_ip_reputation", Arguments: map[string]any{"ip_address": "203.0.113.5"}}}},
		{Role: RoleTool, ToolCallID: "c1", Name: "check_ip_reputation", Content: "HIGH RISK"},
		{Role: RoleAssistant, Content: "It is malicious."},
	})

	require.NotNil(t, sys)
	assert.Equal(t, "charter", sys.Parts[0].Text)
	require.Len(t, contents, 4)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "check_ip_reputation", contents[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, genai.RoleUser, contents[2].Role)
	assert.Equal(t, map[string]any{"output": "HIGH RISK"}, contents[2].Parts[0].FunctionResponse.Response)
	assert.Equal(t, "It is malicious.", contents[3].Parts[0].Text)
}

func TestToGeminiTools(t *testing.T) {
	assert.Nil(t, toGeminiTools(nil))
	tools := toGeminiTools([]ToolDefinition{rulesTool})
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	assert.Equal(t, "get_firewall_rules", tools[0].FunctionDeclarations[0].Name)
	assert.Equal(t, rulesTool.Parameters, tools[0].FunctionDeclarations[0].ParametersJsonSchema)
}
