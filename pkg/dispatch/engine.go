package dispatch

import (
	"context"
	"strings"

	"github.com/Mindburn-Labs/sdnguard/pkg/catalog"
	"github.com/Mindburn-Labs/sdnguard/pkg/llm"
)

// LLMEngine decides with a chat model's tool-calling support.
type LLMEngine struct {
	Client   llm.Client
	Sampling *llm.SamplingOptions
}

// NewLLMEngine returns an engine sampling at temperature.
func NewLLMEngine(c llm.Client, temperature float64) *LLMEngine {
	return &LLMEngine{Client: c, Sampling: &llm.SamplingOptions{Temperature: temperature}}
}

func (e *LLMEngine) Decide(ctx context.Context, t Transcript, specs []catalog.Spec) (Decision, error) {
	resp, err := e.Client.Chat(ctx, Messages(t), ToolDefinitions(specs), e.Sampling)
	if err != nil {
		return Decision{}, err
	}
	if len(resp.ToolCalls) == 0 {
		return Final(strings.TrimSpace(resp.Content)), nil
	}
	d := Decision{Answer: strings.TrimSpace(resp.Content)}
	for _, tc := range resp.ToolCalls {
		d.Invocations = append(d.Invocations, catalog.Invocation{
			ID:        tc.ID,
			Name:      tc.Name,
			Args:      tc.Arguments,
			Malformed: tc.RawArguments,
		})
	}
	return d, nil
}

// Messages renders a transcript as chat messages. Consecutive action turns
// become one assistant message carrying the tool calls, followed by one tool
// message per result.
func Messages(t Transcript) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: t.Charter}}
	for i := 0; i < len(t.Turns); i++ {
		turn := t.Turns[i]
		switch turn.Kind {
		case KindOperator:
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: turn.Text})
		case KindAssistant:
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: turn.Text})
		case KindAction:
			j := i
			for j < len(t.Turns) && t.Turns[j].Kind == KindAction {
				j++
			}
			group := t.Turns[i:j]
			call := llm.Message{Role: llm.RoleAssistant}
			for _, a := range group {
				call.ToolCalls = append(call.ToolCalls, llm.ToolCall{
					ID: a.Invocation.ID, Name: a.Invocation.Name, Arguments: a.Invocation.Args,
				})
			}
			msgs = append(msgs, call)
			for _, a := range group {
				msgs = append(msgs, llm.Message{
					Role:       llm.RoleTool,
					ToolCallID: a.Invocation.ID,
					Name:       a.Invocation.Name,
					Content:    a.Result.Report,
				})
			}
			i = j - 1
		}
	}
	return msgs
}

// ToolDefinitions exposes catalog specs as model tools.
func ToolDefinitions(specs []catalog.Spec) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		desc := s.Description
		if s.Mutating {
			desc += " This changes live network policy; only call it after the operator explicitly confirms."
		}
		out = append(out, llm.ToolDefinition{Name: s.Name, Description: desc, Parameters: s.Schema()})
	}
	return out
}
