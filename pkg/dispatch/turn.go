// Package dispatch runs one conversational turn: it asks a reasoning engine
// what to do next, executes the requested actions through the catalog and
// feeds the results back until the engine produces a final answer.
package dispatch

import (
	"github.com/Mindburn-Labs/sdnguard/pkg/catalog"
)

// TurnKind tags a Turn.
type TurnKind string

const (
	KindOperator  TurnKind = "operator"
	KindAssistant TurnKind = "assistant"
	KindAction    TurnKind = "action"
)

// Turn is one transcript entry: an operator utterance, an assistant
// utterance, or an action invocation with its result.
type Turn struct {
	Kind TurnKind `json:"kind"`
	Text string   `json:"text,omitempty"`

	Invocation *catalog.Invocation `json:"invocation,omitempty"`
	Result     *catalog.Result     `json:"result,omitempty"`
}

func Operator(text string) Turn  { return Turn{Kind: KindOperator, Text: text} }
func Assistant(text string) Turn { return Turn{Kind: KindAssistant, Text: text} }

// Action records an executed invocation.
func Action(inv catalog.Invocation, res catalog.Result) Turn {
	return Turn{Kind: KindAction, Invocation: &inv, Result: &res}
}

// Transcript is everything the engine sees when deciding.
type Transcript struct {
	Charter string
	Turns   []Turn
}

// Utterances drops action turns, leaving what the caller persists between
// turns.
func Utterances(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.Kind == KindOperator || t.Kind == KindAssistant {
			out = append(out, t)
		}
	}
	return out
}

// Decision is the engine's answer for one round: either a final answer or
// actions to run next. Invocations take precedence when both are set.
type Decision struct {
	Answer      string
	Invocations []catalog.Invocation
}

// Final ends the turn with answer.
func Final(answer string) Decision { return Decision{Answer: answer} }

// Invoke requests actions.
func Invoke(invs ...catalog.Invocation) Decision { return Decision{Invocations: invs} }

func (d Decision) empty() bool { return d.Answer == "" && len(d.Invocations) == 0 }
