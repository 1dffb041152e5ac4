package catalog

import (
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

// ParamType is the JSON type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
)

// Param documents one action parameter.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Pattern     string    `json:"pattern,omitempty"`
	Minimum     *int      `json:"minimum,omitempty"`
	Maximum     *int      `json:"maximum,omitempty"`
}

// Spec describes an action to the reasoning engine.
type Spec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	// Mutating marks actions that change live network state.
	Mutating bool `json:"mutating,omitempty"`
}

// Schema renders the parameter list as a JSON Schema object.
func (s Spec) Schema() map[string]any {
	props := make(map[string]any, len(s.Params))
	required := []string{}
	for _, p := range s.Params {
		prop := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Pattern != "" {
			prop["pattern"] = p.Pattern
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		if p.Type == TypeString && p.Required {
			prop["minLength"] = 1
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// Signature renders the spec as name(param=default, ...).
func (s Spec) Signature() string {
	parts := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		switch {
		case p.Default != nil && p.Type == TypeString:
			parts = append(parts, fmt.Sprintf("%s=%q", p.Name, p.Default))
		case p.Default != nil:
			parts = append(parts, fmt.Sprintf("%s=%v", p.Name, p.Default))
		default:
			parts = append(parts, p.Name)
		}
	}
	return s.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Invocation is a request to run one action.
type Invocation struct {
	// ID correlates the invocation with the engine's tool call, if any.
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	// Malformed holds the engine's raw argument text when it was not a
	// JSON object.
	Malformed string `json:"malformed,omitempty"`
}

// Result is the outcome of an invocation. Failures are described, never
// returned as Go errors.
type Result struct {
	Action string `json:"action"`
	// Args are the validated arguments with defaults filled. Nil when
	// validation failed.
	Args map[string]any `json:"args,omitempty"`
	// Payload is the structured response (rule set, report, ...) on success
	// and the failure text otherwise.
	Payload any `json:"payload,omitempty"`
	// Report is the self-contained markdown rendering shown to the engine
	// and the operator.
	Report string        `json:"report"`
	Fault  *faults.Error `json:"-"`
}

// OK reports whether the action succeeded.
func (r Result) OK() bool { return r.Fault == nil }

// FaultKind returns the failure kind, or "" on success.
func (r Result) FaultKind() faults.Kind {
	if r.Fault == nil {
		return ""
	}
	return r.Fault.Kind
}

func intPtr(n int) *int { return &n }
