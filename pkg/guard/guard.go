// Package guard evaluates operator-defined CEL deny rules against action
// invocations before they run.
//
// A rule denies when its expression evaluates to true. Expressions see three
// variables: action (string), args (map of validated arguments, defaults
// filled) and session (string).
package guard

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

// Rule is a named deny expression.
type Rule struct {
	Name    string `yaml:"name" json:"name"`
	Expr    string `yaml:"expr" json:"expr"`
	Message string `yaml:"message" json:"message"`
}

// DefaultRules refuse a DENY rule for a default route, which would drop
// all IPv4 traffic including the operator's own.
var DefaultRules = []Rule{
	{
		Name: "no-default-route-block",
		Expr: `action == "install_firewall_rule" && has(args.nw_src) && args.nw_src.endsWith("/0") ` +
			`&& has(args.action) && args.action.upperAscii() == "DENY"`,
		Message: "refusing to block a default route (0.0.0.0/0); this would cut off all traffic",
	},
}

type compiled struct {
	rule Rule
	prg  cel.Program
}

// Engine holds compiled rules.
type Engine struct {
	env   *cel.Env
	mu    sync.RWMutex
	rules []compiled
}

// New compiles rules. A rule that does not compile to a boolean expression
// is an error.
func New(rules ...Rule) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.StringType),
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("session", cel.StringType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	e := &Engine{env: env}
	if err := e.Add(rules...); err != nil {
		return nil, err
	}
	return e, nil
}

// Add compiles and appends rules.
func (e *Engine) Add(rules ...Rule) error {
	out := make([]compiled, 0, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return fmt.Errorf("guard rule without name: %q", r.Expr)
		}
		ast, issues := e.env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("CEL compile error in rule %s: %w", r.Name, issues.Err())
		}
		if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
			return fmt.Errorf("rule %s must evaluate to bool, got %s", r.Name, t)
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return fmt.Errorf("CEL program error in rule %s: %w", r.Name, err)
		}
		out = append(out, compiled{rule: r, prg: prg})
	}
	e.mu.Lock()
	e.rules = append(e.rules, out...)
	e.mu.Unlock()
	return nil
}

// Rules returns the active rules in evaluation order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	for i, c := range e.rules {
		out[i] = c.rule
	}
	return out
}

// Check returns a KindPolicyDenied error naming the first rule that matches.
// Evaluation errors deny.
func (e *Engine) Check(action string, args map[string]any, session string) error {
	if e == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	activation := map[string]any{"action": action, "args": args, "session": session}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.rules {
		out, _, err := c.prg.Eval(activation)
		if err != nil {
			return faults.Wrap(faults.KindPolicyDenied, "guard."+c.rule.Name,
				fmt.Errorf("rule could not be evaluated: %w", err))
		}
		if deny, ok := out.Value().(bool); ok && deny {
			msg := c.rule.Message
			if msg == "" {
				msg = "denied by rule " + c.rule.Name
			}
			return faults.New(faults.KindPolicyDenied, "guard."+c.rule.Name, msg)
		}
	}
	return nil
}

// policyFile is the on-disk layout of GUARD_POLICY_FILE.
type policyFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadFile reads rules from a YAML document of the form
//
//	rules:
//	  - name: protect-gateway
//	    expr: 'action == "install_firewall_rule" && args.nw_src == "10.0.0.1/32"'
//	    message: the gateway cannot be blocked
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load guard policy %q: %w", path, err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse guard policy %q: %w", path, err)
	}
	return pf.Rules, nil
}
