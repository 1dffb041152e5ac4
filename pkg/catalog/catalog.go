// Package catalog is the fixed set of actions offered to the reasoning
// engine. Each action has a Spec, a compiled JSON Schema for its arguments
// and a typed binding that calls the controller or threat-intelligence
// client and renders a markdown report.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/sdnguard/pkg/controller"
	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
	"github.com/Mindburn-Labs/sdnguard/pkg/guard"
	"github.com/Mindburn-Labs/sdnguard/pkg/threatintel"
)

// Controller is the subset of the controller client the catalog drives.
type Controller interface {
	ListFirewallRules(ctx context.Context, switchID string) (*controller.RuleSet, error)
	InstallFirewallRule(ctx context.Context, r controller.Rule) (*controller.InstallResult, error)
	NetworkStatus(ctx context.Context) (*controller.NetworkStatus, error)
}

// Reputation is the subset of the threat-intelligence client the catalog drives.
type Reputation interface {
	CheckReputation(ctx context.Context, ip string) (*threatintel.Report, error)
}

type handler func(ctx context.Context, args map[string]any) Result

type action struct {
	spec   Spec
	schema *jsonschema.Schema
	run    handler
}

// Catalog is immutable after New.
type Catalog struct {
	actions []*action
	byName  map[string]*action
	guard   *guard.Engine
	fmt     formatter
	logger  *slog.Logger
}

// Option configures the catalog.
type Option func(*Catalog)

// WithGuard installs deny rules evaluated before every action.
func WithGuard(g *guard.Engine) Option {
	return func(c *Catalog) { c.guard = g }
}

// WithControllerEndpoint names the controller in "not running" reports.
func WithControllerEndpoint(endpoint string) Option {
	return func(c *Catalog) { c.fmt.controllerEndpoint = endpoint }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// New builds the catalog over the two clients.
func New(ctrl Controller, intel Reputation, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		byName: make(map[string]*action),
		fmt:    formatter{controllerEndpoint: "localhost:8080"},
		logger: slog.Default().With("component", "catalog"),
	}
	for _, o := range opts {
		o(c)
	}
	for _, def := range definitions(ctrl, intel, c.fmt) {
		if err := c.register(def.spec, def.run); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) register(spec Spec, run handler) error {
	if _, dup := c.byName[spec.Name]; dup {
		return fmt.Errorf("catalog: duplicate action %q", spec.Name)
	}
	schema, err := compileSchema(spec)
	if err != nil {
		return err
	}
	a := &action{spec: spec, schema: schema, run: run}
	c.actions = append(c.actions, a)
	c.byName[spec.Name] = a
	return nil
}

func compileSchema(spec Spec) (*jsonschema.Schema, error) {
	doc, err := json.Marshal(spec.Schema())
	if err != nil {
		return nil, fmt.Errorf("catalog schema marshal failed: %w", err)
	}
	comp := jsonschema.NewCompiler()
	comp.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://sdnguard.schemas.local/actions/%s.schema.json", spec.Name)
	if err := comp.AddResource(url, strings.NewReader(string(doc))); err != nil {
		return nil, fmt.Errorf("catalog schema load failed: %w", err)
	}
	schema, err := comp.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("catalog schema compile failed: %w", err)
	}
	return schema, nil
}

// Specs returns the action specs in registration order.
func (c *Catalog) Specs() []Spec {
	out := make([]Spec, len(c.actions))
	for i, a := range c.actions {
		out[i] = a.spec
	}
	return out
}

// Spec looks up one action.
func (c *Catalog) Spec(name string) (Spec, bool) {
	a, ok := c.byName[name]
	if !ok {
		return Spec{}, false
	}
	return a.spec, true
}

// Describe renders the catalog for humans.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for i, a := range c.actions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(a.spec.Signature())
		if a.spec.Mutating {
			b.WriteString("  [changes network state]")
		}
		b.WriteString("\n    ")
		b.WriteString(a.spec.Description)
		b.WriteString("\n")
		for _, p := range a.spec.Params {
			fmt.Fprintf(&b, "      %s (%s): %s\n", p.Name, p.Type, p.Description)
		}
	}
	return b.String()
}

// Invoke validates and runs inv. It never panics on bad input and never
// returns a Go error: every failure is a Result with a Fault.
func (c *Catalog) Invoke(ctx context.Context, inv Invocation) Result {
	a, ok := c.byName[inv.Name]
	if !ok {
		return c.fail(inv.Name, faults.New(faults.KindArgumentInvalid, "catalog.invoke",
			fmt.Sprintf("unknown action %q", inv.Name)), c.fmt.unknownAction(inv.Name, c.names()))
	}
	if inv.Malformed != "" {
		fe := faults.New(faults.KindArgumentInvalid, "catalog."+a.spec.Name,
			"arguments are not a JSON object: "+inv.Malformed)
		return c.fail(a.spec.Name, fe, c.fmt.invalidArgs(a.spec.Name, fe.Detail()))
	}

	args, err := c.prepare(a, inv.Args)
	if err != nil {
		fe := &faults.Error{Kind: faults.KindArgumentInvalid, Op: "catalog." + a.spec.Name, Err: err}
		return c.fail(a.spec.Name, fe, c.fmt.invalidArgs(a.spec.Name, fe.Detail()))
	}

	if err := c.guard.Check(a.spec.Name, args, SessionFromContext(ctx)); err != nil {
		fe, _ := faults.As(err)
		c.logger.WarnContext(ctx, "action denied by guard", "action", a.spec.Name, "reason", fe.Detail())
		return c.fail(a.spec.Name, fe, c.fmt.denied(fe.Detail()))
	}

	res := a.run(ctx, args)
	res.Action = a.spec.Name
	res.Args = args
	if res.Fault != nil {
		c.logger.WarnContext(ctx, "action failed",
			"action", a.spec.Name, "kind", res.Fault.Kind, "error", res.Fault.Error())
	} else {
		c.logger.DebugContext(ctx, "action succeeded", "action", a.spec.Name)
	}
	return res
}

// prepare normalises args through JSON, fills defaults and validates them
// against the action's schema.
func (c *Catalog) prepare(a *action, raw map[string]any) (map[string]any, error) {
	args := map[string]any{}
	if raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("arguments are not JSON-encodable: %w", err)
		}
		if err := json.Unmarshal(b, &args); err != nil {
			return nil, err
		}
	}
	for _, p := range a.spec.Params {
		if _, present := args[p.Name]; !present && p.Default != nil {
			args[p.Name] = normalizeDefault(p.Default)
		}
	}
	if err := a.schema.Validate(args); err != nil {
		return nil, flattenValidation(err)
	}
	return args, nil
}

// normalizeDefault gives defaults the same Go types decoded JSON has.
func normalizeDefault(v any) any {
	if n, ok := v.(int); ok {
		return float64(n)
	}
	return v
}

// flattenValidation turns a jsonschema error tree into one line per leaf.
func flattenValidation(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}
	var msgs []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc == "" {
				msgs = append(msgs, e.Message)
			} else {
				msgs = append(msgs, loc+": "+e.Message)
			}
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func (c *Catalog) names() []string {
	out := make([]string, len(c.actions))
	for i, a := range c.actions {
		out[i] = a.spec.Name
	}
	return out
}

func (c *Catalog) fail(name string, fe *faults.Error, report string) Result {
	return Result{Action: name, Payload: fe.Detail(), Report: report, Fault: fe}
}

// bind adapts a typed action body to the catalog's map-based handler.
func bind[A any](run func(context.Context, A) Result) handler {
	return func(ctx context.Context, args map[string]any) Result {
		var typed A
		b, err := json.Marshal(args)
		if err == nil {
			err = json.Unmarshal(b, &typed)
		}
		if err != nil {
			fe := &faults.Error{Kind: faults.KindArgumentInvalid, Op: "catalog.bind", Err: err}
			return Result{Payload: fe.Detail(), Report: fmt.Sprintf("%s **Invalid arguments:** %s", MarkWarning, fe.Detail()), Fault: fe}
		}
		return run(ctx, typed)
	}
}

type sessionKey struct{}

// ContextWithSession tags ctx with the conversation's session ID so guard
// rules can see it.
func ContextWithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionFromContext returns the session ID set by ContextWithSession.
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
