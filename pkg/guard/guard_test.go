package guard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

func TestDefaultRules(t *testing.T) {
	e, err := New(DefaultRules...)
	require.NoError(t, err)

	err = e.Check("install_firewall_rule", map[string]any{
		"nw_src": "0.0.0.0/0", "nw_dst": "0.0.0.0/0", "action": "deny", "priority": 1000,
	}, "default")
	require.Error(t, err)
	assert.Equal(t, faults.KindPolicyDenied, faults.KindOf(err))
	assert.Contains(t, err.Error(), "default route")

	assert.NoError(t, e.Check("install_firewall_rule", map[string]any{
		"nw_src": "203.0.113.5/32", "nw_dst": "0.0.0.0/0", "action": "DENY", "priority": 1000,
	}, "default"))
	assert.NoError(t, e.Check("install_firewall_rule", map[string]any{
		"nw_src": "0.0.0.0/0", "action": "ALLOW",
	}, "default"))
	assert.NoError(t, e.Check("get_network_status", nil, "default"))
}

func TestCustomRuleUsesSession(t *testing.T) {
	e, err := New(Rule{
		Name:    "readonly-demo",
		Expr:    `session == "demo" && action == "install_firewall_rule"`,
		Message: "the demo session is read-only",
	})
	require.NoError(t, err)

	err = e.Check("install_firewall_rule", map[string]any{"nw_src": "10.0.0.1/32"}, "demo")
	fe, ok := faults.As(err)
	require.True(t, ok)
	assert.Equal(t, "the demo session is read-only", fe.Detail())
	assert.NoError(t, e.Check("install_firewall_rule", map[string]any{"nw_src": "10.0.0.1/32"}, "ops"))
}

func TestEvalErrorDenies(t *testing.T) {
	e, err := New(Rule{Name: "needs-key", Expr: `args.switch_id == "1"`})
	require.NoError(t, err)

	err = e.Check("get_firewall_rules", map[string]any{}, "s")
	assert.Equal(t, faults.KindPolicyDenied, faults.KindOf(err))
}

func TestCompileErrors(t *testing.T) {
	_, err := New(Rule{Name: "broken", Expr: `action ==`})
	assert.Error(t, err)

	_, err = New(Rule{Name: "not-bool", Expr: `"yes"`})
	assert.Error(t, err)

	_, err = New(Rule{Expr: `true`})
	assert.Error(t, err)
}

func TestNilEngineAllows(t *testing.T) {
	var e *Engine
	assert.NoError(t, e.Check("install_firewall_rule", nil, ""))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.yaml")
	doc := `rules:
  - name: protect-gateway
    expr: 'action == "install_firewall_rule" && args.nw_src == "10.0.0.1/32"'
    message: the gateway cannot be blocked
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	rules, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	e, err := New(append(DefaultRules, rules...)...)
	require.NoError(t, err)
	assert.Len(t, e.Rules(), 2)
	assert.Error(t, e.Check("install_firewall_rule", map[string]any{"nw_src": "10.0.0.1/32", "action": "DENY"}, ""))
}
