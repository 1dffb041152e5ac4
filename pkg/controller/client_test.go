package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

func newRyu(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

// stallingRyu never answers within the client budget.
func stallingRyu(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, WithTimeout(50*time.Millisecond))
}

// deadRyu points at a port nobody listens on.
func deadRyu(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return New(url)
}

func TestListFirewallRules_ObjectShape(t *testing.T) {
	c := newRyu(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/firewall/rules/all", r.URL.Path)
		_, _ = io.WriteString(w, `{
			"0000000000000002": [],
			"0000000000000001": [
				{"rule_id": 1, "priority": 1000, "dl_type": "IPv4", "nw_src": "10.0.0.1/32", "nw_dst": "0.0.0.0/0", "actions": "DENY"},
				{"rule_id": 2, "actions": "ALLOW"}
			]
		}`)
	})

	rs, err := c.ListFirewallRules(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, rs.Switches, 2)
	assert.Equal(t, "0000000000000001", rs.Switches[0].SwitchID)
	assert.Equal(t, 2, rs.Count())

	first := rs.Switches[0].Rules[0]
	require.NotNil(t, first.Priority)
	assert.Equal(t, 1000, *first.Priority)
	assert.Equal(t, "10.0.0.1/32", first.Source)
	assert.Equal(t, ActionDeny, first.Action)

	second := rs.Switches[0].Rules[1]
	assert.Nil(t, second.Priority)
	assert.Empty(t, second.Source)
	assert.Empty(t, rs.Switches[1].Rules)
}

func TestListFirewallRules_NativeShape(t *testing.T) {
	c := newRyu(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/firewall/rules/0000000000000001", r.URL.Path)
		_, _ = io.WriteString(w, `[{"switch_id": "0000000000000001", "access_control_list": [
			{"rules": [{"rule_id": 3, "priority": 5, "dl_type": "IPv4", "nw_proto": "ICMP", "nw_src": "10.0.0.2", "actions": "ALLOW"}]}
		]}]`)
	})

	rs, err := c.ListFirewallRules(context.Background(), "0000000000000001")
	require.NoError(t, err)
	require.Len(t, rs.Switches, 1)
	require.Len(t, rs.Switches[0].Rules, 1)
	assert.Equal(t, "ICMP", rs.Switches[0].Rules[0].Protocol)
	assert.Equal(t, 3, rs.Switches[0].Rules[0].RuleID)
}

func TestListFirewallRules_Empty(t *testing.T) {
	for _, body := range []string{`{}`, `[]`, ``} {
		c := newRyu(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		})
		rs, err := c.ListFirewallRules(context.Background(), "all")
		require.NoError(t, err, "body %q", body)
		assert.True(t, rs.Empty())
	}
}

func TestListFirewallRules_Malformed(t *testing.T) {
	c := newRyu(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"s1": "not a list"}`)
	})
	_, err := c.ListFirewallRules(context.Background(), "all")
	require.Error(t, err)
	assert.Equal(t, faults.KindUnknown, faults.KindOf(err))
}

func TestInstallFirewallRule(t *testing.T) {
	var got map[string]any
	c := newRyu(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/firewall/rules/all", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `[{"switch_id": "0000000000000001", "command_result": [{"result": "success", "details": "Rule added. : rule_id=4"}]}]`)
	})

	res, err := c.InstallFirewallRule(context.Background(), Rule{Source: "203.0.113.5/32", Action: "deny"})
	require.NoError(t, err)

	assert.Equal(t, Rule{Source: "203.0.113.5/32", Destination: "0.0.0.0/0", Action: ActionDeny, Priority: 1000}, res.Rule)
	assert.Equal(t, map[string]any{
		"priority": float64(1000),
		"dl_type":  "IPv4",
		"nw_src":   "203.0.113.5/32",
		"nw_dst":   "0.0.0.0/0",
		"actions":  "DENY",
	}, got)
	require.Len(t, res.Switches, 1)
	assert.Equal(t, "Rule added. : rule_id=4", res.Switches[0].Details)
}

func TestInstallFirewallRule_SwitchFailure(t *testing.T) {
	c := newRyu(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"switch_id": 1, "command_result": [{"result": "failure", "details": "Invalid rule parameter."}]}]`)
	})
	_, err := c.InstallFirewallRule(context.Background(), Rule{Source: "10.0.0.1/32"})
	require.Error(t, err)
	assert.Equal(t, faults.KindRemoteError, faults.KindOf(err))
	assert.Contains(t, err.Error(), "Invalid rule parameter.")
}

func TestInstallFirewallRule_InvalidNeverCallsController(t *testing.T) {
	called := false
	c := newRyu(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	bad := []Rule{
		{Source: "not-an-ip"},
		{Source: "10.0.0.1"},
		{Source: "2001:db8::/32"},
		{Source: "10.0.0.0/8", Destination: "10.0.0.0/33"},
		{Source: "10.0.0.0/8", Action: "REJECT"},
		{Source: "10.0.0.0/8", Priority: -1},
		{Source: "10.0.0.0/8", Priority: 70000},
	}
	for _, r := range bad {
		_, err := c.InstallFirewallRule(context.Background(), r)
		require.Error(t, err, "%+v", r)
		assert.Equal(t, faults.KindArgumentInvalid, faults.KindOf(err), "%+v", r)
	}
	assert.False(t, called)
}

func TestNetworkStatus(t *testing.T) {
	c := newRyu(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/firewall/module/status":
			_, _ = io.WriteString(w, `[{"switch_id": "0000000000000001", "status": "enable"}, {"switch_id": "0000000000000002", "status": "disable"}]`)
		case "/firewall/log/status":
			_, _ = io.WriteString(w, `{"0000000000000001": "enable"}`)
		default:
			http.NotFound(w, r)
		}
	})

	st, err := c.NetworkStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Modules, 2)
	assert.True(t, st.Modules[0].Enabled)
	assert.False(t, st.Modules[1].Enabled)
	require.Len(t, st.Logging, 1)
	assert.True(t, st.Logging[0].Enabled)
	assert.NoError(t, st.LoggingErr)
}

func TestNetworkStatus_LoggingUnavailable(t *testing.T) {
	c := newRyu(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/firewall/log/status" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"0000000000000001": "enable"}`)
	})

	st, err := c.NetworkStatus(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.Modules, 1)
	assert.Equal(t, faults.KindRemoteError, faults.KindOf(st.LoggingErr))
}

func TestTransportFailures(t *testing.T) {
	calls := map[string]func(*Client) error{
		"list": func(c *Client) error {
			_, err := c.ListFirewallRules(context.Background(), "all")
			return err
		},
		"install": func(c *Client) error {
			_, err := c.InstallFirewallRule(context.Background(), Rule{Source: "10.0.0.1/32"})
			return err
		},
		"status": func(c *Client) error {
			_, err := c.NetworkStatus(context.Background())
			return err
		},
	}

	for name, call := range calls {
		t.Run(name+"/timeout", func(t *testing.T) {
			err := call(stallingRyu(t))
			require.Error(t, err)
			assert.Equal(t, faults.KindTransportTimeout, faults.KindOf(err))
		})
		t.Run(name+"/unreachable", func(t *testing.T) {
			err := call(deadRyu(t))
			require.Error(t, err)
			assert.Equal(t, faults.KindTransportUnreachable, faults.KindOf(err))
		})
		t.Run(name+"/remote", func(t *testing.T) {
			c := newRyu(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "switch not connected", http.StatusNotFound)
			})
			err := call(c)
			require.Error(t, err)
			fe, ok := faults.As(err)
			require.True(t, ok)
			assert.Equal(t, faults.KindRemoteError, fe.Kind)
			assert.Equal(t, http.StatusNotFound, fe.Status)
			assert.Equal(t, "switch not connected", fe.Body)
		})
	}
}
