package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"version"}, &out, &errOut)

	assert.Equal(t, 0, code)
	assert.Equal(t, "sdnguard dev\n", out.String())
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"bogus"}, &out, &errOut)

	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "bogus")
}

func TestRun_BadFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"health", "--nope"}, &out, &errOut)

	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "Usage:")
}

func TestRun_Actions(t *testing.T) {
	t.Setenv("SDNGUARD_CONFIG", "")
	var out, errOut bytes.Buffer
	code := Run([]string{"actions"}, &out, &errOut)

	require.Equal(t, 0, code, errOut.String())
	for _, name := range []string{"get_firewall_rules", "install_firewall_rule", "get_network_status", "check_ip_reputation(ip_address)"} {
		assert.Contains(t, out.String(), name)
	}
	assert.Contains(t, out.String(), "[changes network state]")
}

func TestRun_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	code := Run([]string{"health", "--url", srv.URL + "/"}, &out, &errOut)

	assert.Equal(t, 0, code, errOut.String())
	assert.Equal(t, "ok\n", out.String())
}

func TestRun_HealthMinVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok","version":"1.3.2"}`)
	}))
	defer srv.Close()

	cases := []struct {
		min  string
		code int
	}{
		{"1.3.0", 0},
		{"1.3.2", 0},
		{"1.4.0", 1},
		{"not-a-version", 2},
	}
	for _, tc := range cases {
		t.Run(tc.min, func(t *testing.T) {
			var out, errOut bytes.Buffer
			code := Run([]string{"health", "--url", srv.URL, "--min-version", tc.min}, &out, &errOut)
			assert.Equal(t, tc.code, code, errOut.String())
			if tc.code == 0 {
				assert.Equal(t, "ok 1.3.2\n", out.String())
			}
		})
	}
}

func TestRun_HealthUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	code := Run([]string{"health", "--url", srv.URL}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "503")
}

func TestChat_REPL(t *testing.T) {
	var prompts []string
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		prompts = append(prompts, string(body))
		_, _ = io.WriteString(w, `{"choices":[{"finish_reason":"stop","message":{"content":"All quiet on the network."}}]}`)
	}))
	defer llmSrv.Close()

	t.Setenv("SDNGUARD_CONFIG", "")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("LLM_BASE_URL", llmSrv.URL)
	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("AUDIT_DATABASE_URL", "")
	t.Setenv("AUDIT_SQLITE_PATH", "")
	t.Setenv("AUDIT_KAFKA_BROKERS", "")
	t.Setenv("OTEL_ENABLED", "false")

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"chat", "--session", "ops"})
	root.SetIn(strings.NewReader("\nanything odd?\nquit\nnever sent\n"))
	root.SetOut(&out)
	root.SetErr(&errOut)

	code := execute(root, &errOut)

	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "All quiet on the network.")
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "anything odd?")
	assert.NotContains(t, out.String(), "never sent")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("WARNING").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("verbose").String())
}
