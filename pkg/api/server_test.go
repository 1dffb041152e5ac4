package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sdnguard/pkg/api"
	"github.com/Mindburn-Labs/sdnguard/pkg/assistant"
	"github.com/Mindburn-Labs/sdnguard/pkg/catalog"
	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

type chatFunc func(context.Context, assistant.ChatRequest) assistant.ChatResponse

func (f chatFunc) Chat(ctx context.Context, req assistant.ChatRequest) assistant.ChatResponse {
	return f(ctx, req)
}

type specList []catalog.Spec

func (s specList) Specs() []catalog.Spec { return s }

func newServer(t *testing.T, chat chatFunc) *httptest.Server {
	t.Helper()
	specs := specList{{
		Name:        catalog.ActionCheckIPReputation,
		Description: "Look up an address",
		Params:      []catalog.Param{{Name: "ip_address", Type: catalog.TypeString, Required: true}},
	}}
	srv := httptest.NewServer(api.NewServer(chat, specs, api.WithCORSOrigin("https://console.example")).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChat_OK(t *testing.T) {
	srv := newServer(t, func(_ context.Context, req assistant.ChatRequest) assistant.ChatResponse {
		return assistant.ChatResponse{Response: "echo: " + req.Message, SessionID: req.SessionID}
	})

	resp := post(t, srv.URL, `{"message":"hi","session_id":"ops"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(api.RequestIDHeader))

	var body api.ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, api.ChatResponse{Response: "echo: hi", SessionID: "ops"}, body)
}

func TestChat_EmptyMessageIsBadRequest(t *testing.T) {
	srv := newServer(t, func(_ context.Context, req assistant.ChatRequest) assistant.ChatResponse {
		return assistant.ChatResponse{
			SessionID: "default",
			Error:     faults.New(faults.KindArgumentInvalid, "chat", "No message provided"),
		}
	})

	resp := post(t, srv.URL, `{"message":"   "}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	var problem api.ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "No message provided", problem.Detail)
}

func TestChat_MalformedBody(t *testing.T) {
	called := false
	srv := newServer(t, func(context.Context, assistant.ChatRequest) assistant.ChatResponse {
		called = true
		return assistant.ChatResponse{}
	})

	resp := post(t, srv.URL, `{"message":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, called)
}

func TestChat_BodyTooLarge(t *testing.T) {
	srv := newServer(t, func(context.Context, assistant.ChatRequest) assistant.ChatResponse {
		return assistant.ChatResponse{}
	})

	big := `{"message":"` + strings.Repeat("a", api.MaxBodyBytes+1) + `"}`
	resp := post(t, srv.URL, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestChat_TurnFailures(t *testing.T) {
	cases := []struct {
		name   string
		fault  *faults.Error
		status int
	}{
		{"timeout", faults.New(faults.KindTransportTimeout, "turn", "turn timed out"), http.StatusGatewayTimeout},
		{"budget", faults.New(faults.KindTurnBudgetExceeded, "turn", "turn limit exceeded"), http.StatusInternalServerError},
		{"unknown", faults.New(faults.KindUnknown, "engine", "reasoning engine failure"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, func(_ context.Context, req assistant.ChatRequest) assistant.ChatResponse {
				return assistant.ChatResponse{SessionID: "s1", Error: tc.fault}
			})

			resp := post(t, srv.URL, `{"message":"go","session_id":"s1"}`)
			require.Equal(t, tc.status, resp.StatusCode)

			var body api.ChatError
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "s1", body.SessionID)
			assert.Equal(t, tc.fault.Kind, body.Error.Kind)
			assert.Equal(t, tc.fault.Message, body.Error.Message)
		})
	}
}

func TestChat_MethodNotAllowed(t *testing.T) {
	srv := newServer(t, nil)

	resp, err := http.Get(srv.URL + "/chat")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func TestHealth(t *testing.T) {
	srv := newServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))
}

func TestHealth_Version(t *testing.T) {
	srv := httptest.NewServer(api.NewServer(nil, specList{}, api.WithVersion("1.4.0")).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok","version":"1.4.0"}`, string(raw))
}

func TestActions(t *testing.T) {
	srv := newServer(t, nil)

	resp, err := http.Get(srv.URL + "/actions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Actions []struct {
			Name      string         `json:"name"`
			Signature string         `json:"signature"`
			Schema    map[string]any `json:"schema"`
		} `json:"actions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Actions, 1)
	assert.Equal(t, catalog.ActionCheckIPReputation, body.Actions[0].Name)
	assert.Contains(t, body.Actions[0].Signature, "ip_address")
	assert.Equal(t, "object", body.Actions[0].Schema["type"])
}

func TestChat_PanicIsInternalError(t *testing.T) {
	srv := newServer(t, func(context.Context, assistant.ChatRequest) assistant.ChatResponse {
		panic("session map corrupted")
	})

	resp := post(t, srv.URL, `{"message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	var problem api.ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "/chat", problem.Instance)
	assert.Equal(t, resp.Header.Get(api.RequestIDHeader), problem.TraceID)
	assert.NotContains(t, problem.Detail, "session map corrupted")
}

func TestNotFound(t *testing.T) {
	srv := newServer(t, nil)

	resp, err := http.Get(srv.URL + "/nowhere")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://console.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://console.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(api.RequestIDHeader, "trace-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "trace-123", resp.Header.Get(api.RequestIDHeader))
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- api.ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), time.Second)
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
