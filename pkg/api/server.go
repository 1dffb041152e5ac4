package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/sdnguard/pkg/assistant"
	"github.com/Mindburn-Labs/sdnguard/pkg/catalog"
	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Chatter runs one conversational turn.
type Chatter interface {
	Chat(ctx context.Context, req assistant.ChatRequest) assistant.ChatResponse
}

// SpecLister lists the available actions.
type SpecLister interface {
	Specs() []catalog.Spec
}

// Server serves the chat API.
type Server struct {
	chat    Chatter
	actions SpecLister
	origin  string
	version string
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigin sets the allowed browser origin. Empty disables CORS.
func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.origin = origin }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithLogger sets the access logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func NewServer(chat Chatter, actions SpecLister, opts ...Option) *Server {
	s := &Server{
		chat:    chat,
		actions: actions,
		origin:  "*",
		logger:  slog.Default().With("component", "api"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ChatResponse is the success body of POST /chat.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// ChatError is the body of a failed turn.
type ChatError struct {
	SessionID string    `json:"session_id"`
	Error     ErrorBody `json:"error"`
}

type ErrorBody struct {
	Kind    faults.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/actions", s.handleActions)
	mux.HandleFunc("/", WriteNotFound)

	var h http.Handler = mux
	h = CORS(s.origin, h)
	h = AccessLog(s.logger, h)
	return RequestID(h)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var req assistant.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorR(w, r, http.StatusRequestEntityTooLarge, "Payload Too Large", "Request body exceeds 1 MiB")
			return
		}
		WriteBadRequest(w, r, "Invalid request body: expected JSON {\"message\": ..., \"session_id\": ...}")
		return
	}

	resp := s.chat.Chat(r.Context(), req)
	if fe := resp.Error; fe != nil {
		if fe.Kind == faults.KindArgumentInvalid {
			WriteBadRequest(w, r, fe.Detail())
			return
		}
		writeJSON(w, statusForKind(fe.Kind), ChatError{
			SessionID: resp.SessionID,
			Error:     ErrorBody{Kind: fe.Kind, Message: fe.Detail()},
		})
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Response: resp.Response, SessionID: resp.SessionID})
}

func statusForKind(k faults.Kind) int {
	if k == faults.KindTransportTimeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		WriteMethodNotAllowed(w, r, "GET, HEAD")
		return
	}
	body := map[string]string{"status": "ok"}
	if s.version != "" {
		body["version"] = s.version
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	type action struct {
		catalog.Spec
		Signature string         `json:"signature"`
		Schema    map[string]any `json:"schema"`
	}
	specs := s.actions.Specs()
	out := make([]action, 0, len(specs))
	for _, spec := range specs {
		out = append(out, action{Spec: spec, Signature: spec.Signature(), Schema: spec.Schema()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully within grace.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 30 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
