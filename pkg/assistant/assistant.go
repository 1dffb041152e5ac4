// Package assistant is the conversational entry point shared by the HTTP
// front end and the CLI. It owns session history: it loads it, runs one
// turn under a deadline and stores the turn's utterances on success.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/sdnguard/pkg/catalog"
	"github.com/Mindburn-Labs/sdnguard/pkg/dispatch"
	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
	"github.com/Mindburn-Labs/sdnguard/pkg/session"
)

// DefaultTurnTimeout bounds one turn when no timeout is configured.
const DefaultTurnTimeout = 45 * time.Second

// Runner executes one turn.
type Runner interface {
	Run(ctx context.Context, history []dispatch.Turn, utterance string) (*dispatch.Outcome, error)
}

type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse carries either the answer or a classified Error.
type ChatResponse struct {
	Response  string        `json:"response,omitempty"`
	SessionID string        `json:"session_id"`
	Error     *faults.Error `json:"-"`
}

// Service serialises turns per session.
type Service struct {
	runner  Runner
	store   session.Store
	locks   session.Locks
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTurnTimeout bounds each turn.
func WithTurnTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func New(runner Runner, store session.Store, opts ...Option) *Service {
	s := &Service{
		runner:  runner,
		store:   store,
		timeout: DefaultTurnTimeout,
		logger:  slog.Default().With("component", "assistant"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Chat runs one turn. It never panics and never returns a Go error; failures
// are reported in ChatResponse.Error. A failed turn leaves the session
// unchanged unless actions already ran, in which case their reports are
// appended to the error and stored as an assistant note.
func (s *Service) Chat(ctx context.Context, req ChatRequest) ChatResponse {
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = session.DefaultID
	}
	resp := ChatResponse{SessionID: id}

	msg := strings.TrimSpace(norm.NFC.String(req.Message))
	if msg == "" {
		resp.Error = faults.New(faults.KindArgumentInvalid, "chat", "No message provided")
		return resp
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	history, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "session load failed", "session", id, "error", err)
		resp.Error = &faults.Error{Kind: faults.KindUnknown, Op: "session", Message: "session history unavailable", Err: err}
		return resp
	}

	turnCtx, cancel := context.WithTimeout(catalog.ContextWithSession(ctx, id), s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.run(turnCtx, history, msg)
	if err != nil {
		fe, ok := faults.As(err)
		if !ok {
			fe = &faults.Error{Kind: faults.KindUnknown, Op: "turn", Err: err}
		}
		s.logger.WarnContext(ctx, "turn failed", "session", id, "kind", fe.Kind, "error", fe.Error())
		if out != nil && len(out.Results) > 0 {
			note := partialNote(out.Results)
			s.logger.WarnContext(ctx, "actions ran before the turn failed", "session", id, "actions", len(out.Results))
			fe = &faults.Error{Kind: fe.Kind, Op: fe.Op, Message: fe.Detail() + "\n\n" + note, Err: fe}
			noted := make([]dispatch.Turn, 0, len(history)+2)
			noted = append(noted, history...)
			s.save(ctx, id, append(noted, dispatch.Operator(msg), dispatch.Assistant(note)))
		}
		resp.Error = fe
		return resp
	}

	updated := make([]dispatch.Turn, 0, len(history)+len(out.Turns))
	updated = append(updated, history...)
	updated = append(updated, out.Turns...)
	s.save(ctx, id, updated)

	s.logger.InfoContext(ctx, "turn answered",
		"session", id, "actions", len(out.Results), "duration", time.Since(start))
	resp.Response = out.Answer
	return resp
}

func (s *Service) save(ctx context.Context, id string, turns []dispatch.Turn) {
	if err := s.store.Put(context.WithoutCancel(ctx), id, turns); err != nil {
		s.logger.ErrorContext(ctx, "session save failed", "session", id, "error", err)
	}
}

// partialNote lists what executed before a turn failed. A rule install may
// have reached the controller even when its result is a timeout.
func partialNote(results []catalog.Result) string {
	var b strings.Builder
	b.WriteString("Actions executed before the turn failed:")
	installed := false
	for _, r := range results {
		status := "ok"
		if !r.OK() {
			status = string(r.FaultKind())
		}
		fmt.Fprintf(&b, "\n- %s (%s): %s", r.Action, status, firstLine(r.Report))
		if r.Action == catalog.ActionInstallFirewallRule {
			installed = true
		}
	}
	if installed {
		fmt.Fprintf(&b, "\n⚠️ %s ran before the turn failed; verify with %s before retrying.",
			catalog.ActionInstallFirewallRule, catalog.ActionGetFirewallRules)
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (s *Service) run(ctx context.Context, history []dispatch.Turn, msg string) (out *dispatch.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "turn panicked", "panic", r)
			out, err = nil, &faults.Error{Kind: faults.KindUnknown, Op: "turn", Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	return s.runner.Run(ctx, history, msg)
}
