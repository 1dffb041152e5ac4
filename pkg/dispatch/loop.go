package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/sdnguard/pkg/catalog"
	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

// DefaultMaxActions bounds action executions per turn when Loop.MaxActions
// is unset.
const DefaultMaxActions = 12

var (
	// ErrTurnBudgetExceeded matches any error returned when a turn runs out
	// of action executions.
	ErrTurnBudgetExceeded = faults.New(faults.KindTurnBudgetExceeded, "", "turn limit exceeded")
	// ErrEngine is wrapped by every reasoning-engine failure.
	ErrEngine = errors.New("reasoning engine failure")
)

// Engine decides the next step of a turn.
type Engine interface {
	Decide(ctx context.Context, t Transcript, specs []catalog.Spec) (Decision, error)
}

// Invoker is the catalog surface the loop needs.
type Invoker interface {
	Specs() []catalog.Spec
	Invoke(ctx context.Context, inv catalog.Invocation) catalog.Result
}

// Recorder receives every executed action. It must not block for long and
// has no way to fail the turn.
type Recorder interface {
	Record(ctx context.Context, session string, res catalog.Result)
}

// Telemetry wraps turns and actions in spans and RED metrics.
type Telemetry interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
}

// Loop runs turns. The zero values of MaxActions and Charter select
// DefaultMaxActions and the built-in Charter. Recorder, Telemetry and
// Logger are optional.
type Loop struct {
	Engine     Engine
	Catalog    Invoker
	MaxActions int
	Charter    string
	Recorder   Recorder
	Telemetry  Telemetry
	Logger     *slog.Logger
}

// Outcome is the result of one turn. Turns holds the segment this turn added
// to the transcript: the operator utterance, one entry per executed action
// and, on success, the assistant answer.
type Outcome struct {
	Answer  string
	Turns   []Turn
	Results []catalog.Result
	Rounds  int
}

// Run executes one turn over history. The session ID, if any, is taken from
// ctx (see catalog.ContextWithSession). The returned Outcome is never nil,
// so partial progress is visible even when err is set.
func (l *Loop) Run(ctx context.Context, history []Turn, utterance string) (out *Outcome, err error) {
	out = &Outcome{Turns: []Turn{Operator(utterance)}}
	session := catalog.SessionFromContext(ctx)
	if l.Telemetry != nil {
		var done func(error)
		ctx, done = l.Telemetry.TrackOperation(ctx, "turn", attribute.String("session", session))
		defer func() { done(err) }()
	}

	limit := l.MaxActions
	if limit <= 0 {
		limit = DefaultMaxActions
	}
	charter := l.Charter
	if charter == "" {
		charter = Charter
	}
	specs := l.Catalog.Specs()
	logger := l.logger()

	for {
		if ctx.Err() != nil {
			return out, interrupted(ctx.Err())
		}
		out.Rounds++
		d, err := l.Engine.Decide(ctx, l.transcript(charter, history, out.Turns), specs)
		if err != nil {
			if ctx.Err() != nil {
				return out, interrupted(ctx.Err())
			}
			logger.ErrorContext(ctx, "engine failed", "session", session, "round", out.Rounds, "error", err)
			return out, engineFailure(err)
		}
		if d.empty() {
			return out, engineFailure(errors.New("decision carries neither an answer nor actions"))
		}
		if len(d.Invocations) == 0 {
			out.Answer = d.Answer
			out.Turns = append(out.Turns, Assistant(d.Answer))
			logger.InfoContext(ctx, "turn complete",
				"session", session, "rounds", out.Rounds, "actions", len(out.Results))
			return out, nil
		}

		for _, inv := range d.Invocations {
			if len(out.Results) >= limit {
				logger.WarnContext(ctx, "turn budget exhausted", "session", session, "limit", limit)
				return out, &faults.Error{
					Kind:    faults.KindTurnBudgetExceeded,
					Op:      "turn",
					Message: fmt.Sprintf("turn limit exceeded: more than %d actions requested", limit),
				}
			}
			if ctx.Err() != nil {
				return out, interrupted(ctx.Err())
			}
			if inv.ID == "" {
				inv.ID = fmt.Sprintf("call_%d", len(out.Results)+1)
			}
			res := l.invoke(ctx, session, inv)
			out.Results = append(out.Results, res)
			out.Turns = append(out.Turns, Action(inv, res))
		}
	}
}

func (l *Loop) invoke(ctx context.Context, session string, inv catalog.Invocation) catalog.Result {
	actx, done := ctx, func(error) {}
	if l.Telemetry != nil {
		actx, done = l.Telemetry.TrackOperation(ctx, "action."+inv.Name, attribute.String("action", inv.Name))
	}
	res := l.Catalog.Invoke(actx, inv)
	if res.Fault != nil {
		done(res.Fault)
	} else {
		done(nil)
	}
	if l.Recorder != nil {
		l.Recorder.Record(ctx, session, res)
	}
	return res
}

func (l *Loop) transcript(charter string, history, current []Turn) Transcript {
	turns := make([]Turn, 0, len(history)+len(current))
	turns = append(turns, history...)
	turns = append(turns, current...)
	return Transcript{Charter: charter, Turns: turns}
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default().With("component", "dispatch")
}

func engineFailure(err error) error {
	return &faults.Error{Kind: faults.KindUnknown, Op: "engine", Err: fmt.Errorf("%w: %w", ErrEngine, err)}
}

func interrupted(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &faults.Error{Kind: faults.KindTransportTimeout, Op: "turn", Message: "turn timed out before an answer was produced", Err: err}
	}
	return faults.Wrap(faults.KindUnknown, "turn", err)
}
