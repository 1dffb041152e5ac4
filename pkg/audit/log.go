package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/sdnguard/pkg/catalog"
)

// Sink receives each entry after it joins the chain.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// SinkTimeout bounds a single sink write.
const SinkTimeout = 2 * time.Second

// Log is an append-only, hash-chained audit log. It holds only the chain
// head; entries live in the sinks.
type Log struct {
	mu       sync.Mutex
	head     string
	sequence uint64

	// writeMu keeps sink writes in chain order without holding mu.
	writeMu sync.Mutex
	sinks   []Sink
	timeout time.Duration
	clock   func() time.Time
	logger  *slog.Logger
}

// NewLog creates an empty log that forwards entries to sinks.
func NewLog(sinks ...Sink) *Log {
	return &Log{
		head:    Genesis,
		sinks:   sinks,
		timeout: SinkTimeout,
		clock:   time.Now,
		logger:  slog.Default().With("component", "audit"),
	}
}

// Resume continues a chain persisted elsewhere: the next entry gets
// sequence+1 and links to head. It must be called before the first Append.
func (l *Log) Resume(sequence uint64, head string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if head == "" {
		head = Genesis
	}
	l.sequence = sequence
	l.head = head
}

// Record implements the dispatch loop's recorder. Failures are logged.
func (l *Log) Record(ctx context.Context, session string, res catalog.Result) {
	if _, err := l.Append(ctx, session, res); err != nil {
		l.logger.ErrorContext(ctx, "audit append failed", "action", res.Action, "error", err)
	}
}

// Append chains an entry for res. Sinks see entries in chain order; a sink
// error is logged and does not fail the append. Each sink write gets its own
// SinkTimeout and survives cancellation of ctx.
func (l *Log) Append(ctx context.Context, session string, res catalog.Result) (Entry, error) {
	argsHash, err := ArgsHash(res.Args)
	if err != nil {
		return Entry{}, fmt.Errorf("hash arguments: %w", err)
	}

	e, err := l.chain(session, res, argsHash)
	if err != nil {
		return Entry{}, err
	}
	defer l.writeMu.Unlock()

	for _, s := range l.sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		err := s.Write(sctx, e)
		cancel()
		if err != nil {
			l.logger.ErrorContext(ctx, "audit sink write failed",
				"sink", fmt.Sprintf("%T", s), "sequence", e.Sequence, "error", err)
		}
	}
	return e, nil
}

// chain links the next entry and returns with writeMu held, so sinks are
// written in sequence order while mu is already free for the next append.
func (l *Log) chain(session string, res catalog.Result, argsHash string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		ID:           uuid.New().String(),
		Sequence:     l.sequence + 1,
		Timestamp:    l.clock().UTC().Truncate(time.Microsecond),
		Session:      session,
		Action:       res.Action,
		ArgsHash:     argsHash,
		Outcome:      OutcomeSuccess,
		PreviousHash: l.head,
	}
	if !res.OK() {
		e.Outcome = OutcomeFailure
		e.FaultKind = string(res.FaultKind())
	}
	var err error
	if e.Hash, err = entryHash(e); err != nil {
		return Entry{}, fmt.Errorf("hash entry: %w", err)
	}
	l.sequence = e.Sequence
	l.head = e.Hash
	l.writeMu.Lock()
	return e, nil
}

// Head returns the latest sequence number and hash.
func (l *Log) Head() (uint64, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sequence, l.head
}
