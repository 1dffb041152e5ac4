package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/sdnguard/pkg/dispatch"
)

type entry struct {
	turns   []dispatch.Turn
	touched time.Time
}

// MemoryStore keeps sessions in process memory. Sessions idle for longer
// than the idle TTL are evicted by a background janitor; Close stops it.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*entry
	maxTurns int
	idleTTL  time.Duration
	clock    func() time.Time
	logger   *slog.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxTurns caps the stored history. Zero or less keeps everything.
func WithMaxTurns(n int) MemoryOption {
	return func(s *MemoryStore) { s.maxTurns = n }
}

// WithIdleTTL evicts sessions not touched for d. Zero disables eviction.
func WithIdleTTL(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.idleTTL = d }
}

// WithClock overrides time.Now for tests.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.clock = clock }
}

// NewMemoryStore creates a store and starts its janitor when an idle TTL is
// set.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*entry),
		maxTurns: DefaultMaxTurns,
		clock:    time.Now,
		logger:   slog.Default().With("component", "session"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.idleTTL > 0 {
		go s.janitor(sweepInterval(s.idleTTL))
	} else {
		close(s.done)
	}
	return s
}

func sweepInterval(ttl time.Duration) time.Duration {
	iv := ttl / 2
	if iv > time.Minute {
		iv = time.Minute
	}
	if iv < 10*time.Millisecond {
		iv = 10 * time.Millisecond
	}
	return iv
}

func (s *MemoryStore) janitor(every time.Duration) {
	defer close(s.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("evicted idle sessions", "count", n)
			}
		}
	}
}

func (s *MemoryStore) expired(e *entry, now time.Time) bool {
	return s.idleTTL > 0 && now.Sub(e.touched) > s.idleTTL
}

func (s *MemoryStore) Get(_ context.Context, id string) ([]dispatch.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	now := s.clock()
	if s.expired(e, now) {
		delete(s.sessions, id)
		return nil, nil
	}
	e.touched = now
	out := make([]dispatch.Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, id string, turns []dispatch.Turn) error {
	kept := trim(turns, s.maxTurns)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &entry{turns: kept, touched: s.clock()}
	return nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts idle sessions now and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	n := 0
	for id, e := range s.sessions {
		if s.expired(e, now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Close stops the janitor. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
