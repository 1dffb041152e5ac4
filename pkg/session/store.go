// Package session keeps conversation history between turns.
package session

import (
	"context"

	"github.com/Mindburn-Labs/sdnguard/pkg/dispatch"
)

// DefaultID is used when a caller does not name a session.
const DefaultID = "default"

// DefaultMaxTurns caps stored history per session.
const DefaultMaxTurns = 50

// Store persists the operator and assistant utterances of each session.
// Get returns nil for an unknown session.
type Store interface {
	Get(ctx context.Context, id string) ([]dispatch.Turn, error)
	Put(ctx context.Context, id string, turns []dispatch.Turn) error
}

// trim keeps the utterances of turns and at most the last limit of them.
// Trimmed history always opens with an operator turn, so an odd limit
// keeps one utterance fewer.
func trim(turns []dispatch.Turn, limit int) []dispatch.Turn {
	kept := dispatch.Utterances(turns)
	if limit > 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
		for len(kept) > 0 && kept[0].Kind != dispatch.KindOperator {
			kept = kept[1:]
		}
	}
	return kept
}
