// Package audit keeps a tamper-evident record of every executed action.
// Entries form a hash chain: each entry's hash covers its predecessor's, so
// editing or dropping an entry breaks verification of everything after it.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// Genesis is the PreviousHash of the first entry.
const Genesis = "genesis"

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ErrChainBroken is wrapped by every verification failure.
var ErrChainBroken = errors.New("audit hash chain is broken")

// Entry records one executed action. Arguments are kept only as a hash.
type Entry struct {
	ID           string    `json:"id"`
	Sequence     uint64    `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
	Session      string    `json:"session"`
	Action       string    `json:"action"`
	ArgsHash     string    `json:"args_hash"`
	Outcome      string    `json:"outcome"`
	FaultKind    string    `json:"fault_kind,omitempty"`
	PreviousHash string    `json:"previous_hash"`
	Hash         string    `json:"hash"`
}

func computeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// canonicalHash hashes the RFC 8785 canonical form of v, so map ordering
// and number formatting do not change the result.
func canonicalHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	return computeHash(canon), nil
}

// ArgsHash hashes an argument object. Nil and empty arguments hash alike.
func ArgsHash(args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	return canonicalHash(args)
}

func entryHash(e Entry) (string, error) {
	return canonicalHash(struct {
		ID           string `json:"id"`
		Sequence     uint64 `json:"sequence"`
		Timestamp    string `json:"timestamp"`
		Session      string `json:"session"`
		Action       string `json:"action"`
		ArgsHash     string `json:"args_hash"`
		Outcome      string `json:"outcome"`
		FaultKind    string `json:"fault_kind"`
		PreviousHash string `json:"previous_hash"`
	}{
		ID:           e.ID,
		Sequence:     e.Sequence,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		Session:      e.Session,
		Action:       e.Action,
		ArgsHash:     e.ArgsHash,
		Outcome:      e.Outcome,
		FaultKind:    e.FaultKind,
		PreviousHash: e.PreviousHash,
	})
}

// VerifyChain checks that entries form an unbroken chain starting at
// Genesis, or at entries[0].PreviousHash when from is not Genesis.
func VerifyChain(entries []Entry, from string) error {
	prev := from
	for i, e := range entries {
		if e.PreviousHash != prev {
			return fmt.Errorf("%w: entry %d (seq %d) links to %s, want %s",
				ErrChainBroken, i, e.Sequence, e.PreviousHash, prev)
		}
		computed, err := entryHash(e)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %w", ErrChainBroken, i, err)
		}
		if computed != e.Hash {
			return fmt.Errorf("%w: entry %d (seq %d) hash mismatch", ErrChainBroken, i, e.Sequence)
		}
		prev = e.Hash
	}
	return nil
}
