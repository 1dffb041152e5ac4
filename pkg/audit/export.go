package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Export writes entries as JSON Lines, one entry per line.
func Export(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("export entry %d: %w", e.Sequence, err)
		}
	}
	return nil
}

// Import reads an Export stream. Blank lines are skipped.
func Import(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var out []Entry
	for line := 1; sc.Scan(); line++ {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("import line %d: %w", line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
