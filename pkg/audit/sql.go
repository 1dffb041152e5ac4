package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Dialect selects placeholder syntax.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	sequence BIGINT PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	ts TEXT NOT NULL,
	session TEXT NOT NULL,
	action TEXT NOT NULL,
	args_hash TEXT NOT NULL,
	outcome TEXT NOT NULL,
	fault_kind TEXT NOT NULL DEFAULT '',
	previous_hash TEXT NOT NULL,
	hash TEXT NOT NULL
);`

// SQLSink persists entries in the audit_entries table.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLSink wraps an open database.
func NewSQLSink(db *sql.DB, dialect Dialect) *SQLSink {
	return &SQLSink{db: db, dialect: dialect}
}

// OpenSQL opens a Postgres database when databaseURL is set, otherwise a
// SQLite file at sqlitePath, and creates the table.
func OpenSQL(ctx context.Context, databaseURL, sqlitePath string) (*SQLSink, error) {
	driver, dsn, dialect := "postgres", databaseURL, Postgres
	if databaseURL == "" {
		driver, dsn, dialect = "sqlite", sqlitePath, SQLite
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s audit database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s audit database: %w", driver, err)
	}
	s := NewSQLSink(db, dialect)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind rewrites $n placeholders for SQLite.
func (s *SQLSink) rebind(query string) string {
	if s.dialect != SQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

// Init creates the table if needed.
func (s *SQLSink) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("create audit_entries: %w", err)
	}
	return nil
}

func (s *SQLSink) Write(ctx context.Context, e Entry) error {
	query := s.rebind(`
		INSERT INTO audit_entries (sequence, id, ts, session, action, args_hash, outcome, fault_kind, previous_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
	_, err := s.db.ExecContext(ctx, query,
		int64(e.Sequence), e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Session, e.Action,
		e.ArgsHash, e.Outcome, e.FaultKind, e.PreviousHash, e.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry %d: %w", e.Sequence, err)
	}
	return nil
}

// Head returns the latest persisted sequence and hash, or (0, Genesis) for
// an empty table.
func (s *SQLSink) Head(ctx context.Context) (uint64, string, error) {
	var seq int64
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT sequence, hash FROM audit_entries ORDER BY sequence DESC LIMIT 1`).Scan(&seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, Genesis, nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("read audit head: %w", err)
	}
	return uint64(seq), hash, nil
}

// Entries returns all persisted entries in sequence order.
func (s *SQLSink) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, id, ts, session, action, args_hash, outcome, fault_kind, previous_hash, hash
		FROM audit_entries ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		var seq int64
		var ts string
		if err := rows.Scan(&seq, &e.ID, &ts, &e.Session, &e.Action, &e.ArgsHash,
			&e.Outcome, &e.FaultKind, &e.PreviousHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Sequence = uint64(seq)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("audit entry %d has bad timestamp %q: %w", seq, ts, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLSink) Close() error {
	return s.db.Close()
}
