package audit

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() Entry {
	e := Entry{
		ID:           "0b9f7c1e-5d0e-4b7a-9a55-3f1f2f8e2d11",
		Sequence:     7,
		Timestamp:    time.Date(2026, 10, 18, 9, 30, 0, 250000000, time.UTC),
		Session:      "ops",
		Action:       "install_firewall_rule",
		ArgsHash:     "sha256:args",
		Outcome:      OutcomeSuccess,
		PreviousHash: "sha256:prev",
	}
	e.Hash, _ = entryHash(e)
	return e
}

func TestSQLSink_WritePostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	e := sampleEntry()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")+`.*VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10\)`).
		WithArgs(int64(7), e.ID, "2026-10-18T09:30:00.25Z", "ops", "install_firewall_rule",
			"sha256:args", OutcomeSuccess, "", "sha256:prev", e.Hash).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewSQLSink(db, Postgres).Write(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_WriteSQLite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`VALUES \(\?, \?, \?, \?, \?, \?, \?, \?, \?, \?\)`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewSQLSink(db, SQLite).Write(context.Background(), sampleEntry()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_Init(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_entries").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewSQLSink(db, Postgres).Init(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_Head(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := NewSQLSink(db, Postgres)

	mock.ExpectQuery("SELECT sequence, hash FROM audit_entries").
		WillReturnRows(sqlmock.NewRows([]string{"sequence", "hash"}))
	seq, hash, err := s.Head(context.Background())
	require.NoError(t, err)
	assert.Zero(t, seq)
	assert.Equal(t, Genesis, hash)

	mock.ExpectQuery("SELECT sequence, hash FROM audit_entries").
		WillReturnRows(sqlmock.NewRows([]string{"sequence", "hash"}).AddRow(12, "sha256:head"))
	seq, hash, err = s.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12), seq)
	assert.Equal(t, "sha256:head", hash)
}

func TestSQLSink_EntriesVerify(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	e := sampleEntry()
	cols := []string{"sequence", "id", "ts", "session", "action", "args_hash", "outcome", "fault_kind", "previous_hash", "hash"}
	mock.ExpectQuery("SELECT sequence, id, ts").WillReturnRows(sqlmock.NewRows(cols).
		AddRow(7, e.ID, "2026-10-18T09:30:00.25Z", e.Session, e.Action, e.ArgsHash, e.Outcome, "", e.PreviousHash, e.Hash))

	got, err := NewSQLSink(db, Postgres).Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, e.Timestamp.Equal(got[0].Timestamp))
	assert.NoError(t, VerifyChain(got, "sha256:prev"))
}

func TestSQLSink_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenSQL(ctx, "", t.TempDir()+"/audit.db")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	mem := &memSink{}
	l := NewLog(sink, mem)
	for _, action := range []string{"get_network_status", "check_ip_reputation"} {
		_, err := l.Append(ctx, "ops", okResult(action, map[string]any{"k": "v"}))
		require.NoError(t, err)
	}

	stored, err := sink.Entries(ctx)
	require.NoError(t, err)
	written := mem.snapshot()
	require.Len(t, stored, len(written))
	for i := range written {
		assert.Equal(t, written[i].Hash, stored[i].Hash)
		assert.True(t, written[i].Timestamp.Equal(stored[i].Timestamp))
	}
	require.NoError(t, VerifyChain(stored, Genesis))

	seq, head, err := sink.Head(ctx)
	require.NoError(t, err)
	wantSeq, wantHead := l.Head()
	assert.Equal(t, wantSeq, seq)
	assert.Equal(t, wantHead, head)
}
