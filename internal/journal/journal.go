// Package journal keeps a local SQLite record of every dispatched batch.
//
// The journal is a Sink: wired next to the remote sinks it receives the same
// batches, so the diff history of a session can be listed and replayed
// offline even when the upload failed.
//
// Architecture:
//   - Database file: .diffsync/journal.db
//   - WAL mode: the CLI can read while a watcher is writing
//   - Schema: batches, records tables
//
// Replay applies the journaled patches of one document in dispatch order, which
// reconstructs its text at any point from a known starting text.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/interviewkit/diffsync/internal/patch"
	"github.com/interviewkit/diffsync/internal/sink"
)

// ErrNotFound is returned when a batch or document has no journal entries.
var ErrNotFound = errors.New("not found in journal")

// Journal wraps the SQLite connection holding the batch history.
type Journal struct {
	conn *sql.DB
	path string
}

// Open creates or opens the journal database at path.
//
// The caller MUST call Close() when done.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	j := &Journal{conn: conn, path: path}

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
		{"PRAGMA foreign_keys=ON", "enable foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			_ = j.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Close checkpoints the WAL and closes the connection.
func (j *Journal) Close() error {
	if j.conn == nil {
		return nil
	}

	if _, err := j.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint journal WAL: %v\n", err)
	}

	if err := j.conn.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}

	j.conn = nil
	return nil
}

// InitSchema creates the journal tables if they don't exist. It is idempotent.
func (j *Journal) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		record_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		batch_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		document_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		patch TEXT NOT NULL,
		lines_added INTEGER NOT NULL DEFAULT 0,
		lines_removed INTEGER NOT NULL DEFAULT 0,
		chars_added INTEGER NOT NULL DEFAULT 0,
		chars_removed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (batch_id, position),
		FOREIGN KEY (batch_id) REFERENCES batches(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at);
	CREATE INDEX IF NOT EXISTS idx_records_document ON records(document_id);
	`

	if _, err := j.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return nil
}

// Send implements sink.Sink. The batch and its records are written in one
// transaction; a batch that is already journaled is left as is.
func (j *Journal) Send(ctx context.Context, b *sink.Batch) error {
	tx, err := j.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO batches (id, session_id, created_at, record_count)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`, b.ID, b.SessionID, formatTime(b.CreatedAt), b.Len())
	if err != nil {
		return fmt.Errorf("failed to insert batch %s: %w", b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO records (
		batch_id, position, document_id, display_name, patch,
		lines_added, lines_removed, chars_added, chars_removed
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range b.Records {
		_, err := stmt.ExecContext(ctx,
			b.ID, i, r.DocumentID, r.DisplayName, r.Patch,
			r.Stats.LinesAdded, r.Stats.LinesRemoved,
			r.Stats.CharsAdded, r.Stats.CharsRemoved,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.DocumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// BatchSummary is one row of the batch history.
type BatchSummary struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	RecordCount int       `json:"record_count"`
}

// Filter configures ListBatches.
type Filter struct {
	// Since keeps batches created at or after this time (zero = all)
	Since time.Time
	// DocumentID keeps batches containing a record for this document (empty = all)
	DocumentID string
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// ListBatches returns journaled batches matching filter, newest first.
func (j *Journal) ListBatches(ctx context.Context, filter Filter) ([]BatchSummary, error) {
	var conditions []string
	var args []interface{}

	if !filter.Since.IsZero() {
		conditions = append(conditions, "b.created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}

	if filter.DocumentID != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM records r WHERE r.batch_id = b.id AND r.document_id = ?)")
		args = append(args, filter.DocumentID)
	}

	query := `SELECT b.id, b.session_id, b.created_at, b.record_count FROM batches b`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY b.id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		var s BatchSummary
		var createdAt string
		if err := rows.Scan(&s.ID, &s.SessionID, &createdAt, &s.RecordCount); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		s.CreatedAt = parseTime(createdAt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return out, nil
}

// Records returns the records of one batch in their original order.
// It returns ErrNotFound when the batch is unknown.
func (j *Journal) Records(ctx context.Context, batchID string) ([]sink.Record, error) {
	var exists int
	err := j.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches WHERE id = ?`, batchID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up batch %s: %w", batchID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}

	rows, err := j.conn.QueryContext(ctx, `
	SELECT document_id, display_name, patch,
	       lines_added, lines_removed, chars_added, chars_removed
	FROM records
	WHERE batch_id = ?
	ORDER BY position ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []sink.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}

// Entry is a journaled record together with the batch that carried it.
type Entry struct {
	BatchID   string      `json:"batch_id"`
	CreatedAt time.Time   `json:"created_at"`
	Record    sink.Record `json:"record"`
}

// History returns every journaled record of a document in collection order.
// Batch IDs are ULIDs, so ordering by id is correct even when overlapping
// dispatches reached the journal out of order.
func (j *Journal) History(ctx context.Context, documentID string) ([]Entry, error) {
	rows, err := j.conn.QueryContext(ctx, `
	SELECT b.id, b.created_at,
	       r.document_id, r.display_name, r.patch,
	       r.lines_added, r.lines_removed, r.chars_added, r.chars_removed
	FROM records r
	JOIN batches b ON b.id = r.batch_id
	WHERE r.document_id = ?
	ORDER BY b.id ASC, r.position ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		err := rows.Scan(
			&e.BatchID, &createdAt,
			&e.Record.DocumentID, &e.Record.DisplayName, &e.Record.Patch,
			&e.Record.Stats.LinesAdded, &e.Record.Stats.LinesRemoved,
			&e.Record.Stats.CharsAdded, &e.Record.Stats.CharsRemoved,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return out, nil
}

// Counts summarizes the journal contents.
type Counts struct {
	Batches   int `json:"batches"`
	Records   int `json:"records"`
	Documents int `json:"documents"`
}

// Counts returns the number of batches, records and distinct documents.
func (j *Journal) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := j.conn.QueryRowContext(ctx, `
	SELECT
		(SELECT COUNT(*) FROM batches),
		(SELECT COUNT(*) FROM records),
		(SELECT COUNT(DISTINCT document_id) FROM records)
	`).Scan(&c.Batches, &c.Records, &c.Documents)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return c, nil
}

// Replay applies every journaled patch of documentID, in dispatch order, on top
// of base and returns the resulting text. base must be the text the document had
// before its first journaled batch.
func (j *Journal) Replay(ctx context.Context, documentID, base string) (string, error) {
	entries, err := j.History(ctx, documentID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}

	text := base
	for _, e := range entries {
		text, err = patch.Apply(text, e.Record.Patch)
		if err != nil {
			return "", fmt.Errorf("failed to replay batch %s: %w", e.BatchID, err)
		}
	}
	return text, nil
}

func scanRecord(rows *sql.Rows) (sink.Record, error) {
	var r sink.Record
	err := rows.Scan(
		&r.DocumentID, &r.DisplayName, &r.Patch,
		&r.Stats.LinesAdded, &r.Stats.LinesRemoved,
		&r.Stats.CharsAdded, &r.Stats.CharsRemoved,
	)
	if err != nil {
		return sink.Record{}, fmt.Errorf("failed to scan record: %w", err)
	}
	return r, nil
}

// formatTime stores times as UTC RFC3339 with fixed millisecond precision so
// that string comparison orders them.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
