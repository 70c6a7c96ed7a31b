package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-arb-go/engine"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id     TEXT    NOT NULL,
	cycle          INTEGER NOT NULL,
	size           INTEGER NOT NULL,
	predicted_gain INTEGER NOT NULL,
	status         TEXT    NOT NULL,
	signature      TEXT    NOT NULL DEFAULT '',
	error          TEXT    NOT NULL DEFAULT '',
	at_unix_ns     INTEGER NOT NULL
)`

// SQLiteJournal stores results in a local SQLite file.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteJournal, error) {
	if path == "" {
		return nil, errors.New("journal: sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Record inserts one result. Amounts above the int64 range are rejected
// since sqlite integers are signed.
func (j *SQLiteJournal) Record(ctx context.Context, r engine.ExecutionResult) error {
	if r.Size > 1<<63-1 || r.PredictedGain > 1<<63-1 {
		return fmt.Errorf("journal: amounts of request %s overflow int64", r.RequestID)
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO executions (request_id, cycle, size, predicted_gain, status, signature, error, at_unix_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.Cycle, int64(r.Size), int64(r.PredictedGain), string(r.Status), r.Signature, r.Error, r.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", r.RequestID, err)
	}
	return nil
}

// Recent returns up to n results, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, n int) ([]engine.ExecutionResult, error) {
	if n <= 0 {
		return []engine.ExecutionResult{}, nil
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT request_id, cycle, size, predicted_gain, status, signature, error, at_unix_ns
		FROM executions
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	results := make([]engine.ExecutionResult, 0, n)
	for rows.Next() {
		var (
			r           engine.ExecutionResult
			size, gain  int64
			status      string
			atUnixNanos int64
		)
		if err := rows.Scan(&r.RequestID, &r.Cycle, &size, &gain, &status, &r.Signature, &r.Error, &atUnixNanos); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		r.Size = uint64(size)
		r.PredictedGain = uint64(gain)
		r.Status = engine.ExecutionStatus(status)
		r.At = time.Unix(0, atUnixNanos)
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
