// Package audit implements an append-only SQLite log of dispatched
// notifications, written best-effort; Recent reads the newest rows
// back, and the admin dashboard does not read this log. It never gates or
// replays a dispatch: the notification engine's own indexes remain
// the sole source of truth for trigger state.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Log is an append-only record of dispatched notifications.
type Log struct {
	db *sql.DB
}

// Open creates (or attaches to) the audit database at dbPath.
func Open(dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return l, nil
}

// Close closes the underlying database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS dispatches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		trigger_name TEXT NOT NULL,
		condition_kind INTEGER NOT NULL,
		client_count INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dispatches_timestamp ON dispatches(timestamp);
	`)
	return err
}

// Entry is one recorded dispatch.
type Entry struct {
	Timestamp     time.Time
	TriggerName   string
	ConditionKind uint8
	ClientCount   int
}

// Record appends one dispatch entry. Failures are the caller's to
// decide whether to log; Record never blocks a live dispatch path on
// disk I/O errors propagating further than this return value.
func (l *Log) Record(e Entry) error {
	_, err := l.db.Exec(
		`INSERT INTO dispatches (timestamp, trigger_name, condition_kind, client_count) VALUES (?, ?, ?, ?)`,
		e.Timestamp.Format(time.RFC3339Nano), e.TriggerName, e.ConditionKind, e.ClientCount,
	)
	return err
}

// Recent returns the most recent n dispatch entries, newest first.
func (l *Log) Recent(n int) ([]Entry, error) {
	rows, err := l.db.Query(
		`SELECT timestamp, trigger_name, condition_kind, client_count FROM dispatches ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var ts string
		var e Entry
		if err := rows.Scan(&ts, &e.TriggerName, &e.ConditionKind, &e.ClientCount); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("audit: parse timestamp %q: %w", ts, err)
		}
		e.Timestamp = parsed
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
