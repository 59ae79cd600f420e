// Package events records pipeline run events to Postgres. The log is
// observational: the pipeline never reads it back to make decisions, and
// every write is best-effort.
package events

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Logger records run events. Implementations must be safe for concurrent use.
type Logger interface {
	LogRunEvent(runID, taskID string, round int, event, stage, detail string) error
	Close() error
}

// RunEvent is one recorded pipeline event.
type RunEvent struct {
	ID        int64
	RunID     string
	TaskID    string
	Round     int
	Event     string
	Stage     string
	Detail    string
	Timestamp time.Time
}

// Nop discards every event. Used when no database is configured.
type Nop struct{}

func (Nop) LogRunEvent(runID, taskID string, round int, event, stage, detail string) error {
	return nil
}

func (Nop) Close() error { return nil }

// DB wraps the Postgres connection.
type DB struct {
	conn *sql.DB
}

// Open connects to Postgres via the pgx stdlib driver.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS run_events (
    id         BIGSERIAL PRIMARY KEY,
    run_id     TEXT NOT NULL,
    task_id    TEXT NOT NULL,
    round      INTEGER NOT NULL,
    event      TEXT NOT NULL,
    stage      TEXT,
    detail     TEXT,
    timestamp  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_run_events_task ON run_events(task_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
`

// Migrate applies the schema.
func (d *DB) Migrate() error {
	if _, err := d.conn.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// LogRunEvent records one pipeline event.
func (d *DB) LogRunEvent(runID, taskID string, round int, event, stage, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (run_id, task_id, round, event, stage, detail) VALUES ($1, $2, $3, $4, $5, $6)`,
		runID, taskID, round, event, stage, detail,
	)
	if err != nil {
		return fmt.Errorf("insert run event: %w", err)
	}
	return nil
}

// RecentRunEvents returns the latest events for a task, newest first.
// Pass "" for taskID to query across all tasks.
func (d *DB) RecentRunEvents(taskID string, limit int) ([]RunEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, run_id, task_id, round, event, COALESCE(stage, ''), COALESCE(detail, ''), timestamp
	          FROM run_events`
	args := []interface{}{}
	if taskID != "" {
		query += ` WHERE task_id = $1`
		args = append(args, taskID)
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT %d`, limit)

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.TaskID, &e.Round, &e.Event, &e.Stage, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
