// Package store persists finished tasks in a SQLite run ledger.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"sttmforge/internal/governor"
	"sttmforge/internal/logging"
)

// Run is one ledger row.
type Run struct {
	TaskID    string
	SessionID string
	Policy    string
	Status    string
	Attempts  int
	ErrorCode string
	History   [][]string
	NonStrict []string
	CreatedAt time.Time
}

// PolicySummary aggregates the runs of one policy.
type PolicySummary struct {
	Policy          string  `json:"policy"`
	Total           int     `json:"total"`
	Succeeded       int     `json:"succeeded"`
	Exhausted       int     `json:"exhausted"`
	Failed          int     `json:"failed"`
	AverageAttempts float64 `json:"average_attempts"`
}

// Ledger records task outcomes. It implements governor.Recorder.
type Ledger struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under batch runs.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, dbPath: path}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.StoreDebug("run ledger opened at %s", path)
	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.dbPath
}

func (l *Ledger) initSchema() error {
	schema := `
	PRAGMA journal_mode=WAL;
	PRAGMA busy_timeout=5000;

	CREATE TABLE IF NOT EXISTS runs (
		task_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		policy TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		error_code TEXT NOT NULL DEFAULT '',
		history BLOB,
		non_strict BLOB,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_policy ON runs(policy);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Insert stores a run, replacing any row with the same task id.
func (l *Ledger) Insert(ctx context.Context, r Run) error {
	history, err := msgpack.Marshal(r.History)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	nonStrict, err := msgpack.Marshal(r.NonStrict)
	if err != nil {
		return fmt.Errorf("failed to encode non-strict issues: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(task_id, session_id, policy, status, attempts, error_code, history, non_strict, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TaskID, r.SessionID, r.Policy, r.Status, r.Attempts, r.ErrorCode,
		history, nonStrict, r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.TaskID, err)
	}
	return nil
}

// Get returns the run with taskID, or sql.ErrNoRows.
func (l *Ledger) Get(ctx context.Context, taskID string) (*Run, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT task_id, session_id, policy, status, attempts, error_code, history, non_strict, created_at
		FROM runs WHERE task_id = ?`, taskID)
	return scanRun(row)
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT task_id, session_id, policy, status, attempts, error_code, history, non_strict, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Summary aggregates all runs per policy, sorted by policy name.
func (l *Ledger) Summary(ctx context.Context) ([]PolicySummary, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT policy,
			COUNT(*),
			SUM(CASE WHEN status = 'succeeded' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'exhausted' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status NOT IN ('succeeded', 'exhausted') THEN 1 ELSE 0 END),
			COALESCE(AVG(CASE WHEN attempts > 0 THEN attempts END), 0)
		FROM runs GROUP BY policy ORDER BY policy`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize runs: %w", err)
	}
	defer rows.Close()

	var out []PolicySummary
	for rows.Next() {
		var s PolicySummary
		if err := rows.Scan(&s.Policy, &s.Total, &s.Succeeded, &s.Exhausted, &s.Failed, &s.AverageAttempts); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var history, nonStrict []byte
	if err := row.Scan(&r.TaskID, &r.SessionID, &r.Policy, &r.Status, &r.Attempts, &r.ErrorCode,
		&history, &nonStrict, &r.CreatedAt); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := msgpack.Unmarshal(history, &r.History); err != nil {
			return nil, fmt.Errorf("failed to decode history of %s: %w", r.TaskID, err)
		}
	}
	if len(nonStrict) > 0 {
		if err := msgpack.Unmarshal(nonStrict, &r.NonStrict); err != nil {
			return nil, fmt.Errorf("failed to decode non-strict issues of %s: %w", r.TaskID, err)
		}
	}
	return &r, nil
}

// RecordAttempt is a no-op; the ledger keeps one row per task.
func (l *Ledger) RecordAttempt(context.Context, governor.AttemptEvent) {}

// RecordOutcome stores the finished task. Failures are logged, never
// surfaced to the task.
func (l *Ledger) RecordOutcome(ctx context.Context, ev governor.OutcomeEvent) {
	status := string(ev.Status)
	if status == "" {
		status = "failed"
	}
	err := l.Insert(ctx, Run{
		TaskID:    ev.TaskID,
		SessionID: ev.SessionID,
		Policy:    ev.Policy,
		Status:    status,
		Attempts:  ev.Attempts,
		ErrorCode: ev.ErrorCode,
		History:   ev.History,
		NonStrict: ev.NonStrict,
		CreatedAt: ev.At,
	})
	if err != nil {
		logging.StoreWarn("failed to record run %s: %v", ev.TaskID, err)
	}
}
