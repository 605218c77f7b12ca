// Package journal keeps a SQLite history of build runs. It is a reporting
// sink only; nothing reads it back to decide what to build.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/maxkimambo/assetpipe/internal/runner"
)

//go:embed schema.sql
var schema string

// Journal is an open history database
type Journal struct {
	db *sql.DB
}

// RunSummary is one recorded run
type RunSummary struct {
	RunID     string
	Command   string
	Started   time.Time
	Duration  time.Duration
	Succeeded int
	Failed    int
	Skipped   int
}

// TaskRecord is one task result of a recorded run
type TaskRecord struct {
	Task      string
	Transform string
	Status    string
	Duration  time.Duration
	Inputs    int
	Error     string
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("journal migration failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores report under command in a single transaction.
func (j *Journal) Record(ctx context.Context, command string, report *runner.Report) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer tx.Rollback()

	succeeded, failed, skipped := report.Counts()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, command, started_at, duration_ms, succeeded, failed, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, command, report.Started.UnixNano(), report.Duration.Milliseconds(),
		succeeded, failed, skipped)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", report.RunID, err)
	}

	for i, res := range report.Results {
		var errText sql.NullString
		if res.Err != nil {
			errText = sql.NullString{String: res.Err.Error(), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO task_results (run_id, position, task, transform, status, duration_ms, inputs, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, i, res.TaskName, res.Transform, string(res.Status),
			res.Duration.Milliseconds(), res.Inputs, errText)
		if err != nil {
			return fmt.Errorf("failed to record task %s: %w", res.TaskName, err)
		}
	}

	return tx.Commit()
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, command, started_at, duration_ms, succeeded, failed, skipped
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var started, durationMs int64
		if err := rows.Scan(&r.RunID, &r.Command, &started, &durationMs, &r.Succeeded, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Started = time.Unix(0, started)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Tasks returns the task results of a run in recorded order.
func (j *Journal) Tasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT task, transform, status, duration_ms, inputs, error
		 FROM task_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task results: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var t TaskRecord
		var durationMs int64
		var errText sql.NullString
		if err := rows.Scan(&t.Task, &t.Transform, &t.Status, &durationMs, &t.Inputs, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		t.Duration = time.Duration(durationMs) * time.Millisecond
		t.Error = errText.String
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// FindRun expands a run id prefix, as shown by history, to the full id. It
// returns an empty id when no run matches and an error when several do.
func (j *Journal) FindRun(ctx context.Context, prefix string) (string, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("failed to look up run %s: %w", prefix, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", nil
	case 1:
		return ids[0], nil
	}
	return "", fmt.Errorf("run id %q is ambiguous", prefix)
}
