package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Journal = (*SQLiteJournal)(nil)

// SQLiteJournal implements Journal backed by a SQLite database.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the SQLite database at dbPath and runs
// migrations.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so ad-hoc reporting queries do not block a running sync.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			mode        TEXT NOT NULL,
			total       INTEGER NOT NULL,
			updated     INTEGER NOT NULL,
			created     INTEGER NOT NULL,
			no_data     INTEGER NOT NULL,
			skipped     INTEGER NOT NULL,
			failed      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON sync_runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS sync_failures (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES sync_runs(id),
			code   TEXT NOT NULL,
			name   TEXT,
			reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run ON sync_failures(run_id)`,

		`CREATE TABLE IF NOT EXISTS provider_usage (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id   INTEGER NOT NULL REFERENCES sync_runs(id),
			provider TEXT NOT NULL,
			answers  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_run ON provider_usage(run_id)`,
	}
	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun writes the run summary plus its failures and provider counters
// in one transaction.
func (j *SQLiteJournal) RecordRun(ctx context.Context, run RunSummary, failures []Failure, usage map[string]int) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sync_runs (started_at, finished_at, mode, total, updated, created, no_data, skipped, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.Unix(), run.FinishedAt.Unix(), run.Mode,
		run.Total, run.Updated, run.Created, run.NoData, run.Skipped, run.Failed)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}

	for _, f := range failures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_failures (run_id, code, name, reason) VALUES (?, ?, ?, ?)`,
			runID, f.Code, f.Name, f.Reason); err != nil {
			return fmt.Errorf("insert failure: %w", err)
		}
	}
	for provider, answers := range usage {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO provider_usage (run_id, provider, answers) VALUES (?, ?, ?)`,
			runID, provider, answers); err != nil {
			return fmt.Errorf("insert usage: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// LastRun returns the most recent run summary, or ok=false when the journal
// is empty.
func (j *SQLiteJournal) LastRun(ctx context.Context) (run RunSummary, ok bool, err error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT started_at, finished_at, mode, total, updated, created, no_data, skipped, failed
		 FROM sync_runs ORDER BY id DESC LIMIT 1`)

	var started, finished int64
	err = row.Scan(&started, &finished, &run.Mode,
		&run.Total, &run.Updated, &run.Created, &run.NoData, &run.Skipped, &run.Failed)
	if err == sql.ErrNoRows {
		return RunSummary{}, false, nil
	}
	if err != nil {
		return RunSummary{}, false, err
	}
	run.StartedAt = time.Unix(started, 0).UTC()
	run.FinishedAt = time.Unix(finished, 0).UTC()
	return run, true, nil
}

// Failures returns the failure list of the most recent run.
func (j *SQLiteJournal) Failures(ctx context.Context) ([]Failure, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT code, name, reason FROM sync_failures
		 WHERE run_id = (SELECT MAX(id) FROM sync_runs) ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Code, &f.Name, &f.Reason); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
