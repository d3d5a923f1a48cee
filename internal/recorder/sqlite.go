package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"PortfolioPulse/internal/model"
	"PortfolioPulse/internal/store"
)

// SQLiteRecorder persists run summaries and their errors to SQLite.
type SQLiteRecorder struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", store.SQLiteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ingestion_runs (
			run_id      TEXT PRIMARY KEY,
			job         TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER,
			universe    INTEGER NOT NULL,
			attempted   INTEGER NOT NULL,
			succeeded   INTEGER NOT NULL,
			failed      INTEGER NOT NULL,
			written     INTEGER NOT NULL,
			canceled    INTEGER NOT NULL DEFAULT 0,
			report      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_job_started ON ingestion_runs(job, started_at)`,

		`CREATE TABLE IF NOT EXISTS ingestion_errors (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id  TEXT NOT NULL REFERENCES ingestion_runs(run_id),
			ticker  TEXT NOT NULL,
			kind    TEXT NOT NULL,
			message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_run ON ingestion_errors(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_ticker ON ingestion_errors(ticker)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// RecordRun stores the summary, its errors and the full JSON report in one
// transaction. Recording the same run twice replaces the earlier copy.
func (r *SQLiteRecorder) RecordRun(ctx context.Context, report *model.RunReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var finished any
	if !report.FinishedAt.IsZero() {
		finished = report.FinishedAt.Unix()
	}
	canceled := 0
	if report.Canceled {
		canceled = 1
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ingestion_errors WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("clear run errors: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO ingestion_runs
			(run_id, job, started_at, finished_at, universe, attempted, succeeded, failed, written, canceled, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Job, report.Timestamp.Unix(), finished,
		report.Universe, report.Attempted, report.Succeeded, report.Failed, report.Written,
		canceled, string(body),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, e := range report.Errors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ingestion_errors (run_id, ticker, kind, message) VALUES (?, ?, ?, ?)`,
			report.RunID, e.Ticker, string(e.Kind), e.Message,
		); err != nil {
			return fmt.Errorf("insert run error: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.logger.Debug("run recorded", zap.String("run_id", report.RunID), zap.String("job", report.Job))
	return nil
}

// Latest returns the most recently started run of job.
func (r *SQLiteRecorder) Latest(ctx context.Context, job string) (*model.RunReport, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `
		SELECT report FROM ingestion_runs
		WHERE ? = '' OR job = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1`, job, job).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	var report model.RunReport
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("decode run report: %w", err)
	}
	return &report, nil
}

// FailureCounts returns how often each ticker failed across the last n runs
// of job, for spotting chronically failing symbols.
func (r *SQLiteRecorder) FailureCounts(ctx context.Context, job string, n int) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.ticker, COUNT(*)
		FROM ingestion_errors e
		JOIN (SELECT run_id FROM ingestion_runs WHERE job = ? ORDER BY started_at DESC LIMIT ?) recent
			ON recent.run_id = e.run_id
		GROUP BY e.ticker`, job, n)
	if err != nil {
		return nil, fmt.Errorf("query failure counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ticker string
		var c int
		if err := rows.Scan(&ticker, &c); err != nil {
			return nil, fmt.Errorf("scan failure count: %w", err)
		}
		counts[ticker] = c
	}
	return counts, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
