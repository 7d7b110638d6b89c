// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a durable logstore.Store backend for single-node
// deployments, built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nimbusline/jobctl/internal/logstore"
	"github.com/nimbusline/jobctl/internal/runmodel"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertion.
var _ logstore.Store = (*Store)(nil)

// Store is a SQLite-backed logstore.Store. Each log entry is one row,
// marked finished once Flush seals the chunk it belonged to; entry IDs are
// assigned by reading the current max for (run, step) inside the same
// transaction as the insert, so they stay monotonic regardless of how many
// chunks have already been sealed.
type Store struct {
	db *sql.DB
}

// Config configures a Store's underlying SQLite connection.
type Config struct {
	// Path is the database file path, or ":memory:" for an ephemeral
	// in-process database.
	Path string

	// WAL enables Write-Ahead Logging for concurrent reads.
	WAL bool
}

// New opens (creating if necessary) a SQLite-backed Store.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("logstore/sqlite: open: %w", err)
	}

	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("logstore/sqlite: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("logstore/sqlite: pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS log_entries (
			application_id TEXT NOT NULL,
			job_type TEXT NOT NULL,
			number INTEGER NOT NULL,
			step TEXT NOT NULL,
			entry_id INTEGER NOT NULL,
			finished INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (application_id, job_type, number, step, entry_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_log_entries_lookup
			ON log_entries(application_id, job_type, number, step, finished)`,
		`CREATE TABLE IF NOT EXISTS test_reports (
			application_id TEXT NOT NULL,
			job_type TEXT NOT NULL,
			number INTEGER NOT NULL,
			report_id INTEGER NOT NULL,
			content BLOB NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (application_id, job_type, number, report_id)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("logstore/sqlite: migration failed: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, id runmodel.RunID, step runmodel.Step, messages []string) ([]logstore.Entry, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("logstore/sqlite: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT MAX(entry_id) FROM log_entries
		WHERE application_id = ? AND job_type = ? AND number = ? AND step = ?
	`, id.ApplicationID, id.JobType, id.Number, string(step)).Scan(&maxID)
	if err != nil {
		return nil, fmt.Errorf("logstore/sqlite: read max entry id: %w", err)
	}

	next := maxID.Int64 + 1
	now := time.Now()
	entries := make([]logstore.Entry, 0, len(messages))
	for _, msg := range messages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO log_entries (application_id, job_type, number, step, entry_id, finished, message, created_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		`, id.ApplicationID, id.JobType, id.Number, string(step), next, msg, now.Format(time.RFC3339Nano)); err != nil {
			return nil, fmt.Errorf("logstore/sqlite: insert log entry: %w", err)
		}
		entries = append(entries, logstore.Entry{ID: next, Timestamp: now, Message: msg})
		next++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("logstore/sqlite: commit append: %w", err)
	}
	return entries, nil
}

func (s *Store) ReadActive(ctx context.Context, id runmodel.RunID, step runmodel.Step, afterID int64) ([]logstore.Entry, error) {
	return s.readEntries(ctx, id, step, afterID, false)
}

func (s *Store) ReadFinished(ctx context.Context, id runmodel.RunID, step runmodel.Step) ([]logstore.Entry, error) {
	return s.readEntries(ctx, id, step, 0, true)
}

func (s *Store) readEntries(ctx context.Context, id runmodel.RunID, step runmodel.Step, afterID int64, finished bool) ([]logstore.Entry, error) {
	finishedFlag := 0
	if finished {
		finishedFlag = 1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, message, created_at FROM log_entries
		WHERE application_id = ? AND job_type = ? AND number = ? AND step = ?
			AND finished = ? AND entry_id > ?
		ORDER BY entry_id ASC
	`, id.ApplicationID, id.JobType, id.Number, string(step), finishedFlag, afterID)
	if err != nil {
		return nil, fmt.Errorf("logstore/sqlite: read entries: %w", err)
	}
	defer rows.Close()

	var out []logstore.Entry
	for rows.Next() {
		var e logstore.Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("logstore/sqlite: scan entry: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("logstore/sqlite: parse entry timestamp: %w", err)
		}
		e.Timestamp = ts
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("logstore/sqlite: iterate entries: %w", err)
	}
	return out, nil
}

func (s *Store) Flush(ctx context.Context, id runmodel.RunID, step runmodel.Step) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE log_entries SET finished = 1
		WHERE application_id = ? AND job_type = ? AND number = ? AND step = ? AND finished = 0
	`, id.ApplicationID, id.JobType, id.Number, string(step))
	if err != nil {
		return fmt.Errorf("logstore/sqlite: flush: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id runmodel.RunID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("logstore/sqlite: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM log_entries WHERE application_id = ? AND job_type = ? AND number = ?`,
		id.ApplicationID, id.JobType, id.Number,
	); err != nil {
		return fmt.Errorf("logstore/sqlite: delete log entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM test_reports WHERE application_id = ? AND job_type = ? AND number = ?`,
		id.ApplicationID, id.JobType, id.Number,
	); err != nil {
		return fmt.Errorf("logstore/sqlite: delete test reports: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("logstore/sqlite: commit delete: %w", err)
	}
	return nil
}

func (s *Store) WriteTestReport(ctx context.Context, id runmodel.RunID, content []byte) (logstore.TestReport, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return logstore.TestReport{}, fmt.Errorf("logstore/sqlite: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT MAX(report_id) FROM test_reports
		WHERE application_id = ? AND job_type = ? AND number = ?
	`, id.ApplicationID, id.JobType, id.Number).Scan(&maxID)
	if err != nil {
		return logstore.TestReport{}, fmt.Errorf("logstore/sqlite: read max report id: %w", err)
	}

	report := logstore.TestReport{ID: maxID.Int64 + 1, Timestamp: time.Now(), Content: content}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO test_reports (application_id, job_type, number, report_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.ApplicationID, id.JobType, id.Number, report.ID, report.Content, report.Timestamp.Format(time.RFC3339Nano)); err != nil {
		return logstore.TestReport{}, fmt.Errorf("logstore/sqlite: insert test report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return logstore.TestReport{}, fmt.Errorf("logstore/sqlite: commit test report: %w", err)
	}
	return report, nil
}

func (s *Store) ReadTestReports(ctx context.Context, id runmodel.RunID) ([]logstore.TestReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_id, content, created_at FROM test_reports
		WHERE application_id = ? AND job_type = ? AND number = ?
		ORDER BY report_id ASC
	`, id.ApplicationID, id.JobType, id.Number)
	if err != nil {
		return nil, fmt.Errorf("logstore/sqlite: read test reports: %w", err)
	}
	defer rows.Close()

	var out []logstore.TestReport
	for rows.Next() {
		var r logstore.TestReport
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("logstore/sqlite: scan test report: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("logstore/sqlite: parse test report timestamp: %w", err)
		}
		r.Timestamp = ts
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("logstore/sqlite: iterate test reports: %w", err)
	}
	return out, nil
}
