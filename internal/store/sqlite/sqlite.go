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

// Package sqlite provides a durable store.Store backend for single-node
// deployments, built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/internal/store"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertion.
var _ store.Store = (*Store)(nil)

// Store is a SQLite-backed store.Store. Runs are persisted as JSON blobs
// under a (application, job type[, number]) key, mirroring the logical key
// layout described for this controller: one row per active slot, one row
// per historic run.
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
		return nil, fmt.Errorf("store/sqlite: open: %w", err)
	}

	// SQLite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under our own retry-free call pattern.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store/sqlite: ping: %w", err)
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
			return fmt.Errorf("store/sqlite: pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS last_runs (
			application_id TEXT NOT NULL,
			job_type TEXT NOT NULL,
			run_json TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (application_id, job_type)
		)`,
		`CREATE TABLE IF NOT EXISTS historic_runs (
			application_id TEXT NOT NULL,
			job_type TEXT NOT NULL,
			number INTEGER NOT NULL,
			run_json TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (application_id, job_type, number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_historic_runs_app_type ON historic_runs(application_id, job_type)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("store/sqlite: migration failed: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ReadLastRun(ctx context.Context, appID, jobType string) (*runmodel.Run, bool, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_json FROM last_runs WHERE application_id = ? AND job_type = ?`,
		appID, jobType,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store/sqlite: read last run: %w", err)
	}

	var run runmodel.Run
	if err := json.Unmarshal([]byte(blob), &run); err != nil {
		return nil, false, fmt.Errorf("store/sqlite: unmarshal last run: %w", err)
	}
	return &run, true, nil
}

func (s *Store) WriteLastRun(ctx context.Context, run *runmodel.Run) error {
	blob, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("store/sqlite: marshal last run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO last_runs (application_id, job_type, run_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (application_id, job_type) DO UPDATE SET
			run_json = excluded.run_json, updated_at = excluded.updated_at
	`, run.ID.ApplicationID, run.ID.JobType, string(blob), time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store/sqlite: write last run: %w", err)
	}
	return nil
}

func (s *Store) ReadHistoricRuns(ctx context.Context, appID, jobType string) (map[int64]*runmodel.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, run_json FROM historic_runs WHERE application_id = ? AND job_type = ?`,
		appID, jobType,
	)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: read historic runs: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*runmodel.Run)
	for rows.Next() {
		var number int64
		var blob string
		if err := rows.Scan(&number, &blob); err != nil {
			return nil, fmt.Errorf("store/sqlite: scan historic run: %w", err)
		}
		var run runmodel.Run
		if err := json.Unmarshal([]byte(blob), &run); err != nil {
			return nil, fmt.Errorf("store/sqlite: unmarshal historic run %d: %w", number, err)
		}
		out[number] = &run
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/sqlite: iterate historic runs: %w", err)
	}
	return out, nil
}

// WriteHistoricRuns replaces the entire history map for (app, type) inside
// a single transaction: the existing rows for the key are deleted, then
// every entry in runs is inserted.
func (s *Store) WriteHistoricRuns(ctx context.Context, appID, jobType string, runs map[int64]*runmodel.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store/sqlite: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM historic_runs WHERE application_id = ? AND job_type = ?`,
		appID, jobType,
	); err != nil {
		return fmt.Errorf("store/sqlite: clear historic runs: %w", err)
	}

	now := time.Now().Format(time.RFC3339)
	for number, run := range runs {
		blob, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("store/sqlite: marshal historic run %d: %w", number, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO historic_runs (application_id, job_type, number, run_json, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, appID, jobType, number, string(blob), now); err != nil {
			return fmt.Errorf("store/sqlite: insert historic run %d: %w", number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store/sqlite: commit historic runs: %w", err)
	}
	return nil
}

func (s *Store) DeleteRunData(ctx context.Context, appID, jobType string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store/sqlite: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if jobType != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM last_runs WHERE application_id = ? AND job_type = ?`, appID, jobType); err != nil {
			return fmt.Errorf("store/sqlite: delete last run: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM historic_runs WHERE application_id = ? AND job_type = ?`, appID, jobType); err != nil {
			return fmt.Errorf("store/sqlite: delete historic runs: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `DELETE FROM last_runs WHERE application_id = ?`, appID); err != nil {
			return fmt.Errorf("store/sqlite: delete last runs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM historic_runs WHERE application_id = ?`, appID); err != nil {
			return fmt.Errorf("store/sqlite: delete historic runs: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store/sqlite: commit delete: %w", err)
	}
	return nil
}

func (s *Store) ApplicationsWithJobs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT application_id FROM last_runs
		UNION
		SELECT application_id FROM historic_runs
	`)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: applications with jobs: %w", err)
	}
	defer rows.Close()

	var apps []string
	for rows.Next() {
		var app string
		if err := rows.Scan(&app); err != nil {
			return nil, fmt.Errorf("store/sqlite: scan application id: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/sqlite: iterate applications: %w", err)
	}
	return apps, nil
}

func (s *Store) JobTypesForApplication(ctx context.Context, appID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_type FROM last_runs WHERE application_id = ?
		UNION
		SELECT job_type FROM historic_runs WHERE application_id = ?
	`, appID, appID)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: job types for application: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var jobType string
		if err := rows.Scan(&jobType); err != nil {
			return nil, fmt.Errorf("store/sqlite: scan job type: %w", err)
		}
		types = append(types, jobType)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/sqlite: iterate job types: %w", err)
	}
	return types, nil
}
