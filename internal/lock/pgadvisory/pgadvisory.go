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

// Package pgadvisory provides a lock.Service backed by PostgreSQL advisory
// locks, for controller deployments running more than one instance against
// a shared database.
//
// pg_advisory_lock has no timeout of its own, so acquisition is done with
// pg_try_advisory_lock polled on an interval until the wait bound elapses or
// the caller's context is cancelled. Session-level advisory locks are tied
// to the connection that took them, not to the calling goroutine, so this
// package holds one dedicated *sql.Conn per key while it is locked and
// tracks re-entrancy depth locally per holder.
package pgadvisory

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	jcerrors "github.com/nimbusline/jobctl/pkg/errors"

	"github.com/nimbusline/jobctl/internal/lock"
	"github.com/nimbusline/jobctl/internal/runmodel"
)

// Compile-time interface assertion.
var _ lock.Service = (*Service)(nil)

// Service is a PostgreSQL-advisory-lock-backed lock.Service.
type Service struct {
	db           *sql.DB
	waitBound    time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// Config configures a Service.
type Config struct {
	// DB is the database connection pool. Must be a PostgreSQL connection.
	DB *sql.DB

	// WaitBound is how long Lock/LockStep will retry before giving up with
	// a Timeout error.
	WaitBound time.Duration

	// PollInterval is how often to retry pg_try_advisory_lock while
	// waiting. Defaults to 100ms.
	PollInterval time.Duration
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Service{
		db:           cfg.DB,
		waitBound:    cfg.WaitBound,
		pollInterval: cfg.PollInterval,
		entries:      make(map[string]*entry),
	}
}

func (s *Service) entryFor(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{db: s.db, lockID: advisoryLockID(key)}
		s.entries[key] = e
	}
	return e
}

func (s *Service) Lock(ctx context.Context, appID, jobType string) (lock.Handle, error) {
	key := fmt.Sprintf("%s\x00%s", appID, jobType)
	e := s.entryFor(key)
	holder := lock.HolderFrom(ctx)
	if err := e.acquire(ctx, holder, s.waitBound, s.pollInterval, key); err != nil {
		return nil, err
	}
	return &handle{entry: e}, nil
}

func (s *Service) LockStep(ctx context.Context, appID, jobType string, step runmodel.Step) (lock.StepHandle, error) {
	key := fmt.Sprintf("%s\x00%s\x00%s", appID, jobType, step)
	e := s.entryFor(key)
	holder := lock.HolderFrom(ctx)
	if err := e.acquire(ctx, holder, s.waitBound, s.pollInterval, key); err != nil {
		return nil, err
	}
	return &handle{entry: e}, nil
}

// advisoryLockID maps a lock key to the int64 id pg_advisory_lock expects.
// FNV-1a gives a stable, evenly distributed id; collisions between unrelated
// keys are possible in principle but astronomically unlikely for the
// (application, job type[, step]) key space this package actually sees.
func advisoryLockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// entry tracks one advisory lock key's local re-entrancy state. Only one
// goroutine in this process may hold the underlying Postgres session lock
// at a time; acquire serializes local contenders with mu before attempting
// the advisory lock itself. Waiters poll, so neither local contenders nor
// competing backends are granted the lock in arrival order (Postgres
// itself only promises mutual exclusion, not FIFO).
type entry struct {
	db     *sql.DB
	lockID int64

	mu     sync.Mutex
	locked bool
	holder string
	depth  int
	conn   *sql.Conn
}

func (e *entry) acquire(ctx context.Context, holder string, waitBound, pollInterval time.Duration, key string) error {
	e.mu.Lock()
	if e.locked && e.holder == holder {
		e.depth++
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	deadline := time.Now().Add(waitBound)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		e.mu.Lock()
		if !e.locked {
			conn, acquired, err := e.tryAcquire(ctx)
			if err != nil {
				e.mu.Unlock()
				return err
			}
			if acquired {
				e.locked = true
				e.holder = holder
				e.depth = 1
				e.conn = conn
				e.mu.Unlock()
				return nil
			}
		}
		e.mu.Unlock()

		if waitBound > 0 && time.Now().After(deadline) {
			return &jcerrors.TimeoutError{Operation: "advisory lock acquisition: " + key, Duration: waitBound}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tryAcquire takes a dedicated connection and attempts pg_try_advisory_lock
// on it. On failure to acquire, the connection is returned to the pool.
func (e *entry) tryAcquire(ctx context.Context) (*sql.Conn, bool, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, false, jcerrors.WrapKind(jcerrors.Storage, err, "acquire connection for advisory lock")
	}

	var acquired bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.lockID).Scan(&acquired)
	if err != nil {
		_ = conn.Close()
		return nil, false, jcerrors.WrapKind(jcerrors.Storage, err, "pg_try_advisory_lock")
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}
	return conn, true, nil
}

func (e *entry) release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.depth--
	if e.depth > 0 {
		return
	}

	conn := e.conn
	lockID := e.lockID
	e.locked = false
	e.holder = ""
	e.conn = nil

	if conn == nil {
		return
	}
	ctx := context.Background()
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		_ = err // best-effort: the session ending also releases the lock
	}
	_ = conn.Close()
}

type handle struct {
	entry *entry
	once  sync.Once
}

func (h *handle) Release() {
	h.once.Do(h.entry.release)
}
