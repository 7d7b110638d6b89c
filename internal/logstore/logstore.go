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

// Package logstore provides append-only storage for the Vespa and tester
// log lines a run accumulates while its steps execute, plus the test
// reports a run's tester step produces.
//
// A (run, step) log is append-only and chunked: entries land in an active,
// in-progress chunk until Flush seals it into durable, finished storage and
// opens a fresh active chunk. Entry IDs are monotonically increasing per
// (run, step) across the whole lifetime of the log, independent of which
// chunk an entry ends up sealed into.
package logstore

import (
	"context"
	"time"

	"github.com/nimbusline/jobctl/internal/runmodel"
)

// Entry is a single log line appended to a run's step.
type Entry struct {
	ID        int64
	Timestamp time.Time
	Message   string
}

// TestReport is an immutable test report artifact attached to a run.
type TestReport struct {
	ID        int64
	Timestamp time.Time
	Content   []byte
}

// Store is the append-only log and test-report contract.
type Store interface {
	// Append adds messages to the active chunk of (id, step)'s log,
	// assigning each the next entry ID in the (id, step) sequence, and
	// returns the resulting entries.
	Append(ctx context.Context, id runmodel.RunID, step runmodel.Step, messages []string) ([]Entry, error)

	// ReadActive returns entries appended after afterID that have not yet
	// been sealed by Flush.
	ReadActive(ctx context.Context, id runmodel.RunID, step runmodel.Step, afterID int64) ([]Entry, error)

	// ReadFinished returns every entry from chunks already sealed by
	// Flush, in ascending ID order.
	ReadFinished(ctx context.Context, id runmodel.RunID, step runmodel.Step) ([]Entry, error)

	// Flush seals the current active chunk into finished storage and
	// opens a fresh active chunk. Flushing an empty active chunk is a
	// no-op.
	Flush(ctx context.Context, id runmodel.RunID, step runmodel.Step) error

	// Delete removes every chunk and test report for a run, active or
	// finished, across all of its steps.
	Delete(ctx context.Context, id runmodel.RunID) error

	// WriteTestReport appends an immutable test report for a run.
	WriteTestReport(ctx context.Context, id runmodel.RunID, content []byte) (TestReport, error)

	// ReadTestReports returns every test report recorded for a run, in
	// the order they were written.
	ReadTestReports(ctx context.Context, id runmodel.RunID) ([]TestReport, error)
}
