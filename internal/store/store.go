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

// Package store defines the persistence contract for active and historic
// runs. Implementations guarantee read-after-write per (app, type) key but
// provide no cross-key atomicity: callers serialize concurrent access to
// the same (app, type) through internal/lock.
package store

import (
	"context"

	"github.com/nimbusline/jobctl/internal/runmodel"
)

// Store is the persistence contract backing a JobController. Two
// implementations exist: store/memory for tests and single-process demos,
// and store/sqlite for durable single-node deployments.
type Store interface {
	// ReadLastRun returns the active run for (app, type), if one exists.
	ReadLastRun(ctx context.Context, appID, jobType string) (*runmodel.Run, bool, error)

	// WriteLastRun overwrites the active slot for run.ID's (app, type).
	WriteLastRun(ctx context.Context, run *runmodel.Run) error

	// ReadHistoricRuns returns every historic run for (app, type), keyed
	// by run number.
	ReadHistoricRuns(ctx context.Context, appID, jobType string) (map[int64]*runmodel.Run, error)

	// WriteHistoricRuns replaces the entire history map for (app, type).
	WriteHistoricRuns(ctx context.Context, appID, jobType string, runs map[int64]*runmodel.Run) error

	// DeleteRunData removes active, historic, and log data. If jobType is
	// empty, every job type under appID is removed.
	DeleteRunData(ctx context.Context, appID, jobType string) error

	// ApplicationsWithJobs returns every application that has any stored
	// run data, active or historic.
	ApplicationsWithJobs(ctx context.Context) ([]string, error)

	// JobTypesForApplication returns every job type appID has active or
	// historic run data for.
	JobTypesForApplication(ctx context.Context, appID string) ([]string, error)
}
