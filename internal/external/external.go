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

// Package external defines the collaborator interfaces the job controller
// consumes from systems it does not own — the config server that runs a
// deployment, the tester cloud that exercises it, the artifact store that
// holds build output, platform version metadata, wall-clock time, and
// metrics — along with reference implementations of each.
package external

import (
	"context"
	"time"

	"github.com/nimbusline/jobctl/internal/logstore"
	"github.com/nimbusline/jobctl/internal/runmodel"
)

// ConfigServer is the deployment target: it serves logs for a deployment
// and can be told to stop serving one.
type ConfigServer interface {
	// GetLogs returns the log entries for a deployment recorded at or
	// after from.
	GetLogs(ctx context.Context, deployment runmodel.RunID, from time.Time) ([]logstore.Entry, error)

	// Deactivate takes a deployment out of service.
	Deactivate(ctx context.Context, deployment runmodel.RunID) error
}

// TesterCloud runs the automated test suite against a deployment.
type TesterCloud interface {
	// GetLog returns test-run log entries after afterEntryID.
	GetLog(ctx context.Context, deployment runmodel.RunID, afterEntryID int64) ([]logstore.Entry, error)

	// GetTestReport returns the test report for a deployment, if the
	// tester cloud has produced one yet.
	GetTestReport(ctx context.Context, deployment runmodel.RunID) (*TestReport, error)
}

// TestReport is a test report fetched from TesterCloud, not yet assigned a
// logstore entry ID.
type TestReport struct {
	FetchedAt time.Time
	Content   []byte
}

// ArtifactStore holds build output: real application packages, tester
// packages, metadata, and developer diffs, each independently prunable.
type ArtifactStore interface {
	Put(ctx context.Context, key string, content []byte) error
	PutTester(ctx context.Context, key string, content []byte) error
	PutMeta(ctx context.Context, key string, content []byte) error
	PutDev(ctx context.Context, key string, content []byte) error

	Get(ctx context.Context, key string) ([]byte, bool, error)
	Find(ctx context.Context, prefix string) ([]string, error)

	Prune(ctx context.Context, olderThan time.Time) error
	PruneTesters(ctx context.Context, olderThan time.Time) error
	PruneDiffs(ctx context.Context, olderThan time.Time) error
	PruneDevDiffs(ctx context.Context, olderThan time.Time) error
}

// VersionStatus reports which platform versions are deployable.
type VersionStatus interface {
	// OrderedVersions returns every known platform version, oldest first.
	OrderedVersions() []string

	// IsActive reports whether version is still a valid deploy target.
	IsActive(version string) bool
}

// VersionCompatibility decides whether a (platform, compile) version pair
// may start a run, or must be refused outright.
type VersionCompatibility interface {
	Accept(platform, compile string) bool
	Refuse(platform, compile string) bool
}

// Clock is the single source every run timestamp is read from.
type Clock interface {
	Now() time.Time
}

// Metric records the job lifecycle events the controller's callers care
// about.
type Metric interface {
	JobStarted(jobID string)
	JobFinished(jobID string, status runmodel.RunStatus)
}
