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

// Package runmodel defines the pure data types shared by every layer of the
// deployment job controller: run identity, run state, step profiles, and the
// step state machine. Nothing in this package performs I/O or takes a lock;
// callers (store, logstore, jobcontroller) own all of that.
package runmodel

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Step names a unit of work within a run's profile (e.g. "installTester",
// "deployReal", "deployTest").
type Step string

// RunStatus is the terminal or in-progress state of a Run.
type RunStatus string

const (
	StatusRunning            RunStatus = "running"
	StatusSuccess            RunStatus = "success"
	StatusAborted            RunStatus = "aborted"
	StatusError              RunStatus = "error"
	StatusOutOfCapacity      RunStatus = "outOfCapacity"
	StatusDeploymentFailed   RunStatus = "deploymentFailed"
	StatusInstallationFailed RunStatus = "installationFailed"
	StatusTestFailure        RunStatus = "testFailure"
	StatusNoTests            RunStatus = "noTests"
	StatusReset              RunStatus = "reset"
)

// IsTerminal reports whether status represents a finished run. Running and
// Reset are the only non-terminal statuses: Reset is an instruction to
// re-run, not an outcome.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusRunning, StatusReset:
		return false
	default:
		return true
	}
}

// StepStatus is the per-step status within a single run.
type StepStatus string

const (
	StepUnfinished StepStatus = "unfinished"
	StepSucceeded  StepStatus = "succeeded"
	StepFailed     StepStatus = "failed"
)

// IsTerminal reports whether a step's status no longer changes.
func (s StepStatus) IsTerminal() bool {
	return s == StepSucceeded || s == StepFailed
}

// StepInfo is the per-run state of a single step.
type StepInfo struct {
	Status StepStatus
	// StartTime is set by the step's first Update, whatever status it
	// reports, and is nil until then; SetStartTimestamp replaces it.
	StartTime *time.Time
}

// RunID identifies one attempt of a job for an (application, job type)
// pair. Number is strictly increasing per (ApplicationID, JobType) and has
// no gaps across successfully completed starts.
type RunID struct {
	ApplicationID string
	JobType       string
	Number        int64
}

// String renders the id in the "app/type/number" form used in logs and as
// a map key when callers need a comparable, printable identifier.
func (id RunID) String() string {
	return fmt.Sprintf("%s/%s/%d", id.ApplicationID, id.JobType, id.Number)
}

// Versions captures the platform and application revisions a run deploys,
// plus the revisions it is redeploying from (if any).
type Versions struct {
	TargetPlatform    string
	TargetApplication string
	SourcePlatform    string
	SourceApplication string

	// CompileVersion is the platform version the application package was
	// compiled against. Start's version-compatibility predicate (spec.md
	// 4.5.1) only runs when both this and TargetPlatform are known.
	CompileVersion string
}

// Run is one attempt of a job for an (application, job type) pair.
type Run struct {
	ID             RunID
	Versions       Versions
	IsRedeployment bool

	Start time.Time
	// End is the zero time while the run is active; set exactly once,
	// by Finish.
	End time.Time

	Status RunStatus

	// Steps preserves profile order: iteration order of this map is not
	// meaningful in Go, so callers that need ordered iteration consult
	// Profile.Steps and index into this map.
	Steps map[Step]StepInfo

	Profile Profile

	// SleepUntil postpones a queued retry of a step executor; zero means
	// no postponement is in effect.
	SleepUntil time.Time

	LastVespaLogTimestamp time.Time
	LastTestLogEntry      int64

	// TesterCertificate is set at most once, the first time a tester
	// deployment is provisioned for this run.
	TesterCertificate string

	Reason string

	// UnusedOrdering carries a legacy wire format's ordering field
	// byte-for-byte; it is never interpreted by this controller.
	UnusedOrdering int
}

// Active reports whether the run has not yet finished.
func (r *Run) Active() bool {
	return r.End.IsZero()
}

// NewInstanceID generates an opaque identifier for a deployment instance
// (tester certificates, artifact-store keys) where the domain model itself
// does not impose structure on the value.
func NewInstanceID() string {
	return uuid.NewString()
}
