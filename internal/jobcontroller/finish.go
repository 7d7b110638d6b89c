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

package jobcontroller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nimbusline/jobctl/internal/lock"
	"github.com/nimbusline/jobctl/internal/log"
	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/internal/tracing"
	"github.com/nimbusline/jobctl/pkg/errors"
)

// Finish finalizes runID's active run into history, if it has reached a
// point where it can be finalized. Calling Finish again on an
// already-terminal, already-archived run is a no-op: the second call
// finds no active run at runID's (app, type) matching runID and returns
// nil.
//
// The data model does not name a distinguished terminal "report" step
// whose transitive prerequisites bound the lock set in spec step 2, so
// every step declared in the run's profile is locked, in profile order,
// as a safe superset; locks are released in reverse.
func (c *Controller) Finish(ctx context.Context, runID runmodel.RunID) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.Finish")
	defer span.End()

	logger := log.WithRunContext(c.logger, runID.ApplicationID, runID.JobType, runID.Number)

	run, exists, err := c.store.ReadLastRun(ctx, runID.ApplicationID, runID.JobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
	}
	if !exists || run.ID != runID || !run.Active() {
		return nil
	}

	stepHandles, err := c.lockProfileSteps(ctx, run)
	if err != nil {
		return err
	}
	defer releaseSteps(stepHandles)

	waitStart := c.clock.Now()
	typeHandle, err := c.locks.Lock(ctx, runID.ApplicationID, runID.JobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: acquire type lock")
	}
	defer typeHandle.Release()
	recordLockWait("finish", c.clock.Now().Sub(waitStart))

	// Re-read under the type lock: the snapshot taken before locking may
	// be stale if another caller mutated the run in between.
	run, exists, err = c.store.ReadLastRun(ctx, runID.ApplicationID, runID.JobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
	}
	if !exists || run.ID != runID || !run.Active() {
		return nil
	}

	if run.Status == runmodel.StatusReset {
		return c.finishReset(ctx, run, logger)
	}

	if run.Status == runmodel.StatusRunning && runmodel.AnyUnfinished(run.Profile, run.Steps) {
		return nil
	}

	status := run.Status
	if run.Status == runmodel.StatusRunning {
		status = runmodel.DeriveTerminalStatus(run.Profile, run.Steps, c.failureMapping)
	}
	run.Status = status
	run.End = c.clock.Now()

	if err := c.store.WriteLastRun(ctx, run); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: clear active run")
	}

	if err := c.archive(ctx, run); err != nil {
		return err
	}

	for _, step := range run.Profile.Steps {
		if err := c.logs.Flush(ctx, runID, step); err != nil {
			return errors.WrapKind(errors.Storage, err, "jobcontroller: flush log")
		}
	}

	c.metric.JobFinished(run.ID.String(), run.Status)
	logger.Info("run finished", log.String("status", string(run.Status)))

	c.pruneArtifacts(ctx, runID.ApplicationID, runID.JobType)

	return nil
}

// finishReset re-arms run for another attempt: every step returns to
// Unfinished, Number/Start/SleepUntil are untouched, and it remains the
// active run.
func (c *Controller) finishReset(ctx context.Context, run *runmodel.Run, logger *slog.Logger) error {
	for _, step := range run.Profile.Steps {
		logger.Info(fmt.Sprintf("### Run will reset: step %s", step))
	}
	run.Steps = runmodel.ResetSteps(run.Profile)
	run.Status = runmodel.StatusRunning
	if err := c.store.WriteLastRun(ctx, run); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: write reset run")
	}
	return nil
}

// archive moves run into (app, type)'s history map and applies retention.
func (c *Controller) archive(ctx context.Context, run *runmodel.Run) error {
	history, err := c.store.ReadHistoricRuns(ctx, run.ID.ApplicationID, run.ID.JobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: read history")
	}
	if history == nil {
		history = make(map[int64]*runmodel.Run)
	}
	history[run.ID.Number] = run

	evicted := applyRetention(history, c.cfg.EffectiveHistoryLength(), c.cfg.MaxHistoryAge, c.clock.Now())

	if err := c.store.WriteHistoricRuns(ctx, run.ID.ApplicationID, run.ID.JobType, history); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: write history")
	}

	for _, n := range evicted {
		id := runmodel.RunID{ApplicationID: run.ID.ApplicationID, JobType: run.ID.JobType, Number: n}
		if err := c.logs.Delete(ctx, id); err != nil {
			c.logger.Warn("jobcontroller: failed to delete evicted run's logs",
				log.String("run_id", id.String()), log.Error(err))
		}
	}

	return nil
}

// pruneArtifacts translates "the minimum build number still referenced by
// any retained run" into the time-based cutoff external.ArtifactStore
// expects, using the oldest retained run's Start time.
func (c *Controller) pruneArtifacts(ctx context.Context, appID, jobType string) {
	if c.artifacts == nil {
		return
	}
	history, err := c.store.ReadHistoricRuns(ctx, appID, jobType)
	if err != nil {
		c.logger.Warn("jobcontroller: failed to read history for artifact prune", log.Error(err))
		return
	}
	cutoff := oldestRetainedStart(history, c.clock.Now())
	if err := c.artifacts.Prune(ctx, cutoff); err != nil {
		c.logger.Warn("jobcontroller: artifact prune failed", log.Error(err))
	}
}

// lockProfileSteps acquires every step lock in run's profile, in profile
// order, returning the acquired handles so the caller can release them in
// reverse. On partial failure it releases what it already acquired and
// returns a Timeout error (spec.md 4.5.2).
func (c *Controller) lockProfileSteps(ctx context.Context, run *runmodel.Run) ([]lock.StepHandle, error) {
	handles := make([]lock.StepHandle, 0, len(run.Profile.Steps))
	for _, step := range run.Profile.Steps {
		h, err := c.locks.LockStep(ctx, run.ID.ApplicationID, run.ID.JobType, step)
		if err != nil {
			releaseSteps(handles)
			return nil, errors.WrapKind(errors.Timeout, err, fmt.Sprintf("jobcontroller: lock step %s", step))
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// releaseSteps releases handles in reverse acquisition order.
func releaseSteps(handles []lock.StepHandle) {
	for i := len(handles) - 1; i >= 0; i-- {
		handles[i].Release()
	}
}
