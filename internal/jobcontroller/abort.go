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
	"time"

	"github.com/nimbusline/jobctl/internal/lock"
	"github.com/nimbusline/jobctl/internal/log"
	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/internal/tracing"
	"github.com/nimbusline/jobctl/pkg/errors"
)

// abortPollInterval is how often AbortAndWait polls for the aborted run to
// settle, grounded on the teacher's drain-wait loop.
const abortPollInterval = 100 * time.Millisecond

// Abort transitions runID's active run to Aborted, logging an
// "Aborting run" line against every step still unfinished. Steps marked
// run-always in the profile remain eligible to execute afterward; a
// subsequent Finish collapses the run once they settle.
func (c *Controller) Abort(ctx context.Context, runID runmodel.RunID, reason string) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.Abort")
	defer span.End()

	handle, err := c.locks.Lock(ctx, runID.ApplicationID, runID.JobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: acquire type lock")
	}
	defer handle.Release()

	run, exists, err := c.store.ReadLastRun(ctx, runID.ApplicationID, runID.JobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
	}
	if !exists || run.ID != runID || !run.Active() {
		return errors.NewKind(errors.NotFound, fmt.Sprintf("jobcontroller: no active run %s", runID))
	}

	line := fmt.Sprintf("Aborting run: %s", reason)
	for _, step := range run.Profile.Steps {
		info := run.Steps[step]
		if info.Status != runmodel.StepUnfinished {
			continue
		}
		if _, err := c.logs.Append(ctx, runID, step, []string{line}); err != nil {
			return errors.WrapKind(errors.Storage, err, "jobcontroller: append abort log")
		}
	}

	run.Status = runmodel.StatusAborted
	run.Reason = reason

	if err := c.store.WriteLastRun(ctx, run); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: write aborted run")
	}

	log.WithRunContext(c.logger, runID.ApplicationID, runID.JobType, runID.Number).Info(
		"run aborted", log.String("reason", reason))

	return nil
}

// AbortAndWait issues Abort, drives it forward once, then polls Last for
// runID's (app, type) until the run has an End timestamp. It surfaces
// ctx cancellation promptly rather than waiting out the full poll.
func (c *Controller) AbortAndWait(ctx context.Context, runID runmodel.RunID) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.AbortAndWait")
	defer span.End()

	run, exists, err := c.store.ReadLastRun(ctx, runID.ApplicationID, runID.JobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
	}
	if exists && run.ID == runID && run.Active() {
		if err := c.Abort(ctx, runID, "replaced"); err != nil {
			return err
		}
		run, exists, err = c.store.ReadLastRun(ctx, runID.ApplicationID, runID.JobType)
		if err != nil {
			return errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
		}
	}
	if exists {
		c.invokeRunStep(ctx, run)
	}

	ticker := time.NewTicker(abortPollInterval)
	defer ticker.Stop()

	for {
		run, exists, err := c.store.ReadLastRun(ctx, runID.ApplicationID, runID.JobType)
		if err != nil {
			return errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
		}
		if !exists || run.ID != runID || !run.Active() {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.WrapKind(errors.Timeout, ctx.Err(), "jobcontroller: abortAndWait interrupted")
		case <-ticker.C:
		}
	}
}
