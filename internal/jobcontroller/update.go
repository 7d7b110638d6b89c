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
	"time"

	"github.com/nimbusline/jobctl/internal/lock"
	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/internal/tracing"
	"github.com/nimbusline/jobctl/pkg/errors"
)

// LockedStep names the step whose lock(app, type, step) the caller holds
// while reporting progress on it. It is a plain exported struct: any caller
// can construct one, and Update and SetStartTimestamp do not check that the
// step lock is actually held.
type LockedStep struct {
	Step runmodel.Step
}

// Update applies a single step's status transition to runID's active run,
// if it is still active, under lock(app, type). lockedStep names the step;
// Update does not verify that its step lock is held.
func (c *Controller) Update(ctx context.Context, runID runmodel.RunID, status runmodel.StepStatus, lockedStep LockedStep) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.Update")
	defer span.End()

	return c.withActiveRun(ctx, runID, func(run *runmodel.Run) error {
		info := run.Steps[lockedStep.Step]
		if info.Status.IsTerminal() {
			return nil
		}
		info.Status = status
		if info.StartTime == nil {
			now := c.clock.Now()
			info.StartTime = &now
		}
		run.Steps[lockedStep.Step] = info
		return nil
	})
}

// SetStartTimestamp records ts as the time lockedStep's step began
// executing, if the run is still active, replacing any start time the step
// already has.
func (c *Controller) SetStartTimestamp(ctx context.Context, runID runmodel.RunID, ts time.Time, lockedStep LockedStep) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.SetStartTimestamp")
	defer span.End()

	return c.withActiveRun(ctx, runID, func(run *runmodel.Run) error {
		info := run.Steps[lockedStep.Step]
		info.StartTime = &ts
		run.Steps[lockedStep.Step] = info
		return nil
	})
}

// withActiveRun locks (app, type), reads the active run, applies mutate if
// it still matches runID and is active, and writes it back. mutate is
// skipped (the call is a silent no-op) once the run has moved on.
func (c *Controller) withActiveRun(ctx context.Context, runID runmodel.RunID, mutate func(*runmodel.Run) error) error {
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
		return nil
	}

	if err := mutate(run); err != nil {
		return err
	}

	if err := c.store.WriteLastRun(ctx, run); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: write updated run")
	}
	return nil
}
