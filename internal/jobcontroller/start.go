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

	"github.com/nimbusline/jobctl/internal/lock"
	"github.com/nimbusline/jobctl/internal/log"
	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/internal/tracing"
	"github.com/nimbusline/jobctl/pkg/errors"
)

// Start begins a new run for (appID, jobType). It fails with
// errors.Conflict if a run is already active, and with errors.Invalid if
// versions names a platform/compile pair the configured
// VersionCompatibility predicate rejects. On success it writes the new run
// as the active run for (appID, jobType) and invokes the installed
// RunStepFunc with it; Start itself never drives step execution.
func (c *Controller) Start(ctx context.Context, appID, jobType string, versions runmodel.Versions, isRedeployment bool, profile runmodel.Profile, reason string) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.Start")
	defer span.End()

	logger := log.WithRunContext(c.logger, appID, jobType, 0)

	if err := profile.Validate(); err != nil {
		return errors.WrapKind(errors.Invalid, err, "jobcontroller: invalid profile")
	}

	waitStart := c.clock.Now()
	handle, err := c.locks.Lock(ctx, appID, jobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: acquire type lock")
	}
	defer handle.Release()
	recordLockWait("start", c.clock.Now().Sub(waitStart))

	last, exists, err := c.store.ReadLastRun(ctx, appID, jobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
	}
	if exists && last.Active() {
		return errors.NewKind(errors.Conflict, fmt.Sprintf("jobcontroller: run %s is still active", last.ID))
	}

	if versions.TargetPlatform != "" && versions.CompileVersion != "" && c.compat != nil {
		if c.compat.Refuse(versions.TargetPlatform, versions.CompileVersion) {
			return errors.NewKind(errors.Invalid, fmt.Sprintf("jobcontroller: platform %s rejects compile version %s", versions.TargetPlatform, versions.CompileVersion))
		}
		if !c.compat.Accept(versions.TargetPlatform, versions.CompileVersion) {
			return errors.NewKind(errors.Invalid, fmt.Sprintf("jobcontroller: platform %s does not accept compile version %s", versions.TargetPlatform, versions.CompileVersion))
		}
	}

	var newNumber int64 = 1
	if exists {
		newNumber = last.ID.Number + 1
	}

	run := &runmodel.Run{
		ID: runmodel.RunID{
			ApplicationID: appID,
			JobType:       jobType,
			Number:        newNumber,
		},
		Versions:       versions,
		IsRedeployment: isRedeployment,
		Start:          c.clock.Now(),
		Status:         runmodel.StatusRunning,
		Steps:          profile.Expand(),
		Profile:        profile,
		Reason:         reason,
	}

	if err := c.store.WriteLastRun(ctx, run); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: write new run")
	}

	c.metric.JobStarted(run.ID.String())
	logger.Info("run started",
		log.Int64(log.RunNumberKey, newNumber),
		log.Bool("isRedeployment", isRedeployment),
	)

	c.invokeRunStep(ctx, run)
	return nil
}
