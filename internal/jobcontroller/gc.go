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

	"github.com/nimbusline/jobctl/internal/lock"
	"github.com/nimbusline/jobctl/internal/log"
	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/internal/tracing"
	"github.com/nimbusline/jobctl/pkg/errors"
)

// deactivateTesterStep is the pseudo-step CollectGarbage locks while it
// asks the config server to deactivate an application's tester deployment
// (spec.md 4.5.9): it is never a member of any run's profile, it exists
// only to serialize concurrent GC sweeps per (app, type).
const deactivateTesterStep runmodel.Step = "deactivateTester"

// CollectGarbage removes run data for every application Store has data
// for but that the configured live-applications callback does not list.
// A failure part-way through one application's job types leaves that
// application's root key in place so the next sweep retries; other
// applications are unaffected.
func (c *Controller) CollectGarbage(ctx context.Context) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.CollectGarbage")
	defer span.End()

	if c.liveApplications == nil {
		return nil
	}

	live, err := c.liveApplications(ctx)
	if err != nil {
		return errors.WrapKind(errors.External, err, "jobcontroller: list live applications")
	}
	liveSet := make(map[string]bool, len(live))
	for _, app := range live {
		liveSet[app] = true
	}

	stored, err := c.store.ApplicationsWithJobs(ctx)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: list applications")
	}

	for _, appID := range stored {
		if liveSet[appID] {
			continue
		}
		if err := c.collectApplication(ctx, appID); err != nil {
			c.logger.Warn("jobcontroller: collectGarbage failed for application",
				log.String("application_id", appID), log.Error(err))
		}
	}

	return nil
}

func (c *Controller) collectApplication(ctx context.Context, appID string) error {
	jobTypes, err := c.store.JobTypesForApplication(ctx, appID)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: list job types")
	}

	allCleaned := true
	for _, jobType := range jobTypes {
		if err := c.collectJobType(ctx, appID, jobType); err != nil {
			allCleaned = false
			c.logger.Warn("jobcontroller: collectGarbage failed for job type",
				log.String("application_id", appID), log.String("job_type", jobType), log.Error(err))
		}
	}

	if !allCleaned {
		return nil
	}
	if err := c.store.DeleteRunData(ctx, appID, ""); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: delete application root")
	}
	return nil
}

func (c *Controller) collectJobType(ctx context.Context, appID, jobType string) error {
	stepHandle, err := c.locks.LockStep(ctx, appID, jobType, deactivateTesterStep)
	if err != nil {
		return errors.WrapKind(errors.Timeout, err, "jobcontroller: lock deactivateTester")
	}
	defer stepHandle.Release()

	typeHandle, err := c.locks.Lock(ctx, appID, jobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: acquire type lock")
	}
	defer typeHandle.Release()

	if c.configServer != nil {
		if run, exists, err := c.store.ReadLastRun(ctx, appID, jobType); err == nil && exists {
			if err := c.configServer.Deactivate(ctx, run.ID); err != nil {
				c.logger.Warn("jobcontroller: configServer.Deactivate failed",
					log.String("application_id", appID), log.String("job_type", jobType), log.Error(err))
			}
		}
	}

	if err := c.logStoreDeleteAll(ctx, appID, jobType); err != nil {
		c.logger.Warn("jobcontroller: failed to delete run logs during collectGarbage",
			log.String("application_id", appID), log.String("job_type", jobType), log.Error(err))
	}

	if err := c.store.DeleteRunData(ctx, appID, jobType); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: delete run data")
	}
	return nil
}

// logStoreDeleteAll deletes every run's logs for (appID, jobType): the
// active run plus every historic entry.
func (c *Controller) logStoreDeleteAll(ctx context.Context, appID, jobType string) error {
	if run, exists, err := c.store.ReadLastRun(ctx, appID, jobType); err == nil && exists {
		if err := c.logs.Delete(ctx, run.ID); err != nil {
			return err
		}
	}

	history, err := c.store.ReadHistoricRuns(ctx, appID, jobType)
	if err != nil {
		return err
	}
	for number := range history {
		id := runmodel.RunID{ApplicationID: appID, JobType: jobType, Number: number}
		if err := c.logs.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
