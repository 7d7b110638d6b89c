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
	"sort"

	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/pkg/errors"
)

// Runs returns every run recorded for (appID, jobType), historic and
// active, ordered by Number ascending. It is a snapshot of the last
// committed Store state; it does not lock.
func (c *Controller) Runs(ctx context.Context, appID, jobType string) ([]*runmodel.Run, error) {
	history, err := c.store.ReadHistoricRuns(ctx, appID, jobType)
	if err != nil {
		return nil, errors.WrapKind(errors.Storage, err, "jobcontroller: read history")
	}

	runs := make([]*runmodel.Run, 0, len(history)+1)
	for _, r := range history {
		runs = append(runs, r)
	}

	if last, exists, err := c.store.ReadLastRun(ctx, appID, jobType); err != nil {
		return nil, errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
	} else if exists {
		runs = append(runs, last)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].ID.Number < runs[j].ID.Number })
	return runs, nil
}

// Run returns the run matching id, historic or active, if any.
func (c *Controller) Run(ctx context.Context, id runmodel.RunID) (*runmodel.Run, bool, error) {
	if last, exists, err := c.store.ReadLastRun(ctx, id.ApplicationID, id.JobType); err != nil {
		return nil, false, errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
	} else if exists && last.ID == id {
		return last, true, nil
	}

	history, err := c.store.ReadHistoricRuns(ctx, id.ApplicationID, id.JobType)
	if err != nil {
		return nil, false, errors.WrapKind(errors.Storage, err, "jobcontroller: read history")
	}
	if r, ok := history[id.Number]; ok {
		return r, true, nil
	}
	return nil, false, nil
}

// Last returns the active-slot run for (appID, jobType), regardless of
// whether it has since finished.
func (c *Controller) Last(ctx context.Context, appID, jobType string) (*runmodel.Run, bool, error) {
	run, exists, err := c.store.ReadLastRun(ctx, appID, jobType)
	if err != nil {
		return nil, false, errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
	}
	return run, exists, nil
}

// LastCompleted returns the most recent terminal run for (appID, jobType):
// the active run if it has already finished, else the highest-numbered
// historic run.
func (c *Controller) LastCompleted(ctx context.Context, appID, jobType string) (*runmodel.Run, bool, error) {
	if last, exists, err := c.store.ReadLastRun(ctx, appID, jobType); err != nil {
		return nil, false, errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
	} else if exists && !last.Active() {
		return last, true, nil
	}

	history, err := c.store.ReadHistoricRuns(ctx, appID, jobType)
	if err != nil {
		return nil, false, errors.WrapKind(errors.Storage, err, "jobcontroller: read history")
	}
	var latest *runmodel.Run
	for _, r := range history {
		if latest == nil || r.ID.Number > latest.ID.Number {
			latest = r
		}
	}
	return latest, latest != nil, nil
}

// FirstFailing returns the first non-success historic run for (appID,
// jobType), in Number order.
func (c *Controller) FirstFailing(ctx context.Context, appID, jobType string) (*runmodel.Run, bool, error) {
	history, err := c.store.ReadHistoricRuns(ctx, appID, jobType)
	if err != nil {
		return nil, false, errors.WrapKind(errors.Storage, err, "jobcontroller: read history")
	}

	numbers := make([]int64, 0, len(history))
	for n := range history {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	for _, n := range numbers {
		if history[n].Status != runmodel.StatusSuccess {
			return history[n], true, nil
		}
	}
	return nil, false, nil
}

// LastSuccess returns the highest-numbered successful run for (appID,
// jobType), historic or active.
func (c *Controller) LastSuccess(ctx context.Context, appID, jobType string) (*runmodel.Run, bool, error) {
	runs, err := c.Runs(ctx, appID, jobType)
	if err != nil {
		return nil, false, err
	}
	var latest *runmodel.Run
	for _, r := range runs {
		if r.Status == runmodel.StatusSuccess && (latest == nil || r.ID.Number > latest.ID.Number) {
			latest = r
		}
	}
	return latest, latest != nil, nil
}

// Active lists every (app, type) pair in Store that currently has an
// active run. As a side effect it refreshes the jobcontroller_active_runs
// gauge per job type; this is the only place that gauge is set, and the
// daemon's log-poll sweep calls Active on every tick.
func (c *Controller) Active(ctx context.Context) ([]runmodel.RunID, error) {
	apps, err := c.store.ApplicationsWithJobs(ctx)
	if err != nil {
		return nil, errors.WrapKind(errors.Storage, err, "jobcontroller: list applications")
	}

	var active []runmodel.RunID
	byJobType := make(map[string]int)
	for _, app := range apps {
		ids, err := c.ActiveApp(ctx, app)
		if err != nil {
			return nil, err
		}
		active = append(active, ids...)
		for _, id := range ids {
			byJobType[id.JobType]++
		}
	}
	for jobType, count := range byJobType {
		setActiveRunGauge(jobType, count)
	}
	return active, nil
}

// ActiveApp lists every job type of appID that currently has an active
// run. It has no way to enumerate an application's job types without a
// run already recorded for them, so the result is empty for an
// application with no stored runs at all (spec.md's Store contract
// exposes no separate job-type registry).
func (c *Controller) ActiveApp(ctx context.Context, appID string) ([]runmodel.RunID, error) {
	jobTypes, err := c.jobTypesFor(ctx, appID)
	if err != nil {
		return nil, err
	}

	var active []runmodel.RunID
	for _, jobType := range jobTypes {
		run, exists, err := c.store.ReadLastRun(ctx, appID, jobType)
		if err != nil {
			return nil, errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
		}
		if exists && run.Active() {
			active = append(active, run.ID)
		}
	}
	return active, nil
}

// JobStatus returns the status of (appID, jobType)'s most recent run,
// active or historic.
func (c *Controller) JobStatus(ctx context.Context, appID, jobType string) (runmodel.RunStatus, bool, error) {
	run, exists, err := c.LastCompletedOrActive(ctx, appID, jobType)
	if err != nil || !exists {
		return "", exists, err
	}
	return run.Status, true, nil
}

// LastCompletedOrActive returns the active run if one exists, else the
// most recent historic run.
func (c *Controller) LastCompletedOrActive(ctx context.Context, appID, jobType string) (*runmodel.Run, bool, error) {
	if run, exists, err := c.store.ReadLastRun(ctx, appID, jobType); err != nil {
		return nil, false, errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
	} else if exists {
		return run, true, nil
	}
	return c.LastCompleted(ctx, appID, jobType)
}

// DeploymentStatus summarizes appID's deployment standing across every
// job type it has run data for.
func (c *Controller) DeploymentStatus(ctx context.Context, appID string) (map[string]runmodel.RunStatus, error) {
	jobTypes, err := c.jobTypesFor(ctx, appID)
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]runmodel.RunStatus, len(jobTypes))
	for _, jobType := range jobTypes {
		status, exists, err := c.JobStatus(ctx, appID, jobType)
		if err != nil {
			return nil, err
		}
		if exists {
			statuses[jobType] = status
		}
	}
	return statuses, nil
}

// DeploymentStatuses returns DeploymentStatus for every application in
// appIDs, keyed by application ID.
func (c *Controller) DeploymentStatuses(ctx context.Context, appIDs []string) (map[string]map[string]runmodel.RunStatus, error) {
	result := make(map[string]map[string]runmodel.RunStatus, len(appIDs))
	for _, appID := range appIDs {
		status, err := c.DeploymentStatus(ctx, appID)
		if err != nil {
			return nil, err
		}
		result[appID] = status
	}
	return result, nil
}

// jobTypesFor returns the job types appID has stored run data for.
func (c *Controller) jobTypesFor(ctx context.Context, appID string) ([]string, error) {
	types, err := c.store.JobTypesForApplication(ctx, appID)
	if err != nil {
		return nil, errors.WrapKind(errors.Storage, err, "jobcontroller: list job types")
	}
	sort.Strings(types)
	return types, nil
}
