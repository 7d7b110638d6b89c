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

// Canonical step names the log-polling operations address. A profile that
// does not declare one of these simply makes the matching Update* call a
// no-op.
const (
	StepInstallTester runmodel.Step = "installTester"
	StepDeployReal    runmodel.Step = "deployReal"
	StepDeployTest    runmodel.Step = "deployTest"
)

// UpdateVespaLog fetches new config-server log entries for runID's
// deployReal step and appends them, advancing LastVespaLogTimestamp.
// Entries stamped at or before LastVespaLogTimestamp are skipped, so an
// overlapping response is not appended twice. A ConfigServer failure is
// logged and swallowed: the run is left exactly
// as it was for the next poll to retry (spec.md §7).
func (c *Controller) UpdateVespaLog(ctx context.Context, runID runmodel.RunID) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.UpdateVespaLog")
	defer span.End()

	if c.configServer == nil {
		return nil
	}

	return c.withActiveRun(ctx, runID, func(run *runmodel.Run) error {
		if !hasStep(run.Profile, StepDeployReal) || run.Steps[StepDeployReal].Status.IsTerminal() {
			return nil
		}

		entries, err := c.configServer.GetLogs(ctx, runID, run.LastVespaLogTimestamp)
		if err != nil {
			c.logger.Warn("jobcontroller: configServer.GetLogs failed", log.Error(err))
			return nil
		}
		if len(entries) == 0 {
			return nil
		}

		messages := make([]string, 0, len(entries))
		latest := run.LastVespaLogTimestamp
		for _, e := range entries {
			if !e.Timestamp.After(run.LastVespaLogTimestamp) {
				continue
			}
			messages = append(messages, e.Message)
			if e.Timestamp.After(latest) {
				latest = e.Timestamp
			}
		}
		if len(messages) == 0 {
			return nil
		}
		if _, err := c.logs.Append(ctx, runID, StepDeployReal, messages); err != nil {
			return errors.WrapKind(errors.Storage, err, "jobcontroller: append vespa log")
		}
		run.LastVespaLogTimestamp = latest
		return nil
	})
}

// UpdateTestLog fetches new tester-cloud log entries for runID's
// deployTest step and appends them, advancing LastTestLogEntry. A
// TesterCloud failure is logged and swallowed.
func (c *Controller) UpdateTestLog(ctx context.Context, runID runmodel.RunID) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.UpdateTestLog")
	defer span.End()

	if c.testerCloud == nil {
		return nil
	}

	return c.withActiveRun(ctx, runID, func(run *runmodel.Run) error {
		if !hasStep(run.Profile, StepDeployTest) || run.Steps[StepDeployTest].Status.IsTerminal() {
			return nil
		}

		entries, err := c.testerCloud.GetLog(ctx, runID, run.LastTestLogEntry)
		if err != nil {
			c.logger.Warn("jobcontroller: testerCloud.GetLog failed", log.Error(err))
			return nil
		}
		if len(entries) == 0 {
			return nil
		}

		messages := make([]string, len(entries))
		latest := run.LastTestLogEntry
		for i, e := range entries {
			messages[i] = e.Message
			if e.ID > latest {
				latest = e.ID
			}
		}
		if _, err := c.logs.Append(ctx, runID, StepDeployTest, messages); err != nil {
			return errors.WrapKind(errors.Storage, err, "jobcontroller: append test log")
		}
		run.LastTestLogEntry = latest
		return nil
	})
}

// UpdateTestReport fetches the tester cloud's test report for runID, if
// one is available and none has been recorded yet, and persists it via
// LogStore. A TesterCloud failure is logged and swallowed.
func (c *Controller) UpdateTestReport(ctx context.Context, runID runmodel.RunID) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.UpdateTestReport")
	defer span.End()

	if c.testerCloud == nil {
		return nil
	}

	return c.withActiveRun(ctx, runID, func(run *runmodel.Run) error {
		if !hasStep(run.Profile, StepDeployTest) {
			return nil
		}

		existing, err := c.logs.ReadTestReports(ctx, runID)
		if err != nil {
			return errors.WrapKind(errors.Storage, err, "jobcontroller: read test reports")
		}
		if len(existing) > 0 {
			return nil
		}

		report, err := c.testerCloud.GetTestReport(ctx, runID)
		if err != nil {
			c.logger.Warn("jobcontroller: testerCloud.GetTestReport failed", log.Error(err))
			return nil
		}
		if report == nil {
			return nil
		}

		if _, err := c.logs.WriteTestReport(ctx, runID, report.Content); err != nil {
			return errors.WrapKind(errors.Storage, err, "jobcontroller: write test report")
		}
		return nil
	})
}

func hasStep(profile runmodel.Profile, step runmodel.Step) bool {
	for _, s := range profile.Steps {
		if s == step {
			return true
		}
	}
	return false
}
