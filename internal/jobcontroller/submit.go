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
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nimbusline/jobctl/internal/lock"
	"github.com/nimbusline/jobctl/internal/log"
	"github.com/nimbusline/jobctl/internal/tracing"
	"github.com/nimbusline/jobctl/pkg/errors"
)

// revision is one entry in an application's revision list: a submitted
// build, and when it was submitted, so a later prune can translate "older
// than the oldest-deployed build" into the time cutoff ArtifactStore's
// PruneDiffs expects.
type revision struct {
	Build       int64     `json:"build"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Submit accepts a new application+test package pair for (appID, jobType).
func (c *Controller) Submit(ctx context.Context, appID, jobType string, pkg, testPkg []byte) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.Submit")
	defer span.End()

	appHandle, err := c.locks.Lock(ctx, appID, jobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: acquire application lock")
	}
	defer appHandle.Release()

	build, err := c.nextBuildNumber(ctx, buildArtifactPrefix(appID, jobType))
	if err != nil {
		return err
	}

	previous, _, err := c.artifacts.Get(ctx, buildPackageKey(appID, jobType, build-1))
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: read previous package")
	}
	diff, err := c.differ.Diff(ctx, previous, pkg)
	if err != nil {
		return errors.WrapKind(errors.External, err, "jobcontroller: diff package")
	}

	if err := c.artifacts.Put(ctx, buildPackageKey(appID, jobType, build), pkg); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: store package")
	}
	if err := c.artifacts.PutTester(ctx, buildTesterKey(appID, jobType, build), testPkg); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: store tester package")
	}
	if diff != nil {
		if err := c.artifacts.PutMeta(ctx, buildDiffKey(appID, jobType, build), diff); err != nil {
			return errors.WrapKind(errors.Storage, err, "jobcontroller: store diff")
		}
	}

	revisions, err := c.readRevisions(ctx, appID, jobType)
	if err != nil {
		return err
	}
	revisions = append(revisions, revision{Build: build, SubmittedAt: c.clock.Now()})

	oldestDeployed, hasDeployed, err := c.oldestDeployedBuild(ctx, appID, jobType)
	if err != nil {
		return err
	}
	if hasDeployed {
		revisions = pruneRevisions(revisions, oldestDeployed)
	}

	if err := c.writeRevisions(ctx, appID, jobType, revisions); err != nil {
		return err
	}

	if hasDeployed && len(revisions) > 0 {
		cutoff := revisions[0].SubmittedAt
		if err := c.artifacts.PruneDiffs(ctx, cutoff); err != nil {
			c.logger.Warn("jobcontroller: prune revision diffs failed", log.Error(err))
		}
	}

	return nil
}

// oldestDeployedBuild returns the lowest build number any retained run for
// (appID, jobType) still targets, so Submit knows which older revisions are
// safe to prune.
func (c *Controller) oldestDeployedBuild(ctx context.Context, appID, jobType string) (int64, bool, error) {
	runs, err := c.Runs(ctx, appID, jobType)
	if err != nil {
		return 0, false, err
	}

	var oldest int64
	found := false
	for _, run := range runs {
		n, err := strconv.ParseInt(run.Versions.TargetApplication, 10, 64)
		if err != nil {
			continue
		}
		if !found || n < oldest {
			oldest = n
			found = true
		}
	}
	return oldest, found, nil
}

// pruneRevisions drops every revision strictly older than oldestDeployed,
// keeping the list sorted ascending by build number.
func pruneRevisions(revisions []revision, oldestDeployed int64) []revision {
	kept := revisions[:0]
	for _, r := range revisions {
		if r.Build >= oldestDeployed {
			kept = append(kept, r)
		}
	}
	return kept
}

func (c *Controller) readRevisions(ctx context.Context, appID, jobType string) ([]revision, error) {
	raw, exists, err := c.artifacts.Get(ctx, revisionsKey(appID, jobType))
	if err != nil {
		return nil, errors.WrapKind(errors.Storage, err, "jobcontroller: read revisions")
	}
	if !exists || len(raw) == 0 {
		return nil, nil
	}
	var revisions []revision
	if err := json.Unmarshal(raw, &revisions); err != nil {
		return nil, errors.WrapKind(errors.Storage, err, "jobcontroller: decode revisions")
	}
	return revisions, nil
}

func (c *Controller) writeRevisions(ctx context.Context, appID, jobType string, revisions []revision) error {
	raw, err := json.Marshal(revisions)
	if err != nil {
		return errors.WrapKind(errors.Invalid, err, "jobcontroller: encode revisions")
	}
	if err := c.artifacts.PutMeta(ctx, revisionsKey(appID, jobType), raw); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: write revisions")
	}
	return nil
}

func buildArtifactPrefix(appID, jobType string) string {
	return fmt.Sprintf("%s/%s/builds/", appID, jobType)
}

func buildPackageKey(appID, jobType string, build int64) string {
	return fmt.Sprintf("%s%d/package", buildArtifactPrefix(appID, jobType), build)
}

func buildTesterKey(appID, jobType string, build int64) string {
	return fmt.Sprintf("%s%d/tester", buildArtifactPrefix(appID, jobType), build)
}

func buildDiffKey(appID, jobType string, build int64) string {
	return fmt.Sprintf("%s%d/diff", buildArtifactPrefix(appID, jobType), build)
}

func revisionsKey(appID, jobType string) string {
	return fmt.Sprintf("%s/%s/revisions", appID, jobType)
}
