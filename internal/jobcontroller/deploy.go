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
	"strconv"
	"strings"

	"github.com/nimbusline/jobctl/internal/lock"
	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/internal/tracing"
	"github.com/nimbusline/jobctl/pkg/errors"
)

// devProfile is the step set a developer-initiated deploy drives: a
// single real-deployment step with no prerequisites and no run-always
// steps, since a dev deploy never provisions a tester.
var devProfile = runmodel.Profile{
	Name:          "dev",
	Steps:         []runmodel.Step{StepDeployReal},
	Prerequisites: map[runmodel.Step][]runmodel.Step{},
	RunAlways:     map[runmodel.Step]bool{},
}

// Deploy is the developer-deploy path: it replaces any active run for
// (appID, jobType) and starts a new one against pkg. platform, if
// non-empty, names a major version the target platform must belong to.
//
// The data model has no distinct "instance" or application-only lock
// granularity (lock.Service keys on (app, type) and (app, type, step)
// alone), so "ensure the instance exists under the application lock"
// collapses to holding the (app, type) lock for the whole operation;
// lock.Service's re-entrancy lets the nested AbortAndWait/Start calls
// acquire that same lock again without blocking.
func (c *Controller) Deploy(ctx context.Context, appID, jobType, platform string, pkg []byte, dryRun bool) error {
	ctx = lock.EnsureHolder(ctx)
	ctx, span := tracing.SpanFromCorrelation(ctx, c.tracer, "jobcontroller.Deploy")
	defer span.End()

	appHandle, err := c.locks.Lock(ctx, appID, jobType)
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: acquire application lock")
	}
	defer appHandle.Release()

	if last, exists, err := c.store.ReadLastRun(ctx, appID, jobType); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: read last run")
	} else if exists && last.Active() {
		if err := c.AbortAndWait(ctx, last.ID); err != nil {
			return err
		}
	}

	build, err := c.nextBuildNumber(ctx, devArtifactPrefix(appID, jobType))
	if err != nil {
		return err
	}

	previous, _, err := c.artifacts.Get(ctx, devPackageKey(appID, jobType, build-1))
	if err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: read previous dev package")
	}
	diff, err := c.differ.Diff(ctx, previous, pkg)
	if err != nil {
		return errors.WrapKind(errors.External, err, "jobcontroller: diff dev package")
	}

	if err := c.artifacts.PutDev(ctx, devPackageKey(appID, jobType, build), pkg); err != nil {
		return errors.WrapKind(errors.Storage, err, "jobcontroller: store dev package")
	}
	if diff != nil {
		if err := c.artifacts.PutDev(ctx, devDiffKey(appID, jobType, build), diff); err != nil {
			return errors.WrapKind(errors.Storage, err, "jobcontroller: store dev diff")
		}
	}

	var previousPlatform string
	if last, exists, err := c.store.ReadLastRun(ctx, appID, jobType); err == nil && exists {
		previousPlatform = last.Versions.TargetPlatform
	}
	targetPlatform, err := c.resolveTargetPlatform(platform, previousPlatform)
	if err != nil {
		return err
	}

	versions := runmodel.Versions{
		TargetPlatform:    targetPlatform,
		TargetApplication: strconv.FormatInt(build, 10),
	}

	reason := "dev deploy"
	if dryRun {
		reason = "dev deploy (dry run)"
	}

	// Start already invokes the run-step callback with the newly written
	// run on success (spec.md 4.5.1); Deploy does not invoke it a second
	// time.
	return c.Start(ctx, appID, jobType, versions, false, devProfile, reason)
}

// resolveTargetPlatform implements spec.md 4.5.7 step 6: prefer the
// latest active version on the requested major, else the previous
// platform if still active, else the newest active version overall.
func (c *Controller) resolveTargetPlatform(explicitMajor, previousPlatform string) (string, error) {
	if c.versions == nil {
		return "", errors.NewKind(errors.Invalid, "jobcontroller: no VersionStatus configured")
	}
	versions := c.versions.OrderedVersions()

	if explicitMajor != "" {
		for i := len(versions) - 1; i >= 0; i-- {
			if strings.HasPrefix(versions[i], explicitMajor) && c.versions.IsActive(versions[i]) {
				return versions[i], nil
			}
		}
		return "", errors.NewKind(errors.Invalid, fmt.Sprintf("jobcontroller: no active version on major %q", explicitMajor))
	}

	if previousPlatform != "" && c.versions.IsActive(previousPlatform) {
		return previousPlatform, nil
	}

	for i := len(versions) - 1; i >= 0; i-- {
		if c.versions.IsActive(versions[i]) {
			return versions[i], nil
		}
	}
	return "", errors.NewKind(errors.Invalid, "jobcontroller: no active platform version available")
}

// nextBuildNumber scans the artifact store for existing "<prefix><n>/package"
// keys and returns one greater than the highest n found, or 1 if none
// exist.
func (c *Controller) nextBuildNumber(ctx context.Context, prefix string) (int64, error) {
	keys, err := c.artifacts.Find(ctx, prefix)
	if err != nil {
		return 0, errors.WrapKind(errors.Storage, err, "jobcontroller: list builds")
	}

	var max int64
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		n, ok := leadingBuildNumber(rest)
		if ok && n > max {
			max = n
		}
	}
	return max + 1, nil
}

// leadingBuildNumber parses the integer that leads s up to its first "/",
// as produced by devPackageKey/devDiffKey/buildPackageKey/buildDiffKey.
func leadingBuildNumber(s string) (int64, bool) {
	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		idx = len(s)
	}
	n, err := strconv.ParseInt(s[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func devArtifactPrefix(appID, jobType string) string {
	return fmt.Sprintf("%s/%s/dev/", appID, jobType)
}

func devPackageKey(appID, jobType string, build int64) string {
	return fmt.Sprintf("%s%d/package", devArtifactPrefix(appID, jobType), build)
}

func devDiffKey(appID, jobType string, build int64) string {
	return fmt.Sprintf("%s%d/diff", devArtifactPrefix(appID, jobType), build)
}
