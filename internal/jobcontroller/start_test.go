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
	"testing"
	"time"

	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/pkg/errors"
)

type fakeCompat struct {
	accept bool
	refuse bool
}

func (f fakeCompat) Accept(platform, compile string) bool { return f.accept }
func (f fakeCompat) Refuse(platform, compile string) bool { return f.refuse }

func TestStart_NumbersAreMonotone(t *testing.T) {
	clock := newFakeClock(time.Now())
	c, st, _, _ := newTestController(clock)
	ctx := context.Background()
	profile := linearProfile("p", StepDeployReal)

	for want := int64(1); want <= 3; want++ {
		if err := c.Start(ctx, "app", "type", runmodel.Versions{}, false, profile, "go"); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		run, _, _ := st.ReadLastRun(ctx, "app", "type")
		if run.ID.Number != want {
			t.Fatalf("run number = %d, want %d", run.ID.Number, want)
		}
		succeedAllSteps(ctx, st, run)
		if err := c.Finish(ctx, run.ID); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
	}
}

func TestStart_ConflictWhenActiveRunExists(t *testing.T) {
	clock := newFakeClock(time.Now())
	c, _, _, _ := newTestController(clock)
	ctx := context.Background()
	profile := linearProfile("p", StepDeployReal)

	if err := c.Start(ctx, "app", "type", runmodel.Versions{}, false, profile, "go"); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}

	err := c.Start(ctx, "app", "type", runmodel.Versions{}, false, profile, "go again")
	if !errors.IsKind(err, errors.Conflict) {
		t.Fatalf("second Start() error = %v, want Conflict", err)
	}
}

func TestStart_RejectsIncompatibleVersions(t *testing.T) {
	clock := newFakeClock(time.Now())
	c, _, _, _ := newTestController(clock)
	c.compat = fakeCompat{accept: false, refuse: true}
	ctx := context.Background()
	profile := linearProfile("p", StepDeployReal)

	versions := runmodel.Versions{TargetPlatform: "8.0", CompileVersion: "7.0"}
	err := c.Start(ctx, "app", "type", versions, false, profile, "go")
	if !errors.IsKind(err, errors.Invalid) {
		t.Fatalf("Start() error = %v, want Invalid", err)
	}
}

func TestStart_SkipsCompatibilityCheckWhenVersionsUnknown(t *testing.T) {
	clock := newFakeClock(time.Now())
	c, _, _, _ := newTestController(clock)
	c.compat = fakeCompat{accept: false, refuse: true}
	ctx := context.Background()
	profile := linearProfile("p", StepDeployReal)

	if err := c.Start(ctx, "app", "type", runmodel.Versions{}, false, profile, "go"); err != nil {
		t.Fatalf("Start() error = %v, want nil (no compatibility check without both versions)", err)
	}
}

func TestStart_InvalidProfileRejected(t *testing.T) {
	clock := newFakeClock(time.Now())
	c, _, _, _ := newTestController(clock)
	ctx := context.Background()

	profile := runmodel.Profile{
		Name:          "bad",
		Steps:         []runmodel.Step{StepDeployReal},
		Prerequisites: map[runmodel.Step][]runmodel.Step{StepDeployReal: {"missing"}},
		RunAlways:     map[runmodel.Step]bool{},
	}

	err := c.Start(ctx, "app", "type", runmodel.Versions{}, false, profile, "go")
	if !errors.IsKind(err, errors.Invalid) {
		t.Fatalf("Start() error = %v, want Invalid", err)
	}
}

func TestStart_InvokesRunStep(t *testing.T) {
	clock := newFakeClock(time.Now())
	c, _, _, _ := newTestController(clock)
	ctx := context.Background()
	profile := linearProfile("p", StepDeployReal)

	var invoked *runmodel.Run
	c.SetRunStep(func(ctx context.Context, run *runmodel.Run) { invoked = run })

	if err := c.Start(ctx, "app", "type", runmodel.Versions{}, false, profile, "go"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if invoked == nil || invoked.ID.Number != 1 {
		t.Fatalf("expected run-step callback to be invoked with the new run, got %v", invoked)
	}
}
