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
	"sync"
	"time"

	lockmemory "github.com/nimbusline/jobctl/internal/lock/memory"
	logstoremem "github.com/nimbusline/jobctl/internal/logstore/memory"
	"github.com/nimbusline/jobctl/internal/runmodel"
	storememory "github.com/nimbusline/jobctl/internal/store/memory"
)

// fakeClock is a manually-advanced Clock double.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeVersionStatus is a VersionStatus double with a fixed, explicitly
// ordered version list and a set of inactive versions.
type fakeVersionStatus struct {
	ordered  []string
	inactive map[string]bool
}

func (f *fakeVersionStatus) OrderedVersions() []string { return f.ordered }

func (f *fakeVersionStatus) IsActive(version string) bool {
	return !f.inactive[version]
}

// linearProfile builds a Profile whose steps form a strict chain: each
// step's sole prerequisite is the one before it.
func linearProfile(name string, steps ...runmodel.Step) runmodel.Profile {
	prereqs := make(map[runmodel.Step][]runmodel.Step, len(steps))
	for i, s := range steps {
		if i > 0 {
			prereqs[s] = []runmodel.Step{steps[i-1]}
		}
	}
	return runmodel.Profile{Name: name, Steps: steps, Prerequisites: prereqs, RunAlways: map[runmodel.Step]bool{}}
}

// succeedAllSteps marks every step of run Succeeded, as if every
// step-executor reported success, then writes it back through st.
func succeedAllSteps(ctx context.Context, st *storememory.Store, run *runmodel.Run) {
	for step, info := range run.Steps {
		info.Status = runmodel.StepSucceeded
		run.Steps[step] = info
	}
	_ = st.WriteLastRun(ctx, run)
}

// newTestController wires a Controller over fresh in-memory Store, lock,
// and log-store instances, returning them alongside for direct assertions.
func newTestController(clock *fakeClock) (*Controller, *storememory.Store, *lockmemory.Service, *logstoremem.Store) {
	st := storememory.New()
	locks := lockmemory.New(5 * time.Second)
	logs := logstoremem.New()
	c := New(nil, st, locks, logs, WithClock(clock))
	return c, st, locks, logs
}
