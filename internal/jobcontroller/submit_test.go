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
)

func TestSubmit_AssignsMonotoneBuildNumbers(t *testing.T) {
	clock := newFakeClock(time.Now())
	c, _, _, _ := newTestController(clock)
	artifacts := newFakeArtifactStore(clock.Now)
	c.artifacts = artifacts
	ctx := context.Background()

	if err := c.Submit(ctx, "app", "type", []byte("v1"), []byte("t1")); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if err := c.Submit(ctx, "app", "type", []byte("v2"), []byte("t2")); err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}

	if _, found, _ := artifacts.Get(ctx, buildPackageKey("app", "type", 1)); !found {
		t.Error("expected build 1's package to be stored")
	}
	if _, found, _ := artifacts.Get(ctx, buildPackageKey("app", "type", 2)); !found {
		t.Error("expected build 2's package to be stored")
	}
	if _, found, _ := artifacts.Get(ctx, buildTesterKey("app", "type", 2)); !found {
		t.Error("expected build 2's tester package to be stored")
	}
	if _, found, _ := artifacts.Get(ctx, buildDiffKey("app", "type", 2)); !found {
		t.Error("expected a diff to be stored for build 2 against build 1")
	}
}

func TestSubmit_RecordsRevisionList(t *testing.T) {
	clock := newFakeClock(time.Now())
	c, _, _, _ := newTestController(clock)
	c.artifacts = newFakeArtifactStore(clock.Now)
	ctx := context.Background()

	if err := c.Submit(ctx, "app", "type", []byte("v1"), []byte("t1")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	revisions, err := c.readRevisions(ctx, "app", "type")
	if err != nil {
		t.Fatalf("readRevisions() error = %v", err)
	}
	if len(revisions) != 1 || revisions[0].Build != 1 {
		t.Fatalf("revisions = %+v, want a single entry for build 1", revisions)
	}
}

func TestSubmit_PrunesRevisionsOlderThanOldestDeployed(t *testing.T) {
	clock := newFakeClock(time.Now())
	c, st, _, _ := newTestController(clock)
	c.artifacts = newFakeArtifactStore(clock.Now)
	ctx := context.Background()

	for _, pkg := range [][]byte{[]byte("v1"), []byte("v2"), []byte("v3")} {
		if err := c.Submit(ctx, "app", "type", pkg, []byte("t")); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		clock.Advance(time.Hour)
	}

	// A retained run now deploys build 3: everything before it becomes
	// prunable.
	run := &runmodel.Run{
		ID:       runmodel.RunID{ApplicationID: "app", JobType: "type", Number: 1},
		Versions: runmodel.Versions{TargetApplication: "3"},
		Status:   runmodel.StatusSuccess,
		End:      clock.Now(),
	}
	if err := st.WriteHistoricRuns(ctx, "app", "type", map[int64]*runmodel.Run{1: run}); err != nil {
		t.Fatalf("WriteHistoricRuns() error = %v", err)
	}

	if err := c.Submit(ctx, "app", "type", []byte("v4"), []byte("t")); err != nil {
		t.Fatalf("final Submit() error = %v", err)
	}

	revisions, err := c.readRevisions(ctx, "app", "type")
	if err != nil {
		t.Fatalf("readRevisions() error = %v", err)
	}
	for _, r := range revisions {
		if r.Build < 3 {
			t.Errorf("expected build %d to have been pruned from the revision list", r.Build)
		}
	}
}
