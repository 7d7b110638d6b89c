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

package memory

import (
	"context"
	"testing"

	"github.com/nimbusline/jobctl/internal/runmodel"
)

func TestReadLastRun_Missing(t *testing.T) {
	s := New()
	_, ok, err := s.ReadLastRun(context.Background(), "app", "type")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no run to be found")
	}
}

func TestWriteLastRun_ThenRead(t *testing.T) {
	s := New()
	ctx := context.Background()
	run := &runmodel.Run{ID: runmodel.RunID{ApplicationID: "app", JobType: "type", Number: 1}}

	if err := s.WriteLastRun(ctx, run); err != nil {
		t.Fatalf("WriteLastRun() error = %v", err)
	}

	got, ok, err := s.ReadLastRun(ctx, "app", "type")
	if err != nil {
		t.Fatalf("ReadLastRun() error = %v", err)
	}
	if !ok {
		t.Fatal("expected run to be found")
	}
	if got.ID != run.ID {
		t.Errorf("ID = %v, want %v", got.ID, run.ID)
	}
}

func TestWriteLastRun_ReturnsACopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	run := &runmodel.Run{ID: runmodel.RunID{ApplicationID: "app", JobType: "type", Number: 1}, Reason: "original"}

	if err := s.WriteLastRun(ctx, run); err != nil {
		t.Fatalf("WriteLastRun() error = %v", err)
	}
	run.Reason = "mutated after write"

	got, _, err := s.ReadLastRun(ctx, "app", "type")
	if err != nil {
		t.Fatalf("ReadLastRun() error = %v", err)
	}
	if got.Reason != "original" {
		t.Errorf("expected stored copy to be unaffected by caller mutation, got %q", got.Reason)
	}
}

func TestHistoricRuns_RoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	runs := map[int64]*runmodel.Run{
		1: {ID: runmodel.RunID{ApplicationID: "app", JobType: "type", Number: 1}, Status: runmodel.StatusSuccess},
		2: {ID: runmodel.RunID{ApplicationID: "app", JobType: "type", Number: 2}, Status: runmodel.StatusError},
	}
	if err := s.WriteHistoricRuns(ctx, "app", "type", runs); err != nil {
		t.Fatalf("WriteHistoricRuns() error = %v", err)
	}

	got, err := s.ReadHistoricRuns(ctx, "app", "type")
	if err != nil {
		t.Fatalf("ReadHistoricRuns() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 historic runs, got %d", len(got))
	}
	if got[1].Status != runmodel.StatusSuccess {
		t.Errorf("run 1 status = %v, want %v", got[1].Status, runmodel.StatusSuccess)
	}
}

func TestHistoricRuns_WriteReplacesWholeMap(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.WriteHistoricRuns(ctx, "app", "type", map[int64]*runmodel.Run{
		1: {ID: runmodel.RunID{ApplicationID: "app", JobType: "type", Number: 1}},
		2: {ID: runmodel.RunID{ApplicationID: "app", JobType: "type", Number: 2}},
	})
	_ = s.WriteHistoricRuns(ctx, "app", "type", map[int64]*runmodel.Run{
		3: {ID: runmodel.RunID{ApplicationID: "app", JobType: "type", Number: 3}},
	})

	got, err := s.ReadHistoricRuns(ctx, "app", "type")
	if err != nil {
		t.Fatalf("ReadHistoricRuns() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected write to replace the map, got %d entries", len(got))
	}
	if _, ok := got[3]; !ok {
		t.Error("expected run 3 to be present after replacement")
	}
}

func TestDeleteRunData_SingleType(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.WriteLastRun(ctx, &runmodel.Run{ID: runmodel.RunID{ApplicationID: "app", JobType: "t1", Number: 1}})
	_ = s.WriteLastRun(ctx, &runmodel.Run{ID: runmodel.RunID{ApplicationID: "app", JobType: "t2", Number: 1}})

	if err := s.DeleteRunData(ctx, "app", "t1"); err != nil {
		t.Fatalf("DeleteRunData() error = %v", err)
	}

	if _, ok, _ := s.ReadLastRun(ctx, "app", "t1"); ok {
		t.Error("expected t1 to be deleted")
	}
	if _, ok, _ := s.ReadLastRun(ctx, "app", "t2"); !ok {
		t.Error("expected t2 to survive a type-scoped delete")
	}
}

func TestDeleteRunData_WholeApplication(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.WriteLastRun(ctx, &runmodel.Run{ID: runmodel.RunID{ApplicationID: "app", JobType: "t1", Number: 1}})
	_ = s.WriteLastRun(ctx, &runmodel.Run{ID: runmodel.RunID{ApplicationID: "app", JobType: "t2", Number: 1}})

	if err := s.DeleteRunData(ctx, "app", ""); err != nil {
		t.Fatalf("DeleteRunData() error = %v", err)
	}

	if _, ok, _ := s.ReadLastRun(ctx, "app", "t1"); ok {
		t.Error("expected t1 to be deleted")
	}
	if _, ok, _ := s.ReadLastRun(ctx, "app", "t2"); ok {
		t.Error("expected t2 to be deleted")
	}
}

func TestApplicationsWithJobs(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.WriteLastRun(ctx, &runmodel.Run{ID: runmodel.RunID{ApplicationID: "a1", JobType: "t1", Number: 1}})
	_ = s.WriteHistoricRuns(ctx, "a2", "t1", map[int64]*runmodel.Run{
		1: {ID: runmodel.RunID{ApplicationID: "a2", JobType: "t1", Number: 1}},
	})

	apps, err := s.ApplicationsWithJobs(ctx)
	if err != nil {
		t.Fatalf("ApplicationsWithJobs() error = %v", err)
	}

	seen := map[string]bool{}
	for _, app := range apps {
		seen[app] = true
	}
	if !seen["a1"] || !seen["a2"] {
		t.Errorf("expected both a1 and a2, got %v", apps)
	}
}
