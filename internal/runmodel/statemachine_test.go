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

package runmodel

import "testing"

func TestFailureMapping_StatusFor(t *testing.T) {
	mapping := FailureMapping{
		"deployTest": StatusTestFailure,
		"deployReal": StatusDeploymentFailed,
	}

	if got := mapping.StatusFor("deployTest"); got != StatusTestFailure {
		t.Errorf("StatusFor(deployTest) = %v, want %v", got, StatusTestFailure)
	}
	if got := mapping.StatusFor("unmapped"); got != StatusError {
		t.Errorf("StatusFor(unmapped) = %v, want %v", got, StatusError)
	}
}

func TestCanSucceed(t *testing.T) {
	p := deploymentProfile()
	steps := p.Expand()

	if CanSucceed(p, steps, "deployReal") {
		t.Error("deployReal should not be succeedable before installReal succeeds")
	}

	steps["installReal"] = StepInfo{Status: StepSucceeded}
	if !CanSucceed(p, steps, "deployReal") {
		t.Error("deployReal should be succeedable once installReal has succeeded")
	}
}

func TestAllSucceeded(t *testing.T) {
	p := deploymentProfile()
	steps := p.Expand()

	if AllSucceeded(p, steps) {
		t.Error("a freshly expanded profile should not be all-succeeded")
	}

	for _, s := range p.Steps {
		steps[s] = StepInfo{Status: StepSucceeded}
	}
	if !AllSucceeded(p, steps) {
		t.Error("expected all-succeeded once every step is marked succeeded")
	}
}

func TestFirstFailing(t *testing.T) {
	p := deploymentProfile()
	steps := p.Expand()

	if _, ok := FirstFailing(p, steps); ok {
		t.Error("expected no failing step in a freshly expanded profile")
	}

	steps["installTester"] = StepInfo{Status: StepFailed}
	steps["deployTest"] = StepInfo{Status: StepFailed}

	step, ok := FirstFailing(p, steps)
	if !ok {
		t.Fatal("expected a failing step")
	}
	if step != "installTester" {
		t.Errorf("expected first failing step in profile order, got %q", step)
	}
}

func TestAnyUnfinished(t *testing.T) {
	p := deploymentProfile()
	steps := p.Expand()

	if !AnyUnfinished(p, steps) {
		t.Error("expected unfinished steps in a freshly expanded profile")
	}

	for _, s := range p.Steps {
		steps[s] = StepInfo{Status: StepSucceeded}
	}
	if AnyUnfinished(p, steps) {
		t.Error("expected no unfinished steps once all succeeded")
	}
}

func TestDeriveTerminalStatus(t *testing.T) {
	p := deploymentProfile()
	mapping := FailureMapping{
		"deployTest": StatusTestFailure,
		"deployReal": StatusDeploymentFailed,
	}

	steps := p.Expand()
	for _, s := range p.Steps {
		steps[s] = StepInfo{Status: StepSucceeded}
	}
	if got := DeriveTerminalStatus(p, steps, mapping); got != StatusSuccess {
		t.Errorf("all-succeeded: got %v, want %v", got, StatusSuccess)
	}

	steps["deployTest"] = StepInfo{Status: StepFailed}
	if got := DeriveTerminalStatus(p, steps, mapping); got != StatusTestFailure {
		t.Errorf("deployTest failed: got %v, want %v", got, StatusTestFailure)
	}

	steps["deployTest"] = StepInfo{Status: StepFailed}
	// An unmapped failing step falls back to StatusError.
	unmapped := FailureMapping{}
	if got := DeriveTerminalStatus(p, steps, unmapped); got != StatusError {
		t.Errorf("unmapped failure: got %v, want %v", got, StatusError)
	}
}

func TestResetSteps(t *testing.T) {
	p := deploymentProfile()
	steps := p.Expand()
	for _, s := range p.Steps {
		steps[s] = StepInfo{Status: StepSucceeded}
	}

	reset := ResetSteps(p)
	for _, s := range p.Steps {
		if reset[s].Status != StepUnfinished {
			t.Errorf("step %q: expected reset to Unfinished, got %v", s, reset[s].Status)
		}
	}
}

func TestEligibleAfterAbort(t *testing.T) {
	p := deploymentProfile()
	steps := p.Expand()
	steps["installReal"] = StepInfo{Status: StepSucceeded}
	steps["deployReal"] = StepInfo{Status: StepSucceeded}
	// installTester and deployTest remain Unfinished; only deployTest is
	// RunAlways.

	eligible := EligibleAfterAbort(p, steps)
	if len(eligible) != 1 || eligible[0] != "deployTest" {
		t.Errorf("expected only deployTest eligible after abort, got %v", eligible)
	}
}
