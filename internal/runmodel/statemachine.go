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

// FailureMapping configures which terminal RunStatus a run receives when a
// given step is the first one to fail. It replaces a hard-coded
// step-to-status switch with data the caller supplies at construction time;
// a step with no entry maps to StatusError.
type FailureMapping map[Step]RunStatus

// StatusFor returns the terminal status for a run whose first-failing step
// is step. Unmapped steps surface as StatusError, matching spec.md's
// instruction to treat unrecognized failures conservatively.
func (m FailureMapping) StatusFor(step Step) RunStatus {
	if status, ok := m[step]; ok {
		return status
	}
	return StatusError
}

// CanSucceed reports whether step may transition to Succeeded given the
// current per-step statuses: every prerequisite declared in profile must
// already be Succeeded.
func CanSucceed(profile Profile, steps map[Step]StepInfo, step Step) bool {
	for _, prereq := range profile.Prerequisites[step] {
		if steps[prereq].Status != StepSucceeded {
			return false
		}
	}
	return true
}

// AllSucceeded reports whether every step in profile is Succeeded.
func AllSucceeded(profile Profile, steps map[Step]StepInfo) bool {
	for _, s := range profile.Steps {
		if steps[s].Status != StepSucceeded {
			return false
		}
	}
	return true
}

// FirstFailing returns the first step (in profile order) whose status is
// Failed, and true if one exists.
func FirstFailing(profile Profile, steps map[Step]StepInfo) (Step, bool) {
	for _, s := range profile.Steps {
		if steps[s].Status == StepFailed {
			return s, true
		}
	}
	return "", false
}

// AnyUnfinished reports whether any step in profile is still Unfinished.
func AnyUnfinished(profile Profile, steps map[Step]StepInfo) bool {
	for _, s := range profile.Steps {
		if steps[s].Status == StepUnfinished {
			return true
		}
	}
	return false
}

// DeriveTerminalStatus computes the terminal RunStatus for a run whose
// steps are all either Succeeded or Failed (callers must not invoke this
// while AnyUnfinished is true, except for the Aborted/Reset paths which
// bypass step-outcome derivation entirely).
func DeriveTerminalStatus(profile Profile, steps map[Step]StepInfo, mapping FailureMapping) RunStatus {
	if AllSucceeded(profile, steps) {
		return StatusSuccess
	}
	if step, ok := FirstFailing(profile, steps); ok {
		return mapping.StatusFor(step)
	}
	return StatusError
}

// ResetSteps returns a fresh Unfinished state for every step in profile,
// used by Finish's Reset branch to re-arm a run for another attempt while
// leaving Number, Start, and SleepUntil untouched on the Run itself.
func ResetSteps(profile Profile) map[Step]StepInfo {
	return profile.Expand()
}

// EligibleAfterAbort returns the subset of steps that remain eligible to
// execute after a run has been aborted: those marked RunAlways in the
// profile and still Unfinished.
func EligibleAfterAbort(profile Profile, steps map[Step]StepInfo) []Step {
	var eligible []Step
	for _, s := range profile.Steps {
		if profile.IsRunAlways(s) && steps[s].Status == StepUnfinished {
			eligible = append(eligible, s)
		}
	}
	return eligible
}
