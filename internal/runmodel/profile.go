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

import (
	"fmt"
)

// Profile is a named, versioned DAG of steps for a job type: the ordered
// set of steps a run of that type must drive to completion, their
// dependency edges, and which ones still execute after the run is aborted.
type Profile struct {
	Name  string
	Steps []Step

	// Prerequisites maps a step to the steps that must be Succeeded
	// before it may become Succeeded itself.
	Prerequisites map[Step][]Step

	// RunAlways marks steps that remain eligible to execute even after
	// the run has been aborted (spec.md 4.5.3).
	RunAlways map[Step]bool
}

// Expand returns the initial per-step state for a new run of this profile:
// every step Unfinished, in Steps order.
func (p Profile) Expand() map[Step]StepInfo {
	steps := make(map[Step]StepInfo, len(p.Steps))
	for _, s := range p.Steps {
		steps[s] = StepInfo{Status: StepUnfinished}
	}
	return steps
}

// IsRunAlways reports whether step keeps executing after an abort.
func (p Profile) IsRunAlways(step Step) bool {
	return p.RunAlways[step]
}

// Validate rejects a profile whose prerequisite graph has a dangling
// reference (a prerequisite not itself a declared step) or a cycle.
func (p Profile) Validate() error {
	declared := make(map[Step]bool, len(p.Steps))
	for _, s := range p.Steps {
		if declared[s] {
			return fmt.Errorf("runmodel: profile %q declares step %q more than once", p.Name, s)
		}
		declared[s] = true
	}

	for step, prereqs := range p.Prerequisites {
		if !declared[step] {
			return fmt.Errorf("runmodel: profile %q has prerequisites for undeclared step %q", p.Name, step)
		}
		for _, pr := range prereqs {
			if !declared[pr] {
				return fmt.Errorf("runmodel: profile %q step %q has dangling prerequisite %q", p.Name, step, pr)
			}
		}
	}

	if cycle := p.findCycle(); cycle != nil {
		return fmt.Errorf("runmodel: profile %q has a prerequisite cycle: %v", p.Name, cycle)
	}

	return nil
}

// findCycle runs a depth-first search over the prerequisite graph and
// returns the first cycle found, or nil if the graph is a DAG.
func (p Profile) findCycle() []Step {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[Step]int, len(p.Steps))
	var path []Step
	var cycle []Step

	var visit func(Step) bool
	visit = func(s Step) bool {
		color[s] = grey
		path = append(path, s)
		for _, pr := range p.Prerequisites[s] {
			switch color[pr] {
			case grey:
				cycle = append(append([]Step{}, path...), pr)
				return true
			case white:
				if visit(pr) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[s] = black
		return false
	}

	// Iterate Steps in declared order so the reported cycle is
	// deterministic regardless of Go's map iteration order.
	for _, s := range p.Steps {
		if color[s] == white {
			if visit(s) {
				return cycle
			}
		}
	}
	return nil
}
