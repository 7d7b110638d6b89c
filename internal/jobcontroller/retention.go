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
	"sort"
	"time"

	"github.com/nimbusline/jobctl/internal/runmodel"
)

// applyRetention evicts the oldest entries of runs until both the
// historyLength and maxHistoryAge criteria hold, except it never evicts
// the latest success or the first failing run after it (spec.md 4.4). runs
// is mutated in place; the return value is the numbers of every run it
// evicted, so the caller can delete their logs.
func applyRetention(runs map[int64]*runmodel.Run, historyLength int, maxHistoryAge time.Duration, now time.Time) []int64 {
	numbers := make([]int64, 0, len(runs))
	for n := range runs {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	exempt := exemptNumbers(runs, numbers)

	var evicted []int64
	for {
		oldest, ok := oldestNonExempt(runs, numbers, exempt)
		if !ok {
			break
		}
		overLength := len(runs) > historyLength
		tooOld := now.Sub(runs[oldest].Start) > maxHistoryAge
		if !overLength && !tooOld {
			break
		}
		delete(runs, oldest)
		evicted = append(evicted, oldest)
	}

	return evicted
}

// exemptNumbers returns the run numbers applyRetention must never evict:
// the latest success, and the first subsequent failing run (the next
// entry, in number order, whose status is not success).
func exemptNumbers(runs map[int64]*runmodel.Run, sortedNumbers []int64) map[int64]bool {
	exempt := make(map[int64]bool, 2)

	var latestSuccess int64 = -1
	for _, n := range sortedNumbers {
		if runs[n].Status == runmodel.StatusSuccess && n > latestSuccess {
			latestSuccess = n
		}
	}
	if latestSuccess < 0 {
		return exempt
	}
	exempt[latestSuccess] = true

	for _, n := range sortedNumbers {
		if n > latestSuccess && runs[n].Status != runmodel.StatusSuccess {
			exempt[n] = true
			break
		}
	}
	return exempt
}

// oldestNonExempt returns the smallest run number still present in runs
// that is not in exempt.
func oldestNonExempt(runs map[int64]*runmodel.Run, sortedNumbers []int64, exempt map[int64]bool) (int64, bool) {
	for _, n := range sortedNumbers {
		if exempt[n] {
			continue
		}
		if _, ok := runs[n]; ok {
			return n, true
		}
	}
	return 0, false
}

// oldestRetainedStart returns the earliest Start time among runs, used to
// translate "the minimum build number still referenced by any retained
// run" (spec.md 4.5.2 step 9) into the time-based cutoff
// external.ArtifactStore's Prune family expects. fallback is returned
// unchanged if runs is empty.
func oldestRetainedStart(runs map[int64]*runmodel.Run, fallback time.Time) time.Time {
	cutoff := fallback
	first := true
	for _, r := range runs {
		if first || r.Start.Before(cutoff) {
			cutoff = r.Start
			first = false
		}
	}
	return cutoff
}
