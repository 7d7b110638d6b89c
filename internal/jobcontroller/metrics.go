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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lockWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobcontroller_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a type or step lock, by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobcontroller_active_runs",
			Help: "Number of (application, job type) pairs with an active run, by job type.",
		},
		[]string{"job_type"},
	)
)

// recordLockWait observes how long operation waited to acquire a lock.
func recordLockWait(operation string, waited time.Duration) {
	lockWaitSeconds.WithLabelValues(operation).Observe(waited.Seconds())
}

// setActiveRunGauge reports the current number of active runs for
// jobType, refreshed by the daemon's periodic sweep.
func setActiveRunGauge(jobType string, count int) {
	queueDepth.WithLabelValues(jobType).Set(float64(count))
}
