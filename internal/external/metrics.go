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

package external

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nimbusline/jobctl/internal/runmodel"
)

// PrometheusMetrics is a Metric backed by prometheus/client_golang
// counters.
type PrometheusMetrics struct {
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
}

// NewPrometheusMetrics registers the job lifecycle counters against the
// default registry and returns a Metric backed by them.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		started: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobctl_jobs_started_total",
				Help: "Total number of jobs started, by job id.",
			},
			[]string{"job_id"},
		),
		finished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobctl_jobs_finished_total",
				Help: "Total number of jobs finished, by job id and terminal status.",
			},
			[]string{"job_id", "status"},
		),
	}
}

// JobStarted implements Metric.
func (m *PrometheusMetrics) JobStarted(jobID string) {
	m.started.WithLabelValues(jobID).Inc()
}

// JobFinished implements Metric.
func (m *PrometheusMetrics) JobFinished(jobID string, status runmodel.RunStatus) {
	m.finished.WithLabelValues(jobID, string(status)).Inc()
}
