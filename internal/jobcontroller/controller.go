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
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimbusline/jobctl/internal/external"
	"github.com/nimbusline/jobctl/internal/jobconfig"
	"github.com/nimbusline/jobctl/internal/lock"
	"github.com/nimbusline/jobctl/internal/logstore"
	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/internal/store"
)

// RunStepFunc drives forward progress of a specific run after a
// state-changing controller call. It is invoked with the snapshot of the
// run as last written, never with a locked handle: the callback reads its
// own copy of the run and is expected to acquire whatever step locks it
// needs on its own.
type RunStepFunc func(ctx context.Context, run *runmodel.Run)

// Controller is the deployment job controller. It behaves as a
// process-wide singleton: construct one with New at startup and keep it
// alive for the process lifetime.
type Controller struct {
	cfg *jobconfig.Config

	store store.Store
	locks lock.Service
	logs  logstore.Store

	configServer external.ConfigServer
	testerCloud  external.TesterCloud
	artifacts    external.ArtifactStore
	differ       external.PackageDiffer
	versions     external.VersionStatus
	compat       external.VersionCompatibility
	clock        external.Clock
	metric       external.Metric

	failureMapping runmodel.FailureMapping

	// liveApplications reports the application IDs CollectGarbage must
	// treat as still in service. Nil means "everything is live": a
	// Controller with no configured source of truth for liveness runs a
	// no-op GC rather than deleting data it cannot confirm is gone.
	liveApplications func(ctx context.Context) ([]string, error)

	logger *slog.Logger
	tracer trace.Tracer

	// runStep is a write-once atomic slot: SetRunStep installs it once at
	// bootstrap, every subsequent read observes that same value.
	runStep atomic.Pointer[RunStepFunc]
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithConfigServer sets the ConfigServer collaborator.
func WithConfigServer(cs external.ConfigServer) Option {
	return func(c *Controller) { c.configServer = cs }
}

// WithTesterCloud sets the TesterCloud collaborator.
func WithTesterCloud(tc external.TesterCloud) Option {
	return func(c *Controller) { c.testerCloud = tc }
}

// WithArtifactStore sets the ArtifactStore collaborator.
func WithArtifactStore(as external.ArtifactStore) Option {
	return func(c *Controller) { c.artifacts = as }
}

// WithPackageDiffer sets the collaborator Deploy and Submit delegate
// application-package diffing to. Defaults to external.ByteRangeDiffer.
func WithPackageDiffer(d external.PackageDiffer) Option {
	return func(c *Controller) { c.differ = d }
}

// WithVersionStatus sets the VersionStatus collaborator used by Deploy's
// target-platform selection.
func WithVersionStatus(vs external.VersionStatus) Option {
	return func(c *Controller) { c.versions = vs }
}

// WithVersionCompatibility sets the VersionCompatibility predicate Start
// evaluates when both a target platform and a compile version are known.
func WithVersionCompatibility(vc external.VersionCompatibility) Option {
	return func(c *Controller) { c.compat = vc }
}

// WithClock overrides the Clock every run timestamp is read from. Defaults
// to external.SystemClock.
func WithClock(clk external.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithMetric overrides the Metric sink. Defaults to a no-op.
func WithMetric(m external.Metric) Option {
	return func(c *Controller) { c.metric = m }
}

// WithFailureMapping sets the table used to derive a run's terminal
// status from its first-failing step (spec.md 4.6, 9(b)). Unmapped steps
// (including when no mapping is configured) surface as StatusError.
func WithFailureMapping(m runmodel.FailureMapping) Option {
	return func(c *Controller) { c.failureMapping = m }
}

// WithLiveApplications sets the callback CollectGarbage uses to learn
// which applications are still in service; every application Store has
// data for but this callback does not list is a CollectGarbage candidate.
func WithLiveApplications(fn func(ctx context.Context) ([]string, error)) Option {
	return func(c *Controller) { c.liveApplications = fn }
}

// WithLogger overrides the controller's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithTracer overrides the OpenTelemetry tracer used to instrument
// operations. Defaults to otel.Tracer("jobcontroller").
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) { c.tracer = tracer }
}

// New constructs a Controller over the given store, lock service, and log
// store, applying any Options. Collaborators not set via an Option fall
// back to inert defaults (a system clock, a no-op metric sink) so a
// Controller is usable in tests without wiring every external adapter.
func New(cfg *jobconfig.Config, st store.Store, lk lock.Service, ls logstore.Store, opts ...Option) *Controller {
	if cfg == nil {
		cfg = jobconfig.Default()
	}

	c := &Controller{
		cfg:    cfg,
		store:  st,
		locks:  lk,
		logs:   ls,
		clock:  external.SystemClock{},
		metric: noopMetric{},
		differ: external.ByteRangeDiffer{},
		logger: slog.Default(),
		tracer: otel.Tracer("jobcontroller"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetRunStep installs the callback Controller invokes after every
// state-changing operation to drive the affected run's steps forward. It
// may be called exactly once; later calls overwrite the slot but callers
// must not rely on that — it exists for tests, not for runtime
// reassignment.
func (c *Controller) SetRunStep(fn RunStepFunc) {
	c.runStep.Store(&fn)
}

// invokeRunStep calls the installed RunStepFunc, if any, with run. It
// never blocks the caller on the callback's own locking: RunStepFunc is
// expected to return quickly (typically by handing off to a worker) since
// it runs synchronously inline with the operation that changed state.
func (c *Controller) invokeRunStep(ctx context.Context, run *runmodel.Run) {
	fn := c.runStep.Load()
	if fn == nil || *fn == nil {
		return
	}
	(*fn)(ctx, run)
}

// noopMetric is the Metric default when no collaborator is configured.
type noopMetric struct{}

func (noopMetric) JobStarted(string)                      {}
func (noopMetric) JobFinished(string, runmodel.RunStatus) {}
