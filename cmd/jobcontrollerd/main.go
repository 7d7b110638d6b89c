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

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nimbusline/jobctl/internal/external"
	"github.com/nimbusline/jobctl/internal/jobconfig"
	"github.com/nimbusline/jobctl/internal/jobcontroller"
	"github.com/nimbusline/jobctl/internal/lock"
	lockmemory "github.com/nimbusline/jobctl/internal/lock/memory"
	"github.com/nimbusline/jobctl/internal/lock/pgadvisory"
	"github.com/nimbusline/jobctl/internal/log"
	"github.com/nimbusline/jobctl/internal/logstore"
	logstoremem "github.com/nimbusline/jobctl/internal/logstore/memory"
	logstoresqlite "github.com/nimbusline/jobctl/internal/logstore/sqlite"
	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/internal/store"
	storememory "github.com/nimbusline/jobctl/internal/store/memory"
	storesqlite "github.com/nimbusline/jobctl/internal/store/sqlite"
	"github.com/nimbusline/jobctl/internal/tracing"
)

// Version information (injected via ldflags at build time).
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath      = pflag.String("config", "", "Path to the controller's YAML config file")
		backend         = pflag.String("backend", "memory", "Run store backend (memory, sqlite, postgres)")
		sqlitePath      = pflag.String("sqlite-path", "jobctl.db", "SQLite database path for the sqlite backend")
		postgresURL     = pflag.String("postgres-url", "", "PostgreSQL connection URL for the postgres backend")
		artifactDir     = pflag.String("artifact-dir", "artifacts", "Base directory for stored build artifacts")
		configServerURL = pflag.String("config-server-url", "", "Base URL of the config server (disables Vespa log polling if empty)")
		configServerRgn = pflag.String("config-server-region", "us-east-1", "SigV4 region for the config server client")
		testerCloudURL  = pflag.String("tester-cloud-url", "", "Base URL of the tester cloud (disables test log polling if empty)")
		testerCloudRgn  = pflag.String("tester-cloud-region", "us-east-1", "SigV4 region for the tester cloud client")
		acceptExpr      = pflag.String("version-accept-expr", "", "expr-lang rule accepting a (platform, compile) version pair")
		refuseExpr      = pflag.String("version-refuse-expr", "", "expr-lang rule refusing a (platform, compile) version pair")
		platforms       = pflag.String("platforms", "", "Comma-separated list of every known platform version")
		activePlatforms = pflag.String("active-platforms", "", "Comma-separated subset of --platforms still active")
		liveApps        = pflag.String("live-applications", "", "Comma-separated application IDs CollectGarbage must treat as in service")
		metricsAddr     = pflag.String("metrics-addr", ":9090", "Address the Prometheus /metrics endpoint listens on")
		traceOutput     = pflag.Bool("trace-stdout", false, "Write exported spans to stdout")
		showVersion     = pflag.Bool("version", false, "Show version information")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("jobcontrollerd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := jobconfig.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	tp, shutdownTracing, err := tracing.NewProvider(tracing.ProviderConfig{
		ServiceName:    "jobcontrollerd",
		ServiceVersion: version,
		Writer:         traceWriter(*traceOutput),
	})
	if err != nil {
		logger.Error("failed to start tracer provider", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to flush tracer provider", slog.Any("error", err))
		}
	}()
	tracer := tp.Tracer("jobcontroller")

	runStore, locks, logs, closeBackends, err := buildBackends(backendConfig{
		backend:      *backend,
		sqlitePath:   *sqlitePath,
		postgresURL:  *postgresURL,
		lockWaitBound: cfg.LockWaitBound,
	})
	if err != nil {
		logger.Error("failed to build storage backends", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeBackends()

	artifacts, err := external.NewLocalArtifactStore(*artifactDir)
	if err != nil {
		logger.Error("failed to open artifact store", slog.Any("error", err))
		os.Exit(1)
	}

	opts := []jobcontroller.Option{
		jobcontroller.WithArtifactStore(artifacts),
		jobcontroller.WithMetric(external.NewPrometheusMetrics()),
		jobcontroller.WithLogger(logger),
		jobcontroller.WithTracer(tracer),
		jobcontroller.WithFailureMapping(runmodel.FailureMapping{
			runmodel.StepInstallTester: runmodel.StatusInstallationFailed,
			runmodel.StepDeployReal:    runmodel.StatusDeploymentFailed,
			runmodel.StepDeployTest:    runmodel.StatusTestFailure,
		}),
	}

	if *configServerURL != "" {
		cs, err := external.NewConfigServerClient(context.Background(), external.ConfigServerConfig{
			BaseURL: *configServerURL,
			Region:  *configServerRgn,
			Timeout: 30 * time.Second,
		})
		if err != nil {
			logger.Error("failed to build config server client", slog.Any("error", err))
			os.Exit(1)
		}
		opts = append(opts, jobcontroller.WithConfigServer(cs))
	}

	if *testerCloudURL != "" {
		tc, err := external.NewTesterCloudClient(context.Background(), external.TesterCloudConfig{
			BaseURL: *testerCloudURL,
			Region:  *testerCloudRgn,
			Timeout: 30 * time.Second,
		})
		if err != nil {
			logger.Error("failed to build tester cloud client", slog.Any("error", err))
			os.Exit(1)
		}
		opts = append(opts, jobcontroller.WithTesterCloud(tc))
	}

	if *acceptExpr != "" || *refuseExpr != "" {
		compat, err := external.NewExprVersionCompatibility(*acceptExpr, *refuseExpr)
		if err != nil {
			logger.Error("failed to compile version compatibility rules", slog.Any("error", err))
			os.Exit(1)
		}
		opts = append(opts, jobcontroller.WithVersionCompatibility(compat))
	}

	if *platforms != "" {
		opts = append(opts, jobcontroller.WithVersionStatus(
			external.NewSortedVersionStatus(splitCSV(*platforms), splitCSV(*activePlatforms))))
	}

	if *liveApps != "" {
		live := splitCSV(*liveApps)
		opts = append(opts, jobcontroller.WithLiveApplications(func(context.Context) ([]string, error) {
			return live, nil
		}))
	}

	buildController := func(cfg *jobconfig.Config) *jobcontroller.Controller {
		return jobcontroller.New(cfg, runStore, locks, logs, opts...)
	}

	var live atomic.Pointer[jobcontroller.Controller]
	live.Store(buildController(cfg))

	var cfgWatcher *jobconfig.Watcher
	if *configPath != "" {
		cfgWatcher, err = jobconfig.NewWatcher(*configPath, logger, func(newCfg *jobconfig.Config) {
			live.Store(buildController(newCfg))
			logger.Info("controller reconfigured from updated config file")
		})
		if err != nil {
			logger.Warn("failed to start config file watcher, live reload disabled", slog.Any("error", err))
		} else {
			defer cfgWatcher.Stop()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler()}
	go func() {
		logger.Info("serving metrics", slog.String("addr", *metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	go runLogPollLoop(ctx, &live, cfg.LogPollInterval, logger)
	go runGarbageCollectionLoop(ctx, &live, cfg.RetentionSweepInterval, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", slog.String("signal", sig.String()))

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down metrics server", slog.Any("error", err))
	}
}

// runLogPollLoop periodically advances every active run's Vespa log,
// test log, and test report cursors (spec.md §7). A poller failure for
// one run is logged and does not stop the sweep of the rest. live is
// reloaded on every tick so a config file edit picked up by a
// jobconfig.Watcher takes effect without restarting this loop.
func runLogPollLoop(ctx context.Context, live *atomic.Pointer[jobcontroller.Controller], interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c := live.Load()
			active, err := c.Active(ctx)
			if err != nil {
				logger.Warn("log poll: failed to list active runs", slog.Any("error", err))
				continue
			}
			for _, id := range active {
				if err := c.UpdateVespaLog(ctx, id); err != nil {
					logger.Warn("log poll: UpdateVespaLog failed", slog.Any("error", err))
				}
				if err := c.UpdateTestLog(ctx, id); err != nil {
					logger.Warn("log poll: UpdateTestLog failed", slog.Any("error", err))
				}
				if err := c.UpdateTestReport(ctx, id); err != nil {
					logger.Warn("log poll: UpdateTestReport failed", slog.Any("error", err))
				}
			}
		}
	}
}

// runGarbageCollectionLoop periodically sweeps for applications no
// longer in service (spec.md §4.5.9). live is reloaded on every tick,
// same as runLogPollLoop.
func runGarbageCollectionLoop(ctx context.Context, live *atomic.Pointer[jobcontroller.Controller], interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := live.Load().CollectGarbage(ctx); err != nil {
				logger.Warn("collectGarbage sweep failed", slog.Any("error", err))
			}
		}
	}
}

type backendConfig struct {
	backend       string
	sqlitePath    string
	postgresURL   string
	lockWaitBound time.Duration
}

// buildBackends wires the run store, lock service, and log store for the
// requested backend. memory is single-process only; sqlite is durable but
// still single-process; postgres additionally backs the lock service with
// advisory locks, for controller deployments running more than one
// instance.
func buildBackends(bc backendConfig) (store.Store, lock.Service, logstore.Store, func(), error) {
	switch bc.backend {
	case "memory":
		return storememory.New(), lockmemory.New(bc.lockWaitBound), logstoremem.New(), func() {}, nil

	case "sqlite":
		st, err := storesqlite.New(storesqlite.Config{Path: bc.sqlitePath, WAL: true})
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("jobcontrollerd: open sqlite store: %w", err)
		}
		ls, err := logstoresqlite.New(logstoresqlite.Config{Path: bc.sqlitePath, WAL: true})
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("jobcontrollerd: open sqlite logstore: %w", err)
		}
		return st, lockmemory.New(bc.lockWaitBound), ls, func() {}, nil

	case "postgres":
		// There is no postgres-backed store.Store/logstore.Store in this
		// tree; pg_advisory locks coordinate multiple instances sharing
		// the same SQLite file over a network filesystem instead.
		if bc.postgresURL == "" {
			return nil, nil, nil, nil, fmt.Errorf("jobcontrollerd: --postgres-url is required for the postgres backend")
		}
		db, err := sql.Open("pgx", bc.postgresURL)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("jobcontrollerd: open postgres: %w", err)
		}
		st, err := storesqlite.New(storesqlite.Config{Path: bc.sqlitePath, WAL: true})
		if err != nil {
			db.Close()
			return nil, nil, nil, nil, fmt.Errorf("jobcontrollerd: open sqlite store: %w", err)
		}
		ls, err := logstoresqlite.New(logstoresqlite.Config{Path: bc.sqlitePath, WAL: true})
		if err != nil {
			db.Close()
			return nil, nil, nil, nil, fmt.Errorf("jobcontrollerd: open sqlite logstore: %w", err)
		}
		locks := pgadvisory.New(pgadvisory.Config{DB: db, WaitBound: bc.lockWaitBound})
		return st, locks, ls, func() { db.Close() }, nil

	default:
		return nil, nil, nil, nil, fmt.Errorf("jobcontrollerd: unknown backend %q", bc.backend)
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func traceWriter(enabled bool) io.Writer {
	if enabled {
		return os.Stdout
	}
	return nil
}
