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

// Package jobconfig loads the deployment job controller's tunables from a
// YAML file, environment variables, and built-in defaults.
package jobconfig

import (
	"os"
	"strconv"
	"time"

	jcerrors "github.com/nimbusline/jobctl/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the controller's runtime tunables.
type Config struct {
	Log   LogConfig   `yaml:"log"`
	Retry RetryConfig `yaml:"retry"`

	// HistoryLength caps the number of historic runs kept per (app, type)
	// for applications that are not under continuous deployment.
	HistoryLength int `yaml:"history_length"`

	// ContinuousDeploymentHistoryLength is the history bound applied
	// instead of HistoryLength when ContinuousDeployment is set.
	ContinuousDeploymentHistoryLength int `yaml:"continuous_deployment_history_length"`

	// MaxHistoryAge is the maximum age of a historic run before it becomes
	// eligible for pruning, subject to the latest-success and
	// first-subsequent-failure exceptions.
	MaxHistoryAge time.Duration `yaml:"max_history_age"`

	// ContinuousDeployment selects the larger history bound
	// (ContinuousDeploymentHistoryLength instead of HistoryLength) used
	// for applications under continuous deployment.
	ContinuousDeployment bool `yaml:"continuous_deployment"`

	// LockWaitBound is the maximum duration a caller waits to acquire a
	// run or step lock before giving up with a Timeout error.
	LockWaitBound time.Duration `yaml:"lock_wait_bound"`

	// LogPollInterval is how often UpdateVespaLog/UpdateTestLog are swept
	// for active runs by the daemon's background poller.
	LogPollInterval time.Duration `yaml:"log_poll_interval"`

	// RetentionSweepInterval is how often the daemon runs CollectGarbage.
	// History retention itself is applied only inside Finish; no periodic
	// sweep re-applies it.
	RetentionSweepInterval time.Duration `yaml:"retention_sweep_interval"`
}

// LogConfig mirrors internal/log.Config's shape so it can be loaded from
// the same YAML document as the rest of the controller's settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// RetryConfig holds request-rate settings that Load reads and Validate
// checks. The external adapters do not read it: their rate limiter uses the
// fixed defaultRequestRate in internal/external.
type RetryConfig struct {
	// RequestsPerSecond is the steady-state token refill rate.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the maximum number of requests admitted without waiting.
	Burst int `yaml:"burst"`
}

// Default returns a Config with sensible defaults for a single-node
// deployment.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Retry: RetryConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		HistoryLength:                     64,
		ContinuousDeploymentHistoryLength: 256,
		MaxHistoryAge:                     60 * 24 * time.Hour,
		ContinuousDeployment:              false,
		LockWaitBound:                     30 * time.Second,
		LogPollInterval:                   5 * time.Second,
		RetentionSweepInterval:            10 * time.Minute,
	}
}

// Load loads configuration from environment variables and optionally from
// a YAML file. Environment variables take precedence over file-based
// configuration.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &jcerrors.ConfigError{
				Key:    "config_file",
				Reason: "failed to load from " + configPath,
				Cause:  err,
			}
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &jcerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// loadFromEnv overrides config fields from environment variables.
// Supported environment variables:
//   - JOBCTL_LOG_LEVEL, JOBCTL_LOG_FORMAT
//   - JOBCTL_HISTORY_LENGTH, JOBCTL_CONTINUOUS_DEPLOYMENT_HISTORY_LENGTH
//   - JOBCTL_MAX_HISTORY_AGE
//   - JOBCTL_CONTINUOUS_DEPLOYMENT
//   - JOBCTL_LOCK_WAIT_BOUND, JOBCTL_LOG_POLL_INTERVAL
//   - JOBCTL_RETENTION_SWEEP_INTERVAL
func (c *Config) loadFromEnv() {
	if val := os.Getenv("JOBCTL_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("JOBCTL_LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
	if val := os.Getenv("JOBCTL_HISTORY_LENGTH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.HistoryLength = n
		}
	}
	if val := os.Getenv("JOBCTL_CONTINUOUS_DEPLOYMENT_HISTORY_LENGTH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.ContinuousDeploymentHistoryLength = n
		}
	}
	if val := os.Getenv("JOBCTL_MAX_HISTORY_AGE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.MaxHistoryAge = d
		}
	}
	if val := os.Getenv("JOBCTL_CONTINUOUS_DEPLOYMENT"); val != "" {
		c.ContinuousDeployment = val == "true" || val == "1"
	}
	if val := os.Getenv("JOBCTL_LOCK_WAIT_BOUND"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.LockWaitBound = d
		}
	}
	if val := os.Getenv("JOBCTL_LOG_POLL_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.LogPollInterval = d
		}
	}
	if val := os.Getenv("JOBCTL_RETENTION_SWEEP_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.RetentionSweepInterval = d
		}
	}
}

// Validate checks that the configuration's invariants hold.
func (c *Config) Validate() error {
	if c.HistoryLength <= 0 {
		return &jcerrors.ValidationError{Field: "history_length", Message: "must be positive"}
	}
	if c.ContinuousDeploymentHistoryLength <= 0 {
		return &jcerrors.ValidationError{Field: "continuous_deployment_history_length", Message: "must be positive"}
	}
	if c.MaxHistoryAge <= 0 {
		return &jcerrors.ValidationError{Field: "max_history_age", Message: "must be positive"}
	}
	if c.LockWaitBound <= 0 {
		return &jcerrors.ValidationError{Field: "lock_wait_bound", Message: "must be positive"}
	}
	if c.LogPollInterval <= 0 {
		return &jcerrors.ValidationError{Field: "log_poll_interval", Message: "must be positive"}
	}
	if c.RetentionSweepInterval <= 0 {
		return &jcerrors.ValidationError{Field: "retention_sweep_interval", Message: "must be positive"}
	}
	if c.Retry.RequestsPerSecond <= 0 {
		return &jcerrors.ValidationError{Field: "retry.requests_per_second", Message: "must be positive"}
	}
	if c.Retry.Burst <= 0 {
		return &jcerrors.ValidationError{Field: "retry.burst", Message: "must be positive"}
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return &jcerrors.ValidationError{Field: "log.format", Message: "must be json or text"}
	}
	return nil
}

// EffectiveHistoryLength returns the history bound that applies given
// ContinuousDeployment: ContinuousDeploymentHistoryLength (256 by default)
// for continuously-deployed applications, HistoryLength (64 by default)
// otherwise.
func (c *Config) EffectiveHistoryLength() int {
	if c.ContinuousDeployment {
		return c.ContinuousDeploymentHistoryLength
	}
	return c.HistoryLength
}
