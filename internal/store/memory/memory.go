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

// Package memory provides an in-memory store.Store implementation for
// tests and single-process demos.
package memory

import (
	"context"
	"sync"

	"github.com/nimbusline/jobctl/internal/runmodel"
	"github.com/nimbusline/jobctl/internal/store"
)

// Compile-time interface assertion.
var _ store.Store = (*Store)(nil)

type key struct {
	appID   string
	jobType string
}

// Store is an in-memory store.Store backend. The zero value is not usable;
// construct with New.
type Store struct {
	mu       sync.RWMutex
	last     map[key]*runmodel.Run
	historic map[key]map[int64]*runmodel.Run
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		last:     make(map[key]*runmodel.Run),
		historic: make(map[key]map[int64]*runmodel.Run),
	}
}

func (s *Store) ReadLastRun(ctx context.Context, appID, jobType string) (*runmodel.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.last[key{appID, jobType}]
	if !ok {
		return nil, false, nil
	}
	clone := *run
	return &clone, true, nil
}

func (s *Store) WriteLastRun(ctx context.Context, run *runmodel.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *run
	s.last[key{run.ID.ApplicationID, run.ID.JobType}] = &clone
	return nil
}

func (s *Store) ReadHistoricRuns(ctx context.Context, appID, jobType string) (map[int64]*runmodel.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]*runmodel.Run)
	for number, run := range s.historic[key{appID, jobType}] {
		clone := *run
		out[number] = &clone
	}
	return out, nil
}

func (s *Store) WriteHistoricRuns(ctx context.Context, appID, jobType string, runs map[int64]*runmodel.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make(map[int64]*runmodel.Run, len(runs))
	for number, run := range runs {
		clone := *run
		replacement[number] = &clone
	}
	s.historic[key{appID, jobType}] = replacement
	return nil
}

func (s *Store) DeleteRunData(ctx context.Context, appID, jobType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if jobType != "" {
		delete(s.last, key{appID, jobType})
		delete(s.historic, key{appID, jobType})
		return nil
	}

	for k := range s.last {
		if k.appID == appID {
			delete(s.last, k)
		}
	}
	for k := range s.historic {
		if k.appID == appID {
			delete(s.historic, k)
		}
	}
	return nil
}

func (s *Store) ApplicationsWithJobs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for k := range s.last {
		seen[k.appID] = true
	}
	for k := range s.historic {
		seen[k.appID] = true
	}

	apps := make([]string, 0, len(seen))
	for app := range seen {
		apps = append(apps, app)
	}
	return apps, nil
}

func (s *Store) JobTypesForApplication(ctx context.Context, appID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for k := range s.last {
		if k.appID == appID {
			seen[k.jobType] = true
		}
	}
	for k := range s.historic {
		if k.appID == appID {
			seen[k.jobType] = true
		}
	}

	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	return types, nil
}
