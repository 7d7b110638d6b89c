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

// Package memory provides an in-memory logstore.Store for tests and
// single-process demos.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nimbusline/jobctl/internal/logstore"
	"github.com/nimbusline/jobctl/internal/runmodel"
)

// Compile-time interface assertion.
var _ logstore.Store = (*Store)(nil)

type logKey struct {
	runmodel.RunID
	step runmodel.Step
}

type runKey = runmodel.RunID

type stepLog struct {
	active   []logstore.Entry
	finished []logstore.Entry
	nextID   int64
}

// Store is an in-memory logstore.Store.
type Store struct {
	mu      sync.Mutex
	logs    map[logKey]*stepLog
	reports map[runKey][]logstore.TestReport
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		logs:    make(map[logKey]*stepLog),
		reports: make(map[runKey][]logstore.TestReport),
	}
}

func (s *Store) logFor(id runmodel.RunID, step runmodel.Step) *stepLog {
	key := logKey{RunID: id, step: step}
	l, ok := s.logs[key]
	if !ok {
		l = &stepLog{nextID: 1}
		s.logs[key] = l
	}
	return l
}

func (s *Store) Append(_ context.Context, id runmodel.RunID, step runmodel.Step, messages []string) ([]logstore.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.logFor(id, step)
	now := time.Now()
	entries := make([]logstore.Entry, 0, len(messages))
	for _, msg := range messages {
		e := logstore.Entry{ID: l.nextID, Timestamp: now, Message: msg}
		l.nextID++
		l.active = append(l.active, e)
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) ReadActive(_ context.Context, id runmodel.RunID, step runmodel.Step, afterID int64) ([]logstore.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.logFor(id, step)
	var out []logstore.Entry
	for _, e := range l.active {
		if e.ID > afterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ReadFinished(_ context.Context, id runmodel.RunID, step runmodel.Step) ([]logstore.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.logFor(id, step)
	out := make([]logstore.Entry, len(l.finished))
	copy(out, l.finished)
	return out, nil
}

func (s *Store) Flush(_ context.Context, id runmodel.RunID, step runmodel.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.logFor(id, step)
	if len(l.active) == 0 {
		return nil
	}
	l.finished = append(l.finished, l.active...)
	l.active = nil
	return nil
}

func (s *Store) Delete(_ context.Context, id runmodel.RunID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.logs {
		if key.RunID == id {
			delete(s.logs, key)
		}
	}
	delete(s.reports, id)
	return nil
}

func (s *Store) WriteTestReport(_ context.Context, id runmodel.RunID, content []byte) (logstore.TestReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reports := s.reports[id]
	report := logstore.TestReport{
		ID:        int64(len(reports)) + 1,
		Timestamp: time.Now(),
		Content:   append([]byte(nil), content...),
	}
	s.reports[id] = append(reports, report)
	return report, nil
}

func (s *Store) ReadTestReports(_ context.Context, id runmodel.RunID) ([]logstore.TestReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reports := s.reports[id]
	out := make([]logstore.TestReport, len(reports))
	copy(out, reports)
	return out, nil
}
