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

// Package memory provides a process-local lock.Service: a striped table
// of per-key entries, each a FIFO queue of channel-based waiters, suitable
// for a single controller instance or tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	jcerrors "github.com/nimbusline/jobctl/pkg/errors"

	"github.com/nimbusline/jobctl/internal/lock"
	"github.com/nimbusline/jobctl/internal/runmodel"
)

// Compile-time interface assertion.
var _ lock.Service = (*Service)(nil)

// Service is an in-memory lock.Service.
type Service struct {
	waitBound time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a Service whose Lock/LockStep calls give up with a Timeout
// error after waitBound.
func New(waitBound time.Duration) *Service {
	return &Service{
		waitBound: waitBound,
		entries:   make(map[string]*entry),
	}
}

func (s *Service) entryFor(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

func (s *Service) Lock(ctx context.Context, appID, jobType string) (lock.Handle, error) {
	key := fmt.Sprintf("%s\x00%s", appID, jobType)
	e := s.entryFor(key)
	holder := lock.HolderFrom(ctx)
	if err := e.acquire(ctx, holder, s.waitBound, key); err != nil {
		return nil, err
	}
	return &handle{entry: e}, nil
}

func (s *Service) LockStep(ctx context.Context, appID, jobType string, step runmodel.Step) (lock.StepHandle, error) {
	key := fmt.Sprintf("%s\x00%s\x00%s", appID, jobType, step)
	e := s.entryFor(key)
	holder := lock.HolderFrom(ctx)
	if err := e.acquire(ctx, holder, s.waitBound, key); err != nil {
		return nil, err
	}
	return &handle{entry: e}, nil
}

// entry is a single lock key's state: whether it is held, by whom, at what
// re-entrancy depth, and the FIFO queue of goroutines waiting to acquire
// it next.
type entry struct {
	mu     sync.Mutex
	locked bool
	holder string
	depth  int

	waiters []waiter
}

type waiter struct {
	ch     chan struct{}
	holder string
}

// acquire blocks the caller until it holds the lock, ctx is cancelled, or
// waitBound elapses. Re-entrant: a holder that already holds this entry
// re-acquires immediately, incrementing depth.
func (e *entry) acquire(ctx context.Context, holder string, waitBound time.Duration, key string) error {
	e.mu.Lock()
	if e.locked && e.holder == holder {
		e.depth++
		e.mu.Unlock()
		return nil
	}
	if !e.locked && len(e.waiters) == 0 {
		e.locked = true
		e.holder = holder
		e.depth = 1
		e.mu.Unlock()
		return nil
	}

	w := waiter{ch: make(chan struct{}), holder: holder}
	e.waiters = append(e.waiters, w)
	e.mu.Unlock()

	timer := time.NewTimer(waitBound)
	defer timer.Stop()

	select {
	case <-w.ch:
		// release() already installed us as the new holder.
		return nil
	case <-timer.C:
		if e.cancelWaiter(w.ch) {
			return &jcerrors.TimeoutError{Operation: "lock acquisition: " + key, Duration: waitBound}
		}
		// Lost the race with release(): we were granted anyway.
		return nil
	case <-ctx.Done():
		if e.cancelWaiter(w.ch) {
			return ctx.Err()
		}
		return nil
	}
}

// cancelWaiter removes ch from the waiter queue if it is still there,
// reporting whether the removal happened before release() had already
// granted it the lock.
func (e *entry) cancelWaiter(ch chan struct{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, w := range e.waiters {
		if w.ch == ch {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// release decrements the re-entrancy depth and, once it reaches zero,
// hands the lock to the next waiter in FIFO order or marks it free.
func (e *entry) release() {
	e.mu.Lock()
	e.depth--
	if e.depth > 0 {
		e.mu.Unlock()
		return
	}

	if len(e.waiters) == 0 {
		e.locked = false
		e.holder = ""
		e.mu.Unlock()
		return
	}

	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	e.holder = next.holder
	e.depth = 1
	e.mu.Unlock()

	close(next.ch)
}

type handle struct {
	entry *entry

	once sync.Once
}

func (h *handle) Release() {
	h.once.Do(h.entry.release)
}
