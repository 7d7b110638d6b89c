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

// Package lock defines the hierarchical advisory locking contract used to
// serialize controller operations on the same (application, job type)
// pair, and optionally the same (application, job type, step) within it.
//
// Lock and LockStep are orthogonal: neither requires holding the other.
// The jobcontroller package's own convention acquires step locks before the
// type lock (outer-then-inner) to avoid priority inversion during finalize.
package lock

import (
	"context"

	"github.com/nimbusline/jobctl/internal/runmodel"
)

// Service grants advisory locks keyed by (application, job type) and
// (application, job type, step). lock/memory grants each key to
// waiters in FIFO order; lock/pgadvisory polls for the advisory lock and
// does not grant in arrival order. Both are re-entrant per holder: a holder that already holds a key's lock can
// acquire it again without blocking, tracked via the context established
// by EnsureHolder.
type Service interface {
	// Lock acquires the (appID, jobType) lock, blocking until acquired,
	// ctx is cancelled, or the implementation's wait bound elapses.
	Lock(ctx context.Context, appID, jobType string) (Handle, error)

	// LockStep acquires the (appID, jobType, step) lock.
	LockStep(ctx context.Context, appID, jobType string, step runmodel.Step) (StepHandle, error)
}

// Handle releases a (appID, jobType) lock. Release is safe to call
// exactly once; implementations may panic or no-op on a second call,
// callers must not rely on either.
type Handle interface {
	Release()
}

// StepHandle releases a (appID, jobType, step) lock.
type StepHandle interface {
	Release()
}
