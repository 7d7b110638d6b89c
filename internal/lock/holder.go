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

package lock

import (
	"context"

	"github.com/google/uuid"
)

type holderKeyType struct{}

var holderKey = holderKeyType{}

// EnsureHolder returns a context carrying a holder token, reusing one
// already present. Every top-level jobcontroller operation calls this once
// on entry and threads the returned context through every Lock/LockStep
// call it makes (including calls made while already holding a lock), so
// that re-entrant acquisition is recognized as coming from the same
// logical caller rather than a new contender.
func EnsureHolder(ctx context.Context) context.Context {
	if _, ok := ctx.Value(holderKey).(string); ok {
		return ctx
	}
	return context.WithValue(ctx, holderKey, uuid.NewString())
}

// HolderFrom returns the holder token carried by ctx. A context that never
// passed through EnsureHolder gets a fresh, one-off token: locking still
// works, it simply is not re-entrant for that call.
func HolderFrom(ctx context.Context) string {
	if h, ok := ctx.Value(holderKey).(string); ok {
		return h
	}
	return uuid.NewString()
}
