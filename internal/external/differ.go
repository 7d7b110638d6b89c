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
	"bytes"
	"context"
)

// PackageDiffer computes the artifact Deploy and Submit store alongside a
// new application package: something a developer-facing diff viewer can
// render against the previous revision. The controller never interprets
// the diff's bytes itself, only persists them (spec.md 1, Non-goals).
type PackageDiffer interface {
	Diff(ctx context.Context, previous, next []byte) ([]byte, error)
}

// ByteRangeDiffer is a dependency-free PackageDiffer: it has no
// general-purpose binary-delta library to build on anywhere in the
// example pack, so it stores the full new content verbatim when it
// differs from previous, and an empty diff when the two are identical.
// A real deployment would replace this with a proper bsdiff/xdelta
// adapter; the interface boundary is what matters to callers.
type ByteRangeDiffer struct{}

func (ByteRangeDiffer) Diff(ctx context.Context, previous, next []byte) ([]byte, error) {
	if bytes.Equal(previous, next) {
		return nil, nil
	}
	out := make([]byte, len(next))
	copy(out, next)
	return out, nil
}
