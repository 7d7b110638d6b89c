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
	"strings"
	"sync"
	"time"
)

// fakeArtifact is one stored entry in fakeArtifactStore.
type fakeArtifact struct {
	content  []byte
	storedAt time.Time
}

// fakeArtifactStore is an in-memory external.ArtifactStore double, mirroring
// LocalArtifactStore's four independently prunable kinds.
type fakeArtifactStore struct {
	mu    sync.Mutex
	real  map[string]fakeArtifact
	test  map[string]fakeArtifact
	meta  map[string]fakeArtifact
	dev   map[string]fakeArtifact
	clock func() time.Time
}

func newFakeArtifactStore(clock func() time.Time) *fakeArtifactStore {
	return &fakeArtifactStore{
		real:  map[string]fakeArtifact{},
		test:  map[string]fakeArtifact{},
		meta:  map[string]fakeArtifact{},
		dev:   map[string]fakeArtifact{},
		clock: clock,
	}
}

func (f *fakeArtifactStore) put(m map[string]fakeArtifact, key string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m[key] = fakeArtifact{content: content, storedAt: f.clock()}
	return nil
}

func (f *fakeArtifactStore) Put(_ context.Context, key string, content []byte) error {
	return f.put(f.real, key, content)
}

func (f *fakeArtifactStore) PutTester(_ context.Context, key string, content []byte) error {
	return f.put(f.test, key, content)
}

func (f *fakeArtifactStore) PutMeta(_ context.Context, key string, content []byte) error {
	return f.put(f.meta, key, content)
}

func (f *fakeArtifactStore) PutDev(_ context.Context, key string, content []byte) error {
	return f.put(f.dev, key, content)
}

func (f *fakeArtifactStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range []map[string]fakeArtifact{f.real, f.test, f.meta, f.dev} {
		if a, ok := m[key]; ok {
			return a.content, true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeArtifactStore) Find(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for _, m := range []map[string]fakeArtifact{f.real, f.test, f.meta, f.dev} {
		for k := range m {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func prune(m map[string]fakeArtifact, olderThan time.Time) {
	for k, a := range m {
		if a.storedAt.Before(olderThan) {
			delete(m, k)
		}
	}
}

func (f *fakeArtifactStore) Prune(_ context.Context, olderThan time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prune(f.real, olderThan)
	return nil
}

func (f *fakeArtifactStore) PruneTesters(_ context.Context, olderThan time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prune(f.test, olderThan)
	return nil
}

func (f *fakeArtifactStore) PruneDiffs(_ context.Context, olderThan time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prune(f.meta, olderThan)
	return nil
}

func (f *fakeArtifactStore) PruneDevDiffs(_ context.Context, olderThan time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prune(f.dev, olderThan)
	return nil
}
