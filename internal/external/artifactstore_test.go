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
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestArtifactStore(t *testing.T) *LocalArtifactStore {
	t.Helper()
	s, err := NewLocalArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalArtifactStore() error = %v", err)
	}
	return s
}

func TestLocalArtifactStore_PutAndGet(t *testing.T) {
	s := newTestArtifactStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "app1/build-42.tar.gz", []byte("payload")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	content, ok, err := s.Get(ctx, "app1/build-42.tar.gz")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("expected artifact to be found")
	}
	if string(content) != "payload" {
		t.Errorf("content = %q, want %q", content, "payload")
	}
}

func TestLocalArtifactStore_Get_Missing(t *testing.T) {
	s := newTestArtifactStore(t)
	_, ok, err := s.Get(context.Background(), "does/not/exist")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("expected a miss for an unwritten key")
	}
}

func TestLocalArtifactStore_KindsAreIndependent(t *testing.T) {
	s := newTestArtifactStore(t)
	ctx := context.Background()
	key := "app1/build-42"

	s.Put(ctx, key, []byte("real"))
	s.PutTester(ctx, key, []byte("tester"))
	s.PutMeta(ctx, key, []byte("meta"))
	s.PutDev(ctx, key, []byte("dev"))

	realPath := filepath.Join(s.basePath, artifactSubdirReal, key)
	testPath := filepath.Join(s.basePath, artifactSubdirTest, key)
	if realPath == testPath {
		t.Fatal("real and tester artifacts should not share a path")
	}

	content, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get() = %s, %v, %v", content, ok, err)
	}
}

func TestLocalArtifactStore_Find(t *testing.T) {
	s := newTestArtifactStore(t)
	ctx := context.Background()

	s.Put(ctx, "app1/build-1", []byte("a"))
	s.Put(ctx, "app1/build-2", []byte("b"))
	s.Put(ctx, "app2/build-1", []byte("c"))

	keys, err := s.Find(ctx, "app1/")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Find(%q) = %v, want 2 matches", "app1/", keys)
	}
}

func TestLocalArtifactStore_Prune(t *testing.T) {
	s := newTestArtifactStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "app1/old", []byte("a")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := s.Prune(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	_, ok, err := s.Get(ctx, "app1/old")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("expected artifact older than the prune threshold to be removed")
	}
}

func TestLocalArtifactStore_Prune_KeepsNewerArtifacts(t *testing.T) {
	s := newTestArtifactStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "app1/new", []byte("a")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := s.Prune(ctx, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	_, ok, err := s.Get(ctx, "app1/new")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Error("expected artifact newer than the prune threshold to survive")
	}
}

func TestLocalArtifactStore_PruneTesters_DoesNotAffectReal(t *testing.T) {
	s := newTestArtifactStore(t)
	ctx := context.Background()

	s.Put(ctx, "app1/real", []byte("a"))
	s.PutTester(ctx, "app1/tester", []byte("b"))

	if err := s.PruneTesters(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("PruneTesters() error = %v", err)
	}

	_, ok, _ := s.Get(ctx, "app1/real")
	if !ok {
		t.Error("PruneTesters should not remove real artifacts")
	}
}
