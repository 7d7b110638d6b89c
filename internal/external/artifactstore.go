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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	jcerrors "github.com/nimbusline/jobctl/pkg/errors"
)

// LocalArtifactStore is an ArtifactStore over a local directory tree. Real
// application, tester, metadata, and developer-diff artifacts are kept in
// separate subdirectories so each can be pruned independently, but all are
// addressed by the same caller-supplied key.
type LocalArtifactStore struct {
	basePath string

	mu sync.Mutex
}

const (
	artifactSubdirReal = "real"
	artifactSubdirTest = "tester"
	artifactSubdirMeta = "meta"
	artifactSubdirDev  = "dev"
)

// NewLocalArtifactStore creates a LocalArtifactStore rooted at basePath,
// creating it if necessary.
func NewLocalArtifactStore(basePath string) (*LocalArtifactStore, error) {
	for _, sub := range []string{artifactSubdirReal, artifactSubdirTest, artifactSubdirMeta, artifactSubdirDev} {
		if err := os.MkdirAll(filepath.Join(basePath, sub), 0o755); err != nil {
			return nil, jcerrors.WrapKind(jcerrors.Storage, err, "create artifact store directory")
		}
	}
	return &LocalArtifactStore{basePath: basePath}, nil
}

func (s *LocalArtifactStore) put(subdir, key string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(subdir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return jcerrors.WrapKind(jcerrors.Storage, err, "create artifact directory")
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return jcerrors.WrapKind(jcerrors.Storage, err, "write artifact")
	}
	return nil
}

// Put implements ArtifactStore, storing a real application artifact.
func (s *LocalArtifactStore) Put(_ context.Context, key string, content []byte) error {
	return s.put(artifactSubdirReal, key, content)
}

// PutTester implements ArtifactStore.
func (s *LocalArtifactStore) PutTester(_ context.Context, key string, content []byte) error {
	return s.put(artifactSubdirTest, key, content)
}

// PutMeta implements ArtifactStore.
func (s *LocalArtifactStore) PutMeta(_ context.Context, key string, content []byte) error {
	return s.put(artifactSubdirMeta, key, content)
}

// PutDev implements ArtifactStore.
func (s *LocalArtifactStore) PutDev(_ context.Context, key string, content []byte) error {
	return s.put(artifactSubdirDev, key, content)
}

// Get implements ArtifactStore, checking every subdirectory for key since
// the caller does not say which kind of artifact it is.
func (s *LocalArtifactStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range []string{artifactSubdirReal, artifactSubdirTest, artifactSubdirMeta, artifactSubdirDev} {
		content, err := os.ReadFile(s.path(sub, key))
		if err == nil {
			return content, true, nil
		}
		if !os.IsNotExist(err) {
			return nil, false, jcerrors.WrapKind(jcerrors.Storage, err, "read artifact")
		}
	}
	return nil, false, nil
}

// Find implements ArtifactStore, returning every key across all
// subdirectories whose path has the given prefix.
func (s *LocalArtifactStore) Find(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for _, sub := range []string{artifactSubdirReal, artifactSubdirTest, artifactSubdirMeta, artifactSubdirDev} {
		root := filepath.Join(s.basePath, sub)
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			key := filepath.ToSlash(rel)
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
			return nil
		})
		if err != nil {
			return nil, jcerrors.WrapKind(jcerrors.Storage, err, "walk artifact directory")
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Prune implements ArtifactStore, removing real application artifacts
// older than olderThan.
func (s *LocalArtifactStore) Prune(ctx context.Context, olderThan time.Time) error {
	return s.prune(artifactSubdirReal, olderThan)
}

// PruneTesters implements ArtifactStore.
func (s *LocalArtifactStore) PruneTesters(_ context.Context, olderThan time.Time) error {
	return s.prune(artifactSubdirTest, olderThan)
}

// PruneDiffs implements ArtifactStore, removing metadata/diff artifacts.
func (s *LocalArtifactStore) PruneDiffs(_ context.Context, olderThan time.Time) error {
	return s.prune(artifactSubdirMeta, olderThan)
}

// PruneDevDiffs implements ArtifactStore, removing developer-build diffs.
func (s *LocalArtifactStore) PruneDevDiffs(_ context.Context, olderThan time.Time) error {
	return s.prune(artifactSubdirDev, olderThan)
}

func (s *LocalArtifactStore) prune(subdir string, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := filepath.Join(s.basePath, subdir)
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(olderThan) {
			if err := os.Remove(path); err != nil {
				return jcerrors.WrapKind(jcerrors.Storage, err, "prune artifact")
			}
		}
		return nil
	})
}

func (s *LocalArtifactStore) path(subdir, key string) string {
	return filepath.Join(s.basePath, subdir, filepath.FromSlash(key))
}

// S3ArtifactStore is the interface point for an S3-backed ArtifactStore.
// It is not implemented: the retrieved reference pack contains SigV4
// signing primitives (internal/operation/transport/aws_sigv4.go in the
// teacher) but no S3 object-storage client, and fabricating one from the
// signer alone would mean hand-rolling S3's multipart/list/prefix
// semantics rather than adapting an example. ConfigServerClient and
// TesterCloudClient below reuse the same signer for plain request/response
// HTTP calls, which the teacher's transport already covers directly.
type S3ArtifactStore interface {
	ArtifactStore
}
