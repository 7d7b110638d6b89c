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

package jobconfig

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"

	jcerrors "github.com/nimbusline/jobctl/pkg/errors"
)

// Watcher reloads Config from its backing YAML file on every write and
// passes the result to a callback. cmd/jobcontrollerd rebuilds its
// Controller from it, so history settings change without a restart; the
// lock wait bound and the poll and sweep intervals keep their startup
// values.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher starts watching configPath for writes. onChange is invoked
// with the freshly loaded and validated Config after each write event. A
// reload that fails (a malformed file mid-edit, for instance) is logged
// and does not invoke onChange, leaving the prior configuration in effect.
func NewWatcher(configPath string, logger *slog.Logger, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, jcerrors.WrapKind(jcerrors.Storage, err, "jobconfig: create file watcher")
	}
	if err := fsw.Add(configPath); err != nil {
		fsw.Close()
		return nil, jcerrors.WrapKind(jcerrors.Storage, err, "jobconfig: watch "+configPath)
	}

	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		path:    configPath,
		watcher: fsw,
		logger:  logger.With(slog.String("component", "jobconfig.watcher"), slog.String("path", configPath)),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go w.run(onChange)
	return w, nil
}

func (w *Watcher) run(onChange func(*Config)) {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config reload failed, keeping prior configuration", slog.Any("error", err))
				continue
			}
			w.logger.Info("reloaded configuration")
			onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", slog.Any("error", err))
		}
	}
}

// Stop stops watching and releases the underlying fsnotify resources.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}
