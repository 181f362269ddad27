// Copyright 2021 Silvio Böhler
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package sync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sboehler/kasse/lib/tasks"
)

// Watch watches the data directory for changed ledger files until ctx
// is done. Each changed file is synced after it has been quiet for
// WatchDelay. Retries of failed syncs are scheduled on ts as well.
func (s *Service) Watch(ctx context.Context, ts *tasks.Scheduler) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := s.addDirs(w, s.dir); err != nil {
		w.Close()
		return err
	}
	s.mu.Lock()
	s.tasks = ts
	s.mu.Unlock()
	d := &tasks.Debouncer{Scheduler: ts, Delay: s.WatchDelay}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				s.handle(w, d, ev)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("watching files", "op", "watch", "error", err)
			}
		}
	}()
	return nil
}

func (s *Service) addDirs(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != s.dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

func (s *Service) handle(w *fsnotify.Watcher, d *tasks.Debouncer, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := s.addDirs(w, ev.Name); err != nil {
				s.logger.Warn("watching directory", "op", "watch", "dir", ev.Name, "error", err)
			}
			return
		}
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	rel, err := filepath.Rel(s.dir, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !(Selector{}).Selects(rel) {
		return
	}
	s.mu.Lock()
	s.pending[rel] = true
	s.mu.Unlock()
	d.Trigger("watch:"+rel, func(ctx context.Context) {
		s.AutoSync(ctx, []string{rel})
	})
}
