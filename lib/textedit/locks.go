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

package textedit

import (
	"path/filepath"
	"sync"

	"golang.org/x/exp/slices"
)

// Locks hands out one exclusive lock per file path. The zero value is
// ready to use.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *Locks) get(path string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	path = filepath.Clean(path)
	m, ok := l.locks[path]
	if !ok {
		m = new(sync.Mutex)
		l.locks[path] = m
	}
	return m
}

// Lock locks the given paths in a fixed order and returns a function
// which unlocks them.
func (l *Locks) Lock(paths ...string) func() {
	ps := make([]string, 0, len(paths))
	for _, p := range paths {
		p = filepath.Clean(p)
		if !slices.Contains(ps, p) {
			ps = append(ps, p)
		}
	}
	slices.Sort(ps)
	var held []*sync.Mutex
	for _, p := range ps {
		m := l.get(p)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Edit reads the document at path under its lock and applies f. The
// document is written back if f reports a change.
func (l *Locks) Edit(path string, f func(*Document) (bool, error)) (bool, error) {
	unlock := l.Lock(path)
	defer unlock()
	doc, err := Read(path)
	if err != nil {
		return false, err
	}
	changed, err := f(doc)
	if err != nil || !changed {
		return false, err
	}
	if err := doc.Write(); err != nil {
		return false, err
	}
	return true, nil
}
