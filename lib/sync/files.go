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
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
)

// Extensions lists the extensions of ledger files.
var Extensions = []string{".beancount", ".bean"}

// DefaultInclude matches all files.
var DefaultInclude = []string{"**/*"}

// Selector selects the ledger files which are synchronised.
type Selector struct {
	Include, Exclude []string
}

// Selects returns whether the slash-separated relative path is
// synchronised.
func (s Selector) Selects(rel string) bool {
	if !slices.Contains(Extensions, path.Ext(rel)) {
		return false
	}
	for _, segment := range strings.Split(rel, "/") {
		if segment == "" || segment == ".." || strings.HasPrefix(segment, ".") {
			return false
		}
	}
	include := s.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	return matchAny(include, rel) && !matchAny(s.Exclude, rel)
}

// List returns the selected files below dir, as sorted slash-separated
// relative paths.
func (s Selector) List(dir string) ([]string, error) {
	var res []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel = filepath.ToSlash(rel); s.Selects(rel) {
			res = append(res, rel)
		}
		return nil
	})
	return res, err
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if match(strings.Split(p, "/"), strings.Split(name, "/")) {
			return true
		}
	}
	return false
}

// match matches path segments against pattern segments. A "**" segment
// matches any number of segments.
func match(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			for i := 0; i <= len(name); i++ {
				if match(pattern[1:], name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		if ok, err := path.Match(pattern[0], name[0]); err != nil || !ok {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}
