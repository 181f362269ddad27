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

package transactions

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sboehler/kasse/lib/common/fault"
)

// ID identifies a transaction by its source location. File is relative to
// the directory of the main file.
type ID struct {
	File string
	Line int
}

func (id ID) String() string {
	return fmt.Sprintf("%s:%d", id.File, id.Line)
}

// ParseID parses an ID of the form "file:line".
func ParseID(s string) (ID, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return ID{}, fault.New(fault.Validation, "parsing id", "invalid transaction id %q, want file:line", s)
	}
	line, err := strconv.Atoi(s[i+1:])
	if err != nil || line < 1 {
		return ID{}, fault.New(fault.Validation, "parsing id", "invalid line number in transaction id %q", s)
	}
	file := filepath.FromSlash(s[:i])
	if !filepath.IsLocal(file) {
		return ID{}, fault.New(fault.Validation, "parsing id", "transaction id %q points outside of the ledger directory", s)
	}
	return ID{File: filepath.ToSlash(filepath.Clean(file)), Line: line}, nil
}
