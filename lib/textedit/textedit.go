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

// Package textedit edits ledger files line by line. Edits are prepared in
// memory and written back with a single atomic file replacement.
package textedit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/natefinch/atomic"
)

// Document is the text of a file, split into lines.
type Document struct {
	Path  string
	lines []string
}

// Read reads the document at path. A missing file yields an empty
// document.
func Read(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Document{Path: path}, nil
		}
		return nil, err
	}
	return Parse(path, string(b)), nil
}

// Parse splits text into a document.
func Parse(path, text string) *Document {
	d := &Document{Path: path}
	if text == "" {
		return d
	}
	d.lines = strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	return d
}

// Len returns the number of lines.
func (d *Document) Len() int {
	return len(d.lines)
}

// Lines returns the lines of the document.
func (d *Document) Lines() []string {
	return d.lines
}

// Line returns the line with the given 1-based number.
func (d *Document) Line(n int) string {
	if n < 1 || n > len(d.lines) {
		return ""
	}
	return d.lines[n-1]
}

// IsComment returns whether the line is a comment.
func IsComment(line string) bool {
	return len(line) > 0 && strings.ContainsRune(";*#%|&!:", rune(line[0]))
}

// IsBlank returns whether the line contains only whitespace.
func IsBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func isIndented(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

// Block returns the 1-based, half-open line range [start, end) of the
// directive starting at line start. The block extends up to the next line
// which starts with a non-whitespace, non-comment character. Trailing
// blank and comment lines are not part of the block.
func (d *Document) Block(start int) (int, int, error) {
	if start < 1 || start > len(d.lines) {
		return 0, 0, fmt.Errorf("%s: line %d is out of range", d.Path, start)
	}
	end := start + 1
	for end <= len(d.lines) {
		l := d.lines[end-1]
		if !IsBlank(l) && !isIndented(l) && !IsComment(l) {
			break
		}
		end++
	}
	for end > start+1 {
		l := d.lines[end-2]
		if !IsBlank(l) && !IsComment(l) {
			break
		}
		end--
	}
	return start, end, nil
}

// Splice replaces the lines [start, end) with the lines of text. An empty
// text removes the lines.
func (d *Document) Splice(start, end int, text string) {
	var repl []string
	if text != "" {
		repl = strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	}
	res := make([]string, 0, len(d.lines)-(end-start)+len(repl))
	res = append(res, d.lines[:start-1]...)
	res = append(res, repl...)
	res = append(res, d.lines[end-1:]...)
	d.lines = res
}

// Insert inserts text before the line with the given 1-based number.
// Inserting at Len()+1 appends.
func (d *Document) Insert(before int, text string) {
	d.Splice(before, before, text)
}

// Append appends text. A blank line separates it from preceding content.
func (d *Document) Append(text string) {
	if len(d.lines) > 0 && !IsBlank(d.lines[len(d.lines)-1]) {
		d.lines = append(d.lines, "")
	}
	d.Insert(len(d.lines)+1, text)
}

// Find returns the 1-based number of the first line matching pred, or 0.
func (d *Document) Find(pred func(string) bool) int {
	for i, l := range d.lines {
		if pred(l) {
			return i + 1
		}
	}
	return 0
}

// FindLast returns the 1-based number of the last line matching pred, or 0.
func (d *Document) FindLast(pred func(string) bool) int {
	for i := len(d.lines) - 1; i >= 0; i-- {
		if pred(d.lines[i]) {
			return i + 1
		}
	}
	return 0
}

func (d *Document) String() string {
	if len(d.lines) == 0 {
		return ""
	}
	return strings.Join(d.lines, "\n") + "\n"
}

// Write replaces the file with the document.
func (d *Document) Write() error {
	if err := atomic.WriteFile(d.Path, strings.NewReader(d.String())); err != nil {
		return fmt.Errorf("writing %s: %w", d.Path, err)
	}
	return nil
}
