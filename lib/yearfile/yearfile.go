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

// Package yearfile keeps the transactions of each calendar year in a
// file of its own, included from the main file.
package yearfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/model"
	"github.com/sboehler/kasse/lib/textedit"
	"go.uber.org/multierr"
	"golang.org/x/exp/slices"
)

// FileName returns the name of the file holding the transactions of year.
func FileName(year int) string {
	return fmt.Sprintf("transactions_%04d.beancount", year)
}

var fileNameRegex = regexp.MustCompile(`^transactions_(\d{4})\.beancount$`)

// YearOf returns the year of a year file, given its path.
func YearOf(path string) (int, bool) {
	m := fileNameRegex.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	return y, err == nil
}

// Manager manages the year files next to a main file.
type Manager struct {
	main   string
	loader *ledger.Loader
	locks  *textedit.Locks
	logger *slog.Logger

	write func(*textedit.Document) error
}

// New creates a manager for the main file of the loader.
func New(loader *ledger.Loader, locks *textedit.Locks, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		main:   loader.Main(),
		loader: loader,
		locks:  locks,
		logger: logger.With("component", "yearfile"),
		write:  (*textedit.Document).Write,
	}
}

// Main returns the path of the main file.
func (m *Manager) Main() string {
	return m.main
}

// Path returns the path of the year file for year.
func (m *Manager) Path(year int) string {
	return filepath.Join(filepath.Dir(m.main), FileName(year))
}

// Exists returns whether the year file for year exists.
func (m *Manager) Exists(year int) bool {
	_, err := os.Stat(m.Path(year))
	return err == nil
}

// FileFor returns the year file for the given date. It creates the file
// and includes it from the main file if necessary.
func (m *Manager) FileFor(day time.Time) (string, error) {
	year := day.Year()
	path := m.Path(year)
	unlock := m.locks.Lock(m.main, path)
	changed, err := m.ensure(year)
	unlock()
	if err != nil {
		return "", err
	}
	if changed {
		m.loader.Invalidate()
	}
	return path, nil
}

// ensure creates the year file and its include. The caller must hold the
// locks of the main file and the year file.
func (m *Manager) ensure(year int) (bool, error) {
	var changed bool
	if !m.Exists(year) {
		doc := textedit.Parse(m.Path(year), header(year))
		if err := doc.Write(); err != nil {
			return false, err
		}
		m.logger.Info("created year file", "op", "file_for", "year", year)
		changed = true
	}
	main, err := textedit.Read(m.main)
	if err != nil {
		return false, err
	}
	if addInclude(main, year) {
		if err := main.Write(); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}

func header(year int) string {
	return fmt.Sprintf("; Transactions for %d\n", year)
}

var (
	includeRegex = regexp.MustCompile(`^include\s+"([^"]*)"`)
	optionRegex  = regexp.MustCompile(`^option\s+"`)
)

// addInclude adds the include of the year file for year to the main
// document, unless it is present. It inserts after the last include,
// else after the last option, else at the end.
func addInclude(main *textedit.Document, year int) bool {
	name := FileName(year)
	if main.Find(func(l string) bool { return includesFile(l, name) }) > 0 {
		return false
	}
	line := fmt.Sprintf("include %q", name)
	if n := main.FindLast(includeRegex.MatchString); n > 0 {
		main.Insert(n+1, line)
		return true
	}
	if n := main.FindLast(optionRegex.MatchString); n > 0 {
		main.Insert(n+1, line)
		return true
	}
	main.Append(line)
	return true
}

func includesFile(line, name string) bool {
	m := includeRegex.FindStringSubmatch(line)
	return m != nil && filepath.Clean(m[1]) == name
}

// AppendTransaction appends the text of a transaction dated day to its
// year file, and returns the position of the new transaction. The ledger
// is reloaded afterwards; new diagnostics are logged but the write is
// kept.
func (m *Manager) AppendTransaction(ctx context.Context, day time.Time, text string) (model.Position, error) {
	path, err := m.FileFor(day)
	if err != nil {
		return model.Position{}, err
	}
	unlock := m.locks.Lock(path)
	doc, err := textedit.Read(path)
	if err != nil {
		unlock()
		return model.Position{}, err
	}
	doc.Append(text)
	pos := model.Position{
		File: path,
		Line: doc.Len() - strings.Count(strings.TrimSuffix(text, "\n"), "\n"),
	}
	err = doc.Write()
	unlock()
	if err != nil {
		return model.Position{}, err
	}
	m.loader.Invalidate()
	m.check(ctx, pos)
	return pos, nil
}

// check reloads the ledger and logs the diagnostics at or after pos.
func (m *Manager) check(ctx context.Context, pos model.Position) {
	l, err := m.loader.Load(ctx, false)
	if err != nil {
		m.logger.Warn("reloading after write failed", "op", "append", "file", pos.File, "error", err)
		return
	}
	for _, d := range l.DiagnosticsIn(pos.File) {
		if d.Pos.Line >= pos.Line {
			m.logger.Warn("written transaction has diagnostics", "op", "append", "file", pos.File, "line", d.Pos.Line, "diagnostic", d.Message)
		}
	}
}

// ListYears returns the years with a year file, latest first.
func (m *Manager) ListYears() ([]int, error) {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(m.main), "transactions_*.beancount"))
	if err != nil {
		return nil, err
	}
	var years []int
	for _, p := range matches {
		if y, ok := YearOf(p); ok {
			years = append(years, y)
		}
	}
	slices.Sort(years)
	slices.Reverse(years)
	return years, nil
}

var transactionRegex = regexp.MustCompile(`^(\d{4})-\d{2}-\d{2}\s+([*!]|txn)`)

// MigrateResult counts the transactions moved to each year file.
type MigrateResult struct {
	Moved map[int]int
}

type block struct {
	start, end int
	year       int
	text       string
}

// commit writes the documents in order. If a write fails, the documents
// written before are reverted to prev.
func (m *Manager) commit(docs []*textedit.Document, prev map[string]*textedit.Document) error {
	for i, d := range docs {
		err := m.write(d)
		if err == nil {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			p := docs[j].Path
			if old, ok := prev[p]; ok {
				err = multierr.Append(err, m.write(old))
			} else {
				err = multierr.Append(err, os.Remove(p))
			}
		}
		return err
	}
	return nil
}

// Migrate moves the transactions in the main file, and those in year
// files of the wrong year, to the year file of their date. Files which
// receive transactions are written before files which only lose them,
// and the main file is written last. If a write fails, the files written
// so far are restored.
func (m *Manager) Migrate(ctx context.Context) (MigrateResult, error) {
	res := MigrateResult{Moved: make(map[int]int)}
	years, err := m.ListYears()
	if err != nil {
		return res, err
	}
	sources := []string{m.main}
	for _, y := range years {
		sources = append(sources, m.Path(y))
	}
	unlock := m.locks.Lock(append(sources, m.referencedYearFiles(sources)...)...)
	defer unlock()

	var (
		docs = make(map[string]*textedit.Document)
		// previous content, nil for files which do not exist yet
		prev = make(map[string]*textedit.Document)
	)
	read := func(path string) (*textedit.Document, error) {
		if d, ok := docs[path]; ok {
			return d, nil
		}
		d, err := textedit.Read(path)
		if err != nil {
			return nil, err
		}
		docs[path] = d
		if _, err := os.Stat(path); err == nil {
			prev[path] = textedit.Parse(path, d.String())
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return d, nil
	}

	moved := make(map[int][]string)
	var sourcesTouched []string
	for _, src := range sources {
		doc, err := read(src)
		if err != nil {
			return res, err
		}
		srcYear, isYearFile := YearOf(src)
		if src == m.main {
			isYearFile = false
		}
		var blocks []block
		for i, l := range doc.Lines() {
			mt := transactionRegex.FindStringSubmatch(l)
			if mt == nil {
				continue
			}
			y, _ := strconv.Atoi(mt[1])
			if isYearFile && y == srcYear {
				continue
			}
			start, end, err := doc.Block(i + 1)
			if err != nil {
				return res, err
			}
			blocks = append(blocks, block{start: start, end: end, year: y, text: strings.Join(doc.Lines()[start-1:end-1], "\n")})
		}
		if len(blocks) == 0 {
			continue
		}
		for i := len(blocks) - 1; i >= 0; i-- {
			b := blocks[i]
			doc.Splice(b.start, extendBlank(doc, b.end), "")
		}
		for _, b := range blocks {
			moved[b.year] = append(moved[b.year], b.text)
		}
		if src != m.main {
			sourcesTouched = append(sourcesTouched, src)
		}
	}
	if len(moved) == 0 {
		return res, nil
	}

	main, err := read(m.main)
	if err != nil {
		return res, err
	}
	var targets []int
	for y := range moved {
		targets = append(targets, y)
	}
	slices.Sort(targets)
	var receiving, mixed []*textedit.Document
	for _, y := range targets {
		path := m.Path(y)
		doc, err := read(path)
		if err != nil {
			return res, err
		}
		if doc.Len() == 0 {
			doc.Append(strings.TrimSuffix(header(y), "\n"))
		}
		for _, text := range moved[y] {
			doc.Append(text)
		}
		addInclude(main, y)
		res.Moved[y] = len(moved[y])
		if slices.Contains(sourcesTouched, path) {
			mixed = append(mixed, doc)
		} else {
			receiving = append(receiving, doc)
		}
	}
	order := append(receiving, mixed...)
	for _, src := range sourcesTouched {
		if !slices.Contains(order, docs[src]) {
			order = append(order, docs[src])
		}
	}
	order = append(order, main)
	if err := m.commit(order, prev); err != nil {
		return MigrateResult{Moved: make(map[int]int)}, fmt.Errorf("migrating transactions: %w", err)
	}
	m.loader.Invalidate()
	m.logger.Info("migrated transactions", "op", "migrate", "moved", res.Moved)
	return res, nil
}

// referencedYearFiles returns the year files of the transactions in the
// given files, whether they exist or not.
func (m *Manager) referencedYearFiles(paths []string) []string {
	var res []string
	for _, p := range paths {
		doc, err := textedit.Read(p)
		if err != nil {
			continue
		}
		for _, l := range doc.Lines() {
			if mt := transactionRegex.FindStringSubmatch(l); mt != nil {
				y, _ := strconv.Atoi(mt[1])
				if path := m.Path(y); !slices.Contains(res, path) {
					res = append(res, path)
				}
			}
		}
	}
	return res
}

// extendBlank extends the end of a block over the blank lines following
// it.
func extendBlank(doc *textedit.Document, end int) int {
	for end <= doc.Len() && textedit.IsBlank(doc.Line(end)) {
		end++
	}
	return end
}

// Cleanup deletes the year files without any content other than comments
// and blank lines, and removes their includes from the main file. It
// returns the years whose files were deleted.
func (m *Manager) Cleanup(ctx context.Context) ([]int, error) {
	years, err := m.ListYears()
	if err != nil {
		return nil, err
	}
	paths := []string{m.main}
	for _, y := range years {
		paths = append(paths, m.Path(y))
	}
	unlock := m.locks.Lock(paths...)
	defer unlock()

	main, err := textedit.Read(m.main)
	if err != nil {
		return nil, err
	}
	var empty []int
	for _, y := range years {
		doc, err := textedit.Read(m.Path(y))
		if err != nil {
			return nil, err
		}
		if !isEmpty(doc) {
			continue
		}
		empty = append(empty, y)
		name := FileName(y)
		for {
			n := main.Find(func(l string) bool { return includesFile(l, name) })
			if n == 0 {
				break
			}
			main.Splice(n, n+1, "")
		}
	}
	if len(empty) == 0 {
		return nil, nil
	}
	if err := main.Write(); err != nil {
		return nil, err
	}
	for _, y := range empty {
		if err := os.Remove(m.Path(y)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		m.logger.Info("deleted empty year file", "op", "cleanup", "year", y)
	}
	m.loader.Invalidate()
	return empty, nil
}

func isEmpty(doc *textedit.Document) bool {
	for _, l := range doc.Lines() {
		if !textedit.IsBlank(l) && !textedit.IsComment(strings.TrimLeft(l, " \t")) {
			return false
		}
	}
	return true
}
