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

// Package accounts opens, closes and restores accounts.
package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/model"
	"github.com/sboehler/kasse/lib/syntax/printer"
	"github.com/sboehler/kasse/lib/textedit"
	"golang.org/x/exp/slices"
)

// Bookings lists the accepted booking methods.
var Bookings = []string{"STRICT", "STRICT_WITH_SIZE", "NONE", "AVERAGE", "FIFO", "LIFO", "HIFO"}

// Manager manages the open and close directives of a ledger.
type Manager struct {
	loader *ledger.Loader
	locks  *textedit.Locks
	logger *slog.Logger
}

// New creates a manager.
func New(loader *ledger.Loader, locks *textedit.Locks, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		loader: loader,
		locks:  locks,
		logger: logger.With("component", "accounts"),
	}
}

// Open opens an account by appending an open directive to the main file.
func (m *Manager) Open(ctx context.Context, name string, day time.Time, currencies []string, booking string) error {
	const op = "opening account"
	name = model.NormalizeAccount(name)
	var diags []string
	if err := model.ValidateAccount(name); err != nil {
		diags = append(diags, err.Error())
	}
	for _, c := range currencies {
		if err := model.ValidateCurrency(c); err != nil {
			diags = append(diags, err.Error())
		}
	}
	if booking != "" && !slices.Contains(Bookings, booking) {
		diags = append(diags, fmt.Sprintf("invalid booking method %q", booking))
	}
	if len(diags) > 0 {
		return fault.Invalid(op, diags)
	}
	l, err := m.loader.Load(ctx, false)
	if err != nil {
		return err
	}
	if _, ok := l.Opens()[name]; ok {
		if _, closed := l.Closes()[name]; closed {
			return fault.New(fault.Conflict, op, "account %s has been closed, restore it instead", name)
		}
		return fault.New(fault.Conflict, op, "account %s is already open", name)
	}
	text, err := printer.New().Sprint(&model.Open{Day: day, Account: name, Currencies: currencies, Booking: booking})
	if err != nil {
		return err
	}
	if err := m.appendDirective(text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.logger.Info("opened account", "op", "open", "account", name, "date", date.Format(day))
	return nil
}

// Close closes an open account by appending a close directive to the main
// file.
func (m *Manager) Close(ctx context.Context, name string, day time.Time) error {
	const op = "closing account"
	name = model.NormalizeAccount(name)
	l, err := m.loader.Load(ctx, false)
	if err != nil {
		return err
	}
	open, ok := l.Opens()[name]
	if !ok {
		return fault.New(fault.NotFound, op, "account %s does not exist", name)
	}
	if _, ok := l.Closes()[name]; ok {
		return fault.New(fault.Conflict, op, "account %s is already closed", name)
	}
	if day.Before(open.Day) {
		return fault.Invalid(op, []string{fmt.Sprintf("account %s cannot be closed before it was opened on %s", name, date.Format(open.Day))})
	}
	text, err := printer.New().Sprint(&model.Close{Day: day, Account: name})
	if err != nil {
		return err
	}
	if err := m.appendDirective(text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.logger.Info("closed account", "op", "close", "account", name, "date", date.Format(day))
	return nil
}

// Restore reopens a closed account by deleting its close directives from
// the files which contain them.
func (m *Manager) Restore(ctx context.Context, name string) error {
	const op = "restoring account"
	name = model.NormalizeAccount(name)
	l, err := m.loader.Load(ctx, false)
	if err != nil {
		return err
	}
	if _, ok := l.Closes()[name]; !ok {
		return fault.New(fault.NotFound, op, "account %s is not closed", name)
	}
	var (
		files []string
		lines = make(map[string][]int)
	)
	for _, e := range l.Entries {
		c, ok := e.(*model.Close)
		if !ok || c.Account != name {
			continue
		}
		if _, ok := lines[c.Pos.File]; !ok {
			files = append(files, c.Pos.File)
		}
		lines[c.Pos.File] = append(lines[c.Pos.File], c.Pos.Line)
	}
	defer m.loader.Invalidate()
	for _, file := range files {
		ns := lines[file]
		sort.Sort(sort.Reverse(sort.IntSlice(ns)))
		_, err = m.locks.Edit(file, func(doc *textedit.Document) (bool, error) {
			for _, n := range ns {
				fields := strings.Fields(doc.Line(n))
				if len(fields) < 3 || fields[1] != "close" || model.NormalizeAccount(fields[2]) != name {
					return false, fault.New(fault.Conflict, op, "%s:%d no longer holds a close directive of %s", file, n, name)
				}
				doc.Splice(n, n+1, "")
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		m.logger.Info("restored account", "op", "restore", "account", name, "file", file)
	}
	return nil
}

var accountDirectiveRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\s+(open|close)\s`)

// appendDirective appends an open or close directive to the main file.
// Consecutive account directives are not separated by blank lines.
func (m *Manager) appendDirective(text string) error {
	_, err := m.locks.Edit(m.loader.Main(), func(doc *textedit.Document) (bool, error) {
		if doc.Len() > 0 && accountDirectiveRegex.MatchString(doc.Line(doc.Len())) {
			doc.Insert(doc.Len()+1, text)
		} else {
			doc.Append(text)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	m.loader.Invalidate()
	return nil
}
