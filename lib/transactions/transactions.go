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

// Package transactions creates, edits and deletes transactions in the
// ledger source, addressing them by their source location.
package transactions

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/model"
	"github.com/sboehler/kasse/lib/query"
	"github.com/sboehler/kasse/lib/textedit"
	"github.com/sboehler/kasse/lib/validate"
	"github.com/sboehler/kasse/lib/yearfile"
	"go.uber.org/multierr"
)

// Repository stores transactions in the ledger source.
type Repository struct {
	loader    *ledger.Loader
	locks     *textedit.Locks
	years     *yearfile.Manager
	validator *validate.Validator
	logger    *slog.Logger
}

// New creates a repository.
func New(loader *ledger.Loader, locks *textedit.Locks, years *yearfile.Manager, validator *validate.Validator, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		loader:    loader,
		locks:     locks,
		years:     years,
		validator: validator,
		logger:    logger.With("component", "transactions"),
	}
}

// ID returns the ID of the given source position.
func (r *Repository) ID(pos model.Position) ID {
	rel, err := filepath.Rel(filepath.Dir(r.loader.Main()), pos.File)
	if err != nil {
		rel = pos.File
	}
	return ID{File: filepath.ToSlash(rel), Line: pos.Line}
}

func (r *Repository) path(id ID) string {
	return filepath.Join(filepath.Dir(r.loader.Main()), filepath.FromSlash(id.File))
}

// Validate checks a record against the current ledger without writing it.
func (r *Repository) Validate(ctx context.Context, rec Record) (validate.Result, error) {
	if diags := rec.Validate(); len(diags) > 0 {
		return validate.Result{Diagnostics: diags}, nil
	}
	text, err := rec.Text()
	if err != nil {
		return validate.Result{}, err
	}
	return r.validator.Validate(ctx, text)
}

func (r *Repository) check(ctx context.Context, op string, rec Record) error {
	res, err := r.Validate(ctx, rec)
	if err != nil {
		return err
	}
	if !res.Valid {
		return fault.Invalid(op, res.Diagnostics)
	}
	return nil
}

// Create validates the record and appends it to the year file of its date.
func (r *Repository) Create(ctx context.Context, rec Record) (ID, error) {
	const op = "creating transaction"
	if err := r.check(ctx, op, rec); err != nil {
		return ID{}, err
	}
	text, err := rec.Text()
	if err != nil {
		return ID{}, err
	}
	pos, err := r.years.AppendTransaction(ctx, rec.Date, text)
	if err != nil {
		return ID{}, fmt.Errorf("%s: %w", op, err)
	}
	id := r.ID(pos)
	r.logger.Info("created transaction", "op", "create", "id", id.String())
	return id, nil
}

// Get returns the transaction with the given ID.
func (r *Repository) Get(ctx context.Context, id ID) (*model.Transaction, error) {
	l, err := r.loader.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	t, ok := query.Find(l, r.path(id), id.Line)
	if !ok {
		return nil, fault.New(fault.NotFound, "getting transaction", "no transaction at %s", id)
	}
	return t, nil
}

// List returns a page of the transactions matching the criteria, newest
// first.
func (r *Repository) List(ctx context.Context, c query.Criteria, page, size int) (query.Page[*model.Transaction], error) {
	l, err := r.loader.Load(ctx, false)
	if err != nil {
		return query.Page[*model.Transaction]{}, err
	}
	return query.Paginate(query.Filter(l, c), page, size), nil
}

// Update replaces the transaction with the given ID. The transaction keeps
// its location unless the year of its date changes and it lives in a year
// file, in which case it moves to the year file of the new date. A moved
// transaction is appended to its new file before it is removed from the
// old one.
func (r *Repository) Update(ctx context.Context, id ID, rec Record) (ID, error) {
	const op = "updating transaction"
	t, err := r.Get(ctx, id)
	if err != nil {
		return ID{}, err
	}
	if err := r.check(ctx, op, rec); err != nil {
		return ID{}, err
	}
	text, err := rec.Text()
	if err != nil {
		return ID{}, err
	}
	path := r.path(id)
	if y, ok := yearfile.YearOf(path); ok && y != rec.Date.Year() {
		return r.move(ctx, op, id, t, rec.Date, text)
	}
	_, err = r.locks.Edit(path, func(doc *textedit.Document) (bool, error) {
		start, end, err := r.block(doc, id, t)
		if err != nil {
			return false, err
		}
		doc.Splice(start, end, text)
		return true, nil
	})
	if err != nil {
		return ID{}, err
	}
	r.loader.Invalidate()
	r.logger.Info("updated transaction", "op", "update", "id", id.String())
	return id, nil
}

func (r *Repository) move(ctx context.Context, op string, id ID, t *model.Transaction, day time.Time, text string) (ID, error) {
	pos, err := r.years.AppendTransaction(ctx, day, text)
	if err != nil {
		return ID{}, fmt.Errorf("%s: %w", op, err)
	}
	moved := r.ID(pos)
	if err := r.remove(op, id, t); err != nil {
		// undo the append to keep a single copy
		if added, getErr := r.Get(ctx, moved); getErr != nil {
			err = multierr.Append(err, getErr)
		} else {
			err = multierr.Append(err, r.remove(op, moved, added))
		}
		return ID{}, err
	}
	r.logger.Info("moved transaction", "op", "update", "from", id.String(), "to", moved.String())
	return moved, nil
}

// Delete removes the transaction with the given ID, together with the
// blank lines following it.
func (r *Repository) Delete(ctx context.Context, id ID) error {
	t, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.remove("deleting transaction", id, t); err != nil {
		return err
	}
	r.logger.Info("deleted transaction", "op", "delete", "id", id.String())
	return nil
}

func (r *Repository) remove(op string, id ID, t *model.Transaction) error {
	_, err := r.locks.Edit(r.path(id), func(doc *textedit.Document) (bool, error) {
		start, end, err := r.block(doc, id, t)
		if err != nil {
			return false, err
		}
		for end <= doc.Len() && textedit.IsBlank(doc.Line(end)) {
			end++
		}
		doc.Splice(start, end, "")
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.loader.Invalidate()
	return nil
}

// block returns the line range of the transaction in doc. It fails if the
// file has changed since the ledger was loaded.
func (r *Repository) block(doc *textedit.Document, id ID, t *model.Transaction) (int, int, error) {
	if !strings.HasPrefix(doc.Line(id.Line), date.Format(t.Day)) {
		return 0, 0, fault.New(fault.Conflict, "locating transaction", "%s no longer holds the transaction of %s", id, date.Format(t.Day))
	}
	return doc.Block(id.Line)
}
