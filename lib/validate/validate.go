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

// Package validate checks candidate ledger text against the current ledger
// without modifying it.
package validate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/ledger"
	"go.uber.org/multierr"
	"golang.org/x/exp/slices"
)

// Result is the outcome of a validation.
type Result struct {
	Valid       bool
	Diagnostics []string
}

// Validator validates candidate directives in the context of a main file.
type Validator struct {
	main   string
	logger *slog.Logger
}

// New creates a validator for the given main file.
func New(main string, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		main:   ledger.Canonicalize(main),
		logger: logger.With("component", "validate"),
	}
}

// Validate parses the main file followed by text and returns the
// diagnostics which concern text. The candidate is written to a
// temporary file next to the main file, so that relative includes
// resolve, and the file is removed afterwards.
func (v *Validator) Validate(ctx context.Context, text string) (res Result, err error) {
	snapshot, err := os.ReadFile(v.main)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, fault.New(fault.SourceMissing, "validating", "main file %s does not exist", v.main)
		}
		return Result{}, err
	}
	var b strings.Builder
	b.Write(snapshot)
	if len(snapshot) > 0 && !strings.HasSuffix(string(snapshot), "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")
	offset := strings.Count(b.String(), "\n") + 1
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}

	f, err := os.CreateTemp(filepath.Dir(v.main), ".validate-*.tmp")
	if err != nil {
		return Result{}, err
	}
	defer func() {
		err = multierr.Append(err, os.Remove(f.Name()))
	}()
	_, err = f.WriteString(b.String())
	if err = multierr.Append(err, f.Close()); err != nil {
		return Result{}, err
	}

	loader := ledger.NewLoader(f.Name(), ledger.WithLogger(v.logger))
	l, err := loader.Load(ctx, true)
	if err != nil {
		return Result{}, err
	}
	day := candidateDate(text)
	res.Valid = true
	for _, d := range l.Diagnostics {
		if d.Pos.File != loader.Main() || d.Pos.Line < offset {
			continue
		}
		res.Valid = false
		if msg := describe(d, day); !slices.Contains(res.Diagnostics, msg) {
			res.Diagnostics = append(res.Diagnostics, msg)
		}
	}
	v.logger.Debug("validated", "op", "validate", "valid", res.Valid, "diagnostics", len(res.Diagnostics))
	return res, nil
}

// candidateDate returns the date of the first directive in text.
func candidateDate(text string) time.Time {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return time.Time{}
	}
	day, err := date.Parse(fields[0])
	if err != nil {
		return time.Time{}
	}
	return day
}

// describe turns a diagnostic into a sentence for the user.
func describe(d ledger.Diagnostic, day time.Time) string {
	switch d.Kind {
	case ledger.UnknownAccount:
		return fmt.Sprintf("Account %q does not exist. Open it first.", d.Account)
	case ledger.InactiveAccount:
		if day.IsZero() {
			return d.Message
		}
		return fmt.Sprintf("Account %q is not open on %s.", d.Account, date.Format(day))
	case ledger.InvalidCurrency:
		return fmt.Sprintf("Account %q does not accept currency %s.", d.Account, d.Currency)
	case ledger.Unbalanced:
		if d.Currency != "" {
			return fmt.Sprintf("Transaction does not balance: residual %s %s.", d.Amount, d.Currency)
		}
	case ledger.InvalidAccountName:
		return fmt.Sprintf("%q is not a valid account name.", d.Account)
	}
	return d.Message
}
