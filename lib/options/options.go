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

// Package options reads and edits ledger options and price directives.
package options

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/model"
	"github.com/sboehler/kasse/lib/syntax/printer"
	"github.com/sboehler/kasse/lib/textedit"
	"github.com/sboehler/kasse/lib/yearfile"
)

// DefaultCurrency is the operating currency of a ledger without the
// operating_currency option.
const DefaultCurrency = "CNY"

// Service edits the options and prices of a ledger.
type Service struct {
	loader          *ledger.Loader
	locks           *textedit.Locks
	years           *yearfile.Manager
	defaultCurrency string
	logger          *slog.Logger
}

// New creates a service. An empty default currency means DefaultCurrency.
func New(loader *ledger.Loader, locks *textedit.Locks, years *yearfile.Manager, defaultCurrency string, logger *slog.Logger) *Service {
	if defaultCurrency == "" {
		defaultCurrency = DefaultCurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		loader:          loader,
		locks:           locks,
		years:           years,
		defaultCurrency: defaultCurrency,
		logger:          logger.With("component", "options"),
	}
}

// OperatingCurrency returns the last operating_currency option of the
// ledger, or the default currency.
func (s *Service) OperatingCurrency(ctx context.Context) (string, error) {
	l, err := s.loader.Load(ctx, false)
	if err != nil {
		return "", err
	}
	return l.OperatingCurrency(s.defaultCurrency), nil
}

var (
	operatingCurrencyRegex = regexp.MustCompile(`^option\s+"operating_currency"\s`)
	optionRegex            = regexp.MustCompile(`^option\s+"`)
	includeRegex           = regexp.MustCompile(`^include\s+"`)
)

// SetOperatingCurrency sets the operating currency in the main file. An
// existing option is replaced; otherwise the option is inserted after the
// last option but never after the first include, or at the end of the
// file if there are neither options nor includes.
func (s *Service) SetOperatingCurrency(ctx context.Context, code string) error {
	const op = "setting operating currency"
	if err := model.ValidateISOCurrency(code); err != nil {
		return fault.Invalid(op, []string{err.Error()})
	}
	line := fmt.Sprintf("option %s %s", printer.Quote("operating_currency"), printer.Quote(code))
	changed, err := s.locks.Edit(s.loader.Main(), func(doc *textedit.Document) (bool, error) {
		if n := doc.FindLast(operatingCurrencyRegex.MatchString); n > 0 {
			if doc.Line(n) == line {
				return false, nil
			}
			doc.Splice(n, n+1, line)
			return true, nil
		}
		var at int
		if n := doc.FindLast(optionRegex.MatchString); n > 0 {
			at = n + 1
		}
		if n := doc.Find(includeRegex.MatchString); n > 0 && (at == 0 || n < at) {
			at = n
		}
		if at == 0 {
			doc.Append(line)
		} else {
			doc.Insert(at, line)
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if changed {
		s.loader.Invalidate()
		s.logger.Info("set operating currency", "op", "set_operating_currency", "currency", code)
	}
	return nil
}
