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

package options

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/common/compare"
	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/model"
	"github.com/sboehler/kasse/lib/query"
	"github.com/sboehler/kasse/lib/syntax/printer"
	"github.com/sboehler/kasse/lib/textedit"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// Price is a price line found in a source file.
type Price struct {
	Date time.Time
	From string
	To   string
	Rate decimal.Decimal
	Pos  model.Position
}

func (p Price) matches(day time.Time, from, to string) bool {
	return p.Date.Equal(day) && p.From == from && p.To == to
}

var priceRegex = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s+price\s+([A-Z][A-Z0-9'._-]*)\s+([0-9.,-]+)\s+([A-Z][A-Z0-9'._-]*)`)

// parsePrice parses a price line. Lines which do not match, or carry an
// invalid date or rate, are skipped.
func parsePrice(line string) (Price, bool) {
	m := priceRegex.FindStringSubmatch(line)
	if m == nil {
		return Price{}, false
	}
	day, err := date.Parse(m[1])
	if err != nil {
		return Price{}, false
	}
	rate, err := decimal.NewFromString(strings.ReplaceAll(m[3], ",", ""))
	if err != nil {
		return Price{}, false
	}
	return Price{Date: day, From: m[2], Rate: rate, To: m[4]}, true
}

func scanPrices(doc *textedit.Document) []Price {
	var res []Price
	for i, l := range doc.Lines() {
		if p, ok := parsePrice(l); ok {
			p.Pos = model.Position{File: doc.Path, Line: i + 1}
			res = append(res, p)
		}
	}
	return res
}

// prices returns the price lines of all loaded files, newest first.
func (s *Service) prices(ctx context.Context) ([]Price, error) {
	l, err := s.loader.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	var res []Price
	for _, f := range l.Files {
		doc, err := textedit.Read(f)
		if err != nil {
			return nil, err
		}
		res = append(res, scanPrices(doc)...)
	}
	compare.Sort(res, compare.Desc(compare.By(func(p Price) time.Time { return p.Date }, compare.Time)))
	return res, nil
}

// ListPrices returns a page of the price lines, newest first. A non-empty
// currency selects the prices quoting it on either side.
func (s *Service) ListPrices(ctx context.Context, currency string, page, size int) (query.Page[Price], error) {
	ps, err := s.prices(ctx)
	if err != nil {
		return query.Page[Price]{}, err
	}
	if currency != "" {
		var filtered []Price
		for _, p := range ps {
			if p.From == currency || p.To == currency {
				filtered = append(filtered, p)
			}
		}
		ps = filtered
	}
	return query.Paginate(ps, page, size), nil
}

// GetPrice returns the price line for the given date and pair. An empty
// target currency means the operating currency.
func (s *Service) GetPrice(ctx context.Context, day time.Time, from, to string) (Price, error) {
	to, err := s.target(ctx, to)
	if err != nil {
		return Price{}, err
	}
	ps, err := s.prices(ctx)
	if err != nil {
		return Price{}, err
	}
	for _, p := range ps {
		if p.matches(day, from, to) {
			return p, nil
		}
	}
	return Price{}, fault.New(fault.NotFound, "getting price", "no price for %s/%s on %s", from, to, date.Format(day))
}

func (s *Service) target(ctx context.Context, to string) (string, error) {
	if to != "" {
		return to, nil
	}
	return s.OperatingCurrency(ctx)
}

func validatePrice(from, to string, rate decimal.Decimal) []string {
	var diags []string
	if err := model.ValidateCurrency(from); err != nil {
		diags = append(diags, err.Error())
	}
	if err := model.ValidateCurrency(to); err != nil {
		diags = append(diags, err.Error())
	}
	if !rate.IsPositive() {
		diags = append(diags, fmt.Sprintf("rate %s must be positive", rate))
	}
	if from == to && !rate.Equal(decimal.NewFromInt(1)) {
		diags = append(diags, fmt.Sprintf("the rate of %s to itself must be 1", from))
	}
	return diags
}

// UpsertPrice writes a price directive. An existing line with the same
// date and pair is replaced. Otherwise the line goes to the year file of
// the date if it exists, else to the main file, before the first price line
// which is older.
func (s *Service) UpsertPrice(ctx context.Context, day time.Time, from, to string, rate decimal.Decimal) (Price, error) {
	const op = "upserting price"
	to, err := s.target(ctx, to)
	if err != nil {
		return Price{}, err
	}
	if diags := validatePrice(from, to, rate); len(diags) > 0 {
		return Price{}, fault.Invalid(op, diags)
	}
	text, err := printer.New().Sprint(&model.Price{Day: day, Currency: from, Rate: rate, Target: to})
	if err != nil {
		return Price{}, err
	}
	line := strings.TrimSuffix(text, "\n")

	path := s.loader.Main()
	if s.years.Exists(day.Year()) {
		path = s.years.Path(day.Year())
	}
	ps, err := s.prices(ctx)
	if err != nil {
		return Price{}, err
	}
	if i := slices.IndexFunc(ps, func(p Price) bool { return p.matches(day, from, to) }); i >= 0 {
		path = ps[i].Pos.File
	}

	var lineNo int
	if _, err := s.locks.Edit(path, func(doc *textedit.Document) (bool, error) {
		existing := scanPrices(doc)
		if i := slices.IndexFunc(existing, func(p Price) bool { return p.matches(day, from, to) }); i >= 0 {
			lineNo = existing[i].Pos.Line
			doc.Splice(lineNo, lineNo+1, line)
			return true, nil
		}
		if i := slices.IndexFunc(existing, func(p Price) bool { return p.Date.Before(day) }); i >= 0 {
			lineNo = existing[i].Pos.Line
			doc.Insert(lineNo, line)
			return true, nil
		}
		doc.Append(line)
		lineNo = doc.Len()
		return true, nil
	}); err != nil {
		return Price{}, fmt.Errorf("%s: %w", op, err)
	}
	s.loader.Invalidate()
	s.logger.Info("upserted price", "op", "upsert_price", "file", path, "line", lineNo, "from", from, "to", to, "date", date.Format(day))
	return Price{Date: day, From: from, To: to, Rate: rate, Pos: model.Position{File: path, Line: lineNo}}, nil
}

// DeletePrice removes the first price line with the given date and pair,
// searching the year file of the date, the main file and then all other
// loaded files.
func (s *Service) DeletePrice(ctx context.Context, day time.Time, from, to string) error {
	const op = "deleting price"
	to, err := s.target(ctx, to)
	if err != nil {
		return err
	}
	l, err := s.loader.Load(ctx, false)
	if err != nil {
		return err
	}
	var candidates []string
	if s.years.Exists(day.Year()) {
		candidates = append(candidates, s.years.Path(day.Year()))
	}
	candidates = append(candidates, s.loader.Main())
	for _, f := range l.Files {
		if !slices.Contains(candidates, f) {
			candidates = append(candidates, f)
		}
	}
	for _, path := range candidates {
		changed, err := s.locks.Edit(path, func(doc *textedit.Document) (bool, error) {
			for _, p := range scanPrices(doc) {
				if p.matches(day, from, to) {
					doc.Splice(p.Pos.Line, p.Pos.Line+1, "")
					return true, nil
				}
			}
			return false, nil
		})
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if changed {
			s.loader.Invalidate()
			s.logger.Info("deleted price", "op", "delete_price", "file", path, "from", from, "to", to, "date", date.Format(day))
			return nil
		}
	}
	return fault.New(fault.NotFound, op, "no price for %s/%s on %s", from, to, date.Format(day))
}
