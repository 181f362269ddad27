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

package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sboehler/kasse/lib/model"
	"github.com/sboehler/kasse/lib/syntax/directives"
	"go.uber.org/multierr"
)

// builder flattens a parsed include tree into an entry stream.
type builder struct {
	main        string
	visited     map[string]bool
	entries     []model.Entry
	diagnostics []Diagnostic
	options     map[string][]string
	files       []string
}

func newBuilder(main string) *builder {
	return &builder{
		main:    main,
		visited: make(map[string]bool),
		options: make(map[string][]string),
	}
}

func (b *builder) build() *Ledger {
	for _, e := range b.entries {
		if t, ok := e.(*model.Transaction); ok {
			b.diagnostics = append(b.diagnostics, infer(t)...)
		}
	}
	b.diagnostics = append(b.diagnostics, check(b.entries)...)
	return &Ledger{
		Main:        b.main,
		Entries:     b.entries,
		Diagnostics: b.diagnostics,
		Options:     b.options,
		Files:       b.files,
	}
}

func (b *builder) visit(n *node) {
	if b.visited[n.path] {
		return
	}
	b.visited[n.path] = true
	if n.readErr != nil {
		b.diagnose(IncludeMissing, model.Position{File: n.path}, "cannot read %s: %v", n.path, n.readErr)
		return
	}
	b.files = append(b.files, n.path)
	for _, err := range multierr.Errors(n.errs) {
		b.parseError(n.path, err)
	}
	for i, d := range n.file.Directives {
		pos := model.Position{File: n.path, Line: d.Location().Line}
		switch t := d.Directive.(type) {
		case directives.Transaction:
			if trx, ok := b.transaction(pos, t); ok {
				b.entries = append(b.entries, trx)
			}
		case directives.Open:
			if open, ok := b.open(pos, t); ok {
				b.entries = append(b.entries, open)
			}
		case directives.Close:
			day, err := t.Date.Parse()
			if err != nil {
				b.parseError(n.path, err)
				continue
			}
			b.entries = append(b.entries, &model.Close{Pos: pos, Day: day, Account: b.account(pos, t.Account)})
		case directives.Price:
			day, err := t.Date.Parse()
			if err != nil {
				b.parseError(n.path, err)
				continue
			}
			rate, err := t.Price.Parse()
			if err != nil {
				b.parseError(n.path, err)
				continue
			}
			b.entries = append(b.entries, &model.Price{
				Pos:      pos,
				Day:      day,
				Currency: t.Commodity.Extract(),
				Rate:     rate,
				Target:   t.Target.Extract(),
			})
		case directives.Option:
			key, value := t.Key.Unquote(), t.Value.Unquote()
			b.options[key] = append(b.options[key], value)
			b.entries = append(b.entries, &model.Option{Pos: pos, Key: key, Value: value})
		case directives.Include:
			children := n.includes[i]
			b.entries = append(b.entries, &model.Include{Pos: pos, Path: t.IncludePath.Unquote(), Resolved: firstPath(children)})
			for _, child := range children {
				if child.cycle {
					b.diagnose(IncludeCycle, pos, "include cycle: %s is already being loaded", child.path)
					continue
				}
				b.visit(child)
			}
		}
	}
}

func (b *builder) transaction(pos model.Position, t directives.Transaction) (*model.Transaction, bool) {
	day, err := t.Date.Parse()
	if err != nil {
		b.parseError(pos.File, err)
		return nil, false
	}
	flag := t.Flag.Extract()
	if flag == "txn" {
		flag = "*"
	}
	trx := &model.Transaction{
		Pos:       pos,
		Day:       day,
		Flag:      flag,
		Payee:     t.Payee.Unquote(),
		Narration: t.Narration.Unquote(),
	}
	for _, tag := range t.Tags {
		trx.Tags = append(trx.Tags, tag.Extract())
	}
	for _, link := range t.Links {
		trx.Links = append(trx.Links, link.Extract())
	}
	if len(t.Metadata) > 0 {
		trx.Metadata = make(map[string]string)
		for _, m := range t.Metadata {
			trx.Metadata[m.Key.Extract()] = strings.TrimSpace(m.Value.Extract())
		}
	}
	for _, p := range t.Postings {
		posting := &model.Posting{
			Flag:    p.Flag.Extract(),
			Account: b.account(pos, p.Account),
			Cost:    p.Cost.Extract(),
		}
		if !p.Amount.Empty() {
			n, err := p.Amount.Quantity.Parse()
			if err != nil {
				b.parseError(pos.File, err)
				return nil, false
			}
			posting.Amount = &model.Amount{Number: n, Currency: p.Amount.Currency.Extract()}
		}
		if !p.Price.Empty() {
			n, err := p.Price.Amount.Quantity.Parse()
			if err != nil {
				b.parseError(pos.File, err)
				return nil, false
			}
			posting.Price = &model.PriceAnnotation{
				Total:  p.Price.Total,
				Amount: model.Amount{Number: n, Currency: p.Price.Amount.Currency.Extract()},
			}
		}
		trx.Postings = append(trx.Postings, posting)
	}
	return trx, true
}

func (b *builder) open(pos model.Position, o directives.Open) (*model.Open, bool) {
	day, err := o.Date.Parse()
	if err != nil {
		b.parseError(pos.File, err)
		return nil, false
	}
	open := &model.Open{
		Pos:     pos,
		Day:     day,
		Account: b.account(pos, o.Account),
		Booking: o.Booking.Unquote(),
	}
	for _, c := range o.Currencies {
		open.Currencies = append(open.Currencies, c.Extract())
	}
	return open, true
}

// account normalizes an account name and diagnoses malformed names.
func (b *builder) account(pos model.Position, a directives.Account) string {
	name := model.NormalizeAccount(a.Extract())
	if err := model.ValidateAccount(name); err != nil {
		b.diagnostics = append(b.diagnostics, Diagnostic{
			Kind:    InvalidAccountName,
			Pos:     pos,
			Account: name,
			Message: err.Error(),
		})
	}
	return name
}

func (b *builder) parseError(file string, err error) {
	d := Diagnostic{
		Kind:    ParseError,
		Pos:     model.Position{File: file},
		Message: err.Error(),
	}
	var perr directives.Error
	if errors.As(err, &perr) {
		root, cause := perr.Root()
		d.Pos.Line = root.EndLocation().Line
		if cause != nil {
			d.Message = fmt.Sprintf("%s: %v", root.Message, cause)
		} else {
			d.Message = root.Message
		}
	}
	b.diagnostics = append(b.diagnostics, d)
}

func (b *builder) diagnose(kind DiagnosticKind, pos model.Position, format string, args ...any) {
	b.diagnostics = append(b.diagnostics, Diagnostic{
		Kind:    kind,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	})
}

func firstPath(ns []*node) string {
	if len(ns) == 0 {
		return ""
	}
	return ns[0].path
}
