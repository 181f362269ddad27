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
	"fmt"

	"github.com/sboehler/kasse/lib/model"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// Tolerance is the largest residual which counts as balanced.
var Tolerance = decimal.New(5, -3)

// Residual returns the per-currency sum of the weights of the postings
// which carry an amount.
func Residual(t *model.Transaction) map[string]decimal.Decimal {
	res := make(map[string]decimal.Decimal)
	for _, p := range t.Postings {
		w, ok := p.Weight()
		if !ok {
			continue
		}
		res[w.Currency] = res[w.Currency].Add(w.Number)
	}
	return res
}

// infer fills in the amount of the posting without amount, if any, and
// reports transactions which cannot be balanced.
func infer(t *model.Transaction) []Diagnostic {
	var missing []int
	for i, p := range t.Postings {
		if p.Amount == nil {
			missing = append(missing, i)
		}
	}
	residual := Residual(t)
	var currencies []string
	for c, r := range residual {
		if r.Abs().GreaterThan(Tolerance) {
			currencies = append(currencies, c)
		}
	}
	slices.Sort(currencies)

	switch {
	case len(missing) > 1:
		return []Diagnostic{{
			Kind:    Unbalanced,
			Pos:     t.Pos,
			Message: fmt.Sprintf("%d postings without amount, at most one can be inferred", len(missing)),
		}}

	case len(missing) == 1 && len(currencies) == 0:
		return []Diagnostic{{
			Kind:    Unbalanced,
			Pos:     t.Pos,
			Message: "cannot infer the amount of a posting: the transaction is already balanced",
		}}

	case len(missing) == 1:
		// One posting per residual currency, in place of the elided one.
		idx := missing[0]
		tmpl := t.Postings[idx]
		var inferred []*model.Posting
		for _, c := range currencies {
			inferred = append(inferred, &model.Posting{
				Flag:     tmpl.Flag,
				Account:  tmpl.Account,
				Amount:   &model.Amount{Number: residual[c].Neg(), Currency: c},
				Inferred: true,
			})
		}
		postings := make([]*model.Posting, 0, len(t.Postings)+len(inferred)-1)
		postings = append(postings, t.Postings[:idx]...)
		postings = append(postings, inferred...)
		postings = append(postings, t.Postings[idx+1:]...)
		t.Postings = postings
		return nil

	case len(currencies) > 0:
		var res []Diagnostic
		for _, c := range currencies {
			res = append(res, Diagnostic{
				Kind:     Unbalanced,
				Pos:      t.Pos,
				Currency: c,
				Amount:   residual[c],
				Message:  fmt.Sprintf("transaction does not balance: residual %s %s", residual[c], c),
			})
		}
		return res
	}
	return nil
}
