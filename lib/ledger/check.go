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

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/model"
)

// check verifies that postings only reference open accounts, in currencies
// these accounts accept.
func check(entries []model.Entry) []Diagnostic {
	var (
		res    []Diagnostic
		opens  = make(map[string]*model.Open)
		closes = make(map[string]*model.Close)
	)
	for _, e := range entries {
		switch d := e.(type) {
		case *model.Open:
			if prev, ok := opens[d.Account]; ok {
				res = append(res, Diagnostic{
					Kind:    DuplicateOpen,
					Pos:     d.Pos,
					Account: d.Account,
					Message: fmt.Sprintf("account %s is already opened at %s", d.Account, prev.Pos),
				})
				continue
			}
			opens[d.Account] = d
		case *model.Close:
			if _, ok := closes[d.Account]; !ok {
				closes[d.Account] = d
			}
		}
	}
	for _, e := range entries {
		switch d := e.(type) {
		case *model.Close:
			if _, ok := opens[d.Account]; !ok {
				res = append(res, Diagnostic{
					Kind:    UnknownAccount,
					Pos:     d.Pos,
					Account: d.Account,
					Message: fmt.Sprintf("cannot close account %s which was never opened", d.Account),
				})
			}
		case *model.Transaction:
			for _, p := range d.Postings {
				res = append(res, checkPosting(d, p, opens[p.Account], closes[p.Account])...)
			}
		}
	}
	return res
}

func checkPosting(t *model.Transaction, p *model.Posting, open *model.Open, close *model.Close) []Diagnostic {
	switch {
	case open == nil:
		return []Diagnostic{{
			Kind:    UnknownAccount,
			Pos:     t.Pos,
			Account: p.Account,
			Message: fmt.Sprintf("account %s is not open", p.Account),
		}}
	case t.Day.Before(open.Day):
		return []Diagnostic{{
			Kind:    InactiveAccount,
			Pos:     t.Pos,
			Account: p.Account,
			Message: fmt.Sprintf("account %s is not open on %s", p.Account, date.Format(t.Day)),
		}}
	case close != nil && !t.Day.Before(close.Day):
		return []Diagnostic{{
			Kind:    InactiveAccount,
			Pos:     t.Pos,
			Account: p.Account,
			Message: fmt.Sprintf("account %s is closed on %s", p.Account, date.Format(t.Day)),
		}}
	case p.Amount != nil && !open.Allows(p.Amount.Currency):
		return []Diagnostic{{
			Kind:     InvalidCurrency,
			Pos:      t.Pos,
			Account:  p.Account,
			Currency: p.Amount.Currency,
			Message:  fmt.Sprintf("account %s does not accept currency %s", p.Account, p.Amount.Currency),
		}}
	}
	return nil
}
