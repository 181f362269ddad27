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
	"github.com/sboehler/kasse/lib/model"
)

// Default option values.
const (
	DefaultEquity          = "Equity"
	DefaultCurrentEarnings = "Earnings:Current"
)

// Ledger is an immutable snapshot of the parsed ledger source.
type Ledger struct {
	// Main is the absolute path of the main file.
	Main string
	// Entries holds all entries in source order, includes spliced in
	// at the position of the include directive.
	Entries     []model.Entry
	Diagnostics []Diagnostic
	// Options maps option keys to their values in source order.
	Options map[string][]string
	// Files lists the absolute paths of all loaded files.
	Files []string
}

// Transactions returns the transactions in source order.
func (l *Ledger) Transactions() []*model.Transaction {
	var res []*model.Transaction
	for _, e := range l.Entries {
		if t, ok := e.(*model.Transaction); ok {
			res = append(res, t)
		}
	}
	return res
}

// Prices returns the price entries in source order.
func (l *Ledger) Prices() []*model.Price {
	var res []*model.Price
	for _, e := range l.Entries {
		if p, ok := e.(*model.Price); ok {
			res = append(res, p)
		}
	}
	return res
}

// Option returns the last value of the given option.
func (l *Ledger) Option(key string) (string, bool) {
	vs := l.Options[key]
	if len(vs) == 0 {
		return "", false
	}
	return vs[len(vs)-1], true
}

// OperatingCurrency returns the operating currency, or def if none is set.
func (l *Ledger) OperatingCurrency(def string) string {
	if c, ok := l.Option("operating_currency"); ok && c != "" {
		return c
	}
	return def
}

// CurrentEarnings returns the name of the account which receives the
// current-period earnings.
func (l *Ledger) CurrentEarnings() string {
	equity, ok := l.Option("name_equity")
	if !ok || equity == "" {
		equity = DefaultEquity
	}
	earnings, ok := l.Option("account_current_earnings")
	if !ok || earnings == "" {
		earnings = DefaultCurrentEarnings
	}
	return equity + ":" + earnings
}

// Opens returns the first open directive of each account.
func (l *Ledger) Opens() map[string]*model.Open {
	res := make(map[string]*model.Open)
	for _, e := range l.Entries {
		if o, ok := e.(*model.Open); ok {
			if _, exists := res[o.Account]; !exists {
				res[o.Account] = o
			}
		}
	}
	return res
}

// Closes returns the first close directive of each account.
func (l *Ledger) Closes() map[string]*model.Close {
	res := make(map[string]*model.Close)
	for _, e := range l.Entries {
		if c, ok := e.(*model.Close); ok {
			if _, exists := res[c.Account]; !exists {
				res[c.Account] = c
			}
		}
	}
	return res
}

// Find returns the transaction at the given provenance.
func (l *Ledger) Find(file string, line int) (*model.Transaction, bool) {
	for _, e := range l.Entries {
		if t, ok := e.(*model.Transaction); ok && t.Pos.File == file && t.Pos.Line == line {
			return t, true
		}
	}
	return nil, false
}

// DiagnosticsIn returns the diagnostics located in the given file.
func (l *Ledger) DiagnosticsIn(file string) []Diagnostic {
	var res []Diagnostic
	for _, d := range l.Diagnostics {
		if d.Pos.File == file {
			res = append(res, d)
		}
	}
	return res
}
