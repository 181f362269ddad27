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

package query

import (
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/common/compare"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/model"
	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Kind classifies a transaction by the accounts it touches.
type Kind int

const (
	// Any matches all kinds in a filter.
	Any Kind = iota
	Income
	Expense
	Transfer
	Other
)

func (k Kind) String() string {
	switch k {
	case Income:
		return "income"
	case Expense:
		return "expense"
	case Transfer:
		return "transfer"
	case Other:
		return "other"
	}
	return "any"
}

// ParseKind parses the string form of a kind. The empty string is Any.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{Any, Income, Expense, Transfer, Other} {
		if k.String() == s {
			return k, true
		}
	}
	return Any, s == ""
}

// KindOf classifies a transaction.
func KindOf(t *model.Transaction) Kind {
	var hasExpense, allAL = false, true
	for _, p := range t.Postings {
		typ, ok := model.TypeOf(p.Account)
		if !ok {
			allAL = false
			continue
		}
		switch typ {
		case model.INCOME:
			return Income
		case model.EXPENSES:
			hasExpense = true
		}
		if typ != model.ASSETS && typ != model.LIABILITIES {
			allAL = false
		}
	}
	switch {
	case hasExpense:
		return Expense
	case allAL && len(t.Postings) > 0:
		return Transfer
	}
	return Other
}

// Criteria restricts the transactions returned by Filter. Zero fields
// do not restrict.
type Criteria struct {
	From, To             *time.Time
	Account              string
	Payee                string
	Narration            string
	MinAmount, MaxAmount *decimal.Decimal
	Kind                 Kind
}

func (c Criteria) matches(t *model.Transaction) bool {
	if c.From != nil && t.Day.Before(*c.From) {
		return false
	}
	if c.To != nil && t.Day.After(*c.To) {
		return false
	}
	if c.Payee != "" && !containsFold(t.Payee, c.Payee) {
		return false
	}
	if c.Narration != "" && !containsFold(t.Narration, c.Narration) {
		return false
	}
	if c.Kind != Any && KindOf(t) != c.Kind {
		return false
	}
	if c.Account != "" && !anyPosting(t, func(p *model.Posting) bool {
		return containsFold(p.Account, c.Account)
	}) {
		return false
	}
	if (c.MinAmount != nil || c.MaxAmount != nil) && !anyPosting(t, c.matchesAmount) {
		return false
	}
	return true
}

func (c Criteria) matchesAmount(p *model.Posting) bool {
	if p.Amount == nil {
		return false
	}
	abs := p.Amount.Number.Abs()
	if c.MinAmount != nil && abs.LessThan(*c.MinAmount) {
		return false
	}
	if c.MaxAmount != nil && abs.GreaterThan(*c.MaxAmount) {
		return false
	}
	return true
}

func anyPosting(t *model.Transaction, pred func(*model.Posting) bool) bool {
	for _, p := range t.Postings {
		if pred(p) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Filter returns the matching transactions, newest first. Transactions
// on the same day keep their order in the entry stream.
func Filter(l *ledger.Ledger, c Criteria) []*model.Transaction {
	var res []*model.Transaction
	for _, t := range l.Transactions() {
		if c.matches(t) {
			res = append(res, t)
		}
	}
	compare.Sort(res, compare.Desc(compare.By(func(t *model.Transaction) time.Time { return t.Day }, compare.Time)))
	return res
}

// Page is a slice of a larger result.
type Page[T any] struct {
	Items []T
	Total int
	Page  int
	Size  int
}

// DefaultPageSize is used when a page size is not positive.
const DefaultPageSize = 50

// Paginate returns the given 1-based page of ts.
func Paginate[T any](ts []T, page, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	res := Page[T]{Total: len(ts), Page: page, Size: size}
	start := (page - 1) * size
	if start >= len(ts) {
		return res
	}
	end := start + size
	if end > len(ts) {
		end = len(ts)
	}
	res.Items = ts[start:end]
	return res
}

// Find returns the transaction at the given provenance.
func Find(l *ledger.Ledger, file string, line int) (*model.Transaction, bool) {
	return l.Find(file, line)
}

// AccountInfo describes an opened account.
type AccountInfo struct {
	Name       string
	Opened     time.Time
	Closed     *time.Time
	Currencies []string
	Booking    string
}

// Accounts returns all opened accounts, sorted by name.
func Accounts(l *ledger.Ledger) []AccountInfo {
	closes := l.Closes()
	var res []AccountInfo
	for name, o := range l.Opens() {
		info := AccountInfo{
			Name:       name,
			Opened:     o.Day,
			Currencies: o.Currencies,
			Booking:    o.Booking,
		}
		if c, ok := closes[name]; ok {
			day := c.Day
			info.Closed = &day
		}
		res = append(res, info)
	}
	compare.Sort(res, compare.By(func(a AccountInfo) string { return a.Name }, compare.Ordered[string]))
	return res
}

// ActiveAccounts returns the accounts which are open and not closed.
func ActiveAccounts(l *ledger.Ledger) []AccountInfo {
	var res []AccountInfo
	for _, a := range Accounts(l) {
		if a.Closed == nil {
			res = append(res, a)
		}
	}
	return res
}

// ArchivedAccounts returns the accounts which have been closed.
func ArchivedAccounts(l *ledger.Ledger) []AccountInfo {
	var res []AccountInfo
	for _, a := range Accounts(l) {
		if a.Closed != nil {
			res = append(res, a)
		}
	}
	return res
}

// Payees returns the distinct non-empty payees in collation order.
func Payees(l *ledger.Ledger) []string {
	seen := make(map[string]bool)
	var res []string
	for _, t := range l.Transactions() {
		if t.Payee == "" || seen[t.Payee] {
			continue
		}
		seen[t.Payee] = true
		res = append(res, t.Payee)
	}
	compare.Sort(res, compare.Collated(collate.New(language.Und)))
	return res
}
