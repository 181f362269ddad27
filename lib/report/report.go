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

package report

import (
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/common/compare"
	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/exchange"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/model"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the operating currency of ledgers which do not set one.
const DefaultCurrency = "CNY"

// Line is the balance of one account, in the report currency.
type Line struct {
	Account string
	Amount  decimal.Decimal
}

// MissingRate is a balance which could not be converted to the report
// currency and is therefore excluded from the totals.
type MissingRate struct {
	Account  string
	Currency string
	Amount   decimal.Decimal
}

// BalanceSheet is a balance sheet as of a date.
type BalanceSheet struct {
	AsOf     time.Time
	Currency string

	Assets, Liabilities, Equity []Line

	TotalAssets      decimal.Decimal
	TotalLiabilities decimal.Decimal
	TotalEquity      decimal.Decimal
	NetWorth         decimal.Decimal

	Missing []MissingRate
}

// IncomeStatement is an income statement over a date range.
type IncomeStatement struct {
	Start, End time.Time
	Currency   string

	Income, Expenses []Line

	TotalIncome   decimal.Decimal
	TotalExpenses decimal.Decimal
	NetIncome     decimal.Decimal

	Missing []MissingRate
}

// Generator builds reports from a ledger.
type Generator struct {
	// DefaultCurrency is used when the ledger has no operating_currency
	// option.
	DefaultCurrency string
	// Currency, if set, overrides the operating currency.
	Currency string
	// InverseRates converts with the inverse of a price quoted in the
	// opposite direction when no direct price exists.
	InverseRates bool
}

func (g Generator) exchange(l *ledger.Ledger) *exchange.Exchange {
	if g.InverseRates {
		return exchange.New(l.Entries, exchange.WithInverse())
	}
	return exchange.New(l.Entries)
}

func (g Generator) currency(l *ledger.Ledger) string {
	if g.Currency != "" {
		return g.Currency
	}
	def := g.DefaultCurrency
	if def == "" {
		def = DefaultCurrency
	}
	return l.OperatingCurrency(def)
}

// position is the key of a balance.
type position struct {
	Account, Currency string
}

type positions map[position]decimal.Decimal

func (ps positions) add(account, currency string, n decimal.Decimal) {
	k := position{account, currency}
	ps[k] = ps[k].Add(n)
}

func (ps positions) fold(l *ledger.Ledger, period date.Period, pred func(string) bool) {
	for _, t := range l.Transactions() {
		if !period.Contains(t.Day) {
			continue
		}
		for _, p := range t.Postings {
			if p.Amount == nil || !pred(p.Account) {
				continue
			}
			ps.add(p.Account, p.Amount.Currency, p.Amount.Number)
		}
	}
}

// convert converts all positions to currency and merges them by account.
func (ps positions) convert(ex *exchange.Exchange, currency string, day time.Time) (map[string]decimal.Decimal, []MissingRate) {
	var (
		res     = make(map[string]decimal.Decimal)
		missing []MissingRate
	)
	for k, n := range ps {
		v, ok := ex.Convert(n, k.Currency, currency, day)
		if !ok {
			if !n.IsZero() {
				missing = append(missing, MissingRate{Account: k.Account, Currency: k.Currency, Amount: n})
			}
			// keep the account visible
			v = decimal.Zero
		}
		res[k.Account] = res[k.Account].Add(v)
	}
	compare.Sort(missing, compare.Combine(
		compare.By(func(m MissingRate) string { return m.Account }, compare.Ordered[string]),
		compare.By(func(m MissingRate) string { return m.Currency }, compare.Ordered[string]),
	))
	return res, missing
}

// BalanceSheet computes the balance sheet as of the given date.
func (g Generator) BalanceSheet(l *ledger.Ledger, asOf time.Time) *BalanceSheet {
	var (
		currency = g.currency(l)
		ps       = make(positions)
		earnings = l.CurrentEarnings()
	)
	ps.fold(l, date.Period{End: asOf}, func(string) bool { return true })
	for account, o := range l.Opens() {
		if !o.Day.After(asOf) {
			ps.add(account, currency, decimal.Zero)
		}
	}

	// Close income and expenses into the current earnings account.
	closing := make(map[string]decimal.Decimal)
	for k, n := range ps {
		if model.IsIE(k.Account) {
			closing[k.Currency] = closing[k.Currency].Add(n)
			delete(ps, k)
		}
	}
	target := earningsAccount(ps, earnings)
	for c, n := range closing {
		ps.add(target, c, n)
	}

	balances, missing := ps.convert(g.exchange(l), currency, asOf)

	bs := &BalanceSheet{AsOf: asOf, Currency: currency, Missing: missing}
	var equity decimal.Decimal
	for account, n := range balances {
		t, ok := model.TypeOf(account)
		if !ok {
			continue
		}
		switch t {
		case model.ASSETS:
			bs.Assets = append(bs.Assets, Line{account, n})
			bs.TotalAssets = bs.TotalAssets.Add(n)
		case model.LIABILITIES:
			bs.Liabilities = append(bs.Liabilities, Line{account, n.Neg()})
			bs.TotalLiabilities = bs.TotalLiabilities.Sub(n)
		case model.EQUITY:
			equity = equity.Add(n)
			switch {
			case account == target:
				// The closing balance is shown as booked.
				bs.Equity = append(bs.Equity, Line{account, n})
			default:
				bs.Equity = append(bs.Equity, Line{account, n.Abs()})
			}
		}
	}
	bs.TotalEquity = equity.Neg()
	bs.NetWorth = bs.TotalAssets.Sub(bs.TotalLiabilities)
	sortLines(bs.Assets)
	sortLines(bs.Liabilities)
	sortLines(bs.Equity)
	return bs
}

// earningsAccount returns the account which receives the closing
// balance: the configured one if it has a balance, else the first
// explicit current earnings account, else the configured one.
func earningsAccount(ps positions, configured string) string {
	var explicit []string
	for k := range ps {
		if k.Account == configured {
			return configured
		}
		if isCurrentEarnings(k.Account) {
			explicit = append(explicit, k.Account)
		}
	}
	if len(explicit) == 0 {
		return configured
	}
	compare.Sort(explicit, compare.Ordered[string])
	return explicit[0]
}

func isCurrentEarnings(account string) bool {
	return strings.HasPrefix(account, "Equity:") &&
		(strings.HasSuffix(account, ":Current-Earnings") || account == ledger.DefaultEquity+":"+ledger.DefaultCurrentEarnings)
}

// IncomeStatement computes the income statement over [start, end].
func (g Generator) IncomeStatement(l *ledger.Ledger, start, end time.Time) *IncomeStatement {
	var (
		currency = g.currency(l)
		ps       = make(positions)
	)
	ps.fold(l, date.Period{Start: start, End: end}, model.IsIE)
	balances, missing := ps.convert(g.exchange(l), currency, end)

	is := &IncomeStatement{Start: start, End: end, Currency: currency, Missing: missing}
	for account, n := range balances {
		t, _ := model.TypeOf(account)
		switch t {
		case model.INCOME:
			is.Income = append(is.Income, Line{account, n.Neg()})
			is.TotalIncome = is.TotalIncome.Sub(n)
		case model.EXPENSES:
			is.Expenses = append(is.Expenses, Line{account, n})
			is.TotalExpenses = is.TotalExpenses.Add(n)
		}
	}
	is.NetIncome = is.TotalIncome.Sub(is.TotalExpenses)
	sortLines(is.Income)
	sortLines(is.Expenses)
	return is
}

func sortLines(ls []Line) {
	compare.Sort(ls, compare.By(func(l Line) string { return l.Account }, compare.Ordered[string]))
}
