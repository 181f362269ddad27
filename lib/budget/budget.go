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

// Package budget evaluates spending against budgets.
package budget

import (
	"fmt"
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/model"
	"github.com/sboehler/kasse/lib/store"
	"github.com/shopspring/decimal"
)

// Period types.
const (
	Month   = "month"
	Quarter = "quarter"
	Year    = "year"
)

var intervals = map[string]date.Interval{
	Month:   date.Monthly,
	Quarter: date.Quarterly,
	Year:    date.Yearly,
}

// ParsePeriod resolves a period type and value, like "quarter" and
// "2024-Q1", to an inclusive date range.
func ParsePeriod(typ, value string) (date.Period, error) {
	interval, ok := intervals[typ]
	if !ok {
		return date.Period{}, fmt.Errorf("invalid period type %q, want month, quarter or year", typ)
	}
	return date.ParsePeriod(interval, value)
}

// RefundPolicy determines how negative expense postings count.
type RefundPolicy int

const (
	// IgnoreRefunds only counts positive postings, so that refunds do not
	// reduce spending.
	IgnoreRefunds RefundPolicy = iota
	// NetRefunds counts refunds against spending in the period in which
	// they are booked.
	NetRefunds
)

func (p RefundPolicy) String() string {
	switch p {
	case IgnoreRefunds:
		return "ignore"
	case NetRefunds:
		return "net"
	}
	return ""
}

// ParseRefundPolicy parses the name of a refund policy.
func ParseRefundPolicy(s string) (RefundPolicy, error) {
	switch strings.ToLower(s) {
	case "", "ignore":
		return IgnoreRefunds, nil
	case "net":
		return NetRefunds, nil
	}
	return 0, fmt.Errorf("invalid refund policy %q, want ignore or net", s)
}

// Evaluation is the state of a budget.
type Evaluation struct {
	Budget    store.Budget
	Period    date.Period
	Budgeted  decimal.Decimal
	Spent     decimal.Decimal
	Remaining decimal.Decimal
	Percent   decimal.Decimal
	Exceeded  bool
	DaysLeft  int
}

var hundred = decimal.NewFromInt(100)

// Evaluate evaluates a budget, ignoring refunds.
func Evaluate(l *ledger.Ledger, b store.Budget, today time.Time) (Evaluation, error) {
	return IgnoreRefunds.Evaluate(l, b, today)
}

// Evaluate evaluates a budget. Spending is the sum of the expense postings
// in the budget's currency dated within the period, whose account is the
// budget's category or one of its descendants.
func (p RefundPolicy) Evaluate(l *ledger.Ledger, b store.Budget, today time.Time) (Evaluation, error) {
	period, err := ParsePeriod(b.PeriodType, b.PeriodValue)
	if err != nil {
		return Evaluation{}, err
	}
	spent := decimal.Zero
	for _, t := range l.Transactions() {
		if !period.Contains(t.Day) {
			continue
		}
		for _, posting := range t.Postings {
			if p.counts(posting, b) {
				spent = spent.Add(posting.Amount.Number)
			}
		}
	}
	res := Evaluation{
		Budget:    b,
		Period:    period,
		Budgeted:  b.Amount,
		Spent:     spent,
		Remaining: b.Amount.Sub(spent),
		Percent:   decimal.Zero,
		Exceeded:  spent.GreaterThan(b.Amount),
		DaysLeft:  period.DaysLeft(today),
	}
	if !b.Amount.IsZero() {
		res.Percent = spent.Mul(hundred).Div(b.Amount).Round(2)
	}
	return res, nil
}

func (p RefundPolicy) counts(posting *model.Posting, b store.Budget) bool {
	if posting.Amount == nil || posting.Amount.Currency != b.Currency {
		return false
	}
	if t, ok := model.TypeOf(posting.Account); !ok || t != model.EXPENSES {
		return false
	}
	if !model.IsDescendant(posting.Account, b.Category) {
		return false
	}
	return p == NetRefunds || posting.Amount.Number.IsPositive()
}
