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

package budget

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/store"
	"github.com/shopspring/decimal"
)

var ledgerText = strings.Join([]string{
	`option "operating_currency" "CNY"`,
	`2024-01-01 open Assets:Cash CNY,USD`,
	`2024-01-01 open Expenses:Food`,
	`2024-01-01 open Expenses:Food:Restaurant`,
	`2024-01-01 open Expenses:Fun`,
	``,
	`2024-02-29 * "Groceries"`,
	`  Expenses:Food  99.00 CNY`,
	`  Assets:Cash`,
	``,
	`2024-03-02 * "Groceries"`,
	`  Expenses:Food  100.00 CNY`,
	`  Assets:Cash`,
	``,
	`2024-03-10 * "Noodles"`,
	`  Expenses:Food:Restaurant  50.00 CNY`,
	`  Assets:Cash`,
	``,
	`2024-03-12 * "Refund"`,
	`  Expenses:Food  -20.00 CNY`,
	`  Assets:Cash`,
	``,
	`2024-03-15 * "Abroad"`,
	`  Expenses:Food  10.00 USD`,
	`  Assets:Cash`,
	``,
	`2024-03-20 * "Cinema"`,
	`  Expenses:Fun  40.00 CNY`,
	`  Assets:Cash`,
	``,
	`2024-04-01 * "Groceries"`,
	`  Expenses:Food  70.00 CNY`,
	`  Assets:Cash`,
}, "\n") + "\n"

func setup(t *testing.T) *ledger.Loader {
	t.Helper()
	dir := t.TempDir()
	main := filepath.Join(dir, "main.beancount")
	if err := os.WriteFile(main, []byte(ledgerText), 0o644); err != nil {
		t.Fatal(err)
	}
	return ledger.NewLoader(main)
}

func load(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := setup(t).Load(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		typ, value string
		want       date.Period
		wantErr    bool
	}{
		{typ: Month, value: "2024-02", want: date.Period{Start: date.Date(2024, 2, 1), End: date.Date(2024, 2, 29)}},
		{typ: Quarter, value: "2024-Q3", want: date.Period{Start: date.Date(2024, 7, 1), End: date.Date(2024, 9, 30)}},
		{typ: Year, value: "2023", want: date.Period{Start: date.Date(2023, 1, 1), End: date.Date(2023, 12, 31)}},
		{typ: Month, value: "2024-13", wantErr: true},
		{typ: Quarter, value: "2024-Q5", wantErr: true},
		{typ: "week", value: "2024-01", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.typ+" "+test.value, func(t *testing.T) {
			got, err := ParsePeriod(test.typ, test.value)

			if test.wantErr {
				if err == nil {
					t.Fatalf("ParsePeriod() returned %v, want an error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePeriod() returned unexpected error: %v", err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Fatalf("ParsePeriod() returned unexpected diff (-want/+got):\n%s\n", diff)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	l := load(t)
	b := store.Budget{
		Category:    "Expenses:Food",
		PeriodType:  Month,
		PeriodValue: "2024-03",
		Amount:      decimal.NewFromInt(200),
		Currency:    "CNY",
	}
	tests := []struct {
		desc   string
		policy RefundPolicy
		budget func(store.Budget) store.Budget
		today  time.Time
		want   Evaluation
	}{
		{
			desc:  "refunds ignored",
			today: date.Date(2024, 3, 20),
			want: Evaluation{
				Spent:     decimal.NewFromInt(150),
				Remaining: decimal.NewFromInt(50),
				Percent:   decimal.NewFromInt(75),
				DaysLeft:  12,
			},
		},
		{
			desc:   "refunds netted",
			policy: NetRefunds,
			today:  date.Date(2024, 4, 2),
			want: Evaluation{
				Spent:     decimal.NewFromInt(130),
				Remaining: decimal.NewFromInt(70),
				Percent:   decimal.NewFromInt(65),
			},
		},
		{
			desc:   "exceeded",
			budget: func(b store.Budget) store.Budget { b.Amount = decimal.NewFromInt(120); return b },
			today:  date.Date(2024, 2, 1),
			want: Evaluation{
				Spent:     decimal.NewFromInt(150),
				Remaining: decimal.NewFromInt(-30),
				Percent:   decimal.RequireFromString("125"),
				Exceeded:  true,
				DaysLeft:  31,
			},
		},
		{
			desc:   "subcategory",
			budget: func(b store.Budget) store.Budget { b.Category = "Expenses:Food:Restaurant"; b.Amount = decimal.NewFromInt(300); return b },
			today:  date.Date(2024, 3, 31),
			want: Evaluation{
				Spent:     decimal.NewFromInt(50),
				Remaining: decimal.NewFromInt(250),
				Percent:   decimal.RequireFromString("16.67"),
				DaysLeft:  1,
			},
		},
		{
			desc:   "zero budget",
			budget: func(b store.Budget) store.Budget { b.Amount = decimal.Zero; return b },
			today:  date.Date(2024, 3, 31),
			want: Evaluation{
				Spent:     decimal.NewFromInt(150),
				Remaining: decimal.NewFromInt(-150),
				Percent:   decimal.Zero,
				Exceeded:  true,
				DaysLeft:  1,
			},
		},
		{
			desc:   "quarter in other currency",
			budget: func(b store.Budget) store.Budget { b.PeriodType, b.PeriodValue, b.Currency = Quarter, "2024-Q1", "USD"; return b },
			today:  date.Date(2024, 3, 31),
			want: Evaluation{
				Spent:     decimal.NewFromInt(10),
				Remaining: decimal.NewFromInt(190),
				Percent:   decimal.NewFromInt(5),
				DaysLeft:  1,
			},
		},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			budget := b
			if test.budget != nil {
				budget = test.budget(b)
			}

			got, err := test.policy.Evaluate(l, budget, test.today)

			if err != nil {
				t.Fatalf("Evaluate() returned unexpected error: %v", err)
			}
			test.want.Budget = budget
			test.want.Budgeted = budget.Amount
			test.want.Period, _ = ParsePeriod(budget.PeriodType, budget.PeriodValue)
			if diff := cmp.Diff(test.want, got, cmp.Comparer(func(d1, d2 decimal.Decimal) bool { return d1.Equal(d2) })); diff != "" {
				t.Fatalf("Evaluate() returned unexpected diff (-want/+got):\n%s\n", diff)
			}
		})
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("error creating in-memory database: %v", err)
	}
	defer db.Close()
	s := NewService(db, setup(t), nil)
	s.Today = func() time.Time { return date.Date(2024, 3, 20) }

	food, err := s.Create(ctx, store.Budget{Category: "Expenses:Food", PeriodType: Month, PeriodValue: "2024-03", Amount: decimal.NewFromInt(200), Currency: "CNY"})
	if err != nil {
		t.Fatalf("Create() returned unexpected error: %v", err)
	}
	if _, err := s.Create(ctx, store.Budget{Category: "Expenses:Fun", PeriodType: Month, PeriodValue: "2024-04", Amount: decimal.NewFromInt(50), Currency: "CNY"}); err != nil {
		t.Fatalf("Create() returned unexpected error: %v", err)
	}
	for _, b := range []store.Budget{
		{Category: "Assets:Cash", PeriodType: Month, PeriodValue: "2024-03", Amount: decimal.NewFromInt(1), Currency: "CNY"},
		{Category: "Expenses:Food", PeriodType: Month, PeriodValue: "March", Amount: decimal.NewFromInt(1), Currency: "CNY"},
		{Category: "Expenses:Food", PeriodType: Month, PeriodValue: "2024-05", Amount: decimal.NewFromInt(-1), Currency: "CNY"},
		{Category: "Expenses:Food", PeriodType: Month, PeriodValue: "2024-05", Amount: decimal.NewFromInt(1), Currency: "cny"},
	} {
		if _, err := s.Create(ctx, b); !fault.Is(err, fault.Validation) {
			t.Errorf("Create(%v) returned %v, want a validation error", b, err)
		}
	}

	e, err := s.Evaluate(ctx, food.ID)
	if err != nil {
		t.Fatalf("Evaluate() returned unexpected error: %v", err)
	}
	if !e.Spent.Equal(decimal.NewFromInt(150)) || !e.Percent.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("Evaluate() = %v spent, %v%%, want 150 spent, 75%%", e.Spent, e.Percent)
	}

	all, err := s.EvaluateAll(ctx, "2024-03")
	if err != nil {
		t.Fatalf("EvaluateAll() returned unexpected error: %v", err)
	}
	if len(all) != 1 || all[0].Budget.ID != food.ID {
		t.Fatalf("EvaluateAll() returned %v, want the food budget only", all)
	}

	if err := s.Delete(ctx, food.ID); err != nil {
		t.Fatalf("Delete() returned unexpected error: %v", err)
	}
	if _, err := s.Evaluate(ctx, food.ID); !fault.Is(err, fault.NotFound) {
		t.Fatalf("Evaluate() returned %v, want a not found error", err)
	}
}
