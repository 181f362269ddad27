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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/textedit"
	"github.com/sboehler/kasse/lib/yearfile"
	"github.com/shopspring/decimal"
)

func lines(ss ...string) string {
	return strings.Join(ss, "\n") + "\n"
}

func setup(t *testing.T, files map[string]string) (*Service, string) {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	var (
		loader = ledger.NewLoader(filepath.Join(dir, "main.beancount"))
		locks  = new(textedit.Locks)
	)
	return New(loader, locks, yearfile.New(loader, locks, nil), "", nil), dir
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestSetOperatingCurrency(t *testing.T) {
	tests := []struct {
		desc string
		main string
		want string
	}{
		{
			desc: "replace",
			main: lines(`option "title" "Ledger"`, `option "operating_currency" "CNY"`, `include "a.beancount"`),
			want: lines(`option "title" "Ledger"`, `option "operating_currency" "USD"`, `include "a.beancount"`),
		},
		{
			desc: "after last option",
			main: lines(`option "title" "Ledger"`, `include "a.beancount"`),
			want: lines(`option "title" "Ledger"`, `option "operating_currency" "USD"`, `include "a.beancount"`),
		},
		{
			desc: "before first include",
			main: lines(`; header`, `include "a.beancount"`, `include "b.beancount"`),
			want: lines(`; header`, `option "operating_currency" "USD"`, `include "a.beancount"`, `include "b.beancount"`),
		},
		{
			desc: "option after include",
			main: lines(`option "title" "Ledger"`, `include "a.beancount"`, `option "booking_method" "FIFO"`),
			want: lines(`option "title" "Ledger"`, `option "operating_currency" "USD"`, `include "a.beancount"`, `option "booking_method" "FIFO"`),
		},
		{
			desc: "at the end",
			main: lines(`2024-01-01 open Assets:Cash`),
			want: lines(`2024-01-01 open Assets:Cash`, ``, `option "operating_currency" "USD"`),
		},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			s, dir := setup(t, map[string]string{"main.beancount": test.main})
			ctx := context.Background()

			if err := s.SetOperatingCurrency(ctx, "USD"); err != nil {
				t.Fatalf("SetOperatingCurrency() returned unexpected error: %v", err)
			}

			if diff := cmp.Diff(test.want, read(t, filepath.Join(dir, "main.beancount"))); diff != "" {
				t.Fatalf("SetOperatingCurrency() returned unexpected diff (-want/+got):\n%s\n", diff)
			}
			got, err := s.OperatingCurrency(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if got != "USD" {
				t.Fatalf("OperatingCurrency() = %s, want USD", got)
			}
		})
	}
}

func TestSetOperatingCurrencyInvalid(t *testing.T) {
	s, _ := setup(t, map[string]string{"main.beancount": ""})

	err := s.SetOperatingCurrency(context.Background(), "usd")

	if !fault.Is(err, fault.Validation) {
		t.Fatalf("SetOperatingCurrency() returned %v, want a validation error", err)
	}
}

func TestOperatingCurrencyDefault(t *testing.T) {
	s, _ := setup(t, map[string]string{"main.beancount": lines(`2024-01-01 open Assets:Cash`)})

	got, err := s.OperatingCurrency(context.Background())

	if err != nil {
		t.Fatal(err)
	}
	if got != "CNY" {
		t.Fatalf("OperatingCurrency() = %s, want CNY", got)
	}
}

func TestUpsertPrice(t *testing.T) {
	s, dir := setup(t, map[string]string{
		"main.beancount": lines(
			`option "operating_currency" "CNY"`,
			`include "transactions_2024.beancount"`,
			``,
			`2023-12-01 price USD 7.10 CNY`,
		),
		"transactions_2024.beancount": lines(
			`; Transactions for 2024`,
			``,
			`2024-03-01 price USD 7.20 CNY`,
			`2024-01-01 price USD 7.05 CNY`,
		),
	})
	ctx := context.Background()
	var (
		main = filepath.Join(dir, "main.beancount")
		year = filepath.Join(dir, "transactions_2024.beancount")
	)

	if _, err := s.UpsertPrice(ctx, date.Date(2024, 2, 1), "USD", "", decimal.RequireFromString("7.00")); err != nil {
		t.Fatalf("UpsertPrice() returned unexpected error: %v", err)
	}
	if _, err := s.UpsertPrice(ctx, date.Date(2024, 3, 1), "USD", "CNY", decimal.RequireFromString("7.25")); err != nil {
		t.Fatalf("UpsertPrice() returned unexpected error: %v", err)
	}
	if _, err := s.UpsertPrice(ctx, date.Date(2023, 6, 1), "EUR", "CNY", decimal.RequireFromString("7.8")); err != nil {
		t.Fatalf("UpsertPrice() returned unexpected error: %v", err)
	}

	wantYear := lines(
		`; Transactions for 2024`,
		``,
		`2024-03-01 price USD 7.25 CNY`,
		`2024-02-01 price USD 7.00 CNY`,
		`2024-01-01 price USD 7.05 CNY`,
	)
	if diff := cmp.Diff(wantYear, read(t, year)); diff != "" {
		t.Fatalf("year file has unexpected diff (-want/+got):\n%s\n", diff)
	}
	wantMain := lines(
		`option "operating_currency" "CNY"`,
		`include "transactions_2024.beancount"`,
		``,
		`2023-12-01 price USD 7.10 CNY`,
		``,
		`2023-06-01 price EUR 7.8 CNY`,
	)
	if diff := cmp.Diff(wantMain, read(t, main)); diff != "" {
		t.Fatalf("main file has unexpected diff (-want/+got):\n%s\n", diff)
	}
}

func TestUpsertThenGet(t *testing.T) {
	s, _ := setup(t, map[string]string{
		"main.beancount": lines(`option "operating_currency" "CNY"`),
	})
	ctx := context.Background()
	tests := []struct {
		from, to string
		rate     string
	}{
		{"USD", "CNY", "7.00"},
		{"USD", "CNY", "7.1234"},
		{"EUR", "USD", "1.08"},
		{"CNY", "CNY", "1"},
	}
	for _, test := range tests {
		rate := decimal.RequireFromString(test.rate)

		if _, err := s.UpsertPrice(ctx, date.Date(2024, 5, 1), test.from, test.to, rate); err != nil {
			t.Fatalf("UpsertPrice() returned unexpected error: %v", err)
		}
		got, err := s.GetPrice(ctx, date.Date(2024, 5, 1), test.from, test.to)

		if err != nil {
			t.Fatalf("GetPrice() returned unexpected error: %v", err)
		}
		if !got.Rate.Equal(rate) {
			t.Fatalf("GetPrice() = %s, want %s", got.Rate, rate)
		}
	}
}

func TestUpsertPriceInvalid(t *testing.T) {
	s, _ := setup(t, map[string]string{"main.beancount": ""})
	tests := []struct {
		from, to string
		rate     decimal.Decimal
	}{
		{"USD", "CNY", decimal.Zero},
		{"USD", "CNY", decimal.NewFromInt(-1)},
		{"usd", "CNY", decimal.NewFromInt(7)},
		{"CNY", "CNY", decimal.NewFromInt(2)},
	}
	for _, test := range tests {
		_, err := s.UpsertPrice(context.Background(), date.Date(2024, 1, 1), test.from, test.to, test.rate)

		if !fault.Is(err, fault.Validation) {
			t.Errorf("UpsertPrice(%s, %s, %s) returned %v, want a validation error", test.from, test.to, test.rate, err)
		}
	}
}

func TestListPrices(t *testing.T) {
	s, dir := setup(t, map[string]string{
		"main.beancount": lines(
			`include "prices.beancount"`,
			`2024-01-01 price USD 7.00 CNY`,
			`2024-03-01 price EUR 7.80 CNY`,
		),
		"prices.beancount": lines(
			`2024-02-01 price USD 7.10 CNY`,
			`2024-04-01 price USD 1,234.5 JPY`,
		),
	})
	ctx := context.Background()

	got, err := s.ListPrices(ctx, "USD", 1, 2)

	if err != nil {
		t.Fatal(err)
	}
	var (
		main   = filepath.Join(dir, "main.beancount")
		prices = filepath.Join(dir, "prices.beancount")
	)
	want := []Price{
		{Date: date.Date(2024, 4, 1), From: "USD", To: "JPY", Rate: decimal.RequireFromString("1234.5")},
		{Date: date.Date(2024, 2, 1), From: "USD", To: "CNY", Rate: decimal.RequireFromString("7.10")},
	}
	if got.Total != 3 || got.Page != 1 || got.Size != 2 {
		t.Fatalf("ListPrices() returned page %d/%d of %d, want 1/2 of 3", got.Page, got.Size, got.Total)
	}
	if diff := cmp.Diff(want, got.Items, cmp.Comparer(func(d1, d2 decimal.Decimal) bool { return d1.Equal(d2) }), cmp.FilterPath(func(p cmp.Path) bool { return p.Last().String() == ".Pos" }, cmp.Ignore())); diff != "" {
		t.Fatalf("ListPrices() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
	if got.Items[0].Pos.File != prices || got.Items[0].Pos.Line != 2 {
		t.Fatalf("ListPrices() returned position %v, want %s:2", got.Items[0].Pos, prices)
	}

	all, err := s.ListPrices(ctx, "", 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if all.Total != 4 || all.Size != 50 {
		t.Fatalf("ListPrices() returned %d prices with page size %d, want 4 and 50", all.Total, all.Size)
	}
	if all.Items[3].Pos.File != main {
		t.Fatalf("ListPrices() returned oldest price in %s, want %s", all.Items[3].Pos.File, main)
	}
}

func TestDeletePrice(t *testing.T) {
	s, dir := setup(t, map[string]string{
		"main.beancount": lines(
			`option "operating_currency" "CNY"`,
			`include "prices.beancount"`,
			`2024-01-01 price USD 7.00 CNY`,
		),
		"prices.beancount": lines(
			`2024-02-01 price USD 7.10 CNY`,
			`2024-02-01 price EUR 7.80 CNY`,
		),
	})
	ctx := context.Background()

	if err := s.DeletePrice(ctx, date.Date(2024, 2, 1), "USD", ""); err != nil {
		t.Fatalf("DeletePrice() returned unexpected error: %v", err)
	}

	if diff := cmp.Diff(lines(`2024-02-01 price EUR 7.80 CNY`), read(t, filepath.Join(dir, "prices.beancount"))); diff != "" {
		t.Fatalf("DeletePrice() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
	if err := s.DeletePrice(ctx, date.Date(2024, 2, 1), "USD", ""); !fault.Is(err, fault.NotFound) {
		t.Fatalf("DeletePrice() returned %v, want a not found error", err)
	}
	if _, err := s.GetPrice(ctx, date.Date(2024, 2, 1), "USD", "CNY"); !fault.Is(err, fault.NotFound) {
		t.Fatalf("GetPrice() returned %v, want a not found error", err)
	}
}
