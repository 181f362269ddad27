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

package transactions

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
	"github.com/sboehler/kasse/lib/query"
	"github.com/sboehler/kasse/lib/textedit"
	"github.com/sboehler/kasse/lib/validate"
	"github.com/sboehler/kasse/lib/yearfile"
	"github.com/shopspring/decimal"
)

func lines(ss ...string) string {
	return strings.Join(ss, "\n") + "\n"
}

var mainFile = lines(
	`option "operating_currency" "CNY"`,
	`include "transactions_2024.beancount"`,
	`2024-01-01 open Assets:Cash CNY`,
	`2024-01-01 open Expenses:Food CNY`,
)

var yearFile = []string{
	`; Transactions for 2024`,
	``,
	`2024-01-05 * "Breakfast"`,
	`  Expenses:Food  8.00 CNY`,
	`  Assets:Cash  -8.00 CNY`,
	``,
	`2024-02-05 * "Kiosk" "Snack"`,
	`  ; paid in cash`,
	`  Expenses:Food  5.00 CNY`,
	`  Assets:Cash  -5.00 CNY`,
	``,
	`2024-03-01 * "Groceries"`,
	`  Expenses:Food  50.00 CNY`,
	`  Assets:Cash  -50.00 CNY`,
	``,
	`; with colleagues`,
	`2024-03-15 * "Lunch"`,
	`  Expenses:Food  30.00 CNY`,
	`  Assets:Cash  -30.00 CNY`,
	``,
	`2024-03-20 * "Coffee"`,
	`  Expenses:Food  4.00 CNY`,
	`  Assets:Cash`,
}

func setup(t *testing.T, files map[string]string) (*Repository, string) {
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
		main   = filepath.Join(dir, "main.beancount")
		loader = ledger.NewLoader(main)
		locks  = new(textedit.Locks)
	)
	return New(loader, locks, yearfile.New(loader, locks, nil), validate.New(main, nil), nil), dir
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func lunch(narration string) Record {
	return Record{
		Date:      date.Date(2024, 3, 15),
		Narration: narration,
		Postings: []PostingRecord{
			{Account: "Expenses:Food", Amount: amount("30.00"), Currency: "CNY"},
			{Account: "Assets:Cash", Amount: amount("-30.00"), Currency: "CNY"},
		},
	}
}

func TestCreate(t *testing.T) {
	r, dir := setup(t, map[string]string{
		"main.beancount": lines(
			`option "operating_currency" "CNY"`,
			`2024-01-01 open Assets:Cash CNY`,
			`2024-01-01 open Expenses:Food CNY`,
		),
	})
	ctx := context.Background()

	id, err := r.Create(ctx, lunch("Lunch"))

	if err != nil {
		t.Fatalf("Create() returned unexpected error: %v", err)
	}
	if diff := cmp.Diff(ID{File: "transactions_2024.beancount", Line: 3}, id); diff != "" {
		t.Fatalf("Create() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
	if !strings.Contains(read(t, filepath.Join(dir, "main.beancount")), `include "transactions_2024.beancount"`) {
		t.Fatalf("main file does not include the year file")
	}
	want := lines(
		`; Transactions for 2024`,
		``,
		`2024-03-15 * "Lunch"`,
		`  Expenses:Food  30.00 CNY`,
		`  Assets:Cash  -30.00 CNY`,
	)
	if diff := cmp.Diff(want, read(t, filepath.Join(dir, "transactions_2024.beancount"))); diff != "" {
		t.Fatalf("Create() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
	trx, err := r.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() returned unexpected error: %v", err)
	}
	if trx.Narration != "Lunch" {
		t.Fatalf("Get() returned %q, want Lunch", trx.Narration)
	}
}

func TestCreateInvalid(t *testing.T) {
	r, dir := setup(t, map[string]string{
		"main.beancount": mainFile,
		"transactions_2024.beancount": lines(yearFile...),
	})
	tests := []struct {
		desc string
		rec  Record
		want []string
	}{
		{
			desc: "unknown account",
			rec: Record{
				Date:      date.Date(2024, 3, 15),
				Narration: "Drinks",
				Postings: []PostingRecord{
					{Account: "Expenses:Drinks", Amount: amount("12"), Currency: "CNY"},
					{Account: "Assets:Cash"},
				},
			},
			want: []string{`Account "Expenses:Drinks" does not exist. Open it first.`},
		},
		{
			desc: "two postings without amount",
			rec: Record{
				Date: date.Date(2024, 3, 15),
				Postings: []PostingRecord{
					{Account: "Expenses:Food"},
					{Account: "Assets:Cash"},
				},
			},
			want: []string{"at most one posting can omit its amount"},
		},
		{
			desc: "single posting",
			rec: Record{
				Date:     date.Date(2024, 3, 15),
				Postings: []PostingRecord{{Account: "Expenses:Food", Amount: amount("1"), Currency: "CNY"}},
			},
			want: []string{"a transaction needs at least two postings"},
		},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			_, err := r.Create(context.Background(), test.rec)

			if !fault.Is(err, fault.Validation) {
				t.Fatalf("Create() returned %v, want a validation error", err)
			}
			if diff := cmp.Diff(test.want, fault.DiagnosticsOf(err)); diff != "" {
				t.Fatalf("Create() returned unexpected diff (-want/+got):\n%s\n", diff)
			}
		})
	}
	if diff := cmp.Diff(lines(yearFile...), read(t, filepath.Join(dir, "transactions_2024.beancount"))); diff != "" {
		t.Fatalf("Create() modified the year file (-want/+got):\n%s\n", diff)
	}
}

func TestUpdateInPlace(t *testing.T) {
	r, dir := setup(t, map[string]string{
		"main.beancount":              mainFile,
		"transactions_2024.beancount": lines(yearFile...),
	})
	ctx := context.Background()
	id, err := ParseID("transactions_2024.beancount:17")
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.Update(ctx, id, lunch("Dinner"))

	if err != nil {
		t.Fatalf("Update() returned unexpected error: %v", err)
	}
	if diff := cmp.Diff(id, got); diff != "" {
		t.Fatalf("Update() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
	want := append([]string(nil), yearFile...)
	want[16] = `2024-03-15 * "Dinner"`
	if diff := cmp.Diff(lines(want...), read(t, filepath.Join(dir, "transactions_2024.beancount"))); diff != "" {
		t.Fatalf("Update() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
	trx, err := r.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() returned unexpected error: %v", err)
	}
	if trx.Narration != "Dinner" || trx.Pos.Line != 17 {
		t.Fatalf("Get() returned %q at line %d, want Dinner at line 17", trx.Narration, trx.Pos.Line)
	}
}

func TestUpdateMovesYear(t *testing.T) {
	r, dir := setup(t, map[string]string{
		"main.beancount":              mainFile,
		"transactions_2024.beancount": lines(yearFile...),
	})
	ctx := context.Background()
	rec := lunch("Lunch")
	rec.Date = date.Date(2025, 1, 2)

	got, err := r.Update(ctx, ID{File: "transactions_2024.beancount", Line: 17}, rec)

	if err != nil {
		t.Fatalf("Update() returned unexpected error: %v", err)
	}
	if diff := cmp.Diff(ID{File: "transactions_2025.beancount", Line: 3}, got); diff != "" {
		t.Fatalf("Update() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
	if strings.Contains(read(t, filepath.Join(dir, "transactions_2024.beancount")), "Lunch") {
		t.Fatalf("Update() left the transaction in the old year file")
	}
	trx, err := r.Get(ctx, got)
	if err != nil {
		t.Fatalf("Get() returned unexpected error: %v", err)
	}
	if !trx.Day.Equal(rec.Date) {
		t.Fatalf("Get() returned date %s, want %s", trx.Day, rec.Date)
	}
}

func TestUpdateMoveFailureKeepsTransaction(t *testing.T) {
	r, dir := setup(t, map[string]string{
		"main.beancount":              mainFile,
		"transactions_2024.beancount": lines(yearFile...),
	})
	// a directory in place of the new year file makes the append fail
	if err := os.Mkdir(filepath.Join(dir, "transactions_2025.beancount"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec := lunch("Lunch")
	rec.Date = date.Date(2025, 1, 2)

	_, err := r.Update(context.Background(), ID{File: "transactions_2024.beancount", Line: 17}, rec)

	if err == nil {
		t.Fatalf("Update() returned no error")
	}
	if diff := cmp.Diff(lines(yearFile...), read(t, filepath.Join(dir, "transactions_2024.beancount"))); diff != "" {
		t.Fatalf("Update() changed the old year file (-want/+got):\n%s\n", diff)
	}
}

func TestDelete(t *testing.T) {
	r, dir := setup(t, map[string]string{
		"main.beancount":              mainFile,
		"transactions_2024.beancount": lines(yearFile...),
	})
	ctx := context.Background()
	id := ID{File: "transactions_2024.beancount", Line: 7}

	if err := r.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() returned unexpected error: %v", err)
	}

	want := append(append([]string(nil), yearFile[:6]...), yearFile[11:]...)
	if diff := cmp.Diff(lines(want...), read(t, filepath.Join(dir, "transactions_2024.beancount"))); diff != "" {
		t.Fatalf("Delete() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
	if err := r.Delete(ctx, id); !fault.Is(err, fault.NotFound) {
		t.Fatalf("Delete() returned %v, want a not found error", err)
	}
}

func TestList(t *testing.T) {
	r, _ := setup(t, map[string]string{
		"main.beancount":              mainFile,
		"transactions_2024.beancount": lines(yearFile...),
	})

	got, err := r.List(context.Background(), query.Criteria{Narration: "c"}, 1, 2)

	if err != nil {
		t.Fatal(err)
	}
	var narrations []string
	for _, trx := range got.Items {
		narrations = append(narrations, trx.Narration)
	}
	if diff := cmp.Diff([]string{"Coffee", "Lunch"}, narrations); diff != "" {
		t.Fatalf("List() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
	if got.Total != 4 {
		t.Fatalf("List() returned total %d, want 4", got.Total)
	}
}

func TestFromTransaction(t *testing.T) {
	r, _ := setup(t, map[string]string{
		"main.beancount":              mainFile,
		"transactions_2024.beancount": lines(yearFile...),
	})
	trx, err := r.Get(context.Background(), ID{File: "transactions_2024.beancount", Line: 21})
	if err != nil {
		t.Fatal(err)
	}

	got := FromTransaction(trx)

	text, err := got.Text()
	if err != nil {
		t.Fatalf("Text() returned unexpected error: %v", err)
	}
	want := lines(
		`2024-03-20 * "Coffee"`,
		`  Expenses:Food  4.00 CNY`,
		`  Assets:Cash`,
	)
	if diff := cmp.Diff(want, text); diff != "" {
		t.Fatalf("FromTransaction() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		input   string
		want    ID
		wantErr bool
	}{
		{input: "transactions_2024.beancount:17", want: ID{File: "transactions_2024.beancount", Line: 17}},
		{input: "sub/accounts.beancount:1", want: ID{File: "sub/accounts.beancount", Line: 1}},
		{input: "main.beancount", wantErr: true},
		{input: "main.beancount:0", wantErr: true},
		{input: "main.beancount:x", wantErr: true},
		{input: "../secret.beancount:3", wantErr: true},
		{input: "/etc/passwd:1", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got, err := ParseID(test.input)

			if test.wantErr {
				if !fault.Is(err, fault.Validation) {
					t.Fatalf("ParseID() returned %v, want a validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseID() returned unexpected error: %v", err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Fatalf("ParseID() returned unexpected diff (-want/+got):\n%s\n", diff)
			}
			if got.String() != test.input {
				t.Fatalf("String() = %s, want %s", got.String(), test.input)
			}
		})
	}
}
