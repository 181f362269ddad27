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

package validate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sboehler/kasse/lib/common/fault"
)

func lines(ss ...string) string {
	return strings.Join(ss, "\n") + "\n"
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.beancount")
	err := os.WriteFile(main, []byte(lines(
		`option "operating_currency" "CNY"`,
		`include "accounts.beancount"`,
		`2024-01-01 open Expenses:Food CNY`,
		`2024-01-01 open Assets:Cash CNY`,
	)), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	err = os.WriteFile(filepath.Join(dir, "accounts.beancount"), []byte(lines(
		`2024-06-01 open Assets:Bank CNY`,
		`2024-02-01 open Assets:Old CNY`,
		`2024-03-01 close Assets:Old`,
	)), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	v := New(main, nil)

	tests := []struct {
		desc string
		text string
		want Result
	}{
		{
			desc: "valid",
			text: lines(`2024-03-15 * "Lunch"`, `  Expenses:Food  30.00 CNY`, `  Assets:Cash  -30.00 CNY`),
			want: Result{Valid: true},
		},
		{
			desc: "valid with inferred posting",
			text: lines(`2024-03-15 * "Lunch"`, `  Expenses:Food  30.00 CNY`, `  Assets:Cash`),
			want: Result{Valid: true},
		},
		{
			desc: "unknown account",
			text: lines(`2024-03-15 * "Lunch"`, `  Expenses:Drinks  30.00 CNY`, `  Assets:Cash`),
			want: Result{Diagnostics: []string{`Account "Expenses:Drinks" does not exist. Open it first.`}},
		},
		{
			desc: "not yet open",
			text: lines(`2024-03-15 * "Deposit"`, `  Assets:Bank  30.00 CNY`, `  Assets:Cash`),
			want: Result{Diagnostics: []string{`Account "Assets:Bank" is not open on 2024-03-15.`}},
		},
		{
			desc: "closed",
			text: lines(`2024-03-15 * "Withdraw"`, `  Assets:Old  -30.00 CNY`, `  Assets:Cash`),
			want: Result{Diagnostics: []string{`Account "Assets:Old" is not open on 2024-03-15.`}},
		},
		{
			desc: "invalid currency",
			text: lines(`2024-03-15 * "Lunch"`, `  Expenses:Food  30.00 USD`, `  Assets:Cash`),
			want: Result{Diagnostics: []string{
				`Account "Expenses:Food" does not accept currency USD.`,
				`Account "Assets:Cash" does not accept currency USD.`,
			}},
		},
		{
			desc: "unbalanced",
			text: lines(`2024-03-15 * "Lunch"`, `  Expenses:Food  30.00 CNY`, `  Assets:Cash  -20.00 CNY`),
			want: Result{Diagnostics: []string{`Transaction does not balance: residual 10 CNY.`}},
		},
		{
			desc: "invalid account name",
			text: lines(`2024-03-15 * "Lunch"`, `  Expenses:Food  30.00 CNY`, `  Cash:Wallet`),
			want: Result{Diagnostics: []string{
				`"Cash:Wallet" is not a valid account name.`,
				`Account "Cash:Wallet" does not exist. Open it first.`,
			}},
		},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			got, err := v.Validate(context.Background(), test.text)

			if err != nil {
				t.Fatalf("Validate() returned unexpected error: %v", err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Fatalf("Validate() returned unexpected diff (-want/+got):\n%s\n", diff)
			}
		})
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Validate() left %d files in %s, want 2", len(entries), dir)
	}
}

func TestValidateMissingMain(t *testing.T) {
	v := New(filepath.Join(t.TempDir(), "main.beancount"), nil)

	_, err := v.Validate(context.Background(), lines(`2024-03-15 * "Lunch"`))

	if !fault.Is(err, fault.SourceMissing) {
		t.Fatalf("Validate() returned %v, want a source missing error", err)
	}
}
