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

package textedit

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func lines(ss ...string) string {
	return strings.Join(ss, "\n") + "\n"
}

var text = lines(
	`; Transactions for 2024`,
	``,
	`2024-03-15 * "Lunch"`,
	`  Expenses:Food  30.00 CNY`,
	`  ; paid in cash`,
	`  Assets:Cash`,
	``,
	`; next`,
	`2024-03-16 * "Dinner"`,
	`  Expenses:Food  40.00 CNY`,
	`  Assets:Cash`,
)

func TestBlock(t *testing.T) {
	tests := []struct {
		start, wantEnd int
	}{
		{3, 7},
		{9, 12},
		{1, 2},
	}
	for _, test := range tests {
		d := Parse("main.beancount", text)

		start, end, err := d.Block(test.start)

		if err != nil {
			t.Fatalf("Block(%d) returned unexpected error: %v", test.start, err)
		}
		if start != test.start || end != test.wantEnd {
			t.Fatalf("Block(%d) = [%d, %d), want [%d, %d)", test.start, start, end, test.start, test.wantEnd)
		}
	}
	if _, _, err := Parse("main.beancount", text).Block(13); err == nil {
		t.Fatalf("Block(13) returned no error")
	}
}

func TestSplice(t *testing.T) {
	tests := []struct {
		desc       string
		start, end int
		text       string
		want       string
	}{
		{
			desc:  "replace",
			start: 3,
			end:   7,
			text:  lines(`2024-03-15 * "Brunch"`, `  Expenses:Food  30.00 CNY`, `  Assets:Cash`),
			want: lines(
				`; Transactions for 2024`,
				``,
				`2024-03-15 * "Brunch"`,
				`  Expenses:Food  30.00 CNY`,
				`  Assets:Cash`,
				``,
				`; next`,
				`2024-03-16 * "Dinner"`,
				`  Expenses:Food  40.00 CNY`,
				`  Assets:Cash`,
			),
		},
		{
			desc:  "delete",
			start: 9,
			end:   12,
			want: lines(
				`; Transactions for 2024`,
				``,
				`2024-03-15 * "Lunch"`,
				`  Expenses:Food  30.00 CNY`,
				`  ; paid in cash`,
				`  Assets:Cash`,
				``,
				`; next`,
			),
		},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			d := Parse("main.beancount", text)

			d.Splice(test.start, test.end, test.text)

			if diff := cmp.Diff(test.want, d.String()); diff != "" {
				t.Fatalf("Splice() returned unexpected diff (-want/+got):\n%s\n", diff)
			}
		})
	}
}

func TestAppend(t *testing.T) {
	d := Parse("main.beancount", lines(`; header`))

	d.Append(lines(`2024-01-01 open Assets:Cash`))
	d.Append(`2024-01-02 open Assets:Bank`)

	want := lines(`; header`, ``, `2024-01-01 open Assets:Cash`, ``, `2024-01-02 open Assets:Bank`)
	if diff := cmp.Diff(want, d.String()); diff != "" {
		t.Fatalf("Append() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
}

func TestReadWrite(t *testing.T) {
	p := filepath.Join(t.TempDir(), "main.beancount")
	d, err := Read(p)
	if err != nil {
		t.Fatalf("Read() returned unexpected error: %v", err)
	}
	if d.Len() != 0 {
		t.Fatalf("Read() of a missing file returned %d lines", d.Len())
	}

	d.Append(`option "operating_currency" "CNY"`)
	if err := d.Write(); err != nil {
		t.Fatalf("Write() returned unexpected error: %v", err)
	}

	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(lines(`option "operating_currency" "CNY"`), string(got)); diff != "" {
		t.Fatalf("Write() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
}

func TestEdit(t *testing.T) {
	var locks Locks
	p := filepath.Join(t.TempDir(), "main.beancount")
	if err := os.WriteFile(p, []byte(lines(`; header`)), 0o644); err != nil {
		t.Fatal(err)
	}

	changed, err := locks.Edit(p, func(d *Document) (bool, error) {
		return false, nil
	})
	if err != nil || changed {
		t.Fatalf("Edit() = %t, %v, want false, nil", changed, err)
	}
	changed, err = locks.Edit(p, func(d *Document) (bool, error) {
		d.Insert(1, `option "title" "Ledger"`)
		return true, nil
	})
	if err != nil || !changed {
		t.Fatalf("Edit() = %t, %v, want true, nil", changed, err)
	}

	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(lines(`option "title" "Ledger"`, `; header`), string(got)); diff != "" {
		t.Fatalf("Edit() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
}

func TestLocks(t *testing.T) {
	var (
		locks   Locks
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("/data/b.beancount", "/data/a.beancount", "/data/../data/a.beancount")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
}
