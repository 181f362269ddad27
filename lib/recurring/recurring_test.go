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

package recurring

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
	"github.com/sboehler/kasse/lib/tasks"
	"github.com/sboehler/kasse/lib/textedit"
	"github.com/sboehler/kasse/lib/transactions"
	"github.com/sboehler/kasse/lib/validate"
	"github.com/sboehler/kasse/lib/yearfile"
)

func ptr(t time.Time) *time.Time {
	return &t
}

func TestNextDate(t *testing.T) {
	tests := []struct {
		desc        string
		rule        store.RecurringRule
		base, today time.Time
		want        *time.Time
	}{
		{
			desc:  "daily",
			rule:  store.RecurringRule{Type: Daily},
			base:  date.Date(2024, 3, 1),
			today: date.Date(2024, 3, 1),
			want:  ptr(date.Date(2024, 3, 2)),
		},
		{
			desc:  "daily after a gap",
			rule:  store.RecurringRule{Type: Daily},
			base:  date.Date(2024, 2, 1),
			today: date.Date(2024, 3, 1),
			want:  ptr(date.Date(2024, 3, 2)),
		},
		{
			desc:  "weekly",
			rule:  store.RecurringRule{Type: Weekly, Weekdays: []time.Weekday{time.Monday, time.Thursday}},
			base:  date.Date(2024, 3, 4), // Monday
			today: date.Date(2024, 3, 4),
			want:  ptr(date.Date(2024, 3, 7)),
		},
		{
			desc:  "weekly wraps",
			rule:  store.RecurringRule{Type: Weekly, Weekdays: []time.Weekday{time.Monday}},
			base:  date.Date(2024, 3, 4),
			today: date.Date(2024, 3, 4),
			want:  ptr(date.Date(2024, 3, 11)),
		},
		{
			desc:  "weekly without days",
			rule:  store.RecurringRule{Type: Weekly},
			base:  date.Date(2024, 3, 4),
			today: date.Date(2024, 3, 4),
		},
		{
			desc:  "weekdays skip the weekend",
			rule:  store.RecurringRule{Type: Weekdays},
			base:  date.Date(2024, 3, 8), // Friday
			today: date.Date(2024, 3, 8),
			want:  ptr(date.Date(2024, 3, 11)),
		},
		{
			desc:  "monthly within the month",
			rule:  store.RecurringRule{Type: Monthly, MonthDays: []int{25, 1, 15}},
			base:  date.Date(2024, 3, 1),
			today: date.Date(2024, 3, 1),
			want:  ptr(date.Date(2024, 3, 15)),
		},
		{
			desc:  "monthly rolls over",
			rule:  store.RecurringRule{Type: Monthly, MonthDays: []int{1}},
			base:  date.Date(2024, 3, 1),
			today: date.Date(2024, 3, 1),
			want:  ptr(date.Date(2024, 4, 1)),
		},
		{
			desc:  "monthly skips invalid days",
			rule:  store.RecurringRule{Type: Monthly, MonthDays: []int{30}},
			base:  date.Date(2024, 1, 30),
			today: date.Date(2024, 1, 30),
			want:  ptr(date.Date(2024, 3, 30)),
		},
		{
			desc:  "monthly on the 31st",
			rule:  store.RecurringRule{Type: Monthly, MonthDays: []int{31}},
			base:  date.Date(2024, 3, 31),
			today: date.Date(2024, 3, 31),
			want:  ptr(date.Date(2024, 5, 31)),
		},
		{
			desc:  "expired",
			rule:  store.RecurringRule{Type: Monthly, MonthDays: []int{1}, EndDate: ptr(date.Date(2024, 3, 31))},
			base:  date.Date(2024, 3, 1),
			today: date.Date(2024, 3, 1),
		},
		{
			desc:  "on the end date",
			rule:  store.RecurringRule{Type: Daily, EndDate: ptr(date.Date(2024, 3, 2))},
			base:  date.Date(2024, 3, 1),
			today: date.Date(2024, 3, 1),
			want:  ptr(date.Date(2024, 3, 2)),
		},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			got := NextDate(test.rule, test.base, test.today)

			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Fatalf("NextDate() returned unexpected diff (-want/+got):\n%s\n", diff)
			}
		})
	}
}

func TestStateOf(t *testing.T) {
	var (
		next  = date.Date(2024, 3, 1)
		end   = date.Date(2024, 2, 1)
		today = date.Date(2024, 3, 1)
	)
	tests := []struct {
		rule store.RecurringRule
		want State
	}{
		{store.RecurringRule{Active: false, NextExecution: &next}, Disabled},
		{store.RecurringRule{Active: true, NextExecution: &next}, Enabled},
		{store.RecurringRule{Active: true}, Expired},
		{store.RecurringRule{Active: true, NextExecution: &next, EndDate: &end}, Expired},
	}
	for _, test := range tests {
		if got := StateOf(test.rule, today); got != test.want {
			t.Errorf("StateOf(%v) = %s, want %s", test.rule, got, test.want)
		}
	}
}

const rent = `{
  "narration": "Rent",
  "postings": [
    {"account": "Expenses:Rent", "amount": "10.00", "currency": "CNY"},
    {"account": "Assets:Cash"}
  ]
}`

type fixture struct {
	scheduler *Scheduler
	loader    *ledger.Loader
	dir       string
	today     time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "main.beancount")
	content := strings.Join([]string{
		`option "operating_currency" "CNY"`,
		`2024-01-01 open Assets:Cash CNY`,
		`2024-01-01 open Expenses:Rent CNY`,
	}, "\n") + "\n"
	if err := os.WriteFile(main, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	db, err := store.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("error creating in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	var (
		loader = ledger.NewLoader(main)
		locks  = new(textedit.Locks)
		repo   = transactions.New(loader, locks, yearfile.New(loader, locks, nil), validate.New(main, nil), nil)
		f      = &fixture{loader: loader, dir: dir, today: date.Date(2024, 3, 1)}
	)
	f.scheduler = New(db, repo, nil)
	f.scheduler.Today = func() time.Time { return f.today }
	f.scheduler.Now = func() time.Time { return f.today.Add(8 * time.Hour) }
	return f
}

func (f *fixture) transactions(t *testing.T) []string {
	t.Helper()
	l, err := f.loader.Load(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	var res []string
	for _, trx := range l.Transactions() {
		res = append(res, date.Format(trx.Day)+" "+trx.Narration)
	}
	return res
}

func TestFireMonthlyRule(t *testing.T) {
	var (
		ctx = context.Background()
		f   = setup(t)
	)
	r, err := f.scheduler.Create(ctx, store.RecurringRule{
		Name:      "Rent",
		Active:    true,
		Type:      Monthly,
		StartDate: date.Date(2024, 1, 1),
		MonthDays: []int{1},
		Template:  []byte(rent),
	})
	if err != nil {
		t.Fatalf("Create() returned unexpected error: %v", err)
	}
	if diff := cmp.Diff(ptr(date.Date(2024, 3, 1)), r.NextExecution); diff != "" {
		t.Fatalf("Create() returned unexpected next execution (-want/+got):\n%s\n", diff)
	}

	fired, err := f.scheduler.Tick(ctx)
	if err != nil || fired != 1 {
		t.Fatalf("Tick() = %d, %v, want 1, nil", fired, err)
	}
	fired, err = f.scheduler.Tick(ctx)
	if err != nil || fired != 0 {
		t.Fatalf("second Tick() = %d, %v, want 0, nil", fired, err)
	}
	if _, err := f.scheduler.Fire(ctx, r.ID); !fault.Is(err, fault.Conflict) {
		t.Fatalf("Fire() returned %v, want a conflict", err)
	}

	if diff := cmp.Diff([]string{"2024-03-01 Rent"}, f.transactions(t)); diff != "" {
		t.Fatalf("ledger has unexpected transactions (-want/+got):\n%s\n", diff)
	}
	b, err := os.ReadFile(filepath.Join(f.dir, "transactions_2024.beancount"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `2024-03-01 * "Rent"`) {
		t.Fatalf("year file does not contain the rent transaction:\n%s", b)
	}
	got, err := f.scheduler.Get(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ptr(date.Date(2024, 4, 1)), got.NextExecution); diff != "" {
		t.Fatalf("rule has unexpected next execution (-want/+got):\n%s\n", diff)
	}
	if diff := cmp.Diff(ptr(date.Date(2024, 3, 1)), got.LastExecuted); diff != "" {
		t.Fatalf("rule has unexpected last execution (-want/+got):\n%s\n", diff)
	}
	execs, err := f.scheduler.Executions(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []store.Execution{{
		ID:            1,
		RuleID:        r.ID,
		FireDate:      date.Date(2024, 3, 1),
		Success:       true,
		TransactionID: "transactions_2024.beancount:3",
		CreatedAt:     date.Date(2024, 3, 1).Add(8 * time.Hour),
	}}
	if diff := cmp.Diff(want, execs); diff != "" {
		t.Fatalf("Executions() returned unexpected diff (-want/+got):\n%s\n", diff)
	}

	f.today = date.Date(2024, 4, 1)
	if fired, err := f.scheduler.Tick(ctx); err != nil || fired != 1 {
		t.Fatalf("Tick() = %d, %v, want 1, nil", fired, err)
	}
	if diff := cmp.Diff([]string{"2024-03-01 Rent", "2024-04-01 Rent"}, f.transactions(t)); diff != "" {
		t.Fatalf("ledger has unexpected transactions (-want/+got):\n%s\n", diff)
	}
}

func TestFailedFireIsRetried(t *testing.T) {
	var (
		ctx = context.Background()
		f   = setup(t)
	)
	r, err := f.scheduler.Create(ctx, store.RecurringRule{
		Name:      "Gym",
		Active:    true,
		Type:      Daily,
		StartDate: date.Date(2024, 3, 1),
		Template:  []byte(`{"narration": "Gym", "postings": [{"account": "Expenses:Gym", "amount": "5", "currency": "CNY"}, {"account": "Assets:Cash"}]}`),
	})
	if err != nil {
		t.Fatalf("Create() returned unexpected error: %v", err)
	}

	if _, err := f.scheduler.Tick(ctx); err == nil {
		t.Fatalf("Tick() returned no error for a rule posting to an unknown account")
	}

	got, err := f.scheduler.Get(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastExecuted != nil || !got.NextExecution.Equal(date.Date(2024, 3, 1)) {
		t.Fatalf("failed rule was advanced: last %v, next %v", got.LastExecuted, got.NextExecution)
	}
	execs, err := f.scheduler.Executions(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 1 || execs[0].Success || execs[0].Error == "" {
		t.Fatalf("Executions() = %v, want one failed execution", execs)
	}
	if txs := f.transactions(t); len(txs) != 0 {
		t.Fatalf("ledger has unexpected transactions %v", txs)
	}
}

func TestFireGuards(t *testing.T) {
	var (
		ctx = context.Background()
		f   = setup(t)
	)
	disabled, err := f.scheduler.Create(ctx, store.RecurringRule{
		Name: "Off", Type: Daily, StartDate: date.Date(2024, 1, 1), Template: []byte(rent),
	})
	if err != nil {
		t.Fatal(err)
	}
	expired, err := f.scheduler.Create(ctx, store.RecurringRule{
		Name: "Old", Active: true, Type: Daily, StartDate: date.Date(2023, 1, 1), EndDate: ptr(date.Date(2023, 12, 31)), Template: []byte(rent),
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.scheduler.Fire(ctx, disabled.ID); !fault.Is(err, fault.Conflict) {
		t.Errorf("Fire() of a disabled rule returned %v, want a conflict", err)
	}
	if _, err := f.scheduler.Fire(ctx, expired.ID); !fault.Is(err, fault.Conflict) {
		t.Errorf("Fire() of an expired rule returned %v, want a conflict", err)
	}
	if _, err := f.scheduler.Fire(ctx, 42); !fault.Is(err, fault.NotFound) {
		t.Errorf("Fire() of a missing rule returned %v, want not found", err)
	}
	if fired, err := f.scheduler.Tick(ctx); err != nil || fired != 0 {
		t.Errorf("Tick() = %d, %v, want 0, nil", fired, err)
	}
}

func TestCreateInvalid(t *testing.T) {
	f := setup(t)
	tests := []store.RecurringRule{
		{Name: "", Type: Daily, StartDate: date.Date(2024, 1, 1), Template: []byte(rent)},
		{Name: "x", Type: "hourly", StartDate: date.Date(2024, 1, 1), Template: []byte(rent)},
		{Name: "x", Type: Weekly, StartDate: date.Date(2024, 1, 1), Template: []byte(rent)},
		{Name: "x", Type: Monthly, MonthDays: []int{32}, StartDate: date.Date(2024, 1, 1), Template: []byte(rent)},
		{Name: "x", Type: Daily, StartDate: date.Date(2024, 1, 1), EndDate: ptr(date.Date(2023, 1, 1)), Template: []byte(rent)},
		{Name: "x", Type: Daily, StartDate: date.Date(2024, 1, 1), Template: []byte(`{"narration": "x", "postings": []}`)},
		{Name: "x", Type: Daily, StartDate: date.Date(2024, 1, 1), Template: []byte(`{"unknown": true}`)},
	}
	for _, test := range tests {
		if _, err := f.scheduler.Create(context.Background(), test); !fault.Is(err, fault.Validation) {
			t.Errorf("Create(%v) returned %v, want a validation error", test, err)
		}
	}
}

func TestFireTriggersSync(t *testing.T) {
	var (
		ctx    = context.Background()
		f      = setup(t)
		ts     = tasks.New(nil)
		synced = make(chan struct{}, 2)
	)
	defer ts.Stop()
	f.scheduler.OnFire(&tasks.Debouncer{Scheduler: ts, Delay: 10 * time.Millisecond}, func(context.Context) {
		synced <- struct{}{}
	})
	for _, name := range []string{"a", "b"} {
		if _, err := f.scheduler.Create(ctx, store.RecurringRule{
			Name: name, Active: true, Type: Daily, StartDate: date.Date(2024, 3, 1), Template: []byte(rent),
		}); err != nil {
			t.Fatal(err)
		}
	}

	if fired, err := f.scheduler.Tick(ctx); err != nil || fired != 2 {
		t.Fatalf("Tick() = %d, %v, want 2, nil", fired, err)
	}

	select {
	case <-synced:
	case <-time.After(5 * time.Second):
		t.Fatalf("sync was not triggered")
	}
	time.Sleep(50 * time.Millisecond)
	if len(synced) != 0 {
		t.Fatalf("sync was triggered more than once")
	}
}
