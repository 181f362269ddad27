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
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sboehler/kasse/lib/accounts"
	"github.com/sboehler/kasse/lib/budget"
	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/options"
	"github.com/sboehler/kasse/lib/order"
	"github.com/sboehler/kasse/lib/recurring"
	"github.com/sboehler/kasse/lib/report"
	"github.com/sboehler/kasse/lib/store"
	"github.com/sboehler/kasse/lib/sync"
	"github.com/sboehler/kasse/lib/sync/github/githubtest"
	"github.com/sboehler/kasse/lib/textedit"
	"github.com/sboehler/kasse/lib/transactions"
	"github.com/sboehler/kasse/lib/validate"
	"github.com/sboehler/kasse/lib/yearfile"
	"github.com/shopspring/decimal"
)

var mainFile = strings.Join([]string{
	`option "operating_currency" "CNY"`,
	`2024-01-01 open Assets:Cash CNY`,
	`2024-01-01 open Expenses:Food CNY`,
	`2024-01-01 open Income:Salary CNY`,
	``,
	`2024-03-01 * "Employer" "Salary"`,
	`  Assets:Cash  1000.00 CNY`,
	`  Income:Salary`,
}, "\n") + "\n"

type fixture struct {
	server *httptest.Server
	github *githubtest.Server
	dir    string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "main.beancount")
	if err := os.WriteFile(main, []byte(mainFile), 0o644); err != nil {
		t.Fatal(err)
	}
	db, err := store.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("error creating in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	gh := githubtest.New("alice", "ledger", "secret")
	t.Cleanup(gh.Close)

	var (
		today  = func() time.Time { return date.Date(2024, 3, 10) }
		loader = ledger.NewLoader(main)
		locks  = new(textedit.Locks)
		years  = yearfile.New(loader, locks, nil)
		repo   = transactions.New(loader, locks, years, validate.New(main, nil), nil)
		srv    = &Server{
			Loader:       loader,
			DB:           db,
			Transactions: repo,
			Accounts:     accounts.New(loader, locks, nil),
			Options:      options.New(loader, locks, years, "CNY", nil),
			Years:        years,
			Reports:      report.Generator{DefaultCurrency: "CNY"},
			Budgets:      budget.NewService(db, loader, nil),
			Recurring:    recurring.New(db, repo, nil),
			Order:        order.New(db, nil),
			Sync:         sync.New(db, dir, filepath.Join(t.TempDir(), ".sync.key"), loader, locks, nil),
		}
	)
	srv.Budgets.Today = today
	srv.Recurring.Today = today
	srv.Sync.BaseURL = gh.URL
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{server: ts, github: gh, dir: dir}
}

// do sends a request with a JSON body and decodes the JSON response into
// res, unless res is nil. It returns the status code.
func (f *fixture) do(t *testing.T, method, path string, body, res any) int {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if res != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
			t.Fatalf("%s %s: error decoding response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) expect(t *testing.T, method, path string, body, res any, want int) {
	t.Helper()
	if got := f.do(t, method, path, body, res); got != want {
		t.Fatalf("%s %s returned status %d, want %d", method, path, got, want)
	}
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func breakfast(day string) recordJSON {
	return recordJSON{
		Date:      day,
		Flag:      "*",
		Payee:     "Bakery",
		Narration: "Breakfast",
		Postings: []postingJSON{
			{Account: "Expenses:Food", Amount: amount("8.50"), Currency: "CNY"},
			{Account: "Assets:Cash"},
		},
	}
}

func TestHealth(t *testing.T) {
	f := setup(t)
	var res map[string]string
	f.expect(t, http.MethodGet, "/health", nil, &res, http.StatusOK)
	if diff := cmp.Diff(map[string]string{"status": "ok"}, res); diff != "" {
		t.Fatalf("unexpected diff (-want/+got):\n%s", diff)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	f := setup(t)

	var created transactionJSON
	f.expect(t, http.MethodPost, "/transactions", breakfast("2024-03-05"), &created, http.StatusCreated)
	if !strings.HasPrefix(created.ID, yearfile.FileName(2024)+":") {
		t.Fatalf("created transaction has id %q, want it in %s", created.ID, yearfile.FileName(2024))
	}
	if created.Kind != "expense" || len(created.Postings) != 2 {
		t.Fatalf("unexpected transaction %+v", created)
	}
	path := "/transactions/" + url.PathEscape(created.ID)

	var got transactionJSON
	f.expect(t, http.MethodGet, path, nil, &got, http.StatusOK)
	if diff := cmp.Diff(created, got); diff != "" {
		t.Fatalf("unexpected diff (-want/+got):\n%s", diff)
	}

	var list pageJSON[transactionJSON]
	f.expect(t, http.MethodGet, "/transactions?kind=expense", nil, &list, http.StatusOK)
	if list.Total != 1 || list.Items[0].ID != created.ID {
		t.Fatalf("unexpected page %+v", list)
	}

	update := breakfast("2024-03-06")
	update.Narration = "Brunch"
	var updated transactionJSON
	f.expect(t, http.MethodPut, path, update, &updated, http.StatusOK)
	if updated.Narration != "Brunch" || updated.Date != "2024-03-06" {
		t.Fatalf("unexpected update result %+v", updated)
	}

	f.expect(t, http.MethodDelete, "/transactions/"+url.PathEscape(updated.ID), nil, nil, http.StatusNoContent)
	f.expect(t, http.MethodGet, "/transactions?kind=expense", nil, &list, http.StatusOK)
	if list.Total != 0 {
		t.Fatalf("got %d expense transactions after delete, want 0", list.Total)
	}
}

func TestValidateTransaction(t *testing.T) {
	f := setup(t)
	rec := breakfast("2024-03-05")
	rec.Postings[0].Account = "Expenses:Unknown"

	var res validationJSON
	f.expect(t, http.MethodPost, "/transactions/validate", rec, &res, http.StatusOK)
	if res.Valid || len(res.Diagnostics) == 0 {
		t.Fatalf("got %+v, want an invalid result", res)
	}

	var e errorJSON
	f.expect(t, http.MethodPost, "/transactions", rec, &e, http.StatusBadRequest)
	if e.Error != fault.Validation.String() || len(e.Diagnostics) == 0 {
		t.Fatalf("unexpected error response %+v", e)
	}
}

func TestErrors(t *testing.T) {
	f := setup(t)
	tests := []struct {
		desc   string
		method string
		path   string
		body   any
		want   int
	}{
		{desc: "unknown transaction", method: http.MethodGet, path: "/transactions/main.beancount:99", want: http.StatusNotFound},
		{desc: "malformed transaction id", method: http.MethodGet, path: "/transactions/foo", want: http.StatusBadRequest},
		{desc: "unknown field", method: http.MethodPost, path: "/transactions", body: map[string]string{"foo": "bar"}, want: http.StatusBadRequest},
		{desc: "invalid date", method: http.MethodGet, path: "/reports/balance-sheet?date=yesterday", want: http.StatusBadRequest},
		{desc: "invalid kind", method: http.MethodGet, path: "/transactions?kind=gift", want: http.StatusBadRequest},
		{desc: "unknown budget", method: http.MethodGet, path: "/budgets/42", want: http.StatusNotFound},
		{desc: "invalid id", method: http.MethodGet, path: "/budgets/abc", want: http.StatusBadRequest},
		{desc: "price without date", method: http.MethodGet, path: "/prices/lookup?from=USD&to=CNY", want: http.StatusBadRequest},
		{desc: "sync unconfigured", method: http.MethodPost, path: "/sync/manual", want: http.StatusBadRequest},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			var e errorJSON
			f.expect(t, test.method, test.path, test.body, &e, test.want)
			if e.Message == "" {
				t.Errorf("error response %+v has no message", e)
			}
		})
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fault.New(fault.NotFound, "op", "missing"), http.StatusNotFound},
		{fault.Invalid("op", []string{"bad"}), http.StatusBadRequest},
		{fault.New(fault.Conflict, "op", "taken"), http.StatusConflict},
		{fault.New(fault.RemoteFailure, "op", "down"), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, test := range tests {
		t.Run(test.err.Error(), func(t *testing.T) {
			if got := StatusOf(test.err); got != test.want {
				t.Errorf("StatusOf(%v) = %d, want %d", test.err, got, test.want)
			}
		})
	}
}

func TestReports(t *testing.T) {
	f := setup(t)
	f.expect(t, http.MethodPost, "/transactions", breakfast("2024-03-05"), nil, http.StatusCreated)

	var bs balanceSheetJSON
	f.expect(t, http.MethodGet, "/reports/balance-sheet?date=2024-03-31", nil, &bs, http.StatusOK)
	if !bs.NetWorth.Equal(decimal.RequireFromString("991.50")) {
		t.Errorf("net worth = %s, want 991.50", bs.NetWorth)
	}

	var is incomeStatementJSON
	f.expect(t, http.MethodGet, "/reports/income-statement?from=2024-03-01&to=2024-03-31", nil, &is, http.StatusOK)
	if !is.NetIncome.Equal(decimal.RequireFromString("991.50")) {
		t.Errorf("net income = %s, want 991.50", is.NetIncome)
	}

	var e errorJSON
	f.expect(t, http.MethodGet, "/reports/income-statement?from=2024-04-01&to=2024-03-01", nil, &e, http.StatusBadRequest)
}

func TestAccounts(t *testing.T) {
	f := setup(t)
	open := openJSON{Name: "Expenses:Travel", Date: "2024-02-01", Currencies: []string{"CNY"}}
	f.expect(t, http.MethodPost, "/accounts", open, nil, http.StatusCreated)
	f.expect(t, http.MethodPost, "/accounts", open, nil, http.StatusConflict)

	f.expect(t, http.MethodPost, "/accounts/"+url.PathEscape("Expenses:Travel")+"/close", closeJSON{Date: "2024-03-01"}, nil, http.StatusNoContent)

	var archived []accountJSON
	f.expect(t, http.MethodGet, "/accounts?status=archived", nil, &archived, http.StatusOK)
	if len(archived) != 1 || archived[0].Name != "Expenses:Travel" {
		t.Fatalf("unexpected archived accounts %+v", archived)
	}

	f.expect(t, http.MethodPost, "/accounts/"+url.PathEscape("Expenses:Travel")+"/restore", nil, nil, http.StatusNoContent)
	f.expect(t, http.MethodGet, "/accounts?status=archived", nil, &archived, http.StatusOK)
	if len(archived) != 0 {
		t.Fatalf("unexpected archived accounts %+v", archived)
	}
}

func TestBudgets(t *testing.T) {
	f := setup(t)
	f.expect(t, http.MethodPost, "/transactions", breakfast("2024-03-05"), nil, http.StatusCreated)

	req := budgetJSON{
		Category:    "Expenses:Food",
		PeriodType:  budget.Month,
		PeriodValue: "2024-03",
		Amount:      decimal.RequireFromString("100"),
		Currency:    "CNY",
	}
	var created budgetJSON
	f.expect(t, http.MethodPost, "/budgets", req, &created, http.StatusCreated)
	f.expect(t, http.MethodPost, "/budgets", req, nil, http.StatusConflict)

	var e evaluationJSON
	f.expect(t, http.MethodGet, "/budgets/"+jsonInt(created.ID)+"/evaluate", nil, &e, http.StatusOK)
	want := evaluationJSON{
		Budget:      created,
		PeriodStart: "2024-03-01",
		PeriodEnd:   "2024-03-31",
		Budgeted:    decimal.RequireFromString("100"),
		Spent:       decimal.RequireFromString("8.5"),
		Remaining:   decimal.RequireFromString("91.5"),
		Percent:     decimal.RequireFromString("8.5"),
		DaysLeft:    22,
	}
	if diff := cmp.Diff(want, e, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })); diff != "" {
		t.Fatalf("unexpected diff (-want/+got):\n%s", diff)
	}

	var all []evaluationJSON
	f.expect(t, http.MethodGet, "/budgets/evaluate?period=2024-03", nil, &all, http.StatusOK)
	if len(all) != 1 {
		t.Fatalf("got %d evaluations, want 1", len(all))
	}

	req.Category = "Assets:Cash"
	f.expect(t, http.MethodPost, "/budgets", req, nil, http.StatusBadRequest)
}

func TestSavedQueries(t *testing.T) {
	f := setup(t)
	f.expect(t, http.MethodPost, "/transactions", breakfast("2024-03-05"), nil, http.StatusCreated)

	f.expect(t, http.MethodPost, "/queries", savedQueryJSON{Name: "gifts", Criteria: criteriaJSON{Kind: "gift"}}, nil, http.StatusBadRequest)

	var q savedQueryJSON
	f.expect(t, http.MethodPost, "/queries", savedQueryJSON{Name: "food", Criteria: criteriaJSON{Account: "Expenses:Food"}}, &q, http.StatusCreated)

	var page pageJSON[transactionJSON]
	f.expect(t, http.MethodGet, "/queries/"+jsonInt(q.ID)+"/run", nil, &page, http.StatusOK)
	if page.Total != 1 || page.Items[0].Payee != "Bakery" {
		t.Fatalf("unexpected page %+v", page)
	}

	f.expect(t, http.MethodDelete, "/queries/"+jsonInt(q.ID), nil, nil, http.StatusNoContent)
	f.expect(t, http.MethodGet, "/queries/"+jsonInt(q.ID), nil, nil, http.StatusNotFound)
}

func TestSync(t *testing.T) {
	f := setup(t)

	var e errorJSON
	f.expect(t, http.MethodPut, "/sync/config", syncConfigJSON{Repository: f.github.Repo(), Token: "wrong"}, &e, http.StatusBadRequest)

	var cfg syncConfigJSON
	f.expect(t, http.MethodPut, "/sync/config", syncConfigJSON{Repository: f.github.Repo(), Token: "secret"}, &cfg, http.StatusOK)
	want := syncConfigJSON{
		Repository:      f.github.Repo(),
		Branch:          sync.DefaultBranch,
		Include:         []string{},
		Exclude:         []string{},
		ConflictPolicy:  sync.Manual,
		IntervalSeconds: int(sync.DefaultInterval / time.Second),
		Configured:      true,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected diff (-want/+got):\n%s", diff)
	}

	var res syncResultJSON
	f.expect(t, http.MethodPost, "/sync/manual", nil, &res, http.StatusOK)
	if diff := cmp.Diff([]string{"main.beancount"}, res.Pushed); diff != "" {
		t.Fatalf("unexpected diff (-want/+got):\n%s", diff)
	}
	if got, ok := f.github.File("main.beancount"); !ok || string(got) != mainFile {
		t.Fatalf("remote main.beancount = %q, want %q", got, mainFile)
	}

	var st syncStatusJSON
	f.expect(t, http.MethodGet, "/sync/status", nil, &st, http.StatusOK)
	if st.State != sync.Success || !st.Configured || st.LastSync == "" {
		t.Fatalf("unexpected status %+v", st)
	}

	f.github.SetFile("main.beancount", []byte(mainFile+"; remote\n"))
	if err := os.WriteFile(filepath.Join(f.dir, "main.beancount"), []byte(mainFile+"; local\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var conflict syncConflictJSON
	f.expect(t, http.MethodPost, "/sync/manual", nil, &conflict, http.StatusConflict)
	if diff := cmp.Diff([]string{"main.beancount"}, conflict.Conflicts); diff != "" {
		t.Fatalf("unexpected diff (-want/+got):\n%s", diff)
	}
	f.expect(t, http.MethodPost, "/sync/resolve", resolveJSON{Path: "main.beancount", Policy: sync.PreferRemote}, &res, http.StatusOK)
	if diff := cmp.Diff([]string{"main.beancount"}, res.Pulled); diff != "" {
		t.Fatalf("unexpected diff (-want/+got):\n%s", diff)
	}

	var history []historyJSON
	f.expect(t, http.MethodGet, "/sync/history?limit=10", nil, &history, http.StatusOK)
	var kinds []string
	for _, h := range history {
		kinds = append(kinds, h.Kind+"/"+h.Status)
	}
	if diff := cmp.Diff([]string{"manual/success", "conflict/conflict", "manual/success"}, kinds); diff != "" {
		t.Fatalf("unexpected diff (-want/+got):\n%s", diff)
	}

	f.expect(t, http.MethodPost, "/sync/pause", nil, &st, http.StatusOK)
	if !st.Paused {
		t.Fatalf("got %+v, want a paused status", st)
	}
}

func jsonInt(i int64) string {
	b, _ := json.Marshal(i)
	return string(b)
}
