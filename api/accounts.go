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
	"net/http"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/order"
	"github.com/sboehler/kasse/lib/query"
	"github.com/sboehler/kasse/lib/report"
	"github.com/shopspring/decimal"
)

type accountJSON struct {
	Name       string   `json:"name"`
	Opened     string   `json:"opened"`
	Closed     *string  `json:"closed,omitempty"`
	Currencies []string `json:"currencies,omitempty"`
	Booking    string   `json:"booking,omitempty"`
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	status, err := parseString(r.URL.Query(), "status")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := s.Loader.Load(r.Context(), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var infos []query.AccountInfo
	switch status {
	case "", "active":
		infos = query.ActiveAccounts(l)
	case "archived":
		infos = query.ArchivedAccounts(l)
	case "all":
		infos = query.Accounts(l)
	default:
		s.writeError(w, r, fault.New(fault.Validation, "listing accounts", "invalid status %q, want active, archived or all", status))
		return
	}
	o, err := s.Order.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	byName := make(map[string]query.AccountInfo, len(infos))
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
		names = append(names, info.Name)
	}
	res := make([]accountJSON, 0, len(infos))
	for _, name := range order.Sort(o, names) {
		info := byName[name]
		res = append(res, accountJSON{
			Name:       info.Name,
			Opened:     date.Format(info.Opened),
			Closed:     formatOptionalDay(info.Closed),
			Currencies: info.Currencies,
			Booking:    info.Booking,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

type openJSON struct {
	Name       string   `json:"name"`
	Date       string   `json:"date"`
	Currencies []string `json:"currencies"`
	Booking    string   `json:"booking"`
}

func (s *Server) openAccount(w http.ResponseWriter, r *http.Request) {
	var req openJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	day, err := parseDay("date", req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Accounts.Open(r.Context(), req.Name, day, req.Currencies, req.Booking); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountJSON{Name: req.Name, Opened: req.Date, Currencies: req.Currencies, Booking: req.Booking})
}

type closeJSON struct {
	Date string `json:"date"`
}

func (s *Server) closeAccount(w http.ResponseWriter, r *http.Request) {
	var req closeJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	day, err := parseDay("date", req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Accounts.Close(r.Context(), pathParam(r, "name"), day); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) restoreAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.Accounts.Restore(r.Context(), pathParam(r, "name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type lineJSON struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

type missingJSON struct {
	Account  string          `json:"account"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type balanceSheetJSON struct {
	Date             string          `json:"date"`
	Currency         string          `json:"currency"`
	Assets           []lineJSON      `json:"assets"`
	Liabilities      []lineJSON      `json:"liabilities"`
	Equity           []lineJSON      `json:"equity"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	NetWorth         decimal.Decimal `json:"net_worth"`
	Missing          []missingJSON   `json:"missing_rates"`
}

type incomeStatementJSON struct {
	From          string          `json:"from"`
	To            string          `json:"to"`
	Currency      string          `json:"currency"`
	Income        []lineJSON      `json:"income"`
	Expenses      []lineJSON      `json:"expenses"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetIncome     decimal.Decimal `json:"net_income"`
	Missing       []missingJSON   `json:"missing_rates"`
}

// linesJSON converts lines, ordered by the account order.
func linesJSON(o order.Order, ls []report.Line) []lineJSON {
	byAccount := make(map[string]report.Line, len(ls))
	names := make([]string, 0, len(ls))
	for _, l := range ls {
		byAccount[l.Account] = l
		names = append(names, l.Account)
	}
	res := make([]lineJSON, 0, len(ls))
	for _, n := range order.Sort(o, names) {
		res = append(res, lineJSON{Account: n, Amount: byAccount[n].Amount})
	}
	return res
}

func missingRatesJSON(ms []report.MissingRate) []missingJSON {
	res := make([]missingJSON, 0, len(ms))
	for _, m := range ms {
		res = append(res, missingJSON{Account: m.Account, Currency: m.Currency, Amount: m.Amount})
	}
	return res
}

func (s *Server) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDate(r.URL.Query(), "date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if asOf == nil {
		today := date.Today()
		asOf = &today
	}
	l, err := s.Loader.Load(r.Context(), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.Order.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bs := s.Reports.BalanceSheet(l, *asOf)
	writeJSON(w, http.StatusOK, balanceSheetJSON{
		Date:             date.Format(bs.AsOf),
		Currency:         bs.Currency,
		Assets:           linesJSON(o, bs.Assets),
		Liabilities:      linesJSON(o, bs.Liabilities),
		Equity:           linesJSON(o, bs.Equity),
		TotalAssets:      bs.TotalAssets,
		TotalLiabilities: bs.TotalLiabilities,
		TotalEquity:      bs.TotalEquity,
		NetWorth:         bs.NetWorth,
		Missing:          missingRatesJSON(bs.Missing),
	})
}

func (s *Server) incomeStatement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q, "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseDate(q, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	today := date.Today()
	if to == nil {
		to = &today
	}
	if from == nil {
		start := date.StartOf(*to, date.Monthly)
		from = &start
	}
	if to.Before(*from) {
		s.writeError(w, r, fault.New(fault.Validation, "income statement", "from %s is after to %s", date.Format(*from), date.Format(*to)))
		return
	}
	l, err := s.Loader.Load(r.Context(), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.Order.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	is := s.Reports.IncomeStatement(l, *from, *to)
	writeJSON(w, http.StatusOK, incomeStatementJSON{
		From:          date.Format(is.Start),
		To:            date.Format(is.End),
		Currency:      is.Currency,
		Income:        linesJSON(o, is.Income),
		Expenses:      linesJSON(o, is.Expenses),
		TotalIncome:   is.TotalIncome,
		TotalExpenses: is.TotalExpenses,
		NetIncome:     is.NetIncome,
		Missing:       missingRatesJSON(is.Missing),
	})
}

