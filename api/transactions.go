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
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/model"
	"github.com/sboehler/kasse/lib/query"
	"github.com/sboehler/kasse/lib/transactions"
	"github.com/shopspring/decimal"
)

type priceJSON struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Total    bool            `json:"total,omitempty"`
}

type postingJSON struct {
	Account  string           `json:"account"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Price    *priceJSON       `json:"price,omitempty"`
	Inferred bool             `json:"inferred,omitempty"`
}

type transactionJSON struct {
	ID        string            `json:"id"`
	Date      string            `json:"date"`
	Flag      string            `json:"flag"`
	Payee     string            `json:"payee,omitempty"`
	Narration string            `json:"narration"`
	Tags      []string          `json:"tags,omitempty"`
	Links     []string          `json:"links,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Postings  []postingJSON     `json:"postings"`
	Kind      string            `json:"kind"`
}

func (s *Server) transactionJSON(t *model.Transaction) transactionJSON {
	res := transactionJSON{
		ID:        s.Transactions.ID(t.Pos).String(),
		Date:      date.Format(t.Day),
		Flag:      t.Flag,
		Payee:     t.Payee,
		Narration: t.Narration,
		Tags:      t.Tags,
		Links:     t.Links,
		Metadata:  t.Metadata,
		Kind:      query.KindOf(t).String(),
	}
	for _, p := range t.Postings {
		pj := postingJSON{Account: p.Account, Inferred: p.Inferred}
		if p.Amount != nil {
			n := p.Amount.Number
			pj.Amount, pj.Currency = &n, p.Amount.Currency
		}
		if p.Price != nil {
			pj.Price = &priceJSON{Amount: p.Price.Amount.Number, Currency: p.Price.Amount.Currency, Total: p.Price.Total}
		}
		res.Postings = append(res.Postings, pj)
	}
	return res
}

type recordJSON struct {
	Date      string            `json:"date"`
	Flag      string            `json:"flag"`
	Payee     string            `json:"payee"`
	Narration string            `json:"narration"`
	Tags      []string          `json:"tags"`
	Links     []string          `json:"links"`
	Metadata  map[string]string `json:"metadata"`
	Postings  []postingJSON     `json:"postings"`
}

func (rj recordJSON) record() (transactions.Record, error) {
	day, err := parseDay("date", rj.Date)
	if err != nil {
		return transactions.Record{}, err
	}
	rec := transactions.Record{
		Date:      day,
		Flag:      rj.Flag,
		Payee:     rj.Payee,
		Narration: rj.Narration,
		Tags:      rj.Tags,
		Links:     rj.Links,
		Metadata:  rj.Metadata,
	}
	for _, p := range rj.Postings {
		pr := transactions.PostingRecord{Account: p.Account, Amount: p.Amount, Currency: p.Currency}
		if p.Price != nil {
			pr.Price = &model.PriceAnnotation{
				Amount: model.Amount{Number: p.Price.Amount, Currency: p.Price.Currency},
				Total:  p.Price.Total,
			}
		}
		rec.Postings = append(rec.Postings, pr)
	}
	return rec, nil
}

type pageJSON[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

func pageOf[S, T any](p query.Page[S], f func(S) T) pageJSON[T] {
	res := pageJSON[T]{Items: make([]T, 0, len(p.Items)), Total: p.Total, Page: p.Page, Size: p.Size}
	for _, item := range p.Items {
		res.Items = append(res.Items, f(item))
	}
	return res
}

// criteriaJSON is the serialized form of query.Criteria, used by query
// parameters and saved queries.
type criteriaJSON struct {
	From      string           `json:"from,omitempty"`
	To        string           `json:"to,omitempty"`
	Account   string           `json:"account,omitempty"`
	Payee     string           `json:"payee,omitempty"`
	Narration string           `json:"narration,omitempty"`
	MinAmount *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount *decimal.Decimal `json:"max_amount,omitempty"`
	Kind      string           `json:"kind,omitempty"`
}

func (c criteriaJSON) criteria() (query.Criteria, error) {
	var (
		res = query.Criteria{
			Account:   c.Account,
			Payee:     c.Payee,
			Narration: c.Narration,
			MinAmount: c.MinAmount,
			MaxAmount: c.MaxAmount,
		}
		ok  bool
		err error
	)
	if res.From, err = parseOptionalDay("from", &c.From); err != nil {
		return query.Criteria{}, err
	}
	if res.To, err = parseOptionalDay("to", &c.To); err != nil {
		return query.Criteria{}, err
	}
	if res.Kind, ok = query.ParseKind(c.Kind); !ok {
		return query.Criteria{}, fault.New(fault.Validation, "parsing criteria", "invalid kind %q", c.Kind)
	}
	return res, nil
}

func parseCriteria(q url.Values) (criteriaJSON, error) {
	var (
		c   criteriaJSON
		err error
	)
	for key, dest := range map[string]*string{
		"from":      &c.From,
		"to":        &c.To,
		"account":   &c.Account,
		"payee":     &c.Payee,
		"narration": &c.Narration,
		"kind":      &c.Kind,
	} {
		if *dest, err = parseString(q, key); err != nil {
			return c, err
		}
	}
	if c.MinAmount, err = parseDecimal(q, "min_amount"); err != nil {
		return c, err
	}
	if c.MaxAmount, err = parseDecimal(q, "max_amount"); err != nil {
		return c, err
	}
	return c, nil
}

func parsePage(q url.Values) (int, int, error) {
	page, err := parseInt(q, "page")
	if err != nil {
		return 0, 0, err
	}
	size, err := parseInt(q, "size")
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cj, err := parseCriteria(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, size, err := parsePage(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTransactions(w, r, cj, page, size)
}

func (s *Server) writeTransactions(w http.ResponseWriter, r *http.Request, cj criteriaJSON, page, size int) {
	c, err := cj.criteria()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.Transactions.List(r.Context(), c, page, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageOf(res, s.transactionJSON))
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var rj recordJSON
	if err := decode(r, &rj); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := rj.record()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.Transactions.Create(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTransaction(w, r, http.StatusCreated, id)
}

func (s *Server) writeTransaction(w http.ResponseWriter, r *http.Request, status int, id transactions.ID) {
	t, err := s.Transactions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, s.transactionJSON(t))
}

type validationJSON struct {
	Valid       bool     `json:"valid"`
	Diagnostics []string `json:"diagnostics"`
}

func (s *Server) validateTransaction(w http.ResponseWriter, r *http.Request) {
	var rj recordJSON
	if err := decode(r, &rj); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := rj.record()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.Transactions.Validate(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	diags := res.Diagnostics
	if diags == nil {
		diags = []string{}
	}
	writeJSON(w, http.StatusOK, validationJSON{Valid: len(diags) == 0, Diagnostics: diags})
}

func transactionID(r *http.Request) (transactions.ID, error) {
	s, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		return transactions.ID{}, fault.New(fault.Validation, "parsing id", "invalid transaction id %q", chi.URLParam(r, "id"))
	}
	return transactions.ParseID(s)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := transactionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTransaction(w, r, http.StatusOK, id)
}

func (s *Server) updateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := transactionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var rj recordJSON
	if err := decode(r, &rj); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := rj.record()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	newID, err := s.Transactions.Update(r.Context(), id, rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTransaction(w, r, http.StatusOK, newID)
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := transactionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Transactions.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPayees(w http.ResponseWriter, r *http.Request) {
	l, err := s.Loader.Load(r.Context(), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payees := query.Payees(l)
	if payees == nil {
		payees = []string{}
	}
	writeJSON(w, http.StatusOK, payees)
}

type diagnosticJSON struct {
	Kind    string `json:"kind"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (s *Server) listDiagnostics(w http.ResponseWriter, r *http.Request) {
	l, err := s.Loader.Load(r.Context(), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := make([]diagnosticJSON, 0, len(l.Diagnostics))
	for _, d := range l.Diagnostics {
		res = append(res, diagnosticJSON{
			Kind:    d.Kind.String(),
			File:    s.Transactions.ID(d.Pos).File,
			Line:    d.Pos.Line,
			Message: d.Message,
		})
	}
	writeJSON(w, http.StatusOK, res)
}
