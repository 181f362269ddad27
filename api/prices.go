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
	"time"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/options"
	"github.com/shopspring/decimal"
)

type priceEntryJSON struct {
	Date string          `json:"date"`
	From string          `json:"from"`
	To   string          `json:"to"`
	Rate decimal.Decimal `json:"rate"`
}

func toPriceEntryJSON(p options.Price) priceEntryJSON {
	return priceEntryJSON{
		Date: date.Format(p.Date),
		From: p.From,
		To:   p.To,
		Rate: p.Rate,
	}
}

func (s *Server) listPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	currency, err := parseString(q, "currency")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, size, err := parsePage(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.Options.ListPrices(r.Context(), currency, page, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageOf(res, toPriceEntryJSON))
}

func (s *Server) upsertPrice(w http.ResponseWriter, r *http.Request) {
	var req priceEntryJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	day, err := parseDay("date", req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Options.UpsertPrice(r.Context(), day, req.From, req.To, req.Rate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceEntryJSON(p))
}

// priceKey parses the date, from and to query parameters identifying a
// price. The date is required.
func priceKey(r *http.Request) (time.Time, string, string, error) {
	q := r.URL.Query()
	day, err := parseDate(q, "date")
	if err != nil {
		return time.Time{}, "", "", err
	}
	if day == nil {
		return time.Time{}, "", "", fault.New(fault.Validation, "parsing parameters", "missing parameter \"date\"")
	}
	from, err := parseString(q, "from")
	if err != nil {
		return time.Time{}, "", "", err
	}
	to, err := parseString(q, "to")
	if err != nil {
		return time.Time{}, "", "", err
	}
	return *day, from, to, nil
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	day, from, to, err := priceKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.Options.GetPrice(r.Context(), day, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceEntryJSON(p))
}

func (s *Server) deletePrice(w http.ResponseWriter, r *http.Request) {
	day, from, to, err := priceKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Options.DeletePrice(r.Context(), day, from, to); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type currencyJSON struct {
	Currency string `json:"currency"`
}

func (s *Server) getCurrency(w http.ResponseWriter, r *http.Request) {
	c, err := s.Options.OperatingCurrency(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, currencyJSON{c})
}

func (s *Server) setCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Options.SetOperatingCurrency(r.Context(), req.Currency); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
