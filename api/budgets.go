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

	"github.com/sboehler/kasse/lib/budget"
	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/store"
	"github.com/shopspring/decimal"
)

type budgetJSON struct {
	ID          int64           `json:"id"`
	Category    string          `json:"category"`
	PeriodType  string          `json:"period_type"`
	PeriodValue string          `json:"period_value"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

func toBudgetJSON(b store.Budget) budgetJSON {
	return budgetJSON{
		ID:          b.ID,
		Category:    b.Category,
		PeriodType:  b.PeriodType,
		PeriodValue: b.PeriodValue,
		Amount:      b.Amount,
		Currency:    b.Currency,
	}
}

func (bj budgetJSON) budget() store.Budget {
	return store.Budget{
		ID:          bj.ID,
		Category:    bj.Category,
		PeriodType:  bj.PeriodType,
		PeriodValue: bj.PeriodValue,
		Amount:      bj.Amount,
		Currency:    bj.Currency,
	}
}

type evaluationJSON struct {
	Budget      budgetJSON      `json:"budget"`
	PeriodStart string          `json:"period_start"`
	PeriodEnd   string          `json:"period_end"`
	Budgeted    decimal.Decimal `json:"budgeted"`
	Spent       decimal.Decimal `json:"spent"`
	Remaining   decimal.Decimal `json:"remaining"`
	Percent     decimal.Decimal `json:"percent"`
	Exceeded    bool            `json:"exceeded"`
	DaysLeft    int             `json:"days_left"`
}

func toEvaluationJSON(e budget.Evaluation) evaluationJSON {
	return evaluationJSON{
		Budget:      toBudgetJSON(e.Budget),
		PeriodStart: date.Format(e.Period.Start),
		PeriodEnd:   date.Format(e.Period.End),
		Budgeted:    e.Budgeted,
		Spent:       e.Spent,
		Remaining:   e.Remaining,
		Percent:     e.Percent,
		Exceeded:    e.Exceeded,
		DaysLeft:    e.DaysLeft,
	}
}

func (s *Server) listBudgets(w http.ResponseWriter, r *http.Request) {
	bs, err := s.Budgets.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := make([]budgetJSON, 0, len(bs))
	for _, b := range bs {
		res = append(res, toBudgetJSON(b))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) createBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.Budgets.Create(r.Context(), req.budget())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetJSON(b))
}

func (s *Server) getBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.Budgets.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetJSON(b))
}

func (s *Server) updateBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req budgetJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.ID = id
	b, err := s.Budgets.Update(r.Context(), req.budget())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetJSON(b))
}

func (s *Server) deleteBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Budgets.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) evaluateBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.Budgets.Evaluate(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationJSON(e))
}

func (s *Server) evaluateBudgets(w http.ResponseWriter, r *http.Request) {
	period, err := parseString(r.URL.Query(), "period")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	es, err := s.Budgets.EvaluateAll(r.Context(), period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := make([]evaluationJSON, 0, len(es))
	for _, e := range es {
		res = append(res, toEvaluationJSON(e))
	}
	writeJSON(w, http.StatusOK, res)
}
