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
	"encoding/json"
	"net/http"
	"time"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/recurring"
	"github.com/sboehler/kasse/lib/store"
)

type ruleJSON struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Active        bool            `json:"active"`
	Type          string          `json:"type"`
	StartDate     string          `json:"start_date"`
	EndDate       *string         `json:"end_date,omitempty"`
	Weekdays      []time.Weekday  `json:"weekdays,omitempty"`
	MonthDays     []int           `json:"month_days,omitempty"`
	Template      json.RawMessage `json:"template"`
	LastExecuted  *string         `json:"last_executed,omitempty"`
	NextExecution *string         `json:"next_execution,omitempty"`
	State         string          `json:"state,omitempty"`
}

func toRuleJSON(r store.RecurringRule, today time.Time) ruleJSON {
	return ruleJSON{
		ID:            r.ID,
		Name:          r.Name,
		Active:        r.Active,
		Type:          r.Type,
		StartDate:     date.Format(r.StartDate),
		EndDate:       formatOptionalDay(r.EndDate),
		Weekdays:      r.Weekdays,
		MonthDays:     r.MonthDays,
		Template:      json.RawMessage(r.Template),
		LastExecuted:  formatOptionalDay(r.LastExecuted),
		NextExecution: formatOptionalDay(r.NextExecution),
		State:         recurring.StateOf(r, today).String(),
	}
}

// rule converts the request. Computed fields are ignored.
func (rj ruleJSON) rule() (store.RecurringRule, error) {
	res := store.RecurringRule{
		ID:        rj.ID,
		Name:      rj.Name,
		Active:    rj.Active,
		Type:      rj.Type,
		Weekdays:  rj.Weekdays,
		MonthDays: rj.MonthDays,
		Template:  []byte(rj.Template),
	}
	var err error
	if res.StartDate, err = parseDay("start_date", rj.StartDate); err != nil {
		return store.RecurringRule{}, err
	}
	if res.EndDate, err = parseOptionalDay("end_date", rj.EndDate); err != nil {
		return store.RecurringRule{}, err
	}
	return res, nil
}

type executionJSON struct {
	ID            int64  `json:"id"`
	RuleID        int64  `json:"rule_id"`
	FireDate      string `json:"fire_date"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toExecutionJSON(e store.Execution) executionJSON {
	return executionJSON{
		ID:            e.ID,
		RuleID:        e.RuleID,
		FireDate:      date.Format(e.FireDate),
		Success:       e.Success,
		Error:         e.Error,
		TransactionID: e.TransactionID,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	rs, err := s.Recurring.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	today := s.Recurring.Today()
	res := make([]ruleJSON, 0, len(rs))
	for _, rule := range rs {
		res = append(res, toRuleJSON(rule, today))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rule, err := req.rule()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rule, err = s.Recurring.Create(r.Context(), rule); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleJSON(rule, s.Recurring.Today()))
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rule, err := s.Recurring.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleJSON(rule, s.Recurring.Today()))
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ruleJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.ID = id
	rule, err := req.rule()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rule, err = s.Recurring.Update(r.Context(), rule); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleJSON(rule, s.Recurring.Today()))
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Recurring.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fireRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.Recurring.Fire(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionJSON(e))
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	es, err := s.Recurring.Executions(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := make([]executionJSON, 0, len(es))
	for _, e := range es {
		res = append(res, toExecutionJSON(e))
	}
	writeJSON(w, http.StatusOK, res)
}
