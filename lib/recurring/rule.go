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

// Package recurring creates transactions from recurring rules.
package recurring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/store"
	"github.com/sboehler/kasse/lib/transactions"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// Rule types.
const (
	Daily    = "daily"
	Weekly   = "weekly"
	Weekdays = "weekdays"
	Monthly  = "monthly"
)

// Types lists the rule types.
var Types = []string{Daily, Weekly, Weekdays, Monthly}

// State is the state of a rule.
type State int

const (
	Disabled State = iota
	Enabled
	Expired
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Enabled:
		return "enabled"
	case Expired:
		return "expired"
	}
	return ""
}

// StateOf returns the state of a rule on the given day.
func StateOf(r store.RecurringRule, today time.Time) State {
	switch {
	case !r.Active:
		return Disabled
	case r.NextExecution == nil:
		return Expired
	case r.EndDate != nil && today.After(*r.EndDate):
		return Expired
	}
	return Enabled
}

// NextDate returns the first date of the rule's schedule after both base
// and today, or nil if there is none on or before the rule's end date.
func NextDate(r store.RecurringRule, base, today time.Time) *time.Time {
	from := date.Truncate(base)
	if t := date.Truncate(today); t.After(from) {
		from = t
	}
	var (
		next time.Time
		ok   bool
	)
	switch r.Type {
	case Daily:
		next, ok = from.AddDate(0, 0, 1), true
	case Weekly:
		next, ok = nextWeekday(from, r.Weekdays, 14)
	case Weekdays:
		next, ok = nextWeekday(from, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, 7)
	case Monthly:
		next, ok = nextMonthDay(from, r.MonthDays)
	}
	if !ok {
		return nil
	}
	if r.EndDate != nil && next.After(date.Truncate(*r.EndDate)) {
		return nil
	}
	return &next
}

// First returns the first date of the rule's schedule which is on or after
// both the start date and today.
func First(r store.RecurringRule, today time.Time) *time.Time {
	from := date.Truncate(r.StartDate)
	if t := date.Truncate(today); t.After(from) {
		from = t
	}
	day := from.AddDate(0, 0, -1)
	return NextDate(r, day, day)
}

func nextWeekday(from time.Time, days []time.Weekday, horizon int) (time.Time, bool) {
	for i := 1; i <= horizon; i++ {
		d := from.AddDate(0, 0, i)
		if slices.Contains(days, d.Weekday()) {
			return d, true
		}
	}
	return time.Time{}, false
}

// nextMonthDay returns the next listed day of the month after from,
// skipping days which do not exist in a month.
func nextMonthDay(from time.Time, days []int) (time.Time, bool) {
	days = slices.Clone(days)
	slices.Sort(days)
	month := date.Date(from.Year(), from.Month(), 1)
	for i := 0; i < 24; i++ {
		m := month.AddDate(0, i, 0)
		last := date.EndOf(m, date.Monthly).Day()
		for _, day := range days {
			if day < 1 || day > last {
				continue
			}
			if d := date.Date(m.Year(), m.Month(), day); d.After(from) {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

// Template is the transaction created by a rule, without its date.
type Template struct {
	Flag      string            `json:"flag,omitempty"`
	Payee     string            `json:"payee,omitempty"`
	Narration string            `json:"narration"`
	Tags      []string          `json:"tags,omitempty"`
	Links     []string          `json:"links,omitempty"`
	Postings  []TemplatePosting `json:"postings"`
}

// TemplatePosting is a posting of a template. A missing amount is
// inferred.
type TemplatePosting struct {
	Account  string           `json:"account"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency,omitempty"`
}

// ParseTemplate decodes a JSON template.
func ParseTemplate(b []byte) (Template, error) {
	var t Template
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return Template{}, fmt.Errorf("invalid template: %w", err)
	}
	return t, nil
}

// Record returns the transaction of the template on the given day.
func (t Template) Record(day time.Time) transactions.Record {
	r := transactions.Record{
		Date:      day,
		Flag:      t.Flag,
		Payee:     t.Payee,
		Narration: t.Narration,
		Tags:      t.Tags,
		Links:     t.Links,
	}
	for _, p := range t.Postings {
		r.Postings = append(r.Postings, transactions.PostingRecord{
			Account:  p.Account,
			Amount:   p.Amount,
			Currency: p.Currency,
		})
	}
	return r
}

// Check validates a rule and its template.
func Check(r store.RecurringRule) []string {
	var diags []string
	if strings.TrimSpace(r.Name) == "" {
		diags = append(diags, "name is required")
	}
	if !slices.Contains(Types, r.Type) {
		diags = append(diags, fmt.Sprintf("invalid rule type %q, want one of %s", r.Type, strings.Join(Types, ", ")))
	}
	if r.StartDate.IsZero() {
		diags = append(diags, "start date is required")
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		diags = append(diags, "end date is before start date")
	}
	switch r.Type {
	case Weekly:
		if len(r.Weekdays) == 0 {
			diags = append(diags, "a weekly rule needs at least one weekday")
		}
		for _, d := range r.Weekdays {
			if d < time.Sunday || d > time.Saturday {
				diags = append(diags, fmt.Sprintf("invalid weekday %d", d))
			}
		}
	case Monthly:
		if len(r.MonthDays) == 0 {
			diags = append(diags, "a monthly rule needs at least one day of the month")
		}
		for _, d := range r.MonthDays {
			if d < 1 || d > 31 {
				diags = append(diags, fmt.Sprintf("invalid day of the month %d", d))
			}
		}
	}
	t, err := ParseTemplate(r.Template)
	if err != nil {
		return append(diags, err.Error())
	}
	day := r.StartDate
	if day.IsZero() {
		day = date.Today()
	}
	return append(diags, t.Record(day).Validate()...)
}
