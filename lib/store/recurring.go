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

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
)

// RecurringRule describes a transaction which is created on a schedule.
// The template is stored as JSON.
type RecurringRule struct {
	ID            int64
	Name          string
	Active        bool
	Type          string
	StartDate     time.Time
	EndDate       *time.Time
	Weekdays      []time.Weekday
	MonthDays     []int
	Template      []byte
	LastExecuted  *time.Time
	NextExecution *time.Time
}

// Execution is an entry of the execution log of a recurring rule.
type Execution struct {
	ID            int64
	RuleID        int64
	FireDate      time.Time
	Success       bool
	Error         string
	TransactionID string
	CreatedAt     time.Time
}

const ruleColumns = `id, name, active, type, start_date, end_date, weekdays, month_days, template, last_executed, next_execution`

func CreateRule(ctx context.Context, db db, r RecurringRule) (RecurringRule, error) {
	weekdays, monthDays, err := marshalSchedule(r)
	if err != nil {
		return RecurringRule{}, err
	}
	row := db.QueryRowContext(ctx, `
	  INSERT INTO recurring_rules (name, active, type, start_date, end_date, weekdays, month_days, template, last_executed, next_execution)
	  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	  RETURNING `+ruleColumns,
		r.Name, r.Active, r.Type, date.Format(r.StartDate), formatDate(r.EndDate), weekdays, monthDays, string(r.Template),
		formatDate(r.LastExecuted), formatDate(r.NextExecution))
	if row.Err() != nil {
		return RecurringRule{}, row.Err()
	}
	return rowToRule(row)
}

func GetRule(ctx context.Context, db db, id int64) (RecurringRule, error) {
	r, err := rowToRule(db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM recurring_rules WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return RecurringRule{}, fault.New(fault.NotFound, "getting recurring rule", "recurring rule %d does not exist", id)
	}
	return r, err
}

func ListRules(ctx context.Context, db db) ([]RecurringRule, error) {
	return queryRules(ctx, db, "SELECT "+ruleColumns+" FROM recurring_rules ORDER BY name, id")
}

// ListDueRules returns the active rules whose next execution is on or
// before day.
func ListDueRules(ctx context.Context, db db, day time.Time) ([]RecurringRule, error) {
	return queryRules(ctx, db, `
	  SELECT `+ruleColumns+` FROM recurring_rules
	  WHERE active = 1 AND next_execution IS NOT NULL AND next_execution <= ?
	  ORDER BY next_execution, id`, date.Format(day))
}

func queryRules(ctx context.Context, db db, query string, args ...interface{}) ([]RecurringRule, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RecurringRule
	for rows.Next() {
		r, err := rowToRule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func UpdateRule(ctx context.Context, db db, r RecurringRule) (RecurringRule, error) {
	weekdays, monthDays, err := marshalSchedule(r)
	if err != nil {
		return RecurringRule{}, err
	}
	res, err := rowToRule(db.QueryRowContext(ctx, `
	  UPDATE recurring_rules
	  SET name = ?, active = ?, type = ?, start_date = ?, end_date = ?, weekdays = ?, month_days = ?, template = ?,
	    last_executed = ?, next_execution = ?
	  WHERE id = ?
	  RETURNING `+ruleColumns,
		r.Name, r.Active, r.Type, date.Format(r.StartDate), formatDate(r.EndDate), weekdays, monthDays, string(r.Template),
		formatDate(r.LastExecuted), formatDate(r.NextExecution), r.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return RecurringRule{}, fault.New(fault.NotFound, "updating recurring rule", "recurring rule %d does not exist", r.ID)
	}
	return res, err
}

// MarkExecuted records the last execution and the next execution of a
// rule.
func MarkExecuted(ctx context.Context, db db, id int64, last time.Time, next *time.Time) error {
	_, err := db.ExecContext(ctx, `
	  UPDATE recurring_rules SET last_executed = ?, next_execution = ? WHERE id = ?`,
		date.Format(last), formatDate(next), id)
	return err
}

func DeleteRule(ctx context.Context, db db, id int64) error {
	return deleteByID(ctx, db, "recurring_rules", "recurring rule", id)
}

// InsertExecution appends to the execution log. A second successful
// execution of a rule on the same date is rejected as a conflict.
func InsertExecution(ctx context.Context, db db, e Execution) (Execution, error) {
	var id int64
	err := db.QueryRowContext(ctx, `
	  INSERT INTO recurring_execution_log (rule_id, fire_date, success, error, transaction_id, created_at)
	  VALUES (?, ?, ?, ?, ?, ?)
	  RETURNING id`,
		e.RuleID, date.Format(e.FireDate), e.Success, e.Error, e.TransactionID, e.CreatedAt.UTC().Format(time.RFC3339)).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return Execution{}, fault.New(fault.Conflict, "logging execution", "rule %d has already fired on %s", e.RuleID, date.Format(e.FireDate))
		}
		return Execution{}, err
	}
	e.ID = id
	return e, nil
}

// ListExecutions returns the execution log of a rule, latest first.
func ListExecutions(ctx context.Context, db db, ruleID int64) ([]Execution, error) {
	rows, err := db.QueryContext(ctx, `
	  SELECT id, rule_id, fire_date, success, error, transaction_id, created_at
	  FROM recurring_execution_log WHERE rule_id = ?
	  ORDER BY id DESC`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Execution
	for rows.Next() {
		var (
			e                   Execution
			fireDate, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.RuleID, &fireDate, &e.Success, &e.Error, &e.TransactionID, &createdAt); err != nil {
			return nil, err
		}
		if e.FireDate, err = date.Parse(fireDate); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func marshalSchedule(r RecurringRule) (string, string, error) {
	weekdays := r.Weekdays
	if weekdays == nil {
		weekdays = []time.Weekday{}
	}
	monthDays := r.MonthDays
	if monthDays == nil {
		monthDays = []int{}
	}
	w, err := json.Marshal(weekdays)
	if err != nil {
		return "", "", err
	}
	m, err := json.Marshal(monthDays)
	if err != nil {
		return "", "", err
	}
	return string(w), string(m), nil
}

func rowToRule(row scan) (RecurringRule, error) {
	var (
		r                                RecurringRule
		start, weekdays, monthDays, tmpl string
		end, lastExecuted, nextExecution sql.NullString
		err                              error
	)
	if err = row.Scan(&r.ID, &r.Name, &r.Active, &r.Type, &start, &end, &weekdays, &monthDays, &tmpl, &lastExecuted, &nextExecution); err != nil {
		return RecurringRule{}, err
	}
	if r.StartDate, err = date.Parse(start); err != nil {
		return RecurringRule{}, err
	}
	if r.EndDate, err = parseDate(end); err != nil {
		return RecurringRule{}, err
	}
	if r.LastExecuted, err = parseDate(lastExecuted); err != nil {
		return RecurringRule{}, err
	}
	if r.NextExecution, err = parseDate(nextExecution); err != nil {
		return RecurringRule{}, err
	}
	if err = json.Unmarshal([]byte(weekdays), &r.Weekdays); err != nil {
		return RecurringRule{}, err
	}
	if err = json.Unmarshal([]byte(monthDays), &r.MonthDays); err != nil {
		return RecurringRule{}, err
	}
	r.Template = []byte(tmpl)
	return r, nil
}

func formatDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return date.Format(*t)
}

func parseDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := date.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
