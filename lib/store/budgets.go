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
	"errors"

	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/shopspring/decimal"
)

// Budget is a spending limit for an expense category and period.
type Budget struct {
	ID          int64
	Category    string
	PeriodType  string
	PeriodValue string
	Amount      decimal.Decimal
	Currency    string
}

func CreateBudget(ctx context.Context, db db, b Budget) (Budget, error) {
	row := db.QueryRowContext(ctx, `
	  INSERT INTO budgets (category, period_type, period_value, amount, currency)
	  VALUES (?, ?, ?, ?, ?)
	  RETURNING id, category, period_type, period_value, amount, currency`,
		b.Category, b.PeriodType, b.PeriodValue, b.Amount.String(), b.Currency)
	res, err := rowToBudget(row)
	if isUniqueViolation(err) {
		return Budget{}, duplicateBudget("creating budget", b)
	}
	return res, err
}

func GetBudget(ctx context.Context, db db, id int64) (Budget, error) {
	row := db.QueryRowContext(ctx, `
	  SELECT id, category, period_type, period_value, amount, currency
	  FROM budgets WHERE id = ?`, id)
	b, err := rowToBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Budget{}, fault.New(fault.NotFound, "getting budget", "budget %d does not exist", id)
	}
	return b, err
}

func ListBudgets(ctx context.Context, db db) ([]Budget, error) {
	rows, err := db.QueryContext(ctx, `
	  SELECT id, category, period_type, period_value, amount, currency
	  FROM budgets ORDER BY period_value DESC, category, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Budget
	for rows.Next() {
		b, err := rowToBudget(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func UpdateBudget(ctx context.Context, db db, b Budget) (Budget, error) {
	row := db.QueryRowContext(ctx, `
	  UPDATE budgets
	  SET category = ?, period_type = ?, period_value = ?, amount = ?, currency = ?
	  WHERE id = ?
	  RETURNING id, category, period_type, period_value, amount, currency`,
		b.Category, b.PeriodType, b.PeriodValue, b.Amount.String(), b.Currency, b.ID)
	res, err := rowToBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Budget{}, fault.New(fault.NotFound, "updating budget", "budget %d does not exist", b.ID)
	}
	if isUniqueViolation(err) {
		return Budget{}, duplicateBudget("updating budget", b)
	}
	return res, err
}

func duplicateBudget(op string, b Budget) error {
	return fault.New(fault.Conflict, op, "a budget for %s in %s %s already exists", b.Category, b.Currency, b.PeriodValue)
}

func DeleteBudget(ctx context.Context, db db, id int64) error {
	return deleteByID(ctx, db, "budgets", "budget", id)
}

func rowToBudget(row scan) (Budget, error) {
	var (
		b      Budget
		amount string
	)
	if err := row.Scan(&b.ID, &b.Category, &b.PeriodType, &b.PeriodValue, &amount, &b.Currency); err != nil {
		return Budget{}, err
	}
	n, err := decimal.NewFromString(amount)
	if err != nil {
		return Budget{}, err
	}
	b.Amount = n
	return b, nil
}

// deleteByID deletes the row with the given id from table.
func deleteByID(ctx context.Context, db db, table, entity string, id int64) error {
	res, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.New(fault.NotFound, "deleting "+entity, "%s %d does not exist", entity, id)
	}
	return nil
}
