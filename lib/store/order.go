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
)

// Levels of the account order.
const (
	LevelCategory    = "category"
	LevelSubcategory = "subcategory"
	LevelAccount     = "account"
)

// OrderEntry is the position of a name among its siblings.
type OrderEntry struct {
	Level    string
	Parent   string
	Name     string
	Position int
}

// ListOrder returns all order entries, by level, parent and position.
func ListOrder(ctx context.Context, db db) ([]OrderEntry, error) {
	rows, err := db.QueryContext(ctx, `
	  SELECT level, parent, name, position FROM account_order
	  ORDER BY level, parent, position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []OrderEntry
	for rows.Next() {
		var e OrderEntry
		if err := rows.Scan(&e.Level, &e.Parent, &e.Name, &e.Position); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ReplaceOrder replaces the order of the children of parent at level.
func ReplaceOrder(ctx context.Context, db *sql.DB, level, parent string, names []string) error {
	return InTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM account_order WHERE level = ? AND parent = ?", level, parent); err != nil {
			return err
		}
		for i, name := range names {
			if _, err := tx.ExecContext(ctx, `
			  INSERT INTO account_order (level, parent, name, position) VALUES (?, ?, ?, ?)`,
				level, parent, name, i); err != nil {
				return err
			}
		}
		return nil
	})
}
