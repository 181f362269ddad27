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
)

// SavedQuery is a named set of transaction filter criteria, stored as
// JSON.
type SavedQuery struct {
	ID       int64
	Name     string
	Criteria string
}

func CreateQuery(ctx context.Context, db db, q SavedQuery) (SavedQuery, error) {
	row := db.QueryRowContext(ctx, `
	  INSERT INTO saved_queries (name, criteria) VALUES (?, ?)
	  RETURNING id, name, criteria`, q.Name, q.Criteria)
	if row.Err() != nil {
		return SavedQuery{}, row.Err()
	}
	return rowToQuery(row)
}

func GetQuery(ctx context.Context, db db, id int64) (SavedQuery, error) {
	q, err := rowToQuery(db.QueryRowContext(ctx, "SELECT id, name, criteria FROM saved_queries WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return SavedQuery{}, fault.New(fault.NotFound, "getting query", "query %d does not exist", id)
	}
	return q, err
}

func ListQueries(ctx context.Context, db db) ([]SavedQuery, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, name, criteria FROM saved_queries ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []SavedQuery
	for rows.Next() {
		q, err := rowToQuery(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

func UpdateQuery(ctx context.Context, db db, q SavedQuery) (SavedQuery, error) {
	res, err := rowToQuery(db.QueryRowContext(ctx, `
	  UPDATE saved_queries SET name = ?, criteria = ? WHERE id = ?
	  RETURNING id, name, criteria`, q.Name, q.Criteria, q.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return SavedQuery{}, fault.New(fault.NotFound, "updating query", "query %d does not exist", q.ID)
	}
	return res, err
}

func DeleteQuery(ctx context.Context, db db, id int64) error {
	return deleteByID(ctx, db, "saved_queries", "query", id)
}

func rowToQuery(row scan) (SavedQuery, error) {
	var q SavedQuery
	err := row.Scan(&q.ID, &q.Name, &q.Criteria)
	return q, err
}
