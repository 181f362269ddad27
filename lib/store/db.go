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

// Package store persists the state which does not live in the ledger
// source: budgets, recurring rules, saved queries, the account order,
// settings and the synchronisation state.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strconv"

	// use SQLite3
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
)

//go:embed sql
var migrations embed.FS

type db interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

type scan interface {
	Scan(dest ...interface{}) error
}

// Open opens and migrates an SQLite3 database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps in-memory
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	if err := migrate(ctx, db); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return db, nil
}

// Version returns the schema version of the database.
func Version(ctx context.Context, db db) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	return version, err
}

func migrate(ctx context.Context, db *sql.DB) error {
	version, err := Version(ctx, db)
	if err != nil {
		return err
	}
	files, err := migrations.ReadDir("sql")
	if err != nil {
		return err
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() < files[j].Name()
	})
	for _, f := range files {
		i, err := strconv.Atoi(f.Name()[:3])
		if err != nil {
			return err
		}
		if i <= version {
			continue
		}
		s, err := migrations.ReadFile(path.Join("sql", f.Name()))
		if err != nil {
			return err
		}
		err = InTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(s)); err != nil {
				return fmt.Errorf("migration %s: %w", f.Name(), err)
			}
			_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i))
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// InTx runs f in a transaction, which is committed if f succeeds and
// rolled back otherwise.
func InTx(ctx context.Context, db *sql.DB, f func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		return multierr.Append(err, tx.Rollback())
	}
	return tx.Commit()
}
