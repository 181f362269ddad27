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

// Package order maintains the display order of account categories,
// subcategories and accounts.
package order

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sboehler/kasse/lib/common/compare"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/model"
	"github.com/sboehler/kasse/lib/store"
	"golang.org/x/exp/slices"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Categories is the fixed vocabulary of top-level account names, in their
// default order.
var Categories = []string{"Assets", "Liabilities", "Equity", "Income", "Expenses"}

// Order is a configured display order. Subcategories is keyed by category,
// Accounts by "category:subcategory".
type Order struct {
	Categories    []string
	Subcategories map[string][]string
	Accounts      map[string][]string
}

// Service persists the display order.
type Service struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a service.
func New(db *sql.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, logger: logger.With("component", "order")}
}

// Get returns the configured order. Categories defaults to the fixed
// vocabulary.
func (s *Service) Get(ctx context.Context) (Order, error) {
	entries, err := store.ListOrder(ctx, s.db)
	if err != nil {
		return Order{}, fmt.Errorf("reading account order: %w", err)
	}
	res := Order{
		Subcategories: make(map[string][]string),
		Accounts:      make(map[string][]string),
	}
	for _, e := range entries {
		switch e.Level {
		case store.LevelCategory:
			res.Categories = append(res.Categories, e.Name)
		case store.LevelSubcategory:
			res.Subcategories[e.Parent] = append(res.Subcategories[e.Parent], e.Name)
		case store.LevelAccount:
			res.Accounts[e.Parent] = append(res.Accounts[e.Parent], e.Name)
		}
	}
	if len(res.Categories) == 0 {
		res.Categories = slices.Clone(Categories)
	}
	return res, nil
}

// SetCategories sets the order of the categories.
func (s *Service) SetCategories(ctx context.Context, names []string) error {
	const op = "ordering categories"
	var diags []string
	for _, n := range names {
		if !slices.Contains(Categories, n) {
			diags = append(diags, fmt.Sprintf("%q is not a category, want one of %s", n, strings.Join(Categories, ", ")))
		}
	}
	if err := s.replace(ctx, op, store.LevelCategory, "", names, diags); err != nil {
		return err
	}
	s.logger.Info("ordered categories", "op", "set_categories", "names", names)
	return nil
}

// SetSubcategories sets the order of the subcategories of a category.
func (s *Service) SetSubcategories(ctx context.Context, category string, names []string) error {
	const op = "ordering subcategories"
	var diags []string
	if !slices.Contains(Categories, category) {
		diags = append(diags, fmt.Sprintf("%q is not a category", category))
	}
	if err := s.replace(ctx, op, store.LevelSubcategory, category, names, diags); err != nil {
		return err
	}
	s.logger.Info("ordered subcategories", "op", "set_subcategories", "category", category, "names", names)
	return nil
}

// SetAccounts sets the order of the accounts within a subcategory.
func (s *Service) SetAccounts(ctx context.Context, category, subcategory string, names []string) error {
	const op = "ordering accounts"
	var diags []string
	if !slices.Contains(Categories, category) {
		diags = append(diags, fmt.Sprintf("%q is not a category", category))
	}
	if subcategory == "" || strings.Contains(subcategory, ":") {
		diags = append(diags, fmt.Sprintf("%q is not a subcategory", subcategory))
	}
	parent := category + ":" + subcategory
	if err := s.replace(ctx, op, store.LevelAccount, parent, names, diags); err != nil {
		return err
	}
	s.logger.Info("ordered accounts", "op", "set_accounts", "parent", parent, "names", names)
	return nil
}

func (s *Service) replace(ctx context.Context, op, level, parent string, names []string, diags []string) error {
	seen := make(map[string]bool)
	for _, n := range names {
		if n == "" {
			diags = append(diags, "names must not be empty")
			continue
		}
		if seen[n] {
			diags = append(diags, fmt.Sprintf("%q is listed twice", n))
		}
		seen[n] = true
	}
	if len(diags) > 0 {
		return fault.Invalid(op, diags)
	}
	if err := store.ReplaceOrder(ctx, s.db, level, parent, names); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Sort sorts account names by category, subcategory and remaining leaf
// segments. Configured names come first in their configured order, unseen
// names follow in alphabetical order.
func Sort(o Order, accounts []string) []string {
	categories := o.Categories
	if len(categories) == 0 {
		categories = Categories
	}
	var (
		res      = slices.Clone(accounts)
		collated = compare.Collated(collate.New(language.Und))
	)
	compare.Sort(res, compare.Combine(
		compare.By(func(a string) string { return segment(a, 0) }, ranked(categories, collated)),
		func(a1, a2 string) compare.Order {
			return ranked(o.Subcategories[segment(a1, 0)], collated)(segment(a1, 1), segment(a2, 1))
		},
		func(a1, a2 string) compare.Order {
			return ranked(o.Accounts[segment(a1, 0)+":"+segment(a1, 1)], collated)(segment(a1, 2), segment(a2, 2))
		},
	))
	return res
}

// segment returns the category (0), the subcategory (1) or the remaining
// leaf segments (2) of an account name.
func segment(account string, i int) string {
	parts := strings.SplitN(model.NormalizeAccount(account), ":", 3)
	if i < len(parts) {
		return parts[i]
	}
	return ""
}

// ranked orders names by their index in configured, and unconfigured names
// after all configured ones using fallback.
func ranked(configured []string, fallback compare.Compare[string]) compare.Compare[string] {
	return func(s1, s2 string) compare.Order {
		i1, i2 := slices.Index(configured, s1), slices.Index(configured, s2)
		switch {
		case i1 >= 0 && i2 >= 0:
			return compare.Ordered(i1, i2)
		case i1 >= 0:
			return compare.Smaller
		case i2 >= 0:
			return compare.Greater
		default:
			return fallback(s1, s2)
		}
	}
}
