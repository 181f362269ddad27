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

package budget

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/model"
	"github.com/sboehler/kasse/lib/store"
)

// Service manages budgets and evaluates them against the ledger.
type Service struct {
	db     *sql.DB
	loader *ledger.Loader
	logger *slog.Logger

	RefundPolicy RefundPolicy
	Today        func() time.Time
}

// NewService creates a service.
func NewService(db *sql.DB, loader *ledger.Loader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:     db,
		loader: loader,
		logger: logger.With("component", "budget"),
		Today:  date.Today,
	}
}

func check(op string, b store.Budget) (store.Budget, error) {
	b.Category = model.NormalizeAccount(b.Category)
	b.Currency = strings.TrimSpace(b.Currency)
	var diags []string
	if err := model.ValidateAccount(b.Category); err != nil {
		diags = append(diags, err.Error())
	} else if t, _ := model.TypeOf(b.Category); t != model.EXPENSES {
		diags = append(diags, fmt.Sprintf("budget category %s is not an expense account", b.Category))
	}
	if _, err := ParsePeriod(b.PeriodType, b.PeriodValue); err != nil {
		diags = append(diags, err.Error())
	}
	if b.Amount.IsNegative() {
		diags = append(diags, "budget amount must not be negative")
	}
	if err := model.ValidateCurrency(b.Currency); err != nil {
		diags = append(diags, err.Error())
	}
	if len(diags) > 0 {
		return b, fault.Invalid(op, diags)
	}
	return b, nil
}

func (s *Service) Create(ctx context.Context, b store.Budget) (store.Budget, error) {
	b, err := check("creating budget", b)
	if err != nil {
		return store.Budget{}, err
	}
	if b, err = store.CreateBudget(ctx, s.db, b); err != nil {
		return store.Budget{}, err
	}
	s.logger.Info("created budget", "op", "create", "id", b.ID, "category", b.Category, "period", b.PeriodValue)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id int64) (store.Budget, error) {
	return store.GetBudget(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context) ([]store.Budget, error) {
	return store.ListBudgets(ctx, s.db)
}

func (s *Service) Update(ctx context.Context, b store.Budget) (store.Budget, error) {
	b, err := check("updating budget", b)
	if err != nil {
		return store.Budget{}, err
	}
	if b, err = store.UpdateBudget(ctx, s.db, b); err != nil {
		return store.Budget{}, err
	}
	s.logger.Info("updated budget", "op", "update", "id", b.ID)
	return b, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := store.DeleteBudget(ctx, s.db, id); err != nil {
		return err
	}
	s.logger.Info("deleted budget", "op", "delete", "id", id)
	return nil
}

// Evaluate evaluates the budget with the given id.
func (s *Service) Evaluate(ctx context.Context, id int64) (Evaluation, error) {
	b, err := store.GetBudget(ctx, s.db, id)
	if err != nil {
		return Evaluation{}, err
	}
	l, err := s.loader.Load(ctx, false)
	if err != nil {
		return Evaluation{}, err
	}
	return s.RefundPolicy.Evaluate(l, b, s.Today())
}

// EvaluateAll evaluates all budgets, optionally restricted to one period
// value.
func (s *Service) EvaluateAll(ctx context.Context, periodValue string) ([]Evaluation, error) {
	bs, err := store.ListBudgets(ctx, s.db)
	if err != nil {
		return nil, err
	}
	l, err := s.loader.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	var res []Evaluation
	for _, b := range bs {
		if periodValue != "" && b.PeriodValue != periodValue {
			continue
		}
		e, err := s.RefundPolicy.Evaluate(l, b, today)
		if err != nil {
			return nil, fmt.Errorf("evaluating budget %d: %w", b.ID, err)
		}
		res = append(res, e)
	}
	return res, nil
}
