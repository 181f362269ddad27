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

package recurring

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/store"
	"github.com/sboehler/kasse/lib/tasks"
	"github.com/sboehler/kasse/lib/transactions"
	"go.uber.org/multierr"
)

// Task keys.
const (
	TickKey = "recurring"
	SyncKey = "ledger"
)

// Scheduler manages recurring rules and fires them when they are due.
type Scheduler struct {
	db     *sql.DB
	repo   *transactions.Repository
	logger *slog.Logger

	debouncer *tasks.Debouncer
	sync      tasks.Func

	// fire is serialized so that a rule cannot fire twice on one day.
	mu sync.Mutex

	Today func() time.Time
	Now   func() time.Time
}

// New creates a scheduler.
func New(db *sql.DB, repo *transactions.Repository, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		db:     db,
		repo:   repo,
		logger: logger.With("component", "recurring"),
		Today:  date.Today,
		Now:    time.Now,
	}
}

// OnFire registers a task which runs debounced after rules have fired.
func (s *Scheduler) OnFire(d *tasks.Debouncer, fn tasks.Func) {
	s.debouncer, s.sync = d, fn
}

// Start registers the periodic tick, and runs a first tick right away.
func (s *Scheduler) Start(ts *tasks.Scheduler, interval time.Duration) {
	tick := func(ctx context.Context) {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error("tick failed", "op", "tick", "error", err)
		}
	}
	ts.Schedule(TickKey+"-start", s.Now(), tick)
	ts.Every(TickKey, interval, tick)
}

// Tick fires all active rules which are due today. A rule which fails is
// retried on the next tick.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	today := s.Today()
	rules, err := store.ListDueRules(ctx, s.db, today)
	if err != nil {
		return 0, fmt.Errorf("listing due rules: %w", err)
	}
	var (
		fired int
		errs  error
	)
	for _, r := range rules {
		if r.LastExecuted != nil && r.LastExecuted.Equal(today) {
			continue
		}
		if _, err := s.fire(ctx, r.ID, today); err != nil {
			if fault.Is(err, fault.Conflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("rule %d: %w", r.ID, err))
			continue
		}
		fired++
	}
	s.logger.Debug("tick", "op", "tick", "due", len(rules), "fired", fired)
	return fired, errs
}

// Fire fires the rule with the given id today, regardless of whether it is
// due.
func (s *Scheduler) Fire(ctx context.Context, id int64) (store.Execution, error) {
	return s.fire(ctx, id, s.Today())
}

func (s *Scheduler) fire(ctx context.Context, id int64, today time.Time) (store.Execution, error) {
	const op = "firing rule"
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := store.GetRule(ctx, s.db, id)
	if err != nil {
		return store.Execution{}, err
	}
	switch StateOf(r, today) {
	case Disabled:
		return store.Execution{}, fault.New(fault.Conflict, op, "rule %d is disabled", id)
	case Expired:
		return store.Execution{}, fault.New(fault.Conflict, op, "rule %d has expired", id)
	}
	if r.LastExecuted != nil && r.LastExecuted.Equal(today) {
		return store.Execution{}, fault.New(fault.Conflict, op, "rule %d has already fired on %s", id, date.Format(today))
	}
	exec := store.Execution{RuleID: id, FireDate: today, CreatedAt: s.Now()}
	txID, err := s.materialize(ctx, r, today)
	if err != nil {
		exec.Error = err.Error()
		if _, logErr := store.InsertExecution(ctx, s.db, exec); logErr != nil {
			err = multierr.Append(err, logErr)
		}
		s.logger.Warn("rule failed", "op", "fire", "rule", id, "date", date.Format(today), "error", err)
		return exec, err
	}
	exec.Success, exec.TransactionID = true, txID.String()
	if exec, err = store.InsertExecution(ctx, s.db, exec); err != nil {
		return store.Execution{}, err
	}
	if err := store.MarkExecuted(ctx, s.db, id, today, NextDate(r, today, today)); err != nil {
		return store.Execution{}, err
	}
	s.logger.Info("fired rule", "op", "fire", "rule", id, "date", date.Format(today), "transaction", exec.TransactionID)
	if s.debouncer != nil && s.sync != nil {
		s.debouncer.Trigger(SyncKey, s.sync)
	}
	return exec, nil
}

func (s *Scheduler) materialize(ctx context.Context, r store.RecurringRule, today time.Time) (transactions.ID, error) {
	t, err := ParseTemplate(r.Template)
	if err != nil {
		return transactions.ID{}, err
	}
	return s.repo.Create(ctx, t.Record(today))
}

// Create validates and stores a new rule. Its next execution is the first
// date of its schedule from today on.
func (s *Scheduler) Create(ctx context.Context, r store.RecurringRule) (store.RecurringRule, error) {
	if diags := Check(r); len(diags) > 0 {
		return store.RecurringRule{}, fault.Invalid("creating recurring rule", diags)
	}
	r.LastExecuted = nil
	r.NextExecution = First(r, s.Today())
	r, err := store.CreateRule(ctx, s.db, r)
	if err != nil {
		return store.RecurringRule{}, err
	}
	s.logger.Info("created rule", "op", "create", "rule", r.ID, "name", r.Name)
	return r, nil
}

// Update validates and stores a changed rule, recomputing its next
// execution.
func (s *Scheduler) Update(ctx context.Context, r store.RecurringRule) (store.RecurringRule, error) {
	if diags := Check(r); len(diags) > 0 {
		return store.RecurringRule{}, fault.Invalid("updating recurring rule", diags)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, err := store.GetRule(ctx, s.db, r.ID)
	if err != nil {
		return store.RecurringRule{}, err
	}
	today := s.Today()
	r.LastExecuted = old.LastExecuted
	r.NextExecution = First(r, today)
	if r.LastExecuted != nil && r.LastExecuted.Equal(today) {
		r.NextExecution = NextDate(r, today, today)
	}
	if r, err = store.UpdateRule(ctx, s.db, r); err != nil {
		return store.RecurringRule{}, err
	}
	s.logger.Info("updated rule", "op", "update", "rule", r.ID)
	return r, nil
}

func (s *Scheduler) Get(ctx context.Context, id int64) (store.RecurringRule, error) {
	return store.GetRule(ctx, s.db, id)
}

func (s *Scheduler) List(ctx context.Context) ([]store.RecurringRule, error) {
	return store.ListRules(ctx, s.db)
}

func (s *Scheduler) Delete(ctx context.Context, id int64) error {
	if err := store.DeleteRule(ctx, s.db, id); err != nil {
		return err
	}
	s.logger.Info("deleted rule", "op", "delete", "rule", id)
	return nil
}

// Executions returns the execution log of a rule, latest first.
func (s *Scheduler) Executions(ctx context.Context, id int64) ([]store.Execution, error) {
	if _, err := store.GetRule(ctx, s.db, id); err != nil {
		return nil, err
	}
	return store.ListExecutions(ctx, s.db, id)
}
