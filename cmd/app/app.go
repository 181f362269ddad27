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
// Package app wires the services of kasse.
package app

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/sboehler/kasse/api"
	"github.com/sboehler/kasse/lib/accounts"
	"github.com/sboehler/kasse/lib/budget"
	"github.com/sboehler/kasse/lib/config"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/options"
	"github.com/sboehler/kasse/lib/order"
	"github.com/sboehler/kasse/lib/recurring"
	"github.com/sboehler/kasse/lib/report"
	"github.com/sboehler/kasse/lib/store"
	"github.com/sboehler/kasse/lib/sync"
	"github.com/sboehler/kasse/lib/textedit"
	"github.com/sboehler/kasse/lib/transactions"
	"github.com/sboehler/kasse/lib/validate"
	"github.com/sboehler/kasse/lib/yearfile"
)

// App holds the services.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	DB           *sql.DB
	Loader       *ledger.Loader
	Locks        *textedit.Locks
	Years        *yearfile.Manager
	Transactions *transactions.Repository
	Accounts     *accounts.Manager
	Options      *options.Service
	Budgets      *budget.Service
	Recurring    *recurring.Scheduler
	Order        *order.Service
	Sync         *sync.Service
}

// New opens the database and creates the services.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	var (
		main   = cfg.MainPath()
		loader = ledger.NewLoader(main, ledger.WithLogger(logger))
		locks  = new(textedit.Locks)
		years  = yearfile.New(loader, locks, logger)
		repo   = transactions.New(loader, locks, years, validate.New(main, logger), logger)
	)
	a := &App{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		Loader:       loader,
		Locks:        locks,
		Years:        years,
		Transactions: repo,
		Accounts:     accounts.New(loader, locks, logger),
		Options:      options.New(loader, locks, years, cfg.Currency, logger),
		Budgets:      budget.NewService(db, loader, logger),
		Recurring:    recurring.New(db, repo, logger),
		Order:        order.New(db, logger),
		Sync:         sync.New(db, cfg.DataDir, cfg.KeyFile, loader, locks, logger),
	}
	a.Sync.BaseURL = cfg.GitHubURL
	return a, nil
}

// Server returns the API server.
func (a *App) Server() *api.Server {
	return &api.Server{
		Loader:         a.Loader,
		DB:             a.DB,
		Transactions:   a.Transactions,
		Accounts:       a.Accounts,
		Options:        a.Options,
		Years:          a.Years,
		Reports:        report.Generator{DefaultCurrency: a.Config.Currency},
		Budgets:        a.Budgets,
		Recurring:      a.Recurring,
		Order:          a.Order,
		Sync:           a.Sync,
		Logger:         a.Logger,
		AllowedOrigins: a.Config.AllowedOrigins,
	}
}

// Ledger loads the ledger.
func (a *App) Ledger(ctx context.Context) (*ledger.Ledger, error) {
	return a.Loader.Load(ctx, false)
}

// Close closes the database.
func (a *App) Close() error {
	return a.DB.Close()
}
