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
// Package api serves the ledger over a JSON HTTP interface.
package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sboehler/kasse/lib/accounts"
	"github.com/sboehler/kasse/lib/budget"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/options"
	"github.com/sboehler/kasse/lib/order"
	"github.com/sboehler/kasse/lib/recurring"
	"github.com/sboehler/kasse/lib/report"
	"github.com/sboehler/kasse/lib/sync"
	"github.com/sboehler/kasse/lib/transactions"
	"github.com/sboehler/kasse/lib/yearfile"
)

// RequestTimeout bounds all requests except the sync operations, which
// are bounded by the timeout of the remote client.
const RequestTimeout = 60 * time.Second

// Server holds the services behind the API.
type Server struct {
	Loader       *ledger.Loader
	DB           *sql.DB
	Transactions *transactions.Repository
	Accounts     *accounts.Manager
	Options      *options.Service
	Years        *yearfile.Manager
	Reports      report.Generator
	Budgets      *budget.Service
	Recurring    *recurring.Scheduler
	Order        *order.Service
	Sync         *sync.Service
	Logger       *slog.Logger

	// AllowedOrigins are the origins allowed to make cross-origin
	// requests. Empty allows all.
	AllowedOrigins []string
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(RequestTimeout))

		r.Get("/diagnostics", s.listDiagnostics)
		r.Get("/payees", s.listPayees)

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.listTransactions)
			r.Post("/", s.createTransaction)
			r.Post("/validate", s.validateTransaction)
			r.Get("/{id}", s.getTransaction)
			r.Put("/{id}", s.updateTransaction)
			r.Delete("/{id}", s.deleteTransaction)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.listAccounts)
			r.Post("/", s.openAccount)
			r.Post("/{name}/close", s.closeAccount)
			r.Post("/{name}/restore", s.restoreAccount)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/balance-sheet", s.balanceSheet)
			r.Get("/income-statement", s.incomeStatement)
		})

		r.Route("/budgets", func(r chi.Router) {
			r.Get("/", s.listBudgets)
			r.Post("/", s.createBudget)
			r.Get("/evaluate", s.evaluateBudgets)
			r.Get("/{id}", s.getBudget)
			r.Put("/{id}", s.updateBudget)
			r.Delete("/{id}", s.deleteBudget)
			r.Get("/{id}/evaluate", s.evaluateBudget)
		})

		r.Route("/recurring", func(r chi.Router) {
			r.Get("/", s.listRules)
			r.Post("/", s.createRule)
			r.Get("/{id}", s.getRule)
			r.Put("/{id}", s.updateRule)
			r.Delete("/{id}", s.deleteRule)
			r.Post("/{id}/fire", s.fireRule)
			r.Get("/{id}/executions", s.listExecutions)
		})

		r.Route("/prices", func(r chi.Router) {
			r.Get("/", s.listPrices)
			r.Put("/", s.upsertPrice)
			r.Delete("/", s.deletePrice)
			r.Get("/lookup", s.getPrice)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/currency", s.getCurrency)
			r.Put("/currency", s.setCurrency)
		})

		r.Route("/queries", func(r chi.Router) {
			r.Get("/", s.listQueries)
			r.Post("/", s.createQuery)
			r.Get("/{id}", s.getQuery)
			r.Put("/{id}", s.updateQuery)
			r.Delete("/{id}", s.deleteQuery)
			r.Get("/{id}/run", s.runQuery)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/years", s.listYears)
			r.Post("/migrate", s.migrateFiles)
			r.Post("/cleanup", s.cleanupFiles)
		})

		r.Route("/order", func(r chi.Router) {
			r.Get("/", s.getOrder)
			r.Put("/categories", s.setCategories)
			r.Put("/subcategories/{category}", s.setSubcategories)
			r.Put("/accounts/{category}/{subcategory}", s.setAccountOrder)
		})
	})

	r.Route("/sync", func(r chi.Router) {
		r.Get("/config", s.getSyncConfig)
		r.Put("/config", s.configureSync)
		r.Post("/test-connection", s.testConnection)
		r.Post("/manual", s.manualSync)
		r.Post("/resolve", s.resolveConflict)
		r.Post("/restore", s.restore)
		r.Get("/status", s.syncStatus)
		r.Get("/history", s.syncHistory)
		r.Post("/pause", s.pauseSync)
		r.Post("/resume", s.resumeSync)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			ww    = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start = time.Now()
		)
		next.ServeHTTP(ww, r)
		s.Logger.Debug("request",
			"component", "api",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
