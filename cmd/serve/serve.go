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
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sboehler/kasse/cmd/app"
	"github.com/sboehler/kasse/cmd/flags"
	"github.com/sboehler/kasse/lib/tasks"
	"github.com/spf13/cobra"
)

// CreateCmd creates the command.
func CreateCmd(g *flags.Global) *cobra.Command {
	r := runner{global: g}
	c := &cobra.Command{
		Use:   "serve",
		Short: "start the API server",
		Long:  `Start the HTTP API, the recurring transaction scheduler and, if configured, the repository sync.`,
		Args:  cobra.NoArgs,
		Run:   r.run,
	}
	r.setupFlags(c)
	return c
}

type runner struct {
	global *flags.Global
	addr   string
	watch  bool
}

func (r *runner) setupFlags(c *cobra.Command) {
	c.Flags().StringVarP(&r.addr, "address", "a", "", "listen address, overrides the configuration")
	c.Flags().BoolVar(&r.watch, "watch", true, "sync files to the repository when they change")
}

func (r *runner) run(cmd *cobra.Command, args []string) {
	if err := r.execute(cmd, args); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func (r *runner) execute(cmd *cobra.Command, args []string) error {
	cfg, logger, err := r.global.Load()
	if err != nil {
		return err
	}
	if r.addr != "" {
		cfg.Addr = r.addr
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	logger.Info("starting", "config", cfg)

	if _, err := a.Loader.Load(ctx, false); err != nil {
		logger.Warn("ledger does not load", "error", err)
	}

	ts := tasks.New(logger)
	defer ts.Stop()
	a.Recurring.OnFire(&tasks.Debouncer{Scheduler: ts, Delay: cfg.SyncDelay}, a.Sync.Changed)
	a.Recurring.Start(ts, cfg.TickInterval)
	if r.watch {
		if err := a.Sync.Watch(ctx, ts); err != nil {
			return fmt.Errorf("watching %s: %w", cfg.DataDir, err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.Server().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
