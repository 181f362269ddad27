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
package remote

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/hako/durafmt"
	"github.com/sboehler/kasse/cmd/app"
	"github.com/sboehler/kasse/cmd/flags"
	"github.com/sboehler/kasse/lib/sync"
	"github.com/spf13/cobra"
)

// CreateCmd creates the command.
func CreateCmd(g *flags.Global) *cobra.Command {
	c := &cobra.Command{
		Use:   "sync",
		Short: "synchronise the ledger with a GitHub repository",
	}
	var (
		p pushRunner
		r restoreRunner
		h historyRunner
	)
	push := &cobra.Command{
		Use:   "push [<file>...]",
		Short: "sync files with the repository",
		Long:  `Sync the selected files, or all files matched by the configured globs, with the repository.`,
		Run:   run(g, p.execute),
	}
	push.Flags().BoolVarP(&p.force, "force", "f", false, "overwrite remote changes with local ones")
	push.Flags().BoolVar(&p.progress, "progress", true, "show a progress bar")

	restore := &cobra.Command{
		Use:   "restore [<commit>]",
		Short: "replace local files with the repository contents",
		Long:  `Replace the local files with their contents at a commit, by default the head of the configured branch.`,
		Args:  cobra.MaximumNArgs(1),
		Run:   run(g, r.execute),
	}
	restore.Flags().BoolVarP(&r.force, "force", "f", false, "overwrite local changes which have not been synced")
	restore.Flags().BoolVar(&r.progress, "progress", true, "show a progress bar")

	status := &cobra.Command{
		Use:   "status",
		Short: "show the sync status",
		Args:  cobra.NoArgs,
		Run:   run(g, status),
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "show the sync history",
		Args:  cobra.NoArgs,
		Run:   run(g, h.execute),
	}
	history.Flags().IntVarP(&h.limit, "limit", "n", 20, "number of entries")

	c.AddCommand(push, restore, status, history)
	return c
}

func run(g *flags.Global, f func(*cobra.Command, *app.App, []string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		cfg, logger, err := g.Load()
		if err == nil {
			var a *app.App
			if a, err = app.New(cmd.Context(), cfg, logger); err == nil {
				err = f(cmd, a, args)
				a.Close()
			}
		}
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			os.Exit(1)
		}
	}
}

// bar reports progress on a terminal.
type bar struct {
	w   io.Writer
	bar *pb.ProgressBar
}

var _ sync.Progress = (*bar)(nil)

func (b *bar) Start(total int) {
	b.bar = pb.New(total).SetWriter(b.w).Start()
}

func (b *bar) Increment() {
	b.bar.Increment()
}

func (b *bar) Finish() {
	b.bar.Finish()
}

func printResult(w io.Writer, res sync.Result) {
	for _, f := range res.Pushed {
		fmt.Fprintf(w, "pushed %s\n", f)
	}
	for _, f := range res.Pulled {
		fmt.Fprintf(w, "pulled %s\n", f)
	}
	for _, f := range res.Conflicts {
		fmt.Fprintf(w, "conflict %s\n", f)
	}
}

type pushRunner struct {
	force, progress bool
}

func (r *pushRunner) execute(cmd *cobra.Command, a *app.App, args []string) error {
	if r.progress {
		a.Sync.Progress = &bar{w: cmd.ErrOrStderr()}
	}
	res, err := a.Sync.Sync(cmd.Context(), sync.KindManual, args, r.force)
	printResult(cmd.OutOrStdout(), res)
	if err != nil {
		return err
	}
	if len(res.Pushed)+len(res.Pulled) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "everything up to date")
	}
	return nil
}

type restoreRunner struct {
	force, progress bool
}

func (r *restoreRunner) execute(cmd *cobra.Command, a *app.App, args []string) error {
	if r.progress {
		a.Sync.Progress = &bar{w: cmd.ErrOrStderr()}
	}
	var commit string
	if len(args) == 1 {
		commit = args[0]
	}
	res, err := a.Sync.Restore(cmd.Context(), commit, r.force)
	printResult(cmd.OutOrStdout(), res)
	return err
}

func status(cmd *cobra.Command, a *app.App, args []string) error {
	st, err := a.Sync.Status(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()
	if !st.Configured {
		fmt.Fprintln(w, "not configured")
		return nil
	}
	c, _, err := a.Sync.Config(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "repository:\t%s@%s\n", c.Repository, c.Branch)
	fmt.Fprintf(w, "auto sync:\t%t (every %s)\n", c.AutoSync && !st.Paused, durafmt.Parse(c.Interval).LimitFirstN(2))
	fmt.Fprintf(w, "conflict policy:\t%s\n", c.ConflictPolicy)
	fmt.Fprintf(w, "state:\t%s\n", st.State)
	if st.Message != "" {
		fmt.Fprintf(w, "message:\t%s\n", st.Message)
	}
	if st.LastSync != nil {
		fmt.Fprintf(w, "last sync:\t%s ago\n", ago(*st.LastSync))
	}
	if len(st.PendingFiles) > 0 {
		fmt.Fprintf(w, "pending:\t%s\n", strings.Join(st.PendingFiles, ", "))
	}
	if len(st.Conflicts) > 0 {
		fmt.Fprintf(w, "conflicts:\t%s\n", strings.Join(st.Conflicts, ", "))
	}
	return nil
}

type historyRunner struct {
	limit int
}

func (r *historyRunner) execute(cmd *cobra.Command, a *app.App, args []string) error {
	hs, err := a.Sync.History(cmd.Context(), r.limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()
	for _, h := range hs {
		fmt.Fprintf(w, "%s ago\t%s\t%s\t%d files\t%s\n", ago(h.Timestamp), h.Kind, h.Status, h.FilesCount, h.Message)
	}
	return nil
}

func ago(t time.Time) string {
	return durafmt.Parse(time.Since(t).Truncate(time.Second)).LimitFirstN(2).String()
}
