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
package files

import (
	"fmt"
	"os"
	"sort"

	"github.com/sboehler/kasse/cmd/app"
	"github.com/sboehler/kasse/cmd/flags"
	"github.com/sboehler/kasse/lib/yearfile"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
)

// CreateCmd creates the command.
func CreateCmd(g *flags.Global) *cobra.Command {
	c := &cobra.Command{
		Use:   "files",
		Short: "manage the year files",
	}
	c.AddCommand(
		&cobra.Command{
			Use:   "years",
			Short: "list the years which have a transaction file",
			Args:  cobra.NoArgs,
			Run:   run(g, years),
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "move transactions from the main file into year files",
			Args:  cobra.NoArgs,
			Run:   run(g, migrate),
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "remove year files without transactions",
			Args:  cobra.NoArgs,
			Run:   run(g, cleanup),
		},
	)
	return c
}

func run(g *flags.Global, f func(*cobra.Command, *app.App) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := execute(cmd, g, f); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			os.Exit(1)
		}
	}
}

func execute(cmd *cobra.Command, g *flags.Global, f func(*cobra.Command, *app.App) error) error {
	cfg, logger, err := g.Load()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return f(cmd, a)
}

func years(cmd *cobra.Command, a *app.App) error {
	ys, err := a.Years.ListYears()
	if err != nil {
		return err
	}
	for _, y := range ys {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", y, yearfile.FileName(y))
	}
	return nil
}

func migrate(cmd *cobra.Command, a *app.App) error {
	res, err := a.Years.Migrate(cmd.Context())
	if err != nil {
		return err
	}
	ys := maps.Keys(res.Moved)
	sort.Ints(ys)
	for _, y := range ys {
		fmt.Fprintf(cmd.OutOrStdout(), "moved %d transactions to %s\n", res.Moved[y], yearfile.FileName(y))
	}
	if len(ys) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to migrate")
	}
	return nil
}

func cleanup(cmd *cobra.Command, a *app.App) error {
	removed, err := a.Years.Cleanup(cmd.Context())
	if err != nil {
		return err
	}
	for _, y := range removed {
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", yearfile.FileName(y))
	}
	return nil
}
