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
package prices

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sboehler/kasse/cmd/app"
	"github.com/sboehler/kasse/cmd/flags"
	"github.com/sboehler/kasse/lib/common/date"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// CreateCmd creates the command.
func CreateCmd(g *flags.Global) *cobra.Command {
	c := &cobra.Command{
		Use:   "prices",
		Short: "manage exchange rates",
	}
	var (
		l listRunner
		s setRunner
		d deleteRunner
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "list exchange rates, newest first",
		Args:  cobra.NoArgs,
		Run:   run(g, l.execute),
	}
	list.Flags().Var(&l.currency, "currency", "only list rates involving this currency")
	list.Flags().IntVar(&l.page, "page", 1, "page")
	list.Flags().IntVar(&l.size, "size", 50, "page size")

	set := &cobra.Command{
		Use:   "set <from> <rate> [<to>]",
		Short: "create or replace an exchange rate",
		Long:  `Create or replace the rate of <from> in <to> on a date. <to> defaults to the operating currency.`,
		Args:  cobra.RangeArgs(2, 3),
		Run:   run(g, s.execute),
	}
	set.Flags().Var(&s.date, "date", "date of the rate (default today)")

	del := &cobra.Command{
		Use:   "delete <from> <to>",
		Short: "delete an exchange rate",
		Args:  cobra.ExactArgs(2),
		Run:   run(g, d.execute),
	}
	del.Flags().Var(&d.date, "date", "date of the rate (default today)")

	c.AddCommand(list, set, del)
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

type listRunner struct {
	currency   flags.CurrencyFlag
	page, size int
}

func (r *listRunner) execute(cmd *cobra.Command, a *app.App, args []string) error {
	res, err := a.Options.ListPrices(cmd.Context(), r.currency.String(), r.page, r.size)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, p := range res.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", date.Format(p.Date), p.From, p.Rate, p.To)
	}
	fmt.Fprintf(w, "page %d, %d of %d rates\n", res.Page, len(res.Items), res.Total)
	return w.Flush()
}

type setRunner struct {
	date flags.DateFlag
}

func (r *setRunner) execute(cmd *cobra.Command, a *app.App, args []string) error {
	rate, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("invalid rate %q: %w", args[1], err)
	}
	var to string
	if len(args) == 3 {
		to = args[2]
	}
	p, err := a.Options.UpsertPrice(cmd.Context(), r.date.ValueOr(date.Today()), args[0], to, rate)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s price %s %s %s\n", date.Format(p.Date), p.From, p.Rate, p.To)
	return nil
}

type deleteRunner struct {
	date flags.DateFlag
}

func (r *deleteRunner) execute(cmd *cobra.Command, a *app.App, args []string) error {
	return a.Options.DeletePrice(cmd.Context(), r.date.ValueOr(date.Today()), args[0], args[1])
}
