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
package report

import (
	"bufio"
	"fmt"
	"os"

	"github.com/sboehler/kasse/cmd/app"
	"github.com/sboehler/kasse/cmd/flags"
	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/order"
	"github.com/sboehler/kasse/lib/report"
	"github.com/sboehler/kasse/lib/table"
	"github.com/spf13/cobra"
)

// CreateBalanceCmd creates the balance sheet command.
func CreateBalanceCmd(g *flags.Global) *cobra.Command {
	r := runner{global: g, balance: true}
	c := &cobra.Command{
		Use:   "balance",
		Short: "print a balance sheet",
		Long:  `Print the balance sheet as of a date, converted to the operating currency.`,
		Args:  cobra.NoArgs,
		Run:   r.run,
	}
	c.Flags().Var(&r.to, "date", "as-of date (default today)")
	r.setupFlags(c)
	return c
}

// CreateIncomeCmd creates the income statement command.
func CreateIncomeCmd(g *flags.Global) *cobra.Command {
	r := runner{global: g}
	c := &cobra.Command{
		Use:   "income",
		Short: "print an income statement",
		Long:  `Print the income statement of a date range, converted to the operating currency.`,
		Args:  cobra.NoArgs,
		Run:   r.run,
	}
	c.Flags().Var(&r.from, "from", "from date (default start of the month)")
	c.Flags().Var(&r.to, "to", "to date (default today)")
	r.setupFlags(c)
	return c
}

type runner struct {
	global   *flags.Global
	balance  bool
	from, to flags.DateFlag
	currency flags.CurrencyFlag

	// formatting
	thousands, color   bool
	sortAlphabetically bool
	digits             int32
	csv                bool
}

func (r *runner) setupFlags(c *cobra.Command) {
	c.Flags().VarP(&r.currency, "val", "v", "valuate in the given currency")
	c.Flags().BoolVarP(&r.sortAlphabetically, "sort", "a", false, "sort accounts alphabetically instead of by the configured order")
	c.Flags().Int32Var(&r.digits, "digits", 2, "round to number of digits")
	c.Flags().BoolVarP(&r.thousands, "thousands", "k", false, "show numbers in units of 1000")
	c.Flags().BoolVar(&r.color, "color", true, "print output in color")
	c.Flags().BoolVar(&r.csv, "csv", false, "print output as CSV")
	c.MarkFlagsMutuallyExclusive("csv", "thousands")
}

func (r *runner) run(cmd *cobra.Command, args []string) {
	if err := r.execute(cmd); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
		os.Exit(1)
	}
}

func (r *runner) execute(cmd *cobra.Command) error {
	cfg, logger, err := r.global.Load()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	l, err := a.Ledger(cmd.Context())
	if err != nil {
		return err
	}
	var rn report.Renderer
	if !r.sortAlphabetically {
		o, err := a.Order.Get(cmd.Context())
		if err != nil {
			return err
		}
		rn.Sort = func(accounts []string) []string { return order.Sort(o, accounts) }
	}
	var (
		g     = report.Generator{DefaultCurrency: cfg.Currency, Currency: r.currency.ValueOr("")}
		today = date.Today()
		t     *table.Table
	)
	if r.balance {
		t = rn.RenderBalanceSheet(g.BalanceSheet(l, r.to.ValueOr(today)))
	} else {
		to := r.to.ValueOr(today)
		from := r.from.ValueOr(date.StartOf(to, date.Monthly))
		if from.After(to) {
			return fmt.Errorf("from date %s is after to date %s", date.Format(from), date.Format(to))
		}
		t = rn.RenderIncomeStatement(g.IncomeStatement(l, from, to))
	}
	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()
	return r.renderer().Render(t, out)
}

func (r *runner) renderer() table.Renderer {
	if r.csv {
		return table.CSV{Round: r.digits}
	}
	return table.Console{Color: r.color, Thousands: r.thousands, Round: r.digits}
}
