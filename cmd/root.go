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
// Package cmd is the main command file for Cobra
package cmd

import (
	"fmt"
	"os"

	"github.com/sboehler/kasse/cmd/check"
	"github.com/sboehler/kasse/cmd/completion"
	"github.com/sboehler/kasse/cmd/files"
	"github.com/sboehler/kasse/cmd/flags"
	"github.com/sboehler/kasse/cmd/prices"
	"github.com/sboehler/kasse/cmd/remote"
	"github.com/sboehler/kasse/cmd/report"
	"github.com/sboehler/kasse/cmd/serve"
	"github.com/spf13/cobra"
)

// CreateRootCmd creates the root command with all subcommands.
func CreateRootCmd() *cobra.Command {
	var g flags.Global
	c := &cobra.Command{
		Use:           "kasse",
		Short:         "kasse is a personal finance backend for Beancount ledgers",
		Long:          `kasse serves a Beancount ledger over HTTP, adds budgets and recurring transactions, and keeps the ledger in sync with a GitHub repository.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	g.Setup(c)
	c.AddCommand(
		serve.CreateCmd(&g),
		check.CreateCmd(&g),
		report.CreateBalanceCmd(&g),
		report.CreateIncomeCmd(&g),
		files.CreateCmd(&g),
		prices.CreateCmd(&g),
		remote.CreateCmd(&g),
		completion.CreateCmd(c),
	)
	return c
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	c := CreateRootCmd()
	if err := c.Execute(); err != nil {
		fmt.Fprintln(c.ErrOrStderr(), err)
		os.Exit(1)
	}
}
