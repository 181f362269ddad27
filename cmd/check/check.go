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
package check

import (
	"bufio"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sboehler/kasse/cmd/app"
	"github.com/sboehler/kasse/cmd/flags"
	"github.com/spf13/cobra"
)

// CreateCmd creates the command.
func CreateCmd(g *flags.Global) *cobra.Command {
	r := runner{global: g}
	c := &cobra.Command{
		Use:   "check",
		Short: "check the ledger",
		Long:  `Load the ledger and print its diagnostics. Exits with status 1 if there are any.`,
		Args:  cobra.NoArgs,
		Run:   r.run,
	}
	c.Flags().BoolVar(&r.color, "color", true, "print output in color")
	return c
}

type runner struct {
	global *flags.Global
	color  bool
}

func (r *runner) run(cmd *cobra.Command, args []string) {
	n, err := r.execute(cmd)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		os.Exit(1)
	}
	if n > 0 {
		os.Exit(1)
	}
}

func (r *runner) execute(cmd *cobra.Command) (int, error) {
	cfg, logger, err := r.global.Load()
	if err != nil {
		return 0, err
	}
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return 0, err
	}
	defer a.Close()
	l, err := a.Ledger(cmd.Context())
	if err != nil {
		return 0, err
	}
	var (
		out  = bufio.NewWriter(cmd.OutOrStdout())
		kind = color.New(color.FgRed, color.Bold)
	)
	defer out.Flush()
	kind.DisableColor()
	if r.color {
		kind.EnableColor()
	}
	for _, d := range l.Diagnostics {
		fmt.Fprintf(out, "%s %s\n", kind.Sprintf("[%s]", d.Kind), d)
	}
	fmt.Fprintf(out, "%d transactions, %d diagnostics\n", len(l.Transactions()), len(l.Diagnostics))
	return len(l.Diagnostics), nil
}
