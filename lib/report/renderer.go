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
	"fmt"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/table"
	"github.com/shopspring/decimal"
)

// Renderer renders reports to tables.
type Renderer struct {
	// Sort, if set, orders the account lines of each section.
	Sort func([]string) []string
}

// RenderBalanceSheet renders a balance sheet.
func (rn Renderer) RenderBalanceSheet(bs *BalanceSheet) *table.Table {
	t := table.New(1, 1)
	t.AddSeparatorRow()
	t.AddRow().AddText("Account", table.Center).AddText(fmt.Sprintf("%s (%s)", date.Format(bs.AsOf), bs.Currency), table.Center)
	t.AddSeparatorRow()
	rn.section(t, "Assets", bs.Assets, bs.TotalAssets)
	rn.section(t, "Liabilities", bs.Liabilities, bs.TotalLiabilities)
	rn.section(t, "Equity", bs.Equity, bs.TotalEquity)
	t.AddRow().AddText("Net Worth", table.Left).AddNumber(bs.NetWorth)
	t.AddSeparatorRow()
	rn.missing(t, bs.Missing)
	return t
}

// RenderIncomeStatement renders an income statement.
func (rn Renderer) RenderIncomeStatement(is *IncomeStatement) *table.Table {
	t := table.New(1, 1)
	t.AddSeparatorRow()
	header := fmt.Sprintf("%s - %s (%s)", date.Format(is.Start), date.Format(is.End), is.Currency)
	t.AddRow().AddText("Account", table.Center).AddText(header, table.Center)
	t.AddSeparatorRow()
	rn.section(t, "Income", is.Income, is.TotalIncome)
	rn.section(t, "Expenses", is.Expenses, is.TotalExpenses)
	t.AddRow().AddText("Net Income", table.Left).AddNumber(is.NetIncome)
	t.AddSeparatorRow()
	rn.missing(t, is.Missing)
	return t
}

func (rn Renderer) section(t *table.Table, title string, lines []Line, total decimal.Decimal) {
	t.AddRow().AddText(title, table.Left).AddNumber(total)
	for _, l := range rn.sorted(lines) {
		t.AddRow().AddIndented(l.Account, 2).AddNumber(l.Amount)
	}
	t.AddSeparatorRow()
}

func (rn Renderer) sorted(lines []Line) []Line {
	if rn.Sort == nil {
		return lines
	}
	byAccount := make(map[string]Line, len(lines))
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		byAccount[l.Account] = l
		names = append(names, l.Account)
	}
	res := make([]Line, 0, len(lines))
	for _, n := range rn.Sort(names) {
		res = append(res, byAccount[n])
	}
	return res
}

func (rn Renderer) missing(t *table.Table, ms []MissingRate) {
	if len(ms) == 0 {
		return
	}
	t.AddRow().AddText("Missing rates", table.Left).AddEmpty()
	for _, m := range ms {
		t.AddRow().AddIndented(fmt.Sprintf("%s (%s)", m.Account, m.Currency), 2).AddNumber(m.Amount)
	}
	t.AddSeparatorRow()
}
