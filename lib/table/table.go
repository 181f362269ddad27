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

// Package table holds report tables and renders them to the console or
// to CSV.
package table

import (
	"io"

	"github.com/shopspring/decimal"
)

// Renderer writes a table.
type Renderer interface {
	Render(t *Table, w io.Writer) error
}

// Table is a matrix of cells. Columns belong to groups, and all columns
// of a group are rendered with the same width.
type Table struct {
	groups []int
	rows   []Row
}

// New creates a table. Each argument is the number of columns of a
// group.
func New(groups ...int) *Table {
	var t Table
	for g, n := range groups {
		for i := 0; i < n; i++ {
			t.groups = append(t.groups, g)
		}
	}
	return &t
}

// Width returns the number of columns.
func (t *Table) Width() int {
	return len(t.groups)
}

// AddRow appends a row and returns a builder for its cells.
func (t *Table) AddRow() *RowBuilder {
	t.rows = append(t.rows, make(Row, 0, t.Width()))
	return &RowBuilder{t: t, i: len(t.rows) - 1}
}

// AddSeparatorRow appends a horizontal rule.
func (t *Table) AddSeparatorRow() {
	t.fill(Cell{Kind: Separator})
}

// AddEmptyRow appends a row of empty cells.
func (t *Table) AddEmptyRow() {
	t.fill(Cell{Kind: Empty})
}

func (t *Table) fill(c Cell) {
	row := make(Row, t.Width())
	for i := range row {
		row[i] = c
	}
	t.rows = append(t.rows, row)
}

// Rows returns the rows of the table.
func (t *Table) Rows() []Row {
	return t.rows
}

// Row is a row of cells.
type Row []Cell

// IsSeparator returns whether the row is a horizontal rule.
func (r Row) IsSeparator() bool {
	return len(r) > 0 && r[0].Kind == Separator
}

// RowBuilder appends cells to a row.
type RowBuilder struct {
	t *Table
	i int
}

func (b *RowBuilder) add(c Cell) *RowBuilder {
	b.t.rows[b.i] = append(b.t.rows[b.i], c)
	return b
}

// AddEmpty adds an empty cell.
func (b *RowBuilder) AddEmpty() *RowBuilder {
	return b.add(Cell{Kind: Empty})
}

// AddText adds a text cell.
func (b *RowBuilder) AddText(content string, align Alignment) *RowBuilder {
	return b.add(Cell{Kind: Text, Text: content, Align: align})
}

// AddIndented adds a left-aligned text cell with an indent.
func (b *RowBuilder) AddIndented(content string, indent int) *RowBuilder {
	return b.add(Cell{Kind: Text, Text: content, Align: Left, Indent: indent})
}

// AddNumber adds a number cell.
func (b *RowBuilder) AddNumber(n decimal.Decimal) *RowBuilder {
	return b.add(Cell{Kind: Number, Number: n})
}

// Kind is the kind of a cell.
type Kind int

// Cell kinds.
const (
	Empty Kind = iota
	Text
	Number
	Separator
)

// Alignment is the alignment of a text cell.
type Alignment int

const (
	// Left aligns to the left.
	Left Alignment = iota
	// Right aligns to the right.
	Right
	// Center centers.
	Center
)

// Cell is a table cell.
type Cell struct {
	Kind   Kind
	Text   string
	Align  Alignment
	Indent int
	Number decimal.Decimal
}
