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

package table

import (
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

// Console renders a table as a bordered text grid. Negative numbers are
// printed red and positive ones green if Color is set.
type Console struct {
	Color bool

	// Thousands shows numbers in units of 1000.
	Thousands bool

	// Round is the number of decimal places.
	Round int32
}

var _ Renderer = Console{}

// Render renders the table.
func (c Console) Render(t *Table, w io.Writer) error {
	var (
		green, red = color.New(color.FgGreen), color.New(color.FgRed)
		widths     = c.widths(t)
		b          strings.Builder
	)
	if c.Color {
		green.EnableColor()
		red.EnableColor()
	} else {
		green.DisableColor()
		red.DisableColor()
	}
	for _, row := range t.rows {
		if len(row) == 0 {
			continue
		}
		if row[0].Kind == Separator {
			b.WriteString("+-")
		} else {
			b.WriteString("| ")
		}
		for i, cell := range row {
			switch cell.Kind {
			case Empty:
				pad(&b, ' ', widths[i])
			case Separator:
				pad(&b, '-', widths[i])
			case Text:
				n := utf8.RuneCountInString(cell.Text)
				var before int
				switch cell.Align {
				case Left:
					before = cell.Indent
				case Right:
					before = widths[i] - n
				case Center:
					before = (widths[i] - n) / 2
				}
				pad(&b, ' ', before)
				b.WriteString(cell.Text)
				pad(&b, ' ', widths[i]-before-n)
			case Number:
				s := c.format(cell.Number)
				pad(&b, ' ', widths[i]-utf8.RuneCountInString(s))
				switch cell.Number.Sign() {
				case -1:
					b.WriteString(red.Sprint(s))
				case 1:
					b.WriteString(green.Sprint(s))
				default:
					b.WriteString(s)
				}
			}
			if i < len(row)-1 {
				b.WriteString(junction(cell, row[i+1]))
			}
		}
		if row[len(row)-1].Kind == Separator {
			b.WriteString("-+\n")
		} else {
			b.WriteString(" |\n")
		}
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// widths returns the width of each column, widened to the widest column
// of its group.
func (c Console) widths(t *Table) []int {
	widths := make([]int, t.Width())
	for _, row := range t.rows {
		for i, cell := range row {
			if l := c.length(cell); widths[i] < l {
				widths[i] = l
			}
		}
	}
	group := make(map[int]int)
	for i, w := range widths {
		if group[t.groups[i]] < w {
			group[t.groups[i]] = w
		}
	}
	for i := range widths {
		widths[i] = group[t.groups[i]]
	}
	return widths
}

func (c Console) length(cell Cell) int {
	switch cell.Kind {
	case Text:
		n := utf8.RuneCountInString(cell.Text)
		if cell.Align == Left {
			n += cell.Indent
		}
		return n
	case Number:
		return utf8.RuneCountInString(c.format(cell.Number))
	}
	return 0
}

var thousand = decimal.NewFromInt(1000)

func (c Console) format(d decimal.Decimal) string {
	if c.Thousands {
		d = d.Div(thousand)
	}
	return addThousandsSep(d.StringFixed(c.Round))
}

func junction(left, right Cell) string {
	l, r := left.Kind == Separator, right.Kind == Separator
	switch {
	case l && r:
		return "-+-"
	case l:
		return "-+ "
	case r:
		return " +-"
	default:
		return " | "
	}
}

func pad(b *strings.Builder, r rune, n int) {
	for i := 0; i < n; i++ {
		b.WriteRune(r)
	}
}

// addThousandsSep inserts commas into the integer part of a formatted
// number.
func addThousandsSep(s string) string {
	point := strings.IndexByte(s, '.')
	if point < 0 {
		point = len(s)
	}
	var (
		b      strings.Builder
		digits bool
	)
	for i, ch := range s[:point] {
		if digits && (point-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
		if unicode.IsDigit(ch) {
			digits = true
		}
	}
	b.WriteString(s[point:])
	return b.String()
}
