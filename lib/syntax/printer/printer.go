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

package printer

import (
	"fmt"
	"io"
	"strings"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/model"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// Printer prints entries in ledger syntax.
type Printer struct{}

// New creates a new Printer.
func New() *Printer {
	return new(Printer)
}

// PrintEntry prints an entry to the given Writer. Transactions span
// multiple lines; every entry is terminated by a newline.
func (p Printer) PrintEntry(w io.Writer, entry model.Entry) (n int, err error) {
	switch e := entry.(type) {
	case *model.Transaction:
		return p.printTransaction(w, e)
	case *model.Open:
		return p.printOpen(w, e)
	case *model.Close:
		return fmt.Fprintf(w, "%s close %s\n", date.Format(e.Day), e.Account)
	case *model.Price:
		return fmt.Fprintf(w, "%s price %s %s %s\n", date.Format(e.Day), e.Currency, FormatNumber(e.Rate), e.Target)
	case *model.Option:
		return fmt.Fprintf(w, "option %s %s\n", Quote(e.Key), Quote(e.Value))
	case *model.Include:
		return fmt.Fprintf(w, "include %s\n", Quote(e.Path))
	}
	return 0, fmt.Errorf("unknown entry: %v", entry)
}

// Sprint returns the printed entry.
func (p Printer) Sprint(entry model.Entry) (string, error) {
	var b strings.Builder
	if _, err := p.PrintEntry(&b, entry); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (p Printer) printTransaction(w io.Writer, t *model.Transaction) (n int, err error) {
	var b strings.Builder
	b.WriteString(date.Format(t.Day))
	b.WriteString(" ")
	flag := t.Flag
	if flag == "" {
		flag = "*"
	}
	b.WriteString(flag)
	if t.Payee != "" {
		b.WriteString(" ")
		b.WriteString(Quote(t.Payee))
	}
	b.WriteString(" ")
	b.WriteString(Quote(t.Narration))
	for _, tag := range t.Tags {
		b.WriteString(" #")
		b.WriteString(tag)
	}
	for _, link := range t.Links {
		b.WriteString(" ^")
		b.WriteString(link)
	}
	b.WriteString("\n")
	keys := make([]string, 0, len(t.Metadata))
	for k := range t.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %s\n", k, t.Metadata[k])
	}
	for _, po := range t.Postings {
		p.writePosting(&b, po)
	}
	return io.WriteString(w, b.String())
}

func (p Printer) writePosting(b *strings.Builder, po *model.Posting) {
	b.WriteString("  ")
	if po.Flag != "" {
		b.WriteString(po.Flag)
		b.WriteString(" ")
	}
	b.WriteString(po.Account)
	if po.Amount != nil && !po.Inferred {
		b.WriteString("  ")
		b.WriteString(FormatNumber(po.Amount.Number))
		b.WriteString(" ")
		b.WriteString(po.Amount.Currency)
		if po.Cost != "" {
			b.WriteString(" ")
			b.WriteString(po.Cost)
		}
		if po.Price != nil {
			if po.Price.Total {
				b.WriteString(" @@ ")
			} else {
				b.WriteString(" @ ")
			}
			b.WriteString(FormatNumber(po.Price.Amount.Number))
			b.WriteString(" ")
			b.WriteString(po.Price.Amount.Currency)
		}
	}
	b.WriteString("\n")
}

func (p Printer) printOpen(w io.Writer, o *model.Open) (int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s open %s", date.Format(o.Day), o.Account)
	if len(o.Currencies) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(o.Currencies, ","))
	}
	if o.Booking != "" {
		b.WriteString(" ")
		b.WriteString(Quote(o.Booking))
	}
	b.WriteString("\n")
	return io.WriteString(w, b.String())
}

// FormatNumber prints d with the number of decimal places it carries.
func FormatNumber(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// Quote quotes s as a ledger string.
func Quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
