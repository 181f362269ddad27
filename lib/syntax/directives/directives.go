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

package directives

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Currency struct{ Range }

type Account struct{ Range }

type Flag struct{ Range }

type Tag struct{ Range }

type Link struct{ Range }

type Date struct{ Range }

func (d Date) Parse() (time.Time, error) {
	date, err := time.Parse("2006-01-02", d.Extract())
	if err != nil {
		return date, Error{
			Message: "parsing date",
			Range:   d.Range,
			Wrapped: err,
		}
	}
	return date, nil
}

type Decimal struct{ Range }

func (d Decimal) Parse() (decimal.Decimal, error) {
	dec, err := decimal.NewFromString(strings.ReplaceAll(d.Extract(), ",", ""))
	if err != nil {
		return dec, Error{
			Message: "parsing decimal",
			Range:   d.Range,
			Wrapped: err,
		}
	}
	return dec, nil
}

type QuotedString struct {
	Range
	Content Range
}

// Unquote returns the content with escape sequences resolved.
func (q QuotedString) Unquote() string {
	s := q.Content.Extract()
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, ch := range s {
		if !escaped && ch == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(ch)
	}
	return b.String()
}

type Amount struct {
	Range
	Quantity Decimal
	Currency Currency
}

// PriceAnnotation is a per-unit (`@`) or total (`@@`) price of a posting.
type PriceAnnotation struct {
	Range
	Total  bool
	Amount Amount
}

type Posting struct {
	Range
	Flag    Flag
	Account Account
	Amount  Amount
	// Cost is the raw `{...}` cost specification, carried through unparsed.
	Cost  Range
	Price PriceAnnotation
}

type Metadata struct {
	Range
	Key, Value Range
}

type Transaction struct {
	Range
	Date      Date
	Flag      Flag
	Payee     QuotedString
	Narration QuotedString
	Tags      []Tag
	Links     []Link
	Metadata  []Metadata
	Postings  []Posting
}

type Open struct {
	Range
	Date       Date
	Account    Account
	Currencies []Currency
	Booking    QuotedString
}

type Close struct {
	Range
	Date    Date
	Account Account
}

type Price struct {
	Range
	Date              Date
	Commodity, Target Currency
	Price             Decimal
}

type Option struct {
	Range
	Key, Value QuotedString
}

type Include struct {
	Range
	IncludePath QuotedString
}

type Plugin struct {
	Range
	Module, Config QuotedString
}

// Ignored is a dated directive which is recognized but not interpreted,
// such as `balance`, `pad` or `note`.
type Ignored struct {
	Range
	Date    Date
	Keyword Range
}

type Directive struct {
	Range
	Directive any
}

type File struct {
	Range
	Directives []Directive
}

type Range struct {
	Start, End int
	Path, Text string
}

func (r Range) Extract() string {
	return r.Text[r.Start:r.End]
}

func (r *Range) SetRange(r2 Range) {
	*r = r2
}

func (r Range) Length() int {
	return r.End - r.Start
}

func (r *Range) Extend(r2 Range) {
	if r.Start > r2.Start {
		r.Start = r2.Start
	}
	if r.End < r2.End {
		r.End = r2.End
	}
}

func SetRange[T any, P interface {
	*T
	SetRange(Range)
}](t P, r Range) T {
	t.SetRange(r)
	return *t
}

func (r Range) Empty() bool {
	return r.Start == r.End
}

// Location returns the line and column of the start of the range.
func (r Range) Location() Location {
	return r.locationOf(r.Start)
}

// EndLocation returns the line and column of the end of the range.
func (r Range) EndLocation() Location {
	return r.locationOf(r.End)
}

func (r Range) locationOf(offset int) Location {
	loc := Location{Line: 1, Col: 1}
	for pos, ch := range r.Text {
		if pos >= offset {
			return loc
		}
		if ch == '\n' {
			loc.Line++
			loc.Col = 1
		} else {
			loc.Col++
		}
	}
	return loc
}

func (r Range) Context(previous int) []string {
	start := r.Start
	end := r.End
	for i := 0; i <= previous; i++ {
		start = r.firstOfLine(start)
	}
	end = r.lastOfLine(end)
	return strings.Split(r.Text[start:end], "\n")
}

func (r Range) firstOfLine(pos int) int {
	for pos > 0 && r.Text[pos-1] != '\n' {
		pos--
	}
	return pos
}

func (r Range) lastOfLine(pos int) int {
	for pos < len(r.Text) && r.Text[pos] != '\n' {
		pos++
	}
	return pos
}

type Location struct {
	Line, Col int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Col)
}

var _ error = Error{}

type Error struct {
	Range
	Message string
	Wrapped error
}

func (e Error) Error() string {
	var s strings.Builder
	if e.Wrapped != nil {
		s.WriteString(e.Wrapped.Error())
		s.WriteString("\n")
	}
	if len(e.Path) > 0 {
		s.WriteString(e.Path)
		s.WriteString(": ")
	}
	s.WriteString(e.EndLocation().String())
	s.WriteString(" ")
	s.WriteString(e.Message)
	return s.String()
}

func (e Error) Unwrap() error {
	return e.Wrapped
}

// Root returns the innermost annotated error and the plain cause below it.
func (e Error) Root() (Error, error) {
	root, cause := e, e.Wrapped
	for {
		var inner Error
		if cause == nil || !errors.As(cause, &inner) {
			return root, cause
		}
		root, cause = inner, inner.Wrapped
	}
}
