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

package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Position locates an entry in the ledger source.
type Position struct {
	File string
	Line int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Entry is an element of the entry stream. The set of implementations is
// closed: *Transaction, *Open, *Close, *Price, *Option and *Include.
type Entry interface {
	Date() time.Time
	Position() Position
	entry()
}

var (
	_ Entry = (*Transaction)(nil)
	_ Entry = (*Open)(nil)
	_ Entry = (*Close)(nil)
	_ Entry = (*Price)(nil)
	_ Entry = (*Option)(nil)
	_ Entry = (*Include)(nil)
)

// Amount is a quantity of a commodity.
type Amount struct {
	Number   decimal.Decimal
	Currency string
}

func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Number.String(), a.Currency)
}

// PriceAnnotation is the `@` or `@@` price of a posting.
type PriceAnnotation struct {
	Amount Amount
	Total  bool
}

// Posting is one leg of a transaction.
type Posting struct {
	Flag    string
	Account string
	// Amount is nil if the amount is to be inferred.
	Amount *Amount
	Cost   string
	Price  *PriceAnnotation
	// Inferred is set if the amount was filled in by the loader.
	Inferred bool
}

// Weight returns the amount by which the posting contributes to the
// balance of its transaction.
func (p *Posting) Weight() (Amount, bool) {
	if p.Amount == nil {
		return Amount{}, false
	}
	if p.Price == nil {
		return *p.Amount, true
	}
	if p.Price.Total {
		n := p.Price.Amount.Number
		if p.Amount.Number.IsNegative() {
			n = n.Neg()
		}
		return Amount{Number: n, Currency: p.Price.Amount.Currency}, true
	}
	return Amount{
		Number:   p.Amount.Number.Mul(p.Price.Amount.Number),
		Currency: p.Price.Amount.Currency,
	}, true
}

// Transaction represents a transaction.
type Transaction struct {
	Pos       Position
	Day       time.Time
	Flag      string
	Payee     string
	Narration string
	Tags      []string
	Links     []string
	Metadata  map[string]string
	Postings  []*Posting
}

// Open represents an open directive.
type Open struct {
	Pos        Position
	Day        time.Time
	Account    string
	Currencies []string
	Booking    string
}

// Allows returns whether the account accepts the given currency.
func (o *Open) Allows(currency string) bool {
	if len(o.Currencies) == 0 {
		return true
	}
	for _, c := range o.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

// Close represents a close directive.
type Close struct {
	Pos     Position
	Day     time.Time
	Account string
}

// Price represents a price directive.
type Price struct {
	Pos      Position
	Day      time.Time
	Currency string
	Rate     decimal.Decimal
	Target   string
}

// Option represents an option directive.
type Option struct {
	Pos        Position
	Key, Value string
}

// Include represents an include directive.
type Include struct {
	Pos  Position
	Path string
	// Resolved is the absolute path of the included file.
	Resolved string
}

func (t *Transaction) Date() time.Time   { return t.Day }
func (t *Transaction) Position() Position { return t.Pos }
func (*Transaction) entry()               {}

func (o *Open) Date() time.Time   { return o.Day }
func (o *Open) Position() Position { return o.Pos }
func (*Open) entry()               {}

func (c *Close) Date() time.Time   { return c.Day }
func (c *Close) Position() Position { return c.Pos }
func (*Close) entry()               {}

func (p *Price) Date() time.Time   { return p.Day }
func (p *Price) Position() Position { return p.Pos }
func (*Price) entry()               {}

func (o *Option) Date() time.Time   { return time.Time{} }
func (o *Option) Position() Position { return o.Pos }
func (*Option) entry()               {}

func (i *Include) Date() time.Time   { return time.Time{} }
func (i *Include) Position() Position { return i.Pos }
func (*Include) entry()               {}

// Accounts returns the accounts referenced by the transaction's postings.
func (t *Transaction) Accounts() []string {
	res := make([]string, 0, len(t.Postings))
	for _, p := range t.Postings {
		res = append(res, p.Account)
	}
	return res
}
