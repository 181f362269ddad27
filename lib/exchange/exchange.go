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

package exchange

import (
	"sort"
	"time"

	"github.com/sboehler/kasse/lib/model"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

type pair struct {
	from, to string
}

type quote struct {
	day  time.Time
	rate decimal.Decimal
}

// Exchange resolves exchange rates from price entries. It is immutable
// after construction and safe for concurrent use.
type Exchange struct {
	// quotes stores, per (commodity, target), the prices sorted by date.
	// Among prices of the same day, the last one in the entry stream
	// comes last.
	quotes map[pair][]quote

	inverse bool
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithInverse makes Rate fall back to the inverse of a price of to in
// from when no price of from in to exists.
func WithInverse() Option {
	return func(ex *Exchange) {
		ex.inverse = true
	}
}

// New indexes the price entries among entries.
func New(entries []model.Entry, opts ...Option) *Exchange {
	ex := &Exchange{quotes: make(map[pair][]quote)}
	for _, opt := range opts {
		opt(ex)
	}
	for _, e := range entries {
		p, ok := e.(*model.Price)
		if !ok {
			continue
		}
		k := pair{p.Currency, p.Target}
		ex.quotes[k] = append(ex.quotes[k], quote{day: p.Day, rate: p.Rate})
	}
	for _, qs := range ex.quotes {
		sort.SliceStable(qs, func(i, j int) bool {
			return qs[i].day.Before(qs[j].day)
		})
	}
	return ex
}

// Rate returns the price of one unit of from in to, as of the given
// date. Without a price of from in to, it returns false unless the
// exchange was created WithInverse.
func (ex *Exchange) Rate(day time.Time, from, to string) (decimal.Decimal, bool) {
	if from == to {
		return one, true
	}
	if r, ok := ex.latest(day, pair{from, to}); ok {
		return r, true
	}
	if !ex.inverse {
		return decimal.Zero, false
	}
	if r, ok := ex.latest(day, pair{to, from}); ok && !r.IsZero() {
		return one.Div(r).Truncate(8), true
	}
	return decimal.Zero, false
}

// Convert converts amount from one currency to another as of the given
// date.
func (ex *Exchange) Convert(amount decimal.Decimal, from, to string, day time.Time) (decimal.Decimal, bool) {
	r, ok := ex.Rate(day, from, to)
	if !ok {
		return decimal.Zero, false
	}
	if from == to {
		return amount, true
	}
	return amount.Mul(r), true
}

func (ex *Exchange) latest(day time.Time, k pair) (decimal.Decimal, bool) {
	qs := ex.quotes[k]
	// index of the first quote after day
	i := sort.Search(len(qs), func(i int) bool {
		return qs[i].day.After(day)
	})
	if i == 0 {
		return decimal.Zero, false
	}
	return qs[i-1].rate, true
}
