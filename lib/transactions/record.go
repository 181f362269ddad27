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

package transactions

import (
	"fmt"
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/model"
	"github.com/sboehler/kasse/lib/syntax/printer"
	"github.com/shopspring/decimal"
)

// Record is the input for a new or changed transaction.
type Record struct {
	Date      time.Time
	Flag      string
	Payee     string
	Narration string
	Tags      []string
	Links     []string
	Metadata  map[string]string
	Postings  []PostingRecord
}

// PostingRecord is one leg of a Record. A nil amount is inferred.
type PostingRecord struct {
	Account  string
	Amount   *decimal.Decimal
	Currency string
	Price    *model.PriceAnnotation
}

// Validate checks the record for structural errors.
func (r Record) Validate() []string {
	var diags []string
	if r.Date.IsZero() {
		diags = append(diags, "date is required")
	}
	if r.Flag != "" && r.Flag != "*" && r.Flag != "!" {
		diags = append(diags, fmt.Sprintf("invalid flag %q", r.Flag))
	}
	if len(r.Postings) < 2 {
		diags = append(diags, "a transaction needs at least two postings")
	}
	var elided int
	for _, p := range r.Postings {
		if err := model.ValidateAccount(model.NormalizeAccount(p.Account)); err != nil {
			diags = append(diags, err.Error())
		}
		if p.Amount == nil {
			elided++
			continue
		}
		if err := model.ValidateCurrency(p.Currency); err != nil {
			diags = append(diags, err.Error())
		}
		if p.Price != nil {
			if err := model.ValidateCurrency(p.Price.Amount.Currency); err != nil {
				diags = append(diags, err.Error())
			}
		}
	}
	if elided > 1 {
		diags = append(diags, "at most one posting can omit its amount")
	}
	return diags
}

// Transaction converts the record into a ledger transaction.
func (r Record) Transaction() *model.Transaction {
	t := &model.Transaction{
		Day:       r.Date,
		Flag:      r.Flag,
		Payee:     strings.TrimSpace(r.Payee),
		Narration: strings.TrimSpace(r.Narration),
		Tags:      r.Tags,
		Links:     r.Links,
		Metadata:  r.Metadata,
	}
	if t.Flag == "" {
		t.Flag = "*"
	}
	for _, p := range r.Postings {
		posting := &model.Posting{
			Account: model.NormalizeAccount(p.Account),
			Price:   p.Price,
		}
		if p.Amount != nil {
			posting.Amount = &model.Amount{Number: *p.Amount, Currency: p.Currency}
		}
		t.Postings = append(t.Postings, posting)
	}
	return t
}

// Text serializes the record in ledger syntax.
func (r Record) Text() (string, error) {
	s, err := printer.New().Sprint(r.Transaction())
	if err != nil {
		return "", fault.Wrap(fault.Validation, "printing transaction", err)
	}
	return s, nil
}

// FromTransaction returns the record of a loaded transaction. Postings
// filled in by inference are returned without amount again.
func FromTransaction(t *model.Transaction) Record {
	r := Record{
		Date:      t.Day,
		Flag:      t.Flag,
		Payee:     t.Payee,
		Narration: t.Narration,
		Tags:      t.Tags,
		Links:     t.Links,
		Metadata:  t.Metadata,
	}
	var inferred bool
	for _, p := range t.Postings {
		if p.Inferred {
			if !inferred {
				r.Postings = append(r.Postings, PostingRecord{Account: p.Account})
			}
			inferred = true
			continue
		}
		pr := PostingRecord{Account: p.Account, Price: p.Price}
		if p.Amount != nil {
			n := p.Amount.Number
			pr.Amount = &n
			pr.Currency = p.Amount.Currency
		}
		r.Postings = append(r.Postings, pr)
	}
	return r
}
