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
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// AccountType is the type of an account.
type AccountType int

const (
	// ASSETS represents an asset account.
	ASSETS AccountType = iota
	// LIABILITIES represents a liability account.
	LIABILITIES
	// EQUITY represents an equity account.
	EQUITY
	// INCOME represents an income account.
	INCOME
	// EXPENSES represents an expenses account.
	EXPENSES
)

func (t AccountType) String() string {
	switch t {
	case ASSETS:
		return "Assets"
	case LIABILITIES:
		return "Liabilities"
	case EQUITY:
		return "Equity"
	case INCOME:
		return "Income"
	case EXPENSES:
		return "Expenses"
	}
	return ""
}

// AccountTypes is an array with the ordered account types.
var AccountTypes = []AccountType{ASSETS, LIABILITIES, EQUITY, INCOME, EXPENSES}

var accountTypes = map[string]AccountType{
	"Assets":      ASSETS,
	"Liabilities": LIABILITIES,
	"Equity":      EQUITY,
	"Expenses":    EXPENSES,
	"Income":      INCOME,
}

// TypeOf returns the type of the given account name.
func TypeOf(account string) (AccountType, bool) {
	head, _, _ := strings.Cut(account, ":")
	t, ok := accountTypes[head]
	return t, ok
}

// IsAL returns whether the account is an asset or liability account.
func IsAL(account string) bool {
	t, ok := TypeOf(account)
	return ok && (t == ASSETS || t == LIABILITIES)
}

// IsIE returns whether the account is an income or expense account.
func IsIE(account string) bool {
	t, ok := TypeOf(account)
	return ok && (t == EXPENSES || t == INCOME)
}

// IsDescendant returns whether account equals ancestor or lies below it.
func IsDescendant(account, ancestor string) bool {
	return account == ancestor || strings.HasPrefix(account, ancestor+":")
}

// Segments splits an account name into its segments.
func Segments(account string) []string {
	return strings.Split(account, ":")
}

// NormalizeAccount returns the NFC form of an account name.
func NormalizeAccount(account string) string {
	return norm.NFC.String(strings.TrimSpace(account))
}

// ValidateAccount checks that name is a well-formed account name: at least
// two segments, the first being an account type, and every further segment
// starting with an ASCII letter, a digit, `_` or `-`, followed by letters,
// digits, `_` or `-`.
func ValidateAccount(name string) error {
	segments := Segments(name)
	if len(segments) < 2 {
		return fmt.Errorf("account %q must have at least two segments", name)
	}
	if _, ok := accountTypes[segments[0]]; !ok {
		return fmt.Errorf("account %q must start with one of Assets, Liabilities, Equity, Income or Expenses", name)
	}
	for _, s := range segments[1:] {
		if !validSegment(s) {
			return fmt.Errorf("account %q has an invalid segment %q", name, s)
		}
	}
	return nil
}

func validSegment(s string) bool {
	for i, ch := range s {
		if i == 0 {
			if !(ch < unicode.MaxASCII && (unicode.IsLetter(ch) || unicode.IsDigit(ch))) && ch != '_' && ch != '-' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '_' && ch != '-' {
			return false
		}
	}
	return len(s) > 0
}

var currencyRegex = regexp.MustCompile(`^[A-Z][A-Z0-9'._-]{0,22}[A-Z0-9]$|^[A-Z]$`)

// ValidateCurrency checks that code is a well-formed commodity name.
func ValidateCurrency(code string) error {
	if !currencyRegex.MatchString(code) {
		return fmt.Errorf("invalid currency %q", code)
	}
	return nil
}

var isoCurrencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidateISOCurrency checks that code consists of three uppercase letters.
func ValidateISOCurrency(code string) error {
	if !isoCurrencyRegex.MatchString(code) {
		return fmt.Errorf("invalid currency %q, want three uppercase letters", code)
	}
	return nil
}
