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

package ledger

import (
	"fmt"

	"github.com/sboehler/kasse/lib/model"
	"github.com/shopspring/decimal"
)

// DiagnosticKind classifies a diagnostic.
type DiagnosticKind int

const (
	ParseError DiagnosticKind = iota
	IncludeCycle
	IncludeMissing
	UnknownAccount
	InactiveAccount
	InvalidCurrency
	Unbalanced
	InvalidAccountName
	DuplicateOpen
)

func (k DiagnosticKind) String() string {
	switch k {
	case ParseError:
		return "parse error"
	case IncludeCycle:
		return "include cycle"
	case IncludeMissing:
		return "missing include"
	case UnknownAccount:
		return "unknown account"
	case InactiveAccount:
		return "inactive account"
	case InvalidCurrency:
		return "invalid currency"
	case Unbalanced:
		return "unbalanced transaction"
	case InvalidAccountName:
		return "invalid account name"
	case DuplicateOpen:
		return "duplicate open"
	}
	return "unknown"
}

// Diagnostic is a non-fatal problem found while loading the ledger.
type Diagnostic struct {
	Kind     DiagnosticKind
	Pos      model.Position
	Message  string
	Account  string
	Currency string
	// Amount is the residual of an unbalanced transaction.
	Amount decimal.Decimal
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Pos, d.Message)
}
