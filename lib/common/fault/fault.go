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

// Package fault classifies the errors returned by the ledger services.
package fault

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is the category of an error.
type Kind int

const (
	// Unknown is the kind of errors which were not classified.
	Unknown Kind = iota
	// SourceMissing means that the main ledger file is absent.
	SourceMissing
	// ParseDiagnostic is a non-fatal parser error.
	ParseDiagnostic
	// NotFound means that a lookup by id or provenance failed.
	NotFound
	// Validation means that an invariant or the grammar would be violated.
	Validation
	// Conflict is returned for duplicate or contradicting state.
	Conflict
	// RemoteFailure means that a remote call failed.
	RemoteFailure
	// Transient errors can be retried.
	Transient
)

func (k Kind) String() string {
	switch k {
	case SourceMissing:
		return "source missing"
	case ParseDiagnostic:
		return "parse diagnostic"
	case NotFound:
		return "not found"
	case Validation:
		return "validation failure"
	case Conflict:
		return "conflict"
	case RemoteFailure:
		return "remote failure"
	case Transient:
		return "transient"
	}
	return "unknown"
}

// Error is a classified error.
type Error struct {
	Kind        Kind
	Op          string
	Err         error
	Diagnostics []string
}

func (e *Error) Error() string {
	var s strings.Builder
	if e.Op != "" {
		s.WriteString(e.Op)
		s.WriteString(": ")
	}
	if e.Err != nil {
		s.WriteString(e.Err.Error())
	} else {
		s.WriteString(e.Kind.String())
	}
	return s.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new error of the given kind.
func New(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. It returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Invalid creates a validation error carrying diagnostics.
func Invalid(op string, diagnostics []string) error {
	return &Error{
		Kind:        Validation,
		Op:          op,
		Err:         fmt.Errorf("%s", strings.Join(diagnostics, "; ")),
		Diagnostics: diagnostics,
	}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// DiagnosticsOf returns the diagnostics attached to err, if any.
func DiagnosticsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Diagnostics
	}
	return nil
}
