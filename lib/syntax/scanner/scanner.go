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

package scanner

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/sboehler/kasse/lib/syntax/directives"
)

// Scanner is a scanner.
type Scanner struct {
	text string
	Path string

	// current contains the current rune
	current    rune
	currentLen int
	pos        int

	ranges []rangeContext
}

type rangeContext struct {
	start int
	desc  string
}

// New creates a new Scanner.
func New(text, path string) *Scanner {
	return &Scanner{
		text: text,
		Path: path,
	}
}

// Current returns the current rune.
func (s *Scanner) Current() rune {
	return s.current
}

// Offset returns the current offset.
func (s *Scanner) Offset() int {
	return s.pos
}

// AtLineStart returns whether the scanner is positioned at the beginning of
// a line.
func (s *Scanner) AtLineStart() bool {
	return s.pos == 0 || s.text[s.pos-1] == '\n'
}

// Advance reads a rune.
func (s *Scanner) Advance() error {
	s.pos += s.currentLen
	if s.pos >= len(s.text) {
		s.pos = len(s.text)
		s.current = EOF
		s.currentLen = 0
		return nil
	}
	s.current, s.currentLen = utf8.DecodeRuneInString(s.text[s.pos:])
	if s.current == utf8.RuneError {
		switch s.currentLen {
		case 0:
			return fmt.Errorf("unexpected end of file: %s", s.text[s.pos:])
		case 1:
			return fmt.Errorf("invalid string: %s", s.text[s.pos:])
		}
	}
	return nil
}

// EOF is a rune representing the end of a file
const EOF = rune(0)

// ReadWhile reads a string while the predicate holds.
func (s *Scanner) ReadWhile(pred func(r rune) bool) (directives.Range, error) {
	start := s.pos
	for pred(s.Current()) && s.Current() != EOF {
		if err := s.Advance(); err != nil {
			return s.rangeFrom(start), err
		}
	}
	return s.rangeFrom(start), nil
}

// ReadWhile1 reads a string while the predicate holds. The predicate must be
// satisfied at least once.
func (s *Scanner) ReadWhile1(desc string, pred func(r rune) bool) (directives.Range, error) {
	start := s.pos
	if s.Current() == EOF {
		return s.rangeFrom(start), fmt.Errorf("unexpected end of file, want %s", desc)
	}
	if !pred(s.Current()) {
		return s.rangeFrom(start), fmt.Errorf("unexpected character %q, want %s", s.Current(), desc)
	}
	return s.ReadWhile(pred)
}

// ReadUntil advances the scanner until the predicate holds.
func (s *Scanner) ReadUntil(pred func(r rune) bool) (directives.Range, error) {
	start := s.pos
	for !pred(s.Current()) {
		if s.Current() == EOF {
			return s.rangeFrom(start), fmt.Errorf("unexpected end of file")
		}
		if err := s.Advance(); err != nil {
			return s.rangeFrom(start), err
		}
	}
	return s.rangeFrom(start), nil
}

// ReadCharacter consumes the given rune.
func (s *Scanner) ReadCharacter(r rune) (directives.Range, error) {
	if s.Current() != r {
		if s.Current() == EOF {
			return s.rangeFrom(s.pos), fmt.Errorf("unexpected end of file, want %q", r)
		}
		return s.rangeFrom(s.pos), fmt.Errorf("unexpected character %q, want %q", s.Current(), r)
	}
	start := s.pos
	err := s.Advance()
	return s.rangeFrom(start), err
}

// ReadCharacterWith consumes a rune satisfying the predicate.
func (s *Scanner) ReadCharacterWith(desc string, pred func(r rune) bool) (directives.Range, error) {
	if s.Current() == EOF {
		return s.rangeFrom(s.pos), fmt.Errorf("unexpected end of file, want %s", desc)
	}
	if !pred(s.Current()) {
		return s.rangeFrom(s.pos), fmt.Errorf("unexpected character %q, want %s", s.Current(), desc)
	}
	start := s.pos
	err := s.Advance()
	return s.rangeFrom(start), err
}

// ReadCharacterOpt optionally consumes the given rune.
func (s *Scanner) ReadCharacterOpt(r rune) (directives.Range, error) {
	if s.Current() != r {
		return s.rangeFrom(s.pos), nil
	}
	start := s.pos
	err := s.Advance()
	return s.rangeFrom(start), err
}

// ReadString parses the given string.
func (s *Scanner) ReadString(str string) (directives.Range, error) {
	start := s.pos
	for _, ch := range str {
		if ch != s.Current() {
			return s.rangeFrom(start), fmt.Errorf("expected %q, got %q", str, s.text[start:s.pos])
		}
		if err := s.Advance(); err != nil {
			return s.rangeFrom(start), err
		}
	}
	return s.rangeFrom(start), nil
}

// ReadAlternative reads the first of the given strings which matches the
// input. Longer alternatives must precede their prefixes.
func (s *Scanner) ReadAlternative(ss []string) (directives.Range, error) {
	start := s.pos
	for _, str := range ss {
		if strings.HasPrefix(s.text[s.pos:], str) {
			return s.ReadString(str)
		}
	}
	return s.rangeFrom(start), fmt.Errorf("expected one of %v", ss)
}

// ReadN reads a string with n runes.
func (s *Scanner) ReadN(n int) (directives.Range, error) {
	start := s.pos
	for i := 0; i < n; i++ {
		if s.current == EOF {
			return s.rangeFrom(start), io.EOF
		}
		if err := s.Advance(); err != nil {
			return s.rangeFrom(start), err
		}
	}
	return s.rangeFrom(start), nil
}

// SkipLine advances the scanner to the beginning of the next line.
func (s *Scanner) SkipLine() error {
	for s.Current() != '\n' && s.Current() != EOF {
		if err := s.Advance(); err != nil {
			return err
		}
	}
	if s.Current() == '\n' {
		return s.Advance()
	}
	return nil
}

// RangeStart starts a new range at the current position.
func (s *Scanner) RangeStart(desc string) {
	s.ranges = append(s.ranges, rangeContext{start: s.pos, desc: desc})
}

// RangeContinue starts a new range which begins where the enclosing range
// begins.
func (s *Scanner) RangeContinue(desc string) {
	start := s.pos
	if len(s.ranges) > 0 {
		start = s.ranges[len(s.ranges)-1].start
	}
	s.ranges = append(s.ranges, rangeContext{start: start, desc: desc})
}

// RangeEnd closes the innermost range.
func (s *Scanner) RangeEnd() {
	s.ranges = s.ranges[:len(s.ranges)-1]
}

// Range returns the innermost range, from its start to the current position.
func (s *Scanner) Range() directives.Range {
	if len(s.ranges) == 0 {
		return s.rangeFrom(s.pos)
	}
	return s.rangeFrom(s.ranges[len(s.ranges)-1].start)
}

// Annotate wraps err with the innermost range and its description.
func (s *Scanner) Annotate(err error) error {
	var desc string
	if len(s.ranges) > 0 {
		desc = s.ranges[len(s.ranges)-1].desc
	}
	return directives.Error{
		Range:   s.Range(),
		Message: desc,
		Wrapped: err,
	}
}

func (s *Scanner) rangeFrom(start int) directives.Range {
	return directives.Range{
		Start: start,
		End:   s.pos,
		Path:  s.Path,
		Text:  s.text,
	}
}
