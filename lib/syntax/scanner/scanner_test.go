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
	"errors"
	"fmt"
	"testing"
	"unicode"

	"github.com/sboehler/kasse/lib/syntax/directives"
)

type span struct{ Start, End int }

func spanOf(r directives.Range) span {
	return span{r.Start, r.End}
}

func TestNewScanner(t *testing.T) {
	s := New("", "")
	if err := s.Advance(); err != nil {
		t.Fatalf("s.Advance() = %#v, want nil", err)
	}
	if c := s.Current(); c != EOF {
		t.Fatalf("s.Current() = %c, want EOF", c)
	}
}

func TestReadN(t *testing.T) {
	for _, test := range []struct {
		n       int
		want    span
		wantErr bool
	}{
		{n: 3, want: span{0, 3}},
		{n: 6, want: span{0, 6}},
		{n: 7, want: span{0, 6}, wantErr: true},
	} {
		t.Run(fmt.Sprintf("n=%d", test.n), func(t *testing.T) {
			scanner := setupScanner(t, "foobar")

			got, err := scanner.ReadN(test.n)

			if (err != nil) != test.wantErr {
				t.Fatalf("scanner.ReadN(%d) returned error %#v, want error presence %t", test.n, err, test.wantErr)
			}
			if spanOf(got) != test.want {
				t.Fatalf("scanner.ReadN(%d) = %v, want %v", test.n, spanOf(got), test.want)
			}
		})
	}
}

func TestReadString(t *testing.T) {
	for _, test := range []struct {
		str     string
		want    span
		wantErr bool
	}{
		{str: "", want: span{0, 0}},
		{str: "foo", want: span{0, 3}},
		{str: "foobar", want: span{0, 6}},
		{str: "foobarbaz", want: span{0, 6}, wantErr: true},
	} {
		t.Run(test.str, func(t *testing.T) {
			scanner := setupScanner(t, "foobar")

			got, err := scanner.ReadString(test.str)

			if (err != nil) != test.wantErr {
				t.Fatalf("scanner.ReadString(%s) returned error %#v, want error presence %t", test.str, err, test.wantErr)
			}
			if spanOf(got) != test.want {
				t.Fatalf("scanner.ReadString(%s) = %v, want %v", test.str, spanOf(got), test.want)
			}
		})
	}
}

func TestReadAlternative(t *testing.T) {
	for _, test := range []struct {
		text    string
		want    string
		wantErr bool
	}{
		{text: "open Assets", want: "open"},
		{text: "close Assets", want: "close"},
		{text: "balance Assets", wantErr: true},
	} {
		t.Run(test.text, func(t *testing.T) {
			scanner := setupScanner(t, test.text)

			got, err := scanner.ReadAlternative([]string{"open", "close", "price"})

			if (err != nil) != test.wantErr {
				t.Fatalf("scanner.ReadAlternative() returned error %v, want error presence %t", err, test.wantErr)
			}
			if got.Extract() != test.want {
				t.Fatalf("scanner.ReadAlternative() = %q, want %q", got.Extract(), test.want)
			}
		})
	}
}

func TestReadCharacter(t *testing.T) {
	for _, test := range []struct {
		char    rune
		want    span
		wantErr bool
	}{
		{char: 'f', want: span{0, 1}},
		{char: 'o', want: span{0, 0}, wantErr: true},
	} {
		t.Run(fmt.Sprintf("ReadChar %c", test.char), func(t *testing.T) {
			scanner := setupScanner(t, "foobar")

			got, err := scanner.ReadCharacter(test.char)

			if (err != nil) != test.wantErr {
				t.Fatalf("scanner.ReadChar(%c) returned error %#v, want error presence %t", test.char, err, test.wantErr)
			}
			if spanOf(got) != test.want {
				t.Fatalf("scanner.ReadChar(%c) = %v, want %v", test.char, spanOf(got), test.want)
			}
		})
	}
}

func TestReadWhile(t *testing.T) {
	for _, test := range []struct {
		text string
		pred func(rune) bool
		want span
	}{
		{text: "ooobar", pred: func(r rune) bool { return r == 'o' }, want: span{0, 3}},
		{text: "ASDFasdf", pred: unicode.IsUpper, want: span{0, 4}},
		{text: "ASDF", pred: unicode.IsUpper, want: span{0, 4}},
		{text: "餐饮 x", pred: unicode.IsLetter, want: span{0, 6}},
	} {
		t.Run(test.text, func(t *testing.T) {
			scanner := setupScanner(t, test.text)

			got, err := scanner.ReadWhile(test.pred)

			if err != nil || spanOf(got) != test.want {
				t.Fatalf("scanner.ReadWhile(pred) = %v, %v, want %v, nil", spanOf(got), err, test.want)
			}
		})
	}
}

func TestReadWhile1(t *testing.T) {
	scanner := setupScanner(t, "abc")
	if _, err := scanner.ReadWhile1("a digit", unicode.IsDigit); err == nil {
		t.Fatalf("scanner.ReadWhile1() returned nil error, want error")
	}
}

func TestReadUntil(t *testing.T) {
	for _, test := range []struct {
		char    rune
		want    span
		wantErr bool
	}{
		{char: 'r', want: span{0, 5}},
		{char: 'f', want: span{0, 0}},
		{char: 'z', want: span{0, 6}, wantErr: true},
	} {
		t.Run(string(test.char), func(t *testing.T) {
			scanner := setupScanner(t, "foobar")

			got, err := scanner.ReadUntil(func(r rune) bool { return r == test.char })

			if (err != nil) != test.wantErr {
				t.Fatalf("scanner.ReadUntil(pred) returned error %#v, want error presence %t", err, test.wantErr)
			}
			if spanOf(got) != test.want {
				t.Fatalf("scanner.ReadUntil(pred) = %v, want %v", spanOf(got), test.want)
			}
		})
	}
}

func TestSkipLine(t *testing.T) {
	scanner := setupScanner(t, "foo\nbar")

	if err := scanner.SkipLine(); err != nil {
		t.Fatalf("scanner.SkipLine() = %v, want nil", err)
	}

	if !scanner.AtLineStart() || scanner.Current() != 'b' {
		t.Fatalf("scanner.Current() = %c, want b at line start", scanner.Current())
	}
}

func TestAnnotate(t *testing.T) {
	scanner := setupScanner(t, "2024-01-01 open")
	scanner.RangeStart("parsing directive")
	if _, err := scanner.ReadN(5); err != nil {
		t.Fatal(err)
	}
	scanner.RangeContinue("parsing date")

	err := scanner.Annotate(fmt.Errorf("boom"))
	scanner.RangeEnd()
	scanner.RangeEnd()

	var e directives.Error
	if !errors.As(err, &e) {
		t.Fatalf("scanner.Annotate() = %T, want directives.Error", err)
	}
	if e.Message != "parsing date" || spanOf(e.Range) != (span{0, 5}) {
		t.Fatalf("scanner.Annotate() = %q %v, want \"parsing date\" {0 5}", e.Message, spanOf(e.Range))
	}
}

func TestAdvanceAndCurrent(t *testing.T) {
	scanner := setupScanner(t, "foobar")
	for _, want := range "foobar" {

		got := scanner.Current()

		if want != got {
			t.Fatalf("s.Current() = %c, want %c", got, want)
		}
		if err := scanner.Advance(); err != nil {
			t.Fatalf("s.Advance() = %v, want nil", err)
		}
	}
	if got := scanner.Current(); got != EOF {
		t.Fatalf("s.Current() = %c want EOF", got)
	}
}

func setupScanner(t *testing.T, text string) *Scanner {
	t.Helper()
	scanner := New(text, "")
	if err := scanner.Advance(); err != nil {
		t.Fatalf("s.Advance() = %v, want nil", err)
	}
	return scanner
}
