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

package parser

import (
	"fmt"
	"unicode"

	"github.com/sboehler/kasse/lib/syntax/directives"
	"github.com/sboehler/kasse/lib/syntax/scanner"
	"go.uber.org/multierr"
)

// Parser parses a ledger file.
type Parser struct {
	scanner.Scanner
}

// New creates a new parser.
func New(text, path string) *Parser {
	return &Parser{
		Scanner: *scanner.New(text, path),
	}
}

// ignoredKeywords are dated directives which are accepted but not
// interpreted.
var ignoredKeywords = []string{"balance", "commodity", "custom", "document", "event", "note", "pad", "query"}

// ParseFile parses the whole file. Directives which fail to parse are
// skipped; their errors are combined into the returned error, and the
// returned file contains every directive that parsed successfully.
func (p *Parser) ParseFile() (directives.File, error) {
	p.RangeStart(fmt.Sprintf("parsing file `%s`", p.Path))
	defer p.RangeEnd()
	var (
		file directives.File
		errs error
	)
	if err := p.Advance(); err != nil {
		return directives.SetRange(&file, p.Range()), p.Annotate(err)
	}
	for p.Current() != scanner.EOF {
		start := p.Offset()
		switch {
		case isNewline(p.Current()):
			if err := p.Advance(); err != nil {
				return directives.SetRange(&file, p.Range()), multierr.Append(errs, p.Annotate(err))
			}
			continue

		case isWhitespace(p.Current()):
			if err := p.skipIndentedLine(); err != nil {
				errs = multierr.Append(errs, err)
				if err := p.recover(start); err != nil {
					return directives.SetRange(&file, p.Range()), multierr.Append(errs, p.Annotate(err))
				}
			}
			continue

		case isCommentStart(p.Current()):
			if err := p.SkipLine(); err != nil {
				return directives.SetRange(&file, p.Range()), multierr.Append(errs, p.Annotate(err))
			}
			continue
		}
		dir, err := p.parseDirective()
		if err != nil {
			errs = multierr.Append(errs, err)
			if err := p.recover(start); err != nil {
				return directives.SetRange(&file, p.Range()), multierr.Append(errs, p.Annotate(err))
			}
			continue
		}
		if dir.Directive != nil {
			file.Directives = append(file.Directives, dir)
		}
	}
	return directives.SetRange(&file, p.Range()), errs
}

// recover skips the remainder of a broken directive, up to the next line
// that starts with a non-whitespace character.
func (p *Parser) recover(start int) error {
	if !p.AtLineStart() || p.Offset() == start {
		if err := p.SkipLine(); err != nil {
			return err
		}
	}
	for isWhitespace(p.Current()) {
		if err := p.SkipLine(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) skipIndentedLine() error {
	p.RangeStart("parsing indented line")
	defer p.RangeEnd()
	if _, err := p.ReadWhile(isWhitespace); err != nil {
		return p.Annotate(err)
	}
	if isNewlineOrEOF(p.Current()) || p.Current() == ';' {
		return p.SkipLine()
	}
	return p.Annotate(fmt.Errorf("unexpected indented line"))
}

func (p *Parser) parseDirective() (directives.Directive, error) {
	p.RangeStart("parsing directive")
	defer p.RangeEnd()
	var (
		dir directives.Directive
		err error
	)
	if !unicode.IsDigit(p.Current()) {
		r, err := p.ReadAlternative([]string{"option", "include", "plugin", "pushtag", "poptag"})
		if err != nil {
			return directives.SetRange(&dir, p.Range()), p.Annotate(err)
		}
		switch r.Extract() {
		case "option":
			dir.Directive, err = p.parseOption()
		case "include":
			dir.Directive, err = p.parseInclude()
		case "plugin":
			dir.Directive, err = p.parsePlugin()
		default:
			err = p.SkipLine()
		}
		if err != nil {
			return directives.SetRange(&dir, p.Range()), p.Annotate(err)
		}
		return directives.SetRange(&dir, p.Range()), nil
	}
	date, err := p.parseDate()
	if err != nil {
		return directives.SetRange(&dir, p.Range()), p.Annotate(err)
	}
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&dir, p.Range()), p.Annotate(err)
	}
	if p.Current() == '*' || p.Current() == '!' || p.Current() == 't' {
		if p.Current() != 't' || p.lookingAt("txn") {
			if dir.Directive, err = p.parseTransaction(date); err != nil {
				return directives.SetRange(&dir, p.Range()), p.Annotate(err)
			}
			return directives.SetRange(&dir, p.Range()), nil
		}
	}
	keyword, err := p.ReadWhile1("a directive keyword", unicode.IsLower)
	if err != nil {
		return directives.SetRange(&dir, p.Range()), p.Annotate(err)
	}
	switch kw := keyword.Extract(); kw {
	case "open":
		dir.Directive, err = p.parseOpen(date)
	case "close":
		dir.Directive, err = p.parseClose(date)
	case "price":
		dir.Directive, err = p.parsePrice(date)
	default:
		if !contains(ignoredKeywords, kw) {
			err = fmt.Errorf("unknown directive %q", kw)
			break
		}
		dir.Directive, err = p.parseIgnored(date, keyword)
	}
	if err != nil {
		return directives.SetRange(&dir, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&dir, p.Range()), nil
}

func (p *Parser) parseOption() (directives.Option, error) {
	p.RangeContinue("parsing `option` directive")
	defer p.RangeEnd()
	var (
		option directives.Option
		err    error
	)
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&option, p.Range()), p.Annotate(err)
	}
	if option.Key, err = p.parseQuotedString(); err != nil {
		return directives.SetRange(&option, p.Range()), p.Annotate(err)
	}
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&option, p.Range()), p.Annotate(err)
	}
	if option.Value, err = p.parseQuotedString(); err != nil {
		return directives.SetRange(&option, p.Range()), p.Annotate(err)
	}
	if err := p.readRestOfLine(); err != nil {
		return directives.SetRange(&option, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&option, p.Range()), nil
}

func (p *Parser) parseInclude() (directives.Include, error) {
	p.RangeContinue("parsing `include` directive")
	defer p.RangeEnd()
	var (
		include directives.Include
		err     error
	)
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&include, p.Range()), p.Annotate(err)
	}
	if include.IncludePath, err = p.parseQuotedString(); err != nil {
		return directives.SetRange(&include, p.Range()), p.Annotate(err)
	}
	if err := p.readRestOfLine(); err != nil {
		return directives.SetRange(&include, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&include, p.Range()), nil
}

func (p *Parser) parsePlugin() (directives.Plugin, error) {
	p.RangeContinue("parsing `plugin` directive")
	defer p.RangeEnd()
	var (
		plugin directives.Plugin
		err    error
	)
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&plugin, p.Range()), p.Annotate(err)
	}
	if plugin.Module, err = p.parseQuotedString(); err != nil {
		return directives.SetRange(&plugin, p.Range()), p.Annotate(err)
	}
	if _, err := p.ReadWhile(isWhitespace); err != nil {
		return directives.SetRange(&plugin, p.Range()), p.Annotate(err)
	}
	if p.Current() == '"' {
		if plugin.Config, err = p.parseQuotedString(); err != nil {
			return directives.SetRange(&plugin, p.Range()), p.Annotate(err)
		}
	}
	if err := p.readRestOfLine(); err != nil {
		return directives.SetRange(&plugin, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&plugin, p.Range()), nil
}

func (p *Parser) parseOpen(date directives.Date) (directives.Open, error) {
	p.RangeContinue("parsing `open` directive")
	defer p.RangeEnd()
	var (
		open = directives.Open{Date: date}
		err  error
	)
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&open, p.Range()), p.Annotate(err)
	}
	if open.Account, err = p.parseAccount(); err != nil {
		return directives.SetRange(&open, p.Range()), p.Annotate(err)
	}
	if _, err := p.ReadWhile(isWhitespace); err != nil {
		return directives.SetRange(&open, p.Range()), p.Annotate(err)
	}
	for isCurrencyStart(p.Current()) {
		c, err := p.parseCurrency()
		if err != nil {
			return directives.SetRange(&open, p.Range()), p.Annotate(err)
		}
		open.Currencies = append(open.Currencies, c)
		if _, err := p.ReadWhile(isWhitespace); err != nil {
			return directives.SetRange(&open, p.Range()), p.Annotate(err)
		}
		if p.Current() != ',' {
			break
		}
		if _, err := p.ReadCharacter(','); err != nil {
			return directives.SetRange(&open, p.Range()), p.Annotate(err)
		}
		if _, err := p.ReadWhile(isWhitespace); err != nil {
			return directives.SetRange(&open, p.Range()), p.Annotate(err)
		}
	}
	if p.Current() == '"' {
		if open.Booking, err = p.parseQuotedString(); err != nil {
			return directives.SetRange(&open, p.Range()), p.Annotate(err)
		}
	}
	if err := p.readRestOfLine(); err != nil {
		return directives.SetRange(&open, p.Range()), p.Annotate(err)
	}
	if err := p.skipMetadata(); err != nil {
		return directives.SetRange(&open, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&open, p.Range()), nil
}

func (p *Parser) parseClose(date directives.Date) (directives.Close, error) {
	p.RangeContinue("parsing `close` directive")
	defer p.RangeEnd()
	var (
		close = directives.Close{Date: date}
		err   error
	)
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&close, p.Range()), p.Annotate(err)
	}
	if close.Account, err = p.parseAccount(); err != nil {
		return directives.SetRange(&close, p.Range()), p.Annotate(err)
	}
	if err := p.readRestOfLine(); err != nil {
		return directives.SetRange(&close, p.Range()), p.Annotate(err)
	}
	if err := p.skipMetadata(); err != nil {
		return directives.SetRange(&close, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&close, p.Range()), nil
}

func (p *Parser) parsePrice(date directives.Date) (directives.Price, error) {
	p.RangeContinue("parsing `price` directive")
	defer p.RangeEnd()
	var (
		price = directives.Price{Date: date}
		err   error
	)
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&price, p.Range()), p.Annotate(err)
	}
	if price.Commodity, err = p.parseCurrency(); err != nil {
		return directives.SetRange(&price, p.Range()), p.Annotate(err)
	}
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&price, p.Range()), p.Annotate(err)
	}
	if price.Price, err = p.parseDecimal(); err != nil {
		return directives.SetRange(&price, p.Range()), p.Annotate(err)
	}
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&price, p.Range()), p.Annotate(err)
	}
	if price.Target, err = p.parseCurrency(); err != nil {
		return directives.SetRange(&price, p.Range()), p.Annotate(err)
	}
	if err := p.readRestOfLine(); err != nil {
		return directives.SetRange(&price, p.Range()), p.Annotate(err)
	}
	if err := p.skipMetadata(); err != nil {
		return directives.SetRange(&price, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&price, p.Range()), nil
}

func (p *Parser) parseIgnored(date directives.Date, keyword directives.Range) (directives.Ignored, error) {
	p.RangeContinue(fmt.Sprintf("parsing `%s` directive", keyword.Extract()))
	defer p.RangeEnd()
	ignored := directives.Ignored{Date: date, Keyword: keyword}
	if err := p.SkipLine(); err != nil {
		return directives.SetRange(&ignored, p.Range()), p.Annotate(err)
	}
	if err := p.skipMetadata(); err != nil {
		return directives.SetRange(&ignored, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&ignored, p.Range()), nil
}

func (p *Parser) parseTransaction(date directives.Date) (directives.Transaction, error) {
	p.RangeContinue("parsing transaction")
	defer p.RangeEnd()
	var (
		trx = directives.Transaction{Date: date}
		err error
	)
	if p.Current() == 't' {
		trx.Flag.Range, err = p.ReadString("txn")
	} else {
		trx.Flag.Range, err = p.ReadCharacterWith("a flag", isFlag)
	}
	if err != nil {
		return directives.SetRange(&trx, p.Range()), p.Annotate(err)
	}
	var strs []directives.QuotedString
	for {
		if _, err := p.ReadWhile(isWhitespace); err != nil {
			return directives.SetRange(&trx, p.Range()), p.Annotate(err)
		}
		switch p.Current() {
		case '"':
			if len(strs) == 2 {
				return directives.SetRange(&trx, p.Range()), p.Annotate(fmt.Errorf("too many strings"))
			}
			s, err := p.parseQuotedString()
			if err != nil {
				return directives.SetRange(&trx, p.Range()), p.Annotate(err)
			}
			strs = append(strs, s)
			continue
		case '#':
			tag, err := p.parseTagOrLink('#')
			if err != nil {
				return directives.SetRange(&trx, p.Range()), p.Annotate(err)
			}
			trx.Tags = append(trx.Tags, directives.Tag{Range: tag})
			continue
		case '^':
			link, err := p.parseTagOrLink('^')
			if err != nil {
				return directives.SetRange(&trx, p.Range()), p.Annotate(err)
			}
			trx.Links = append(trx.Links, directives.Link{Range: link})
			continue
		}
		break
	}
	switch len(strs) {
	case 1:
		trx.Narration = strs[0]
	case 2:
		trx.Payee, trx.Narration = strs[0], strs[1]
	}
	if err := p.readRestOfLine(); err != nil {
		return directives.SetRange(&trx, p.Range()), p.Annotate(err)
	}
	for isWhitespace(p.Current()) {
		if _, err := p.ReadWhile(isWhitespace); err != nil {
			return directives.SetRange(&trx, p.Range()), p.Annotate(err)
		}
		switch {
		case isNewlineOrEOF(p.Current()) || p.Current() == ';':
			if err := p.SkipLine(); err != nil {
				return directives.SetRange(&trx, p.Range()), p.Annotate(err)
			}
		case unicode.IsLower(p.Current()):
			m, err := p.parseMetadata()
			if err != nil {
				return directives.SetRange(&trx, p.Range()), p.Annotate(err)
			}
			trx.Metadata = append(trx.Metadata, m)
		default:
			posting, err := p.parsePosting()
			if err != nil {
				return directives.SetRange(&trx, p.Range()), p.Annotate(err)
			}
			trx.Postings = append(trx.Postings, posting)
		}
	}
	return directives.SetRange(&trx, p.Range()), nil
}

func (p *Parser) parseMetadata() (directives.Metadata, error) {
	p.RangeStart("parsing metadata")
	defer p.RangeEnd()
	var (
		m   directives.Metadata
		err error
	)
	if m.Key, err = p.ReadWhile1("a metadata key", isMetadataKey); err != nil {
		return directives.SetRange(&m, p.Range()), p.Annotate(err)
	}
	if _, err := p.ReadCharacter(':'); err != nil {
		return directives.SetRange(&m, p.Range()), p.Annotate(err)
	}
	if _, err := p.ReadWhile(isWhitespace); err != nil {
		return directives.SetRange(&m, p.Range()), p.Annotate(err)
	}
	if m.Value, err = p.ReadWhile(func(r rune) bool { return !isNewlineOrEOF(r) }); err != nil {
		return directives.SetRange(&m, p.Range()), p.Annotate(err)
	}
	if err := p.SkipLine(); err != nil {
		return directives.SetRange(&m, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&m, p.Range()), nil
}

func (p *Parser) parsePosting() (directives.Posting, error) {
	p.RangeStart("parsing posting")
	defer p.RangeEnd()
	var (
		posting directives.Posting
		err     error
	)
	if isFlag(p.Current()) {
		if posting.Flag.Range, err = p.ReadCharacterWith("a flag", isFlag); err != nil {
			return directives.SetRange(&posting, p.Range()), p.Annotate(err)
		}
		if _, err := p.readWhitespace1(); err != nil {
			return directives.SetRange(&posting, p.Range()), p.Annotate(err)
		}
	}
	if posting.Account, err = p.parseAccount(); err != nil {
		return directives.SetRange(&posting, p.Range()), p.Annotate(err)
	}
	if _, err := p.ReadWhile(isWhitespace); err != nil {
		return directives.SetRange(&posting, p.Range()), p.Annotate(err)
	}
	if isDecimalStart(p.Current()) {
		if posting.Amount, err = p.parseAmount(); err != nil {
			return directives.SetRange(&posting, p.Range()), p.Annotate(err)
		}
		if _, err := p.ReadWhile(isWhitespace); err != nil {
			return directives.SetRange(&posting, p.Range()), p.Annotate(err)
		}
	}
	if p.Current() == '{' {
		if posting.Cost, err = p.parseCost(); err != nil {
			return directives.SetRange(&posting, p.Range()), p.Annotate(err)
		}
		if _, err := p.ReadWhile(isWhitespace); err != nil {
			return directives.SetRange(&posting, p.Range()), p.Annotate(err)
		}
	}
	if p.Current() == '@' {
		if posting.Price, err = p.parsePriceAnnotation(); err != nil {
			return directives.SetRange(&posting, p.Range()), p.Annotate(err)
		}
	}
	if err := p.readRestOfLine(); err != nil {
		return directives.SetRange(&posting, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&posting, p.Range()), nil
}

func (p *Parser) parseCost() (directives.Range, error) {
	p.RangeStart("parsing cost")
	defer p.RangeEnd()
	if _, err := p.ReadCharacter('{'); err != nil {
		return p.Range(), p.Annotate(err)
	}
	if _, err := p.ReadWhile(func(r rune) bool { return r != '}' && !isNewline(r) }); err != nil {
		return p.Range(), p.Annotate(err)
	}
	if _, err := p.ReadCharacter('}'); err != nil {
		return p.Range(), p.Annotate(err)
	}
	// `{{...}}` total costs
	if _, err := p.ReadCharacterOpt('}'); err != nil {
		return p.Range(), p.Annotate(err)
	}
	return p.Range(), nil
}

func (p *Parser) parsePriceAnnotation() (directives.PriceAnnotation, error) {
	p.RangeStart("parsing price annotation")
	defer p.RangeEnd()
	var (
		price directives.PriceAnnotation
		err   error
	)
	r, err := p.ReadAlternative([]string{"@@", "@"})
	if err != nil {
		return directives.SetRange(&price, p.Range()), p.Annotate(err)
	}
	price.Total = r.Length() == 2
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&price, p.Range()), p.Annotate(err)
	}
	if price.Amount, err = p.parseAmount(); err != nil {
		return directives.SetRange(&price, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&price, p.Range()), nil
}

func (p *Parser) parseAmount() (directives.Amount, error) {
	p.RangeStart("parsing amount")
	defer p.RangeEnd()
	var (
		amount directives.Amount
		err    error
	)
	if amount.Quantity, err = p.parseDecimal(); err != nil {
		return directives.SetRange(&amount, p.Range()), p.Annotate(err)
	}
	if _, err := p.readWhitespace1(); err != nil {
		return directives.SetRange(&amount, p.Range()), p.Annotate(err)
	}
	if amount.Currency, err = p.parseCurrency(); err != nil {
		return directives.SetRange(&amount, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&amount, p.Range()), nil
}

func (p *Parser) parseCurrency() (directives.Currency, error) {
	p.RangeStart("parsing currency")
	defer p.RangeEnd()
	var currency directives.Currency
	if _, err := p.ReadCharacterWith("an uppercase letter", isCurrencyStart); err != nil {
		return directives.SetRange(&currency, p.Range()), p.Annotate(err)
	}
	if _, err := p.ReadWhile(isCurrencyRune); err != nil {
		return directives.SetRange(&currency, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&currency, p.Range()), nil
}

func (p *Parser) parseDecimal() (directives.Decimal, error) {
	p.RangeStart("parsing decimal")
	defer p.RangeEnd()
	if p.Current() == '-' || p.Current() == '+' {
		if _, err := p.ReadCharacterWith("a sign", func(r rune) bool { return r == '-' || r == '+' }); err != nil {
			return directives.Decimal{Range: p.Range()}, p.Annotate(err)
		}
	}
	if _, err := p.ReadWhile1("a digit", unicode.IsDigit); err != nil {
		return directives.Decimal{Range: p.Range()}, p.Annotate(err)
	}
	if _, err := p.ReadWhile(func(r rune) bool { return unicode.IsDigit(r) || r == ',' }); err != nil {
		return directives.Decimal{Range: p.Range()}, p.Annotate(err)
	}
	if p.Current() != '.' {
		return directives.Decimal{Range: p.Range()}, nil
	}
	if _, err := p.ReadCharacter('.'); err != nil {
		return directives.Decimal{Range: p.Range()}, p.Annotate(err)
	}
	if _, err := p.ReadWhile(unicode.IsDigit); err != nil {
		return directives.Decimal{Range: p.Range()}, p.Annotate(err)
	}
	return directives.Decimal{Range: p.Range()}, nil
}

func (p *Parser) parseAccount() (directives.Account, error) {
	p.RangeStart("parsing account")
	defer p.RangeEnd()
	if _, err := p.ReadCharacterWith("a letter", unicode.IsLetter); err != nil {
		return directives.Account{Range: p.Range()}, p.Annotate(err)
	}
	if _, err := p.ReadWhile(isAccountRune); err != nil {
		return directives.Account{Range: p.Range()}, p.Annotate(err)
	}
	return directives.Account{Range: p.Range()}, nil
}

func (p *Parser) parseTagOrLink(prefix rune) (directives.Range, error) {
	p.RangeStart("parsing tag or link")
	defer p.RangeEnd()
	if _, err := p.ReadCharacter(prefix); err != nil {
		return p.Range(), p.Annotate(err)
	}
	r, err := p.ReadWhile1("a tag character", isTagRune)
	if err != nil {
		return r, p.Annotate(err)
	}
	return r, nil
}

func (p *Parser) parseDate() (directives.Date, error) {
	p.RangeStart("parsing the date")
	defer p.RangeEnd()
	for i := 0; i < 4; i++ {
		if _, err := p.ReadCharacterWith("a digit", unicode.IsDigit); err != nil {
			return directives.Date{Range: p.Range()}, p.Annotate(err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := p.ReadCharacter('-'); err != nil {
			return directives.Date{Range: p.Range()}, p.Annotate(err)
		}
		for j := 0; j < 2; j++ {
			if _, err := p.ReadCharacterWith("a digit", unicode.IsDigit); err != nil {
				return directives.Date{Range: p.Range()}, p.Annotate(err)
			}
		}
	}
	return directives.Date{Range: p.Range()}, nil
}

func (p *Parser) parseQuotedString() (directives.QuotedString, error) {
	p.RangeStart("parsing quoted string")
	defer p.RangeEnd()
	var qs directives.QuotedString
	if _, err := p.ReadCharacter('"'); err != nil {
		return directives.SetRange(&qs, p.Range()), p.Annotate(err)
	}
	start := p.Offset()
	escaped := false
	for escaped || p.Current() != '"' {
		if isNewlineOrEOF(p.Current()) {
			return directives.SetRange(&qs, p.Range()), p.Annotate(fmt.Errorf("unterminated string"))
		}
		escaped = !escaped && p.Current() == '\\'
		if err := p.Advance(); err != nil {
			return directives.SetRange(&qs, p.Range()), p.Annotate(err)
		}
	}
	qs.Content = p.Range()
	qs.Content.Start = start
	if _, err := p.ReadCharacter('"'); err != nil {
		return directives.SetRange(&qs, p.Range()), p.Annotate(err)
	}
	return directives.SetRange(&qs, p.Range()), nil
}

// skipMetadata consumes indented lines following a directive.
func (p *Parser) skipMetadata() error {
	for isWhitespace(p.Current()) {
		if err := p.SkipLine(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) readWhitespace1() (directives.Range, error) {
	return p.ReadWhile1("whitespace", isWhitespace)
}

// readRestOfLine consumes trailing whitespace, an optional comment and the
// newline.
func (p *Parser) readRestOfLine() error {
	if _, err := p.ReadWhile(isWhitespace); err != nil {
		return err
	}
	if p.Current() == ';' {
		if _, err := p.ReadWhile(func(r rune) bool { return !isNewline(r) }); err != nil {
			return err
		}
	}
	if p.Current() == scanner.EOF {
		return nil
	}
	_, err := p.ReadCharacter('\n')
	return err
}

func (p *Parser) lookingAt(s string) bool {
	rest := p.Range().Text[p.Offset():]
	return len(rest) >= len(s) && rest[:len(s)] == s
}

func contains(ss []string, s string) bool {
	for _, c := range ss {
		if c == s {
			return true
		}
	}
	return false
}

func isWhitespace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\r'
}

func isNewline(ch rune) bool {
	return ch == '\n'
}

func isNewlineOrEOF(ch rune) bool {
	return ch == '\n' || ch == scanner.EOF || ch == '\r'
}

func isCommentStart(ch rune) bool {
	switch ch {
	case ';', '*', '#', '%', '|', '&', '!', ':':
		return true
	}
	return false
}

func isFlag(ch rune) bool {
	return ch == '*' || ch == '!'
}

func isAccountRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == ':' || ch == '_' || ch == '-'
}

func isCurrencyStart(ch rune) bool {
	return ch >= 'A' && ch <= 'Z'
}

func isCurrencyRune(ch rune) bool {
	return isCurrencyStart(ch) || unicode.IsDigit(ch) || ch == '\'' || ch == '.' || ch == '_' || ch == '-'
}

func isDecimalStart(ch rune) bool {
	return unicode.IsDigit(ch) || ch == '-' || ch == '+'
}

func isTagRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '-' || ch == '_' || ch == '/' || ch == '.'
}

func isMetadataKey(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '-' || ch == '_'
}
