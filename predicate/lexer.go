//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of LakePipe.
//
// LakePipe is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// LakePipe is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with LakePipe. If not, see https://www.gnu.org/licenses/.

package predicate

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokAnd
	tokOr
	tokNot
	tokIn
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// SyntaxError reports an unparsable predicate.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("predicate %q: %s at offset %d", e.Input, e.Msg, e.Pos)
}

var keywords = map[string]tokenKind{
	"AND": tokAnd,
	"OR":  tokOr,
	"NOT": tokNot,
	"IN":  tokIn,
}

func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0
	fail := func(pos int, format string, args ...interface{}) error {
		return &SyntaxError{Input: input, Pos: pos, Msg: fmt.Sprintf(format, args...)}
	}

	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i})
			i++
		case r == '=':
			tokens = append(tokens, token{kind: tokOp, text: "=", pos: i})
			i++
		case r == '!':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokOp, text: "!=", pos: i})
				i += 2
				continue
			}
			return nil, fail(i, "unexpected '!'")
		case r == '<':
			switch {
			case i+1 < len(runes) && runes[i+1] == '=':
				tokens = append(tokens, token{kind: tokOp, text: "<=", pos: i})
				i += 2
			case i+1 < len(runes) && runes[i+1] == '>':
				tokens = append(tokens, token{kind: tokOp, text: "!=", pos: i})
				i += 2
			default:
				tokens = append(tokens, token{kind: tokOp, text: "<", pos: i})
				i++
			}
		case r == '>':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokOp, text: ">=", pos: i})
				i += 2
				continue
			}
			tokens = append(tokens, token{kind: tokOp, text: ">", pos: i})
			i++
		case r == '\'' || r == '"':
			start := i
			var sb strings.Builder
			i++
			closed := false
			for i < len(runes) {
				if runes[i] == r {
					// A doubled quote is an escaped quote.
					if i+1 < len(runes) && runes[i+1] == r {
						sb.WriteRune(r)
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				sb.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, fail(start, "unterminated string")
			}
			tokens = append(tokens, token{kind: tokString, text: sb.String(), pos: start})
		case r == '`':
			start := i
			i++
			for i < len(runes) && runes[i] != '`' {
				i++
			}
			if i >= len(runes) {
				return nil, fail(start, "unterminated quoted identifier")
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[start+1 : i]), pos: start})
			i++
		case r == '-' || unicode.IsDigit(r):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			if text == "-" {
				return nil, fail(start, "unexpected '-'")
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, pos: start})
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || runes[i] == '.' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			text := string(runes[start:i])
			if kind, ok := keywords[strings.ToUpper(text)]; ok {
				tokens = append(tokens, token{kind: kind, text: strings.ToUpper(text), pos: start})
			} else {
				tokens = append(tokens, token{kind: tokIdent, text: text, pos: start})
			}
		default:
			return nil, fail(i, "unexpected character %q", r)
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(runes)})
	return tokens, nil
}
