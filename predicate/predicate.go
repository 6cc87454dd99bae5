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
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aaronlmathis/lakepipe/core"
	"github.com/aaronlmathis/lakepipe/filter"
)

// Package predicate parses partition predicates such as
//
//	region in ('ca','gb','us') AND year >= 2018
//
// A parsed Expr renders a canonical expression accepted by catalog partition APIs, compiles
// to a record filter, and can be evaluated directly against a partition's key/value pairs.

// Expr is a parsed predicate.
type Expr interface {
	// String renders the canonical expression text.
	String() string
	// Filter compiles the expression into a record filter over partition columns.
	Filter() core.Filter
	columns(into map[string]bool)
}

// Literal is a constant operand.
type Literal struct {
	Text   string
	Quoted bool
}

func (l Literal) String() string {
	if !l.Quoted {
		return l.Text
	}
	return "'" + strings.ReplaceAll(l.Text, "'", "''") + "'"
}

// Comparison is "column op value".
type Comparison struct {
	Column string
	Op     filter.Op
	Value  Literal
}

// InList is "column [NOT] IN (values...)".
type InList struct {
	Column  string
	Values  []Literal
	Negated bool
}

// And is the conjunction of two expressions.
type And struct{ Left, Right Expr }

// Or is the disjunction of two expressions.
type Or struct{ Left, Right Expr }

// Not negates an expression.
type Not struct{ Inner Expr }

func (c *Comparison) String() string {
	op := string(c.Op)
	if c.Op == filter.OpNe {
		op = "<>"
	}
	return fmt.Sprintf("%s %s %s", c.Column, op, c.Value)
}

func (c *Comparison) Filter() core.Filter {
	return filter.Compare(c.Column, c.Op, c.Value.Text)
}

func (c *Comparison) columns(into map[string]bool) { into[c.Column] = true }

func (in *InList) String() string {
	vals := make([]string, len(in.Values))
	for i, v := range in.Values {
		vals[i] = v.String()
	}
	kw := "IN"
	if in.Negated {
		kw = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", in.Column, kw, strings.Join(vals, ", "))
}

func (in *InList) Filter() core.Filter {
	vals := make([]interface{}, len(in.Values))
	for i, v := range in.Values {
		vals[i] = v.Text
	}
	f := filter.In(in.Column, vals...)
	if in.Negated {
		return filter.And(filter.NotNull(in.Column), filter.Not(f))
	}
	return f
}

func (in *InList) columns(into map[string]bool) { into[in.Column] = true }

func (a *And) String() string {
	return wrapOr(a.Left) + " AND " + wrapOr(a.Right)
}

func (a *And) Filter() core.Filter { return filter.And(a.Left.Filter(), a.Right.Filter()) }

func (a *And) columns(into map[string]bool) {
	a.Left.columns(into)
	a.Right.columns(into)
}

func (o *Or) String() string { return o.Left.String() + " OR " + o.Right.String() }

func (o *Or) Filter() core.Filter { return filter.Or(o.Left.Filter(), o.Right.Filter()) }

func (o *Or) columns(into map[string]bool) {
	o.Left.columns(into)
	o.Right.columns(into)
}

func (n *Not) String() string { return "NOT (" + n.Inner.String() + ")" }

func (n *Not) Filter() core.Filter { return filter.Not(n.Inner.Filter()) }

func (n *Not) columns(into map[string]bool) { n.Inner.columns(into) }

func wrapOr(e Expr) string {
	if _, ok := e.(*Or); ok {
		return "(" + e.String() + ")"
	}
	return e.String()
}

// Columns returns the sorted set of columns an expression references.
func Columns(e Expr) []string {
	set := make(map[string]bool)
	e.columns(set)
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Match evaluates the expression against one partition's key/value pairs.
func Match(e Expr, values map[string]string) (bool, error) {
	rec := make(core.Record, len(values))
	for k, v := range values {
		rec[k] = v
	}
	return e.Filter().ShouldInclude(context.Background(), rec)
}

// Restrict fails when e references a column outside allowed.
func Restrict(e Expr, allowed []string) error {
	ok := make(map[string]bool, len(allowed))
	for _, c := range allowed {
		ok[strings.ToLower(c)] = true
	}
	var unknown []string
	for _, c := range Columns(e) {
		if !ok[strings.ToLower(c)] {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("predicate references non-partition columns %s (partition keys: %s)",
			strings.Join(unknown, ", "), strings.Join(allowed, ", "))
	}
	return nil
}

// Parse parses a predicate. Keywords are case-insensitive.
func Parse(input string) (Expr, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, p.fail("empty predicate")
	}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.fail("unexpected %q", p.peek().text)
	}
	return e, nil
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) fail(format string, args ...interface{}) error {
	return &SyntaxError{Input: p.input, Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokEOF:
		return nil, p.fail("unexpected end of predicate")
	case tokLParen:
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.fail("expected ')'")
		}
		p.next()
		return e, nil
	case tokIdent:
		p.next()
		return p.parseCondition(t.text)
	default:
		return nil, p.fail("expected column name, got %q", t.text)
	}
}

func (p *parser) parseCondition(column string) (Expr, error) {
	switch p.peek().kind {
	case tokOp:
		op := filter.Op(p.next().text)
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Comparison{Column: column, Op: op, Value: lit}, nil
	case tokNot:
		p.next()
		if p.peek().kind != tokIn {
			return nil, p.fail("expected IN after NOT")
		}
		p.next()
		vals, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &InList{Column: column, Values: vals, Negated: true}, nil
	case tokIn:
		p.next()
		vals, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &InList{Column: column, Values: vals}, nil
	default:
		return nil, p.fail("expected operator after %q", column)
	}
}

func (p *parser) parseList() ([]Literal, error) {
	if p.peek().kind != tokLParen {
		return nil, p.fail("expected '(' after IN")
	}
	p.next()
	var vals []Literal
	for {
		// A bare word in a value list is a string: region in (ca, gb) means ('ca', 'gb').
		if t := p.peek(); t.kind == tokIdent {
			p.next()
			vals = append(vals, Literal{Text: t.text, Quoted: true})
		} else {
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			vals = append(vals, lit)
		}
		switch p.peek().kind {
		case tokComma:
			p.next()
		case tokRParen:
			p.next()
			return vals, nil
		default:
			return nil, p.fail("expected ',' or ')' in value list")
		}
	}
}

func (p *parser) parseLiteral() (Literal, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.next()
		return Literal{Text: t.text, Quoted: true}, nil
	case tokNumber:
		p.next()
		return Literal{Text: t.text}, nil
	default:
		return Literal{}, p.fail("expected a quoted string or number")
	}
}
