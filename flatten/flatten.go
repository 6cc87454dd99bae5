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

package flatten

import (
	"errors"
	"fmt"

	"github.com/aaronlmathis/lakepipe/core"
)

// Package flatten turns semi-structured records into a table by expanding one nested list.
//
// Every item of the list becomes a row. Object members become columns named by their path,
// joined with the separator ("snippet.title"). Columns appear in the order their paths are
// first seen. Lists found inside an item are kept whole as their JSON text. No value is
// converted: a column holding both numbers and strings stays that way until a later stage
// resolves it.

// DefaultField is the nested list expanded when no field is configured.
const DefaultField = "items"

// Options configures Flatten.
type Options struct {
	Separator string // Joins nested member names; "." by default
}

// Option represents a configuration function for Options.
type Option func(*Options)

// WithSeparator sets the string joining nested member names.
func WithSeparator(sep string) Option {
	return func(opts *Options) {
		opts.Separator = sep
	}
}

// Flatten expands records[i].field into rows. The result has one row per list item across all
// records, so its row count is the sum of the list lengths. A record that is not an object, or
// whose field is missing or not a list, fails with core.SchemaShapeError.
func Flatten(records []core.Value, field string, options ...Option) (*core.Table, error) {
	opts := Options{Separator: "."}
	for _, option := range options {
		option(&opts)
	}
	if field == "" {
		field = DefaultField
	}

	f := &flattener{
		sep:   opts.Separator,
		field: field,
		table: core.NewTable(),
		seen:  make(map[string]bool),
	}
	for i, rec := range records {
		if rec.Kind != core.KindObject {
			return nil, &core.SchemaShapeError{Field: field, Record: i, Err: fmt.Errorf("record is %s, not an object", rec.Kind)}
		}
		nested, ok := rec.Get(field)
		if !ok {
			return nil, &core.SchemaShapeError{Field: field, Record: i, Err: errors.New("field is missing")}
		}
		if nested.Kind != core.KindList {
			return nil, &core.SchemaShapeError{Field: field, Record: i, Err: fmt.Errorf("field is %s, not a list", nested.Kind)}
		}
		for _, item := range nested.Items {
			row := make(core.Record)
			if err := f.item(row, item); err != nil {
				return nil, &core.SchemaShapeError{Field: field, Record: i, Err: err}
			}
			f.table.AppendRow(row)
		}
	}
	return f.table, nil
}

type flattener struct {
	sep   string
	field string
	table *core.Table
	seen  map[string]bool
}

func (f *flattener) column(name string) {
	if f.seen[name] {
		return
	}
	f.seen[name] = true
	f.table.Columns = append(f.table.Columns, core.Column{Name: name, Type: core.TypeString})
}

// item flattens one list member. Members that are not objects fill a single column named
// after the list field.
func (f *flattener) item(row core.Record, item core.Value) error {
	if item.Kind == core.KindObject {
		return f.object(row, "", item)
	}
	return f.cell(row, f.field, item)
}

func (f *flattener) object(row core.Record, prefix string, obj core.Value) error {
	for _, member := range obj.Fields {
		name := member.Name
		if prefix != "" {
			name = prefix + f.sep + member.Name
		}
		if member.Value.Kind == core.KindObject {
			if err := f.object(row, name, member.Value); err != nil {
				return err
			}
			continue
		}
		if err := f.cell(row, name, member.Value); err != nil {
			return err
		}
	}
	return nil
}

// cell stores a leaf. The last value wins when two paths flatten to the same name.
func (f *flattener) cell(row core.Record, name string, v core.Value) error {
	f.column(name)
	switch v.Kind {
	case core.KindNull:
		row[name] = nil
	case core.KindScalar:
		row[name] = v.Scalar
	case core.KindList:
		text, err := v.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode list %s: %w", name, err)
		}
		row[name] = string(text)
	default:
		return fmt.Errorf("unexpected %s value at %s", v.Kind, name)
	}
	return nil
}
