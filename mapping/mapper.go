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

package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aaronlmathis/lakepipe/core"
)

// Report describes what a mapping did to a table besides renaming.
type Report struct {
	Rows            int
	DroppedValues   map[string]int            // Values replaced by null, per target column
	Errors          []*core.TypeCoercionError // The first coercion failures, in row order per column
	DroppedColumns  []string                  // Entirely null target columns removed from the output
	MissingColumns  []string                  // Mapped sources absent from the input, filled with nulls
	UnmappedColumns []string                  // Input columns no mapping refers to
}

// TotalDropped returns the number of values replaced by null across all columns.
func (r *Report) TotalDropped() int {
	n := 0
	for _, c := range r.DroppedValues {
		n += c
	}
	return n
}

// Err joins the recorded coercion failures, or returns nil when there were none.
func (r *Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Options configures a Mapper.
type Options struct {
	DropNullFields    bool // Remove target columns that are null in every row
	MaxReportedErrors int  // Coercion failures kept in the report; counts are always complete
}

// Option represents a configuration function for Options.
type Option func(*Options)

// WithDropNullFields removes columns that end up null in every row.
func WithDropNullFields(drop bool) Option {
	return func(opts *Options) {
		opts.DropNullFields = drop
	}
}

func WithMaxReportedErrors(n int) Option {
	return func(opts *Options) {
		opts.MaxReportedErrors = n
	}
}

// Mapper applies an ordered list of mappings to tables.
type Mapper struct {
	mappings []Mapping
	opts     Options
}

// NewMapper validates mappings and returns a Mapper. Two mappings may read the same source but
// may not write the same target.
func NewMapper(mappings []Mapping, options ...Option) (*Mapper, error) {
	opts := Options{MaxReportedErrors: 100}
	for _, option := range options {
		option(&opts)
	}
	if len(mappings) == 0 {
		return nil, errors.New("no mappings")
	}
	targets := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		if m.Source == "" || m.Target == "" {
			return nil, fmt.Errorf("mapping %s: source and target names are required", m)
		}
		for _, t := range []core.DataType{m.SourceType, m.TargetType} {
			if _, err := core.ParseDataType(string(t)); err != nil {
				return nil, fmt.Errorf("mapping %s: %w", m, err)
			}
		}
		key := strings.ToLower(m.Target)
		if targets[key] {
			return nil, fmt.Errorf("target column %q is mapped twice", m.Target)
		}
		targets[key] = true
	}
	return &Mapper{mappings: append([]Mapping(nil), mappings...), opts: opts}, nil
}

// Mappings returns the mapper's mappings.
func (m *Mapper) Mappings() []Mapping {
	return append([]Mapping(nil), m.mappings...)
}

// Apply returns a new table with one column per mapping, in mapping order.
//
// A source column is cast to its source type and then to its target type, unless a value
// already holds the target type. A value failing either cast becomes null and is reported as a
// core.TypeCoercionError. When the source column is absent but the target column exists, the
// target column is taken as already mapped and is only cast to its target type. Either way,
// applying a mapper to its own output changes nothing. When neither exists the target is an
// all-null column. Input columns no mapping mentions are dropped.
func (m *Mapper) Apply(t *core.Table) (*core.Table, *Report, error) {
	if t == nil {
		return nil, nil, errors.New("table is nil")
	}

	n := t.NumRows()
	out := core.NewTable()
	out.Rows = make([]core.Record, n)
	for i := range out.Rows {
		out.Rows[i] = make(core.Record)
	}
	report := &Report{Rows: n, DroppedValues: make(map[string]int)}
	used := make(map[string]bool)

	for _, mp := range m.mappings {
		out.AddColumn(core.Column{Name: mp.Target, Type: mp.TargetType})

		var stages []core.DataType
		var from string
		switch {
		case t.HasColumn(mp.Source):
			from, stages = mp.Source, []core.DataType{mp.SourceType, mp.TargetType}
		case t.HasColumn(mp.Target):
			from, stages = mp.Target, []core.DataType{mp.TargetType}
		default:
			report.MissingColumns = append(report.MissingColumns, mp.Source)
			for i := range out.Rows {
				out.Rows[i][mp.Target] = nil
			}
			continue
		}
		used[from] = true

		for i, row := range t.Rows {
			v, err := castThrough(row[from], stages)
			if err != nil {
				report.DroppedValues[mp.Target]++
				if len(report.Errors) < m.opts.MaxReportedErrors {
					report.Errors = append(report.Errors, &core.TypeCoercionError{
						Column: from, Row: i, Value: row[from], Target: mp.TargetType, Err: err,
					})
				}
				v = nil
			}
			out.Rows[i][mp.Target] = v
		}
	}

	for _, c := range t.Columns {
		if !used[c.Name] {
			report.UnmappedColumns = append(report.UnmappedColumns, c.Name)
		}
	}

	// With no rows every column is null; dropping them would also remove the partition keys.
	if m.opts.DropNullFields && n > 0 {
		for _, name := range out.ColumnNames() {
			if out.IsNullColumn(name) {
				out.DropColumn(name)
				report.DroppedColumns = append(report.DroppedColumns, name)
			}
		}
	}
	return out, report, nil
}

// castThrough casts v through each stage in turn. A value already holding the final type's
// representation is left alone, so output of an earlier Apply is never cast back through the
// source type. Strings are always cast: a raw string must still satisfy the source type.
func castThrough(v interface{}, stages []core.DataType) (interface{}, error) {
	final := stages[len(stages)-1]
	if final != core.TypeString && Conforms(v, final) {
		return v, nil
	}
	for _, dt := range stages {
		c, err := Cast(v, dt)
		if err != nil {
			return nil, err
		}
		v = c
	}
	return v, nil
}
