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

package core

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// This file contains Table, the in-memory tabular structure handed from stage to stage, and
// TableSink, which collects a record stream into one.

// Column is a named, typed table column.
type Column struct {
	Name string
	Type DataType
}

// Table is an ordered set of columns plus the rows that populate them.
// Rows may omit a column; a missing entry reads as null.
type Table struct {
	Columns []Column
	Rows    []Record
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...Column) *Table {
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols, Rows: make([]Record, 0)}
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	if i := t.ColumnIndex(name); i >= 0 {
		return t.Columns[i], true
	}
	return Column{}, false
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// AddColumn appends a column, or updates the type of an existing one in place.
func (t *Table) AddColumn(c Column) {
	if i := t.ColumnIndex(c.Name); i >= 0 {
		t.Columns[i].Type = c.Type
		return
	}
	t.Columns = append(t.Columns, c)
}

// DropColumn removes the named column and its values.
func (t *Table) DropColumn(name string) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return
	}
	t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
	for _, row := range t.Rows {
		delete(row, name)
	}
}

// AppendRow adds a row. Keys that are not columns are ignored by writers.
func (t *Table) AppendRow(row Record) {
	t.Rows = append(t.Rows, row)
}

// Values returns the named column's values, one per row.
func (t *Table) Values(name string) []interface{} {
	out := make([]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[name]
	}
	return out
}

// IsNullColumn reports whether every row holds null for the named column.
func (t *Table) IsNullColumn(name string) bool {
	for _, row := range t.Rows {
		if row[name] != nil {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the column list and a shallow copy of each row.
func (t *Table) Clone() *Table {
	out := NewTable(t.Columns...)
	out.Rows = make([]Record, len(t.Rows))
	for i, row := range t.Rows {
		cp := make(Record, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}

// String summarizes the table shape for logs.
func (t *Table) String() string {
	return fmt.Sprintf("table(%d columns, %d rows)", len(t.Columns), len(t.Rows))
}

// InferType picks one column type for a set of observed values.
// Integers widen to double when mixed with floats; any other mix falls back to string.
// An all-null column is typed as string.
func InferType(values []interface{}) DataType {
	var ints, floats, bools, times, strs int
	for _, v := range values {
		switch v.(type) {
		case nil:
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			ints++
		case float32, float64:
			floats++
		case bool:
			bools++
		case time.Time:
			times++
		default:
			strs++
		}
	}
	switch {
	case strs > 0:
		return TypeString
	case ints+floats+bools+times == 0:
		return TypeString
	case bools > 0 && ints+floats+times == 0:
		return TypeBoolean
	case times > 0 && ints+floats+bools == 0:
		return TypeTimestamp
	case bools+times > 0:
		return TypeString
	case floats > 0:
		return TypeDouble
	default:
		return TypeLong
	}
}

// InferColumnTypes sets each column's type from the values it holds.
func (t *Table) InferColumnTypes() {
	for i, c := range t.Columns {
		t.Columns[i].Type = InferType(t.Values(c.Name))
	}
}

// TableSink implements DataSink by collecting records into a Table.
// Columns are added in first-seen order; keys new to a record are added in sorted order
// because a Record carries no key order of its own.
type TableSink struct {
	table    *Table
	declared map[string]bool
	closed   bool
}

// NewTableSink creates a sink. Declared columns keep their types; other columns are inferred
// when Table is called.
func NewTableSink(declared ...Column) *TableSink {
	s := &TableSink{
		table:    NewTable(declared...),
		declared: make(map[string]bool, len(declared)),
	}
	for _, c := range declared {
		s.declared[c.Name] = true
	}
	return s
}

// Write implements DataSink.
func (s *TableSink) Write(ctx context.Context, record Record) error {
	if s.closed {
		return fmt.Errorf("table sink is closed")
	}
	var fresh []string
	for k := range record {
		if !s.table.HasColumn(k) {
			fresh = append(fresh, k)
		}
	}
	sort.Strings(fresh)
	for _, k := range fresh {
		s.table.Columns = append(s.table.Columns, Column{Name: k, Type: TypeString})
	}
	s.table.AppendRow(record)
	return nil
}

// Flush implements DataSink.
func (s *TableSink) Flush() error {
	return nil
}

// Close implements DataSink.
func (s *TableSink) Close() error {
	s.closed = true
	return nil
}

// Table returns the collected table with undeclared column types inferred.
func (s *TableSink) Table() *Table {
	for i, c := range s.table.Columns {
		if !s.declared[c.Name] {
			s.table.Columns[i].Type = InferType(s.table.Values(c.Name))
		}
	}
	return s.table
}
