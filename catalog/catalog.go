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

package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aaronlmathis/lakepipe/core"
)

// Package catalog defines the metadata catalog the pipelines register and discover datasets
// through, with Glue, PostgreSQL and in-memory implementations.

var (
	// ErrNotFound is returned (wrapped) when a database, table or partition does not exist.
	ErrNotFound = errors.New("not found in catalog")
	// ErrAlreadyExists is returned (wrapped) when creating something that exists.
	ErrAlreadyExists = errors.New("already exists in catalog")
)

// Formats understood by readers and writers.
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
	FormatJSON    = "json"
)

// Table is a catalog table definition.
type Table struct {
	Database      string
	Name          string
	Location      string // Storage prefix holding the table's data
	Format        string // FormatParquet, FormatCSV or FormatJSON
	Columns       []core.Column
	PartitionKeys []core.Column
	Parameters    map[string]string
}

// PartitionKeyNames returns the names of the partition keys in order.
func (t *Table) PartitionKeyNames() []string {
	names := make([]string, len(t.PartitionKeys))
	for i, k := range t.PartitionKeys {
		names[i] = k.Name
	}
	return names
}

// IsPartitioned reports whether the table has partition keys.
func (t *Table) IsPartitioned() bool {
	return len(t.PartitionKeys) > 0
}

// Partition is one registered partition of a table.
type Partition struct {
	Values   []string // In partition key order
	Location string
}

// KeyValues pairs the partition's values with the table's partition key names.
func (p Partition) KeyValues(keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for i, k := range keys {
		if i < len(p.Values) {
			out[k] = p.Values[i]
		}
	}
	return out
}

// PartitionID renders values as a stable map key.
func PartitionID(values []string) string {
	return strings.Join(values, "\x00")
}

// Catalog is a metadata catalog.
type Catalog interface {
	GetTable(ctx context.Context, database, table string) (*Table, error)
	// GetPartitions lists partitions matching expression, evaluated by the catalog.
	// An empty expression lists every partition.
	GetPartitions(ctx context.Context, database, table, expression string) ([]Partition, error)
	CreateTable(ctx context.Context, table *Table) error
	UpdateTable(ctx context.Context, table *Table) error
	// AddPartitions registers partitions; ones that already exist are left unchanged.
	AddPartitions(ctx context.Context, database, table string, partitions []Partition) error
	// DeletePartitions removes partitions by values. Missing ones are ignored.
	DeletePartitions(ctx context.Context, database, table string, values [][]string) error
}

// CatalogError wraps catalog backend failures.
type CatalogError struct {
	Op       string
	Database string
	Table    string
	Err      error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s %s.%s: %v", e.Op, e.Database, e.Table, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

func validateTable(t *Table) error {
	if t == nil {
		return errors.New("table is nil")
	}
	if t.Database == "" || t.Name == "" {
		return errors.New("database and table name are required")
	}
	seen := make(map[string]bool)
	for _, c := range append(append([]core.Column{}, t.Columns...), t.PartitionKeys...) {
		key := strings.ToLower(c.Name)
		if seen[key] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[key] = true
	}
	return nil
}

func cloneTable(t *Table) *Table {
	cp := *t
	cp.Columns = append([]core.Column(nil), t.Columns...)
	cp.PartitionKeys = append([]core.Column(nil), t.PartitionKeys...)
	if t.Parameters != nil {
		cp.Parameters = make(map[string]string, len(t.Parameters))
		for k, v := range t.Parameters {
			cp.Parameters[k] = v
		}
	}
	return &cp
}
