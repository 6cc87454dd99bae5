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
	"fmt"
	"sort"
	"sync"

	"github.com/aaronlmathis/lakepipe/predicate"
)

// MemoryCatalog is an in-process Catalog. Partition expressions are evaluated with the
// predicate package, as a remote catalog would before returning anything.
type MemoryCatalog struct {
	mu         sync.RWMutex
	tables     map[string]*Table
	partitions map[string]map[string]Partition
	calls      map[string]int
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		tables:     make(map[string]*Table),
		partitions: make(map[string]map[string]Partition),
		calls:      make(map[string]int),
	}
}

func tableKey(database, table string) string {
	return database + "." + table
}

// Calls returns how many times op ("GetPartitions", "CreateTable", ...) was invoked.
func (m *MemoryCatalog) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

func (m *MemoryCatalog) GetTable(ctx context.Context, database, table string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetTable"]++
	t, ok := m.tables[tableKey(database, table)]
	if !ok {
		return nil, &CatalogError{Op: "get_table", Database: database, Table: table, Err: ErrNotFound}
	}
	return cloneTable(t), nil
}

func (m *MemoryCatalog) GetPartitions(ctx context.Context, database, table, expression string) ([]Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetPartitions"]++
	key := tableKey(database, table)
	t, ok := m.tables[key]
	if !ok {
		return nil, &CatalogError{Op: "get_partitions", Database: database, Table: table, Err: ErrNotFound}
	}

	var expr predicate.Expr
	if expression != "" {
		var err error
		if expr, err = predicate.Parse(expression); err != nil {
			return nil, &CatalogError{Op: "get_partitions", Database: database, Table: table, Err: err}
		}
		if err := predicate.Restrict(expr, t.PartitionKeyNames()); err != nil {
			return nil, &CatalogError{Op: "get_partitions", Database: database, Table: table, Err: err}
		}
	}

	var out []Partition
	for _, p := range m.partitions[key] {
		if expr != nil {
			ok, err := predicate.Match(expr, p.KeyValues(t.PartitionKeyNames()))
			if err != nil {
				return nil, &CatalogError{Op: "get_partitions", Database: database, Table: table, Err: err}
			}
			if !ok {
				continue
			}
		}
		out = append(out, Partition{Values: append([]string(nil), p.Values...), Location: p.Location})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, nil
}

func (m *MemoryCatalog) CreateTable(ctx context.Context, table *Table) error {
	if err := validateTable(table); err != nil {
		return &CatalogError{Op: "create_table", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["CreateTable"]++
	key := tableKey(table.Database, table.Name)
	if _, ok := m.tables[key]; ok {
		return &CatalogError{Op: "create_table", Database: table.Database, Table: table.Name, Err: ErrAlreadyExists}
	}
	m.tables[key] = cloneTable(table)
	m.partitions[key] = make(map[string]Partition)
	return nil
}

func (m *MemoryCatalog) UpdateTable(ctx context.Context, table *Table) error {
	if err := validateTable(table); err != nil {
		return &CatalogError{Op: "update_table", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["UpdateTable"]++
	key := tableKey(table.Database, table.Name)
	if _, ok := m.tables[key]; !ok {
		return &CatalogError{Op: "update_table", Database: table.Database, Table: table.Name, Err: ErrNotFound}
	}
	m.tables[key] = cloneTable(table)
	return nil
}

func (m *MemoryCatalog) AddPartitions(ctx context.Context, database, table string, partitions []Partition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["AddPartitions"]++
	key := tableKey(database, table)
	t, ok := m.tables[key]
	if !ok {
		return &CatalogError{Op: "add_partitions", Database: database, Table: table, Err: ErrNotFound}
	}
	for _, p := range partitions {
		if len(p.Values) != len(t.PartitionKeys) {
			return &CatalogError{Op: "add_partitions", Database: database, Table: table,
				Err: fmt.Errorf("partition has %d values, table has %d keys", len(p.Values), len(t.PartitionKeys))}
		}
		id := PartitionID(p.Values)
		if _, exists := m.partitions[key][id]; exists {
			continue
		}
		m.partitions[key][id] = Partition{Values: append([]string(nil), p.Values...), Location: p.Location}
	}
	return nil
}

func (m *MemoryCatalog) DeletePartitions(ctx context.Context, database, table string, values [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["DeletePartitions"]++
	key := tableKey(database, table)
	if _, ok := m.tables[key]; !ok {
		return &CatalogError{Op: "delete_partitions", Database: database, Table: table, Err: ErrNotFound}
	}
	for _, v := range values {
		delete(m.partitions[key], PartitionID(v))
	}
	return nil
}
