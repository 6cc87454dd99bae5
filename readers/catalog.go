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

package readers

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aaronlmathis/lakepipe"
	"github.com/aaronlmathis/lakepipe/catalog"
	"github.com/aaronlmathis/lakepipe/core"
	"github.com/aaronlmathis/lakepipe/predicate"
	"github.com/aaronlmathis/lakepipe/storage"
)

var errNotPartitioned = errors.New("table has no partition keys to push a predicate down to")

// CatalogReaderOptions configures the catalog reader.
type CatalogReaderOptions struct {
	Predicate     predicate.Expr     // Partition predicate pushed down to the catalog
	ErrorStrategy core.ErrorStrategy // How malformed records are handled while materializing
	CSVOptions    []ReaderOptionCSV  // Options for CSV-backed tables
	Logger        *zap.Logger
}

// CatalogReaderOption represents a configuration function for CatalogReader.
type CatalogReaderOption func(*CatalogReaderOptions)

// WithPredicate pushes a partition predicate down to the catalog.
func WithPredicate(expr predicate.Expr) CatalogReaderOption {
	return func(opts *CatalogReaderOptions) {
		opts.Predicate = expr
	}
}

func WithErrorStrategy(strategy core.ErrorStrategy) CatalogReaderOption {
	return func(opts *CatalogReaderOptions) {
		opts.ErrorStrategy = strategy
	}
}

func WithCSVOptions(options ...ReaderOptionCSV) CatalogReaderOption {
	return func(opts *CatalogReaderOptions) {
		opts.CSVOptions = options
	}
}

func WithLogger(log *zap.Logger) CatalogReaderOption {
	return func(opts *CatalogReaderOptions) {
		opts.Logger = log
	}
}

// CatalogReader resolves a catalog table and the partitions that satisfy a predicate.
type CatalogReader struct {
	cat      catalog.Catalog
	store    storage.Store
	database string
	table    string
	opts     CatalogReaderOptions
}

// NewCatalogReader creates a reader for database.table.
func NewCatalogReader(cat catalog.Catalog, store storage.Store, database, table string, options ...CatalogReaderOption) *CatalogReader {
	opts := CatalogReaderOptions{ErrorStrategy: core.FailFast, Logger: zap.NewNop()}
	for _, option := range options {
		option(&opts)
	}
	return &CatalogReader{cat: cat, store: store, database: database, table: table, opts: opts}
}

// Dataset is a lazily read table restricted to the partitions that survived pushdown.
type Dataset struct {
	Table      *catalog.Table
	partitions []catalog.Partition
	reader     *CatalogReader
}

// Load resolves the table and its surviving partitions. Only the catalog is consulted;
// no data object is listed or opened. A missing table, a predicate on an unpartitioned
// table, or a predicate naming non-partition columns yields a core.CatalogLookupError.
func (r *CatalogReader) Load(ctx context.Context) (*Dataset, error) {
	t, err := r.cat.GetTable(ctx, r.database, r.table)
	if err != nil {
		return nil, r.lookupError(err)
	}

	ds := &Dataset{Table: t, reader: r}
	if !t.IsPartitioned() {
		if r.opts.Predicate != nil {
			return nil, r.lookupError(errNotPartitioned)
		}
		ds.partitions = []catalog.Partition{{Location: t.Location}}
		return ds, nil
	}

	expression := ""
	if r.opts.Predicate != nil {
		if err := predicate.Restrict(r.opts.Predicate, t.PartitionKeyNames()); err != nil {
			return nil, r.lookupError(err)
		}
		expression = r.opts.Predicate.String()
	}
	parts, err := r.cat.GetPartitions(ctx, r.database, r.table, expression)
	if err != nil {
		return nil, r.lookupError(err)
	}
	ds.partitions = parts

	r.opts.Logger.Info("resolved partitions",
		zap.String("database", r.database),
		zap.String("table", r.table),
		zap.String("predicate", expression),
		zap.Int("partitions", len(parts)))
	return ds, nil
}

func (r *CatalogReader) lookupError(err error) error {
	return &core.CatalogLookupError{Database: r.database, Table: r.table, Err: err}
}

// Partitions returns the partitions that satisfied the predicate.
func (d *Dataset) Partitions() []catalog.Partition {
	return d.partitions
}

// Objects lists the data objects of the surviving partitions.
func (d *Dataset) Objects(ctx context.Context) ([]SourceObject, error) {
	keys := d.Table.PartitionKeyNames()
	var objects []SourceObject
	for _, p := range d.partitions {
		if p.Location == "" {
			return nil, fmt.Errorf("partition %v of %s.%s has no location", p.Values, d.Table.Database, d.Table.Name)
		}
		listed, err := d.reader.store.List(ctx, storage.AsPrefix(p.Location))
		if err != nil {
			return nil, err
		}
		values := p.KeyValues(keys)
		for _, o := range listed {
			if !IsDataObject(o.URI) {
				continue
			}
			objects = append(objects, SourceObject{URI: o.URI, Format: d.Table.Format, Partition: values})
		}
	}
	return objects, nil
}

// Columns returns the table's data columns followed by its partition columns, which are
// always strings.
func (d *Dataset) Columns() []core.Column {
	cols := append([]core.Column(nil), d.Table.Columns...)
	for _, k := range d.Table.PartitionKeys {
		cols = append(cols, core.Column{Name: k.Name, Type: core.TypeString})
	}
	return cols
}

// Source returns a streaming record source over the surviving partitions.
func (d *Dataset) Source(ctx context.Context) (*StoreReader, error) {
	objects, err := d.Objects(ctx)
	if err != nil {
		return nil, err
	}
	return NewStoreReader(d.reader.store, objects, d.reader.opts.CSVOptions...), nil
}

// Materialize reads every record of the surviving partitions into a table. Column types are
// the catalog's declared types; values are kept as read, so a column may hold values of more
// than one type until they are resolved.
func (d *Dataset) Materialize(ctx context.Context) (*core.Table, error) {
	src, err := d.Source(ctx)
	if err != nil {
		return nil, err
	}
	sink := core.NewTableSink(d.Columns()...)

	var skipped int
	builder := lakepipe.NewPipeline().
		From(src).
		To(sink).
		WithErrorStrategy(d.reader.opts.ErrorStrategy)
	if d.reader.opts.ErrorStrategy != core.FailFast {
		builder = builder.WithErrorHandler(core.ErrorHandlerFunc(func(ctx context.Context, record core.Record, err error) error {
			skipped++
			d.reader.opts.Logger.Warn("skipping record", zap.Error(err))
			return nil
		}))
	}
	pipeline, err := builder.Build()
	if err != nil {
		return nil, err
	}
	if err := pipeline.Execute(ctx); err != nil {
		return nil, err
	}

	stats := src.Stats()
	d.reader.opts.Logger.Info("materialized dataset",
		zap.String("database", d.Table.Database),
		zap.String("table", d.Table.Name),
		zap.Int64("objects", stats.ObjectsRead),
		zap.Int64("records", stats.RecordsRead),
		zap.Int("skipped", skipped))
	return sink.Table(), nil
}
