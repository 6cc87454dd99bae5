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
	"fmt"
	"io"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/lakepipe/core"
)

// ParquetReaderError provides structured error information for parquet reader operations
type ParquetReaderError struct {
	Op  string // "open", "schema", "projection", "read"
	Err error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ParquetReaderOptions configures the Parquet reader.
type ParquetReaderOptions struct {
	BatchSize int64            // Rows decoded per Arrow batch
	Columns   []string         // Projection; every column when empty
	Allocator memory.Allocator // Go allocator by default
}

// ReaderOption represents a configuration function
type ReaderOption func(*ParquetReaderOptions)

func WithBatchSize(size int64) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.BatchSize = size
	}
}

// WithColumns reads only the named columns, in the given order.
func WithColumns(columns ...string) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

func WithAllocator(mem memory.Allocator) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.Allocator = mem
	}
}

func (opts ParquetReaderOptions) withDefaults() ParquetReaderOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.NewGoAllocator()
	}
	return opts
}

// ParquetReader is a DataSource over the rows of one Parquet object. Rows are decoded one Arrow
// batch at a time.
type ParquetReader struct {
	closer  io.Closer
	records pqarrow.RecordReader
	schema  *arrow.Schema
	batch   arrow.Record
	row     int
}

// NewParquetReader opens Parquet content held by r. If r is also an io.Closer it is closed with
// the reader.
func NewParquetReader(r parquet.ReaderAtSeeker, options ...ReaderOption) (*ParquetReader, error) {
	var opts ParquetReaderOptions
	for _, option := range options {
		option(&opts)
	}
	opts = opts.withDefaults()

	pf, err := file.NewParquetReader(r)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open", Err: err}
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize}, opts.Allocator)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open", Err: err}
	}
	schema, err := fr.Schema()
	if err != nil {
		return nil, &ParquetReaderError{Op: "schema", Err: err}
	}

	var indices []int
	for _, name := range opts.Columns {
		found := schema.FieldIndices(name)
		if len(found) == 0 {
			return nil, &ParquetReaderError{Op: "projection", Err: fmt.Errorf("column %q not found in schema", name)}
		}
		indices = append(indices, found[0])
	}

	records, err := fr.GetRecordReader(context.Background(), indices, nil)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open", Err: err}
	}

	closer, _ := r.(io.Closer)
	return &ParquetReader{closer: closer, records: records, schema: records.Schema()}, nil
}

// Read returns the next row, or io.EOF after the last one.
func (p *ParquetReader) Read(ctx context.Context) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ParquetReaderError{Op: "read", Err: err}
	}
	for p.batch == nil || p.row >= int(p.batch.NumRows()) {
		if err := p.nextBatch(); err != nil {
			return nil, err
		}
	}

	out := make(core.Record, p.batch.NumCols())
	for i, field := range p.batch.Schema().Fields() {
		out[field.Name] = cellValue(p.batch.Column(i), p.row)
	}
	p.row++
	return out, nil
}

func (p *ParquetReader) nextBatch() error {
	if p.batch != nil {
		p.batch.Release()
		p.batch = nil
	}
	if p.records == nil || !p.records.Next() {
		if p.records != nil && p.records.Err() != nil && p.records.Err() != io.EOF {
			return &ParquetReaderError{Op: "read", Err: p.records.Err()}
		}
		return io.EOF
	}
	// The record reader releases its batch on the next call.
	p.batch = p.records.Record()
	p.batch.Retain()
	p.row = 0
	return nil
}

// Close releases the decoded batch and closes the underlying object.
func (p *ParquetReader) Close() error {
	if p.batch != nil {
		p.batch.Release()
		p.batch = nil
	}
	if p.records != nil {
		p.records.Release()
		p.records = nil
	}
	if p.closer != nil {
		err := p.closer.Close()
		p.closer = nil
		return err
	}
	return nil
}

// Schema returns the Arrow schema of the rows being read, after projection.
func (p *ParquetReader) Schema() *arrow.Schema {
	return p.schema
}

// Columns returns the schema as table columns.
func (p *ParquetReader) Columns() []core.Column {
	cols := make([]core.Column, 0, len(p.schema.Fields()))
	for _, f := range p.schema.Fields() {
		cols = append(cols, core.Column{Name: f.Name, Type: core.DataTypeFromArrow(f.Type)})
	}
	return cols
}

// cellValue converts one Arrow cell to the Go types the rest of the pipeline uses: int64 for
// long, int32 for int, float64/float32, bool, string and UTC time.Time.
func cellValue(col arrow.Array, i int) interface{} {
	if col.IsNull(i) {
		return nil
	}
	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(i)
	case *array.Int8:
		return int32(arr.Value(i))
	case *array.Int16:
		return int32(arr.Value(i))
	case *array.Int32:
		return arr.Value(i)
	case *array.Int64:
		return arr.Value(i)
	case *array.Uint8:
		return int32(arr.Value(i))
	case *array.Uint16:
		return int32(arr.Value(i))
	case *array.Uint32:
		return int64(arr.Value(i))
	case *array.Uint64:
		return int64(arr.Value(i))
	case *array.Float32:
		return arr.Value(i)
	case *array.Float64:
		return arr.Value(i)
	case *array.String:
		return arr.Value(i)
	case *array.Binary:
		return string(arr.Value(i))
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(i).ToTime(unit).UTC()
	case *array.Date32:
		return arr.Value(i).ToTime().UTC()
	case *array.Date64:
		return arr.Value(i).ToTime().UTC()
	default:
		return fmt.Sprintf("%v", col.GetOneForMarshal(i))
	}
}
