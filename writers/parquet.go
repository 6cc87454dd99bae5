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

package writers

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/lakepipe/core"
)

// Package writers provides the columnar output side of both pipelines.
//
// This file implements a batching Parquet writer over any io.Writer. The file schema is fixed up
// front from the table's columns, so every file of a dataset carries the same column types no
// matter which rows it holds.

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "append_value", "write_batch")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriter implements core.DataSink for Parquet output.
// It is not safe for concurrent use.
type ParquetWriter struct {
	writer       *pqarrow.FileWriter
	schema       *arrow.Schema
	columns      []core.Column
	recordBuffer []core.Record
	builders     []array.Builder
	allocator    memory.Allocator
	opts         *ParquetWriterOptions
	stats        WriterStats
	closed       bool
	errorState   bool // Mark writer as errored
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of records to buffer before writing
	Compression  compress.Compression // Compression algorithm
	RowGroupSize int64                // Maximum rows per row group
	Metadata     map[string]string    // File metadata
	Allocator    memory.Allocator
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata sets user metadata for the Parquet file.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

func WithWriterAllocator(mem memory.Allocator) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Allocator = mem
	}
}

// NewParquetWriter creates a writer that encodes records with the given columns to w.
// If w is an io.Closer it is closed by Close.
func NewParquetWriter(w io.Writer, columns []core.Column, options ...WriterOption) (*ParquetWriter, error) {
	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}
	if len(columns) == 0 {
		return nil, &ParquetWriterError{Op: "schema", Err: fmt.Errorf("no columns")}
	}

	seen := make(map[string]bool, len(columns))
	fields := make([]arrow.Field, len(columns))
	for i, c := range columns {
		if seen[c.Name] {
			return nil, &ParquetWriterError{Op: "schema", Err: fmt.Errorf("duplicate column %q", c.Name)}
		}
		seen[c.Name] = true
		fields[i] = arrow.Field{Name: c.Name, Type: c.Type.ArrowType(), Nullable: true}
	}

	var md *arrow.Metadata
	if len(opts.Metadata) > 0 {
		m := arrow.MetadataFrom(opts.Metadata)
		md = &m
	}
	schema := arrow.NewSchema(fields, md)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(opts.Compression),
		parquet.WithMaxRowGroupLength(opts.RowGroupSize),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	fw, err := pqarrow.NewFileWriter(schema, w, props, arrowProps)
	if err != nil {
		return nil, &ParquetWriterError{Op: "create_writer", Err: err}
	}

	p := &ParquetWriter{
		writer:       fw,
		schema:       schema,
		columns:      append([]core.Column(nil), columns...),
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		allocator:    opts.Allocator,
		opts:         opts,
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
	}
	p.builders = make([]array.Builder, len(fields))
	for i, f := range fields {
		p.builders[i] = array.NewBuilder(p.allocator, f.Type)
	}
	return p, nil
}

// Schema returns the Arrow schema of the file being written.
func (p *ParquetWriter) Schema() *arrow.Schema {
	return p.schema
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	return p.stats
}

// Write implements the core.DataSink interface. Keys that are not columns are ignored and
// missing columns are written as null.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if err := ctx.Err(); err != nil {
		return &ParquetWriterError{Op: "write", Err: err}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			return err
		}
	}
	return nil
}

// WriteTable writes every row of t. The table's columns must match the writer's.
func (p *ParquetWriter) WriteTable(ctx context.Context, t *core.Table) error {
	for _, row := range t.Rows {
		if err := p.Write(ctx, row); err != nil {
			return err
		}
	}
	return p.Flush()
}

// Flush implements the core.DataSink interface.
// Forces any buffered records to be written as a record batch.
func (p *ParquetWriter) Flush() error {
	if p.closed || p.errorState {
		return nil
	}
	return p.flushBatch()
}

// Close implements the core.DataSink interface. It flushes buffered records and writes the
// file footer.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var flushErr error
	if !p.errorState {
		flushErr = p.flushBatch()
	}

	for _, builder := range p.builders {
		builder.Release()
	}
	p.builders = nil

	closeErr := p.writer.Close()
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return &ParquetWriterError{Op: "close_writer", Err: closeErr}
	}
	return nil
}

// withDefaults applies default values to ParquetWriterOptions.
func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}

	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 64 * 1024
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}
	if result.Allocator == nil {
		result.Allocator = memory.NewGoAllocator()
	}
	return result
}

// flushBatch writes the current buffer as one Arrow record.
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 {
		return nil
	}
	startTime := time.Now()

	record, err := p.createArrowRecord(p.recordBuffer)
	if err != nil {
		p.errorState = true
		return err
	}
	defer record.Release()

	if err := p.writer.Write(record); err != nil {
		p.errorState = true
		return &ParquetWriterError{Op: "write_batch", Err: err}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(startTime)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}

// createArrowRecord converts buffered records to an Arrow record.
func (p *ParquetWriter) createArrowRecord(records []core.Record) (arrow.Record, error) {
	for _, record := range records {
		for i, c := range p.columns {
			value, exists := record[c.Name]
			if !exists || value == nil {
				p.builders[i].AppendNull()
				p.stats.NullValueCounts[c.Name]++
				continue
			}
			if err := appendValue(p.builders[i], value); err != nil {
				// Drain the builders so the next batch starts clean.
				for _, b := range p.builders {
					b.NewArray().Release()
				}
				return nil, &ParquetWriterError{
					Op:  "append_value",
					Err: fmt.Errorf("column %s: %w", c.Name, err),
				}
			}
		}
	}

	arrays := make([]arrow.Array, len(p.builders))
	for i, builder := range p.builders {
		arrays[i] = builder.NewArray()
		defer arrays[i].Release()
	}
	return array.NewRecord(p.schema, arrays, int64(len(records))), nil
}

// appendValue appends a non-null value to the builder for its column type. Numeric values
// are converted between widths when no precision is lost.
func appendValue(builder array.Builder, value interface{}) error {
	switch b := builder.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		b.Append(v)
	case *array.Int32Builder:
		v, ok := toInt64(value)
		if !ok || v < math.MinInt32 || v > math.MaxInt32 {
			return fmt.Errorf("value %v (%T) does not fit int", value, value)
		}
		b.Append(int32(v))
	case *array.Int64Builder:
		v, ok := toInt64(value)
		if !ok {
			return fmt.Errorf("value %v (%T) is not an integer", value, value)
		}
		b.Append(v)
	case *array.Float32Builder:
		v, ok := toFloat64(value)
		if !ok {
			return fmt.Errorf("value %v (%T) is not a number", value, value)
		}
		b.Append(float32(v))
	case *array.Float64Builder:
		v, ok := toFloat64(value)
		if !ok {
			return fmt.Errorf("value %v (%T) is not a number", value, value)
		}
		b.Append(v)
	case *array.StringBuilder:
		b.Append(stringOf(value))
	case *array.TimestampBuilder:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", value)
		}
		b.Append(arrow.Timestamp(v.UnixMicro()))
	default:
		return fmt.Errorf("unsupported builder type %T", builder)
	}
	return nil
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if i, ok := toInt64(value); ok {
		return float64(i), true
	}
	return 0, false
}

func stringOf(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", value)
	}
}
