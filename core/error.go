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
	"strings"
)

// This file contains the error taxonomy shared by both pipelines and the error handler adapters.
//
// Every error carries the locator of the object or table it concerns so that a failed run can be
// replayed from its log record alone.

// ErrorHandler defines how errors are handled during processing.
// Custom error handlers can be used to log, collect, or transform errors.
type ErrorHandler interface {
	// HandleError processes an error that occurred during transformation.
	// Returning a non-nil error will stop the pipeline; returning nil will continue.
	HandleError(ctx context.Context, record Record, err error) error
}

// ErrorStrategy defines how to handle transformation errors in the pipeline.
type ErrorStrategy int

const (
	// FailFast stops processing on the first error encountered.
	FailFast ErrorStrategy = iota
	// SkipErrors continues processing, skipping failed records.
	SkipErrors
	// CollectErrors continues processing, collecting all errors for later inspection.
	CollectErrors
)

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
type ErrorHandlerFunc func(ctx context.Context, record Record, err error) error

// HandleError implements the ErrorHandler interface for ErrorHandlerFunc.
func (f ErrorHandlerFunc) HandleError(ctx context.Context, record Record, err error) error {
	return f(ctx, record, err)
}

// MalformedEventError reports a trigger notification that lacks the fields needed to locate
// the object. The run aborts before any read is attempted.
type MalformedEventError struct {
	Field string // Missing or invalid field path, e.g. "Records[0].s3.object.key"
	Err   error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event %s: %v", e.Field, e.Err)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

// DeserializationError reports object content that could not be decoded.
type DeserializationError struct {
	URI string
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize %s: %v", e.URI, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// SchemaShapeError reports input whose structure does not have the expected nested field.
type SchemaShapeError struct {
	Field  string // Expected nested field
	Record int    // Index of the offending raw record
	Err    error
}

func (e *SchemaShapeError) Error() string {
	return fmt.Sprintf("schema shape: record %d field %q: %v", e.Record, e.Field, e.Err)
}

func (e *SchemaShapeError) Unwrap() error {
	return e.Err
}

// CatalogLookupError reports a database or table that could not be resolved in the catalog,
// or a read request the catalog cannot serve (e.g. a predicate over non-partition columns).
type CatalogLookupError struct {
	Database string
	Table    string
	Err      error
}

func (e *CatalogLookupError) Error() string {
	return fmt.Sprintf("catalog lookup %s.%s: %v", e.Database, e.Table, e.Err)
}

func (e *CatalogLookupError) Unwrap() error {
	return e.Err
}

// TypeCoercionError reports a single value that could not be cast to its declared type.
// It is never fatal: the value is replaced by null and the error is collected.
type TypeCoercionError struct {
	Column string
	Row    int
	Value  interface{}
	Target DataType
	Err    error
}

func (e *TypeCoercionError) Error() string {
	return fmt.Sprintf("coerce column %s row %d value %v to %s: %v", e.Column, e.Row, e.Value, e.Target, e.Err)
}

func (e *TypeCoercionError) Unwrap() error {
	return e.Err
}

// WriteError reports a storage failure while writing or replacing dataset files.
type WriteError struct {
	Op   string // "put", "delete", "encode", "list"
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// CatalogUpdateError reports a catalog registration failure after data files were already
// changed. The storage and the catalog are inconsistent until an operator or a reconciliation
// job repairs the table; Written lists the files the failed run produced.
type CatalogUpdateError struct {
	Op       string // "create_table", "update_table", "add_partitions", "delete_partitions"
	Database string
	Table    string
	Path     string
	Written  []string
	Err      error
}

func (e *CatalogUpdateError) Error() string {
	msg := fmt.Sprintf("catalog update %s %s.%s (location %s): %v", e.Op, e.Database, e.Table, e.Path, e.Err)
	if len(e.Written) > 0 {
		msg += fmt.Sprintf("; %d files written but not registered: %s", len(e.Written), strings.Join(e.Written, ", "))
	}
	return msg
}

func (e *CatalogUpdateError) Unwrap() error {
	return e.Err
}
