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

	"github.com/apache/arrow/go/v12/arrow"
)

// Package core defines the core types for the LakePipe library.
//
// LakePipe moves semi-structured and tabular data between object storage layers and
// registers the result in a metadata catalog.
//
// This file contains the record type, the column data types and the function adapters.

// Record represents a single data record in the pipeline.
// Each record is a map from field names to values, supporting heterogeneous data.
type Record map[string]interface{}

// TransformFunc is a function adapter for the Transformer interface.
// Allows ordinary functions to be used as Transformers.
type TransformFunc func(ctx context.Context, record Record) (Record, error)

// Transform implements the Transformer interface for TransformFunc.
func (f TransformFunc) Transform(ctx context.Context, record Record) (Record, error) {
	return f(ctx, record)
}

// FilterFunc is a function adapter for the Filter interface.
// Allows ordinary functions to be used as Filters.
type FilterFunc func(ctx context.Context, record Record) (bool, error)

// ShouldInclude implements the Filter interface for FilterFunc.
func (f FilterFunc) ShouldInclude(ctx context.Context, record Record) (bool, error) {
	return f(ctx, record)
}

// DataType is the concrete type of a table column.
// Names follow the Spark spelling; CatalogName returns the Hive/Glue spelling.
type DataType string

const (
	TypeString    DataType = "string"
	TypeLong      DataType = "long"
	TypeInt       DataType = "int"
	TypeDouble    DataType = "double"
	TypeFloat     DataType = "float"
	TypeBoolean   DataType = "boolean"
	TypeTimestamp DataType = "timestamp"
)

// ParseDataType accepts both Spark and Hive type names, case-insensitively.
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "string", "varchar", "char":
		return TypeString, nil
	case "long", "bigint":
		return TypeLong, nil
	case "int", "integer":
		return TypeInt, nil
	case "double":
		return TypeDouble, nil
	case "float":
		return TypeFloat, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "timestamp":
		return TypeTimestamp, nil
	default:
		return "", fmt.Errorf("unsupported data type %q", name)
	}
}

// CatalogName returns the type name as stored in a Hive-compatible catalog.
func (t DataType) CatalogName() string {
	switch t {
	case TypeLong:
		return "bigint"
	case TypeInt:
		return "int"
	default:
		return string(t)
	}
}

// ArrowType returns the Arrow type used when the column is written to Parquet.
func (t DataType) ArrowType() arrow.DataType {
	switch t {
	case TypeLong:
		return arrow.PrimitiveTypes.Int64
	case TypeInt:
		return arrow.PrimitiveTypes.Int32
	case TypeDouble:
		return arrow.PrimitiveTypes.Float64
	case TypeFloat:
		return arrow.PrimitiveTypes.Float32
	case TypeBoolean:
		return arrow.FixedWidthTypes.Boolean
	case TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

// DataTypeFromArrow maps an Arrow type back to a column type. Unknown types become strings.
func DataTypeFromArrow(dt arrow.DataType) DataType {
	switch dt.ID() {
	case arrow.INT64, arrow.UINT32, arrow.UINT64:
		return TypeLong
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.UINT8, arrow.UINT16:
		return TypeInt
	case arrow.FLOAT64:
		return TypeDouble
	case arrow.FLOAT32:
		return TypeFloat
	case arrow.BOOL:
		return TypeBoolean
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return TypeTimestamp
	default:
		return TypeString
	}
}
