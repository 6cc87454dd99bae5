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
	"testing"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Columns(t *testing.T) {
	tbl := NewTable(Column{Name: "video_id", Type: TypeString}, Column{Name: "views", Type: TypeLong})
	tbl.AppendRow(Record{"video_id": "a", "views": int64(1)})
	tbl.AppendRow(Record{"video_id": "b"})

	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, []string{"video_id", "views"}, tbl.ColumnNames())
	assert.Equal(t, []interface{}{int64(1), nil}, tbl.Values("views"))
	assert.False(t, tbl.IsNullColumn("views"))
	assert.True(t, tbl.IsNullColumn("likes"))

	tbl.AddColumn(Column{Name: "views", Type: TypeDouble})
	col, ok := tbl.Column("views")
	require.True(t, ok)
	assert.Equal(t, TypeDouble, col.Type)
	assert.Len(t, tbl.Columns, 2)

	clone := tbl.Clone()
	tbl.DropColumn("views")
	assert.Equal(t, []string{"video_id"}, tbl.ColumnNames())
	assert.NotContains(t, tbl.Rows[0], "views")
	assert.Equal(t, int64(1), clone.Rows[0]["views"])
	assert.Equal(t, "table(2 columns, 2 rows)", clone.String())
}

func TestInferType(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		values []interface{}
		want   DataType
	}{
		{"all null", []interface{}{nil, nil}, TypeString},
		{"integers", []interface{}{int64(1), nil, 2}, TypeLong},
		{"widened", []interface{}{int64(1), 2.5}, TypeDouble},
		{"booleans", []interface{}{true, false}, TypeBoolean},
		{"timestamps", []interface{}{now}, TypeTimestamp},
		{"mixed with text", []interface{}{int64(1), "N/A"}, TypeString},
		{"bool and number", []interface{}{true, int64(1)}, TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferType(tt.values))
		})
	}
}

func TestTableSink(t *testing.T) {
	ctx := context.Background()
	sink := NewTableSink(Column{Name: "views", Type: TypeString})
	require.NoError(t, sink.Write(ctx, Record{"views": int64(1), "b": true, "a": "x"}))
	require.NoError(t, sink.Write(ctx, Record{"views": int64(2), "c": 1.5}))
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())
	assert.Error(t, sink.Write(ctx, Record{}))

	tbl := sink.Table()
	assert.Equal(t, []Column{
		{Name: "views", Type: TypeString},
		{Name: "a", Type: TypeString},
		{Name: "b", Type: TypeBoolean},
		{Name: "c", Type: TypeDouble},
	}, tbl.Columns)
	assert.Equal(t, 2, tbl.NumRows())
}

func TestParseDataType(t *testing.T) {
	for in, want := range map[string]DataType{
		"string": TypeString, "VARCHAR": TypeString, "bigint": TypeLong, "long": TypeLong,
		"integer": TypeInt, "double": TypeDouble, "float": TypeFloat, "bool": TypeBoolean,
		" timestamp ": TypeTimestamp,
	} {
		got, err := ParseDataType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDataType("decimal(10,2)")
	assert.Error(t, err)

	assert.Equal(t, "bigint", TypeLong.CatalogName())
	assert.Equal(t, "string", TypeString.CatalogName())
}

func TestDataTypeArrowRoundTrip(t *testing.T) {
	for _, dt := range []DataType{TypeString, TypeLong, TypeInt, TypeDouble, TypeFloat, TypeBoolean, TypeTimestamp} {
		assert.Equal(t, dt, DataTypeFromArrow(dt.ArrowType()), dt)
	}
	assert.Equal(t, TypeString, DataTypeFromArrow(arrow.BinaryTypes.Binary))
}

func TestValue(t *testing.T) {
	obj := ObjectValue()
	obj.Set("zeta", ScalarValue(int64(1)))
	obj.Set("alpha", ListValue(ScalarValue("x"), NullValue()))
	obj.Set("zeta", ScalarValue(int64(2)))

	data, err := obj.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"zeta":2,"alpha":["x",null]}`, string(data))
	assert.Equal(t, `{"zeta":2,"alpha":["x",null]}`, string(data))

	v, ok := obj.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, KindList, v.Kind)
	_, ok = ScalarValue("s").Get("alpha")
	assert.False(t, ok)

	assert.Equal(t, map[string]interface{}{"zeta": int64(2), "alpha": []interface{}{"x", nil}}, obj.Interface())
	assert.Equal(t, KindNull, ScalarValue(nil).Kind)
	assert.Equal(t, "object", KindObject.String())

	from := ValueOf(map[string]interface{}{"b": 1, "a": []interface{}{float32(0.5)}})
	assert.Equal(t, "a", from.Fields[0].Name)
	assert.Equal(t, int64(1), from.Fields[1].Value.Scalar)
	assert.Equal(t, float64(0.5), from.Fields[0].Value.Items[0].Scalar)
}

func TestErrors(t *testing.T) {
	written := &CatalogUpdateError{Op: "add_partitions", Database: "db", Table: "t", Path: "s3://b/t/",
		Written: []string{"s3://b/t/part-1.parquet"}, Err: context.DeadlineExceeded}
	assert.ErrorIs(t, written, context.DeadlineExceeded)
	assert.Contains(t, written.Error(), "1 files written but not registered")

	lookup := &CatalogLookupError{Database: "db", Table: "t", Err: context.Canceled}
	assert.Equal(t, "catalog lookup db.t: context canceled", lookup.Error())

	called := false
	h := ErrorHandlerFunc(func(ctx context.Context, record Record, err error) error {
		called = true
		return nil
	})
	require.NoError(t, h.HandleError(context.Background(), nil, lookup))
	assert.True(t, called)
}
