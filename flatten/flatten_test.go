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

package flatten

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/lakepipe/core"
	"github.com/aaronlmathis/lakepipe/readers"
)

func decode(t *testing.T, doc string) []core.Value {
	t.Helper()
	values, err := readers.DecodeDocuments([]byte(doc))
	require.NoError(t, err)
	return values
}

func TestFlatten_TwoItems(t *testing.T) {
	records := decode(t, `{"items":[{"video_id":"a1","views":100},{"video_id":"a2","views":200}]}`)

	table, err := Flatten(records, "items")
	require.NoError(t, err)

	assert.Equal(t, []string{"video_id", "views"}, table.ColumnNames())
	require.Equal(t, 2, table.NumRows())
	assert.Equal(t, core.Record{"video_id": "a1", "views": int64(100)}, table.Rows[0])
	assert.Equal(t, core.Record{"video_id": "a2", "views": int64(200)}, table.Rows[1])

	table.InferColumnTypes()
	assert.Equal(t, []core.Column{
		{Name: "video_id", Type: core.TypeString},
		{Name: "views", Type: core.TypeLong},
	}, table.Columns)
}

func TestFlatten_Cardinality(t *testing.T) {
	for _, n := range []int{0, 1, 7, 120} {
		t.Run(fmt.Sprintf("%d items", n), func(t *testing.T) {
			items := make([]string, n)
			for i := range items {
				items[i] = fmt.Sprintf(`{"id":%d}`, i)
			}
			// The items are split across three records; rows are the sum.
			third := n / 3
			doc := fmt.Sprintf(`{"items":[%s]} {"items":[%s]} {"items":[%s]}`,
				strings.Join(items[:third], ","),
				strings.Join(items[third:2*third], ","),
				strings.Join(items[2*third:], ","))

			table, err := Flatten(decode(t, doc), "items")
			require.NoError(t, err)
			assert.Equal(t, n, table.NumRows())
		})
	}
}

func TestFlatten_NestedObjects(t *testing.T) {
	records := decode(t, `{"kind":"youtube#videoCategoryListResponse","items":[
		{"kind":"youtube#videoCategory","id":"1","snippet":{"channelId":"UCBR","title":"Film & Animation","assignable":true}},
		{"kind":"youtube#videoCategory","id":"2","snippet":{"title":"Autos","thumbnails":{"default":{"url":"x"}}},"tags":["a","b"]}
	]}`)

	table, err := Flatten(records, "items")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"kind", "id", "snippet.channelId", "snippet.title", "snippet.assignable",
		"snippet.thumbnails.default.url", "tags",
	}, table.ColumnNames())
	assert.Equal(t, "Film & Animation", table.Rows[0]["snippet.title"])
	assert.Equal(t, true, table.Rows[0]["snippet.assignable"])
	assert.Equal(t, "x", table.Rows[1]["snippet.thumbnails.default.url"])
	assert.Equal(t, `["a","b"]`, table.Rows[1]["tags"])
	assert.NotContains(t, table.Rows[1], "snippet.channelId")
}

func TestFlatten_Separator(t *testing.T) {
	records := decode(t, `{"items":[{"snippet":{"title":"Autos"}}]}`)
	table, err := Flatten(records, "items", WithSeparator("_"))
	require.NoError(t, err)
	assert.Equal(t, []string{"snippet_title"}, table.ColumnNames())
}

func TestFlatten_ScalarItemsAndNulls(t *testing.T) {
	records := decode(t, `{"items":["a", null, 3, [1,2]]}`)
	table, err := Flatten(records, "items")
	require.NoError(t, err)

	assert.Equal(t, []string{"items"}, table.ColumnNames())
	assert.Equal(t, []interface{}{"a", nil, int64(3), "[1,2]"}, table.Values("items"))
}

func TestFlatten_NoCoercion(t *testing.T) {
	records := decode(t, `{"items":[{"category_id":"N/A"},{"category_id":22}]}`)
	table, err := Flatten(records, "items")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"N/A", int64(22)}, table.Values("category_id"))

	table.InferColumnTypes()
	col, _ := table.Column("category_id")
	assert.Equal(t, core.TypeString, col.Type)
}

func TestFlatten_SchemaShapeErrors(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		record int
	}{
		{"missing field", `{"kind":"x"}`, 0},
		{"field is an object", `{"items":{"id":1}}`, 0},
		{"field is null", `{"items":null}`, 0},
		{"second record missing", `{"items":[]} {"other":[]}`, 1},
		{"record is a scalar", `{"items":[]} 5`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Flatten(decode(t, tt.doc), "items")
			var shapeErr *core.SchemaShapeError
			require.ErrorAs(t, err, &shapeErr)
			assert.Equal(t, "items", shapeErr.Field)
			assert.Equal(t, tt.record, shapeErr.Record)
		})
	}
}

func TestFlatten_DefaultField(t *testing.T) {
	records := decode(t, `{"items":[{"id":1}]}`)
	table, err := Flatten(records, "")
	require.NoError(t, err)
	assert.Equal(t, 1, table.NumRows())
}
