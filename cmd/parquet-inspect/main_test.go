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

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/lakepipe/core"
	"github.com/aaronlmathis/lakepipe/readers"
	"github.com/aaronlmathis/lakepipe/storage"
	"github.com/aaronlmathis/lakepipe/writers"
)

func writeSample(t *testing.T, store storage.Store, uri string) {
	t.Helper()
	var buf bytes.Buffer
	w, err := writers.NewParquetWriter(&buf, []core.Column{
		{Name: "video_id", Type: core.TypeString},
		{Name: "views", Type: core.TypeLong},
	}, writers.WithMetadata(map[string]string{"source": "test"}))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, w.Write(ctx, core.Record{"video_id": "a1", "views": int64(10)}))
	require.NoError(t, w.Write(ctx, core.Record{"video_id": "a2", "views": int64(20)}))
	require.NoError(t, w.Close())
	require.NoError(t, store.Put(ctx, uri, &buf))
}

func TestInspect(t *testing.T) {
	store := storage.NewLocalStore(t.TempDir())
	writeSample(t, store, "s3://cleansed/sample.snappy.parquet")

	var out bytes.Buffer
	require.NoError(t, inspect(context.Background(), &out, store, "s3://cleansed/sample.snappy.parquet", 1))

	text := out.String()
	assert.Contains(t, text, "2 rows, 1 row groups")
	assert.Contains(t, text, "video_id (BYTE_ARRAY)")
	assert.Contains(t, text, "views (INT64)")
	assert.Contains(t, text, "source=test")
	assert.Contains(t, text, `{"video_id":"a1","views":10}`)
	assert.NotContains(t, text, `"a2"`)
}

func TestInspect_Columns(t *testing.T) {
	store := storage.NewLocalStore(t.TempDir())
	writeSample(t, store, "s3://cleansed/sample.parquet")

	var out bytes.Buffer
	require.NoError(t, inspect(context.Background(), &out, store, "s3://cleansed/sample.parquet", 2, "views"))
	text := out.String()
	assert.Contains(t, text, "columns:\n  views long\n")
	assert.Contains(t, text, `{"views":20}`)
	assert.NotContains(t, text, `"video_id":"a1"`)

	err := inspect(context.Background(), &bytes.Buffer{}, store, "s3://cleansed/sample.parquet", 1, "likes")
	var perr *readers.ParquetReaderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "projection", perr.Op)
}

func TestInspect_MissingObject(t *testing.T) {
	store := storage.NewLocalStore(t.TempDir())
	err := inspect(context.Background(), &bytes.Buffer{}, store, "s3://cleansed/none.parquet", 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRootCommand_LocalRoot(t *testing.T) {
	root := t.TempDir()
	writeSample(t, storage.NewLocalStore(root), "s3://cleansed/sample.parquet")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--local-root", root, "-n", "2", "s3://cleansed/sample.parquet"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), `"a2"`)
}
