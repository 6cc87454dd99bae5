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
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/lakepipe/catalog"
	"github.com/aaronlmathis/lakepipe/core"
	"github.com/aaronlmathis/lakepipe/storage"
)

const cleansedPath = "s3://cleansed/youtube/raw_statistics/"

func sequentialNames() func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("part-%05d", atomic.AddInt64(&n, 1))
	}
}

func statisticsRows(regions ...string) *core.Table {
	t := core.NewTable(
		core.Column{Name: "video_id", Type: core.TypeString},
		core.Column{Name: "views", Type: core.TypeLong},
		core.Column{Name: "region", Type: core.TypeString},
	)
	for i, r := range regions {
		t.AppendRow(core.Record{"video_id": fmt.Sprintf("v%d", i), "views": int64(i * 10), "region": r})
	}
	return t
}

func statisticsDestination(mode WriteMode) Destination {
	return Destination{
		Path:          cleansedPath,
		Database:      "db_youtube_cleaned",
		Table:         "cleansed_statistics",
		Mode:          mode,
		PartitionKeys: []string{"region"},
	}
}

func newTestWriter(t *testing.T) (*DatasetWriter, *storage.LocalStore, *catalog.MemoryCatalog) {
	t.Helper()
	store := storage.NewLocalStore(t.TempDir())
	cat := catalog.NewMemoryCatalog()
	return NewDatasetWriter(store, cat, WithFileNamer(sequentialNames())), store, cat
}

func readFile(t *testing.T, store *storage.LocalStore, uri string) []byte {
	t.Helper()
	data, err := storage.ReadAll(context.Background(), store, uri)
	require.NoError(t, err)
	return data
}

func TestParseWriteMode(t *testing.T) {
	for _, s := range []string{"overwrite", "APPEND", " overwrite_partitions "} {
		_, err := ParseWriteMode(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseWriteMode("upsert")
	assert.Error(t, err)
	_, err = ParseWriteMode("")
	assert.Error(t, err)
}

func TestDatasetWriter_PartitionedLayout(t *testing.T) {
	ctx := context.Background()
	w, store, cat := newTestWriter(t)

	res, err := w.Write(ctx, statisticsRows("us", "ca", "us", "gb"), statisticsDestination(ModeAppend))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"s3://cleansed/youtube/raw_statistics/region=ca/" + filepath.Base(res.Paths[0]),
		"s3://cleansed/youtube/raw_statistics/region=gb/" + filepath.Base(res.Paths[1]),
		"s3://cleansed/youtube/raw_statistics/region=us/" + filepath.Base(res.Paths[2]),
	}, res.Paths)
	for _, p := range res.Paths {
		assert.Regexp(t, `/part-\d{5}\.snappy\.parquet$`, p)
	}
	assert.Equal(t, int64(4), res.RowCount)
	assert.Equal(t, int64(2), res.RowsPerPath[res.Paths[2]])

	tbl, err := cat.GetTable(ctx, "db_youtube_cleaned", "cleansed_statistics")
	require.NoError(t, err)
	assert.Equal(t, catalog.FormatParquet, tbl.Format)
	assert.Equal(t, "s3://cleansed/youtube/raw_statistics/", tbl.Location)
	assert.Equal(t, []core.Column{
		{Name: "video_id", Type: core.TypeString},
		{Name: "views", Type: core.TypeLong},
	}, tbl.Columns)
	assert.Equal(t, []string{"region"}, tbl.PartitionKeyNames())

	parts, err := cat.GetPartitions(ctx, "db_youtube_cleaned", "cleansed_statistics", "")
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, []string{"ca"}, parts[0].Values)
	assert.Equal(t, "s3://cleansed/youtube/raw_statistics/region=ca/", parts[0].Location)

	// Partition columns are not stored inside the files.
	columns, rows := readBack(t, readFile(t, store, res.Paths[2]))
	assert.Equal(t, []core.Column{{Name: "video_id", Type: core.TypeString}, {Name: "views", Type: core.TypeLong}}, columns)
	assert.Len(t, rows, 2)
}

func TestDatasetWriter_OverwritePartitionsLeavesOtherPartitions(t *testing.T) {
	ctx := context.Background()
	w, store, cat := newTestWriter(t)

	first, err := w.Write(ctx, statisticsRows("ca", "jp", "us"), statisticsDestination(ModeOverwritePartitions))
	require.NoError(t, err)
	require.Len(t, first.Paths, 3)
	before := map[string][]byte{}
	for _, p := range first.Paths {
		before[p] = readFile(t, store, p)
	}

	second, err := w.Write(ctx, statisticsRows("ca", "ca"), statisticsDestination(ModeOverwritePartitions))
	require.NoError(t, err)
	require.Len(t, second.Paths, 1)
	assert.Equal(t, []string{first.Paths[0]}, second.Deleted)

	objects, err := store.List(ctx, cleansedPath)
	require.NoError(t, err)
	assert.Equal(t, []string{second.Paths[0], first.Paths[1], first.Paths[2]}, storage.ObjectURIs(objects))

	// jp and us are untouched byte for byte.
	for _, p := range first.Paths[1:] {
		assert.Equal(t, before[p], readFile(t, store, p))
	}

	parts, err := cat.GetPartitions(ctx, "db_youtube_cleaned", "cleansed_statistics", "")
	require.NoError(t, err)
	assert.Len(t, parts, 3)
}

func TestDatasetWriter_OverwriteReplacesEverything(t *testing.T) {
	ctx := context.Background()
	w, store, cat := newTestWriter(t)

	_, err := w.Write(ctx, statisticsRows("ca", "jp"), statisticsDestination(ModeAppend))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, cleansedPath+"_SUCCESS", strings.NewReader("")))

	res, err := w.Write(ctx, statisticsRows("us"), statisticsDestination(ModeOverwrite))
	require.NoError(t, err)
	assert.Len(t, res.Deleted, 3)

	objects, err := store.List(ctx, cleansedPath)
	require.NoError(t, err)
	assert.Equal(t, res.Paths, storage.ObjectURIs(objects))

	parts, err := cat.GetPartitions(ctx, "db_youtube_cleaned", "cleansed_statistics", "")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, []string{"us"}, parts[0].Values)
}

func TestDatasetWriter_AppendMergesColumns(t *testing.T) {
	ctx := context.Background()
	w, store, cat := newTestWriter(t)

	_, err := w.Write(ctx, statisticsRows("ca"), statisticsDestination(ModeAppend))
	require.NoError(t, err)

	wider := statisticsRows("ca")
	wider.AddColumn(core.Column{Name: "likes", Type: core.TypeLong})
	wider.Rows[0]["likes"] = int64(5)
	_, err = w.Write(ctx, wider, statisticsDestination(ModeAppend))
	require.NoError(t, err)

	objects, err := store.List(ctx, cleansedPath+"region=ca/")
	require.NoError(t, err)
	assert.Len(t, objects, 2)

	tbl, err := cat.GetTable(ctx, "db_youtube_cleaned", "cleansed_statistics")
	require.NoError(t, err)
	assert.Equal(t, []string{"video_id", "views", "likes"}, names(tbl.Columns))

	dest := statisticsDestination(ModeAppend)
	dest.PartitionKeys = nil
	_, err = w.Write(ctx, statisticsRows("ca"), dest)
	var cuErr *core.CatalogUpdateError
	require.ErrorAs(t, err, &cuErr)
	assert.Len(t, cuErr.Written, 1)
}

func TestDatasetWriter_AppendConformsToRegisteredTypes(t *testing.T) {
	ctx := context.Background()
	w, store, cat := newTestWriter(t)

	_, err := w.Write(ctx, statisticsRows("ca"), statisticsDestination(ModeAppend))
	require.NoError(t, err)

	// An object whose views were all text, or null, is typed string by inference.
	textual := core.NewTable(
		core.Column{Name: "video_id", Type: core.TypeString},
		core.Column{Name: "views", Type: core.TypeString},
		core.Column{Name: "region", Type: core.TypeString},
	)
	textual.AppendRow(core.Record{"video_id": "g1", "views": "25", "region": "gb"})
	textual.AppendRow(core.Record{"video_id": "g2", "views": nil, "region": "gb"})

	res, err := w.Write(ctx, textual, statisticsDestination(ModeAppend))
	require.NoError(t, err)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, core.TypeString, textual.Columns[1].Type, "caller's table is not modified")

	columns, rows := readBack(t, readFile(t, store, res.Paths[0]))
	assert.Equal(t, []core.Column{
		{Name: "video_id", Type: core.TypeString},
		{Name: "views", Type: core.TypeLong},
	}, columns)
	assert.Equal(t, int64(25), rows[0]["views"])

	tbl, err := cat.GetTable(ctx, "db_youtube_cleaned", "cleansed_statistics")
	require.NoError(t, err)
	assert.Equal(t, []core.Column{
		{Name: "video_id", Type: core.TypeString},
		{Name: "views", Type: core.TypeLong},
	}, tbl.Columns)
}

func TestDatasetWriter_AppendRejectsValuesOutsideRegisteredTypes(t *testing.T) {
	ctx := context.Background()
	w, store, cat := newTestWriter(t)

	_, err := w.Write(ctx, statisticsRows("ca"), statisticsDestination(ModeOverwritePartitions))
	require.NoError(t, err)

	bad := core.NewTable(
		core.Column{Name: "video_id", Type: core.TypeString},
		core.Column{Name: "views", Type: core.TypeString},
		core.Column{Name: "region", Type: core.TypeString},
	)
	bad.AppendRow(core.Record{"video_id": "u1", "views": "n/a", "region": "us"})

	_, err = w.Write(ctx, bad, statisticsDestination(ModeOverwritePartitions))
	var wErr *core.WriteError
	require.ErrorAs(t, err, &wErr)
	assert.Equal(t, "conform", wErr.Op)
	var coercion *core.TypeCoercionError
	require.ErrorAs(t, err, &coercion)
	assert.Equal(t, "views", coercion.Column)
	assert.Equal(t, core.TypeLong, coercion.Target)

	objects, err := store.List(ctx, cleansedPath+"region=us/")
	require.NoError(t, err)
	assert.Empty(t, objects)

	parts, err := cat.GetPartitions(ctx, "db_youtube_cleaned", "cleansed_statistics", "")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, []string{"ca"}, parts[0].Values)
}

func TestDatasetWriter_Unpartitioned(t *testing.T) {
	ctx := context.Background()
	w, store, cat := newTestWriter(t)

	dest := Destination{Path: "s3://cleansed/youtube/", Database: "db", Table: "reference", Mode: ModeAppend}
	res, err := w.Write(ctx, statisticsRows("ca", "us"), dest)
	require.NoError(t, err)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, "s3://cleansed/youtube/part-00001.snappy.parquet", res.Paths[0])
	assert.Empty(t, res.Partitions)

	tbl, err := cat.GetTable(ctx, "db", "reference")
	require.NoError(t, err)
	assert.False(t, tbl.IsPartitioned())
	assert.Len(t, tbl.Columns, 3)

	_, rows := readBack(t, readFile(t, store, res.Paths[0]))
	assert.Len(t, rows, 2)
}

func TestDatasetWriter_NullPartitionValue(t *testing.T) {
	ctx := context.Background()
	w, _, cat := newTestWriter(t)

	table := statisticsRows("ca")
	table.AppendRow(core.Record{"video_id": "x", "views": int64(1), "region": nil})
	res, err := w.Write(ctx, table, statisticsDestination(ModeAppend))
	require.NoError(t, err)
	assert.Contains(t, res.Paths[0], "/region=__HIVE_DEFAULT_PARTITION__/")

	parts, err := cat.GetPartitions(ctx, "db_youtube_cleaned", "cleansed_statistics", "")
	require.NoError(t, err)
	assert.Len(t, parts, 2)
}

func TestDatasetWriter_EmptyTableIsNoop(t *testing.T) {
	ctx := context.Background()
	w, store, cat := newTestWriter(t)

	res, err := w.Write(ctx, statisticsRows(), statisticsDestination(ModeOverwrite))
	require.NoError(t, err)
	assert.Empty(t, res.Paths)
	assert.Zero(t, res.RowCount)
	assert.Zero(t, cat.Calls("GetTable"))
	assert.Zero(t, cat.Calls("CreateTable"))

	objects, err := store.List(ctx, cleansedPath)
	require.NoError(t, err)
	assert.Empty(t, objects)

	// Columns dropped from an empty table do not turn the no-op into an error.
	bare := core.NewTable()
	res, err = w.Write(ctx, bare, statisticsDestination(ModeOverwritePartitions))
	require.NoError(t, err)
	assert.Empty(t, res.Paths)
}

func TestDatasetWriter_Validation(t *testing.T) {
	w, _, _ := newTestWriter(t)
	ctx := context.Background()

	tests := []struct {
		name string
		dest func(d *Destination)
	}{
		{"unknown mode", func(d *Destination) { d.Mode = "merge" }},
		{"missing path", func(d *Destination) { d.Path = "" }},
		{"missing table", func(d *Destination) { d.Table = "" }},
		{"unknown partition key", func(d *Destination) { d.PartitionKeys = []string{"country"} }},
		{"only partition columns", func(d *Destination) { d.PartitionKeys = []string{"video_id", "views", "region"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := statisticsDestination(ModeAppend)
			tt.dest(&dest)
			_, err := w.Write(ctx, statisticsRows("ca"), dest)
			assert.Error(t, err)
		})
	}
}

type failingCatalog struct {
	*catalog.MemoryCatalog
}

func (f failingCatalog) AddPartitions(ctx context.Context, database, table string, partitions []catalog.Partition) error {
	return errors.New("catalog unavailable")
}

func TestDatasetWriter_CatalogFailureAfterWrite(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStore(t.TempDir())
	w := NewDatasetWriter(store, failingCatalog{catalog.NewMemoryCatalog()}, WithFileNamer(sequentialNames()))

	_, err := w.Write(ctx, statisticsRows("ca", "us"), statisticsDestination(ModeAppend))
	var cuErr *core.CatalogUpdateError
	require.ErrorAs(t, err, &cuErr)
	assert.Equal(t, "add_partitions", cuErr.Op)
	assert.Equal(t, cleansedPath, cuErr.Path)
	assert.Len(t, cuErr.Written, 2)

	// The data files stay for reconciliation.
	objects, err := store.List(ctx, cleansedPath)
	require.NoError(t, err)
	assert.Equal(t, cuErr.Written, storage.ObjectURIs(objects))
}

type failingStore struct {
	*storage.LocalStore
	failOn string
}

func (f failingStore) Put(ctx context.Context, uri string, body io.Reader) error {
	if filepath.Base(filepath.Dir(uri)) == f.failOn {
		return errors.New("access denied")
	}
	return f.LocalStore.Put(ctx, uri, body)
}

func TestDatasetWriter_StorageFailureKeepsOldData(t *testing.T) {
	ctx := context.Background()
	local := storage.NewLocalStore(t.TempDir())
	cat := catalog.NewMemoryCatalog()

	ok := NewDatasetWriter(local, cat, WithFileNamer(sequentialNames()))
	first, err := ok.Write(ctx, statisticsRows("ca", "us"), statisticsDestination(ModeAppend))
	require.NoError(t, err)

	broken := NewDatasetWriter(failingStore{LocalStore: local, failOn: "region=us"}, cat, WithConcurrency(1))
	_, err = broken.Write(ctx, statisticsRows("ca", "us"), statisticsDestination(ModeOverwrite))
	var wErr *core.WriteError
	require.ErrorAs(t, err, &wErr)
	assert.Equal(t, "put", wErr.Op)

	// Old files remain and the partial new file was removed.
	objects, err := local.List(ctx, cleansedPath)
	require.NoError(t, err)
	assert.Equal(t, first.Paths, storage.ObjectURIs(objects))
}

func TestEscapePathName(t *testing.T) {
	assert.Equal(t, "us", EscapePathName("us"))
	assert.Equal(t, "a%2Fb%3Dc", EscapePathName("a/b=c"))
	assert.Equal(t, "100%25", EscapePathName("100%"))
	assert.Equal(t, "with space", EscapePathName("with space"))
}

func TestPartitionValue(t *testing.T) {
	assert.Equal(t, DefaultPartitionName, PartitionValue(nil))
	assert.Equal(t, DefaultPartitionName, PartitionValue(""))
	assert.Equal(t, "42", PartitionValue(int64(42)))
	assert.Equal(t, "1.5", PartitionValue(1.5))
	assert.Equal(t, "true", PartitionValue(true))
}

func names(cols []core.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
