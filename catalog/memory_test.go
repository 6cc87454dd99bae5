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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/lakepipe/core"
)

func statisticsTable() *Table {
	return &Table{
		Database: "db_youtube_raw",
		Name:     "raw_statistics",
		Location: "s3://raw/youtube/raw_statistics/",
		Format:   FormatCSV,
		Columns: []core.Column{
			{Name: "video_id", Type: core.TypeString},
			{Name: "views", Type: core.TypeLong},
		},
		PartitionKeys: []core.Column{{Name: "region", Type: core.TypeString}},
	}
}

func TestMemoryCatalog_TableLifecycle(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()

	_, err := cat.GetTable(ctx, "db_youtube_raw", "raw_statistics")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, cat.CreateTable(ctx, statisticsTable()))
	assert.ErrorIs(t, cat.CreateTable(ctx, statisticsTable()), ErrAlreadyExists)

	got, err := cat.GetTable(ctx, "db_youtube_raw", "raw_statistics")
	require.NoError(t, err)
	assert.Equal(t, []string{"region"}, got.PartitionKeyNames())
	assert.True(t, got.IsPartitioned())

	// Returned tables are copies.
	got.Columns[0].Name = "changed"
	again, err := cat.GetTable(ctx, "db_youtube_raw", "raw_statistics")
	require.NoError(t, err)
	assert.Equal(t, "video_id", again.Columns[0].Name)

	upd := statisticsTable()
	upd.Columns = append(upd.Columns, core.Column{Name: "likes", Type: core.TypeLong})
	require.NoError(t, cat.UpdateTable(ctx, upd))
	again, err = cat.GetTable(ctx, "db_youtube_raw", "raw_statistics")
	require.NoError(t, err)
	assert.Len(t, again.Columns, 3)

	missing := statisticsTable()
	missing.Name = "other"
	assert.ErrorIs(t, cat.UpdateTable(ctx, missing), ErrNotFound)
}

func TestMemoryCatalog_RejectsDuplicateColumns(t *testing.T) {
	tbl := statisticsTable()
	tbl.Columns = append(tbl.Columns, core.Column{Name: "Region", Type: core.TypeString})
	assert.Error(t, NewMemoryCatalog().CreateTable(context.Background(), tbl))
}

func TestMemoryCatalog_Partitions(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	require.NoError(t, cat.CreateTable(ctx, statisticsTable()))

	var parts []Partition
	for _, r := range []string{"ca", "gb", "jp", "us"} {
		parts = append(parts, Partition{Values: []string{r}, Location: "s3://raw/youtube/raw_statistics/region=" + r + "/"})
	}
	require.NoError(t, cat.AddPartitions(ctx, "db_youtube_raw", "raw_statistics", parts))
	// Re-adding is a no-op.
	require.NoError(t, cat.AddPartitions(ctx, "db_youtube_raw", "raw_statistics", parts[:1]))

	all, err := cat.GetPartitions(ctx, "db_youtube_raw", "raw_statistics", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	some, err := cat.GetPartitions(ctx, "db_youtube_raw", "raw_statistics", "region in ('ca','gb','us')")
	require.NoError(t, err)
	require.Len(t, some, 3)
	for _, p := range some {
		assert.NotEqual(t, "jp", p.Values[0])
	}
	assert.Equal(t, 2, cat.Calls("GetPartitions"))

	_, err = cat.GetPartitions(ctx, "db_youtube_raw", "raw_statistics", "views > 10")
	assert.Error(t, err)

	err = cat.AddPartitions(ctx, "db_youtube_raw", "raw_statistics", []Partition{{Values: []string{"a", "b"}}})
	assert.Error(t, err)

	require.NoError(t, cat.DeletePartitions(ctx, "db_youtube_raw", "raw_statistics", [][]string{{"jp"}, {"zz"}}))
	all, err = cat.GetPartitions(ctx, "db_youtube_raw", "raw_statistics", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPartition_KeyValues(t *testing.T) {
	p := Partition{Values: []string{"us", "2018"}}
	assert.Equal(t, map[string]string{"region": "us", "year": "2018"}, p.KeyValues([]string{"region", "year"}))
}
