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
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/lakepipe/core"
)

type fakeGlue struct {
	table         *types.Table
	pages         [][]types.Partition
	expressions   []string
	created       []*glue.CreateTableInput
	updated       []*glue.UpdateTableInput
	createBatches [][]types.PartitionInput
	deleteBatches [][]types.PartitionValueList
	createErrors  []types.PartitionError
}

func (f *fakeGlue) GetTable(ctx context.Context, in *glue.GetTableInput, _ ...func(*glue.Options)) (*glue.GetTableOutput, error) {
	if f.table == nil {
		return nil, &types.EntityNotFoundException{Message: aws.String("table not found")}
	}
	return &glue.GetTableOutput{Table: f.table}, nil
}

func (f *fakeGlue) GetPartitions(ctx context.Context, in *glue.GetPartitionsInput, _ ...func(*glue.Options)) (*glue.GetPartitionsOutput, error) {
	f.expressions = append(f.expressions, aws.ToString(in.Expression))
	page := 0
	if in.NextToken != nil {
		fmt.Sscanf(*in.NextToken, "%d", &page)
	}
	out := &glue.GetPartitionsOutput{}
	if page < len(f.pages) {
		out.Partitions = f.pages[page]
	}
	if page+1 < len(f.pages) {
		out.NextToken = aws.String(fmt.Sprintf("%d", page+1))
	}
	return out, nil
}

func (f *fakeGlue) CreateTable(ctx context.Context, in *glue.CreateTableInput, _ ...func(*glue.Options)) (*glue.CreateTableOutput, error) {
	if f.table != nil {
		return nil, &types.AlreadyExistsException{Message: aws.String("exists")}
	}
	f.created = append(f.created, in)
	return &glue.CreateTableOutput{}, nil
}

func (f *fakeGlue) UpdateTable(ctx context.Context, in *glue.UpdateTableInput, _ ...func(*glue.Options)) (*glue.UpdateTableOutput, error) {
	f.updated = append(f.updated, in)
	return &glue.UpdateTableOutput{}, nil
}

func (f *fakeGlue) BatchCreatePartition(ctx context.Context, in *glue.BatchCreatePartitionInput, _ ...func(*glue.Options)) (*glue.BatchCreatePartitionOutput, error) {
	f.createBatches = append(f.createBatches, in.PartitionInputList)
	return &glue.BatchCreatePartitionOutput{Errors: f.createErrors}, nil
}

func (f *fakeGlue) BatchDeletePartition(ctx context.Context, in *glue.BatchDeletePartitionInput, _ ...func(*glue.Options)) (*glue.BatchDeletePartitionOutput, error) {
	f.deleteBatches = append(f.deleteBatches, in.PartitionsToDelete)
	return &glue.BatchDeletePartitionOutput{}, nil
}

func rawStatisticsGlueTable() *types.Table {
	return &types.Table{
		Name:         aws.String("raw_statistics"),
		DatabaseName: aws.String("db_youtube_raw"),
		StorageDescriptor: &types.StorageDescriptor{
			Location: aws.String("s3://raw/youtube/raw_statistics/"),
			Columns: []types.Column{
				{Name: aws.String("video_id"), Type: aws.String("string")},
				{Name: aws.String("category_id"), Type: aws.String("bigint")},
				{Name: aws.String("tags"), Type: aws.String("array<string>")},
			},
			SerdeInfo: &types.SerDeInfo{SerializationLibrary: aws.String("org.apache.hadoop.hive.serde2.OpenCSVSerde")},
		},
		PartitionKeys: []types.Column{{Name: aws.String("region"), Type: aws.String("string")}},
	}
}

func TestGlueCatalog_GetTable(t *testing.T) {
	fake := &fakeGlue{table: rawStatisticsGlueTable()}
	cat := NewGlueCatalogWithClient(fake)

	tbl, err := cat.GetTable(context.Background(), "db_youtube_raw", "raw_statistics")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, tbl.Format)
	assert.Equal(t, "s3://raw/youtube/raw_statistics/", tbl.Location)
	assert.Equal(t, []core.Column{
		{Name: "video_id", Type: core.TypeString},
		{Name: "category_id", Type: core.TypeLong},
		{Name: "tags", Type: core.TypeString},
	}, tbl.Columns)
	assert.Equal(t, []string{"region"}, tbl.PartitionKeyNames())

	_, err = NewGlueCatalogWithClient(&fakeGlue{}).GetTable(context.Background(), "db", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGlueCatalog_GetPartitionsPushesExpression(t *testing.T) {
	fake := &fakeGlue{pages: [][]types.Partition{
		{{Values: []string{"ca"}, StorageDescriptor: &types.StorageDescriptor{Location: aws.String("s3://raw/region=ca/")}}},
		{{Values: []string{"us"}, StorageDescriptor: &types.StorageDescriptor{Location: aws.String("s3://raw/region=us/")}}},
	}}
	parts, err := NewGlueCatalogWithClient(fake).GetPartitions(context.Background(), "db", "t", "region IN ('ca', 'us')")
	require.NoError(t, err)
	assert.Equal(t, []Partition{
		{Values: []string{"ca"}, Location: "s3://raw/region=ca/"},
		{Values: []string{"us"}, Location: "s3://raw/region=us/"},
	}, parts)
	assert.Equal(t, []string{"region IN ('ca', 'us')", "region IN ('ca', 'us')"}, fake.expressions)
}

func TestGlueCatalog_CreateTable(t *testing.T) {
	fake := &fakeGlue{}
	cat := NewGlueCatalogWithClient(fake)
	err := cat.CreateTable(context.Background(), &Table{
		Database:      "db_youtube_cleaned",
		Name:          "cleansed_statistics_reference_data",
		Location:      "s3://cleansed/youtube/",
		Format:        FormatParquet,
		Columns:       []core.Column{{Name: "id", Type: core.TypeLong}},
		PartitionKeys: []core.Column{{Name: "region", Type: core.TypeString}},
	})
	require.NoError(t, err)
	require.Len(t, fake.created, 1)
	in := fake.created[0].TableInput
	assert.Equal(t, "bigint", aws.ToString(in.StorageDescriptor.Columns[0].Type))
	assert.Equal(t, parquetSerde, aws.ToString(in.StorageDescriptor.SerdeInfo.SerializationLibrary))
	assert.Equal(t, "parquet", in.Parameters["classification"])

	fake.table = rawStatisticsGlueTable()
	err = cat.CreateTable(context.Background(), &Table{Database: "db", Name: "x"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGlueCatalog_PartitionBatches(t *testing.T) {
	fake := &fakeGlue{table: rawStatisticsGlueTable()}
	cat := NewGlueCatalogWithClient(fake)

	var parts []Partition
	var values [][]string
	for i := 0; i < 230; i++ {
		v := fmt.Sprintf("r%03d", i)
		parts = append(parts, Partition{Values: []string{v}, Location: "s3://raw/region=" + v + "/"})
		values = append(values, []string{v})
	}
	require.NoError(t, cat.AddPartitions(context.Background(), "db", "t", parts))
	require.Len(t, fake.createBatches, 3)
	assert.Len(t, fake.createBatches[0], 100)
	assert.Len(t, fake.createBatches[2], 30)

	require.NoError(t, cat.DeletePartitions(context.Background(), "db", "t", values[:60]))
	require.Len(t, fake.deleteBatches, 3)
	assert.Len(t, fake.deleteBatches[2], 10)
}

func TestGlueCatalog_AddPartitionsErrors(t *testing.T) {
	fake := &fakeGlue{
		table: rawStatisticsGlueTable(),
		createErrors: []types.PartitionError{
			{PartitionValues: []string{"ca"}, ErrorDetail: &types.ErrorDetail{ErrorCode: aws.String("AlreadyExistsException")}},
		},
	}
	cat := NewGlueCatalogWithClient(fake)
	parts := []Partition{{Values: []string{"ca"}, Location: "s3://raw/region=ca/"}}
	require.NoError(t, cat.AddPartitions(context.Background(), "db", "t", parts))

	fake.createErrors = append(fake.createErrors, types.PartitionError{
		PartitionValues: []string{"us"},
		ErrorDetail:     &types.ErrorDetail{ErrorCode: aws.String("InternalServiceException"), ErrorMessage: aws.String("boom")},
	})
	err := cat.AddPartitions(context.Background(), "db", "t", parts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InternalServiceException")
}
