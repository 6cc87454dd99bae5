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
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"

	"github.com/aaronlmathis/lakepipe/core"
)

// Glue request limits.
const (
	glueCreateBatchSize = 100
	glueDeleteBatchSize = 25
)

// Hive class names registered for Parquet tables.
const (
	parquetInputFormat  = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat"
	parquetOutputFormat = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetOutputFormat"
	parquetSerde        = "org.apache.hadoop.hive.ql.io.parquet.serde.ParquetHiveSerDe"
)

// GlueAPI is the subset of the Glue client used by GlueCatalog.
type GlueAPI interface {
	glue.GetPartitionsAPIClient
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
	CreateTable(ctx context.Context, params *glue.CreateTableInput, optFns ...func(*glue.Options)) (*glue.CreateTableOutput, error)
	UpdateTable(ctx context.Context, params *glue.UpdateTableInput, optFns ...func(*glue.Options)) (*glue.UpdateTableOutput, error)
	BatchCreatePartition(ctx context.Context, params *glue.BatchCreatePartitionInput, optFns ...func(*glue.Options)) (*glue.BatchCreatePartitionOutput, error)
	BatchDeletePartition(ctx context.Context, params *glue.BatchDeletePartitionInput, optFns ...func(*glue.Options)) (*glue.BatchDeletePartitionOutput, error)
}

// GlueCatalog implements Catalog on the AWS Glue Data Catalog.
type GlueCatalog struct {
	client GlueAPI
}

// NewGlueCatalog creates a catalog from an AWS configuration.
func NewGlueCatalog(cfg aws.Config, optFns ...func(*glue.Options)) *GlueCatalog {
	return &GlueCatalog{client: glue.NewFromConfig(cfg, optFns...)}
}

// NewGlueCatalogWithClient creates a catalog over an existing client.
func NewGlueCatalogWithClient(client GlueAPI) *GlueCatalog {
	return &GlueCatalog{client: client}
}

func (g *GlueCatalog) GetTable(ctx context.Context, database, table string) (*Table, error) {
	out, err := g.client.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		return nil, &CatalogError{Op: "get_table", Database: database, Table: table, Err: translateGlueError(err)}
	}
	if out.Table == nil {
		return nil, &CatalogError{Op: "get_table", Database: database, Table: table, Err: ErrNotFound}
	}
	return fromGlueTable(database, out.Table), nil
}

func (g *GlueCatalog) GetPartitions(ctx context.Context, database, table, expression string) ([]Partition, error) {
	input := &glue.GetPartitionsInput{
		DatabaseName: aws.String(database),
		TableName:    aws.String(table),
	}
	if expression != "" {
		input.Expression = aws.String(expression)
	}

	var out []Partition
	paginator := glue.NewGetPartitionsPaginator(g.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &CatalogError{Op: "get_partitions", Database: database, Table: table, Err: translateGlueError(err)}
		}
		for _, p := range page.Partitions {
			part := Partition{Values: p.Values}
			if p.StorageDescriptor != nil {
				part.Location = aws.ToString(p.StorageDescriptor.Location)
			}
			out = append(out, part)
		}
	}
	return out, nil
}

func (g *GlueCatalog) CreateTable(ctx context.Context, table *Table) error {
	if err := validateTable(table); err != nil {
		return &CatalogError{Op: "create_table", Err: err}
	}
	_, err := g.client.CreateTable(ctx, &glue.CreateTableInput{
		DatabaseName: aws.String(table.Database),
		TableInput:   toGlueTableInput(table),
	})
	if err != nil {
		return &CatalogError{Op: "create_table", Database: table.Database, Table: table.Name, Err: translateGlueError(err)}
	}
	return nil
}

func (g *GlueCatalog) UpdateTable(ctx context.Context, table *Table) error {
	if err := validateTable(table); err != nil {
		return &CatalogError{Op: "update_table", Err: err}
	}
	_, err := g.client.UpdateTable(ctx, &glue.UpdateTableInput{
		DatabaseName: aws.String(table.Database),
		TableInput:   toGlueTableInput(table),
	})
	if err != nil {
		return &CatalogError{Op: "update_table", Database: table.Database, Table: table.Name, Err: translateGlueError(err)}
	}
	return nil
}

func (g *GlueCatalog) AddPartitions(ctx context.Context, database, table string, partitions []Partition) error {
	if len(partitions) == 0 {
		return nil
	}
	t, err := g.GetTable(ctx, database, table)
	if err != nil {
		return err
	}

	for start := 0; start < len(partitions); start += glueCreateBatchSize {
		end := start + glueCreateBatchSize
		if end > len(partitions) {
			end = len(partitions)
		}
		inputs := make([]types.PartitionInput, 0, end-start)
		for _, p := range partitions[start:end] {
			sd := toGlueStorageDescriptor(t.Format, t.Columns, p.Location)
			inputs = append(inputs, types.PartitionInput{Values: p.Values, StorageDescriptor: sd})
		}
		out, err := g.client.BatchCreatePartition(ctx, &glue.BatchCreatePartitionInput{
			DatabaseName:       aws.String(database),
			TableName:          aws.String(table),
			PartitionInputList: inputs,
		})
		if err != nil {
			return &CatalogError{Op: "add_partitions", Database: database, Table: table, Err: translateGlueError(err)}
		}
		if err := partitionErrors(out.Errors, "AlreadyExistsException"); err != nil {
			return &CatalogError{Op: "add_partitions", Database: database, Table: table, Err: err}
		}
	}
	return nil
}

func (g *GlueCatalog) DeletePartitions(ctx context.Context, database, table string, values [][]string) error {
	for start := 0; start < len(values); start += glueDeleteBatchSize {
		end := start + glueDeleteBatchSize
		if end > len(values) {
			end = len(values)
		}
		lists := make([]types.PartitionValueList, 0, end-start)
		for _, v := range values[start:end] {
			lists = append(lists, types.PartitionValueList{Values: v})
		}
		out, err := g.client.BatchDeletePartition(ctx, &glue.BatchDeletePartitionInput{
			DatabaseName:       aws.String(database),
			TableName:          aws.String(table),
			PartitionsToDelete: lists,
		})
		if err != nil {
			return &CatalogError{Op: "delete_partitions", Database: database, Table: table, Err: translateGlueError(err)}
		}
		if err := partitionErrors(out.Errors, "EntityNotFoundException"); err != nil {
			return &CatalogError{Op: "delete_partitions", Database: database, Table: table, Err: err}
		}
	}
	return nil
}

func partitionErrors(errs []types.PartitionError, ignoreCode string) error {
	var msgs []string
	for _, pe := range errs {
		code, msg := "", ""
		if pe.ErrorDetail != nil {
			code = aws.ToString(pe.ErrorDetail.ErrorCode)
			msg = aws.ToString(pe.ErrorDetail.ErrorMessage)
		}
		if code == ignoreCode {
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%v: %s %s", pe.PartitionValues, code, msg))
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%d partitions failed: %s", len(msgs), strings.Join(msgs, "; "))
}

func translateGlueError(err error) error {
	var nf *types.EntityNotFoundException
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var ae *types.AlreadyExistsException
	if errors.As(err, &ae) {
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	}
	return err
}

func fromGlueTable(database string, gt *types.Table) *Table {
	t := &Table{
		Database:   database,
		Name:       aws.ToString(gt.Name),
		Parameters: gt.Parameters,
	}
	if gt.DatabaseName != nil {
		t.Database = *gt.DatabaseName
	}
	if sd := gt.StorageDescriptor; sd != nil {
		t.Location = aws.ToString(sd.Location)
		t.Columns = fromGlueColumns(sd.Columns)
		t.Format = detectFormat(sd, gt.Parameters)
	}
	t.PartitionKeys = fromGlueColumns(gt.PartitionKeys)
	return t
}

func fromGlueColumns(cols []types.Column) []core.Column {
	out := make([]core.Column, 0, len(cols))
	for _, c := range cols {
		dt, err := core.ParseDataType(aws.ToString(c.Type))
		if err != nil {
			// Complex Hive types are carried as text.
			dt = core.TypeString
		}
		out = append(out, core.Column{Name: aws.ToString(c.Name), Type: dt})
	}
	return out
}

func detectFormat(sd *types.StorageDescriptor, params map[string]string) string {
	if c := strings.ToLower(params["classification"]); c != "" {
		return c
	}
	lib := ""
	if sd.SerdeInfo != nil {
		lib = strings.ToLower(aws.ToString(sd.SerdeInfo.SerializationLibrary))
	}
	input := strings.ToLower(aws.ToString(sd.InputFormat))
	switch {
	case strings.Contains(lib, "parquet"), strings.Contains(input, "parquet"):
		return FormatParquet
	case strings.Contains(lib, "json"):
		return FormatJSON
	default:
		return FormatCSV
	}
}

func toGlueColumns(cols []core.Column) []types.Column {
	out := make([]types.Column, len(cols))
	for i, c := range cols {
		out[i] = types.Column{Name: aws.String(c.Name), Type: aws.String(c.Type.CatalogName())}
	}
	return out
}

func toGlueStorageDescriptor(format string, cols []core.Column, location string) *types.StorageDescriptor {
	sd := &types.StorageDescriptor{
		Columns:  toGlueColumns(cols),
		Location: aws.String(location),
	}
	if format == FormatParquet || format == "" {
		sd.InputFormat = aws.String(parquetInputFormat)
		sd.OutputFormat = aws.String(parquetOutputFormat)
		sd.SerdeInfo = &types.SerDeInfo{
			SerializationLibrary: aws.String(parquetSerde),
			Parameters:           map[string]string{"serialization.format": "1"},
		}
	}
	return sd
}

func toGlueTableInput(t *Table) *types.TableInput {
	params := map[string]string{"classification": t.Format}
	if t.Format == "" {
		params["classification"] = FormatParquet
	}
	for k, v := range t.Parameters {
		params[k] = v
	}
	return &types.TableInput{
		Name:              aws.String(t.Name),
		TableType:         aws.String("EXTERNAL_TABLE"),
		StorageDescriptor: toGlueStorageDescriptor(t.Format, t.Columns, t.Location),
		PartitionKeys:     toGlueColumns(t.PartitionKeys),
		Parameters:        params,
	}
}
