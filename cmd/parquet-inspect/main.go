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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow/go/v12/parquet/file"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/lakepipe/readers"
	"github.com/aaronlmathis/lakepipe/storage"
)

// parquet-inspect prints the layout, schema and first rows of a Parquet object written by the
// pipelines.

type options struct {
	rows      int
	columns   []string
	localRoot string
	region    string
	endpoint  string
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "parquet-inspect <uri>",
		Short:         "Print row groups, schema and leading rows of a Parquet object",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return inspect(cmd.Context(), cmd.OutOrStdout(), store, args[0], opts.rows, opts.columns...)
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&opts.rows, "rows", "n", 5, "number of rows to print")
	flags.StringSliceVarP(&opts.columns, "columns", "c", nil, "print only these columns")
	flags.StringVar(&opts.localRoot, "local-root", "", "serve s3:// locations from this directory")
	flags.StringVar(&opts.region, "region", "", "AWS region")
	flags.StringVar(&opts.endpoint, "endpoint", "", "S3 compatible endpoint")
	return cmd
}

func openStore(ctx context.Context, uri string, opts *options) (storage.Store, error) {
	if opts.localRoot != "" || !strings.HasPrefix(uri, "s3") {
		return storage.NewLocalStore(opts.localRoot), nil
	}
	return storage.NewS3Store(ctx,
		storage.WithS3Region(opts.region),
		storage.WithS3Endpoint(opts.endpoint),
		storage.WithS3PathStyle(opts.endpoint != ""))
}

func inspect(ctx context.Context, out io.Writer, store storage.Store, uri string, rows int, columns ...string) error {
	data, err := storage.ReadAll(ctx, store, uri)
	if err != nil {
		return err
	}

	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("open %s: %w", uri, err)
	}
	defer pf.Close()

	fmt.Fprintf(out, "%s: %d bytes, %d rows, %d row groups\n", uri, len(data), pf.NumRows(), pf.NumRowGroups())
	for i := 0; i < pf.NumRowGroups(); i++ {
		fmt.Fprintf(out, "  row group %d: %d rows\n", i, pf.RowGroup(i).NumRows())
	}
	schema := pf.MetaData().Schema
	fmt.Fprintf(out, "parquet columns (%d):\n", schema.NumColumns())
	for i := 0; i < schema.NumColumns(); i++ {
		col := schema.Column(i)
		fmt.Fprintf(out, "  %d: %s (%s)\n", i, col.Name(), col.PhysicalType())
	}

	reader, err := readers.NewParquetReader(bytes.NewReader(data), readers.WithColumns(columns...))
	if err != nil {
		return err
	}
	defer reader.Close()

	fmt.Fprintln(out, "columns:")
	for _, c := range reader.Columns() {
		fmt.Fprintf(out, "  %s %s\n", c.Name, c.Type)
	}
	if md := reader.Schema().Metadata(); md.Len() > 0 {
		fmt.Fprintln(out, "metadata:")
		for i, k := range md.Keys() {
			fmt.Fprintf(out, "  %s=%s\n", k, md.Values()[i])
		}
	}

	fmt.Fprintf(out, "first %d rows:\n", rows)
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
	for i := 0; i < rows; i++ {
		rec, err := reader.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "parquet-inspect: %v\n", err)
		os.Exit(1)
	}
}
