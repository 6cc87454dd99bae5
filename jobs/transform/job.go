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

package transform

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aaronlmathis/lakepipe/catalog"
	"github.com/aaronlmathis/lakepipe/config"
	"github.com/aaronlmathis/lakepipe/mapping"
	"github.com/aaronlmathis/lakepipe/readers"
	"github.com/aaronlmathis/lakepipe/storage"
	"github.com/aaronlmathis/lakepipe/writers"
)

// Package transform is the batch job that reads a cataloged raw table, maps its columns to
// declared types and writes the cleansed, partitioned result.

// Result describes one run.
type Result struct {
	Partitions int // Source partitions read after pushdown
	RowsRead   int
	Report     *mapping.Report
	Write      *writers.WriteResult
	Duration   time.Duration
}

// Job runs the batch transformation described by a TransformConfig.
type Job struct {
	cfg    config.TransformConfig
	store  storage.Store
	cat    catalog.Catalog
	mapper *mapping.Mapper
	writer *writers.DatasetWriter
	log    *zap.Logger
}

// NewJob validates the mappings and creates a job.
func NewJob(cfg config.TransformConfig, store storage.Store, cat catalog.Catalog, log *zap.Logger, options ...writers.DatasetWriterOption) (*Job, error) {
	if log == nil {
		log = zap.NewNop()
	}
	mapper, err := mapping.NewMapper(cfg.Mappings, mapping.WithDropNullFields(cfg.DropNullFields))
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("job", cfg.JobName))
	options = append([]writers.DatasetWriterOption{writers.WithDatasetLogger(log)}, options...)
	return &Job{
		cfg:    cfg,
		store:  store,
		cat:    cat,
		mapper: mapper,
		writer: writers.NewDatasetWriter(store, cat, options...),
		log:    log,
	}, nil
}

// Run reads the source partitions that satisfy the predicate, applies the mappings and writes
// the result. Any failure aborts the run.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	src := j.cfg.Source
	log := j.log.With(zap.String("database", src.Database), zap.String("table", src.Table))

	// The reader tags its own entries with the source table.
	var opts []readers.CatalogReaderOption
	opts = append(opts, readers.WithLogger(j.log))
	if src.Predicate != nil {
		opts = append(opts, readers.WithPredicate(src.Predicate))
	}
	ds, err := readers.NewCatalogReader(j.cat, j.store, src.Database, src.Table, opts...).Load(ctx)
	if err != nil {
		log.Error("failed to resolve source", zap.Error(err))
		return nil, err
	}

	raw, err := ds.Materialize(ctx)
	if err != nil {
		log.Error("failed to read source", zap.Error(err))
		return nil, fmt.Errorf("read %s.%s: %w", src.Database, src.Table, err)
	}

	mapped, report, err := j.mapper.Apply(raw)
	if err != nil {
		log.Error("failed to apply mappings", zap.Error(err))
		return nil, err
	}
	logReport(log, report)

	dest := j.cfg.Destination
	written, err := j.writer.Write(ctx, mapped, dest)
	if err != nil {
		log.Error("failed to write destination",
			zap.String("destination_database", dest.Database),
			zap.String("destination_table", dest.Table),
			zap.Error(err))
		return nil, err
	}

	res := &Result{
		Partitions: len(ds.Partitions()),
		RowsRead:   raw.NumRows(),
		Report:     report,
		Write:      written,
		Duration:   time.Since(start),
	}
	log.Info("job finished",
		zap.Int("partitions", res.Partitions),
		zap.Int("rows", res.RowsRead),
		zap.Int64("rows_written", written.RowCount),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func logReport(log *zap.Logger, r *mapping.Report) {
	if n := r.TotalDropped(); n > 0 {
		columns := make([]string, 0, len(r.DroppedValues))
		for c := range r.DroppedValues {
			columns = append(columns, c)
		}
		sort.Strings(columns)
		for _, c := range columns {
			log.Warn("values replaced by null", zap.String("column", c), zap.Int("count", r.DroppedValues[c]))
		}
		for _, e := range r.Errors {
			log.Debug("coercion failure", zap.Error(e))
		}
	}
	log.Info("mappings applied",
		zap.Int("rows", r.Rows),
		zap.Int("dropped_values", r.TotalDropped()),
		zap.Strings("dropped_columns", r.DroppedColumns),
		zap.Strings("missing_columns", r.MissingColumns),
		zap.Strings("unmapped_columns", r.UnmappedColumns))
}
