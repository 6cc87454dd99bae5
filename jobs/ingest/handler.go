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

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"github.com/aaronlmathis/lakepipe/catalog"
	"github.com/aaronlmathis/lakepipe/config"
	"github.com/aaronlmathis/lakepipe/event"
	"github.com/aaronlmathis/lakepipe/flatten"
	"github.com/aaronlmathis/lakepipe/readers"
	"github.com/aaronlmathis/lakepipe/storage"
	"github.com/aaronlmathis/lakepipe/writers"
)

// Package ingest converts newly landed JSON reference objects into a cataloged Parquet dataset.
//
// One invocation handles one storage notification. Each referenced object is read, its nested
// item list expanded into rows, and the rows written to the cleansed dataset. A failing object
// aborts the invocation so that the trigger reports the failure and may retry.

// regionHint is appended to read failures; most of them are missing objects or a function
// deployed in another region than the bucket.
const regionHint = "make sure the object exists and the bucket is in the same region as this function"

// ObjectResult describes one processed object.
type ObjectResult struct {
	Object   string
	Rows     int64
	Columns  []string
	Files    []string
	Duration time.Duration
}

// Result describes one invocation.
type Result struct {
	Objects []ObjectResult
}

// RowCount returns the rows written across all objects.
func (r *Result) RowCount() int64 {
	var n int64
	for _, o := range r.Objects {
		n += o.Rows
	}
	return n
}

// Handler processes storage notifications.
type Handler struct {
	cfg    config.IngestConfig
	store  storage.Store
	writer *writers.DatasetWriter
	log    *zap.Logger
}

// NewHandler creates a handler writing through store and cat.
func NewHandler(cfg config.IngestConfig, store storage.Store, cat catalog.Catalog, log *zap.Logger, options ...writers.DatasetWriterOption) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	options = append([]writers.DatasetWriterOption{writers.WithDatasetLogger(log)}, options...)
	return &Handler{
		cfg:    cfg,
		store:  store,
		writer: writers.NewDatasetWriter(store, cat, options...),
		log:    log,
	}
}

// Handle processes every object referenced by e, in order, and stops at the first failure.
func (h *Handler) Handle(ctx context.Context, e events.S3Event) (*Result, error) {
	log := h.log
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		log = log.With(zap.String("request_id", lc.AwsRequestID))
	}

	refs, err := event.Decode(e)
	if err != nil {
		log.Error("invalid notification", zap.Error(err))
		return nil, err
	}

	result := &Result{}
	for _, ref := range refs {
		objLog := log.With(zap.String("bucket", ref.Bucket), zap.String("key", ref.Key))
		res, err := h.processObject(ctx, objLog, ref)
		if err != nil {
			objLog.Error(fmt.Sprintf("error processing object %s from bucket %s; %s", ref.Key, ref.Bucket, regionHint),
				zap.Error(err))
			return result, err
		}
		result.Objects = append(result.Objects, *res)
	}
	return result, nil
}

func (h *Handler) processObject(ctx context.Context, log *zap.Logger, ref event.ObjectRef) (*ObjectResult, error) {
	start := time.Now()

	records, err := readers.ReadRaw(ctx, h.store, ref.URI())
	if err != nil {
		return nil, err
	}
	table, err := flatten.Flatten(records, h.cfg.NestedField)
	if err != nil {
		return nil, err
	}
	table.InferColumnTypes()
	log.Debug("object flattened",
		zap.Int("records", len(records)),
		zap.Int("rows", table.NumRows()),
		zap.Strings("columns", table.ColumnNames()))

	written, err := h.writer.Write(ctx, table, h.cfg.Destination())
	if err != nil {
		return nil, err
	}

	res := &ObjectResult{
		Object:   ref.URI(),
		Rows:     written.RowCount,
		Columns:  table.ColumnNames(),
		Files:    written.Paths,
		Duration: time.Since(start),
	}
	log.Info("object ingested",
		zap.Int64("rows", res.Rows),
		zap.Int("files", len(res.Files)),
		zap.Duration("duration", res.Duration))
	return res, nil
}
