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

package lakepipe

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aaronlmathis/lakepipe/core"
)

// Package lakepipe contains two data-lake pipelines and the streaming machinery they share.
//
// The ingestion pipeline (jobs/ingest) turns a JSON object landing in object storage into a
// Parquet dataset registered in a metadata catalog. The batch pipeline (jobs/transform) reads
// a catalog table with partition pruning, conforms it to an explicit schema mapping and writes
// partitioned Parquet output.
//
// This file holds the record-by-record Pipeline used to move a DataSource into a DataSink:
//
//   p, err := lakepipe.NewPipeline().
//       From(source).
//       Filter(residual).
//       To(core.NewTableSink()).
//       Build()
//   if err != nil { return err }
//   if err := p.Execute(ctx); err != nil { return err }

// PipelineBuilder provides a fluent API for constructing streaming pipelines.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			transformers: make([]core.Transformer, 0),
			filters:      make([]core.Filter, 0),
			strategy:     core.FailFast,
		},
	}
}

// From sets the DataSource for the pipeline.
func (pb *PipelineBuilder) From(source core.DataSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// Transform adds a Transformer to the pipeline.
func (pb *PipelineBuilder) Transform(transformer core.Transformer) *PipelineBuilder {
	pb.pipeline.transformers = append(pb.pipeline.transformers, transformer)
	return pb
}

// Filter adds a Filter to the pipeline.
func (pb *PipelineBuilder) Filter(filter core.Filter) *PipelineBuilder {
	pb.pipeline.filters = append(pb.pipeline.filters, filter)
	return pb
}

// Map adds a mapping transformation to the pipeline using a function.
func (pb *PipelineBuilder) Map(fn func(ctx context.Context, record core.Record) (core.Record, error)) *PipelineBuilder {
	return pb.Transform(core.TransformFunc(fn))
}

// Where adds a filtering condition to the pipeline using a function.
func (pb *PipelineBuilder) Where(fn func(ctx context.Context, record core.Record) (bool, error)) *PipelineBuilder {
	return pb.Filter(core.FilterFunc(fn))
}

// To sets the DataSink for the pipeline.
func (pb *PipelineBuilder) To(sink core.DataSink) *PipelineBuilder {
	pb.pipeline.sink = sink
	return pb
}

// WithErrorStrategy sets the error handling strategy for the pipeline.
func (pb *PipelineBuilder) WithErrorStrategy(strategy core.ErrorStrategy) *PipelineBuilder {
	pb.pipeline.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom error handler for the pipeline.
func (pb *PipelineBuilder) WithErrorHandler(handler core.ErrorHandler) *PipelineBuilder {
	pb.pipeline.errorHandler = handler
	return pb
}

// Build validates and constructs the Pipeline from the builder.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	if pb.pipeline.sink == nil {
		return nil, fmt.Errorf("pipeline requires a data sink")
	}
	return pb.pipeline, nil
}

// Pipeline streams records from a DataSource through transformers and filters into a DataSink.
type Pipeline struct {
	transformers []core.Transformer
	filters      []core.Filter
	source       core.DataSource
	sink         core.DataSink
	strategy     core.ErrorStrategy
	errorHandler core.ErrorHandler
	processed    int64
	written      int64
}

// Execute runs the pipeline, processing all records from source to sink.
//
// The source is always closed. The sink is flushed and closed; a flush or close failure is
// returned when processing itself succeeded.
func (p *Pipeline) Execute(ctx context.Context) (err error) {
	defer func() {
		p.source.Close()
		if flushErr := p.sink.Flush(); flushErr != nil && err == nil {
			err = flushErr
		}
		if closeErr := p.sink.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		record, readErr := p.source.Read(ctx)
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			if err := p.handleError(ctx, record, readErr); err != nil {
				return err
			}
			continue
		}
		p.processed++

		// Skip empty records early
		if len(record) == 0 {
			continue
		}

		transformed, trErr := p.applyTransformations(ctx, record)
		if trErr != nil {
			if err := p.handleError(ctx, record, trErr); err != nil {
				return err
			}
			continue
		}
		if len(transformed) == 0 {
			continue
		}

		include, fErr := p.applyFilters(ctx, transformed)
		if fErr != nil {
			if err := p.handleError(ctx, record, fErr); err != nil {
				return err
			}
			continue
		}
		if !include {
			continue
		}

		if wErr := p.sink.Write(ctx, transformed); wErr != nil {
			if err := p.handleError(ctx, transformed, wErr); err != nil {
				return err
			}
			continue
		}
		p.written++
	}
}

// Counts returns the number of records read and written by the last Execute.
func (p *Pipeline) Counts() (processed, written int64) {
	return p.processed, p.written
}

// applyFilters applies all configured filters to a record.
func (p *Pipeline) applyFilters(ctx context.Context, record core.Record) (bool, error) {
	for _, filter := range p.filters {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		if !include {
			return false, nil
		}
	}
	return true, nil
}

// applyTransformations applies all configured transformers to a record in sequence.
func (p *Pipeline) applyTransformations(ctx context.Context, record core.Record) (core.Record, error) {
	current := record
	for _, transformer := range p.transformers {
		transformed, err := transformer.Transform(ctx, current)
		if err != nil {
			return nil, err
		}
		current = transformed
	}
	return current, nil
}

// handleError handles errors according to the pipeline's error strategy and handler.
// Returns an error if processing should stop, or nil to continue.
func (p *Pipeline) handleError(ctx context.Context, record core.Record, err error) error {
	switch p.strategy {
	case core.FailFast:
		return err
	case core.SkipErrors, core.CollectErrors:
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		return nil
	default:
		return err
	}
}
