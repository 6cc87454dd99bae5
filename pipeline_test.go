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
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/lakepipe/core"
	"github.com/aaronlmathis/lakepipe/filter"
)

type sliceSource struct {
	records []core.Record
	errs    map[int]error
	pos     int
	closed  bool
}

func (s *sliceSource) Read(ctx context.Context) (core.Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	i := s.pos
	s.pos++
	if err := s.errs[i]; err != nil {
		return nil, err
	}
	return s.records[i], nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func statistics() []core.Record {
	return []core.Record{
		{"video_id": "a", "region": "ca", "views": int64(10)},
		{"video_id": "b", "region": "jp", "views": int64(20)},
		{"video_id": "c", "region": "us", "views": int64(30)},
	}
}

func TestPipeline_Execute(t *testing.T) {
	src := &sliceSource{records: statistics()}
	sink := core.NewTableSink(core.Column{Name: "video_id", Type: core.TypeString})

	p, err := NewPipeline().
		From(src).
		Filter(filter.Not(filter.Compare("region", filter.OpEq, "jp"))).
		Map(func(ctx context.Context, r core.Record) (core.Record, error) {
			r["views"] = r["views"].(int64) * 2
			return r, nil
		}).
		To(sink).
		Build()
	require.NoError(t, err)
	require.NoError(t, p.Execute(context.Background()))

	assert.True(t, src.closed)
	processed, written := p.Counts()
	assert.Equal(t, int64(3), processed)
	assert.Equal(t, int64(2), written)

	tbl := sink.Table()
	assert.Equal(t, []interface{}{"a", "c"}, tbl.Values("video_id"))
	assert.Equal(t, []interface{}{int64(20), int64(60)}, tbl.Values("views"))
}

func TestPipeline_Build(t *testing.T) {
	_, err := NewPipeline().To(core.NewTableSink()).Build()
	assert.Error(t, err)
	_, err = NewPipeline().From(&sliceSource{}).Build()
	assert.Error(t, err)
}

func TestPipeline_ErrorStrategies(t *testing.T) {
	boom := errors.New("bad record")

	t.Run("fail fast", func(t *testing.T) {
		src := &sliceSource{records: statistics(), errs: map[int]error{1: boom}}
		p, err := NewPipeline().From(src).To(core.NewTableSink()).Build()
		require.NoError(t, err)
		assert.ErrorIs(t, p.Execute(context.Background()), boom)
		assert.True(t, src.closed)
	})

	t.Run("skip with handler", func(t *testing.T) {
		src := &sliceSource{records: statistics(), errs: map[int]error{1: boom}}
		sink := core.NewTableSink()
		var seen []error
		p, err := NewPipeline().
			From(src).
			Where(func(ctx context.Context, r core.Record) (bool, error) {
				if r["region"] == "us" {
					return false, errors.New("filter failed")
				}
				return true, nil
			}).
			To(sink).
			WithErrorStrategy(core.SkipErrors).
			WithErrorHandler(core.ErrorHandlerFunc(func(ctx context.Context, r core.Record, err error) error {
				seen = append(seen, err)
				return nil
			})).
			Build()
		require.NoError(t, err)
		require.NoError(t, p.Execute(context.Background()))
		assert.Len(t, seen, 2)
		assert.Equal(t, 1, sink.Table().NumRows())
	})

	t.Run("handler stops", func(t *testing.T) {
		src := &sliceSource{records: statistics(), errs: map[int]error{0: boom}}
		stop := errors.New("stop")
		p, err := NewPipeline().
			From(src).
			To(core.NewTableSink()).
			WithErrorStrategy(core.CollectErrors).
			WithErrorHandler(core.ErrorHandlerFunc(func(ctx context.Context, r core.Record, err error) error {
				return stop
			})).
			Build()
		require.NoError(t, err)
		assert.ErrorIs(t, p.Execute(context.Background()), stop)
	})
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err := NewPipeline().From(&sliceSource{records: statistics()}).To(core.NewTableSink()).Build()
	require.NoError(t, err)
	assert.ErrorIs(t, p.Execute(ctx), context.Canceled)
}
