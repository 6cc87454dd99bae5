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

package mapping

import (
	"fmt"
	"strings"

	"github.com/aaronlmathis/lakepipe/core"
)

// Package mapping conforms a table to an explicit column mapping.
//
// Each mapping renames one source column and casts it through its declared source type to its
// target type. Values that cannot be cast become null and are reported; they never fail the
// run.

// Mapping maps one source column to one target column.
type Mapping struct {
	Source     string
	SourceType core.DataType
	Target     string
	TargetType core.DataType
}

func (m Mapping) String() string {
	return fmt.Sprintf("(%s %s -> %s %s)", m.Source, m.SourceType, m.Target, m.TargetType)
}

// ParseMappings builds mappings from (source, source type, target, target type) tuples.
func ParseMappings(tuples [][]string) ([]Mapping, error) {
	out := make([]Mapping, 0, len(tuples))
	for i, t := range tuples {
		if len(t) != 4 {
			return nil, fmt.Errorf("mapping %d: want 4 fields (source, source type, target, target type), got %d", i, len(t))
		}
		source, target := strings.TrimSpace(t[0]), strings.TrimSpace(t[2])
		if source == "" || target == "" {
			return nil, fmt.Errorf("mapping %d: source and target names are required", i)
		}
		st, err := core.ParseDataType(t[1])
		if err != nil {
			return nil, fmt.Errorf("mapping %d (%s): source type: %w", i, source, err)
		}
		tt, err := core.ParseDataType(t[3])
		if err != nil {
			return nil, fmt.Errorf("mapping %d (%s): target type: %w", i, source, err)
		}
		out = append(out, Mapping{Source: source, SourceType: st, Target: target, TargetType: tt})
	}
	return out, nil
}

// DefaultStatisticsMappings is the mapping of the trending video statistics dataset.
func DefaultStatisticsMappings() []Mapping {
	m := func(name string, t core.DataType) Mapping {
		return Mapping{Source: name, SourceType: t, Target: name, TargetType: t}
	}
	return []Mapping{
		m("video_id", core.TypeString),
		m("trending_date", core.TypeString),
		m("title", core.TypeString),
		m("channel_title", core.TypeString),
		m("category_id", core.TypeLong),
		m("publish_time", core.TypeString),
		m("tags", core.TypeString),
		m("views", core.TypeLong),
		m("likes", core.TypeLong),
		m("dislikes", core.TypeLong),
		m("comment_count", core.TypeLong),
		m("thumbnail_link", core.TypeString),
		m("comments_disabled", core.TypeBoolean),
		m("ratings_disabled", core.TypeBoolean),
		m("video_error_or_removed", core.TypeBoolean),
		m("description", core.TypeString),
		m("region", core.TypeString),
	}
}
