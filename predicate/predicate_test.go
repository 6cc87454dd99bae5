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

package predicate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/lakepipe/core"
)

func TestParse_Canonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"region in ('ca','gb','us')", "region IN ('ca', 'gb', 'us')"},
		{`region = "us"`, "region = 'us'"},
		{"region <> 'jp'", "region <> 'jp'"},
		{"region != 'jp'", "region <> 'jp'"},
		{"year >= 2018 and region = 'us'", "year >= 2018 AND region = 'us'"},
		{"(region = 'us' or region = 'ca') and year < 2019", "(region = 'us' OR region = 'ca') AND year < 2019"},
		{"not region in ('jp')", "NOT (region IN ('jp'))"},
		{"region NOT IN ('jp', 'kr')", "region NOT IN ('jp', 'kr')"},
		{"name = 'o''brien'", "name = 'o''brien'"},
		{"`trending date` = '17.14.11'", "trending date = '17.14.11'"},
		{"delta = -1.5", "delta = -1.5"},
		{"region in (ca,gb,us)", "region IN ('ca', 'gb', 'us')"},
		{"region not in (jp, 2018)", "region NOT IN ('jp', 2018)"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			e, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())

			if tt.in[0] == '`' {
				return
			}
			// Canonical text parses to the same canonical text.
			again, err := Parse(e.String())
			require.NoError(t, err)
			assert.Equal(t, tt.want, again.String())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	inputs := []string{
		"",
		"region",
		"region in 'ca'",
		"region in ('ca'",
		"region = 'ca",
		"region = 'ca' and",
		"= 'ca'",
		"region = ca",
		"region in (ca gb)",
		"region ! 'ca'",
		"region = 'ca')",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			var syntax *SyntaxError
			require.ErrorAs(t, err, &syntax)
		})
	}
}

func TestMatch(t *testing.T) {
	e, err := Parse("region in ('ca','gb','us')")
	require.NoError(t, err)

	for region, want := range map[string]bool{"ca": true, "gb": true, "us": true, "jp": false, "": false} {
		got, err := Match(e, map[string]string{"region": region})
		require.NoError(t, err)
		assert.Equal(t, want, got, region)
	}

	bare, err := Parse("region in (ca,gb,us)")
	require.NoError(t, err)
	got, err := Match(bare, map[string]string{"region": "gb"})
	require.NoError(t, err)
	assert.True(t, got)

	e, err = Parse("region not in ('jp') and year > 2017")
	require.NoError(t, err)
	got, err = Match(e, map[string]string{"region": "us", "year": "2018"})
	require.NoError(t, err)
	assert.True(t, got)
	got, err = Match(e, map[string]string{"region": "jp", "year": "2018"})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestFilter_OnRecords(t *testing.T) {
	e, err := Parse("REGION = 'us' OR region = 'gb'")
	require.NoError(t, err)
	f := e.Filter()
	ok, err := f.ShouldInclude(context.Background(), core.Record{"region": "gb"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestColumnsAndRestrict(t *testing.T) {
	e, err := Parse("region = 'us' and (views > 10 or region = 'ca')")
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "views"}, Columns(e))

	assert.NoError(t, Restrict(e, []string{"region", "views"}))
	err = Restrict(e, []string{"region"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "views")
}
