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
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/lakepipe/core"
)

// This file contains the value casts used by the mapper and the choice resolution built on them.

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Cast converts value to the Go representation of target: string, int64 (long), int32 (int),
// float64 (double), float32 (float), bool or time.Time. Null stays null. Text is trimmed
// before parsing; a fractional number never becomes an integer.
func Cast(value interface{}, target core.DataType) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	switch target {
	case core.TypeString:
		return convertToString(value), nil
	case core.TypeLong:
		return convertToInt64(value)
	case core.TypeInt:
		i, err := convertToInt64(value)
		if err != nil {
			return nil, err
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("%d is out of range for int", i)
		}
		return int32(i), nil
	case core.TypeDouble:
		return convertToFloat(value)
	case core.TypeFloat:
		f, err := convertToFloat(value)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case core.TypeBoolean:
		return convertToBool(value)
	case core.TypeTimestamp:
		return convertToTime(value)
	default:
		return nil, fmt.Errorf("unsupported target type: %s", target)
	}
}

// Conforms reports whether value already has the Go representation Cast produces for target.
// Null conforms to every type.
func Conforms(value interface{}, target core.DataType) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return target == core.TypeString
	case int64:
		return target == core.TypeLong
	case int32:
		return target == core.TypeInt
	case float64:
		return target == core.TypeDouble
	case float32:
		return target == core.TypeFloat
	case bool:
		return target == core.TypeBoolean
	case time.Time:
		return target == core.TypeTimestamp && v.Location() == time.UTC
	default:
		return false
	}
}

// Resolve casts every observed value of a column to the declared type, replacing values that
// do not conform with null. It returns the resolved column, or nil when nothing survived, and
// the number of values that were dropped.
func Resolve(declared core.DataType, observed []interface{}) ([]interface{}, int) {
	out := make([]interface{}, len(observed))
	dropped, kept := 0, 0
	for i, v := range observed {
		c, err := Cast(v, declared)
		if err != nil {
			dropped++
			continue
		}
		out[i] = c
		if c != nil {
			kept++
		}
	}
	if kept == 0 {
		return nil, dropped
	}
	return out, dropped
}

func convertToString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", value)
	}
}

// convertToInt64 attempts to convert a value to int64.
func convertToInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as an integer", v)
		}
		return integralFloat(f)
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float32:
		return integralFloat(float64(v))
	case float64:
		return integralFloat(v)
	default:
		return 0, fmt.Errorf("cannot convert %T to long", value)
	}
}

func integralFloat(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v is out of range for long", f)
	}
	return int64(f), nil
}

// convertToFloat attempts to convert a value to float64.
func convertToFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as a number", v)
		}
		return f, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case bool, time.Time:
		return 0, fmt.Errorf("cannot convert %T to double", value)
	default:
		i, err := convertToInt64(value)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %T to double", value)
		}
		return float64(i), nil
	}
}

// convertToBool attempts to convert a value to bool.
func convertToBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("cannot parse %q as a boolean", v)
		}
		return b, nil
	case float64, float32, time.Time:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	default:
		i, err := convertToInt64(value)
		if err != nil || (i != 0 && i != 1) {
			return false, fmt.Errorf("cannot convert %v to boolean", value)
		}
		return i == 1, nil
	}
}

func convertToTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a timestamp", v)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to timestamp", value)
	}
}
