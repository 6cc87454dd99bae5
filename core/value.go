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

package core

import (
	"bytes"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// This file contains Value, the tagged union used for semi-structured input.
//
// Objects keep their fields in document order so that anything derived from them, such as
// flattened column names, is deterministic.

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindObject
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is one node of a decoded semi-structured document.
// Scalar holds a string, int64, float64 or bool.
type Value struct {
	Kind   Kind
	Scalar interface{}
	Fields []Field
	Items  []Value
}

// Field is a named member of an object Value.
type Field struct {
	Name  string
	Value Value
}

// NullValue returns the null variant.
func NullValue() Value {
	return Value{Kind: KindNull}
}

// ScalarValue wraps a primitive.
func ScalarValue(v interface{}) Value {
	if v == nil {
		return NullValue()
	}
	return Value{Kind: KindScalar, Scalar: v}
}

// ObjectValue builds an object from fields in the given order.
func ObjectValue(fields ...Field) Value {
	return Value{Kind: KindObject, Fields: fields}
}

// ListValue builds a list.
func ListValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindList, Items: items}
}

// Get returns the member named name of an object Value.
func (v Value) Get(name string) (Value, bool) {
	if v.Kind != KindObject {
		return Value{}, false
	}
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the member named name, or appends it when absent.
func (v *Value) Set(name string, member Value) {
	for i := range v.Fields {
		if v.Fields[i].Name == name {
			v.Fields[i].Value = member
			return
		}
	}
	v.Fields = append(v.Fields, Field{Name: name, Value: member})
}

// Interface converts the Value to plain Go values (map[string]interface{}, []interface{}).
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindScalar:
		return v.Scalar
	case KindObject:
		m := make(map[string]interface{}, len(v.Fields))
		for _, f := range v.Fields {
			m[f.Name] = f.Value.Interface()
		}
		return m
	case KindList:
		out := make([]interface{}, len(v.Items))
		for i, item := range v.Items {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON renders the Value with object members in document order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.Kind {
	case KindScalar:
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v.Scalar)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindObject:
		buf.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(f.Name)
			if err != nil {
				return err
			}
			buf.Write(name)
			buf.WriteByte(':')
			if err := f.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		buf.WriteString("null")
	}
	return nil
}

// ValueOf converts plain Go values into a Value. Map keys are sorted because Go maps carry no
// order; use ObjectValue directly when order matters.
func ValueOf(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return NullValue()
	case Value:
		return t
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, Field{Name: k, Value: ValueOf(t[k])})
		}
		return ObjectValue(fields...)
	case Record:
		return ValueOf(map[string]interface{}(t))
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = ValueOf(item)
		}
		return ListValue(items...)
	case int:
		return ScalarValue(int64(t))
	case int32:
		return ScalarValue(int64(t))
	case float32:
		return ScalarValue(float64(t))
	default:
		return ScalarValue(t)
	}
}
