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

package readers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/aaronlmathis/lakepipe/core"
	"github.com/aaronlmathis/lakepipe/storage"
)

// Package readers provides core.DataSource implementations and the raw document reader used by
// the ingestion pipeline.

// ReadRaw fetches one object and decodes it into raw records, keeping object keys in document
// order. The object may hold a single JSON document, a top-level array whose elements are the
// records, or JSON Lines. Storage failures are returned wrapped and are not retried; content
// that is not JSON yields a core.DeserializationError.
func ReadRaw(ctx context.Context, store storage.Store, uri string) ([]core.Value, error) {
	data, err := storage.ReadAll(ctx, store, uri)
	if err != nil {
		return nil, fmt.Errorf("read raw object %s: %w", uri, err)
	}
	docs, err := DecodeDocuments(data)
	if err != nil {
		return nil, &core.DeserializationError{URI: uri, Err: err}
	}
	if len(docs) == 1 && docs[0].Kind == core.KindList {
		return docs[0].Items, nil
	}
	return docs, nil
}

// DecodeDocuments decodes one or more concatenated JSON documents.
func DecodeDocuments(data []byte) ([]core.Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("object is empty")
	}
	iter := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, data)

	var docs []core.Value
	for {
		if iter.WhatIsNext() == jsoniter.InvalidValue {
			if errors.Is(iter.Error, io.EOF) {
				break
			}
			if iter.Error != nil {
				return nil, iter.Error
			}
			return nil, fmt.Errorf("document %d: invalid JSON", len(docs)+1)
		}
		v := decodeValue(iter)
		if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
			return nil, fmt.Errorf("document %d: %w", len(docs)+1, iter.Error)
		}
		docs = append(docs, v)
		if errors.Is(iter.Error, io.EOF) {
			break
		}
	}
	return docs, nil
}

// decodeValue reads the next value as a core.Value, preserving object key order.
func decodeValue(iter *jsoniter.Iterator) core.Value {
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		obj := core.ObjectValue()
		iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
			obj.Set(field, decodeValue(it))
			return it.Error == nil || errors.Is(it.Error, io.EOF)
		})
		return obj
	case jsoniter.ArrayValue:
		items := []core.Value{}
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			items = append(items, decodeValue(it))
			return it.Error == nil || errors.Is(it.Error, io.EOF)
		})
		return core.ListValue(items...)
	case jsoniter.StringValue:
		return core.ScalarValue(iter.ReadString())
	case jsoniter.NumberValue:
		return core.ScalarValue(parseNumber(string(iter.ReadNumber())))
	case jsoniter.BoolValue:
		return core.ScalarValue(iter.ReadBool())
	case jsoniter.NilValue:
		iter.ReadNil()
		return core.NullValue()
	default:
		iter.ReportError("decodeValue", "unexpected token")
		return core.NullValue()
	}
}

// parseNumber keeps integers exact as int64 and everything else as float64.
func parseNumber(text string) interface{} {
	if !strings.ContainsAny(text, ".eE") {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return text
	}
	return f
}
