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

package event

import (
	"errors"
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	jsoniter "github.com/json-iterator/go"

	"github.com/aaronlmathis/lakepipe/core"
)

// Package event decodes object-storage notifications into object locators.
//
// Storage notifications carry object keys in form encoding: spaces arrive as '+', and
// reserved or non-ASCII bytes as %XX escapes of their UTF-8 encoding. Keys are decoded before
// use so that they address the object that was actually written.

var (
	errMissing       = errors.New("field is missing or empty")
	errNoRecords     = errors.New("notification carries no records")
	errInvalidEscape = errors.New("invalid percent escape")
	errInvalidUTF8   = errors.New("decoded key is not valid UTF-8")
)

// ObjectRef locates one storage object.
type ObjectRef struct {
	Bucket string
	Key    string // Decoded key
}

// URI returns the s3:// locator of the object.
func (o ObjectRef) URI() string {
	return "s3://" + o.Bucket + "/" + o.Key
}

func (o ObjectRef) String() string {
	return o.URI()
}

// Decode extracts every object referenced by the notification, in record order.
// Any record lacking a bucket name or object key makes the whole event malformed.
func Decode(e events.S3Event) ([]ObjectRef, error) {
	if len(e.Records) == 0 {
		return nil, &core.MalformedEventError{Field: "Records", Err: errNoRecords}
	}

	refs := make([]ObjectRef, 0, len(e.Records))
	for i, rec := range e.Records {
		if rec.S3.Bucket.Name == "" {
			return nil, &core.MalformedEventError{Field: fmt.Sprintf("Records[%d].s3.bucket.name", i), Err: errMissing}
		}
		if rec.S3.Object.Key == "" {
			return nil, &core.MalformedEventError{Field: fmt.Sprintf("Records[%d].s3.object.key", i), Err: errMissing}
		}
		key, err := DecodeKey(rec.S3.Object.Key)
		if err != nil {
			return nil, &core.MalformedEventError{Field: fmt.Sprintf("Records[%d].s3.object.key", i), Err: err}
		}
		refs = append(refs, ObjectRef{Bucket: rec.S3.Bucket.Name, Key: key})
	}
	return refs, nil
}

// DecodeJSON decodes a raw notification payload and extracts its objects.
func DecodeJSON(payload []byte) ([]ObjectRef, error) {
	var e events.S3Event
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(payload, &e); err != nil {
		return nil, &core.MalformedEventError{Field: "payload", Err: err}
	}
	return Decode(e)
}

// DecodeKey reverses the form encoding applied to object keys in notifications.
func DecodeKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidEscape, err)
	}
	if !utf8.ValidString(key) {
		return "", errInvalidUTF8
	}
	return key, nil
}

// EncodeKey applies the same encoding storage notifications use. It is the inverse of DecodeKey.
func EncodeKey(key string) string {
	return url.QueryEscape(key)
}
