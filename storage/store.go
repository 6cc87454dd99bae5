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

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

// Package storage abstracts the object storage layers the pipelines read from and write to.
//
// Locations are URIs: s3://bucket/key for S3, file:///path or a bare path for the local
// filesystem. A prefix is a URI that other URIs extend; "directories" exist only as shared
// prefixes.

// ErrNotFound is returned (wrapped) when an object does not exist.
var ErrNotFound = errors.New("object not found")

// StoreError wraps storage failures with the operation and location.
type StoreError struct {
	Op  string // "open", "put", "list", "delete"
	URI string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.URI, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Object describes one stored object.
type Object struct {
	URI          string
	Size         int64
	LastModified time.Time
}

// Store is an object storage layer.
type Store interface {
	// Open returns the object's content. The caller closes it.
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
	// Put creates or replaces an object. Readers never observe a partially written object.
	Put(ctx context.Context, uri string, body io.Reader) error
	// List returns every object whose URI starts with prefix, sorted by URI.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Delete removes objects. Missing objects are not an error.
	Delete(ctx context.Context, uris []string) error
}

// Downloader is implemented by stores that can fetch a whole object more efficiently than
// streaming it through Open.
type Downloader interface {
	Download(ctx context.Context, uri string) ([]byte, error)
}

// ReadAll fetches a whole object, using the store's Downloader when it has one.
func ReadAll(ctx context.Context, store Store, uri string) ([]byte, error) {
	if d, ok := store.(Downloader); ok {
		return d.Download(ctx, uri)
	}
	rc, err := store.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &StoreError{Op: "open", URI: uri, Err: err}
	}
	return data, nil
}

// Join appends path elements to a base URI with single slashes.
func Join(base string, elems ...string) string {
	out := strings.TrimRight(base, "/")
	for _, e := range elems {
		e = strings.Trim(e, "/")
		if e == "" {
			continue
		}
		out += "/" + e
	}
	return out
}

// AsPrefix returns uri with exactly one trailing slash.
func AsPrefix(uri string) string {
	return strings.TrimRight(uri, "/") + "/"
}

// Location is a parsed storage URI.
type Location struct {
	Scheme string // "s3" or "file"
	Bucket string // S3 only
	Key    string // S3 key, or filesystem path for "file"
}

// ParseURI parses s3://bucket/key, file:///path, or a bare filesystem path.
func ParseURI(uri string) (Location, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"), strings.HasPrefix(uri, "s3a://"):
		rest := uri[strings.Index(uri, "://")+3:]
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Location{}, fmt.Errorf("uri %q has no bucket", uri)
		}
		return Location{Scheme: "s3", Bucket: bucket, Key: key}, nil
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return Location{}, fmt.Errorf("parse uri %q: %w", uri, err)
		}
		return Location{Scheme: "file", Key: u.Path}, nil
	case strings.Contains(uri, "://"):
		return Location{}, fmt.Errorf("unsupported uri scheme in %q", uri)
	default:
		return Location{Scheme: "file", Key: uri}, nil
	}
}

// ObjectURIs returns the URIs of objects.
func ObjectURIs(objects []Object) []string {
	out := make([]string, len(objects))
	for i, o := range objects {
		out[i] = o.URI
	}
	return out
}
