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
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aaronlmathis/lakepipe/core"
	"github.com/aaronlmathis/lakepipe/storage"
)

// StoreReaderError provides structured error information for store reader operations
type StoreReaderError struct {
	Op  string // Operation that failed (e.g., "open_object", "read_record")
	URI string
	Err error // Underlying error
}

func (e *StoreReaderError) Error() string {
	return fmt.Sprintf("store reader %s %s: %v", e.Op, e.URI, e.Err)
}

func (e *StoreReaderError) Unwrap() error {
	return e.Err
}

// StoreReaderStats holds statistics about the store reader's progress
type StoreReaderStats struct {
	ObjectsRead    int64         // Objects fully opened
	RecordsRead    int64         // Records read across all objects
	BytesRead      int64         // Bytes fetched for columnar objects
	ReadDuration   time.Duration // Total time spent reading
	CurrentObject  string        // Currently processing object
	ProcessedFiles []string      // URIs of objects opened, in order
}

// SourceObject is one object to read, with the partition values to stamp on its records.
type SourceObject struct {
	URI       string
	Format    string            // "csv", "json", "parquet"; inferred from the extension when empty
	Partition map[string]string // Partition column values
}

// StoreReader implements core.DataSource over a list of storage objects, choosing a format
// reader per object.
type StoreReader struct {
	store         storage.Store
	objects       []SourceObject
	currentIndex  int
	currentReader core.DataSource
	csvOptions    []ReaderOptionCSV
	stats         StoreReaderStats
	mu            sync.Mutex
}

// NewStoreReader creates a reader over objects, read in the given order.
func NewStoreReader(store storage.Store, objects []SourceObject, csvOptions ...ReaderOptionCSV) *StoreReader {
	return &StoreReader{
		store:      store,
		objects:    objects,
		csvOptions: csvOptions,
		stats:      StoreReaderStats{ProcessedFiles: make([]string, 0, len(objects))},
	}
}

// Read implements the core.DataSource interface
func (s *StoreReader) Read(ctx context.Context) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		s.stats.ReadDuration += time.Since(start)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, &StoreReaderError{Op: "read", Err: ctx.Err()}
		default:
		}

		// Open the next object if needed
		if s.currentReader == nil {
			if s.currentIndex >= len(s.objects) {
				return nil, io.EOF
			}
			if err := s.openNextObject(ctx); err != nil {
				return nil, err
			}
		}

		record, err := s.currentReader.Read(ctx)
		if errors.Is(err, io.EOF) {
			if err := s.closeCurrentReader(); err != nil {
				return nil, &StoreReaderError{Op: "close_object", URI: s.objects[s.currentIndex-1].URI, Err: err}
			}
			continue
		}
		if err != nil {
			return nil, &StoreReaderError{Op: "read_record", URI: s.objects[s.currentIndex].URI, Err: err}
		}

		for k, v := range s.objects[s.currentIndex].Partition {
			record[k] = v
		}
		s.stats.RecordsRead++
		return record, nil
	}
}

// Close implements the core.DataSource interface
func (s *StoreReader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCurrentReader()
}

// Stats returns reader statistics
func (s *StoreReader) Stats() StoreReaderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *StoreReader) openNextObject(ctx context.Context) error {
	obj := s.objects[s.currentIndex]
	s.stats.CurrentObject = obj.URI

	format := obj.Format
	if format == "" {
		format = FormatFromKey(obj.URI)
	}

	var reader core.DataSource
	switch format {
	case "parquet":
		// Parquet needs random access to the footer.
		data, err := storage.ReadAll(ctx, s.store, obj.URI)
		if err != nil {
			return &StoreReaderError{Op: "open_object", URI: obj.URI, Err: err}
		}
		s.stats.BytesRead += int64(len(data))
		pr, err := NewParquetReader(bytes.NewReader(data))
		if err != nil {
			return &StoreReaderError{Op: "open_object", URI: obj.URI, Err: err}
		}
		reader = pr
	case "csv":
		body, err := s.store.Open(ctx, obj.URI)
		if err != nil {
			return &StoreReaderError{Op: "open_object", URI: obj.URI, Err: err}
		}
		cr, err := NewCSVReader(body, s.csvOptions...)
		if err != nil {
			body.Close()
			if errors.Is(err, io.EOF) {
				// An empty file has no header and no rows.
				reader = emptySource{}
				break
			}
			return &StoreReaderError{Op: "open_object", URI: obj.URI, Err: err}
		}
		reader = cr
	case "json":
		body, err := s.store.Open(ctx, obj.URI)
		if err != nil {
			return &StoreReaderError{Op: "open_object", URI: obj.URI, Err: err}
		}
		reader = NewJSONReader(body)
	default:
		return &StoreReaderError{Op: "open_object", URI: obj.URI, Err: fmt.Errorf("unsupported format %q", format)}
	}

	s.currentReader = reader
	s.stats.ObjectsRead++
	s.stats.ProcessedFiles = append(s.stats.ProcessedFiles, obj.URI)
	return nil
}

// closeCurrentReader closes the current object reader and advances to the next object
func (s *StoreReader) closeCurrentReader() error {
	if s.currentReader != nil {
		err := s.currentReader.Close()
		s.currentReader = nil
		s.currentIndex++
		return err
	}
	return nil
}

// FormatFromKey infers a format from an object key's extension.
func FormatFromKey(key string) string {
	name := strings.ToLower(path.Base(key))
	switch {
	case strings.HasSuffix(name, ".parquet"):
		return "parquet"
	case strings.HasSuffix(name, ".csv"):
		return "csv"
	default:
		return "json"
	}
}

// IsDataObject reports whether a listed key holds data, skipping markers such as _SUCCESS,
// hidden files and folder placeholders.
func IsDataObject(key string) bool {
	name := path.Base(key)
	if strings.HasSuffix(key, "/") || strings.HasSuffix(name, "_$folder$") {
		return false
	}
	return !strings.HasPrefix(name, "_") && !strings.HasPrefix(name, ".")
}

type emptySource struct{}

func (emptySource) Read(ctx context.Context) (core.Record, error) { return nil, io.EOF }
func (emptySource) Close() error                                   { return nil }
