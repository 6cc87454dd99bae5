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

package writers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aaronlmathis/lakepipe/catalog"
	"github.com/aaronlmathis/lakepipe/core"
	"github.com/aaronlmathis/lakepipe/mapping"
	"github.com/aaronlmathis/lakepipe/storage"
)

// This file implements DatasetWriter, which writes a table as a Hive-partitioned Parquet dataset
// and registers it in the catalog.

// WriteMode selects how existing data at a destination is treated.
type WriteMode string

const (
	// ModeOverwrite replaces everything under the destination path and the table definition.
	ModeOverwrite WriteMode = "overwrite"
	// ModeAppend adds files and leaves existing data alone.
	ModeAppend WriteMode = "append"
	// ModeOverwritePartitions replaces only the partitions present in the written table.
	ModeOverwritePartitions WriteMode = "overwrite_partitions"
)

// DefaultPartitionName is the directory value used for null partition values.
const DefaultPartitionName = "__HIVE_DEFAULT_PARTITION__"

// ParseWriteMode validates a write mode name. Matching is case-insensitive.
func ParseWriteMode(s string) (WriteMode, error) {
	switch m := WriteMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeOverwrite, ModeAppend, ModeOverwritePartitions:
		return m, nil
	default:
		return "", fmt.Errorf("unknown write mode %q (want overwrite, append or overwrite_partitions)", s)
	}
}

// Destination describes where and how a table is written.
type Destination struct {
	Path          string // Dataset root, e.g. s3://bucket/youtube/raw_statistics/
	Database      string
	Table         string
	Mode          WriteMode
	PartitionKeys []string
	Compression   compress.Compression // Snappy when zero
}

// WriteResult describes the files a write produced.
type WriteResult struct {
	Paths       []string         // New data files, sorted
	RowCount    int64            // Rows written across all files
	RowsPerPath map[string]int64 // Rows per data file
	Partitions  []catalog.Partition
	Deleted     []string // Files replaced by the write
}

// DatasetWriterOptions configures a DatasetWriter.
type DatasetWriterOptions struct {
	Concurrency   int // Partition files written in parallel
	Logger        *zap.Logger
	ParquetOption []WriterOption
	NewName       func() string // File name generator; part-<uuid> by default
}

// DatasetWriterOption represents a configuration function for DatasetWriter.
type DatasetWriterOption func(*DatasetWriterOptions)

// WithConcurrency sets how many partition files are encoded and uploaded at once.
func WithConcurrency(n int) DatasetWriterOption {
	return func(opts *DatasetWriterOptions) {
		opts.Concurrency = n
	}
}

func WithDatasetLogger(log *zap.Logger) DatasetWriterOption {
	return func(opts *DatasetWriterOptions) {
		opts.Logger = log
	}
}

// WithParquetOptions passes options to every file's ParquetWriter.
func WithParquetOptions(options ...WriterOption) DatasetWriterOption {
	return func(opts *DatasetWriterOptions) {
		opts.ParquetOption = options
	}
}

func WithFileNamer(fn func() string) DatasetWriterOption {
	return func(opts *DatasetWriterOptions) {
		opts.NewName = fn
	}
}

// DatasetWriter writes tables to storage and registers them in a catalog.
//
// A DatasetWriter holds no locks. Two overwriting writes to the same destination must not run
// at the same time; callers serialize them.
type DatasetWriter struct {
	store storage.Store
	cat   catalog.Catalog
	opts  DatasetWriterOptions
}

// NewDatasetWriter creates a DatasetWriter.
func NewDatasetWriter(store storage.Store, cat catalog.Catalog, options ...DatasetWriterOption) *DatasetWriter {
	opts := DatasetWriterOptions{
		Concurrency: 4,
		Logger:      zap.NewNop(),
		NewName:     func() string { return "part-" + uuid.NewString() },
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &DatasetWriter{store: store, cat: cat, opts: opts}
}

// partitionGroup is the set of rows sharing one partition value tuple.
type partitionGroup struct {
	values []string // Raw values, in key order
	dir    string   // key=value/... relative directory, "" when unpartitioned
	rows   []core.Record
}

type writtenFile struct {
	path string
	rows int64
}

// Write stores t under dest and registers the result.
//
// New files are written under fresh names first. Files being replaced are deleted only after
// every new file was stored, and the catalog is updated last. A storage failure returns a
// core.WriteError; a catalog failure after the data changed returns a core.CatalogUpdateError
// listing the new files. An empty table is a no-op that leaves storage and catalog untouched.
func (w *DatasetWriter) Write(ctx context.Context, t *core.Table, dest Destination) (*WriteResult, error) {
	log := w.opts.Logger.With(
		zap.String("path", dest.Path),
		zap.String("database", dest.Database),
		zap.String("table", dest.Table),
		zap.String("mode", string(dest.Mode)))

	if err := validateDestination(t, dest); err != nil {
		return nil, err
	}
	if t.NumRows() == 0 {
		log.Info("nothing to write; table is empty")
		return &WriteResult{RowsPerPath: map[string]int64{}}, nil
	}
	if err := validatePartitionKeys(t, dest.PartitionKeys); err != nil {
		return nil, err
	}

	if dest.Mode != ModeOverwrite {
		existing, err := w.cat.GetTable(ctx, dest.Database, dest.Table)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
		case err != nil:
			return nil, &core.CatalogLookupError{Database: dest.Database, Table: dest.Table, Err: err}
		default:
			conformed, err := conformToCatalog(t, existing, dest.PartitionKeys)
			if err != nil {
				log.Error("table does not fit the registered schema", zap.Error(err))
				return nil, &core.WriteError{Op: "conform", Path: dest.Path, Err: err}
			}
			t = conformed
		}
	}

	dataColumns, keyColumns := splitColumns(t, dest.PartitionKeys)
	groups := groupRows(t, dest.PartitionKeys)

	// Existing files are listed before anything is written so that only old files are replaced.
	var stale []string
	switch dest.Mode {
	case ModeOverwrite:
		objs, err := w.store.List(ctx, storage.AsPrefix(dest.Path))
		if err != nil {
			return nil, &core.WriteError{Op: "list", Path: dest.Path, Err: err}
		}
		stale = storage.ObjectURIs(objs)
	case ModeOverwritePartitions:
		for _, g := range groups {
			prefix := storage.AsPrefix(storage.Join(dest.Path, g.dir))
			objs, err := w.store.List(ctx, prefix)
			if err != nil {
				return nil, &core.WriteError{Op: "list", Path: prefix, Err: err}
			}
			stale = append(stale, storage.ObjectURIs(objs)...)
		}
	}

	written, err := w.writeGroups(ctx, groups, dataColumns, dest)
	if err != nil {
		w.cleanup(ctx, log, written)
		return nil, err
	}

	result := &WriteResult{RowsPerPath: make(map[string]int64, len(written))}
	for _, f := range written {
		result.Paths = append(result.Paths, f.path)
		result.RowsPerPath[f.path] = f.rows
		result.RowCount += f.rows
	}
	sort.Strings(result.Paths)

	if len(stale) > 0 {
		if err := w.store.Delete(ctx, stale); err != nil {
			log.Error("new files written but old files not removed", zap.Strings("written", result.Paths), zap.Error(err))
			return nil, &core.WriteError{Op: "delete", Path: dest.Path, Err: err}
		}
		result.Deleted = stale
	}

	if len(dest.PartitionKeys) > 0 {
		for _, g := range groups {
			result.Partitions = append(result.Partitions, catalog.Partition{
				Values:   g.values,
				Location: storage.AsPrefix(storage.Join(dest.Path, g.dir)),
			})
		}
	}

	if err := w.register(ctx, dest, dataColumns, keyColumns, result.Partitions); err != nil {
		log.Error("data written but catalog not updated; storage and catalog are inconsistent",
			zap.Strings("written", result.Paths), zap.Error(err))
		err.Written = result.Paths
		return nil, err
	}

	log.Info("dataset written",
		zap.Int("files", len(result.Paths)),
		zap.Int64("rows", result.RowCount),
		zap.Int("partitions", len(result.Partitions)),
		zap.Int("replaced", len(result.Deleted)))
	return result, nil
}

func validateDestination(t *core.Table, dest Destination) error {
	if t == nil {
		return errors.New("table is nil")
	}
	if dest.Path == "" {
		return errors.New("destination path is required")
	}
	if dest.Database == "" || dest.Table == "" {
		return errors.New("destination database and table are required")
	}
	if _, err := ParseWriteMode(string(dest.Mode)); err != nil {
		return err
	}
	return nil
}

// validatePartitionKeys checks the partition keys against the columns of a non-empty table.
func validatePartitionKeys(t *core.Table, keys []string) error {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !t.HasColumn(k) {
			return fmt.Errorf("partition key %q is not a column of the table", k)
		}
		if seen[k] {
			return fmt.Errorf("partition key %q listed twice", k)
		}
		seen[k] = true
	}
	if len(t.Columns) == len(keys) {
		return errors.New("table has no data columns besides its partition keys")
	}
	return nil
}

// splitColumns separates file columns from partition columns. Partition columns are
// registered as strings because their values only exist as directory names.
func splitColumns(t *core.Table, keys []string) (data, partition []core.Column) {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	for _, c := range t.Columns {
		if !isKey[c.Name] {
			data = append(data, c)
		}
	}
	for _, k := range keys {
		partition = append(partition, core.Column{Name: k, Type: core.TypeString})
	}
	return data, partition
}

// groupRows splits rows by partition value tuple, ordered by directory.
func groupRows(t *core.Table, keys []string) []*partitionGroup {
	if len(keys) == 0 {
		return []*partitionGroup{{rows: t.Rows}}
	}
	byDir := make(map[string]*partitionGroup)
	for _, row := range t.Rows {
		values := make([]string, len(keys))
		parts := make([]string, len(keys))
		for i, k := range keys {
			values[i] = PartitionValue(row[k])
			parts[i] = k + "=" + EscapePathName(values[i])
		}
		dir := strings.Join(parts, "/")
		g, ok := byDir[dir]
		if !ok {
			g = &partitionGroup{values: values, dir: dir}
			byDir[dir] = g
		}
		g.rows = append(g.rows, row)
	}

	groups := make([]*partitionGroup, 0, len(byDir))
	for _, g := range byDir {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].dir < groups[j].dir })
	return groups
}

// PartitionValue renders a partition column value as it appears in the catalog.
func PartitionValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return DefaultPartitionName
	case string:
		if x == "" {
			return DefaultPartitionName
		}
		return x
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05")
	default:
		return stringOf(v)
	}
}

// EscapePathName percent-encodes the characters Hive does not allow in partition directory
// names.
func EscapePathName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7f || strings.IndexByte("\"#%'*/:=?\\{[]^", c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// fileSuffix names the file extension after the codec, as Spark does.
func fileSuffix(codec compress.Compression) string {
	switch codec {
	case compress.Codecs.Snappy:
		return ".snappy.parquet"
	case compress.Codecs.Gzip:
		return ".gz.parquet"
	case compress.Codecs.Zstd:
		return ".zstd.parquet"
	case compress.Codecs.Brotli:
		return ".br.parquet"
	case compress.Codecs.Lz4:
		return ".lz4.parquet"
	default:
		return ".parquet"
	}
}

// writeGroups encodes and uploads one file per partition group in parallel. On failure it
// returns the files already stored so they can be removed.
func (w *DatasetWriter) writeGroups(ctx context.Context, groups []*partitionGroup, columns []core.Column, dest Destination) ([]writtenFile, error) {
	codec := dest.Compression
	if codec == 0 {
		codec = compress.Codecs.Snappy
	}
	options := append(append([]WriterOption(nil), w.opts.ParquetOption...), WithCompression(codec))

	var (
		mu      sync.Mutex
		written []writtenFile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			uri := storage.Join(dest.Path, group.dir, w.opts.NewName()+fileSuffix(codec))
			data, err := encodeRows(gctx, group.rows, columns, options)
			if err != nil {
				return &core.WriteError{Op: "encode", Path: uri, Err: err}
			}
			if err := w.store.Put(gctx, uri, bytes.NewReader(data)); err != nil {
				return &core.WriteError{Op: "put", Path: uri, Err: err}
			}
			mu.Lock()
			written = append(written, writtenFile{path: uri, rows: int64(len(group.rows))})
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return written, err
}

func encodeRows(ctx context.Context, rows []core.Record, columns []core.Column, options []WriterOption) ([]byte, error) {
	var buf bytes.Buffer
	pw, err := NewParquetWriter(&buf, columns, options...)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := pw.Write(ctx, row); err != nil {
			pw.Close()
			return nil, err
		}
	}
	if err := pw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// cleanup removes files of a failed write. Failures are logged only.
func (w *DatasetWriter) cleanup(ctx context.Context, log *zap.Logger, written []writtenFile) {
	if len(written) == 0 {
		return
	}
	uris := make([]string, len(written))
	for i, f := range written {
		uris[i] = f.path
	}
	if err := w.store.Delete(context.WithoutCancel(ctx), uris); err != nil {
		log.Warn("could not remove files of failed write", zap.Strings("files", uris), zap.Error(err))
	}
}

// register creates or updates the table definition and its partitions.
func (w *DatasetWriter) register(ctx context.Context, dest Destination, data, keys []core.Column, parts []catalog.Partition) *core.CatalogUpdateError {
	fail := func(op string, err error) *core.CatalogUpdateError {
		return &core.CatalogUpdateError{Op: op, Database: dest.Database, Table: dest.Table, Path: dest.Path, Err: err}
	}

	desired := &catalog.Table{
		Database:      dest.Database,
		Name:          dest.Table,
		Location:      storage.AsPrefix(dest.Path),
		Format:        catalog.FormatParquet,
		Columns:       data,
		PartitionKeys: keys,
	}

	existing, err := w.cat.GetTable(ctx, dest.Database, dest.Table)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		if err := w.cat.CreateTable(ctx, desired); err != nil {
			return fail("create_table", err)
		}
	case err != nil:
		return fail("get_table", err)
	case dest.Mode == ModeOverwrite:
		desired.Parameters = existing.Parameters
		if err := w.cat.UpdateTable(ctx, desired); err != nil {
			return fail("update_table", err)
		}
		if existing.IsPartitioned() {
			if err := w.dropUnlisted(ctx, dest, parts); err != nil {
				return fail("delete_partitions", err)
			}
		}
	default:
		if !sameNames(existing.PartitionKeyNames(), dest.PartitionKeys) {
			return fail("update_table", fmt.Errorf("table is partitioned by %v, write is partitioned by %v",
				existing.PartitionKeyNames(), dest.PartitionKeys))
		}
		if merged, changed := mergeColumns(existing.Columns, data); changed {
			updated := *existing
			updated.Columns = merged
			if err := w.cat.UpdateTable(ctx, &updated); err != nil {
				return fail("update_table", err)
			}
		}
	}

	if len(parts) > 0 {
		if err := w.cat.AddPartitions(ctx, dest.Database, dest.Table, parts); err != nil {
			return fail("add_partitions", err)
		}
	}
	return nil
}

// dropUnlisted deregisters partitions that an overwrite removed from storage.
func (w *DatasetWriter) dropUnlisted(ctx context.Context, dest Destination, keep []catalog.Partition) error {
	current, err := w.cat.GetPartitions(ctx, dest.Database, dest.Table, "")
	if err != nil {
		return err
	}
	kept := make(map[string]bool, len(keep))
	for _, p := range keep {
		kept[catalog.PartitionID(p.Values)] = true
	}
	var drop [][]string
	for _, p := range current {
		if !kept[catalog.PartitionID(p.Values)] {
			drop = append(drop, p.Values)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	return w.cat.DeletePartitions(ctx, dest.Database, dest.Table, drop)
}

// conformToCatalog casts data columns to the types the catalog already records for them, so
// files added to an existing table always match its definition. A value that cannot be cast
// fails the write before anything is stored. t is returned as is when nothing needs a cast.
func conformToCatalog(t *core.Table, existing *catalog.Table, keys []string) (*core.Table, error) {
	registered := make(map[string]core.DataType, len(existing.Columns))
	for _, c := range existing.Columns {
		registered[strings.ToLower(c.Name)] = c.Type
	}
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	var out *core.Table
	for i, c := range t.Columns {
		want, ok := registered[strings.ToLower(c.Name)]
		if !ok || isKey[c.Name] || want == c.Type {
			continue
		}
		if out == nil {
			out = t.Clone()
		}
		for r, row := range out.Rows {
			v, err := mapping.Cast(row[c.Name], want)
			if err != nil {
				return nil, &core.TypeCoercionError{Column: c.Name, Row: r, Value: row[c.Name], Target: want, Err: err}
			}
			row[c.Name] = v
		}
		out.Columns[i].Type = want
	}
	if out == nil {
		return t, nil
	}
	return out, nil
}

// mergeColumns appends columns not yet registered. Existing column types are kept.
func mergeColumns(existing, incoming []core.Column) ([]core.Column, bool) {
	merged := append([]core.Column(nil), existing...)
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c.Name)] = true
	}
	changed := false
	for _, c := range incoming {
		if !have[strings.ToLower(c.Name)] {
			merged = append(merged, c)
			changed = true
		}
	}
	return merged, changed
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
