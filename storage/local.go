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
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore implements Store on the local filesystem.
//
// s3://bucket/key URIs are mapped to Root/bucket/key so that pipelines configured with S3
// locations can run against a directory tree. Bare and file:// paths are used as given,
// relative ones resolved against Root.
type LocalStore struct {
	Root string
}

// NewLocalStore creates a store rooted at root.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{Root: root}
}

func (l *LocalStore) path(op, uri string) (string, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return "", &StoreError{Op: op, URI: uri, Err: err}
	}
	if loc.Scheme == "s3" {
		return filepath.Join(l.Root, loc.Bucket, filepath.FromSlash(loc.Key)), nil
	}
	p := filepath.FromSlash(loc.Key)
	if !filepath.IsAbs(p) && l.Root != "" {
		p = filepath.Join(l.Root, p)
	}
	return p, nil
}

// Open implements Store.
func (l *LocalStore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	p, err := l.path("open", uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, &StoreError{Op: "open", URI: uri, Err: err}
	}
	return f, nil
}

// Put implements Store by writing a temporary sibling file and renaming it into place.
func (l *LocalStore) Put(ctx context.Context, uri string, body io.Reader) error {
	p, err := l.path("put", uri)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &StoreError{Op: "put", URI: uri, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &StoreError{Op: "put", URI: uri, Err: err}
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &StoreError{Op: "put", URI: uri, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &StoreError{Op: "put", URI: uri, Err: err}
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return &StoreError{Op: "put", URI: uri, Err: err}
	}
	return nil
}

// List implements Store.
func (l *LocalStore) List(ctx context.Context, prefix string) ([]Object, error) {
	p, err := l.path("list", prefix)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(prefix, "/") {
		p += string(filepath.Separator)
	}

	base := p
	if info, err := os.Stat(p); err != nil || !info.IsDir() {
		base = filepath.Dir(p)
	}

	var objects []Object
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") || !strings.HasPrefix(path, p) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{
			URI:          prefix + filepath.ToSlash(strings.TrimPrefix(path, p)),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, &StoreError{Op: "list", URI: prefix, Err: err}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].URI < objects[j].URI })
	return objects, nil
}

// Delete implements Store.
func (l *LocalStore) Delete(ctx context.Context, uris []string) error {
	for _, uri := range uris {
		p, err := l.path("delete", uri)
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &StoreError{Op: "delete", URI: uri, Err: err}
		}
	}
	return nil
}
