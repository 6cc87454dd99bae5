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

package config

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"

	"github.com/aaronlmathis/lakepipe/catalog"
	"github.com/aaronlmathis/lakepipe/storage"
)

// Backends holds the storage and catalog a job runs against.
type Backends struct {
	Store   storage.Store
	Catalog catalog.Catalog
	closers []io.Closer
}

// Close releases connections opened for the backends.
func (b *Backends) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// OpenBackends creates the configured store and catalog. AWS configuration is loaded once and
// shared when both are AWS backed.
func OpenBackends(ctx context.Context, sc StorageConfig, cc CatalogConfig) (*Backends, error) {
	var (
		awsCfg    aws.Config
		awsLoaded bool
	)
	loadAWS := func() (aws.Config, error) {
		if awsLoaded {
			return awsCfg, nil
		}
		cfg, err := storage.LoadAWSConfig(ctx, sc.Region, "", aws.Credentials{})
		if err != nil {
			return aws.Config{}, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg, awsLoaded = cfg, true
		return cfg, nil
	}

	b := &Backends{}

	switch sc.Backend {
	case StorageS3:
		cfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		b.Store = storage.NewS3StoreFromConfig(cfg,
			storage.WithS3Endpoint(sc.Endpoint),
			storage.WithS3PathStyle(sc.PathStyle),
		)
	case StorageLocal:
		b.Store = storage.NewLocalStore(sc.LocalRoot)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}

	switch cc.Backend {
	case CatalogGlue:
		cfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		b.Catalog = catalog.NewGlueCatalog(cfg, func(o *glue.Options) {
			if sc.Endpoint != "" {
				o.BaseEndpoint = aws.String(sc.Endpoint)
			}
		})
	case CatalogPostgres:
		pg, err := catalog.NewPostgresCatalog(cc.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		b.Catalog = pg
		b.closers = append(b.closers, pg)
	case CatalogMemory:
		b.Catalog = catalog.NewMemoryCatalog()
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cc.Backend)
	}
	return b, nil
}
