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
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/aaronlmathis/lakepipe/mapping"
	"github.com/aaronlmathis/lakepipe/predicate"
	"github.com/aaronlmathis/lakepipe/writers"
)

// Package config resolves the immutable run configuration of both pipelines.
//
// Configuration is read once, validated, and handed to a job as a plain struct. Nothing below
// the command layer reads the environment.

// Catalog backends.
const (
	CatalogGlue     = "glue"
	CatalogPostgres = "postgres"
	CatalogMemory   = "memory"
)

// Storage backends.
const (
	StorageS3    = "s3"
	StorageLocal = "local"
)

// CatalogConfig selects and configures the metadata catalog.
type CatalogConfig struct {
	Backend     string `mapstructure:"backend"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// StorageConfig selects and configures object storage.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	LocalRoot string `mapstructure:"local_root"`
}

// IngestConfig configures the ingestion function.
type IngestConfig struct {
	CleansedPath  string
	Database      string
	Table         string
	WriteMode     writers.WriteMode
	NestedField   string
	PartitionKeys []string
	Catalog       CatalogConfig
	Storage       StorageConfig
	LogLevel      string
}

// Destination returns the write destination for the flattened table.
func (c IngestConfig) Destination() writers.Destination {
	return writers.Destination{
		Path:          c.CleansedPath,
		Database:      c.Database,
		Table:         c.Table,
		Mode:          c.WriteMode,
		PartitionKeys: append([]string(nil), c.PartitionKeys...),
	}
}

// ingestEnv maps configuration keys to the environment variables the function is deployed
// with. The lower-case names are the historical ones.
var ingestEnv = map[string][]string{
	"cleansed_path":        {"s3_cleansed_layer", "S3_CLEANSED_LAYER"},
	"database":             {"glue_catalog_db_name", "GLUE_CATALOG_DB_NAME"},
	"table":                {"glue_catalog_table_name", "GLUE_CATALOG_TABLE_NAME"},
	"write_mode":           {"write_data_operation", "WRITE_DATA_OPERATION"},
	"nested_field":         {"nested_field", "NESTED_FIELD"},
	"partition_keys":       {"partition_keys", "PARTITION_KEYS"},
	"catalog.backend":      {"catalog_backend", "CATALOG_BACKEND"},
	"catalog.postgres_dsn": {"postgres_dsn", "POSTGRES_DSN"},
	"storage.backend":      {"storage_backend", "STORAGE_BACKEND"},
	"storage.region":       {"aws_region", "AWS_REGION"},
	"storage.endpoint":     {"aws_endpoint_url", "AWS_ENDPOINT_URL"},
	"storage.path_style":   {"s3_path_style", "S3_PATH_STYLE"},
	"storage.local_root":   {"local_root", "LOCAL_ROOT"},
	"log_level":            {"log_level", "LOG_LEVEL"},
}

// LoadIngest reads the ingestion configuration from the environment.
func LoadIngest() (IngestConfig, error) {
	v := viper.New()
	for key, names := range ingestEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return IngestConfig{}, err
		}
	}
	v.SetDefault("nested_field", "items")
	v.SetDefault("catalog.backend", CatalogGlue)
	v.SetDefault("storage.backend", StorageS3)
	v.SetDefault("log_level", "info")

	cfg := IngestConfig{
		CleansedPath:  strings.TrimSpace(v.GetString("cleansed_path")),
		Database:      strings.TrimSpace(v.GetString("database")),
		Table:         strings.TrimSpace(v.GetString("table")),
		NestedField:   v.GetString("nested_field"),
		PartitionKeys: splitList(v.GetString("partition_keys")),
		Catalog: CatalogConfig{
			Backend:     strings.ToLower(v.GetString("catalog.backend")),
			PostgresDSN: v.GetString("catalog.postgres_dsn"),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(v.GetString("storage.backend")),
			Region:    v.GetString("storage.region"),
			Endpoint:  v.GetString("storage.endpoint"),
			PathStyle: v.GetBool("storage.path_style"),
			LocalRoot: v.GetString("storage.local_root"),
		},
		LogLevel: v.GetString("log_level"),
	}

	var errs []error
	required := map[string]string{
		"s3_cleansed_layer":       cfg.CleansedPath,
		"glue_catalog_db_name":    cfg.Database,
		"glue_catalog_table_name": cfg.Table,
	}
	for _, name := range []string{"s3_cleansed_layer", "glue_catalog_db_name", "glue_catalog_table_name"} {
		if required[name] == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	mode, err := writers.ParseWriteMode(v.GetString("write_mode"))
	if err != nil {
		errs = append(errs, fmt.Errorf("write_data_operation: %w", err))
	}
	cfg.WriteMode = mode
	errs = append(errs, cfg.Catalog.validate(), cfg.Storage.validate())

	if err := errors.Join(errs...); err != nil {
		return IngestConfig{}, err
	}
	return cfg, nil
}

// SourceConfig names the table the batch job reads.
type SourceConfig struct {
	Database  string
	Table     string
	Predicate predicate.Expr // nil reads every partition
}

// TransformConfig configures the batch job.
type TransformConfig struct {
	JobName        string
	Source         SourceConfig
	Mappings       []mapping.Mapping
	DropNullFields bool
	Destination    writers.Destination
	Catalog        CatalogConfig
	Storage        StorageConfig
	LogLevel       string
}

// transformFile is the on-disk and environment shape of TransformConfig.
type transformFile struct {
	Source struct {
		Database  string `mapstructure:"database"`
		Table     string `mapstructure:"table"`
		Predicate string `mapstructure:"predicate"`
	} `mapstructure:"source"`
	Mappings       [][]string `mapstructure:"mappings"`
	DropNullFields bool       `mapstructure:"drop_null_fields"`
	Destination    struct {
		Path          string   `mapstructure:"path"`
		Database      string   `mapstructure:"database"`
		Table         string   `mapstructure:"table"`
		Mode          string   `mapstructure:"mode"`
		PartitionKeys []string `mapstructure:"partition_keys"`
	} `mapstructure:"destination"`
	Catalog  CatalogConfig `mapstructure:"catalog"`
	Storage  StorageConfig `mapstructure:"storage"`
	LogLevel string        `mapstructure:"log_level"`
}

// Defaults of the trending statistics job.
const (
	DefaultSourceDatabase      = "db_youtube_raw"
	DefaultSourceTable         = "raw_statistics"
	DefaultPredicate           = "region in ('ca','gb','us')"
	DefaultDestinationPath     = "s3://youtube-cleansed-useast1-dev/youtube/raw_statistics/"
	DefaultDestinationDatabase = "db_youtube_cleaned"
	DefaultDestinationTable    = "raw_statistics"
)

// LoadTransform resolves the batch job configuration. Defaults describe the trending statistics
// job; a YAML file at path (optional) overrides them, and LAKEPIPE_* environment variables
// (LAKEPIPE_SOURCE_PREDICATE, LAKEPIPE_DESTINATION_MODE, ...) override the file.
func LoadTransform(jobName, path string) (TransformConfig, error) {
	v := viper.New()
	v.SetDefault("source.database", DefaultSourceDatabase)
	v.SetDefault("source.table", DefaultSourceTable)
	v.SetDefault("source.predicate", DefaultPredicate)
	v.SetDefault("drop_null_fields", true)
	v.SetDefault("destination.path", DefaultDestinationPath)
	v.SetDefault("destination.database", DefaultDestinationDatabase)
	v.SetDefault("destination.table", DefaultDestinationTable)
	v.SetDefault("destination.mode", string(writers.ModeOverwritePartitions))
	v.SetDefault("destination.partition_keys", []string{"region"})
	v.SetDefault("catalog.backend", CatalogGlue)
	v.SetDefault("catalog.postgres_dsn", "")
	v.SetDefault("storage.backend", StorageS3)
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.path_style", false)
	v.SetDefault("storage.local_root", "")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("lakepipe")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return TransformConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var raw transformFile
	if err := v.Unmarshal(&raw); err != nil {
		return TransformConfig{}, fmt.Errorf("decode config: %w", err)
	}
	// Lists set through the environment arrive as one comma separated string.
	raw.Destination.PartitionKeys = splitList(strings.Join(raw.Destination.PartitionKeys, ","))

	cfg := TransformConfig{
		JobName:        strings.TrimSpace(jobName),
		DropNullFields: raw.DropNullFields,
		Catalog:        raw.Catalog,
		Storage:        raw.Storage,
		LogLevel:       raw.LogLevel,
		Source: SourceConfig{
			Database: strings.TrimSpace(raw.Source.Database),
			Table:    strings.TrimSpace(raw.Source.Table),
		},
		Destination: writers.Destination{
			Path:          strings.TrimSpace(raw.Destination.Path),
			Database:      strings.TrimSpace(raw.Destination.Database),
			Table:         strings.TrimSpace(raw.Destination.Table),
			PartitionKeys: raw.Destination.PartitionKeys,
		},
	}
	cfg.Catalog.Backend = strings.ToLower(cfg.Catalog.Backend)
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)

	var errs []error
	if cfg.JobName == "" {
		errs = append(errs, errors.New("job name is required"))
	}
	if cfg.Source.Database == "" || cfg.Source.Table == "" {
		errs = append(errs, errors.New("source database and table are required"))
	}
	if p := strings.TrimSpace(raw.Source.Predicate); p != "" {
		expr, err := predicate.Parse(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("source predicate: %w", err))
		}
		cfg.Source.Predicate = expr
	}
	if len(raw.Mappings) == 0 {
		cfg.Mappings = mapping.DefaultStatisticsMappings()
	} else {
		m, err := mapping.ParseMappings(raw.Mappings)
		if err != nil {
			errs = append(errs, fmt.Errorf("mappings: %w", err))
		}
		cfg.Mappings = m
	}
	if cfg.Destination.Path == "" || cfg.Destination.Database == "" || cfg.Destination.Table == "" {
		errs = append(errs, errors.New("destination path, database and table are required"))
	}
	mode, err := writers.ParseWriteMode(raw.Destination.Mode)
	if err != nil {
		errs = append(errs, fmt.Errorf("destination mode: %w", err))
	}
	cfg.Destination.Mode = mode
	errs = append(errs, cfg.Catalog.validate(), cfg.Storage.validate())

	if err := errors.Join(errs...); err != nil {
		return TransformConfig{}, err
	}
	return cfg, nil
}

func (c CatalogConfig) validate() error {
	switch c.Backend {
	case CatalogGlue, CatalogMemory:
		return nil
	case CatalogPostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres catalog needs a dsn")
		}
		return nil
	default:
		return fmt.Errorf("unknown catalog backend %q", c.Backend)
	}
}

func (s StorageConfig) validate() error {
	switch s.Backend {
	case StorageS3, StorageLocal:
		return nil
	default:
		return fmt.Errorf("unknown storage backend %q", s.Backend)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
