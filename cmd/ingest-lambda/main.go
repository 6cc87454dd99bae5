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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/aaronlmathis/lakepipe/config"
	"github.com/aaronlmathis/lakepipe/jobs/ingest"
	"github.com/aaronlmathis/lakepipe/logging"
)

// ingest-lambda is the function triggered by new reference data objects in the landing bucket.
func main() {
	cfg, err := config.LoadIngest()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	backends, err := config.OpenBackends(context.Background(), cfg.Storage, cfg.Catalog)
	if err != nil {
		log.Fatal("failed to open backends", zap.Error(err))
	}
	defer backends.Close()

	log.Info("starting",
		zap.String("cleansed_path", cfg.CleansedPath),
		zap.String("database", cfg.Database),
		zap.String("table", cfg.Table),
		zap.String("write_mode", string(cfg.WriteMode)))

	handler := ingest.NewHandler(cfg, backends.Store, backends.Catalog, log)
	lambda.Start(handler.Handle)
}
