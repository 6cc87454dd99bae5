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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aaronlmathis/lakepipe/config"
	"github.com/aaronlmathis/lakepipe/jobs/transform"
	"github.com/aaronlmathis/lakepipe/logging"
)

const transformLongDescription = `Read the raw statistics table through the catalog, keep only the
partitions matching the source predicate, cast columns to their declared types and write the
cleansed dataset partitioned by region.

Settings come from built-in defaults, an optional YAML file (--config) and LAKEPIPE_*
environment variables, in increasing order of precedence.`

type options struct {
	jobName     string
	configPath  string
	logLevel    string
	development bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "transform-job",
		Short:         "Cleanse the raw statistics table",
		Long:          transformLongDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	// Job runners append arguments of their own (--TempDir, --job-bookmark-option, ...).
	cmd.FParseErrWhitelist.UnknownFlags = true

	flags := cmd.Flags()
	flags.StringVar(&opts.jobName, "JOB_NAME", "", "name of the job run")
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.development, "development", false, "human readable console logs")
	_ = cmd.MarkFlagRequired("JOB_NAME")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	cfg, err := config.LoadTransform(opts.jobName, opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	log, err := logging.New(cfg.LogLevel, opts.development)
	if err != nil {
		return err
	}
	defer log.Sync()

	backends, err := config.OpenBackends(ctx, cfg.Storage, cfg.Catalog)
	if err != nil {
		log.Error("failed to open backends", zap.Error(err))
		return err
	}
	defer backends.Close()

	job, err := transform.NewJob(cfg, backends.Store, backends.Catalog, log)
	if err != nil {
		log.Error("invalid job", zap.Error(err))
		return err
	}
	_, err = job.Run(ctx)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("transform-job: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
