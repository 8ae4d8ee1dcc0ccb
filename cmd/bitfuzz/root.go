// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/bitfuzz/cmd/bitfuzz/config"
	"github.com/AleutianAI/bitfuzz/pkg/logging"
	"github.com/AleutianAI/bitfuzz/pkg/telemetry"
	"github.com/AleutianAI/bitfuzz/pkg/ux"
	"github.com/AleutianAI/bitfuzz/services/hammer/storage/badger"
)

// errFamiliesFailed marks a decode run where at least one family failed.
var errFamiliesFailed = errors.New("families failed")

// app carries state shared by every subcommand of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	output     string
	dataDir    string
	inMemory   bool

	cfg      config.Config
	logger   *logging.Logger
	printer  *ux.Printer
	shutdown func(context.Context) error
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bitfuzz",
		Short: "Decode tile attribute databases from differential bitstream experiments",
		Long: `bitfuzz turns experiment files (bit differences observed between
bitstreams that differ in one attribute) into a tile database of
enums, booleans and bit vectors by running a decode plan per family.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (default ./"+config.FileName+")")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVarP(&a.output, "output", "o", "", "output style: rich, plain, machine")
	pf.StringVar(&a.dataDir, "data-dir", "", "snapshot database directory")
	pf.BoolVar(&a.inMemory, "in-memory", false, "keep snapshots in memory only")

	root.AddCommand(
		a.decodeCmd(),
		a.dumpCmd(),
		a.familiesCmd(),
		a.checkCmd(),
	)
	return root
}

// setup loads configuration and starts logging and telemetry.
func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.output != "" {
		cfg.Output = a.output
	}
	if a.dataDir != "" {
		cfg.Storage.Dir = a.dataDir
	}
	if a.inMemory {
		cfg.Storage.InMemory = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "bitfuzz",
		JSON:    cfg.Log.JSON,
		Writer:  a.stderr,
	})
	slog.SetDefault(a.logger.Slog())

	mode, err := a.outputMode()
	if err != nil {
		return err
	}
	a.printer = ux.NewPrinter(a.stdout, a.stderr, mode)

	a.shutdown, err = telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	return nil
}

func (a *app) outputMode() (ux.Mode, error) {
	if a.cfg.Output != "" {
		return ux.ParseMode(a.cfg.Output)
	}
	if f, ok := a.stdout.(*os.File); ok {
		return ux.DetectMode(f), nil
	}
	return ux.ModeMachine, nil
}

// close flushes telemetry and closes the log file. Safe when setup
// never ran.
func (a *app) close() error {
	var errs []error
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
		a.shutdown = nil
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openStore opens the configured snapshot database.
func (a *app) openStore() (*badger.DB, error) {
	cfg := badger.DefaultConfig(a.cfg.Storage.Dir)
	if a.cfg.Storage.InMemory {
		cfg = badger.InMemoryConfig()
	}
	cfg.Logger = a.logger.Slog().With(slog.String("component", "badger"))
	return badger.Open(cfg)
}
