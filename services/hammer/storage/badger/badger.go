// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger persists decoded tile databases in an embedded BadgerDB.
//
// Each family is stored as one snapshot plus a small metadata record:
//
//	family/<name>/snapshot  JSON tiledb.Snapshot
//	family/<name>/meta      JSON Meta
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the snapshot database.
type Config struct {
	// Dir is the directory for BadgerDB files. Ignored when InMemory is true.
	Dir string

	// InMemory keeps everything in RAM. Used by tests and dry runs.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's internal messages. Nil silences them.
	Logger *slog.Logger

	// CompactRatio is the value log discard ratio used for the single
	// GC pass run on Close. Zero disables it.
	CompactRatio float64
}

// DefaultConfig returns the configuration used by the CLI.
//
// Description:
//
//	Persistent storage under dir with synchronous writes and a 0.5
//	compaction ratio on close.
//
// Inputs:
//
//	dir - Database directory.
//
// Outputs:
//
//	Config - Ready-to-use configuration
func DefaultConfig(dir string) Config {
	return Config{
		Dir:          dir,
		SyncWrites:   true,
		CompactRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration with no disk I/O.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB is an open snapshot database.
type DB struct {
	db       *badger.DB
	dir      string
	inMemory bool
	ratio    float64
	logger   *slog.Logger
}

// Open opens (creating if needed) the database described by cfg.
//
// Description:
//
//	Opens BadgerDB at cfg.Dir, or in memory when cfg.InMemory is set.
//	The directory is created with mode 0750.
//
// Inputs:
//
//	cfg - Database configuration. Dir is required unless InMemory is true.
//
// Outputs:
//
//	*DB - The opened database. Caller must call Close() when done.
//	error - Wraps ErrNoDir when Dir is empty, or the BadgerDB open error.
//
// Thread Safety: The returned *DB is safe for concurrent use.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, ErrNoDir
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{
		db:       db,
		dir:      cfg.Dir,
		inMemory: cfg.InMemory,
		ratio:    cfg.CompactRatio,
		logger:   logger,
	}, nil
}

// Dir returns the database directory, or "" for in-memory databases.
func (d *DB) Dir() string {
	return d.dir
}

// InMemory reports whether the database lives only in RAM.
func (d *DB) InMemory() bool {
	return d.inMemory
}

// Close runs one value log GC pass on persistent databases and closes.
func (d *DB) Close() error {
	if !d.inMemory && d.ratio > 0 {
		d.compact()
	}
	return d.db.Close()
}

func (d *DB) compact() {
	err := d.db.RunValueLogGC(d.ratio)
	switch {
	case err == nil:
		d.logger.Debug("badger value log GC completed")
	case errors.Is(err, badger.ErrNoRewrite):
	default:
		d.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
	}
}

// withTxn runs fn in a read-write transaction and commits on success.
func (d *DB) withTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	txn := d.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// withReadTxn runs fn in a read-only transaction.
func (d *DB) withReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	txn := d.db.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}
