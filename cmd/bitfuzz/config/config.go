// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the bitfuzz.yaml CLI configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/bitfuzz/pkg/telemetry"
	"github.com/AleutianAI/bitfuzz/pkg/validation"
)

// FileName is the config file looked up when no path is given.
const FileName = "bitfuzz.yaml"

// Config is the full CLI configuration.
type Config struct {
	Log       LogConfig        `yaml:"log"`
	Storage   StorageConfig    `yaml:"storage"`
	Decode    DecodeConfig     `yaml:"decode"`
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Output is the report style: rich, plain or machine. Empty means
	// detect from the terminal.
	Output string `yaml:"output" validate:"omitempty,oneof=rich plain machine"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// StorageConfig locates the snapshot database.
type StorageConfig struct {
	Dir      string `yaml:"dir" validate:"required_without=InMemory"`
	InMemory bool   `yaml:"in_memory"`
}

// DecodeConfig holds decode run defaults.
type DecodeConfig struct {
	// Parallelism caps concurrent family passes. 0 means GOMAXPROCS.
	Parallelism int `yaml:"parallelism" validate:"gte=0,lte=1024"`

	// Strict fails families that leave experiments unconsumed.
	Strict bool `yaml:"strict"`

	// WatchDebounce is the quiet period before a --watch rerun.
	WatchDebounce time.Duration `yaml:"watch_debounce" validate:"gte=0"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Storage: StorageConfig{
			Dir: filepath.Join("~", ".bitfuzz", "db"),
		},
		Decode: DecodeConfig{
			WatchDebounce: 200 * time.Millisecond,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads path over DefaultConfig.
//
// Description:
//
//	A missing file is not an error and yields the defaults. Unknown keys
//	are rejected. "~" in directory fields is expanded to the home
//	directory and the result is validated.
//
// Inputs:
//
//	path - YAML file. Empty means FileName in the working directory.
//
// Outputs:
//
//	Config - The merged configuration.
//	error - Read, parse or validation failure.
func Load(path string) (Config, error) {
	if path == "" {
		path = FileName
	}
	cfg := DefaultConfig()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) finish() error {
	var err error
	if c.Storage.Dir, err = expandHome(c.Storage.Dir); err != nil {
		return err
	}
	if c.Log.Dir, err = expandHome(c.Log.Dir); err != nil {
		return err
	}
	return c.Validate()
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
