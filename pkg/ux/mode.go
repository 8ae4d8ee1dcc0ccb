// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode defines how rich the CLI output is.
type Mode string

const (
	// ModeRich enables colors, icons and bordered tables.
	ModeRich Mode = "rich"

	// ModePlain keeps tables and icons but drops colors.
	ModePlain Mode = "plain"

	// ModeMachine prints tab-separated lines for scripting.
	ModeMachine Mode = "machine"
)

// ParseMode converts a string to a Mode. The empty string is ModeRich.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rich", "full":
		return ModeRich, nil
	case "plain", "nocolor":
		return ModePlain, nil
	case "machine", "tsv", "quiet":
		return ModeMachine, nil
	default:
		return "", fmt.Errorf("unknown output mode %q", s)
	}
}

// DetectMode picks the mode for output written to f.
//
// Description:
//
//	BITFUZZ_OUTPUT wins when it parses. Otherwise a non-terminal gets
//	ModeMachine, and a terminal gets ModePlain when NO_COLOR is set and
//	ModeRich when it is not.
func DetectMode(f *os.File) Mode {
	if env := os.Getenv("BITFUZZ_OUTPUT"); env != "" {
		if m, err := ParseMode(env); err == nil {
			return m
		}
	}
	if f == nil || !isTerminal(f) {
		return ModeMachine
	}
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	return ModeRich
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
