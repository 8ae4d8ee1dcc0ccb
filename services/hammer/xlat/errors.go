// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package xlat

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/bitfuzz/services/hammer/diff"
)

// Sentinel errors for codec translation.
//
// Translation also reports the diff package sentinels (ErrSizeMismatch,
// ErrPolarityConflict, ErrNonEmptyResidual); all failures are returned as
// *diff.BitError.
var (
	// ErrAliasingConflict is returned when two values share one bit pattern,
	// one value is decoded twice with different patterns, or one location
	// implements two positions of a vector.
	ErrAliasingConflict = errors.New("aliasing conflict")

	// ErrNoValues is returned when an enum is translated from no values.
	ErrNoValues = errors.New("no values")

	// ErrUnsolvable is returned when an integer attribute cannot be
	// reduced to one bit per significance.
	ErrUnsolvable = errors.New("integer encoding not solvable")

	// ErrUnknownOcdMode is returned by ParseOcdMode.
	ErrUnknownOcdMode = errors.New("unknown ocd mode")

	// ErrBitReused is returned when one location answers for two positions
	// of a vector. The vector has fewer distinct bits than positions, so it
	// matches both ErrAliasingConflict and diff.ErrSizeMismatch.
	ErrBitReused = fmt.Errorf("%w: bit reused (%w)", ErrAliasingConflict, diff.ErrSizeMismatch)
)
