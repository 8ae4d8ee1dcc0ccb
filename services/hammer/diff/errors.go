// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
)

// Sentinel errors for diff operations.
//
// Every failure is fatal for the decode routine that caused it: it means
// the experiment coverage or the decode logic is wrong, not that the input
// was unlucky.
var (
	// ErrSizeMismatch is returned when a diff or vector touches more or
	// fewer bits than an operation's contract requires.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrNonEmptyResidual is returned when bits remain after every known
	// cause has been subtracted.
	ErrNonEmptyResidual = errors.New("non-empty residual")

	// ErrPolarityConflict is returned when the same bit is seen moving in
	// contradictory directions.
	ErrPolarityConflict = errors.New("polarity conflict")

	// ErrKindMismatch is returned when an item of the wrong kind is applied.
	ErrKindMismatch = errors.New("item kind mismatch")

	// ErrUnknownValue is returned when an enum value is not part of the item.
	ErrUnknownValue = errors.New("unknown enum value")

	// ErrTileMapping is returned when a tile remap names one source tile
	// twice or leaves a touched tile unmapped.
	ErrTileMapping = errors.New("bad tile mapping")
)

// BitError describes a failed diff operation.
//
// It always wraps one of the sentinel errors above, so callers test it
// with errors.Is, and carries the offending bits for diagnostics.
type BitError struct {
	// Op names the failed operation, e.g. "combine" or "apply enum".
	Op string

	// Err is the sentinel describing the failure class.
	Err error

	// Bits are the offending locations in ascending order.
	Bits []bits.Location

	// Detail is optional free-form context.
	Detail string
}

// Error implements the error interface.
func (e *BitError) Error() string {
	msg := e.Op + ": " + e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if len(e.Bits) > 0 {
		msg += " " + bits.FormatLocations(e.Bits)
	}
	return msg
}

// Unwrap returns the sentinel error.
func (e *BitError) Unwrap() error {
	return e.Err
}

// NewBitError builds a BitError with its bits sorted. format may be empty.
func NewBitError(op string, err error, locs []bits.Location, format string, args ...any) *BitError {
	sorted := append([]bits.Location(nil), locs...)
	bits.SortLocations(sorted)
	e := &BitError{Op: op, Err: err, Bits: sorted}
	if format != "" {
		e.Detail = fmt.Sprintf(format, args...)
	}
	return e
}
