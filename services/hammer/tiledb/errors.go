// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tiledb

import (
	"errors"
	"fmt"
)

// Sentinel errors for TileDb operations.
var (
	// ErrInconsistentReinsertion is returned when a key that already holds
	// a value is inserted again with a different value.
	ErrInconsistentReinsertion = errors.New("inconsistent reinsertion")

	// ErrEmptyName is returned when a tile, bel, attribute or device name
	// is empty.
	ErrEmptyName = errors.New("empty name")
)

// ConflictError reports two different values for one key.
type ConflictError struct {
	// Key is "tile:bel:attr" for items or "device:name" for device data.
	Key string

	// Have is the committed value.
	Have string

	// Got is the rejected value.
	Got string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s: have %s, got %s", ErrInconsistentReinsertion, e.Key, e.Have, e.Got)
}

// Unwrap returns ErrInconsistentReinsertion.
func (e *ConflictError) Unwrap() error {
	return ErrInconsistentReinsertion
}
