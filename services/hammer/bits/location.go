// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bits provides the configuration-bit addressing model.
//
// A Location names one bit of configuration memory. The topology layer
// produces locations; everything above this package treats them as opaque
// keys that are comparable, hashable and totally ordered.
//
// # Text Form
//
// Locations print and parse as "T:F:B" (tile index, frame, bit within
// frame), all decimal:
//
//	loc, err := bits.ParseLocation("0:12:3")
//	fmt.Println(loc) // 0:12:3
package bits

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Location addresses a single configuration-memory bit.
//
// The zero value is a valid location (tile 0, frame 0, bit 0).
// Location is comparable and may be used as a map key.
type Location struct {
	// Tile is the index of the bit rectangle within the tile.
	Tile uint16

	// Frame is the configuration frame (row) inside the rectangle.
	Frame uint32

	// Bit is the bit offset within the frame.
	Bit uint32
}

// Loc is shorthand for constructing a Location.
func Loc(tile uint16, frame, bit uint32) Location {
	return Location{Tile: tile, Frame: frame, Bit: bit}
}

// Compare orders locations by tile, then frame, then bit.
//
// Returns -1, 0 or +1 in the manner of cmp.Compare.
func (l Location) Compare(o Location) int {
	if c := cmp.Compare(l.Tile, o.Tile); c != 0 {
		return c
	}
	if c := cmp.Compare(l.Frame, o.Frame); c != 0 {
		return c
	}
	return cmp.Compare(l.Bit, o.Bit)
}

// Less reports whether l sorts before o.
func (l Location) Less(o Location) bool {
	return l.Compare(o) < 0
}

// String returns the "T:F:B" text form.
func (l Location) String() string {
	return fmt.Sprintf("%d:%d:%d", l.Tile, l.Frame, l.Bit)
}

// ParseLocation parses the "T:F:B" text form produced by String.
//
// Description:
//
//	Accepts exactly three colon-separated unsigned decimal fields.
//	Surrounding whitespace is ignored.
//
// Outputs:
//
//	Location - The parsed location.
//	error - Non-nil if the text is malformed or a field overflows.
func ParseLocation(s string) (Location, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return Location{}, fmt.Errorf("parse location %q: want T:F:B", s)
	}
	tile, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: tile: %w", s, err)
	}
	frame, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: frame: %w", s, err)
	}
	bit, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: bit: %w", s, err)
	}
	return Location{Tile: uint16(tile), Frame: uint32(frame), Bit: uint32(bit)}, nil
}

// SortLocations sorts locs in place in ascending order.
func SortLocations(locs []Location) {
	slices.SortFunc(locs, Location.Compare)
}

// FormatLocations renders a location list as "[a b c]" in the given order.
func FormatLocations(locs []Location) string {
	parts := make([]string, len(locs))
	for i, l := range locs {
		parts[i] = l.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// MarshalText implements encoding.TextMarshaler.
func (l Location) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Location) UnmarshalText(text []byte) error {
	parsed, err := ParseLocation(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
