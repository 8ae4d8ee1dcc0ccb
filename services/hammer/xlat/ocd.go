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
	"fmt"
	"slices"
	"strings"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
)

type ocdKind int

const (
	ocdValueOrder ocdKind = iota
	ocdBitOrder
	ocdMux
	ocdDrpOrder
	ocdFixedOrder
)

// OcdMode selects the bit order of an enum field when several orders are
// equally valid. It changes labeling only, never which bits or patterns are
// found.
//
// The zero value is ValueOrder.
type OcdMode struct {
	kind  ocdKind
	fixed []bits.Location
}

var (
	// ValueOrder orders bits so that bits first raised by earlier values
	// come first.
	ValueOrder = OcdMode{kind: ocdValueOrder}

	// BitOrder keeps ascending location order.
	BitOrder = OcdMode{kind: ocdBitOrder}

	// Mux places enable bits first, then one-hot groups from largest to
	// smallest, then every remaining bit.
	Mux = OcdMode{kind: ocdMux}

	// DrpOrder sorts by tile, then bit, then frame, which follows the
	// address order of DRP-mapped configuration registers.
	DrpOrder = OcdMode{kind: ocdDrpOrder}
)

// FixedOrder reuses the bit order of a sibling item. locs must be a
// permutation of the translated field.
func FixedOrder(locs ...bits.Location) OcdMode {
	return OcdMode{kind: ocdFixedOrder, fixed: slices.Clone(locs)}
}

// String returns the name accepted by ParseOcdMode.
func (m OcdMode) String() string {
	switch m.kind {
	case ocdBitOrder:
		return "bit"
	case ocdMux:
		return "mux"
	case ocdDrpOrder:
		return "drp"
	case ocdFixedOrder:
		return "fixed" + bits.FormatLocations(m.fixed)
	default:
		return "value"
	}
}

// ParseOcdMode parses "value", "bit", "mux" or "drp". An empty string is
// ValueOrder. Fixed orders are built with FixedOrder.
func ParseOcdMode(s string) (OcdMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "value":
		return ValueOrder, nil
	case "bit":
		return BitOrder, nil
	case "mux":
		return Mux, nil
	case "drp":
		return DrpOrder, nil
	default:
		return OcdMode{}, fmt.Errorf("%w: %q", ErrUnknownOcdMode, s)
	}
}
