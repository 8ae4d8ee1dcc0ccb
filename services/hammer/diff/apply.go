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
	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
	"github.com/AleutianAI/bitfuzz/services/hammer/item"
)

// =============================================================================
// Subtracting known items
// =============================================================================

// DiscardItem removes every bit of it regardless of polarity.
func (d *Diff) DiscardItem(it item.TileItem) {
	d.Discard(it.Bits...)
}

// applyBit subtracts the flip of one raw bit from `was` to `now`.
//
// A bit present in the diff must have moved in the direction `was`; it is
// removed. An absent bit is recorded with polarity `now`, so a following
// AssertEmpty reports the unexplained flip.
func (d *Diff) applyBit(op string, loc bits.Location, was, now bool) error {
	if cur, ok := d.bits[loc]; ok {
		if cur != was {
			return NewBitError(op, ErrPolarityConflict, []bits.Location{loc}, "bit moved %v, expected %v", cur, was)
		}
		delete(d.bits, loc)
		return nil
	}
	d.Set(loc, now)
	return nil
}

// ApplyBitDiff subtracts a Bool item changing from `from` to `to`.
func (d *Diff) ApplyBitDiff(it item.TileItem, from, to bool) error {
	if it.Kind != item.KindBool {
		return NewBitError("apply bit", ErrKindMismatch, nil, "got %s", it.Kind)
	}
	if from == to {
		return nil
	}
	inv := it.Invert[0]
	return d.applyBit("apply bit", it.Bits[0], from != inv, to != inv)
}

// ApplyBitVecDiff subtracts a BitVec item changing from `from` to `to`.
//
// Both vectors must have the item's logical width. A logical position
// that changes but has no bit in the item is ErrSizeMismatch.
func (d *Diff) ApplyBitVecDiff(it item.TileItem, from, to bits.Vec) error {
	const op = "apply bitvec"
	if it.Kind != item.KindBitVec && it.Kind != item.KindBool {
		return NewBitError(op, ErrKindMismatch, nil, "got %s", it.Kind)
	}
	if len(from) != it.Width || len(to) != it.Width {
		return NewBitError(op, ErrSizeMismatch, nil, "width %d, from %d, to %d", it.Width, len(from), len(to))
	}
	for p := range from {
		if from[p] == to[p] {
			continue
		}
		idx := it.PositionOf(p)
		if idx < 0 {
			return NewBitError(op, ErrSizeMismatch, nil, "position %d is constant", p)
		}
		inv := it.Invert[idx]
		if err := d.applyBit(op, it.Bits[idx], from[p] != inv, to[p] != inv); err != nil {
			return err
		}
	}
	return nil
}

// ApplyBitVecDiffInt is ApplyBitVecDiff with integer endpoints.
//
// An endpoint with a set bit at or above the item's width is
// ErrSizeMismatch.
func (d *Diff) ApplyBitVecDiffInt(it item.TileItem, from, to uint64) error {
	if !bits.FitsUint(from, it.Width) || !bits.FitsUint(to, it.Width) {
		return NewBitError("apply bitvec", ErrSizeMismatch, nil, "width %d, from %d, to %d", it.Width, from, to)
	}
	return d.ApplyBitVecDiff(it, bits.VecFromUint(from, it.Width), bits.VecFromUint(to, it.Width))
}

// ApplyEnumDiff subtracts an Enum item changing value from `from` to `to`.
func (d *Diff) ApplyEnumDiff(it item.TileItem, from, to string) error {
	const op = "apply enum"
	if it.Kind != item.KindEnum {
		return NewBitError(op, ErrKindMismatch, nil, "got %s", it.Kind)
	}
	pf, ok := it.Values[from]
	if !ok {
		return NewBitError(op, ErrUnknownValue, nil, "%q", from)
	}
	pt, ok := it.Values[to]
	if !ok {
		return NewBitError(op, ErrUnknownValue, nil, "%q", to)
	}
	for i, loc := range it.Bits {
		if pf[i] == pt[i] {
			continue
		}
		if err := d.applyBit(op, loc, pf[i], pt[i]); err != nil {
			return err
		}
	}
	return nil
}
