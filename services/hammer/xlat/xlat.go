// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package xlat translates families of labeled diffs into TileItems.
//
// Each function takes the diffs observed for one attribute (a baseline and
// one experiment per tested value) and returns the canonical codec. Output
// is deterministic: the same diffs and OcdMode always give an Equal item.
//
// Nothing here consumes experiment results or writes a TileDb; the collect
// package wraps these functions with lookup and insertion.
package xlat

import (
	"fmt"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
	"github.com/AleutianAI/bitfuzz/services/hammer/diff"
	"github.com/AleutianAI/bitfuzz/services/hammer/item"
)

// =============================================================================
// Single bits and vectors
// =============================================================================

// XlatBit translates a diff touching exactly one bit into a Bool item.
// The bit's direction gives the polarity: a bit that became cleared is
// stored inverted.
func XlatBit(d diff.Diff) (item.TileItem, error) {
	if d.Len() != 1 {
		return item.TileItem{}, diff.NewBitError("xlat bit", diff.ErrSizeMismatch, d.Locations(), "want 1 bit, got %d", d.Len())
	}
	loc := d.Locations()[0]
	pol, _ := d.Get(loc)
	return item.NewBool(loc, !pol), nil
}

// XlatBitWide translates a diff whose bits all move together into a dense
// BitVec with uniform inversion. Used for bundles such as "block present".
func XlatBitWide(d diff.Diff) (item.TileItem, error) {
	const op = "xlat bit wide"
	if d.IsEmpty() {
		return item.TileItem{}, diff.NewBitError(op, diff.ErrSizeMismatch, nil, "empty diff")
	}
	locs := d.Locations()
	first, _ := d.Get(locs[0])
	var mixed []bits.Location
	for _, l := range locs {
		if pol, _ := d.Get(l); pol != first {
			mixed = append(mixed, l)
		}
	}
	if len(mixed) > 0 {
		return item.TileItem{}, diff.NewBitError(op, diff.ErrPolarityConflict, mixed, "bits move in both directions")
	}
	return item.NewDenseBitVec(locs, bits.RepeatVec(!first, len(locs))), nil
}

// XlatBitVec translates one diff per logical position into a BitVec.
//
// Description:
//
//	ds[i] is the diff observed when only position i is set. It must be
//	empty (the position was never observed to have a bit) or touch a
//	single bit. The result has Width len(ds); empty positions are omitted
//	and read as constant zero. All-empty input gives an item with no bits.
//
// Outputs:
//
//	item.TileItem - KindBitVec item.
//	error - ErrSizeMismatch for a multi-bit diff, ErrBitReused when one
//	location shows up at two positions.
func XlatBitVec(ds []diff.Diff) (item.TileItem, error) {
	const op = "xlat bitvec"
	var (
		pos  []int
		locs []bits.Location
		inv  bits.Vec
	)
	seen := make(map[bits.Location]int, len(ds))
	for i, d := range ds {
		switch d.Len() {
		case 0:
			continue
		case 1:
		default:
			return item.TileItem{}, diff.NewBitError(op, diff.ErrSizeMismatch, d.Locations(), "position %d touches %d bits", i, d.Len())
		}
		loc := d.Locations()[0]
		if prev, ok := seen[loc]; ok {
			return item.TileItem{}, diff.NewBitError(op, ErrBitReused, []bits.Location{loc}, "positions %d and %d", prev, i)
		}
		seen[loc] = i
		pol, _ := d.Get(loc)
		pos = append(pos, i)
		locs = append(locs, loc)
		inv = append(inv, !pol)
	}
	return item.NewBitVec(len(ds), pos, locs, inv), nil
}

// ConcatBitVec joins Bool and BitVec items into one vector. Positions of
// each part follow those of the parts before it, so the first part holds
// the least significant positions.
func ConcatBitVec(parts ...item.TileItem) (item.TileItem, error) {
	const op = "concat bitvec"
	if len(parts) == 0 {
		return item.TileItem{}, diff.NewBitError(op, ErrNoValues, nil, "")
	}
	var (
		width int
		pos   []int
		locs  []bits.Location
		inv   bits.Vec
	)
	seen := make(map[bits.Location]struct{})
	for i, p := range parts {
		if p.Kind != item.KindBitVec && p.Kind != item.KindBool {
			return item.TileItem{}, diff.NewBitError(op, diff.ErrKindMismatch, nil, "part %d is %s", i, p.Kind)
		}
		for j, loc := range p.Bits {
			if _, dup := seen[loc]; dup {
				return item.TileItem{}, diff.NewBitError(op, ErrBitReused, []bits.Location{loc}, "part %d", i)
			}
			seen[loc] = struct{}{}
			pos = append(pos, width+p.Pos[j])
			locs = append(locs, loc)
			inv = append(inv, p.Invert[j])
		}
		width += p.Width
	}
	return item.NewBitVec(width, pos, locs, inv), nil
}

// =============================================================================
// Booleans
// =============================================================================

// XlatBool translates the diffs of a two-valued attribute into a Bool item.
// See XlatBoolDefault.
func XlatBool(d0, d1 diff.Diff) (item.TileItem, error) {
	it, _, err := XlatBoolDefault(d0, d1)
	return it, err
}

// XlatBoolDefault translates the "false" diff d0 and the "true" diff d1.
//
// Exactly one of them is the baseline and must be empty. The returned
// default is the attribute's value in the baseline: false when d0 is empty,
// true when d1 is.
func XlatBoolDefault(d0, d1 diff.Diff) (item.TileItem, bool, error) {
	const op = "xlat bool"
	switch {
	case d0.IsEmpty() && d1.IsEmpty():
		return item.TileItem{}, false, diff.NewBitError(op, diff.ErrSizeMismatch, nil, "both values empty")
	case d0.IsEmpty():
		it, err := XlatBit(d1)
		return it, false, err
	case d1.IsEmpty():
		it, err := XlatBit(d0.Negate())
		return it, true, err
	default:
		both := append(d0.Locations(), d1.Locations()...)
		return item.TileItem{}, false, diff.NewBitError(op, diff.ErrNonEmptyResidual, both, "neither value is the baseline")
	}
}

// =============================================================================
// Integers
// =============================================================================

// IntValue is the diff observed for one integer setting.
type IntValue struct {
	Value uint32
	Diff  diff.Diff
}

// XlatEnumInt solves an integer attribute from a set of tested values.
//
// Description:
//
//	The value whose diff is empty is the baseline. Every other value is
//	XORed with it; values that differ from the baseline in one bit
//	identify that bit's location, and those locations are then stripped
//	from the remaining values until each is explained. The result is a
//	BitVec whose width covers the highest solved bit. Positions never
//	solved are constant.
//
// Outputs:
//
//	item.TileItem - KindBitVec item with no inversion.
//	error - ErrPolarityConflict, ErrSizeMismatch, ErrNonEmptyResidual for
//	inconsistent diffs, ErrUnsolvable when no value isolates a new bit.
func XlatEnumInt(vals []IntValue) (item.TileItem, error) {
	const op = "xlat enum int"
	var xor uint32
	for _, v := range vals {
		if v.Diff.IsEmpty() {
			xor = v.Value
		}
	}

	var slots []*bits.Location
	want := func(i int) bool { return (xor>>i)&1 == 0 }

	for {
		progress, done := false, true
		for _, v := range vals {
			md := v.Diff.Clone()
			val := v.Value ^ xor
			for i, slot := range slots {
				if slot == nil || val&(1<<i) == 0 {
					continue
				}
				val &^= 1 << i
				pol, ok := md.Get(*slot)
				if !ok {
					return item.TileItem{}, diff.NewBitError(op, diff.ErrSizeMismatch, []bits.Location{*slot}, "value %d lacks bit %d", v.Value, i)
				}
				if pol != want(i) {
					return item.TileItem{}, diff.NewBitError(op, diff.ErrPolarityConflict, []bits.Location{*slot}, "value %d bit %d", v.Value, i)
				}
				md.Discard(*slot)
			}
			switch {
			case val == 0:
				if err := md.AssertEmpty(); err != nil {
					return item.TileItem{}, fmt.Errorf("xlat enum int: value %d: %w", v.Value, err)
				}
			case val&(val-1) == 0:
				idx := log2(val)
				if md.Len() != 1 {
					return item.TileItem{}, diff.NewBitError(op, diff.ErrSizeMismatch, md.Locations(), "value %d should isolate bit %d", v.Value, idx)
				}
				loc := md.Locations()[0]
				if pol, _ := md.Get(loc); pol != want(idx) {
					return item.TileItem{}, diff.NewBitError(op, diff.ErrPolarityConflict, []bits.Location{loc}, "value %d bit %d", v.Value, idx)
				}
				for len(slots) <= idx {
					slots = append(slots, nil)
				}
				slots[idx] = &loc
				progress = true
			default:
				done = false
			}
		}
		if done {
			break
		}
		if !progress {
			return item.TileItem{}, diff.NewBitError(op, ErrUnsolvable, nil, "%d values, %d bits solved", len(vals), countSolved(slots))
		}
	}

	var (
		pos  []int
		locs []bits.Location
	)
	for i, slot := range slots {
		if slot != nil {
			pos = append(pos, i)
			locs = append(locs, *slot)
		}
	}
	return item.NewBitVec(len(slots), pos, locs, bits.NewVec(len(locs))), nil
}

func log2(v uint32) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

func countSolved(slots []*bits.Location) int {
	n := 0
	for _, s := range slots {
		if s != nil {
			n++
		}
	}
	return n
}

// =============================================================================
// Extraction helpers
// =============================================================================

// ExtractCommon removes the bits shared by every diff and returns them.
//
// A bit present in all diffs must have one polarity everywhere. The diffs
// in ds are modified in place.
func ExtractCommon(ds []diff.Diff) (diff.Diff, error) {
	var common diff.Diff
	if len(ds) == 0 {
		return common, nil
	}
	for _, loc := range ds[0].Locations() {
		pol, _ := ds[0].Get(loc)
		shared := true
		for _, d := range ds[1:] {
			p, ok := d.Get(loc)
			if !ok {
				shared = false
				break
			}
			if p != pol {
				return diff.Diff{}, diff.NewBitError("extract common", diff.ErrPolarityConflict, []bits.Location{loc}, "")
			}
		}
		if shared {
			common.Set(loc, pol)
		}
	}
	locs := common.Locations()
	for i := range ds {
		ds[i].Discard(locs...)
	}
	return common, nil
}

// ExtractBitVecValue reads the logical value of a BitVec (or Bool) item out
// of a diff taken relative to a baseline where the item held base.
//
// Every bit of d must belong to it and must flip its position away from
// base; anything else means d is not a pure change of this item.
func ExtractBitVecValue(it item.TileItem, base bits.Vec, d diff.Diff) (bits.Vec, error) {
	rest := d.Clone()
	v, err := ExtractBitVecValuePart(it, base, &rest)
	if err != nil {
		return nil, err
	}
	if err := rest.AssertEmpty(); err != nil {
		return nil, err
	}
	return v, nil
}

// ExtractBitVecValuePart is ExtractBitVecValue for a diff that also holds
// other causes. The item's bits are removed from d and the rest is left
// for later subtraction. On error d is unchanged.
func ExtractBitVecValuePart(it item.TileItem, base bits.Vec, d *diff.Diff) (bits.Vec, error) {
	const op = "extract bitvec value"
	if it.Kind != item.KindBitVec && it.Kind != item.KindBool {
		return nil, diff.NewBitError(op, diff.ErrKindMismatch, nil, "got %s", it.Kind)
	}
	if len(base) != it.Width {
		return nil, diff.NewBitError(op, diff.ErrSizeMismatch, nil, "width %d, base %d", it.Width, len(base))
	}
	res := base.Clone()
	var mine []bits.Location
	for _, loc := range d.Locations() {
		idx := it.Index(loc)
		if idx < 0 {
			continue
		}
		pol, _ := d.Get(loc)
		v := pol != it.Invert[idx]
		p := it.Pos[idx]
		if res[p] == v {
			return nil, diff.NewBitError(op, diff.ErrPolarityConflict, []bits.Location{loc}, "position %d already %v", p, v)
		}
		res[p] = v
		mine = append(mine, loc)
	}
	d.Discard(mine...)
	return res, nil
}

// SwapEnumBits exchanges two bits of an enum field, together with the
// matching entries of every pattern. Used to hand-fix the order of fields
// no OcdMode labels well.
func SwapEnumBits(it *item.TileItem, a, b int) error {
	const op = "swap enum bits"
	if it.Kind != item.KindEnum {
		return diff.NewBitError(op, diff.ErrKindMismatch, nil, "got %s", it.Kind)
	}
	n := len(it.Bits)
	if a < 0 || b < 0 || a >= n || b >= n {
		return diff.NewBitError(op, diff.ErrSizeMismatch, nil, "indices %d, %d of %d bits", a, b, n)
	}
	it.Bits[a], it.Bits[b] = it.Bits[b], it.Bits[a]
	for _, v := range it.Values {
		v[a], v[b] = v[b], v[a]
	}
	return nil
}
