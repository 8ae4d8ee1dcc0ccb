// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff implements the algebra over configuration-bit differences.
//
// A Diff is the set of bits that changed between a baseline bitstream and
// an experiment bitstream, each with the direction it moved: true means the
// bit became set, false means it became cleared. A location never appears
// twice in one Diff.
//
// # Lifecycle
//
// Diffs arrive from the experiment map, get combined and split to isolate
// single causes, have known items subtracted with the Apply* and Discard*
// methods, and finish with AssertEmpty:
//
//	present := ...                               // "block present" experiment
//	present.DiscardItem(widthEnum)               // explained by DATA_WIDTH
//	if err := present.ApplyBitDiff(initBit, false, true); err != nil {
//	    return err
//	}
//	return present.AssertEmpty()                 // nothing unexplained left
//
// # Thread Safety
//
// Diff is not safe for concurrent mutation. Value-returning operations
// (Combine, Split, Negate, Clone) never modify their receivers.
package diff

import (
	"strings"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
)

// Diff is a set of signed bit flips.
//
// The zero value is the empty Diff and is ready to use.
type Diff struct {
	bits map[bits.Location]bool
}

// New builds a Diff from an explicit location to polarity map.
func New(m map[bits.Location]bool) Diff {
	d := Diff{bits: make(map[bits.Location]bool, len(m))}
	for k, v := range m {
		d.bits[k] = v
	}
	return d
}

// Of builds a Diff in which every listed location became set.
func Of(set ...bits.Location) Diff {
	d := Diff{bits: make(map[bits.Location]bool, len(set))}
	for _, l := range set {
		d.bits[l] = true
	}
	return d
}

// Cleared builds a Diff in which every listed location became cleared.
func Cleared(clear ...bits.Location) Diff {
	d := Diff{bits: make(map[bits.Location]bool, len(clear))}
	for _, l := range clear {
		d.bits[l] = false
	}
	return d
}

// Set records that loc moved in direction pol, replacing any earlier entry.
func (d *Diff) Set(loc bits.Location, pol bool) {
	if d.bits == nil {
		d.bits = make(map[bits.Location]bool)
	}
	d.bits[loc] = pol
}

// Len returns the number of touched bits.
func (d Diff) Len() int {
	return len(d.bits)
}

// IsEmpty reports whether the diff touches no bits.
func (d Diff) IsEmpty() bool {
	return len(d.bits) == 0
}

// Get returns the polarity of loc and whether it is present.
func (d Diff) Get(loc bits.Location) (pol bool, ok bool) {
	pol, ok = d.bits[loc]
	return pol, ok
}

// Locations returns the touched bits in ascending order.
func (d Diff) Locations() []bits.Location {
	locs := make([]bits.Location, 0, len(d.bits))
	for l := range d.bits {
		locs = append(locs, l)
	}
	bits.SortLocations(locs)
	return locs
}

// Each calls fn for every bit in ascending location order.
func (d Diff) Each(fn func(loc bits.Location, pol bool)) {
	for _, l := range d.Locations() {
		fn(l, d.bits[l])
	}
}

// Clone returns an independent copy.
func (d Diff) Clone() Diff {
	return New(d.bits)
}

// Equal reports whether both diffs touch the same bits with the same
// polarities.
func (d Diff) Equal(o Diff) bool {
	if len(d.bits) != len(o.bits) {
		return false
	}
	for k, v := range d.bits {
		ov, ok := o.bits[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Negate returns the diff with every polarity flipped.
func (d Diff) Negate() Diff {
	res := Diff{bits: make(map[bits.Location]bool, len(d.bits))}
	for k, v := range d.bits {
		res.bits[k] = !v
	}
	return res
}

// Combine applies the negation of b to a.
//
// Description:
//
//	Used to cancel a baseline or an already identified sub-feature out of
//	a larger diff. For each bit of b:
//	  - present in a with the same polarity: the bit cancels and is removed
//	  - present in a with the opposite polarity: ErrPolarityConflict
//	  - absent from a: inserted with b's polarity flipped
//
//	Combine(a, a) is empty and Combine(Combine(a, b), b.Negate()) == a.
//
// Outputs:
//
//	Diff - The combined diff. Neither input is modified.
//	error - *BitError wrapping ErrPolarityConflict.
func Combine(a, b Diff) (Diff, error) {
	res := a.Clone()
	var conflicts []bits.Location
	for k, v := range b.bits {
		cur, ok := res.bits[k]
		switch {
		case !ok:
			res.bits[k] = !v
		case cur == v:
			delete(res.bits, k)
		default:
			conflicts = append(conflicts, k)
		}
	}
	if len(conflicts) > 0 {
		return Diff{}, NewBitError("combine", ErrPolarityConflict, conflicts, "")
	}
	return res, nil
}

// Split separates two diffs into their exclusive and shared parts.
//
// Description:
//
//	Returns aOnly, bOnly and common such that a = aOnly ∪ common and
//	b = bOnly ∪ common, with the three results pairwise disjoint. A bit
//	shared by a and b with different polarities cannot belong to a common
//	cause and yields ErrPolarityConflict.
func Split(a, b Diff) (aOnly, bOnly, common Diff, err error) {
	aOnly = Diff{bits: make(map[bits.Location]bool)}
	bOnly = b.Clone()
	common = Diff{bits: make(map[bits.Location]bool)}
	var conflicts []bits.Location
	for k, av := range a.bits {
		bv, ok := bOnly.bits[k]
		if !ok {
			aOnly.bits[k] = av
			continue
		}
		if av != bv {
			conflicts = append(conflicts, k)
			continue
		}
		delete(bOnly.bits, k)
		common.bits[k] = av
	}
	if len(conflicts) > 0 {
		return Diff{}, Diff{}, Diff{}, NewBitError("split", ErrPolarityConflict, conflicts, "")
	}
	return aOnly, bOnly, common, nil
}

// Discard removes the listed locations regardless of polarity.
// Locations not present are ignored.
func (d *Diff) Discard(locs ...bits.Location) {
	for _, l := range locs {
		delete(d.bits, l)
	}
}

// Without returns a copy of d with the listed locations removed.
func (d Diff) Without(locs ...bits.Location) Diff {
	res := d.Clone()
	res.Discard(locs...)
	return res
}

// SplitBitsBy moves every bit for which keep returns true into a new Diff
// and returns it.
func (d *Diff) SplitBitsBy(keep func(loc bits.Location) bool) Diff {
	res := Diff{bits: make(map[bits.Location]bool)}
	for k, v := range d.bits {
		if keep(k) {
			res.bits[k] = v
			delete(d.bits, k)
		}
	}
	return res
}

// SplitLocations moves the listed locations into a new Diff and returns it.
func (d *Diff) SplitLocations(locs ...bits.Location) Diff {
	set := make(map[bits.Location]struct{}, len(locs))
	for _, l := range locs {
		set[l] = struct{}{}
	}
	return d.SplitBitsBy(func(loc bits.Location) bool {
		_, ok := set[loc]
		return ok
	})
}

// TileMap renumbers tile indices: source tile -> destination tile.
type TileMap map[uint16]uint16

// SplitTiles routes the bits of a diff taken over a multi-tile region into
// one diff per map. A bit in source tile t lands in the diff whose map
// holds t, with its tile index renumbered.
//
// A source tile claimed by two maps, or a touched tile claimed by none,
// is ErrTileMapping.
func (d Diff) SplitTiles(maps ...TileMap) ([]Diff, error) {
	type dest struct {
		idx  int
		tile uint16
	}
	route := make(map[uint16]dest)
	for i, m := range maps {
		for src, dst := range m {
			if _, dup := route[src]; dup {
				return nil, NewBitError("split tiles", ErrTileMapping, nil, "tile %d mapped twice", src)
			}
			route[src] = dest{idx: i, tile: dst}
		}
	}

	res := make([]Diff, len(maps))
	var unmapped []bits.Location
	for loc, pol := range d.bits {
		to, ok := route[loc.Tile]
		if !ok {
			unmapped = append(unmapped, loc)
			continue
		}
		loc.Tile = to.tile
		res[to.idx].Set(loc, pol)
	}
	if len(unmapped) > 0 {
		return nil, NewBitError("split tiles", ErrTileMapping, unmapped, "tiles not mapped")
	}
	return res, nil
}

// FilterTiles returns the bits of d whose tile is in m, renumbered. Other
// bits are dropped.
func (d Diff) FilterTiles(m TileMap) Diff {
	var res Diff
	for loc, pol := range d.bits {
		dst, ok := m[loc.Tile]
		if !ok {
			continue
		}
		loc.Tile = dst
		res.Set(loc, pol)
	}
	return res
}

// AssertEmpty fails unless every bit has been attributed.
func (d Diff) AssertEmpty() error {
	if len(d.bits) == 0 {
		return nil
	}
	return NewBitError("assert empty", ErrNonEmptyResidual, d.Locations(), "%s", d)
}

// String renders the diff deterministically as "[0:1:2:+ 0:1:3:-]".
func (d Diff) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, l := range d.Locations() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(l.String())
		if d.bits[l] {
			sb.WriteString(":+")
		} else {
			sb.WriteString(":-")
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
