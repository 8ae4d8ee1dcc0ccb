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
	"cmp"
	"slices"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
	"github.com/AleutianAI/bitfuzz/services/hammer/diff"
	"github.com/AleutianAI/bitfuzz/services/hammer/item"
)

// Value is the diff observed for one symbolic value of an enum.
type Value struct {
	Name string
	Diff diff.Diff
}

// XlatEnum translates (value, diff) pairs with ValueOrder.
func XlatEnum(vals []Value) (item.TileItem, error) {
	return translateEnum(vals, ValueOrder, false)
}

// XlatEnumOCD translates (value, diff) pairs with the given bit order.
//
// Description:
//
//	The field is the union of every touched bit; each bit must move in
//	one direction across all values. A value's pattern holds the bit's
//	direction where its diff touches the bit and the opposite elsewhere,
//	so the baseline (empty diff) reads as the complement of every
//	direction. The same name may appear more than once if it decodes to
//	the same pattern each time.
//
//	When no value touches any bit the result is a zero-bit enum listing
//	every name with an empty pattern; item.IsConstant reports it.
//
// Outputs:
//
//	item.TileItem - KindEnum item.
//	error - ErrNoValues, ErrPolarityConflict, ErrSizeMismatch (bad fixed
//	order) or ErrAliasingConflict (two names with one pattern).
func XlatEnumOCD(vals []Value, mode OcdMode) (item.TileItem, error) {
	return translateEnum(vals, mode, false)
}

// XlatEnumDefault is XlatEnum with an implicit empty diff for def.
func XlatEnumDefault(vals []Value, def string) (item.TileItem, error) {
	return translateEnum(withDefault(vals, def), ValueOrder, false)
}

// XlatEnumDefaultOCD is XlatEnumOCD with an implicit empty diff for def.
func XlatEnumDefaultOCD(vals []Value, def string, mode OcdMode) (item.TileItem, error) {
	return translateEnum(withDefault(vals, def), mode, false)
}

// XlatEnumAliased is XlatEnumOCD for attributes where distinct names are
// known to share an encoding.
func XlatEnumAliased(vals []Value, mode OcdMode) (item.TileItem, error) {
	return translateEnum(vals, mode, true)
}

// XlatEnumDefaultAliased is XlatEnumAliased with an implicit empty diff
// for def.
func XlatEnumDefaultAliased(vals []Value, def string, mode OcdMode) (item.TileItem, error) {
	return translateEnum(withDefault(vals, def), mode, true)
}

func withDefault(vals []Value, def string) []Value {
	out := make([]Value, 0, len(vals)+1)
	out = append(out, Value{Name: def})
	return append(out, vals...)
}

func translateEnum(vals []Value, mode OcdMode, aliased bool) (item.TileItem, error) {
	const op = "xlat enum"
	if len(vals) == 0 {
		return item.TileItem{}, diff.NewBitError(op, ErrNoValues, nil, "")
	}

	pols := make(map[bits.Location]bool)
	var conflicts []bits.Location
	for _, v := range vals {
		v.Diff.Each(func(loc bits.Location, pol bool) {
			cur, ok := pols[loc]
			if !ok {
				pols[loc] = pol
			} else if cur != pol {
				conflicts = append(conflicts, loc)
			}
		})
	}
	if len(conflicts) > 0 {
		return item.TileItem{}, diff.NewBitError(op, diff.ErrPolarityConflict, dedupe(conflicts), "")
	}

	if len(pols) == 0 {
		values := make(map[string]bits.Vec, len(vals))
		for _, v := range vals {
			values[v.Name] = bits.Vec{}
		}
		return item.NewEnum(nil, values), nil
	}

	field := make([]bits.Location, 0, len(pols))
	for loc := range pols {
		field = append(field, loc)
	}
	bits.SortLocations(field)

	pattern := func(d diff.Diff, loc bits.Location) bool {
		_, touched := d.Get(loc)
		return pols[loc] == touched
	}

	switch mode.kind {
	case ocdBitOrder:
	case ocdFixedOrder:
		if err := checkPermutation(mode.fixed, pols); err != nil {
			return item.TileItem{}, err
		}
		field = slices.Clone(mode.fixed)
	case ocdDrpOrder:
		slices.SortFunc(field, func(a, b bits.Location) int {
			return cmp.Or(cmp.Compare(a.Tile, b.Tile), cmp.Compare(a.Bit, b.Bit), cmp.Compare(a.Frame, b.Frame))
		})
	default:
		slices.SortStableFunc(field, func(a, b bits.Location) int {
			for _, v := range vals {
				va, vb := pattern(v.Diff, a), pattern(v.Diff, b)
				if va != vb {
					if va {
						return -1
					}
					return 1
				}
			}
			return 0
		})
		if mode.kind == ocdMux {
			field = muxOrder(field, vals, pattern)
		}
	}

	values := make(map[string]bits.Vec, len(vals))
	owner := make(map[string]string, len(vals))
	for _, v := range vals {
		pat := make(bits.Vec, len(field))
		for i, loc := range field {
			pat[i] = pattern(v.Diff, loc)
		}
		if prev, ok := values[v.Name]; ok {
			if !prev.Equal(pat) {
				return item.TileItem{}, diff.NewBitError(op, ErrAliasingConflict, v.Diff.Locations(), "value %q decoded as %s and %s", v.Name, prev, pat)
			}
			continue
		}
		key := pat.String()
		if other, ok := owner[key]; ok && !aliased {
			return item.TileItem{}, diff.NewBitError(op, ErrAliasingConflict, nil, "values %q and %q share pattern %s", other, v.Name, key)
		}
		owner[key] = v.Name
		values[v.Name] = pat
	}
	return item.NewEnum(field, values), nil
}

func checkPermutation(fixed []bits.Location, pols map[bits.Location]bool) error {
	seen := make(map[bits.Location]bool, len(fixed))
	var bad []bits.Location
	for _, loc := range fixed {
		if _, ok := pols[loc]; !ok || seen[loc] {
			bad = append(bad, loc)
		}
		seen[loc] = true
	}
	if len(bad) > 0 || len(fixed) != len(pols) {
		return diff.NewBitError("xlat enum", diff.ErrSizeMismatch, bad, "fixed order has %d bits, field has %d", len(fixed), len(pols))
	}
	return nil
}

// muxOrder reorders a value-ordered field as enable bits, then one-hot
// groups by decreasing size, then the rest.
//
// A group starts at the first untaken bit and greedily adds every later
// untaken bit that no value sets together with a group member. The group
// is kept only if every value setting any bit sets exactly one bit of the
// group. Kept single-bit groups are enable bits.
func muxOrder(field []bits.Location, vals []Value, pattern func(diff.Diff, bits.Location) bool) []bits.Location {
	pats := make([]bits.Vec, len(vals))
	for i, v := range vals {
		pats[i] = make(bits.Vec, len(field))
		for j, loc := range field {
			pats[i][j] = pattern(v.Diff, loc)
		}
	}

	taken := make([]bool, len(field))
	var enables []int
	var groups [][]int

	for s := range field {
		if taken[s] {
			continue
		}
		group := []int{s}
		for n := s + 1; n < len(field); n++ {
			if taken[n] {
				continue
			}
			disjoint := true
			for _, c := range group {
				for _, p := range pats {
					if p[n] && p[c] {
						disjoint = false
						break
					}
				}
			}
			if disjoint {
				group = append(group, n)
			}
		}

		full := true
		for _, p := range pats {
			hit := false
			for _, b := range group {
				hit = hit || p[b]
			}
			if !hit && p.Any() {
				full = false
				break
			}
		}
		if !full {
			continue
		}
		for _, b := range group {
			taken[b] = true
		}
		if len(group) == 1 {
			enables = append(enables, s)
		} else {
			groups = append(groups, group)
		}
	}

	slices.SortStableFunc(groups, func(a, b []int) int {
		return cmp.Compare(len(b), len(a))
	})

	out := make([]bits.Location, 0, len(field))
	for _, b := range enables {
		out = append(out, field[b])
	}
	for _, g := range groups {
		for _, b := range g {
			out = append(out, field[b])
		}
	}
	for b, loc := range field {
		if !taken[b] {
			out = append(out, loc)
		}
	}
	return out
}

func dedupe(locs []bits.Location) []bits.Location {
	bits.SortLocations(locs)
	return slices.Compact(locs)
}
