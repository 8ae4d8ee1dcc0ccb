// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package item defines TileItem, the decoded codec of one device attribute.
//
// A TileItem says which configuration bits implement an attribute and how
// logical values map onto them. Three shapes exist:
//
//   - Bool: one bit plus a polarity.
//   - BitVec: bits indexed by logical significance plus an inversion mask.
//     Positions that were never observed are absent (constant zero).
//   - Enum: a shared bit field and one pattern per symbolic value.
//
// # Ownership Model
//
// TileItem values are plain data. Constructors copy their inputs, and
// accessors that return slices return copies, so an item stored in a
// TileDb cannot be changed through a caller's alias.
package item

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
)

// Kind discriminates the TileItem variants.
type Kind int

const (
	// KindBool is a single-bit boolean attribute.
	KindBool Kind = iota + 1

	// KindBitVec is a multi-bit integer attribute.
	KindBitVec

	// KindEnum is a symbolic attribute over a shared bit field.
	KindEnum
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindBitVec:
		return "bitvec"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k < KindBool || k > KindEnum {
		return nil, fmt.Errorf("marshal item kind %d: unknown", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "bool":
		*k = KindBool
	case "bitvec":
		*k = KindBitVec
	case "enum":
		*k = KindEnum
	default:
		return fmt.Errorf("unmarshal item kind %q: unknown", text)
	}
	return nil
}

// TileItem is the canonical decoded codec for one attribute.
//
// Field use by kind:
//
//	Kind    Bits          Invert   Pos      Width   Values
//	Bool    1 location    1 flag   [0]      1       -
//	BitVec  present bits  per bit  per bit  N       -
//	Enum    shared field  -        -        -       name -> pattern
//
// Invert[i] == true means "bit set encodes logical 0".
type TileItem struct {
	Kind   Kind                `json:"kind" yaml:"kind"`
	Bits   []bits.Location     `json:"bits" yaml:"bits,flow"`
	Invert bits.Vec            `json:"invert,omitempty" yaml:"invert,omitempty"`
	Pos    []int               `json:"pos,omitempty" yaml:"pos,flow,omitempty"`
	Width  int                 `json:"width,omitempty" yaml:"width,omitempty"`
	Values map[string]bits.Vec `json:"values,omitempty" yaml:"values,omitempty"`
}

// NewBool returns a single-bit boolean item.
func NewBool(loc bits.Location, invert bool) TileItem {
	return TileItem{
		Kind:   KindBool,
		Bits:   []bits.Location{loc},
		Invert: bits.Vec{invert},
		Pos:    []int{0},
		Width:  1,
	}
}

// NewBitVec returns a bit-vector item of logical width `width`.
//
// locs[i] implements logical position pos[i] with inversion invert[i].
// Positions not listed are constant zero. The three slices must have equal
// length; the caller guarantees positions are unique and below width.
func NewBitVec(width int, pos []int, locs []bits.Location, invert bits.Vec) TileItem {
	return TileItem{
		Kind:   KindBitVec,
		Bits:   slices.Clone(locs),
		Invert: invert.Clone(),
		Pos:    slices.Clone(pos),
		Width:  width,
	}
}

// NewDenseBitVec returns a bit-vector item where locs[i] implements
// position i.
func NewDenseBitVec(locs []bits.Location, invert bits.Vec) TileItem {
	pos := make([]int, len(locs))
	for i := range pos {
		pos[i] = i
	}
	return NewBitVec(len(locs), pos, locs, invert)
}

// NewEnum returns an enum item over the given field.
func NewEnum(field []bits.Location, values map[string]bits.Vec) TileItem {
	vals := make(map[string]bits.Vec, len(values))
	for k, v := range values {
		vals[k] = v.Clone()
	}
	return TileItem{
		Kind:   KindEnum,
		Bits:   slices.Clone(field),
		Values: vals,
	}
}

// IsConstant reports whether the item has no bits at all.
//
// A zero-bit item is the explicit marker for an attribute whose every
// experiment produced an empty diff.
func (t TileItem) IsConstant() bool {
	return len(t.Bits) == 0
}

// Locations returns a copy of the item's bits in item order.
func (t TileItem) Locations() []bits.Location {
	return slices.Clone(t.Bits)
}

// Index returns the position of loc within Bits, or -1.
func (t TileItem) Index(loc bits.Location) int {
	return slices.Index(t.Bits, loc)
}

// ValueNames returns the enum value names in sorted order.
func (t TileItem) ValueNames() []string {
	names := make([]string, 0, len(t.Values))
	for k := range t.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Pattern returns the bit pattern of an enum value.
func (t TileItem) Pattern(value string) (bits.Vec, bool) {
	v, ok := t.Values[value]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// PositionOf returns the index into Bits implementing logical position
// p of a Bool or BitVec item, or -1 when the position is constant.
func (t TileItem) PositionOf(p int) int {
	return slices.Index(t.Pos, p)
}

// Equal reports structural equality.
func (t TileItem) Equal(o TileItem) bool {
	if t.Kind != o.Kind || t.Width != o.Width {
		return false
	}
	if !slices.Equal(t.Bits, o.Bits) || !slices.Equal(t.Pos, o.Pos) {
		return false
	}
	if !t.Invert.Equal(o.Invert) {
		return false
	}
	if len(t.Values) != len(o.Values) {
		return false
	}
	for k, v := range t.Values {
		ov, ok := o.Values[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (t TileItem) Clone() TileItem {
	c := TileItem{
		Kind:   t.Kind,
		Bits:   slices.Clone(t.Bits),
		Invert: t.Invert.Clone(),
		Pos:    slices.Clone(t.Pos),
		Width:  t.Width,
	}
	if t.Values != nil {
		c.Values = make(map[string]bits.Vec, len(t.Values))
		for k, v := range t.Values {
			c.Values[k] = v.Clone()
		}
	}
	return c
}

// String renders a compact, deterministic description.
func (t TileItem) String() string {
	var sb strings.Builder
	switch t.Kind {
	case KindBool:
		fmt.Fprintf(&sb, "bool %s", polBit(t.Bits[0], t.Invert[0]))
	case KindBitVec:
		fmt.Fprintf(&sb, "bitvec[%d]", t.Width)
		for i, loc := range t.Bits {
			fmt.Fprintf(&sb, " %d=%s", t.Pos[i], polBit(loc, t.Invert[i]))
		}
	case KindEnum:
		fmt.Fprintf(&sb, "enum %s", bits.FormatLocations(t.Bits))
		for _, name := range t.ValueNames() {
			fmt.Fprintf(&sb, " %s=%s", name, t.Values[name])
		}
	default:
		sb.WriteString("invalid item")
	}
	return sb.String()
}

func polBit(loc bits.Location, inv bool) string {
	if inv {
		return "~" + loc.String()
	}
	return loc.String()
}
