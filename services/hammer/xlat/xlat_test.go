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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
	"github.com/AleutianAI/bitfuzz/services/hammer/diff"
	"github.com/AleutianAI/bitfuzz/services/hammer/item"
)

var (
	bitA = bits.Loc(0, 4, 0)
	bitB = bits.Loc(0, 4, 1)
	bitC = bits.Loc(0, 7, 3)
)

// =============================================================================
// XlatBit / XlatBitWide
// =============================================================================

func TestXlatBit(t *testing.T) {
	it, err := XlatBit(diff.Of(bitA))
	require.NoError(t, err)
	assert.True(t, it.Equal(item.NewBool(bitA, false)))

	it, err = XlatBit(diff.Cleared(bitA))
	require.NoError(t, err)
	assert.True(t, it.Equal(item.NewBool(bitA, true)))

	_, err = XlatBit(diff.Of(bitA, bitB))
	assert.ErrorIs(t, err, diff.ErrSizeMismatch)

	_, err = XlatBit(diff.Diff{})
	assert.ErrorIs(t, err, diff.ErrSizeMismatch)
}

func TestXlatBitWide(t *testing.T) {
	it, err := XlatBitWide(diff.Cleared(bitB, bitA))
	require.NoError(t, err)
	assert.Equal(t, []bits.Location{bitA, bitB}, it.Bits)
	assert.Equal(t, bits.Vec{true, true}, it.Invert)

	_, err = XlatBitWide(diff.New(map[bits.Location]bool{bitA: true, bitB: false}))
	assert.ErrorIs(t, err, diff.ErrPolarityConflict)
}

// =============================================================================
// XlatBitVec
// =============================================================================

func TestXlatBitVec(t *testing.T) {
	t.Run("sparse positions", func(t *testing.T) {
		it, err := XlatBitVec([]diff.Diff{{}, diff.Of(bitA), {}, diff.Of(bitB)})
		require.NoError(t, err)
		assert.Equal(t, 4, it.Width)
		assert.Equal(t, []int{1, 3}, it.Pos)
		assert.Equal(t, []bits.Location{bitA, bitB}, it.Bits)
		assert.Equal(t, -1, it.PositionOf(0))
		assert.Equal(t, -1, it.PositionOf(2))
	})

	t.Run("multi-bit position", func(t *testing.T) {
		_, err := XlatBitVec([]diff.Diff{{}, diff.Of(bitA), {}, diff.Of(bitA, bitB)})
		assert.ErrorIs(t, err, diff.ErrSizeMismatch)
	})

	t.Run("one bit at two positions", func(t *testing.T) {
		_, err := XlatBitVec([]diff.Diff{diff.Of(bitA), diff.Of(bitB), diff.Of(bitA)})
		assert.ErrorIs(t, err, ErrAliasingConflict)
		assert.ErrorIs(t, err, diff.ErrSizeMismatch)
		assert.ErrorIs(t, err, ErrBitReused)
	})

	t.Run("all empty", func(t *testing.T) {
		it, err := XlatBitVec(make([]diff.Diff, 3))
		require.NoError(t, err)
		assert.True(t, it.IsConstant())
		assert.Equal(t, 3, it.Width)
	})

	t.Run("width law", func(t *testing.T) {
		ds := []diff.Diff{diff.Cleared(bitC), diff.Of(bitA), diff.Of(bitB)}
		it, err := XlatBitVec(ds)
		require.NoError(t, err)
		for _, p := range it.Pos {
			assert.Less(t, p, len(ds))
		}
		assert.Equal(t, bits.Vec{true, false, false}, it.Invert)
	})
}

// =============================================================================
// XlatBool
// =============================================================================

func TestXlatBoolDefault(t *testing.T) {
	t.Run("false is baseline", func(t *testing.T) {
		it, def, err := XlatBoolDefault(diff.Diff{}, diff.Of(bitA))
		require.NoError(t, err)
		assert.False(t, def)
		assert.True(t, it.Equal(item.NewBool(bitA, false)))
	})

	t.Run("true is baseline", func(t *testing.T) {
		it, def, err := XlatBoolDefault(diff.Of(bitA), diff.Diff{})
		require.NoError(t, err)
		assert.True(t, def)
		assert.True(t, it.Equal(item.NewBool(bitA, true)))
	})

	t.Run("no baseline", func(t *testing.T) {
		_, err := XlatBool(diff.Of(bitA), diff.Of(bitB))
		assert.ErrorIs(t, err, diff.ErrNonEmptyResidual)
	})

	t.Run("no effect", func(t *testing.T) {
		_, err := XlatBool(diff.Diff{}, diff.Diff{})
		assert.ErrorIs(t, err, diff.ErrSizeMismatch)
	})
}

// =============================================================================
// XlatEnum
// =============================================================================

func TestXlatEnum_ValueOrder(t *testing.T) {
	vals := []Value{
		{Name: "A"},
		{Name: "B", Diff: diff.Of(bitB)},
		{Name: "C", Diff: diff.Of(bitA)},
	}

	it, err := XlatEnum(vals)
	require.NoError(t, err)
	assert.Equal(t, []bits.Location{bitB, bitA}, it.Bits)
	assert.Equal(t, "00", it.Values["A"].String())
	assert.Equal(t, "01", it.Values["B"].String())
	assert.Equal(t, "10", it.Values["C"].String())

	byBit, err := XlatEnumOCD(vals, BitOrder)
	require.NoError(t, err)
	assert.Equal(t, []bits.Location{bitA, bitB}, byBit.Bits)
	assert.Equal(t, "10", byBit.Values["B"].String())
}

func TestXlatEnum_RoundTrip(t *testing.T) {
	vals := []Value{
		{Name: "READ_FIRST", Diff: diff.Of(bitA)},
		{Name: "NO_CHANGE", Diff: diff.New(map[bits.Location]bool{bitB: true, bitC: false})},
	}
	it, err := XlatEnumDefault(vals, "WRITE_FIRST")
	require.NoError(t, err)
	assert.Len(t, it.Values, 3)

	// Cleared bits read as set in the baseline.
	base := it.Values["WRITE_FIRST"]
	assert.True(t, base[it.Index(bitC)])

	for _, v := range vals {
		d := v.Diff.Clone()
		require.NoError(t, d.ApplyEnumDiff(it, v.Name, "WRITE_FIRST"))
		assert.NoError(t, d.AssertEmpty(), v.Name)
	}
}

func TestXlatEnum_Errors(t *testing.T) {
	_, err := XlatEnum(nil)
	assert.ErrorIs(t, err, ErrNoValues)

	_, err = XlatEnum([]Value{{Name: "X", Diff: diff.Of(bitA)}, {Name: "Y", Diff: diff.Cleared(bitA)}})
	assert.ErrorIs(t, err, diff.ErrPolarityConflict)

	aliasing := []Value{{Name: "A"}, {Name: "B", Diff: diff.Of(bitA)}, {Name: "C"}}
	_, err = XlatEnum(aliasing)
	assert.ErrorIs(t, err, ErrAliasingConflict)

	it, err := XlatEnumAliased(aliasing, ValueOrder)
	require.NoError(t, err)
	assert.True(t, it.Values["A"].Equal(it.Values["C"]))

	_, err = XlatEnum([]Value{{Name: "A"}, {Name: "A", Diff: diff.Of(bitA)}})
	assert.ErrorIs(t, err, ErrAliasingConflict)

	it, err = XlatEnum([]Value{{Name: "B", Diff: diff.Of(bitA)}, {Name: "B", Diff: diff.Of(bitA)}, {Name: "A"}})
	require.NoError(t, err)
	assert.Len(t, it.Values, 2)
}

func TestXlatEnum_AllEmpty(t *testing.T) {
	tests := []struct {
		name  string
		xlat  func() (item.TileItem, error)
		names []string
	}{
		{
			name:  "default plus one empty value",
			xlat:  func() (item.TileItem, error) { return XlatEnumDefault([]Value{{Name: "B"}}, "A") },
			names: []string{"A", "B"},
		},
		{
			name:  "several empty values",
			xlat:  func() (item.TileItem, error) { return XlatEnumOCD([]Value{{Name: "X"}, {Name: "Y"}, {Name: "Z"}}, Mux) },
			names: []string{"X", "Y", "Z"},
		},
		{
			name:  "single value",
			xlat:  func() (item.TileItem, error) { return XlatEnum([]Value{{Name: "ONLY"}}) },
			names: []string{"ONLY"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := tt.xlat()
			require.NoError(t, err)
			assert.True(t, it.IsConstant())
			assert.Equal(t, item.KindEnum, it.Kind)
			assert.Equal(t, tt.names, it.ValueNames())
			for _, n := range tt.names {
				assert.Empty(t, it.Values[n], n)
			}
		})
	}

	// One touched bit is enough to make two empty names alias again.
	_, err := XlatEnumDefault([]Value{{Name: "B"}, {Name: "C", Diff: diff.Of(bitA)}}, "A")
	assert.ErrorIs(t, err, ErrAliasingConflict)
}

func TestXlatEnumDefaultAliased(t *testing.T) {
	vals := []Value{
		{Name: "SYNC", Diff: diff.Of(bitA)},
		{Name: "ASYNC"},
	}
	_, err := XlatEnumDefaultOCD(vals, "NONE", BitOrder)
	assert.ErrorIs(t, err, ErrAliasingConflict)

	it, err := XlatEnumDefaultAliased(vals, "NONE", BitOrder)
	require.NoError(t, err)
	assert.Equal(t, []bits.Location{bitA}, it.Bits)
	assert.True(t, it.Values["ASYNC"].Equal(it.Values["NONE"]))
	assert.Equal(t, "1", it.Values["SYNC"].String())
}

func TestXlatEnum_FixedAndDrpOrder(t *testing.T) {
	vals := []Value{{Name: "A"}, {Name: "B", Diff: diff.Of(bitA)}, {Name: "C", Diff: diff.Of(bitB)}}

	it, err := XlatEnumOCD(vals, FixedOrder(bitB, bitA))
	require.NoError(t, err)
	assert.Equal(t, []bits.Location{bitB, bitA}, it.Bits)

	_, err = XlatEnumOCD(vals, FixedOrder(bitA))
	assert.ErrorIs(t, err, diff.ErrSizeMismatch)
	_, err = XlatEnumOCD(vals, FixedOrder(bitA, bitC))
	assert.ErrorIs(t, err, diff.ErrSizeMismatch)

	lowBitLateFrame := bits.Loc(0, 9, 0)
	drp := []Value{{Name: "A"}, {Name: "B", Diff: diff.Of(bitB)}, {Name: "C", Diff: diff.Of(lowBitLateFrame)}}
	it, err = XlatEnumOCD(drp, DrpOrder)
	require.NoError(t, err)
	assert.Equal(t, []bits.Location{lowBitLateFrame, bitB}, it.Bits)
}

func TestXlatEnum_Mux(t *testing.T) {
	t.Run("enable bit first", func(t *testing.T) {
		g0, g1, g2, en := bits.Loc(0, 0, 0), bits.Loc(0, 0, 1), bits.Loc(0, 0, 2), bits.Loc(0, 0, 3)
		vals := []Value{
			{Name: "NONE"},
			{Name: "S0", Diff: diff.Of(g0, en)},
			{Name: "S1", Diff: diff.Of(g1, en)},
			{Name: "S2", Diff: diff.Of(g2, en)},
		}
		it, err := XlatEnumOCD(vals, Mux)
		require.NoError(t, err)
		assert.Equal(t, []bits.Location{en, g0, g1, g2}, it.Bits)
	})

	t.Run("one-hot groups kept together", func(t *testing.T) {
		a0, a1, b0, b1 := bits.Loc(0, 0, 0), bits.Loc(0, 0, 1), bits.Loc(0, 1, 0), bits.Loc(0, 1, 1)
		vals := []Value{
			{Name: "NONE"},
			{Name: "S00", Diff: diff.Of(a0, b0)},
			{Name: "S01", Diff: diff.Of(a0, b1)},
			{Name: "S10", Diff: diff.Of(a1, b0)},
			{Name: "S11", Diff: diff.Of(a1, b1)},
		}

		byValue, err := XlatEnum(vals)
		require.NoError(t, err)
		assert.Equal(t, []bits.Location{a0, b0, b1, a1}, byValue.Bits)

		it, err := XlatEnumOCD(vals, Mux)
		require.NoError(t, err)
		assert.Equal(t, []bits.Location{a0, a1, b0, b1}, it.Bits)
		assert.Equal(t, "0110", it.Values["S10"].String())

		again, err := XlatEnumOCD(vals, Mux)
		require.NoError(t, err)
		assert.True(t, it.Equal(again))
	})
}

func TestParseOcdMode(t *testing.T) {
	for in, want := range map[string]OcdMode{"": ValueOrder, "value": ValueOrder, "BIT": BitOrder, "mux": Mux, "drp": DrpOrder} {
		got, err := ParseOcdMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want.String(), got.String())
	}
	_, err := ParseOcdMode("sideways")
	assert.ErrorIs(t, err, ErrUnknownOcdMode)
}

// =============================================================================
// XlatEnumInt
// =============================================================================

func TestXlatEnumInt(t *testing.T) {
	p0, p1, p2 := bits.Loc(2, 0, 0), bits.Loc(2, 0, 1), bits.Loc(2, 1, 0)

	t.Run("zero baseline", func(t *testing.T) {
		it, err := XlatEnumInt([]IntValue{
			{Value: 0},
			{Value: 3, Diff: diff.Of(p0, p1)},
			{Value: 1, Diff: diff.Of(p0)},
			{Value: 2, Diff: diff.Of(p1)},
			{Value: 4, Diff: diff.Of(p2)},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, it.Width)
		assert.Equal(t, []bits.Location{p0, p1, p2}, it.Bits)
		assert.Equal(t, bits.Vec{false, false, false}, it.Invert)
	})

	t.Run("non-zero baseline", func(t *testing.T) {
		it, err := XlatEnumInt([]IntValue{
			{Value: 5},
			{Value: 4, Diff: diff.Cleared(p0)},
			{Value: 7, Diff: diff.Of(p1)},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, it.Width)
		assert.Equal(t, []bits.Location{p0, p1}, it.Bits)
	})

	t.Run("wrong polarity", func(t *testing.T) {
		_, err := XlatEnumInt([]IntValue{{Value: 0}, {Value: 1, Diff: diff.Cleared(p0)}})
		assert.ErrorIs(t, err, diff.ErrPolarityConflict)
	})

	t.Run("unsolvable", func(t *testing.T) {
		_, err := XlatEnumInt([]IntValue{{Value: 0}, {Value: 3, Diff: diff.Of(p0, p1)}})
		assert.ErrorIs(t, err, ErrUnsolvable)
	})

	t.Run("residual", func(t *testing.T) {
		_, err := XlatEnumInt([]IntValue{{Value: 0, Diff: diff.Diff{}}, {Value: 1, Diff: diff.Of(p0)}, {Value: 0, Diff: diff.Of(p2)}})
		assert.Error(t, err)
	})
}

// =============================================================================
// Extraction helpers
// =============================================================================

func TestExtractCommon(t *testing.T) {
	ds := []diff.Diff{diff.Of(bitA, bitB), diff.Of(bitA, bitC)}
	common, err := ExtractCommon(ds)
	require.NoError(t, err)
	assert.True(t, common.Equal(diff.Of(bitA)))
	assert.True(t, ds[0].Equal(diff.Of(bitB)))
	assert.True(t, ds[1].Equal(diff.Of(bitC)))

	_, err = ExtractCommon([]diff.Diff{diff.Of(bitA), diff.Cleared(bitA)})
	assert.ErrorIs(t, err, diff.ErrPolarityConflict)

	empty, err := ExtractCommon(nil)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestExtractBitVecValue(t *testing.T) {
	vec := item.NewDenseBitVec([]bits.Location{bitA, bitB}, bits.Vec{false, true})

	got, err := ExtractBitVecValue(vec, bits.NewVec(2), diff.New(map[bits.Location]bool{bitA: true, bitB: false}))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Uint())

	_, err = ExtractBitVecValue(vec, bits.Vec{true, false}, diff.Of(bitA))
	assert.ErrorIs(t, err, diff.ErrPolarityConflict)

	_, err = ExtractBitVecValue(vec, bits.NewVec(2), diff.Of(bitC))
	assert.ErrorIs(t, err, diff.ErrNonEmptyResidual)

	_, err = ExtractBitVecValue(vec, bits.NewVec(3), diff.Diff{})
	assert.ErrorIs(t, err, diff.ErrSizeMismatch)
}

func TestExtractBitVecValuePart(t *testing.T) {
	vec := item.NewDenseBitVec([]bits.Location{bitA, bitB}, bits.Vec{false, true})

	d := diff.New(map[bits.Location]bool{bitA: true, bitC: true})
	got, err := ExtractBitVecValuePart(vec, bits.NewVec(2), &d)
	require.NoError(t, err)
	assert.Equal(t, "01", got.String())
	assert.True(t, d.Equal(diff.Of(bitC)), "foreign bits stay for later")

	d = diff.New(map[bits.Location]bool{bitA: true, bitC: true})
	_, err = ExtractBitVecValuePart(vec, bits.Vec{true, false}, &d)
	assert.ErrorIs(t, err, diff.ErrPolarityConflict)
	assert.Equal(t, 2, d.Len(), "diff untouched on error")

	_, err = ExtractBitVecValuePart(item.NewEnum(nil, nil), nil, &d)
	assert.ErrorIs(t, err, diff.ErrKindMismatch)
}

func TestConcatBitVec(t *testing.T) {
	lo := item.NewDenseBitVec([]bits.Location{bitA, bitB}, bits.Vec{false, true})
	hi := item.NewBitVec(3, []int{2}, []bits.Location{bitC}, bits.Vec{false})

	it, err := ConcatBitVec(lo, item.NewBool(bits.Loc(1, 0, 0), true), hi)
	require.NoError(t, err)
	assert.Equal(t, item.KindBitVec, it.Kind)
	assert.Equal(t, 6, it.Width)
	assert.Equal(t, []int{0, 1, 2, 5}, it.Pos)
	assert.Equal(t, []bits.Location{bitA, bitB, bits.Loc(1, 0, 0), bitC}, it.Bits)
	assert.Equal(t, bits.Vec{false, true, true, false}, it.Invert)

	_, err = ConcatBitVec()
	assert.ErrorIs(t, err, ErrNoValues)

	_, err = ConcatBitVec(lo, item.NewBool(bitA, false))
	assert.ErrorIs(t, err, ErrBitReused)

	_, err = ConcatBitVec(lo, item.NewEnum([]bits.Location{bitC}, nil))
	assert.ErrorIs(t, err, diff.ErrKindMismatch)
}

func TestSwapEnumBits(t *testing.T) {
	it := item.NewEnum([]bits.Location{bitA, bitB}, map[string]bits.Vec{"X": {true, false}})
	require.NoError(t, SwapEnumBits(&it, 0, 1))
	assert.Equal(t, []bits.Location{bitB, bitA}, it.Bits)
	assert.Equal(t, bits.Vec{false, true}, it.Values["X"])

	assert.ErrorIs(t, SwapEnumBits(&it, 0, 2), diff.ErrSizeMismatch)
	b := item.NewBool(bitA, false)
	assert.ErrorIs(t, SwapEnumBits(&b, 0, 0), diff.ErrKindMismatch)
}
