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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
	"github.com/AleutianAI/bitfuzz/services/hammer/item"
)

var (
	initBit  = item.NewBool(bits.Loc(0, 12, 3), false)
	otherBit = item.NewBool(bits.Loc(0, 12, 4), false)
)

func TestSymbols(t *testing.T) {
	s := NewSymbols()
	a := s.Intern("BRAM")
	b := s.Intern("CLB")
	assert.NotEqual(t, Sym(0), a)
	assert.Equal(t, a, s.Intern("BRAM"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, "CLB", s.Name(b))
	assert.Equal(t, "", s.Name(Sym(99)))
	assert.Equal(t, 2, s.Len())

	_, ok := s.Lookup("IOB")
	assert.False(t, ok)
}

func TestInsert_Idempotent(t *testing.T) {
	db := New()
	require.NoError(t, db.Insert("BRAM", "BRAM", "INIT", initBit))
	require.NoError(t, db.Insert("BRAM", "BRAM", "INIT", initBit.Clone()))
	assert.Equal(t, 1, db.Len())

	got, ok := db.Item("BRAM", "BRAM", "INIT")
	require.True(t, ok)
	assert.True(t, got.Equal(initBit))
}

func TestInsert_Conflict(t *testing.T) {
	db := New()
	require.NoError(t, db.Insert("BRAM", "BRAM", "INIT", initBit))

	err := db.Insert("BRAM", "BRAM", "INIT", otherBit)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInconsistentReinsertion)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "BRAM:BRAM:INIT", conflict.Key)

	// The committed value is kept.
	got, _ := db.Item("BRAM", "BRAM", "INIT")
	assert.True(t, got.Equal(initBit))
}

func TestInsert_EmptyName(t *testing.T) {
	db := New()
	assert.ErrorIs(t, db.Insert("", "BRAM", "INIT", initBit), ErrEmptyName)
	assert.ErrorIs(t, db.Insert("BRAM", "BRAM", "", initBit), ErrEmptyName)
	assert.NoError(t, db.Insert("INT", "", "MUX.IMUX0", initBit))
}

func TestItem_ReturnsCopy(t *testing.T) {
	db := New()
	require.NoError(t, db.Insert("BRAM", "BRAM", "INIT", initBit))

	got, _ := db.Item("BRAM", "BRAM", "INIT")
	got.Bits[0] = bits.Loc(9, 9, 9)

	again, _ := db.Item("BRAM", "BRAM", "INIT")
	assert.True(t, again.Equal(initBit))

	_, ok := db.Item("BRAM", "BRAM", "MISSING")
	assert.False(t, ok)
}

func TestEntries_Sorted(t *testing.T) {
	db := New()
	require.NoError(t, db.Insert("CLB", "SLICE0", "FFX", initBit))
	require.NoError(t, db.Insert("BRAM", "BRAM", "WRITE_MODE", otherBit))
	require.NoError(t, db.Insert("BRAM", "BRAM", "INIT", initBit))

	var names []string
	for _, e := range db.Entries() {
		names = append(names, e.Tile+":"+e.Bel+":"+e.Attr)
	}
	assert.Equal(t, []string{"BRAM:BRAM:INIT", "BRAM:BRAM:WRITE_MODE", "CLB:SLICE0:FFX"}, names)
}

func TestDeviceData(t *testing.T) {
	db := New()
	require.NoError(t, db.InsertDeviceData("xc2v40", "BRAM:DDEL_A_DEFAULT", bits.Vec{true, false}))
	require.NoError(t, db.InsertDeviceData("xc2v40", "BRAM:DDEL_A_DEFAULT", bits.Vec{true, false}))

	err := db.InsertDeviceData("xc2v40", "BRAM:DDEL_A_DEFAULT", bits.Vec{false, false})
	assert.ErrorIs(t, err, ErrInconsistentReinsertion)

	data := db.DeviceData("xc2v40")
	assert.Equal(t, bits.Vec{true, false}, data["BRAM:DDEL_A_DEFAULT"])
	assert.Empty(t, db.DeviceData("xc2v80"))
	assert.Equal(t, []string{"xc2v40"}, db.Devices())
}

func TestMerge(t *testing.T) {
	a, b := New(), New()
	require.NoError(t, a.Insert("BRAM", "BRAM", "INIT", initBit))
	require.NoError(t, b.Insert("BRAM", "BRAM", "INIT", initBit))
	require.NoError(t, b.Insert("CLB", "SLICE0", "FFX", otherBit))
	require.NoError(t, b.InsertDeviceData("xc2v40", "X", bits.Vec{true}))

	require.NoError(t, a.Merge(b))
	assert.Equal(t, 2, a.Len())
	assert.Len(t, a.DeviceData("xc2v40"), 1)

	c := New()
	require.NoError(t, c.Insert("BRAM", "BRAM", "INIT", otherBit))
	require.NoError(t, c.Insert("IOB", "IOB0", "PULL", otherBit))
	err := a.Merge(c)
	assert.ErrorIs(t, err, ErrInconsistentReinsertion)
	// Non-conflicting entries still land.
	_, ok := a.Item("IOB", "IOB0", "PULL")
	assert.True(t, ok)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	db := New()
	require.NoError(t, db.Insert("BRAM", "BRAM", "INIT", initBit))
	require.NoError(t, db.InsertDeviceData("xc2v40", "X", bits.Vec{true}))

	snap := db.Snapshot("virtex2")
	assert.Equal(t, "virtex2", snap.Family)

	back, err := FromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, db.Entries(), back.Entries())
	assert.Equal(t, db.DeviceData("xc2v40"), back.DeviceData("xc2v40"))
}

func TestConcurrentInsert(t *testing.T) {
	db := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, db.Insert("BRAM", "BRAM", "INIT", initBit))
			db.Entries()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, db.Len())
}
