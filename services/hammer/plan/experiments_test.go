// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
	"github.com/AleutianAI/bitfuzz/services/hammer/collect"
	"github.com/AleutianAI/bitfuzz/services/hammer/diff"
)

func TestParseDiff(t *testing.T) {
	d, err := ParseDiff([]string{"+0:12:3", " -0:14:5 "})
	require.NoError(t, err)

	pol, ok := d.Get(bits.Loc(0, 12, 3))
	assert.True(t, ok)
	assert.True(t, pol)
	pol, ok = d.Get(bits.Loc(0, 14, 5))
	assert.True(t, ok)
	assert.False(t, pol)

	assert.Equal(t, []string{"+0:12:3", "-0:14:5"}, FormatDiff(d))

	empty, err := ParseDiff(nil)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestParseDiff_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
	}{
		{"no sign", []string{"0:1:2"}},
		{"bad location", []string{"+0:1"}},
		{"sign only", []string{"+"}},
		{"duplicate", []string{"+0:1:2", "-0:1:2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDiff(tt.entries)
			assert.ErrorIs(t, err, ErrInvalidExperiment)
		})
	}
}

func TestKeySpec_DiffKey(t *testing.T) {
	tests := []struct {
		name string
		spec KeySpec
		want collect.DiffKey
	}{
		{"value", KeySpec{Kind: KindValue, Tile: "BRAM", Bel: "BRAM", Attr: "INIT", Value: "1"},
			collect.AttrValue{Tile: "BRAM", Bel: "BRAM", Attr: "INIT", Value: "1"}},
		{"bit", KeySpec{Kind: KindBit, Tile: "BRAM", Attr: "DDEL", Bit: 3},
			collect.AttrBit{Tile: "BRAM", Attr: "DDEL", Bit: 3}},
		{"routing", KeySpec{Kind: KindRouting, Tile: "INT", Wire: "IMUX.0", Source: "OMUX.3"},
			collect.Routing{Tile: "INT", Wire: "IMUX.0", Source: "OMUX.3"}},
		{"inv", KeySpec{Kind: KindInv, Tile: "CLB", Bel: "SLICE0", Pin: "CLK", Inverted: true},
			collect.InputInv{Tile: "CLB", Bel: "SLICE0", Pin: "CLK", Inverted: true}},
		{"special", KeySpec{Kind: KindSpecial, Tile: "BRAM", Bel: "BRAM", Name: "PRESENT"},
			collect.Special{Tile: "BRAM", Bel: "BRAM", Name: "PRESENT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.DiffKey()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.spec, SpecOf(got))
		})
	}
}

func TestKeySpec_MissingFields(t *testing.T) {
	tests := []KeySpec{
		{Kind: KindValue, Tile: "BRAM", Attr: "INIT"},
		{Kind: KindRouting, Tile: "INT", Wire: "IMUX.0"},
		{Kind: KindInv, Tile: "CLB", Pin: "CLK"},
		{Kind: KindSpecial, Tile: "BRAM"},
		{Kind: "wire", Tile: "BRAM"},
	}
	for _, k := range tests {
		_, err := k.DiffKey()
		assert.ErrorIs(t, err, ErrInvalidExperiment, "%+v", k)
	}
}

func TestExperimentFile_Store(t *testing.T) {
	text := `
family: virtex2
device: xc2v40
experiments:
  - key: {kind: value, tile: BRAM, bel: BRAM, attr: INIT, value: "1"}
    bits: ["+0:11:0"]
  - key: {kind: value, tile: BRAM, bel: BRAM, attr: INIT, value: "1"}
    bits: ["+0:11:1"]
`
	ef, err := DecodeExperiments(strings.NewReader(text))
	require.NoError(t, err)

	s, err := ef.Store()
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	ds, err := s.Take(collect.AttrValue{Tile: "BRAM", Bel: "BRAM", Attr: "INIT", Value: "1"})
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.True(t, ds[0].Equal(diff.Of(bits.Loc(0, 11, 0))))
	assert.True(t, ds[1].Equal(diff.Of(bits.Loc(0, 11, 1))))
}

func TestExperimentFile_Validate(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"missing device", "family: virtex2\nexperiments: []\n"},
		{"bad family", "family: Virtex 2\ndevice: xc2v40\n"},
		{"unknown kind", "family: virtex2\ndevice: xc2v40\nexperiments:\n  - key: {kind: wire, tile: INT}\n    bits: []\n"},
		{"bad bit", "family: virtex2\ndevice: xc2v40\nexperiments:\n  - key: {kind: special, tile: BRAM, name: PRESENT}\n    bits: [\"0:1:2\"]\n"},
		{"unknown field", "family: virtex2\ndevice: xc2v40\nowner: me\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeExperiments(strings.NewReader(tt.text))
			assert.ErrorIs(t, err, ErrInvalidExperiment)
		})
	}
}

func TestExperimentFile_AddAndLoad(t *testing.T) {
	ef := &ExperimentFile{Family: "virtex2", Device: "xc2v40"}
	ef.Add(collect.Routing{Tile: "INT", Wire: "IMUX.0", Source: "A"}, diff.Of(bits.Loc(0, 20, 0)))
	ef.Add(collect.InputInv{Tile: "CLB", Bel: "SLICE0", Pin: "CLK"}, diff.Diff{})
	require.NoError(t, ef.Validate())

	path := filepath.Join(t.TempDir(), "xc2v40.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
family: virtex2
device: xc2v40
experiments:
  - key: {kind: routing, tile: INT, wire: IMUX.0, source: A}
    bits: ["+0:20:0"]
  - key: {kind: inv, tile: CLB, bel: SLICE0, pin: CLK}
    bits: []
`), 0o644))

	loaded, err := LoadExperiments(path)
	require.NoError(t, err)
	assert.Equal(t, ef.Experiments, loaded.Experiments)
}
