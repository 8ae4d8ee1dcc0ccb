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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/bitfuzz/pkg/validation"
	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
	"github.com/AleutianAI/bitfuzz/services/hammer/collect"
	"github.com/AleutianAI/bitfuzz/services/hammer/diff"
)

// =============================================================================
// Key kinds
// =============================================================================

// Experiment key kinds as written in experiment files.
const (
	KindValue   = "value"
	KindBit     = "bit"
	KindRouting = "routing"
	KindInv     = "inv"
	KindSpecial = "special"
)

// =============================================================================
// Types
// =============================================================================

// KeySpec is the file form of a collect.DiffKey.
//
// Which fields are required depends on Kind:
//
//	value:   tile, attr, value (bel optional)
//	bit:     tile, attr, bit (bel optional)
//	routing: tile, wire, source
//	inv:     tile, bel, pin, inverted
//	special: tile, name (bel optional)
type KeySpec struct {
	Kind     string `yaml:"kind" json:"kind" validate:"required,oneof=value bit routing inv special"`
	Tile     string `yaml:"tile" json:"tile" validate:"required,ident"`
	Bel      string `yaml:"bel,omitempty" json:"bel,omitempty" validate:"omitempty,ident"`
	Attr     string `yaml:"attr,omitempty" json:"attr,omitempty" validate:"omitempty,ident"`
	Value    string `yaml:"value,omitempty" json:"value,omitempty" validate:"omitempty,ident"`
	Bit      int    `yaml:"bit,omitempty" json:"bit,omitempty" validate:"gte=0"`
	Wire     string `yaml:"wire,omitempty" json:"wire,omitempty" validate:"omitempty,ident"`
	Source   string `yaml:"source,omitempty" json:"source,omitempty" validate:"omitempty,ident"`
	Pin      string `yaml:"pin,omitempty" json:"pin,omitempty" validate:"omitempty,ident"`
	Inverted bool   `yaml:"inverted,omitempty" json:"inverted,omitempty"`
	Name     string `yaml:"name,omitempty" json:"name,omitempty" validate:"omitempty,ident"`
}

// Experiment is one raw result: the bits that changed when the keyed
// setting was applied to the baseline design.
type Experiment struct {
	Key KeySpec `yaml:"key" json:"key"`

	// Bits lists "+T:F:B" for bits that became set and "-T:F:B" for bits
	// that became cleared. An empty list is an experiment with no effect.
	Bits []string `yaml:"bits" json:"bits"`
}

// ExperimentFile holds every experiment of one family on one device.
type ExperimentFile struct {
	Family      string       `yaml:"family" json:"family" validate:"required,family"`
	Device      string       `yaml:"device" json:"device" validate:"required,family"`
	Experiments []Experiment `yaml:"experiments" json:"experiments" validate:"dive"`
}

// =============================================================================
// Keys
// =============================================================================

// DiffKey converts k into its collect.DiffKey.
func (k KeySpec) DiffKey() (collect.DiffKey, error) {
	need := func(fields ...string) error {
		var missing []string
		for i := 0; i+1 < len(fields); i += 2 {
			if fields[i+1] == "" {
				missing = append(missing, fields[i])
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s key needs %s", ErrInvalidExperiment, k.Kind, strings.Join(missing, ", "))
		}
		return nil
	}

	switch k.Kind {
	case KindValue:
		if err := need("tile", k.Tile, "attr", k.Attr, "value", k.Value); err != nil {
			return nil, err
		}
		return collect.AttrValue{Tile: k.Tile, Bel: k.Bel, Attr: k.Attr, Value: k.Value}, nil
	case KindBit:
		if err := need("tile", k.Tile, "attr", k.Attr); err != nil {
			return nil, err
		}
		if k.Bit < 0 {
			return nil, fmt.Errorf("%w: negative bit %d", ErrInvalidExperiment, k.Bit)
		}
		return collect.AttrBit{Tile: k.Tile, Bel: k.Bel, Attr: k.Attr, Bit: k.Bit}, nil
	case KindRouting:
		if err := need("tile", k.Tile, "wire", k.Wire, "source", k.Source); err != nil {
			return nil, err
		}
		return collect.Routing{Tile: k.Tile, Wire: k.Wire, Source: k.Source}, nil
	case KindInv:
		if err := need("tile", k.Tile, "bel", k.Bel, "pin", k.Pin); err != nil {
			return nil, err
		}
		return collect.InputInv{Tile: k.Tile, Bel: k.Bel, Pin: k.Pin, Inverted: k.Inverted}, nil
	case KindSpecial:
		if err := need("tile", k.Tile, "name", k.Name); err != nil {
			return nil, err
		}
		return collect.Special{Tile: k.Tile, Bel: k.Bel, Name: k.Name}, nil
	default:
		return nil, fmt.Errorf("%w: unknown key kind %q", ErrInvalidExperiment, k.Kind)
	}
}

// SpecOf returns the file form of k.
func SpecOf(k collect.DiffKey) KeySpec {
	switch k := k.(type) {
	case collect.AttrValue:
		return KeySpec{Kind: KindValue, Tile: k.Tile, Bel: k.Bel, Attr: k.Attr, Value: k.Value}
	case collect.AttrBit:
		return KeySpec{Kind: KindBit, Tile: k.Tile, Bel: k.Bel, Attr: k.Attr, Bit: k.Bit}
	case collect.Routing:
		return KeySpec{Kind: KindRouting, Tile: k.Tile, Wire: k.Wire, Source: k.Source}
	case collect.InputInv:
		return KeySpec{Kind: KindInv, Tile: k.Tile, Bel: k.Bel, Pin: k.Pin, Inverted: k.Inverted}
	case collect.Special:
		return KeySpec{Kind: KindSpecial, Tile: k.Tile, Bel: k.Bel, Name: k.Name}
	}
	return KeySpec{}
}

// =============================================================================
// Bits
// =============================================================================

// ParseDiff parses signed locations ("+T:F:B" / "-T:F:B") into a Diff.
// A location listed twice is an error.
func ParseDiff(entries []string) (diff.Diff, error) {
	var d diff.Diff
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if len(e) < 2 || (e[0] != '+' && e[0] != '-') {
			return diff.Diff{}, fmt.Errorf("%w: bit %q: want +T:F:B or -T:F:B", ErrInvalidExperiment, e)
		}
		loc, err := bits.ParseLocation(e[1:])
		if err != nil {
			return diff.Diff{}, fmt.Errorf("%w: %v", ErrInvalidExperiment, err)
		}
		if _, dup := d.Get(loc); dup {
			return diff.Diff{}, fmt.Errorf("%w: bit %s listed twice", ErrInvalidExperiment, loc)
		}
		d.Set(loc, e[0] == '+')
	}
	return d, nil
}

// FormatDiff is the inverse of ParseDiff, in location order.
func FormatDiff(d diff.Diff) []string {
	out := make([]string, 0, d.Len())
	d.Each(func(loc bits.Location, pol bool) {
		sign := "-"
		if pol {
			sign = "+"
		}
		out = append(out, sign+loc.String())
	})
	return out
}

// =============================================================================
// Files
// =============================================================================

// LoadExperiments reads and validates an experiment file.
func LoadExperiments(path string) (*ExperimentFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open experiments: %w", err)
	}
	defer f.Close()

	ef, err := DecodeExperiments(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ef, nil
}

// DecodeExperiments reads and validates an experiment file from r.
// Unknown fields are rejected.
func DecodeExperiments(r io.Reader) (*ExperimentFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var ef ExperimentFile
	if err := dec.Decode(&ef); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidExperiment, err)
	}
	if err := ef.Validate(); err != nil {
		return nil, err
	}
	return &ef, nil
}

// Validate checks the file's tags, every key and every bit list.
func (ef *ExperimentFile) Validate() error {
	if err := validation.Struct(ef); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExperiment, err)
	}
	for i, e := range ef.Experiments {
		if _, err := e.Key.DiffKey(); err != nil {
			return fmt.Errorf("experiment %d: %w", i, err)
		}
		if _, err := ParseDiff(e.Bits); err != nil {
			return fmt.Errorf("experiment %d: %w", i, err)
		}
	}
	return nil
}

// Store loads every experiment into a fresh collect.Store. Experiments
// sharing a key are kept in file order.
func (ef *ExperimentFile) Store() (*collect.Store, error) {
	s := collect.NewStore()
	for i, e := range ef.Experiments {
		k, err := e.Key.DiffKey()
		if err != nil {
			return nil, fmt.Errorf("experiment %d: %w", i, err)
		}
		d, err := ParseDiff(e.Bits)
		if err != nil {
			return nil, fmt.Errorf("experiment %d: %w", i, err)
		}
		if err := s.Add(k, d); err != nil {
			return nil, fmt.Errorf("experiment %d: %w", i, err)
		}
	}
	return s, nil
}

// Add appends an experiment for k with diff d.
func (ef *ExperimentFile) Add(k collect.DiffKey, d diff.Diff) {
	ef.Experiments = append(ef.Experiments, Experiment{Key: SpecOf(k), Bits: FormatDiff(d)})
}
