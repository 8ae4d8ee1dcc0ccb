// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan loads experiment files and decode plans and runs a plan
// against a Collector.
//
// An experiment file is the raw DiffKey -> Diff map of one family. A decode
// plan is that family's decode routine: an ordered list of steps, each
// reading experiments and committing one item to the TileDb. Order matters
// because composition steps subtract items committed by earlier steps.
package plan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/bitfuzz/pkg/validation"
	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
	"github.com/AleutianAI/bitfuzz/services/hammer/xlat"
)

// Op names a decode step.
type Op string

// Decode step operations.
const (
	OpEnum       Op = "enum"
	OpBool       Op = "bool"
	OpBitVec     Op = "bitvec"
	OpBit        Op = "bit"
	OpBitWide    Op = "bit_wide"
	OpEnumInt    Op = "enum_int"
	OpMux        Op = "mux"
	OpInv        Op = "inv"
	OpCompose    Op = "compose"
	OpDeviceData Op = "device_data"
	OpEmpty      Op = "empty"
	OpConcat     Op = "concat"
	OpSplit      Op = "split"
)

// Apply kinds for compose steps.
const (
	ApplyBit    = "bit"
	ApplyBitVec = "bitvec"
	ApplyEnum   = "enum"
)

// =============================================================================
// Types
// =============================================================================

// Plan is the decode routine of one family.
type Plan struct {
	Family string `yaml:"family" json:"family" validate:"required,family"`
	Steps  []Step `yaml:"steps" json:"steps" validate:"required,min=1"`
}

// Ref names a committed item. Tile defaults to the step's tile; Bel
// defaults to the step's bel when omitted, and an explicit empty bel
// addresses tile-wide items such as routing muxes.
type Ref struct {
	Tile string  `yaml:"tile,omitempty" json:"tile,omitempty" validate:"omitempty,ident"`
	Bel  *string `yaml:"bel,omitempty" json:"bel,omitempty"`
	Attr string  `yaml:"attr" json:"attr" validate:"required,ident"`
}

// Apply subtracts a committed item moving between two values.
type Apply struct {
	Ref  `yaml:",inline"`
	Kind string `yaml:"kind" json:"kind" validate:"required,oneof=bit bitvec enum"`
	From string `yaml:"from" json:"from" validate:"required"`
	To   string `yaml:"to" json:"to" validate:"required"`
}

// SplitTarget receives the bits of a split step that fall in the listed
// tile indices, renumbered, as an experiment of Tile.
type SplitTarget struct {
	Tile  string            `yaml:"tile" json:"tile" validate:"required,ident"`
	Tiles map[uint16]uint16 `yaml:"tiles" json:"tiles" validate:"required,min=1"`
}

// Step is one decode operation. Which fields apply depends on Op; see
// Validate for the per-op requirements.
type Step struct {
	Op   Op     `yaml:"op" json:"op" validate:"required,oneof=enum bool bitvec bit bit_wide enum_int mux inv compose device_data empty concat split"`
	Tile string `yaml:"tile" json:"tile" validate:"required,ident"`
	Bel  string `yaml:"bel,omitempty" json:"bel,omitempty" validate:"omitempty,ident"`
	Attr string `yaml:"attr,omitempty" json:"attr,omitempty" validate:"omitempty,ident"`

	// Value selects one AttrValue experiment (bit, bit_wide, compose,
	// device_data, empty).
	Value string `yaml:"value,omitempty" json:"value,omitempty" validate:"omitempty,ident"`

	// Values lists enum values, or the false/true pair of a bool.
	Values  []string `yaml:"values,omitempty" json:"values,omitempty" validate:"omitempty,dive,ident"`
	Default string   `yaml:"default,omitempty" json:"default,omitempty" validate:"omitempty,ident"`

	// OCD selects the bit ordering of enum and mux fields. Order, when
	// set, fixes the field order explicitly instead; OrderFrom copies the
	// bit order of a committed sibling.
	OCD       string   `yaml:"ocd,omitempty" json:"ocd,omitempty" validate:"omitempty,oneof=value bit mux drp"`
	Order     []string `yaml:"order,omitempty" json:"order,omitempty"`
	OrderFrom *Ref     `yaml:"order_from,omitempty" json:"order_from,omitempty"`

	// Aliased lets distinct enum or mux values share one pattern.
	Aliased bool `yaml:"aliased,omitempty" json:"aliased,omitempty"`

	// Common names the attribute receiving the bits every tested value of
	// an enum or mux sets. They are left out of the enum itself.
	Common string `yaml:"common,omitempty" json:"common,omitempty" validate:"omitempty,ident"`

	// Peek reads the experiment of a compose or empty step without
	// consuming it, so a later step can derive another attribute from it.
	Peek bool `yaml:"peek,omitempty" json:"peek,omitempty"`

	// Swap exchanges two field bits of an enum before it is committed.
	Swap []int `yaml:"swap,omitempty" json:"swap,omitempty" validate:"omitempty,len=2,dive,gte=0"`

	// AllowConstant commits items that no experiment affected instead of
	// failing with collect.ErrAllEmpty.
	AllowConstant bool `yaml:"allow_constant,omitempty" json:"allow_constant,omitempty"`

	Width int    `yaml:"width,omitempty" json:"width,omitempty" validate:"gte=0,lte=4096"`
	Min   uint32 `yaml:"min,omitempty" json:"min,omitempty"`
	Max   uint32 `yaml:"max,omitempty" json:"max,omitempty"`
	Delta uint32 `yaml:"delta,omitempty" json:"delta,omitempty"`

	Wire    string   `yaml:"wire,omitempty" json:"wire,omitempty" validate:"omitempty,ident"`
	Sources []string `yaml:"sources,omitempty" json:"sources,omitempty" validate:"omitempty,dive,ident"`
	Pin     string   `yaml:"pin,omitempty" json:"pin,omitempty" validate:"omitempty,ident"`

	Discard []Ref   `yaml:"discard,omitempty" json:"discard,omitempty" validate:"omitempty,dive"`
	Apply   []Apply `yaml:"apply,omitempty" json:"apply,omitempty" validate:"omitempty,dive"`

	// Parts lists the committed Bool or BitVec items a concat step joins,
	// least significant first.
	Parts []Ref `yaml:"parts,omitempty" json:"parts,omitempty" validate:"omitempty,dive"`

	// Targets route the bits of a split step's experiment by tile index.
	// DropUnmapped discards bits no target claims instead of failing.
	Targets      []SplitTarget `yaml:"targets,omitempty" json:"targets,omitempty" validate:"omitempty,dive"`
	DropUnmapped bool          `yaml:"drop_unmapped,omitempty" json:"drop_unmapped,omitempty"`

	// Rest names the attribute that receives the bits a compose step could
	// not attribute. Without it the residual must be empty.
	Rest string `yaml:"rest,omitempty" json:"rest,omitempty" validate:"omitempty,ident"`

	// Name is the Special experiment of compose/empty steps, the device
	// data name of device_data steps, and the device data name receiving
	// the default polarity of bool steps.
	Name string `yaml:"name,omitempty" json:"name,omitempty" validate:"omitempty,ident"`

	// Base is the value the device_data item held in the baseline design,
	// most significant bit first.
	Base string `yaml:"base,omitempty" json:"base,omitempty"`
}

// =============================================================================
// Loading
// =============================================================================

// LoadPlan reads and validates a decode plan.
func LoadPlan(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()

	p, err := DecodePlan(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// DecodePlan reads and validates a decode plan from r. Unknown fields are
// rejected.
func DecodePlan(r io.Reader) (*Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidPlan, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks the plan's tags and every step's per-op requirements.
//
// # Outputs
//
//   - error: wraps ErrInvalidPlan; step failures are *StepError.
func (p *Plan) Validate() error {
	if err := validation.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		if err := s.Validate(); err != nil {
			return &StepError{Index: i, Op: s.Op, Err: err}
		}
	}
	return nil
}

// CheckExperiments fails when ef belongs to a different family.
func (p *Plan) CheckExperiments(ef *ExperimentFile) error {
	if p.Family != ef.Family {
		return fmt.Errorf("%w: plan %q, experiments %q", ErrFamilyMismatch, p.Family, ef.Family)
	}
	return nil
}

// Validate checks one step.
func (s *Step) Validate() error {
	if err := validation.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	refs := append(append([]Ref(nil), s.Discard...), s.Parts...)
	if s.OrderFrom != nil {
		refs = append(refs, *s.OrderFrom)
	}
	for _, r := range refs {
		if err := r.validateBel(); err != nil {
			return err
		}
	}
	for _, a := range s.Apply {
		if err := a.validateBel(); err != nil {
			return err
		}
		if err := a.validateValues(); err != nil {
			return err
		}
	}
	if _, err := s.ocdMode(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := s.validateOptions(); err != nil {
		return err
	}

	switch s.Op {
	case OpEnum:
		return s.require("attr", s.Attr, "values", len(s.Values) > 0)
	case OpBool:
		return s.require("attr", s.Attr, "two values", len(s.Values) == 2)
	case OpBitVec:
		return s.require("attr", s.Attr, "width", s.Width > 0)
	case OpBit, OpBitWide:
		return s.require("attr", s.Attr, "value", s.Value != "")
	case OpEnumInt:
		return s.require("attr", s.Attr, "max > min", s.Max > s.Min)
	case OpMux:
		return s.require("wire", s.Wire, "sources", len(s.Sources) > 0)
	case OpInv:
		return s.require("bel", s.Bel, "pin", s.Pin != "")
	case OpCompose, OpEmpty, OpSplit:
		if err := s.requireExperiment(); err != nil {
			return err
		}
		if s.Op == OpSplit && len(s.Targets) == 0 {
			return fmt.Errorf("%w: %s needs targets", ErrInvalidPlan, s.Op)
		}
	case OpConcat:
		return s.require("attr", s.Attr, "parts", len(s.Parts) > 0)
	case OpDeviceData:
		if err := s.require("attr", s.Attr, "value", s.Value != ""); err != nil {
			return err
		}
		if s.Name == "" {
			return fmt.Errorf("%w: %s needs name", ErrInvalidPlan, s.Op)
		}
		base, err := bits.ParseVec(s.Base)
		if err != nil || len(base) == 0 {
			return fmt.Errorf("%w: %s needs a binary base", ErrInvalidPlan, s.Op)
		}
	}
	return nil
}

// validateOptions checks that the op-specific switches are only set where
// they mean something.
func (s *Step) validateOptions() error {
	ordered := 0
	for _, set := range []bool{s.OCD != "", len(s.Order) > 0, s.OrderFrom != nil} {
		if set {
			ordered++
		}
	}
	if ordered > 1 {
		return fmt.Errorf("%w: ocd, order and order_from are exclusive", ErrInvalidPlan)
	}

	enumLike := s.Op == OpEnum || s.Op == OpMux
	switch {
	case s.Aliased && !enumLike:
		return fmt.Errorf("%w: aliased applies to enum and mux only", ErrInvalidPlan)
	case s.Common != "" && !enumLike:
		return fmt.Errorf("%w: common applies to enum and mux only", ErrInvalidPlan)
	case s.Common != "" && s.Op == OpEnum && s.Default == "":
		return fmt.Errorf("%w: common needs a default value", ErrInvalidPlan)
	case s.Peek && s.Op != OpCompose && s.Op != OpEmpty:
		return fmt.Errorf("%w: peek applies to compose and empty only", ErrInvalidPlan)
	case len(s.Parts) > 0 && s.Op != OpConcat:
		return fmt.Errorf("%w: parts applies to concat only", ErrInvalidPlan)
	case len(s.Targets) > 0 && s.Op != OpSplit:
		return fmt.Errorf("%w: targets applies to split only", ErrInvalidPlan)
	}

	seen := make(map[uint16]bool)
	for _, t := range s.Targets {
		for src := range t.Tiles {
			if seen[src] {
				return fmt.Errorf("%w: tile %d split twice", ErrInvalidPlan, src)
			}
			seen[src] = true
		}
	}
	return nil
}

func (s *Step) require(name, val string, what string, ok bool) error {
	if val == "" {
		return fmt.Errorf("%w: %s needs %s", ErrInvalidPlan, s.Op, name)
	}
	if !ok {
		return fmt.Errorf("%w: %s needs %s", ErrInvalidPlan, s.Op, what)
	}
	return nil
}

// requireExperiment checks that the step names exactly one experiment:
// attr and value for an AttrValue key, or name for a Special key.
func (s *Step) requireExperiment() error {
	switch {
	case s.Value != "" && s.Name != "":
		return fmt.Errorf("%w: %s takes value or name, not both", ErrInvalidPlan, s.Op)
	case s.Value != "":
		if s.Attr == "" {
			return fmt.Errorf("%w: %s needs attr", ErrInvalidPlan, s.Op)
		}
	case s.Name == "":
		return fmt.Errorf("%w: %s needs value or name", ErrInvalidPlan, s.Op)
	}
	return nil
}

func (r Ref) validateBel() error {
	if r.Bel == nil || *r.Bel == "" {
		return nil
	}
	if err := validation.ValidateName("bel", *r.Bel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return nil
}

func (a Apply) validateValues() error {
	for _, v := range []string{a.From, a.To} {
		var err error
		switch a.Kind {
		case ApplyBit:
			_, err = strconv.ParseBool(v)
		case ApplyBitVec:
			_, err = strconv.ParseUint(v, 0, 64)
		}
		if err != nil {
			return fmt.Errorf("%w: apply %s %q: %v", ErrInvalidPlan, a.Kind, v, err)
		}
	}
	return nil
}

// ocdMode returns the bit ordering the step asks for. OrderFrom needs the
// database and is resolved by the executor.
func (s *Step) ocdMode() (xlat.OcdMode, error) {
	if len(s.Order) == 0 {
		return xlat.ParseOcdMode(s.OCD)
	}
	locs := make([]bits.Location, len(s.Order))
	for i, o := range s.Order {
		loc, err := bits.ParseLocation(o)
		if err != nil {
			return xlat.OcdMode{}, err
		}
		locs[i] = loc
	}
	return xlat.FixedOrder(locs...), nil
}

// resolve fills a reference's defaults from the step.
func (s *Step) resolve(r Ref) (tile, bel string) {
	tile, bel = r.Tile, s.Bel
	if tile == "" {
		tile = s.Tile
	}
	if r.Bel != nil {
		bel = *r.Bel
	}
	return tile, bel
}
