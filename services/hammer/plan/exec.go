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
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
	"github.com/AleutianAI/bitfuzz/services/hammer/collect"
	"github.com/AleutianAI/bitfuzz/services/hammer/diff"
	"github.com/AleutianAI/bitfuzz/services/hammer/item"
	"github.com/AleutianAI/bitfuzz/services/hammer/xlat"
)

// Execute runs every step of p against c in order.
//
// # Description
//
// Each step reads its experiments from the collector's store, translates
// them and commits the result. The first failing step stops the pass;
// later steps may depend on its item. The context is checked between
// steps only.
//
// # Inputs
//
//   - ctx: Cancels the pass between steps.
//   - p: A validated plan.
//   - c: The family's collector.
//   - logger: Step progress at debug level. nil uses slog.Default().
//
// # Outputs
//
//   - error: *StepError wrapping the collector's *collect.DecodeError, or
//     the context error.
func Execute(ctx context.Context, p *Plan, c *collect.Collector, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	x := &executor{c: c}
	for i := range p.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := &p.Steps[i]
		if err := x.run(s); err != nil {
			return &StepError{Index: i, Op: s.Op, Err: err}
		}
		logger.Debug("step done", "family", p.Family, "step", i, "op", string(s.Op), "tile", s.Tile, "attr", s.Attr)
	}
	return nil
}

type executor struct {
	c *collect.Collector
}

func (x *executor) run(s *Step) error {
	switch s.Op {
	case OpEnum:
		return x.enum(s)
	case OpBool:
		return x.boolean(s)
	case OpBitVec:
		it, err := x.c.ExtractBitVec(s.Tile, s.Bel, s.Attr, s.Width)
		return x.commit(s, s.Bel, s.Attr, it, err)
	case OpBit:
		it, err := x.c.ExtractBit(s.Tile, s.Bel, s.Attr, s.Value)
		return x.commit(s, s.Bel, s.Attr, it, err)
	case OpBitWide:
		it, err := x.c.ExtractBitWide(s.Tile, s.Bel, s.Attr, s.Value)
		return x.commit(s, s.Bel, s.Attr, it, err)
	case OpEnumInt:
		it, err := x.c.ExtractEnumInt(s.Tile, s.Bel, s.Attr, s.Min, s.Max, s.Delta)
		return x.commit(s, s.Bel, s.Attr, it, err)
	case OpMux:
		opts, err := x.enumOptions(s)
		if err != nil {
			return err
		}
		it, common, err := x.c.ExtractMuxWith(s.Tile, s.Wire, s.Sources, opts)
		if err := x.commit(s, "", collect.MuxAttr(s.Wire), it, err); err != nil {
			return err
		}
		return x.commitCommon(s, "", common)
	case OpInv:
		it, err := x.c.ExtractInv(s.Tile, s.Bel, s.Pin)
		return x.commit(s, s.Bel, collect.InvAttr(s.Pin), it, err)
	case OpCompose:
		return x.compose(s)
	case OpDeviceData:
		return x.deviceData(s)
	case OpEmpty:
		d, err := x.take(s)
		if err != nil {
			return err
		}
		return x.residual(s, d)
	case OpConcat:
		return x.concat(s)
	case OpSplit:
		return x.split(s)
	}
	return fmt.Errorf("%w: unknown op %q", ErrInvalidPlan, s.Op)
}

// commit inserts it unless extraction failed or, without AllowConstant,
// no experiment touched it.
func (x *executor) commit(s *Step, bel, attr string, it item.TileItem, err error) error {
	if err != nil {
		return err
	}
	if it.IsConstant() && !s.AllowConstant {
		return &collect.DecodeError{Tile: s.Tile, Bel: bel, Attr: attr, Err: collect.ErrAllEmpty}
	}
	return x.c.Insert(s.Tile, bel, attr, it)
}

// commitCommon inserts the shared bits split off an enum or mux.
func (x *executor) commitCommon(s *Step, bel string, common item.TileItem) error {
	if s.Common == "" {
		return nil
	}
	return x.c.Insert(s.Tile, bel, s.Common, common)
}

// mode resolves the step's bit ordering, including OrderFrom.
func (x *executor) mode(s *Step) (xlat.OcdMode, error) {
	if s.OrderFrom == nil {
		return s.ocdMode()
	}
	tile, bel := s.resolve(*s.OrderFrom)
	sib, err := x.c.Item(tile, bel, s.OrderFrom.Attr)
	if err != nil {
		return xlat.OcdMode{}, err
	}
	return xlat.FixedOrder(sib.Bits...), nil
}

func (x *executor) enumOptions(s *Step) (collect.EnumOptions, error) {
	mode, err := x.mode(s)
	if err != nil {
		return collect.EnumOptions{}, err
	}
	return collect.EnumOptions{
		Default: s.Default,
		Mode:    mode,
		Aliased: s.Aliased,
		Common:  s.Common != "",
	}, nil
}

func (x *executor) enum(s *Step) error {
	opts, err := x.enumOptions(s)
	if err != nil {
		return err
	}
	it, common, err := x.c.ExtractEnumWith(s.Tile, s.Bel, s.Attr, s.Values, opts)
	if err != nil {
		return err
	}
	if len(s.Swap) == 2 {
		if err := xlat.SwapEnumBits(&it, s.Swap[0], s.Swap[1]); err != nil {
			return &collect.DecodeError{Tile: s.Tile, Bel: s.Bel, Attr: s.Attr, Err: err}
		}
	}
	if err := x.commit(s, s.Bel, s.Attr, it, nil); err != nil {
		return err
	}
	return x.commitCommon(s, s.Bel, common)
}

func (x *executor) boolean(s *Step) error {
	if s.Name == "" {
		it, err := x.c.ExtractBool(s.Tile, s.Bel, s.Attr, s.Values[0], s.Values[1])
		return x.commit(s, s.Bel, s.Attr, it, err)
	}
	it, def, err := x.c.ExtractBoolDefault(s.Tile, s.Bel, s.Attr, s.Values[0], s.Values[1])
	if err := x.commit(s, s.Bel, s.Attr, it, err); err != nil {
		return err
	}
	return x.c.InsertDeviceData(s.Name, bits.Vec{def})
}

// key returns the step's single experiment key for the given tile.
func (s *Step) key(tile string) collect.DiffKey {
	if s.Value != "" {
		return collect.AttrValue{Tile: tile, Bel: s.Bel, Attr: s.Attr, Value: s.Value}
	}
	return collect.Special{Tile: tile, Bel: s.Bel, Name: s.Name}
}

// take reads the step's single experiment. It is consumed unless the
// step peeks.
func (x *executor) take(s *Step) (diff.Diff, error) {
	if s.Peek {
		return x.c.PeekKey(s.key(s.Tile))
	}
	return x.c.TakeKey(s.key(s.Tile))
}

// compose peels committed items off one experiment. What remains becomes
// the Rest item, or must be empty.
func (x *executor) compose(s *Step) error {
	d, err := x.take(s)
	if err != nil {
		return err
	}
	if err := x.subtract(s, &d); err != nil {
		return err
	}
	if s.Rest == "" {
		return x.residual(s, d)
	}
	it, err := xlat.XlatBitWide(d)
	if err != nil {
		return &collect.DecodeError{Tile: s.Tile, Bel: s.Bel, Attr: s.Rest, Err: err}
	}
	return x.commit(s, s.Bel, s.Rest, it, nil)
}

// subtract removes the step's Discard and Apply items from d.
func (x *executor) subtract(s *Step, d *diff.Diff) error {
	for _, r := range s.Discard {
		tile, bel := s.resolve(r)
		if err := x.c.DiscardItem(d, tile, bel, r.Attr); err != nil {
			return err
		}
	}
	for _, a := range s.Apply {
		if err := x.apply(s, d, a); err != nil {
			return err
		}
	}
	return nil
}

func (x *executor) apply(s *Step, d *diff.Diff, a Apply) error {
	tile, bel := s.resolve(a.Ref)
	switch a.Kind {
	case ApplyBit:
		from, err := strconv.ParseBool(a.From)
		if err != nil {
			return err
		}
		to, err := strconv.ParseBool(a.To)
		if err != nil {
			return err
		}
		return x.c.ApplyBitDiff(d, tile, bel, a.Attr, from, to)
	case ApplyBitVec:
		from, err := strconv.ParseUint(a.From, 0, 64)
		if err != nil {
			return err
		}
		to, err := strconv.ParseUint(a.To, 0, 64)
		if err != nil {
			return err
		}
		return x.c.ApplyBitVecDiffInt(d, tile, bel, a.Attr, from, to)
	case ApplyEnum:
		return x.c.ApplyEnumDiff(d, tile, bel, a.Attr, a.From, a.To)
	}
	return fmt.Errorf("%w: unknown apply kind %q", ErrInvalidPlan, a.Kind)
}

func (x *executor) residual(s *Step, d diff.Diff) error {
	if err := d.AssertEmpty(); err != nil {
		attr := s.Attr
		if s.Value == "" {
			attr = s.Name
		}
		return &collect.DecodeError{Tile: s.Tile, Bel: s.Bel, Attr: attr, Err: err}
	}
	return nil
}

// concat joins committed vectors into one item.
func (x *executor) concat(s *Step) error {
	parts := make([]item.TileItem, 0, len(s.Parts))
	for _, r := range s.Parts {
		tile, bel := s.resolve(r)
		it, err := x.c.Item(tile, bel, r.Attr)
		if err != nil {
			return err
		}
		parts = append(parts, it)
	}
	it, err := xlat.ConcatBitVec(parts...)
	if err != nil {
		return &collect.DecodeError{Tile: s.Tile, Bel: s.Bel, Attr: s.Attr, Err: err}
	}
	return x.commit(s, s.Bel, s.Attr, it, nil)
}

// split consumes an experiment taken over a multi-tile region and records
// one experiment per target under the same key in the target's tile.
func (x *executor) split(s *Step) error {
	d, err := x.take(s)
	if err != nil {
		return err
	}
	maps := make([]diff.TileMap, len(s.Targets))
	for i, t := range s.Targets {
		maps[i] = t.Tiles
	}

	var parts []diff.Diff
	if s.DropUnmapped {
		for _, m := range maps {
			parts = append(parts, d.FilterTiles(m))
		}
	} else if parts, err = d.SplitTiles(maps...); err != nil {
		k := s.key(s.Tile)
		tile, bel, attr := k.Scope()
		return &collect.DecodeError{Tile: tile, Bel: bel, Attr: attr, Key: k, Err: err}
	}

	for i, t := range s.Targets {
		k := s.key(t.Tile)
		if err := x.c.Store().Add(k, parts[i]); err != nil {
			tile, bel, attr := k.Scope()
			return &collect.DecodeError{Tile: tile, Bel: bel, Attr: attr, Key: k, Err: err}
		}
	}
	return nil
}

// deviceData reads the value a committed BitVec item takes in one
// experiment, relative to the baseline value Base. Discard and Apply items
// explain the rest of the experiment.
func (x *executor) deviceData(s *Step) error {
	it, err := x.c.Item(s.Tile, s.Bel, s.Attr)
	if err != nil {
		return err
	}
	d, err := x.c.GetDiff(s.Tile, s.Bel, s.Attr, s.Value)
	if err != nil {
		return err
	}
	base, err := bits.ParseVec(s.Base)
	if err != nil {
		return err
	}
	v, err := xlat.ExtractBitVecValuePart(it, base, &d)
	if err != nil {
		return &collect.DecodeError{Tile: s.Tile, Bel: s.Bel, Attr: s.Attr, Err: err}
	}
	if err := x.subtract(s, &d); err != nil {
		return err
	}
	if err := x.residual(s, d); err != nil {
		return err
	}
	return x.c.InsertDeviceData(s.Name, v)
}
