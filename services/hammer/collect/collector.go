// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package collect bridges raw experiment results to the attribute database.
//
// A Collector owns one family's Store of experiment diffs and writes into
// its TileDb. Decode routines call it in a fixed order: later routines may
// subtract items that earlier ones inserted.
//
// # Naming
//
//   - Get*/Take*: read and consume experiment diffs.
//   - Peek*: read without consuming.
//   - Extract*: translate diffs into an item without inserting it.
//   - Collect*: Extract, then Insert. An all-empty result is ErrAllEmpty.
//
// Every error is a *DecodeError naming the tile, bel and attribute.
package collect

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
	"github.com/AleutianAI/bitfuzz/services/hammer/diff"
	"github.com/AleutianAI/bitfuzz/services/hammer/item"
	"github.com/AleutianAI/bitfuzz/services/hammer/tiledb"
	"github.com/AleutianAI/bitfuzz/services/hammer/xlat"
)

// MuxNone is the implicit empty value of every routing mux.
const MuxNone = "NONE"

// Collector runs decode steps for one family.
//
// Thread Safety: not safe for concurrent use.
type Collector struct {
	store  *Store
	db     *tiledb.TileDb
	device string
	logger *slog.Logger
}

// New returns a Collector reading store and writing db. device names the
// target of InsertDeviceData. A nil logger uses slog.Default().
func New(store *Store, db *tiledb.TileDb, device string, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{store: store, db: db, device: device, logger: logger}
}

// DB returns the database being built.
func (c *Collector) DB() *tiledb.TileDb { return c.db }

// Store returns the experiment store.
func (c *Collector) Store() *Store { return c.store }

// =============================================================================
// Lookup
// =============================================================================

// TakeKeys consumes every diff recorded under k.
func (c *Collector) TakeKeys(k DiffKey) ([]diff.Diff, error) {
	ds, err := c.store.Take(k)
	return ds, wrapKey(k, err)
}

// TakeKey consumes the single diff recorded under k.
func (c *Collector) TakeKey(k DiffKey) (diff.Diff, error) {
	ds, err := c.TakeKeys(k)
	if err != nil {
		return diff.Diff{}, err
	}
	return single(k, ds)
}

// PeekKey returns a copy of the single diff under k without consuming it.
func (c *Collector) PeekKey(k DiffKey) (diff.Diff, error) {
	ds, err := c.store.Peek(k)
	if err != nil {
		return diff.Diff{}, wrapKey(k, err)
	}
	return single(k, ds)
}

func single(k DiffKey, ds []diff.Diff) (diff.Diff, error) {
	if len(ds) != 1 {
		return diff.Diff{}, wrapKey(k, diff.NewBitError("lookup", diff.ErrSizeMismatch, nil, "key holds %d diffs", len(ds)))
	}
	return ds[0], nil
}

// GetDiffs consumes every diff of tile:bel:attr=val.
func (c *Collector) GetDiffs(tile, bel, attr, val string) ([]diff.Diff, error) {
	return c.TakeKeys(AttrValue{Tile: tile, Bel: bel, Attr: attr, Value: val})
}

// GetDiff consumes the single diff of tile:bel:attr=val.
func (c *Collector) GetDiff(tile, bel, attr, val string) (diff.Diff, error) {
	return c.TakeKey(AttrValue{Tile: tile, Bel: bel, Attr: attr, Value: val})
}

// PeekDiff returns a copy of the single diff of tile:bel:attr=val.
func (c *Collector) PeekDiff(tile, bel, attr, val string) (diff.Diff, error) {
	return c.PeekKey(AttrValue{Tile: tile, Bel: bel, Attr: attr, Value: val})
}

func (c *Collector) values(tile, bel, attr string, vals []string) ([]xlat.Value, error) {
	out := make([]xlat.Value, 0, len(vals))
	for _, v := range vals {
		d, err := c.GetDiff(tile, bel, attr, v)
		if err != nil {
			return nil, err
		}
		out = append(out, xlat.Value{Name: v, Diff: d})
	}
	return out, nil
}

// =============================================================================
// Extract
// =============================================================================

// ExtractBit translates the single-bit experiment tile:bel:attr=val.
func (c *Collector) ExtractBit(tile, bel, attr, val string) (item.TileItem, error) {
	d, err := c.GetDiff(tile, bel, attr, val)
	if err != nil {
		return item.TileItem{}, err
	}
	it, err := xlat.XlatBit(d)
	return it, wrapAttr(tile, bel, attr, err)
}

// ExtractBitWide translates an experiment whose bits all move together.
func (c *Collector) ExtractBitWide(tile, bel, attr, val string) (item.TileItem, error) {
	d, err := c.GetDiff(tile, bel, attr, val)
	if err != nil {
		return item.TileItem{}, err
	}
	it, err := xlat.XlatBitWide(d)
	return it, wrapAttr(tile, bel, attr, err)
}

// ExtractBitVec translates the per-bit experiments tile:bel:attr[0..width).
func (c *Collector) ExtractBitVec(tile, bel, attr string, width int) (item.TileItem, error) {
	ds := make([]diff.Diff, width)
	for i := range ds {
		d, err := c.TakeKey(AttrBit{Tile: tile, Bel: bel, Attr: attr, Bit: i})
		if err != nil {
			return item.TileItem{}, err
		}
		ds[i] = d
	}
	it, err := xlat.XlatBitVec(ds)
	return it, wrapAttr(tile, bel, attr, err)
}

// ExtractEnum translates one experiment per value with ValueOrder.
func (c *Collector) ExtractEnum(tile, bel, attr string, vals []string) (item.TileItem, error) {
	return c.ExtractEnumOCD(tile, bel, attr, vals, xlat.ValueOrder)
}

// ExtractEnumOCD translates one experiment per value with the given order.
func (c *Collector) ExtractEnumOCD(tile, bel, attr string, vals []string, mode xlat.OcdMode) (item.TileItem, error) {
	it, _, err := c.ExtractEnumWith(tile, bel, attr, vals, EnumOptions{Mode: mode})
	return it, err
}

// ExtractEnumDefault is ExtractEnum where def is the untested baseline.
func (c *Collector) ExtractEnumDefault(tile, bel, attr string, vals []string, def string) (item.TileItem, error) {
	return c.ExtractEnumDefaultOCD(tile, bel, attr, vals, def, xlat.ValueOrder)
}

// ExtractEnumDefaultOCD is ExtractEnumOCD where def is the untested baseline.
func (c *Collector) ExtractEnumDefaultOCD(tile, bel, attr string, vals []string, def string, mode xlat.OcdMode) (item.TileItem, error) {
	it, _, err := c.ExtractEnumWith(tile, bel, attr, vals, EnumOptions{Default: def, Mode: mode})
	return it, err
}

// EnumOptions tunes ExtractEnumWith and ExtractMuxWith.
type EnumOptions struct {
	// Default names the untested baseline value. Muxes always use MuxNone.
	Default string

	// Mode orders the field bits.
	Mode xlat.OcdMode

	// Aliased accepts distinct values that share one pattern.
	Aliased bool

	// Common splits off the bits every tested value sets. They are
	// returned as a separate uniform BitVec and left out of the enum.
	Common bool
}

// ExtractEnumWith translates one experiment per value.
//
// With opts.Common the second result holds the shared bits, for example an
// enable that every non-default value turns on. Otherwise it is the zero
// item.
func (c *Collector) ExtractEnumWith(tile, bel, attr string, vals []string, opts EnumOptions) (item.TileItem, item.TileItem, error) {
	vs, err := c.values(tile, bel, attr, vals)
	if err != nil {
		return item.TileItem{}, item.TileItem{}, err
	}
	return translate(tile, bel, attr, vs, opts)
}

func translate(tile, bel, attr string, vs []xlat.Value, opts EnumOptions) (item.TileItem, item.TileItem, error) {
	var common item.TileItem
	if opts.Common {
		ds := make([]diff.Diff, len(vs))
		for i := range vs {
			ds[i] = vs[i].Diff
		}
		shared, err := xlat.ExtractCommon(ds)
		if err != nil {
			return item.TileItem{}, item.TileItem{}, wrapAttr(tile, bel, attr, err)
		}
		if common, err = xlat.XlatBitWide(shared); err != nil {
			return item.TileItem{}, item.TileItem{}, wrapAttr(tile, bel, attr, err)
		}
		for i := range vs {
			vs[i].Diff = ds[i]
		}
	}

	var (
		it  item.TileItem
		err error
	)
	switch {
	case opts.Default != "" && opts.Aliased:
		it, err = xlat.XlatEnumDefaultAliased(vs, opts.Default, opts.Mode)
	case opts.Default != "":
		it, err = xlat.XlatEnumDefaultOCD(vs, opts.Default, opts.Mode)
	case opts.Aliased:
		it, err = xlat.XlatEnumAliased(vs, opts.Mode)
	default:
		it, err = xlat.XlatEnumOCD(vs, opts.Mode)
	}
	if err != nil {
		return item.TileItem{}, item.TileItem{}, wrapAttr(tile, bel, attr, err)
	}
	return it, common, nil
}

// ExtractBool translates the two experiments val0 (false) and val1 (true).
func (c *Collector) ExtractBool(tile, bel, attr, val0, val1 string) (item.TileItem, error) {
	it, _, err := c.ExtractBoolDefault(tile, bel, attr, val0, val1)
	return it, err
}

// ExtractBoolDefault is ExtractBool that also returns the baseline value.
func (c *Collector) ExtractBoolDefault(tile, bel, attr, val0, val1 string) (item.TileItem, bool, error) {
	d0, err := c.GetDiff(tile, bel, attr, val0)
	if err != nil {
		return item.TileItem{}, false, err
	}
	d1, err := c.GetDiff(tile, bel, attr, val1)
	if err != nil {
		return item.TileItem{}, false, err
	}
	it, def, err := xlat.XlatBoolDefault(d0, d1)
	return it, def, wrapAttr(tile, bel, attr, err)
}

// ExtractEnumInt translates integer settings lo..hi-1. The experiment
// for setting v is keyed by the decimal value v+delta.
func (c *Collector) ExtractEnumInt(tile, bel, attr string, lo, hi, delta uint32) (item.TileItem, error) {
	var vals []xlat.IntValue
	for v := lo; v < hi; v++ {
		d, err := c.GetDiff(tile, bel, attr, strconv.FormatUint(uint64(v+delta), 10))
		if err != nil {
			return item.TileItem{}, err
		}
		vals = append(vals, xlat.IntValue{Value: v, Diff: d})
	}
	it, err := xlat.XlatEnumInt(vals)
	return it, wrapAttr(tile, bel, attr, err)
}

// ExtractMux translates the routing experiments wire<-source for each
// source. MuxNone is the implicit empty value.
func (c *Collector) ExtractMux(tile, wire string, sources []string, mode xlat.OcdMode) (item.TileItem, error) {
	it, _, err := c.ExtractMuxWith(tile, wire, sources, EnumOptions{Mode: mode})
	return it, err
}

// ExtractMuxWith is ExtractMux with enum options. opts.Default is ignored.
func (c *Collector) ExtractMuxWith(tile, wire string, sources []string, opts EnumOptions) (item.TileItem, item.TileItem, error) {
	vs := make([]xlat.Value, 0, len(sources))
	for _, src := range sources {
		d, err := c.TakeKey(Routing{Tile: tile, Wire: wire, Source: src})
		if err != nil {
			return item.TileItem{}, item.TileItem{}, err
		}
		vs = append(vs, xlat.Value{Name: src, Diff: d})
	}
	opts.Default = MuxNone
	return translate(tile, "", MuxAttr(wire), vs, opts)
}

// ExtractInv translates the inverted and non-inverted experiments of a
// bel input into a Bool item that is true when inverted.
func (c *Collector) ExtractInv(tile, bel, pin string) (item.TileItem, error) {
	d0, err := c.TakeKey(InputInv{Tile: tile, Bel: bel, Pin: pin, Inverted: false})
	if err != nil {
		return item.TileItem{}, err
	}
	d1, err := c.TakeKey(InputInv{Tile: tile, Bel: bel, Pin: pin, Inverted: true})
	if err != nil {
		return item.TileItem{}, err
	}
	it, err := xlat.XlatBool(d0, d1)
	return it, wrapAttr(tile, bel, InvAttr(pin), err)
}

// =============================================================================
// Collect
// =============================================================================

// Insert commits it under (tile, bel, attr).
func (c *Collector) Insert(tile, bel, attr string, it item.TileItem) error {
	if err := c.db.Insert(tile, bel, attr, it); err != nil {
		return wrapAttr(tile, bel, attr, err)
	}
	c.logger.Debug("item collected", "tile", tile, "bel", bel, "attr", attr, "item", it.String())
	return nil
}

func (c *Collector) collect(tile, bel, attr string, it item.TileItem, err error) error {
	if err != nil {
		return err
	}
	if it.IsConstant() {
		return wrapAttr(tile, bel, attr, ErrAllEmpty)
	}
	return c.Insert(tile, bel, attr, it)
}

// CollectBit is ExtractBit followed by Insert.
func (c *Collector) CollectBit(tile, bel, attr, val string) error {
	it, err := c.ExtractBit(tile, bel, attr, val)
	return c.collect(tile, bel, attr, it, err)
}

// CollectBitWide is ExtractBitWide followed by Insert.
func (c *Collector) CollectBitWide(tile, bel, attr, val string) error {
	it, err := c.ExtractBitWide(tile, bel, attr, val)
	return c.collect(tile, bel, attr, it, err)
}

// CollectBitVec is ExtractBitVec followed by Insert.
func (c *Collector) CollectBitVec(tile, bel, attr string, width int) error {
	it, err := c.ExtractBitVec(tile, bel, attr, width)
	return c.collect(tile, bel, attr, it, err)
}

// CollectEnum is ExtractEnum followed by Insert.
func (c *Collector) CollectEnum(tile, bel, attr string, vals []string) error {
	it, err := c.ExtractEnum(tile, bel, attr, vals)
	return c.collect(tile, bel, attr, it, err)
}

// CollectEnumOCD is ExtractEnumOCD followed by Insert.
func (c *Collector) CollectEnumOCD(tile, bel, attr string, vals []string, mode xlat.OcdMode) error {
	it, err := c.ExtractEnumOCD(tile, bel, attr, vals, mode)
	return c.collect(tile, bel, attr, it, err)
}

// CollectEnumDefault is ExtractEnumDefault followed by Insert.
func (c *Collector) CollectEnumDefault(tile, bel, attr string, vals []string, def string) error {
	it, err := c.ExtractEnumDefault(tile, bel, attr, vals, def)
	return c.collect(tile, bel, attr, it, err)
}

// CollectEnumDefaultOCD is ExtractEnumDefaultOCD followed by Insert.
func (c *Collector) CollectEnumDefaultOCD(tile, bel, attr string, vals []string, def string, mode xlat.OcdMode) error {
	it, err := c.ExtractEnumDefaultOCD(tile, bel, attr, vals, def, mode)
	return c.collect(tile, bel, attr, it, err)
}

// CollectBool is ExtractBool followed by Insert.
func (c *Collector) CollectBool(tile, bel, attr, val0, val1 string) error {
	it, err := c.ExtractBool(tile, bel, attr, val0, val1)
	return c.collect(tile, bel, attr, it, err)
}

// CollectBoolDefault is ExtractBoolDefault followed by Insert. It returns
// the baseline value.
func (c *Collector) CollectBoolDefault(tile, bel, attr, val0, val1 string) (bool, error) {
	it, def, err := c.ExtractBoolDefault(tile, bel, attr, val0, val1)
	return def, c.collect(tile, bel, attr, it, err)
}

// CollectEnumInt is ExtractEnumInt followed by Insert.
func (c *Collector) CollectEnumInt(tile, bel, attr string, lo, hi, delta uint32) error {
	it, err := c.ExtractEnumInt(tile, bel, attr, lo, hi, delta)
	return c.collect(tile, bel, attr, it, err)
}

// CollectMux is ExtractMux followed by Insert under (tile, "", MUX.wire).
func (c *Collector) CollectMux(tile, wire string, sources []string, mode xlat.OcdMode) error {
	it, err := c.ExtractMux(tile, wire, sources, mode)
	return c.collect(tile, "", MuxAttr(wire), it, err)
}

// CollectInv is ExtractInv followed by Insert under (tile, bel, INV.pin).
func (c *Collector) CollectInv(tile, bel, pin string) error {
	it, err := c.ExtractInv(tile, bel, pin)
	return c.collect(tile, bel, InvAttr(pin), it, err)
}

// =============================================================================
// Composition
// =============================================================================

// Item returns a committed item.
func (c *Collector) Item(tile, bel, attr string) (item.TileItem, error) {
	it, ok := c.db.Item(tile, bel, attr)
	if !ok {
		return item.TileItem{}, wrapAttr(tile, bel, attr, ErrUnknownItem)
	}
	return it, nil
}

// DiscardItem removes the bits of a committed item from d.
func (c *Collector) DiscardItem(d *diff.Diff, tile, bel, attr string) error {
	it, err := c.Item(tile, bel, attr)
	if err != nil {
		return err
	}
	d.DiscardItem(it)
	return nil
}

// ApplyBitDiff subtracts a committed Bool item moving from -> to.
func (c *Collector) ApplyBitDiff(d *diff.Diff, tile, bel, attr string, from, to bool) error {
	it, err := c.Item(tile, bel, attr)
	if err != nil {
		return err
	}
	return wrapAttr(tile, bel, attr, d.ApplyBitDiff(it, from, to))
}

// ApplyBitVecDiffInt subtracts a committed BitVec item moving from -> to.
func (c *Collector) ApplyBitVecDiffInt(d *diff.Diff, tile, bel, attr string, from, to uint64) error {
	it, err := c.Item(tile, bel, attr)
	if err != nil {
		return err
	}
	return wrapAttr(tile, bel, attr, d.ApplyBitVecDiffInt(it, from, to))
}

// ApplyEnumDiff subtracts a committed Enum item moving from -> to.
func (c *Collector) ApplyEnumDiff(d *diff.Diff, tile, bel, attr, from, to string) error {
	it, err := c.Item(tile, bel, attr)
	if err != nil {
		return err
	}
	return wrapAttr(tile, bel, attr, d.ApplyEnumDiff(it, from, to))
}

// InsertDeviceData records a device-wide default for the collector's
// device.
func (c *Collector) InsertDeviceData(name string, value bits.Vec) error {
	if err := c.db.InsertDeviceData(c.device, name, value); err != nil {
		return wrapAttr("", "", name, err)
	}
	c.logger.Debug("device data collected", "device", c.device, "name", name, "value", value.String())
	return nil
}

// =============================================================================
// Coverage
// =============================================================================

// Report summarizes a finished decode pass.
type Report struct {
	// Keys is the number of distinct experiment keys recorded.
	Keys int

	// Items is the number of attributes in the database.
	Items int

	// Unconsumed lists experiments no decode step read.
	Unconsumed []DiffKey
}

// Err returns ErrUnconsumedDiffs when experiments were left unread.
func (r Report) Err() error {
	if len(r.Unconsumed) == 0 {
		return nil
	}
	tile, bel, attr := r.Unconsumed[0].Scope()
	return &DecodeError{
		Tile: tile, Bel: bel, Attr: attr,
		Key: r.Unconsumed[0],
		Err: fmt.Errorf("%w: %d keys unread", ErrUnconsumedDiffs, len(r.Unconsumed)),
	}
}

// Finish reports coverage. Unread experiments are logged as warnings;
// callers that require full coverage check Report.Err.
func (c *Collector) Finish() Report {
	r := Report{Keys: c.store.Len(), Items: c.db.Len(), Unconsumed: c.store.Unconsumed()}
	for _, k := range r.Unconsumed {
		c.logger.Warn("experiment never consumed", "key", k.String())
	}
	return r
}
