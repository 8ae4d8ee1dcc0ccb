// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tiledb holds the decoded attribute database of one device family.
//
// A TileDb maps (tile class, bel, attribute) to the TileItem that encodes
// the attribute, plus a per-device table of scalar default values. Keys
// are interned symbols.
//
// # Lifecycle
//
// Every key moves once from absent to present. Inserting a key again is
// allowed only with an Equal value, so repeated or related experiments that
// decode the same attribute cross-check each other:
//
//	db := tiledb.New()
//	_ = db.Insert("BRAM", "BRAM", "INIT", bit)   // ok
//	_ = db.Insert("BRAM", "BRAM", "INIT", bit)   // ok, same value
//	err := db.Insert("BRAM", "BRAM", "INIT", other)
//	// errors.Is(err, tiledb.ErrInconsistentReinsertion)
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package tiledb

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/AleutianAI/bitfuzz/services/hammer/bits"
	"github.com/AleutianAI/bitfuzz/services/hammer/item"
)

// Key addresses one attribute.
type Key struct {
	Tile Sym
	Bel  Sym
	Attr Sym
}

// Entry is one resolved (tile, bel, attr) item.
type Entry struct {
	Tile string        `json:"tile" yaml:"tile"`
	Bel  string        `json:"bel" yaml:"bel"`
	Attr string        `json:"attr" yaml:"attr"`
	Item item.TileItem `json:"item" yaml:"item"`
}

// TileDb is the attribute database of one family.
type TileDb struct {
	mu      sync.RWMutex
	syms    *Symbols
	items   map[Key]item.TileItem
	devData map[string]map[string]bits.Vec
}

// New returns an empty database.
func New() *TileDb {
	return &TileDb{
		syms:    NewSymbols(),
		items:   make(map[Key]item.TileItem),
		devData: make(map[string]map[string]bits.Vec),
	}
}

// Insert records it under (tile, bel, attr).
//
// Description:
//
//	Inserts if absent. If present, the committed item must be Equal to it;
//	the committed item is never overwritten.
//
// Inputs:
//
//	tile, bel, attr - Non-empty names. bel may be empty for tile-wide
//	attributes such as routing muxes.
//	it - The item. A copy is stored.
//
// Outputs:
//
//	error - ErrEmptyName, or *ConflictError wrapping
//	ErrInconsistentReinsertion.
func (db *TileDb) Insert(tile, bel, attr string, it item.TileItem) error {
	if tile == "" || attr == "" {
		return fmt.Errorf("insert %q:%q:%q: %w", tile, bel, attr, ErrEmptyName)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	k := Key{Tile: db.syms.Intern(tile), Bel: db.syms.Intern(bel), Attr: db.syms.Intern(attr)}
	if have, ok := db.items[k]; ok {
		if !have.Equal(it) {
			return &ConflictError{Key: tile + ":" + bel + ":" + attr, Have: have.String(), Got: it.String()}
		}
		return nil
	}
	db.items[k] = it.Clone()
	return nil
}

// Item returns a copy of the item under (tile, bel, attr).
func (db *TileDb) Item(tile, bel, attr string) (item.TileItem, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	k, ok := db.lookup(tile, bel, attr)
	if !ok {
		return item.TileItem{}, false
	}
	it, ok := db.items[k]
	if !ok {
		return item.TileItem{}, false
	}
	return it.Clone(), true
}

func (db *TileDb) lookup(tile, bel, attr string) (Key, bool) {
	t, ok1 := db.syms.Lookup(tile)
	b, ok2 := db.syms.Lookup(bel)
	a, ok3 := db.syms.Lookup(attr)
	return Key{Tile: t, Bel: b, Attr: a}, ok1 && ok2 && ok3
}

// Len returns the number of items.
func (db *TileDb) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.items)
}

// Entries returns every item sorted by tile, bel, then attribute name.
func (db *TileDb) Entries() []Entry {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]Entry, 0, len(db.items))
	for k, it := range db.items {
		out = append(out, Entry{
			Tile: db.syms.Name(k.Tile),
			Bel:  db.syms.Name(k.Bel),
			Attr: db.syms.Name(k.Attr),
			Item: it.Clone(),
		})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Tile, b.Tile), cmp.Compare(a.Bel, b.Bel), cmp.Compare(a.Attr, b.Attr))
	})
	return out
}

// =============================================================================
// Device data
// =============================================================================

// InsertDeviceData records a device-wide default value, such as a delay
// setting discovered from a factory-default bitstream. The same consistency
// rule as Insert applies.
func (db *TileDb) InsertDeviceData(device, name string, value bits.Vec) error {
	if device == "" || name == "" {
		return fmt.Errorf("device data %q:%q: %w", device, name, ErrEmptyName)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	data, ok := db.devData[device]
	if !ok {
		data = make(map[string]bits.Vec)
		db.devData[device] = data
	}
	if have, ok := data[name]; ok {
		if !have.Equal(value) {
			return &ConflictError{Key: device + ":" + name, Have: have.String(), Got: value.String()}
		}
		return nil
	}
	data[name] = value.Clone()
	return nil
}

// DeviceData returns a copy of the defaults recorded for device.
func (db *TileDb) DeviceData(device string) map[string]bits.Vec {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make(map[string]bits.Vec, len(db.devData[device]))
	for k, v := range db.devData[device] {
		out[k] = v.Clone()
	}
	return out
}

// Devices returns the devices with recorded data, sorted.
func (db *TileDb) Devices() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return slices.Sorted(maps.Keys(db.devData))
}

// =============================================================================
// Merging and snapshots
// =============================================================================

// Merge inserts every item and device value of other into db.
//
// Conflicts do not stop the merge; all of them are returned joined.
func (db *TileDb) Merge(other *TileDb) error {
	var errs []error
	for _, e := range other.Entries() {
		if err := db.Insert(e.Tile, e.Bel, e.Attr, e.Item); err != nil {
			errs = append(errs, err)
		}
	}
	for _, dev := range other.Devices() {
		data := other.DeviceData(dev)
		for _, name := range slices.Sorted(maps.Keys(data)) {
			if err := db.InsertDeviceData(dev, name, data[name]); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Snapshot is the serializable form of a TileDb.
type Snapshot struct {
	Family     string                         `json:"family" yaml:"family"`
	Items      []Entry                        `json:"items" yaml:"items"`
	DeviceData map[string]map[string]bits.Vec `json:"device_data,omitempty" yaml:"device_data,omitempty"`
}

// Snapshot captures the current contents.
func (db *TileDb) Snapshot(family string) Snapshot {
	s := Snapshot{Family: family, Items: db.Entries()}
	for _, dev := range db.Devices() {
		if s.DeviceData == nil {
			s.DeviceData = make(map[string]map[string]bits.Vec)
		}
		s.DeviceData[dev] = db.DeviceData(dev)
	}
	return s
}

// FromSnapshot rebuilds a TileDb. A snapshot holding one key twice with
// different values is rejected.
func FromSnapshot(s Snapshot) (*TileDb, error) {
	db := New()
	for _, e := range s.Items {
		if err := db.Insert(e.Tile, e.Bel, e.Attr, e.Item); err != nil {
			return nil, err
		}
	}
	for dev, data := range s.DeviceData {
		for name, v := range data {
			if err := db.InsertDeviceData(dev, name, v); err != nil {
				return nil, err
			}
		}
	}
	return db, nil
}
