// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collect

import (
	"fmt"
	"strconv"
)

// DiffKey addresses one raw experiment result.
//
// The set of implementations is closed: AttrValue, AttrBit, Routing,
// InputInv and Special. All are comparable and usable as map keys.
type DiffKey interface {
	// Scope returns the (tile, bel, attr) the key belongs to, for error
	// reporting.
	Scope() (tile, bel, attr string)

	String() string

	isDiffKey()
}

// AttrValue is the experiment that sets an attribute to a symbolic value.
type AttrValue struct {
	Tile  string
	Bel   string
	Attr  string
	Value string
}

// AttrBit is the experiment that sets one bit of a multi-bit attribute.
type AttrBit struct {
	Tile string
	Bel  string
	Attr string
	Bit  int
}

// Routing is the experiment that connects Wire to Source in a tile.
type Routing struct {
	Tile   string
	Wire   string
	Source string
}

// InputInv is the experiment that drives a bel input with or without its
// programmable inverter.
type InputInv struct {
	Tile     string
	Bel      string
	Pin      string
	Inverted bool
}

// Special is a one-off experiment identified by name, such as "PRESENT".
type Special struct {
	Tile string
	Bel  string
	Name string
}

func (AttrValue) isDiffKey() {}
func (AttrBit) isDiffKey()   {}
func (Routing) isDiffKey()   {}
func (InputInv) isDiffKey()  {}
func (Special) isDiffKey()   {}

// Scope implements DiffKey.
func (k AttrValue) Scope() (string, string, string) { return k.Tile, k.Bel, k.Attr }

// Scope implements DiffKey.
func (k AttrBit) Scope() (string, string, string) { return k.Tile, k.Bel, k.Attr }

// Scope implements DiffKey. Routing muxes are tile-wide.
func (k Routing) Scope() (string, string, string) { return k.Tile, "", MuxAttr(k.Wire) }

// Scope implements DiffKey.
func (k InputInv) Scope() (string, string, string) { return k.Tile, k.Bel, InvAttr(k.Pin) }

// Scope implements DiffKey.
func (k Special) Scope() (string, string, string) { return k.Tile, k.Bel, k.Name }

func (k AttrValue) String() string {
	return fmt.Sprintf("%s:%s:%s=%s", k.Tile, k.Bel, k.Attr, k.Value)
}

func (k AttrBit) String() string {
	return fmt.Sprintf("%s:%s:%s[%d]", k.Tile, k.Bel, k.Attr, k.Bit)
}

func (k Routing) String() string {
	return fmt.Sprintf("%s:%s<-%s", k.Tile, k.Wire, k.Source)
}

func (k InputInv) String() string {
	return fmt.Sprintf("%s:%s:%s inv=%s", k.Tile, k.Bel, k.Pin, strconv.FormatBool(k.Inverted))
}

func (k Special) String() string {
	return fmt.Sprintf("%s:%s:!%s", k.Tile, k.Bel, k.Name)
}

// MuxAttr names the TileDb attribute of a routing mux driving wire.
func MuxAttr(wire string) string { return "MUX." + wire }

// InvAttr names the TileDb attribute of a bel input inverter.
func InvAttr(pin string) string { return "INV." + pin }
