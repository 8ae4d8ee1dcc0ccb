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

// Sym is an interned name. The zero Sym is never issued.
type Sym uint32

// Symbols interns tile, bel and attribute names.
//
// Thread Safety: not safe for concurrent use; TileDb guards its own table.
type Symbols struct {
	ids   map[string]Sym
	names []string
}

// NewSymbols returns an empty table.
func NewSymbols() *Symbols {
	return &Symbols{
		ids:   make(map[string]Sym),
		names: []string{""},
	}
}

// Intern returns the symbol for name, allocating one on first use.
func (s *Symbols) Intern(name string) Sym {
	if id, ok := s.ids[name]; ok {
		return id
	}
	id := Sym(len(s.names))
	s.names = append(s.names, name)
	s.ids[name] = id
	return id
}

// Lookup returns the symbol for name without allocating.
func (s *Symbols) Lookup(name string) (Sym, bool) {
	id, ok := s.ids[name]
	return id, ok
}

// Name returns the string for id, or "" for an unknown symbol.
func (s *Symbols) Name(id Sym) string {
	if int(id) >= len(s.names) {
		return ""
	}
	return s.names[id]
}

// Len returns the number of interned names.
func (s *Symbols) Len() int {
	return len(s.names) - 1
}
