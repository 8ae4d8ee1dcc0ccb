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

	"github.com/AleutianAI/bitfuzz/services/hammer/diff"
)

type storeEntry struct {
	key      DiffKey
	diffs    []diff.Diff
	consumed bool
}

// Store holds the raw experiment results of one family.
//
// Every key is read at most once: Take marks its entry consumed and later
// reads fail with ErrMissingDiff. Peek reads without consuming. Entries
// keep insertion order, so Unconsumed lists leftovers deterministically.
//
// Thread Safety: not safe for concurrent use. One Store belongs to one
// decode pass.
type Store struct {
	index   map[DiffKey]int
	entries []storeEntry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{index: make(map[DiffKey]int)}
}

// Add records d under k. A key may hold several diffs; they are returned
// in the order added.
func (s *Store) Add(k DiffKey, d diff.Diff) error {
	if i, ok := s.index[k]; ok {
		if s.entries[i].consumed {
			return fmt.Errorf("%s: %w", k, ErrAlreadyConsumed)
		}
		s.entries[i].diffs = append(s.entries[i].diffs, d)
		return nil
	}
	s.index[k] = len(s.entries)
	s.entries = append(s.entries, storeEntry{key: k, diffs: []diff.Diff{d}})
	return nil
}

// Take returns the diffs under k and marks them consumed.
func (s *Store) Take(k DiffKey) ([]diff.Diff, error) {
	e, err := s.entry(k)
	if err != nil {
		return nil, err
	}
	e.consumed = true
	out := e.diffs
	e.diffs = nil
	return out, nil
}

// Peek returns copies of the diffs under k without consuming them.
func (s *Store) Peek(k DiffKey) ([]diff.Diff, error) {
	e, err := s.entry(k)
	if err != nil {
		return nil, err
	}
	out := make([]diff.Diff, len(e.diffs))
	for i, d := range e.diffs {
		out[i] = d.Clone()
	}
	return out, nil
}

func (s *Store) entry(k DiffKey) (*storeEntry, error) {
	i, ok := s.index[k]
	if !ok {
		return nil, fmt.Errorf("%s: %w", k, ErrMissingDiff)
	}
	e := &s.entries[i]
	if e.consumed {
		return nil, fmt.Errorf("%s: %w (already consumed)", k, ErrMissingDiff)
	}
	return e, nil
}

// Has reports whether k is present and unconsumed.
func (s *Store) Has(k DiffKey) bool {
	i, ok := s.index[k]
	return ok && !s.entries[i].consumed
}

// Len returns the number of distinct keys ever added.
func (s *Store) Len() int {
	return len(s.entries)
}

// Unconsumed returns the keys never taken, in insertion order.
func (s *Store) Unconsumed() []DiffKey {
	var out []DiffKey
	for _, e := range s.entries {
		if !e.consumed {
			out = append(out, e.key)
		}
	}
	return out
}
