// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/bitfuzz/services/hammer/tiledb"
)

const familyPrefix = "family/"

// Meta describes the run that produced a stored snapshot.
type Meta struct {
	Family  string    `json:"family"`
	Device  string    `json:"device,omitempty"`
	RunID   string    `json:"run_id,omitempty"`
	Items   int       `json:"items"`
	Keys    int       `json:"keys"`
	SavedAt time.Time `json:"saved_at"`
}

func snapshotKey(family string) []byte {
	return []byte(familyPrefix + family + "/snapshot")
}

func metaKey(family string) []byte {
	return []byte(familyPrefix + family + "/meta")
}

// SaveFamily stores snap and meta for meta.Family, replacing any previous run.
//
// Description:
//
//	Both records are written in one transaction. A zero SavedAt is set
//	to the current time.
//
// Inputs:
//
//	ctx - Checked before the transaction starts.
//	meta - Run metadata. Family is required and must match snap.Family.
//	snap - The tile database contents.
//
// Outputs:
//
//	error - Non-nil on a family mismatch, encoding or commit failure.
func (d *DB) SaveFamily(ctx context.Context, meta Meta, snap tiledb.Snapshot) error {
	if meta.Family == "" {
		return fmt.Errorf("save snapshot: empty family")
	}
	if snap.Family != meta.Family {
		return fmt.Errorf("save snapshot: snapshot family %q does not match %q", snap.Family, meta.Family)
	}
	if meta.SavedAt.IsZero() {
		meta.SavedAt = time.Now().UTC()
	}

	snapData, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", meta.Family, err)
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode meta %s: %w", meta.Family, err)
	}

	err = d.withTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(snapshotKey(meta.Family), snapData); err != nil {
			return err
		}
		return txn.Set(metaKey(meta.Family), metaData)
	})
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", meta.Family, err)
	}
	d.logger.Debug("snapshot saved",
		slog.String("family", meta.Family),
		slog.Int("items", meta.Items),
		slog.Int("bytes", len(snapData)),
	)
	return nil
}

// LoadFamily returns the stored snapshot and metadata of family.
// It returns ErrFamilyNotFound when nothing has been saved for it.
func (d *DB) LoadFamily(ctx context.Context, family string) (tiledb.Snapshot, Meta, error) {
	var (
		snap tiledb.Snapshot
		meta Meta
	)
	err := d.withReadTxn(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, snapshotKey(family), &snap); err != nil {
			return err
		}
		return getJSON(txn, metaKey(family), &meta)
	})
	if err != nil {
		return tiledb.Snapshot{}, Meta{}, fmt.Errorf("load snapshot %s: %w", family, err)
	}
	return snap, meta, nil
}

// LoadTileDb loads family and rebuilds its tile database.
func (d *DB) LoadTileDb(ctx context.Context, family string) (*tiledb.TileDb, error) {
	snap, _, err := d.LoadFamily(ctx, family)
	if err != nil {
		return nil, err
	}
	db, err := tiledb.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("rebuild %s: %w: %v", family, ErrCorruptSnapshot, err)
	}
	return db, nil
}

// Families lists the metadata of every stored family, sorted by name.
func (d *DB) Families(ctx context.Context) ([]Meta, error) {
	var out []Meta
	err := d.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(familyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if !strings.HasSuffix(string(item.Key()), "/meta") {
				continue
			}
			var m Meta
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return fmt.Errorf("%s: %w: %v", item.Key(), ErrCorruptSnapshot, err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Family < out[j].Family })
	return out, nil
}

// DeleteFamily removes a stored family. Deleting a missing family
// returns ErrFamilyNotFound.
func (d *DB) DeleteFamily(ctx context.Context, family string) error {
	err := d.withTxn(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(metaKey(family)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrFamilyNotFound
			}
			return err
		}
		if err := txn.Delete(snapshotKey(family)); err != nil {
			return err
		}
		return txn.Delete(metaKey(family))
	})
	if err != nil {
		return fmt.Errorf("delete family %s: %w", family, err)
	}
	return nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrFamilyNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		return nil
	})
}
