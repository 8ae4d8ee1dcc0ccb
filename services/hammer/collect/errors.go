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
	"errors"
	"strings"
)

// Sentinel errors for collection.
var (
	// ErrMissingDiff is returned when a key was never recorded or has
	// already been consumed.
	ErrMissingDiff = errors.New("missing diff")

	// ErrAlreadyConsumed is returned by Store.Add for a consumed key.
	ErrAlreadyConsumed = errors.New("diff already consumed")

	// ErrAllEmpty is returned by Collect* when every experiment of an
	// attribute had no effect. Callers that expect a constant attribute
	// insert the extracted item themselves.
	ErrAllEmpty = errors.New("all experiments empty")

	// ErrUnknownItem is returned when a composition step references an
	// attribute that has not been inserted yet.
	ErrUnknownItem = errors.New("item not in database")

	// ErrUnconsumedDiffs is returned by Report.Err when experiments were
	// never used by any decode step.
	ErrUnconsumedDiffs = errors.New("unconsumed diffs")
)

// DecodeError locates a failure at one attribute.
type DecodeError struct {
	Tile string
	Bel  string
	Attr string

	// Key is the experiment being read, if any.
	Key DiffKey

	// Err is the underlying failure. errors.Is reaches the sentinel.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	var sb strings.Builder
	sb.WriteString("decode ")
	sb.WriteString(e.Tile)
	sb.WriteByte(':')
	sb.WriteString(e.Bel)
	sb.WriteByte(':')
	sb.WriteString(e.Attr)
	if e.Key != nil {
		sb.WriteString(" [")
		sb.WriteString(e.Key.String())
		sb.WriteByte(']')
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

func wrapKey(k DiffKey, err error) error {
	if err == nil {
		return nil
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	tile, bel, attr := k.Scope()
	return &DecodeError{Tile: tile, Bel: bel, Attr: attr, Key: k, Err: err}
}

func wrapAttr(tile, bel, attr string, err error) error {
	if err == nil {
		return nil
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Tile: tile, Bel: bel, Attr: attr, Err: err}
}
