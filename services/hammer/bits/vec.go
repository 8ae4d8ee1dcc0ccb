// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bits

import (
	"fmt"
	"strings"
)

// Vec is a fixed-width boolean vector. Index 0 is the least significant
// position.
type Vec []bool

// NewVec returns an all-false vector of the given width.
func NewVec(width int) Vec {
	return make(Vec, width)
}

// RepeatVec returns a vector of the given width with every position set to v.
func RepeatVec(v bool, width int) Vec {
	res := make(Vec, width)
	for i := range res {
		res[i] = v
	}
	return res
}

// VecFromUint returns the low width bits of n.
func VecFromUint(n uint64, width int) Vec {
	res := make(Vec, width)
	for i := 0; i < width && i < 64; i++ {
		res[i] = n&(1<<uint(i)) != 0
	}
	return res
}

// ParseVec parses a most-significant-first string of '0' and '1'.
//
// ParseVec("0110") yields a vector with positions 1 and 2 set.
func ParseVec(s string) (Vec, error) {
	s = strings.TrimSpace(s)
	res := make(Vec, len(s))
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			res[len(s)-1-i] = true
		default:
			return nil, fmt.Errorf("parse bit vector %q: invalid digit %q", s, c)
		}
	}
	return res, nil
}

// FitsUint reports whether n has no set bit at or above width.
func FitsUint(n uint64, width int) bool {
	if width >= 64 {
		return true
	}
	return n>>uint(width) == 0
}

// Uint returns the vector as an unsigned integer. Positions at 64 and above
// are ignored.
func (v Vec) Uint() uint64 {
	var n uint64
	for i, b := range v {
		if b && i < 64 {
			n |= 1 << uint(i)
		}
	}
	return n
}

// Clone returns an independent copy of v.
func (v Vec) Clone() Vec {
	if v == nil {
		return nil
	}
	res := make(Vec, len(v))
	copy(res, v)
	return res
}

// Equal reports whether v and o have the same width and contents.
// A nil vector equals an empty one.
func (v Vec) Equal(o Vec) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Any reports whether any position is set.
func (v Vec) Any() bool {
	for _, b := range v {
		if b {
			return true
		}
	}
	return false
}

// String renders the vector most-significant first, e.g. "0110".
func (v Vec) String() string {
	var sb strings.Builder
	sb.Grow(len(v))
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler using the String form.
func (v Vec) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Vec) UnmarshalText(text []byte) error {
	parsed, err := ParseVec(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
