// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for names that end up as
// database keys or file names.
//
// Tile, bel, attribute and value names come from hand-written plans and
// experiment files. They are stored in TileDb, used as badger key suffixes
// and printed in diagnostics, so whitespace, separators and control
// characters are rejected up front.
package validation

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// namePattern matches tile, bel, attribute and value names.
// Allows: letters, digits and the punctuation used by vendor naming
// (IMUX.0, DATA_WIDTH_A, CLK<0>, BRAM[3], +/-).
// Max length: 128 characters.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.+\-/<>\[\]#!]{1,128}$`)

// familyPattern matches family and device names, which are also used as
// storage keys and file name stems.
var familyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,63}$`)

// validate is the shared validator instance.
// Initialized in init() with the custom "ident" and "family" tags.
var validate *validator.Validate

func init() {
	validate = New()
}

// New returns a validator with the package's custom tags registered.
//
// # Description
//
// Registers:
//   - ident: the field is a valid tile/bel/attribute/value name
//   - family: the field is a valid family or device name
//
// Empty strings fail both tags; combine with omitempty for optional fields.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("family", func(fl validator.FieldLevel) bool {
		return familyPattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates s against its `validate` tags using the shared
// validator.
func Struct(s any) error {
	return validate.Struct(s)
}

// ValidateName validates a tile, bel, attribute or value name.
//
// what names the field in the error, e.g. "attr".
//
// Example:
//
//	if err := validation.ValidateName("tile", tile); err != nil {
//	    return fmt.Errorf("invalid step: %w", err)
//	}
func ValidateName(what, name string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid %s: %q (must be 1-128 letters, digits or _.+-/<>[]#!)", what, name)
	}
	return nil
}

// ValidateFamily validates a family or device name.
func ValidateFamily(name string) error {
	if !familyPattern.MatchString(name) {
		return fmt.Errorf("invalid family: %q (must be 1-64 lowercase letters, digits, _ or -)", name)
	}
	return nil
}
