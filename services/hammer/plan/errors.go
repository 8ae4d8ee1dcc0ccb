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
	"errors"
	"fmt"
)

// Sentinel errors for plan and experiment files.
var (
	// ErrInvalidPlan is returned when a decode plan fails validation.
	ErrInvalidPlan = errors.New("invalid decode plan")

	// ErrInvalidExperiment is returned when an experiment file fails
	// validation or names a malformed bit.
	ErrInvalidExperiment = errors.New("invalid experiment")

	// ErrFamilyMismatch is returned when a plan and an experiment file
	// describe different families.
	ErrFamilyMismatch = errors.New("family mismatch")
)

// StepError locates a failure at one plan step.
type StepError struct {
	// Index is the zero-based position of the step in the plan.
	Index int

	// Op is the step's operation.
	Op Op

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}
