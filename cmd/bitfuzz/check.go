// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/bitfuzz/services/hammer/plan"
)

func (a *app) checkCmd() *cobra.Command {
	var (
		planPath    string
		experiments []string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a decode plan and optionally its experiment files without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.LoadPlan(planPath)
			if err != nil {
				return err
			}
			for _, path := range experiments {
				ef, err := plan.LoadExperiments(path)
				if err != nil {
					return err
				}
				if err := p.CheckExperiments(ef); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if _, err := ef.Store(); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				a.printer.Success(fmt.Sprintf("%s: %d experiments for %s", path, len(ef.Experiments), ef.Device))
			}
			a.printer.Success(fmt.Sprintf("%s: %d steps for family %s", planPath, len(p.Steps), p.Family))
			return nil
		},
	}
	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "decode plan file")
	cmd.Flags().StringArrayVarP(&experiments, "experiments", "e", nil, "experiment file to check against the plan (repeatable)")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}
