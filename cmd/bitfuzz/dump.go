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
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/bitfuzz/pkg/validation"
	"github.com/AleutianAI/bitfuzz/services/hammer/tiledb"
)

func (a *app) dumpCmd() *cobra.Command {
	var (
		family string
		format string
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the stored tile database of a family",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateFamily(family); err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			snap, _, err := store.LoadFamily(cmd.Context(), family)
			if err != nil {
				return err
			}
			return writeSnapshot(a.stdout, snap, format)
		},
	}
	cmd.Flags().StringVarP(&family, "family", "f", "", "family to print")
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	_ = cmd.MarkFlagRequired("family")
	return cmd
}

func writeSnapshot(w io.Writer, snap tiledb.Snapshot, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}

func (a *app) familiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "families",
		Short: "List families in the snapshot database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			metas, err := store.Families(cmd.Context())
			if err != nil {
				return err
			}
			if len(metas) == 0 {
				a.printer.Info("no families stored")
				return nil
			}
			for _, m := range metas {
				a.printer.Info(fmt.Sprintf("%s\t%s\t%s items\t%s",
					m.Family, m.Device, strconv.Itoa(m.Items), m.SavedAt.Format(time.RFC3339)))
			}
			return nil
		},
	}
}
