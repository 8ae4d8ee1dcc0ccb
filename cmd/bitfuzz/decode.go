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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/bitfuzz/pkg/ux"
	"github.com/AleutianAI/bitfuzz/services/hammer/plan"
	"github.com/AleutianAI/bitfuzz/services/hammer/runner"
	"github.com/AleutianAI/bitfuzz/services/hammer/storage/badger"
	"github.com/AleutianAI/bitfuzz/services/hammer/tiledb"
	"github.com/AleutianAI/bitfuzz/services/hammer/watch"
)

type decodeOptions struct {
	plans       []string
	experiments []string
	strict      bool
	parallel    int
	watch       bool
	noSave      bool
}

func (a *app) decodeCmd() *cobra.Command {
	var opts decodeOptions
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Run decode plans against experiment files and store the results",
		Long: `Each --plan is paired with the --experiments flag in the same position.
Pairs run in parallel, one pass per pair. Passes for the same family are
merged into one tile database before it is saved.`,
		Example: `  bitfuzz decode --plan bram.plan.yaml --experiments bram.xc2v40.yaml
  bitfuzz decode --plan clb.yaml --experiments clb.a.yaml --plan clb.yaml --experiments clb.b.yaml --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("strict") {
				opts.strict = a.cfg.Decode.Strict
			}
			if !cmd.Flags().Changed("parallel") {
				opts.parallel = a.cfg.Decode.Parallelism
			}
			return a.runDecode(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.plans, "plan", "p", nil, "decode plan file (repeatable)")
	f.StringArrayVarP(&opts.experiments, "experiments", "e", nil, "experiment file paired with the --plan at the same position (repeatable)")
	f.BoolVar(&opts.strict, "strict", false, "fail families that leave experiments unconsumed")
	f.IntVarP(&opts.parallel, "parallel", "j", 0, "maximum concurrent passes (0 = GOMAXPROCS)")
	f.BoolVarP(&opts.watch, "watch", "w", false, "re-run whenever an input file changes")
	f.BoolVar(&opts.noSave, "no-save", false, "do not write results to the snapshot database")
	_ = cmd.MarkFlagRequired("plan")
	_ = cmd.MarkFlagRequired("experiments")
	return cmd
}

func (opts decodeOptions) validate() error {
	if len(opts.plans) != len(opts.experiments) {
		return fmt.Errorf("got %d --plan and %d --experiments; they must pair up",
			len(opts.plans), len(opts.experiments))
	}
	if len(opts.plans) == 0 {
		return errors.New("at least one --plan/--experiments pair is required")
	}
	return nil
}

func (opts decodeOptions) files() []string {
	out := make([]string, 0, 2*len(opts.plans))
	out = append(out, opts.plans...)
	return append(out, opts.experiments...)
}

func (a *app) runDecode(ctx context.Context, opts decodeOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	err := a.decodeOnce(ctx, opts)
	if !opts.watch {
		return err
	}
	if err != nil && !errors.Is(err, errFamiliesFailed) {
		a.printer.Error(err.Error())
	}

	w, err := watch.New(opts.files(), func(ctx context.Context, changed []string) {
		a.printer.Info(fmt.Sprintf("%s changed %s", strings.Join(changed, ", "), ux.IconArrow))
		if err := a.decodeOnce(ctx, opts); err != nil && !errors.Is(err, errFamiliesFailed) {
			a.printer.Error(err.Error())
		}
	}, watch.Options{
		Debounce: a.cfg.Decode.WatchDebounce,
		Logger:   a.logger.Slog(),
	})
	if err != nil {
		return err
	}
	a.printer.Info(fmt.Sprintf("watching %d files, interrupt to stop", len(w.Files())))
	return w.Run(ctx)
}

// decodeOnce loads every pair, runs the passes, saves and reports.
func (a *app) decodeOnce(ctx context.Context, opts decodeOptions) error {
	jobs, err := loadJobs(opts.plans, opts.experiments)
	if err != nil {
		return err
	}

	r := runner.New(runner.Config{
		Parallelism: opts.parallel,
		Strict:      opts.strict,
		Logger:      a.logger.Slog(),
	})
	results := r.Run(ctx, jobs)

	var saveErr error
	if !opts.noSave {
		saveErr = a.save(ctx, results)
	}

	a.printer.Title("bitfuzz decode")
	rows := reportRows(results)
	a.printer.Report(rows)
	if unread := unconsumed(rows); unread > 0 && !opts.strict {
		a.printer.Warning(fmt.Sprintf("%d experiments never consumed, --strict fails on them", unread))
	}
	if saveErr != nil {
		return saveErr
	}
	if failed := runner.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d", errFamiliesFailed, len(failed), len(results))
	}
	return nil
}

func unconsumed(rows []ux.Row) int {
	n := 0
	for _, r := range rows {
		n += r.Unconsumed
	}
	return n
}

func loadJobs(plans, experiments []string) ([]runner.Job, error) {
	cache := make(map[string]*plan.Plan)
	jobs := make([]runner.Job, 0, len(plans))
	for i := range plans {
		p, ok := cache[plans[i]]
		if !ok {
			var err error
			if p, err = plan.LoadPlan(plans[i]); err != nil {
				return nil, err
			}
			cache[plans[i]] = p
		}
		ef, err := plan.LoadExperiments(experiments[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, runner.Job{Plan: p, Experiments: ef})
	}
	return jobs, nil
}

// save merges successful passes per family and writes one snapshot each.
// Families with any failed pass are not written.
func (a *app) save(ctx context.Context, results []runner.Result) error {
	type family struct {
		db     *tiledb.TileDb
		meta   badger.Meta
		failed bool
	}
	var order []string
	byName := make(map[string]*family)
	for i := range results {
		res := &results[i]
		fam, ok := byName[res.Family]
		if !ok {
			fam = &family{db: tiledb.New(), meta: badger.Meta{Family: res.Family}}
			byName[res.Family] = fam
			order = append(order, res.Family)
		}
		if !res.OK() || res.DB == nil {
			fam.failed = true
			continue
		}
		if err := fam.db.Merge(res.DB); err != nil {
			res.Err = fmt.Errorf("merge into %s: %w", res.Family, err)
			fam.failed = true
			continue
		}
		fam.meta.Device = joinDevice(fam.meta.Device, res.Device)
		fam.meta.RunID = res.RunID
		fam.meta.Keys += res.Keys
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	for _, name := range order {
		fam := byName[name]
		if fam.failed {
			a.logger.Warn("family not saved", slog.String("family", name))
			continue
		}
		fam.meta.Items = fam.db.Len()
		if err := store.SaveFamily(ctx, fam.meta, fam.db.Snapshot(name)); err != nil {
			return err
		}
		a.logger.Info("family saved",
			slog.String("family", name),
			slog.Int("items", fam.meta.Items),
		)
	}
	return nil
}

func joinDevice(have, dev string) string {
	if have == "" {
		return dev
	}
	for _, d := range strings.Split(have, ",") {
		if d == dev {
			return have
		}
	}
	return have + "," + dev
}

func reportRows(results []runner.Result) []ux.Row {
	rows := make([]ux.Row, 0, len(results))
	for _, res := range results {
		rows = append(rows, ux.Row{
			Family:     res.Family,
			Device:     res.Device,
			Items:      res.Items,
			Keys:       res.Keys,
			Unconsumed: len(res.Unconsumed),
			Duration:   res.Duration,
			Err:        res.Err,
		})
	}
	return rows
}
