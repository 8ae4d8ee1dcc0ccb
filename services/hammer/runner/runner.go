// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner decodes device families in parallel.
//
// Each Job is one family: its experiment file and its decode plan. Jobs
// share nothing, so they run as independent goroutines, each with its own
// Store, TileDb and Collector. A failing or panicking family is recorded
// in its Result and never stops its siblings.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/bitfuzz/pkg/telemetry"
	"github.com/AleutianAI/bitfuzz/services/hammer/collect"
	"github.com/AleutianAI/bitfuzz/services/hammer/plan"
	"github.com/AleutianAI/bitfuzz/services/hammer/tiledb"
)

// Job is one family decode pass.
type Job struct {
	Plan        *plan.Plan
	Experiments *plan.ExperimentFile
}

// Result is the outcome of one Job.
type Result struct {
	// RunID identifies this pass in logs and traces.
	RunID string

	Family string
	Device string

	// DB holds every item committed before the pass ended. On failure it
	// is partial.
	DB *tiledb.TileDb

	// Items is the number of committed items.
	Items int

	// Keys is the number of distinct experiments recorded.
	Keys int

	// Unconsumed lists experiments no step read.
	Unconsumed []collect.DiffKey

	Duration time.Duration

	// Err is nil when the pass succeeded.
	Err error
}

// OK reports whether the pass succeeded.
func (r *Result) OK() bool {
	return r.Err == nil
}

// Config configures a Runner.
type Config struct {
	// Parallelism caps concurrent passes. <= 0 means GOMAXPROCS.
	Parallelism int

	// Strict fails a pass that leaves experiments unconsumed.
	Strict bool

	// Logger receives per-family progress. nil uses slog.Default().
	Logger *slog.Logger
}

// Runner executes Jobs.
//
// Thread Safety: Run may be called concurrently.
type Runner struct {
	cfg    Config
	logger *slog.Logger

	// execute runs a plan; tests replace it.
	execute func(ctx context.Context, p *plan.Plan, c *collect.Collector, logger *slog.Logger) error
}

// New creates a Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	return &Runner{cfg: cfg, logger: logger, execute: plan.Execute}
}

// Run decodes every job and returns their results in job order.
//
// # Description
//
// Jobs run on an errgroup limited to Config.Parallelism. Job failures are
// recorded in their Result, never returned to the group, so every job
// runs to completion. Cancelling ctx stops passes between decode steps;
// jobs that never started report the context error.
//
// # Inputs
//
//   - ctx: Cancellation for the whole run.
//   - jobs: One job per family.
//
// # Outputs
//
//   - []Result: len(jobs) results, results[i] belongs to jobs[i].
func (r *Runner) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	for i := range jobs {
		g.Go(func() error {
			results[i] = r.runJob(gctx, jobs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runJob executes one pass, converting panics into errors.
func (r *Runner) runJob(ctx context.Context, job Job) (res Result) {
	res.RunID = uuid.NewString()
	if job.Plan != nil {
		res.Family = job.Plan.Family
	}
	if job.Experiments != nil {
		res.Device = job.Experiments.Device
	}

	ctx, span := startDecodeSpan(ctx, &res)
	logger := telemetry.LoggerWithTrace(ctx, r.logger).With(
		"family", res.Family, "device", res.Device, "run_id", res.RunID,
	)
	recordDecodeStart(ctx, res.Family)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%w: %v", ErrPanic, p)
			logger.Error("decode pass panicked", "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
		}
		res.Duration = time.Since(start)
		if res.DB != nil {
			res.Items = res.DB.Len()
		}

		setDecodeSpanResult(span, &res)
		if res.Err != nil {
			telemetry.RecordError(span, res.Err)
			logger.Error("family decode failed", "duration", res.Duration, "error", res.Err)
		} else {
			telemetry.SetSpanOK(span)
			logger.Info("family decoded", "duration", res.Duration, "items", res.Items, "keys", res.Keys)
		}
		span.End()
		recordDecodeMetrics(ctx, &res)
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if job.Plan == nil || job.Experiments == nil {
		res.Err = fmt.Errorf("%w: need a plan and experiments", ErrInvalidJob)
		return res
	}
	if err := job.Plan.CheckExperiments(job.Experiments); err != nil {
		res.Err = err
		return res
	}

	store, err := job.Experiments.Store()
	if err != nil {
		res.Err = err
		return res
	}
	res.Keys = store.Len()
	res.DB = tiledb.New()
	c := collect.New(store, res.DB, res.Device, logger)

	logger.Info("family decode started", "steps", len(job.Plan.Steps), "keys", res.Keys)
	if err := r.execute(ctx, job.Plan, c, logger); err != nil {
		res.Err = err
		return res
	}

	report := c.Finish()
	res.Unconsumed = report.Unconsumed
	if r.cfg.Strict {
		res.Err = report.Err()
	}
	return res
}

// Failed returns the results that did not succeed.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}
