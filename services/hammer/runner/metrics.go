// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for decode runs.
var (
	tracer = otel.Tracer("bitfuzz.runner")
	meter  = otel.Meter("bitfuzz.runner")
)

// Metrics for family decode passes.
var (
	decodeLatency   metric.Float64Histogram
	decodeTotal     metric.Int64Counter
	itemsDecoded    metric.Int64Histogram
	unconsumedTotal metric.Int64Counter
	decodesInFlight metric.Int64UpDownCounter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		decodeLatency, err = meter.Float64Histogram(
			"bitfuzz_decode_duration_seconds",
			metric.WithDescription("Duration of one family decode pass"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120),
		)
		if err != nil {
			metricsErr = err
			return
		}

		decodeTotal, err = meter.Int64Counter(
			"bitfuzz_decode_total",
			metric.WithDescription("Family decode passes by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		itemsDecoded, err = meter.Int64Histogram(
			"bitfuzz_decode_items",
			metric.WithDescription("Items committed per decode pass"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unconsumedTotal, err = meter.Int64Counter(
			"bitfuzz_decode_unconsumed_total",
			metric.WithDescription("Experiments no decode step read"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		decodesInFlight, err = meter.Int64UpDownCounter(
			"bitfuzz_decode_in_flight",
			metric.WithDescription("Family decode passes currently running"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordDecodeStart counts a pass as in flight.
func recordDecodeStart(ctx context.Context, family string) {
	if err := initMetrics(); err != nil {
		return
	}
	decodesInFlight.Add(ctx, 1, metric.WithAttributes(attribute.String("family", family)))
}

// recordDecodeMetrics records the outcome of a finished pass.
func recordDecodeMetrics(ctx context.Context, res *Result) {
	if err := initMetrics(); err != nil {
		return
	}

	fam := attribute.String("family", res.Family)
	attrs := metric.WithAttributes(fam, attribute.Bool("success", res.Err == nil))

	decodesInFlight.Add(ctx, -1, metric.WithAttributes(fam))
	decodeLatency.Record(ctx, res.Duration.Seconds(), attrs)
	decodeTotal.Add(ctx, 1, attrs)
	if res.Err == nil {
		itemsDecoded.Record(ctx, int64(res.Items), metric.WithAttributes(fam))
	}
	if n := len(res.Unconsumed); n > 0 {
		unconsumedTotal.Add(ctx, int64(n), metric.WithAttributes(fam))
	}
}

// startDecodeSpan creates the span of one family pass.
func startDecodeSpan(ctx context.Context, res *Result) (context.Context, trace.Span) {
	return tracer.Start(ctx, "bitfuzz.family.decode",
		trace.WithAttributes(
			attribute.String("bitfuzz.family", res.Family),
			attribute.String("bitfuzz.device", res.Device),
			attribute.String("bitfuzz.run_id", res.RunID),
		),
	)
}

// setDecodeSpanResult sets the result attributes on a decode span.
func setDecodeSpanResult(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.Int("bitfuzz.items", res.Items),
		attribute.Int("bitfuzz.keys", res.Keys),
		attribute.Int("bitfuzz.unconsumed", len(res.Unconsumed)),
	)
}
