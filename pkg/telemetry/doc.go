// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry-based observability for bitfuzz.
//
// This package initializes the OTel SDK for tracing and metrics and lets the
// backend be chosen by exporter configuration. Code elsewhere uses the OTel
// API directly (otel.Tracer, otel.Meter); nothing depends on this package
// except the binary that calls Init.
//
// # Traces
//
// "stdout" pretty-prints spans, "otlp" ships them over gRPC to any OTLP
// receiver (Jaeger 1.35+, Tempo, vendors). "none" leaves the global no-op
// provider in place.
//
// # Metrics
//
// Decode runs are short-lived batch jobs, so nothing serves /metrics.
// "prometheus" collects into a private registry that is written to a
// node_exporter textfile on shutdown; "stdout" prints periodic snapshots.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.MetricsFile = "/var/lib/node_exporter/bitfuzz.prom"
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Environment Variables
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: none)
//   - BITFUZZ_ENV: environment name (default: development)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init() returns.
package telemetry
