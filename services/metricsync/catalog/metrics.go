// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("metricsync.catalog")
	meter  = otel.Meter("metricsync.catalog")
)

var (
	fetchAttempts metric.Int64Counter
	tablesFound   metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		fetchAttempts, err = meter.Int64Counter(
			"metricsync_catalog_fetch_attempts_total",
			metric.WithDescription("HTTP attempts made while retrieving the catalog"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tablesFound, err = meter.Int64Histogram(
			"metricsync_catalog_tables",
			metric.WithDescription("Metric tables found per catalog fetch"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startFetchSpan(ctx context.Context, mode, URL string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "catalog.Fetch",
		trace.WithAttributes(
			attribute.String("catalog.mode", mode),
			attribute.String("catalog.url", URL),
		),
	)
}

func recordFetchAttempt(ctx context.Context, status int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	fetchAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", strconv.Itoa(status)),
		attribute.Bool("success", success),
	))
}

func recordTables(ctx context.Context, mode string, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	tablesFound.Record(ctx, int64(n), metric.WithAttributes(attribute.String("mode", mode)))
}
