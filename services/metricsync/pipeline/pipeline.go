// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs one reconciliation of the monitoring CSV.
//
// Stages run in order and hand immutable results to the next one:
//
//	read prior CSV → extract settings → fetch catalog → parse catalog →
//	reconcile → render → backup → atomic write
//
// Any fatal error (schema, drift, retrieval, storage) stops the run before
// the write, so the prior file is left as it was.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/AleutianAI/metricsync/services/metricsync/catalog"
	"github.com/AleutianAI/metricsync/services/metricsync/csvio"
	"github.com/AleutianAI/metricsync/services/metricsync/model"
	"github.com/AleutianAI/metricsync/services/metricsync/reconcile"
	"github.com/AleutianAI/metricsync/services/metricsync/settings"
	"github.com/AleutianAI/metricsync/services/metricsync/storage"
	"github.com/AleutianAI/metricsync/services/metricsync/telemetry"
)

var (
	// ErrNoFetcher is returned when Options.Fetcher is nil.
	ErrNoFetcher = errors.New("pipeline: no catalog fetcher")

	// ErrNoInput is returned when Options.Input is empty.
	ErrNoInput = errors.New("pipeline: no input location")
)

// Options configures one run.
type Options struct {
	// Input is the prior CSV, as a path or afs URL.
	Input string

	// Output is where the refreshed CSV goes. Empty overwrites Input.
	Output string

	// InputEncoding and OutputEncoding default to UTF-8 when nil.
	InputEncoding  encoding.Encoding
	OutputEncoding encoding.Encoding

	Fetcher catalog.Fetcher
	Clean   catalog.CleanOptions

	// Store defaults to a local afs store.
	Store *storage.Store

	// Backups, when set, copies the prior output before it is replaced.
	Backups *storage.BackupManager

	// DryRun runs every stage except backup and write.
	DryRun bool

	Logger *slog.Logger
}

// Orphan is a configured row whose metric is no longer in the catalog.
type Orphan struct {
	ResourceType string `json:"resource_type"`
	MetricID     string `json:"metric"`
	Line         int    `json:"line"`
}

// Summary reports what a run did.
type Summary struct {
	RunID  string `json:"run_id"`
	Mode   string `json:"mode"`
	Input  string `json:"input"`
	Output string `json:"output"`

	// Schema is the schema of the prior file ("current" or "legacy").
	Schema     string         `json:"schema"`
	Extraction settings.Stats `json:"extraction"`

	CatalogPages  int `json:"catalog_pages"`
	ResourceTypes int `json:"resource_types"`
	Records       int `json:"records"`

	Malformed []catalog.MalformedRowError `json:"malformed,omitempty"`

	Matched    int `json:"matched"`
	Unmatched  int `json:"unmatched"`
	Rows       int `json:"rows"`
	Configured int `json:"configured"`

	Orphaned      []Orphan `json:"orphaned,omitempty"`
	DuplicateKeys []string `json:"duplicate_keys,omitempty"`

	Bytes     int    `json:"bytes"`
	BackupURL string `json:"backup_url,omitempty"`
	DryRun    bool   `json:"dry_run"`
	Written   bool   `json:"written"`

	StartedAt      time.Time     `json:"started_at"`
	Elapsed        time.Duration `json:"-"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
}

// HasAnomalies reports whether the run found orphaned configuration,
// malformed catalog rows or duplicate catalog keys.
func (s *Summary) HasAnomalies() bool {
	return len(s.Orphaned) > 0 || len(s.Malformed) > 0 || len(s.DuplicateKeys) > 0
}

// Run executes the full pipeline.
//
// # Description
//
// Reads and decodes the prior CSV, extracts its settings, fetches and
// parses the catalog, merges both and, unless DryRun is set, backs up the
// prior output and replaces it atomically. The returned Summary is
// populated as far as the run got, so callers can report partial progress
// alongside an error.
//
// # Inputs
//
//   - ctx: Context for cancellation; cancelling before the write leaves the
//     output untouched
//   - opts: Run options
//
// # Outputs
//
//   - *Summary: Never nil
//   - error: *settings.ConfigSchemaError, *catalog.DriftError,
//     *catalog.RetrievalError, or a wrapped storage error
//
// # Example
//
//	summary, err := pipeline.Run(ctx, pipeline.Options{
//	    Input:   "./azure_monitoring.csv",
//	    Fetcher: fetcher,
//	})
//	if err != nil {
//	    return err // the prior file is unchanged
//	}
//	fmt.Printf("%d rows in %s\n", summary.Rows, summary.Elapsed)
func Run(ctx context.Context, opts Options) (*Summary, error) {
	opts = withDefaults(opts)
	started := time.Now()
	summary := &Summary{
		RunID:     uuid.NewString(),
		Input:     opts.Input,
		Output:    opts.Output,
		DryRun:    opts.DryRun,
		StartedAt: started,
	}

	ctx, span := tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(
			attribute.String("run.id", summary.RunID),
			attribute.String("run.input", opts.Input),
			attribute.Bool("run.dry_run", opts.DryRun),
		),
	)
	defer span.End()
	logger := telemetry.LoggerWithTrace(ctx, opts.Logger).With(slog.String("run_id", summary.RunID))

	err := run(ctx, opts, summary, logger)

	summary.Elapsed = time.Since(started)
	summary.ElapsedSeconds = summary.Elapsed.Seconds()
	outcome := "success"
	if err != nil {
		outcome = "failure"
		telemetry.RecordError(span, err)
		logger.Error("run failed", slog.String("error", err.Error()), slog.Duration("elapsed", summary.Elapsed))
	} else {
		span.SetStatus(codes.Ok, "")
		recordSummary(ctx, summary)
		logger.Info("run complete",
			slog.Int("rows", summary.Rows),
			slog.Int("configured", summary.Configured),
			slog.Int("orphaned", len(summary.Orphaned)),
			slog.Bool("written", summary.Written),
			slog.Duration("elapsed", summary.Elapsed),
		)
	}
	recordRun(ctx, summary.Mode, outcome, summary.Elapsed)
	return summary, err
}

func run(ctx context.Context, opts Options, summary *Summary, logger *slog.Logger) error {
	if opts.Input == "" {
		return ErrNoInput
	}
	if opts.Fetcher == nil {
		return ErrNoFetcher
	}

	groups, err := extractStage(ctx, opts, summary, logger)
	if err != nil {
		return err
	}

	parsed, err := catalogStage(ctx, opts.Fetcher, opts.Clean, summary, logger)
	if err != nil {
		return err
	}

	result := reconcile.Reconcile(parsed.Records, groups)
	if err := result.Verify(); err != nil {
		return err
	}
	summary.Matched = result.Matched
	summary.Unmatched = result.Unmatched
	summary.Rows = len(result.Rows)
	summary.Configured = result.Configured()
	for _, row := range result.Orphaned {
		summary.Orphaned = append(summary.Orphaned, Orphan{
			ResourceType: row.Key.ResourceType,
			MetricID:     row.Key.MetricID,
			Line:         row.Line,
		})
		logger.Warn("configured metric no longer published",
			slog.String("key", row.Key.String()),
			slog.Int("line", row.Line),
		)
	}
	for _, key := range result.DuplicateKeys {
		summary.DuplicateKeys = append(summary.DuplicateKeys, key.String())
		logger.Warn("metric listed more than once in catalog", slog.String("key", key.String()))
	}

	text, err := csvio.Render(result.Rows)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	payload, err := storage.Encode(text, opts.OutputEncoding)
	if err != nil {
		return err
	}
	summary.Bytes = len(payload)

	if opts.DryRun {
		logger.Info("dry run, output not written", slog.String("output", opts.Output))
		return nil
	}
	return writeStage(ctx, opts, payload, summary, logger)
}

func extractStage(ctx context.Context, opts Options, summary *Summary, logger *slog.Logger) (*settings.Groups, error) {
	ctx, span := tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	text, err := opts.Store.ReadText(ctx, opts.Input, opts.InputEncoding)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	table, err := csvio.ReadTable(bytes.NewReader(text))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("read %s: %w", opts.Input, err)
	}
	groups, stats, err := settings.Extract(table)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%s: %w", opts.Input, err)
	}

	summary.Schema = stats.Schema.String()
	summary.Extraction = stats
	span.SetAttributes(
		attribute.String("schema", summary.Schema),
		attribute.Int("rows.scanned", stats.RowsScanned),
		attribute.Int("rows.configured", stats.RowsWithSettings),
	)
	logger.Info("prior settings extracted",
		slog.String("schema", summary.Schema),
		slog.Int("rows", stats.RowsScanned),
		slog.Int("configured", stats.RowsWithSettings),
		slog.Int("keys", stats.Keys),
	)
	if stats.Schema == model.SchemaLegacy {
		logger.Info("legacy file will be written with the Alert Name column")
	}
	return groups, nil
}

func catalogStage(ctx context.Context, fetcher catalog.Fetcher, clean catalog.CleanOptions, summary *Summary, logger *slog.Logger) (*catalog.ParseResult, error) {
	raw, err := fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	summary.Mode = raw.Mode
	summary.CatalogPages = raw.Pages
	summary.ResourceTypes = len(raw.Tables)

	parsed, err := catalog.Parse(raw, clean)
	if err != nil {
		return nil, err
	}
	summary.Records = len(parsed.Records)
	summary.Malformed = parsed.Malformed
	for _, m := range parsed.Malformed {
		logger.Warn("malformed catalog row skipped", slog.String("error", m.Error()))
	}
	logger.Info("catalog parsed",
		slog.String("mode", raw.Mode),
		slog.Int("pages", raw.Pages),
		slog.Int("resource_types", len(raw.Tables)),
		slog.Int("metrics", len(parsed.Records)),
	)
	return parsed, nil
}

func writeStage(ctx context.Context, opts Options, payload []byte, summary *Summary, logger *slog.Logger) error {
	ctx, span := tracer.Start(ctx, "pipeline.write",
		trace.WithAttributes(attribute.String("output", opts.Output)),
	)
	defer span.End()

	if opts.Backups != nil {
		backupURL, err := opts.Backups.BackupBeforeOverwrite(ctx, opts.Output)
		if err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		summary.BackupURL = backupURL
		if backupURL != "" {
			logger.Info("prior output backed up", slog.String("backup", backupURL))
		}
	}

	if err := opts.Store.WriteAtomic(ctx, opts.Output, payload); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	summary.Written = true
	span.SetAttributes(attribute.Int("bytes", len(payload)))
	return nil
}

// CheckResult reports a catalog check.
type CheckResult struct {
	Mode          string                      `json:"mode"`
	Pages         int                         `json:"pages"`
	ResourceTypes int                         `json:"resource_types"`
	Records       int                         `json:"records"`
	Malformed     []catalog.MalformedRowError `json:"malformed,omitempty"`
}

// Check fetches and parses the catalog without touching any file.
//
// A *catalog.DriftError means the published reference changed shape and an
// update would refuse to write.
func Check(ctx context.Context, fetcher catalog.Fetcher, clean catalog.CleanOptions, logger *slog.Logger) (*CheckResult, error) {
	if fetcher == nil {
		return nil, ErrNoFetcher
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, span := tracer.Start(ctx, "pipeline.Check")
	defer span.End()

	summary := &Summary{}
	if _, err := catalogStage(ctx, fetcher, clean, summary, logger); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &CheckResult{
		Mode:          summary.Mode,
		Pages:         summary.CatalogPages,
		ResourceTypes: summary.ResourceTypes,
		Records:       summary.Records,
		Malformed:     summary.Malformed,
	}, nil
}

func withDefaults(opts Options) Options {
	if opts.Output == "" {
		opts.Output = opts.Input
	}
	if opts.InputEncoding == nil {
		opts.InputEncoding = unicode.UTF8
	}
	if opts.OutputEncoding == nil {
		opts.OutputEncoding = unicode.UTF8
	}
	if opts.Store == nil {
		opts.Store = storage.NewStore(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}
