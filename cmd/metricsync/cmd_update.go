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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/metricsync/pkg/ux"
	"github.com/AleutianAI/metricsync/services/metricsync/catalog"
	"github.com/AleutianAI/metricsync/services/metricsync/pipeline"
	"github.com/AleutianAI/metricsync/services/metricsync/storage"
)

// maxListed caps the orphans and malformed rows printed in human output.
const maxListed = 10

func (c *cli) updateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Merge the published metric catalog into the CSV",
		Long: `Reads the CSV, fetches the published catalog, merges both and replaces
the CSV atomically. The prior file is backed up first unless --no-backup is
given or backups are disabled in the config.

Examples:
  metricsync update
  metricsync update --input ./azure_monitoring.csv --dry-run
  metricsync update --mode index_detail --json

Exit Codes:
  0 = CSV refreshed (or dry run completed)
  2 = Error (schema mismatch, catalog drift, fetch or write failure);
      the CSV is left unchanged`,
		Args: cobra.NoArgs,
		RunE: c.runUpdate,
	}
	cmd.Flags().StringVarP(&c.input, "input", "i", "", "Prior CSV path or URL")
	cmd.Flags().StringVarP(&c.output, "output", "o", "", "Output CSV path or URL (default: overwrite input)")
	cmd.Flags().StringVar(&c.mode, "mode", "", "Catalog mode: single_page or index_detail")
	cmd.Flags().BoolVar(&c.dryRun, "dry-run", false, "Run every stage but do not write")
	cmd.Flags().BoolVar(&c.noBackup, "no-backup", false, "Do not back up the prior output")
	return cmd
}

func (c *cli) runUpdate(cmd *cobra.Command, _ []string) error {
	start := time.Now()
	ctx := cmd.Context()

	inEnc, outEnc, err := c.cfg.Encodings()
	if err != nil {
		return err
	}
	fetcher, err := c.cfg.NewFetcher(c.httpClient, c.logger.Slog())
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Input:          c.cfg.Input.Location,
		Output:         c.cfg.OutputLocation(),
		InputEncoding:  inEnc,
		OutputEncoding: outEnc,
		Fetcher:        fetcher,
		Clean:          c.cfg.CleanOptions(),
		Store:          c.store,
		DryRun:         c.dryRun,
		Logger:         c.logger.Slog(),
	}
	if c.cfg.Backup.Enabled && !c.noBackup {
		opts.Backups = storage.NewBackupManager(c.store, c.cfg.BackupOptions())
	}

	summary, runErr := pipeline.Run(ctx, opts)
	c.exitCode = OutputResult(c.stdout, c.outputConfig(), "update", start, summary, false, runErr)
	if c.jsonOut {
		return nil
	}
	if runErr != nil {
		title, detail := describeFailure(runErr)
		c.printer.ErrorBox(title, detail+"\n\n"+c.cfg.OutputLocation()+" was not modified.")
		return nil
	}
	c.renderSummary(summary)
	return nil
}

func (c *cli) renderSummary(s *pipeline.Summary) {
	p := c.printer
	p.Title("metricsync update")
	p.KeyValue("Input", s.Input)
	p.KeyValue("Output", s.Output)
	p.KeyValue("Mode", s.Mode)
	p.KeyValue("Schema", s.Schema)
	p.KeyValue("Run ID", s.RunID)
	if s.BackupURL != "" {
		p.KeyValue("Backup", s.BackupURL)
	}

	for i, o := range s.Orphaned {
		if i == maxListed {
			p.Warning(fmt.Sprintf("... and %d more", len(s.Orphaned)-maxListed))
			break
		}
		p.Warning(fmt.Sprintf("%s/%s (line %d) is no longer published; its settings were dropped", o.ResourceType, o.MetricID, o.Line))
	}
	for i, m := range s.Malformed {
		if i == maxListed {
			p.Warning(fmt.Sprintf("... and %d more malformed rows", len(s.Malformed)-maxListed))
			break
		}
		p.Warning("skipped " + m.Error())
	}
	for _, key := range s.DuplicateKeys {
		p.Warning(key + " is listed more than once in the catalog")
	}

	p.Summary([]ux.Stat{
		{Label: "resource types", Value: s.ResourceTypes},
		{Label: "metrics", Value: s.Records},
		{Label: "rows", Value: s.Rows},
		{Label: "configured", Value: s.Configured, Status: ux.IconSuccess},
		{Label: "new", Value: s.Unmatched},
		{Label: "orphaned", Value: len(s.Orphaned), Status: ux.IconWarning},
		{Label: "malformed", Value: len(s.Malformed), Status: ux.IconWarning},
	})

	elapsed := s.Elapsed.Round(time.Millisecond)
	switch {
	case s.Written:
		p.Success(fmt.Sprintf("Wrote %d rows to %s in %s", s.Rows, s.Output, elapsed))
	case s.DryRun:
		p.Box("Dry run", fmt.Sprintf("%d rows (%d bytes) not written to %s\nElapsed %s", s.Rows, s.Bytes, s.Output, elapsed))
	}
}

func (c *cli) checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fetch the catalog and check it for drift without writing",
		Long: `Fetches and parses the published catalog and runs every drift check.
Nothing is read from or written to the CSV.

Exit Codes:
  0 = Catalog matches the configured headings and layouts
  1 = Catalog drift detected
  2 = Error (network, configuration)`,
		Args: cobra.NoArgs,
		RunE: c.runCheck,
	}
	cmd.Flags().StringVar(&c.mode, "mode", "", "Catalog mode: single_page or index_detail")
	return cmd
}

func (c *cli) runCheck(cmd *cobra.Command, _ []string) error {
	start := time.Now()

	fetcher, err := c.cfg.NewFetcher(c.httpClient, c.logger.Slog())
	if err != nil {
		return err
	}
	result, checkErr := pipeline.Check(cmd.Context(), fetcher, c.cfg.CleanOptions(), c.logger.Slog())

	var drift *catalog.DriftError
	isDrift := errors.As(checkErr, &drift)
	c.exitCode = OutputResult(c.stdout, c.outputConfig(), "check", start, result, isDrift, checkErr)
	if c.jsonOut {
		return nil
	}

	if checkErr != nil {
		title, detail := describeFailure(checkErr)
		c.printer.ErrorBox(title, detail)
		return nil
	}
	c.printer.Title("metricsync check")
	c.printer.KeyValue("Mode", result.Mode)
	for _, m := range result.Malformed {
		c.printer.Warning("skipped " + m.Error())
	}
	c.printer.Summary([]ux.Stat{
		{Label: "pages", Value: result.Pages},
		{Label: "resource types", Value: result.ResourceTypes},
		{Label: "metrics", Value: result.Records},
		{Label: "malformed", Value: len(result.Malformed), Status: ux.IconWarning},
	})
	c.printer.Success("Catalog matches the configured layouts")
	return nil
}
