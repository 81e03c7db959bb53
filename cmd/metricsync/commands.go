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
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/metricsync/pkg/logging"
	"github.com/AleutianAI/metricsync/pkg/ux"
	"github.com/AleutianAI/metricsync/services/metricsync/catalog"
	"github.com/AleutianAI/metricsync/services/metricsync/config"
	"github.com/AleutianAI/metricsync/services/metricsync/storage"
	"github.com/AleutianAI/metricsync/services/metricsync/telemetry"
)

// cli holds flag values and the resources shared by all commands.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	// Persistent flags
	configPath  string
	personality string
	logLevel    string
	jsonOut     bool
	compact     bool
	quiet       bool

	// update / check flags
	input    string
	output   string
	mode     string
	dryRun   bool
	noBackup bool

	cfg      *config.Config
	store    *storage.Store
	logger   *logging.Logger
	printer  *ux.Printer
	shutdown func(context.Context) error

	// httpClient overrides the instrumented default client.
	httpClient catalog.HTTPClient

	exitCode int
}

// execute runs the CLI with args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil && c.logger != nil {
		c.logger.Error("command failed", "error", err)
	}
	c.close()
	if err != nil {
		if c.jsonOut {
			OutputResult(stdout, c.outputConfig(), root.Name(), time.Now(), nil, false, err)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return CLIExitError
	}
	return c.exitCode
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "metricsync",
		Short: "Refresh azure_monitoring.csv from the Azure Monitor supported-metrics reference",
		Long: `metricsync merges the per-metric alert settings kept in azure_monitoring.csv
with the metric catalog Microsoft publishes for Azure Monitor.

Metrics added upstream appear with empty settings, retired metrics are
dropped (their settings are reported), and every configured threshold is
carried over. If the published reference changes shape the run stops and
the CSV is left untouched.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "",
		"Path or URL of the YAML config (default $METRICSYNC_CONFIG)")
	root.PersistentFlags().StringVar(&c.personality, "personality", "",
		"Output style: standard, minimal, machine (default: detected)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false,
		"Output as JSON")
	root.PersistentFlags().BoolVar(&c.compact, "compact", false,
		"Print JSON on one line (with --json)")
	root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false,
		"Print nothing on stdout; report through the exit code")

	root.AddCommand(c.updateCmd())
	root.AddCommand(c.checkCmd())
	root.AddCommand(c.configCmd())
	root.AddCommand(c.backupsCmd())
	return root
}

// setup loads the configuration and starts logging and telemetry.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	c.store = storage.NewStore(nil)

	cfg, err := config.Load(ctx, c.store, c.configPath)
	if err != nil {
		return err
	}
	if c.input != "" {
		cfg.Input.Location = c.input
	}
	if c.output != "" {
		cfg.Output.Location = c.output
	}
	if c.mode != "" {
		cfg.Catalog.Mode = c.mode
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	c.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "metricsync",
		JSON:    cfg.Logging.JSON,
		Output:  c.stderr,
	}).With("command", cmd.CommandPath())
	c.logger.Debug("configuration loaded",
		"config", c.configPath,
		"input", cfg.Input.Location,
		"output", cfg.OutputLocation(),
		"mode", cfg.Catalog.Mode,
	)

	c.shutdown, err = telemetry.Init(ctx, cfg.Telemetry, c.stderr)
	if err != nil {
		return err
	}

	uxLevel := ux.ParsePersonalityLevel(c.personality)
	if c.personality == "" {
		uxLevel = ux.PersonalityMachine
		if f, ok := c.stdout.(*os.File); ok {
			uxLevel = ux.DetectLevel(f)
		}
	}
	out := c.stdout
	if c.quiet {
		out = io.Discard
	}
	c.printer = ux.NewPrinter(out, c.stderr, uxLevel)
	return nil
}

// close flushes telemetry and closes the log file.
func (c *cli) close() {
	if c.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.shutdown(ctx); err != nil && c.logger != nil {
			c.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
	if c.logger != nil {
		_ = c.logger.Close()
	}
}

func (c *cli) outputConfig() OutputConfig {
	return OutputConfig{JSON: c.jsonOut, Compact: c.compact, Quiet: c.quiet}
}

// describeFailure turns a fatal error into a title and detail for the
// human-readable error box.
func describeFailure(err error) (string, string) {
	var drift *catalog.DriftError
	var retrieval *catalog.RetrievalError
	switch {
	case errors.As(err, &drift):
		detail := drift.Detail
		if len(drift.Expected) > 0 || len(drift.Found) > 0 {
			detail += fmt.Sprintf("\nexpected: %q\nfound:    %q", drift.Expected, drift.Found)
		}
		if drift.Source != "" {
			detail += "\nsource:   " + drift.Source
		}
		return "Catalog drift (" + string(drift.Kind) + ")", detail
	case errors.As(err, &retrieval):
		return "Catalog unreachable", err.Error()
	default:
		return "Run failed", err.Error()
	}
}
