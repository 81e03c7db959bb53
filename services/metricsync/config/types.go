// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the metricsync YAML configuration.
//
// Values are resolved in order: DefaultConfig, the YAML file, environment
// variables, then CLI flags applied by the caller. The result is checked
// with go-playground/validator before use.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/encoding"

	"github.com/AleutianAI/metricsync/services/metricsync/catalog"
	"github.com/AleutianAI/metricsync/services/metricsync/storage"
	"github.com/AleutianAI/metricsync/services/metricsync/telemetry"
)

// CurrentConfigVersion is written to new config files.
const CurrentConfigVersion = "1"

// Config is the complete metricsync configuration.
type Config struct {
	Meta      MetaConfig       `yaml:"meta"`
	Input     InputConfig      `yaml:"input"`
	Output    OutputConfig     `yaml:"output"`
	Catalog   CatalogConfig    `yaml:"catalog"`
	Fetch     FetchConfig      `yaml:"fetch"`
	Backup    BackupConfig     `yaml:"backup"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

// InputConfig locates the prior CSV.
type InputConfig struct {
	// Location is a path or afs URL.
	Location string `yaml:"location" validate:"required"`
	Encoding string `yaml:"encoding" validate:"charset"`
}

// OutputConfig locates the refreshed CSV. An empty Location overwrites the
// input.
type OutputConfig struct {
	Location string `yaml:"location"`
	Encoding string `yaml:"encoding" validate:"charset"`
}

// CatalogConfig selects and describes the published reference.
type CatalogConfig struct {
	// Mode is "single_page" or "index_detail".
	Mode string `yaml:"mode" validate:"oneof=single_page index_detail"`

	SinglePage  SinglePageConfig  `yaml:"single_page"`
	IndexDetail IndexDetailConfig `yaml:"index_detail"`

	// Layouts are the accepted metric table layouts.
	Layouts []catalog.Layout `yaml:"layouts" validate:"required,min=1,dive"`

	// StripDelimiter removes commas from descriptions. Unset means on in
	// index_detail mode and off in single_page mode.
	StripDelimiter *bool `yaml:"strip_delimiter,omitempty"`
}

type SinglePageConfig struct {
	URL              string   `yaml:"url" validate:"omitempty,url"`
	Baseline         []string `yaml:"baseline"`
	LeadingSections  int      `yaml:"leading_sections" validate:"min=0"`
	TrailingSections int      `yaml:"trailing_sections" validate:"min=0"`
}

type IndexDetailConfig struct {
	IndexURL          string `yaml:"index_url" validate:"omitempty,url"`
	DetailLinkPattern string `yaml:"detail_link_pattern"`
}

// FetchConfig controls HTTP retrieval of the reference.
type FetchConfig struct {
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxAttempts       int           `yaml:"max_attempts" validate:"min=1,max=10"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" validate:"gte=0"`
	MaxBackoff        time.Duration `yaml:"max_backoff" validate:"gte=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
	Concurrency       int           `yaml:"concurrency" validate:"min=1,max=32"`
	UserAgent         string        `yaml:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" validate:"min=1"`
}

// BackupConfig controls the copy of the prior CSV kept before overwrite.
type BackupConfig struct {
	Enabled    bool   `yaml:"enabled"`
	MaxBackups int    `yaml:"max_backups" validate:"min=1,max=100"`
	Dir        string `yaml:"dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir receives a daily JSON log file. Empty disables file logging.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

// DefaultConfig returns the configuration for the published Azure
// Monitor reference as of March 2023.
func DefaultConfig() Config {
	fetch := catalog.DefaultFetchConfig()
	backup := storage.DefaultBackupConfig()
	return Config{
		Meta: MetaConfig{Version: CurrentConfigVersion},
		Input: InputConfig{
			Location: "./azure_monitoring.csv",
			Encoding: "windows-1252",
		},
		Output: OutputConfig{
			Encoding: "windows-1252",
		},
		Catalog: CatalogConfig{
			Mode: catalog.ModeSinglePage,
			SinglePage: SinglePageConfig{
				URL: "https://learn.microsoft.com/en-us/azure/azure-monitor/essentials/metrics-supported",
				Baseline: []string{
					"In this article",
					"Exporting platform metrics to other locations",
					"Guest OS and host OS metrics",
					"Table formatting",
					"Microsoft.AAD/DomainServices",
				},
				LeadingSections:  4,
				TrailingSections: 1,
			},
			IndexDetail: IndexDetailConfig{
				IndexURL:          "https://learn.microsoft.com/en-us/azure/azure-monitor/reference/supported-metrics/metrics-index",
				DetailLinkPattern: catalog.DefaultDetailLinkPattern,
			},
			Layouts: catalog.DefaultLayouts(),
		},
		Fetch: FetchConfig{
			Timeout:           fetch.Timeout,
			MaxAttempts:       fetch.MaxAttempts,
			InitialBackoff:    fetch.InitialBackoff,
			MaxBackoff:        fetch.MaxBackoff,
			RequestsPerSecond: fetch.RequestsPerSecond,
			Burst:             fetch.Burst,
			Concurrency:       fetch.Concurrency,
			UserAgent:         fetch.UserAgent,
			MaxBodyBytes:      fetch.MaxBodyBytes,
		},
		Backup: BackupConfig{
			Enabled:    true,
			MaxBackups: backup.MaxBackups,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// OutputLocation returns the output location, defaulting to the input.
func (c *Config) OutputLocation() string {
	if c.Output.Location != "" {
		return c.Output.Location
	}
	return c.Input.Location
}

// CleanOptions resolves the description cleanup options for the mode.
func (c *Config) CleanOptions() catalog.CleanOptions {
	if c.Catalog.StripDelimiter != nil {
		return catalog.CleanOptions{StripDelimiter: *c.Catalog.StripDelimiter}
	}
	return catalog.CleanOptions{StripDelimiter: c.Catalog.Mode == catalog.ModeIndexDetail}
}

// FetchOptions converts the fetch section for the catalog package.
func (c *Config) FetchOptions() catalog.FetchConfig {
	return catalog.FetchConfig{
		Timeout:           c.Fetch.Timeout,
		MaxAttempts:       c.Fetch.MaxAttempts,
		InitialBackoff:    c.Fetch.InitialBackoff,
		MaxBackoff:        c.Fetch.MaxBackoff,
		RequestsPerSecond: c.Fetch.RequestsPerSecond,
		Burst:             c.Fetch.Burst,
		Concurrency:       c.Fetch.Concurrency,
		UserAgent:         c.Fetch.UserAgent,
		MaxBodyBytes:      c.Fetch.MaxBodyBytes,
	}
}

// BackupOptions converts the backup section for the storage package.
func (c *Config) BackupOptions() storage.BackupConfig {
	options := storage.DefaultBackupConfig()
	options.MaxBackups = c.Backup.MaxBackups
	options.BackupDir = c.Backup.Dir
	return options
}

// NewFetcher builds the catalog fetcher for the configured mode.
//
// # Inputs
//
//   - client: HTTP client; nil uses catalog.NewHTTPClient()
//   - logger: Logger for retry warnings; nil uses slog.Default()
//
// # Outputs
//
//   - catalog.Fetcher: A single-page or index+detail fetcher
//   - error: Non-nil for an unknown mode or a bad detail link pattern
func (c *Config) NewFetcher(client catalog.HTTPClient, logger *slog.Logger) (catalog.Fetcher, error) {
	if client == nil {
		client = catalog.NewHTTPClient()
	}
	switch c.Catalog.Mode {
	case catalog.ModeSinglePage:
		return catalog.NewSinglePageFetcher(catalog.SinglePageConfig{
			URL:              c.Catalog.SinglePage.URL,
			Baseline:         c.Catalog.SinglePage.Baseline,
			LeadingSections:  c.Catalog.SinglePage.LeadingSections,
			TrailingSections: c.Catalog.SinglePage.TrailingSections,
			Layouts:          c.Catalog.Layouts,
		}, c.FetchOptions(), client, logger), nil
	case catalog.ModeIndexDetail:
		fetcher, err := catalog.NewIndexDetailFetcher(catalog.IndexDetailConfig{
			IndexURL:          c.Catalog.IndexDetail.IndexURL,
			DetailLinkPattern: c.Catalog.IndexDetail.DetailLinkPattern,
			Layouts:           c.Catalog.Layouts,
		}, c.FetchOptions(), client, logger)
		if err != nil {
			return nil, err
		}
		return fetcher, nil
	default:
		return nil, fmt.Errorf("unknown catalog mode %q", c.Catalog.Mode)
	}
}

// Encodings resolves the input and output charsets.
func (c *Config) Encodings() (in, out encoding.Encoding, err error) {
	if in, err = storage.LookupEncoding(c.Input.Encoding); err != nil {
		return nil, nil, fmt.Errorf("input encoding: %w", err)
	}
	if out, err = storage.LookupEncoding(c.Output.Encoding); err != nil {
		return nil, nil, fmt.Errorf("output encoding: %w", err)
	}
	return in, out, nil
}
