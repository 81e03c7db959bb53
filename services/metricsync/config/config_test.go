// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/metricsync/services/metricsync/catalog"
	"github.com/AleutianAI/metricsync/services/metricsync/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvConfig, EnvInput, EnvOutput, EnvMode, EnvLogLevel,
		"OTEL_TRACES_EXPORTER", "OTEL_METRICS_EXPORTER", "OTEL_EXPORTER_OTLP_ENDPOINT", "METRICSYNC_PUSHGATEWAY_URL"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metricsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	clearEnv(t)
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, catalog.ModeSinglePage, cfg.Catalog.Mode)
	assert.Len(t, cfg.Catalog.SinglePage.Baseline, 5)
	assert.Equal(t, "Microsoft.AAD/DomainServices", cfg.Catalog.SinglePage.Baseline[4])
	assert.Equal(t, 4, cfg.Catalog.SinglePage.LeadingSections)
	assert.Equal(t, 1, cfg.Catalog.SinglePage.TrailingSections)
	assert.Equal(t, "windows-1252", cfg.Input.Encoding)
	assert.Equal(t, cfg.Input.Location, cfg.OutputLocation())
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(context.Background(), storage.NewStore(nil), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Catalog.SinglePage.URL, cfg.Catalog.SinglePage.URL)
}

func TestLoad_FileOverDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
input:
  location: /data/azure_monitoring.csv
catalog:
  mode: index_detail
fetch:
  timeout: 5s
  concurrency: 8
  max_body_bytes: 1048576
backup:
  enabled: false
`)
	cfg, err := Load(context.Background(), storage.NewStore(nil), path)
	require.NoError(t, err)

	assert.Equal(t, "/data/azure_monitoring.csv", cfg.Input.Location)
	assert.Equal(t, catalog.ModeIndexDetail, cfg.Catalog.Mode)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 8, cfg.Fetch.Concurrency)
	assert.Equal(t, int64(1<<20), cfg.FetchOptions().MaxBodyBytes)
	assert.False(t, cfg.Backup.Enabled)

	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Fetch.MaxAttempts)
	defaults := DefaultConfig()
	assert.Equal(t, catalog.DefaultFetchConfig().MaxBodyBytes, defaults.FetchOptions().MaxBodyBytes)
	assert.Len(t, cfg.Catalog.Layouts, 2)
	assert.True(t, cfg.CleanOptions().StripDelimiter, "index_detail strips commas by default")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "input:\n  location: from-file.csv\n")
	t.Setenv(EnvInput, "from-env.csv")
	t.Setenv(EnvMode, "index_detail")

	cfg, err := Load(context.Background(), storage.NewStore(nil), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.csv", cfg.Input.Location)
	assert.Equal(t, catalog.ModeIndexDetail, cfg.Catalog.Mode)
}

func TestLoad_ConfigFromEnvPath(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfig, writeConfig(t, "logging:\n  level: debug\n"))

	cfg, err := Load(context.Background(), storage.NewStore(nil), "")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_UnknownKey(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "inputs:\n  location: x.csv\n")
	_, err := Load(context.Background(), storage.NewStore(nil), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inputs")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(context.Background(), storage.NewStore(nil), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad mode", func(c *Config) { c.Catalog.Mode = "scrape" }, "Catalog.Mode failed oneof"},
		{"bad encoding", func(c *Config) { c.Input.Encoding = "klingon" }, "Input.Encoding failed charset"},
		{"no attempts", func(c *Config) { c.Fetch.MaxAttempts = 0 }, "Fetch.MaxAttempts failed min"},
		{"zero timeout", func(c *Config) { c.Fetch.Timeout = 0 }, "Fetch.Timeout failed gt"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "Logging.Level failed oneof"},
		{"no layouts", func(c *Config) { c.Catalog.Layouts = nil }, "Catalog.Layouts failed required"},
		{"bad exporter", func(c *Config) { c.Telemetry.TraceExporter = "zipkin" }, "Telemetry.TraceExporter failed oneof"},
		{"bad url", func(c *Config) { c.Catalog.SinglePage.URL = "not a url" }, "Catalog.SinglePage.URL failed url"},
		{"missing url", func(c *Config) { c.Catalog.SinglePage.URL = "" }, "single_page.url is required"},
		{"layout column", func(c *Config) { c.Catalog.Layouts[0].UnitColumn = 20 }, "unit_column 20 outside"},
		{"backoff order", func(c *Config) { c.Fetch.InitialBackoff = time.Minute }, "exceeds fetch.max_backoff"},
		{"no body limit", func(c *Config) { c.Fetch.MaxBodyBytes = 0 }, "Fetch.MaxBodyBytes failed min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := DefaultConfig()
	strip := false
	cfg.Catalog.StripDelimiter = &strip

	data, err := Marshal(&cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout: 30s")

	decoded := DefaultConfig()
	require.NoError(t, Decode(data, &decoded))
	assert.Equal(t, cfg, decoded)
	assert.False(t, decoded.CleanOptions().StripDelimiter)
}

func TestConversions(t *testing.T) {
	clearEnv(t)
	cfg := DefaultConfig()
	cfg.Backup.Dir = "/backups"
	cfg.Backup.MaxBackups = 9

	assert.Equal(t, cfg.Fetch.Concurrency, cfg.FetchOptions().Concurrency)
	assert.Positive(t, cfg.FetchOptions().MaxBodyBytes)
	assert.Equal(t, 9, cfg.BackupOptions().MaxBackups)
	assert.Equal(t, "/backups", cfg.BackupOptions().BackupDir)
	assert.Equal(t, ".backup", cfg.BackupOptions().BackupSuffix)
}

func TestNewFetcher(t *testing.T) {
	cfg := DefaultConfig()

	f, err := cfg.NewFetcher(nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &catalog.SinglePageFetcher{}, f)

	cfg.Catalog.Mode = catalog.ModeIndexDetail
	f, err = cfg.NewFetcher(nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &catalog.IndexDetailFetcher{}, f)

	cfg.Catalog.IndexDetail.DetailLinkPattern = "("
	_, err = cfg.NewFetcher(nil, nil)
	assert.Error(t, err)

	cfg.Catalog.Mode = "bogus"
	_, err = cfg.NewFetcher(nil, nil)
	assert.ErrorContains(t, err, "unknown catalog mode")
}

func TestEncodings(t *testing.T) {
	cfg := DefaultConfig()
	in, out, err := cfg.Encodings()
	require.NoError(t, err)
	assert.NotNil(t, in)
	assert.NotNil(t, out)

	cfg.Output.Encoding = "klingon"
	_, _, err = cfg.Encodings()
	assert.ErrorIs(t, err, storage.ErrUnknownEncoding)
}
