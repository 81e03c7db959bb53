// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/AleutianAI/metricsync/services/metricsync/catalog"
	"github.com/AleutianAI/metricsync/services/metricsync/model"
	"github.com/AleutianAI/metricsync/services/metricsync/settings"
	"github.com/AleutianAI/metricsync/services/metricsync/storage"
)

const header = "Resource Type,Metric,Metric Display Name,Unit,Aggregation Type,Description," +
	"Enable for monitoring,Tag Name,Threshold,Operator,Eval Frequency,Window Size,Aggregation Time," +
	"Alert Name,Alert Description,Severity\n"

const flatHead = `<thead><tr><th>Metric</th><th>Exportable via Diagnostic Settings?</th>` +
	`<th>Metric Display Name</th><th>Unit</th><th>Aggregation Type</th><th>Description</th>` +
	`<th>Dimensions</th></tr></thead>`

func row(cells ...string) string {
	return "<tr><td>" + strings.Join(cells, "</td><td>") + "</td></tr>"
}

func catalogPage(tableHead string, rows ...string) string {
	return `<html><body><div class="content">` +
		`<h2>In this article</h2><h2>Table formatting</h2>` +
		`<h2>Microsoft.Compute/virtualMachines</h2>` +
		`<table>` + tableHead + `<tbody>` + strings.Join(rows, "") + `</tbody></table>` +
		`<h2>Next steps</h2></div></body></html>`
}

func defaultPage() string {
	return catalogPage(flatHead,
		row("Percentage CPU", "Yes", "Percentage CPU", "Percent", "Average",
			`The percentage of allocated <a data-linktype="external" href="https://example.com/cu">compute units</a>`, "None"),
		row("Disk Read Bytes", "Yes", "Disk Read Bytes", "Bytes", "Total", "Bytes read from disk", "None"),
	)
}

type fixture struct {
	srv     *httptest.Server
	page    string
	dir     string
	csvPath string
}

func newFixture(t *testing.T, page, prior string) *fixture {
	t.Helper()
	f := &fixture{page: page, dir: t.TempDir()}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, f.page)
	}))
	t.Cleanup(f.srv.Close)

	f.csvPath = filepath.Join(f.dir, "azure_monitoring.csv")
	require.NoError(t, os.WriteFile(f.csvPath, []byte(prior), 0o644))
	return f
}

func (f *fixture) fetcher() catalog.Fetcher {
	return catalog.NewSinglePageFetcher(catalog.SinglePageConfig{
		URL:              f.srv.URL + "/metrics-supported",
		Baseline:         []string{"In this article", "Table formatting"},
		LeadingSections:  2,
		TrailingSections: 1,
		Layouts:          catalog.DefaultLayouts(),
	}, catalog.FetchConfig{
		Timeout:        2 * time.Second,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, f.srv.Client(), nil)
}

func (f *fixture) options() Options {
	return Options{Input: f.csvPath, Fetcher: f.fetcher()}
}

func (f *fixture) read(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.csvPath)
	require.NoError(t, err)
	return string(data)
}

// TestRun_PercentageCPU verifies a configured threshold survives a refresh
// and the row picks up the catalog's current metadata.
func TestRun_PercentageCPU(t *testing.T) {
	prior := header +
		"Microsoft.Compute/virtualMachines,Percentage CPU,CPU (old name),Count,Maximum,old description,,,80,,,,,,,\n"
	f := newFixture(t, defaultPage(), prior)

	summary, err := Run(context.Background(), f.options())
	require.NoError(t, err)

	out := f.read(t)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.TrimSuffix(header, "\n"), lines[0])
	assert.Equal(t,
		"Microsoft.Compute/virtualMachines,Percentage CPU,Percentage CPU,Percent,Average,The percentage of allocated compute units,,,80,,,,,,,",
		lines[1])
	assert.Equal(t,
		"Microsoft.Compute/virtualMachines,Disk Read Bytes,Disk Read Bytes,Bytes,Total,Bytes read from disk,,,,,,,,,,",
		lines[2])
	assert.Equal(t, 1, strings.Count(out, ",Percentage CPU,"))

	assert.True(t, summary.Written)
	assert.Equal(t, catalog.ModeSinglePage, summary.Mode)
	assert.Equal(t, "current", summary.Schema)
	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Unmatched)
	assert.Equal(t, 1, summary.Configured)
	assert.Empty(t, summary.Orphaned)
	assert.False(t, summary.HasAnomalies())
	assert.NotEmpty(t, summary.RunID)
	assert.Positive(t, summary.Elapsed)
}

// TestRun_Idempotent verifies a second run over its own output changes
// nothing.
func TestRun_Idempotent(t *testing.T) {
	prior := header +
		"Microsoft.Compute/virtualMachines,Percentage CPU,,,,,TRUE,vm,80,GreaterThan,PT1M,PT5M,Average,cpu-warn,\"CPU, high\",2\n" +
		"Microsoft.Compute/virtualMachines,Percentage CPU,,,,,TRUE,vm,95,GreaterThan,PT1M,PT5M,Average,cpu-crit,CPU critical,0\n"
	f := newFixture(t, defaultPage(), prior)

	_, err := Run(context.Background(), f.options())
	require.NoError(t, err)
	first := f.read(t)

	summary, err := Run(context.Background(), f.options())
	require.NoError(t, err)
	assert.Equal(t, first, f.read(t))
	assert.Equal(t, 3, summary.Rows)
	assert.Equal(t, 2, summary.Configured)
	assert.Contains(t, first, `"CPU, high"`)
}

// TestRun_FanOut verifies several configurations of one metric become
// adjacent rows in file order.
func TestRun_FanOut(t *testing.T) {
	prior := header +
		"Microsoft.Compute/virtualMachines,Percentage CPU,,,,,TRUE,,80,,,,,warn,,\n" +
		"Microsoft.Compute/virtualMachines,Percentage CPU,,,,,TRUE,,95,,,,,crit,,\n"
	f := newFixture(t, defaultPage(), prior)

	summary, err := Run(context.Background(), f.options())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(f.read(t), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], ",80,")
	assert.Contains(t, lines[1], ",warn,")
	assert.Contains(t, lines[2], ",95,")
	assert.Contains(t, lines[2], ",crit,")
	assert.Contains(t, lines[3], "Disk Read Bytes")
	assert.Equal(t, 3, summary.Rows)
}

// TestRun_UnknownLayoutWritesNothing verifies drift aborts before the
// write.
func TestRun_UnknownLayoutWritesNothing(t *testing.T) {
	prior := header + "Microsoft.Compute/virtualMachines,Percentage CPU,,,,,,,80,,,,,,,\n"
	page := catalogPage(`<thead><tr><th>Metric</th><th>Unit</th></tr></thead>`, row("Percentage CPU", "Percent"))
	f := newFixture(t, page, prior)

	summary, err := Run(context.Background(), f.options())

	var drift *catalog.DriftError
	require.True(t, errors.As(err, &drift), "got %v", err)
	assert.Equal(t, catalog.DriftLayout, drift.Kind)
	assert.False(t, summary.Written)
	assert.Equal(t, prior, f.read(t))
}

// TestRun_SchemaErrorWritesNothing verifies a misplaced Alert Name column
// aborts before the catalog is fetched.
func TestRun_SchemaErrorWritesNothing(t *testing.T) {
	prior := "Resource Type,Metric,Metric Display Name,Unit,Aggregation Type,Description," +
		"Enable for monitoring,Tag Name,Threshold,Operator,Eval Frequency,Window Size,Alert Name," +
		"Aggregation Time,Alert Description,Severity\n" +
		"RT,m,,,,,TRUE,,,,,,,,,\n"
	f := newFixture(t, defaultPage(), prior)

	_, err := Run(context.Background(), f.options())

	var schemaErr *settings.ConfigSchemaError
	require.True(t, errors.As(err, &schemaErr), "got %v", err)
	assert.Equal(t, prior, f.read(t))
}

func TestRun_RetrievalErrorWritesNothing(t *testing.T) {
	prior := header + "Microsoft.Compute/virtualMachines,Percentage CPU,,,,,,,80,,,,,,,\n"
	f := newFixture(t, defaultPage(), prior)
	f.srv.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := Run(context.Background(), f.options())

	var retrieval *catalog.RetrievalError
	require.True(t, errors.As(err, &retrieval), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, retrieval.StatusCode)
	assert.Equal(t, prior, f.read(t))
}

func TestRun_OversizedCatalogWritesNothing(t *testing.T) {
	prior := header + "Microsoft.Compute/virtualMachines,Percentage CPU,,,,,,,80,,,,,,,\n"
	f := newFixture(t, defaultPage(), prior)
	opts := f.options()
	opts.Fetcher = catalog.NewSinglePageFetcher(catalog.SinglePageConfig{
		URL:              f.srv.URL + "/metrics-supported",
		Baseline:         []string{"In this article", "Table formatting"},
		LeadingSections:  2,
		TrailingSections: 1,
		Layouts:          catalog.DefaultLayouts(),
	}, catalog.FetchConfig{
		Timeout:      2 * time.Second,
		MaxAttempts:  2,
		MaxBodyBytes: int64(len(f.page) / 2),
	}, f.srv.Client(), nil)

	_, err := Run(context.Background(), opts)

	var tooLarge *catalog.BodyTooLargeError
	require.True(t, errors.As(err, &tooLarge), "got %v", err)
	assert.Equal(t, prior, f.read(t))
}

func TestRun_OrphanedRowsAreReported(t *testing.T) {
	prior := header +
		"Microsoft.Compute/virtualMachines,Percentage CPU,,,,,,,80,,,,,,,\n" +
		"Microsoft.Compute/virtualMachines,Retired Metric,,,,,TRUE,,1,,,,,,,\n"
	f := newFixture(t, defaultPage(), prior)

	summary, err := Run(context.Background(), f.options())
	require.NoError(t, err)

	require.Len(t, summary.Orphaned, 1)
	assert.Equal(t, Orphan{ResourceType: "Microsoft.Compute/virtualMachines", MetricID: "Retired Metric", Line: 3}, summary.Orphaned[0])
	assert.True(t, summary.HasAnomalies())
	assert.NotContains(t, f.read(t), "Retired Metric")
}

func TestRun_LegacyInputIsUpgraded(t *testing.T) {
	legacy := "Resource Type,Metric,Metric Display Name,Unit,Aggregation Type,Description," +
		"Enable for monitoring,Tag Name,Threshold,Operator,Eval Frequency,Window Size,Aggregation Time," +
		"Alert Description,Severity\n" +
		"Microsoft.Compute/virtualMachines,Percentage CPU,,,,,TRUE,vm,80,GreaterThan,PT1M,PT5M,Average,CPU high,2\n"
	f := newFixture(t, defaultPage(), legacy)

	summary, err := Run(context.Background(), f.options())
	require.NoError(t, err)
	assert.Equal(t, "legacy", summary.Schema)

	out := f.read(t)
	assert.True(t, strings.HasPrefix(out, header))
	assert.Contains(t, out, ",TRUE,vm,80,GreaterThan,PT1M,PT5M,Average,,CPU high,2\n")
}

func TestRun_DryRun(t *testing.T) {
	prior := header + "Microsoft.Compute/virtualMachines,Percentage CPU,,,,,,,80,,,,,,,\n"
	f := newFixture(t, defaultPage(), prior)

	opts := f.options()
	opts.DryRun = true
	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.False(t, summary.Written)
	assert.True(t, summary.DryRun)
	assert.Positive(t, summary.Bytes)
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, prior, f.read(t))
}

func TestRun_SeparateOutputAndBackup(t *testing.T) {
	prior := header + "Microsoft.Compute/virtualMachines,Percentage CPU,,,,,,,80,,,,,,,\n"
	f := newFixture(t, defaultPage(), prior)
	outPath := filepath.Join(f.dir, "refreshed.csv")
	require.NoError(t, os.WriteFile(outPath, []byte("previous output\n"), 0o644))

	store := storage.NewStore(nil)
	opts := f.options()
	opts.Output = outPath
	opts.Store = store
	opts.Backups = storage.NewBackupManager(store, storage.DefaultBackupConfig())

	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, prior, f.read(t), "input must not change")
	written, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), ",80,")

	require.NotEmpty(t, summary.BackupURL)
	backup, err := store.Read(context.Background(), summary.BackupURL)
	require.NoError(t, err)
	assert.Equal(t, "previous output\n", string(backup))
}

func TestRun_FirstRunHasNoBackup(t *testing.T) {
	prior := header + "Microsoft.Compute/virtualMachines,Percentage CPU,,,,,,,80,,,,,,,\n"
	f := newFixture(t, defaultPage(), prior)

	store := storage.NewStore(nil)
	opts := f.options()
	opts.Output = filepath.Join(f.dir, "new.csv")
	opts.Backups = storage.NewBackupManager(store, storage.DefaultBackupConfig())

	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, summary.BackupURL)
	assert.True(t, summary.Written)
}

// TestRun_Windows1252 verifies non-ASCII descriptions survive a round trip
// in the legacy code page.
func TestRun_Windows1252(t *testing.T) {
	page := catalogPage(flatHead,
		row("Percentage CPU", "Yes", "Percentage CPU", "Percent", "Average", "Température café", "None"))
	prior, err := charmap.Windows1252.NewEncoder().String(header +
		"Microsoft.Compute/virtualMachines,Percentage CPU,,,,,,,80,,,,,,Alerte déclenchée,\n")
	require.NoError(t, err)
	f := newFixture(t, page, prior)

	opts := f.options()
	opts.InputEncoding = charmap.Windows1252
	opts.OutputEncoding = charmap.Windows1252

	_, err = Run(context.Background(), opts)
	require.NoError(t, err)

	decoded, err := charmap.Windows1252.NewDecoder().String(f.read(t))
	require.NoError(t, err)
	assert.Contains(t, decoded, "Température café")
	assert.Contains(t, decoded, "Alerte déclenchée")
}

func TestRun_CancelledContext(t *testing.T) {
	prior := header + "Microsoft.Compute/virtualMachines,Percentage CPU,,,,,,,80,,,,,,,\n"
	f := newFixture(t, defaultPage(), prior)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := Run(ctx, f.options())
	require.Error(t, err)
	assert.False(t, summary.Written)
	assert.Equal(t, prior, f.read(t))
}

func TestRun_MissingOptions(t *testing.T) {
	_, err := Run(context.Background(), Options{Fetcher: nil, Input: "x.csv"})
	assert.ErrorIs(t, err, ErrNoFetcher)

	_, err = Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestRun_MissingInput(t *testing.T) {
	f := newFixture(t, defaultPage(), header)
	opts := f.options()
	opts.Input = filepath.Join(f.dir, "absent.csv")

	summary, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.False(t, summary.Written)
}

func TestCheck(t *testing.T) {
	f := newFixture(t, defaultPage(), header)

	result, err := Check(context.Background(), f.fetcher(), catalog.CleanOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, catalog.ModeSinglePage, result.Mode)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 1, result.ResourceTypes)
	assert.Equal(t, 2, result.Records)
	assert.Empty(t, result.Malformed)
}

func TestCheck_Drift(t *testing.T) {
	page := strings.Replace(defaultPage(), "Table formatting", "Formatting", 1)
	f := newFixture(t, page, header)

	_, err := Check(context.Background(), f.fetcher(), catalog.CleanOptions{}, nil)
	var drift *catalog.DriftError
	require.True(t, errors.As(err, &drift))
	assert.Equal(t, catalog.DriftHeadings, drift.Kind)

	_, err = Check(context.Background(), nil, catalog.CleanOptions{}, nil)
	assert.ErrorIs(t, err, ErrNoFetcher)
}

func TestCheck_MalformedRows(t *testing.T) {
	page := catalogPage(flatHead,
		row("Percentage CPU", "Yes", "Percentage CPU", "Percent", "Average", "cpu", "None"),
		row("Broken", "Yes"),
	)
	f := newFixture(t, page, header)

	result, err := Check(context.Background(), f.fetcher(), catalog.CleanOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Records)
	require.Len(t, result.Malformed, 1)
	assert.Equal(t, "Microsoft.Compute/virtualMachines", result.Malformed[0].ResourceType)
}

func TestSummary_HasAnomalies(t *testing.T) {
	assert.False(t, (&Summary{}).HasAnomalies())
	assert.True(t, (&Summary{DuplicateKeys: []string{model.NewKey("a", "b").String()}}).HasAnomalies())
	assert.True(t, (&Summary{Malformed: []catalog.MalformedRowError{{Row: 1}}}).HasAnomalies())
}
