// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/metricsync/services/metricsync/csvio"
	"github.com/AleutianAI/metricsync/services/metricsync/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const currentHeader = "Resource Type,Metric,Metric Display Name,Unit,Aggregation Type,Description," +
	"Enable for monitoring,Tag Name,Threshold,Operator,Eval Frequency,Window Size,Aggregation Time," +
	"Alert Name,Alert Description,Severity\n"

const legacyHeader = "Resource Type,Metric,Metric Display Name,Unit,Aggregation Type,Description," +
	"Enable for monitoring,Tag Name,Threshold,Operator,Eval Frequency,Window Size,Aggregation Time," +
	"Alert Description,Severity\n"

func readTable(t *testing.T, text string) *csvio.Table {
	t.Helper()
	table, err := csvio.ReadTable(strings.NewReader(text))
	require.NoError(t, err)
	return table
}

// TestExtract_SingleCell verifies one non-blank cell yields one ConfigRow
// with every other field empty.
func TestExtract_SingleCell(t *testing.T) {
	table := readTable(t, currentHeader+
		"Microsoft.Compute/virtualMachines,Percentage CPU,Percentage CPU,Percent,Average,desc,,,80,,,,,,,\n"+
		"Microsoft.Compute/virtualMachines,Disk Read Bytes,Disk Read Bytes,Bytes,Total,desc,,,,,,,,,,\n")

	groups, stats, err := Extract(table)
	require.NoError(t, err)

	rows := groups.Lookup(model.NewKey("Microsoft.Compute/virtualMachines", "Percentage CPU"))
	require.Len(t, rows, 1)
	assert.Equal(t, model.Settings{Threshold: "80"}, rows[0].Settings)
	assert.Equal(t, model.SchemaCurrent, rows[0].Version)
	assert.Equal(t, 2, rows[0].Line)

	assert.Nil(t, groups.Lookup(model.NewKey("Microsoft.Compute/virtualMachines", "Disk Read Bytes")))
	assert.Equal(t, Stats{Schema: model.SchemaCurrent, RowsScanned: 2, RowsWithSettings: 1, Keys: 1}, stats)
}

// TestExtract_FalsyValuesArePresent verifies "0" and "false" count as set.
func TestExtract_FalsyValuesArePresent(t *testing.T) {
	table := readTable(t, currentHeader+
		"RT,m1,,,,,false,,,,,,,,,\n"+
		"RT,m2,,,,,,,0,,,,,,,\n"+
		"RT,m3,,,,,  ,,,,,,,,,\n")

	groups, stats, err := Extract(table)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RowsWithSettings)
	assert.Len(t, groups.Lookup(model.NewKey("RT", "m1")), 1)
	assert.Len(t, groups.Lookup(model.NewKey("RT", "m2")), 1)
	assert.Nil(t, groups.Lookup(model.NewKey("RT", "m3")), "whitespace-only cells are blank")
}

// TestExtract_SeverityOnly verifies the last settings column is considered.
func TestExtract_SeverityOnly(t *testing.T) {
	table := readTable(t, currentHeader+"RT,m1,,,,,,,,,,,,,,3\n")
	groups, _, err := Extract(table)
	require.NoError(t, err)
	rows := groups.Lookup(model.NewKey("RT", "m1"))
	require.Len(t, rows, 1)
	assert.Equal(t, "3", rows[0].Settings.Severity)
}

// TestExtract_FanOutKeepsFileOrder verifies repeated keys keep file order.
func TestExtract_FanOutKeepsFileOrder(t *testing.T) {
	table := readTable(t, currentHeader+
		"RT,cpu,,,,,TRUE,,80,GreaterThan,PT1M,PT5M,Average,cpu-warn,warn,2\n"+
		"RT,mem,,,,,TRUE,,70,GreaterThan,PT1M,PT5M,Average,,,\n"+
		"RT,cpu,,,,,TRUE,,95,GreaterThan,PT1M,PT5M,Average,cpu-crit,crit,0\n")

	groups, stats, err := Extract(table)
	require.NoError(t, err)

	rows := groups.Lookup(model.NewKey("RT", "cpu"))
	require.Len(t, rows, 2)
	assert.Equal(t, "80", rows[0].Settings.Threshold)
	assert.Equal(t, "cpu-warn", rows[0].Settings.AlertName)
	assert.Equal(t, "95", rows[1].Settings.Threshold)
	assert.Equal(t, "0", rows[1].Settings.Severity)
	assert.Equal(t, 1, stats.RepeatedRows)
	assert.Equal(t, 2, stats.Keys)
	assert.Equal(t, 3, groups.Rows())
}

// TestExtract_LegacySchema verifies legacy files map Alert Description and
// Severity from their shifted positions and leave AlertName empty.
func TestExtract_LegacySchema(t *testing.T) {
	table := readTable(t, legacyHeader+
		"Microsoft.Web/sites,Http5xx,Http Server Errors,Count,Total,desc,TRUE,web,10,GreaterThan,PT1M,PT5M,Total,Too many 5xx,1\n")

	groups, stats, err := Extract(table)
	require.NoError(t, err)
	assert.Equal(t, model.SchemaLegacy, stats.Schema)

	rows := groups.Lookup(model.NewKey("Microsoft.Web/sites", "Http5xx"))
	require.Len(t, rows, 1)
	assert.Equal(t, model.Settings{
		EnableFlag:       "TRUE",
		TagName:          "web",
		Threshold:        "10",
		Operator:         "GreaterThan",
		EvalFrequency:    "PT1M",
		WindowSize:       "PT5M",
		AggregationTime:  "Total",
		AlertDescription: "Too many 5xx",
		Severity:         "1",
	}, rows[0].Settings)
}

func TestExtract_MisplacedAlertName(t *testing.T) {
	header := "Resource Type,Metric,Metric Display Name,Unit,Aggregation Type,Description," +
		"Enable for monitoring,Tag Name,Threshold,Operator,Eval Frequency,Window Size,Alert Name," +
		"Aggregation Time,Alert Description,Severity\n"
	table := readTable(t, header+"RT,m,,,,,TRUE,,,,,,,,,\n")

	groups, _, err := Extract(table)
	require.Error(t, err)
	assert.Nil(t, groups)

	var schemaErr *ConfigSchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, 12, schemaErr.Found)
	assert.Equal(t, model.AlertNameColumn, schemaErr.Expected)
	assert.Contains(t, err.Error(), "column 13, expected column 14")
}

func TestExtract_ShortHeader(t *testing.T) {
	table := readTable(t, "Resource Type,Metric,Metric Display Name\nRT,m,x\n")
	_, _, err := Extract(table)

	var schemaErr *ConfigSchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Contains(t, err.Error(), "legacy schema needs 15 columns")
}

func TestGroups_Order(t *testing.T) {
	table := readTable(t, currentHeader+
		"B,b1,,,,,x,,,,,,,,,\n"+
		"A,a1,,,,,x,,,,,,,,,\n"+
		"B,b2,,,,,x,,,,,,,,,\n"+
		"B,b1,,,,,y,,,,,,,,,\n")

	groups, _, err := Extract(table)
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "A"}, groups.ResourceTypes())
	assert.Equal(t, []model.Key{
		{ResourceType: "B", MetricID: "b1"},
		{ResourceType: "B", MetricID: "b2"},
		{ResourceType: "A", MetricID: "a1"},
	}, groups.Keys())
}

func TestGroups_NilSafe(t *testing.T) {
	var g *Groups
	assert.Nil(t, g.Lookup(model.NewKey("a", "b")))
	assert.Equal(t, 0, g.Len())
	assert.Nil(t, g.Keys())
	assert.Nil(t, g.ResourceTypes())
	assert.Equal(t, 0, g.Rows())
}
