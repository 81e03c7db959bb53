// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package settings extracts operator-set alert configuration from a prior
// azure_monitoring.csv and groups it by (resource type, metric).
package settings

import (
	"strings"

	"github.com/AleutianAI/metricsync/services/metricsync/csvio"
	"github.com/AleutianAI/metricsync/services/metricsync/model"
)

// Stats summarizes one extraction.
type Stats struct {
	// Schema is the detected schema version of the prior file.
	Schema model.SchemaVersion `json:"schema"`

	// RowsScanned is the number of data rows read.
	RowsScanned int `json:"rows_scanned"`

	// RowsWithSettings is the number of rows that produced a ConfigRow.
	RowsWithSettings int `json:"rows_with_settings"`

	// Keys is the number of distinct (resource type, metric) keys.
	Keys int `json:"keys"`

	// RepeatedRows counts ConfigRows beyond the first for their key,
	// i.e. the extra rows fan-out will produce.
	RepeatedRows int `json:"repeated_rows"`
}

// Extract builds the configuration groups of a prior CSV.
//
// # Description
//
// A row contributes a ConfigRow when at least one cell from "Enable for
// monitoring" through "Severity" is non-blank. A cell is blank when it is
// empty after trimming whitespace; values such as "0" or "false" are present.
// Blank cells normalize to "" and present cells are kept verbatim.
//
// # Inputs
//
//   - table: The parsed prior CSV
//
// # Outputs
//
//   - *Groups: ConfigRows grouped by key, in first-seen order
//   - Stats: Extraction counters
//   - error: *ConfigSchemaError if the header is unusable
//
// # Example
//
//	groups, stats, err := settings.Extract(table)
//	if err != nil {
//	    return err // fatal, nothing may be written
//	}
//	rows := groups.Lookup(model.NewKey("Microsoft.Compute/virtualMachines", "Percentage CPU"))
func Extract(table *csvio.Table) (*Groups, Stats, error) {
	version, err := DetectSchema(table.Header)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Schema: version, RowsScanned: len(table.Rows)}
	columns := settingsColumns(version)
	groups := newGroups()

	for _, row := range table.Rows {
		s, ok := rowSettings(row, columns)
		if !ok {
			continue
		}
		key := model.NewKey(row.Cell(0), row.Cell(1))
		if groups.add(model.ConfigRow{
			Key:      key,
			Settings: s,
			Version:  version,
			Line:     row.Line,
		}) > 1 {
			stats.RepeatedRows++
		}
		stats.RowsWithSettings++
	}

	stats.Keys = groups.Len()
	return groups, stats, nil
}

// rowSettings reads the settings cells of a row. The boolean is false when
// every settings cell is blank.
func rowSettings(row csvio.Row, columns []int) (model.Settings, bool) {
	values := make([]string, len(columns))
	present := false
	for i, col := range columns {
		if col < 0 {
			continue
		}
		v := row.Cell(col)
		if isBlank(v) {
			continue
		}
		values[i] = v
		present = true
	}
	if !present {
		return model.Settings{}, false
	}
	return model.Settings{
		EnableFlag:       values[0],
		TagName:          values[1],
		Threshold:        values[2],
		Operator:         values[3],
		EvalFrequency:    values[4],
		WindowSize:       values[5],
		AggregationTime:  values[6],
		AlertName:        values[7],
		AlertDescription: values[8],
		Severity:         values[9],
	}, true
}

func isBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}
