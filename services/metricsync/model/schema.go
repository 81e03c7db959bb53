// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

// SchemaVersion identifies the column layout of an azure_monitoring.csv file.
//
// # Description
//
// Two layouts have been produced over time. The legacy layout has 15 columns
// and no "Alert Name" column. The current layout inserts "Alert Name" between
// "Aggregation Time" and "Alert Description", giving 16 columns. Files are
// always written in the current layout; legacy rows upgrade by carrying an
// empty alert name.
type SchemaVersion int

const (
	// SchemaLegacy is the 15-column layout without "Alert Name".
	SchemaLegacy SchemaVersion = iota + 1

	// SchemaCurrent is the 16-column layout with "Alert Name" at index 13.
	SchemaCurrent
)

// String returns the schema name used in logs and summaries.
func (v SchemaVersion) String() string {
	switch v {
	case SchemaLegacy:
		return "legacy"
	case SchemaCurrent:
		return "current"
	default:
		return "unknown"
	}
}

// Columns returns the header of this schema version.
func (v SchemaVersion) Columns() []string {
	if v == SchemaLegacy {
		return append([]string(nil), LegacyHeader...)
	}
	return append([]string(nil), Header...)
}

// Column names shared by both schema versions.
const (
	ColResourceType     = "Resource Type"
	ColMetric           = "Metric"
	ColDisplayName      = "Metric Display Name"
	ColUnit             = "Unit"
	ColAggregationType  = "Aggregation Type"
	ColDescription      = "Description"
	ColEnable           = "Enable for monitoring"
	ColTagName          = "Tag Name"
	ColThreshold        = "Threshold"
	ColOperator         = "Operator"
	ColEvalFrequency    = "Eval Frequency"
	ColWindowSize       = "Window Size"
	ColAggregationTime  = "Aggregation Time"
	ColAlertName        = "Alert Name"
	ColAlertDescription = "Alert Description"
	ColSeverity         = "Severity"
)

// Fixed column positions.
const (
	// FirstSettingsColumn is the index of "Enable for monitoring", the first
	// operator-set column in both layouts.
	FirstSettingsColumn = 6

	// AlertNameColumn is the only valid position of "Alert Name".
	AlertNameColumn = 13
)

// Header is the canonical output header (SchemaCurrent).
var Header = []string{
	ColResourceType,
	ColMetric,
	ColDisplayName,
	ColUnit,
	ColAggregationType,
	ColDescription,
	ColEnable,
	ColTagName,
	ColThreshold,
	ColOperator,
	ColEvalFrequency,
	ColWindowSize,
	ColAggregationTime,
	ColAlertName,
	ColAlertDescription,
	ColSeverity,
}

// LegacyHeader is the SchemaLegacy header.
var LegacyHeader = []string{
	ColResourceType,
	ColMetric,
	ColDisplayName,
	ColUnit,
	ColAggregationType,
	ColDescription,
	ColEnable,
	ColTagName,
	ColThreshold,
	ColOperator,
	ColEvalFrequency,
	ColWindowSize,
	ColAggregationTime,
	ColAlertDescription,
	ColSeverity,
}
