// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the records exchanged between metricsync stages.
//
// Every value in this package is immutable once a stage has produced it.
// Stages hand their output to the next stage explicitly; nothing here is
// shared process state.
package model

import "strings"

// Key identifies a metric of a resource type.
//
// Both parts are trimmed of surrounding whitespace so that keys built from
// the CSV and keys built from the HTML catalog compare equal.
type Key struct {
	ResourceType string
	MetricID     string
}

// NewKey builds a trimmed Key.
func NewKey(resourceType, metricID string) Key {
	return Key{
		ResourceType: strings.TrimSpace(resourceType),
		MetricID:     strings.TrimSpace(metricID),
	}
}

// String renders the key as "ResourceType/MetricID".
func (k Key) String() string {
	return k.ResourceType + "/" + k.MetricID
}

// Settings holds the operator-set configuration of one alert.
//
// Blank values are always the empty string, never a sentinel, so the fields
// can be written back without further checks.
type Settings struct {
	EnableFlag       string
	TagName          string
	Threshold        string
	Operator         string
	EvalFrequency    string
	WindowSize       string
	AggregationTime  string
	AlertName        string
	AlertDescription string
	Severity         string
}

// Fields returns the settings in output column order.
func (s Settings) Fields() []string {
	return []string{
		s.EnableFlag,
		s.TagName,
		s.Threshold,
		s.Operator,
		s.EvalFrequency,
		s.WindowSize,
		s.AggregationTime,
		s.AlertName,
		s.AlertDescription,
		s.Severity,
	}
}

// Empty reports whether every field is blank.
func (s Settings) Empty() bool {
	for _, f := range s.Fields() {
		if f != "" {
			return false
		}
	}
	return true
}

// ConfigRow is one prior configuration entry extracted from the CSV.
type ConfigRow struct {
	Key      Key
	Settings Settings

	// Version is the schema of the file the row was read from.
	Version SchemaVersion

	// Line is the 1-based line of the row in the source file.
	Line int
}

// MetricRecord is one metric definition from the external catalog.
type MetricRecord struct {
	ResourceType    string
	MetricID        string
	DisplayName     string
	Unit            string
	AggregationType string
	Description     string

	// Layout names the table layout the record was parsed from.
	Layout string
}

// Key returns the record's join key.
func (r MetricRecord) Key() Key {
	return NewKey(r.ResourceType, r.MetricID)
}

// MergedRow is one output row: catalog fields plus zero or one configuration.
type MergedRow struct {
	Metric   MetricRecord
	Settings Settings
}

// Fields returns the row's cells in Header order.
func (m MergedRow) Fields() []string {
	out := make([]string, 0, len(Header))
	out = append(out,
		m.Metric.ResourceType,
		m.Metric.MetricID,
		m.Metric.DisplayName,
		m.Metric.Unit,
		m.Metric.AggregationType,
		m.Metric.Description,
	)
	return append(out, m.Settings.Fields()...)
}

// Configured reports whether the row carries any configuration.
func (m MergedRow) Configured() bool {
	return !m.Settings.Empty()
}
