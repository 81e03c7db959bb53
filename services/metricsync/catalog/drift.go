// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"fmt"
	"slices"
	"strings"
)

// Layout is one known column layout of a metrics table.
//
// # Description
//
// Headers must equal the table's header cells exactly. The column indices
// pick the cells feeding each model.MetricRecord field. When
// SplitDisplayName is set, the display-name cell carries
// "<name><br><description>" and DescriptionColumn is ignored.
type Layout struct {
	Name    string   `yaml:"name" json:"name" validate:"required"`
	Headers []string `yaml:"headers" json:"headers" validate:"required,min=1,dive,required"`

	MetricColumn      int `yaml:"metric_column" json:"metric_column" validate:"min=0"`
	DisplayNameColumn int `yaml:"display_name_column" json:"display_name_column" validate:"min=0"`
	UnitColumn        int `yaml:"unit_column" json:"unit_column" validate:"min=0"`
	AggregationColumn int `yaml:"aggregation_column" json:"aggregation_column" validate:"min=0"`
	DescriptionColumn int `yaml:"description_column" json:"description_column" validate:"min=0"`

	SplitDisplayName bool `yaml:"split_display_name" json:"split_display_name"`
}

// Validate checks that every column index falls inside Headers.
func (l Layout) Validate() error {
	cols := map[string]int{
		"metric_column":       l.MetricColumn,
		"display_name_column": l.DisplayNameColumn,
		"unit_column":         l.UnitColumn,
		"aggregation_column":  l.AggregationColumn,
	}
	if !l.SplitDisplayName {
		cols["description_column"] = l.DescriptionColumn
	}
	for name, idx := range cols {
		if idx < 0 || idx >= len(l.Headers) {
			return fmt.Errorf("layout %s: %s %d outside %d headers", l.Name, name, idx, len(l.Headers))
		}
	}
	return nil
}

// width returns the number of cells a row of this layout must have.
func (l Layout) width() int {
	return len(l.Headers)
}

// DefaultLayouts returns the two layouts the catalog has published.
//
// "flat" is the single-page table without a category column:
//
//	Metric | Exportable via Diagnostic Settings? | Metric Display Name | Unit |
//	Aggregation Type | Description | Dimensions
//
// "categorized" is the per-resource-type page table, whose Metric cell holds
// the display name and the description separated by <br>:
//
//	Category | Metric | Name in REST API | Unit | Aggregation |
//	Dimensions | Time Grains | DS Export
func DefaultLayouts() []Layout {
	return []Layout{
		{
			Name: "flat",
			Headers: []string{
				"Metric",
				"Exportable via Diagnostic Settings?",
				"Metric Display Name",
				"Unit",
				"Aggregation Type",
				"Description",
				"Dimensions",
			},
			MetricColumn:      0,
			DisplayNameColumn: 2,
			UnitColumn:        3,
			AggregationColumn: 4,
			DescriptionColumn: 5,
		},
		{
			Name: "categorized",
			Headers: []string{
				"Category",
				"Metric",
				"Name in REST API",
				"Unit",
				"Aggregation",
				"Dimensions",
				"Time Grains",
				"DS Export",
			},
			MetricColumn:      2,
			DisplayNameColumn: 1,
			UnitColumn:        3,
			AggregationColumn: 4,
			DescriptionColumn: 1,
			SplitDisplayName:  true,
		},
	}
}

// CheckHeadings verifies that the first len(baseline) headings equal the
// baseline exactly.
//
// # Inputs
//
//   - found: Headings in document order
//   - baseline: Recorded headings
//
// # Outputs
//
//   - error: *DriftError of kind DriftHeadings on any difference
func CheckHeadings(found, baseline []string) error {
	if len(found) < len(baseline) {
		return &DriftError{
			Kind:     DriftHeadings,
			Detail:   fmt.Sprintf("page has %d headings, baseline has %d", len(found), len(baseline)),
			Expected: baseline,
			Found:    found,
		}
	}
	for i, want := range baseline {
		if found[i] != want {
			return &DriftError{
				Kind:     DriftHeadings,
				Detail:   fmt.Sprintf("heading %d changed", i+1),
				Expected: baseline,
				Found:    found[:len(baseline)],
			}
		}
	}
	return nil
}

// MatchLayout returns the layout whose headers equal headers exactly.
//
// # Outputs
//
//   - *Layout: The matched layout, pointing into layouts
//   - error: *DriftError of kind DriftLayout if nothing matches
func MatchLayout(headers []string, layouts []Layout) (*Layout, error) {
	for i := range layouts {
		if slices.Equal(headers, layouts[i].Headers) {
			return &layouts[i], nil
		}
	}
	names := make([]string, len(layouts))
	for i, l := range layouts {
		names[i] = l.Name
	}
	return nil, &DriftError{
		Kind:   DriftLayout,
		Detail: "table header matches none of the known layouts (" + strings.Join(names, ", ") + ")",
		Found:  headers,
	}
}
