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

	"github.com/AleutianAI/metricsync/services/metricsync/model"
	"golang.org/x/net/html"
)

// ParseResult is the output of Parse.
type ParseResult struct {
	// Records holds one record per well-formed row, in catalog order.
	Records []model.MetricRecord

	// Malformed lists the rows skipped for having too few cells.
	Malformed []MalformedRowError
}

// Parse converts raw tables into metric records.
//
// # Description
//
// Each row is mapped through its table's layout. With a split layout the
// display-name cell is cut at its first <br>: the part before is the
// display name and the part after is the description. Descriptions are
// cleaned with opts. Rows with fewer cells than the layout are skipped and
// reported in ParseResult.Malformed.
//
// # Inputs
//
//   - raw: Drift-checked tables from a Fetcher
//   - opts: Description cleanup options
//
// # Outputs
//
//   - *ParseResult: Records in table order, then row order
//   - error: ErrNilCatalog, or a *DriftError for a table with no layout
//
// # Example
//
//	raw, err := fetcher.Fetch(ctx)
//	if err != nil {
//	    return err
//	}
//	result, err := catalog.Parse(raw, catalog.CleanOptions{})
func Parse(raw *RawCatalog, opts CleanOptions) (*ParseResult, error) {
	if raw == nil {
		return nil, ErrNilCatalog
	}
	result := &ParseResult{}
	for _, table := range raw.Tables {
		if table.Layout == nil {
			return nil, &DriftError{
				Kind:   DriftLayout,
				Source: table.Source,
				Detail: fmt.Sprintf("table for %s has no layout", table.ResourceType),
			}
		}
		layout := *table.Layout
		for i, cells := range table.Rows {
			if len(cells) < layout.width() {
				result.Malformed = append(result.Malformed, MalformedRowError{
					ResourceType: table.ResourceType,
					Row:          i + 1,
					Cells:        len(cells),
					Want:         layout.width(),
				})
				continue
			}
			result.Records = append(result.Records, parseRow(table.ResourceType, layout, cells, opts))
		}
	}
	return result, nil
}

func parseRow(resourceType string, layout Layout, cells []*html.Node, opts CleanOptions) model.MetricRecord {
	record := model.MetricRecord{
		ResourceType:    resourceType,
		MetricID:        cleanCell(children(cells[layout.MetricColumn])),
		Unit:            cleanCell(children(cells[layout.UnitColumn])),
		AggregationType: cleanCell(children(cells[layout.AggregationColumn])),
		Layout:          layout.Name,
	}
	if layout.SplitDisplayName {
		name, description, _ := splitAtBreak(cells[layout.DisplayNameColumn])
		record.DisplayName = cleanCell(name)
		record.Description = cleanDescription(description, opts)
		return record
	}
	record.DisplayName = cleanCell(children(cells[layout.DisplayNameColumn]))
	record.Description = cleanDescription(children(cells[layout.DescriptionColumn]), opts)
	return record
}
