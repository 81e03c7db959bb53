// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reconcile merges the parsed metric catalog with the operator
// settings extracted from the prior CSV.
package reconcile

import (
	"fmt"

	"github.com/AleutianAI/metricsync/services/metricsync/model"
	"github.com/AleutianAI/metricsync/services/metricsync/settings"
)

// Result is the merged table plus the bookkeeping needed to explain it.
type Result struct {
	// Rows is the merged output in catalog order, fan-out rows adjacent.
	Rows []model.MergedRow

	// Records is the number of catalog records merged.
	Records int

	// Matched counts records that had at least one ConfigRow.
	Matched int

	// Unmatched counts records emitted with empty settings.
	Unmatched int

	// FanOut is the sum of ConfigRow counts over matched records.
	FanOut int

	// Orphaned holds ConfigRows whose key is no longer in the catalog.
	Orphaned []model.ConfigRow

	// DuplicateKeys lists catalog keys that appeared more than once.
	DuplicateKeys []model.Key
}

// Reconcile merges records with groups.
//
// # Description
//
// Every record yields at least one row. A record whose key has N
// ConfigRows yields N rows, in ConfigRow order, each carrying the record's
// metadata and one ConfigRow's settings. A record with no ConfigRow yields
// one row with empty settings. Legacy ConfigRows carry an empty AlertName,
// so every output row has the current schema.
//
// Keys repeated in the catalog each get the full fan-out. ConfigRows whose
// key never appears in the catalog are returned in Orphaned.
//
// # Inputs
//
//   - records: Catalog records in catalog order
//   - groups: Prior settings; nil means no prior settings
//
// # Outputs
//
//   - *Result: Never nil
//
// # Example
//
//	result := reconcile.Reconcile(parsed.Records, groups)
//	if err := result.Verify(); err != nil {
//	    return err
//	}
func Reconcile(records []model.MetricRecord, groups *settings.Groups) *Result {
	result := &Result{
		Rows:    make([]model.MergedRow, 0, len(records)),
		Records: len(records),
	}
	seen := make(map[model.Key]int, len(records))

	for _, record := range records {
		key := record.Key()
		seen[key]++
		if seen[key] == 2 {
			result.DuplicateKeys = append(result.DuplicateKeys, key)
		}

		configRows := groups.Lookup(key)
		if len(configRows) == 0 {
			result.Unmatched++
			result.Rows = append(result.Rows, model.MergedRow{Metric: record})
			continue
		}
		result.Matched++
		result.FanOut += len(configRows)
		for _, cr := range configRows {
			result.Rows = append(result.Rows, model.MergedRow{Metric: record, Settings: cr.Settings})
		}
	}

	for _, key := range groups.Keys() {
		if seen[key] == 0 {
			result.Orphaned = append(result.Orphaned, groups.Lookup(key)...)
		}
	}
	return result
}

// Verify checks that the row count equals unmatched records plus the
// fan-out of matched records.
func (r *Result) Verify() error {
	if r.Matched+r.Unmatched != r.Records {
		return fmt.Errorf("reconcile: %d matched + %d unmatched != %d records", r.Matched, r.Unmatched, r.Records)
	}
	if want := r.Unmatched + r.FanOut; len(r.Rows) != want {
		return fmt.Errorf("reconcile: %d rows, expected %d", len(r.Rows), want)
	}
	return nil
}

// Configured returns the number of rows carrying settings.
func (r *Result) Configured() int {
	n := 0
	for _, row := range r.Rows {
		if row.Configured() {
			n++
		}
	}
	return n
}
