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
	"fmt"

	"github.com/AleutianAI/metricsync/services/metricsync/model"
)

// DetectSchema determines the schema version of a prior CSV header.
//
// # Description
//
// A header containing "Alert Name" is SchemaCurrent and the column must be
// at model.AlertNameColumn. A header without it is SchemaLegacy. Either way
// the header must be at least as wide as its schema; columns are addressed
// by position, so a short header would shift every setting.
//
// # Inputs
//
//   - header: Header row of the prior CSV
//
// # Outputs
//
//   - model.SchemaVersion: Detected version
//   - error: *ConfigSchemaError when the header cannot be used
func DetectSchema(header []string) (model.SchemaVersion, error) {
	alertName := -1
	for i, name := range header {
		if name == model.ColAlertName {
			alertName = i
			break
		}
	}

	version := model.SchemaLegacy
	if alertName >= 0 {
		if alertName != model.AlertNameColumn {
			return 0, &ConfigSchemaError{
				Column:   model.ColAlertName,
				Expected: model.AlertNameColumn,
				Found:    alertName,
				Reason:   "misplaced Alert Name column, it must sit between Aggregation Time and Alert Description",
			}
		}
		version = model.SchemaCurrent
	}

	want := len(version.Columns())
	if len(header) < want {
		return 0, &ConfigSchemaError{
			Expected: -1,
			Found:    -1,
			Reason:   fmt.Sprintf("%s schema needs %d columns, header has %d", version, want, len(header)),
		}
	}
	return version, nil
}

// settingsColumns returns the index of every settings field for a version,
// in model.Settings field order. Legacy files have no Alert Name, marked -1.
func settingsColumns(version model.SchemaVersion) []int {
	if version == model.SchemaLegacy {
		return []int{6, 7, 8, 9, 10, 11, 12, -1, 13, 14}
	}
	return []int{6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
}
