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

import "fmt"

// ConfigSchemaError reports a prior CSV whose columns cannot be trusted.
//
// # Description
//
// Raised when the optional "Alert Name" column sits anywhere other than its
// fixed position, or when the header is too short for its schema version.
// It is fatal: the run stops before anything is written, leaving the prior
// file as the last good copy.
//
// # Example
//
//	var schemaErr *settings.ConfigSchemaError
//	if errors.As(err, &schemaErr) {
//	    fmt.Println(schemaErr.Column, schemaErr.Found)
//	}
type ConfigSchemaError struct {
	// Column is the header column the problem concerns.
	Column string

	// Expected is the index the column must occupy (-1 if not applicable).
	Expected int

	// Found is the index the column occupies (-1 if absent).
	Found int

	// Reason is a human-readable explanation.
	Reason string
}

// Error returns a formatted error message.
func (e *ConfigSchemaError) Error() string {
	if e.Expected >= 0 && e.Found >= 0 {
		return fmt.Sprintf("csv schema: %s: %q is column %d, expected column %d",
			e.Reason, e.Column, e.Found+1, e.Expected+1)
	}
	return fmt.Sprintf("csv schema: %s", e.Reason)
}
