// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/AleutianAI/metricsync/services/metricsync/model"
)

// Render serializes the header and merged rows into CSV text.
//
// # Description
//
// The canonical header is always the first record. Fields holding a comma,
// a double quote, a line break or a leading space are quote-wrapped by the
// csv writer, so no row can be mis-split by a downstream reader. Lines end
// with "\n". The whole file is built in memory; nothing is written to the
// destination here.
//
// # Inputs
//
//   - rows: Merged rows in output order
//
// # Outputs
//
//   - []byte: UTF-8 CSV text
//   - error: Non-nil if a record could not be written
func Render(rows []model.MergedRow) ([]byte, error) {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Fields())
	}
	return RenderRecords(model.Header, records)
}

// RenderRecords serializes an arbitrary header and records.
func RenderRecords(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, record := range records {
		if len(record) != len(header) {
			return nil, fmt.Errorf("record %d has %d fields, header has %d", i+1, len(record), len(header))
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write record %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
