// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package csvio reads and renders the delimited azure_monitoring.csv file.
//
// Character encoding is not handled here: callers pass already-decoded text
// to ReadTable and encode the bytes returned by Render (see the storage
// package).
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("csv file has no header row")

// Row is one data row of a Table.
type Row struct {
	// Line is the 1-based line number of the row's first field.
	Line int

	// Cells holds the raw cell values. Rows may be ragged.
	Cells []string
}

// Cell returns the i-th cell, or "" when the row is shorter than i+1.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// Table is a parsed CSV file: a header plus data rows in file order.
type Table struct {
	Header []string
	Rows   []Row
}

// Column returns the index of the named header column, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// ReadTable parses decoded CSV text into a Table.
//
// # Description
//
// The first record is the header. Records may have fewer or more fields than
// the header; missing trailing cells read as blank through Row.Cell. Quotes
// are parsed leniently because older files were produced by a writer that
// wrapped only some fields in quotes.
//
// # Inputs
//
//   - r: Decoded (UTF-8) CSV text
//
// # Outputs
//
//   - *Table: Header and rows
//   - error: ErrEmptyFile, or a parse error with line context
func ReadTable(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	table := &Table{Header: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		line, _ := reader.FieldPos(0)
		table.Rows = append(table.Rows, Row{Line: line, Cells: record})
	}
	return table, nil
}

// trimBOM drops a UTF-8 byte order mark left by spreadsheet exports.
func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}
