// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog retrieves the published list of supported Azure Monitor
// platform metrics and turns it into model.MetricRecord values.
//
// Retrieval runs the drift checks. A page whose headings or table headers
// no longer match the recorded baseline is rejected with a *DriftError
// before any record is produced.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNilCatalog is returned by Parse when it is given no raw catalog.
var ErrNilCatalog = errors.New("catalog: nil raw catalog")

// DriftKind classifies a structural change in the published reference.
type DriftKind string

const (
	// DriftHeadings means the leading section headings changed.
	DriftHeadings DriftKind = "headings"

	// DriftPairing means the sections no longer alternate heading, table.
	DriftPairing DriftKind = "pairing"

	// DriftLayout means a metrics table has an unknown column layout.
	DriftLayout DriftKind = "layout"

	// DriftMissingContent means the page has no content container.
	DriftMissingContent DriftKind = "missing_content"

	// DriftMissingTable means a detail page has no metrics table.
	DriftMissingTable DriftKind = "missing_table"

	// DriftEmptyIndex means the index page lists no detail pages.
	DriftEmptyIndex DriftKind = "empty_index"
)

// DriftError reports that the published reference no longer has the shape
// the parser was written for. It is always fatal: nothing is written.
type DriftError struct {
	Kind DriftKind

	// Source is the URL of the page that drifted.
	Source string

	// Detail is a human-readable description of the mismatch.
	Detail string

	Expected []string
	Found    []string
}

// Error implements error.
func (e *DriftError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "catalog drift (%s)", e.Kind)
	if e.Source != "" {
		fmt.Fprintf(&b, " at %s", e.Source)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Expected) > 0 || len(e.Found) > 0 {
		fmt.Fprintf(&b, " (expected %q, found %q)", e.Expected, e.Found)
	}
	return b.String()
}

// RetrievalError reports a page that could not be fetched after all
// attempts.
type RetrievalError struct {
	URL string

	// StatusCode is the last HTTP status seen, 0 if no response arrived.
	StatusCode int

	Attempts int
	Err      error
}

// Error implements error.
func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// BodyTooLargeError reports a page body longer than FetchConfig.MaxBodyBytes.
// It is never retried.
type BodyTooLargeError struct {
	Limit int64
}

// Error implements error.
func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeds %d bytes", e.Limit)
}

// MalformedRowError describes a table row with fewer cells than its layout.
// Such rows are skipped and counted; they never abort a run.
type MalformedRowError struct {
	ResourceType string `json:"resource_type"`

	// Row is the 1-based row within the table body.
	Row int `json:"row"`

	Cells int `json:"cells"`
	Want  int `json:"want"`
}

// Error implements error.
func (e MalformedRowError) Error() string {
	return fmt.Sprintf("%s row %d: %d cells, layout needs %d", e.ResourceType, e.Row, e.Cells, e.Want)
}

// statusError is a non-2xx response, used to classify retries.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == 429
}
