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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Fetch modes.
const (
	ModeSinglePage  = "single_page"
	ModeIndexDetail = "index_detail"
)

// SinglePageConfig describes the one-page reference.
type SinglePageConfig struct {
	URL string

	// Baseline is the recorded sequence of the first section headings.
	Baseline []string

	// LeadingSections is the number of preamble sections before the first
	// resource type heading.
	LeadingSections int

	// TrailingSections is the number of sections after the last table.
	TrailingSections int

	Layouts []Layout
}

// SinglePageFetcher reads every resource type from one page of alternating
// h2 headings and metric tables.
//
// # Thread Safety
//
// Safe for concurrent use; each Fetch is independent.
type SinglePageFetcher struct {
	config SinglePageConfig
	get    *getter
	logger *slog.Logger
}

// NewSinglePageFetcher creates a SinglePageFetcher. A nil client uses
// NewHTTPClient and a nil logger uses slog.Default.
func NewSinglePageFetcher(config SinglePageConfig, fetch FetchConfig, client HTTPClient, logger *slog.Logger) *SinglePageFetcher {
	g := newGetter(client, fetch, logger)
	return &SinglePageFetcher{config: config, get: g, logger: g.logger}
}

// Fetch retrieves and drift-checks the page.
//
// # Description
//
// The h2 and table elements of the content container are collected in
// document order. The first headings must equal Baseline. The leading and
// trailing sections are then dropped and the rest must pair up as
// heading, table. Every table must match a known layout.
//
// # Outputs
//
//   - *RawCatalog: One RawTable per heading, in page order
//   - error: *RetrievalError or *DriftError
func (f *SinglePageFetcher) Fetch(ctx context.Context) (*RawCatalog, error) {
	ctx, span := startFetchSpan(ctx, ModeSinglePage, f.config.URL)
	defer span.End()

	raw, err := f.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	recordTables(ctx, ModeSinglePage, len(raw.Tables))
	return raw, nil
}

func (f *SinglePageFetcher) fetch(ctx context.Context) (*RawCatalog, error) {
	page, err := f.get.get(ctx, f.config.URL)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(page)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.config.URL, err)
	}

	content := findContent(doc)
	if content == nil {
		return nil, &DriftError{Kind: DriftMissingContent, Source: f.config.URL, Detail: "no div with class \"content\""}
	}
	secs := sections(content)

	if err := CheckHeadings(sectionTitles(secs, len(f.config.Baseline)), f.config.Baseline); err != nil {
		return nil, withSource(err, f.config.URL)
	}

	lead, trail := f.config.LeadingSections, f.config.TrailingSections
	if lead+trail > len(secs) {
		return nil, &DriftError{
			Kind:   DriftPairing,
			Source: f.config.URL,
			Detail: fmt.Sprintf("page has %d sections, fewer than %d leading and %d trailing", len(secs), lead, trail),
		}
	}
	body := secs[lead : len(secs)-trail]
	if len(body)%2 != 0 {
		return nil, &DriftError{
			Kind:   DriftPairing,
			Source: f.config.URL,
			Detail: fmt.Sprintf("odd number of headings and tables (%d)", len(body)),
		}
	}

	raw := &RawCatalog{Mode: ModeSinglePage, Pages: 1}
	for i := 0; i < len(body); i += 2 {
		heading, table := body[i], body[i+1]
		if heading.DataAtom != atom.H2 || table.DataAtom != atom.Table {
			return nil, &DriftError{
				Kind:   DriftPairing,
				Source: f.config.URL,
				Detail: fmt.Sprintf("section %d is not a heading followed by a table", lead+i+1),
			}
		}
		resourceType := text(heading)
		layout, err := MatchLayout(tableHeaders(table), f.config.Layouts)
		if err != nil {
			return nil, withSource(err, f.config.URL+"#"+resourceType)
		}
		raw.Tables = append(raw.Tables, RawTable{
			ResourceType: resourceType,
			Source:       f.config.URL,
			Layout:       layout,
			Rows:         tableRows(table),
		})
	}

	f.logger.Debug("catalog page parsed",
		slog.String("url", f.config.URL),
		slog.Int("sections", len(secs)),
		slog.Int("tables", len(raw.Tables)),
	)
	return raw, nil
}

// sectionTitles returns the heading text of the first n sections. Tables
// stand in as "<table>" so an early table fails the baseline check.
func sectionTitles(secs []*html.Node, n int) []string {
	if n > len(secs) {
		n = len(secs)
	}
	titles := make([]string, n)
	for i := 0; i < n; i++ {
		if secs[i].DataAtom == atom.H2 {
			titles[i] = text(secs[i])
		} else {
			titles[i] = "<table>"
		}
	}
	return titles
}

// withSource attaches a source URL to a drift error.
func withSource(err error, source string) error {
	var drift *DriftError
	if errors.As(err, &drift) && drift.Source == "" {
		drift.Source = source
	}
	return err
}
