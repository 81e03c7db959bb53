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
	"fmt"
	"log/slog"
	"net/url"
	"regexp"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
)

// DefaultDetailLinkPattern matches the per-resource-type metric pages
// linked from the metrics index.
const DefaultDetailLinkPattern = `/supported-metrics/[a-z0-9-]+-metrics$`

// IndexDetailConfig describes the index page and its detail pages.
type IndexDetailConfig struct {
	IndexURL string

	// DetailLinkPattern selects index links that point at detail pages. It
	// is matched against the resolved URL without query or fragment.
	DetailLinkPattern string

	Layouts []Layout
}

// detailLink is one resource type listed on the index page.
type detailLink struct {
	resourceType string
	url          string
}

// IndexDetailFetcher reads an index page listing one link per resource
// type, then one detail page per link.
//
// # Description
//
// Detail pages are fetched in parallel, bounded by FetchConfig.Concurrency
// and paced by the shared rate limiter. Tables are returned in index order
// regardless of completion order. The first failure cancels the remaining
// fetches.
type IndexDetailFetcher struct {
	config  IndexDetailConfig
	pattern *regexp.Regexp
	get     *getter
	logger  *slog.Logger
}

// NewIndexDetailFetcher creates an IndexDetailFetcher. An empty pattern
// uses DefaultDetailLinkPattern.
func NewIndexDetailFetcher(config IndexDetailConfig, fetch FetchConfig, client HTTPClient, logger *slog.Logger) (*IndexDetailFetcher, error) {
	if config.DetailLinkPattern == "" {
		config.DetailLinkPattern = DefaultDetailLinkPattern
	}
	pattern, err := regexp.Compile(config.DetailLinkPattern)
	if err != nil {
		return nil, fmt.Errorf("detail link pattern: %w", err)
	}
	g := newGetter(client, fetch, logger)
	return &IndexDetailFetcher{config: config, pattern: pattern, get: g, logger: g.logger}, nil
}

// Fetch retrieves the index and every detail page.
//
// # Outputs
//
//   - *RawCatalog: One RawTable per linked resource type, in index order
//   - error: *RetrievalError or *DriftError from the first failing page
func (f *IndexDetailFetcher) Fetch(ctx context.Context) (*RawCatalog, error) {
	ctx, span := startFetchSpan(ctx, ModeIndexDetail, f.config.IndexURL)
	defer span.End()

	raw, err := f.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	recordTables(ctx, ModeIndexDetail, len(raw.Tables))
	return raw, nil
}

func (f *IndexDetailFetcher) fetch(ctx context.Context) (*RawCatalog, error) {
	links, err := f.index(ctx)
	if err != nil {
		return nil, err
	}
	f.logger.Info("catalog index read",
		slog.String("url", f.config.IndexURL),
		slog.Int("resource_types", len(links)),
	)

	tables := make([]RawTable, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.get.config.Concurrency)
	for i, link := range links {
		g.Go(func() error {
			table, err := f.detail(gctx, link)
			if err != nil {
				return err
			}
			tables[i] = *table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &RawCatalog{Mode: ModeIndexDetail, Pages: len(links) + 1, Tables: tables}, nil
}

// index returns the detail links of the index page, de-duplicated by URL
// in first-seen order.
func (f *IndexDetailFetcher) index(ctx context.Context) ([]detailLink, error) {
	base, err := url.Parse(f.config.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("index url: %w", err)
	}
	page, err := f.get.get(ctx, f.config.IndexURL)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(page)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.config.IndexURL, err)
	}
	content := findContent(doc)
	if content == nil {
		return nil, &DriftError{Kind: DriftMissingContent, Source: f.config.IndexURL, Detail: "no div with class \"content\""}
	}

	seen := make(map[string]bool)
	var links []detailLink
	for _, a := range elements(content, atom.A) {
		href := attr(a, "href")
		if href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		resolved.RawQuery = ""
		target := resolved.String()
		if !f.pattern.MatchString(resolved.Path) || seen[target] {
			continue
		}
		resourceType := text(a)
		if resourceType == "" {
			continue
		}
		seen[target] = true
		links = append(links, detailLink{resourceType: resourceType, url: target})
	}

	if len(links) == 0 {
		return nil, &DriftError{
			Kind:   DriftEmptyIndex,
			Source: f.config.IndexURL,
			Detail: fmt.Sprintf("no links match %q", f.config.DetailLinkPattern),
		}
	}
	return links, nil
}

// detail fetches one detail page and returns its first table with a known
// layout.
func (f *IndexDetailFetcher) detail(ctx context.Context, link detailLink) (*RawTable, error) {
	page, err := f.get.get(ctx, link.url)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(page)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", link.url, err)
	}
	root := findContent(doc)
	if root == nil {
		return nil, &DriftError{Kind: DriftMissingContent, Source: link.url, Detail: "no div with class \"content\""}
	}

	tables := elements(root, atom.Table)
	if len(tables) == 0 {
		return nil, &DriftError{Kind: DriftMissingTable, Source: link.url, Detail: "no metrics table for " + link.resourceType}
	}
	for _, table := range tables {
		layout, err := MatchLayout(tableHeaders(table), f.config.Layouts)
		if err != nil {
			continue
		}
		return &RawTable{
			ResourceType: link.resourceType,
			Source:       link.url,
			Layout:       layout,
			Rows:         tableRows(table),
		}, nil
	}

	_, err = MatchLayout(tableHeaders(tables[0]), f.config.Layouts)
	return nil, withSource(err, link.url)
}
