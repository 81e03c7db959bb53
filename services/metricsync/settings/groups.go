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

import "github.com/AleutianAI/metricsync/services/metricsync/model"

// Groups holds ConfigRows grouped by resource type, then by metric.
//
// # Description
//
// Resource types keep the order in which they first appear in the prior
// file, metrics keep first-seen order within their resource type, and the
// ConfigRows of one key keep file order. Lookups are map based and do not
// depend on the catalog visiting resource types in any particular order.
//
// # Thread Safety
//
// Groups is read-only after Extract returns and safe for concurrent reads.
type Groups struct {
	resourceTypes []string
	metrics       map[string][]string
	rows          map[model.Key][]model.ConfigRow
}

func newGroups() *Groups {
	return &Groups{
		metrics: make(map[string][]string),
		rows:    make(map[model.Key][]model.ConfigRow),
	}
}

// add appends a row and returns the number of rows now held for its key.
func (g *Groups) add(row model.ConfigRow) int {
	key := row.Key
	if _, seen := g.metrics[key.ResourceType]; !seen {
		g.resourceTypes = append(g.resourceTypes, key.ResourceType)
	}
	if _, seen := g.rows[key]; !seen {
		g.metrics[key.ResourceType] = append(g.metrics[key.ResourceType], key.MetricID)
	}
	g.rows[key] = append(g.rows[key], row)
	return len(g.rows[key])
}

// Lookup returns the ConfigRows for a key in file order, or nil.
//
// The returned slice must not be modified.
func (g *Groups) Lookup(key model.Key) []model.ConfigRow {
	if g == nil {
		return nil
	}
	return g.rows[key]
}

// Len returns the number of distinct keys.
func (g *Groups) Len() int {
	if g == nil {
		return 0
	}
	return len(g.rows)
}

// Rows returns the total number of ConfigRows.
func (g *Groups) Rows() int {
	n := 0
	for _, k := range g.Keys() {
		n += len(g.rows[k])
	}
	return n
}

// ResourceTypes returns resource types in first-seen order.
func (g *Groups) ResourceTypes() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.resourceTypes...)
}

// Keys returns every key, grouped by resource type, in first-seen order.
func (g *Groups) Keys() []model.Key {
	if g == nil {
		return nil
	}
	keys := make([]model.Key, 0, len(g.rows))
	for _, rt := range g.resourceTypes {
		for _, metric := range g.metrics[rt] {
			keys = append(keys, model.Key{ResourceType: rt, MetricID: metric})
		}
	}
	return keys
}
