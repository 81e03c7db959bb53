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
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// CleanOptions controls how cell markup becomes CSV text.
type CleanOptions struct {
	// StripDelimiter removes commas from descriptions.
	StripDelimiter bool `yaml:"strip_delimiter" json:"strip_delimiter"`
}

// cleanCell reduces a table cell to plain text.
//
// # Description
//
// Anchors are replaced by their inner text, so a link such as
// <a data-linktype="external" href="https://...">label</a> becomes "label"
// and the URL is dropped. Other inline markup is reduced to its text, <br>
// becomes a space and whitespace runs collapse. Double quotes become single
// quotes.
func cleanCell(nodes []*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		walk(n, func(c *html.Node) bool {
			switch {
			case c.Type == html.TextNode:
				b.WriteString(c.Data)
			case c.Type == html.ElementNode && c.DataAtom == atom.Br:
				b.WriteByte(' ')
			case c.Type == html.ElementNode && isBlock(c.DataAtom):
				b.WriteByte(' ')
			}
			return true
		})
	}
	return strings.ReplaceAll(collapseSpace(b.String()), `"`, "'")
}

// cleanDescription is cleanCell plus the delimiter policy.
func cleanDescription(nodes []*html.Node, opts CleanOptions) string {
	s := cleanCell(nodes)
	if opts.StripDelimiter {
		s = collapseSpace(strings.ReplaceAll(s, ",", ""))
	}
	return s
}

// isBlock reports elements that separate words when flattened.
func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol:
		return true
	}
	return false
}

// children returns the child nodes of a cell.
func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// splitAtBreak splits the children of a cell at the first <br>. ok is false
// when the cell has no top-level <br>.
func splitAtBreak(cell *html.Node) (before, after []*html.Node, ok bool) {
	nodes := children(cell)
	for i, c := range nodes {
		if c.Type == html.ElementNode && c.DataAtom == atom.Br {
			return nodes[:i], nodes[i+1:], true
		}
	}
	return nodes, nil, false
}
