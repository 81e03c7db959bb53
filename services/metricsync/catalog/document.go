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
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// contentClass marks the article container on learn.microsoft.com pages.
const contentClass = "content"

// parseDocument parses an HTML page.
func parseDocument(page []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(page))
}

// findContent returns the first div whose class list contains "content".
func findContent(root *html.Node) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Div && hasClass(n, contentClass) {
			found = n
			return false
		}
		return true
	})
	return found
}

// walk visits n and its descendants depth first. Returning false from fn
// skips the children of the visited node.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, token := range strings.Fields(attr(n, "class")) {
		if token == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// sections returns the h2 and table elements under root in document order.
// Tables are not searched for nested sections.
func sections(root *html.Node) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.DataAtom {
		case atom.H2:
			out = append(out, n)
			return false
		case atom.Table:
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

// elements returns the descendants of root with the given tag, in document
// order, without descending into matches.
func elements(root *html.Node, tag atom.Atom) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) bool {
		if n != root && n.Type == html.ElementNode && n.DataAtom == tag {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

// text returns the whitespace-collapsed text content of n.
func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		switch {
		case c.Type == html.TextNode:
			b.WriteString(c.Data)
		case c.Type == html.ElementNode && c.DataAtom == atom.Br:
			b.WriteByte(' ')
		}
		return true
	})
	return collapseSpace(b.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tableHeaders returns the text of the header cells of a table: the th
// cells of the first row that has any.
func tableHeaders(table *html.Node) []string {
	for _, tr := range elements(table, atom.Tr) {
		ths := cellsOf(tr, atom.Th)
		if len(ths) == 0 {
			continue
		}
		headers := make([]string, len(ths))
		for i, th := range ths {
			headers[i] = text(th)
		}
		return headers
	}
	return nil
}

// tableRows returns the td cells of every body row, skipping header rows.
func tableRows(table *html.Node) [][]*html.Node {
	var rows [][]*html.Node
	for _, tr := range elements(table, atom.Tr) {
		tds := cellsOf(tr, atom.Td)
		if len(tds) == 0 {
			continue
		}
		rows = append(rows, tds)
	}
	return rows
}

func cellsOf(tr *html.Node, tag atom.Atom) []*html.Node {
	var cells []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == tag {
			cells = append(cells, c)
		}
	}
	return cells
}
