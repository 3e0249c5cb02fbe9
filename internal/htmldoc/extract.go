package htmldoc

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Scope is an ordered set of subtrees a lookup searches. An empty scope
// matches nothing, which keeps every lookup total.
type Scope []*html.Node

// In returns a scope over the subtree rooted at n, or an empty scope for nil.
func In(n *html.Node) Scope {
	if n == nil {
		return nil
	}

	return Scope{n}
}

// Empty reports whether the scope covers no nodes.
func (s Scope) Empty() bool {
	return len(s) == 0
}

// each visits every node of the scope in document order: each root itself
// and then its descendants.
func (s Scope) each(visit func(*html.Node) bool) {
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if !visit(n) {
			return false
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}

		return true
	}

	for _, root := range s {
		if !walk(root) {
			return
		}
	}
}

func (d *Document) compile(query string) *Selector {
	sel, err := Compile(query)
	if err != nil {
		d.log.Warn("invalid selector", "selector", query, "error", err)
		return nil
	}

	return sel
}

// SelectAll returns every node in scope matching query, in document order.
func (d *Document) SelectAll(scope Scope, query string) []*html.Node {
	sel := d.compile(query)
	if sel == nil {
		return nil
	}

	var out []*html.Node

	scope.each(func(n *html.Node) bool {
		if sel.Match(n) {
			out = append(out, n)
		}

		return true
	})

	return out
}

// Select returns the first node in scope matching query, or nil.
func (d *Document) Select(scope Scope, query string) *html.Node {
	sel := d.compile(query)
	if sel == nil {
		return nil
	}

	var found *html.Node

	scope.each(func(n *html.Node) bool {
		if sel.Match(n) {
			found = n
			return false
		}

		return true
	})

	return found
}

// FindContaining returns the first node matching query whose text contains
// substr. The structural query runs first, then a linear substring filter.
func (d *Document) FindContaining(scope Scope, query, substr string) *html.Node {
	for _, n := range d.SelectAll(scope, query) {
		if strings.Contains(Text(n), substr) {
			return n
		}
	}

	return nil
}

// LabelValue locates a value node adjacent to a label: the first node
// matching labelQuery whose text contains substr and whose next element
// sibling matches valueQuery. It returns that sibling or nil.
func (d *Document) LabelValue(scope Scope, labelQuery, substr, valueQuery string) *html.Node {
	valueSel := d.compile(valueQuery)
	if valueSel == nil {
		return nil
	}

	for _, label := range d.SelectAll(scope, labelQuery) {
		if !strings.Contains(Text(label), substr) {
			continue
		}

		if next := NextElement(label); next != nil && valueSel.Match(next) {
			return next
		}
	}

	return nil
}

// Field reads the text of the "p.bolder" label/"p" value pair whose label
// contains substr, or "" when absent.
func (d *Document) Field(scope Scope, substr string) string {
	return TextOr(d.LabelValue(scope, "p.bolder", substr, "p"), "")
}

// SiblingsUntil returns the element siblings following anchor up to, but not
// including, the next element with the same tag.
func SiblingsUntil(anchor *html.Node) Scope {
	if anchor == nil {
		return nil
	}

	var out Scope

	for s := NextElement(anchor); s != nil; s = NextElement(s) {
		if s.DataAtom == anchor.DataAtom && s.Data == anchor.Data {
			break
		}

		out = append(out, s)
	}

	return out
}

// Text returns the trimmed text content of n and its descendants.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}

	var sb strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}

			if n.DataAtom == atom.Br {
				sb.WriteByte(' ')
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return strings.TrimSpace(sb.String())
}

// TextOr returns the text of n, or def when n is nil.
func TextOr(n *html.Node, def string) string {
	if n == nil {
		return def
	}

	return Text(n)
}

// Table reads a table into row mappings keyed by header text. Headers come
// from thead th cells, else from the th cells of the first row. A body row
// whose cell count differs from the header count is dropped with a warning.
func (d *Document) Table(n *html.Node) []map[string]string {
	if n == nil {
		return []map[string]string{}
	}

	var headers []string

	if thead := d.Select(In(n), "thead"); thead != nil {
		for _, th := range d.SelectAll(In(thead), "th") {
			headers = append(headers, Text(th))
		}
	}

	if len(headers) == 0 {
		if first := d.Select(In(n), "tr"); first != nil {
			for _, th := range d.SelectAll(In(first), "th") {
				headers = append(headers, Text(th))
			}
		}
	}

	if len(headers) == 0 {
		d.log.Warn("table has no header row", "file", d.Path)
		return []map[string]string{}
	}

	rows := []map[string]string{}

	for _, tr := range d.SelectAll(In(n), "tr") {
		cells := d.SelectAll(In(tr), "td")
		if len(cells) == 0 {
			// header row
			continue
		}

		if len(cells) != len(headers) {
			d.log.Warn("dropping table row with mismatched cell count",
				"file", d.Path, "headers", len(headers), "cells", len(cells))

			continue
		}

		row := make(map[string]string, len(headers))
		for i, h := range headers {
			row[h] = Text(cells[i])
		}

		rows = append(rows, row)
	}

	return rows
}

// List returns the texts of the li items of a ul or ol.
func (d *Document) List(n *html.Node) []string {
	items := []string{}
	if n == nil {
		return items
	}

	for _, li := range d.SelectAll(In(n), "li") {
		items = append(items, Text(li))
	}

	return items
}

// Group pairs a heading with the content block that follows it.
type Group struct {
	Heading *html.Node
	Content *html.Node
}

// Title returns the heading text.
func (g Group) Title() string {
	return Text(g.Heading)
}

// Groups pairs every heading in scope with the first content block that
// follows it in document order and precedes the next heading. Content is nil
// when no such block exists.
func (d *Document) Groups(scope Scope, headingQuery, contentQuery string) []Group {
	headings := d.SelectAll(scope, headingQuery)
	contents := d.SelectAll(scope, contentQuery)
	groups := make([]Group, 0, len(headings))

	for i, h := range headings {
		start := d.position(h)

		end := -1
		if i+1 < len(headings) {
			end = d.position(headings[i+1])
		}

		g := Group{Heading: h}

		for _, c := range contents {
			pos := d.position(c)
			if pos <= start {
				continue
			}

			if end >= 0 && pos >= end {
				break
			}

			g.Content = c

			break
		}

		groups = append(groups, g)
	}

	return groups
}
