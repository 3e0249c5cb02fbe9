package extractor

import (
	"eutrials/internal/htmldoc"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Results extracts the free-form result artifacts of div#trial_results. Each
// block collects the tables, lists and paragraphs between its h2 heading and
// the next h2.
func (e *Extractor) Results(doc *htmldoc.Document) map[string]any {
	scope := e.section(doc, idTrialResults)
	out := make(map[string]any, len(resultBlocks))

	for _, b := range resultBlocks {
		out[b.key] = e.resultBlock(doc, doc.Select(scope, "h2#"+b.id))
	}

	return out
}

func (e *Extractor) resultBlock(doc *htmldoc.Document, h2 *html.Node) []any {
	items := []any{}
	if h2 == nil {
		return items
	}

	for n := htmldoc.NextElement(h2); n != nil && n.DataAtom != atom.H2; n = htmldoc.NextElement(n) {
		switch n.DataAtom {
		case atom.Table:
			items = append(items, map[string]any{"type": "table", "content": rows(doc.Table(n))})
		case atom.Ul, atom.Ol:
			items = append(items, map[string]any{"type": "list", "content": toAny(doc.List(n))})
		case atom.P:
			if text := htmldoc.Text(n); text != "" {
				items = append(items, map[string]any{"type": "text", "content": text})
			}
		}
	}

	return items
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}

	return out
}
