// Package extractor walks a parsed trial document and populates the branches
// of a trial record. Every field is resolved through a selector table; a
// field that cannot be located becomes "" (scalar) or an empty sequence.
package extractor

import (
	"regexp"
	"slices"
	"strings"

	"eutrials/internal/config"
	"eutrials/internal/htmldoc"
	"eutrials/internal/logger"
	"eutrials/internal/models"

	"golang.org/x/net/html"
)

// Extractor populates trial record branches from a document.
type Extractor struct {
	log                 *logger.Logger
	cfg                 config.ExtractionConfig
	notificationPattern *regexp.Regexp
	countryPattern      *regexp.Regexp
	countryPatternLoose *regexp.Regexp
	partOnePattern      *regexp.Regexp
}

// New creates an extractor for the given sections (config.Section* names).
// A nil or empty list selects every section.
func New(log *logger.Logger, sections []string) *Extractor {
	if log == nil {
		log = logger.Discard()
	}

	for _, s := range sections {
		if !slices.Contains(config.AvailableSections, s) {
			log.Warn("unknown section skipped", "section", s)
		}
	}

	return &Extractor{
		log: log,
		cfg: config.ExtractionConfig{Sections: slices.Clone(sections)},
		// "2.3.1 France"
		notificationPattern: regexp.MustCompile(`\d+\.\d+\.\d+\s+(.+)`),
		// "3.2.1 France - Ongoing"; the strict form keeps hyphenated names intact
		countryPattern:      regexp.MustCompile(`(\d+\.\d+\.\d+)\s+(.+?)\s+-\s+(.+)`),
		countryPatternLoose: regexp.MustCompile(`(\d+\.\d+\.\d+)\s+(.+?)\s*-\s*(.+)`),
		partOnePattern:      regexp.MustCompile(`Assessment Part I\b`),
	}
}

// Extract builds a record holding one branch per selected section, in
// canonical section order.
func (e *Extractor) Extract(doc *htmldoc.Document) models.Record {
	log := e.log.With("file", doc.Path)
	rec := models.Record{}

	for _, s := range config.AvailableSections {
		if !e.cfg.HasSection(s) {
			continue
		}

		switch s {
		case config.SectionHeader:
			rec[models.BranchHeader] = e.Header(doc)
		case config.SectionSummary:
			rec[models.BranchSummary] = e.Summary(doc)
		case config.SectionTrialInfo:
			rec[models.BranchTrialInfo] = e.TrialInfo(doc)
		case config.SectionResults:
			rec[models.BranchTrialResults] = e.Results(doc)
		case config.SectionLocations:
			rec[models.BranchLocations] = e.Locations(doc)
		}
	}

	log.Debug("extraction complete", "branches", len(rec))

	return rec
}

// section returns the scope of the element with the given id, logging when absent.
func (e *Extractor) section(doc *htmldoc.Document, id string) htmldoc.Scope {
	n := doc.ByID(id)
	if n == nil {
		e.log.Warn("section not found", "file", doc.Path, "section", id)
	}

	return htmldoc.In(n)
}

func (e *Extractor) sub(doc *htmldoc.Document, scope htmldoc.Scope, query string) htmldoc.Scope {
	n := doc.Select(scope, query)
	if n == nil && !scope.Empty() {
		e.log.Debug("subsection not found", "file", doc.Path, "selector", query)
	}

	return htmldoc.In(n)
}

func readFields(doc *htmldoc.Document, scope htmldoc.Scope, table fieldTable) map[string]any {
	out := make(map[string]any, len(table))

	for _, f := range table {
		out[f.name] = doc.Field(scope, f.label)
	}

	return out
}

// readTable resolves the table following the label or heading that contains
// substr and converts its rows to record values.
func readTable(doc *htmldoc.Document, scope htmldoc.Scope, labelQuery, substr string) []any {
	return rows(doc.Table(doc.LabelValue(scope, labelQuery, substr, "table")))
}

func rows(table []map[string]string) []any {
	out := make([]any, 0, len(table))

	for _, row := range table {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = v
		}

		out = append(out, m)
	}

	return out
}

func project(doc *htmldoc.Document, scope htmldoc.Scope, rule tableRule) []any {
	table := doc.Table(doc.LabelValue(scope, "h4", rule.heading, "table"))
	out := make([]any, 0, len(table))

	for _, row := range table {
		out = append(out, map[string]any{
			"number":      row[rule.numberCol],
			"description": row[rule.describeCol],
		})
	}

	return out
}

func splitList(s string) []any {
	out := []any{}

	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func hasClass(n *html.Node, class string) bool {
	return slices.Contains(strings.Fields(htmldoc.Attr(n, "class")), class)
}
