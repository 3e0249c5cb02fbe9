package extractor

import (
	"strings"

	"eutrials/internal/htmldoc"

	"golang.org/x/net/html"
)

// Locations extracts the participating countries with their sites and the
// sponsor contact block of div#locations.
func (e *Extractor) Locations(doc *htmldoc.Document) map[string]any {
	scope := e.section(doc, idLocations)

	return map[string]any{
		"countries": e.countries(doc, scope),
		"sponsors":  e.sponsors(doc, scope),
	}
}

// ParseCountryHeading splits "3.2.1 France - Ongoing" into country and status.
func (e *Extractor) ParseCountryHeading(text string) (country, status string, ok bool) {
	m := e.countryPattern.FindStringSubmatch(text)
	if m == nil {
		m = e.countryPatternLoose.FindStringSubmatch(text)
	}

	if m == nil {
		return "", "", false
	}

	return strings.TrimSpace(m[2]), strings.TrimSpace(m[3]), true
}

func (e *Extractor) countries(doc *htmldoc.Document, scope htmldoc.Scope) []any {
	countries := []any{}

	for _, g := range doc.Groups(scope, queryCountryHeading, queryContent) {
		name, status, ok := e.ParseCountryHeading(g.Title())
		if !ok {
			e.log.Debug("country heading not recognised", "file", doc.Path, "heading", g.Title())
			continue
		}

		content := htmldoc.In(g.Content)

		countries = append(countries, map[string]any{
			"country":          name,
			"status":           status,
			"planned_subjects": doc.Field(content, plannedSubjectsLabel),
			"sites":            e.sites(doc, g.Content),
		})
	}

	return countries
}

func (e *Extractor) sites(doc *htmldoc.Document, content *html.Node) []any {
	sites := []any{}
	if content == nil {
		return sites
	}

	for _, h4 := range doc.SelectAll(htmldoc.In(content), "h4") {
		title := htmldoc.Text(h4)
		name := title

		if _, after, found := strings.Cut(title, ": "); found {
			name = after
		}

		scope := siteScope(doc, h4)
		site := readFields(doc, scope, siteFields)
		site["name"] = name
		site["contact"] = readFields(doc, scope, siteContactFields)

		sites = append(sites, site)
	}

	return sites
}

// siteScope is the h4's parent when that parent holds this site alone,
// otherwise the siblings between this h4 and the next.
func siteScope(doc *htmldoc.Document, h4 *html.Node) htmldoc.Scope {
	if p := h4.Parent; p != nil && len(doc.SelectAll(htmldoc.In(p), "h4")) == 1 {
		return htmldoc.In(p)
	}

	return htmldoc.SiblingsUntil(h4)
}

func (e *Extractor) sponsors(doc *htmldoc.Document, scope htmldoc.Scope) map[string]any {
	h2 := doc.Select(scope, querySponsors)
	if h2 == nil {
		if !scope.Empty() {
			e.log.Warn("sponsors block not found", "file", doc.Path)
		}

		return map[string]any{}
	}

	block := htmldoc.SiblingsUntil(h2)
	out := map[string]any{
		"details": e.sponsorDetails(doc, block),
	}

	for _, c := range sponsorContacts {
		var contact htmldoc.Scope
		if h4 := doc.FindContaining(block, "h4", c.heading); h4 != nil {
			contact = htmldoc.SiblingsUntil(h4)
		}

		out[c.key] = readFields(doc, contact, sponsorContactFields)
	}

	return out
}

func (e *Extractor) sponsorDetails(doc *htmldoc.Document, block htmldoc.Scope) map[string]any {
	name := doc.Field(block, sponsorNameLabel)
	if name == "" {
		for _, p := range doc.SelectAll(block, "p") {
			if !hasClass(p, "bolder") {
				name = htmldoc.Text(p)
				break
			}
		}
	}

	content := doc.Select(block, queryContent)
	if content == nil {
		return map[string]any{"name": name}
	}

	details := readFields(doc, htmldoc.In(content), sponsorDetailFields)
	details["name"] = name

	return details
}
