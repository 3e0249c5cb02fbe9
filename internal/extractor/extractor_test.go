package extractor

import (
	"path/filepath"
	"testing"

	"eutrials/internal/config"
	"eutrials/internal/htmldoc"
	"eutrials/internal/models"
)

func loadFixture(t *testing.T) *htmldoc.Document {
	t.Helper()

	doc, err := htmldoc.Load(filepath.Join("testdata", "trial.html"), nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	return doc
}

func parse(t *testing.T, src string) *htmldoc.Document {
	t.Helper()

	doc, err := htmldoc.ParseString(src, nil)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	return doc
}

func TestExtractor_Extract_Branches(t *testing.T) {
	rec := New(nil, nil).Extract(loadFixture(t))

	for _, branch := range []string{
		models.BranchHeader,
		models.BranchSummary,
		models.BranchTrialInfo,
		models.BranchTrialResults,
		models.BranchLocations,
	} {
		if _, ok := rec[branch]; !ok {
			t.Errorf("branch %q missing", branch)
		}
	}
}

func TestExtractor_Extract_SelectedSections(t *testing.T) {
	rec := New(nil, []string{config.SectionHeader, config.SectionResults}).Extract(loadFixture(t))

	if len(rec) != 2 {
		t.Fatalf("len(rec) = %d, want 2", len(rec))
	}

	if _, ok := rec[models.BranchTrialResults]; !ok {
		t.Errorf("branch %q missing", models.BranchTrialResults)
	}

	rec = New(nil, []string{"appendix", config.SectionHeader}).Extract(loadFixture(t))
	if _, ok := rec[models.BranchHeader]; len(rec) != 1 || !ok {
		t.Errorf("Extract() with an unknown section = %v, want the header branch only", rec)
	}
}

func TestExtractor_Header(t *testing.T) {
	header := New(nil, nil).Header(loadFixture(t))

	tests := map[string]string{
		"title":         "A Phase II study of Examplumab in adults with  moderate asthma",
		"euct_number":   "2023-501234-12-00",
		"protocol_code": "EXA-201",
	}

	for key, want := range tests {
		if got := header[key]; got != want {
			t.Errorf("header[%q] = %q, want %q", key, got, want)
		}
	}
}

func TestExtractor_Header_Fallback(t *testing.T) {
	doc := parse(t, `<div id="trial_details">
<h3>Trial identifiers</h3>
<div class="content">
<p class="bolder">EU trial number:</p><p>2022-500000-01-00</p>
<p class="bolder">Full title:</p><p>Fallback title</p>
</div></div>`)

	header := New(nil, nil).Header(doc)

	if header["euct_number"] != "2022-500000-01-00" {
		t.Errorf("euct_number = %q, want %q", header["euct_number"], "2022-500000-01-00")
	}

	if header["title"] != "Fallback title" {
		t.Errorf("title = %q, want %q", header["title"], "Fallback title")
	}

	if header["protocol_code"] != "" {
		t.Errorf("protocol_code = %q, want empty", header["protocol_code"])
	}
}

func TestExtractor_MissingSections_DefaultShape(t *testing.T) {
	doc := parse(t, `<html><body><p>nothing here</p></body></html>`)
	rec := New(nil, nil).Extract(doc)

	if got := models.String(rec, "header.euct_number"); got != "" {
		t.Errorf("header.euct_number = %q, want empty", got)
	}

	if got := models.String(rec, "summary.trial_information.trial_phase"); got != "" {
		t.Errorf("trial_phase = %q, want empty", got)
	}

	if got := models.List(rec, "summary.trial_information.locations"); got == nil || len(got) != 0 {
		t.Errorf("locations = %v, want empty sequence", got)
	}

	if got := models.List(rec, "summary.applications"); got == nil || len(got) != 0 {
		t.Errorf("applications = %v, want empty sequence", got)
	}

	if got := models.List(rec, "locations.countries"); got == nil || len(got) != 0 {
		t.Errorf("countries = %v, want empty sequence", got)
	}

	if got := models.List(rec, "trial_results.summaries"); got == nil || len(got) != 0 {
		t.Errorf("summaries = %v, want empty sequence", got)
	}
}

func TestExtractor_Summary(t *testing.T) {
	summary := New(nil, nil).Summary(loadFixture(t))
	rec := models.Record{models.BranchSummary: summary}

	if got := models.String(rec, "summary.trial_information.trial_phase"); got != "Phase II (Therapeutic exploratory)" {
		t.Errorf("trial_phase = %q", got)
	}

	locations := models.Strings(models.List(rec, "summary.trial_information.locations"))
	if len(locations) != 3 || locations[2] != "Germany" {
		t.Errorf("locations = %v, want [France Spain Germany]", locations)
	}

	status := models.List(rec, "summary.overall_trial_status.application_trial_status")
	if len(status) != 2 {
		t.Errorf("len(application_trial_status) = %d, want 2 (mismatched row dropped)", len(status))
	}

	if got := models.String(rec, "summary.trial_notifications.countries.France.early_termination"); got != "No" {
		t.Errorf("France early_termination = %q, want %q", got, "No")
	}

	if got := models.String(rec, "summary.recruitment_notifications.countries.France.start_recruitment"); got != "25/03/2023" {
		t.Errorf("France start_recruitment = %q, want %q", got, "25/03/2023")
	}

	if got := models.String(rec, "summary.trial_duration.estimated_end_date"); got != "31/12/2025" {
		t.Errorf("estimated_end_date = %q, want %q", got, "31/12/2025")
	}

	apps := models.List(rec, "summary.applications")
	if len(apps) != 1 {
		t.Fatalf("len(applications) = %d, want 1", len(apps))
	}

	app := apps[0].(map[string]any)
	if app["title"] != "Initial application" || app["type"] != "Initial" {
		t.Errorf("application = %v", app)
	}

	part1, ok := app["assessment_part1"].(map[string]any)
	if !ok || part1["reference_member_state"] != "France" {
		t.Errorf("assessment_part1 = %v", app["assessment_part1"])
	}

	if got := len(app["assessment_part2"].([]any)); got != 1 {
		t.Errorf("len(assessment_part2) = %d, want 1", got)
	}

	if got := len(app["decisions"].([]any)); got != 2 {
		t.Errorf("len(decisions) = %d, want 2", got)
	}
}

func TestExtractor_Application_WithoutPartOne(t *testing.T) {
	doc := parse(t, `<div id="summary"><div id="applications">
<h3>Substantial modification</h3>
<div class="content">
<p class="bolder">Application type:</p><p>Substantial modification</p>
<h4>Assessment Part II</h4>
<table><tr><th>Member State</th></tr><tr><td>Spain</td></tr></table>
</div></div></div>`)

	apps := New(nil, nil).Summary(doc)["applications"].([]any)
	if len(apps) != 1 {
		t.Fatalf("len(applications) = %d, want 1", len(apps))
	}

	app := apps[0].(map[string]any)
	if _, ok := app["assessment_part1"]; ok {
		t.Errorf("assessment_part1 present for a Part II only application")
	}

	if _, ok := app["decisions"]; ok {
		t.Errorf("decisions present without a Decision heading")
	}
}

func TestExtractor_TrialInfo(t *testing.T) {
	rec := models.Record{models.BranchTrialInfo: New(nil, nil).TrialInfo(loadFixture(t))}

	if got := models.String(rec, "trial_information.trial_details.trial_identifiers.eu_trial_number"); got != "2023-501234-12-00" {
		t.Errorf("eu_trial_number = %q", got)
	}

	if got := models.String(rec, "trial_information.trial_details.trial_information.therapeutic_area"); got == "" {
		t.Error("therapeutic_area is empty")
	}

	inclusion := models.List(rec, "trial_information.trial_details.inclusion_criteria")
	if len(inclusion) != 2 {
		t.Fatalf("len(inclusion_criteria) = %d, want 2", len(inclusion))
	}

	if got := inclusion[1].(map[string]any)["description"]; got != "Diagnosis of asthma for at least 12 months" {
		t.Errorf("inclusion[1].description = %q", got)
	}

	if got := models.List(rec, "trial_information.trial_details.secondary_endpoints"); len(got) != 0 {
		t.Errorf("secondary_endpoints = %v, want empty", got)
	}

	products := models.List(rec, "trial_information.products")
	if len(products) != 1 {
		t.Fatalf("len(products) = %d, want 1", len(products))
	}

	product := models.Record{"p": products[0]}
	if got := models.String(product, "p.details.id"); got != "PRD1234567" {
		t.Errorf("product id = %q, want %q", got, "PRD1234567")
	}

	if got := models.String(product, "p.active_substance.code"); got != "SUB12345" {
		t.Errorf("active substance code = %q, want %q", got, "SUB12345")
	}
}

func TestExtractor_Results(t *testing.T) {
	results := New(nil, nil).Results(loadFixture(t))

	summaries := results["summaries"].([]any)
	if len(summaries) != 1 || summaries[0].(map[string]any)["type"] != "text" {
		t.Errorf("summaries = %v, want one text item", summaries)
	}

	if got := results["layperson_summaries"].([]any); len(got) != 0 {
		t.Errorf("layperson_summaries = %v, want empty", got)
	}

	reports := results["clinical_study_reports"].([]any)
	if len(reports) != 1 || reports[0].(map[string]any)["type"] != "list" {
		t.Errorf("clinical_study_reports = %v, want one list item", reports)
	}
}

func TestExtractor_ParseCountryHeading(t *testing.T) {
	e := New(nil, nil)

	tests := []struct {
		in         string
		wantName   string
		wantStatus string
		wantOK     bool
	}{
		{"3.2.1 France - Ongoing", "France", "Ongoing", true},
		{"3.2.4 Czech Republic - Ongoing, recruiting", "Czech Republic", "Ongoing, recruiting", true},
		{"3.2.5 Guinea-Bissau - Ended", "Guinea-Bissau", "Ended", true},
		{"3.2.6 Italy -Authorised", "Italy", "Authorised", true},
		{"Countries", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, status, ok := e.ParseCountryHeading(tt.in)
			if name != tt.wantName || status != tt.wantStatus || ok != tt.wantOK {
				t.Errorf("ParseCountryHeading(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.in, name, status, ok, tt.wantName, tt.wantStatus, tt.wantOK)
			}
		})
	}
}

func TestExtractor_Locations(t *testing.T) {
	rec := models.Record{models.BranchLocations: New(nil, nil).Locations(loadFixture(t))}

	countries := models.List(rec, "locations.countries")
	if len(countries) != 2 {
		t.Fatalf("len(countries) = %d, want 2", len(countries))
	}

	france := models.Record{"c": countries[0]}
	if got := models.String(france, "c.country"); got != "France" {
		t.Errorf("country = %q, want France", got)
	}

	if got := models.String(france, "c.status"); got != "Ongoing, recruiting" {
		t.Errorf("status = %q, want %q", got, "Ongoing, recruiting")
	}

	if got := models.String(france, "c.planned_subjects"); got != "120" {
		t.Errorf("planned_subjects = %q, want 120", got)
	}

	sites := models.List(france, "c.sites")
	if len(sites) != 2 {
		t.Fatalf("len(France sites) = %d, want 2", len(sites))
	}

	first := models.Record{"s": sites[0]}
	if got := models.String(first, "s.name"); got != "Hôpital Européen" {
		t.Errorf("site name = %q", got)
	}

	if got := models.String(first, "s.contact.email"); got != "marie.curie@example.org" {
		t.Errorf("contact email = %q", got)
	}

	second := models.Record{"s": sites[1]}
	if got := models.String(second, "s.contact.email"); got != "" {
		t.Errorf("second site contact email = %q, want empty", got)
	}

	spainSites := models.List(models.Record{"c": countries[1]}, "c.sites")
	if len(spainSites) != 2 {
		t.Fatalf("len(Spain sites) = %d, want 2", len(spainSites))
	}

	for i, wantCity := range []string{"Barcelona", "Madrid"} {
		if got := models.String(models.Record{"s": spainSites[i]}, "s.city"); got != wantCity {
			t.Errorf("Spain site %d city = %q, want %q", i, got, wantCity)
		}
	}

	if got := models.String(rec, "locations.sponsors.details.name"); got != "Example Pharma GmbH" {
		t.Errorf("sponsor name = %q", got)
	}

	if got := models.String(rec, "locations.sponsors.details.city"); got != "Berlin" {
		t.Errorf("sponsor city = %q, want Berlin", got)
	}

	if got := models.String(rec, "locations.sponsors.scientific_contact.email"); got != "science@example.com" {
		t.Errorf("scientific email = %q", got)
	}

	if got := models.String(rec, "locations.sponsors.public_contact.phone"); got != "+49 30 1234567" {
		t.Errorf("public phone = %q", got)
	}

	if got := models.String(rec, "locations.sponsors.public_contact.email"); got != "" {
		t.Errorf("public email = %q, want empty", got)
	}
}
