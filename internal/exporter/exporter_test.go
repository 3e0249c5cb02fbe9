package exporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"eutrials/internal/config"
	"eutrials/internal/models"
)

func sampleRecord() models.Record {
	return models.Record{
		"header": map[string]any{
			"euct_number":   "2023-501234-12-00",
			"title":         `A "quoted" title`,
			"protocol_code": "EXA-201",
		},
		"summary": map[string]any{
			"trial_information": map[string]any{
				"trial_phase":      "Phase II",
				"transition_trial": false,
				"locations":        []any{"France", "Spain"},
				"age_range":        map[string]any{"min": 18, "max": 64},
			},
			"overall_trial_status": map[string]any{
				"application_trial_status": []any{
					map[string]any{"member_state": "France", "status": "Authorised"},
					map[string]any{"member_state": "Spain", "status": "Authorised", "decision_date": "2023-02-05"},
				},
			},
			"trial_notifications": map[string]any{
				"countries": map[string]any{
					"Spain":  map[string]any{"start_trial": "2023-04-01"},
					"France": map[string]any{"start_trial": "2023-03-01", "early_termination": false},
				},
			},
			"applications": []any{
				map[string]any{
					"title": "Initial application",
					"type":  "Initial",
					"assessment_part1": map[string]any{
						"reference_member_state": "France",
						"conclusion":             "Acceptable",
					},
					"decisions": []any{
						map[string]any{"member_state": "France", "decision": "Authorised"},
					},
				},
			},
		},
		"trial_information": map[string]any{
			"products": []any{
				map[string]any{
					"title":            "Product 1",
					"details":          map[string]any{"name": "Examplumab"},
					"active_substance": map[string]any{"code": "SUB12345"},
				},
			},
		},
		"locations": map[string]any{
			"countries": []any{
				map[string]any{
					"country":          "France",
					"status":           "Ongoing",
					"planned_subjects": 120,
					"sites": []any{
						map[string]any{"name": "Hôpital Européen", "city": "Paris", "contact": map[string]any{"email": "a@b.org"}},
						map[string]any{"name": "Clinique", "city": "Lyon"},
					},
				},
			},
			"sponsors": map[string]any{
				"details":        map[string]any{"name": "Example Pharma GmbH"},
				"public_contact": map[string]any{"phone": "+49 30 1234567"},
			},
		},
	}
}

func TestFlatten(t *testing.T) {
	tables := Flatten(sampleRecord())

	counts := map[string]int{
		EntityTrials:        1,
		EntityTrialStatus:   2,
		EntityNotifications: 2,
		EntityRecruitment:   0,
		EntityApplications:  2,
		EntityProducts:      1,
		EntityLocations:     2,
		EntitySponsors:      1,
	}

	for entity, want := range counts {
		if got := len(tables[entity]); got != want {
			t.Errorf("len(%s) = %d, want %d", entity, got, want)
		}
	}

	for entity, rows := range tables {
		for _, r := range rows {
			if r.Get("euct_number") != "2023-501234-12-00" {
				t.Errorf("%s row has euct_number %q", entity, r.Get("euct_number"))
			}
		}
	}

	trial := tables[EntityTrials][0]
	checks := map[string]string{
		"locations":        "France, Spain",
		"transition_trial": "false",
		"title":            `A "quoted" title`,
	}

	for col, want := range checks {
		if got := trial.Get(col); got != want {
			t.Errorf("trials.%s = %q, want %q", col, got, want)
		}
	}

	if _, ok := trial.values["age_range"]; ok {
		t.Error("trials row carries the age_range mapping")
	}

	// Countries are written in name order.
	if got := tables[EntityNotifications][0].Get("country"); got != "France" {
		t.Errorf("first notification country = %q, want France", got)
	}

	decision := tables[EntityApplications][1]
	if decision.Get("application_title") != "Initial application" || decision.Get("decision") != "Authorised" {
		t.Errorf("decision row = %v", decision.values)
	}

	if got := tables[EntityApplications][0].Get("part1_conclusion"); got != "Acceptable" {
		t.Errorf("part1_conclusion = %q", got)
	}

	site := tables[EntityLocations][0]
	if site.Get("site_name") != "Hôpital Européen" || site.Get("planned_subjects") != "120" || site.Get("contact_email") != "a@b.org" {
		t.Errorf("site row = %v", site.values)
	}

	if got := tables[EntityProducts][0].Get("active_substance_code"); got != "SUB12345" {
		t.Errorf("active_substance_code = %q", got)
	}

	if got := tables[EntitySponsors][0].Get("public_contact_phone"); got != "+49 30 1234567" {
		t.Errorf("public_contact_phone = %q", got)
	}
}

func TestFlatten_NoHeader(t *testing.T) {
	if tables := Flatten(models.Record{"summary": map[string]any{}}); len(tables) != 0 {
		t.Errorf("Flatten() = %v, want no tables", tables)
	}
}

func TestWriteCSV(t *testing.T) {
	a := newRow("K1")
	a.Set("status", "Authorised")

	b := newRow("K1")
	b.Set("decision_date", "2023-02-05")
	b.Set("status", `say "hi"`)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, []*Row{a, b}, ";"); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	want := strings.Join([]string{
		`"euct_number";"status";"decision_date"`,
		`"K1";"Authorised";""`,
		`"K1";"say ""hi""";"2023-02-05"`,
		"",
	}, "\n")

	if buf.String() != want {
		t.Errorf("WriteCSV() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestExporter_Export(t *testing.T) {
	cfg := config.Default().Export
	dir := filepath.Join(t.TempDir(), "trial")

	results, err := New(cfg, nil).Export(sampleRecord(), dir)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if Failed(results) {
		t.Fatalf("Export() results contain failures: %v", results)
	}

	jsonResults := results[config.FormatJSON]
	for _, name := range []string{"header", "summary", "trial_information", "locations", "complete"} {
		r, ok := jsonResults[name]
		if !ok {
			t.Errorf("json results miss %s", name)
			continue
		}

		if _, err := os.Stat(r.Path); err != nil {
			t.Errorf("%s not written: %v", r.Path, err)
		}
	}

	body, err := os.ReadFile(filepath.Join(dir, "json", CompleteFile))
	if err != nil {
		t.Fatal(err)
	}

	// Indented by four spaces with non-ASCII kept as is.
	if !bytes.Contains(body, []byte("\n    \"header\"")) || !bytes.Contains(body, []byte("Hôpital Européen")) {
		t.Errorf("unexpected JSON layout:\n%s", body)
	}

	var round models.Record
	if err := json.Unmarshal(body, &round); err != nil {
		t.Fatalf("complete file is not JSON: %v", err)
	}

	csvResults := results[config.FormatCSV]
	if _, ok := csvResults[EntityRecruitment]; ok {
		t.Error("empty recruitment table was written")
	}

	if got := csvResults[EntityLocations]; got.Count != 2 || filepath.Base(got.Path) != "locations.csv" {
		t.Errorf("locations result = %+v", got)
	}

	trials, err := os.ReadFile(filepath.Join(dir, "csv", "trials.csv"))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(string(trials), `"euct_number","title","protocol_code"`) {
		t.Errorf("trials.csv header = %q", strings.SplitN(string(trials), "\n", 2)[0])
	}
}

func TestExporter_UnknownFormat(t *testing.T) {
	cfg := config.Default().Export
	cfg.Formats = []string{"csv", "xml"}

	dir := t.TempDir()

	_, err := New(cfg, nil).Export(sampleRecord(), dir)
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Export(xml) error = %v, want %v", err, ErrUnknownFormat)
	}

	if _, err := os.Stat(filepath.Join(dir, "csv")); !os.IsNotExist(err) {
		t.Errorf("csv written before the unknown format was rejected (err = %v)", err)
	}
}

func TestExporter_SelectedFormat(t *testing.T) {
	cfg := config.Default().Export
	cfg.Formats = []string{config.FormatCSV}

	results, err := New(cfg, nil).Export(sampleRecord(), t.TempDir())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if _, ok := results[config.FormatJSON]; ok || len(results[config.FormatCSV]) == 0 {
		t.Errorf("Export() formats = %v, want csv only", results)
	}
}

func TestOutputDir(t *testing.T) {
	if got := OutputDir("out", "/data/trials/2023-501234.html"); got != filepath.Join("out", "2023-501234") {
		t.Errorf("OutputDir() = %q", got)
	}
}
