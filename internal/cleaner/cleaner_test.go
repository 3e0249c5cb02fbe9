package cleaner

import (
	"reflect"
	"testing"

	"eutrials/internal/config"
	"eutrials/internal/models"
)

func newCleaner() *Cleaner {
	return New(config.Default().Cleaning)
}

func sampleRecord() models.Record {
	return models.Record{
		"header": map[string]any{
			"Title":         "  A study  of\tX ",
			"euct_number":   "2023-000001-01-00",
			"protocol_code": "",
		},
		"summary": map[string]any{
			"trial_information": map[string]any{
				"Main objective": "Compare “A” – B’s arm",
				"sponsor":        nil,
				"locations":      []any{"France", "", " Spain "},
			},
			"applications": []any{
				map[string]any{"type": "", "title": ""},
				map[string]any{"type": "Initial", "Decision-Date": "01/02/2023"},
			},
			"trial_duration": map[string]any{
				"estimated_end_date": "",
			},
		},
		"trial_results": map[string]any{
			"summaries": []any{},
		},
	}
}

func TestCleaner_Clean(t *testing.T) {
	got := newCleaner().Clean(sampleRecord())

	if v := models.String(got, "header.title"); v != "A study of X" {
		t.Errorf("header.title = %q, want %q", v, "A study of X")
	}

	if _, ok := models.Lookup(got, "header.protocol_code"); ok {
		t.Error("empty header.protocol_code was not pruned")
	}

	if v := models.String(got, "summary.trial_information.main_objective"); v != `Compare "A" - B's arm` {
		t.Errorf("main_objective = %q", v)
	}

	if _, ok := models.Lookup(got, "summary.trial_information.sponsor"); ok {
		t.Error("nil sponsor was not defaulted and pruned")
	}

	locations := models.Strings(models.List(got, "summary.trial_information.locations"))
	if !reflect.DeepEqual(locations, []string{"France", "Spain"}) {
		t.Errorf("locations = %v, want [France Spain]", locations)
	}

	apps := models.List(got, "summary.applications")
	if len(apps) != 1 {
		t.Fatalf("len(applications) = %d, want 1", len(apps))
	}

	if v := apps[0].(map[string]any)["decision_date"]; v != "01/02/2023" {
		t.Errorf("decision_date = %v, want 01/02/2023", v)
	}

	if _, ok := models.Lookup(got, "summary.trial_duration"); ok {
		t.Error("trial_duration holding only empties was not pruned")
	}

	if _, ok := got["trial_results"]; ok {
		t.Error("trial_results holding only empty lists was not pruned")
	}
}

func TestCleaner_Clean_Idempotent(t *testing.T) {
	c := newCleaner()

	once := c.Clean(sampleRecord())
	twice := c.Clean(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Clean is not idempotent:\nonce  = %v\ntwice = %v", once, twice)
	}
}

func TestCleaner_Clean_DoesNotMutateInput(t *testing.T) {
	rec := sampleRecord()
	newCleaner().Clean(rec)

	if !reflect.DeepEqual(rec, sampleRecord()) {
		t.Error("Clean modified its input")
	}
}

func TestCleaner_Clean_KeepEmptiesWhenDisabled(t *testing.T) {
	c := New(config.CleaningConfig{DefaultValue: "n/a"})

	got := c.Clean(models.Record{"a": map[string]any{"b": "", "c": nil, "d": []any{}}})

	want := models.Record{"a": map[string]any{"b": "", "c": "n/a", "d": []any{}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Clean() = %v, want %v", got, want)
	}
}

func TestCleaner_CanonicalKey(t *testing.T) {
	c := newCleaner()

	tests := []struct {
		in   string
		want string
	}{
		{"Member State", "member_state"},
		{"Decision-date", "decision_date"},
		{"euct_number", "euct_number"},
		{"France", "france"},
		{"Österreich", "österreich"},
	}

	for _, tt := range tests {
		if got := c.CanonicalKey(tt.in); got != tt.want {
			t.Errorf("CanonicalKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
