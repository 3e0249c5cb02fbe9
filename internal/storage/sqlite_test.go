package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"eutrials/internal/config"
	"eutrials/internal/models"
	"eutrials/pkg/metadata"
)

func trialRecord(key, phase, condition string, countries ...string) models.Record {
	sites := make([]any, 0, len(countries))
	for _, c := range countries {
		sites = append(sites, map[string]any{"country": c})
	}

	return models.Record{
		"header": map[string]any{"euct_number": key},
		"summary": map[string]any{
			"trial_information": map[string]any{
				"trial_phase":       phase,
				"medical_condition": condition,
			},
			"overall_trial_status": map[string]any{
				"application_trial_status": []any{
					map[string]any{"member_state": "France", "status": "Authorised"},
				},
			},
		},
		"locations": map[string]any{"countries": sites},
	}
}

func newDocument(t *testing.T, rec models.Record, at time.Time) Document {
	t.Helper()

	doc, err := NewDocument(rec, metadata.New("trial.html", "hash", at))
	if err != nil {
		t.Fatalf("NewDocument() error = %v", err)
	}

	return doc
}

func TestNewDocument(t *testing.T) {
	doc := newDocument(t, trialRecord("K1", "Phase II", "Asthma", "France", "Spain"), time.Now())

	if doc.Key != "K1" || doc.Phase != "Phase II" || doc.Condition != "Asthma" {
		t.Errorf("NewDocument() = %+v", doc)
	}

	if len(doc.Countries) != 2 || doc.Countries[1] != "Spain" {
		t.Errorf("Countries = %v, want [France Spain]", doc.Countries)
	}

	if len(doc.Statuses) != 1 || doc.Statuses[0].MemberState != "France" {
		t.Errorf("Statuses = %v", doc.Statuses)
	}

	if _, ok := doc.Record[metadata.Key]; !ok {
		t.Error("Record has no metadata branch")
	}

	_, err := NewDocument(models.Record{"header": map[string]any{}}, metadata.Metadata{})
	if !errors.Is(err, ErrMissingNaturalKey) {
		t.Errorf("NewDocument(no key) error = %v, want %v", err, ErrMissingNaturalKey)
	}
}

func TestNewDocument_Statuses(t *testing.T) {
	rec := trialRecord("K1", "Phase II", "Asthma", "France")
	rec["summary"].(map[string]any)["overall_trial_status"] = map[string]any{
		"application_trial_status": []any{
			map[string]any{"member_state": "France", "application_trial_status": "Authorised"},
			map[string]any{"member_state": "Spain", "status": "Under evaluation"},
			map[string]any{"member_state": "Italy"},
		},
	}

	doc := newDocument(t, rec, time.Now())

	want := []MemberStatus{
		{MemberState: "France", Status: "Authorised"},
		{MemberState: "Spain", Status: "Under evaluation"},
		{MemberState: "Italy", Status: ""},
	}

	if len(doc.Statuses) != len(want) {
		t.Fatalf("Statuses = %v, want %v", doc.Statuses, want)
	}

	for i, w := range want {
		if doc.Statuses[i] != w {
			t.Errorf("Statuses[%d] = %+v, want %+v", i, doc.Statuses[i], w)
		}
	}
}

func TestSQLite_SaveIsIdempotentByKey(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	first := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	outcome, err := s.Save(ctx, newDocument(t, trialRecord("K1", "Phase I", "Asthma", "France"), first))
	if err != nil || outcome != OutcomeInserted {
		t.Fatalf("Save() = %v, %v, want inserted", outcome, err)
	}

	outcome, err = s.Save(ctx, newDocument(t, trialRecord("K1", "Phase III", "Asthma", "Spain"), second))
	if err != nil || outcome != OutcomeUpdated {
		t.Fatalf("Save() = %v, %v, want updated", outcome, err)
	}

	stats, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}

	if stats.TotalTrials != 1 {
		t.Errorf("TotalTrials = %d, want 1", stats.TotalTrials)
	}

	rec, err := s.FindByKey(ctx, "K1")
	if err != nil {
		t.Fatalf("FindByKey() error = %v", err)
	}

	if got := models.String(rec, "summary.trial_information.trial_phase"); got != "Phase III" {
		t.Errorf("trial_phase = %q, want second content", got)
	}

	meta, err := metadata.Extract(rec)
	if err != nil {
		t.Fatalf("metadata.Extract() error = %v", err)
	}

	if !meta.CreatedAt.Equal(first) {
		t.Errorf("created_at = %v, want %v", meta.CreatedAt, first)
	}

	if !meta.UpdatedAt.Equal(second) {
		t.Errorf("updated_at = %v, want %v", meta.UpdatedAt, second)
	}

	// Side tables follow the latest content.
	if got, _ := s.FindByCountry(ctx, "France", 0); len(got) != 0 {
		t.Errorf("FindByCountry(France) = %d trials, want 0", len(got))
	}

	if got, _ := s.FindByCountry(ctx, "Spain", 0); len(got) != 1 {
		t.Errorf("FindByCountry(Spain) = %d trials, want 1", len(got))
	}
}

func TestSQLite_FindByKeyMissing(t *testing.T) {
	s := OpenMemory(t)

	if _, err := s.FindByKey(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByKey() error = %v, want %v", err, ErrNotFound)
	}
}

func TestSQLite_FindByCondition(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	for _, rec := range []models.Record{
		trialRecord("K1", "Phase I", "Severe asthma"),
		trialRecord("K2", "Phase II", "Asthma, mild"),
		trialRecord("K3", "Phase II", "Psoriasis"),
	} {
		if _, err := s.Save(ctx, newDocument(t, rec, time.Now())); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		pattern string
		limit   int
		want    int
	}{
		{"ASTHMA", 0, 2},
		{"^asthma", 0, 1},
		{"asthma", 1, 1},
		{"diabetes", 0, 0},
	}

	for _, tt := range tests {
		got, err := s.FindByCondition(ctx, tt.pattern, tt.limit)
		if err != nil {
			t.Fatalf("FindByCondition(%q) error = %v", tt.pattern, err)
		}

		if len(got) != tt.want {
			t.Errorf("FindByCondition(%q, %d) = %d trials, want %d", tt.pattern, tt.limit, len(got), tt.want)
		}
	}

	if _, err := s.FindByCondition(ctx, "(", 0); err == nil {
		t.Error("FindByCondition(invalid) error = nil, want error")
	}
}

func TestSQLite_BulkInsert(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, newDocument(t, trialRecord("K1", "Phase I", "A"), time.Now())); err != nil {
		t.Fatal(err)
	}

	docs := []Document{
		newDocument(t, trialRecord("K1", "Phase I", "A"), time.Now()),
		newDocument(t, trialRecord("K2", "Phase I", "B"), time.Now()),
		newDocument(t, trialRecord("K3", "Phase I", "C"), time.Now()),
	}

	got, err := s.BulkInsert(ctx, docs)
	if err != nil {
		t.Fatalf("BulkInsert() error = %v", err)
	}

	want := BulkResult{Success: 2, Duplicates: 1}
	if got != want {
		t.Errorf("BulkInsert() = %+v, want %+v", got, want)
	}
}

func TestSQLite_Statistics(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	for _, rec := range []models.Record{
		trialRecord("K1", "Phase II", "A", "France", "Spain"),
		trialRecord("K2", "Phase II", "B", "France"),
		trialRecord("K3", "Phase I", "C", "Italy"),
	} {
		if _, err := s.Save(ctx, newDocument(t, rec, time.Now())); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}

	if stats.TotalTrials != 3 {
		t.Errorf("TotalTrials = %d, want 3", stats.TotalTrials)
	}

	if len(stats.TrialsByPhase) != 2 || stats.TrialsByPhase[0] != (GroupCount{Key: "Phase II", Count: 2}) {
		t.Errorf("TrialsByPhase = %v", stats.TrialsByPhase)
	}

	if len(stats.TopCountries) != 3 || stats.TopCountries[0] != (GroupCount{Key: "France", Count: 2}) {
		t.Errorf("TopCountries = %v", stats.TopCountries)
	}

	if stats.DatabaseSizeBytes <= 0 {
		t.Errorf("DatabaseSizeBytes = %d, want > 0", stats.DatabaseSizeBytes)
	}
}

func TestSQLite_Each(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	for _, key := range []string{"K1", "K2", "K3"} {
		if _, err := s.Save(ctx, newDocument(t, trialRecord(key, "", ""), time.Now())); err != nil {
			t.Fatal(err)
		}
	}

	var keys []string

	err := s.Each(ctx, 2, func(rec models.Record) error {
		keys = append(keys, models.NaturalKey(rec))
		return nil
	})
	if err != nil {
		t.Fatalf("Each() error = %v", err)
	}

	if len(keys) != 2 || keys[0] != "K1" || keys[1] != "K2" {
		t.Errorf("Each(limit 2) keys = %v, want [K1 K2]", keys)
	}
}

func TestSQLite_NotConnected(t *testing.T) {
	s := NewSQLite(":memory:", nil)

	if _, err := s.Save(context.Background(), Document{Key: "K"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Save() error = %v, want %v", err, ErrNotConnected)
	}
}

func TestOpen_SQLiteBusyTimeout(t *testing.T) {
	cfg := config.Default().Storage
	cfg.URI = "sqlite://:memory:"
	cfg.ConnectTimeoutSec = 3

	store, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	s := store.(*SQLite)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	t.Cleanup(func() { s.Close(context.Background()) })

	var ms int
	if err := s.db.QueryRow("PRAGMA busy_timeout").Scan(&ms); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}

	if ms != 3000 {
		t.Errorf("busy_timeout = %d, want 3000", ms)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{errors.New("SQLITE_BUSY: retry"), true},
		{errors.New("UNIQUE constraint failed"), false},
	}

	for _, tt := range tests {
		if got := IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
