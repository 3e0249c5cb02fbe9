package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eutrials/internal/config"
	"eutrials/internal/logger"
	"eutrials/internal/models"
	"eutrials/pkg/metadata"
)

// failingStore fails every call.
type failingStore struct{ Store }

func (failingStore) Connect(context.Context) error { return errors.New("connection refused") }

func newManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()

	cfg := config.Default().Storage
	cfg.Enabled = true
	cfg.URI = "sqlite://" + filepath.Join(t.TempDir(), "trials.db")

	m := NewManager(cfg, logger.Discard(), opts...)
	if !m.Connect(context.Background()) {
		t.Fatal("Connect() = false, want true")
	}

	t.Cleanup(func() { m.Close(context.Background()) })

	return m
}

func TestManager_ConnectDisabled(t *testing.T) {
	cfg := config.Default().Storage
	cfg.Enabled = false

	m := NewManager(cfg, nil)

	if m.Connect(context.Background()) {
		t.Error("Connect() = true with storage disabled")
	}

	if m.Save(context.Background(), trialRecord("K", "", ""), "x.html") {
		t.Error("Save() = true without a connection")
	}
}

func TestManager_ConnectFailureIsAbsorbed(t *testing.T) {
	var buf bytes.Buffer

	cfg := config.Default().Storage
	cfg.Enabled = true

	m := NewManager(cfg, logger.New(&buf, "debug", "text"), WithStore(failingStore{}))

	if m.Connect(context.Background()) {
		t.Error("Connect() = true, want false")
	}

	if m.Connected() {
		t.Error("Connected() = true after failed connect")
	}

	if !bytes.Contains(buf.Bytes(), []byte("connection refused")) {
		t.Errorf("log does not mention the failure: %s", buf.String())
	}
}

func TestManager_ConnectUnsupportedURI(t *testing.T) {
	cfg := config.Default().Storage
	cfg.Enabled = true
	cfg.URI = "postgres://localhost"

	if NewManager(cfg, nil).Connect(context.Background()) {
		t.Error("Connect() = true for unsupported uri")
	}
}

func TestManager_SaveTwice(t *testing.T) {
	clock := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	m := newManager(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	source := filepath.Join(t.TempDir(), "trial.html")
	if err := os.WriteFile(source, []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !m.Save(ctx, trialRecord("K1", "Phase I", "Asthma", "France"), source) {
		t.Fatal("first Save() = false")
	}

	created := clock
	clock = clock.Add(24 * time.Hour)

	if !m.Save(ctx, trialRecord("K1", "Phase II", "Asthma", "France"), source) {
		t.Fatal("second Save() = false")
	}

	rec := m.FindByKey(ctx, "K1")
	if rec == nil {
		t.Fatal("FindByKey() = nil")
	}

	if got := models.String(rec, "summary.trial_information.trial_phase"); got != "Phase II" {
		t.Errorf("trial_phase = %q, want Phase II", got)
	}

	meta, _ := metadata.Extract(rec)
	if !meta.CreatedAt.Equal(created) || !meta.UpdatedAt.Equal(clock) {
		t.Errorf("timestamps = %v/%v, want %v/%v", meta.CreatedAt, meta.UpdatedAt, created, clock)
	}

	if meta.SourceHash != metadata.CalculateHash([]byte("<html></html>")) {
		t.Errorf("source_hash = %s, want hash of the source file", meta.SourceHash)
	}

	if meta.Version != metadata.Version {
		t.Errorf("version = %s, want %s", meta.Version, metadata.Version)
	}

	if stats := m.Statistics(ctx); stats.TotalTrials != 1 {
		t.Errorf("TotalTrials = %d, want 1", stats.TotalTrials)
	}
}

func TestManager_SaveWithoutKey(t *testing.T) {
	m := newManager(t)

	if m.Save(context.Background(), models.Record{"header": map[string]any{}}, "x.html") {
		t.Error("Save() = true for a record without euct_number")
	}
}

func TestManager_BulkInsert(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	recs := []models.Record{
		trialRecord("K1", "", ""),
		trialRecord("K2", "", ""),
		trialRecord("K1", "", ""),
		{"header": map[string]any{}},
	}

	got := m.BulkInsert(ctx, recs, []string{"a.json", "b.json"})
	want := BulkResult{Success: 2, Duplicates: 1, Failed: 1}

	if got != want {
		t.Errorf("BulkInsert() = %+v, want %+v", got, want)
	}

	rec := m.FindByKey(ctx, "K2")
	if meta, _ := metadata.Extract(rec); meta == nil || meta.SourceFile != "b.json" {
		t.Errorf("source_file = %v, want b.json", meta)
	}
}

func TestManager_Queries(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	m.Save(ctx, trialRecord("K1", "Phase I", "Asthma", "France"), "")
	m.Save(ctx, trialRecord("K2", "Phase I", "Eczema", "Spain"), "")

	if got := m.FindByCountry(ctx, "Spain", 10); len(got) != 1 || models.NaturalKey(got[0]) != "K2" {
		t.Errorf("FindByCountry(Spain) = %v", got)
	}

	if got := m.FindByCondition(ctx, "asth", 10); len(got) != 1 {
		t.Errorf("FindByCondition(asth) = %d trials, want 1", len(got))
	}

	if got := m.FindByCondition(ctx, "[", 10); got == nil || len(got) != 0 {
		t.Errorf("FindByCondition(invalid) = %v, want empty", got)
	}

	if m.FindByKey(ctx, "missing") != nil {
		t.Error("FindByKey(missing) != nil")
	}
}

func TestManager_ExportJSON(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	m.Save(ctx, trialRecord("K1", "Phase I", "Asthma"), "")
	m.Save(ctx, trialRecord("K2", "Phase I", "Asthma"), "")

	var buf bytes.Buffer

	n, err := m.ExportJSON(ctx, &buf, 0)
	if err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}

	if n != 2 {
		t.Errorf("ExportJSON() = %d, want 2", n)
	}

	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}

	if len(out) != 2 {
		t.Errorf("len(output) = %d, want 2", len(out))
	}
}

func TestManager_ExportJSONNotConnected(t *testing.T) {
	m := NewManager(config.Default().Storage, nil)

	if _, err := m.ExportJSON(context.Background(), &bytes.Buffer{}, 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ExportJSON() error = %v, want %v", err, ErrNotConnected)
	}
}
