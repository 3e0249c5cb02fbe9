// Package storage persists normalized trial records keyed by their EUCT
// number. Two backends implement Store: an embedded SQLite database and a
// MongoDB collection. Manager wraps either one behind the boolean contract
// used by the pipeline.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eutrials/internal/config"
	"eutrials/internal/logger"
	"eutrials/internal/models"
	"eutrials/pkg/metadata"
)

// Storage errors.
var (
	ErrNotFound          = errors.New("trial not found")
	ErrNotConnected      = errors.New("storage is not connected")
	ErrStorageDisabled   = errors.New("storage is disabled")
	ErrMissingNaturalKey = errors.New("record has no euct_number")
	ErrUnsupportedURI    = errors.New("unsupported storage uri")
)

// Record paths used for indexing and queries.
const (
	pathCountry   = "locations.countries.country"
	pathPhase     = "summary.trial_information.trial_phase"
	pathCondition = "summary.trial_information.medical_condition"
	pathStatus    = "summary.overall_trial_status.application_trial_status"
	pathCreatedAt = "metadata.created_at"
	pathEUCT      = "header.euct_number"

	// statusColumn is the canonical "Application Trial Status" table column.
	statusColumn = "application_trial_status"
)

// DefaultLimit caps find queries when the caller passes a non-positive limit.
const DefaultLimit = 100

// Outcome reports what Save did.
type Outcome string

// Save outcomes.
const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
)

// BulkResult counts the outcome of BulkInsert.
type BulkResult struct {
	Success    int `json:"success"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// GroupCount is one row of a group-by aggregation.
type GroupCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Stats is the aggregate view served to the dashboard.
type Stats struct {
	TotalTrials       int64        `json:"total_trials"`
	DatabaseSizeBytes int64        `json:"database_size_bytes"`
	TrialsByPhase     []GroupCount `json:"trials_by_phase"`
	TopCountries      []GroupCount `json:"top_countries"`
}

// MemberStatus is one row of the application trial status table.
type MemberStatus struct {
	MemberState string
	Status      string
}

// Document is a record prepared for persistence. The indexed columns are
// lifted out of the record tree once so backends do not walk it again.
type Document struct {
	Key       string
	Phase     string
	Condition string
	Countries []string
	Statuses  []MemberStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	Record    models.Record
}

// NewDocument attaches meta to rec and extracts the indexed values.
func NewDocument(rec models.Record, meta metadata.Metadata) (Document, error) {
	key := models.NaturalKey(rec)
	if key == "" {
		return Document{}, ErrMissingNaturalKey
	}

	doc := Document{
		Key:       key,
		Phase:     leafString(rec, pathPhase),
		Condition: leafString(rec, pathCondition),
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
		Record:    metadata.Attach(rec, meta),
	}

	for _, c := range models.List(rec, "locations.countries") {
		if m, ok := c.(map[string]any); ok {
			if name, _ := m["country"].(string); name != "" {
				doc.Countries = append(doc.Countries, name)
			}
		}
	}

	for _, row := range models.List(rec, pathStatus) {
		if m, ok := row.(map[string]any); ok {
			doc.Statuses = append(doc.Statuses, MemberStatus{
				MemberState: leafText(m["member_state"]),
				Status:      rowStatus(m),
			})
		}
	}

	return doc, nil
}

// rowStatus reads the status cell of an application status row. Older
// layouts head the column "Status".
func rowStatus(row map[string]any) string {
	if s := leafText(row[statusColumn]); s != "" {
		return s
	}

	return leafText(row["status"])
}

func leafString(rec models.Record, path string) string {
	v, _ := models.Lookup(rec, path)

	return leafText(v)
}

func leafText(v any) string {
	if v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}

// Store is a document store backend.
type Store interface {
	// Connect opens the backend and creates its indexes. Index creation is
	// idempotent.
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	// Save inserts doc, or updates the stored document with the same key
	// while keeping its creation time.
	Save(ctx context.Context, doc Document) (Outcome, error)
	FindByKey(ctx context.Context, key string) (models.Record, error)
	FindByCountry(ctx context.Context, country string, limit int) ([]models.Record, error)
	// FindByCondition matches pattern as a case-insensitive regular
	// expression against the medical condition.
	FindByCondition(ctx context.Context, pattern string, limit int) ([]models.Record, error)
	// BulkInsert inserts every document it can; existing keys count as
	// duplicates and are left unchanged.
	BulkInsert(ctx context.Context, docs []Document) (BulkResult, error)
	Statistics(ctx context.Context) (Stats, error)
	// Each streams up to limit stored records (all when limit <= 0).
	Each(ctx context.Context, limit int, fn func(models.Record) error) error
}

// Open returns the backend selected by the URI scheme.
func Open(cfg config.StorageConfig, log *logger.Logger) (Store, error) {
	switch {
	case config.IsSQLiteURI(cfg.URI):
		return NewSQLite(sqlitePath(cfg.URI), log, WithBusyTimeout(int(cfg.ConnectTimeout().Milliseconds()))), nil
	case strings.HasPrefix(cfg.URI, "mongodb://"), strings.HasPrefix(cfg.URI, "mongodb+srv://"):
		return NewMongo(cfg, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURI, cfg.URI)
	}
}

func sqlitePath(uri string) string {
	if path, ok := strings.CutPrefix(uri, "sqlite://"); ok {
		return path
	}

	return uri
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}

	return limit
}
