package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"eutrials/internal/config"
	"eutrials/internal/logger"
	"eutrials/internal/models"
	"eutrials/pkg/metadata"
)

// Manager owns the configured backend for one run. Connect and Save never
// return errors: failures are logged and reported as false so that the
// caller can carry on without persistence.
type Manager struct {
	cfg       config.StorageConfig
	log       *logger.Logger
	open      func(config.StorageConfig, *logger.Logger) (Store, error)
	now       func() time.Time
	mu        sync.RWMutex
	store     Store
	connected bool
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithStore uses s instead of opening a backend from the URI.
func WithStore(s Store) ManagerOption {
	return func(m *Manager) {
		m.open = func(config.StorageConfig, *logger.Logger) (Store, error) { return s, nil }
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager. Nothing is opened until Connect.
func NewManager(cfg config.StorageConfig, log *logger.Logger, opts ...ManagerOption) *Manager {
	if log == nil {
		log = logger.Discard()
	}

	m := &Manager{cfg: cfg, log: log, open: Open, now: time.Now}
	for _, o := range opts {
		o(m)
	}

	return m
}

// Connect opens and connects the backend. It returns false when storage is
// disabled or unreachable.
func (m *Manager) Connect(ctx context.Context) bool {
	if !m.cfg.Enabled {
		m.log.Debug("storage disabled")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return true
	}

	store, err := m.open(m.cfg, m.log)
	if err != nil {
		m.log.Error("failed to open storage", "uri", m.cfg.URI, "error", err)
		return false
	}

	if err := store.Connect(ctx); err != nil {
		m.log.Error("failed to connect storage", "uri", m.cfg.URI, "error", err)
		return false
	}

	m.store = store
	m.connected = true

	return true
}

// Connected reports whether Connect succeeded.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.connected
}

// Store returns the connected backend, or nil.
func (m *Manager) Store() Store {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.store
}

// Close releases the backend.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}

	err := m.store.Close(ctx)
	m.store, m.connected = nil, false

	return err
}

// Prepare stamps rec with metadata for sourceFile and lifts its indexed
// values.
func (m *Manager) Prepare(rec models.Record, sourceFile string) (Document, error) {
	hash, err := metadata.HashFile(sourceFile)
	if err != nil {
		// Records loaded from exports have no source document at hand.
		body, _ := json.Marshal(rec)
		hash = metadata.CalculateHash(body)
	}

	return NewDocument(rec, metadata.New(sourceFile, hash, m.now()))
}

// Save persists rec, inserting or updating by natural key.
func (m *Manager) Save(ctx context.Context, rec models.Record, sourceFile string) bool {
	store := m.Store()
	if store == nil {
		m.log.Error("cannot save trial", "error", ErrNotConnected)
		return false
	}

	doc, err := m.Prepare(rec, sourceFile)
	if err != nil {
		m.log.Error("cannot save trial", "source_file", sourceFile, "error", err)
		return false
	}

	ctx, cancel := m.opContext(ctx)
	defer cancel()

	outcome, err := store.Save(ctx, doc)
	if err != nil {
		m.log.Error("failed to save trial", "euct_number", doc.Key, "error", err)
		return false
	}

	m.log.Info("trial saved", "euct_number", doc.Key, "outcome", outcome)

	return true
}

// FindByKey returns the stored trial, or nil.
func (m *Manager) FindByKey(ctx context.Context, key string) models.Record {
	store := m.Store()
	if store == nil {
		return nil
	}

	ctx, cancel := m.opContext(ctx)
	defer cancel()

	rec, err := store.FindByKey(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.log.Error("find by key failed", "euct_number", key, "error", err)
		}

		return nil
	}

	return rec
}

// FindByCountry returns up to limit trials with a site in country.
func (m *Manager) FindByCountry(ctx context.Context, country string, limit int) []models.Record {
	return m.findMany(ctx, "find by country", func(ctx context.Context, s Store) ([]models.Record, error) {
		return s.FindByCountry(ctx, country, limit)
	})
}

// FindByCondition returns up to limit trials whose medical condition
// matches pattern.
func (m *Manager) FindByCondition(ctx context.Context, pattern string, limit int) []models.Record {
	return m.findMany(ctx, "find by condition", func(ctx context.Context, s Store) ([]models.Record, error) {
		return s.FindByCondition(ctx, pattern, limit)
	})
}

func (m *Manager) findMany(ctx context.Context, op string,
	fn func(context.Context, Store) ([]models.Record, error),
) []models.Record {
	store := m.Store()
	if store == nil {
		return []models.Record{}
	}

	ctx, cancel := m.opContext(ctx)
	defer cancel()

	recs, err := fn(ctx, store)
	if err != nil {
		m.log.Error(op+" failed", "error", err)
		return []models.Record{}
	}

	return recs
}

// BulkInsert stamps and inserts recs; sourceFiles[i], when present, names
// the origin of recs[i]. Records without a natural key count as failed.
func (m *Manager) BulkInsert(ctx context.Context, recs []models.Record, sourceFiles []string) BulkResult {
	var result BulkResult

	store := m.Store()
	if store == nil {
		m.log.Error("cannot bulk insert", "error", ErrNotConnected)
		return result
	}

	docs := make([]Document, 0, len(recs))

	for i, rec := range recs {
		source := ""
		if i < len(sourceFiles) {
			source = sourceFiles[i]
		}

		doc, err := m.Prepare(rec, source)
		if err != nil {
			result.Failed++
			continue
		}

		docs = append(docs, doc)
	}

	res, err := store.BulkInsert(ctx, docs)
	if err != nil {
		m.log.Error("bulk insert failed", "error", err)
	}

	result.Success += res.Success
	result.Duplicates += res.Duplicates
	result.Failed += res.Failed

	m.log.Info("bulk insert finished",
		"success", result.Success, "duplicates", result.Duplicates, "failed", result.Failed)

	return result
}

// Statistics returns the aggregate counts, or the zero value on failure.
func (m *Manager) Statistics(ctx context.Context) Stats {
	store := m.Store()
	if store == nil {
		return Stats{}
	}

	ctx, cancel := m.opContext(ctx)
	defer cancel()

	stats, err := store.Statistics(ctx)
	if err != nil {
		m.log.Error("statistics failed", "error", err)
		return Stats{}
	}

	return stats
}

// ExportJSON writes up to limit stored trials to w as an indented JSON
// array.
func (m *Manager) ExportJSON(ctx context.Context, w io.Writer, limit int) (int, error) {
	store := m.Store()
	if store == nil {
		return 0, ErrNotConnected
	}

	recs := []models.Record{}

	err := store.Each(ctx, limit, func(rec models.Record) error {
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read trials: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(recs); err != nil {
		return 0, fmt.Errorf("failed to encode trials: %w", err)
	}

	m.log.Info("export finished", "documents", len(recs))

	return len(recs), nil
}

func (m *Manager) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := m.cfg.SocketTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}

	return context.WithCancel(ctx)
}
