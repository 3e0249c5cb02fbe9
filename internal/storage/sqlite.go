package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"eutrials/internal/logger"
	"eutrials/internal/models"
	"eutrials/pkg/metadata"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trials (
	id                INTEGER PRIMARY KEY,
	euct_number       TEXT NOT NULL,
	trial_phase       TEXT NOT NULL DEFAULT '',
	medical_condition TEXT NOT NULL DEFAULT '',
	doc               TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trial_countries (
	trial_id INTEGER NOT NULL REFERENCES trials(id) ON DELETE CASCADE,
	country  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trial_status (
	trial_id     INTEGER NOT NULL REFERENCES trials(id) ON DELETE CASCADE,
	member_state TEXT NOT NULL,
	status       TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_trials_euct_number ON trials(euct_number);
CREATE INDEX IF NOT EXISTS idx_trial_countries_country ON trial_countries(country);
CREATE INDEX IF NOT EXISTS idx_trials_phase ON trials(trial_phase);
CREATE INDEX IF NOT EXISTS idx_trials_condition ON trials(medical_condition);
CREATE INDEX IF NOT EXISTS idx_trials_created_at ON trials(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_trial_status_state ON trial_status(member_state, status);
`

// SQLite stores each trial as a JSON document in one row. Country and
// member-state status rows are mirrored into side tables so they can be
// indexed.
type SQLite struct {
	path string
	opts []OpenOption
	log  *logger.Logger
	db   *sql.DB
}

// NewSQLite creates an unconnected SQLite store at path.
func NewSQLite(path string, log *logger.Logger, opts ...OpenOption) *SQLite {
	if log == nil {
		log = logger.Discard()
	}

	return &SQLite{path: path, opts: opts, log: log}
}

// Connect opens the database and applies the schema.
func (s *SQLite) Connect(ctx context.Context) error {
	db, err := openDB(s.path, append([]OpenOption{WithMkdirAll()}, s.opts...)...)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}

	s.db = db
	s.log.Info("connected to sqlite", "path", s.path)

	return nil
}

// Close closes the database.
func (s *SQLite) Close(_ context.Context) error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}

// Save inserts doc; when its key already exists the stored row is updated
// and its created_at kept.
func (s *SQLite) Save(ctx context.Context, doc Document) (Outcome, error) {
	if s.db == nil {
		return "", ErrNotConnected
	}

	outcome := OutcomeInserted

	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		outcome = OutcomeInserted

		id, err := insertTrial(ctx, tx, doc)
		if isUniqueViolation(err) {
			outcome = OutcomeUpdated
			id, err = updateTrial(ctx, tx, doc)
		}

		if err != nil {
			return err
		}

		return writeSideTables(ctx, tx, id, doc)
	})
	if err != nil {
		return "", fmt.Errorf("sqlite: save %s: %w", doc.Key, err)
	}

	return outcome, nil
}

func insertTrial(ctx context.Context, tx *sql.Tx, doc Document) (int64, error) {
	body, err := json.Marshal(doc.Record)
	if err != nil {
		return 0, fmt.Errorf("failed to encode record: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO trials (euct_number, trial_phase, medical_condition, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.Key, doc.Phase, doc.Condition, string(body), formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt))
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func updateTrial(ctx context.Context, tx *sql.Tx, doc Document) (int64, error) {
	body, err := json.Marshal(doc.Record)
	if err != nil {
		return 0, fmt.Errorf("failed to encode record: %w", err)
	}

	var id int64

	err = tx.QueryRowContext(ctx,
		`UPDATE trials SET trial_phase = ?, medical_condition = ?, doc = ?, updated_at = ?
		 WHERE euct_number = ? RETURNING id`,
		doc.Phase, doc.Condition, string(body), formatTime(doc.UpdatedAt), doc.Key).Scan(&id)

	return id, err
}

func writeSideTables(ctx context.Context, tx *sql.Tx, id int64, doc Document) error {
	for _, q := range []string{
		`DELETE FROM trial_countries WHERE trial_id = ?`,
		`DELETE FROM trial_status WHERE trial_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}

	for _, c := range doc.Countries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trial_countries (trial_id, country) VALUES (?, ?)`, id, c); err != nil {
			return err
		}
	}

	for _, st := range doc.Statuses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trial_status (trial_id, member_state, status) VALUES (?, ?, ?)`,
			id, st.MemberState, st.Status); err != nil {
			return err
		}
	}

	return nil
}

// BulkInsert inserts each document in its own transaction so one failure
// does not roll back the others.
func (s *SQLite) BulkInsert(ctx context.Context, docs []Document) (BulkResult, error) {
	var result BulkResult

	if s.db == nil {
		return result, ErrNotConnected
	}

	for _, doc := range docs {
		err := runTx(ctx, s.db, func(tx *sql.Tx) error {
			id, err := insertTrial(ctx, tx, doc)
			if err != nil {
				return err
			}

			return writeSideTables(ctx, tx, id, doc)
		})

		switch {
		case err == nil:
			result.Success++
		case isUniqueViolation(err):
			result.Duplicates++
		default:
			result.Failed++
			s.log.Warn("bulk insert failed", "euct_number", doc.Key, "error", err)
		}
	}

	return result, nil
}

const selectTrial = `SELECT t.doc, t.created_at, t.updated_at FROM trials t`

// FindByKey returns the trial stored under key, or ErrNotFound.
func (s *SQLite) FindByKey(ctx context.Context, key string) (models.Record, error) {
	if s.db == nil {
		return nil, ErrNotConnected
	}

	recs, err := s.query(ctx, selectTrial+` WHERE t.euct_number = ?`, key)
	if err != nil {
		return nil, err
	}

	if len(recs) == 0 {
		return nil, ErrNotFound
	}

	return recs[0], nil
}

// FindByCountry returns trials with a site country equal to country.
func (s *SQLite) FindByCountry(ctx context.Context, country string, limit int) ([]models.Record, error) {
	if s.db == nil {
		return nil, ErrNotConnected
	}

	return s.query(ctx, selectTrial+`
		WHERE t.id IN (SELECT trial_id FROM trial_countries WHERE country = ?)
		ORDER BY t.id LIMIT ?`, country, limitOrDefault(limit))
}

// FindByCondition matches the medical condition case-insensitively.
func (s *SQLite) FindByCondition(ctx context.Context, pattern string, limit int) ([]models.Record, error) {
	if s.db == nil {
		return nil, ErrNotConnected
	}

	if _, err := compilePattern("(?i)" + pattern); err != nil {
		return nil, err
	}

	return s.query(ctx, selectTrial+`
		WHERE t.medical_condition REGEXP ? ORDER BY t.id LIMIT ?`, "(?i)"+pattern, limitOrDefault(limit))
}

// Each streams stored trials in insertion order.
func (s *SQLite) Each(ctx context.Context, limit int, fn func(models.Record) error) error {
	if s.db == nil {
		return ErrNotConnected
	}

	q := selectTrial + ` ORDER BY t.id`
	args := []any{}

	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	recs, err := s.query(ctx, q, args...)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}

	return nil
}

// Statistics counts trials, groups them by phase and lists the ten most
// frequent site countries.
func (s *SQLite) Statistics(ctx context.Context) (Stats, error) {
	var stats Stats

	if s.db == nil {
		return stats, ErrNotConnected
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trials`).Scan(&stats.TotalTrials); err != nil {
		return stats, fmt.Errorf("sqlite: count: %w", err)
	}

	var err error

	stats.TrialsByPhase, err = s.groupCounts(ctx,
		`SELECT trial_phase, COUNT(*) AS n FROM trials GROUP BY trial_phase ORDER BY n DESC, trial_phase`)
	if err != nil {
		return stats, err
	}

	stats.TopCountries, err = s.groupCounts(ctx,
		`SELECT country, COUNT(*) AS n FROM trial_countries GROUP BY country ORDER BY n DESC, country LIMIT 10`)
	if err != nil {
		return stats, err
	}

	var pages, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pages); err == nil {
		if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err == nil {
			stats.DatabaseSizeBytes = pages * pageSize
		}
	}

	return stats, nil
}

func (s *SQLite) groupCounts(ctx context.Context, q string) ([]GroupCount, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregate: %w", err)
	}
	defer rows.Close()

	out := []GroupCount{}

	for rows.Next() {
		var g GroupCount
		if err := rows.Scan(&g.Key, &g.Count); err != nil {
			return nil, err
		}

		out = append(out, g)
	}

	return out, rows.Err()
}

func (s *SQLite) query(ctx context.Context, q string, args ...any) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	out := []models.Record{}

	for rows.Next() {
		var body, created, updated string
		if err := rows.Scan(&body, &created, &updated); err != nil {
			return nil, err
		}

		var rec models.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("sqlite: decode record: %w", err)
		}

		// The row's timestamps are authoritative; the stored document keeps
		// the values of its latest write.
		if meta, ok := rec[metadata.Key].(map[string]any); ok {
			meta["created_at"] = created
			meta["updated_at"] = updated
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}

	return t.UTC().Format(time.RFC3339Nano)
}

