// Package exporter writes a trial record to disk: one JSON file per record
// branch plus the complete record, and one CSV file per flattened entity.
package exporter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"eutrials/internal/config"
	"eutrials/internal/logger"
	"eutrials/internal/models"
)

// CompleteFile is the JSON file holding the whole record.
const CompleteFile = "clinical_trial.json"

// ErrUnknownFormat is returned for a format other than json or csv.
var ErrUnknownFormat = errors.New("unknown export format")

// Exporter serializes records under an output root.
type Exporter struct {
	cfg config.ExportConfig
	log *logger.Logger
}

// New creates an exporter.
func New(cfg config.ExportConfig, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.Discard()
	}

	if cfg.CSVDelimiter == "" {
		cfg.CSVDelimiter = ","
	}

	return &Exporter{cfg: cfg, log: log}
}

// OutputDir returns <root>/<source base name without extension>.
func OutputDir(root, sourceFile string) string {
	base := filepath.Base(sourceFile)

	return filepath.Join(root, strings.TrimSuffix(base, filepath.Ext(base)))
}

// Export writes rec in every configured format under dir and returns the
// per-format, per-file results. It fails only when a configured format is
// unknown or its directory cannot be created; individual file failures are
// reported in the results.
func (e *Exporter) Export(rec models.Record, dir string) (map[string]map[string]models.ExportResult, error) {
	for _, format := range e.cfg.Formats {
		if !slices.Contains(config.AvailableFormats, format) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
		}
	}

	out := make(map[string]map[string]models.ExportResult, len(e.cfg.Formats))

	for _, format := range config.AvailableFormats {
		if !e.cfg.HasFormat(format) {
			continue
		}

		var (
			results map[string]models.ExportResult
			err     error
		)

		switch format {
		case config.FormatJSON:
			results, err = e.JSON(rec, filepath.Join(dir, config.FormatJSON))
		case config.FormatCSV:
			results, err = e.CSV(rec, filepath.Join(dir, config.FormatCSV))
		}

		if err != nil {
			return out, err
		}

		out[format] = results
	}

	return out, nil
}

// Failed reports whether any file in results failed to write.
func Failed(results map[string]map[string]models.ExportResult) bool {
	for _, files := range results {
		for _, r := range files {
			if !r.Success {
				return true
			}
		}
	}

	return false
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	return nil
}

func result(path string, count int, err error) models.ExportResult {
	r := models.ExportResult{Path: path, Count: count, Success: err == nil}
	if err != nil {
		r.Error = err.Error()
	}

	return r
}
