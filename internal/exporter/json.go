package exporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"eutrials/internal/models"
)

// completeKey names the whole-record entry in JSON export results.
const completeKey = "complete"

// JSON writes each top-level branch of rec to <dir>/<branch>.json and the
// whole record to <dir>/clinical_trial.json.
func (e *Exporter) JSON(rec models.Record, dir string) (map[string]models.ExportResult, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	results := make(map[string]models.ExportResult, len(rec)+1)

	branches := make([]string, 0, len(rec))
	for k := range rec {
		branches = append(branches, k)
	}

	slices.Sort(branches)

	for _, branch := range branches {
		path := filepath.Join(dir, branch+".json")
		results[branch] = result(path, 0, e.writeJSON(path, rec[branch]))
	}

	path := filepath.Join(dir, CompleteFile)
	results[completeKey] = result(path, 0, e.writeJSON(path, rec))

	for name, r := range results {
		if !r.Success {
			e.log.Error("json export failed", "name", name, "error", r.Error)
		}
	}

	e.log.Debug("json export finished", "dir", dir, "files", len(results))

	return results, nil
}

func (e *Exporter) writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", strings.Repeat(" ", e.cfg.JSONIndent))

	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	return f.Close()
}
