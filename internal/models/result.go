package models

import (
	"fmt"
	"time"
)

// State is a document's position in the per-document pipeline.
type State string

// Pipeline states. Done and Failed are terminal.
const (
	StatePending    State = "pending"
	StateExtracting State = "extracting"
	StateProcessing State = "processing"
	StateValidating State = "validating"
	StateExporting  State = "exporting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ValidationReport is the advisory verdict for one record.
type ValidationReport struct {
	Issues []string `json:"issues"`
	Valid  bool     `json:"valid"`
}

func (r ValidationReport) String() string {
	if r.Valid {
		return "✅ VALID"
	}

	return fmt.Sprintf("❌ INVALID | Issues: %d", len(r.Issues))
}

// ExportResult describes one written file.
type ExportResult struct {
	Path    string `json:"path"`
	Error   string `json:"error,omitempty"`
	Count   int    `json:"count,omitempty"`
	Success bool   `json:"success"`
}

// StorageResult records what happened at the persistence step.
type StorageResult struct {
	Error   string `json:"error,omitempty"`
	Enabled bool   `json:"enabled"`
	Success bool   `json:"success"`
}

// FileResult is the outcome of running the pipeline over one document.
type FileResult struct {
	ExportResults map[string]map[string]ExportResult `json:"export_results,omitempty"`
	File          string                             `json:"file"`
	State         State                              `json:"state"`
	Error         string                             `json:"error,omitempty"`
	OutputDir     string                             `json:"output_dir,omitempty"`
	EUCTNumber    string                             `json:"euct_number,omitempty"`
	Issues        []string                           `json:"issues,omitempty"`
	Storage       StorageResult                      `json:"storage"`
	Duration      time.Duration                      `json:"duration"`
	Success       bool                               `json:"success"`
	Valid         bool                               `json:"valid"`
}
