// Package config provides configuration management for the trial extractor.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrNoSections             = errors.New("extraction.sections must name at least one section")
	ErrUnknownSection         = errors.New("extraction.sections contains an unknown section")
	ErrNoFormats              = errors.New("export.formats must name at least one format")
	ErrUnknownFormat          = errors.New("export.formats must be a subset of: json, csv")
	ErrInvalidIndent          = errors.New("export.json_indent must be non-negative")
	ErrInvalidDelimiter       = errors.New("export.csv_delimiter must be a single character")
	ErrInvalidMaxWorkers      = errors.New("batch.max_workers must be non-negative")
	ErrInvalidProgressStep    = errors.New("batch.progress_step_percent must be between 1 and 100")
	ErrNoDateFormats          = errors.New("normalization.date_formats must not be empty")
	ErrMissingOutputFormat    = errors.New("normalization.output_date_format is required")
	ErrOverlappingBooleans    = errors.New("normalization boolean true and false values overlap")
	ErrMissingStorageURI      = errors.New("storage.uri is required when storage is enabled")
	ErrMissingStorageDatabase = errors.New("storage.database is required when storage is enabled")
	ErrInvalidStorageTimeout  = errors.New("storage timeouts must be at least 1 second")
	ErrInvalidLogLevel        = errors.New("logging.level must be one of: debug, info, warn, error")
)

// Section names accepted by extraction.sections.
const (
	SectionHeader    = "header"
	SectionSummary   = "summary"
	SectionTrialInfo = "trial_info"
	SectionResults   = "results"
	SectionLocations = "locations"
)

// Export format names.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// AvailableSections lists every extractable section in output order.
var AvailableSections = []string{SectionHeader, SectionSummary, SectionTrialInfo, SectionResults, SectionLocations}

// AvailableFormats lists every supported export format.
var AvailableFormats = []string{FormatJSON, FormatCSV}

// Config represents the complete extractor configuration.
type Config struct {
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Export        ExportConfig        `yaml:"export"`
	Batch         BatchConfig         `yaml:"batch"`
	Cleaning      CleaningConfig      `yaml:"cleaning"`
	Normalization NormalizationConfig `yaml:"normalization"`
	Validation    ValidationConfig    `yaml:"validation"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	API           APIConfig           `yaml:"api"`
}

// ExtractionConfig selects which record branches are extracted.
type ExtractionConfig struct {
	Sections []string `yaml:"sections"`
}

// ExportConfig defines the serialization targets.
type ExportConfig struct {
	Formats      []string `yaml:"formats"`
	CSVDelimiter string   `yaml:"csv_delimiter"`
	JSONIndent   int      `yaml:"json_indent"`
}

// BatchConfig sizes the worker pool.
type BatchConfig struct {
	MaxWorkers          int `yaml:"max_workers"`
	ProgressStepPercent int `yaml:"progress_step_percent"`
}

// CleaningConfig controls missing-value defaulting and empty-branch pruning.
type CleaningConfig struct {
	DefaultValue       string `yaml:"default_value"`
	RemoveEmptyStrings bool   `yaml:"remove_empty_strings"`
	RemoveEmptyLists   bool   `yaml:"remove_empty_lists"`
	RemoveEmptyMaps    bool   `yaml:"remove_empty_maps"`
}

// NormalizationConfig holds the coercion tables.
type NormalizationConfig struct {
	DateFormats        []string `yaml:"date_formats"`
	OutputDateFormat   string   `yaml:"output_date_format"`
	BooleanTrueValues  []string `yaml:"boolean_true_values"`
	BooleanFalseValues []string `yaml:"boolean_false_values"`
}

// ValidationConfig lists required sections and dotted-path required fields.
type ValidationConfig struct {
	RequiredFields   map[string][]string `yaml:"required_fields"`
	RequiredSections []string            `yaml:"required_sections"`
}

// StorageConfig configures the document store.
type StorageConfig struct {
	URI               string `yaml:"uri"`
	Database          string `yaml:"database"`
	Collection        string `yaml:"collection"`
	ConnectTimeoutSec int    `yaml:"connect_timeout_sec"`
	SocketTimeoutSec  int    `yaml:"socket_timeout_sec"`
	MaxPoolSize       uint64 `yaml:"max_pool_size"`
	Enabled           bool   `yaml:"enabled"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig defines where batch metrics are written.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// APIConfig configures the read-only query API.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a complete configuration with built-in values.
func Default() *Config {
	return &Config{
		Extraction: ExtractionConfig{
			Sections: slices.Clone(AvailableSections),
		},
		Export: ExportConfig{
			Formats:      slices.Clone(AvailableFormats),
			CSVDelimiter: ",",
			JSONIndent:   4,
		},
		Batch: BatchConfig{
			MaxWorkers:          0,
			ProgressStepPercent: 5,
		},
		Cleaning: CleaningConfig{
			DefaultValue:       "",
			RemoveEmptyStrings: true,
			RemoveEmptyLists:   true,
			RemoveEmptyMaps:    true,
		},
		Normalization: NormalizationConfig{
			DateFormats:        []string{"2006-01-02", "02/01/2006", "02-01-2006", "02.01.2006"},
			OutputDateFormat:   "2006-01-02",
			BooleanTrueValues:  []string{"yes", "y", "true", "t", "1", "oui"},
			BooleanFalseValues: []string{"no", "n", "false", "f", "0", "non"},
		},
		Validation: ValidationConfig{
			RequiredSections: []string{"header", "summary", "trial_information", "locations"},
			RequiredFields: map[string][]string{
				"header":                    {"euct_number"},
				"summary.trial_information": {"medical_condition", "trial_phase"},
			},
		},
		Storage: StorageConfig{
			URI:               "mongodb://localhost:27017/",
			Database:          "clinical_trials_db",
			Collection:        "trials",
			ConnectTimeoutSec: 10,
			SocketTimeoutSec:  30,
			MaxPoolSize:       50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			Addr: ":8080",
		},
	}
}

// LoadConfig loads configuration from a YAML file over the defaults.
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// yaml.v3 merges into the default map; a configured map replaces it.
	var fields struct {
		Validation struct {
			RequiredFields map[string][]string `yaml:"required_fields"`
		} `yaml:"validation"`
	}

	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if fields.Validation.RequiredFields != nil {
		cfg.Validation.RequiredFields = fields.Validation.RequiredFields
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to a YAML file.
func (c *Config) SaveConfig(filepath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Extraction.Sections) == 0 {
		return ErrNoSections
	}

	for _, s := range c.Extraction.Sections {
		if !slices.Contains(AvailableSections, s) {
			return fmt.Errorf("%w: %s", ErrUnknownSection, s)
		}
	}

	if len(c.Export.Formats) == 0 {
		return ErrNoFormats
	}

	for _, f := range c.Export.Formats {
		if !slices.Contains(AvailableFormats, f) {
			return fmt.Errorf("%w (got %s)", ErrUnknownFormat, f)
		}
	}

	if c.Export.JSONIndent < 0 {
		return ErrInvalidIndent
	}

	if len([]rune(c.Export.CSVDelimiter)) != 1 {
		return ErrInvalidDelimiter
	}

	if c.Batch.MaxWorkers < 0 {
		return ErrInvalidMaxWorkers
	}

	if c.Batch.ProgressStepPercent < 1 || c.Batch.ProgressStepPercent > 100 {
		return ErrInvalidProgressStep
	}

	if len(c.Normalization.DateFormats) == 0 {
		return ErrNoDateFormats
	}

	if c.Normalization.OutputDateFormat == "" {
		return ErrMissingOutputFormat
	}

	for _, v := range c.Normalization.BooleanTrueValues {
		if slices.Contains(c.Normalization.BooleanFalseValues, v) {
			return fmt.Errorf("%w: %q", ErrOverlappingBooleans, v)
		}
	}

	if c.Storage.Enabled {
		if c.Storage.URI == "" {
			return ErrMissingStorageURI
		}

		if c.Storage.Database == "" && !IsSQLiteURI(c.Storage.URI) {
			return ErrMissingStorageDatabase
		}

		if c.Storage.ConnectTimeoutSec < 1 || c.Storage.SocketTimeoutSec < 1 {
			return ErrInvalidStorageTimeout
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	return nil
}

// Workers returns the pool size for n documents: min(max_workers, n), at least 1.
func (b BatchConfig) Workers(n int) int {
	limit := b.MaxWorkers
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	if n < limit {
		limit = n
	}

	if limit < 1 {
		limit = 1
	}

	return limit
}

// ConnectTimeout returns the connection timeout duration.
func (s StorageConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutSec) * time.Second
}

// SocketTimeout returns the per-operation timeout duration.
func (s StorageConfig) SocketTimeout() time.Duration {
	return time.Duration(s.SocketTimeoutSec) * time.Second
}

// IsSQLiteURI reports whether uri selects the embedded SQLite backend.
func IsSQLiteURI(uri string) bool {
	return strings.HasPrefix(uri, "sqlite://") || strings.HasPrefix(uri, "file:") || uri == ":memory:"
}

// HasFormat reports whether the export format is selected.
func (e ExportConfig) HasFormat(format string) bool {
	return slices.Contains(e.Formats, format)
}

// HasSection reports whether the section is selected. An empty list selects
// every section.
func (e ExtractionConfig) HasSection(section string) bool {
	return len(e.Sections) == 0 || slices.Contains(e.Sections, section)
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Sections: %v, Formats: %v, MaxWorkers: %d, Storage: %t}",
		c.Extraction.Sections,
		c.Export.Formats,
		c.Batch.MaxWorkers,
		c.Storage.Enabled,
	)
}
