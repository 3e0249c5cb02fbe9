// Package pipeline runs one trial document through extraction, cleaning,
// normalization, validation, export and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"eutrials/internal/cleaner"
	"eutrials/internal/config"
	"eutrials/internal/exporter"
	"eutrials/internal/extractor"
	"eutrials/internal/htmldoc"
	"eutrials/internal/logger"
	"eutrials/internal/models"
	"eutrials/internal/normalizer"
	"eutrials/internal/validator"
)

// Pipeline errors.
var (
	ErrExportFailed = errors.New("export failed")
	ErrEmptyRecord  = errors.New("extraction produced no record")
)

// order is the forward sequence of non-failure states.
var order = []models.State{
	models.StatePending,
	models.StateExtracting,
	models.StateProcessing,
	models.StateValidating,
	models.StateExporting,
	models.StateDone,
}

// Saver persists a record. storage.Manager satisfies it.
type Saver interface {
	Save(ctx context.Context, rec models.Record, sourceFile string) bool
}

// Processor holds the stages shared by every document of a run. Stages
// keep no per-document state, so one Processor serves concurrent workers.
type Processor struct {
	cfg        *config.Config
	log        *logger.Logger
	extractor  *extractor.Extractor
	cleaner    *cleaner.Cleaner
	normalizer *normalizer.Normalizer
	validator  *validator.RecordValidator
	exporter   *exporter.Exporter
	saver      Saver
}

// NewProcessor creates a processor. saver may be nil when persistence is
// disabled for the run.
func NewProcessor(cfg *config.Config, log *logger.Logger, saver Saver) *Processor {
	if log == nil {
		log = logger.Discard()
	}

	norm := normalizer.New(cfg.Normalization, log)

	return &Processor{
		cfg:        cfg,
		log:        log,
		extractor:  extractor.New(log, cfg.Extraction.Sections),
		cleaner:    cleaner.New(cfg.Cleaning),
		normalizer: norm,
		validator:  validator.NewRecordValidator(cfg.Validation, norm, log),
		exporter:   exporter.New(cfg.Export, log),
		saver:      saver,
	}
}

// run tracks one document's progress through the states.
type run struct {
	log    *logger.Logger
	result *models.FileResult
}

func (r *run) advance(to models.State) {
	from := r.result.State
	if from.Terminal() || slices.Index(order, to) <= slices.Index(order, from) {
		panic(fmt.Sprintf("illegal state transition %s -> %s", from, to))
	}

	r.log.Debug("state transition", "from", from, "to", to)
	r.result.State = to
}

func (r *run) fail(err error) {
	r.log.Error("document failed", "state", r.result.State, "error", err)
	r.result.State = models.StateFailed
	r.result.Success = false
	r.result.Error = err.Error()
}

// Process runs the document at path to a terminal state and writes its
// outputs under <outputRoot>/<file base name>.
func (p *Processor) Process(ctx context.Context, path, outputRoot string) models.FileResult {
	start := time.Now()
	res := models.FileResult{File: path, State: models.StatePending, Issues: []string{}}
	r := &run{log: p.log.With("file", path), result: &res}

	if err := p.process(ctx, r, path, outputRoot); err != nil {
		r.fail(err)
	}

	res.Duration = time.Since(start)

	return res
}

func (p *Processor) process(ctx context.Context, r *run, path, outputRoot string) error {
	res := r.result

	r.advance(models.StateExtracting)

	doc, err := htmldoc.Load(path, r.log)
	if err != nil {
		return err
	}

	raw := p.extractor.Extract(doc)

	r.advance(models.StateProcessing)

	rec, err := p.Transform(raw)
	if err != nil {
		return err
	}

	res.EUCTNumber = models.NaturalKey(rec)

	r.advance(models.StateValidating)

	report := p.validator.Validate(rec)
	res.Valid = report.Valid
	res.Issues = report.Issues
	r.log.Info("validation finished", "euct_number", res.EUCTNumber, "report", report.String())

	r.advance(models.StateExporting)

	res.OutputDir = exporter.OutputDir(outputRoot, path)

	res.ExportResults, err = p.exporter.Export(rec, res.OutputDir)
	if err != nil {
		return err
	}

	if exporter.Failed(res.ExportResults) {
		return ErrExportFailed
	}

	if p.saver != nil {
		res.Storage.Enabled = true
		res.Storage.Success = p.saver.Save(ctx, rec, path)

		if !res.Storage.Success {
			res.Storage.Error = "failed to save trial"
		}
	}

	r.advance(models.StateDone)
	res.Success = true

	r.log.Info("document processed", "euct_number", res.EUCTNumber, "valid", res.Valid)

	return nil
}

// Transform cleans then normalizes an extracted record.
func (p *Processor) Transform(raw models.Record) (models.Record, error) {
	if raw == nil {
		return nil, ErrEmptyRecord
	}

	return p.normalizer.Normalize(p.cleaner.Clean(raw)), nil
}
