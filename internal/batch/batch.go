// Package batch runs the per-document pipeline over many documents on a
// bounded worker pool and aggregates a run summary.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"eutrials/internal/config"
	"eutrials/internal/logger"
	"eutrials/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoDocuments is returned by Discover for a directory without HTML files.
var ErrNoDocuments = errors.New("no HTML files")

// Processor runs one document to a terminal state. pipeline.Processor
// satisfies it.
type Processor interface {
	Process(ctx context.Context, path, outputRoot string) models.FileResult
}

// Failure names one failed document.
type Failure struct {
	File  string
	Error string
}

// Summary aggregates the results of one run.
type Summary struct {
	RunID    string
	Failures []Failure
	Total    int
	Done     int
	Failed   int
	Valid    int
	Duration time.Duration
}

// AllFailed reports whether the run had documents and none completed.
func (s Summary) AllFailed() bool {
	return s.Total > 0 && s.Done == 0
}

// Orchestrator fans documents out to workers.
type Orchestrator struct {
	cfg     config.BatchConfig
	log     *logger.Logger
	proc    Processor
	metrics *Metrics
	runID   string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// WithMetrics records every result in m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// New creates an orchestrator.
func New(cfg config.BatchConfig, log *logger.Logger, proc Processor, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.Discard()
	}

	o := &Orchestrator{cfg: cfg, log: log, proc: proc}
	for _, opt := range opts {
		opt(o)
	}

	if o.runID == "" {
		o.runID = NewRunID()
	}

	o.log = o.log.With("run_id", o.runID)

	return o
}

// RunID returns the run identifier.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run processes every path and returns one result per path, in input
// order, plus the run summary. A failing or panicking document only
// affects its own result.
func (o *Orchestrator) Run(ctx context.Context, paths []string, outputRoot string) ([]models.FileResult, Summary) {
	start := time.Now()
	results := make([]models.FileResult, len(paths))

	workers := o.cfg.Workers(len(paths))
	o.log.Info("batch started", "documents", len(paths), "workers", workers, "output", outputRoot)

	prog := newProgress(o.log, len(paths), o.cfg.ProgressStepPercent)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			res := o.process(gctx, path, outputRoot)
			results[i] = res

			if o.metrics != nil {
				o.metrics.Observe(res)
			}

			prog.step(res)

			return nil
		})
	}

	// Workers never return errors; failures live in the results.
	_ = g.Wait()

	summary := Summarize(results)
	summary.RunID = o.runID
	summary.Duration = time.Since(start)

	o.log.Info("batch finished",
		"total", summary.Total,
		"done", summary.Done,
		"failed", summary.Failed,
		"valid", summary.Valid,
		"duration", summary.Duration,
	)

	return results, summary
}

// process isolates one document: a panic becomes a Failed result.
func (o *Orchestrator) process(ctx context.Context, path, outputRoot string) (res models.FileResult) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("worker panic", "file", path, "panic", r, "stack", string(debug.Stack()))

			res = models.FileResult{
				File:   path,
				State:  models.StateFailed,
				Error:  fmt.Sprintf("panic: %v", r),
				Issues: []string{},
			}
		}
	}()

	return o.proc.Process(ctx, path, outputRoot)
}

// Summarize counts results by terminal state.
func Summarize(results []models.FileResult) Summary {
	s := Summary{Total: len(results)}

	for _, r := range results {
		if r.State == models.StateDone {
			s.Done++

			if r.Valid {
				s.Valid++
			}

			continue
		}

		s.Failed++
		s.Failures = append(s.Failures, Failure{File: r.File, Error: r.Error})
	}

	return s
}

// Discover lists the .html and .htm files directly inside dir, sorted.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var paths []string

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".html", ".htm":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}

	slices.Sort(paths)

	return paths, nil
}
