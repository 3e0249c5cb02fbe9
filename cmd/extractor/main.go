// Package main provides the extractor command: it runs the trial pipeline
// over one HTML document or a directory of them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"eutrials/internal/batch"
	"eutrials/internal/config"
	"eutrials/internal/formatter"
	"eutrials/internal/logger"
	"eutrials/internal/pipeline"
	"eutrials/internal/storage"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// Flag values selecting everything.
const (
	formatBoth  = "all"
	sectionsAll = "all"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	input       string
	inputDir    string
	output      string
	format      string
	sections    string
	configPath  string
	metricsFile string
	saveConfig  string
	mongoURI    string
	mongoDB     string
	workers     int
	verbose     bool
	enableStore bool
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	fs := flag.NewFlagSet("extractor", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.input, "input", "", "HTML trial document to process")
	fs.StringVar(&opts.inputDir, "input-dir", "", "Directory of HTML trial documents to process")
	fs.StringVar(&opts.output, "output", "output", "Output root directory")
	fs.StringVar(&opts.format, "format", formatBoth, "Export format: json, csv or all")
	fs.StringVar(&opts.sections, "sections", sectionsAll, "Comma-separated sections: header, summary, trial_info, results, locations")
	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.saveConfig, "save-config", "", "Write the effective configuration to this YAML file and exit")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "Write batch metrics to this Prometheus textfile")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	fs.BoolVar(&opts.enableStore, "enable-mongodb", false, "Persist records to the configured document store")
	fs.StringVar(&opts.mongoURI, "mongodb-uri", "", "Document store URI (mongodb://, mongodb+srv://, sqlite://, file:)")
	fs.StringVar(&opts.mongoDB, "mongodb-database", "", "Document store database name")
	fs.IntVar(&opts.workers, "workers", 0, "Maximum parallel workers (0 uses the configured value)")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}

	return opts, fs, nil
}

// apply layers the command-line flags over cfg.
func (o *options) apply(cfg *config.Config) error {
	switch o.format {
	case formatBoth, "":
		cfg.Export.Formats = append([]string(nil), config.AvailableFormats...)
	default:
		cfg.Export.Formats = []string{o.format}
	}

	if o.sections != "" && o.sections != sectionsAll {
		var sections []string

		for _, s := range strings.Split(o.sections, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sections = append(sections, s)
			}
		}

		cfg.Extraction.Sections = sections
	}

	if o.verbose {
		cfg.Logging.Level = "debug"
	}

	if o.enableStore {
		cfg.Storage.Enabled = true
	}

	if o.mongoURI != "" {
		cfg.Storage.URI = o.mongoURI
	}

	if o.mongoDB != "" {
		cfg.Storage.Database = o.mongoDB
	}

	if o.metricsFile != "" {
		cfg.Metrics.Textfile = o.metricsFile
	}

	if o.workers > 0 {
		cfg.Batch.MaxWorkers = o.workers
	}

	return cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, fs, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}

		return exitUsage
	}

	if opts.input == "" && opts.inputDir == "" && opts.saveConfig == "" {
		fmt.Fprintln(stderr, "Error: either --input or --input-dir is required")
		fs.PrintDefaults()

		return exitUsage
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}

	if err := opts.apply(cfg); err != nil {
		fmt.Fprintf(stderr, "Error: invalid options: %v\n", err)
		return exitUsage
	}

	if opts.saveConfig != "" {
		if err := cfg.SaveConfig(opts.saveConfig); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailed
		}

		fmt.Fprintf(stdout, "Configuration written to %s\n", opts.saveConfig)

		return exitOK
	}

	runID := batch.NewRunID()
	log := logger.New(stderr, cfg.Logging.Level, cfg.Logging.Format).With("run_id", runID)

	paths := []string{opts.input}
	if opts.input == "" {
		paths, err = batch.Discover(opts.inputDir)
		if errors.Is(err, batch.ErrNoDocuments) {
			fmt.Fprintf(stdout, "No HTML files found in %s\n", opts.inputDir)
			return exitOK
		}

		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailed
		}
	}

	log.Info("starting extraction", "documents", len(paths), "output", opts.output, "config", cfg.String())

	var saver pipeline.Saver

	if cfg.Storage.Enabled {
		mgr := storage.NewManager(cfg.Storage, log)
		if mgr.Connect(ctx) {
			saver = mgr

			defer mgr.Close(context.WithoutCancel(ctx))
		} else {
			log.Warn("storage unavailable, continuing without persistence")
		}
	}

	metrics := batch.NewMetrics()
	proc := pipeline.NewProcessor(cfg, log, saver)
	orch := batch.New(cfg.Batch, log, proc, batch.WithRunID(runID), batch.WithMetrics(metrics))

	results, summary := orch.Run(ctx, paths, opts.output)

	fmt.Fprint(stdout, formatter.Report(results, summary))

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Error("metrics not written", "error", err)
		}
	}

	if summary.AllFailed() {
		return exitFailed
	}

	return exitOK
}
