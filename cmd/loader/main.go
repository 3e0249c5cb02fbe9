// Package main provides the loader command: it bulk-inserts exported
// clinical_trial.json files into the document store, dumps the store to a
// JSON file, or restores such a dump.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"eutrials/internal/config"
	"eutrials/internal/exporter"
	"eutrials/internal/logger"
	"eutrials/internal/models"
	"eutrials/internal/storage"
	"eutrials/pkg/metadata"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("loader", flag.ContinueOnError)
	flags.SetOutput(stderr)

	dir := flags.String("dir", "", "Extractor output root to scan for "+exporter.CompleteFile+" files")
	dump := flags.String("dump", "", "Write stored trials to this JSON file instead of loading")
	restore := flags.String("restore", "", "Insert the trials of a JSON dump, skipping those whose source changed")
	limit := flags.Int("limit", 0, "Maximum trials to dump (0 dumps all)")
	configPath := flags.String("config", "", "YAML configuration file")
	uri := flags.String("mongodb-uri", "", "Document store URI")
	database := flags.String("mongodb-database", "", "Document store database name")
	verbose := flags.Bool("verbose", false, "Enable debug logging")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}

		return 2
	}

	modes := 0

	for _, v := range []string{*dir, *dump, *restore} {
		if v != "" {
			modes++
		}
	}

	if modes != 1 {
		fmt.Fprintln(stderr, "Error: exactly one of -dir, -dump or -restore is required")
		flags.PrintDefaults()

		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cfg.Storage.Enabled = true

	if *uri != "" {
		cfg.Storage.URI = *uri
	}

	if *database != "" {
		cfg.Storage.Database = *database
	}

	if *verbose {
		cfg.Logging.Level = "debug"
	}

	log := logger.New(stderr, cfg.Logging.Level, cfg.Logging.Format)

	mgr := storage.NewManager(cfg.Storage, log)
	if !mgr.Connect(ctx) {
		fmt.Fprintln(stderr, "Error: cannot connect to storage")
		return 1
	}

	defer mgr.Close(context.WithoutCancel(ctx))

	switch {
	case *dump != "":
		return dumpTrials(ctx, mgr, *dump, *limit, stdout, stderr)
	case *restore != "":
		return restoreTrials(ctx, mgr, *restore, log, stdout, stderr)
	}

	return loadTrials(ctx, mgr, *dir, log, stdout, stderr)
}

func loadTrials(ctx context.Context, mgr *storage.Manager, dir string, log *logger.Logger, stdout, stderr io.Writer) int {
	files, err := findComplete(dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(files) == 0 {
		fmt.Fprintf(stdout, "No %s files found in %s\n", exporter.CompleteFile, dir)
		return 0
	}

	recs := make([]models.Record, 0, len(files))
	sources := make([]string, 0, len(files))
	unreadable := 0

	for _, path := range files {
		rec, err := readRecord(path)
		if err != nil {
			log.Warn("skipping unreadable record", "file", path, "error", err)
			unreadable++

			continue
		}

		recs = append(recs, rec)
		sources = append(sources, path)
	}

	res := mgr.BulkInsert(ctx, recs, sources)
	res.Failed += unreadable

	fmt.Fprintf(stdout, "Loaded %d files: %d inserted, %d duplicates, %d failed\n",
		len(files), res.Success, res.Duplicates, res.Failed)

	if res.Success == 0 && res.Duplicates == 0 {
		return 1
	}

	return 0
}

func dumpTrials(ctx context.Context, mgr *storage.Manager, path string, limit int, stdout, stderr io.Writer) int {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	n, err := mgr.ExportJSON(ctx, f, limit)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Dumped %d trials to %s\n", n, path)

	return 0
}

func restoreTrials(ctx context.Context, mgr *storage.Manager, path string, log *logger.Logger, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var dumped []models.Record
	if err := json.Unmarshal(data, &dumped); err != nil {
		fmt.Fprintf(stderr, "Error: %s is not a trial dump: %v\n", path, err)
		return 1
	}

	recs := make([]models.Record, 0, len(dumped))
	sources := make([]string, 0, len(dumped))
	stale := 0

	for _, rec := range dumped {
		source, fresh := checkSource(rec, log)
		if !fresh {
			stale++
			continue
		}

		recs = append(recs, rec)
		sources = append(sources, source)
	}

	res := mgr.BulkInsert(ctx, recs, sources)

	fmt.Fprintf(stdout, "Restored %d trials: %d inserted, %d duplicates, %d failed, %d stale\n",
		len(dumped), res.Success, res.Duplicates, res.Failed, stale)

	if len(recs) > 0 && res.Success == 0 && res.Duplicates == 0 {
		return 1
	}

	return 0
}

// checkSource returns the recorded source file of rec and whether rec may
// be restored. A record is stale when its source file still exists but no
// longer matches the recorded hash.
func checkSource(rec models.Record, log *logger.Logger) (string, bool) {
	meta, err := metadata.Extract(rec)
	if err != nil || meta.SourceFile == "" {
		return "", true
	}

	content, err := os.ReadFile(meta.SourceFile)
	if err != nil {
		return meta.SourceFile, true
	}

	if _, err := metadata.Verify(rec, content); errors.Is(err, metadata.ErrHashMismatch) {
		log.Warn("skipping stale trial", "trial", models.NaturalKey(rec), "source", meta.SourceFile, "error", err)
		return meta.SourceFile, false
	}

	return meta.SourceFile, true
}

// findComplete returns every complete-record JSON file under root.
func findComplete(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && d.Name() == exporter.CompleteFile {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	return files, nil
}

func readRecord(path string) (models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return rec, nil
}
