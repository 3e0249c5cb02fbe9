package exporter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"eutrials/internal/models"
)

// CSV writes each non-empty entity table of rec to <dir>/<entity>.csv.
func (e *Exporter) CSV(rec models.Record, dir string) (map[string]models.ExportResult, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	tables := Flatten(rec)
	results := make(map[string]models.ExportResult, len(tables))

	for _, entity := range Entities {
		rows := tables[entity]
		if len(rows) == 0 {
			e.log.Debug("no rows to export", "entity", entity)
			continue
		}

		path := filepath.Join(dir, entity+".csv")
		err := e.writeCSVFile(path, rows)

		if err != nil {
			e.log.Error("csv export failed", "entity", entity, "error", err)
		}

		results[entity] = result(path, len(rows), err)
	}

	e.log.Debug("csv export finished", "dir", dir, "files", len(results))

	return results, nil
}

func (e *Exporter) writeCSVFile(path string, rows []*Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := WriteCSV(f, rows, e.cfg.CSVDelimiter); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return f.Close()
}

// Header returns the union of the rows' columns in first-seen order.
func Header(rows []*Row) []string {
	seen := map[string]bool{}

	var header []string

	for _, r := range rows {
		for _, c := range r.Columns() {
			if !seen[c] {
				seen[c] = true
				header = append(header, c)
			}
		}
	}

	return header
}

// WriteCSV writes a header row and one line per row with every field
// quoted. Missing columns are written as empty fields.
func WriteCSV(w io.Writer, rows []*Row, delimiter string) error {
	bw := bufio.NewWriter(w)
	header := Header(rows)

	writeLine := func(fields []string) {
		for i, f := range fields {
			if i > 0 {
				bw.WriteString(delimiter)
			}

			bw.WriteString(quote(f))
		}

		bw.WriteString("\n")
	}

	writeLine(header)

	fields := make([]string, len(header))

	for _, r := range rows {
		for i, c := range header {
			fields[i] = r.Get(c)
		}

		writeLine(fields)
	}

	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
