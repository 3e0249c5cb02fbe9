// Package formatter renders run reports as pipe tables padded by display
// width, so file names with accented or wide characters stay aligned.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"eutrials/internal/batch"
	"eutrials/internal/models"
	"eutrials/pkg/utils"

	"github.com/mattn/go-runewidth"
)

// maxErrorWidth bounds the error column of the report.
const maxErrorWidth = 60

// Table renders header and rows as a pipe table with a dashed separator.
// Short rows are padded with empty cells.
func Table(header []string, rows [][]string) string {
	colCount := len(header)
	for _, row := range rows {
		colCount = max(colCount, len(row))
	}

	// Minimum width is the "---" of the separator.
	widths := make([]int, colCount)
	for i := range widths {
		widths[i] = 3
	}

	for _, row := range append([][]string{header}, rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var sb strings.Builder

	writeRow := func(row []string) {
		sb.WriteString("|")

		for j := range colCount {
			content := ""
			if j < len(row) {
				content = row[j]
			}

			sb.WriteString(" ")
			sb.WriteString(runewidth.FillRight(content, widths[j]))
			sb.WriteString(" |")
		}

		sb.WriteString("\n")
	}

	writeRow(header)

	sb.WriteString("|")

	for _, w := range widths {
		sb.WriteString(" ")
		sb.WriteString(strings.Repeat("-", w))
		sb.WriteString(" |")
	}

	sb.WriteString("\n")

	for _, row := range rows {
		writeRow(row)
	}

	return sb.String()
}

// Report renders one line per document followed by the run totals.
func Report(results []models.FileResult, summary batch.Summary) string {
	rows := make([][]string, 0, len(results))

	for _, r := range results {
		rows = append(rows, []string{
			r.File,
			r.EUCTNumber,
			statusMark(r),
			validity(r),
			storage(r.Storage),
			utils.TruncateString(r.Error, maxErrorWidth),
		})
	}

	var sb strings.Builder

	sb.WriteString(Table([]string{"File", "EU CT number", "Status", "Validation", "Storage", "Error"}, rows))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Run %s: %d documents, %d done, %d failed, %d valid in %s\n",
		summary.RunID, summary.Total, summary.Done, summary.Failed, summary.Valid, summary.Duration.Round(time.Millisecond))

	return sb.String()
}

func statusMark(r models.FileResult) string {
	if r.State == models.StateDone {
		return "✅ " + string(r.State)
	}

	return "❌ " + string(r.State)
}

func validity(r models.FileResult) string {
	if r.State != models.StateDone {
		return ""
	}

	return models.ValidationReport{Valid: r.Valid, Issues: r.Issues}.String()
}

func storage(s models.StorageResult) string {
	switch {
	case !s.Enabled:
		return "disabled"
	case s.Success:
		return "saved"
	default:
		return "failed"
	}
}
