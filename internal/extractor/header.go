package extractor

import (
	"eutrials/internal/htmldoc"
)

// Header extracts the title and identifiers shown at the top of the document.
// When the header block is absent, the identifier and title are re-derived
// from the trial identifiers block of the trial details section.
func (e *Extractor) Header(doc *htmldoc.Document) map[string]any {
	header := readFields(doc, doc.All(), headerFields)

	if header["euct_number"] == "" || header["title"] == "" {
		if h3 := doc.FindContaining(doc.All(), "h3", "Trial identifiers"); h3 != nil {
			scope := htmldoc.SiblingsUntil(h3)

			for _, f := range headerFallbackFields {
				if header[f.name] == "" {
					header[f.name] = doc.Field(scope, f.label)
				}
			}

			e.log.Debug("header resolved from trial identifiers", "file", doc.Path)
		}
	}

	if header["euct_number"] == "" {
		e.log.Warn("EUCT number not found in header", "file", doc.Path)
	}

	return header
}
