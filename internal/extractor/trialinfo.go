package extractor

import (
	"eutrials/internal/htmldoc"
)

// TrialInfo extracts div#full_trial_info: detailed identifiers, criteria,
// end points and investigational products.
func (e *Extractor) TrialInfo(doc *htmldoc.Document) map[string]any {
	scope := e.section(doc, idFullTrialInfo)

	return map[string]any{
		"trial_details": e.trialDetails(doc, scope),
		"products":      e.products(doc, scope),
	}
}

func (e *Extractor) trialDetails(doc *htmldoc.Document, scope htmldoc.Scope) map[string]any {
	details := e.sub(doc, scope, queryTrialDetails)

	out := map[string]any{
		"trial_identifiers": readFields(doc, details, trialIdentifierFields),
		"trial_information": readFields(doc, details, trialInformationFields),
	}

	for _, rule := range criteriaTables {
		out[rule.name] = project(doc, details, rule)
	}

	return out
}

func (e *Extractor) products(doc *htmldoc.Document, scope htmldoc.Scope) []any {
	products := []any{}

	for _, g := range doc.Groups(e.sub(doc, scope, queryProducts), queryProductHeading, queryContent) {
		if g.Content == nil {
			continue
		}

		content := htmldoc.In(g.Content)

		products = append(products, map[string]any{
			"title":            g.Title(),
			"details":          readFields(doc, content, productDetailFields),
			"characteristics":  readFields(doc, content, productCharacteristicFields),
			"dosage":           readFields(doc, content, productDosageFields),
			"active_substance": readFields(doc, content, activeSubstanceFields),
		})
	}

	return products
}
