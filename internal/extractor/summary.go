package extractor

import (
	"eutrials/internal/htmldoc"
)

// Summary extracts the condensed trial facts of div#summary.
func (e *Extractor) Summary(doc *htmldoc.Document) map[string]any {
	scope := e.section(doc, idSummary)

	return map[string]any{
		"trial_information":         e.summaryTrialInformation(doc, scope),
		"overall_trial_status":      e.overallTrialStatus(doc, scope),
		"trial_notifications":       e.notifications(doc, scope, "div#trial_notifications", trialNotificationFields),
		"recruitment_notifications": e.notifications(doc, scope, "div#recruitment_notifications", recruitmentNotificationFields),
		"trial_duration":            readFields(doc, e.sub(doc, scope, "div#trial_duration"), trialDurationFields),
		"applications":              e.applications(doc, scope),
	}
}

func (e *Extractor) summaryTrialInformation(doc *htmldoc.Document, scope htmldoc.Scope) map[string]any {
	sub := e.sub(doc, scope, "div#trial_information")
	info := readFields(doc, sub, summaryTrialInfoFields)
	info["locations"] = splitList(doc.Field(sub, summaryLocationsLabel))

	return info
}

func (e *Extractor) overallTrialStatus(doc *htmldoc.Document, scope htmldoc.Scope) map[string]any {
	sub := e.sub(doc, scope, "div#overall_trial_status")
	status := readFields(doc, sub, overallStatusFields)
	status["application_trial_status"] = readTable(doc, sub, queryLabel, applicationStatusLabel)

	return status
}

// notifications reads the per-country notification blocks: each
// "<n.n.n> <country>" heading is paired with the content block after it.
func (e *Extractor) notifications(doc *htmldoc.Document, scope htmldoc.Scope, query string, table fieldTable) map[string]any {
	countries := map[string]any{}

	for _, g := range doc.Groups(e.sub(doc, scope, query), "h3", queryContent) {
		m := e.notificationPattern.FindStringSubmatch(g.Title())
		if m == nil || g.Content == nil {
			continue
		}

		countries[m[1]] = readFields(doc, htmldoc.In(g.Content), table)
	}

	return map[string]any{"countries": countries}
}

func (e *Extractor) applications(doc *htmldoc.Document, scope htmldoc.Scope) []any {
	apps := []any{}

	for _, g := range doc.Groups(e.sub(doc, scope, "div#applications"), "h3", queryContent) {
		if g.Content == nil {
			continue
		}

		content := htmldoc.In(g.Content)
		app := readFields(doc, content, applicationFields)
		app["title"] = g.Title()

		if e.hasPartOne(doc, content) {
			app["assessment_part1"] = readFields(doc, content, assessmentPartOneFields)
		}

		if t := doc.LabelValue(content, "h4", assessmentPartTwoHeading, "table"); t != nil {
			app["assessment_part2"] = rows(doc.Table(t))
		}

		if t := doc.LabelValue(content, "h4", decisionHeading, "table"); t != nil {
			app["decisions"] = rows(doc.Table(t))
		}

		apps = append(apps, app)
	}

	return apps
}

// hasPartOne reports whether an "Assessment Part I" heading (not Part II) exists.
func (e *Extractor) hasPartOne(doc *htmldoc.Document, scope htmldoc.Scope) bool {
	for _, h4 := range doc.SelectAll(scope, "h4") {
		if e.partOnePattern.MatchString(htmldoc.Text(h4)) {
			return true
		}
	}

	return false
}
