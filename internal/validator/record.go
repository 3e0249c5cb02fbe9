// Package validator audits a normalized trial record: required sections and
// fields, date ordering, and agreement between values extracted twice.
package validator

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"eutrials/internal/config"
	"eutrials/internal/logger"
	"eutrials/internal/models"
	"eutrials/internal/normalizer"
)

// DateParser interprets raw or canonical date strings.
type DateParser interface {
	ParseDate(value string) (time.Time, bool)
}

// Check produces zero or more issues for a record.
type Check func(rec models.Record) []string

// RecordValidator runs every check and unions their issues; no check
// short-circuits another.
type RecordValidator struct {
	cfg    config.ValidationConfig
	dates  DateParser
	log    *logger.Logger
	checks []Check
}

// NewRecordValidator creates a validator.
func NewRecordValidator(cfg config.ValidationConfig, dates DateParser, log *logger.Logger) *RecordValidator {
	if log == nil {
		log = logger.Discard()
	}

	v := &RecordValidator{cfg: cfg, dates: dates, log: log}
	v.checks = []Check{
		v.RequiredSections,
		v.RequiredFields,
		v.DateOrder,
		v.Consistency,
	}

	return v
}

// Validate returns the advisory report for rec. Valid is true iff no check
// reported an issue.
func (v *RecordValidator) Validate(rec models.Record) models.ValidationReport {
	report := models.ValidationReport{Issues: []string{}}

	for _, check := range v.checks {
		report.Issues = append(report.Issues, check(rec)...)
	}

	report.Valid = len(report.Issues) == 0

	if !report.Valid {
		v.log.Warn("validation failed", "euct_number", models.NaturalKey(rec), "issues", len(report.Issues))

		for _, issue := range report.Issues {
			v.log.Debug("validation issue", "issue", issue)
		}
	}

	return report
}

// RequiredSections reports configured top-level branches that are absent.
func (v *RecordValidator) RequiredSections(rec models.Record) []string {
	var issues []string

	for _, section := range v.cfg.RequiredSections {
		if _, ok := rec[section]; !ok {
			issues = append(issues, "required section missing: "+section)
		}
	}

	return issues
}

// RequiredFields reports missing leaves under the configured dotted paths.
// Paths are visited in sorted order so reports are stable.
func (v *RecordValidator) RequiredFields(rec models.Record) []string {
	var issues []string

	paths := make([]string, 0, len(v.cfg.RequiredFields))
	for p := range v.cfg.RequiredFields {
		paths = append(paths, p)
	}

	slices.Sort(paths)

	for _, path := range paths {
		branch := models.Map(rec, path)
		if branch == nil {
			issues = append(issues, "invalid path for required fields: "+path)
			continue
		}

		for _, field := range v.cfg.RequiredFields[path] {
			if _, ok := branch[field]; !ok {
				issues = append(issues, fmt.Sprintf("required field missing: %s.%s", path, field))
			}
		}
	}

	return issues
}

// DateOrder reports a recruitment start later than the estimated end of
// trial. The check only runs when both values parse as dates.
func (v *RecordValidator) DateOrder(rec models.Record) []string {
	start := models.String(rec, "summary.trial_duration.estimated_recruitment_start")
	end := models.String(rec, "summary.trial_duration.estimated_end_date")

	if start == "" || end == "" || v.dates == nil {
		return nil
	}

	startAt, ok := v.dates.ParseDate(start)
	if !ok {
		return nil
	}

	endAt, ok := v.dates.ParseDate(end)
	if !ok {
		return nil
	}

	if startAt.After(endAt) {
		return []string{fmt.Sprintf(
			"inconsistent dates: estimated recruitment start (%s) is after estimated end of trial (%s)", start, end)}
	}

	return nil
}

// Consistency compares values extracted independently in two branches.
func (v *RecordValidator) Consistency(rec models.Record) []string {
	var issues []string

	header := models.Map(rec, models.BranchHeader)
	identifiers := models.Map(rec, models.BranchTrialInfo+".trial_details.trial_identifiers")

	if header != nil && identifiers != nil {
		if a, b, differ := compare(header, "euct_number", identifiers, "eu_trial_number"); differ {
			issues = append(issues, fmt.Sprintf("inconsistent EUCT number: header (%s) vs trial details (%s)", a, b))
		}

		if a, b, differ := compare(header, "protocol_code", identifiers, "protocol_code"); differ {
			issues = append(issues, fmt.Sprintf("inconsistent protocol code: header (%s) vs trial details (%s)", a, b))
		}
	}

	summary, ok := models.Lookup(rec, "summary.trial_information.locations")
	countries := models.List(rec, models.BranchLocations+".countries")

	if ok && countries != nil {
		detailed := make(map[string]struct{}, len(countries))

		for _, c := range countries {
			if m, ok := c.(map[string]any); ok {
				name, _ := m["country"].(string)
				detailed[countryKey(name)] = struct{}{}
			}
		}

		for _, name := range locationNames(summary) {
			if _, found := detailed[countryKey(name)]; !found {
				issues = append(issues, fmt.Sprintf(
					"inconsistent locations: country %s listed in summary but missing from location details", name))
			}
		}
	}

	return issues
}

func compare(a map[string]any, aKey string, b map[string]any, bKey string) (string, string, bool) {
	av, aok := a[aKey]
	bv, bok := b[bKey]

	if !aok || !bok {
		return "", "", false
	}

	as, bs := fmt.Sprint(av), fmt.Sprint(bv)

	return as, bs, as != bs
}

// locationNames accepts the summary list or, when normalization left it a
// single string, that string.
func locationNames(v any) []string {
	switch t := v.(type) {
	case []any:
		return models.Strings(t)
	case string:
		return models.Strings(normalizer.CommaList(t))
	default:
		return nil
	}
}

func countryKey(name string) string {
	return strings.ToLower(normalizer.Country(name))
}
