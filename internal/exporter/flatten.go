package exporter

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"eutrials/internal/models"
)

// Entity tables written as CSV, in file order.
const (
	EntityTrials        = "trials"
	EntityTrialStatus   = "trial_status"
	EntityNotifications = "trial_notifications"
	EntityRecruitment   = "recruitment"
	EntityApplications  = "applications"
	EntityProducts      = "products"
	EntityLocations     = "locations"
	EntitySponsors      = "sponsors"
)

// Entities lists every entity table in output order.
var Entities = []string{
	EntityTrials,
	EntityTrialStatus,
	EntityNotifications,
	EntityRecruitment,
	EntityApplications,
	EntityProducts,
	EntityLocations,
	EntitySponsors,
}

// Row is one flattened entity instance. Columns keep first-set order.
type Row struct {
	keys   []string
	values map[string]string
}

func newRow(key string) *Row {
	r := &Row{values: map[string]string{}}
	r.Set("euct_number", key)

	return r
}

// Set assigns a column; v is rendered as CSV text.
func (r *Row) Set(column string, v any) {
	if _, ok := r.values[column]; !ok {
		r.keys = append(r.keys, column)
	}

	r.values[column] = cell(v)
}

// Get returns a column value.
func (r *Row) Get(column string) string {
	return r.values[column]
}

// Columns returns the column names in first-set order.
func (r *Row) Columns() []string {
	return r.keys
}

// setPrefixed copies the scalar leaves of m as prefix_key columns.
func (r *Row) setPrefixed(prefix string, m map[string]any) {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		r.Set(prefix+k, m[k])
	}
}

// cell renders a leaf. Lists of strings are joined, other composites are
// written as compact JSON.
func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		if strs := models.Strings(t); len(strs) == len(t) {
			return strings.Join(strs, ", ")
		}
	case map[string]any:
	default:
		return fmt.Sprint(t)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return string(b)
}

// Flatten turns rec into entity tables: one row per leaf entity instance,
// each carrying the trial's euct_number.
func Flatten(rec models.Record) map[string][]*Row {
	tables := make(map[string][]*Row, len(Entities))
	key := models.NaturalKey(rec)

	header := models.Map(rec, models.BranchHeader)
	if header == nil {
		return tables
	}

	trial := newRow(key)
	trial.Set("title", header["title"])
	trial.Set("protocol_code", header["protocol_code"])

	info := models.Map(rec, "summary.trial_information")
	for _, k := range slices.Sorted(maps.Keys(info)) {
		switch v := info[k].(type) {
		case map[string]any:
		case []any:
			if k == "locations" {
				trial.Set(k, v)
			}
		default:
			trial.Set(k, v)
		}
	}

	tables[EntityTrials] = []*Row{trial}

	for _, status := range mappings(models.List(rec, "summary.overall_trial_status.application_trial_status")) {
		row := newRow(key)
		row.setPrefixed("", status)
		tables[EntityTrialStatus] = append(tables[EntityTrialStatus], row)
	}

	tables[EntityNotifications] = countryRows(key, models.Map(rec, "summary.trial_notifications.countries"))
	tables[EntityRecruitment] = countryRows(key, models.Map(rec, "summary.recruitment_notifications.countries"))
	tables[EntityApplications] = applicationRows(key, models.List(rec, "summary.applications"))

	for _, product := range mappings(models.List(rec, models.BranchTrialInfo+".products")) {
		row := newRow(key)
		row.Set("title", product["title"])

		for _, part := range []string{"details", "characteristics", "dosage", "active_substance"} {
			if m, ok := product[part].(map[string]any); ok {
				row.setPrefixed(part+"_", m)
			}
		}

		tables[EntityProducts] = append(tables[EntityProducts], row)
	}

	tables[EntityLocations] = siteRows(key, models.List(rec, models.BranchLocations+".countries"))

	if sponsors := models.Map(rec, models.BranchLocations+".sponsors"); len(sponsors) > 0 {
		row := newRow(key)

		for _, part := range []string{"details", "scientific_contact", "public_contact"} {
			if m, ok := sponsors[part].(map[string]any); ok {
				row.setPrefixed(part+"_", m)
			}
		}

		tables[EntitySponsors] = []*Row{row}
	}

	return tables
}

func countryRows(key string, countries map[string]any) []*Row {
	var out []*Row

	for _, name := range slices.Sorted(maps.Keys(countries)) {
		row := newRow(key)
		row.Set("country", name)

		if fields, ok := countries[name].(map[string]any); ok {
			row.setPrefixed("", fields)
		}

		out = append(out, row)
	}

	return out
}

func applicationRows(key string, apps []any) []*Row {
	var out []*Row

	for _, app := range mappings(apps) {
		row := newRow(key)
		row.Set("title", app["title"])
		row.Set("type", app["type"])
		row.Set("submission_date", app["submission_date"])

		if part1, ok := app["assessment_part1"].(map[string]any); ok {
			row.Set("reference_member_state", part1["reference_member_state"])
			row.Set("part1_conclusion", part1["conclusion"])
			row.Set("part1_reporting_date", part1["reporting_date"])
		}

		out = append(out, row)

		for _, decision := range mappings(listOf(app["decisions"])) {
			d := newRow(key)
			d.Set("application_title", app["title"])
			d.Set("member_state", decision["member_state"])
			d.Set("decision", decision["decision"])
			d.Set("decision_date", decision["decision_date"])
			d.Set("decision_type", decision["decision_type"])
			out = append(out, d)
		}
	}

	return out
}

func siteRows(key string, countries []any) []*Row {
	var out []*Row

	for _, country := range mappings(countries) {
		for _, site := range mappings(listOf(country["sites"])) {
			row := newRow(key)
			row.Set("country", country["country"])
			row.Set("country_status", country["status"])
			row.Set("planned_subjects", country["planned_subjects"])
			row.Set("site_name", site["name"])

			for _, k := range slices.Sorted(maps.Keys(site)) {
				if k == "name" || k == "contact" {
					continue
				}

				row.Set("site_"+k, site[k])
			}

			if contact, ok := site["contact"].(map[string]any); ok {
				row.setPrefixed("contact_", contact)
			}

			out = append(out, row)
		}
	}

	return out
}

func listOf(v any) []any {
	l, _ := v.([]any)

	return l
}

// mappings keeps the mapping items of a sequence.
func mappings(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))

	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}

	return out
}
