// Package models defines the trial record tree and the values that travel
// alongside it through the pipeline.
package models

import "strings"

// Top-level branches of a trial record.
const (
	BranchHeader       = "header"
	BranchSummary      = "summary"
	BranchTrialInfo    = "trial_information"
	BranchTrialResults = "trial_results"
	BranchLocations    = "locations"
	BranchMetadata     = "metadata"
)

// Record is a trial record: a tree of map[string]any, []any and scalar
// leaves (string, bool, int, float64, nil). Stages never mutate a record in
// place; each returns a new tree.
type Record = map[string]any

// Lookup walks a dotted path through nested maps.
func Lookup(rec Record, path string) (any, bool) {
	var cur any = rec

	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}

		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

// String returns the string leaf at path, or "" when absent or not a string.
func String(rec Record, path string) string {
	v, ok := Lookup(rec, path)
	if !ok {
		return ""
	}

	s, _ := v.(string)

	return s
}

// Map returns the map at path, or nil.
func Map(rec Record, path string) map[string]any {
	v, ok := Lookup(rec, path)
	if !ok {
		return nil
	}

	m, _ := v.(map[string]any)

	return m
}

// List returns the sequence at path, or nil.
func List(rec Record, path string) []any {
	v, ok := Lookup(rec, path)
	if !ok {
		return nil
	}

	l, _ := v.([]any)

	return l
}

// NaturalKey returns the trial identifier used as the storage key.
func NaturalKey(rec Record) string {
	return String(rec, BranchHeader+".euct_number")
}

// Strings converts a sequence of string leaves, skipping other values.
func Strings(list []any) []string {
	out := make([]string, 0, len(list))

	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}

	return out
}
