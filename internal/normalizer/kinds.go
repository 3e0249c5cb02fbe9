package normalizer

import "strings"

// Kind is the coercion applied to a string leaf.
type Kind int

// Field kinds, in no particular order; dispatch priority lives in registry.
const (
	KindPlainText Kind = iota
	KindDate
	KindBoolean
	KindAgeRange
	KindCountryName
	KindTrialPhase
	KindNumber
	KindCommaList
)

var kindNames = map[Kind]string{
	KindPlainText:   "plain_text",
	KindDate:        "date",
	KindBoolean:     "boolean",
	KindAgeRange:    "age_range",
	KindCountryName: "country_name",
	KindTrialPhase:  "trial_phase",
	KindNumber:      "number",
	KindCommaList:   "comma_list",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "unknown"
}

type rule struct {
	match func(key, value string) bool
	kind  Kind
}

func keyContains(sub string) func(string, string) bool {
	return func(key, _ string) bool {
		return strings.Contains(key, sub)
	}
}

// registry is checked top to bottom; the first matching rule wins.
var registry = []rule{
	{keyContains("date"), KindDate},
	{func(key, _ string) bool { return key == "transition_trial" || key == "early_termination" }, KindBoolean},
	{keyContains("age_range"), KindAgeRange},
	{keyContains("country"), KindCountryName},
	{keyContains("trial_phase"), KindTrialPhase},
	{keyContains("number"), KindNumber},
	{func(key, value string) bool { return strings.Contains(key, "locations") && strings.Contains(value, ",") }, KindCommaList},
}

// Classify returns the kind of a string leaf from its canonical key.
func Classify(key, value string) Kind {
	key = strings.ToLower(key)

	for _, r := range registry {
		if r.match(key, value) {
			return r.kind
		}
	}

	return KindPlainText
}
