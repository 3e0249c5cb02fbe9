package normalizer

// phaseSynonyms is checked in order against the lower-cased value.
var phaseSynonyms = []struct {
	text  string
	phase string
}{
	{"therapeutic exploratory", "Phase II"},
	{"therapeutic confirmatory", "Phase III"},
	{"first in human", "Phase I"},
	{"human pharmacology", "Phase I"},
	{"bioequivalence study", "Phase I"},
}

// countryAliases maps lower-cased variants to canonical country names.
var countryAliases = map[string]string{
	"united states":            "United States",
	"usa":                      "United States",
	"united states of america": "United States",
	"uk":                       "United Kingdom",
	"great britain":            "United Kingdom",
	"england":                  "United Kingdom",
	"united kingdom":           "United Kingdom",
	"france":                   "France",
	"germany":                  "Germany",
	"spain":                    "Spain",
	"italy":                    "Italy",
	"belgium":                  "Belgium",
	"netherlands":              "Netherlands",
	"the netherlands":          "Netherlands",
	"switzerland":              "Switzerland",
	"sweden":                   "Sweden",
	"denmark":                  "Denmark",
	"norway":                   "Norway",
	"finland":                  "Finland",
	"austria":                  "Austria",
	"portugal":                 "Portugal",
	"greece":                   "Greece",
	"ireland":                  "Ireland",
	"poland":                   "Poland",
	"czech republic":           "Czech Republic",
	"czechia":                  "Czech Republic",
	"hungary":                  "Hungary",
	"romania":                  "Romania",
	"bulgaria":                 "Bulgaria",
	"croatia":                  "Croatia",
	"slovenia":                 "Slovenia",
	"slovakia":                 "Slovakia",
	"estonia":                  "Estonia",
	"latvia":                   "Latvia",
	"lithuania":                "Lithuania",
	"cyprus":                   "Cyprus",
	"malta":                    "Malta",
	"luxembourg":               "Luxembourg",
	"iceland":                  "Iceland",
	"liechtenstein":            "Liechtenstein",
}
