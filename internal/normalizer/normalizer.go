// Package normalizer coerces the string leaves of a cleaned trial record into
// typed values, choosing the coercion from the leaf's key. Every coercion is
// best effort: a value that cannot be interpreted passes through unchanged.
package normalizer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"eutrials/internal/config"
	"eutrials/internal/logger"
	"eutrials/internal/models"
	"eutrials/pkg/utils"

	"github.com/araddon/dateparse"
)

// Unknown is stored for boolean fields whose value is in neither value set.
const Unknown = "unknown"

// Normalizer applies the field-kind registry to a record.
type Normalizer struct {
	log          *logger.Logger
	trueValues   map[string]struct{}
	falseValues  map[string]struct{}
	dateFormats  []string
	outputFormat string
	dateJunk     *regexp.Regexp
	phasePattern *regexp.Regexp
	digits       *regexp.Regexp
}

// New creates a normalizer.
func New(cfg config.NormalizationConfig, log *logger.Logger) *Normalizer {
	if log == nil {
		log = logger.Discard()
	}

	return &Normalizer{
		log:          log,
		trueValues:   valueSet(cfg.BooleanTrueValues),
		falseValues:  valueSet(cfg.BooleanFalseValues),
		dateFormats:  cfg.DateFormats,
		outputFormat: cfg.OutputDateFormat,
		dateJunk:     regexp.MustCompile(`[^\d/\-.]`),
		phasePattern: regexp.MustCompile(`(?i)Phase\s+([IV]+)`),
		digits:       regexp.MustCompile(`\d+`),
	}
}

func valueSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}

	return set
}

// Normalize returns a new record with coerced leaves; rec is not modified.
func (n *Normalizer) Normalize(rec models.Record) models.Record {
	out, _ := n.walk(rec).(map[string]any)
	if out == nil {
		out = models.Record{}
	}

	return out
}

func (n *Normalizer) walk(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))

		for k, val := range t {
			if s, ok := val.(string); ok {
				out[k] = n.Value(k, s)
				continue
			}

			out[k] = n.walk(val)
		}

		return out
	case []any:
		// Only nested mappings are normalized; scalar items keep their value.
		out := make([]any, len(t))

		for i, val := range t {
			if _, ok := val.(map[string]any); ok {
				out[i] = n.walk(val)
			} else {
				out[i] = val
			}
		}

		return out
	default:
		return v
	}
}

// Value coerces a single string leaf according to its key.
func (n *Normalizer) Value(key, value string) any {
	switch Classify(key, value) {
	case KindDate:
		return n.Date(value)
	case KindBoolean:
		return n.Boolean(value)
	case KindAgeRange:
		return n.AgeRange(value)
	case KindCountryName:
		return Country(value)
	case KindTrialPhase:
		return n.Phase(value)
	case KindNumber:
		return Number(value)
	case KindCommaList:
		return CommaList(value)
	default:
		return utils.NormalizeWhitespace(value)
	}
}

// ParseDate interprets a date string: separators other than digits and
// "/-." are dropped, then a permissive day-first parse is tried, then a
// month-first one, then each configured layout in order. Digit runs longer
// than yyyymmdd are never dates.
func (n *Normalizer) ParseDate(value string) (time.Time, bool) {
	s := utils.NormalizeWhitespace(n.dateJunk.ReplaceAllString(value, " "))
	if s == "" || (len(s) > len("20060102") && isDigits(s)) {
		return time.Time{}, false
	}

	// The permissive parser reads dotted dates month first; slashes honour
	// the day-first preference.
	unified := strings.NewReplacer(".", "/", "-", "/").Replace(s)
	for _, monthFirst := range []bool{false, true} {
		if t, err := dateparse.ParseAny(unified, dateparse.PreferMonthFirst(monthFirst)); err == nil {
			return t, true
		}
	}

	for _, layout := range n.dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// Date rewrites a date into the output layout, or returns it unchanged.
func (n *Normalizer) Date(value string) string {
	t, ok := n.ParseDate(value)
	if !ok {
		n.log.Warn("could not normalize date", "value", value)
		return value
	}

	return t.Format(n.outputFormat)
}

// Boolean maps a value onto true, false, or Unknown.
func (n *Normalizer) Boolean(value string) any {
	v := strings.ToLower(strings.TrimSpace(value))

	if _, ok := n.trueValues[v]; ok {
		return true
	}

	if _, ok := n.falseValues[v]; ok {
		return false
	}

	n.log.Warn("could not normalize boolean", "value", value)

	return Unknown
}

// AgeRange parses "65+ years" into {min: 65, max: nil} and "18-64 years"
// into {min: 18, max: 64}; anything else yields {min: nil, max: nil}.
func (n *Normalizer) AgeRange(value string) map[string]any {
	out := map[string]any{"min": nil, "max": nil}
	nums := n.digits.FindAllString(value, -1)

	switch {
	case strings.Contains(value, "+") && len(nums) > 0:
		out["min"] = atoi(nums[0])
	case strings.Contains(value, "-") && len(nums) >= 2:
		out["min"] = atoi(nums[0])
		out["max"] = atoi(nums[1])
	}

	return out
}

func atoi(s string) any {
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}

	return v
}

// Phase canonicalizes a trial phase. A literal "Phase <roman>" wins over the
// synonym table; unmatched values pass through.
func (n *Normalizer) Phase(value string) string {
	value = strings.TrimSpace(value)

	if m := n.phasePattern.FindStringSubmatch(value); m != nil {
		return "Phase " + strings.ToUpper(m[1])
	}

	lower := strings.ToLower(value)
	for _, syn := range phaseSynonyms {
		if strings.Contains(lower, syn.text) {
			return syn.phase
		}
	}

	return value
}

// Number coerces to an int, then to a float with a decimal comma, else
// returns the trimmed string.
func Number(value string) any {
	value = strings.TrimSpace(value)

	if i, err := strconv.Atoi(value); err == nil {
		return i
	}

	if f, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64); err == nil &&
		!math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}

	return value
}

// CommaList splits on commas, dropping empty items.
func CommaList(value string) []any {
	out := []any{}

	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}

// Country maps a known alias onto its canonical name; other values pass through.
func Country(value string) string {
	value = strings.TrimSpace(value)
	if canonical, ok := countryAliases[strings.ToLower(value)]; ok {
		return canonical
	}

	return value
}
