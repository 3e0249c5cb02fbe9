// Package cleaner canonicalizes a raw extracted trial record: text clean-up,
// missing-value defaulting, empty-branch pruning and key canonicalization.
package cleaner

import (
	"maps"
	"slices"
	"strings"

	"eutrials/internal/config"
	"eutrials/internal/models"
	"eutrials/pkg/utils"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Cleaner applies the cleaning stages in a fixed order. Defaulting runs
// before pruning so defaulted empties are removed; key canonicalization runs
// last so earlier stages see the labels as extracted.
type Cleaner struct {
	cfg  config.CleaningConfig
	keys *strings.Replacer
}

// New creates a cleaner.
func New(cfg config.CleaningConfig) *Cleaner {
	return &Cleaner{
		cfg:  cfg,
		keys: strings.NewReplacer(" ", "_", "-", "_"),
	}
}

// Clean returns a new cleaned record; rec is not modified.
func (c *Cleaner) Clean(rec models.Record) models.Record {
	var v any = rec

	v = c.cleanText(v)
	v = c.applyDefaults(v)
	v = c.prune(v)
	v = c.canonicalKeys(v)

	out, _ := v.(map[string]any)
	if out == nil {
		out = models.Record{}
	}

	return out
}

func (c *Cleaner) cleanText(v any) any {
	switch t := v.(type) {
	case string:
		return utils.CleanText(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = c.cleanText(val)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = c.cleanText(val)
		}

		return out
	default:
		return v
	}
}

func (c *Cleaner) applyDefaults(v any) any {
	switch t := v.(type) {
	case nil:
		return c.cfg.DefaultValue
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = c.applyDefaults(val)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = c.applyDefaults(val)
		}

		return out
	default:
		return v
	}
}

// prune removes empty strings, sequences and mappings. Children are pruned
// before their parent is tested, so a branch that only held empties goes too.
func (c *Cleaner) prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))

		for k, val := range t {
			val = c.prune(val)
			if !c.empty(val) {
				out[k] = val
			}
		}

		return out
	case []any:
		out := make([]any, 0, len(t))

		for _, val := range t {
			val = c.prune(val)
			if !c.empty(val) {
				out = append(out, val)
			}
		}

		return out
	default:
		return v
	}
}

func (c *Cleaner) empty(v any) bool {
	switch t := v.(type) {
	case string:
		return c.cfg.RemoveEmptyStrings && t == ""
	case []any:
		return c.cfg.RemoveEmptyLists && len(t) == 0
	case map[string]any:
		return c.cfg.RemoveEmptyMaps && len(t) == 0
	default:
		return false
	}
}

// CanonicalKey lower-cases a key and replaces spaces and hyphens with underscores.
func (c *Cleaner) CanonicalKey(key string) string {
	// Casers carry state and are not shared between workers.
	return c.keys.Replace(cases.Lower(language.Und).String(key))
}

// canonicalKeys rewrites keys in sorted order so that colliding keys resolve
// the same way on every run.
func (c *Cleaner) canonicalKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for _, k := range slices.Sorted(maps.Keys(t)) {
			out[c.CanonicalKey(k)] = c.canonicalKeys(t[k])
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = c.canonicalKeys(val)
		}

		return out
	default:
		return v
	}
}
