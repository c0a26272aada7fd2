// Package prompt renders rendering-intent templates into concrete prompt text.
// All functions are pure: identical inputs always produce identical output.
package prompt

import (
	"regexp"
	"strings"

	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// aliases maps placeholder names that auto-fill from product facts when the
// caller supplied no value.
var aliases = map[string]models.FactSource{
	"title":            models.FactTitle,
	"product_title":    models.FactTitle,
	"product_name":     models.FactTitle,
	"item_name":        models.FactTitle,
	"name":             models.FactTitle,
	"category":         models.FactCategory,
	"product_category": models.FactCategory,
	"external_id":      models.FactExternalID,
	"sku":              models.FactExternalID,
	"catalog_id":       models.FactExternalID,
}

// Result is the output of Render.
type Result struct {
	Text string
	// Missing lists required variables that resolved to an empty value.
	// Callers warn on it; rendering itself never fails.
	Missing []models.VariableDefinition
}

// Render substitutes every {{name}} placeholder in tmpl.
//
// A placeholder resolves to, in order: a non-empty supplied value, the product
// fact named by an auto-fill definition, the product fact for a recognized
// alias, the definition's default, and finally the empty string.
func Render(tmpl string, values map[string]string, facts models.ProductFacts, defs []models.VariableDefinition) Result {
	byName := make(map[string]models.VariableDefinition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}

	resolved := make(map[string]string)
	resolve := func(name string) string {
		if v, ok := resolved[name]; ok {
			return v
		}
		v := resolveValue(name, values, facts, byName)
		resolved[name] = v
		return v
	}

	text := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		return resolve(sub[1])
	})

	missing := []models.VariableDefinition{}
	for _, d := range defs {
		if d.Required && strings.TrimSpace(resolve(d.Name)) == "" {
			missing = append(missing, d)
		}
	}

	return Result{Text: text, Missing: missing}
}

func resolveValue(name string, values map[string]string, facts models.ProductFacts, defs map[string]models.VariableDefinition) string {
	if v := strings.TrimSpace(values[name]); v != "" {
		return v
	}
	def, hasDef := defs[name]
	if hasDef && def.Kind == models.VariableKindAutoFill && def.Source != "" {
		if v := fact(facts, def.Source); v != "" {
			return v
		}
	}
	if src, ok := aliases[strings.ToLower(name)]; ok {
		if v := fact(facts, src); v != "" {
			return v
		}
	}
	if hasDef {
		return def.Default
	}
	return ""
}

func fact(f models.ProductFacts, src models.FactSource) string {
	switch src {
	case models.FactTitle:
		return f.Title
	case models.FactCategory:
		return f.Category
	case models.FactExternalID:
		return f.ExternalID
	default:
		return ""
	}
}

// WithInstructions appends per-call custom instructions to a rendered prompt.
func WithInstructions(base, custom string) string {
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return base
	}
	base = strings.TrimRight(base, " \n")
	if base == "" {
		return custom
	}
	return base + "\n\n" + custom
}

// Placeholders returns the distinct placeholder names in tmpl, in order of
// first appearance.
func Placeholders(tmpl string) []string {
	seen := make(map[string]bool)
	names := []string{}
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
