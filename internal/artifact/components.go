package artifact

import (
	"regexp"
	"strings"
	"unicode"
)

// Named exports are how generated modules expose reusable sub-components
// (sliders, legends, tooltips). The default export is the module entry point
// and is not a component.
var (
	reNamedExport   = regexp.MustCompile(`(?m)^\s*export\s+(?:function|const|class|let|var)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	reDefaultExport = regexp.MustCompile(`(?m)^\s*export\s+default\b`)
	reExportList    = regexp.MustCompile(`(?m)^\s*export\s*\{([^}]*)\}`)
)

// ExtractComponents scans module code for publicly exported, capitalized
// symbols, in order of appearance and without duplicates.
func ExtractComponents(code string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		r := []rune(name)[0]
		if !unicode.IsUpper(r) {
			return
		}
		// Underscored names cannot round-trip through the snake_case alias.
		if strings.ContainsRune(name, '_') {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, m := range reNamedExport.FindAllStringSubmatch(code, -1) {
		add(m[1])
	}
	for _, m := range reExportList.FindAllStringSubmatch(code, -1) {
		for _, part := range strings.Split(m[1], ",") {
			// "Name as Alias" exports under the alias
			if i := strings.Index(part, " as "); i >= 0 {
				part = part[i+4:]
			}
			add(part)
		}
	}
	return out
}

// HasDefaultExport reports whether code declares a default entry point.
func HasDefaultExport(code string) bool {
	return reDefaultExport.MatchString(code)
}

// ComponentAlias translates a stored PascalCase component name into the
// snake_case alias callers use. Total and bijective with ParseComponentAlias:
// every stored name maps to exactly one alias and back.
func ComponentAlias(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseComponentAlias translates a snake_case or kebab-case alias back to the
// stored PascalCase name.
func ParseComponentAlias(alias string) string {
	alias = strings.ReplaceAll(alias, "-", "_")
	parts := strings.Split(alias, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		r := []rune(p)
		b.WriteRune(unicode.ToUpper(r[0]))
		b.WriteString(string(r[1:]))
	}
	return b.String()
}
