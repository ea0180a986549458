package store

import "strings"

var slugStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "with": true, "by": true,
	"and": true, "or": true,
}

const (
	slugMaxWords = 8
	slugMaxLen   = 40
)

// Slugify derives a human-readable index label from the description. Slugs
// are labels only; identity always goes through the cache key hash.
func Slugify(description string) string {
	words := strings.Fields(strings.ToLower(description))
	parts := make([]string, 0, slugMaxWords)
	for _, w := range words {
		if slugStopWords[w] {
			continue
		}
		var b strings.Builder
		for _, r := range w {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			} else {
				b.WriteByte('_')
			}
		}
		cleaned := strings.Trim(b.String(), "_")
		if cleaned != "" {
			parts = append(parts, cleaned)
		}
		if len(parts) == slugMaxWords {
			break
		}
	}
	slug := strings.Join(parts, "_")
	for strings.Contains(slug, "__") {
		slug = strings.ReplaceAll(slug, "__", "_")
	}
	if len(slug) > slugMaxLen {
		slug = slug[:slugMaxLen]
	}
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return "widget"
	}
	return slug
}
