package naming

import "strings"

// EntityPrefix is the entity-id namespace the poll adapter writes under.
const EntityPrefix = "media_player"

// Slug converts a device name into a lowercase, underscore-delimited slug
// suitable for entity ids. Runs of non-alphanumeric characters collapse to
// a single underscore; leading/trailing underscores are dropped.
func Slug(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}

// EntityID builds the per-device entity id for a slug.
func EntityID(slug string) string {
	return EntityPrefix + "." + slug
}

// SlugFromEntityID extracts the slug segment from an entity id. Returns
// ("", false) for ids outside the media_player namespace.
func SlugFromEntityID(entityID string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(entityID), EntityPrefix+".")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// FuzzyMatch reports whether a slug plausibly refers to a device name.
// Both sides are slug-normalized and matched as substrings in either
// direction, which covers truncated names and names that later grew a
// location prefix.
func FuzzyMatch(slug, name string) bool {
	a := Slug(slug)
	b := Slug(name)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
