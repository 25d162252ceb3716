package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lowercases, strips diacritics, and collapses whitespace, so "Hace 3 días"
// and "hace 3 dias" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// removeWords drops whole-word occurrences of the given tokens.
func removeWords(s string, words map[string]struct{}) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, drop := words[f]; drop {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
