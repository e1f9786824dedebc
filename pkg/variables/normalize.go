package variables

import (
	"strings"
	"unicode"

	"github.com/dukex/chatflow/pkg/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName turns an authored variable name into its canonical form:
// lower case, diacritics stripped, runs of other characters collapsed to a
// single underscore, no leading or trailing underscore.
func NormalizeName(name string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	stripped, _, err := transform.String(stripper, name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder

	underscore := false

	for _, r := range strings.ToLower(stripped) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			underscore = false

			continue
		}

		if !underscore {
			b.WriteByte('_')

			underscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}

// DedupeNames normalizes every name and clears the later of any two
// variables that end up with the same name. Cleared variables are kept so the
// author can rename them.
func DedupeNames(vars []models.Variable) []models.Variable {
	seen := make(map[string]bool, len(vars))
	out := make([]models.Variable, len(vars))

	for i, v := range vars {
		v.Name = NormalizeName(v.Name)

		if v.Name != "" && seen[v.Name] {
			v.Name = ""
		}

		if v.Name != "" {
			seen[v.Name] = true
		}

		out[i] = v
	}

	return out
}
