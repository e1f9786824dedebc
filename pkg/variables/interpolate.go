// Package variables resolves {{name}} references against session variables and the bound customer and chat records.
package variables

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Resolver looks up the value of a single identifier.
type Resolver interface {
	Resolve(name string) (string, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (string, bool)

func (f ResolverFunc) Resolve(name string) (string, bool) { return f(name) }

// Interpolate replaces every {{identifier}} in text, left to right, in a
// single pass. Substituted values are never scanned again. Unresolved
// identifiers become the empty string.
func Interpolate(text string, resolver Resolver) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		match := tokenPattern.FindStringSubmatch(token)
		if len(match) < 2 {
			return ""
		}

		value, ok := resolver.Resolve(match[1])
		if !ok {
			return ""
		}

		return value
	})
}

// References lists the identifiers referenced by text, in order of appearance.
func References(text string) []string {
	matches := tokenPattern.FindAllStringSubmatch(text, -1)
	names := make([]string, 0, len(matches))

	for _, m := range matches {
		names = append(names, m[1])
	}

	return names
}
