// Package prompt assembles a backend prompt from artifact texts.
//
// Parts are concatenated exactly as given. No separators or headers are
// inserted, so the declared order is the only thing telling the model which
// text is specification, example or instruction.
package prompt

import "strings"

// Assemble concatenates parts in order.
func Assemble(parts ...string) string {
	var sb strings.Builder
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	sb.Grow(n)
	for _, p := range parts {
		sb.WriteString(p)
	}
	return sb.String()
}

// Choose returns whenPresent if probe contains marker (case-sensitive),
// otherwise otherwise.
func Choose(probe, marker, whenPresent, otherwise string) string {
	if Contains(probe, marker) {
		return whenPresent
	}
	return otherwise
}

// Contains is the content probe used by Choose. An empty marker never matches.
func Contains(probe, marker string) bool {
	return marker != "" && strings.Contains(probe, marker)
}
