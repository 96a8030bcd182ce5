package bantemplate

import (
	"strings"
)

const (
	tokenOpen  = "{{"
	tokenClose = "}}"
)

// Spacer is a named placeholder that can appear in a template reason as {{Name}}.
// Placeholder is the text used when no value is supplied for it.
type Spacer struct {
	Name        string `json:"name" yaml:"name"`
	Placeholder string `json:"placeholder" yaml:"placeholder"`
}

// Token returns the literal token that references the spacer called name.
func Token(name string) string {
	return tokenOpen + name + tokenClose
}

// ReplaceSpacers substitutes every {{name}} token of a declared spacer in reason.
//
// A spacer whose name is a key of values is replaced with that value verbatim, even when
// it is empty; otherwise its Placeholder is used. Tokens that match no declared spacer
// are left untouched. Substituted text is never rescanned.
func ReplaceSpacers(reason string, spacers []Spacer, values map[string]string) string {
	if len(spacers) == 0 {
		return reason
	}

	oldnew := make([]string, 0, len(spacers)*2)
	for _, spacer := range spacers {
		value, ok := values[spacer.Name]
		if !ok {
			value = spacer.Placeholder
		}
		oldnew = append(oldnew, Token(spacer.Name), value)
	}

	return strings.NewReplacer(oldnew...).Replace(reason)
}

// ReferencedSpacers returns the names of all {{...}} tokens in reason, in order of first
// appearance and without duplicates. Empty names and names spanning a line break are
// skipped.
func ReferencedSpacers(reason string) []string {
	var names []string
	seen := make(map[string]struct{})

	rest := reason
	for {
		start := strings.Index(rest, tokenOpen)
		if start < 0 {
			return names
		}
		rest = rest[start+len(tokenOpen):]

		end := strings.Index(rest, tokenClose)
		if end < 0 {
			return names
		}

		name := rest[:end]
		// "{{{x}}}" references x, the same way the literal match in ReplaceSpacers sees it.
		name = strings.TrimLeft(name, "{")
		if name != "" && !strings.ContainsAny(name, "\r\n") {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
		rest = rest[end+len(tokenClose):]
	}
}

// CompactValues returns a copy of values without blank entries, so that spacers left
// empty in a form fall back to their placeholders.
func CompactValues(values map[string]string) map[string]string {
	compact := make(map[string]string, len(values))
	for name, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		compact[name] = value
	}
	return compact
}
