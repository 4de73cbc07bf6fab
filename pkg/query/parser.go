package query

import (
	"strings"
	"unicode"
)

// ParseNamedParameters finds `:name` parameters in SQL text. It returns the
// text with every parameter replaced by `?` and the distinct names in order of
// first appearance. String literals, quoted identifiers and `::` casts are
// left untouched.
func ParseNamedParameters(sql string) (string, []string) {
	var out strings.Builder
	out.Grow(len(sql))
	names := make([]string, 0)
	seen := make(map[string]bool)

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			// copy through the closing quote, doubled quotes are escapes
			out.WriteRune(c)
			for i++; i < len(runes); i++ {
				out.WriteRune(runes[i])
				if runes[i] == c {
					if i+1 < len(runes) && runes[i+1] == c {
						i++
						out.WriteRune(runes[i])
						continue
					}
					break
				}
			}
		case c == ':' && i+1 < len(runes) && runes[i+1] == ':':
			out.WriteString("::")
			i++
		case c == ':' && i+1 < len(runes) && isParamRune(runes[i+1], true):
			j := i + 1
			for j < len(runes) && isParamRune(runes[j], false) {
				j++
			}
			name := string(runes[i+1 : j])
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			out.WriteRune('?')
			i = j - 1
		default:
			out.WriteRune(c)
		}
	}
	return out.String(), names
}

func isParamRune(r rune, first bool) bool {
	if r == '_' || unicode.IsLetter(r) {
		return true
	}
	return !first && unicode.IsDigit(r)
}

// SplitStatements splits a script on `;`, skipping separators inside quotes.
// Blank statements are dropped.
func SplitStatements(script string) []string {
	statements := make([]string, 0)
	var current strings.Builder
	var quote rune

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			statements = append(statements, s)
		}
		current.Reset()
	}

	for _, c := range script {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == ';':
			flush()
			continue
		}
		current.WriteRune(c)
	}
	flush()
	return statements
}
