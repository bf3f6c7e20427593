// Package language cleans the language tags that arrive on document
// payloads.
package language

import "strings"

// NormalizeCode reduces a BCP 47 style tag ("en_US", " KO-kr ") to its
// lowercase primary subtag. Tags with non-letter subtags yield "".
func NormalizeCode(raw string) string {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return ""
	}
	for _, field := range fields {
		if !lettersOnly(field) {
			return ""
		}
	}

	primary := fields[0]
	if len(primary) < 2 || len(primary) > 3 {
		return ""
	}
	return primary
}

// Resolve returns the first candidate that normalizes to a usable code.
func Resolve(candidates ...string) string {
	for _, candidate := range candidates {
		if code := NormalizeCode(candidate); code != "" {
			return code
		}
	}
	return ""
}

func lettersOnly(value string) bool {
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
