// Package handle normalizes user input into name handles.
package handle

import "strings"

// MinLength is the shortest handle worth a registry lookup.
const MinLength = 3

// Sanitize lowercases s and drops every rune outside [a-z0-9].
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Qualify returns handle@domain. An already qualified name is returned as is.
func Qualify(h, domain string) string {
	suffix := "@" + domain
	if strings.HasSuffix(h, suffix) {
		return h
	}
	return h + suffix
}

// Valid reports whether h is already sanitized and long enough to look up.
func Valid(h string) bool {
	return len(h) >= MinLength && Sanitize(h) == h
}
