package normalize

import (
	"regexp"
	"strings"
)

var (
	// invalidFieldChars matches anything that may not appear in a field name.
	invalidFieldChars = regexp.MustCompile(`[^a-z0-9_]`)

	// repeatedUnderscores matches runs of two or more underscores.
	repeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// Sanitize converts an arbitrary key into a safe field name:
//
//  1. lower-case the whole name
//  2. replace every character outside [a-z0-9_] with '_'
//  3. collapse runs of '_' into one
//  4. strip leading and trailing '_'
//
// Sanitize is total and idempotent. A name made only of invalid characters
// sanitizes to the empty string.
func Sanitize(raw string) string {
	s := strings.ToLower(raw)
	s = invalidFieldChars.ReplaceAllLiteralString(s, "_")
	s = repeatedUnderscores.ReplaceAllLiteralString(s, "_")
	return strings.Trim(s, "_")
}

// join appends a sanitized key to a prefix with '_'. Empty parts are
// skipped so that the result is itself a sanitized name.
func join(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "_" + key
	}
}
