// Package sanitize normalizes untrusted text before it is persisted.
// This is part of the platform layer and contains no business logic.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

var entityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", `"`,
	"&#39;", "'",
)

// StripHTML removes markup from a string. Uploaded spreadsheets occasionally
// carry markup in name columns, pasted straight from dealer websites; the
// second strip pass catches tags hidden behind entity encoding.
func StripHTML(s string) string {
	result := tagPattern.ReplaceAllString(s, "")
	result = entityReplacer.Replace(result)
	result = tagPattern.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text prepares a user-provided value for storage: markup stripped and
// whitespace runs collapsed to single spaces.
func Text(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(StripHTML(s), " "))
}
