package service

import (
	"strings"
)

// Slug derives the normalized display value used as the natural dedup key:
// trimmed, lowercased, whitespace runs collapsed to a single underscore.
func Slug(displayName string) string {
	fields := strings.Fields(strings.ToLower(displayName))
	return strings.Join(fields, "_")
}
