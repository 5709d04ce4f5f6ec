// Package util provides small shared helpers that do not belong to a
// domain-specific package.
package util

import "strings"

// SafeTruncate truncates a string to maxLen characters without panicking.
// Used when logging credential prefixes, where only the first few characters
// may appear in output.
//
// A negative maxLen is treated as 0 and returns an empty string.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeRedirectURI normalizes a redirect URI for comparison by removing
// trailing slashes. Registered URIs and request URIs that differ only by a
// trailing slash are considered equivalent.
func NormalizeRedirectURI(uri string) string {
	return strings.TrimRight(uri, "/")
}
