// Package utils provides shared utilities for text, math, and logging.
package utils

// TruncationMarker is appended to text cut by Truncate.
const TruncationMarker = "..."

// Truncate returns s cut to at most maxLen characters (runes), with
// TruncationMarker appended if anything was removed. If maxLen is 0 or
// negative, s is returned unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}
