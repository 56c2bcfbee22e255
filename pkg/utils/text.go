// Package utils provides shared helpers for text, numbers and logging.
package utils

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateRunes returns the first n characters of s without a marker.
// If n is 0 or negative, returns s unchanged.
func TruncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
