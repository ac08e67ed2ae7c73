package util

import "strings"

// CountWords returns the number of whitespace-separated tokens in s.
// Every word-count consumer (chunk sizing, usage metering, chunk previews)
// must go through this function so the numbers agree across the system.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// Words returns the whitespace-separated tokens of s.
func Words(s string) []string {
	return strings.Fields(s)
}
