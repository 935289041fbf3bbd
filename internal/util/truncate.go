package util

import "fmt"

// DefaultLogMaxLen caps response bodies copied into log fields.
const DefaultLogMaxLen = 512

// TruncateLog shortens s to maxLen bytes and notes the original size.
func TruncateLog(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is TruncateLog with DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}
