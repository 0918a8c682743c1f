package parser

import "strings"

// Redact replaces credentials in text with RedactedMarker. Already redacted
// text passes through unchanged.
func Redact(text string) string {
	return applyRules(redactionRules, text)
}

// GuessExitStatus reports 1 when output mentions a failure and 0 otherwise.
// It looks at text only; a command that prints "error" and succeeds is
// still reported as failed.
func GuessExitStatus(output string) int {
	lower := strings.ToLower(output)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			return 1
		}
	}
	return 0
}
