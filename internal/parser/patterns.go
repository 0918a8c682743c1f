package parser

import "regexp"

// RedactedMarker replaces every secret matched by the redaction rules.
const RedactedMarker = "[REDACTED]"

// Rule is one ordered text rewrite. Rules are applied in slice order; each
// replaces every non-overlapping match of Pattern with Replacement.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

var (
	// ansiRules strip terminal control sequences. OSC runs first so its
	// payload is removed together with the introducer.
	ansiRules []Rule

	// redactionRules hide credentials in commands and output.
	redactionRules []Rule

	// failureMarkers are matched case-insensitively by GuessExitStatus.
	failureMarkers = []string{"error", "traceback", "exception", "not found", "failed"}
)

func init() {
	ansiRules = []Rule{
		{Name: "osc", Pattern: regexp.MustCompile(`(?s)\x1b\].*?(?:\x07|\x1b\\)`)},
		{Name: "csi", Pattern: regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)},
		{Name: "two-byte", Pattern: regexp.MustCompile(`\x1b[@-Z\x5c-\x5f]`)},
	}

	redactionRules = []Rule{
		{
			Name:        "password",
			Pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*\S+`),
			Replacement: RedactedMarker,
		},
		{
			Name:        "api-key",
			Pattern:     regexp.MustCompile(`(?i)(api_key|apikey|api-key)\s*[=:]\s*\S+`),
			Replacement: RedactedMarker,
		},
		{
			Name:        "secret",
			Pattern:     regexp.MustCompile(`(?i)(secret|token)\s*[=:]\s*\S+`),
			Replacement: RedactedMarker,
		},
		{
			Name:        "bearer",
			Pattern:     regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
			Replacement: RedactedMarker,
		},
		{
			Name:        "opaque",
			Pattern:     regexp.MustCompile(`[A-Za-z0-9]{32,}`),
			Replacement: RedactedMarker,
		},
	}
}

func applyRules(rules []Rule, s string) string {
	for _, rule := range rules {
		s = rule.Pattern.ReplaceAllLiteralString(s, rule.Replacement)
	}
	return s
}
