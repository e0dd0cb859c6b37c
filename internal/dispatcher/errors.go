package dispatcher

import "strings"

// Stable error-summary markers, per spec.md §4.7 "Error classification".
const (
	MarkerContextWindowExceeded = "CONTEXT_WINDOW_EXCEEDED:"
	MarkerOutputLimitReached    = "OUTPUT_LIMIT_REACHED:"
)

var contextWindowPatterns = []string{
	"context_length_exceeded", "too many tokens", "prompt too long", "context window",
}

var outputLimitPatterns = []string{
	"max_tokens", "could not finish the message", "completion length",
}

// classifyError maps a raw provider error message to the stable summary
// the executor relies on to decide retry-budget adjustments.
func classifyError(msg string) string {
	lower := strings.ToLower(msg)
	for _, p := range contextWindowPatterns {
		if strings.Contains(lower, p) {
			return MarkerContextWindowExceeded + " " + msg
		}
	}
	for _, p := range outputLimitPatterns {
		if strings.Contains(lower, p) {
			return MarkerOutputLimitReached + " " + msg
		}
	}
	return msg
}
