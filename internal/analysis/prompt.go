package analysis

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

// analysisPrompt asks for a rigidly sectioned response so the parser can
// slice it without a JSON round-trip, which small models get wrong often.
func analysisPrompt(rec *classify.ErrorRecord) string {
	var b strings.Builder
	b.WriteString("You are a senior engineer diagnosing a production error for a small e-commerce business.\n\n")
	fmt.Fprintf(&b, "Error type: %s\nSeverity: %s\nService: %s\nMessage: %s\n",
		rec.Type, rec.Severity, rec.Context.Service, rec.Message)
	if rec.StackTrace != "" {
		fmt.Fprintf(&b, "Stack trace: %s\n", rec.StackTrace)
	}
	fmt.Fprintf(&b, "Raw log line: %s\n\n", rec.RawLine)
	b.WriteString(`Respond using exactly these section headers:
ROOT CAUSE:
IMPACT:
URGENCY:
FIX RECOMMENDATION:
PREVENTION:
RELATED FILES:
CONFIDENCE:

RELATED FILES is a dash list of probable file paths. CONFIDENCE is a single number between 0 and 1.`)
	return b.String()
}

func fixPrompt(a *Analysis) string {
	var b strings.Builder
	b.WriteString("You are a senior engineer writing a minimal, safe fix for a diagnosed production error.\n\n")
	fmt.Fprintf(&b, "Error type: %s\nMessage: %s\nRoot cause: %s\nRecommendation: %s\n\n",
		a.Error.Type, a.Error.Message, a.RootCause, a.FixRecommendation)
	b.WriteString(`Respond using exactly these section headers:
DESCRIPTION:
FILES:
CHANGES:
TESTS:
RISK:
CONFIDENCE:

FILES is a dash list of "path: reason". CHANGES contains one or more blocks of the form:
FILE: <path>
<new file content or patch>
END FILE
TESTS is a dash list of test case descriptions. RISK is one of low, medium, high. CONFIDENCE is a single number between 0 and 1.`)
	return b.String()
}
