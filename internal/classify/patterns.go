package classify

import "regexp"

// patternTable maps a source kind to its ordered recognition patterns.
// Order is load-bearing: the first match wins, so specific grammars
// (a payment phrase, a JDBC exception) must sit above generic fallbacks.
var patternTable = map[SourceKind][]*regexp.Regexp{
	SourceJava: {
		regexp.MustCompile(`Exception in thread ".*?" (.*?Exception.*?)$`),
		regexp.MustCompile(`\s+at\s+(.*?)\((.*?):(.*?)\)$`),
		regexp.MustCompile(`Caused by:\s+(.*?Exception.*?)$`),
		regexp.MustCompile(`org\.springframework\.(.*?Exception.*?)$`),
		regexp.MustCompile(`org\.hibernate\.(.*?Exception.*?)$`),
		regexp.MustCompile(`java\.sql\.(.*?Exception.*?)$`),
	},
	SourceNode: {
		regexp.MustCompile(`^(.*?Error.*?):\s+(.*)$`),
		regexp.MustCompile(`^\s+at\s+(.*?)\s+\((.*?):(.*?):(.*?)\)$`),
		regexp.MustCompile(`^\s+at\s+(.*?)\s+(.*?):(.*?):(.*?)$`),
		regexp.MustCompile(`UnhandledPromiseRejectionWarning:\s+(.*?)$`),
		regexp.MustCompile(`TypeError:\s+(.*?)$`),
		regexp.MustCompile(`ReferenceError:\s+(.*?)$`),
	},
	SourceHTTP: {
		regexp.MustCompile(`HTTP\s+(\d+)\s+(.*)$`),
		regexp.MustCompile(`Request\s+failed\s+with\s+status\s+code\s+(\d+)$`),
		regexp.MustCompile(`Connection\s+refused\s+(.*)$`),
		regexp.MustCompile(`Timeout\s+of\s+(\d+)ms\s+exceeded$`),
	},
}

// databasePatterns and paymentPatterns are tried for every source kind,
// ahead of the kind table, so that a payment failure logged by the backend
// classifies as payment rather than as a generic Java line.
var (
	paymentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Payment\s+processing\s+failed`),
		regexp.MustCompile(`UPP\s+API\s+error:\s+(.*?)$`),
		regexp.MustCompile(`Stripe\s+error:\s+(.*?)$`),
		regexp.MustCompile(`Invalid\s+payment\s+method`),
		regexp.MustCompile(`Transaction\s+declined`),
	}

	databasePatterns = []*regexp.Regexp{
		regexp.MustCompile(`Connection\s+to\s+database\s+failed`),
		regexp.MustCompile(`Table\s+'(.*)'\s+doesn't\s+exist`),
		regexp.MustCompile(`Duplicate\s+entry\s+'(.*)'\s+for\s+key`),
		regexp.MustCompile(`Data\s+too\s+long\s+for\s+column`),
		regexp.MustCompile(`Foreign\s+key\s+constraint\s+fails`),
	}
)

var (
	userIDPattern    = regexp.MustCompile(`(?i)userId[:\s]+([a-zA-Z0-9-_]+)`)
	requestIDPattern = regexp.MustCompile(`(?i)requestId[:\s]+([a-zA-Z0-9-_]+)`)
)

// errorKeywords drive the generic fallback when no structured pattern hits.
var errorKeywords = []string{"error", "exception", "failed", "timeout", "refused", "denied"}
