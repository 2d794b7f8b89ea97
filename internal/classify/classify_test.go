package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClassifier() *Classifier {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return New(Config{Environment: "test", Version: "1.2.3"}, WithClock(func() time.Time { return fixed }))
}

func TestClassifyBlankLines(t *testing.T) {
	c := testClassifier()

	for _, line := range []string{"", "   ", "\t", "\n", "  \t  "} {
		assert.Nil(t, c.Classify(line, "/var/log/app.log"), "line %q should produce no record", line)
	}
}

func TestClassifyNoMatch(t *testing.T) {
	c := testClassifier()

	assert.Nil(t, c.Classify("order 42 completed successfully", "/var/log/app.log"))
	assert.Nil(t, c.Classify("GET /menu 200 12ms", "/var/log/app.log"))
}

func TestClassifyPaymentPatternBeatsKeywordFallback(t *testing.T) {
	c := testClassifier()

	rec := c.Classify("Payment processing failed: card declined", "backend/logs/app.log")
	require.NotNil(t, rec)

	// The payment grammar must win before the generic keyword scan runs.
	assert.Equal(t, TypePayment, rec.Type)
	assert.NotEqual(t, "keyword_match", rec.Pattern)

	// No critical/fatal/error/exception/warning keyword on the line, so the
	// severity table falls through to its default.
	assert.Equal(t, SeverityMedium, rec.Severity)
}

func TestClassifyKeywordFallback(t *testing.T) {
	c := testClassifier()

	rec := c.Classify("upstream request denied for tenant 9", "/var/log/other.log")
	require.NotNil(t, rec)
	assert.Equal(t, "keyword_match", rec.Pattern)

	// Keyword hits carry no structural evidence of a subsystem, so the
	// record stays general even though "request" smells like api.
	assert.Equal(t, TypeGeneral, rec.Type)
}

func TestClassifyKeywordFallbackNeverAutoFixable(t *testing.T) {
	c := testClassifier()

	for _, line := range []string{
		"upstream request denied for tenant 9",
		"operation failed after 3 retries",
		"write timeout on replica",
	} {
		rec := c.Classify(line, "/var/log/other.log")
		require.NotNil(t, rec, "line %q", line)
		assert.Equal(t, TypeGeneral, rec.Type, "line %q", line)
	}
}

func TestClassifyJavaException(t *testing.T) {
	c := testClassifier()

	rec := c.Classify(`Exception in thread "main" java.lang.NullPointerException: boom`, "backend/logs/app.log")
	require.NotNil(t, rec)
	assert.Equal(t, SourceJava, rec.SourceKind)
	assert.Equal(t, SeverityHigh, rec.Severity) // "exception"
	assert.Contains(t, rec.Message, "NullPointerException")
}

func TestClassifyStackFrameCarriesTrace(t *testing.T) {
	c := testClassifier()

	rec := c.Classify("    at com.shop.PaymentService.charge(PaymentService.java:88)", "backend/logs/app.log")
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.StackTrace)
}

func TestDetermineSeverityPrecedence(t *testing.T) {
	tests := []struct {
		line string
		want Severity
	}{
		{"CRITICAL: disk full", SeverityCritical},
		{"fatal error in worker", SeverityCritical}, // critical/fatal wins over error
		{"Fatal exception while warning", SeverityCritical},
		{"error: connection reset", SeverityHigh},
		{"Unhandled exception", SeverityHigh},
		{"warning: slow query", SeverityMedium},
		{"WARN retrying", SeverityMedium},
		{"info: started", SeverityLow},
		{"debug: cache hit", SeverityLow},
		{"something odd happened", SeverityMedium},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetermineSeverity(tt.line), "line %q", tt.line)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		line string
		want ErrorType
	}{
		{"stripe webhook rejected", TypePayment},
		{"sql syntax error near SELECT", TypeDatabase},
		{"http 502 from upstream", TypeAPI},
		{"authorization header missing", TypeSecurity},
		{"memory limit exceeded", TypePerformance},
		{"panic: index out of range", TypeRuntime},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.line), "line %q", tt.line)
	}
}

func TestDetectSourceKind(t *testing.T) {
	assert.Equal(t, SourceJava, DetectSourceKind("backend/logs/app.log"))
	assert.Equal(t, SourceNode, DetectSourceKind("frontend/.next/server.log"))
	assert.Equal(t, SourceHTTP, DetectSourceKind("/var/log/nginx/error.log"))
	assert.Equal(t, SourceGeneral, DetectSourceKind("/var/log/syslog"))
}

func TestContextExtraction(t *testing.T) {
	c := testClassifier()

	rec := c.Classify("error: charge failed userId: abc-123 requestId: req_9", "backend/logs/app.log")
	require.NotNil(t, rec)
	assert.Equal(t, "abc-123", rec.Context.UserID)
	assert.Equal(t, "req_9", rec.Context.RequestID)
	assert.Equal(t, "backend", rec.Context.Service)
	assert.Equal(t, "test", rec.Context.Environment)
	assert.False(t, rec.Context.DetectedAt.IsZero())
}

func TestPriority(t *testing.T) {
	tests := []struct {
		sev  Severity
		typ  ErrorType
		want int
	}{
		{SeverityCritical, TypeRuntime, 1},
		{SeverityCritical, TypePayment, 1}, // floor at 1
		{SeverityHigh, TypeRuntime, 2},
		{SeverityHigh, TypePayment, 1},
		{SeverityMedium, TypeDatabase, 2},
		{SeverityMedium, TypeAPI, 3},
		{SeverityLow, TypeRuntime, 4},
		{SeverityLow, TypePayment, 3},
	}
	for _, tt := range tests {
		r := &ErrorRecord{Severity: tt.sev, Type: tt.typ}
		assert.Equal(t, tt.want, r.Priority(), "%s/%s", tt.sev, tt.typ)
	}
}

func TestRecordIDsUnique(t *testing.T) {
	c := testClassifier()

	a := c.Classify("error one", "/var/log/a.log")
	b := c.Classify("error two", "/var/log/a.log")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, a.ID, b.ID)
}
