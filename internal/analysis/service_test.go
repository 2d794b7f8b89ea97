package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

// fakeModel returns a canned response or error and counts calls.
type fakeModel struct {
	response string
	err      error
	calls    int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

const goodAnalysisResponse = `ROOT CAUSE:
The payment gateway connection pool is exhausted under load.
IMPACT:
Checkout fails for roughly 5% of customers.
URGENCY:
high
FIX RECOMMENDATION:
Raise the pool size and add a retry with backoff.
PREVENTION:
Alert on pool saturation.
RELATED FILES:
- backend/src/payment/gateway.js
- backend/src/payment/pool.js
CONFIDENCE: 0.85
`

func paymentRecord() *classify.ErrorRecord {
	return &classify.ErrorRecord{
		ID:       "error_1",
		RawLine:  "Payment processing failed: card declined",
		Type:     classify.TypePayment,
		Severity: classify.SeverityHigh,
		Message:  "Payment processing failed: card declined",
		Context:  classify.Context{Service: "backend"},
	}
}

func newService(t *testing.T, primary, secondary llms.Model) *Service {
	t.Helper()
	s, err := New(Config{}, zap.NewNop(),
		WithModels(primary, secondary),
		WithClock(func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	return s
}

func TestAnalyzeParsesSections(t *testing.T) {
	s := newService(t, &fakeModel{response: goodAnalysisResponse}, nil)

	a, err := s.Analyze(context.Background(), paymentRecord())
	require.NoError(t, err)

	assert.Contains(t, a.RootCause, "connection pool is exhausted")
	assert.Contains(t, a.Impact, "5% of customers")
	assert.Equal(t, "high", a.Urgency)
	assert.Equal(t, []string{"backend/src/payment/gateway.js", "backend/src/payment/pool.js"}, a.RelatedFiles)
	assert.Equal(t, 0.85, a.Confidence)
	assert.Equal(t, "primary", a.Provider)
	assert.NotEmpty(t, a.ID)
}

func TestAnalyzeSynthesizesTwoModels(t *testing.T) {
	secondaryResponse := `ROOT CAUSE:
Connection pool exhausted on the payment gateway.
CONFIDENCE: 0.75
`
	primary := &fakeModel{response: goodAnalysisResponse}
	secondary := &fakeModel{response: secondaryResponse}
	s := newService(t, primary, secondary)

	a, err := s.Analyze(context.Background(), paymentRecord())
	require.NoError(t, err)

	assert.Equal(t, "primary+secondary", a.Provider)
	// Averaged (0.80) plus the agreement boost.
	assert.InDelta(t, 0.9, a.Confidence, 1e-9)
	assert.Equal(t, 1, secondary.calls)
}

func TestAnalyzeFallsBackToSecondary(t *testing.T) {
	primary := &fakeModel{err: errors.New("rate limited")}
	secondary := &fakeModel{response: goodAnalysisResponse}
	s := newService(t, primary, secondary)

	a, err := s.Analyze(context.Background(), paymentRecord())
	require.NoError(t, err)
	assert.Equal(t, "secondary", a.Provider)
}

func TestAnalyzeDeterministicFallback(t *testing.T) {
	s := newService(t, &fakeModel{err: errors.New("down")}, &fakeModel{err: errors.New("also down")})

	a, err := s.Analyze(context.Background(), paymentRecord())
	require.NoError(t, err)

	assert.Equal(t, "fallback", a.Provider)
	assert.Equal(t, fallbackConfidence, a.Confidence)
	assert.Contains(t, a.RootCause, "manual assessment")
	assert.Equal(t, "high", a.Urgency)
}

func TestAnalyzeNoModelsConfigured(t *testing.T) {
	s := newService(t, nil, nil)
	a, err := s.Analyze(context.Background(), paymentRecord())
	require.NoError(t, err)
	assert.Equal(t, "fallback", a.Provider)
}

func TestAnalyzeCachesByTypeAndMessage(t *testing.T) {
	primary := &fakeModel{response: goodAnalysisResponse}
	s := newService(t, primary, nil)

	rec := paymentRecord()
	first, err := s.Analyze(context.Background(), rec)
	require.NoError(t, err)
	second, err := s.Analyze(context.Background(), paymentRecord())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, primary.calls)

	s.ClearCache()
	_, err = s.Analyze(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls)
}

const goodFixResponse = `DESCRIPTION:
Raise the payment pool size and retry transient declines once.
FILES:
- backend/src/payment/pool.js: bump max connections
CHANGES:
FILE: backend/src/payment/pool.js
const POOL_SIZE = 20;
END FILE
TESTS:
- pool grows to 20 under load
- declined card retried once
RISK: low
CONFIDENCE: 0.9
`

func TestGenerateFixParsesResponse(t *testing.T) {
	s := newService(t, &fakeModel{response: goodFixResponse}, nil)

	a := &Analysis{ID: "analysis_1", Error: paymentRecord(), RootCause: "pool exhausted"}
	fix, err := s.GenerateFix(context.Background(), a)
	require.NoError(t, err)

	assert.Contains(t, fix.Description, "Raise the payment pool size")
	require.Len(t, fix.FilesToModify, 1)
	assert.Equal(t, "backend/src/payment/pool.js", fix.FilesToModify[0].Path)
	require.Len(t, fix.CodeChanges, 1)
	assert.Equal(t, "const POOL_SIZE = 20;", fix.CodeChanges[0].Content)
	assert.Equal(t, []string{"pool grows to 20 under load", "declined card retried once"}, fix.TestCases)
	assert.Equal(t, RiskLow, fix.RiskLevel)
	assert.Equal(t, 0.9, fix.Confidence)
}

func TestGenerateFixFallback(t *testing.T) {
	s := newService(t, &fakeModel{err: errors.New("down")}, nil)

	fix, err := s.GenerateFix(context.Background(), &Analysis{ID: "a", Error: paymentRecord()})
	require.NoError(t, err)

	assert.Equal(t, RiskHigh, fix.RiskLevel)
	assert.Empty(t, fix.CodeChanges)
	assert.Less(t, fix.Confidence, 0.7)
}

func TestPing(t *testing.T) {
	healthy := &fakeModel{response: "pong"}
	assert.NoError(t, newService(t, healthy, nil).Ping(context.Background()))
	assert.Equal(t, 1, healthy.calls)

	dead := &fakeModel{err: errors.New("401 unauthorized")}
	assert.Error(t, newService(t, dead, nil).Ping(context.Background()))

	// No models at all is a health problem even though Analyze would
	// still produce the deterministic fallback.
	assert.Error(t, newService(t, nil, nil).Ping(context.Background()))
}

func TestParseConfidenceVariants(t *testing.T) {
	assert.Equal(t, 0.85, parseConfidence("0.85"))
	assert.Equal(t, 0.85, parseConfidence("85%"))
	assert.Equal(t, 0.85, parseConfidence("85"))
	assert.Equal(t, defaultConfidence, parseConfidence(""))
	assert.Equal(t, defaultConfidence, parseConfidence("very sure"))
	assert.Equal(t, 0.0, parseConfidence("-1"))
}

func TestParseRiskUnknownIsHigh(t *testing.T) {
	assert.Equal(t, RiskHigh, parseRisk("catastrophic"))
	assert.Equal(t, RiskMedium, parseRisk(" Medium "))
}
