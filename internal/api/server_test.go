package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/errwatchd/internal/analysis"
	"github.com/fyrsmithlabs/errwatchd/internal/classify"
	"github.com/fyrsmithlabs/errwatchd/internal/errstore"
	"github.com/fyrsmithlabs/errwatchd/internal/orchestrator"
)

type stubMetrics struct{}

func (stubMetrics) Snapshot() orchestrator.Snapshot {
	return orchestrator.Snapshot{ErrorsDetected: 3, QueueSize: 1, AutoFixEnabled: true}
}

type stubAnalyzer struct {
	err error
}

func (s *stubAnalyzer) Analyze(_ context.Context, rec *classify.ErrorRecord) (*analysis.Analysis, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &analysis.Analysis{ID: "analysis_1", Error: rec, RootCause: "stub cause", Confidence: 0.8}, nil
}

type stubFixer struct {
	err error
}

func (s *stubFixer) GenerateFix(context.Context, *analysis.Analysis) (*analysis.Fix, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &analysis.Fix{ID: "fix_1", Description: "stub fix", RiskLevel: analysis.RiskLow}, nil
}

func storedRecord() *classify.ErrorRecord {
	return &classify.ErrorRecord{
		ID:       "error_abc",
		RawLine:  "Error: boom",
		Type:     classify.TypeRuntime,
		Severity: classify.SeverityHigh,
		Message:  "boom",
	}
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Store == nil {
		deps.Store = errstore.New(10)
	}
	if deps.Metrics == nil {
		deps.Metrics = stubMetrics{}
	}
	s, err := NewServer(Config{Host: "localhost", Port: 0}, deps, zap.NewNop())
	require.NoError(t, err)
	return s
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Config{}, Deps{}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewServer(Config{}, Deps{Store: errstore.New(1), Metrics: stubMetrics{}}, nil)
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, Deps{})
	rec := doRequest(s, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Deps{})
	rec := doRequest(s, http.MethodGet, "/api/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	var snap orchestrator.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(3), snap.ErrorsDetected)
	assert.True(t, snap.AutoFixEnabled)
}

func TestPrometheusEndpoint(t *testing.T) {
	s := newTestServer(t, Deps{})
	rec := doRequest(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecentErrors(t *testing.T) {
	store := errstore.New(10)
	store.Add(storedRecord())
	s := newTestServer(t, Deps{Store: store})

	rec := doRequest(s, http.MethodGet, "/api/errors/recent?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Errors []*classify.ErrorRecord `json:"errors"`
		Total  int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "error_abc", body.Errors[0].ID)

	bad := doRequest(s, http.MethodGet, "/api/errors/recent?limit=zero")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestGetErrorNotFound(t *testing.T) {
	s := newTestServer(t, Deps{})
	rec := doRequest(s, http.MethodGet, "/api/errors/missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Error not found"}`, rec.Body.String())
}

func TestAnalyzeEndpoint(t *testing.T) {
	store := errstore.New(10)
	store.Add(storedRecord())
	s := newTestServer(t, Deps{Store: store, Analyzer: &stubAnalyzer{}})

	rec := doRequest(s, http.MethodPost, "/api/errors/error_abc/analyze")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stub cause")
}

func TestAnalyzeEndpointFailure(t *testing.T) {
	store := errstore.New(10)
	store.Add(storedRecord())
	s := newTestServer(t, Deps{Store: store, Analyzer: &stubAnalyzer{err: errors.New("model down")}})

	rec := doRequest(s, http.MethodPost, "/api/errors/error_abc/analyze")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"model down"}`, rec.Body.String())
}

func TestAnalyzeUnconfigured(t *testing.T) {
	store := errstore.New(10)
	store.Add(storedRecord())
	s := newTestServer(t, Deps{Store: store})

	rec := doRequest(s, http.MethodPost, "/api/errors/error_abc/analyze")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFixEndpoint(t *testing.T) {
	store := errstore.New(10)
	store.Add(storedRecord())
	s := newTestServer(t, Deps{Store: store, Analyzer: &stubAnalyzer{}, FixGenerator: &stubFixer{}})

	rec := doRequest(s, http.MethodPost, "/api/errors/error_abc/fix")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Analysis *analysis.Analysis `json:"analysis"`
		Fix      *analysis.Fix      `json:"fix"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "fix_1", body.Fix.ID)
	assert.Equal(t, "analysis_1", body.Analysis.ID)
}

func TestWebsocketReplayThenLive(t *testing.T) {
	store := errstore.New(10)
	store.Add(storedRecord())
	s := newTestServer(t, Deps{Store: store})

	srv := httptest.NewServer(s.echo)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { s.hub.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	readMsg := func() wsMessage {
		var msg wsMessage
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, "metrics", readMsg().Type)
	assert.Equal(t, "recent_errors", readMsg().Type)

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)
	s.hub.BroadcastError(storedRecord())
	assert.Equal(t, "error_detected", readMsg().Type)
}
