// Package analysis turns classified error records into structured root-cause
// assessments and proposed fixes using language models.
//
// Two models are consulted when both are configured: the primary produces
// the analysis, the secondary cross-validates it, and agreement raises the
// synthesized confidence. Model failures degrade to a deterministic
// low-confidence fallback rather than an error, so the pipeline always has
// an analysis to act on.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

const (
	modelTimeout = 30 * time.Second

	// fallbackConfidence is deliberately below every auto-fix threshold.
	fallbackConfidence = 0.3

	cacheKeyPrefixLen = 80
)

// Config holds model credentials and names.
type Config struct {
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
}

// Service implements Analyzer and FixGenerator on langchaingo models.
type Service struct {
	primary   llms.Model
	secondary llms.Model
	logger    *zap.Logger
	nowFn     func() time.Time

	mu    sync.Mutex
	cache map[string]*Analysis
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.nowFn = now }
}

// WithModels injects the primary and secondary models directly, bypassing
// API-key construction. Used by tests and custom deployments.
func WithModels(primary, secondary llms.Model) Option {
	return func(s *Service) {
		s.primary = primary
		s.secondary = secondary
	}
}

// New creates a Service. Models are built from whichever API keys are set;
// with no keys at all every analysis is the deterministic fallback.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		logger: logger,
		nowFn:  time.Now,
		cache:  make(map[string]*Analysis),
	}

	if cfg.AnthropicAPIKey != "" {
		model, err := anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.AnthropicModel),
		)
		if err != nil {
			return nil, fmt.Errorf("creating anthropic client: %w", err)
		}
		s.primary = model
	}
	if cfg.OpenAIAPIKey != "" {
		model, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.OpenAIModel),
		)
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		s.secondary = model
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// cacheKey groups repeats of the same failure so a burst of identical lines
// costs one model call. Keyed on type plus a message prefix, not the full
// line, because timestamps and IDs embedded in messages would defeat it.
func cacheKey(rec *classify.ErrorRecord) string {
	msg := rec.Message
	if len(msg) > cacheKeyPrefixLen {
		msg = msg[:cacheKeyPrefixLen]
	}
	return string(rec.Type) + ":" + msg
}

// Analyze produces an Analysis for the record. It never returns a nil
// Analysis with a nil error: model failures produce the fallback.
func (s *Service) Analyze(ctx context.Context, rec *classify.ErrorRecord) (*Analysis, error) {
	if rec == nil {
		return nil, fmt.Errorf("record is required")
	}

	key := cacheKey(rec)
	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		s.logger.Debug("analysis cache hit", zap.String("key", key))
		return cached, nil
	}
	s.mu.Unlock()

	a := s.analyzeUncached(ctx, rec)

	s.mu.Lock()
	s.cache[key] = a
	s.mu.Unlock()
	return a, nil
}

func (s *Service) analyzeUncached(ctx context.Context, rec *classify.ErrorRecord) *Analysis {
	prompt := analysisPrompt(rec)

	primary, primaryErr := s.generate(ctx, s.primary, prompt)
	if primaryErr != nil {
		s.logger.Warn("primary analysis failed", zap.String("error_id", rec.ID), zap.Error(primaryErr))
	}

	var secondary *parsedAnalysis
	if s.secondary != nil {
		sec, err := s.generate(ctx, s.secondary, prompt)
		if err != nil {
			s.logger.Warn("secondary analysis failed", zap.String("error_id", rec.ID), zap.Error(err))
		} else {
			secondary = sec
		}
	}

	switch {
	case primary != nil && secondary != nil:
		return s.synthesize(rec, primary, secondary)
	case primary != nil:
		return s.fromParsed(rec, primary, "primary")
	case secondary != nil:
		return s.fromParsed(rec, secondary, "secondary")
	default:
		return s.fallbackAnalysis(rec)
	}
}

func (s *Service) generate(ctx context.Context, model llms.Model, prompt string) (*parsedAnalysis, error) {
	if model == nil {
		return nil, fmt.Errorf("model not configured")
	}
	cctx, cancel := context.WithTimeout(ctx, modelTimeout)
	defer cancel()

	resp, err := llms.GenerateFromSinglePrompt(cctx, model, prompt, llms.WithTemperature(0.2))
	if err != nil {
		return nil, err
	}
	return parseAnalysisResponse(resp), nil
}

// synthesize merges two model opinions: confidence is averaged and nudged
// up when the root causes agree on substance.
func (s *Service) synthesize(rec *classify.ErrorRecord, primary, secondary *parsedAnalysis) *Analysis {
	a := s.fromParsed(rec, primary, "primary+secondary")
	a.Confidence = (primary.confidence + secondary.confidence) / 2
	if rootCausesAgree(primary.rootCause, secondary.rootCause) {
		a.Confidence += 0.1
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
	return a
}

func (s *Service) fromParsed(rec *classify.ErrorRecord, p *parsedAnalysis, provider string) *Analysis {
	return &Analysis{
		ID:                "analysis_" + uuid.NewString(),
		Error:             rec,
		RootCause:         p.rootCause,
		Impact:            p.impact,
		Urgency:           p.urgency,
		FixRecommendation: p.fixRecommendation,
		Prevention:        p.prevention,
		RelatedFiles:      p.relatedFiles,
		Confidence:        p.confidence,
		Priority:          rec.Priority(),
		Provider:          provider,
		GeneratedAt:       s.nowFn(),
	}
}

// fallbackAnalysis is the deterministic floor when every model fails.
func (s *Service) fallbackAnalysis(rec *classify.ErrorRecord) *Analysis {
	return &Analysis{
		ID:                "analysis_" + uuid.NewString(),
		Error:             rec,
		RootCause:         "Automated analysis unavailable; manual assessment required.",
		Impact:            fmt.Sprintf("Unassessed %s error in %s.", rec.Type, rec.Context.Service),
		Urgency:           urgencyForSeverity(rec.Severity),
		FixRecommendation: "Review the raw log line and recent deployments manually.",
		Prevention:        "",
		Confidence:        fallbackConfidence,
		Priority:          rec.Priority(),
		Provider:          "fallback",
		GeneratedAt:       s.nowFn(),
	}
}

func urgencyForSeverity(sev classify.Severity) string {
	switch sev {
	case classify.SeverityCritical:
		return "immediate"
	case classify.SeverityHigh:
		return "high"
	default:
		return "normal"
	}
}

// GenerateFix proposes a remediation for the analysis. Model failure yields
// a manual-intervention fix whose confidence keeps it below every
// auto-apply gate.
func (s *Service) GenerateFix(ctx context.Context, a *Analysis) (*Fix, error) {
	if a == nil {
		return nil, fmt.Errorf("analysis is required")
	}

	model := s.primary
	if model == nil {
		model = s.secondary
	}

	if model != nil {
		cctx, cancel := context.WithTimeout(ctx, modelTimeout)
		resp, err := llms.GenerateFromSinglePrompt(cctx, model, fixPrompt(a), llms.WithTemperature(0.1))
		cancel()
		if err == nil {
			fix := parseFixResponse(resp)
			fix.ID = "fix_" + uuid.NewString()
			fix.GeneratedAt = s.nowFn()
			return fix, nil
		}
		s.logger.Warn("fix generation failed", zap.String("analysis_id", a.ID), zap.Error(err))
	}

	return &Fix{
		ID:          "fix_" + uuid.NewString(),
		Description: "Manual intervention required; no automated fix generated.",
		RiskLevel:   RiskHigh,
		Confidence:  0.2,
		GeneratedAt: s.nowFn(),
	}, nil
}

// Ping issues a minimal generation against the configured model. The weekly
// health check uses it to detect dead credentials or an unreachable API.
func (s *Service) Ping(ctx context.Context) error {
	model := s.primary
	if model == nil {
		model = s.secondary
	}
	if model == nil {
		return fmt.Errorf("no language models configured")
	}

	cctx, cancel := context.WithTimeout(ctx, modelTimeout)
	defer cancel()
	_, err := llms.GenerateFromSinglePrompt(cctx, model, "ping", llms.WithMaxTokens(1))
	return err
}

// ClearCache empties the analysis cache. Invoked by the daily reset job so
// stale assessments do not outlive a deploy.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Analysis)
}

// rootCausesAgree is a cheap lexical check: at least half the significant
// words of the shorter root cause appear in the longer one.
func rootCausesAgree(a, b string) bool {
	aw := significantWords(a)
	bw := significantWords(b)
	if len(aw) == 0 || len(bw) == 0 {
		return false
	}
	short, long := aw, bw
	if len(bw) < len(aw) {
		short, long = bw, aw
	}
	longSet := make(map[string]bool, len(long))
	for _, w := range long {
		longSet[w] = true
	}
	matches := 0
	for _, w := range short {
		if longSet[w] {
			matches++
		}
	}
	return matches*2 >= len(short)
}

func significantWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:()\"'")
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}
