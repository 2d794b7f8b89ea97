// Package orchestrator drives the error pipeline: it consumes classified
// records from the watcher, runs analysis, decides whether an automated fix
// is warranted, routes notifications, and files GitHub issues or pull
// requests. All auto-fix policy lives here.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/errwatchd/internal/analysis"
	"github.com/fyrsmithlabs/errwatchd/internal/classify"
	"github.com/fyrsmithlabs/errwatchd/internal/errstore"
	"github.com/fyrsmithlabs/errwatchd/internal/githubfix"
	"github.com/fyrsmithlabs/errwatchd/internal/schedule"
	"github.com/fyrsmithlabs/errwatchd/internal/watcher"
)

const (
	// queueCap bounds the deferred-error queue; past it the oldest entry
	// is dropped, same policy as the watcher's event channel.
	queueCap = 100

	// drainBatchSize is how many queued errors each drain pass handles.
	drainBatchSize = 5
)

// Notifier is the alerting surface the orchestrator depends on.
type Notifier interface {
	SendCriticalAlert(ctx context.Context, title, message string)
	SendAlert(ctx context.Context, title, message string, level classify.Severity)
	SendFixNotification(ctx context.Context, title, message string)
}

// HealthProber checks an external dependency for the weekly health job.
type HealthProber interface {
	CheckAccess(ctx context.Context) error
}

// Pinger verifies the analysis backend responds. The weekly health job uses
// it to catch dead model credentials before an incident does.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheClearer empties a collaborator's cache during the daily reset.
type CacheClearer interface {
	ClearCache()
}

// Config holds auto-fix policy knobs.
type Config struct {
	AutoFixEnabled      bool
	ConfidenceThreshold float64
	MaxDailyPRs         int
}

// Deps are the orchestrator's collaborators. Analyzer, Notifier, and Store
// are required; the GitHub and fix-generation collaborators only when
// auto-fix is enabled.
type Deps struct {
	Analyzer     analysis.Analyzer
	FixGenerator analysis.FixGenerator
	Notifier     Notifier
	Issues       githubfix.IssueCreator
	PRs          githubfix.PRCreator
	Prober       HealthProber
	ModelProbe   Pinger
	Cache        CacheClearer
	Store        *errstore.Store
}

// Snapshot is the mutex-consistent metrics view served by the API.
type Snapshot struct {
	ErrorsDetected    int64     `json:"errors_detected"`
	ErrorsAnalyzed    int64     `json:"errors_analyzed"`
	FixesGenerated    int64     `json:"fixes_generated"`
	PRsCreated        int64     `json:"prs_created_today"`
	StartTime         time.Time `json:"start_time"`
	UptimeSec         float64   `json:"uptime_sec"`
	QueueSize         int       `json:"queue_size"`
	AutoFixEnabled    bool      `json:"autofix_enabled"`
	DailyPRsRemaining int       `json:"daily_prs_remaining"`
}

// Orchestrator coordinates the pipeline.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	gates  []FixGate
	om     *otelMetrics
	logger *zap.Logger
	nowFn  func() time.Time

	mu             sync.Mutex
	queue          []*classify.ErrorRecord
	errorsDetected int64
	errorsAnalyzed int64
	fixesGenerated int64
	prsCreated     int64 // reset daily
	startTime      time.Time
	subscribers    []func(*classify.ErrorRecord)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.nowFn = now }
}

// New creates an Orchestrator and registers its OpenTelemetry counters.
func New(cfg Config, deps Deps, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if deps.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if deps.Store == nil {
		return nil, errors.New("error store is required")
	}
	if cfg.AutoFixEnabled && (deps.FixGenerator == nil || deps.Issues == nil || deps.PRs == nil) {
		return nil, errors.New("auto-fix requires fix generator, issue creator, and PR creator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	om, err := newOtelMetrics()
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		gates:  defaultGates(),
		om:     om,
		logger: logger,
		nowFn:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.startTime = o.nowFn()
	return o, nil
}

// OnError registers a callback invoked for every handled record, after it
// lands in the store. Used by the websocket hub. Not safe after Run starts.
func (o *Orchestrator) OnError(fn func(*classify.ErrorRecord)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = append(o.subscribers, fn)
}

// Run consumes watcher output until ctx is done or both channels close.
func (o *Orchestrator) Run(ctx context.Context, events <-chan *classify.ErrorRecord, batches <-chan watcher.Batch) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-events:
			if !ok {
				events = nil
				if batches == nil {
					return
				}
				continue
			}
			o.onRecord(ctx, rec)
		case b, ok := <-batches:
			if !ok {
				batches = nil
				if events == nil {
					return
				}
				continue
			}
			o.logger.Info("buffer flushed",
				zap.Int("records", len(b.Records)),
				zap.Time("flushed_at", b.FlushedAt),
			)
		}
	}
}

// onRecord triages a fresh record. Critical and payment errors are handled
// inline; everything else waits for the drain job so a noisy log cannot
// starve the urgent path.
func (o *Orchestrator) onRecord(ctx context.Context, rec *classify.ErrorRecord) {
	o.mu.Lock()
	o.errorsDetected++
	o.mu.Unlock()
	o.om.add(ctx, o.om.errorsDetected)

	if rec.Severity == classify.SeverityCritical || rec.Type == classify.TypePayment {
		o.HandleError(ctx, rec)
		return
	}

	o.mu.Lock()
	if len(o.queue) >= queueCap {
		dropped := o.queue[0]
		o.queue = o.queue[1:]
		o.logger.Warn("error queue full, dropping oldest", zap.String("dropped_id", dropped.ID))
	}
	o.queue = append(o.queue, rec)
	o.mu.Unlock()
}

// HandleError runs the full pipeline for one record: analyze, then either
// attempt an automated fix or escalate to a manual issue, notify, store.
// Every record produces a visible outcome; failures fall back to alerts
// rather than silence.
func (o *Orchestrator) HandleError(ctx context.Context, rec *classify.ErrorRecord) {
	a, err := o.deps.Analyzer.Analyze(ctx, rec)
	if err != nil {
		o.logger.Error("analysis failed", zap.String("error_id", rec.ID), zap.Error(err))
		o.manualIssue(ctx, failedAnalysis(rec, err), nil)
		o.deps.Notifier.SendAlert(ctx, "Error processing failed", rec.Message, rec.Severity)
		o.finish(rec)
		return
	}

	o.mu.Lock()
	o.errorsAnalyzed++
	o.mu.Unlock()
	o.om.add(ctx, o.om.errorsAnalyzed)

	if o.shouldAttemptAutoFix(a) {
		o.attemptFix(ctx, a)
	} else {
		o.manualIssue(ctx, a, nil)
	}

	if rec.Severity == classify.SeverityCritical {
		o.deps.Notifier.SendCriticalAlert(ctx, alertTitle(rec), alertMessage(a))
	} else {
		o.deps.Notifier.SendAlert(ctx, alertTitle(rec), alertMessage(a), rec.Severity)
	}

	o.finish(rec)
}

// failedAnalysis stands in when the analyzer itself errors, so the manual
// escalation path still has something to file an issue from.
func failedAnalysis(rec *classify.ErrorRecord, err error) *analysis.Analysis {
	return &analysis.Analysis{
		ID:        "analysis_failed_" + rec.ID,
		Error:     rec,
		RootCause: "Analysis failed: " + err.Error(),
		Priority:  rec.Priority(),
	}
}

func (o *Orchestrator) finish(rec *classify.ErrorRecord) {
	o.deps.Store.Add(rec)
	o.mu.Lock()
	subs := o.subscribers
	o.mu.Unlock()
	for _, fn := range subs {
		fn(rec)
	}
}

// shouldAttemptAutoFix is the eligibility ladder. Order matters: the kill
// switches run before the per-type entries, and security errors never
// qualify no matter how confident the analysis is.
func (o *Orchestrator) shouldAttemptAutoFix(a *analysis.Analysis) bool {
	if !o.cfg.AutoFixEnabled {
		return false
	}
	o.mu.Lock()
	prs := o.prsCreated
	o.mu.Unlock()
	if prs >= int64(o.cfg.MaxDailyPRs) {
		return false
	}
	if a.Error.Type == classify.TypeSecurity {
		return false
	}
	if a.Confidence < o.cfg.ConfidenceThreshold {
		return false
	}

	switch a.Error.Type {
	case classify.TypePayment:
		return a.Priority <= 2
	case classify.TypeDatabase:
		return a.Confidence > 0.9
	case classify.TypeRuntime:
		return a.Confidence > 0.85
	}
	return false
}

func (o *Orchestrator) attemptFix(ctx context.Context, a *analysis.Analysis) {
	fix, err := o.deps.FixGenerator.GenerateFix(ctx, a)
	if err != nil {
		o.logger.Error("fix generation failed", zap.String("analysis_id", a.ID), zap.Error(err))
		o.manualIssue(ctx, a, nil)
		return
	}

	o.mu.Lock()
	o.fixesGenerated++
	o.mu.Unlock()
	o.om.add(ctx, o.om.fixesGenerated)

	if violations := checkFix(o.gates, fix, a); len(violations) > 0 {
		for _, v := range violations {
			o.logger.Info("fix rejected by gate",
				zap.String("gate", v.Gate),
				zap.String("reason", v.Description),
				zap.String("fix_id", fix.ID),
			)
		}
		o.manualIssue(ctx, a, fix)
		return
	}

	pr, err := o.deps.PRs.CreateFixPullRequest(ctx, fix, a)
	if err != nil {
		o.logger.Error("fix PR creation failed", zap.String("fix_id", fix.ID), zap.Error(err))
		o.manualIssue(ctx, a, fix)
		return
	}

	o.mu.Lock()
	o.prsCreated++
	o.mu.Unlock()
	o.om.add(ctx, o.om.prsCreated)

	o.deps.Notifier.SendFixNotification(ctx, "Automated fix PR opened",
		fmt.Sprintf("%s\n%s", fix.Description, pr.URL))
}

// manualIssue files a GitHub issue for human follow-up. With no issue
// creator configured it degrades to a log line plus the standard alert,
// which still fires from HandleError.
func (o *Orchestrator) manualIssue(ctx context.Context, a *analysis.Analysis, rejectedFix *analysis.Fix) {
	if o.deps.Issues == nil {
		o.logger.Warn("manual issue needed but no issue creator configured",
			zap.String("analysis_id", a.ID))
		return
	}
	issue, err := o.deps.Issues.CreateIssue(ctx, a, rejectedFix)
	if err != nil {
		o.logger.Error("manual issue creation failed", zap.String("analysis_id", a.ID), zap.Error(err))
		o.deps.Notifier.SendAlert(ctx, "Error processing failed",
			"Could not file issue for "+a.Error.Message, a.Error.Severity)
		return
	}
	o.logger.Info("manual issue filed",
		zap.Int("number", issue.Number),
		zap.String("analysis_id", a.ID),
	)
}

// RegisterJobs wires the orchestrator's maintenance work into the
// scheduler: queue drain every minute, digest at 08:00, health check
// Monday 09:00, counter reset at midnight.
func (o *Orchestrator) RegisterJobs(s *schedule.Scheduler) {
	s.Register("queue_drain", schedule.Every{Interval: time.Minute}, func(ctx context.Context) error {
		o.DrainQueue(ctx, drainBatchSize)
		return nil
	})
	s.Register("daily_digest", schedule.Daily{Hour: 8}, func(ctx context.Context) error {
		o.SendDailyDigest(ctx)
		return nil
	})
	s.Register("weekly_health", schedule.Weekly{Weekday: time.Monday, Hour: 9}, func(ctx context.Context) error {
		o.RunHealthCheck(ctx)
		return nil
	})
	s.Register("daily_reset", schedule.Daily{Hour: 0}, func(ctx context.Context) error {
		o.ResetDailyCounters()
		return nil
	})
}

// DrainQueue handles up to n deferred records and reports how many ran.
func (o *Orchestrator) DrainQueue(ctx context.Context, n int) int {
	o.mu.Lock()
	if n > len(o.queue) {
		n = len(o.queue)
	}
	batch := o.queue[:n]
	o.queue = o.queue[n:]
	o.mu.Unlock()

	for _, rec := range batch {
		o.HandleError(ctx, rec)
	}
	return len(batch)
}

// SendDailyDigest summarizes the last day's activity on the low-urgency
// alert path.
func (o *Orchestrator) SendDailyDigest(ctx context.Context) {
	snap := o.Snapshot()
	recent := o.deps.Store.Recent(10)

	var b strings.Builder
	fmt.Fprintf(&b, "Errors detected: %d\nErrors analyzed: %d\nFixes generated: %d\nFix PRs opened today: %d\n",
		snap.ErrorsDetected, snap.ErrorsAnalyzed, snap.FixesGenerated, snap.PRsCreated)
	if len(recent) > 0 {
		b.WriteString("\nMost recent errors:\n")
		for _, rec := range recent {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", rec.Type, rec.Severity, rec.Message)
		}
	}

	o.deps.Notifier.SendAlert(ctx, "Daily Error Digest", b.String(), classify.SeverityLow)
}

// RunHealthCheck probes external dependencies and alerts on degradation.
// Both the analysis backend and GitHub are checked when configured.
func (o *Orchestrator) RunHealthCheck(ctx context.Context) {
	var problems []string
	if o.deps.ModelProbe != nil {
		if err := o.deps.ModelProbe.Ping(ctx); err != nil {
			problems = append(problems, "analyzer: "+err.Error())
		}
	}
	if o.deps.Prober != nil {
		if err := o.deps.Prober.CheckAccess(ctx); err != nil {
			problems = append(problems, "github: "+err.Error())
		}
	}

	if len(problems) > 0 {
		o.deps.Notifier.SendAlert(ctx, "Weekly Health Check: degraded",
			strings.Join(problems, "\n"), classify.SeverityHigh)
		return
	}
	o.deps.Notifier.SendAlert(ctx, "Weekly Health Check: healthy",
		"All monitored dependencies reachable.", classify.SeverityLow)
}

// ResetDailyCounters zeroes the daily PR budget and clears the analysis
// cache so yesterday's assessments do not bind today's decisions.
func (o *Orchestrator) ResetDailyCounters() {
	o.mu.Lock()
	o.prsCreated = 0
	o.mu.Unlock()
	if o.deps.Cache != nil {
		o.deps.Cache.ClearCache()
	}
	o.logger.Info("daily counters reset")
}

// Snapshot returns a consistent metrics view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	remaining := o.cfg.MaxDailyPRs - int(o.prsCreated)
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		ErrorsDetected:    o.errorsDetected,
		ErrorsAnalyzed:    o.errorsAnalyzed,
		FixesGenerated:    o.fixesGenerated,
		PRsCreated:        o.prsCreated,
		StartTime:         o.startTime,
		UptimeSec:         o.nowFn().Sub(o.startTime).Seconds(),
		QueueSize:         len(o.queue),
		AutoFixEnabled:    o.cfg.AutoFixEnabled,
		DailyPRsRemaining: remaining,
	}
}

func alertTitle(rec *classify.ErrorRecord) string {
	switch {
	case rec.Severity == classify.SeverityCritical:
		return fmt.Sprintf("CRITICAL %s error in %s", rec.Type, rec.Context.Service)
	case rec.Type == classify.TypePayment:
		return "Payment Error Detected"
	default:
		return fmt.Sprintf("%s error in %s", rec.Type, rec.Context.Service)
	}
}

func alertMessage(a *analysis.Analysis) string {
	var b strings.Builder
	b.WriteString(a.Error.Message)
	if a.RootCause != "" {
		b.WriteString("\n\nRoot cause: " + a.RootCause)
	}
	if a.FixRecommendation != "" {
		b.WriteString("\nRecommended fix: " + a.FixRecommendation)
	}
	fmt.Fprintf(&b, "\nPriority: P%d, confidence %.2f", a.Priority, a.Confidence)
	return b.String()
}
