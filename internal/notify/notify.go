// Package notify fans alerts out to Slack, email, and a dashboard webhook.
//
// Channel selection is policy-driven: critical alerts reach every configured
// channel immediately, standard alerts respect per-title cooldowns, the
// business-hours window, and per-level channel gates. The dashboard webhook
// is exempt from all gating so the dashboard always records the alert even
// when chat and email stay quiet.
package notify

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
	"github.com/fyrsmithlabs/errwatchd/internal/ratelimit"
)

const httpTimeout = 10 * time.Second

// EmailSettings holds SMTP delivery settings.
type EmailSettings struct {
	Host     string
	Port     int
	From     string
	To       string
	Username string
	Password string
}

// Config holds dispatcher settings. Any channel left unconfigured is
// silently skipped.
type Config struct {
	SlackWebhookURL string
	SlackChannel    string
	WebhookURL      string
	Email           EmailSettings

	// BusinessHoursStart/End bound the local hours during which
	// non-critical Slack alerts fire. End is inclusive.
	BusinessHoursStart int
	BusinessHoursEnd   int
}

// Dispatcher routes alerts to the configured channels.
type Dispatcher struct {
	cfg     Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	client  *http.Client
	nowFn   func() time.Time
	sendFn  func(addr, from, to, subject, body, username, password string) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.nowFn = now }
}

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// withSMTPSender overrides the SMTP transport, for tests.
func withSMTPSender(fn func(addr, from, to, subject, body, username, password string) error) Option {
	return func(d *Dispatcher) { d.sendFn = fn }
}

// New creates a Dispatcher. The rate limiter is required.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger, opts ...Option) (*Dispatcher, error) {
	if limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		client:  &http.Client{Timeout: httpTimeout},
		nowFn:   time.Now,
		sendFn:  sendSMTP,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// SendCriticalAlert pushes to every configured channel at once, bypassing
// rate limits and business hours. Channel failures are logged, not
// propagated: a dead Slack webhook must not block the email.
func (d *Dispatcher) SendCriticalAlert(ctx context.Context, title, message string) {
	g, gctx := errgroup.WithContext(ctx)

	if d.cfg.SlackWebhookURL != "" {
		g.Go(func() error {
			if err := d.postSlack(gctx, title, message, classify.SeverityCritical); err != nil {
				d.logger.Error("slack critical alert failed", zap.String("title", title), zap.Error(err))
			}
			return nil
		})
	}
	if d.cfg.Email.Host != "" && d.cfg.Email.To != "" {
		g.Go(func() error {
			if err := d.sendEmail(title, message, classify.SeverityCritical); err != nil {
				d.logger.Error("email critical alert failed", zap.String("title", title), zap.Error(err))
			}
			return nil
		})
	}
	if d.cfg.WebhookURL != "" {
		g.Go(func() error {
			if err := d.postWebhook(gctx, title, message, classify.SeverityCritical); err != nil {
				d.logger.Error("webhook critical alert failed", zap.String("title", title), zap.Error(err))
			}
			return nil
		})
	}

	_ = g.Wait()
	d.limiter.RecordSend("slack_" + title)
	d.limiter.RecordSend("email_" + title)
}

// SendAlert delivers a standard alert. The dashboard webhook always fires;
// Slack fires for critical alerts or during business hours, email only for
// critical and high. Each chat/email channel holds its own per-title
// cooldown, so a suppressed Slack send does not suppress the email. A
// cooldown starts only once the channel accepts the alert; a failed
// delivery leaves the window open for the next attempt.
func (d *Dispatcher) SendAlert(ctx context.Context, title, message string, level classify.Severity) {
	if d.cfg.WebhookURL != "" {
		if err := d.postWebhook(ctx, title, message, level); err != nil {
			d.logger.Error("webhook alert failed", zap.String("title", title), zap.Error(err))
		}
	}

	if d.cfg.SlackWebhookURL != "" && (level == classify.SeverityCritical || d.withinBusinessHours()) {
		key := "slack_" + title
		if d.limiter.IsLimited(key) {
			d.logger.Debug("slack alert suppressed by cooldown", zap.String("title", title))
		} else if err := d.postSlack(ctx, title, message, level); err != nil {
			d.logger.Error("slack alert failed", zap.String("title", title), zap.Error(err))
		} else {
			d.limiter.RecordSend(key)
		}
	}

	if d.cfg.Email.Host != "" && d.cfg.Email.To != "" &&
		(level == classify.SeverityCritical || level == classify.SeverityHigh) {
		key := "email_" + title
		if d.limiter.IsLimited(key) {
			d.logger.Debug("email alert suppressed by cooldown", zap.String("title", title))
		} else if err := d.sendEmail(title, message, level); err != nil {
			d.logger.Error("email alert failed", zap.String("title", title), zap.Error(err))
		} else {
			d.limiter.RecordSend(key)
		}
	}
}

// SendFixNotification announces an automated fix on Slack only. Fix
// notifications are rare enough that they skip the cooldown.
func (d *Dispatcher) SendFixNotification(ctx context.Context, title, message string) {
	if d.cfg.SlackWebhookURL == "" {
		return
	}
	if err := d.postSlack(ctx, title, message, classify.SeverityLow); err != nil {
		d.logger.Error("slack fix notification failed", zap.String("title", title), zap.Error(err))
	}
}

// withinBusinessHours reports whether the local hour falls inside the
// configured window. The end hour is inclusive: 6..20 covers 06:00-20:59.
func (d *Dispatcher) withinBusinessHours() bool {
	hour := d.nowFn().Hour()
	return hour >= d.cfg.BusinessHoursStart && hour <= d.cfg.BusinessHoursEnd
}
