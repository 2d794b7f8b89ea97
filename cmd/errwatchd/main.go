// Package main provides the error monitoring daemon.
//
// errwatchd tails application log files, classifies error lines, analyzes
// them with language models, routes alerts to Slack/email/webhook, and can
// open GitHub issues and automated fix pull requests. A small HTTP API
// serves health, metrics, recent errors, and a websocket feed.
//
// Usage:
//
//	SERVER_PORT=3030 \
//	NOTIFY_SLACK_WEBHOOK_URL=https://hooks.slack.com/... \
//	AI_ANTHROPIC_API_KEY=sk-ant-... \
//	./errwatchd -config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/errwatchd/internal/analysis"
	"github.com/fyrsmithlabs/errwatchd/internal/api"
	"github.com/fyrsmithlabs/errwatchd/internal/classify"
	"github.com/fyrsmithlabs/errwatchd/internal/config"
	"github.com/fyrsmithlabs/errwatchd/internal/errstore"
	"github.com/fyrsmithlabs/errwatchd/internal/githubfix"
	"github.com/fyrsmithlabs/errwatchd/internal/logging"
	"github.com/fyrsmithlabs/errwatchd/internal/notify"
	"github.com/fyrsmithlabs/errwatchd/internal/orchestrator"
	"github.com/fyrsmithlabs/errwatchd/internal/ratelimit"
	"github.com/fyrsmithlabs/errwatchd/internal/schedule"
	"github.com/fyrsmithlabs/errwatchd/internal/telemetry"
	"github.com/fyrsmithlabs/errwatchd/internal/watcher"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tel, err := telemetry.New(telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	}, logger.Named("telemetry"))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	classifier := classify.New(classify.Config{
		Environment: cfg.Watcher.Environment,
		Version:     cfg.Watcher.Version,
	})

	w, err := watcher.New(watcher.Config{
		Globs:         cfg.Watcher.LogGlobs,
		FlushInterval: cfg.Watcher.FlushInterval.Duration(),
		TailLines:     cfg.Watcher.TailLines,
		QueueSize:     cfg.Watcher.QueueSize,
	}, classifier, logger.Named("watcher"))
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	limiter := ratelimit.New(cfg.Notify.RateLimitWindow.Duration())
	dispatcher, err := notify.New(notify.Config{
		SlackWebhookURL: cfg.Notify.SlackWebhookURL.Value(),
		SlackChannel:    cfg.Notify.SlackChannel,
		WebhookURL:      cfg.Notify.WebhookURL,
		Email: notify.EmailSettings{
			Host:     cfg.Notify.Email.Host,
			Port:     cfg.Notify.Email.Port,
			From:     cfg.Notify.Email.From,
			To:       cfg.Notify.Email.To,
			Username: cfg.Notify.Email.Username,
			Password: cfg.Notify.Email.Password.Value(),
		},
		BusinessHoursStart: cfg.Notify.BusinessHours.Start,
		BusinessHoursEnd:   cfg.Notify.BusinessHours.End,
	}, limiter, logger.Named("notify"))
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}

	analyzer, err := analysis.New(analysis.Config{
		AnthropicAPIKey: cfg.AI.AnthropicAPIKey.Value(),
		AnthropicModel:  cfg.AI.AnthropicModel,
		OpenAIAPIKey:    cfg.AI.OpenAIAPIKey.Value(),
		OpenAIModel:     cfg.AI.OpenAIModel,
	}, logger.Named("analysis"))
	if err != nil {
		return fmt.Errorf("creating analyzer: %w", err)
	}

	store := errstore.New(errstore.DefaultCapacity)

	var issues githubfix.IssueCreator
	var prs githubfix.PRCreator
	var prober orchestrator.HealthProber
	if cfg.GitHub.Token.IsSet() && cfg.GitHub.Owner != "" && cfg.GitHub.Repo != "" {
		gh, err := githubfix.New(ctx, githubfix.Config{
			Token:      cfg.GitHub.Token.Value(),
			Owner:      cfg.GitHub.Owner,
			Repo:       cfg.GitHub.Repo,
			BaseBranch: cfg.GitHub.BaseBranch,
		}, logger.Named("github"))
		if err != nil {
			return fmt.Errorf("creating github service: %w", err)
		}
		issues, prs, prober = gh, gh, gh
	}

	orch, err := orchestrator.New(orchestrator.Config{
		AutoFixEnabled:      cfg.AutoFix.Enabled,
		ConfidenceThreshold: cfg.AutoFix.ConfidenceThreshold,
		MaxDailyPRs:         cfg.AutoFix.MaxDailyPRs,
	}, orchestrator.Deps{
		Analyzer:     analyzer,
		FixGenerator: analyzer,
		Notifier:     dispatcher,
		Issues:       issues,
		PRs:          prs,
		Prober:       prober,
		ModelProbe:   analyzer,
		Cache:        analyzer,
		Store:        store,
	}, logger.Named("orchestrator"))
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	srv, err := api.NewServer(api.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, api.Deps{
		Store:        store,
		Metrics:      orch,
		Watcher:      w,
		Analyzer:     analyzer,
		FixGenerator: analyzer,
	}, logger.Named("http"))
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}
	orch.OnError(srv.Hub().BroadcastError)

	sched := schedule.New(logger.Named("schedule"))
	orch.RegisterJobs(sched)

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	go orch.Run(ctx, w.Events(), w.Batches())
	sched.Start(ctx)

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start() }()

	logger.Info("errwatchd started",
		zap.String("version", version),
		zap.Strings("globs", cfg.Watcher.LogGlobs),
		zap.Bool("autofix", cfg.AutoFix.Enabled),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}
	sched.Stop()
	w.Stop()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
