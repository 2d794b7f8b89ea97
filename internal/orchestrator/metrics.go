package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/errwatchd/internal/orchestrator"

// otelMetrics mirrors the pipeline counters to OpenTelemetry. The snapshot
// counters stay authoritative; these exist for the Prometheus scrape.
type otelMetrics struct {
	errorsDetected metric.Int64Counter
	errorsAnalyzed metric.Int64Counter
	fixesGenerated metric.Int64Counter
	prsCreated     metric.Int64Counter
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(instrumentationName)

	errorsDetected, err := meter.Int64Counter("errwatchd.errors.detected",
		metric.WithDescription("Errors detected in watched logs"))
	if err != nil {
		return nil, fmt.Errorf("creating errors.detected counter: %w", err)
	}
	errorsAnalyzed, err := meter.Int64Counter("errwatchd.errors.analyzed",
		metric.WithDescription("Errors run through analysis"))
	if err != nil {
		return nil, fmt.Errorf("creating errors.analyzed counter: %w", err)
	}
	fixesGenerated, err := meter.Int64Counter("errwatchd.fixes.generated",
		metric.WithDescription("Automated fixes generated"))
	if err != nil {
		return nil, fmt.Errorf("creating fixes.generated counter: %w", err)
	}
	prsCreated, err := meter.Int64Counter("errwatchd.prs.created",
		metric.WithDescription("Fix pull requests opened"))
	if err != nil {
		return nil, fmt.Errorf("creating prs.created counter: %w", err)
	}

	return &otelMetrics{
		errorsDetected: errorsDetected,
		errorsAnalyzed: errorsAnalyzed,
		fixesGenerated: fixesGenerated,
		prsCreated:     prsCreated,
	}, nil
}

func (m *otelMetrics) add(ctx context.Context, c metric.Int64Counter) {
	if m == nil || c == nil {
		return
	}
	c.Add(ctx, 1)
}
