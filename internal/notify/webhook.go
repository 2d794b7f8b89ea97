package notify

import (
	"context"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

// webhookPayload is the generic JSON body posted to the dashboard webhook.
type webhookPayload struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Level     string `json:"level"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

func (d *Dispatcher) postWebhook(ctx context.Context, title, message string, level classify.Severity) error {
	return d.postJSON(ctx, d.cfg.WebhookURL, webhookPayload{
		Title:     title,
		Message:   message,
		Level:     string(level),
		Source:    "errwatchd",
		Timestamp: d.nowFn().UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}
