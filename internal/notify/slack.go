package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

type slackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer"`
	TS     int64  `json:"ts"`
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username"`
	IconEmoji   string            `json:"icon_emoji"`
	Attachments []slackAttachment `json:"attachments"`
}

func slackColor(level classify.Severity) string {
	switch level {
	case classify.SeverityCritical:
		return "danger"
	case classify.SeverityHigh:
		return "warning"
	default:
		return "good"
	}
}

func slackEmoji(level classify.Severity) string {
	switch level {
	case classify.SeverityCritical:
		return ":rotating_light:"
	case classify.SeverityHigh:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

func (d *Dispatcher) postSlack(ctx context.Context, title, message string, level classify.Severity) error {
	payload := slackPayload{
		Channel:   d.cfg.SlackChannel,
		Username:  "errwatchd",
		IconEmoji: slackEmoji(level),
		Attachments: []slackAttachment{{
			Color:  slackColor(level),
			Title:  title,
			Text:   message,
			Footer: "errwatchd",
			TS:     d.nowFn().Unix(),
		}},
	}
	return d.postJSON(ctx, d.cfg.SlackWebhookURL, payload)
}

func (d *Dispatcher) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
