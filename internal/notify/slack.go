// README: Slack incoming-webhook notifier for operator alerts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const DefaultSlackChannel = "#exam-bookings"

type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
}

func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	if channel == "" {
		channel = DefaultSlackChannel
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// Notify posts to the incoming webhook. The recipient overrides the default
// channel when it starts with '#'.
func (s *SlackNotifier) Notify(ctx context.Context, recipient, subject, body string) error {
	channel := s.channel
	if len(recipient) > 0 && recipient[0] == '#' {
		channel = recipient
	}
	text := body
	if subject != "" {
		text = fmt.Sprintf("*%s*\n%s", subject, body)
	}
	buf, err := json.Marshal(slackPayload{Channel: channel, Text: text})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}
