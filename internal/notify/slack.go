package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// SlackSink posts to an incoming webhook. Webhooks cannot carry files, so an
// attached image is only mentioned.
type SlackSink struct {
	webhookURL string
	client     *http.Client
}

type slackMessage struct {
	Text string `json:"text"`
}

func NewSlackSink(webhookURL string, timeout time.Duration) *SlackSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackSink{webhookURL: webhookURL, client: httpClient(timeout, nil)}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Send(ctx context.Context, msg Message) error {
	text := msg.Text
	if len(msg.Image) > 0 {
		text += "\n_(screenshot saved with the run artifacts)_"
	}
	payload, err := json.Marshal(slackMessage{Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &statusError{sink: "slack", code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return nil
}
