package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
)

// LogOpsSink reports operational events to the log only. The default
// when no webhook is configured.
type LogOpsSink struct {
	Logger *slog.Logger
}

func (s *LogOpsSink) Report(ctx context.Context, event string, fields map[string]string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := make([]any, 0, len(fields)*2)
	for _, k := range sortedKeys(fields) {
		args = append(args, k, fields[k])
	}
	logger.With("source", "ops_sink").Warn(event, args...)
	return nil
}

// SlackOpsSink posts operational events to a slack channel via
// "incoming webhook". Dead jobs, poison payloads and invariant
// violations end up here.
type SlackOpsSink struct {
	SlackWebhookURL string
}

type slackWebhookBody struct {
	Text string `json:"text"`
}

func (s *SlackOpsSink) Report(ctx context.Context, event string, fields map[string]string) error {
	msg := fmt.Sprintf("⚠️ %s ⚠️\n", event)
	for _, k := range sortedKeys(fields) {
		msg += fmt.Sprintf("%s: `%s`\n", k, fields[k])
	}
	return s.sendSlackMsg(ctx, msg)
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (s *SlackOpsSink) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(slackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
