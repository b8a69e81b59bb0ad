package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arbiterhq/arbiter/util"
)

// MailerNotifier delivers notifications through an HTTP mail-API
// transport (Mailgun-style "messages" endpoint).
type MailerNotifier struct {
	Client   *http.Client
	Host     string
	APIToken string
	From     string
}

func NewMailerNotifier(host, token, from string) *MailerNotifier {
	return &MailerNotifier{
		Client:   util.RobustHTTPClient(),
		Host:     host,
		APIToken: token,
		From:     from,
	}
}

var _ Notifier = (*MailerNotifier)(nil)

type mailerRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	ToName   string `json:"to_name,omitempty"`
	Subject  string `json:"subject"`
	TextBody string `json:"text_body"`
}

func (n *MailerNotifier) Send(ctx context.Context, kind Kind, recipientEmail, recipientName string, data map[string]string) error {
	msg, err := RenderMessage(kind, recipientName, data)
	if err != nil {
		return err
	}

	body, err := json.Marshal(mailerRequest{
		From:     n.From,
		To:       recipientEmail,
		ToName:   recipientName,
		Subject:  msg.Subject,
		TextBody: msg.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Host+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.APIToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", n.APIToken))
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("mail transport request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("mail transport returned status %d", resp.StatusCode)
	}
	messagesSent.WithLabelValues(string(kind)).Inc()
	return nil
}
