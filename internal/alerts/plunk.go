package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sudo-init-do/diecasthub/internal/config"
)

type plunkSendBody struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from,omitempty"`
	Reply   string `json:"reply,omitempty"`
}

// PlunkMailer sends through the Plunk transactional API.
type PlunkMailer struct {
	client  *resty.Client
	apiURL  string
	from    string
	replyTo string
}

func NewPlunkMailer(cfg config.PlunkConfig, replyTo string) (*PlunkMailer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("plunk not configured: set PLUNK_API_KEY")
	}
	client := resty.New().
		SetAuthToken(cfg.APIKey).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	return &PlunkMailer{client: client, apiURL: cfg.APIURL, from: cfg.From, replyTo: replyTo}, nil
}

func (m *PlunkMailer) Send(ctx context.Context, to, subject, body string) error {
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(plunkSendBody{
			To:      to,
			Subject: subject,
			Body:    body,
			From:    m.from,
			Reply:   m.replyTo,
		}).
		Post(m.apiURL)
	if err != nil {
		return fmt.Errorf("plunk request: %w", err)
	}
	if resp.IsError() {
		if b := resp.String(); b != "" {
			return fmt.Errorf("plunk send failed: status=%d body=%s", resp.StatusCode(), b)
		}
		return fmt.Errorf("plunk send failed: status=%d", resp.StatusCode())
	}
	return nil
}
