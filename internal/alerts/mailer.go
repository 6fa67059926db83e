package alerts

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/sudo-init-do/diecasthub/internal/config"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewMailer picks the provider named by MAIL_PROVIDER.
func NewMailer(cfg *config.Config) (Mailer, error) {
	switch cfg.Mail.Provider {
	case "plunk":
		return NewPlunkMailer(cfg.Plunk, cfg.Mail.ReplyTo)
	case "smtp", "":
		return NewSMTPMailer(cfg.SMTP, cfg.Mail.ReplyTo)
	}
	return nil, fmt.Errorf("unknown MAIL_PROVIDER %q", cfg.Mail.Provider)
}

// SMTPMailer sends plain text or HTML mail over implicit TLS.
type SMTPMailer struct {
	cfg     config.SMTPConfig
	replyTo string
}

func NewSMTPMailer(cfg config.SMTPConfig, replyTo string) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port == "" || cfg.Username == "" || cfg.Password == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp not configured: set SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD, SMTP_FROM (or set MAIL_PROVIDER=plunk)")
	}
	return &SMTPMailer{cfg: cfg, replyTo: replyTo}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := buildMessage(m.cfg.From, to, m.replyTo, subject, body)

	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.cfg.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}

func buildMessage(from, to, replyTo, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if replyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", replyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s; charset=\"utf-8\"\r\n", contentType(body))
	b.WriteString("\r\n" + body + "\r\n")
	return b.String()
}

func contentType(body string) string {
	lb := strings.ToLower(body)
	if strings.Contains(lb, "<html") || strings.Contains(lb, "<body") || strings.Contains(lb, "<!doctype html") {
		return "text/html"
	}
	return "text/plain"
}
