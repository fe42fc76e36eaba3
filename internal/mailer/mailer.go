package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"stockpos/internal/logger"
)

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTP(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogMailer stands in when SMTP is not configured; messages are only logged.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, _ string) error {
	logger.Named("mailer").Info("smtp not configured, mail not sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

var resetTemplate = template.Must(template.New("reset").Parse(`<p>Hello {{.Name}},</p>
<p>A password reset was requested for your account. The link below is valid for {{.Minutes}} minutes.</p>
<p><a href="{{.Link}}">Reset your password</a></p>
<p>If you did not request this, you can ignore this email.</p>`))

type ResetEmail struct {
	Name    string
	Link    string
	Minutes int
}

func RenderPasswordReset(data ResetEmail) (string, error) {
	var buf bytes.Buffer
	if err := resetTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
