package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer sends mail through the SendGrid v3 API.
type SendGridMailer struct {
	config SendGridConfig
	logger *slog.Logger
	send   func(ctx context.Context, m *mail.SGMailV3) (*rest.Response, error)
}

var _ Mailer = (*SendGridMailer)(nil)

func NewSendGridMailer(config SendGridConfig, logger *slog.Logger) *SendGridMailer {
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	client := sendgrid.NewSendClient(config.APIKey)
	return &SendGridMailer{config: config, logger: logger, send: client.SendWithContext}
}

func (s *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	response, err := s.send(ctx, s.buildV3(msg))
	if err != nil {
		s.logger.Error("sendgrid request failed", "to", msg.To, "error", err)
		return fmt.Errorf("sendgrid: %w", err)
	}
	if response.StatusCode >= 300 {
		s.logger.Error("sendgrid returned error status",
			"status", response.StatusCode,
			"body", response.Body,
			"to", msg.To,
		)
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	s.logger.Info("email sent", "to", msg.To, "subject", msg.Subject, "provider", "sendgrid")
	return nil
}

func (s *SendGridMailer) buildV3(msg Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(fromName(msg), s.config.From))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	for _, to := range msg.To {
		p.AddTos(mail.NewEmail("", to))
	}
	m.AddPersonalizations(p)

	// SendGrid requires text/plain to precede text/html.
	if msg.TextBody != "" {
		m.AddContent(mail.NewContent("text/plain", msg.TextBody))
	}
	if msg.HTMLBody != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTMLBody))
	}

	for _, a := range msg.Attachments {
		att := mail.NewAttachment()
		att.SetContent(base64.StdEncoding.EncodeToString(a.Content))
		att.SetType(a.ContentType)
		att.SetFilename(a.Filename)
		if a.Inline() {
			att.SetDisposition("inline")
			att.SetContentID(a.ContentID)
		} else {
			att.SetDisposition("attachment")
		}
		m.AddAttachment(att)
	}
	return m
}
