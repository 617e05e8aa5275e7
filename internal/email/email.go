// Package email sends the notification mail of the incident reporting
// service.
//
// Two Mailer implementations exist:
// - SMTPMailer: any SMTP relay (Mailpit/Mailhog in development)
// - SendGridMailer: the SendGrid v3 API
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// Mailer delivers one composed message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a transport-neutral email. The sender address comes from the
// mailer's configuration; FromName only sets the display name.
type Message struct {
	FromName    string
	To          []string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// Attachment is a file carried by a Message. A non-empty ContentID makes the
// part inline so the HTML body can reference it as "cid:{ContentID}".
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
	ContentID   string
}

// Inline reports whether the attachment is referenced from the HTML body.
func (a Attachment) Inline() bool { return a.ContentID != "" }

// Validate checks that the message can be handed to a transport.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return errors.New("email: no recipients")
	}
	for _, to := range m.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return fmt.Errorf("email: invalid recipient %q: %w", to, err)
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("email: empty subject")
	}
	if m.HTMLBody == "" && m.TextBody == "" {
		return errors.New("email: empty body")
	}
	return nil
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string // empty disables auth
	Password string
	From     string
}

// SendGridConfig holds SendGrid API settings.
type SendGridConfig struct {
	APIKey string
	From   string
}

const (
	// DefaultFromEmail is the sender when none is configured.
	DefaultFromEmail = "incidents@safetyline.local"

	// DefaultFromName is the display name when a message sets none.
	DefaultFromName = "SafetyLine"
)

func fromName(m Message) string {
	if m.FromName != "" {
		return m.FromName
	}
	return DefaultFromName
}
