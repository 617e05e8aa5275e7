package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
)

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	config SMTPConfig
	logger *slog.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(config SMTPConfig, logger *slog.Logger) *SMTPMailer {
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	return &SMTPMailer{config: config, logger: logger, send: smtp.SendMail}
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	raw, err := s.buildMessage(msg, time.Now())
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := s.send(addr, auth, s.config.From, msg.To, raw); err != nil {
		s.logger.Error("failed to send email", "to", msg.To, "subject", msg.Subject, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("email sent", "to", msg.To, "subject", msg.Subject, "attachments", len(msg.Attachments))
	return nil
}

// buildMessage renders msg as MIME:
//
//	multipart/mixed
//	  multipart/related
//	    multipart/alternative (text, html)
//	    inline parts
//	  attachment parts
func (s *SMTPMailer) buildMessage(msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	from := mail.Address{Name: fromName(msg), Address: s.config.From}

	mixed := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	related, err := nestedMultipart(mixed, "multipart/related")
	if err != nil {
		return nil, err
	}
	alt, err := nestedMultipart(related, "multipart/alternative")
	if err != nil {
		return nil, err
	}
	if msg.TextBody != "" {
		if err := writeQuotedPrintable(alt, "text/plain; charset=utf-8", msg.TextBody); err != nil {
			return nil, err
		}
	}
	if msg.HTMLBody != "" {
		if err := writeQuotedPrintable(alt, "text/html; charset=utf-8", msg.HTMLBody); err != nil {
			return nil, err
		}
	}
	if err := alt.Close(); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		if a.Inline() {
			if err := writeAttachment(related, a); err != nil {
				return nil, err
			}
		}
	}
	if err := related.Close(); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		if !a.Inline() {
			if err := writeAttachment(mixed, a); err != nil {
				return nil, err
			}
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// nestedMultipart opens a part of parent that is itself multipart.
func nestedMultipart(parent *multipart.Writer, mediaType string) (*multipart.Writer, error) {
	boundary := multipart.NewWriter(io.Discard).Boundary()
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", fmt.Sprintf("%s; boundary=%q", mediaType, boundary))
	w, err := parent.CreatePart(h)
	if err != nil {
		return nil, err
	}
	child := multipart.NewWriter(w)
	if err := child.SetBoundary(boundary); err != nil {
		return nil, err
	}
	return child, nil
}

func writeQuotedPrintable(w *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

func writeAttachment(w *multipart.Writer, a Attachment) error {
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := "attachment"
	if a.Inline() {
		disposition = "inline"
	}

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "base64")
	h.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": a.Filename}))
	if a.Inline() {
		h.Set("Content-ID", "<"+a.ContentID+">")
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(a.Content)
	for len(encoded) > 76 {
		if _, err := fmt.Fprintf(part, "%s\r\n", encoded[:76]); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err = fmt.Fprintf(part, "%s\r\n", encoded)
	return err
}
