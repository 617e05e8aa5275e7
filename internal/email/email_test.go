package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleMessage() Message {
	return Message{
		FromName: "Incident Reporting System",
		To:       []string{"ops@acme.test"},
		Subject:  "Incident Report - Acme - 1/2/2024",
		HTMLBody: `<p>Body map</p><img src="cid:body-map">`,
		TextBody: "Body map attached",
		Attachments: []Attachment{
			{Filename: "body-map.png", ContentType: "image/png", Content: []byte("png-bytes"), ContentID: "body-map"},
			{Filename: "body-map.png", ContentType: "image/png", Content: []byte("png-bytes")},
		},
	}
}

// =============================================================================
// Message
// =============================================================================

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Message)
		wantErr bool
	}{
		{"valid", func(*Message) {}, false},
		{"no recipients", func(m *Message) { m.To = nil }, true},
		{"bad recipient", func(m *Message) { m.To = []string{"not-an-address"} }, true},
		{"empty subject", func(m *Message) { m.Subject = " " }, true},
		{"empty body", func(m *Message) { m.HTMLBody, m.TextBody = "", "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleMessage()
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// =============================================================================
// SMTP
// =============================================================================

func TestSMTPMailer_BuildMessage(t *testing.T) {
	s := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 1025, From: "noreply@acme.test"}, discardLogger())
	raw, err := s.buildMessage(sampleMessage(), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	from, err := mail.ParseAddress(msg.Header.Get("From"))
	require.NoError(t, err)
	assert.Equal(t, "Incident Reporting System", from.Name)
	assert.Equal(t, "noreply@acme.test", from.Address)

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Incident Report - Acme - 1/2/2024", subject)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])

	relatedPart, err := mr.NextPart()
	require.NoError(t, err)
	relatedType, relatedParams, err := mime.ParseMediaType(relatedPart.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/related", relatedType)

	rr := multipart.NewReader(relatedPart, relatedParams["boundary"])
	altPart, err := rr.NextPart()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(altPart.Header.Get("Content-Type"), "multipart/alternative"))

	inline, err := rr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "<body-map>", inline.Header.Get("Content-Id"))
	assert.True(t, strings.HasPrefix(inline.Header.Get("Content-Disposition"), "inline"))

	attachment, err := mr.NextPart()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(attachment.Header.Get("Content-Disposition"), "attachment"))
	assert.Equal(t, "body-map.png", attachment.FileName())

	_, err = mr.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSMTPMailer_Send(t *testing.T) {
	s := NewSMTPMailer(SMTPConfig{Host: "mail.test", Port: 25, Username: "u", Password: "p"}, discardLogger())

	var gotAddr, gotFrom string
	var gotTo []string
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo = addr, from, to
		assert.NotNil(t, a)
		return nil
	}
	require.NoError(t, s.Send(context.Background(), sampleMessage()))
	assert.Equal(t, "mail.test:25", gotAddr)
	assert.Equal(t, DefaultFromEmail, gotFrom)
	assert.Equal(t, []string{"ops@acme.test"}, gotTo)

	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay down") }
	assert.ErrorContains(t, s.Send(context.Background(), sampleMessage()), "relay down")
}

// =============================================================================
// SendGrid
// =============================================================================

func TestSendGridMailer_BuildV3(t *testing.T) {
	s := NewSendGridMailer(SendGridConfig{APIKey: "key", From: "noreply@acme.test"}, discardLogger())
	m := s.buildV3(sampleMessage())

	assert.Equal(t, "Incident Reporting System", m.From.Name)
	assert.Equal(t, "noreply@acme.test", m.From.Address)
	require.Len(t, m.Personalizations, 1)
	require.Len(t, m.Personalizations[0].To, 1)
	assert.Equal(t, "ops@acme.test", m.Personalizations[0].To[0].Address)

	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)

	require.Len(t, m.Attachments, 2)
	assert.Equal(t, "inline", m.Attachments[0].Disposition)
	assert.Equal(t, "body-map", m.Attachments[0].ContentID)
	assert.Equal(t, "attachment", m.Attachments[1].Disposition)
	assert.Equal(t, "cG5nLWJ5dGVz", m.Attachments[1].Content)
}

func TestSendGridMailer_StatusError(t *testing.T) {
	s := NewSendGridMailer(SendGridConfig{APIKey: "key"}, discardLogger())
	s.send = func(ctx context.Context, m *sgmail.SGMailV3) (*rest.Response, error) {
		return &rest.Response{StatusCode: 401, Body: "bad key"}, nil
	}
	assert.ErrorContains(t, s.Send(context.Background(), sampleMessage()), "status 401")

	s.send = func(ctx context.Context, m *sgmail.SGMailV3) (*rest.Response, error) {
		return &rest.Response{StatusCode: 202}, nil
	}
	assert.NoError(t, s.Send(context.Background(), sampleMessage()))
}
