package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/email"
)

// ContactFromName is the display name of forwarded enquiries.
const ContactFromName = "SafetyLine Contact Form"

// ContactRequest is a public enquiry from the marketing site.
type ContactRequest struct {
	FirstName string `json:"name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,max=40"`
	Message   string `json:"message" validate:"max=5000"`
}

// contactFields maps struct fields to their JSON name and the label shown
// in validation messages.
var contactFields = map[string][2]string{
	"FirstName": {"name", "First Name"},
	"LastName":  {"last_name", "Last Name"},
	"Email":     {"email", "Email Address"},
	"Phone":     {"phone", "Phone Number"},
	"Message":   {"message", "Message"},
}

// ContactDesk forwards contact enquiries to the business inbox.
type ContactDesk struct {
	mailer   email.Mailer
	inbox    string
	validate *validator.Validate
	logger   *slog.Logger
}

// NewContactDesk creates a desk that mails enquiries to inbox.
func NewContactDesk(mailer email.Mailer, inbox string, logger *slog.Logger) *ContactDesk {
	return &ContactDesk{
		mailer:   mailer,
		inbox:    inbox,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Submit validates the enquiry and mails it. Validation failures are
// *domain.ValidationError naming the first bad field.
func (d *ContactDesk) Submit(ctx context.Context, req ContactRequest) error {
	const op = "contact.submit"

	req = req.trimmed()
	if err := d.validate.Struct(req); err != nil {
		return contactValidationError(op, err)
	}

	msg, err := ComposeContact(req)
	if err != nil {
		return domain.Internal(err, op, "failed to compose email")
	}
	msg.To = []string{d.inbox}

	if err := d.mailer.Send(ctx, msg); err != nil {
		d.logger.Warn("contact enquiry send failed", "error", err)
		return domain.Unavailable(err, op, "Your message could not be sent. Please try again later.")
	}
	d.logger.Info("contact enquiry sent", "from", req.Email)
	return nil
}

func (r ContactRequest) trimmed() ContactRequest {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Message = strings.TrimSpace(r.Message)
	return r
}

func contactValidationError(op string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.Invalid(op, "invalid request body")
	}
	fe := verrs[0]
	names, ok := contactFields[fe.Field()]
	if !ok {
		return domain.Invalid(op, fe.Field()+" is invalid")
	}
	var message string
	switch fe.Tag() {
	case "required":
		message = fmt.Sprintf("Please fill out the %s.", names[1])
	case "email":
		message = "Please enter a valid email address."
	case "max":
		message = fmt.Sprintf("%s is too long.", names[1])
	default:
		message = fmt.Sprintf("%s is invalid.", names[1])
	}
	return domain.NewValidationError(op, names[0], message)
}

// ComposeContact builds the message forwarded to the business inbox.
func ComposeContact(req ContactRequest) (email.Message, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "contact.html", req); err != nil {
		return email.Message{}, fmt.Errorf("render contact.html: %w", err)
	}

	name := strings.TrimSpace(req.FirstName + " " + req.LastName)
	text := fmt.Sprintf("Name: %s\nEmail: %s\nPhone: %s\n\n%s\n", name, req.Email, req.Phone, orNA(req.Message))
	return email.Message{
		FromName: ContactFromName,
		Subject:  fmt.Sprintf("Contact enquiry from %s", name),
		HTMLBody: buf.String(),
		TextBody: text,
	}, nil
}
