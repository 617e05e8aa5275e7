package notify

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/email"
)

// ErrUnauthorized is returned when the presented credential does not match
// the gateway secret.
var ErrUnauthorized = errors.New("unauthorized")

// OperatorRequest is the body of POST /api/send-email.
type OperatorRequest struct {
	ToEmail     string                 `json:"toEmail" validate:"required,email"`
	ReportData  *domain.IncidentReport `json:"reportData" validate:"required"`
	CanvasImage string                 `json:"canvasImage,omitempty"`
}

// EmployeeRequest is the body of POST /api/send-employee-email.
type EmployeeRequest struct {
	ToEmail      string                 `json:"toEmail" validate:"required,email"`
	EmployeeName string                 `json:"employeeName"`
	ReportData   *domain.IncidentReport `json:"reportData" validate:"required"`
	CanvasImage  string                 `json:"canvasImage,omitempty"`
}

// Gateway composes and sends notifications for callers holding the shared
// secret.
type Gateway struct {
	mailer   email.Mailer
	secret   []byte
	hashed   bool
	validate *validator.Validate
	logger   *slog.Logger
}

// NewGateway creates a gateway. A secret starting with "$2" is treated as a
// bcrypt hash of the bearer token.
func NewGateway(mailer email.Mailer, secret string, logger *slog.Logger) *Gateway {
	return &Gateway{
		mailer:   mailer,
		secret:   []byte(secret),
		hashed:   strings.HasPrefix(secret, "$2"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Authorize checks a bearer credential.
func (g *Gateway) Authorize(credential string) error {
	if credential == "" || len(g.secret) == 0 {
		return ErrUnauthorized
	}
	if g.hashed {
		if bcrypt.CompareHashAndPassword(g.secret, []byte(credential)) != nil {
			return ErrUnauthorized
		}
		return nil
	}
	if subtle.ConstantTimeCompare(g.secret, []byte(credential)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// SendOperator sends the full report to req.ToEmail.
func (g *Gateway) SendOperator(ctx context.Context, credential string, req OperatorRequest) error {
	const op = "notify.SendOperator"
	if err := g.Authorize(credential); err != nil {
		return err
	}
	return g.sendOperator(ctx, op, req)
}

// SendEmployee sends the employee notice to req.ToEmail.
func (g *Gateway) SendEmployee(ctx context.Context, credential string, req EmployeeRequest) error {
	const op = "notify.SendEmployee"
	if err := g.Authorize(credential); err != nil {
		return err
	}
	return g.sendEmployee(ctx, op, req)
}

// Dispatch authorizes credential and only then decodes body as the request
// of the given kind and sends it.
func (g *Gateway) Dispatch(ctx context.Context, kind domain.NotificationKind, credential string, body io.Reader) error {
	const op = "notify.Dispatch"
	if err := g.Authorize(credential); err != nil {
		return err
	}

	switch kind {
	case domain.NotificationOperator:
		var req OperatorRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return domain.Invalid(op, "invalid request body")
		}
		return g.sendOperator(ctx, op, req)
	case domain.NotificationEmployee:
		var req EmployeeRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return domain.Invalid(op, "invalid request body")
		}
		return g.sendEmployee(ctx, op, req)
	default:
		return domain.Invalid(op, fmt.Sprintf("unknown notification kind %q", kind))
	}
}

func (g *Gateway) sendOperator(ctx context.Context, op string, req OperatorRequest) error {
	if err := g.validate.Struct(req); err != nil {
		return invalidPayload(op, err)
	}
	image, err := decodeCanvas(op, req.CanvasImage)
	if err != nil {
		return err
	}
	msg, err := ComposeOperator(req.ReportData, image)
	if err != nil {
		return domain.Internal(err, op, "failed to compose email")
	}
	msg.To = []string{req.ToEmail}
	return g.send(ctx, op, domain.NotificationOperator, msg)
}

func (g *Gateway) sendEmployee(ctx context.Context, op string, req EmployeeRequest) error {
	if err := g.validate.Struct(req); err != nil {
		return invalidPayload(op, err)
	}
	image, err := decodeCanvas(op, req.CanvasImage)
	if err != nil {
		return err
	}
	msg, err := ComposeEmployee(req.ReportData, req.EmployeeName, image)
	if err != nil {
		return domain.Internal(err, op, "failed to compose email")
	}
	msg.To = []string{req.ToEmail}
	return g.send(ctx, op, domain.NotificationEmployee, msg)
}

func (g *Gateway) send(ctx context.Context, op string, kind domain.NotificationKind, msg email.Message) error {
	if err := g.mailer.Send(ctx, msg); err != nil {
		g.logger.Warn("notification send failed", "kind", kind, "to", msg.To, "error", err)
		return domain.Unavailable(err, op, err.Error())
	}
	g.logger.Info("notification sent", "kind", kind, "to", msg.To)
	return nil
}

func decodeCanvas(op, canvas string) ([]byte, error) {
	image, _, err := domain.DecodeDataURL(canvas)
	if err != nil {
		return nil, domain.Invalid(op, "canvasImage must be an image data URL")
	}
	return image, nil
}

func invalidPayload(op string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := verrs[0].Field()
		switch field {
		case "ToEmail":
			return domain.Invalid(op, "toEmail must be a valid email address")
		case "ReportData":
			return domain.Invalid(op, "reportData is required")
		}
		return domain.Invalid(op, field+" is invalid")
	}
	return domain.Invalid(op, "invalid request body")
}
