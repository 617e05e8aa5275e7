package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DukeRupert/safetyline/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serveError(err error) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/incident-reports", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, discardLogger(), err)
	return rec
}

// =============================================================================
// Error Response Tests - Security Focus
// =============================================================================

func TestValidationErrorResponse_DoesNotExposeOperationName(t *testing.T) {
	ve := domain.NewValidationError("form.Validate", "injuredEmployees[0].email", "Please fill out the Email.")
	rec := serveError(ve)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	body := rec.Body.String()
	if strings.Contains(body, "form.Validate") {
		t.Errorf("response exposes internal operation name: %s", body)
	}

	var got JSONError
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Error.Code != domain.EINVALID {
		t.Errorf("code = %q, want %q", got.Error.Code, domain.EINVALID)
	}
	if got.Error.Fields["injuredEmployees[0].email"] != "Please fill out the Email." {
		t.Errorf("fields = %v", got.Error.Fields)
	}
}

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	dbErr := &mockDatabaseError{message: "pq: relation \"documents\" does not exist"}
	rec := serveError(domain.Internal(dbErr, "store.Create", "Database query failed"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	body := rec.Body.String()
	for _, leak := range []string{"pq:", "relation", "store.Create"} {
		if strings.Contains(body, leak) {
			t.Errorf("response exposes %q: %s", leak, body)
		}
	}
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain generic internal error message, got: %s", body)
	}
}

func TestErrorResponse_UnwrappedErrorReturnsGeneric(t *testing.T) {
	rec := serveError(&mockDatabaseError{message: "FATAL: password authentication failed for user \"postgres\""})

	body := rec.Body.String()
	if strings.Contains(body, "FATAL") || strings.Contains(body, "postgres") {
		t.Errorf("response exposes raw error: %s", body)
	}
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain generic message, got: %s", body)
	}
}

func TestErrorResponse_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.NotFound("listing.get", "incident report", "r1"), http.StatusNotFound},
		{"stale revision", domain.Conflict("submission.persist", "report was changed"), http.StatusConflict},
		{"too large", domain.TooLarge("submission.upload", "attachment too large"), http.StatusRequestEntityTooLarge},
		{"blob store down", domain.Unavailable(errors.New("timeout"), "submission.upload", "attachment upload failed"), http.StatusBadGateway},
		{"unauthorized", domain.Unauthorized("auth", "bad token"), http.StatusUnauthorized},
		{"rate limit", domain.RateLimit("ratelimit"), http.StatusTooManyRequests},
		{"wrapped validation", errors.Join(domain.NewValidationError("op", "location", "required")), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serveError(tt.err); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// mockDatabaseError simulates a database error for testing
type mockDatabaseError struct {
	message string
}

func (e *mockDatabaseError) Error() string {
	return e.message
}
