package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/email"
	"github.com/DukeRupert/safetyline/internal/notify"
)

const gatewaySecret = "s3cret-gateway-token"

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newGatewayMux(mailer email.Mailer) *http.ServeMux {
	h := NewGatewayHandler(notify.NewGateway(mailer, gatewaySecret, discardLogger()), discardLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, passthrough)
	return mux
}

func gatewayRequest(t *testing.T, path, bearer string, body any) *http.Request {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		raw = []byte(mustJSON(t, b))
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func decodeGateway(t *testing.T, rec *httptest.ResponseRecorder) notify.Response {
	t.Helper()
	var resp notify.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func gatewayReport() *domain.IncidentReport {
	return &domain.IncidentReport{
		ID:          "r1",
		CompanyName: "Acme",
		InjuryData: domain.InjuryData{
			Location:         "Yard 2",
			InjuredEmployees: []domain.InjuredEmployee{{Name: "Pat Lee"}},
		},
	}
}

// =============================================================================
// Gateway Tests
// =============================================================================

func TestGatewayHandler_BadBearerNeverSends(t *testing.T) {
	mailer := &fakeMailer{}
	mux := newGatewayMux(mailer)
	payload := map[string]any{"toEmail": "ops@acme.test", "reportData": gatewayReport()}

	for _, bearer := range []string{"", "wrong", gatewaySecret + "x"} {
		for _, path := range []string{notify.OperatorPath, notify.EmployeePath} {
			rec := serve(mux, gatewayRequest(t, path, bearer, payload))
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			resp := decodeGateway(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, "Unauthorized", resp.Error)
		}
	}
	assert.Zero(t, mailer.count())
}

func TestGatewayHandler_NonBearerScheme(t *testing.T) {
	mailer := &fakeMailer{}
	mux := newGatewayMux(mailer)

	req := gatewayRequest(t, notify.OperatorPath, "", map[string]any{"toEmail": "ops@acme.test", "reportData": gatewayReport()})
	req.Header.Set("Authorization", "Basic "+gatewaySecret)
	rec := serve(mux, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, mailer.count())
}

func TestGatewayHandler_Sends(t *testing.T) {
	mailer := &fakeMailer{}
	mux := newGatewayMux(mailer)

	rec := serve(mux, gatewayRequest(t, notify.OperatorPath, gatewaySecret,
		map[string]any{"toEmail": "ops@acme.test", "reportData": gatewayReport()}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeGateway(t, rec).Success)

	rec = serve(mux, gatewayRequest(t, notify.EmployeePath, gatewaySecret,
		map[string]any{"toEmail": "pat@acme.test", "employeeName": "Pat Lee", "reportData": gatewayReport()}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, 2, mailer.count())
	assert.Equal(t, []string{"ops@acme.test"}, mailer.sent[0].To)
	assert.Equal(t, []string{"pat@acme.test"}, mailer.sent[1].To)
}

func TestGatewayHandler_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"not json", "{"},
		{"missing report", map[string]any{"toEmail": "ops@acme.test"}},
		{"bad address", map[string]any{"toEmail": "not-an-address", "reportData": gatewayReport()}},
		{"bad canvas", map[string]any{"toEmail": "ops@acme.test", "reportData": gatewayReport(), "canvasImage": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &fakeMailer{}
			rec := serve(newGatewayMux(mailer), gatewayRequest(t, notify.OperatorPath, gatewaySecret, tt.body))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeGateway(t, rec)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
			assert.Zero(t, mailer.count())
		})
	}
}

func TestGatewayHandler_SendFailure(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp: 421 service not available")}
	rec := serve(newGatewayMux(mailer), gatewayRequest(t, notify.OperatorPath, gatewaySecret,
		map[string]any{"toEmail": "ops@acme.test", "reportData": gatewayReport()}))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeGateway(t, rec)
	assert.False(t, resp.Success)
	assert.NotContains(t, resp.Error, "421")
}
