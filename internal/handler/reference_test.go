package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/export"
	"github.com/DukeRupert/safetyline/internal/service"
	"github.com/DukeRupert/safetyline/internal/store"
)

// =============================================================================
// Reference Data Tests
// =============================================================================

func newReferenceMux(db store.DocumentStore) *http.ServeMux {
	h := NewReferenceHandler(service.NewPrefillService(store.NewUsers(db), discardLogger()), discardLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, passthrough)
	return mux
}

func TestReferenceHandler_BodyDiagram(t *testing.T) {
	rec := serve(newReferenceMux(store.NewMemoryStore()), httptest.NewRequest("GET", "/assets/body-diagram.png", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	assert.NoError(t, err)
}

func TestReferenceHandler_Vocabularies(t *testing.T) {
	rec := serve(newReferenceMux(store.NewMemoryStore()), asUser(httptest.NewRequest("GET", "/api/vocabularies", nil), member))

	require.Equal(t, http.StatusOK, rec.Code)
	var body VocabulariesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.DocumentTypes, body.Groups[domain.GroupDocumentTypes])
	assert.Contains(t, body.Groups[domain.GroupInjuryType], domain.InjuryTypeOther)
	assert.NotEmpty(t, body.RequiredFields)
}

func TestReferenceHandler_Prefill(t *testing.T) {
	db := store.NewMemoryStore()
	require.NoError(t, db.Create(context.Background(), domain.CollectionUsers, member.ID, domain.User{
		ID: member.ID, Email: member.Email, FullName: "Pat Lee", Title: "Site Lead", CompanyName: "Acme",
	}))

	rec := serve(newReferenceMux(db), asUser(httptest.NewRequest("GET", "/api/me/prefill", nil), member))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Pat Lee", body["reportCompletedByName"])
	assert.Equal(t, "Site Lead", body["reportCompletedByTitle"])
	assert.Equal(t, "Acme", body["companyName"])

	rec = serve(newReferenceMux(db), httptest.NewRequest("GET", "/api/me/prefill", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =============================================================================
// Return-To-Work Tests
// =============================================================================

func TestReturnToWorkHandler_Create(t *testing.T) {
	db := store.NewMemoryStore()
	h := NewReturnToWorkHandler(service.NewReturnToWorkService(store.NewReturnToWorkPlans(db), discardLogger()), discardLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, passthrough)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/return-to-work-plans", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		return serve(mux, asUser(req, member))
	}

	t.Run("no workers", func(t *testing.T) {
		rec := post(`{"workers":[]}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body JSONError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body.Error.Fields, "workers")
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := post(`{"workers":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// =============================================================================
// Export Tests
// =============================================================================

func newExportMux(t *testing.T) *http.ServeMux {
	t.Helper()
	db := store.NewMemoryStore()
	for _, u := range []domain.User{
		{ID: "1", FullName: "Pat Lee", Email: "pat@acme.test", CompanyName: "Acme"},
		{ID: "2", FullName: "Kim Roe", Email: "kim@other.test", CompanyName: "Other"},
	} {
		require.NoError(t, db.Create(context.Background(), domain.CollectionUsers, u.ID, u))
	}
	h := NewExportHandler(export.NewService(db, nil, discardLogger()), discardLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, passthrough)
	return mux
}

func TestExportHandler_Download(t *testing.T) {
	mux := newExportMux(t)

	rec := serve(mux, asUser(httptest.NewRequest("GET", "/api/exports/users?format=xlsx", nil), member))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.FormatXLSX.ContentType(), rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="users.xlsx"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, []byte("PK"), rec.Body.Bytes()[:2], "xlsx is a zip archive")
}

func TestExportHandler_DefaultFormat(t *testing.T) {
	rec := serve(newExportMux(t), asUser(httptest.NewRequest("GET", "/api/exports/flha", nil), member))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `attachment; filename="flha.xlsx"`, rec.Header().Get("Content-Disposition"))
}

func TestExportHandler_BadRequest(t *testing.T) {
	mux := newExportMux(t)
	for _, target := range []string{
		"/api/exports/payroll",
		"/api/exports/users?format=csv",
	} {
		rec := serve(mux, asUser(httptest.NewRequest("GET", target, nil), member))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	rec := serve(mux, httptest.NewRequest("GET", "/api/exports/users", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
