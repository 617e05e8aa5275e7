package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/draft"
	"github.com/DukeRupert/safetyline/internal/service"
	"github.com/DukeRupert/safetyline/internal/store"
)

type draftFixture struct {
	mux *http.ServeMux
	sub *mockSubmitter
	reg *draft.Registry
}

func newDraftFixture(t *testing.T) *draftFixture {
	t.Helper()
	ctx := context.Background()
	db := store.NewMemoryStore()
	require.NoError(t, db.Create(ctx, domain.CollectionUsers, member.ID, domain.User{
		ID: member.ID, Email: member.Email, FullName: "Pat Lee", Title: "Foreman", CompanyName: "Acme",
	}))
	seedReports(t, db)

	reg := draft.NewRegistry(time.Hour, discardLogger())
	sub := &mockSubmitter{}
	h := NewDraftHandler(
		reg,
		service.NewPrefillService(store.NewUsers(db), discardLogger()),
		service.NewListingService(store.NewIncidentReports(db), discardLogger()),
		sub,
		32<<20,
		discardLogger(),
	)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, passthrough, passthrough)
	return &draftFixture{mux: mux, sub: sub, reg: reg}
}

func (f *draftFixture) do(t *testing.T, method, target string, body any, u *domain.User) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader([]byte(mustJSON(t, body))))
		req.Header.Set("Content-Type", "application/json")
	}
	return serve(f.mux, asUser(req, u))
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) draft.View {
	t.Helper()
	var v draft.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// =============================================================================
// Draft Lifecycle Tests
// =============================================================================

func TestDraftHandler_CreatePrefills(t *testing.T) {
	f := newDraftFixture(t)

	rec := f.do(t, "POST", "/api/drafts", nil, member)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "Acme", v.Form.CompanyName)
	assert.Equal(t, "Pat Lee", v.Form.ReportCompletedByName)
	assert.Equal(t, "Foreman", v.Form.ReportCompletedByTitle)
	assert.False(t, v.Form.Prefilled)
}

func TestDraftHandler_CreateFromReport(t *testing.T) {
	f := newDraftFixture(t)

	rec := f.do(t, "POST", "/api/drafts", map[string]string{"fromReport": "a2"}, member)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Equal(t, "a2", v.Form.ReportID)
	assert.True(t, v.Form.Prefilled)

	rec = f.do(t, "POST", "/api/drafts", map[string]string{"fromReport": "o1"}, member)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other company's report")
	assert.Equal(t, 1, f.reg.Len())
}

func TestDraftHandler_ApplyIsAtomic(t *testing.T) {
	f := newDraftFixture(t)
	id := decodeView(t, f.do(t, "POST", "/api/drafts", nil, member)).ID

	rec := f.do(t, "PATCH", "/api/drafts/"+id, map[string]any{"ops": []draft.Op{
		{Op: draft.OpSet, Field: "location", Value: "Dock 4"},
		{Op: draft.OpToggle, Group: domain.GroupInjuryType, Option: domain.InjuryTypeOther},
	}}, member)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Equal(t, "Dock 4", v.Form.Location)
	assert.Contains(t, v.Form.InjuryType, domain.InjuryTypeOther)

	rec = f.do(t, "PATCH", "/api/drafts/"+id, map[string]any{"ops": []draft.Op{
		{Op: draft.OpSet, Field: "location", Value: "Yard"},
		{Op: "explode"},
	}}, member)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	v = decodeView(t, f.do(t, "GET", "/api/drafts/"+id, nil, member))
	assert.Equal(t, "Dock 4", v.Form.Location, "failed batch leaves the form unchanged")
}

func TestDraftHandler_Strokes(t *testing.T) {
	f := newDraftFixture(t)
	id := decodeView(t, f.do(t, "POST", "/api/drafts", nil, member)).ID

	rec := f.do(t, "POST", "/api/drafts/"+id+"/strokes", map[string]any{"events": []map[string]any{
		{"type": "down", "x": 10, "y": 10},
		{"type": "move", "x": 30, "y": 30},
		{"type": "up"},
	}}, member)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeView(t, rec).Strokes)
}

func TestDraftHandler_Validate(t *testing.T) {
	f := newDraftFixture(t)
	id := decodeView(t, f.do(t, "POST", "/api/drafts", nil, member)).ID

	rec := f.do(t, "POST", "/api/drafts/"+id+"/validate", nil, member)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.EINVALID, body.Error.Code)
	assert.Len(t, body.Error.Fields, 1, "validation stops at the first failing field")
}

func TestDraftHandler_SubmitDiscardsOnSuccess(t *testing.T) {
	f := newDraftFixture(t)
	id := decodeView(t, f.do(t, "POST", "/api/drafts", nil, member)).ID

	req := multipartRequest(t, "POST", "/api/drafts/"+id+"/submit", nil,
		filePart{fieldAttachments, "scene.jpg", []byte("jpeg")})
	rec := serve(f.mux, asUser(req, member))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, f.sub.calls, 1)
	assert.Equal(t, "Acme", f.sub.calls[0].Form.CompanyName)
	assert.Len(t, f.sub.calls[0].Attachments, 1)

	rec = f.do(t, "GET", "/api/drafts/"+id, nil, member)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDraftHandler_SubmitFailureKeepsDraft(t *testing.T) {
	f := newDraftFixture(t)
	f.sub.SubmitFunc = func(context.Context, *domain.User, service.SubmitRequest) (*domain.SubmissionResult, error) {
		return nil, domain.NewValidationError("form.Validate", "location", "Please fill out the Location.")
	}
	id := decodeView(t, f.do(t, "POST", "/api/drafts", nil, member)).ID

	rec := f.do(t, "POST", "/api/drafts/"+id+"/submit", nil, member)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "GET", "/api/drafts/"+id, nil, member)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDraftHandler_OwnerOnly(t *testing.T) {
	f := newDraftFixture(t)
	id := decodeView(t, f.do(t, "POST", "/api/drafts", nil, member)).ID

	other := &domain.User{Email: "kim@acme.test", CompanyName: "Acme"}
	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/drafts/" + id},
		{"POST", "/api/drafts/" + id + "/validate"},
		{"POST", "/api/drafts/" + id + "/submit"},
		{"DELETE", "/api/drafts/" + id},
	} {
		rec := f.do(t, tc.method, tc.path, nil, other)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.method+" "+tc.path)
	}
	assert.Empty(t, f.sub.calls)

	rec := f.do(t, "DELETE", "/api/drafts/"+id, nil, member)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, f.reg.Len())
}
