package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/safetyline/internal/auth"
	"github.com/DukeRupert/safetyline/internal/bodymap"
	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/form"
	"github.com/DukeRupert/safetyline/internal/service"
	"github.com/DukeRupert/safetyline/internal/store"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// mockSubmitter records every request and answers with SubmitFunc.
type mockSubmitter struct {
	SubmitFunc func(ctx context.Context, viewer *domain.User, req service.SubmitRequest) (*domain.SubmissionResult, error)
	calls      []service.SubmitRequest
}

func (m *mockSubmitter) Submit(ctx context.Context, viewer *domain.User, req service.SubmitRequest) (*domain.SubmissionResult, error) {
	m.calls = append(m.calls, req)
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, viewer, req)
	}
	return &domain.SubmissionResult{
		Report: &domain.IncidentReport{ID: "r-new", CompanyName: viewer.CompanyName},
		States: []domain.SubmissionState{domain.StateDraft, domain.StateDone},
	}, nil
}

func passthrough(next http.Handler) http.Handler { return next }

var (
	member = &domain.User{ID: "u1", Email: "pat@acme.test", FullName: "Pat Lee", CompanyName: "Acme", CompanyID: "c-1"}
	admin  = &domain.User{ID: "u0", Email: "root@hq.test", Role: domain.RoleAdmin}
)

func asUser(r *http.Request, u *domain.User) *http.Request {
	if u == nil {
		return r
	}
	return r.WithContext(auth.SetUser(r.Context(), u))
}

type filePart struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 0xFF, A: 0xFF})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newIncidentMux(t *testing.T, sub Submitter, db store.DocumentStore) *http.ServeMux {
	t.Helper()
	listing := service.NewListingService(store.NewIncidentReports(db), discardLogger())
	h := NewIncidentHandler(sub, listing, 32<<20, discardLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, passthrough, passthrough)
	return mux
}

func serve(mux http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Submission Tests
// =============================================================================

func TestIncidentHandler_CreateMultipart(t *testing.T) {
	sub := &mockSubmitter{}
	mux := newIncidentMux(t, sub, store.NewMemoryStore())

	f := form.New()
	f.Location = "Dock 4"
	req := multipartRequest(t, "POST", "/api/incident-reports",
		map[string]string{fieldReport: mustJSON(t, f)},
		filePart{fieldAttachments, "scene.jpg", []byte("jpeg-bytes")},
		filePart{fieldAttachments, "notes.pdf", []byte("%PDF-1.4")},
	)
	rec := serve(mux, asUser(req, member))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, sub.calls, 1)
	got := sub.calls[0]
	require.NotNil(t, got.Form)
	assert.Equal(t, "Dock 4", got.Form.Location)
	assert.Nil(t, got.BodyMap)
	require.Len(t, got.Attachments, 2)
	assert.Equal(t, "scene.jpg", got.Attachments[0].Filename)
	assert.Equal(t, []byte("%PDF-1.4"), got.Attachments[1].Data)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Report submitted successfully.", body["message"])
	assert.Equal(t, false, body["notificationFailed"])
}

func TestIncidentHandler_CreateJSON(t *testing.T) {
	sub := &mockSubmitter{}
	mux := newIncidentMux(t, sub, store.NewMemoryStore())

	payload := map[string]any{"report": form.New()}
	req := httptest.NewRequest("POST", "/api/incident-reports", bytes.NewReader([]byte(mustJSON(t, payload))))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(mux, asUser(req, member))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, sub.calls, 1)
	assert.NotNil(t, sub.calls[0].Form)
}

func TestIncidentHandler_BodyMap(t *testing.T) {
	t.Run("canvas image data url", func(t *testing.T) {
		sub := &mockSubmitter{}
		mux := newIncidentMux(t, sub, store.NewMemoryStore())

		canvas := (&domain.BodyMapImage{PNG: pngBytes(t, 4, 3)}).DataURL()
		req := multipartRequest(t, "POST", "/api/incident-reports", map[string]string{
			fieldReport:      mustJSON(t, form.New()),
			fieldCanvasImage: canvas,
		})
		rec := serve(mux, asUser(req, member))

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		img := sub.calls[0].BodyMap
		require.NotNil(t, img)
		assert.Equal(t, 4, img.Width)
		assert.Equal(t, 3, img.Height)
	})

	t.Run("recorded events are flattened", func(t *testing.T) {
		sub := &mockSubmitter{}
		mux := newIncidentMux(t, sub, store.NewMemoryStore())

		events := `[{"type":"down","x":20,"y":20},{"type":"move","x":40,"y":40},{"type":"up"}]`
		req := multipartRequest(t, "POST", "/api/incident-reports", map[string]string{
			fieldReport:  mustJSON(t, form.New()),
			fieldBodyMap: events,
		})
		rec := serve(mux, asUser(req, member))

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		img := sub.calls[0].BodyMap
		require.NotNil(t, img)
		assert.NotEmpty(t, img.PNG)
	})

	t.Run("invalid input never reaches the service", func(t *testing.T) {
		tests := []struct {
			name   string
			fields map[string]string
		}{
			{"unknown event", map[string]string{fieldBodyMap: `[{"type":"scribble"}]`}},
			{"event list not json", map[string]string{fieldBodyMap: `{`}},
			{"canvas not a data url", map[string]string{fieldCanvasImage: "https://example.com/a.png"}},
			{"canvas too wide", map[string]string{fieldCanvasImage: (&domain.BodyMapImage{PNG: pngBytes(t, bodymap.MaxSide+1, 1)}).DataURL()}},
			{"canvas too tall", map[string]string{fieldCanvasImage: (&domain.BodyMapImage{PNG: pngBytes(t, 1, bodymap.MaxSide+1)}).DataURL()}},
			{"oversize resize event", map[string]string{fieldBodyMap: `[{"type":"resize","width":40000,"height":40000}]`}},
			{"report not json", map[string]string{fieldReport: "location=Dock"}},
			{"bad revision", map[string]string{fieldRevision: "two"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				sub := &mockSubmitter{}
				mux := newIncidentMux(t, sub, store.NewMemoryStore())
				if _, ok := tt.fields[fieldReport]; !ok {
					tt.fields[fieldReport] = mustJSON(t, form.New())
				}
				rec := serve(mux, asUser(multipartRequest(t, "POST", "/api/incident-reports", tt.fields), member))
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Empty(t, sub.calls)
			})
		}
	})
}

func TestIncidentHandler_Resubmit(t *testing.T) {
	sub := &mockSubmitter{}
	mux := newIncidentMux(t, sub, store.NewMemoryStore())

	f := form.New()
	f.ReportID = "from-form"
	req := multipartRequest(t, "PUT", "/api/incident-reports/r-7", map[string]string{
		fieldReport:   mustJSON(t, f),
		fieldRevision: "3",
	})
	rec := serve(mux, asUser(req, member))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, sub.calls, 1)
	assert.Equal(t, "r-7", sub.calls[0].ReportID)
	assert.Equal(t, 3, sub.calls[0].Revision)
}

func TestIncidentHandler_SubmitErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.NewValidationError("form.Validate", "location", "Please fill out the Location."), http.StatusBadRequest},
		{"stale revision", domain.Conflict("submission.persist", "report was changed by someone else"), http.StatusConflict},
		{"attachment too large", domain.TooLarge("submission.validate", "attachment too large"), http.StatusRequestEntityTooLarge},
		{"blob store down", domain.Unavailable(nil, "submission.upload", "attachment upload failed"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &mockSubmitter{SubmitFunc: func(context.Context, *domain.User, service.SubmitRequest) (*domain.SubmissionResult, error) {
				return nil, tt.err
			}}
			mux := newIncidentMux(t, sub, store.NewMemoryStore())
			req := multipartRequest(t, "POST", "/api/incident-reports", map[string]string{fieldReport: mustJSON(t, form.New())})
			rec := serve(mux, asUser(req, member))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestIncidentHandler_RequiresUser(t *testing.T) {
	sub := &mockSubmitter{}
	mux := newIncidentMux(t, sub, store.NewMemoryStore())

	for _, req := range []*http.Request{
		multipartRequest(t, "POST", "/api/incident-reports", map[string]string{fieldReport: "{}"}),
		httptest.NewRequest("GET", "/api/incident-reports", nil),
		httptest.NewRequest("GET", "/api/incident-reports/r1", nil),
	} {
		rec := serve(mux, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, req.URL.Path)
	}
	assert.Empty(t, sub.calls)
}

// =============================================================================
// Listing Tests
// =============================================================================

func seedReports(t *testing.T, db store.DocumentStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, r := range []domain.IncidentReport{
		{ID: "a1", CompanyName: "Acme", SubmittedAt: base},
		{ID: "a2", CompanyName: "Acme", SubmittedAt: base.Add(time.Hour)},
		{ID: "o1", CompanyName: "Other", SubmittedAt: base.Add(2 * time.Hour)},
	} {
		r.Revision = i + 1
		require.NoError(t, db.Create(ctx, domain.CollectionIncidentReports, r.ID, r))
	}
}

func TestIncidentHandler_List(t *testing.T) {
	db := store.NewMemoryStore()
	seedReports(t, db)
	mux := newIncidentMux(t, &mockSubmitter{}, db)

	ids := func(rec *httptest.ResponseRecorder) []string {
		var body struct {
			Reports []service.Row `json:"reports"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		out := make([]string, 0, len(body.Reports))
		for _, row := range body.Reports {
			out = append(out, row.ID)
		}
		return out
	}

	rec := serve(mux, asUser(httptest.NewRequest("GET", "/api/incident-reports", nil), member))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids(rec))

	rec = serve(mux, asUser(httptest.NewRequest("GET", "/api/incident-reports", nil), admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"a1", "a2", "o1"}, ids(rec))
}

func TestIncidentHandler_ShowIsScoped(t *testing.T) {
	db := store.NewMemoryStore()
	seedReports(t, db)
	mux := newIncidentMux(t, &mockSubmitter{}, db)

	rec := serve(mux, asUser(httptest.NewRequest("GET", "/api/incident-reports/a1", nil), member))
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.IncidentReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "a1", got.ID)

	rec = serve(mux, asUser(httptest.NewRequest("GET", "/api/incident-reports/o1", nil), member))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(mux, asUser(httptest.NewRequest("GET", "/api/incident-reports/missing", nil), admin))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIncidentHandler_Form(t *testing.T) {
	db := store.NewMemoryStore()
	seedReports(t, db)
	mux := newIncidentMux(t, &mockSubmitter{}, db)

	rec := serve(mux, asUser(httptest.NewRequest("GET", "/api/incident-reports/a2/form", nil), member))
	require.Equal(t, http.StatusOK, rec.Code)
	var f form.IncidentForm
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, "a2", f.ReportID)
	assert.Equal(t, 2, f.Revision)
	assert.True(t, f.Prefilled)
}
