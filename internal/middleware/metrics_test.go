package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DukeRupert/safetyline/internal/domain"
)

// =============================================================================
// Scrape Auth Tests
// =============================================================================

func scrapeTarget() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("safetyline_jobs_processed_total 3"))
	})
}

func TestScrapeAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := NewScrapeAuth("prometheus", "scrape-secret", logger).Handler(scrapeTarget())

	tests := []struct {
		name       string
		user, pass string
		basic      bool
		wantStatus int
	}{
		{"valid credentials", "prometheus", "scrape-secret", true, http.StatusOK},
		{"no credentials", "", "", false, http.StatusUnauthorized},
		{"wrong username", "grafana", "scrape-secret", true, http.StatusUnauthorized},
		{"wrong password", "prometheus", "guess", true, http.StatusUnauthorized},
		{"empty password", "prometheus", "", true, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			if tt.basic {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			guard.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				return
			}

			if got := rec.Header().Get("WWW-Authenticate"); got != `Basic realm="safetyline-metrics"` {
				t.Errorf("WWW-Authenticate = %q", got)
			}
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if body.Error.Code != domain.EUNAUTHORIZED {
				t.Errorf("error code = %q, want %q", body.Error.Code, domain.EUNAUTHORIZED)
			}
		})
	}
}

func TestScrapeAuth_DisabledWithoutCredentials(t *testing.T) {
	a := NewScrapeAuth("", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if a.Enabled() {
		t.Fatal("Enabled() = true with no credentials")
	}

	rec := httptest.NewRecorder()
	a.Handler(scrapeTarget()).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestScrapeAuth_PasswordOnlyIsEnabled(t *testing.T) {
	a := NewScrapeAuth("", "scrape-secret", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !a.Enabled() {
		t.Fatal("Enabled() = false with a password set")
	}
}
