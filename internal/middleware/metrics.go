package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/handler"
)

// scrapeRealm is the basic-auth realm announced on /metrics.
const scrapeRealm = "safetyline-metrics"

// ScrapeAuth guards the Prometheus endpoint with HTTP basic auth. Scrapers
// are not API users, so it does not consult the bearer token or the user
// collection.
type ScrapeAuth struct {
	username []byte
	password []byte
	logger   *slog.Logger
}

// NewScrapeAuth creates the guard. Empty credentials leave the endpoint
// open.
func NewScrapeAuth(username, password string, logger *slog.Logger) *ScrapeAuth {
	return &ScrapeAuth{
		username: []byte(username),
		password: []byte(password),
		logger:   logger,
	}
}

// Enabled reports whether credentials are required.
func (a *ScrapeAuth) Enabled() bool {
	return len(a.username) > 0 || len(a.password) > 0
}

// Handler rejects requests that do not carry the configured credentials.
func (a *ScrapeAuth) Handler(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		// Compare both so the response time does not reveal which one failed.
		userMatch := subtle.ConstantTimeCompare([]byte(user), a.username) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), a.password) == 1
		if !ok || !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+scrapeRealm+`"`)
			handler.ErrorResponse(w, r, a.logger, domain.Unauthorized("metrics.scrape", "Metrics credentials required."))
			return
		}
		next.ServeHTTP(w, r)
	})
}
