package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/metrics"
	"github.com/DukeRupert/safetyline/internal/service"
	"github.com/DukeRupert/safetyline/internal/store"
)

// File is a generated export. It is handed to the caller and never stored.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Service loads the records a viewer may see and writes them out.
type Service struct {
	users      *store.Users
	flhas      *store.FLHAs
	companies  *store.Companies
	attendance *store.Attendance
	reports    *service.ListingService
	fetcher    ImageFetcher
	logger     *slog.Logger
	now        func() time.Time
	location   *time.Location
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLocation sets the time zone dates are printed in. The default is UTC.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) { s.location = loc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(db store.DocumentStore, fetcher ImageFetcher, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		users:      store.NewUsers(db),
		flhas:      store.NewFLHAs(db),
		companies:  store.NewCompanies(db),
		attendance: store.NewAttendance(db),
		reports:    service.NewListingService(store.NewIncidentReports(db), logger),
		fetcher:    fetcher,
		logger:     logger,
		now:        time.Now,
		location:   time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export builds and writes the kind export for viewer.
func (s *Service) Export(ctx context.Context, viewer *domain.User, kind Kind, format Format) (*File, error) {
	const op = "export.export"

	records, err := s.load(ctx, viewer, kind)
	if err != nil {
		return nil, err
	}

	bctx := Context{Format: format, Location: s.location}
	if kind == KindUsers {
		logins, err := s.attendance.LastLogins(ctx)
		if err != nil {
			s.logger.Warn("failed to load attendance", "error", err)
		}
		bctx.LastLogins = logins
	}

	table, err := Build(kind, records, bctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch format {
	case FormatPDF:
		stats, err := WritePDF(ctx, &buf, table, s.cover(ctx, viewer), s.fetcher, s.logger)
		if err != nil {
			s.logger.Error("failed to write pdf export", "kind", string(kind), "error", err)
			return nil, domain.Internal(err, op, "Failed to generate export")
		}
		s.logger.Info("pdf export generated",
			"kind", string(kind),
			"rows", table.Len(),
			"pages", stats.Pages,
			"image_failures", stats.ImageFailures,
		)
	default:
		if err := WriteXLSX(&buf, table); err != nil {
			s.logger.Error("failed to write spreadsheet export", "kind", string(kind), "error", err)
			return nil, domain.Internal(err, op, "Failed to generate export")
		}
		s.logger.Info("spreadsheet export generated", "kind", string(kind), "rows", table.Len())
	}

	metrics.ExportGenerated(string(kind), string(format))
	return &File{
		Name:        fmt.Sprintf("%s.%s", kind, format),
		ContentType: format.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

// load returns the viewer's records of kind: every company's for admins,
// their own company's otherwise.
func (s *Service) load(ctx context.Context, viewer *domain.User, kind Kind) (any, error) {
	const op = "export.load"

	var filter store.Filter
	if !viewer.IsAdmin() {
		if viewer.CompanyName == "" {
			return empty(kind)
		}
	}

	switch kind {
	case KindUsers:
		if !viewer.IsAdmin() {
			filter = store.Filter{"companyName": viewer.CompanyName}
		}
		users, err := s.users.Find(ctx, filter)
		if err != nil {
			return nil, domain.Internal(err, op, "Failed to load users")
		}
		return users, nil
	case KindFLHA:
		if !viewer.IsAdmin() {
			filter = store.Filter{"company_name": viewer.CompanyName}
		}
		flhas, err := s.flhas.Find(ctx, filter)
		if err != nil {
			return nil, domain.Internal(err, op, "Failed to load FLHA records")
		}
		return flhas, nil
	case KindInjuryReports:
		return s.reports.Reports(ctx, viewer)
	}
	return nil, domain.Invalid(op, fmt.Sprintf("unknown export %q", kind))
}

func empty(kind Kind) (any, error) {
	switch kind {
	case KindUsers:
		return []domain.User{}, nil
	case KindFLHA:
		return []domain.FLHA{}, nil
	case KindInjuryReports:
		return []domain.IncidentReport{}, nil
	}
	return nil, domain.Invalid("export.load", fmt.Sprintf("unknown export %q", kind))
}

func (s *Service) cover(ctx context.Context, viewer *domain.User) Cover {
	c := Cover{
		CompanyName: viewer.CompanyName,
		PrintedBy:   viewer.FullName,
		PreparedBy:  viewer.Email,
		GeneratedAt: s.now().In(s.location),
	}
	if c.PrintedBy == "" {
		c.PrintedBy = viewer.Email
	}
	if viewer.CompanyID == "" {
		return c
	}
	company, err := s.companies.ByCompanyID(ctx, viewer.CompanyID)
	if err != nil {
		s.logger.Warn("company not found for export cover", "company_id", viewer.CompanyID, "error", err)
		return c
	}
	c.LogoURL = company.Logo
	if company.Name != "" {
		c.CompanyName = company.Name
	}
	return c
}
