package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/form"
	"github.com/DukeRupert/safetyline/internal/store"
)

// Row is one line of the report listing table.
type Row struct {
	ID                      string   `json:"id"`
	Revision                int      `json:"revision"`
	CompanyName             string   `json:"companyName"`
	Date                    string   `json:"date"`
	ReportedBy              string   `json:"reportedBy"`
	Category                string   `json:"category"`
	Location                string   `json:"location"`
	IncidentDate            string   `json:"incidentDate"`
	ReportedToOHSDate       string   `json:"reportedToOHSDate"`
	Thumbnails              []string `json:"thumbnails"`
	OrganizationalFactors   string   `json:"organizationalFactors"`
	OtherCircumstances      string   `json:"otherCircumstances"`
	ToolsMaterialsEquipment string   `json:"toolsMaterialsEquipment"`
	WorkSiteConditions      string   `json:"workSiteConditions"`
	Open                    string   `json:"open"`
}

// Scope keeps the reports viewer may see: everything for admins, their own
// company otherwise.
func Scope(viewer *domain.User, reports []domain.IncidentReport) []domain.IncidentReport {
	if viewer.IsAdmin() {
		return reports
	}
	out := make([]domain.IncidentReport, 0, len(reports))
	for _, r := range reports {
		if viewer.CanSeeCompany(r.CompanyName) {
			out = append(out, r)
		}
	}
	return out
}

// SortBySubmission orders reports by submission date, oldest first. The
// sort is stable; reports without a date sort first.
func SortBySubmission(reports []domain.IncidentReport) {
	slices.SortStableFunc(reports, func(a, b domain.IncidentReport) int {
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
}

// Rows projects reports into listing rows, keeping their order.
func Rows(reports []domain.IncidentReport) []Row {
	rows := make([]Row, 0, len(reports))
	for i := range reports {
		r := &reports[i]
		d := r.InjuryData
		row := Row{
			ID:                      r.ID,
			Revision:                r.Revision,
			CompanyName:             r.CompanyName,
			ReportedBy:              r.ReportedBy,
			Category:                d.Category,
			Location:                d.Location,
			IncidentDate:            d.IncidentDateTime,
			ReportedToOHSDate:       d.ReportedToOHSDateTime,
			Thumbnails:              []string{},
			OrganizationalFactors:   d.OrganizationalFactors,
			OtherCircumstances:      d.OtherCircumstances,
			ToolsMaterialsEquipment: d.ToolsMaterialsEquipment,
			WorkSiteConditions:      d.WorkSiteConditions,
			Open:                    "/api/incident-reports/" + r.ID + "/form",
		}
		if !r.SubmittedAt.IsZero() {
			row.Date = r.SubmittedAt.Format(time.RFC3339)
		}
		if url := r.BodyMapImageURL(); url != "" {
			row.Thumbnails = append(row.Thumbnails, url)
		}
		for _, a := range d.Attachments {
			if a.ThumbnailURL != "" {
				row.Thumbnails = append(row.Thumbnails, a.ThumbnailURL)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// =============================================================================
// Listing service
// =============================================================================

// ListingService reads incident reports on behalf of a viewer.
type ListingService struct {
	reports *store.IncidentReports
	logger  *slog.Logger
}

func NewListingService(reports *store.IncidentReports, logger *slog.Logger) *ListingService {
	return &ListingService{reports: reports, logger: logger}
}

// Reports returns the scoped reports sorted by submission date.
func (s *ListingService) Reports(ctx context.Context, viewer *domain.User) ([]domain.IncidentReport, error) {
	const op = "listing.reports"

	var filter store.Filter
	if !viewer.IsAdmin() {
		if viewer.CompanyName == "" {
			return []domain.IncidentReport{}, nil
		}
		filter = store.Filter{"company_name": viewer.CompanyName}
	}
	all, err := s.reports.Find(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list incident reports", "error", err, "op", op)
		return nil, domain.Internal(err, op, "Failed to load incident reports")
	}
	scoped := Scope(viewer, all)
	SortBySubmission(scoped)
	return scoped, nil
}

// List returns the listing rows for viewer.
func (s *ListingService) List(ctx context.Context, viewer *domain.User) ([]Row, error) {
	reports, err := s.Reports(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return Rows(reports), nil
}

// Get returns one report the viewer may see. Reports outside the viewer's
// scope are reported as not found.
func (s *ListingService) Get(ctx context.Context, viewer *domain.User, id string) (*domain.IncidentReport, error) {
	const op = "listing.get"

	r, err := s.reports.Get(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NotFound(op, "incident report", id)
		}
		return nil, domain.Internal(err, op, "Failed to load incident report")
	}
	if !viewer.CanSeeCompany(r.CompanyName) {
		return nil, domain.NotFound(op, "incident report", id)
	}
	return r, nil
}

// Open re-projects a stored report into a prefilled form for resubmission.
func (s *ListingService) Open(ctx context.Context, viewer *domain.User, id string) (*form.IncidentForm, error) {
	r, err := s.Get(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	return form.FromReport(r), nil
}
