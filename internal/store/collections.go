package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/DukeRupert/safetyline/internal/domain"
)

// =============================================================================
// Incident reports
// =============================================================================

// IncidentReports is the incidentReports collection.
type IncidentReports struct {
	db DocumentStore
}

func NewIncidentReports(db DocumentStore) *IncidentReports {
	return &IncidentReports{db: db}
}

// Create assigns a new id and revision 1 and inserts the report.
func (c *IncidentReports) Create(ctx context.Context, r *domain.IncidentReport) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Revision = 1
	return c.db.Create(ctx, domain.CollectionIncidentReports, r.ID, r)
}

// Replace overwrites the stored report. A positive expectedRevision must
// match the stored revision; zero overwrites unconditionally.
func (c *IncidentReports) Replace(ctx context.Context, r *domain.IncidentReport, expectedRevision int) error {
	var opts []ReplaceOption
	if expectedRevision > 0 {
		opts = append(opts, IfRevision(expectedRevision))
	}
	return c.db.Replace(ctx, domain.CollectionIncidentReports, r.ID, r, opts...)
}

func (c *IncidentReports) Get(ctx context.Context, id string) (*domain.IncidentReport, error) {
	var r domain.IncidentReport
	if err := c.db.Get(ctx, domain.CollectionIncidentReports, id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *IncidentReports) Find(ctx context.Context, filter Filter) ([]domain.IncidentReport, error) {
	var out []domain.IncidentReport
	if err := c.db.FindAll(ctx, domain.CollectionIncidentReports, filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// Users, companies, attendance
// =============================================================================

// Users is the read-only users collection.
type Users struct {
	db DocumentStore
}

func NewUsers(db DocumentStore) *Users {
	return &Users{db: db}
}

// ByEmail returns the user registered with email, compared case-insensitively.
func (c *Users) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrNotFound
	}
	// Emails are stored as registered, so the backend compares them folded.
	var out []domain.User
	if err := c.db.FindAll(ctx, domain.CollectionUsers, Filter{"email": Fold(email)}, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

func (c *Users) Find(ctx context.Context, filter Filter) ([]domain.User, error) {
	var out []domain.User
	if err := c.db.FindAll(ctx, domain.CollectionUsers, filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Companies is the read-only company collection.
type Companies struct {
	db DocumentStore
}

func NewCompanies(db DocumentStore) *Companies {
	return &Companies{db: db}
}

// ByCompanyID returns the company with the given company_id.
func (c *Companies) ByCompanyID(ctx context.Context, companyID string) (*domain.Company, error) {
	var out []domain.Company
	if err := c.db.FindAll(ctx, domain.CollectionCompany, Filter{"company_id": companyID}, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

// Attendance is the read-only attendance collection.
type Attendance struct {
	db DocumentStore
}

func NewAttendance(db DocumentStore) *Attendance {
	return &Attendance{db: db}
}

// LastLogins maps each user's full name to their last login in epoch millis.
func (c *Attendance) LastLogins(ctx context.Context) (map[string]int64, error) {
	var out []domain.Attendance
	if err := c.db.FindAll(ctx, domain.CollectionAttendance, nil, &out); err != nil {
		return nil, err
	}
	logins := make(map[string]int64, len(out))
	for _, a := range out {
		logins[a.ID] = a.LastLoginTime
	}
	return logins, nil
}

// =============================================================================
// FLHA and return-to-work plans
// =============================================================================

// FLHAs is the read-only FLHA collection.
type FLHAs struct {
	db DocumentStore
}

func NewFLHAs(db DocumentStore) *FLHAs {
	return &FLHAs{db: db}
}

func (c *FLHAs) Find(ctx context.Context, filter Filter) ([]domain.FLHA, error) {
	var out []domain.FLHA
	if err := c.db.FindAll(ctx, domain.CollectionFLHA, filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReturnToWorkPlans is the returnToWorkPlans collection.
type ReturnToWorkPlans struct {
	db DocumentStore
}

func NewReturnToWorkPlans(db DocumentStore) *ReturnToWorkPlans {
	return &ReturnToWorkPlans{db: db}
}

// Create assigns an id and inserts the plan.
func (c *ReturnToWorkPlans) Create(ctx context.Context, p *domain.ReturnToWorkPlan) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return c.db.Create(ctx, domain.CollectionReturnToWorkPlans, p.ID, p)
}

func (c *ReturnToWorkPlans) Get(ctx context.Context, id string) (*domain.ReturnToWorkPlan, error) {
	var p domain.ReturnToWorkPlan
	if err := c.db.Get(ctx, domain.CollectionReturnToWorkPlans, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
