package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/form"
	"github.com/DukeRupert/safetyline/internal/store"
)

// PrefillService looks up values a new report starts with.
type PrefillService struct {
	users  *store.Users
	logger *slog.Logger
}

func NewPrefillService(users *store.Users, logger *slog.Logger) *PrefillService {
	return &PrefillService{users: users, logger: logger}
}

// CompletedBy returns the name and title of the user registered with email.
// An unknown user, or a failed lookup, yields an empty Person.
func (s *PrefillService) CompletedBy(ctx context.Context, email string) domain.Person {
	if email == "" {
		return domain.Person{}
	}
	u, err := s.users.ByEmail(ctx, email)
	if err != nil {
		if !store.IsNotFound(err) {
			s.logger.Warn("prefill lookup failed", "email", email, "error", err)
		}
		return domain.Person{}
	}
	return domain.Person{Name: u.FullName, Title: u.Title}
}

// NewForm returns a blank form with the viewer's company and the
// completed-by block filled in.
func (s *PrefillService) NewForm(ctx context.Context, viewer *domain.User) *form.IncidentForm {
	f := form.New()
	f.CompanyID = viewer.CompanyID
	f.CompanyName = viewer.CompanyName
	p := s.CompletedBy(ctx, viewer.Email)
	f.ReportCompletedByName = p.Name
	f.ReportCompletedByTitle = p.Title
	return f
}

// =============================================================================
// Return-to-work plans
// =============================================================================

// ReturnToWorkService validates and stores return-to-work plans.
type ReturnToWorkService struct {
	plans  *store.ReturnToWorkPlans
	now    func() time.Time
	logger *slog.Logger
}

func NewReturnToWorkService(plans *store.ReturnToWorkPlans, logger *slog.Logger) *ReturnToWorkService {
	return &ReturnToWorkService{plans: plans, now: time.Now, logger: logger}
}

// Save validates the worker entries and stores the plan as one document.
// Nothing is written when validation fails.
func (s *ReturnToWorkService) Save(ctx context.Context, viewer *domain.User, f *form.ReturnToWorkForm) (*domain.ReturnToWorkPlan, error) {
	const op = "rtw.save"

	if f == nil || len(f.Workers) == 0 {
		return nil, domain.NewValidationError(op, "workers", "At least one worker is required")
	}
	plan := f.ToPlan(s.now(), viewer.Email)
	if err := form.ValidateReturnToWork(plan); err != nil {
		return nil, err
	}

	if err := s.plans.Create(ctx, plan); err != nil {
		s.logger.Error("failed to save return-to-work plan", "error", err, "op", op)
		return nil, domain.Internal(err, op, "Failed to save return-to-work plan")
	}
	s.logger.Info("return-to-work plan saved", "plan_id", plan.ID, "workers", len(plan.Workers))
	return plan, nil
}
