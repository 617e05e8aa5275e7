package form

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/DukeRupert/safetyline/internal/domain"
)

// ReturnToWorkForm is the authoring state of a return-to-work plan.
type ReturnToWorkForm struct {
	Workers []domain.Worker `json:"workers"`
}

// NewReturnToWork returns a plan form with one blank worker.
func NewReturnToWork() *ReturnToWorkForm {
	return &ReturnToWorkForm{Workers: []domain.Worker{blankWorker()}}
}

func blankWorker() domain.Worker {
	return domain.Worker{EmployeeStatus: []string{}, ReviewChecklist: []string{}}
}

// AddWorker appends a blank worker sub-form.
func (f *ReturnToWorkForm) AddWorker() {
	f.Workers = Append(f.Workers, blankWorker())
}

// RemoveWorker removes the worker at index; the last worker stays.
func (f *ReturnToWorkForm) RemoveWorker(index int) {
	f.Workers = RemoveAt(f.Workers, index)
}

var workerFields = map[string]func(w *domain.Worker) *string{
	"returnToEmail":           func(w *domain.Worker) *string { return &w.ReturnToEmail },
	"injuredWorkerName":       func(w *domain.Worker) *string { return &w.InjuredWorkerName },
	"titleRole":               func(w *domain.Worker) *string { return &w.TitleRole },
	"supervisorName":          func(w *domain.Worker) *string { return &w.SupervisorName },
	"departmentArea":          func(w *domain.Worker) *string { return &w.DepartmentArea },
	"scheduledReturnToWorkOn": func(w *domain.Worker) *string { return &w.ScheduledReturnToWorkOn },
	"dateOfReturn":            func(w *domain.Worker) *string { return &w.DateOfReturn },
	"timeOfReturn":            func(w *domain.Worker) *string { return &w.TimeOfReturn },
	"partialDayHours":         func(w *domain.Worker) *string { return &w.PartialDayHours },
	"partialDayStartTime":     func(w *domain.Worker) *string { return &w.PartialDayStartTime },
	"partialDayEndTime":       func(w *domain.Worker) *string { return &w.PartialDayEndTime },
	"employeeNameAgreement":   func(w *domain.Worker) *string { return &w.EmployeeNameAgreement },
	"employeeSignature":       func(w *domain.Worker) *string { return &w.EmployeeSignature },
	"employeeDate":            func(w *domain.Worker) *string { return &w.EmployeeDate },
	"supervisorNameAgreement": func(w *domain.Worker) *string { return &w.SupervisorNameAgreement },
	"supervisorSignature":     func(w *domain.Worker) *string { return &w.SupervisorSignature },
	"supervisorDate":          func(w *domain.Worker) *string { return &w.SupervisorDate },
}

// SetWorkerField sets one scalar field of the worker at index.
func (f *ReturnToWorkForm) SetWorkerField(index int, field, value string) error {
	ref, ok := workerFields[field]
	if !ok {
		return domain.Invalid("rtw.set", fmt.Sprintf("unknown worker field %q", field))
	}
	workers, ok := UpdateAt(f.Workers, index, func(w domain.Worker) domain.Worker {
		*ref(&w) = value
		return w
	})
	if !ok {
		return domain.Invalid("rtw.set", fmt.Sprintf("no worker %d", index))
	}
	f.Workers = workers
	return nil
}

// ToggleWorkerOption toggles a status or checklist option of the worker at index.
func (f *ReturnToWorkForm) ToggleWorkerOption(index int, group, option string) error {
	if group != domain.GroupEmployeeStatus && group != domain.GroupReviewChecklist {
		return domain.Invalid("rtw.toggle", fmt.Sprintf("unknown option group %q", group))
	}
	if !domain.IsOption(group, option) {
		return domain.Invalid("rtw.toggle", fmt.Sprintf("%q is not an option of %s", option, group))
	}
	workers, ok := UpdateAt(f.Workers, index, func(w domain.Worker) domain.Worker {
		if group == domain.GroupEmployeeStatus {
			w.EmployeeStatus = ToggleOption(w.EmployeeStatus, option)
		} else {
			w.ReviewChecklist = ToggleOption(w.ReviewChecklist, option)
		}
		return w
	})
	if !ok {
		return domain.Invalid("rtw.toggle", fmt.Sprintf("no worker %d", index))
	}
	f.Workers = workers
	return nil
}

// ToPlan builds the stored plan document.
func (f *ReturnToWorkForm) ToPlan(now time.Time, createdBy string) *domain.ReturnToWorkPlan {
	workers := make([]domain.Worker, len(f.Workers))
	for i, w := range f.Workers {
		workers[i] = trimWorker(w)
	}
	return &domain.ReturnToWorkPlan{
		CreatedAt: now.UTC(),
		CreatedBy: createdBy,
		Workers:   workers,
	}
}

func trimWorker(w domain.Worker) domain.Worker {
	for _, ref := range workerFields {
		p := ref(&w)
		*p = strings.TrimSpace(*p)
	}
	return w
}

// =============================================================================
// Validation
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names rather than Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateReturnToWork checks every worker of the plan and returns the first
// failure as a *domain.ValidationError keyed like "workers[1].dateOfReturn".
func ValidateReturnToWork(plan *domain.ReturnToWorkPlan) error {
	const op = "rtw.validate"

	trimmed := *plan
	trimmed.Workers = make([]domain.Worker, len(plan.Workers))
	for i, w := range plan.Workers {
		trimmed.Workers[i] = trimWorker(w)
	}

	if err := validate.Struct(&trimmed); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return domain.Internal(err, op, "plan validation failed")
		}
		fe := verrs[0]
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		return domain.NewValidationError(op, field, workerMessage(fe))
	}

	for i, w := range trimmed.Workers {
		if !w.WorksPartialDay() {
			continue
		}
		partial := []struct{ key, value string }{
			{"partialDayHours", w.PartialDayHours},
			{"partialDayStartTime", w.PartialDayStartTime},
			{"partialDayEndTime", w.PartialDayEndTime},
		}
		for _, p := range partial {
			if p.value == "" {
				return domain.NewValidationError(op, fmt.Sprintf("workers[%d].%s", i, p.key),
					"Partial day schedule is required when working a partial day")
			}
		}
	}
	return nil
}

func workerMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " needs at least one selection"
	case "email":
		return fe.Field() + " must be a valid email address"
	}
	return fe.Field() + " is invalid"
}
