package form

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"github.com/DukeRupert/safetyline/internal/domain"
)

const validateOp = "form.validate"

// requiredField is one entry of the required scalar list.
type requiredField struct {
	key   string
	label string
}

// requiredFields is checked in order; the first blank field is reported.
var requiredFields = []requiredField{
	{"returnToEmails", "Return-to email"},
	{"dateOfIncident", "Date of incident"},
	{"dateOfReport", "Date of report"},
	{"incidentDescription", "Incident description"},
	{"location", "Location"},
	{"protectiveEquipment", "Protective equipment"},
	{"whyUnsafeConditionsExist", "Why unsafe conditions exist"},
	{"whyUnsafeActsOccur", "Why unsafe acts occur"},
	{"preventionActionsTaken", "Prevention actions taken"},
	{"reportWrittenBy.name", "Report written by: name"},
	{"reportWrittenBy.title", "Report written by: title"},
	{"reportWrittenBy.department", "Report written by: department"},
	{"reportWrittenBy.date", "Report written by: date"},
	{"reportReviewedBy.name", "Report reviewed by: name"},
	{"reportReviewedBy.title", "Report reviewed by: title"},
	{"reportReviewedBy.department", "Report reviewed by: department"},
	{"reportReviewedBy.date", "Report reviewed by: date"},
	{"reportSubmittedBy.name", "Report submitted by: name"},
	{"reportSubmittedBy.signature", "Report submitted by: signature"},
	{"reportSubmittedBy.date", "Report submitted by: date"},
	{"reportReceivedBy.name", "Report received by: name"},
	{"reportReceivedBy.signature", "Report received by: signature"},
	{"reportReceivedBy.date", "Report received by: date"},
}

// RequiredFields returns the keys of the required scalar fields in check order.
func RequiredFields() []string {
	keys := make([]string, len(requiredFields))
	for i, r := range requiredFields {
		keys[i] = r.key
	}
	return keys
}

type rule func(f *IncidentForm) *domain.ValidationError

// rules run in order and validation stops at the first failure. The last
// rules only cover conditional companions of earlier answers.
var rules = []rule{
	requireScalars,
	requireSelection(domain.GroupDocumentTypes, "Select at least one document type"),
	requireEmployees,
	requireSelection(domain.GroupInjuryType, "Select at least one nature of injury"),
	requireConditionsAndActs,
	requireSelection(domain.GroupPreventionSuggestions, "Select at least one prevention suggestion"),
	requireAnswers,
	requireOtherDescriptions,
	requireAddresses,
}

// Validate returns nil when the form can be submitted, otherwise a
// *domain.ValidationError naming the first failing field.
func Validate(f *IncidentForm) error {
	for _, r := range rules {
		if ve := r(f); ve != nil {
			return ve
		}
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func requireScalars(f *IncidentForm) *domain.ValidationError {
	for _, r := range requiredFields {
		if v, _ := f.Get(r.key); blank(v) {
			return domain.NewValidationError(validateOp, r.key, r.label+" is required")
		}
	}
	return nil
}

func requireSelection(group, message string) rule {
	return func(f *IncidentForm) *domain.ValidationError {
		if len(*f.group(group)) == 0 {
			return domain.NewValidationError(validateOp, group, message)
		}
		return nil
	}
}

func requireEmployees(f *IncidentForm) *domain.ValidationError {
	if len(f.InjuredEmployees) == 0 {
		return domain.NewValidationError(validateOp, GroupInjuredEmployees, "Add at least one injured employee")
	}
	for i, e := range f.InjuredEmployees {
		if missing := e.MissingField(); missing != "" {
			return domain.NewValidationError(validateOp,
				fmt.Sprintf("%s[%d].%s", GroupInjuredEmployees, i, missing),
				fmt.Sprintf("Injured employee %d: all fields are required", i+1))
		}
	}
	return nil
}

func requireConditionsAndActs(f *IncidentForm) *domain.ValidationError {
	if len(f.UnsafeWorkplaceConditions) == 0 {
		return domain.NewValidationError(validateOp, domain.GroupUnsafeWorkplaceConditions,
			"Select at least one unsafe workplace condition")
	}
	if len(f.UnsafeActsByPeople) == 0 {
		return domain.NewValidationError(validateOp, domain.GroupUnsafeActsByPeople,
			"Select at least one unsafe act by people")
	}
	return nil
}

func requireAnswers(f *IncidentForm) *domain.ValidationError {
	questions := []struct {
		key   string
		value string
		label string
	}{
		{"workplaceCultureEncouraged", f.WorkplaceCultureEncouraged, "Workplace culture question"},
		{"unsafeActsReported", f.UnsafeActsReported, "Prior reporting question"},
		{"similarIncidentsPrior", f.SimilarIncidentsPrior, "Prior similar incidents question"},
	}
	for _, q := range questions {
		if !domain.IsAnswered(q.value) {
			return domain.NewValidationError(validateOp, q.key, q.label+" must be answered YES or NO")
		}
	}
	return nil
}

func requireOtherDescriptions(f *IncidentForm) *domain.ValidationError {
	if slices.Contains(f.WorkdayIncident, domain.WorkdayIncidentOther) && blank(f.OtherWorkdayIncidentDescription) {
		return domain.NewValidationError(validateOp, "otherWorkdayIncidentDescription", "Describe the other workday activity")
	}
	if slices.Contains(f.InjuryType, domain.InjuryTypeOther) && blank(f.OtherInjuryDescription) {
		return domain.NewValidationError(validateOp, "otherInjuryDescription", "Describe the other injury")
	}
	if f.WorkplaceCultureEncouraged == domain.AnswerYes && blank(f.WorkplaceCultureDescription) {
		return domain.NewValidationError(validateOp, "workplaceCultureDescription", "Describe how the workplace culture encouraged the act")
	}
	return nil
}

func requireAddresses(f *IncidentForm) *domain.ValidationError {
	for _, addr := range domain.SplitAddresses(f.ReturnToEmails) {
		if _, err := mail.ParseAddress(addr); err != nil {
			return domain.NewValidationError(validateOp, "returnToEmails", fmt.Sprintf("%q is not a valid email address", addr))
		}
	}
	for i, e := range f.InjuredEmployees {
		if blank(e.Email) {
			continue
		}
		if _, err := mail.ParseAddress(e.Email); err != nil {
			return domain.NewValidationError(validateOp, fmt.Sprintf("%s[%d].email", GroupInjuredEmployees, i),
				fmt.Sprintf("%q is not a valid email address", e.Email))
		}
	}
	return nil
}
