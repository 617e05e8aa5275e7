// Package form holds the in-progress incident report and return-to-work
// plan before they become stored documents.
//
// The form is a typed record: scalar fields are addressed by their json key
// through Set, option groups through Toggle, and repeatable groups through
// AppendRow, UpdateRow and RemoveRow. Nothing in this package performs I/O.
package form

import (
	"fmt"
	"slices"

	"github.com/DukeRupert/safetyline/internal/domain"
)

// Repeatable group keys.
const (
	GroupInjuredEmployees  = "injuredEmployees"
	GroupWitnesses         = "witnesses"
	GroupInvestigationTeam = "investigationTeamMembers"
)

// IncidentForm is the authoring state of one incident report.
type IncidentForm struct {
	// Set when the form was opened from a stored report.
	ReportID  string `json:"reportId,omitempty"`
	Revision  int    `json:"revision,omitempty"`
	Prefilled bool   `json:"prefilled,omitempty"`

	CompanyID   string `json:"companyId"`
	CompanyName string `json:"companyName"`

	ReturnToEmails                  string   `json:"returnToEmails"`
	DocumentTypes                   []string `json:"documentTypes"`
	WorkdayIncident                 []string `json:"workdayIncident"`
	OtherWorkdayIncidentDescription string   `json:"otherWorkdayIncidentDescription"`

	ReportCompletedByName  string `json:"reportCompletedByName"`
	ReportCompletedByTitle string `json:"reportCompletedByTitle"`

	DateOfIncident string `json:"dateOfIncident"`
	DateOfReport   string `json:"dateOfReport"`
	Location       string `json:"location"`

	InjuredEmployees       []domain.InjuredEmployee `json:"injuredEmployees"`
	InjuryType             []string                 `json:"injuryType"`
	OtherInjuryDescription string                   `json:"otherInjuryDescription"`
	NatureOfInjury         string                   `json:"natureOfInjury"`
	Witnesses              []string                 `json:"witnesses"`

	ProtectiveEquipment   string `json:"protectiveEquipment"`
	IncidentDescription   string `json:"incidentDescription"`
	OrganizationalFactors string `json:"organizationalFactors"`
	OtherCircumstances    string `json:"otherCircumstances"`

	UnsafeWorkplaceConditions      []string `json:"unsafeWorkplaceConditions"`
	UnsafeWorkplaceConditionsOther string   `json:"unsafeWorkplaceConditionsOther"`
	UnsafeActsByPeople             []string `json:"unsafeActsByPeople"`
	UnsafeActsByPeopleOther        string   `json:"unsafeActsByPeopleOther"`

	WorkplaceCultureEncouraged  string `json:"workplaceCultureEncouraged"`
	WorkplaceCultureDescription string `json:"workplaceCultureDescription"`
	UnsafeActsReported          string `json:"unsafeActsReported"`
	SimilarIncidentsPrior       string `json:"similarIncidentsPrior"`

	WhyUnsafeConditionsExist string `json:"whyUnsafeConditionsExist"`
	WhyUnsafeActsOccur       string `json:"whyUnsafeActsOccur"`

	PreventionSuggestions      []string `json:"preventionSuggestions"`
	PreventionSuggestionsOther string   `json:"preventionSuggestionsOther"`
	PreventionActionsTaken     string   `json:"preventionActionsTaken"`

	ReportWrittenBy          domain.ReviewSignature `json:"reportWrittenBy"`
	ReportReviewedBy         domain.ReviewSignature `json:"reportReviewedBy"`
	InvestigationTeamMembers []domain.Person        `json:"investigationTeamMembers"`
	ReportSubmittedBy        domain.HandSignature   `json:"reportSubmittedBy"`
	ReportReceivedBy         domain.HandSignature   `json:"reportReceivedBy"`

	// Carried over from a stored report so a resubmission keeps them.
	Attachments  []domain.Attachment `json:"attachments,omitempty"`
	BodyMapImage string              `json:"bodyMapImage,omitempty"`
}

// New returns a blank form with one editable row in every repeatable group.
func New() *IncidentForm {
	return &IncidentForm{
		DocumentTypes:             []string{},
		WorkdayIncident:           []string{},
		InjuredEmployees:          []domain.InjuredEmployee{{}},
		InjuryType:                []string{},
		Witnesses:                 []string{""},
		UnsafeWorkplaceConditions: []string{},
		UnsafeActsByPeople:        []string{},
		PreventionSuggestions:     []string{},
		InvestigationTeamMembers:  []domain.Person{{}},
	}
}

// Clone returns a deep copy of the form.
func (f *IncidentForm) Clone() *IncidentForm {
	c := *f
	c.DocumentTypes = slices.Clone(f.DocumentTypes)
	c.WorkdayIncident = slices.Clone(f.WorkdayIncident)
	c.InjuredEmployees = slices.Clone(f.InjuredEmployees)
	c.InjuryType = slices.Clone(f.InjuryType)
	c.Witnesses = slices.Clone(f.Witnesses)
	c.UnsafeWorkplaceConditions = slices.Clone(f.UnsafeWorkplaceConditions)
	c.UnsafeActsByPeople = slices.Clone(f.UnsafeActsByPeople)
	c.PreventionSuggestions = slices.Clone(f.PreventionSuggestions)
	c.InvestigationTeamMembers = slices.Clone(f.InvestigationTeamMembers)
	c.Attachments = slices.Clone(f.Attachments)
	return &c
}

// =============================================================================
// Scalar fields
// =============================================================================

// scalarFields maps every settable key to the string it addresses.
var scalarFields = map[string]func(f *IncidentForm) *string{
	"companyId":                       func(f *IncidentForm) *string { return &f.CompanyID },
	"companyName":                     func(f *IncidentForm) *string { return &f.CompanyName },
	"returnToEmails":                  func(f *IncidentForm) *string { return &f.ReturnToEmails },
	"otherWorkdayIncidentDescription": func(f *IncidentForm) *string { return &f.OtherWorkdayIncidentDescription },
	"reportCompletedByName":           func(f *IncidentForm) *string { return &f.ReportCompletedByName },
	"reportCompletedByTitle":          func(f *IncidentForm) *string { return &f.ReportCompletedByTitle },
	"dateOfIncident":                  func(f *IncidentForm) *string { return &f.DateOfIncident },
	"dateOfReport":                    func(f *IncidentForm) *string { return &f.DateOfReport },
	"location":                        func(f *IncidentForm) *string { return &f.Location },
	"otherInjuryDescription":          func(f *IncidentForm) *string { return &f.OtherInjuryDescription },
	"natureOfInjury":                  func(f *IncidentForm) *string { return &f.NatureOfInjury },
	"protectiveEquipment":             func(f *IncidentForm) *string { return &f.ProtectiveEquipment },
	"incidentDescription":             func(f *IncidentForm) *string { return &f.IncidentDescription },
	"organizationalFactors":           func(f *IncidentForm) *string { return &f.OrganizationalFactors },
	"otherCircumstances":              func(f *IncidentForm) *string { return &f.OtherCircumstances },
	"unsafeWorkplaceConditionsOther":  func(f *IncidentForm) *string { return &f.UnsafeWorkplaceConditionsOther },
	"unsafeActsByPeopleOther":         func(f *IncidentForm) *string { return &f.UnsafeActsByPeopleOther },
	"workplaceCultureEncouraged":      func(f *IncidentForm) *string { return &f.WorkplaceCultureEncouraged },
	"workplaceCultureDescription":     func(f *IncidentForm) *string { return &f.WorkplaceCultureDescription },
	"unsafeActsReported":              func(f *IncidentForm) *string { return &f.UnsafeActsReported },
	"similarIncidentsPrior":           func(f *IncidentForm) *string { return &f.SimilarIncidentsPrior },
	"whyUnsafeConditionsExist":        func(f *IncidentForm) *string { return &f.WhyUnsafeConditionsExist },
	"whyUnsafeActsOccur":              func(f *IncidentForm) *string { return &f.WhyUnsafeActsOccur },
	"preventionSuggestionsOther":      func(f *IncidentForm) *string { return &f.PreventionSuggestionsOther },
	"preventionActionsTaken":          func(f *IncidentForm) *string { return &f.PreventionActionsTaken },

	"reportWrittenBy.name":        func(f *IncidentForm) *string { return &f.ReportWrittenBy.Name },
	"reportWrittenBy.title":       func(f *IncidentForm) *string { return &f.ReportWrittenBy.Title },
	"reportWrittenBy.department":  func(f *IncidentForm) *string { return &f.ReportWrittenBy.Department },
	"reportWrittenBy.date":        func(f *IncidentForm) *string { return &f.ReportWrittenBy.Date },
	"reportReviewedBy.name":       func(f *IncidentForm) *string { return &f.ReportReviewedBy.Name },
	"reportReviewedBy.title":      func(f *IncidentForm) *string { return &f.ReportReviewedBy.Title },
	"reportReviewedBy.department": func(f *IncidentForm) *string { return &f.ReportReviewedBy.Department },
	"reportReviewedBy.date":       func(f *IncidentForm) *string { return &f.ReportReviewedBy.Date },
	"reportSubmittedBy.name":      func(f *IncidentForm) *string { return &f.ReportSubmittedBy.Name },
	"reportSubmittedBy.signature": func(f *IncidentForm) *string { return &f.ReportSubmittedBy.Signature },
	"reportSubmittedBy.date":      func(f *IncidentForm) *string { return &f.ReportSubmittedBy.Date },
	"reportReceivedBy.name":       func(f *IncidentForm) *string { return &f.ReportReceivedBy.Name },
	"reportReceivedBy.signature":  func(f *IncidentForm) *string { return &f.ReportReceivedBy.Signature },
	"reportReceivedBy.date":       func(f *IncidentForm) *string { return &f.ReportReceivedBy.Date },
}

// Set replaces the value of one scalar field.
func (f *IncidentForm) Set(field, value string) error {
	ref, ok := scalarFields[field]
	if !ok {
		return domain.Invalid("form.set", fmt.Sprintf("unknown field %q", field))
	}
	*ref(f) = value
	return nil
}

// Get returns the value of one scalar field.
func (f *IncidentForm) Get(field string) (string, bool) {
	ref, ok := scalarFields[field]
	if !ok {
		return "", false
	}
	return *ref(f), true
}

// =============================================================================
// Option groups
// =============================================================================

func (f *IncidentForm) group(name string) *[]string {
	switch name {
	case domain.GroupDocumentTypes:
		return &f.DocumentTypes
	case domain.GroupWorkdayIncident:
		return &f.WorkdayIncident
	case domain.GroupInjuryType:
		return &f.InjuryType
	case domain.GroupUnsafeWorkplaceConditions:
		return &f.UnsafeWorkplaceConditions
	case domain.GroupUnsafeActsByPeople:
		return &f.UnsafeActsByPeople
	case domain.GroupPreventionSuggestions:
		return &f.PreventionSuggestions
	}
	return nil
}

// Toggle adds option to the group when absent and removes it when present.
// Selection order is kept.
func (f *IncidentForm) Toggle(group, option string) error {
	ref := f.group(group)
	if ref == nil {
		return domain.Invalid("form.toggle", fmt.Sprintf("unknown option group %q", group))
	}
	if !domain.IsOption(group, option) {
		return domain.Invalid("form.toggle", fmt.Sprintf("%q is not an option of %s", option, group))
	}
	*ref = ToggleOption(*ref, option)
	return nil
}

// ToggleOption returns a new slice with option added or removed.
func ToggleOption(selected []string, option string) []string {
	if i := slices.Index(selected, option); i >= 0 {
		return slices.Delete(slices.Clone(selected), i, i+1)
	}
	return Append(selected, option)
}

// =============================================================================
// Repeatable groups
// =============================================================================

// Append returns a new slice with row added at the end.
func Append[T any](rows []T, row T) []T {
	out := make([]T, len(rows), len(rows)+1)
	copy(out, rows)
	return append(out, row)
}

// UpdateAt returns a new slice with the row at i replaced by fn(row). An
// out-of-range index returns an unchanged copy and false.
func UpdateAt[T any](rows []T, i int, fn func(T) T) ([]T, bool) {
	out := slices.Clone(rows)
	if i < 0 || i >= len(out) {
		return out, false
	}
	out[i] = fn(out[i])
	return out, true
}

// RemoveAt returns a new slice without the row at i. Removing the last
// remaining row, or an index out of range, returns an unchanged copy.
func RemoveAt[T any](rows []T, i int) []T {
	out := slices.Clone(rows)
	if len(out) <= 1 || i < 0 || i >= len(out) {
		return out
	}
	return slices.Delete(out, i, i+1)
}

// AppendRow adds a blank row to a repeatable group.
func (f *IncidentForm) AppendRow(group string) error {
	switch group {
	case GroupInjuredEmployees:
		f.InjuredEmployees = Append(f.InjuredEmployees, domain.InjuredEmployee{})
	case GroupWitnesses:
		f.Witnesses = Append(f.Witnesses, "")
	case GroupInvestigationTeam:
		f.InvestigationTeamMembers = Append(f.InvestigationTeamMembers, domain.Person{})
	default:
		return domain.Invalid("form.append", fmt.Sprintf("unknown group %q", group))
	}
	return nil
}

// RemoveRow removes the row at index. The last row of a group is never removed.
func (f *IncidentForm) RemoveRow(group string, index int) error {
	switch group {
	case GroupInjuredEmployees:
		f.InjuredEmployees = RemoveAt(f.InjuredEmployees, index)
	case GroupWitnesses:
		f.Witnesses = RemoveAt(f.Witnesses, index)
	case GroupInvestigationTeam:
		f.InvestigationTeamMembers = RemoveAt(f.InvestigationTeamMembers, index)
	default:
		return domain.Invalid("form.remove", fmt.Sprintf("unknown group %q", group))
	}
	return nil
}

// UpdateRow sets one field of one row. Witness rows are plain strings and
// take an empty field name.
func (f *IncidentForm) UpdateRow(group string, index int, field, value string) error {
	const op = "form.update"
	var ok bool

	switch group {
	case GroupInjuredEmployees:
		if !isEmployeeField(field) {
			return domain.Invalid(op, fmt.Sprintf("unknown injured employee field %q", field))
		}
		f.InjuredEmployees, ok = UpdateAt(f.InjuredEmployees, index, func(e domain.InjuredEmployee) domain.InjuredEmployee {
			return setEmployeeField(e, field, value)
		})
	case GroupWitnesses:
		if field != "" && field != "name" {
			return domain.Invalid(op, fmt.Sprintf("unknown witness field %q", field))
		}
		f.Witnesses, ok = UpdateAt(f.Witnesses, index, func(string) string { return value })
	case GroupInvestigationTeam:
		if field != "name" && field != "title" {
			return domain.Invalid(op, fmt.Sprintf("unknown team member field %q", field))
		}
		f.InvestigationTeamMembers, ok = UpdateAt(f.InvestigationTeamMembers, index, func(p domain.Person) domain.Person {
			if field == "name" {
				p.Name = value
			} else {
				p.Title = value
			}
			return p
		})
	default:
		return domain.Invalid(op, fmt.Sprintf("unknown group %q", group))
	}

	if !ok {
		return domain.Invalid(op, fmt.Sprintf("%s has no row %d", group, index))
	}
	return nil
}

var employeeFields = []string{"name", "id", "dateOfBirth", "jobTitle", "department", "employeeType", "lengthOfTime", "email"}

func isEmployeeField(field string) bool {
	return slices.Contains(employeeFields, field)
}

func setEmployeeField(e domain.InjuredEmployee, field, value string) domain.InjuredEmployee {
	switch field {
	case "name":
		e.Name = value
	case "id":
		e.ID = value
	case "dateOfBirth":
		e.DateOfBirth = value
	case "jobTitle":
		e.JobTitle = value
	case "department":
		e.Department = value
	case "employeeType":
		e.EmployeeType = value
	case "lengthOfTime":
		e.LengthOfTime = value
	case "email":
		e.Email = value
	}
	return e
}
