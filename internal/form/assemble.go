package form

import (
	"slices"
	"strings"
	"time"

	"github.com/DukeRupert/safetyline/internal/domain"
)

// ToReport maps the form onto a new IncidentReport document. Attachments
// and the body-map image URL are whatever the form carries; the submission
// service replaces them with freshly uploaded blobs when there are any.
func (f *IncidentForm) ToReport(now time.Time, reportedBy string) *domain.IncidentReport {
	var images []string
	if f.BodyMapImage != "" {
		images = []string{f.BodyMapImage}
	}

	return &domain.IncidentReport{
		ID:                   f.ReportID,
		CompanyID:            f.CompanyID,
		CompanyName:          f.CompanyName,
		SubmittedAt:          now.UTC(),
		ReportedBy:           reportedBy,
		Revision:             f.Revision,
		ReturnToEmails:       f.ReturnToEmails,
		DocumentTypes:        slices.Clone(f.DocumentTypes),
		WorkdayIncident:      slices.Clone(f.WorkdayIncident),
		WorkdayIncidentOther: f.OtherWorkdayIncidentDescription,
		InjuryData: domain.InjuryData{
			Category: strings.TrimSpace(f.NatureOfInjury),
			Events: []domain.Event{{
				Content: f.IncidentDescription,
				Heading: f.IncidentDescription,
				Images:  images,
			}},
			Location:                       f.Location,
			IncidentDateTime:               f.DateOfIncident,
			ReportedToOHSDateTime:          f.DateOfReport,
			ToolsMaterialsEquipment:        f.ProtectiveEquipment,
			WorkSiteConditions:             strings.Join(f.UnsafeWorkplaceConditions, ", "),
			OrganizationalFactors:          f.OrganizationalFactors,
			OtherCircumstances:             f.OtherCircumstances,
			InjuredEmployees:               slices.Clone(f.InjuredEmployees),
			InjuryType:                     slices.Clone(f.InjuryType),
			OtherInjuryDescription:         f.OtherInjuryDescription,
			Witnesses:                      nonBlank(f.Witnesses),
			UnsafeWorkplaceConditions:      slices.Clone(f.UnsafeWorkplaceConditions),
			UnsafeWorkplaceConditionsOther: f.UnsafeWorkplaceConditionsOther,
			UnsafeActsByPeople:             slices.Clone(f.UnsafeActsByPeople),
			UnsafeActsByPeopleOther:        f.UnsafeActsByPeopleOther,
			WorkplaceCultureEncouraged:     f.WorkplaceCultureEncouraged,
			WorkplaceCultureDescription:    f.WorkplaceCultureDescription,
			UnsafeActsReported:             f.UnsafeActsReported,
			SimilarIncidentsPrior:          f.SimilarIncidentsPrior,
			WhyUnsafeConditionsExist:       f.WhyUnsafeConditionsExist,
			WhyUnsafeActsOccur:             f.WhyUnsafeActsOccur,
			PreventionSuggestions:          slices.Clone(f.PreventionSuggestions),
			PreventionSuggestionsOther:     f.PreventionSuggestionsOther,
			PreventionActionsTaken:         f.PreventionActionsTaken,
			Attachments:                    slices.Clone(f.Attachments),
		},
		Metadata: domain.Metadata{
			ReportCompletedBy: domain.Person{
				Name:  f.ReportCompletedByName,
				Title: f.ReportCompletedByTitle,
			},
			Signatures: domain.Signatures{
				WrittenBy:         f.ReportWrittenBy,
				ReviewedBy:        f.ReportReviewedBy,
				SubmittedBy:       f.ReportSubmittedBy,
				ReceivedBy:        f.ReportReceivedBy,
				InvestigationTeam: nonBlankPeople(f.InvestigationTeamMembers),
			},
		},
	}
}

// FromReport re-projects a stored report into an editable form, marked as
// prefilled so clients can distinguish carried-over values.
func FromReport(r *domain.IncidentReport) *IncidentForm {
	d := r.InjuryData
	f := &IncidentForm{
		ReportID:                        r.ID,
		Revision:                        r.Revision,
		Prefilled:                       true,
		CompanyID:                       r.CompanyID,
		CompanyName:                     r.CompanyName,
		ReturnToEmails:                  r.ReturnToEmails,
		DocumentTypes:                   orEmpty(r.DocumentTypes),
		WorkdayIncident:                 orEmpty(r.WorkdayIncident),
		OtherWorkdayIncidentDescription: r.WorkdayIncidentOther,
		ReportCompletedByName:           r.Metadata.ReportCompletedBy.Name,
		ReportCompletedByTitle:          r.Metadata.ReportCompletedBy.Title,
		DateOfIncident:                  d.IncidentDateTime,
		DateOfReport:                    d.ReportedToOHSDateTime,
		Location:                        d.Location,
		InjuredEmployees:                slices.Clone(d.InjuredEmployees),
		InjuryType:                      orEmpty(d.InjuryType),
		OtherInjuryDescription:          d.OtherInjuryDescription,
		NatureOfInjury:                  d.Category,
		Witnesses:                       slices.Clone(d.Witnesses),
		ProtectiveEquipment:             d.ToolsMaterialsEquipment,
		IncidentDescription:             r.Description(),
		OrganizationalFactors:           d.OrganizationalFactors,
		OtherCircumstances:              d.OtherCircumstances,
		UnsafeWorkplaceConditions:       orEmpty(d.UnsafeWorkplaceConditions),
		UnsafeWorkplaceConditionsOther:  d.UnsafeWorkplaceConditionsOther,
		UnsafeActsByPeople:              orEmpty(d.UnsafeActsByPeople),
		UnsafeActsByPeopleOther:         d.UnsafeActsByPeopleOther,
		WorkplaceCultureEncouraged:      d.WorkplaceCultureEncouraged,
		WorkplaceCultureDescription:     d.WorkplaceCultureDescription,
		UnsafeActsReported:              d.UnsafeActsReported,
		SimilarIncidentsPrior:           d.SimilarIncidentsPrior,
		WhyUnsafeConditionsExist:        d.WhyUnsafeConditionsExist,
		WhyUnsafeActsOccur:              d.WhyUnsafeActsOccur,
		PreventionSuggestions:           orEmpty(d.PreventionSuggestions),
		PreventionSuggestionsOther:      d.PreventionSuggestionsOther,
		PreventionActionsTaken:          d.PreventionActionsTaken,
		ReportWrittenBy:                 r.Metadata.Signatures.WrittenBy,
		ReportReviewedBy:                r.Metadata.Signatures.ReviewedBy,
		InvestigationTeamMembers:        slices.Clone(r.Metadata.Signatures.InvestigationTeam),
		ReportSubmittedBy:               r.Metadata.Signatures.SubmittedBy,
		ReportReceivedBy:                r.Metadata.Signatures.ReceivedBy,
		Attachments:                     slices.Clone(d.Attachments),
		BodyMapImage:                    r.BodyMapImageURL(),
	}

	// Every repeatable group keeps one editable row.
	if len(f.InjuredEmployees) == 0 {
		f.InjuredEmployees = []domain.InjuredEmployee{{}}
	}
	if len(f.Witnesses) == 0 {
		f.Witnesses = []string{""}
	}
	if len(f.InvestigationTeamMembers) == 0 {
		f.InvestigationTeamMembers = []domain.Person{{}}
	}
	return f
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

func nonBlank(rows []string) []string {
	out := []string{}
	for _, r := range rows {
		if !blank(r) {
			out = append(out, r)
		}
	}
	return out
}

func nonBlankPeople(rows []domain.Person) []domain.Person {
	out := []domain.Person{}
	for _, p := range rows {
		if !blank(p.Name) || !blank(p.Title) {
			out = append(out, p)
		}
	}
	return out
}
