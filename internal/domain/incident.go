// Package domain contains core business types and interfaces.
//
// This file defines the IncidentReport document as it is stored in the
// incidentReports collection. Field names are shared between the bson and
// json tags so equality filters and API payloads use the same keys on every
// document store backend.
package domain

import (
	"strings"
	"time"
)

// Collection names used by the document store.
const (
	CollectionIncidentReports   = "incidentReports"
	CollectionUsers             = "users"
	CollectionFLHA              = "FLHA"
	CollectionAttendance        = "attendance"
	CollectionReturnToWorkPlans = "returnToWorkPlans"
	CollectionCompany           = "company"
)

// Answer values for the yes/no narrative questions.
const (
	AnswerYes = "YES"
	AnswerNo  = "NO"
)

// IsAnswered reports whether v is an explicit YES or NO.
func IsAnswered(v string) bool {
	return v == AnswerYes || v == AnswerNo
}

// =============================================================================
// Incident Report
// =============================================================================

// IncidentReport is one submitted incident investigation.
type IncidentReport struct {
	ID          string `bson:"_id" json:"id"`
	CompanyID   string `bson:"company_id" json:"company_id"`
	CompanyName string `bson:"company_name" json:"company_name"`

	// SubmittedAt is set when the report is first created and carried over
	// on every overwrite.
	SubmittedAt time.Time `bson:"date" json:"date"`
	ReportedBy  string    `bson:"reported_by" json:"reported_by"`
	Revision    int       `bson:"revision" json:"revision"`

	ReturnToEmails       string   `bson:"return_to_emails" json:"return_to_emails"`
	DocumentTypes        []string `bson:"document_types" json:"document_types"`
	WorkdayIncident      []string `bson:"workday_incident" json:"workday_incident"`
	WorkdayIncidentOther string   `bson:"workday_incident_other" json:"workday_incident_other"`

	InjuryData InjuryData `bson:"injury_data" json:"injury_data"`
	Metadata   Metadata   `bson:"metadata" json:"metadata"`
}

// InjuryData holds the incident narrative, the people involved and the
// root cause analysis.
type InjuryData struct {
	Category                string  `bson:"category" json:"category"`
	Events                  []Event `bson:"events" json:"events"`
	Location                string  `bson:"location" json:"location"`
	IncidentDateTime        string  `bson:"incidentDateAndTime" json:"incidentDateAndTime"`
	ReportedToOHSDateTime   string  `bson:"incidentReportedToOHSDateAndTime" json:"incidentReportedToOHSDateAndTime"`
	ToolsMaterialsEquipment string  `bson:"toolsMaterialsEquipment" json:"toolsMaterialsEquipment"`
	WorkSiteConditions      string  `bson:"workSiteConditions" json:"workSiteConditions"`
	OrganizationalFactors   string  `bson:"organizationalFactors" json:"organizationalFactors"`
	OtherCircumstances      string  `bson:"otherCircumstances" json:"otherCircumstances"`

	InjuredEmployees       []InjuredEmployee `bson:"injuredEmployees" json:"injuredEmployees"`
	InjuryType             []string          `bson:"injuryType" json:"injuryType"`
	OtherInjuryDescription string            `bson:"otherInjuryDescription" json:"otherInjuryDescription"`
	Witnesses              []string          `bson:"witnesses" json:"witnesses"`

	UnsafeWorkplaceConditions      []string `bson:"unsafeWorkplaceConditions" json:"unsafeWorkplaceConditions"`
	UnsafeWorkplaceConditionsOther string   `bson:"unsafeWorkplaceConditionsOther" json:"unsafeWorkplaceConditionsOther"`
	UnsafeActsByPeople             []string `bson:"unsafeActsByPeople" json:"unsafeActsByPeople"`
	UnsafeActsByPeopleOther        string   `bson:"unsafeActsByPeopleOther" json:"unsafeActsByPeopleOther"`

	WorkplaceCultureEncouraged  string `bson:"workplaceCultureEncouraged" json:"workplaceCultureEncouraged"`
	WorkplaceCultureDescription string `bson:"workplaceCultureDescription" json:"workplaceCultureDescription"`
	UnsafeActsReported          string `bson:"unsafeActsReported" json:"unsafeActsReported"`
	SimilarIncidentsPrior       string `bson:"similarIncidentsPrior" json:"similarIncidentsPrior"`

	WhyUnsafeConditionsExist string `bson:"whyUnsafeConditionsExist" json:"whyUnsafeConditionsExist"`
	WhyUnsafeActsOccur       string `bson:"whyUnsafeActsOccur" json:"whyUnsafeActsOccur"`

	PreventionSuggestions      []string `bson:"preventionSuggestions" json:"preventionSuggestions"`
	PreventionSuggestionsOther string   `bson:"preventionSuggestionsOther" json:"preventionSuggestionsOther"`
	PreventionActionsTaken     string   `bson:"preventionActionsTaken" json:"preventionActionsTaken"`

	Attachments []Attachment `bson:"attachments" json:"attachments"`
}

// Event is one narrated occurrence. Reports carry exactly one, whose
// Images hold at most the stored body-map image URL.
type Event struct {
	Content string   `bson:"content" json:"content"`
	Heading string   `bson:"heading" json:"heading"`
	Images  []string `bson:"images" json:"images"`
}

// InjuredEmployee is one row of the injured employee roster.
type InjuredEmployee struct {
	Name         string `bson:"name" json:"name"`
	ID           string `bson:"id" json:"id"`
	DateOfBirth  string `bson:"dateOfBirth" json:"dateOfBirth"`
	JobTitle     string `bson:"jobTitle" json:"jobTitle"`
	Department   string `bson:"department" json:"department"`
	EmployeeType string `bson:"employeeType" json:"employeeType"`
	LengthOfTime string `bson:"lengthOfTime" json:"lengthOfTime"`
	Email        string `bson:"email,omitempty" json:"email,omitempty"`
}

// MissingField returns the json name of the first empty required field, or
// "" when the row is complete. Email is optional.
func (e InjuredEmployee) MissingField() string {
	fields := []struct {
		name  string
		value string
	}{
		{"name", e.Name},
		{"id", e.ID},
		{"dateOfBirth", e.DateOfBirth},
		{"jobTitle", e.JobTitle},
		{"department", e.Department},
		{"employeeType", e.EmployeeType},
		{"lengthOfTime", e.LengthOfTime},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return f.name
		}
	}
	return ""
}

// Attachment is an uploaded file referenced by the report.
type Attachment struct {
	Name         string `bson:"name" json:"name"`
	URL          string `bson:"url" json:"url"`
	Key          string `bson:"key" json:"key"`
	ContentType  string `bson:"contentType" json:"contentType"`
	Size         int64  `bson:"size" json:"size"`
	ThumbnailURL string `bson:"thumbnailUrl,omitempty" json:"thumbnailUrl,omitempty"`
}

// IsImage reports whether the attachment is an image that can be thumbnailed.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

// Metadata carries the sign-off blocks of the report.
type Metadata struct {
	ReportCompletedBy Person     `bson:"reportCompletedBy" json:"reportCompletedBy"`
	Signatures        Signatures `bson:"signatures" json:"signatures"`
}

// Person is a name and title pair.
type Person struct {
	Name  string `bson:"name" json:"name"`
	Title string `bson:"title" json:"title"`
}

// Signatures groups every sign-off on the report.
type Signatures struct {
	WrittenBy         ReviewSignature `bson:"writtenBy" json:"writtenBy"`
	ReviewedBy        ReviewSignature `bson:"reviewedBy" json:"reviewedBy"`
	SubmittedBy       HandSignature   `bson:"submittedBy" json:"submittedBy"`
	ReceivedBy        HandSignature   `bson:"receivedBy" json:"receivedBy"`
	InvestigationTeam []Person        `bson:"investigationTeam" json:"investigationTeam"`
}

// ReviewSignature is the written-by / reviewed-by block.
type ReviewSignature struct {
	Name       string `bson:"name" json:"name"`
	Title      string `bson:"title" json:"title"`
	Department string `bson:"department" json:"department"`
	Date       string `bson:"date" json:"date"`
}

// HandSignature is the submitted-by / received-by block.
type HandSignature struct {
	Name      string `bson:"name" json:"name"`
	Signature string `bson:"signature" json:"signature"`
	Date      string `bson:"date" json:"date"`
}

// BodyMapImageURL returns the stored body-map image of the report, if any.
func (r *IncidentReport) BodyMapImageURL() string {
	for _, ev := range r.InjuryData.Events {
		if len(ev.Images) > 0 {
			return ev.Images[0]
		}
	}
	return ""
}

// Description returns the narrative of the first event.
func (r *IncidentReport) Description() string {
	if len(r.InjuryData.Events) == 0 {
		return ""
	}
	return r.InjuryData.Events[0].Content
}

// EmployeeRecipients returns the injured employees that carry an email
// address, in roster order.
func (r *IncidentReport) EmployeeRecipients() []InjuredEmployee {
	var out []InjuredEmployee
	for _, e := range r.InjuryData.InjuredEmployees {
		if strings.TrimSpace(e.Email) != "" {
			out = append(out, e)
		}
	}
	return out
}

// OperatorRecipients splits ReturnToEmails on commas and semicolons.
func (r *IncidentReport) OperatorRecipients() []string {
	return SplitAddresses(r.ReturnToEmails)
}

// SplitAddresses splits a free-text recipient list on commas and
// semicolons, dropping blanks.
func SplitAddresses(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var out []string
	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
