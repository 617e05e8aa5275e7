// Package export flattens stored records into tables and writes them as
// spreadsheets or PDF documents.
//
// Building a table is pure: Build maps records to rows without I/O. The
// writers then render a Table; only WritePDF fetches images, for the
// optional image column.
package export

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DukeRupert/safetyline/internal/domain"
)

// Kind names an exportable collection.
type Kind string

const (
	KindUsers         Kind = "users"
	KindFLHA          Kind = "flha"
	KindInjuryReports Kind = "injury_reports"
)

// Format is an output file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindUsers, KindFLHA, KindInjuryReports:
		return k, nil
	}
	return "", domain.Invalid("export.kind", fmt.Sprintf("unknown export %q", s))
}

// ParseFormat validates a format name. Empty means xlsx.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatXLSX, nil
	case FormatXLSX, FormatPDF:
		return f, nil
	}
	return "", domain.Invalid("export.format", fmt.Sprintf("unknown format %q", s))
}

// ContentType returns the MIME type of files in this format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// SheetName is the worksheet name used for kind.
func (k Kind) SheetName() string {
	if k == KindFLHA {
		return cases.Upper(language.English).String(string(k))
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(k), "_", " "))
}

// Table is the flattened form of one export. Rows line up one to one with
// the source records. When ImageColumn is set, the last column of every
// row is drawn from Images[i] instead of text.
type Table struct {
	Kind        Kind
	Title       string
	Headers     []string
	Rows        [][]string
	ImageColumn bool
	Images      []string
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Context carries what a build needs besides the records.
type Context struct {
	Format Format
	// LastLogins maps user full name to last login in epoch millis.
	LastLogins map[string]int64
	Location   *time.Location
}

func (c Context) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Build flattens records of kind. records must be []domain.User,
// []domain.FLHA or []domain.IncidentReport to match.
func Build(kind Kind, records any, ctx Context) (*Table, error) {
	const op = "export.build"

	switch kind {
	case KindUsers:
		users, ok := records.([]domain.User)
		if !ok {
			return nil, domain.Invalid(op, fmt.Sprintf("users export needs users, got %T", records))
		}
		return BuildUsers(users, ctx), nil
	case KindFLHA:
		flhas, ok := records.([]domain.FLHA)
		if !ok {
			return nil, domain.Invalid(op, fmt.Sprintf("flha export needs FLHA records, got %T", records))
		}
		return BuildFLHA(flhas, ctx), nil
	case KindInjuryReports:
		reports, ok := records.([]domain.IncidentReport)
		if !ok {
			return nil, domain.Invalid(op, fmt.Sprintf("injury report export needs reports, got %T", records))
		}
		return BuildInjuryReports(reports, ctx), nil
	}
	return nil, domain.Invalid(op, fmt.Sprintf("unknown export %q", kind))
}

// =============================================================================
// Users
// =============================================================================

// BuildUsers lists registered users with their last login. The PDF shows
// the profile picture in its last column; the spreadsheet keeps the URL.
func BuildUsers(users []domain.User, ctx Context) *Table {
	t := &Table{Kind: KindUsers, Title: "User Report"}
	pdf := ctx.Format == FormatPDF

	t.Headers = []string{"FullName", "Email", "CompanyName", "BirthDate", "CompanyID", "CreatedAt", "JobID", "JoinedDate"}
	if !pdf {
		t.Headers = append(t.Headers, "ProfilePic")
	}
	t.Headers = append(t.Headers, "Role", "SiteID", "Last Login")
	if pdf {
		t.Headers = append(t.Headers, "Profile Picture")
		t.ImageColumn = true
	}

	t.Rows = make([][]string, 0, len(users))
	for _, u := range users {
		row := []string{u.FullName, u.Email, u.CompanyName, u.BirthDate, u.CompanyID, u.CreatedAt, u.JobID, u.JoinedDate}
		if !pdf {
			row = append(row, u.ProfilePic)
		}
		row = append(row, u.Role, u.SiteID, formatLogin(ctx.LastLogins, u.FullName, ctx.location()))
		if pdf {
			row = append(row, "")
			t.Images = append(t.Images, u.ProfilePic)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func formatLogin(logins map[string]int64, name string, loc *time.Location) string {
	ms, ok := logins[name]
	if !ok || ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).In(loc).Format("2006-01-02 15:04:05")
}

// =============================================================================
// FLHA
// =============================================================================

// BuildFLHA lists hazard assessments. Each hazard category becomes a
// description and a status column in the spreadsheet, and one multi-line
// cell in the PDF, whose last column shows the signature.
func BuildFLHA(flhas []domain.FLHA, ctx Context) *Table {
	t := &Table{Kind: KindFLHA, Title: "Field Level Hazard Assessment (FLHA) Report"}
	if ctx.Format == FormatPDF {
		buildFLHAPDF(t, flhas)
	} else {
		buildFLHASheet(t, flhas)
	}
	return t
}

var completionHeaders = []string{
	"All Hazard Remaining", "All Permits Closed Out", "Any Incident", "Area Cleaned Up At End", "Master Point Location",
}

func completion(c domain.JobCompletion) []string {
	return []string{
		domain.FormatBool(c.AllHazardRemaining),
		domain.FormatBool(c.AllPermitsClosedOut),
		domain.FormatBool(c.AnyIncident),
		domain.FormatBool(c.AreaCleanedUpAtEnd),
		orNA(c.MasterPointLocation),
	}
}

func buildFLHASheet(t *Table, flhas []domain.FLHA) {
	t.Headers = []string{
		"Company ID", "Company Name", "User Name", "User Email", "PPE Inspected",
		"To Do Work", "Site Location", "Submitted Date and Time",
	}
	for _, cat := range domain.HazardCategories {
		t.Headers = append(t.Headers, cat.Title+" - Description", cat.Title+" - Status")
	}
	t.Headers = append(t.Headers, completionHeaders...)
	t.Headers = append(t.Headers, "Permit Job Number", "Signature URL", "Suggestion Page")

	t.Rows = make([][]string, 0, len(flhas))
	for i := range flhas {
		f := &flhas[i]
		row := []string{
			f.CompanyID, f.CompanyName, f.UserName, f.UserEmail, domain.FormatBool(f.Data.PPEInspected),
			f.Data.ToDoWork, f.Data.SiteLocation, f.SubmittedAt,
		}
		for _, list := range f.Checklist() {
			descriptions := make([]string, len(list.Items))
			statuses := make([]string, len(list.Items))
			for j, item := range list.Items {
				descriptions[j] = item.Label + ": " + item.Description
				statuses[j] = item.Label + ": " + item.Status
			}
			row = append(row, strings.Join(descriptions, "\n"), strings.Join(statuses, "\n"))
		}
		row = append(row, completion(f.Data.JobCompletion)...)
		row = append(row, f.Data.PermitJobNumber, f.Data.SignatureURL, f.Data.SuggestionPage.Suggestions)
		t.Rows = append(t.Rows, row)
	}
}

func buildFLHAPDF(t *Table, flhas []domain.FLHA) {
	t.Headers = []string{"Name & Email", "Submitted Date and Time", "PPE Inspected"}
	for _, cat := range domain.HazardCategories {
		t.Headers = append(t.Headers, cat.Title)
	}
	t.Headers = append(t.Headers, completionHeaders...)
	t.Headers = append(t.Headers, "Signature")
	t.ImageColumn = true

	t.Rows = make([][]string, 0, len(flhas))
	for i := range flhas {
		f := &flhas[i]
		row := []string{f.UserName + "\n" + f.UserEmail, f.SubmittedAt, domain.FormatBool(f.Data.PPEInspected)}
		for _, list := range f.Checklist() {
			lines := make([]string, len(list.Items))
			for j, item := range list.Items {
				lines[j] = item.Label + ": " + item.Status
			}
			row = append(row, strings.Join(lines, "\n"))
		}
		row = append(row, completion(f.Data.JobCompletion)...)
		row = append(row, "")
		t.Rows = append(t.Rows, row)
		t.Images = append(t.Images, f.Data.SignatureURL)
	}
}

// =============================================================================
// Injury reports
// =============================================================================

// BuildInjuryReports lists incident reports. The PDF shows the body-map
// image in the Images column; the spreadsheet lists the image URLs.
func BuildInjuryReports(reports []domain.IncidentReport, ctx Context) *Table {
	t := &Table{
		Kind:  KindInjuryReports,
		Title: "Injury Report",
		Headers: []string{
			"Company Name", "Date", "Reported By", "Category", "Location",
			"Incident Date", "Reported To OHS Date", "Organizational Factors",
			"Other Circumstances", "Tools/Materials/Equipment", "Work Site Conditions", "Images",
		},
		ImageColumn: ctx.Format == FormatPDF,
	}

	t.Rows = make([][]string, 0, len(reports))
	for i := range reports {
		r := &reports[i]
		d := r.InjuryData
		var date string
		if !r.SubmittedAt.IsZero() {
			date = r.SubmittedAt.In(ctx.location()).Format("2006-01-02 15:04")
		}
		var images []string
		for _, ev := range d.Events {
			images = append(images, ev.Images...)
		}

		row := []string{
			r.CompanyName, date, r.ReportedBy, d.Category, d.Location,
			d.IncidentDateTime, d.ReportedToOHSDateTime, d.OrganizationalFactors,
			d.OtherCircumstances, d.ToolsMaterialsEquipment, d.WorkSiteConditions,
		}
		if t.ImageColumn {
			row = append(row, "")
			t.Images = append(t.Images, r.BodyMapImageURL())
		} else {
			row = append(row, strings.Join(images, ", "))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return domain.NotAvailable
	}
	return s
}
