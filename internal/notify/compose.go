// Package notify delivers incident report notifications.
//
// Composition is pure: a stored report and an optional body-map PNG become
// an email.Message. The Gateway guards composition and sending behind a
// shared bearer credential, and the Client is how the submission service
// reaches a Gateway over HTTP.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/email"
)

const (
	OperatorFromName = "Incident Reporting System"
	EmployeeFromName = "Safety Department"

	// BodyMapContentID is the inline part the HTML body references.
	BodyMapContentID = "body-map"
	BodyMapFilename  = "body-map.png"

	notAvailable = "N/A"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("notify").Funcs(template.FuncMap{
	"na":   orNA,
	"list": bulletList,
}).ParseFS(templateFS, "templates/*.html"))

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

// bulletList renders items as "• item" lines, or "None".
func bulletList(items []string) template.HTML {
	if len(items) == 0 {
		return "None"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "&bull; " + html.EscapeString(item)
	}
	return template.HTML(strings.Join(lines, "<br>"))
}

// displayDateLayouts are the formats incident dates arrive in.
var displayDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DisplayDate renders a stored date string as M/D/YYYY, or "" when it
// cannot be parsed.
func DisplayDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range displayDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("1/2/2006")
		}
	}
	return ""
}

// GreetingName normalises a roster name for "Dear ..." lines.
func GreetingName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "Employee"
	}
	if name == strings.ToLower(name) || name == strings.ToUpper(name) {
		return cases.Title(language.English).String(name)
	}
	return name
}

type messageData struct {
	Report       *domain.IncidentReport
	SubmittedOn  string
	IncidentDate string
	Description  string
	EmployeeName string
	BodyMapSrc   template.URL
}

func newMessageData(r *domain.IncidentReport, image []byte) messageData {
	d := messageData{
		Report:       r,
		IncidentDate: DisplayDate(r.InjuryData.IncidentDateTime),
		Description:  r.Description(),
	}
	if !r.SubmittedAt.IsZero() {
		d.SubmittedOn = r.SubmittedAt.Format("1/2/2006")
	}
	if len(image) > 0 {
		d.BodyMapSrc = template.URL("cid:" + BodyMapContentID)
	}
	return d
}

func render(name string, data messageData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// bodyMapAttachments carries the image both inline and as a download.
func bodyMapAttachments(image []byte) []email.Attachment {
	if len(image) == 0 {
		return nil
	}
	return []email.Attachment{
		{Filename: BodyMapFilename, ContentType: "image/png", Content: image, ContentID: BodyMapContentID},
		{Filename: BodyMapFilename, ContentType: "image/png", Content: image},
	}
}

// ComposeOperator builds the full report for the operator recipients.
func ComposeOperator(r *domain.IncidentReport, image []byte) (email.Message, error) {
	data := newMessageData(r, image)
	body, err := render("operator.html", data)
	if err != nil {
		return email.Message{}, err
	}

	company := r.CompanyName
	if company == "" {
		company = "Unknown Company"
	}
	date := data.IncidentDate
	if date == "" {
		date = "No Date"
	}

	return email.Message{
		FromName:    OperatorFromName,
		Subject:     fmt.Sprintf("Incident Report - %s - %s", company, date),
		HTMLBody:    body,
		TextBody:    operatorText(data),
		Attachments: bodyMapAttachments(image),
	}, nil
}

// ComposeEmployee builds the short notice sent to an injured employee.
func ComposeEmployee(r *domain.IncidentReport, employeeName string, image []byte) (email.Message, error) {
	data := newMessageData(r, image)
	data.EmployeeName = GreetingName(employeeName)
	body, err := render("employee.html", data)
	if err != nil {
		return email.Message{}, err
	}

	return email.Message{
		FromName:    EmployeeFromName,
		Subject:     fmt.Sprintf("Incident Report Notification - %s", data.SubmittedOn),
		HTMLBody:    body,
		TextBody:    employeeText(data),
		Attachments: bodyMapAttachments(image),
	}, nil
}

func operatorText(d messageData) string {
	r := d.Report
	var b strings.Builder
	fmt.Fprintf(&b, "Incident Investigation Report\nSubmitted on %s\n\n", orNA(d.SubmittedOn))
	fmt.Fprintf(&b, "Company: %s (%s)\n", orNA(r.CompanyName), orNA(r.CompanyID))
	fmt.Fprintf(&b, "Date/Time of Incident: %s\n", orNA(r.InjuryData.IncidentDateTime))
	fmt.Fprintf(&b, "Location: %s\n", orNA(r.InjuryData.Location))
	fmt.Fprintf(&b, "Injury Category: %s\n\n", orNA(r.InjuryData.Category))
	fmt.Fprintf(&b, "%s\n", orNA(d.Description))
	return b.String()
}

func employeeText(d messageData) string {
	return fmt.Sprintf(`Dear %s,

An incident report has been submitted regarding an incident you were involved in.

Incident Date: %s
Location: %s

%s

Please contact your supervisor or HR department if you have any questions.

Best regards,
Safety Department
`, d.EmployeeName, orNA(d.IncidentDate), orNA(d.Report.InjuryData.Location), orNA(d.Description))
}
