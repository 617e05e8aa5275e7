package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// NotAvailable is rendered wherever a value is missing.
const NotAvailable = "N/A"

// FLHA is a field level hazard assessment, completed on site before work
// starts. The mobile client that writes it stores each hazard checklist as
// a bare array of answers, positionally aligned with a fixed label list.
type FLHA struct {
	ID          string   `bson:"_id" json:"id"`
	CompanyID   string   `bson:"company_id" json:"company_id"`
	CompanyName string   `bson:"company_name" json:"company_name"`
	UserName    string   `bson:"user_name" json:"user_name"`
	UserEmail   string   `bson:"user_email" json:"user_email"`
	SubmittedAt string   `bson:"submitted_at" json:"submitted_at"`
	Data        FLHAData `bson:"data" json:"data"`
}

// FLHAData is the answer payload of an assessment.
type FLHAData struct {
	PPEInspected    *bool  `bson:"ppe_inspected" json:"ppe_inspected"`
	ToDoWork        string `bson:"to_do_work" json:"to_do_work"`
	SiteLocation    string `bson:"site_location" json:"site_location"`
	PermitJobNumber string `bson:"permit_job_number" json:"permit_job_number"`
	SignatureURL    string `bson:"signature_url" json:"signature_url"`

	EnvironmentalHazards []HazardAnswer `bson:"flhf" json:"flhf"`
	Ergonomics           []HazardAnswer `bson:"ergonomics" json:"ergonomics"`
	AccessEgress         []HazardAnswer `bson:"aeHazards" json:"aeHazards"`
	OverheadUnderground  []HazardAnswer `bson:"ouHazards" json:"ouHazards"`
	EquipmentVacTruck    []HazardAnswer `bson:"evtHazards" json:"evtHazards"`
	PersonalLimitations  []HazardAnswer `bson:"plHazards" json:"plHazards"`

	JobCompletion  JobCompletion  `bson:"job_completion" json:"job_completion"`
	SuggestionPage SuggestionPage `bson:"suggestionPage" json:"suggestionPage"`
}

// HazardAnswer is one positional checklist answer.
type HazardAnswer struct {
	Description string `bson:"description" json:"description"`
	Status      *bool  `bson:"status" json:"status"`
}

// JobCompletion is the end-of-job sign-off.
type JobCompletion struct {
	AllHazardRemaining  *bool  `bson:"all_hazard_remaining" json:"all_hazard_remaining"`
	AllPermitsClosedOut *bool  `bson:"all_permits_closed_out" json:"all_permits_closed_out"`
	AnyIncident         *bool  `bson:"any_incident" json:"any_incident"`
	AreaCleanedUpAtEnd  *bool  `bson:"area_cleaned_up_at_end" json:"area_cleaned_up_at_end"`
	MasterPointLocation string `bson:"master_point_location" json:"master_point_location"`
}

// SuggestionPage holds the free-text improvement suggestions.
type SuggestionPage struct {
	Suggestions string `bson:"suggestions" json:"suggestions"`
}

// =============================================================================
// Hazard checklist
// =============================================================================

// HazardCategory names one checklist and its fixed item labels.
type HazardCategory struct {
	Key    string
	Title  string
	Labels []string
}

// HazardCategories lists the checklists in export order.
var HazardCategories = []HazardCategory{
	{
		Key:   "flhf",
		Title: "Environmental Hazards",
		Labels: []string{
			"Weather conditions (heat, cold, wind, rain)",
			"Lighting is adequate",
			"Slippery or uneven ground",
			"Dust, fumes or vapours",
			"Noise levels",
			"Wildlife or insects",
		},
	},
	{
		Key:   "ergonomics",
		Title: "Ergonomics",
		Labels: []string{
			"Awkward body position",
			"Repetitive motion",
			"Lifting or carrying heavy loads",
			"Working above shoulder height",
			"Prolonged standing or kneeling",
		},
	},
	{
		Key:   "aeHazards",
		Title: "Access/Egress",
		Labels: []string{
			"Clear access to work area",
			"Emergency exits identified",
			"Ladders and stairs in good condition",
			"Scaffolding inspected and tagged",
			"Confined space entry requirements",
		},
	},
	{
		Key:   "ouHazards",
		Title: "Overhead/Underground",
		Labels: []string{
			"Overhead power lines",
			"Falling objects",
			"Buried utilities located",
			"Excavation or trenching",
			"Suspended loads",
		},
	},
	{
		Key:   "evtHazards",
		Title: "Equipment/Vac Truck",
		Labels: []string{
			"Pre-use equipment inspection completed",
			"Hoses and fittings in good condition",
			"Vacuum pressure relief working",
			"Spotter in place for backing",
			"Wheel chocks in place",
			"Hazardous material disposal plan",
		},
	},
	{
		Key:   "plHazards",
		Title: "Personal Limitations",
		Labels: []string{
			"Fatigue",
			"Working alone",
			"Lack of training for the task",
			"Medication or impairment",
			"Distraction or stress",
		},
	},
}

// HazardItem is one labelled checklist answer.
type HazardItem struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// HazardChecklist is one category with its labelled answers.
type HazardChecklist struct {
	Category HazardCategory `json:"-"`
	Title    string         `json:"title"`
	Items    []HazardItem   `json:"items"`
}

func (d *FLHAData) answers(key string) []HazardAnswer {
	switch key {
	case "flhf":
		return d.EnvironmentalHazards
	case "ergonomics":
		return d.Ergonomics
	case "aeHazards":
		return d.AccessEgress
	case "ouHazards":
		return d.OverheadUnderground
	case "evtHazards":
		return d.EquipmentVacTruck
	case "plHazards":
		return d.PersonalLimitations
	}
	return nil
}

// Checklist pairs every stored answer with its label. Labels without an
// answer render as N/A; answers past the label list get an "Item N" label.
func (f *FLHA) Checklist() []HazardChecklist {
	out := make([]HazardChecklist, 0, len(HazardCategories))
	for _, cat := range HazardCategories {
		answers := f.Data.answers(cat.Key)
		n := max(len(cat.Labels), len(answers))

		items := make([]HazardItem, 0, n)
		for i := 0; i < n; i++ {
			item := HazardItem{
				Label:       "Item " + strconv.Itoa(i+1),
				Description: NotAvailable,
				Status:      NotAvailable,
			}
			if i < len(cat.Labels) {
				item.Label = cat.Labels[i]
			}
			if i < len(answers) {
				if d := strings.TrimSpace(answers[i].Description); d != "" {
					item.Description = d
				}
				item.Status = FormatBool(answers[i].Status)
			}
			items = append(items, item)
		}
		out = append(out, HazardChecklist{Category: cat, Title: cat.Title, Items: items})
	}
	return out
}

// FormatBool renders an optional boolean as "True", "False" or N/A.
func FormatBool(b *bool) string {
	if b == nil {
		return NotAvailable
	}
	if *b {
		return "True"
	}
	return "False"
}

// String renders the item as "label: description (status)".
func (h HazardItem) String() string {
	return fmt.Sprintf("%s: %s (%s)", h.Label, h.Description, h.Status)
}
