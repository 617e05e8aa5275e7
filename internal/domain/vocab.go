package domain

import "slices"

// Option groups of the incident report form. Each group is a set of fixed
// choices; the form rejects any option outside its group.
const (
	GroupDocumentTypes             = "documentTypes"
	GroupWorkdayIncident           = "workdayIncident"
	GroupInjuryType                = "injuryType"
	GroupUnsafeWorkplaceConditions = "unsafeWorkplaceConditions"
	GroupUnsafeActsByPeople        = "unsafeActsByPeople"
	GroupPreventionSuggestions     = "preventionSuggestions"
)

// Options that unlock a free-text companion field.
const (
	WorkdayIncidentOther = "Other"
	InjuryTypeOther      = "Other (describe)"
)

var DocumentTypes = []string{
	"Death",
	"Lost Time",
	"ER / Clinic Treatment",
	"First Aid Only",
	"Near Miss",
}

var WorkdayIncidents = []string{
	"Entering or leaving work",
	"Doing normal work activities",
	"During meal period",
	"During break",
	"Working overtime",
	WorkdayIncidentOther,
}

var InjuryTypes = []string{
	"Abrasion, scrapes",
	"Amputation",
	"Broken Bone",
	"Bruise",
	"Burn (heat)",
	"Burn (chemical)",
	"Concussion",
	"Crushing Injury",
	"Cut, laceration, puncture",
	"Hernia",
	"Illness",
	"Sprain, strain",
	"Damage to body system",
	InjuryTypeOther,
}

var UnsafeWorkplaceConditions = []string{
	"Inadequate guard",
	"Unguarded hazard",
	"Safety device is defective",
	"Tool or equipment defective",
	"Workstation layout is hazardous",
	"Unsafe lighting",
	"Unsafe ventilation",
	"Lack of needed personal protective equipment",
	"Lack of appropriate equipment / tools",
	"Unsafe clothing",
	"No training or insufficient training",
}

var UnsafeActsByPeople = []string{
	"Operating without permissions",
	"Operating at unsafe speed",
	"Servicing equipment that has power to it",
	"Making a safety device inoperative",
	"Using defective equipment",
	"Using equipment in an unapproved way",
	"Unsafe lifting",
	"Taking an unsafe position or posture",
	"Distraction, teasing, horseplay",
	"Failure to wear personal protective equipment",
	"Failure to use the available equipment / tools",
}

var PreventionSuggestions = []string{
	"Stop this activity",
	"Guard the hazard",
	"Train the employee(s)",
	"Train the supervisor(s)",
	"Redesign task steps",
	"Redesign work station",
	"Write a new policy / rule",
	"Enforce existing policy",
	"Routinely inspect for the hazard",
	"Personal protective equipment",
}

// Return-to-work option groups.
const (
	GroupEmployeeStatus  = "employeeStatus"
	GroupReviewChecklist = "reviewChecklist"

	StatusPartialDay = "Working a partial day"
)

var EmployeeStatuses = []string{
	"Performing their full duties with no restrictions.",
	"Performing their duties with restrictions.",
	"Has returned in a Transitional Work effort; and / or alternative duty has been assigned with restrictions.",
	"Working their full schedule.",
	StatusPartialDay,
}

var ReviewChecklist = []string{
	"The physician's restrictions have been identified and clarified.",
	"The transitional duties to be performed have been reviewed with the injured worker.",
	"The injured worker understands they must work within the physician's restrictions at all times.",
	"The supervisor understands they must not assign work outside the physician's restrictions.",
	"The schedule and hours of work have been confirmed.",
	"The injured worker knows who to report to and who to contact with concerns.",
	"Follow-up appointments and medical updates will be communicated to the supervisor.",
	"The plan will be reviewed and updated as restrictions change.",
	"Requirement of the injured worker to immediately go to their physician's office (or emergency room) if they are leaving work because they feel that they cannot perform the work or because they feel they may have been re-injured.",
}

// Vocabularies maps every option group to its fixed choices.
var Vocabularies = map[string][]string{
	GroupDocumentTypes:             DocumentTypes,
	GroupWorkdayIncident:           WorkdayIncidents,
	GroupInjuryType:                InjuryTypes,
	GroupUnsafeWorkplaceConditions: UnsafeWorkplaceConditions,
	GroupUnsafeActsByPeople:        UnsafeActsByPeople,
	GroupPreventionSuggestions:     PreventionSuggestions,
	GroupEmployeeStatus:            EmployeeStatuses,
	GroupReviewChecklist:           ReviewChecklist,
}

// IsOption reports whether option belongs to the named group.
func IsOption(group, option string) bool {
	return slices.Contains(Vocabularies[group], option)
}
