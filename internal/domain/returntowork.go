package domain

import (
	"slices"
	"time"
)

// ReturnToWorkPlan is stored as one document holding the full worker list.
// Workers have no identity of their own.
type ReturnToWorkPlan struct {
	ID        string    `bson:"_id" json:"id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	CreatedBy string    `bson:"created_by" json:"created_by"`
	Workers   []Worker  `bson:"workers" json:"workers" validate:"required,min=1,dive"`
}

// Worker is one injured worker's return schedule and sign-off.
type Worker struct {
	ReturnToEmail           string `bson:"returnToEmail" json:"returnToEmail" validate:"omitempty,email"`
	InjuredWorkerName       string `bson:"injuredWorkerName" json:"injuredWorkerName" validate:"required"`
	TitleRole               string `bson:"titleRole" json:"titleRole"`
	SupervisorName          string `bson:"supervisorName" json:"supervisorName"`
	DepartmentArea          string `bson:"departmentArea" json:"departmentArea"`
	ScheduledReturnToWorkOn string `bson:"scheduledReturnToWorkOn" json:"scheduledReturnToWorkOn"`
	DateOfReturn            string `bson:"dateOfReturn" json:"dateOfReturn" validate:"required"`
	TimeOfReturn            string `bson:"timeOfReturn" json:"timeOfReturn"`

	EmployeeStatus      []string `bson:"employeeStatus" json:"employeeStatus" validate:"required,min=1"`
	PartialDayHours     string   `bson:"partialDayHours" json:"partialDayHours"`
	PartialDayStartTime string   `bson:"partialDayStartTime" json:"partialDayStartTime"`
	PartialDayEndTime   string   `bson:"partialDayEndTime" json:"partialDayEndTime"`

	ReviewChecklist []string `bson:"reviewChecklist" json:"reviewChecklist"`

	EmployeeNameAgreement   string `bson:"employeeNameAgreement" json:"employeeNameAgreement" validate:"required"`
	EmployeeSignature       string `bson:"employeeSignature" json:"employeeSignature" validate:"required"`
	EmployeeDate            string `bson:"employeeDate" json:"employeeDate" validate:"required"`
	SupervisorNameAgreement string `bson:"supervisorNameAgreement" json:"supervisorNameAgreement" validate:"required"`
	SupervisorSignature     string `bson:"supervisorSignature" json:"supervisorSignature" validate:"required"`
	SupervisorDate          string `bson:"supervisorDate" json:"supervisorDate" validate:"required"`
}

// WorksPartialDay reports whether the partial-day status is selected.
func (w Worker) WorksPartialDay() bool {
	return slices.Contains(w.EmployeeStatus, StatusPartialDay)
}
