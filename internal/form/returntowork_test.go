package form

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/safetyline/internal/domain"
)

func completeWorker() domain.Worker {
	return domain.Worker{
		InjuredWorkerName:       "Sam",
		DateOfReturn:            "2024-04-01",
		EmployeeStatus:          []string{domain.EmployeeStatuses[0]},
		ReviewChecklist:         []string{},
		EmployeeNameAgreement:   "Sam",
		EmployeeSignature:       "S",
		EmployeeDate:            "2024-03-28",
		SupervisorNameAgreement: "Pat",
		SupervisorSignature:     "P",
		SupervisorDate:          "2024-03-28",
	}
}

func TestReturnToWorkForm_Workers(t *testing.T) {
	f := NewReturnToWork()
	require.Len(t, f.Workers, 1)

	f.RemoveWorker(0)
	assert.Len(t, f.Workers, 1)

	f.AddWorker()
	require.NoError(t, f.SetWorkerField(1, "injuredWorkerName", "Lee"))
	require.NoError(t, f.ToggleWorkerOption(1, domain.GroupEmployeeStatus, domain.StatusPartialDay))
	assert.Equal(t, "Lee", f.Workers[1].InjuredWorkerName)
	assert.True(t, f.Workers[1].WorksPartialDay())
	assert.Empty(t, f.Workers[0].InjuredWorkerName)

	assert.Error(t, f.SetWorkerField(4, "injuredWorkerName", "x"))
	assert.Error(t, f.SetWorkerField(0, "favouriteColour", "x"))
	assert.Error(t, f.ToggleWorkerOption(0, domain.GroupEmployeeStatus, "On holiday"))
	assert.Error(t, f.ToggleWorkerOption(0, domain.GroupInjuryType, "Bruise"))

	f.RemoveWorker(0)
	require.Len(t, f.Workers, 1)
	assert.Equal(t, "Lee", f.Workers[0].InjuredWorkerName)
}

func TestValidateReturnToWork(t *testing.T) {
	tests := []struct {
		name    string
		workers func() []domain.Worker
		want    string
	}{
		{
			name:    "complete",
			workers: func() []domain.Worker { return []domain.Worker{completeWorker()} },
		},
		{
			name:    "no workers",
			workers: func() []domain.Worker { return []domain.Worker{} },
			want:    "workers",
		},
		{
			name: "blank name",
			workers: func() []domain.Worker {
				w := completeWorker()
				w.InjuredWorkerName = "  "
				return []domain.Worker{w}
			},
			want: "workers[0].injuredWorkerName",
		},
		{
			name: "second worker missing status",
			workers: func() []domain.Worker {
				w := completeWorker()
				w.EmployeeStatus = []string{}
				return []domain.Worker{completeWorker(), w}
			},
			want: "workers[1].employeeStatus",
		},
		{
			name: "supervisor block incomplete",
			workers: func() []domain.Worker {
				w := completeWorker()
				w.SupervisorSignature = ""
				return []domain.Worker{w}
			},
			want: "workers[0].supervisorSignature",
		},
		{
			name: "partial day without schedule",
			workers: func() []domain.Worker {
				w := completeWorker()
				w.EmployeeStatus = []string{domain.StatusPartialDay}
				w.PartialDayHours = "4"
				return []domain.Worker{w}
			},
			want: "workers[0].partialDayStartTime",
		},
		{
			name: "bad return email",
			workers: func() []domain.Worker {
				w := completeWorker()
				w.ReturnToEmail = "nope"
				return []domain.Worker{w}
			},
			want: "workers[0].returnToEmail",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReturnToWork(&domain.ReturnToWorkPlan{Workers: tt.workers()})
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, failingField(t, err))
		})
	}
}

func TestToPlan_TrimsValues(t *testing.T) {
	f := &ReturnToWorkForm{Workers: []domain.Worker{completeWorker()}}
	f.Workers[0].InjuredWorkerName = "  Sam "
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	plan := f.ToPlan(now, "boss@acme.test")
	assert.Equal(t, "Sam", plan.Workers[0].InjuredWorkerName)
	assert.Equal(t, "boss@acme.test", plan.CreatedBy)
	assert.Equal(t, now, plan.CreatedAt)
	assert.Equal(t, "  Sam ", f.Workers[0].InjuredWorkerName)
}
