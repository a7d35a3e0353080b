package medication

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/pkg/fields"
)

// Medication maps to the medications table. PrescribedBy is the owning
// reference.
type Medication struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patientId"`
	Name         string    `db:"name" json:"name"`
	Dosage       string    `db:"dosage" json:"dosage"`
	Frequency    string    `db:"frequency" json:"frequency"`
	StartDate    string    `db:"start_date" json:"startDate"`
	EndDate      *string   `db:"end_date" json:"endDate"`
	PrescribedBy string    `db:"prescribed_by" json:"prescribedBy"`
	Notes        string    `db:"notes" json:"notes"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

func (m *Medication) RecordID() uuid.UUID { return m.ID }
func (m *Medication) OwnerRef() string    { return m.PrescribedBy }

// endsBeforeStart reports an end date earlier than the start date.
func (m *Medication) endsBeforeStart() bool {
	return m.EndDate != nil && *m.EndDate < m.StartDate
}

type CreateRequest struct {
	PatientID string  `json:"patientId" validate:"required,uuid"`
	Name      string  `json:"name" validate:"notblank,max=100"`
	Dosage    string  `json:"dosage" validate:"notblank,max=50"`
	Frequency string  `json:"frequency" validate:"notblank,max=100"`
	StartDate string  `json:"startDate" validate:"notblank,datetime=2006-01-02"`
	EndDate   *string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Notes     string  `json:"notes"`
	// PrescribedBy is honoured only for the seeding principal.
	PrescribedBy string `json:"prescribedBy"`
}

func (r *CreateRequest) trim() {
	for _, s := range []*string{&r.PatientID, &r.Name, &r.Dosage, &r.Frequency, &r.StartDate, &r.PrescribedBy} {
		*s = strings.TrimSpace(*s)
	}
	if r.EndDate != nil {
		v := strings.TrimSpace(*r.EndDate)
		if v == "" {
			r.EndDate = nil
		} else {
			r.EndDate = &v
		}
	}
}

type UpdateRequest struct {
	PatientID    fields.Optional[string] `json:"patientId"`
	Name         fields.Optional[string] `json:"name"`
	Dosage       fields.Optional[string] `json:"dosage"`
	Frequency    fields.Optional[string] `json:"frequency"`
	StartDate    fields.Optional[string] `json:"startDate"`
	EndDate      fields.Optional[string] `json:"endDate"`
	Notes        fields.Optional[string] `json:"notes"`
	PrescribedBy fields.Optional[string] `json:"prescribedBy"`
}

func (r *UpdateRequest) Required() auth.Permission {
	if r.PatientID.Set || r.Name.Set || r.Dosage.Set || r.Frequency.Set ||
		r.StartDate.Set || r.EndDate.Set || r.PrescribedBy.Set {
		return auth.PermWrite
	}
	return auth.PermLimitedWrite
}
