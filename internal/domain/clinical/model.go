package clinical

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/pkg/fields"
)

// MedicalRecord is one visit note. DoctorID is the owning reference.
type MedicalRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patientId"`
	DoctorID       string    `db:"doctor_id" json:"doctorId"`
	VisitDate      string    `db:"visit_date" json:"visitDate"`
	ChiefComplaint string    `db:"chief_complaint" json:"chiefComplaint"`
	Diagnosis      string    `db:"diagnosis" json:"diagnosis"`
	TreatmentPlan  string    `db:"treatment_plan" json:"treatmentPlan"`
	FollowUpNeeded bool      `db:"follow_up_needed" json:"followUpNeeded"`
	Notes          string    `db:"notes" json:"notes"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

func (r *MedicalRecord) RecordID() uuid.UUID { return r.ID }
func (r *MedicalRecord) OwnerRef() string    { return r.DoctorID }

type CreateRequest struct {
	PatientID      string `json:"patientId" validate:"required,uuid"`
	VisitDate      string `json:"visitDate" validate:"notblank,datetime=2006-01-02"`
	ChiefComplaint string `json:"chiefComplaint" validate:"notblank,max=200"`
	Diagnosis      string `json:"diagnosis" validate:"notblank"`
	TreatmentPlan  string `json:"treatmentPlan" validate:"notblank"`
	FollowUpNeeded bool   `json:"followUpNeeded"`
	Notes          string `json:"notes"`
	DoctorID       string `json:"doctorId"`
}

func (r *CreateRequest) trim() {
	for _, s := range []*string{&r.PatientID, &r.VisitDate, &r.ChiefComplaint, &r.Diagnosis, &r.TreatmentPlan, &r.DoctorID} {
		*s = strings.TrimSpace(*s)
	}
}

type UpdateRequest struct {
	PatientID      fields.Optional[string] `json:"patientId"`
	VisitDate      fields.Optional[string] `json:"visitDate"`
	ChiefComplaint fields.Optional[string] `json:"chiefComplaint"`
	Diagnosis      fields.Optional[string] `json:"diagnosis"`
	TreatmentPlan  fields.Optional[string] `json:"treatmentPlan"`
	FollowUpNeeded fields.Optional[bool]   `json:"followUpNeeded"`
	Notes          fields.Optional[string] `json:"notes"`
	DoctorID       fields.Optional[string] `json:"doctorId"`
}

// Required returns limited_write for a notes-only change.
func (r *UpdateRequest) Required() auth.Permission {
	if r.PatientID.Set || r.VisitDate.Set || r.ChiefComplaint.Set || r.Diagnosis.Set ||
		r.TreatmentPlan.Set || r.FollowUpNeeded.Set || r.DoctorID.Set {
		return auth.PermWrite
	}
	return auth.PermLimitedWrite
}
