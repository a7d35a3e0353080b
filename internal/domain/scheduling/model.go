package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/pkg/fields"
)

const (
	StatusScheduled = "Scheduled"
	StatusCompleted = "Completed"
	StatusCanceled  = "Canceled"
	StatusNoShow    = "No-Show"
)

var statuses = []string{StatusScheduled, StatusCompleted, StatusCanceled, StatusNoShow}

// Appointment maps to the appointments table. DoctorID is the owning
// reference.
type Appointment struct {
	ID              uuid.UUID `db:"id" json:"id"`
	PatientID       uuid.UUID `db:"patient_id" json:"patientId"`
	DoctorID        string    `db:"doctor_id" json:"doctorId"`
	AppointmentDate string    `db:"appointment_date" json:"appointmentDate"`
	StartTime       string    `db:"start_time" json:"startTime"`
	EndTime         string    `db:"end_time" json:"endTime"`
	Status          string    `db:"status" json:"status"`
	Reason          string    `db:"reason" json:"reason"`
	Notes           string    `db:"notes" json:"notes"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

func (a *Appointment) RecordID() uuid.UUID { return a.ID }
func (a *Appointment) OwnerRef() string    { return a.DoctorID }

type CreateRequest struct {
	PatientID       string `json:"patientId" validate:"required,uuid"`
	AppointmentDate string `json:"appointmentDate" validate:"notblank,datetime=2006-01-02"`
	StartTime       string `json:"startTime" validate:"notblank,hhmm"`
	EndTime         string `json:"endTime" validate:"notblank,hhmm"`
	Status          string `json:"status" validate:"omitempty,oneof=Scheduled Completed Canceled No-Show"`
	Reason          string `json:"reason" validate:"notblank,max=200"`
	Notes           string `json:"notes"`
	// DoctorID is honoured only for the seeding principal.
	DoctorID string `json:"doctorId"`
}

func (r *CreateRequest) trim() {
	for _, s := range []*string{&r.PatientID, &r.AppointmentDate, &r.StartTime, &r.EndTime, &r.Status, &r.Reason, &r.DoctorID} {
		*s = strings.TrimSpace(*s)
	}
}

type UpdateRequest struct {
	PatientID       fields.Optional[string] `json:"patientId"`
	AppointmentDate fields.Optional[string] `json:"appointmentDate"`
	StartTime       fields.Optional[string] `json:"startTime"`
	EndTime         fields.Optional[string] `json:"endTime"`
	Status          fields.Optional[string] `json:"status"`
	Reason          fields.Optional[string] `json:"reason"`
	Notes           fields.Optional[string] `json:"notes"`
	DoctorID        fields.Optional[string] `json:"doctorId"`
}

// Required is the permission the payload needs. Front desk and nursing staff
// may change status and notes only.
func (r *UpdateRequest) Required() auth.Permission {
	if r.PatientID.Set || r.AppointmentDate.Set || r.StartTime.Set || r.EndTime.Set ||
		r.Reason.Set || r.DoctorID.Set {
		return auth.PermWrite
	}
	return auth.PermLimitedWrite
}

// timeKey pads HH:MM to HH:MM:SS so times compare lexically.
func timeKey(t string) string {
	if len(t) == 5 {
		return t + ":00"
	}
	return t
}
