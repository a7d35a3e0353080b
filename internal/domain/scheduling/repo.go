package scheduling

import "github.com/ehr/records/internal/platform/records"

// AppointmentRepository is the records store for appointments. List
// understands the "date" and "patientId" filters.
type AppointmentRepository interface {
	records.Store[*Appointment]
}
