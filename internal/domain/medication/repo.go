package medication

import "github.com/ehr/records/internal/platform/records"

// MedicationRepository is the records store for medications. List
// understands the "patientId" filter.
type MedicationRepository interface {
	records.Store[*Medication]
}
