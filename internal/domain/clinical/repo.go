package clinical

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/records"
)

type MedicalRecordRepository interface {
	records.Store[*MedicalRecord]
	// DeleteByPatient removes every record of a patient. It backs the
	// patient delete cascade.
	DeleteByPatient(ctx context.Context, patientID uuid.UUID) error
}
