package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/records"
)

// PatientRepository is the records store for patients. List understands the
// "search" filter.
type PatientRepository interface {
	records.Store[*Patient]
}

type ImageRepository interface {
	Create(ctx context.Context, img *MedicalImage) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalImage, int, error)
}
